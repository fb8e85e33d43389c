package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/vcplink/pkg/framework"
	"github.com/robotalks/vcplink/pkg/l0/queue"
)

// Dialer opens the underlying connection.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// Defaults of Stream.
const (
	DefaultBufferSize = 4096
	DefaultMinBackoff = 100 * time.Millisecond
	DefaultMaxBackoff = 5 * time.Second

	readChunkSize = 256
)

// ErrNotConnected is returned by Write when no connection is open.
var ErrNotConnected = errors.New("transport: not connected")

// Stream is a link.Transport backed by a reader goroutine.
// Poll and Run must each be used from a single goroutine.
//
// A live Stream drops received bytes when Poll falls behind. A Once Stream
// reads a finite source and waits for Poll instead, so nothing is lost.
type Stream struct {
	Name string
	Dial Dialer
	// Once stops Run after the first connection ends instead of redialing.
	Once       bool
	MinBackoff time.Duration
	MaxBackoff time.Duration

	bufSize  int
	ring     *queue.Ring[byte]
	scratch  []byte
	ready    chan struct{}
	space    chan struct{}
	overflow atomic.Uint64
	dials    atomic.Uint64

	connLock sync.Mutex
	conn     io.ReadWriteCloser
}

// Option configures Stream.
type Option func(*Stream)

// WithBufferSize sets the capacity of the receive ring.
func WithBufferSize(n int) Option {
	return func(s *Stream) {
		s.bufSize = n
	}
}

// WithOnce makes the Stream stop after the first connection ends.
func WithOnce() Option {
	return func(s *Stream) {
		s.Once = true
	}
}

// WithBackoff sets the redial backoff range.
func WithBackoff(min, max time.Duration) Option {
	return func(s *Stream) {
		s.MinBackoff, s.MaxBackoff = min, max
	}
}

// NewStream creates a Stream.
func NewStream(name string, dial Dialer, opts ...Option) (*Stream, error) {
	s := &Stream{
		Name:       name,
		Dial:       dial,
		MinBackoff: DefaultMinBackoff,
		MaxBackoff: DefaultMaxBackoff,
		bufSize:    DefaultBufferSize,
		ready:      make(chan struct{}, 1),
		space:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	ring, err := queue.New[byte](s.bufSize)
	if err != nil {
		return nil, err
	}
	s.ring, s.scratch = ring, make([]byte, s.bufSize)
	return s, nil
}

// Poll implements link.Transport. The returned slice is only valid until the
// next call.
func (s *Stream) Poll() []byte {
	n := s.ring.DequeueInto(s.scratch)
	if n > 0 {
		signal(s.space)
	}
	return s.scratch[:n]
}

// Ready implements link.Notifier.
func (s *Stream) Ready() <-chan struct{} {
	return s.ready
}

// Overflow returns the number of bytes discarded because Poll fell behind.
func (s *Stream) Overflow() uint64 {
	return s.overflow.Load()
}

// Dials returns the number of successful connections.
func (s *Stream) Dials() uint64 {
	return s.dials.Load()
}

// Buffered returns the number of bytes waiting for Poll.
func (s *Stream) Buffered() int {
	return s.ring.Len()
}

// Connected indicates a connection is open.
func (s *Stream) Connected() bool {
	s.connLock.Lock()
	defer s.connLock.Unlock()
	return s.conn != nil
}

// Write sends bytes over the current connection.
func (s *Stream) Write(p []byte) (int, error) {
	s.connLock.Lock()
	conn := s.conn
	s.connLock.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}
	return conn.Write(p)
}

// Run implements Runnable. It dials, pumps received bytes into the ring and
// redials with backoff when the connection ends.
func (s *Stream) Run(ctx context.Context) error {
	backoff := s.MinBackoff
	for {
		conn, err := s.Dial(ctx)
		if err == nil {
			backoff = s.MinBackoff
			s.dials.Add(1)
			glog.Infof("%s: connected", s.Name)
			err = s.serve(ctx, conn)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if s.Once {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		glog.Warningf("%s: %v, retry in %s", s.Name, err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > s.MaxBackoff {
			backoff = s.MaxBackoff
		}
	}
}

func (s *Stream) serve(ctx context.Context, conn io.ReadWriteCloser) error {
	s.connLock.Lock()
	s.conn = conn
	s.connLock.Unlock()
	defer func() {
		s.connLock.Lock()
		s.conn = nil
		s.connLock.Unlock()
	}()
	return framework.RunWithContextCloser(ctx, conn, func() error {
		return s.pump(ctx, conn)
	})
}

func (s *Stream) pump(ctx context.Context, r io.Reader) error {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if s.Once {
				if perr := s.pushWait(ctx, buf[:n]); perr != nil {
					return perr
				}
			} else {
				s.push(buf[:n])
			}
		}
		if err != nil {
			return err
		}
	}
}

func (s *Stream) push(data []byte) {
	var lost int
	for _, b := range data {
		if !s.ring.Enqueue(b) {
			lost++
		}
	}
	if lost > 0 {
		s.overflow.Add(uint64(lost))
		glog.V(1).Infof("%s: receive buffer full, %d bytes lost", s.Name, lost)
	}
	signal(s.ready)
}

// pushWait blocks while the ring is full until Poll makes room.
func (s *Stream) pushWait(ctx context.Context, data []byte) error {
	for _, b := range data {
		for !s.ring.Enqueue(b) {
			signal(s.ready)
			select {
			case <-s.space:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	signal(s.ready)
	return nil
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
