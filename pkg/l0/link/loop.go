package link

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/robotalks/vcplink/pkg/l0/diag"
	"github.com/robotalks/vcplink/pkg/l0/frame"
	"github.com/robotalks/vcplink/pkg/l0/queue"
)

// Loop polls a Transport, parses frames and enqueues messages.
// When the queue is full the newest message is dropped.
type Loop struct {
	Transport Transport
	Parser    *frame.Parser
	Queue     queue.Producer[frame.Message]
	Sink      diag.Sink
	Yielder   Yielder
	Metrics   *Metrics

	bytes    atomic.Uint64
	frames   atomic.Uint64
	enqueued atomic.Uint64
	dropped  atomic.Uint64
	errs     [frame.MaxErrorKind + 1]atomic.Uint64
}

// Stats is a snapshot of Loop counters.
type Stats struct {
	Bytes    uint64                     `json:"bytes"`
	Frames   uint64                     `json:"frames"`
	Enqueued uint64                     `json:"enqueued"`
	Dropped  uint64                     `json:"dropped"`
	Errors   map[frame.ErrorKind]uint64 `json:"errors"`
}

// ParseErrors returns the total of all parse errors.
func (s Stats) ParseErrors() (n uint64) {
	for _, v := range s.Errors {
		n += v
	}
	return
}

// NewLoop creates a Loop with a default parser, a glog sink and a yielder
// suited to the transport.
func NewLoop(t Transport, q queue.Producer[frame.Message]) *Loop {
	return &Loop{
		Transport: t,
		Parser:    &frame.Parser{},
		Queue:     q,
		Sink:      diag.Glog{},
		Yielder:   YielderFor(t),
	}
}

// Stats gets a snapshot of counters. It is safe to call from any goroutine.
func (l *Loop) Stats() Stats {
	s := Stats{
		Bytes:    l.bytes.Load(),
		Frames:   l.frames.Load(),
		Enqueued: l.enqueued.Load(),
		Dropped:  l.dropped.Load(),
		Errors:   make(map[frame.ErrorKind]uint64, len(frame.ErrorKinds)),
	}
	for _, kind := range frame.ErrorKinds {
		s.Errors[kind] = l.errs[kind].Load()
	}
	return s
}

// Step polls once and drains what was received.
// It returns the number of bytes processed.
func (l *Loop) Step() int {
	data := l.Transport.Poll()
	l.Drain(data)
	return len(data)
}

// Drain feeds every byte to the parser.
func (l *Loop) Drain(data []byte) {
	if len(data) == 0 {
		return
	}
	l.bytes.Add(uint64(len(data)))
	l.Metrics.addBytes(len(data))
	for _, b := range data {
		out := l.Parser.Feed(b)
		switch out.Status {
		case frame.Complete:
			l.deliver(*out.Message)
		case frame.Failed:
			l.parseFailed(out.Err)
		}
	}
}

// Run implements Runnable. It only returns when ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	yielder := l.Yielder
	if yielder == nil {
		yielder = YielderFor(l.Transport)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.Step() == 0 {
			yielder.Yield(ctx)
		}
	}
}

func (l *Loop) deliver(msg frame.Message) {
	l.frames.Add(1)
	l.Metrics.addFrame()
	if l.Queue.Enqueue(msg) {
		l.enqueued.Add(1)
		return
	}
	l.dropped.Add(1)
	l.Metrics.addDropped()
	l.trace("queue full, dropped %s", msg)
}

func (l *Loop) parseFailed(err error) {
	var perr *frame.ParseError
	if errors.As(err, &perr) && int(perr.Kind) < len(l.errs) {
		l.errs[perr.Kind].Add(1)
		l.Metrics.addParseError(perr.Kind)
	}
	l.trace("%v", err)
}

func (l *Loop) trace(format string, args ...interface{}) {
	if l.Sink != nil {
		l.Sink.Tracef(format, args...)
	}
}
