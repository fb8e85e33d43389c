package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type pipeServer struct {
	conns    chan net.Conn
	failures atomic.Int32
}

func newPipeServer(failures int32) *pipeServer {
	s := &pipeServer{conns: make(chan net.Conn, 4)}
	s.failures.Store(failures)
	return s
}

func (s *pipeServer) dial(context.Context) (io.ReadWriteCloser, error) {
	if s.failures.Add(-1) >= 0 {
		return nil, errors.New("device absent")
	}
	client, server := net.Pipe()
	s.conns <- server
	return client, nil
}

func (s *pipeServer) accept(t *testing.T) net.Conn {
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(time.Second):
		t.Fatal("no connection")
	}
	return nil
}

func startStream(t *testing.T, s *Stream) (stop func() error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(time.Second):
			t.Fatal("stream didn't stop")
		}
		return nil
	}
}

func pollN(t *testing.T, s *Stream, n int) []byte {
	var got []byte
	require.Eventually(t, func() bool {
		got = append(got, s.Poll()...)
		return len(got) >= n
	}, time.Second, time.Millisecond)
	return got
}

func TestStreamPoll(t *testing.T) {
	server := newPipeServer(0)
	s, err := NewStream("pipe", server.dial)
	require.NoError(t, err)
	require.Empty(t, s.Poll())
	stop := startStream(t, s)

	conn := server.accept(t)
	_, err = conn.Write([]byte{0x7e, 0x02, 0x01})
	require.NoError(t, err)
	select {
	case <-s.Ready():
	case <-time.After(time.Second):
		t.Fatal("not signaled")
	}
	_, err = conn.Write([]byte{0x02, 0x0a})
	require.NoError(t, err)
	require.Equal(t, []byte{0x7e, 0x02, 0x01, 0x02, 0x0a}, pollN(t, s, 5))
	require.Zero(t, s.Buffered())

	require.ErrorIs(t, stop(), context.Canceled)
	require.False(t, s.Connected())
}

func TestStreamWrite(t *testing.T) {
	server := newPipeServer(0)
	s, err := NewStream("pipe", server.dial)
	require.NoError(t, err)
	_, err = s.Write([]byte{1})
	require.ErrorIs(t, err, ErrNotConnected)

	stop := startStream(t, s)
	defer stop()
	conn := server.accept(t)
	require.Eventually(t, s.Connected, time.Second, time.Millisecond)

	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 8)
		n, _ := conn.Read(buf)
		received <- buf[:n]
	}()
	n, err := s.Write([]byte{0x7e, 0x01, 0x05, 0x07})
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte{0x7e, 0x01, 0x05, 0x07}, <-received)
}

func TestStreamRedial(t *testing.T) {
	server := newPipeServer(2)
	s, err := NewStream("pipe", server.dial, WithBackoff(time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)
	stop := startStream(t, s)
	defer stop()

	conn := server.accept(t)
	require.Eventually(t, func() bool { return s.Dials() == 1 }, time.Second, time.Millisecond)
	conn.Close()

	conn = server.accept(t)
	_, err = conn.Write([]byte{0x7e})
	require.NoError(t, err)
	require.Equal(t, []byte{0x7e}, pollN(t, s, 1))
	require.EqualValues(t, 2, s.Dials())
}

func TestStreamOverflow(t *testing.T) {
	server := newPipeServer(0)
	s, err := NewStream("pipe", server.dial, WithBufferSize(4))
	require.NoError(t, err)
	stop := startStream(t, s)
	defer stop()

	conn := server.accept(t)
	_, err = conn.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Overflow() == 6 }, time.Second, time.Millisecond)
	require.Equal(t, []byte{1, 2, 3, 4}, s.Poll())
}

func TestStreamOnce(t *testing.T) {
	server := newPipeServer(0)
	s, err := NewStream("pipe", server.dial, WithOnce())
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	conn := server.accept(t)
	conn.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stream didn't stop")
	}
}

func TestStreamBufferSize(t *testing.T) {
	_, err := NewStream("pipe", newPipeServer(0).dial, WithBufferSize(0))
	require.Error(t, err)
}

func TestStreamOnceWaitsForPoll(t *testing.T) {
	server := newPipeServer(0)
	s, err := NewStream("pipe", server.dial, WithOnce(), WithBufferSize(4))
	require.NoError(t, err)
	stop := startStream(t, s)
	conn := server.accept(t)

	sent := []byte("0123456789")
	go func() {
		conn.Write(sent)
	}()
	var got []byte
	deadline := time.After(time.Second)
	for len(got) < len(sent) {
		select {
		case <-s.Ready():
			got = append(got, s.Poll()...)
		case <-deadline:
			t.Fatalf("received %q", got)
		}
	}
	require.Equal(t, sent, got)
	require.Zero(t, s.Overflow())

	// blocked on a full ring, cancel still stops it
	go func() {
		conn.Write(sent)
	}()
	require.Eventually(t, func() bool { return s.Buffered() == 4 }, time.Second, time.Millisecond)
	require.ErrorIs(t, stop(), context.Canceled)
}
