// Package diag provides best-effort diagnostic trace sinks.
package diag

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/golang/glog"
	"golang.org/x/time/rate"
)

// Sink accepts human readable trace lines.
// Implementations must not block and must not fail the caller.
type Sink interface {
	Tracef(format string, args ...interface{})
}

// SinkFunc is func type of Sink.
type SinkFunc func(format string, args ...interface{})

// Tracef implements Sink.
func (f SinkFunc) Tracef(format string, args ...interface{}) {
	f(format, args...)
}

// Discard drops everything.
var Discard Sink = SinkFunc(func(string, ...interface{}) {})

// Glog writes trace lines to glog.
// With Verbosity 0 lines are warnings, otherwise they are V(Verbosity) info.
type Glog struct {
	Verbosity glog.Level
}

// Tracef implements Sink.
func (g Glog) Tracef(format string, args ...interface{}) {
	if g.Verbosity == 0 {
		glog.WarningDepth(1, fmt.Sprintf(format, args...))
		return
	}
	if glog.V(g.Verbosity) {
		glog.InfoDepth(1, fmt.Sprintf(format, args...))
	}
}

// Async moves formatting output off the caller's path.
// Lines beyond the buffer or the rate limit are counted and dropped.
// Each line is prefixed with the file:line of the Tracef caller, since the
// sink only sees the Run goroutine.
type Async struct {
	sink    Sink
	lines   chan string
	limiter *rate.Limiter
	dropped atomic.Uint64
}

// AsyncOption configures Async.
type AsyncOption func(*Async)

// WithBuffer sets the number of pending lines.
func WithBuffer(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.lines = make(chan string, n)
		}
	}
}

// WithRate limits lines per second with a burst.
func WithRate(limit rate.Limit, burst int) AsyncOption {
	return func(a *Async) {
		a.limiter = rate.NewLimiter(limit, burst)
	}
}

// NewAsync wraps sink.
func NewAsync(sink Sink, opts ...AsyncOption) *Async {
	a := &Async{
		sink:    sink,
		lines:   make(chan string, 256),
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Tracef implements Sink.
func (a *Async) Tracef(format string, args ...interface{}) {
	if !a.limiter.Allow() {
		a.dropped.Add(1)
		return
	}
	line := fmt.Sprintf(format, args...)
	if _, file, no, ok := runtime.Caller(1); ok {
		line = fmt.Sprintf("%s:%d: %s", filepath.Base(file), no, line)
	}
	select {
	case a.lines <- line:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns the number of lines lost so far.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Run implements Runnable.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case line := <-a.lines:
			a.sink.Tracef("%s", line)
		case <-ctx.Done():
			a.flush()
			return ctx.Err()
		}
	}
}

func (a *Async) flush() {
	for {
		select {
		case line := <-a.lines:
			a.sink.Tracef("%s", line)
		default:
			return
		}
	}
}
