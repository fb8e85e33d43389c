package link

import (
	"context"
	"runtime"
	"time"
)

// Transport is a non-blocking byte source.
// Poll returns whatever is available, possibly nothing. No data and
// temporary unavailability look the same to the Loop.
type Transport interface {
	Poll() []byte
}

// PollFunc is func type of Transport.
type PollFunc func() []byte

// Poll implements Transport.
func (f PollFunc) Poll() []byte {
	return f()
}

// Notifier is implemented by transports that can signal new data.
type Notifier interface {
	Ready() <-chan struct{}
}

// Yielder decides what the Loop does after an empty poll.
type Yielder interface {
	Yield(context.Context)
}

// YieldFunc is func type of Yielder.
type YieldFunc func(context.Context)

// Yield implements Yielder.
func (f YieldFunc) Yield(ctx context.Context) {
	f(ctx)
}

// GoschedYielder busy-polls and only gives up the processor.
type GoschedYielder struct{}

// Yield implements Yielder.
func (GoschedYielder) Yield(context.Context) {
	runtime.Gosched()
}

// SleepYielder idles for a fixed interval.
type SleepYielder time.Duration

// Yield implements Yielder.
func (y SleepYielder) Yield(ctx context.Context) {
	timer := time.NewTimer(time.Duration(y))
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()
}

// NotifyYielder waits for the transport to signal data, up to MaxWait.
type NotifyYielder struct {
	Notifier Notifier
	MaxWait  time.Duration
}

// Yield implements Yielder.
func (y NotifyYielder) Yield(ctx context.Context) {
	wait := y.MaxWait
	if wait <= 0 {
		wait = DefaultIdle
	}
	timer := time.NewTimer(wait)
	select {
	case <-ctx.Done():
	case <-y.Notifier.Ready():
	case <-timer.C:
	}
	timer.Stop()
}

// DefaultIdle is the idle interval used when nothing better is configured.
const DefaultIdle = time.Millisecond

// YielderFor picks NotifyYielder when the transport supports it.
func YielderFor(t Transport) Yielder {
	if n, ok := t.(Notifier); ok {
		return NotifyYielder{Notifier: n, MaxWait: 100 * time.Millisecond}
	}
	return SleepYielder(DefaultIdle)
}
