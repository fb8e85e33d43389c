package link

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type readyTransport struct {
	PollFunc
	ready chan struct{}
}

func (r *readyTransport) Ready() <-chan struct{} {
	return r.ready
}

func TestYielderFor(t *testing.T) {
	plain := PollFunc(func() []byte { return nil })
	require.Equal(t, SleepYielder(DefaultIdle), YielderFor(plain))

	rt := &readyTransport{PollFunc: plain, ready: make(chan struct{}, 1)}
	y, ok := YielderFor(rt).(NotifyYielder)
	require.True(t, ok)
	require.Same(t, rt, y.Notifier)
}

func TestNotifyYielderWakes(t *testing.T) {
	rt := &readyTransport{ready: make(chan struct{}, 1)}
	rt.ready <- struct{}{}
	start := time.Now()
	NotifyYielder{Notifier: rt, MaxWait: time.Hour}.Yield(context.Background())
	require.Less(t, time.Since(start), time.Second)
}

func TestYieldersHonorContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rt := &readyTransport{ready: make(chan struct{})}
	for _, y := range []Yielder{
		SleepYielder(time.Hour),
		NotifyYielder{Notifier: rt, MaxWait: time.Hour},
		GoschedYielder{},
		YieldFunc(func(context.Context) {}),
	} {
		start := time.Now()
		y.Yield(ctx)
		require.Less(t, time.Since(start), time.Second)
	}
}
