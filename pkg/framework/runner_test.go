package framework

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunnerStopsAllOnFirstExit(t *testing.T) {
	errFailed := errors.New("failed")
	r := NewRunner()
	r.Go(
		NamedRun("blocking", RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
		RunFunc(func(context.Context) error { return errFailed }),
	)
	err := r.Wait()
	require.ErrorIs(t, err, errFailed)
	require.Equal(t, "failed", err.Error())
}

func TestRunnerStop(t *testing.T) {
	r := NewRunner()
	r.Go(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	r.Stop()
	require.NoError(t, r.Wait())
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	a, b := errors.New("a"), errors.New("b")
	err := errs.Add(a, nil, b).Aggregate()
	require.Equal(t, "multiple errors:\na\nb", err.Error())
	require.ErrorIs(t, err, b)
}

type closeCounter struct {
	closed atomic.Int32
	done   chan struct{}
}

func (c *closeCounter) Close() error {
	if c.closed.Add(1) == 1 {
		close(c.done)
	}
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	c := &closeCounter{done: make(chan struct{})}
	err := RunWithContextCloser(context.Background(), c, func() error { return io.EOF })
	require.ErrorIs(t, err, io.EOF)
	require.EqualValues(t, 1, c.closed.Load())

	c = &closeCounter{done: make(chan struct{})}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = RunWithContextCloser(ctx, c, func() error {
		<-c.done
		return io.ErrClosedPipe
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.EqualValues(t, 1, c.closed.Load())
}

func TestRunnerKeepsOthersOnCleanExit(t *testing.T) {
	r := NewRunner()
	stopped := make(chan struct{})
	r.Go(
		RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return ctx.Err()
		}),
		RunFunc(func(context.Context) error { return nil }),
	)
	select {
	case <-stopped:
		t.Fatal("clean exit stopped other runners")
	case <-time.After(10 * time.Millisecond):
	}
	r.Stop()
	require.NoError(t, r.Wait())
}
