package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/vcplink/pkg/l0/frame"
	"github.com/robotalks/vcplink/pkg/l0/queue"
	"github.com/robotalks/vcplink/pkg/l1"
	"github.com/robotalks/vcplink/pkg/l1/msgs"
)

type recorder struct {
	lock   sync.Mutex
	topics []string
	data   [][]byte
	err    error
}

func (r *recorder) Publish(ctx context.Context, topic string, payload []byte) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.err != nil {
		return r.err
	}
	r.topics = append(r.topics, topic)
	r.data = append(r.data, payload)
	return nil
}

func (r *recorder) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.topics)
}

var testDevice = l1.DeviceRef{Type: l1.DeviceType, ID: "abc"}

func newRing(t *testing.T, items ...frame.Message) *queue.Ring[frame.Message] {
	ring, err := queue.New[frame.Message](queue.DefaultCapacity)
	require.NoError(t, err)
	for _, msg := range items {
		require.True(t, ring.Enqueue(msg))
	}
	return ring
}

func TestRelayFlush(t *testing.T) {
	ring := newRing(t, frame.Encode(1, 2), frame.Encode(5))
	pub := &recorder{}
	r := New(ring.Consumer(), pub, testDevice)
	require.Equal(t, 2, r.Flush(context.Background()))
	require.Zero(t, r.Flush(context.Background()))
	require.EqualValues(t, 2, r.Published())

	require.Equal(t, []string{"vcp/abc/msg", "vcp/abc/msg"}, pub.topics)
	for i, expect := range []frame.Message{frame.Encode(1, 2), frame.Encode(5)} {
		env, err := msgs.Decode(pub.data[i])
		require.NoError(t, err)
		require.Equal(t, "abc", env.Device)
		require.EqualValues(t, i+1, env.Seq)
		require.True(t, expect.Equal(env.Message))
	}
}

func TestRelayPublishFailure(t *testing.T) {
	ring := newRing(t, frame.Encode(1, 2))
	r := New(ring.Consumer(), &recorder{err: errors.New("offline")}, testDevice)
	require.Equal(t, 1, r.Flush(context.Background()))
	require.EqualValues(t, 1, r.Failed())
	require.Zero(t, r.Published())
	require.True(t, ring.Empty())
}

func TestRelayRun(t *testing.T) {
	ring := newRing(t)
	pub := &recorder{}
	r := New(ring.Consumer(), pub, testDevice)
	r.Idle = time.Millisecond
	r.Stats = func() interface{} { return map[string]int{"frames": 1} }
	r.StatsInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.True(t, ring.Enqueue(frame.Encode(1, 2)))
	require.Eventually(t, func() bool { return r.Published() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		pub.lock.Lock()
		defer pub.lock.Unlock()
		for i, topic := range pub.topics {
			if topic == "vcp/abc/stats" {
				return string(pub.data[i]) == `{"frames":1}`
			}
		}
		return false
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay didn't stop")
	}
	require.GreaterOrEqual(t, pub.count(), 2)
}

// endless never runs out of messages.
type endless struct{}

func (endless) Dequeue() (frame.Message, bool) { return frame.Encode(1, 2), true }
func (endless) Len() int                       { return 1 }

func TestRelayRunStatsUnderLoad(t *testing.T) {
	var msgCount, statsCount atomic.Int64
	pub := PublishFunc(func(ctx context.Context, topic string, payload []byte) error {
		if topic == testDevice.Topic(l1.TopicStats) {
			statsCount.Add(1)
		} else {
			msgCount.Add(1)
		}
		return nil
	})
	r := New(endless{}, pub, testDevice)
	r.Stats = func() interface{} { return map[string]int{} }
	r.StatsInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	require.Eventually(t, func() bool { return statsCount.Load() >= 2 }, 2*time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay didn't stop")
	}
	require.Greater(t, msgCount.Load(), int64(batchSize))
}

func TestLogPublisher(t *testing.T) {
	ring := newRing(t, frame.Encode(1, 2), frame.Encode(9))
	r := New(ring.Consumer(), LogPublisher{}, testDevice)
	require.Equal(t, 2, r.Flush(context.Background()))
	require.EqualValues(t, 2, r.Published())
	require.NoError(t, LogPublisher{}.Publish(context.Background(), "vcp/abc/stats", []byte(`{}`)))
}
