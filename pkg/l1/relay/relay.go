// Package relay drains the ingestion queue and publishes every message.
package relay

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/vcplink/pkg/l0/frame"
	"github.com/robotalks/vcplink/pkg/l0/queue"
	"github.com/robotalks/vcplink/pkg/l1"
	"github.com/robotalks/vcplink/pkg/l1/msgs"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// PublishFunc is func type of Publisher.
type PublishFunc func(ctx context.Context, topic string, payload []byte) error

// Publish implements Publisher.
func (f PublishFunc) Publish(ctx context.Context, topic string, payload []byte) error {
	return f(ctx, topic, payload)
}

// StatsFunc reports statistics to publish periodically.
type StatsFunc func() interface{}

// DefaultIdle is how long Run sleeps when the queue is empty.
const DefaultIdle = 5 * time.Millisecond

// batchSize bounds the messages published between stats checks.
const batchSize = 64

// Relay is the consumer of the message queue.
type Relay struct {
	Queue     queue.Consumer[frame.Message]
	Publisher Publisher
	Device    l1.DeviceRef
	Idle      time.Duration
	// Stats, when set, is published to the stats topic every StatsInterval.
	Stats         StatsFunc
	StatsInterval time.Duration

	seq       uint64
	published atomic.Uint64
	failed    atomic.Uint64
}

// New creates a Relay.
func New(q queue.Consumer[frame.Message], pub Publisher, device l1.DeviceRef) *Relay {
	return &Relay{Queue: q, Publisher: pub, Device: device, Idle: DefaultIdle}
}

// Published returns the number of messages published.
func (r *Relay) Published() uint64 {
	return r.published.Load()
}

// Failed returns the number of messages failed to publish.
func (r *Relay) Failed() uint64 {
	return r.failed.Load()
}

// Flush publishes everything queued and returns the number of messages taken.
func (r *Relay) Flush(ctx context.Context) int {
	return r.flush(ctx, -1)
}

// flush publishes at most limit messages, or all if limit is negative.
func (r *Relay) flush(ctx context.Context, limit int) int {
	var n int
	for ; ctx.Err() == nil && n != limit; n++ {
		msg, ok := r.Queue.Dequeue()
		if !ok {
			break
		}
		r.relay(ctx, msg)
	}
	return n
}

// Run implements Runnable.
func (r *Relay) Run(ctx context.Context) error {
	idle := r.Idle
	if idle <= 0 {
		idle = DefaultIdle
	}
	var statsCh <-chan time.Time
	if r.Stats != nil && r.StatsInterval > 0 {
		ticker := time.NewTicker(r.StatsInterval)
		defer ticker.Stop()
		statsCh = ticker.C
	}
	for {
		if r.flush(ctx, batchSize) > 0 {
			select {
			case <-statsCh:
				r.publishStats(ctx)
			default:
			}
		} else {
			timer := time.NewTimer(idle)
			select {
			case <-ctx.Done():
			case <-statsCh:
				r.publishStats(ctx)
			case <-timer.C:
			}
			timer.Stop()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (r *Relay) relay(ctx context.Context, msg frame.Message) {
	r.seq++
	env := msgs.NewEnvelope(r.Device.ID, r.seq, msg)
	data, err := env.Encode()
	if err == nil {
		err = r.Publisher.Publish(ctx, r.Device.Topic(l1.TopicMsg), data)
	}
	if err != nil {
		r.failed.Add(1)
		glog.Warningf("relay %s: %v", msg, err)
		return
	}
	r.published.Add(1)
	glog.V(3).Infof("relay #%d %s", r.seq, msg)
}

func (r *Relay) publishStats(ctx context.Context) {
	data, err := json.Marshal(r.Stats())
	if err == nil {
		err = r.Publisher.Publish(ctx, r.Device.Topic(l1.TopicStats), data)
	}
	if err != nil {
		glog.Warningf("publish stats: %v", err)
	}
}
