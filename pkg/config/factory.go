package config

import (
	"time"

	"github.com/golang/glog"
	"golang.org/x/time/rate"

	"github.com/robotalks/vcplink/pkg/l0/diag"
	"github.com/robotalks/vcplink/pkg/l0/frame"
	"github.com/robotalks/vcplink/pkg/l0/link"
	"github.com/robotalks/vcplink/pkg/l0/queue"
	"github.com/robotalks/vcplink/pkg/l0/transport"
	"github.com/robotalks/vcplink/pkg/l1"
	"github.com/robotalks/vcplink/pkg/l1/env"
)

// NewParser creates the frame parser.
func (c *Config) NewParser() (*frame.Parser, error) {
	return frame.NewParser(frame.WithMaxLength(c.MaxLength))
}

// NewQueue creates the message queue.
func (c *Config) NewQueue() (*queue.Ring[frame.Message], error) {
	return queue.New[frame.Message](c.QueueCapacity)
}

// OpenTransport creates the Stream for the endpoint.
func (c *Config) OpenTransport() (*transport.Stream, error) {
	return c.OpenTransportFor(c.Endpoint)
}

// OpenTransportFor creates a Stream for another endpoint with the same settings.
func (c *Config) OpenTransportFor(endpoint string) (*transport.Stream, error) {
	return transport.Open(endpoint, transport.WithBufferSize(c.BufferSize))
}

// NewYielder creates the yielder for the poll mode.
func (c *Config) NewYielder(t link.Transport) link.Yielder {
	switch c.PollMode {
	case PollSpin:
		return link.GoschedYielder{}
	case PollNotify:
		if n, ok := t.(link.Notifier); ok {
			return link.NotifyYielder{Notifier: n, MaxWait: time.Duration(c.Idle)}
		}
	}
	return link.SleepYielder(c.Idle)
}

// NewSink creates the asynchronous rate limited trace sink writing to glog.
// The caller runs it.
func (c *Config) NewSink() *diag.Async {
	limit, burst := rate.Inf, c.TraceBurst
	if c.TraceRate > 0 {
		limit = rate.Limit(c.TraceRate)
	}
	return diag.NewAsync(diag.Glog{Verbosity: glog.Level(c.TraceLevel)},
		diag.WithBuffer(c.TraceBuffer),
		diag.WithRate(limit, burst))
}

// NewLoop assembles the ingestion loop. The sink should be running.
func (c *Config) NewLoop(t link.Transport, q queue.Producer[frame.Message], sink diag.Sink) (*link.Loop, error) {
	parser, err := c.NewParser()
	if err != nil {
		return nil, err
	}
	loop := link.NewLoop(t, q)
	loop.Parser = parser
	loop.Sink = sink
	loop.Yielder = c.NewYielder(t)
	return loop, nil
}

// Device resolves the device reference, deriving the ID when not set.
func (c *Config) Device() (l1.DeviceRef, error) {
	ref := l1.DeviceRef{Type: l1.DeviceType, ID: c.DeviceID}
	if ref.ID == "" {
		id, err := env.DeviceID(c.Endpoint)
		if err != nil {
			return ref, err
		}
		ref.ID = id
	}
	return ref, nil
}

// Meta builds the device metadata.
func (c *Config) Meta(online bool) l1.DeviceMeta {
	return l1.DeviceMeta{
		Description: c.Description,
		Endpoint:    c.Endpoint,
		Online:      online,
	}
}
