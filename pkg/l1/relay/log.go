package relay

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/vcplink/pkg/l1/msgs"
)

// LogPublisher writes envelopes to glog instead of a broker.
type LogPublisher struct {
	// Verbosity is the glog level, 0 logs every message at INFO.
	Verbosity glog.Level
}

// Publish implements Publisher.
func (p LogPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if !glog.V(p.Verbosity) {
		return nil
	}
	env, err := msgs.Decode(payload)
	if err != nil {
		glog.Infof("%s: %d bytes", topic, len(payload))
		return nil
	}
	desc := env.Command
	if desc == "" {
		desc = env.Message.String()
	}
	glog.Infof("%s #%d %s", topic, env.Seq, desc)
	return nil
}
