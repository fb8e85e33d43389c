package main

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/vcplink/pkg/config"
	"github.com/robotalks/vcplink/pkg/l1"
	"github.com/robotalks/vcplink/pkg/l1/mqtt"
	"github.com/robotalks/vcplink/pkg/l1/msgs"
)

var (
	device = "+"
	asJSON bool
)

func init() {
	flag.StringVar(&device, "device", device, "Device ID to watch, + for all.")
	flag.BoolVar(&asJSON, "json", asJSON, "Print envelopes in JSON.")
}

func handle(topic string, payload []byte) {
	if !strings.HasSuffix(topic, "/"+l1.TopicMsg) {
		glog.Infof("%s: %s", topic, string(payload))
		return
	}
	env, err := msgs.Decode(payload)
	if err != nil {
		glog.Warningf("%s: bad envelope: %v", topic, err)
		return
	}
	if asJSON {
		out, err := env.JSON()
		if err != nil {
			glog.Warningf("%s: %v", topic, err)
			return
		}
		glog.Infof("%s: %s", topic, out)
		return
	}
	desc := env.Command
	if desc == "" {
		desc = env.Message.String()
	}
	glog.Infof("%s: #%d %s %s", topic, env.Seq, env.Time.Format("15:04:05.000000"), desc)
}

func main() {
	conf, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		glog.Exitf("config: %v", err)
	}
	if conf.Broker == "" {
		glog.Exit("-broker is required")
	}
	q, err := mqtt.NewQueueFromURL(conf.Broker)
	if err != nil {
		glog.Exit(err)
	}
	ref := l1.DeviceRef{Type: l1.DeviceType, ID: device}
	for _, suffix := range []string{l1.TopicMsg, l1.TopicMeta, l1.TopicStats} {
		q.Sub(ref.Topic(suffix), handle)
	}
	if err := mqtt.WaitTimeout(q.Client.Connect(), 10*time.Second); err != nil {
		glog.Exitf("connect %s: %v", conf.Broker, err)
	}
	<-(chan struct{})(nil)
}
