package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/vcplink/pkg/config"
	fx "github.com/robotalks/vcplink/pkg/framework"
	"github.com/robotalks/vcplink/pkg/l0/diag"
	"github.com/robotalks/vcplink/pkg/l0/frame"
	"github.com/robotalks/vcplink/pkg/l0/link"
	"github.com/robotalks/vcplink/pkg/l0/queue"
	"github.com/robotalks/vcplink/pkg/l0/transport"
	"github.com/robotalks/vcplink/pkg/l1"
	"github.com/robotalks/vcplink/pkg/l1/mqtt"
	"github.com/robotalks/vcplink/pkg/l1/relay"
)

type report struct {
	link.Stats
	QueueHighWater int    `json:"queue_high_water"`
	RxOverflow     uint64 `json:"rx_overflow"`
	TracesDropped  uint64 `json:"traces_dropped"`
}

type daemon struct {
	conf   *config.Config
	stream *transport.Stream
	queue  *queue.Ring[frame.Message]
	sink   *diag.Async
	loop   *link.Loop
}

func (d *daemon) report() interface{} {
	return report{
		Stats:          d.loop.Stats(),
		QueueHighWater: d.queue.HighWater(),
		RxOverflow:     d.stream.Overflow(),
		TracesDropped:  d.sink.Dropped(),
	}
}

func (d *daemon) registerMetrics(reg prometheus.Registerer) {
	d.loop.Metrics = link.NewMetrics(reg, link.WithQueueDepth(d.queue.Len))
	factory := promauto.With(reg)
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "vcplink",
		Subsystem: "transport",
		Name:      "overflow_bytes_total",
		Help:      "Bytes lost because the receive buffer was full",
	}, func() float64 { return float64(d.stream.Overflow()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "vcplink",
		Subsystem: "diag",
		Name:      "dropped_total",
		Help:      "Trace lines dropped by the rate limiter or a full buffer",
	}, func() float64 { return float64(d.sink.Dropped()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "vcplink",
		Subsystem: "transport",
		Name:      "connected",
		Help:      "1 when the device endpoint is open",
	}, func() float64 {
		if d.stream.Connected() {
			return 1
		}
		return 0
	})
}

func metricsServer(addr string) fx.Runnable {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	return fx.RunFunc(func(ctx context.Context) error {
		glog.Infof("metrics on %s", addr)
		return fx.RunWithContextCancel(ctx, func() {
			srv.Shutdown(context.Background())
		}, func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	})
}

func (d *daemon) newPublisher() (relay.Publisher, l1.DeviceRef, func(), error) {
	device, err := d.conf.Device()
	if err != nil {
		return nil, device, nil, err
	}
	if d.conf.Broker == "" {
		return relay.LogPublisher{}, device, func() {}, nil
	}
	opts, err := mqtt.ParseURL(d.conf.Broker)
	if err != nil {
		return nil, device, nil, err
	}
	if opts.Client.ClientID == "" {
		opts.Client.SetClientID("vcpd-" + device.ID)
	}
	opts.Client.SetConnectRetry(true)
	offline, _ := json.Marshal(d.conf.Meta(false))
	online, _ := json.Marshal(d.conf.Meta(true))
	metaTopic := device.Topic(l1.TopicMeta)
	opts.SetWill(metaTopic, offline)

	q := mqtt.NewQueue(opts)
	q.OnConnect = func(q *mqtt.Queue) {
		q.PubWith(metaTopic, online, q.QoS, true)
	}
	q.Client.Connect()
	return q, device, func() {
		mqtt.WaitTimeout(q.PubWith(metaTopic, offline, q.QoS, true), time.Second)
		q.Close()
	}, nil
}

func main() {
	conf, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		glog.Exitf("config: %v", err)
	}
	defer glog.Flush()

	d := &daemon{conf: conf, sink: conf.NewSink()}
	if d.stream, err = conf.OpenTransport(); err != nil {
		glog.Exitf("transport: %v", err)
	}
	if d.queue, err = conf.NewQueue(); err != nil {
		glog.Exitf("queue: %v", err)
	}
	if d.loop, err = conf.NewLoop(d.stream, d.queue.Producer(), d.sink); err != nil {
		glog.Exitf("link: %v", err)
	}
	d.registerMetrics(prometheus.DefaultRegisterer)

	pub, device, closePub, err := d.newPublisher()
	if err != nil {
		glog.Exitf("publisher: %v", err)
	}
	defer closePub()
	consumer := relay.New(d.queue.Consumer(), pub, device)
	consumer.Stats, consumer.StatsInterval = d.report, time.Duration(conf.StatsInterval)

	glog.Infof("%s reading %s", device.Name(), d.stream.Name)
	runner := fx.NewRunner().HandleSignals().Go(
		fx.NamedRun("diag", d.sink),
		fx.NamedRun("transport", d.stream),
		fx.NamedRun("link", d.loop),
		fx.NamedRun("relay", consumer),
	)
	if conf.MetricsAddr != "" {
		runner.Go(fx.NamedRun("metrics", metricsServer(conf.MetricsAddr)))
	}
	if err := runner.Wait(); err != nil {
		glog.Errorf("%v", err)
		glog.Flush()
		os.Exit(1)
	}
	glog.Infof("stopped: %+v", d.report())
}
