package link

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/robotalks/vcplink/pkg/l0/frame"
)

// Metrics exports Loop counters to Prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	bytes       prometheus.Counter
	frames      prometheus.Counter
	dropped     prometheus.Counter
	parseErrors *prometheus.CounterVec
}

// MetricsConfig configures Metrics.
type MetricsConfig struct {
	Namespace   string
	ConstLabels prometheus.Labels
	// Depth, when set, is exported as the queue depth gauge.
	Depth func() int
}

// MetricsOption configures Metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithQueueDepth exports the occupancy of the message queue.
func WithQueueDepth(depth func() int) MetricsOption {
	return func(c *MetricsConfig) {
		c.Depth = depth
	}
}

// NewMetrics registers Loop metrics with reg.
func NewMetrics(reg prometheus.Registerer, opts ...MetricsOption) *Metrics {
	config := MetricsConfig{Namespace: "vcplink"}
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(reg)
	m := &Metrics{
		bytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "link",
			Name:        "bytes_total",
			Help:        "Bytes received from the transport",
			ConstLabels: config.ConstLabels,
		}),
		frames: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "link",
			Name:        "frames_total",
			Help:        "Frames decoded successfully",
			ConstLabels: config.ConstLabels,
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "link",
			Name:        "dropped_total",
			Help:        "Decoded messages dropped because the queue was full",
			ConstLabels: config.ConstLabels,
		}),
		parseErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "link",
			Name:        "parse_errors_total",
			Help:        "Bytes rejected by the frame parser",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),
	}
	if depth := config.Depth; depth != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   "queue",
			Name:        "depth",
			Help:        "Messages waiting for the consumer",
			ConstLabels: config.ConstLabels,
		}, func() float64 { return float64(depth()) })
	}
	return m
}

func (m *Metrics) addBytes(n int) {
	if m != nil {
		m.bytes.Add(float64(n))
	}
}

func (m *Metrics) addFrame() {
	if m != nil {
		m.frames.Inc()
	}
}

func (m *Metrics) addDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) addParseError(kind frame.ErrorKind) {
	if m != nil {
		m.parseErrors.WithLabelValues(kind.String()).Inc()
	}
}
