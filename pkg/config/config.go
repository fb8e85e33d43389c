// Package config resolves settings of vcplink binaries.
//
// Sources, from lowest to highest precedence: built-in defaults, the TOML
// file named by -config (or VCPLINK_CONFIG), variables from a .env file,
// VCPLINK_* environment variables, command line flags.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/robotalks/vcplink/pkg/l0/frame"
	"github.com/robotalks/vcplink/pkg/l0/link"
	"github.com/robotalks/vcplink/pkg/l0/queue"
	"github.com/robotalks/vcplink/pkg/l0/transport"
	"github.com/robotalks/vcplink/pkg/l1/mqtt"
)

// EnvPrefix prefixes environment variables.
const EnvPrefix = "VCPLINK_"

// Poll modes selecting the link.Yielder.
const (
	PollNotify = "notify"
	PollSleep  = "sleep"
	PollSpin   = "spin"
)

// Duration is time.Duration in TOML, written like "5ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config defines settings of the link and the relay.
type Config struct {
	File    string `toml:"-"`
	EnvFile string `toml:"-"`

	Endpoint      string   `toml:"endpoint"`
	MaxLength     int      `toml:"max_length"`
	QueueCapacity int      `toml:"queue_capacity"`
	BufferSize    int      `toml:"buffer_size"`
	PollMode      string   `toml:"poll_mode"`
	Idle          Duration `toml:"idle"`

	Broker        string   `toml:"broker"`
	DeviceID      string   `toml:"device_id"`
	Description   string   `toml:"description"`
	StatsInterval Duration `toml:"stats_interval"`

	MetricsAddr string `toml:"metrics_addr"`

	TraceLevel  int     `toml:"trace_level"`
	TraceBuffer int     `toml:"trace_buffer"`
	TraceRate   float64 `toml:"trace_rate"`
	TraceBurst  int     `toml:"trace_burst"`
}

var defaultConfig = Config{
	EnvFile:       ".env",
	Endpoint:      "serial:///dev/ttyACM0",
	MaxLength:     frame.DefaultMaxLength,
	QueueCapacity: queue.DefaultCapacity,
	BufferSize:    transport.DefaultBufferSize,
	PollMode:      PollNotify,
	Idle:          Duration(link.DefaultIdle),
	StatsInterval: Duration(10 * time.Second),
	MetricsAddr:   ":2112",
	TraceBuffer:   256,
	TraceRate:     100,
	TraceBurst:    20,
}

// Default gets the built-in defaults.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with built-in defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Parse resolves the config from all sources and parses args with fs.
// Flags already registered on fs (e.g. glog's) are parsed as well.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	c := NewConfig()
	c.File = os.Getenv(EnvPrefix + "CONFIG")
	if val, ok := os.LookupEnv(EnvPrefix + "ENV_FILE"); ok {
		c.EnvFile = val
	}
	if path, ok := scanFlag(args, "config"); ok {
		c.File = path
	}
	if path, ok := scanFlag(args, "env-file"); ok {
		c.EnvFile = path
	}
	if c.File != "" {
		if err := c.LoadFile(c.File); err != nil {
			return nil, err
		}
	}
	if err := c.LoadEnvFile(c.EnvFile); err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	c.SetupFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return c, c.Validate()
}

// LoadFile overlays settings from a TOML file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadEnvFile loads variables from a .env file into the process
// environment without overriding existing ones. A missing file is ignored.
func (c *Config) LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays VCPLINK_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ENDPOINT":     &c.Endpoint,
		"POLL_MODE":    &c.PollMode,
		"BROKER":       &c.Broker,
		"DEVICE_ID":    &c.DeviceID,
		"DESCRIPTION":  &c.Description,
		"METRICS_ADDR": &c.MetricsAddr,
	}
	for name, ptr := range strs {
		if val, ok := lookup(EnvPrefix + name); ok {
			*ptr = val
		}
	}
	ints := map[string]*int{
		"MAX_LENGTH":     &c.MaxLength,
		"QUEUE_CAPACITY": &c.QueueCapacity,
		"BUFFER_SIZE":    &c.BufferSize,
		"TRACE_LEVEL":    &c.TraceLevel,
		"TRACE_BUFFER":   &c.TraceBuffer,
		"TRACE_BURST":    &c.TraceBurst,
	}
	for name, ptr := range ints {
		if val, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*ptr = n
		}
	}
	durations := map[string]*Duration{
		"IDLE":           &c.Idle,
		"STATS_INTERVAL": &c.StatsInterval,
	}
	for name, ptr := range durations {
		if val, ok := lookup(EnvPrefix + name); ok {
			if err := ptr.UnmarshalText([]byte(val)); err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
		}
	}
	if val, ok := lookup(EnvPrefix + "TRACE_RATE"); ok {
		rate, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("%sTRACE_RATE: %w", EnvPrefix, err)
		}
		c.TraceRate = rate
	}
	return nil
}

// SetupFlags registers flags with current values as defaults.
func (c *Config) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.File, "config", c.File, "TOML config file.")
	fs.StringVar(&c.EnvFile, "env-file", c.EnvFile, "File of environment variables to load if present.")
	fs.StringVar(&c.Endpoint, "endpoint", c.Endpoint, "Device endpoint: serial:///dev/ttyACM0?baud=115200, tcp://host:port, ws://host/path, file:///path, stdin:")
	fs.IntVar(&c.MaxLength, "max-length", c.MaxLength, "Maximum frame length.")
	fs.IntVar(&c.QueueCapacity, "queue", c.QueueCapacity, "Message queue capacity.")
	fs.IntVar(&c.BufferSize, "rx-buffer", c.BufferSize, "Receive buffer size in bytes.")
	fs.StringVar(&c.PollMode, "poll", c.PollMode, "Idle behavior when no data: notify, sleep, spin.")
	fs.DurationVar((*time.Duration)(&c.Idle), "idle", time.Duration(c.Idle), "Idle interval in sleep mode, max wait in notify mode.")
	fs.StringVar(&c.Broker, "broker", c.Broker, "MQTT broker URL to relay messages to, e.g. mqtt://localhost:1883/vcplink/")
	fs.StringVar(&c.DeviceID, "device-id", c.DeviceID, "Device ID, derived from machine ID if empty.")
	fs.StringVar(&c.Description, "description", c.Description, "Device description.")
	fs.DurationVar((*time.Duration)(&c.StatsInterval), "stats-interval", time.Duration(c.StatsInterval), "Interval publishing link statistics, 0 to disable.")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Listen address of Prometheus metrics, empty to disable.")
	fs.IntVar(&c.TraceLevel, "trace-level", c.TraceLevel, "glog verbosity of link traces, 0 logs them as warnings.")
	fs.IntVar(&c.TraceBuffer, "trace-buffer", c.TraceBuffer, "Pending trace lines before dropping.")
	fs.Float64Var(&c.TraceRate, "trace-rate", c.TraceRate, "Trace lines per second, 0 for unlimited.")
	fs.IntVar(&c.TraceBurst, "trace-burst", c.TraceBurst, "Trace burst size.")
}

// Validate checks values which would fail at construction.
func (c *Config) Validate() error {
	if c.MaxLength < 1 || c.MaxLength > frame.MaxLength {
		return fmt.Errorf("max length %d: %w", c.MaxLength, frame.ErrMaxLength)
	}
	if c.QueueCapacity < 1 || c.QueueCapacity > queue.MaxCapacity {
		return fmt.Errorf("queue %d: %w", c.QueueCapacity, queue.ErrCapacity)
	}
	if c.BufferSize < 1 || c.BufferSize > queue.MaxCapacity {
		return fmt.Errorf("rx buffer %d: %w", c.BufferSize, queue.ErrCapacity)
	}
	switch c.PollMode {
	case PollNotify, PollSleep, PollSpin:
	default:
		return fmt.Errorf("unknown poll mode %q", c.PollMode)
	}
	if _, err := transport.ParseEndpoint(c.Endpoint); err != nil {
		return err
	}
	if c.Broker != "" {
		if _, err := mqtt.ParseURL(c.Broker); err != nil {
			return fmt.Errorf("broker: %w", err)
		}
	}
	if c.TraceRate < 0 || c.TraceBuffer < 1 {
		return errors.New("trace rate must not be negative and trace buffer must be positive")
	}
	if c.TraceRate > 0 && c.TraceBurst < 1 {
		return fmt.Errorf("trace burst %d would drop every trace at rate %g", c.TraceBurst, c.TraceRate)
	}
	return nil
}

// scanFlag finds the value of a string flag before flags are parsed.
func scanFlag(args []string, name string) (string, bool) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		arg = strings.TrimPrefix(strings.TrimPrefix(arg, "-"), "-")
		if arg == name && i+1 < len(args) {
			return args[i+1], true
		}
		if strings.HasPrefix(arg, name+"=") {
			return arg[len(name)+1:], true
		}
	}
	return "", false
}
