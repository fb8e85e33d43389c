package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"

	"go.bug.st/serial"
	"golang.org/x/net/websocket"
)

// Endpoint schemes.
const (
	SchemeSerial = "serial"
	SchemeTCP    = "tcp"
	SchemeWS     = "ws"
	SchemeWSS    = "wss"
	SchemeFile   = "file"
	SchemeStdin  = "stdin"
)

// DefaultBaudRate is used when a serial endpoint doesn't specify one.
// USB virtual serial ports ignore it.
const DefaultBaudRate = 115200

// Endpoint describes where the device bytes come from.
//
//	serial:///dev/ttyACM0?baud=115200
//	tcp://host:port
//	ws://host/path
//	file:///path/to/capture.bin
//	stdin:
type Endpoint struct {
	Scheme  string
	Address string
	// BaudRate only applies to serial endpoints.
	BaudRate int
	// Origin only applies to websocket endpoints.
	Origin string
}

// ParseEndpoint parses an endpoint URL.
func ParseEndpoint(rawURL string) (ep Endpoint, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ep, fmt.Errorf("transport: invalid endpoint %q: %w", rawURL, err)
	}
	ep.Scheme = u.Scheme
	switch u.Scheme {
	case SchemeSerial:
		ep.Address = u.Path
		if ep.Address == "" {
			ep.Address = u.Opaque
		}
		ep.BaudRate = DefaultBaudRate
		if baud := u.Query().Get("baud"); baud != "" {
			if ep.BaudRate, err = strconv.Atoi(baud); err != nil || ep.BaudRate <= 0 {
				return ep, fmt.Errorf("transport: invalid baud rate %q", baud)
			}
		}
	case SchemeTCP:
		ep.Address = u.Host
	case SchemeWS, SchemeWSS:
		ep.Address = rawURL
		ep.Origin = u.Query().Get("origin")
		if ep.Origin == "" {
			ep.Origin = "http://localhost/"
		}
	case SchemeFile:
		ep.Address = u.Path
	case SchemeStdin:
		return ep, nil
	default:
		return ep, fmt.Errorf("transport: unsupported scheme %q", u.Scheme)
	}
	if ep.Address == "" {
		return ep, fmt.Errorf("transport: missing address in %q", rawURL)
	}
	return ep, nil
}

// String implements fmt.Stringer.
func (ep Endpoint) String() string {
	switch ep.Scheme {
	case SchemeStdin:
		return SchemeStdin
	case SchemeWS, SchemeWSS:
		return ep.Address
	case SchemeSerial:
		return fmt.Sprintf("%s://%s?baud=%d", ep.Scheme, ep.Address, ep.BaudRate)
	}
	return ep.Scheme + "://" + ep.Address
}

// Finite indicates the endpoint can't be redialed once it ends.
func (ep Endpoint) Finite() bool {
	return ep.Scheme == SchemeFile || ep.Scheme == SchemeStdin
}

// Dialer returns the Dialer opening the endpoint.
func (ep Endpoint) Dialer() Dialer {
	switch ep.Scheme {
	case SchemeSerial:
		return func(context.Context) (io.ReadWriteCloser, error) {
			return serial.Open(ep.Address, &serial.Mode{BaudRate: ep.BaudRate})
		}
	case SchemeTCP:
		return func(ctx context.Context) (io.ReadWriteCloser, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", ep.Address)
		}
	case SchemeWS, SchemeWSS:
		return func(context.Context) (io.ReadWriteCloser, error) {
			config, err := websocket.NewConfig(ep.Address, ep.Origin)
			if err != nil {
				return nil, err
			}
			conn, err := websocket.DialConfig(config)
			if err != nil {
				return nil, err
			}
			conn.PayloadType = websocket.BinaryFrame
			return conn, nil
		}
	case SchemeFile:
		return func(context.Context) (io.ReadWriteCloser, error) {
			f, err := os.Open(ep.Address)
			if err != nil {
				return nil, err
			}
			return readOnly{f}, nil
		}
	case SchemeStdin:
		return func(context.Context) (io.ReadWriteCloser, error) {
			return stdio{Reader: os.Stdin, Writer: os.Stdout}, nil
		}
	}
	return func(context.Context) (io.ReadWriteCloser, error) {
		return nil, fmt.Errorf("transport: unsupported scheme %q", ep.Scheme)
	}
}

// Open parses the endpoint URL and creates a Stream for it.
// Finite endpoints (files, stdin) are read once.
func Open(rawURL string, opts ...Option) (*Stream, error) {
	ep, err := ParseEndpoint(rawURL)
	if err != nil {
		return nil, err
	}
	if ep.Finite() {
		opts = append([]Option{WithOnce()}, opts...)
	}
	return NewStream(ep.String(), ep.Dialer(), opts...)
}

// SerialPorts lists serial ports present on the host.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

type readOnly struct {
	io.ReadCloser
}

func (readOnly) Write([]byte) (int, error) {
	return 0, os.ErrPermission
}

type stdio struct {
	io.Reader
	io.Writer
}

// Close only closes stdin, to release a pending read.
func (stdio) Close() error {
	return os.Stdin.Close()
}
