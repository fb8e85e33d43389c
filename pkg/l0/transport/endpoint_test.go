package transport_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/vcplink/pkg/l0/diag"
	"github.com/robotalks/vcplink/pkg/l0/frame"
	"github.com/robotalks/vcplink/pkg/l0/link"
	"github.com/robotalks/vcplink/pkg/l0/queue"
	"github.com/robotalks/vcplink/pkg/l0/transport"
)

func TestParseEndpoint(t *testing.T) {
	testCases := []struct {
		url    string
		expect transport.Endpoint
		str    string
	}{
		{"serial:///dev/ttyACM0?baud=9600",
			transport.Endpoint{Scheme: "serial", Address: "/dev/ttyACM0", BaudRate: 9600},
			"serial:///dev/ttyACM0?baud=9600"},
		{"serial:///dev/ttyACM1",
			transport.Endpoint{Scheme: "serial", Address: "/dev/ttyACM1", BaudRate: transport.DefaultBaudRate},
			"serial:///dev/ttyACM1?baud=115200"},
		{"serial:COM3",
			transport.Endpoint{Scheme: "serial", Address: "COM3", BaudRate: transport.DefaultBaudRate},
			"serial://COM3?baud=115200"},
		{"tcp://localhost:7000",
			transport.Endpoint{Scheme: "tcp", Address: "localhost:7000"},
			"tcp://localhost:7000"},
		{"ws://device.local/link",
			transport.Endpoint{Scheme: "ws", Address: "ws://device.local/link", Origin: "http://localhost/"},
			"ws://device.local/link"},
		{"file:///tmp/capture.bin",
			transport.Endpoint{Scheme: "file", Address: "/tmp/capture.bin"},
			"file:///tmp/capture.bin"},
		{"stdin:", transport.Endpoint{Scheme: "stdin"}, "stdin"},
	}
	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			ep, err := transport.ParseEndpoint(tc.url)
			require.NoError(t, err)
			require.Equal(t, tc.expect, ep)
			require.Equal(t, tc.str, ep.String())
		})
	}
}

func TestParseEndpointErrors(t *testing.T) {
	for _, url := range []string{
		"serial:///dev/ttyACM0?baud=fast",
		"serial:///dev/ttyACM0?baud=-1",
		"udp://localhost:7000",
		"tcp://",
		"file://",
		"://bad",
	} {
		_, err := transport.ParseEndpoint(url)
		require.Errorf(t, err, url)
	}
}

func TestFileReplay(t *testing.T) {
	var capture []byte
	msgs := []frame.Message{frame.Encode(1, 2), frame.Encode(5), frame.Encode(0, frame.Sync)}
	for _, msg := range msgs {
		capture = append(capture, msg.Bytes()...)
	}
	capture = append([]byte{0xff, 0x00}, capture...)
	fn := filepath.Join(t.TempDir(), "capture.bin")
	require.NoError(t, os.WriteFile(fn, capture, 0644))

	s, err := transport.Open("file://" + fn)
	require.NoError(t, err)
	require.True(t, s.Once)
	require.NoError(t, s.Run(context.Background()))

	ring, err := queue.New[frame.Message](queue.DefaultCapacity)
	require.NoError(t, err)
	loop := link.NewLoop(s, ring.Producer())
	loop.Sink = diag.Discard
	for loop.Step() > 0 {
	}
	for _, msg := range msgs {
		got, ok := ring.Dequeue()
		require.True(t, ok)
		require.True(t, msg.Equal(got), "want %s got %s", msg, got)
	}
	require.True(t, ring.Empty())
	require.EqualValues(t, 2, loop.Stats().Errors[frame.ErrKindBadSync])
}

func TestFileReplayLargerThanBuffer(t *testing.T) {
	const total = 20000
	var capture []byte
	for i := 0; i < total; i++ {
		capture = append(capture, frame.Encode(byte(i%7), byte(i), byte(i>>8)).Bytes()...)
	}
	require.Greater(t, len(capture), 10*transport.DefaultBufferSize)
	fn := filepath.Join(t.TempDir(), "capture.bin")
	require.NoError(t, os.WriteFile(fn, capture, 0644))

	s, err := transport.Open("file://" + fn)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	ring, err := queue.New[frame.Message](total)
	require.NoError(t, err)
	loop := link.NewLoop(s, ring.Producer())
	loop.Sink = diag.Discard

	var finished bool
	for !finished {
		if loop.Step() > 0 {
			continue
		}
		select {
		case err := <-done:
			require.NoError(t, err)
			finished = true
		case <-s.Ready():
		case <-ctx.Done():
			t.Fatal("replay didn't finish")
		}
	}
	for loop.Step() > 0 {
	}

	stats := loop.Stats()
	require.EqualValues(t, len(capture), stats.Bytes)
	require.EqualValues(t, total, stats.Frames)
	require.Zero(t, stats.ParseErrors())
	require.Zero(t, stats.Dropped)
	require.Zero(t, s.Overflow())
	require.Equal(t, total, ring.Len())
	for i := 0; i < total; i++ {
		msg, ok := ring.Dequeue()
		require.True(t, ok)
		require.True(t, frame.Encode(byte(i%7), byte(i), byte(i>>8)).Equal(msg), "frame %d", i)
	}
}
