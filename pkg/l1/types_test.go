package l1

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeviceRef(t *testing.T) {
	ref := DeviceRef{Type: DeviceType, ID: "abc"}
	require.Equal(t, "vcp/abc", ref.Name())
	require.Equal(t, "vcp/abc/msg", ref.Topic(TopicMsg))

	parsed, ok := ParseDeviceRef("vcp/abc")
	require.True(t, ok)
	require.Equal(t, ref, parsed)

	for _, name := range []string{"vcp", "vcp/", "/abc", "vcp/abc/msg"} {
		_, ok := ParseDeviceRef(name)
		require.Falsef(t, ok, name)
	}
}
