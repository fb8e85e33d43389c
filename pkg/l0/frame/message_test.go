package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageBytes(t *testing.T) {
	testCases := []struct {
		name   string
		msg    Message
		expect []byte
	}{
		{"opcode only", Encode(5), []byte{Sync, 1, 5, 7}},
		{"one data byte", Encode(1, 2), exampleFrame},
		{"sync in data", Encode(0, Sync), []byte{Sync, 2, 0, Sync, 0x84}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, tc.msg.Bytes())
			var buf bytes.Buffer
			n, err := tc.msg.WriteTo(&buf)
			require.NoError(t, err)
			require.Equal(t, tc.expect, buf.Bytes())
			require.EqualValues(t, len(tc.expect), n)
		})
	}
}

func TestMessageTooLarge(t *testing.T) {
	msg := Message{Opcode: 1, Payload: make([]byte, MaxLength)}
	require.ErrorIs(t, msg.Check(), ErrBadLength)
	require.Nil(t, msg.Bytes())
	var buf bytes.Buffer
	_, err := msg.WriteTo(&buf)
	require.ErrorIs(t, err, ErrBadLength)
	require.Zero(t, buf.Len())

	require.NoError(t, Message{Opcode: 1, Payload: make([]byte, MaxLength-1)}.Check())

	// 300 bytes must not wrap around the one-byte length field.
	huge := Encode(1, make([]byte, 300)...)
	require.ErrorIs(t, huge.Check(), ErrBadLength)
	require.Nil(t, huge.Bytes())
}

func TestMessageCheckLength(t *testing.T) {
	msg := Message{Opcode: 1, Payload: make([]byte, DefaultMaxLength-1)}
	require.NoError(t, msg.CheckLength(DefaultMaxLength))
	msg.Payload = append(msg.Payload, 0)
	require.ErrorIs(t, msg.CheckLength(DefaultMaxLength), ErrBadLength)
	require.NoError(t, msg.Check())
	require.ErrorIs(t, Message{Opcode: 1, Payload: make([]byte, MaxLength)}.CheckLength(1000), ErrBadLength)

	parser, err := NewParser()
	require.NoError(t, err)
	var failed bool
	parser.FeedBytes(msg.Bytes(), func(out Outcome) { failed = out.Status == Failed })
	require.True(t, failed)
}

func TestChecksum(t *testing.T) {
	var cs Checksum
	cs.Write([]byte{0x02, 0x01, 0x02})
	require.Equal(t, byte(0x0a), cs.Sum())
	cs.Reset()
	require.Zero(t, cs.Sum())

	var swapped Checksum
	swapped.Write([]byte{0x02, 0x02, 0x01})
	require.NotEqual(t, byte(0x0a), swapped.Sum())
}

func TestMessageEqual(t *testing.T) {
	require.True(t, Encode(1).Equal(Message{Opcode: 1, Payload: []byte{}}))
	require.False(t, Encode(1, 2).Equal(Encode(1, 3)))
	require.Equal(t, "op=0x01 len=1 data=02", Encode(1, 2).String())
}
