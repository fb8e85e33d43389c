package frame

import (
	"bytes"
	"fmt"
	"io"
)

const (
	// Sync marks the start of a frame.
	Sync byte = 0x7e

	// MaxLength is the largest length the one-byte length field can carry.
	MaxLength = 0xff
	// DefaultMaxLength fits the largest device command (a full bulk
	// capacitance block) with some room to spare.
	DefaultMaxLength = 160

	// Overhead is the number of bytes a frame adds around its payload.
	Overhead = 3
)

// Message is one decoded command.
type Message struct {
	Opcode  byte
	Payload []byte
}

// Encode builds a Message from an opcode and data bytes.
func Encode(opcode byte, data ...byte) Message {
	return Message{Opcode: opcode, Payload: append([]byte(nil), data...)}
}

// Len returns the value carried in the length field.
func (m Message) Len() int {
	return len(m.Payload) + 1
}

// Equal reports whether two messages carry the same command.
func (m Message) Equal(o Message) bool {
	return m.Opcode == o.Opcode && bytes.Equal(m.Payload, o.Payload)
}

// String implements fmt.Stringer.
func (m Message) String() string {
	return fmt.Sprintf("op=0x%02x len=%d data=% x", m.Opcode, len(m.Payload), m.Payload)
}

// Check verifies the message fits in the length field. Peers parsing with
// the default limit accept only up to DefaultMaxLength, see CheckLength.
func (m Message) Check() error {
	return m.CheckLength(MaxLength)
}

// CheckLength verifies the message is accepted by a parser limited to
// maxLen.
func (m Message) CheckLength(maxLen int) error {
	if maxLen > MaxLength {
		maxLen = MaxLength
	}
	if l := m.Len(); l > maxLen {
		return fmt.Errorf("frame: %d payload bytes exceed length %d: %w", l-1, maxLen, ErrBadLength)
	}
	return nil
}

// Bytes returns encoded bytes for sending, or nil if the message fails
// Check.
func (m Message) Bytes() []byte {
	if m.Check() != nil {
		return nil
	}
	l := m.Len()
	b := make([]byte, 0, l+Overhead)
	b = append(b, Sync, byte(l), m.Opcode)
	b = append(b, m.Payload...)
	var cs Checksum
	cs.Write(b[1:])
	return append(b, cs.Sum())
}

// WriteTo writes encoded bytes.
func (m Message) WriteTo(w io.Writer) (int64, error) {
	if err := m.Check(); err != nil {
		return 0, err
	}
	n, err := w.Write(m.Bytes())
	return int64(n), err
}
