package frame

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a parse failure.
type ErrorKind int

const (
	// ErrKindBadSync means a byte other than Sync arrived outside a frame.
	ErrKindBadSync ErrorKind = iota + 1
	// ErrKindBadLength means the declared length is zero or above the limit.
	ErrKindBadLength
	// ErrKindChecksum means the trailing checksum doesn't match.
	ErrKindChecksum
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case ErrKindBadSync:
		return "bad-sync"
	case ErrKindBadLength:
		return "bad-length"
	case ErrKindChecksum:
		return "checksum"
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// MaxErrorKind is the largest defined ErrorKind.
const MaxErrorKind = ErrKindChecksum

// ErrorKinds lists all kinds, in order.
var ErrorKinds = []ErrorKind{ErrKindBadSync, ErrKindBadLength, ErrKindChecksum}

// ParseError reports the byte which failed a frame.
type ParseError struct {
	Kind ErrorKind
	// Got is the offending byte.
	Got byte
	// Want is the expected byte, only meaningful for ErrKindChecksum.
	Want byte
}

// Error implements error.
func (e *ParseError) Error() string {
	switch e.Kind {
	case ErrKindBadSync:
		return fmt.Sprintf("frame: bad sync byte 0x%02x", e.Got)
	case ErrKindBadLength:
		return fmt.Sprintf("frame: bad length %d", e.Got)
	case ErrKindChecksum:
		return fmt.Sprintf("frame: checksum mismatch got 0x%02x want 0x%02x", e.Got, e.Want)
	}
	return fmt.Sprintf("frame: %s", e.Kind)
}

// Is matches any ParseError of the same kind.
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	return ok && t.Kind == e.Kind
}

var (
	// ErrBadSync matches parse errors of ErrKindBadSync.
	ErrBadSync = &ParseError{Kind: ErrKindBadSync}
	// ErrBadLength matches parse errors of ErrKindBadLength.
	ErrBadLength = &ParseError{Kind: ErrKindBadLength}
	// ErrBadChecksum matches parse errors of ErrKindChecksum.
	ErrBadChecksum = &ParseError{Kind: ErrKindChecksum}

	// ErrMaxLength indicates a parser limit which can't be represented on the wire.
	ErrMaxLength = errors.New("frame: max length out of range")
)
