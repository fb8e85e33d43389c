package cmds

import (
	"errors"
	"fmt"
)

// SizeError reports a payload of the wrong size.
type SizeError struct {
	Opcode byte
	Got    int
	Want   int
}

// Error implements error.
func (e *SizeError) Error() string {
	return fmt.Sprintf("cmds: opcode %d payload size %d, want %d", e.Opcode, e.Got, e.Want)
}

// Is matches ErrSize.
func (e *SizeError) Is(target error) bool {
	return target == ErrSize
}

var (
	// ErrSize matches any SizeError.
	ErrSize = errors.New("cmds: bad payload size")
	// ErrTooManyValues indicates a bulk command exceeds MaxBulkValues.
	ErrTooManyValues = errors.New("cmds: too many values")
	// ErrElectrode indicates an electrode index out of range.
	ErrElectrode = errors.New("cmds: electrode out of range")
)
