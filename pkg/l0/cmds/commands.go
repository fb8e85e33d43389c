package cmds

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/robotalks/vcplink/pkg/l0/frame"
)

// Opcodes.
const (
	OpElectrodeEnable byte = 0
	OpBulkCapacitance byte = 2
	OpParameter       byte = 6
)

// Command is a decoded frame.
type Command interface {
	Opcode() byte
	// Message encodes the command into a frame message.
	Message() (frame.Message, error)
}

type decoder interface {
	Command
	decode(payload []byte) error
}

// Registry maps opcodes to constructors of known commands.
var Registry = map[byte]func() Command{
	OpElectrodeEnable: func() Command { return &ElectrodeEnable{} },
	OpBulkCapacitance: func() Command { return &BulkCapacitance{} },
	OpParameter:       func() Command { return &Parameter{} },
}

// Decode converts a message into a typed command. Unknown opcodes result in
// *Raw and no error.
func Decode(msg frame.Message) (Command, error) {
	create, ok := Registry[msg.Opcode]
	if !ok {
		return &Raw{Msg: msg}, nil
	}
	cmd, ok := create().(decoder)
	if !ok {
		return &Raw{Msg: msg}, nil
	}
	if err := cmd.decode(msg.Payload); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Raw is a message with an opcode this package doesn't know.
type Raw struct {
	Msg frame.Message
}

// Opcode implements Command.
func (c *Raw) Opcode() byte { return c.Msg.Opcode }

// Message implements Command.
func (c *Raw) Message() (frame.Message, error) { return c.Msg, c.Msg.Check() }

func (c *Raw) String() string { return "Raw(" + c.Msg.String() + ")" }

// Electrodes is the number of electrodes addressed by ElectrodeEnable.
const Electrodes = 128

// ElectrodeEnable sets the drive state of all electrodes at once.
type ElectrodeEnable struct {
	Values [Electrodes / 8]byte
}

// Opcode implements Command.
func (c *ElectrodeEnable) Opcode() byte { return OpElectrodeEnable }

// Message implements Command.
func (c *ElectrodeEnable) Message() (frame.Message, error) {
	return frame.Encode(OpElectrodeEnable, c.Values[:]...), nil
}

func (c *ElectrodeEnable) decode(payload []byte) error {
	if len(payload) != len(c.Values) {
		return &SizeError{Opcode: OpElectrodeEnable, Got: len(payload), Want: len(c.Values)}
	}
	copy(c.Values[:], payload)
	return nil
}

// Enabled tells whether electrode n is on.
func (c *ElectrodeEnable) Enabled(n int) bool {
	if n < 0 || n >= Electrodes {
		return false
	}
	return c.Values[n/8]&(1<<(n%8)) != 0
}

// Set turns electrode n on or off.
func (c *ElectrodeEnable) Set(n int, on bool) error {
	if n < 0 || n >= Electrodes {
		return fmt.Errorf("%w: %d", ErrElectrode, n)
	}
	if on {
		c.Values[n/8] |= 1 << (n % 8)
	} else {
		c.Values[n/8] &^= 1 << (n % 8)
	}
	return nil
}

// Active lists electrodes which are on.
func (c *ElectrodeEnable) Active() (pins []int) {
	for n := 0; n < Electrodes; n++ {
		if c.Enabled(n) {
			pins = append(pins, n)
		}
	}
	return
}

func (c *ElectrodeEnable) String() string {
	pins := c.Active()
	strs := make([]string, len(pins))
	for i, pin := range pins {
		strs[i] = fmt.Sprint(pin)
	}
	return "ElectrodeEnable[" + strings.Join(strs, ",") + "]"
}

// MaxBulkValues is the most values a BulkCapacitance carries.
const MaxBulkValues = 64

// BulkCapacitance carries a run of capacitance readings starting at Start.
type BulkCapacitance struct {
	Start  byte
	Values []uint16
}

// Opcode implements Command.
func (c *BulkCapacitance) Opcode() byte { return OpBulkCapacitance }

// Message implements Command.
func (c *BulkCapacitance) Message() (frame.Message, error) {
	if len(c.Values) > MaxBulkValues {
		return frame.Message{}, ErrTooManyValues
	}
	data := make([]byte, 2, 2+2*len(c.Values))
	data[0], data[1] = c.Start, byte(len(c.Values))
	for _, v := range c.Values {
		data = binary.LittleEndian.AppendUint16(data, v)
	}
	return frame.Encode(OpBulkCapacitance, data...), nil
}

func (c *BulkCapacitance) decode(payload []byte) error {
	if len(payload) < 2 {
		return &SizeError{Opcode: OpBulkCapacitance, Got: len(payload), Want: 2}
	}
	count := int(payload[1])
	if count > MaxBulkValues {
		return ErrTooManyValues
	}
	if want := 2 + 2*count; len(payload) != want {
		return &SizeError{Opcode: OpBulkCapacitance, Got: len(payload), Want: want}
	}
	c.Start, c.Values = payload[0], make([]uint16, count)
	for i := range c.Values {
		c.Values[i] = binary.LittleEndian.Uint16(payload[2+2*i:])
	}
	return nil
}

func (c *BulkCapacitance) String() string {
	return fmt.Sprintf("BulkCapacitance(start=%d count=%d)", c.Start, len(c.Values))
}

const parameterSize = 9

// Parameter reads (Write false) or writes a device parameter. The device
// answers both with the same command carrying the current value.
type Parameter struct {
	Index uint32
	// Value holds the raw 32 bits, interpreted as int32 or float32
	// depending on the parameter.
	Value uint32
	Write bool
}

// NewIntParameter creates a Parameter carrying an integer.
func NewIntParameter(index uint32, v int32, write bool) *Parameter {
	return &Parameter{Index: index, Value: uint32(v), Write: write}
}

// NewFloatParameter creates a Parameter carrying a float.
func NewFloatParameter(index uint32, v float32, write bool) *Parameter {
	return &Parameter{Index: index, Value: math.Float32bits(v), Write: write}
}

// Int interprets the value as int32.
func (c *Parameter) Int() int32 { return int32(c.Value) }

// Float interprets the value as float32.
func (c *Parameter) Float() float32 { return math.Float32frombits(c.Value) }

// Opcode implements Command.
func (c *Parameter) Opcode() byte { return OpParameter }

// Message implements Command.
func (c *Parameter) Message() (frame.Message, error) {
	data := make([]byte, parameterSize)
	binary.LittleEndian.PutUint32(data, c.Index)
	binary.LittleEndian.PutUint32(data[4:], c.Value)
	if c.Write {
		data[8] = 1
	}
	return frame.Encode(OpParameter, data...), nil
}

func (c *Parameter) decode(payload []byte) error {
	if len(payload) != parameterSize {
		return &SizeError{Opcode: OpParameter, Got: len(payload), Want: parameterSize}
	}
	c.Index = binary.LittleEndian.Uint32(payload)
	c.Value = binary.LittleEndian.Uint32(payload[4:])
	c.Write = payload[8] != 0
	return nil
}

func (c *Parameter) String() string {
	op := "read"
	if c.Write {
		op = "write"
	}
	return fmt.Sprintf("Parameter(%s idx=%d value=0x%08x)", op, c.Index, c.Value)
}
