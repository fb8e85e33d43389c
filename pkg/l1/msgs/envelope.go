package msgs

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang/protobuf/jsonpb"
	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/robotalks/vcplink/pkg/l0/cmds"
	"github.com/robotalks/vcplink/pkg/l0/frame"
)

// Envelope field names.
const (
	FieldDevice  = "device"
	FieldSeq     = "seq"
	FieldTime    = "time"
	FieldOpcode  = "opcode"
	FieldPayload = "payload"
	FieldCommand = "command"
)

// ErrMissingField indicates a required envelope field is absent or mistyped.
type ErrMissingField struct {
	Field string
}

// Error implements error.
func (e *ErrMissingField) Error() string {
	return fmt.Sprintf("envelope: missing field %q", e.Field)
}

// ErrBadOpcode indicates the opcode doesn't fit a byte.
var ErrBadOpcode = errors.New("envelope: opcode out of range")

// Envelope carries one decoded message with its origin.
type Envelope struct {
	Device  string
	Seq     uint64
	Time    time.Time
	Message frame.Message
	// Command is a readable form of the typed command, if the opcode is known.
	Command string
}

// NewEnvelope wraps a message.
func NewEnvelope(device string, seq uint64, msg frame.Message) *Envelope {
	e := &Envelope{
		Device:  device,
		Seq:     seq,
		Time:    time.Now().UTC(),
		Message: msg,
	}
	cmd, err := cmds.Decode(msg)
	if _, raw := cmd.(*cmds.Raw); err == nil && !raw {
		if s, ok := cmd.(fmt.Stringer); ok {
			e.Command = s.String()
		}
	}
	return e
}

// Decode decodes the typed command.
func (e *Envelope) Decode() (cmds.Command, error) {
	return cmds.Decode(e.Message)
}

// Proto converts the envelope to a protobuf Struct.
func (e *Envelope) Proto() *structpb.Struct {
	fields := map[string]*structpb.Value{
		FieldDevice:  stringValue(e.Device),
		FieldSeq:     numberValue(float64(e.Seq)),
		FieldTime:    stringValue(e.Time.Format(time.RFC3339Nano)),
		FieldOpcode:  numberValue(float64(e.Message.Opcode)),
		FieldPayload: stringValue(base64.StdEncoding.EncodeToString(e.Message.Payload)),
	}
	if e.Command != "" {
		fields[FieldCommand] = stringValue(e.Command)
	}
	return &structpb.Struct{Fields: fields}
}

// FromProto converts a protobuf Struct back into an envelope.
func FromProto(s *structpb.Struct) (*Envelope, error) {
	e := &Envelope{}
	var err error
	if e.Device, err = stringField(s, FieldDevice); err != nil {
		return nil, err
	}
	seq, err := numberField(s, FieldSeq)
	if err != nil {
		return nil, err
	}
	e.Seq = uint64(seq)
	ts, err := stringField(s, FieldTime)
	if err != nil {
		return nil, err
	}
	if e.Time, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return nil, fmt.Errorf("envelope: invalid time: %w", err)
	}
	opcode, err := numberField(s, FieldOpcode)
	if err != nil {
		return nil, err
	}
	if opcode < 0 || opcode > 0xff {
		return nil, ErrBadOpcode
	}
	payload, err := stringField(s, FieldPayload)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("envelope: invalid payload: %w", err)
	}
	e.Message = frame.Encode(byte(opcode), data...)
	e.Command, _ = stringField(s, FieldCommand)
	return e, nil
}

// Encode encodes the envelope to protobuf wire format.
func (e *Envelope) Encode() ([]byte, error) {
	return proto.Marshal(e.Proto())
}

// Decode decodes an envelope from protobuf wire format.
func Decode(data []byte) (*Envelope, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return FromProto(&s)
}

// JSON renders the envelope in protobuf JSON mapping.
func (e *Envelope) JSON() (string, error) {
	m := jsonpb.Marshaler{}
	return m.MarshalToString(e.Proto())
}

func stringValue(s string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: s}}
}

func numberValue(n float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: n}}
}

func stringField(s *structpb.Struct, name string) (string, error) {
	if v, ok := s.GetFields()[name].GetKind().(*structpb.Value_StringValue); ok {
		return v.StringValue, nil
	}
	return "", &ErrMissingField{Field: name}
}

func numberField(s *structpb.Struct, name string) (float64, error) {
	if v, ok := s.GetFields()[name].GetKind().(*structpb.Value_NumberValue); ok {
		return v.NumberValue, nil
	}
	return 0, &ErrMissingField{Field: name}
}
