// Package vcp adds typed device commands to the shell.
package vcp

import (
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/vcplink/pkg/cli/sh"
	"github.com/robotalks/vcplink/pkg/l0/cmds"
	"github.com/robotalks/vcplink/pkg/l0/frame"
)

// ParseElectrodes builds an ElectrodeEnable from electrode numbers.
func ParseElectrodes(args []string) (*cmds.ElectrodeEnable, error) {
	var cmd cmds.ElectrodeEnable
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid electrode %q", arg)
		}
		if err := cmd.Set(n, true); err != nil {
			return nil, err
		}
	}
	return &cmd, nil
}

// ParseBulk builds a BulkCapacitance from START VALUE...
func ParseBulk(args []string) (*cmds.BulkCapacitance, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("START required")
	}
	start, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid START: %v", err)
	}
	cmd := &cmds.BulkCapacitance{Start: byte(start), Values: make([]uint16, 0, len(args)-1)}
	for _, arg := range args[1:] {
		v, err := strconv.ParseUint(arg, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid VALUE %q", arg)
		}
		cmd.Values = append(cmd.Values, uint16(v))
	}
	if len(cmd.Values) > cmds.MaxBulkValues {
		return nil, cmds.ErrTooManyValues
	}
	return cmd, nil
}

// ParseParameter builds a Parameter from INDEX [VALUE]. VALUE containing a
// decimal point is sent as float; a VALUE makes it a write.
func ParseParameter(args []string) (*cmds.Parameter, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("INDEX required")
	}
	index, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid INDEX: %v", err)
	}
	if len(args) < 2 {
		return &cmds.Parameter{Index: uint32(index)}, nil
	}
	if v, err := strconv.ParseInt(args[1], 0, 32); err == nil {
		return cmds.NewIntParameter(uint32(index), int32(v), true), nil
	}
	v, err := strconv.ParseFloat(args[1], 32)
	if err != nil {
		return nil, fmt.Errorf("invalid VALUE: %v", err)
	}
	return cmds.NewFloatParameter(uint32(index), float32(v), true), nil
}

// ReplyTimeout bounds the wait for a parameter reply.
var ReplyTimeout = time.Second

var (
	// ElectrodesCmd exposes ElectrodeEnable.
	ElectrodesCmd = ishell.Cmd{
		Name:    "electrodes",
		Aliases: []string{"el"},
		Help:    "[N...] enables the listed electrodes, all others off",
		Func: func(c *ishell.Context) {
			cmd, err := ParseElectrodes(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			sh.Emit(c, cmd)
		},
	}

	// BulkCmd exposes BulkCapacitance.
	BulkCmd = ishell.Cmd{
		Name:    "bulk",
		Aliases: []string{"cap"},
		Help:    "START VALUE... capacitance readings",
		Func: func(c *ishell.Context) {
			cmd, err := ParseBulk(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			sh.Emit(c, cmd)
		},
	}

	// ParamCmd exposes Parameter. With an endpoint open it waits for the
	// device to reply with the current value.
	ParamCmd = ishell.Cmd{
		Name:    "param",
		Aliases: []string{"p"},
		Help:    "INDEX [VALUE] reads or writes a parameter",
		Func: func(c *ishell.Context) {
			cmd, err := ParseParameter(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			s := sh.ShellFrom(c)
			if s.Session.Stream == nil {
				sh.Emit(c, cmd)
				return
			}
			reply, err := s.Request(*cmd, ReplyTimeout, func(seq uint64, msg frame.Message) {
				sh.PrintMessage(c, seq, msg)
			})
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("param %d = %d (%g)\n", reply.Index, reply.Int(), reply.Float())
		},
	}
)

func init() {
	sh.AddCmds(
		&ElectrodesCmd,
		&BulkCmd,
		&ParamCmd,
	)
}
