package sh

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/vcplink/pkg/l0/cmds"
	"github.com/robotalks/vcplink/pkg/l0/frame"
	"github.com/robotalks/vcplink/pkg/l0/transport"
	"github.com/robotalks/vcplink/pkg/l1/msgs"
)

// ParseOpcode parses an opcode in decimal or 0x hex.
func ParseOpcode(arg string) (byte, error) {
	n, err := strconv.ParseUint(arg, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid OPCODE %q", arg)
	}
	return byte(n), nil
}

// MessageFromArgs builds a message from OPCODE [HEX...].
func MessageFromArgs(args []string) (frame.Message, error) {
	if len(args) < 1 {
		return frame.Message{}, fmt.Errorf("OPCODE required")
	}
	opcode, err := ParseOpcode(args[0])
	if err != nil {
		return frame.Message{}, err
	}
	data, err := ParseHex(args[1:])
	if err != nil {
		return frame.Message{}, err
	}
	msg := frame.Encode(opcode, data...)
	return msg, msg.Check()
}

// Emit delivers a command: sent to the endpoint if one is open, otherwise
// looped back through the local parser.
func Emit(c *ishell.Context, cmd cmds.Command) {
	msg, err := cmd.Message()
	if err != nil {
		c.Err(err)
		return
	}
	s := ShellFrom(c)
	if s.Session.Stream != nil {
		err = s.Send(msg)
	} else {
		_, err = s.Feed(msg.Bytes())
	}
	if err != nil {
		c.Err(err)
		return
	}
	c.Printf("% x\n", msg.Bytes())
}

// PrintMessage prints a dequeued message.
func PrintMessage(c *ishell.Context, seq uint64, msg frame.Message) {
	s := ShellFrom(c)
	if s.OutputJSON {
		out, err := msgs.NewEnvelope(s.Session.Endpoint, seq, msg).JSON()
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(out)
		return
	}
	cmd, err := cmds.Decode(msg)
	if err != nil {
		c.Printf("#%d %s (%v)\n", seq, msg, err)
		return
	}
	c.Printf("#%d %s\n", seq, cmd)
}

var (
	// FeedCmd pushes raw bytes through the local parser.
	FeedCmd = ishell.Cmd{
		Name:    "feed",
		Aliases: []string{"f"},
		Help:    "HEX... feeds bytes to the local parser",
		Func: MustBeLocal(func(c *ishell.Context) {
			data, err := ParseHex(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			s := ShellFrom(c)
			if _, err := s.Feed(data); err != nil {
				c.Err(err)
				return
			}
			c.Printf("queued %d, parser %s\n", s.Session.Queue.Len(), s.Session.Loop.Parser.State())
		}),
	}

	// EncodeCmd prints the frame of a message.
	EncodeCmd = ishell.Cmd{
		Name:    "encode",
		Aliases: []string{"enc"},
		Help:    "OPCODE [HEX...] prints the encoded frame",
		Func: func(c *ishell.Context) {
			msg, err := MessageFromArgs(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("% x\n", msg.Bytes())
		},
	}

	// DequeueCmd takes messages off the queue.
	DequeueCmd = ishell.Cmd{
		Name:    "dequeue",
		Aliases: []string{"dq"},
		Help:    "[COUNT] takes messages off the queue, all by default",
		Func: func(c *ishell.Context) {
			limit := -1
			if len(c.Args) > 0 {
				n, err := strconv.Atoi(c.Args[0])
				if err != nil || n < 0 {
					c.Err(fmt.Errorf("invalid COUNT %q", c.Args[0]))
					return
				}
				limit = n
			}
			s := ShellFrom(c)
			var n int
			for ; limit < 0 || n < limit; n++ {
				seq, msg, ok := s.Session.Take()
				if !ok {
					break
				}
				PrintMessage(c, seq, msg)
			}
			if n == 0 && !s.OutputJSON {
				c.Println("queue empty")
			}
		},
	}

	// StatsCmd prints link statistics.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "prints link statistics",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			stats := s.Session.Loop.Stats()
			if s.OutputJSON {
				out, err := json.Marshal(stats)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			c.Printf("bytes %d frames %d enqueued %d dropped %d\n",
				stats.Bytes, stats.Frames, stats.Enqueued, stats.Dropped)
			for _, kind := range frame.ErrorKinds {
				c.Printf("  %s %d\n", kind, stats.Errors[kind])
			}
			q := s.Session.Queue
			c.Printf("queue %d/%d high-water %d\n", q.Len(), q.Cap(), q.HighWater())
			if stream := s.Session.Stream; stream != nil {
				c.Printf("%s connected %v dials %d overflow %d\n",
					stream.Name, stream.Connected(), stream.Dials(), stream.Overflow())
			}
		},
	}

	// ResetCmd discards a partial frame.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "discards any partial frame in the local parser",
		Func: MustBeLocal(func(c *ishell.Context) {
			ShellFrom(c).Session.Loop.Parser.Reset()
		}),
	}

	// OpenCmd attaches to an endpoint.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "URL attaches to a device endpoint",
		Func: func(c *ishell.Context) {
			endpoint := ShellFrom(c).Config.Endpoint
			if len(c.Args) > 0 {
				endpoint = c.Args[0]
			}
			if err := ShellFrom(c).Open(endpoint); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd detaches from the endpoint.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "detaches from the endpoint and returns to local mode",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).OpenLocal(); err != nil {
				c.Err(err)
			}
		},
	}

	// SendCmd writes a frame to the endpoint.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "OPCODE [HEX...] sends a frame to the endpoint",
		Func: MustBeOpen(func(c *ishell.Context) {
			msg, err := MessageFromArgs(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if err := ShellFrom(c).Send(msg); err != nil {
				c.Err(err)
			}
		}),
	}

	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name: "ports",
		Help: "lists serial ports",
		Func: func(c *ishell.Context) {
			ports, err := transport.SerialPorts()
			if err != nil {
				c.Err(err)
				return
			}
			if len(ports) == 0 {
				c.Println("no serial ports found")
			}
			for _, port := range ports {
				c.Printf("serial://%s\n", port)
			}
		},
	}
)
