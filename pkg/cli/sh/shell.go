package sh

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	fx "github.com/robotalks/vcplink/pkg/framework"
	"github.com/robotalks/vcplink/pkg/config"
	"github.com/robotalks/vcplink/pkg/l0/cmds"
	"github.com/robotalks/vcplink/pkg/l0/diag"
	"github.com/robotalks/vcplink/pkg/l0/frame"
	"github.com/robotalks/vcplink/pkg/l0/link"
	"github.com/robotalks/vcplink/pkg/l0/queue"
	"github.com/robotalks/vcplink/pkg/l0/transport"
)

// Shell provides ishell backed interactive console over an in-process
// ingestion pipeline.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell   *ishell.Shell
	Config  *config.Config
	Session *Session
}

// Session is one pipeline: a parser and queue fed either by the feed
// command (local) or by an opened endpoint.
type Session struct {
	Endpoint string
	Stream   *transport.Stream
	Queue    *queue.Ring[frame.Message]
	Loop     *link.Loop
	Params   *cmds.ParamClient

	seq    uint64
	input  *queue.Ring[byte]
	runner *fx.Runner
}

const (
	shellKey    = "$shell"
	localPrompt = "[local] > "
)

var (
	// ErrNotOpen indicates the command requires an opened endpoint.
	ErrNotOpen = errors.New("no endpoint opened")
	// ErrNotLocal indicates the command only works without an endpoint.
	ErrNotLocal = errors.New("not available while an endpoint is open")
	// ErrTimeout indicates the device didn't reply in time.
	ErrTimeout = errors.New("reply timeout")

	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&FeedCmd,
		&EncodeCmd,
		&DequeueCmd,
		&StatsCmd,
		&ResetCmd,
		&OpenCmd,
		&CloseCmd,
		&SendCmd,
		&PortsCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell with a local session.
func New(conf *config.Config) (*Shell, error) {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	if err := s.OpenLocal(); err != nil {
		return nil, err
	}
	s.Shell.Set(shellKey, s)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s, nil
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requiring an opened endpoint.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Session.Stream == nil {
			c.Err(ErrNotOpen)
			return
		}
		fn(c)
	}
}

// MustBeLocal wraps command func which feeds the parser directly.
func MustBeLocal(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Session.Stream != nil {
			c.Err(ErrNotLocal)
			return
		}
		fn(c)
	}
}

// ParseHex decodes hex bytes from args; each arg may hold several bytes.
func ParseHex(args []string) ([]byte, error) {
	var data []byte
	for _, arg := range args {
		arg = strings.TrimPrefix(strings.ToLower(arg), "0x")
		if len(arg)%2 == 1 {
			arg = "0" + arg
		}
		b, err := hex.DecodeString(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid hex %q", arg)
		}
		data = append(data, b...)
	}
	return data, nil
}

func (s *Shell) newSession(t link.Transport, endpoint string) (*Session, error) {
	q, err := s.Config.NewQueue()
	if err != nil {
		return nil, err
	}
	sess := &Session{Endpoint: endpoint, Queue: q}
	sess.Loop, err = s.Config.NewLoop(t, q.Producer(), diag.SinkFunc(func(format string, args ...interface{}) {
		s.printf("! "+format+"\n", args...)
	}))
	return sess, err
}

// OpenLocal replaces the session with a local one fed by Feed.
func (s *Shell) OpenLocal() error {
	input, err := queue.New[byte](s.Config.BufferSize)
	if err != nil {
		return err
	}
	scratch := make([]byte, input.Cap())
	sess, err := s.newSession(link.PollFunc(func() []byte {
		return scratch[:input.DequeueInto(scratch)]
	}), "")
	if err != nil {
		return err
	}
	sess.input = input
	s.replace(sess)
	s.setPrompt(localPrompt)
	return nil
}

// Open replaces the session with one reading from the endpoint.
func (s *Shell) Open(endpoint string) error {
	stream, err := s.Config.OpenTransportFor(endpoint)
	if err != nil {
		return err
	}
	sess, err := s.newSession(stream, endpoint)
	if err != nil {
		return err
	}
	sess.Stream = stream
	sess.Params = cmds.NewParamClient(stream)
	sess.runner = fx.NewRunner().Go(
		fx.NamedRun("stream", stream),
		fx.NamedRun("loop", sess.Loop),
	)
	s.replace(sess)
	s.setPrompt(fmt.Sprintf("[%s] > ", stream.Name))
	return nil
}

func (s *Shell) setPrompt(prompt string) {
	if s.Shell != nil {
		s.Shell.SetPrompt(prompt)
	}
}

func (s *Shell) printf(format string, args ...interface{}) {
	if s.Shell != nil {
		s.Shell.Printf(format, args...)
	} else {
		fmt.Printf(format, args...)
	}
}

func (s *Shell) replace(sess *Session) {
	if old := s.Session; old != nil && old.runner != nil {
		old.runner.Stop()
		if err := old.runner.Wait(); err != nil {
			glog.Warningf("close %s: %v", old.Endpoint, err)
		}
	}
	s.Session = sess
}

// Feed pushes bytes through the local pipeline and returns the number of
// bytes the loop consumed.
func (s *Shell) Feed(data []byte) (int, error) {
	sess := s.Session
	if sess.input == nil {
		return 0, ErrNotLocal
	}
	var n int
	for len(data) > 0 {
		for len(data) > 0 && sess.input.Enqueue(data[0]) {
			data = data[1:]
		}
		consumed := sess.Loop.Step()
		if consumed == 0 {
			break
		}
		n += consumed
	}
	return n, nil
}

// Send writes a frame to the opened endpoint.
func (s *Shell) Send(msg frame.Message) error {
	if err := msg.CheckLength(s.Session.Loop.Parser.MaxLength()); err != nil {
		return err
	}
	if s.Session.Stream == nil {
		return ErrNotOpen
	}
	_, err := msg.WriteTo(s.Session.Stream)
	return err
}

// Take dequeues a message. Replies to pending parameter requests are
// consumed and not returned.
func (s *Session) Take() (seq uint64, msg frame.Message, ok bool) {
	for {
		if msg, ok = s.Queue.Dequeue(); !ok {
			return
		}
		s.seq++
		if s.Params == nil || !s.Params.Observe(msg) {
			return s.seq, msg, true
		}
	}
}

// Request sends a parameter request to the endpoint and waits for the reply.
// Other messages taken meanwhile are passed to fn.
func (s *Shell) Request(req cmds.Parameter, timeout time.Duration, fn func(uint64, frame.Message)) (*cmds.Parameter, error) {
	sess := s.Session
	if sess.Params == nil {
		return nil, ErrNotOpen
	}
	call := sess.Params.Send(req)
	deadline := time.After(timeout)
	for {
		select {
		case res := <-call.ResultChan():
			return res.Param, res.Err
		case <-deadline:
			sess.Params.Cancel(call)
			return nil, ErrTimeout
		default:
		}
		if seq, msg, ok := sess.Take(); ok {
			fn(seq, msg)
		} else {
			time.Sleep(time.Millisecond)
		}
	}
}

// Close closes the current session and releases the endpoint.
func (s *Shell) Close() {
	s.replace(nil)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) error {
	defer s.Close()
	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	if s.Interactive {
		s.Shell.Run()
		return nil
	}
	return errors.New("command expected")
}

// Main is a helper to provide a single call in main.
func Main() {
	conf, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		glog.Exitf("config: %v", err)
	}
	s, err := New(conf)
	if err != nil {
		glog.Exitf("init: %v", err)
	}
	if err := s.Run(flag.Args()...); err != nil {
		glog.Exit(err)
	}
}
