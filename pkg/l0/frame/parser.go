package frame

import "fmt"

// State is the position of the parser within a frame.
type State int

const (
	StateAwaitSync     State = iota // hunting for Sync
	StateAwaitLength                // waiting for the length byte
	StateAwaitPayload               // collecting opcode and data
	StateAwaitChecksum              // waiting for the trailing checksum
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateAwaitSync:
		return "await-sync"
	case StateAwaitLength:
		return "await-length"
	case StateAwaitPayload:
		return "await-payload"
	case StateAwaitChecksum:
		return "await-checksum"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Status tells what feeding a single byte produced.
type Status int

const (
	// Pending means the byte was consumed and no frame is complete yet.
	Pending Status = iota
	// Complete means the byte completed a valid frame.
	Complete
	// Failed means the byte was invalid and the partial frame was discarded.
	Failed
)

// Outcome is the result of one parsing step.
type Outcome struct {
	Status  Status
	Message *Message
	// Err is a *ParseError when Status is Failed.
	Err error
}

// Parser decodes frames one byte at a time.
// The zero value is ready to use with DefaultMaxLength.
type Parser struct {
	maxLen int
	state  State
	length int
	buf    []byte
	cs     Checksum
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxLength limits the accepted length field.
func WithMaxLength(n int) Option {
	return func(p *Parser) {
		p.maxLen = n
	}
}

// NewParser creates a Parser.
func NewParser(opts ...Option) (*Parser, error) {
	p := &Parser{maxLen: DefaultMaxLength}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxLen < 1 || p.maxLen > MaxLength {
		return nil, fmt.Errorf("%w: %d", ErrMaxLength, p.maxLen)
	}
	p.buf = make([]byte, 0, p.maxLen)
	return p, nil
}

// MaxLength returns the largest accepted length field.
func (p *Parser) MaxLength() int {
	if p.maxLen == 0 {
		return DefaultMaxLength
	}
	return p.maxLen
}

// State gets the current parse state.
func (p *Parser) State() State {
	return p.state
}

// Buffered returns the number of payload bytes collected for the current frame.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Reset discards any partial frame.
func (p *Parser) Reset() {
	p.state = StateAwaitSync
	p.length = 0
	p.buf = p.buf[:0]
	p.cs.Reset()
}

// Feed consumes one byte.
func (p *Parser) Feed(b byte) Outcome {
	switch p.state {
	case StateAwaitSync:
		if b != Sync {
			return p.fail(&ParseError{Kind: ErrKindBadSync, Got: b})
		}
		p.cs.Reset()
		p.state = StateAwaitLength
	case StateAwaitLength:
		if b == 0 || int(b) > p.MaxLength() {
			return p.fail(&ParseError{Kind: ErrKindBadLength, Got: b})
		}
		if p.buf == nil {
			p.buf = make([]byte, 0, p.MaxLength())
		}
		p.length = int(b)
		p.cs.Push(b)
		p.state = StateAwaitPayload
	case StateAwaitPayload:
		p.buf = append(p.buf, b)
		p.cs.Push(b)
		if len(p.buf) >= p.length {
			p.state = StateAwaitChecksum
		}
	case StateAwaitChecksum:
		if want := p.cs.Sum(); b != want {
			return p.fail(&ParseError{Kind: ErrKindChecksum, Got: b, Want: want})
		}
		return p.frameReady()
	}
	return Outcome{}
}

// FeedBytes feeds every byte in order and reports each non-pending outcome.
func (p *Parser) FeedBytes(data []byte, fn func(Outcome)) {
	for _, b := range data {
		if out := p.Feed(b); out.Status != Pending && fn != nil {
			fn(out)
		}
	}
}

func (p *Parser) fail(err *ParseError) Outcome {
	p.Reset()
	return Outcome{Status: Failed, Err: err}
}

func (p *Parser) frameReady() Outcome {
	msg := &Message{Opcode: p.buf[0]}
	if len(p.buf) > 1 {
		msg.Payload = append([]byte(nil), p.buf[1:]...)
	}
	p.Reset()
	return Outcome{Status: Complete, Message: msg}
}
