package cmds

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/robotalks/vcplink/pkg/l0/frame"
)

// ErrNoReply indicates the device answered a later request first, so all
// earlier requests are given up.
var ErrNoReply = errors.New("cmds: no reply")

// Result is the outcome of a parameter request.
type Result struct {
	Err   error
	Param *Parameter
}

// Call is a parameter request waiting for the device to echo it.
type Call struct {
	Request  Parameter
	resultCh chan Result
	next     *Call
}

// ResultChan returns the chan to retrieve result.
func (c *Call) ResultChan() <-chan Result {
	return c.resultCh
}

// ParamClient sends Parameter requests and matches the device replies. The
// device answers every request, read or write, with a Parameter carrying
// the current value, in request order.
//
// Replies must be passed in with Observe by whoever consumes the queue.
type ParamClient struct {
	w io.Writer

	lock sync.Mutex
	head *Call
	tail *Call
}

// NewParamClient creates a ParamClient writing frames to w.
func NewParamClient(w io.Writer) *ParamClient {
	return &ParamClient{w: w}
}

// Send writes a request and returns the pending Call.
func (c *ParamClient) Send(req Parameter) *Call {
	call := &Call{Request: req, resultCh: make(chan Result, 1)}
	msg, _ := req.Message()

	c.lock.Lock()
	defer c.lock.Unlock()
	if _, err := msg.WriteTo(c.w); err != nil {
		call.resultCh <- Result{Err: err}
		return call
	}
	if c.head == nil {
		c.head = call
	} else {
		c.tail.next = call
	}
	c.tail = call
	return call
}

// Do sends a request and waits for the reply.
func (c *ParamClient) Do(ctx context.Context, req Parameter) (*Parameter, error) {
	call := c.Send(req)
	select {
	case res := <-call.resultCh:
		return res.Param, res.Err
	case <-ctx.Done():
		c.Cancel(call)
		return nil, ctx.Err()
	}
}

// Pending returns the number of calls waiting for replies.
func (c *ParamClient) Pending() (n int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	for call := c.head; call != nil; call = call.next {
		n++
	}
	return
}

// Observe checks a dequeued message for a reply. It returns true if the
// message answered a pending call.
func (c *ParamClient) Observe(msg frame.Message) bool {
	if msg.Opcode != OpParameter {
		return false
	}
	reply := &Parameter{}
	if reply.decode(msg.Payload) != nil {
		return false
	}
	c.lock.Lock()
	head, curr := c.head, c.head
	for ; curr != nil; curr = curr.next {
		if curr.Request.Index == reply.Index {
			if c.head = curr.next; c.head == nil {
				c.tail = nil
			}
			curr.next = nil
			break
		}
	}
	c.lock.Unlock()
	if curr == nil {
		return false
	}
	for ; head != curr; head = head.next {
		head.resultCh <- Result{Err: ErrNoReply}
	}
	curr.resultCh <- Result{Param: reply}
	return true
}

// Cancel forgets a pending call.
func (c *ParamClient) Cancel(call *Call) {
	c.lock.Lock()
	defer c.lock.Unlock()
	var prev *Call
	for curr := c.head; curr != nil; prev, curr = curr, curr.next {
		if curr != call {
			continue
		}
		if prev == nil {
			c.head = curr.next
		} else {
			prev.next = curr.next
		}
		if c.tail == curr {
			c.tail = prev
		}
		curr.next = nil
		return
	}
}
