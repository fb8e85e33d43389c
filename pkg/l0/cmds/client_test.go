package cmds

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/vcplink/pkg/l0/frame"
)

func reply(t *testing.T, p *Parameter) frame.Message {
	msg, err := p.Message()
	require.NoError(t, err)
	return msg
}

func TestParamClientReply(t *testing.T) {
	var wire bytes.Buffer
	c := NewParamClient(&wire)
	call := c.Send(Parameter{Index: 3})
	expect, _ := (&Parameter{Index: 3}).Message()
	require.Equal(t, expect.Bytes(), wire.Bytes())
	require.Equal(t, 1, c.Pending())

	require.False(t, c.Observe(frame.Encode(OpBulkCapacitance, 0, 0)))
	require.False(t, c.Observe(reply(t, NewIntParameter(4, 1, false))))
	require.True(t, c.Observe(reply(t, NewIntParameter(3, 42, false))))
	res := <-call.ResultChan()
	require.NoError(t, res.Err)
	require.Equal(t, int32(42), res.Param.Int())
	require.Zero(t, c.Pending())
}

func TestParamClientSkippedReplies(t *testing.T) {
	c := NewParamClient(&bytes.Buffer{})
	first := c.Send(Parameter{Index: 1})
	second := c.Send(Parameter{Index: 2})
	third := c.Send(Parameter{Index: 3})

	require.True(t, c.Observe(reply(t, &Parameter{Index: 2})))
	require.ErrorIs(t, (<-first.ResultChan()).Err, ErrNoReply)
	require.NoError(t, (<-second.ResultChan()).Err)
	require.Equal(t, 1, c.Pending())

	require.True(t, c.Observe(reply(t, &Parameter{Index: 3})))
	require.NoError(t, (<-third.ResultChan()).Err)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("closed")
}

func TestParamClientDo(t *testing.T) {
	c := NewParamClient(&bytes.Buffer{})
	answer := reply(t, NewFloatParameter(7, 2.5, true))
	go func() {
		for c.Pending() == 0 {
			time.Sleep(time.Millisecond)
		}
		c.Observe(answer)
	}()
	p, err := c.Do(context.Background(), *NewFloatParameter(7, 2.5, true))
	require.NoError(t, err)
	require.Equal(t, float32(2.5), p.Float())

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, err = c.Do(ctx, Parameter{Index: 9})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, c.Pending())

	_, err = NewParamClient(failingWriter{}).Do(context.Background(), Parameter{Index: 1})
	require.Error(t, err)
}
