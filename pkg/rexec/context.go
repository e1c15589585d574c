package rexec

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/rexecio/rexec/internal/rlog"
	"github.com/rexecio/rexec/internal/wire"
)

// Context is a logical peer: a name, an optional host/user for remote
// peers, a shared secret, and exactly one Stream. The Broker maintains the
// name→Context map; a Context not registered with a Broker has no Stream.
type Context struct {
	Name       string
	Hostname   string
	Username   string
	Key        []byte
	ParentAddr string

	stream *Stream
	broker *Broker
}

// NewKey returns 16 random bytes, the shared-secret width spec.md §6
// mandates.
func NewKey() ([]byte, error) {
	key := make([]byte, 16)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("rexec: generating key: %w", err)
	}
	return key, nil
}

// KeyHex renders the Context's shared key as the 32 hex characters passed
// to a bootstrapped child.
func (c *Context) KeyHex() string { return hex.EncodeToString(c.Key) }

// NewStream exposes stream construction to the bootstrap package, which
// builds a Context's Stream directly atop an inherited pipe rather than a
// Broker-accepted connection.
func NewStream(conn net.Conn, key []byte, codec wire.Codec) *Stream {
	return newStream(conn, key, codec, nil)
}

// BindStream attaches an already-connected Stream to c and registers it
// with broker. Exported for callers outside the package, such as
// internal/bootstrap, that construct a Context's Stream directly.
func (c *Context) BindStream(broker *Broker, stream *Stream, log *rlog.Logger) {
	c.bindStream(broker, stream, log)
}

// newPassiveContext builds the Context the broker's accept loop creates
// for an inbound connection, before the peer has identified itself.
func newPassiveContext(b *Broker, conn net.Conn) *Context {
	ctx := &Context{Name: fmt.Sprintf("peer:%s", conn.RemoteAddr())}
	ctx.stream = newStream(conn, nil, wire.CodecNone, nil)
	ctx.broker = b
	return ctx
}

// bindStream attaches an already-connected Stream and registers the
// Context with broker, mirroring spec.md's "created when the controller
// asks the broker for a local or remote context."
func (c *Context) bindStream(broker *Broker, stream *Stream, log *rlog.Logger) {
	if log != nil {
		stream.log = log.For("stream." + c.Name)
	}
	c.stream = stream
	c.broker = broker
	broker.Register(c)
}

// Stream returns the Context's Stream, or nil if it has not been bound
// to one yet.
func (c *Context) Stream() *Stream { return c.stream }

type callWaiter struct {
	closed bool
	body   []byte
}

// CallWithDeadline invokes module.fn(args...) on the remote side and waits
// for a result until deadline. Expiry disconnects the entire stream — a
// pending reply can't be safely retracted, so the connection is sacrificed
// — and the stream-lost/timeout distinction mirrors spec.md §4.5 exactly.
func (c *Context) CallWithDeadline(deadline time.Time, module, fn string, args ...interface{}) (interface{}, error) {
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	return c.callWithContext(ctx, module, fn, args)
}

// Call invokes module.fn(args...) with no deadline.
func (c *Context) Call(module, fn string, args ...interface{}) (interface{}, error) {
	return c.callWithContext(context.Background(), module, fn, args)
}

func (c *Context) callWithContext(ctx context.Context, module, fn string, args []interface{}) (interface{}, error) {
	if c.stream == nil || c.stream.State() == StateDisconnected {
		return nil, &StreamError{Context: c.Name, Err: ErrStreamLost}
	}

	replyHandle := c.stream.AllocHandle()
	results := make(chan callWaiter, 1)
	c.stream.AddHandleCB(func(closed bool, body []byte) {
		results <- callWaiter{closed: closed, body: body}
	}, replyHandle, false)

	var token uint64
	if c.broker != nil {
		if deadline, ok := ctx.Deadline(); ok {
			token = c.broker.trackDeadline(c.Name, deadline)
			defer c.broker.untrackDeadline(token)
		}
	}

	call := callBody{ReplyHandle: replyHandle, Module: module, Func: fn, Args: args}
	if err := c.stream.Enqueue(HandleCallFunction, call); err != nil {
		c.stream.removeHandleCB(replyHandle)
		return nil, &StreamError{Context: c.Name, Err: err}
	}

	select {
	case res := <-results:
		if res.closed {
			return nil, &StreamError{Context: c.Name, Err: ErrStreamLost}
		}
		v, err := c.stream.marsh.Unmarshal(res.body)
		if err != nil {
			return nil, &CorruptFrameError{Context: c.Name, Reason: err.Error()}
		}
		reply, ok := v.(callReply)
		if !ok {
			return nil, &CorruptFrameError{Context: c.Name, Reason: "reply body had unexpected type"}
		}
		if reply.Success {
			return reply.Value, nil
		}
		return nil, &RemoteError{Description: reply.Error, Trace: reply.Trace}

	case <-ctx.Done():
		c.stream.removeHandleCB(replyHandle)
		c.stream.Disconnect()
		if c.broker != nil {
			c.broker.unregister(c)
		}
		return nil, &TimeoutError{Context: c.Name}
	}
}

func (c *Context) String() string {
	bits := []string{c.Name}
	if c.Hostname != "" {
		bits = append(bits, c.Hostname)
	}
	if c.Username != "" {
		bits = append(bits, c.Username)
	}
	out := "Context("
	for i, b := range bits {
		if i > 0 {
			out += ", "
		}
		out += b
	}
	return out + ")"
}
