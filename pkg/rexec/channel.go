package rexec

import "context"

// Channel is a many-per-stream typed mailbox keyed by a handle. Either side
// can Send; either side (or a stream disconnect) can Close it. Receive
// blocks until a value arrives, the channel closes, or an optional timeout
// elapses.
type Channel struct {
	stream *Stream
	handle Handle

	queue chan channelBody
}

// NewChannel installs itself as the persistent callback for handle on
// stream and returns the mailbox. Each peer constructs its own Channel for
// the handle on its own Stream; a second Channel for the same handle on one
// Stream takes over the callback slot, matching Stream.AddHandleCB's
// documented overwrite semantics.
func NewChannel(stream *Stream, handle Handle) *Channel {
	c := &Channel{stream: stream, handle: handle, queue: make(chan channelBody, 64)}
	stream.AddHandleCB(c.onFrame, handle, true)
	return c
}

func (c *Channel) onFrame(closed bool, body []byte) {
	if closed {
		c.queue <- channelBody{Closed: true}
		return
	}
	v, err := c.stream.marsh.Unmarshal(body)
	if err != nil {
		c.queue <- channelBody{Closed: true}
		return
	}
	cb, ok := v.(channelBody)
	if !ok {
		c.queue <- channelBody{Closed: true}
		return
	}
	if cb.Closed {
		c.queue <- channelBody{Closed: true}
		return
	}
	c.queue <- cb
}

// Send delivers v to the peer's Channel for this handle.
func (c *Channel) Send(v interface{}) error {
	return c.stream.Enqueue(c.handle, channelBody{Closed: false, Value: v})
}

// Close tells the peer this channel is closed. It does not stop local
// Receive calls from draining values already queued before the close.
func (c *Channel) Close() error {
	return c.stream.Enqueue(c.handle, channelBody{Closed: true})
}

// Receive waits for the next value until ctx is done, in which case it
// returns a ChannelError and leaves the channel usable. Once the
// peer has closed the channel (or the stream has died, which synthesises a
// close), Receive returns ErrChannelClosed for every subsequent call.
func (c *Channel) Receive(ctx context.Context) (interface{}, error) {
	select {
	case cb, ok := <-c.queue:
		if !ok || cb.Closed {
			c.closeQueue()
			return nil, ErrChannelClosed
		}
		return cb.Value, nil
	case <-ctx.Done():
		return nil, &ChannelError{Reason: "receive timed out"}
	}
}

func (c *Channel) closeQueue() {
	// Re-seed a closed marker so every subsequent Receive (and the
	// iterator) keeps observing the closed state without blocking.
	select {
	case c.queue <- channelBody{Closed: true}:
	default:
	}
}

// Next implements the iterator form: call it in a loop until ok is false,
// at which point the channel has closed cleanly.
func (c *Channel) Next(ctx context.Context) (value interface{}, ok bool) {
	v, err := c.Receive(ctx)
	if err != nil {
		return nil, false
	}
	return v, true
}
