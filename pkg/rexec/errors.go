package rexec

import (
	"errors"
	"fmt"
)

// ContextError is the generic error category. The other error types in
// this package do not wrap it, so errors.As for *ContextError does not
// match a StreamError, CorruptFrameError, ChannelError, TimeoutError or
// RemoteError.
type ContextError struct {
	Op  string
	Err error
}

func (e *ContextError) Error() string { return fmt.Sprintf("rexec: %s: %v", e.Op, e.Err) }
func (e *ContextError) Unwrap() error { return e.Err }

// StreamError reports that a stream could not be established, or was lost
// mid-call.
type StreamError struct {
	Context string
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("rexec: stream %s: %v", e.Context, e.Err)
}
func (e *StreamError) Unwrap() error { return e.Err }

// CorruptFrameError reports a MAC mismatch, unknown handle, or malformed
// payload. It is always fatal for the stream that produced it.
type CorruptFrameError struct {
	Context string
	Reason  string
}

func (e *CorruptFrameError) Error() string {
	return fmt.Sprintf("rexec: stream %s: corrupt frame: %s", e.Context, e.Reason)
}

// ChannelError reports an operation attempted on a closed or dead Channel.
type ChannelError struct {
	Reason string
}

func (e *ChannelError) Error() string { return "rexec: channel: " + e.Reason }

// TimeoutError reports that a CallWithDeadline's deadline expired before a
// reply arrived.
type TimeoutError struct {
	Context string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rexec: call to %s timed out", e.Context)
}

// RemoteError surfaces a failure raised by the function invoked on the
// remote side. Description carries the remote error's text; Trace carries
// a serialisable stand-in for its traceback (remote stack frames are not
// live objects once they cross the wire).
type RemoteError struct {
	Description string
	Trace       []TraceFrame
}

func (e *RemoteError) Error() string { return "rexec: remote error: " + e.Description }

// Sentinel errors mirroring the shape of a connection-owning broker: a
// dead stream/context fails fast rather than silently queuing forever.
var (
	// ErrStreamLost is returned when a pending call's stream disconnects
	// (or was already disconnected) before a reply arrived.
	ErrStreamLost = errors.New("rexec: stream lost")

	// ErrBrokerDead names the state of a Broker whose Finalize has run.
	// No operation in this package returns it: Register and event
	// delivery on a finalized Broker return silently.
	ErrBrokerDead = errors.New("rexec: broker is dead")

	// ErrChannelClosed is returned by Channel.Receive once the peer has
	// closed the channel and the queue has drained.
	ErrChannelClosed = &ChannelError{Reason: "closed"}

	// ErrUnknownHandle is the corrupt-frame-class failure raised when a
	// frame's payload is too short to carry a handle. A frame tagged with
	// a handle nobody registered a callback for is reported as a
	// CorruptFrameError with reason "unknown handle" instead.
	ErrUnknownHandle = errors.New("rexec: unknown handle")
)
