package rexec

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/rexecio/rexec/internal/frame"
	"github.com/rexecio/rexec/internal/rlog"
	"github.com/rexecio/rexec/internal/wire"
)

// State is a Stream's lifecycle position. It only ever moves forward:
// CONNECTING -> CONNECTED -> DISCONNECTED. There is no reconnect.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

// HandleCB is invoked by the broker loop when a frame tagged with the
// handle it was installed under arrives. closed is true exactly once, when
// the stream disconnects, and body is nil in that case.
type HandleCB func(closed bool, body []byte)

type handleEntry struct {
	fn      HandleCB
	persist bool
}

// Stream owns one FD (via net.Conn) exclusively: its input/output
// buffers, handle allocator, and handle→callback table. A Context owns
// exactly one Stream for its lifetime; the Broker never owns a Stream,
// only a Context by name and (transiently) by its Stream's file descriptor.
type Stream struct {
	id   uint32
	conn net.Conn

	macCodec *frame.Codec
	decoder  *frame.Decoder
	marsh    *wire.Marshaller

	outMu sync.Mutex
	out   []byte

	handleMu   sync.Mutex
	handles    map[Handle]handleEntry
	lastHandle atomic.Uint64

	callSiteMu sync.Mutex
	callSites  map[uint64]func(args []interface{}) (interface{}, error)
	lastCall   atomic.Uint64

	state atomic.Int32
	once  sync.Once
	done  chan struct{}

	broker *Broker
	log    *rlog.ScopedLogger

	// contextName is set once the owning Context registers; used only
	// for log scoping and error messages.
	contextName string
}

var streamIDSeq atomic.Uint32

// newStream wraps conn as a freshly connecting Stream. codec selects the
// compression applied to large bodies (see internal/wire).
func newStream(conn net.Conn, key []byte, codec wire.Codec, log *rlog.ScopedLogger) *Stream {
	s := &Stream{
		id:        streamIDSeq.Add(1),
		conn:      conn,
		macCodec:  frame.New(key),
		marsh:     wire.New(codec),
		handles:   make(map[Handle]handleEntry),
		callSites: make(map[uint64]func(args []interface{}) (interface{}, error)),
		log:       log,
		done:      make(chan struct{}),
	}
	s.decoder = frame.NewDecoder(s.macCodec)
	s.lastHandle.Store(uint64(firstDynamicHandle))
	s.state.Store(int32(StateConnecting))
	return s
}

// State reports the stream's current lifecycle position.
func (s *Stream) State() State { return State(s.state.Load()) }

// AllocHandle returns a fresh handle, distinct from every handle this
// Stream has ever returned before.
func (s *Stream) AllocHandle() Handle {
	return s.lastHandle.Add(1)
}

// AddHandleCB installs fn as the callback for handle. persist=false removes
// the entry after its first invocation — the one-shot pattern
// CallWithDeadline uses for reply handles. Installing on an existing
// handle overwrites the previous callback.
func (s *Stream) AddHandleCB(fn HandleCB, h Handle, persist bool) {
	s.handleMu.Lock()
	s.handles[h] = handleEntry{fn: fn, persist: persist}
	s.handleMu.Unlock()
}

// removeHandleCB drops a handle's callback without invoking it. Used by
// CallWithDeadline and FetchModule on tear-down to avoid calling back into
// code that has already returned.
func (s *Stream) removeHandleCB(h Handle) {
	s.handleMu.Lock()
	delete(s.handles, h)
	s.handleMu.Unlock()
}

// registerCallable exposes fn as a locally-invocable call site, returning
// the ID a peer can reference in a FuncRef to call it. Nothing in this
// package calls it or implements internal/wire.Callable, and no incoming
// FuncRef is resolved against this table.
func (s *Stream) registerCallable(fn func(args []interface{}) (interface{}, error)) uint64 {
	id := s.lastCall.Add(1)
	s.callSiteMu.Lock()
	s.callSites[id] = fn
	s.callSiteMu.Unlock()
	return id
}

func (s *Stream) callSite(id uint64) (func(args []interface{}) (interface{}, error), bool) {
	s.callSiteMu.Lock()
	fn, ok := s.callSites[id]
	s.callSiteMu.Unlock()
	return fn, ok
}

// AllowType permits this stream's marshaller to decode values of the given
// (zero-valued) user-defined type. See internal/wire for the allow-list
// semantics.
func (s *Stream) AllowType(zero interface{}) { s.marsh.AllowType(zero) }

// Enqueue marshals v, frames it for handle h, and appends it to the output
// buffer. Safe to call from any goroutine; it frames and appends under the
// output-buffer lock and asks the broker to watch this stream's FD for writability —
// the broker goroutine performs the actual write.
func (s *Stream) Enqueue(h Handle, v interface{}) error {
	body, err := s.marsh.Marshal(v)
	if err != nil {
		return err
	}
	// Encoding advances the rolling write MAC, so it must happen under the
	// same lock as the append: frames reach the buffer in MAC-chain order.
	s.outMu.Lock()
	payload := s.macCodec.Encode(encodeEnvelope(h, body))
	s.out = append(s.out, payload...)
	s.outMu.Unlock()

	if s.log != nil {
		s.log.TraceFrame("out", h, body)
	}
	if s.broker != nil {
		s.broker.notifyWritable(s)
	}
	return nil
}

// Receive feeds newly-read bytes into the framer and dispatches every
// fully-buffered frame. Called only by the broker loop.
func (s *Stream) Receive(data []byte) error {
	s.decoder.Feed(data)
	for {
		payload, ok, err := s.decoder.Next()
		if err != nil {
			return &CorruptFrameError{Context: s.contextName, Reason: err.Error()}
		}
		if !ok {
			return nil
		}
		h, body, err := decodeEnvelope(payload)
		if err != nil {
			return &CorruptFrameError{Context: s.contextName, Reason: err.Error()}
		}
		if s.log != nil {
			s.log.TraceFrame("in", h, body)
		}
		if err := s.dispatch(h, body); err != nil {
			return err
		}
	}
}

func (s *Stream) dispatch(h Handle, body []byte) error {
	s.handleMu.Lock()
	entry, ok := s.handles[h]
	if ok && !entry.persist {
		delete(s.handles, h)
	}
	s.handleMu.Unlock()

	if !ok {
		return &CorruptFrameError{Context: s.contextName, Reason: "unknown handle"}
	}
	entry.fn(false, body)
	return nil
}

// Transmit writes up to one bounded chunk from the output buffer. Called
// only by the broker loop. The returned bool reports whether bytes remain
// buffered after the write.
func (s *Stream) Transmit() (bool, error) {
	const chunkSize = 1 << 16

	s.outMu.Lock()
	n := len(s.out)
	if n > chunkSize {
		n = chunkSize
	}
	chunk := s.out[:n]
	s.outMu.Unlock()

	if len(chunk) == 0 {
		return false, nil
	}

	written, err := s.conn.Write(chunk)
	if err != nil {
		return false, err
	}

	s.outMu.Lock()
	s.out = s.out[written:]
	remaining := len(s.out) > 0
	s.outMu.Unlock()
	return remaining, nil
}

// Disconnect closes the FD and invokes every live handle's callback with
// closed=true, exactly once, then marks the stream terminally dead.
// Idempotent.
func (s *Stream) Disconnect() {
	s.once.Do(func() {
		s.state.Store(int32(StateDisconnected))
		_ = s.conn.Close()

		s.handleMu.Lock()
		handles := s.handles
		s.handles = map[Handle]handleEntry{}
		s.handleMu.Unlock()

		for _, entry := range handles {
			entry.fn(true, nil)
		}
		close(s.done)
	})
}

// Done returns a channel that closes once the stream has disconnected.
func (s *Stream) Done() <-chan struct{} { return s.done }
