package rexec

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/cpuid"

	"github.com/rexecio/rexec/internal/dline"
	"github.com/rexecio/rexec/internal/rlog"
)

type eventKind int

const (
	eventReadable eventKind = iota
	eventHangup
	eventWritable
)

type ioEvent struct {
	ctx  *Context
	kind eventKind
	data []byte
	err  error
}

// Broker is the process-singleton-by-convention event loop: it owns the
// name→Context map, the accept listener, and the single goroutine that is
// the only place any stream's FD is written to.
//
// Portability note: a literal select(2)/poll(2)-style "one thread
// multiplexes every raw FD" loop needs OS-specific syscalls this module
// doesn't depend on. Instead, each registered Stream gets a dedicated
// reader goroutine that does nothing but block on conn.Read and forward
// raw bytes to Broker.Loop over a channel; Loop remains the single place
// frame decoding, MAC verification, dispatch, and every write happen —
// which is what the spec's invariants (ordering, single-threaded handle
// dispatch, exclusive writer) actually depend on. See DESIGN.md.
type Broker struct {
	mu       sync.Mutex
	contexts map[string]*Context

	listener net.Listener
	events   chan ioEvent
	stop     chan struct{}
	dead     atomic.Bool

	deadlines *dline.Set
	log       *rlog.ScopedLogger
}

// NewBroker constructs a Broker and starts its loop goroutine. log may be
// nil, in which case a no-op logger is used.
func NewBroker(log *rlog.Logger) *Broker {
	if log == nil {
		log = rlog.Noop()
	}
	b := &Broker{
		contexts:  map[string]*Context{},
		events:    make(chan ioEvent, 256),
		stop:      make(chan struct{}),
		deadlines: dline.New(),
		log:       log.For("broker"),
	}
	logCPU(b.log)
	go b.loop()
	return b
}

func logCPU(log *rlog.ScopedLogger) {
	log.Info("broker starting",
		"cpu_brand", cpuid.CPU.BrandName,
		"physical_cores", cpuid.CPU.PhysicalCores,
		"logical_cores", cpuid.CPU.LogicalCores,
	)
}

// Listen starts accepting inbound connections on an ephemeral TCP port,
// bound to 0.0.0.0 as spec.md §6 requires, and returns the address
// children should be told to connect back to.
func (b *Broker) Listen() (string, error) {
	ln, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		return "", fmt.Errorf("rexec: listen: %w", err)
	}
	b.listener = ln
	go b.acceptLoop()
	return ln.Addr().String(), nil
}

func (b *Broker) acceptLoop() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}
		ctx := newPassiveContext(b, conn)
		b.Register(ctx)
	}
}

// Register puts ctx under this broker's control: it is added to the
// name→Context map and a reader goroutine is started for its stream. The
// Context must already have a Stream.
func (b *Broker) Register(ctx *Context) {
	if b.dead.Load() {
		return
	}
	b.mu.Lock()
	b.contexts[ctx.Name] = ctx
	b.mu.Unlock()
	ctx.stream.contextName = ctx.Name
	ctx.stream.broker = b
	ctx.stream.state.Store(int32(StateConnected))
	go b.readerLoop(ctx)
}

func (b *Broker) unregister(ctx *Context) {
	b.mu.Lock()
	delete(b.contexts, ctx.Name)
	b.mu.Unlock()
}

// Lookup returns the named Context, if registered.
func (b *Broker) Lookup(name string) (*Context, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ctx, ok := b.contexts[name]
	return ctx, ok
}

func (b *Broker) readerLoop(ctx *Context) {
	buf := make([]byte, 1<<16)
	for {
		n, err := ctx.stream.conn.Read(buf)
		if err != nil {
			b.postEvent(ioEvent{ctx: ctx, kind: eventHangup, err: err})
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		b.postEvent(ioEvent{ctx: ctx, kind: eventReadable, data: data})
	}
}

// notifyWritable is called by Stream.Enqueue, potentially from any
// goroutine, to ask the loop to drain the stream's output buffer.
func (b *Broker) notifyWritable(s *Stream) {
	b.mu.Lock()
	ctx, ok := b.contextForStream(s)
	b.mu.Unlock()
	if !ok {
		return
	}
	b.postEvent(ioEvent{ctx: ctx, kind: eventWritable})
}

func (b *Broker) contextForStream(s *Stream) (*Context, bool) {
	for _, ctx := range b.contexts {
		if ctx.stream == s {
			return ctx, true
		}
	}
	return nil, false
}

// postEvent hands ev to loop. It blocks in place rather than spilling onto a
// fresh goroutine when b.events is full, so a single producer's successive
// calls (readerLoop reading one stream) can never race each other and arrive
// out of order — frame's rolling MAC can't tolerate reordered chunks.
func (b *Broker) postEvent(ev ioEvent) {
	if b.dead.Load() {
		return
	}
	select {
	case b.events <- ev:
	case <-b.stop:
	}
}

// loop is the single goroutine that ever calls Stream.Transmit or performs
// frame dispatch. It runs until Finalize closes stop.
func (b *Broker) loop() {
	for {
		select {
		case <-b.stop:
			return
		case ev := <-b.events:
			b.handleEvent(ev)
		}
	}
}

func (b *Broker) handleEvent(ev ioEvent) {
	switch ev.kind {
	case eventHangup:
		b.disconnect(ev.ctx)

	case eventReadable:
		if err := ev.ctx.stream.Receive(ev.data); err != nil {
			b.log.Warn("stream error, disconnecting", "context", ev.ctx.Name, "err", err)
			b.disconnect(ev.ctx)
		}

	case eventWritable:
		remaining, err := ev.ctx.stream.Transmit()
		if err != nil {
			b.log.Warn("write error, disconnecting", "context", ev.ctx.Name, "err", err)
			b.disconnect(ev.ctx)
			return
		}
		if remaining {
			b.postEvent(ioEvent{ctx: ev.ctx, kind: eventWritable})
		}
	}
}

func (b *Broker) disconnect(ctx *Context) {
	ctx.stream.Disconnect()
	b.unregister(ctx)
}

// trackDeadline/untrackDeadline feed the broker's diagnostic
// nearest-deadline tracking; see internal/dline.
func (b *Broker) trackDeadline(label string, deadline time.Time) uint64 {
	return b.deadlines.Track(label, deadline)
}

func (b *Broker) untrackDeadline(token uint64) {
	b.deadlines.Untrack(token)
}

// Stats reports the broker's current load, for diagnostics/metrics.
type Stats struct {
	Contexts int
	dline.Stats
}

func (b *Broker) Stats() Stats {
	b.mu.Lock()
	n := len(b.contexts)
	b.mu.Unlock()
	return Stats{Contexts: n, Stats: b.deadlines.Snapshot()}
}

// Finalize disconnects every registered stream and stops the loop at its
// next iteration boundary. Idempotent.
func (b *Broker) Finalize() {
	if !b.dead.CompareAndSwap(false, true) {
		return
	}
	b.mu.Lock()
	ctxs := make([]*Context, 0, len(b.contexts))
	for _, c := range b.contexts {
		ctxs = append(ctxs, c)
	}
	b.mu.Unlock()

	for _, c := range ctxs {
		c.stream.Disconnect()
	}
	if b.listener != nil {
		_ = b.listener.Close()
	}
	close(b.stop)
}
