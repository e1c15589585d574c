package rexec

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rexecio/rexec/internal/wire"
)

func pairedStreams(t *testing.T) (a, b *Stream, cleanup func()) {
	t.Helper()
	key := []byte("0123456789abcdef")
	connA, connB := net.Pipe()

	brokerA := NewBroker(nil)
	brokerB := NewBroker(nil)

	ctxA := &Context{Name: "b"}
	ctxA.bindStream(brokerA, newStream(connA, key, wire.CodecNone, nil), nil)
	ctxB := &Context{Name: "a"}
	ctxB.bindStream(brokerB, newStream(connB, key, wire.CodecNone, nil), nil)

	return ctxA.Stream(), ctxB.Stream(), func() {
		brokerA.Finalize()
		brokerB.Finalize()
	}
}

func TestChannelSendReceive(t *testing.T) {
	a, b, cleanup := pairedStreams(t)
	defer cleanup()

	const handle Handle = 50
	sender := NewChannel(a, handle)
	receiver := NewChannel(b, handle)

	if err := sender.Send("first"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := receiver.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if v != "first" {
		t.Fatalf("Receive = %v, want first", v)
	}
}

func TestChannelIteratorStopsOnClose(t *testing.T) {
	a, b, cleanup := pairedStreams(t)
	defer cleanup()

	const handle Handle = 51
	sender := NewChannel(a, handle)
	receiver := NewChannel(b, handle)

	var got []interface{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			v, ok := receiver.Next(ctx)
			cancel()
			if !ok {
				return
			}
			got = append(got, v)
		}
	}()

	sender.Send(1)
	sender.Send(2)
	sender.Send(3)
	sender.Close()
	<-done

	if len(got) != 3 {
		t.Fatalf("received %v, want 3 values", got)
	}

	// Once closed, every further call keeps returning not-ok rather than
	// blocking forever.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, ok := receiver.Next(ctx); ok {
		t.Fatal("expected closed channel to keep reporting !ok")
	}
}

func TestChannelClosesOnStreamDisconnect(t *testing.T) {
	a, b, cleanup := pairedStreams(t)
	defer cleanup()

	const handle Handle = 52
	receiver := NewChannel(b, handle)
	a.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := receiver.Receive(ctx); err != ErrChannelClosed {
		t.Fatalf("err = %v, want ErrChannelClosed", err)
	}
}
