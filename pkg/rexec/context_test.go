package rexec

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/rexecio/rexec/internal/registry"
	"github.com/rexecio/rexec/internal/wire"
)

// pairedContexts wires two Contexts together over an in-memory net.Pipe,
// each owned by its own Broker, sharing a key — the same topology a
// bootstrapped local context ends up in, minus the subprocess.
func pairedContexts(t *testing.T) (client, server *Context, cleanup func()) {
	t.Helper()
	key := []byte("0123456789abcdef")
	clientConn, serverConn := net.Pipe()

	clientBroker := NewBroker(nil)
	serverBroker := NewBroker(nil)

	client = &Context{Name: "server"}
	client.bindStream(clientBroker, newStream(clientConn, key, wire.CodecNone, nil), nil)

	server = &Context{Name: "client"}
	server.bindStream(serverBroker, newStream(serverConn, key, wire.CodecNone, nil), nil)

	return client, server, func() {
		clientBroker.Finalize()
		serverBroker.Finalize()
	}
}

func TestCallRoundTripsThroughRegistry(t *testing.T) {
	client, server, cleanup := pairedContexts(t)
	defer cleanup()

	reg := registry.New()
	reg.Register("builtin", "echo", func(args []interface{}) (interface{}, error) {
		return args[0], nil
	})
	server.ServeCalls(reg, nil)

	result, err := client.Call("builtin", "echo", "ping")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != "ping" {
		t.Fatalf("result = %v, want ping", result)
	}
}

func TestConcurrentCallsEachGetTheirOwnReply(t *testing.T) {
	client, server, cleanup := pairedContexts(t)
	defer cleanup()

	reg := registry.New()
	reg.Register("builtin", "echo", func(args []interface{}) (interface{}, error) {
		return args[0], nil
	})
	server.ServeCalls(reg, nil)

	const n = 8
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			v, err := client.Call("builtin", "echo", i)
			if err != nil {
				results <- err
				return
			}
			if v != i {
				results <- fmt.Errorf("call %d: got %v", i, v)
				return
			}
			results <- nil
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-results; err != nil {
			t.Error(err)
		}
	}
}

func TestCallWithDeadlineExpiresAndDisconnects(t *testing.T) {
	client, server, cleanup := pairedContexts(t)
	defer cleanup()

	reg := registry.New()
	reg.Register("builtin", "time.sleep", func(args []interface{}) (interface{}, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	})
	server.ServeCalls(reg, nil)

	_, err := client.CallWithDeadline(time.Now().Add(20*time.Millisecond), "builtin", "time.sleep", 0.2)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("error = %T, want *TimeoutError", err)
	}
	if client.Stream().State() != StateDisconnected {
		t.Fatal("expired call must disconnect its stream")
	}
}

func TestCallAgainstUnknownFunctionReturnsRemoteError(t *testing.T) {
	client, server, cleanup := pairedContexts(t)
	defer cleanup()

	server.ServeCalls(registry.New(), nil)

	_, err := client.Call("builtin", "does.not.exist")
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*RemoteError); !ok {
		t.Fatalf("error = %T, want *RemoteError", err)
	}
}

