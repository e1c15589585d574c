package builtins

import (
	"os"
	"testing"
	"time"

	"github.com/rexecio/rexec/internal/registry"
)

func TestRegisterInstallsAllBuiltins(t *testing.T) {
	r := registry.New()
	Register(r)

	for _, name := range []string{"os.getpid", "os.hostname", "time.sleep", "echo"} {
		if _, err := r.Lookup("builtin", name); err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
	}

	pid, err := call(t, r, "os.getpid")
	if err != nil {
		t.Fatalf("os.getpid: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("got %v, want %d", pid, os.Getpid())
	}

	host, err := call(t, r, "os.hostname")
	if err != nil {
		t.Fatalf("os.hostname: %v", err)
	}
	want, _ := os.Hostname()
	if host != want {
		t.Fatalf("got %v, want %v", host, want)
	}
}

func TestSleepBlocksForRequestedDuration(t *testing.T) {
	r := registry.New()
	Register(r)
	fn, err := r.Lookup("builtin", "time.sleep")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	start := time.Now()
	if _, err := fn([]interface{}{0.05}); err != nil {
		t.Fatalf("time.sleep: %v", err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("time.sleep returned too early")
	}
}

func TestEchoReturnsItsArgument(t *testing.T) {
	r := registry.New()
	Register(r)
	got, err := call(t, r, "echo", "hi")
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	if got != "hi" {
		t.Fatalf("got %v, want hi", got)
	}
}

func call(t *testing.T, r *registry.Registry, name string, args ...interface{}) (interface{}, error) {
	t.Helper()
	fn, err := r.Lookup("builtin", name)
	if err != nil {
		return nil, err
	}
	return fn(args)
}
