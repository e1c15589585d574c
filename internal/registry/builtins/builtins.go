// Package builtins registers the handful of functions the testable-property
// scenarios in spec.md §8 exercise end to end: process identity, a
// parameterized sleep for the deadline-expiry scenario, and an echo for the
// concurrent-call scenario.
package builtins

import (
	"fmt"
	"os"
	"time"

	"github.com/rexecio/rexec/internal/registry"
)

// Register installs every builtin into r under the "builtin" module.
func Register(r *registry.Registry) {
	r.Register("builtin", "os.getpid", getpid)
	r.Register("builtin", "os.hostname", hostname)
	r.Register("builtin", "time.sleep", sleep)
	r.Register("builtin", "echo", echo)
}

func getpid(args []interface{}) (interface{}, error) {
	return os.Getpid(), nil
}

func hostname(args []interface{}) (interface{}, error) {
	return os.Hostname()
}

// sleep blocks for args[0] seconds (float64 or int), used by S2 to force a
// call past its deadline.
func sleep(args []interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("time.sleep: want 1 arg, got %d", len(args))
	}
	var seconds float64
	switch v := args[0].(type) {
	case float64:
		seconds = v
	case int:
		seconds = float64(v)
	default:
		return nil, fmt.Errorf("time.sleep: arg must be numeric, got %T", args[0])
	}
	time.Sleep(time.Duration(seconds * float64(time.Second)))
	return nil, nil
}

func echo(args []interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("echo: want 1 arg, got %d", len(args))
	}
	return args[0], nil
}
