// Command rexec-stage1 is the pre-built helper a launcher execs as the
// child's entire argv[0]. It performs the one job spec.md's bootstrap
// contract requires of "the first thing that runs in the child": read a
// length-prefixed payload off stdin, ack it, then get out of the way by
// exec'ing the real remote interpreter on the same descriptors.
//
// Go has no scripted "-c" invocation to inline this logic into the
// launcher's argv the way a one-line interpreter script can; a tiny
// compiled binary is the idiomatic substitute.
package main

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/rexecio/rexec/internal/bootstrap"
)

// remoteInterpreterEnv carries the still-compressed bootstrap payload,
// base64-encoded, to
// cmd/rexec-remote, which has no stdin left to read it from once this
// process has exec'd over itself.
const remoteInterpreterEnv = "REXEC_BOOTSTRAP_PAYLOAD"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "rexec-stage1:", err)
		os.Exit(1)
	}
}

func run() error {
	payload, err := bootstrap.ReadFramed(bufio.NewReader(os.Stdin))
	if err != nil {
		return fmt.Errorf("reading bootstrap payload: %w", err)
	}

	if _, err := os.Stdout.Write([]byte("OK\n")); err != nil {
		return fmt.Errorf("acking payload: %w", err)
	}

	remotePath, err := findRemoteInterpreter()
	if err != nil {
		return err
	}

	env := append(os.Environ(), remoteInterpreterEnv+"="+base64.StdEncoding.EncodeToString(payload))
	return syscall.Exec(remotePath, []string{remotePath}, env)
}

// findRemoteInterpreter locates cmd/rexec-remote's binary next to this
// one, since both are shipped together by whatever packages a launcher's
// Stage1Path.
func findRemoteInterpreter() (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating self: %w", err)
	}
	path := filepath.Join(filepath.Dir(self), "rexec-remote")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("locating rexec-remote next to %s: %w", self, err)
	}
	return path, nil
}
