package bootstrap

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"

	"github.com/rexecio/rexec/internal/rlog"
	"github.com/rexecio/rexec/internal/wire"
	"github.com/rexecio/rexec/pkg/rexec"
)

// ack is the exact bytes stage-one writes once it has read its stdin
// payload, per spec.md §6.
var ack = []byte("OK\n")

// LocalLauncher spawns stage-one as a child process and wires its stdin/
// stdout directly into the resulting Context's Stream — no dial-back to the
// Broker's listen socket is needed, since the exec'd child keeps the same
// descriptors after stage-one execs the real remote interpreter.
type LocalLauncher struct {
	// Stage1Path is the path to the pre-built cmd/rexec-stage1 binary.
	Stage1Path string
	Codec      wire.Codec
	Log        *rlog.Logger
}

// Launch spawns stage-one, ships it the bootstrap payload for a context
// named name, waits for its ack, and registers the resulting Context with
// broker.
func (l *LocalLauncher) Launch(broker *rexec.Broker, name string) (*rexec.Context, error) {
	key, err := rexec.NewKey()
	if err != nil {
		return nil, err
	}
	ctx := &rexec.Context{Name: name, Key: key}

	cmd := exec.Command(l.Stage1Path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("bootstrap: starting stage-one: %w", err)
	}

	payload, err := Encode(Payload{ContextName: name, KeyHex: ctx.KeyHex()})
	if err != nil {
		return nil, err
	}
	if err := WriteFramed(stdin, payload); err != nil {
		return nil, fmt.Errorf("bootstrap: writing payload: %w", err)
	}

	got := make([]byte, len(ack))
	if _, err := io.ReadFull(stdout, got); err != nil {
		return nil, fmt.Errorf("bootstrap: waiting for ack: %w", err)
	}
	if !bytes.Equal(got, ack) {
		return nil, fmt.Errorf("bootstrap: unexpected ack %q", got)
	}

	conn := newPipeConn(stdout, stdin)
	stream := rexec.NewStream(conn, key, l.Codec)
	ctx.BindStream(broker, stream, l.Log)
	return ctx, nil
}
