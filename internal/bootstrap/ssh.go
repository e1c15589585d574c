package bootstrap

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"

	"github.com/rexecio/rexec/internal/rlog"
	"github.com/rexecio/rexec/internal/wire"
	"github.com/rexecio/rexec/pkg/rexec"
)

// sshSession is the subset of *ssh.Session this package depends on, so
// tests can substitute a fake without dialing a real host.
type sshSession interface {
	StdinPipe() (io.WriteCloser, error)
	StdoutPipe() (io.Reader, error)
	Start(cmd string) error
}

// SSHLauncher bootstraps a remote context over a real SSH session rather
// than shelling out to an `ssh` binary. Host key verification and auth are
// entirely the caller's concern via the ssh.ClientConfig used to dial
// Client — this type only drives the
// session once a *ssh.Client exists.
type SSHLauncher struct {
	Client     *ssh.Client
	Stage1Path string
	Codec      wire.Codec
	Log        *rlog.Logger
}

// Launch opens a session on l.Client, starts the stage-one binary as its
// remote command, ships it the bootstrap payload, and wires the session's
// stdin/stdout into the resulting Context's Stream.
func (l *SSHLauncher) Launch(broker *rexec.Broker, name string) (*rexec.Context, error) {
	session, err := l.Client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: opening ssh session: %w", err)
	}
	return launchOverSession(broker, name, session, l.Stage1Path, l.Codec, l.Log)
}

func launchOverSession(broker *rexec.Broker, name string, session sshSession, stage1Path string, codec wire.Codec, log *rlog.Logger) (*rexec.Context, error) {
	key, err := rexec.NewKey()
	if err != nil {
		return nil, err
	}
	ctx := &rexec.Context{Name: name, Key: key}

	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: stdout pipe: %w", err)
	}
	if err := session.Start(stage1Path); err != nil {
		return nil, fmt.Errorf("bootstrap: starting remote stage-one: %w", err)
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

	conn := newPipeConn(io.NopCloser(stdout), stdin)
	stream := rexec.NewStream(conn, key, codec)
	ctx.BindStream(broker, stream, log)
	return ctx, nil
}
