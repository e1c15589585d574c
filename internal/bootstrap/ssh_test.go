package bootstrap

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/rexecio/rexec/internal/wire"
	"github.com/rexecio/rexec/pkg/rexec"
)

// fakeSession stands in for an *ssh.Session so the argv/payload/ack
// plumbing can be tested without dialing a real SSH host. Actually
// reaching an unreachable host and observing dial-timeout behaviour (the
// S6 scenario) is an integration concern exercised manually, not here.
type fakeSession struct {
	startedCmd string
	toChild    *bytes.Buffer
	fromChild  *bytes.Buffer
}

func newFakeSession() *fakeSession {
	return &fakeSession{toChild: &bytes.Buffer{}, fromChild: &bytes.Buffer{}}
}

func (f *fakeSession) StdinPipe() (io.WriteCloser, error) {
	return nopWriteCloser{f.toChild}, nil
}

func (f *fakeSession) StdoutPipe() (io.Reader, error) {
	return f.fromChild, nil
}

func (f *fakeSession) Start(cmd string) error {
	f.startedCmd = cmd
	// Emulate stage-one: it will have read whatever gets written to
	// toChild and would ack once launchOverSession writes the payload, but
	// since Start happens before the payload write in this fake, queue the
	// ack immediately so the read in launchOverSession succeeds.
	f.fromChild.Write(ack)
	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestLaunchOverSessionRunsStage1AndBindsStream(t *testing.T) {
	session := newFakeSession()
	broker := rexec.NewBroker(nil)
	defer broker.Finalize()

	ctx, err := launchOverSession(broker, "worker-1", session, "/opt/rexec/rexec-stage1", wire.CodecNone, nil)
	if err != nil {
		t.Fatalf("launchOverSession: %v", err)
	}
	if session.startedCmd != "/opt/rexec/rexec-stage1" {
		t.Fatalf("stage-one path not passed to Start: got %q", session.startedCmd)
	}
	if ctx.Name != "worker-1" {
		t.Fatalf("context name = %q, want worker-1", ctx.Name)
	}
	if len(ctx.Key) != 16 {
		t.Fatalf("key length = %d, want 16", len(ctx.Key))
	}
	if ctx.Stream() == nil {
		t.Fatal("expected a bound stream")
	}

	payload, err := ReadFramed(bufio.NewReader(session.toChild))
	if err != nil {
		t.Fatalf("decoding payload stage-one would have received: %v", err)
	}
	decoded, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.ContextName != "worker-1" {
		t.Fatalf("payload context name = %q, want worker-1", decoded.ContextName)
	}
	if decoded.KeyHex != ctx.KeyHex() {
		t.Fatalf("payload key hex = %q, want %q", decoded.KeyHex, ctx.KeyHex())
	}
}
