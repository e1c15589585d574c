// Command rexec-remote is what cmd/rexec-stage1 execs into: it reads the
// bootstrap payload stage-one handed it over the environment, builds a
// "parent" Context on the inherited stdio descriptors, and serves
// (module, func) calls and module-source requests until the stream dies.
package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/rexecio/rexec/internal/bootstrap"
	"github.com/rexecio/rexec/internal/registry"
	"github.com/rexecio/rexec/internal/registry/builtins"
	"github.com/rexecio/rexec/internal/rlog"
	"github.com/rexecio/rexec/internal/wire"
	"github.com/rexecio/rexec/pkg/rexec"
)

const remoteInterpreterEnv = "REXEC_BOOTSTRAP_PAYLOAD"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "rexec-remote:", err)
		os.Exit(1)
	}
}

func run() error {
	encoded := os.Getenv(remoteInterpreterEnv)
	if encoded == "" {
		return fmt.Errorf("missing %s; rexec-remote must be exec'd by rexec-stage1", remoteInterpreterEnv)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", remoteInterpreterEnv, err)
	}
	payload, err := bootstrap.Decode(raw)
	if err != nil {
		return fmt.Errorf("decoding bootstrap payload: %w", err)
	}
	key, err := hex.DecodeString(payload.KeyHex)
	if err != nil {
		return fmt.Errorf("decoding shared key: %w", err)
	}

	log, err := rlog.New(rlog.Config{Level: payload.LogLevel})
	if err != nil {
		return fmt.Errorf("starting logger: %w", err)
	}

	broker := rexec.NewBroker(log)
	defer broker.Finalize()

	parent := &rexec.Context{Name: "parent", Key: key, ParentAddr: payload.ParentAddr}
	stream := rexec.NewStream(bootstrap.NewStdioConn(), key, wire.CodecSnappy)
	parent.BindStream(broker, stream, log)

	reg := registry.New()
	builtins.Register(reg)
	parent.ServeCalls(reg, nil)
	parent.ServeModules(func(string) ([]byte, bool) { return nil, false })

	<-stream.Done()
	return nil
}
