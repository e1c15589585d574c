// Command rexecd is the controller-side demo entrypoint: it reads a list
// of contexts to bootstrap from a YAML config, spawns each one as a local
// subprocess, and issues a handful of builtin calls against them. A
// context with a host set is rejected with an error; rexecd does not dial
// SSH.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/rexecio/rexec/internal/bootstrap"
	"github.com/rexecio/rexec/internal/config"
	"github.com/rexecio/rexec/internal/rlog"
	"github.com/rexecio/rexec/internal/wire"
	"github.com/rexecio/rexec/pkg/rexec"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "rexecd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", "", "path to rexecd.yaml")
	stage1Override := pflag.String("stage1", "", "override the stage-one binary path from config")
	pflag.Parse()

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *stage1Override != "" {
		cfg.Stage1 = *stage1Override
	}

	log, err := rlog.New(rlog.Config{FilePath: cfg.LogFile, Level: cfg.LogLevel})
	if err != nil {
		return fmt.Errorf("starting logger: %w", err)
	}

	broker := rexec.NewBroker(log)
	defer broker.Finalize()

	launcher := &bootstrap.LocalLauncher{Stage1Path: cfg.Stage1, Codec: wire.CodecSnappy, Log: log}

	for _, spec := range cfg.Contexts {
		if spec.Host != "" {
			return fmt.Errorf("context %q: ssh bootstrap needs a dialed *ssh.Client; wire one up via bootstrap.SSHLauncher before running rexecd against remote hosts", spec.Name)
		}
		ctx, err := launcher.Launch(broker, spec.Name)
		if err != nil {
			return fmt.Errorf("bootstrapping %q: %w", spec.Name, err)
		}
		demo(ctx)
	}

	return nil
}

// demo exercises the builtin registry a bootstrapped remote interpreter
// ships with, so a fresh rexecd run has something observable to do.
func demo(ctx *rexec.Context) {
	pid, err := ctx.Call("builtin", "os.getpid")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: os.getpid: %v\n", ctx.Name, err)
		return
	}
	fmt.Printf("%s: pid=%v\n", ctx.Name, pid)

	echoed, err := ctx.CallWithDeadline(time.Now().Add(5*time.Second), "builtin", "echo", "hello from rexecd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: echo: %v\n", ctx.Name, err)
		return
	}
	fmt.Printf("%s: echo=%v\n", ctx.Name, echoed)
}
