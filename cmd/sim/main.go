// Command sim is a setuid-root wrapper: it validates the invoker, obtains
// multi-party approval for anything not on the safe list, then execs the
// target command as root.
//
// Usage: sim <command> [args...]
//
// Exit codes: 0 only on execve success (never observed by this process
// itself — see internal/execstage). Any failure prints a single
// "sim: <message>" line to stderr and exits 1.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/localauth/sim/internal/config"
	"github.com/localauth/sim/internal/credgate"
	"github.com/localauth/sim/internal/invocation"
	"github.com/localauth/sim/internal/metrics"
	"github.com/localauth/sim/internal/orchestrator"
)

func main() {
	// DisableFlagParsing: sim's own argv is exactly "sim <command> [args...]".
	// cobra must never try to interpret the target command's flags as its
	// own — that reinterpretation would corrupt the argv execstage finally
	// execs.
	root := &cobra.Command{
		Use:                "sim <command> [args...]",
		Short:              "Run a privileged command under multi-party approval",
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Args:               cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1:])
		},
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sim: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	// Drop effective privilege to the real UID before doing anything else.
	// Everything downstream runs at invoker privilege except the narrow
	// Credential Gate brackets.
	savedEUID, err := credgate.DropToReal()
	if err != nil {
		return err
	}

	log, err := buildLogger()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	inv, err := invocation.New(command, args, uint32(os.Getuid()), uint32(os.Getgid()), savedEUID)
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		return err
	}

	m := metrics.New()
	if err := orchestrator.Run(cfg, inv, m, log, orchestrator.DefaultDeps()); err != nil {
		return err
	}
	// Unreachable on success: Deps.Exec replaces the process image.
	return nil
}

// buildLogger constructs sim's zap.Logger: JSON production config, since
// sim's stderr contract to the invoker is a single plain diagnostic line,
// not structured log output — structured logs go to zap's default sink
// (stderr is still fine for an operator piping to journald, since sim never
// writes more than the one diagnostic line on the success path it returns
// from).
func buildLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	return cfg.Build()
}
