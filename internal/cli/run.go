package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seqlab/beamrun/internal/broker"
	"github.com/seqlab/beamrun/internal/engine"
	"github.com/seqlab/beamrun/internal/planfile"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	MaxSteps int
}

// RunResult is the payload reported after a run.
type RunResult struct {
	RunID    string `json:"run_id"`
	Plan     string `json:"plan"`
	Database string `json:"database"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <plan-file>",
		Short: "Execute a plan file against the simulated beamline",
		Long: `Execute a YAML plan file against the simulated device catalog and
record the document stream in a SQLite run log.

The first interrupt (Ctrl-C) aborts the run cleanly: outstanding device
operations are canceled, staged devices are unstaged, and the run is
sealed with exit status "abort".

Exit codes:
  0 - Run completed successfully
  1 - Run failed or was aborted
  2 - Command error (bad plan file, database not writable, etc.)

Examples:
  beamrun run --db ./runs.db plans/scan.yaml
  beamrun run --db ./runs.db plans/overnight.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", engine.DefaultMaxSteps, "instruction quota per run (0 disables)")

	return cmd
}

func runPlan(opts *RunOptions, planPath string, cmd *cobra.Command) error {
	setupLogging(opts.RootOptions)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	def, err := planfile.Load(planPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load plan file", err)
	}

	catalog := planfile.SimCatalog()
	p, err := planfile.Build(def, catalog)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build plan", err)
	}
	formatter.VerboseLog("plan %s compiled against devices %v", p.Name(), catalog.Names())

	b, err := broker.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open run log", err)
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			slog.Error("error closing run log", "error", closeErr)
		}
	}()

	e := engine.New(engine.WithMaxSteps(opts.MaxSteps))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, aborting run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	runID, err := e.Run(ctx, p, b)
	if err != nil {
		if engine.IsAborted(err) {
			return WrapExitError(ExitFailure, fmt.Sprintf("run %s aborted", runID), err)
		}
		return WrapExitError(ExitFailure, "run failed", err)
	}

	return formatter.Success(RunResult{
		RunID:    runID,
		Plan:     p.Name(),
		Database: opts.Database,
	})
}

// setupLogging configures the process logger from the global flags.
func setupLogging(opts *RootOptions) {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
