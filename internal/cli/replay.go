package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seqlab/beamrun/internal/broker"
	"github.com/seqlab/beamrun/internal/document"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// ReplayResult holds the replay result for one run.
type ReplayResult struct {
	RunID      string `json:"run_id"`
	Documents  int    `json:"documents"`
	Events     int    `json:"events"`
	ExitStatus string `json:"exit_status,omitempty"`
	Complete   bool   `json:"complete"`
	Valid      bool   `json:"valid"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded run and verify its document stream",
		Long: `Replay a recorded run from the run log, re-checking the stream
invariants (run_start first, ordered seq_nums, descriptors before their
events, at most one run_stop).

A run without a run_stop is reported as incomplete but still valid: the
log is append-only and a crash mid-run legitimately truncates the stream.

Exit codes:
  0 - Stream replayed and verified
  1 - Stream violates an ordering invariant
  2 - Command error (database not found, unknown run id)

Examples:
  beamrun replay --db ./runs.db
  beamrun replay --db ./runs.db --run 0195fe1a-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to replay (default: most recent)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	b, err := broker.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open run log", err)
	}
	defer b.Close()

	runID := opts.RunID
	if runID == "" {
		runID, err = b.LastRun(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "no runs recorded", err)
		}
	}

	docs, err := b.ReplayRun(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay run", err)
	}

	result := ReplayResult{
		RunID:     runID,
		Documents: len(docs),
	}
	for _, doc := range docs {
		switch d := doc.(type) {
		case *document.Event:
			result.Events++
		case *document.RunStop:
			result.Complete = true
			result.ExitStatus = string(d.ExitStatus)
		}
	}

	if err := document.ValidateStream(docs); err != nil {
		_ = formatter.Error(fmt.Sprintf("run %s stream invalid", runID), err.Error())
		return NewExitError(ExitFailure, "stream verification failed")
	}
	result.Valid = true

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d documents, %d events", runID, result.Documents, result.Events)
	if result.Complete {
		fmt.Fprintf(cmd.OutOrStdout(), ", exit %s\n", result.ExitStatus)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), ", incomplete (no run_stop)\n")
	}
	return nil
}
