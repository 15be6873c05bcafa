package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/seqlab/beamrun/internal/broker"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
}

// RunListing is one run row in JSON output.
type RunListing struct {
	RunID      string `json:"run_id"`
	Plan       string `json:"plan"`
	Start      string `json:"start"`
	ExitStatus string `json:"exit_status,omitempty"`
	Events     int64  `json:"events"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Long: `List every run in the run log in start order, with plan name,
start time, exit status, and event count. Runs without a run_stop are
shown with an "open" status.

Examples:
  beamrun runs --db ./runs.db
  beamrun runs --db ./runs.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run log (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runList(opts *RunsOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	b, err := broker.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open run log", err)
	}
	defer b.Close()

	runs, err := b.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		listings := make([]RunListing, 0, len(runs))
		for _, r := range runs {
			listings = append(listings, RunListing{
				RunID:      r.RunID,
				Plan:       r.PlanName,
				Start:      r.Start.UTC().Format(time.RFC3339),
				ExitStatus: string(r.ExitStatus),
				Events:     r.NumEvents,
			})
		}
		return formatter.Success(listings)
	}

	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tPLAN\tSTART\tSTATUS\tEVENTS")
	for _, r := range runs {
		status := string(r.ExitStatus)
		if status == "" {
			status = "open"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			r.RunID, r.PlanName, r.Start.UTC().Format(time.RFC3339), status, r.NumEvents)
	}
	return w.Flush()
}
