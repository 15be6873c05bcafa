package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seqlab/beamrun/internal/planfile"
)

// ValidationResult holds plan file validation results.
type ValidationResult struct {
	File  string `json:"file"`
	Valid bool   `json:"valid"`
	Plan  string `json:"plan,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan-file>",
		Short: "Validate a plan file without executing it",
		Long: `Validate a YAML plan file against the plan schema and resolve its
device names against the simulated catalog, without moving anything.

Exit codes:
  0 - Plan file is valid
  1 - Plan file is invalid
  2 - Command error (file not readable)

Examples:
  beamrun validate plans/scan.yaml
  beamrun validate plans/overnight.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, planPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	def, err := planfile.Load(planPath)
	if err != nil {
		var verr *planfile.ValidationError
		if errors.As(err, &verr) {
			return outputInvalid(formatter, opts, planPath, verr.Details)
		}
		return WrapExitError(ExitCommandError, "failed to read plan file", err)
	}

	// Resolve device names so a typo fails here, not mid-run.
	p, err := planfile.Build(def, planfile.SimCatalog())
	if err != nil {
		return outputInvalid(formatter, opts, planPath, err.Error())
	}

	if opts.Format == "json" {
		return formatter.Success(ValidationResult{File: planPath, Valid: true, Plan: p.Name()})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%s)\n", planPath, p.Name())
	return nil
}

func outputInvalid(formatter *OutputFormatter, opts *RootOptions, planPath, details string) error {
	if opts.Format == "json" {
		_ = formatter.Error(fmt.Sprintf("%s: invalid plan file", planPath), details)
	} else {
		fmt.Fprintf(formatter.Writer, "%s: invalid plan file\n%s\n", planPath, details)
	}
	return NewExitError(ExitFailure, "plan file validation failed")
}
