package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for conveyor
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conveyor",
		Short: "Matrix workflow runner",
		Long: `Conveyor runs YAML-defined workflows: each job expands its matrix
into branches that execute the job's steps in parallel, each in an
isolated workspace.

Workflows declare the events that may invoke them (workflow_call,
workflow_dispatch); the run and call commands fire those events.
Completed runs are recorded in a local history database and summarized
in a per-run report.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	// Add subcommands
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewCallCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
