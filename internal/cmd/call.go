package cmd

import (
	"github.com/spf13/cobra"

	"github.com/walther/conveyor/internal/models"
)

// NewCallCommand creates the call command
func NewCallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <workflow-file>",
		Short: "Run a workflow with a workflow_call event",
		Long: `Run a workflow by firing a workflow_call event at it, the way an
external caller would invoke a reusable workflow.

The workflow must declare workflow_call in its 'on' block. Execution,
flags and reporting behave exactly like the run command; only the
event type differs.

Examples:
  conveyor call .conveyor/workflows/ci.yaml
  conveyor call --event-payload caller.json ci.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, args[0], models.EventWorkflowCall)
		},
	}
	addRunFlags(cmd)
	return cmd
}
