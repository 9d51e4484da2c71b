package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/walther/conveyor/internal/actions"
	"github.com/walther/conveyor/internal/config"
	"github.com/walther/conveyor/internal/display"
	"github.com/walther/conveyor/internal/executor"
	"github.com/walther/conveyor/internal/parser"
	"github.com/walther/conveyor/internal/runtimes"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [workflow-file...]",
		Short: "Validate one or more workflow files",
		Long: `Parse and validate workflow files, checking for:
  - YAML structure and required fields
  - Declared triggers and non-empty job steps
  - uses: steps referencing known builtin actions
  - Matrix references resolving to declared dimensions (warnings)

Without arguments, every workflow under .conveyor/workflows in the
project is validated.

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateWorkflows(args, cmd.OutOrStdout())
		},
	}
	return cmd
}

// validateWorkflows validates each file and reports a ✓/✗ line per
// workflow plus lint warnings for the ones that parse.
func validateWorkflows(paths []string, out io.Writer) error {
	if len(paths) == 0 {
		projectDir, err := config.FindProjectRoot(".")
		if err != nil {
			return fmt.Errorf("failed to locate project root: %w", err)
		}
		dir := filepath.Join(projectDir, ".conveyor", "workflows")
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return fmt.Errorf("no workflow files found under %s", dir)
		}
		files, err := display.FindWorkflowFiles(dir)
		if err != nil {
			return fmt.Errorf("failed to discover workflows: %w", err)
		}
		if len(files) == 0 {
			return fmt.Errorf("no workflow files found under %s", dir)
		}
		paths = files
	}

	colorize := display.ColorOutput(os.Stdout)
	registry := actions.NewRegistry(runtimes.NewFinder(nil))

	progress := display.NewValidationProgress(out, len(paths), colorize)
	progress.Start()

	for _, path := range paths {
		wf, err := parser.ParseFile(path)
		if err != nil {
			progress.Fail(path, err)
			continue
		}
		if err := executor.ValidateActions(wf, registry); err != nil {
			progress.Fail(path, err)
			continue
		}
		progress.Pass(path)

		if problems := parser.LintWorkflow(wf); len(problems) > 0 {
			display.Warning{
				Title: fmt.Sprintf("%s has %d lint warning(s)", filepath.Base(path), len(problems)),
				Files: problems,
				Hint:  "lint warnings do not block execution",
			}.Render(out, colorize)
		}
	}

	if !progress.Complete() {
		failed := len(paths) - progress.Passed()
		return fmt.Errorf("validation failed for %d workflow(s)", failed)
	}
	return nil
}
