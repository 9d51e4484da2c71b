package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/walther/conveyor/internal/actions"
	"github.com/walther/conveyor/internal/config"
	"github.com/walther/conveyor/internal/display"
	"github.com/walther/conveyor/internal/executor"
	"github.com/walther/conveyor/internal/history"
	"github.com/walther/conveyor/internal/logger"
	"github.com/walther/conveyor/internal/models"
	"github.com/walther/conveyor/internal/parser"
	"github.com/walther/conveyor/internal/report"
	"github.com/walther/conveyor/internal/runtimes"
	"github.com/walther/conveyor/internal/shell"
	"github.com/walther/conveyor/internal/workspace"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow-file>",
		Short: "Run a workflow with a workflow_dispatch event",
		Long: `Run a workflow by firing a workflow_dispatch event at it.

The workflow must declare workflow_dispatch in its 'on' block. Each
job's matrix expands into branches that run in parallel, each in its
own workspace under the runs directory.

Configuration is loaded from .conveyor/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  conveyor run .conveyor/workflows/ci.yaml
  conveyor run --dry-run ci.yaml              # Print the plan without executing
  conveyor run --matrix version=3.12 ci.yaml  # Only branches with version=3.12
  conveyor run --no-fail-fast ci.yaml         # Keep siblings running after a failure
  conveyor run --timeout 30m ci.yaml          # Cap the whole run
  conveyor run --event-payload input.json ci.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, args[0], models.EventWorkflowDispatch)
		},
	}
	addRunFlags(cmd)
	return cmd
}

// addRunFlags registers the flags shared by run and call.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to config file (default: .conveyor/config.yaml)")
	cmd.Flags().Bool("dry-run", false, "Print the branch plan without executing")
	cmd.Flags().String("event-payload", "", "JSON file attached to the event")
	cmd.Flags().String("timeout", "", "Whole-run time limit (e.g. 30m, 2h)")
	cmd.Flags().Int("max-parallel", 0, "Maximum concurrent branches per job (0 = one worker per branch)")
	cmd.Flags().Bool("fail-fast", false, "Cancel remaining branches after the first failure")
	cmd.Flags().Bool("no-fail-fast", false, "Keep running branches after a failure")
	cmd.Flags().StringArray("matrix", nil, "Run only branches matching dim=value (repeatable)")
	cmd.Flags().BoolP("verbose", "v", false, "Show step-level progress")
	cmd.Flags().String("log-dir", "", "Directory for run log files")
	cmd.Flags().Bool("keep-workspaces", false, "Keep every branch workspace on disk")
	cmd.Flags().Bool("no-history", false, "Skip recording this run in the history database")
}

// runWorkflow implements both event commands; only the fired event
// type differs between run and call.
func runWorkflow(cmd *cobra.Command, workflowPath string, eventType models.EventType) error {
	out := cmd.OutOrStdout()

	projectDir, err := config.FindProjectRoot(".")
	if err != nil {
		return fmt.Errorf("failed to locate project root: %w", err)
	}

	cfg, err := loadProjectConfig(cmd, projectDir)
	if err != nil {
		return err
	}

	// Build flag pointers for merge (only flags that were given)
	var timeoutPtr *time.Duration
	if cmd.Flags().Changed("timeout") {
		timeoutStr, _ := cmd.Flags().GetString("timeout")
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return fmt.Errorf("invalid timeout format %q: %w", timeoutStr, err)
		}
		timeoutPtr = &timeout
	}

	var maxParallelPtr *int
	if cmd.Flags().Changed("max-parallel") {
		maxParallel, _ := cmd.Flags().GetInt("max-parallel")
		maxParallelPtr = &maxParallel
	}

	var logLevelPtr *string
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		debug := "debug"
		logLevelPtr = &debug
	}

	var logDirPtr *string
	if cmd.Flags().Changed("log-dir") {
		logDir, _ := cmd.Flags().GetString("log-dir")
		logDirPtr = &logDir
	}

	var keepWorkspacesPtr *bool
	if cmd.Flags().Changed("keep-workspaces") {
		keepWorkspaces, _ := cmd.Flags().GetBool("keep-workspaces")
		keepWorkspacesPtr = &keepWorkspaces
	}

	var noHistoryPtr *bool
	if cmd.Flags().Changed("no-history") {
		noHistory, _ := cmd.Flags().GetBool("no-history")
		noHistoryPtr = &noHistory
	}

	// Merge CLI flags with config (flags take precedence)
	cfg.MergeWithFlags(timeoutPtr, maxParallelPtr, logLevelPtr, logDirPtr, keepWorkspacesPtr, noHistoryPtr)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	matrixPairs, _ := cmd.Flags().GetStringArray("matrix")
	matrixFilter, err := parseMatrixSelector(matrixPairs)
	if err != nil {
		return err
	}

	failFast, err := failFastFlag(cmd)
	if err != nil {
		return err
	}

	wf, err := parser.ParseFile(workflowPath)
	if err != nil {
		return err
	}

	event := models.NewEvent(eventType)
	if payloadPath, _ := cmd.Flags().GetString("event-payload"); payloadPath != "" {
		abs, err := filepath.Abs(payloadPath)
		if err != nil {
			return fmt.Errorf("failed to resolve event payload path: %w", err)
		}
		if err := event.LoadEventPayload(abs); err != nil {
			return err
		}
	}

	// Reject wrong triggers and unknown actions before touching the
	// runs directory, so a defective invocation leaves no run logs.
	if !wf.On.Supports(event.Type) {
		return fmt.Errorf("workflow %q declares [%s], not %s",
			wf.Name, strings.Join(wf.On.Names(), ", "), event.Type)
	}

	finder := runtimes.NewFinder(resolveAll(projectDir, cfg.ToolchainDirs))
	registry := actions.NewRegistry(finder)
	if err := executor.ValidateActions(wf, registry); err != nil {
		return err
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		printPlan(out, wf, event, matrixFilter)
		return nil
	}

	fileEnv, err := cfg.LoadEnvFiles(projectDir)
	if err != nil {
		return err
	}

	manager, err := workspace.NewManager(config.ResolvePath(projectDir, cfg.RunsDir))
	if err != nil {
		return err
	}
	manager.KeepAll = cfg.KeepWorkspaces
	manager.KeepFailed = cfg.KeepFailedWorkspaces

	consoleLog := logger.NewConsoleLogger(out, cfg.LogLevel)
	fileLog, err := logger.NewFileLogger(config.ResolvePath(projectDir, cfg.LogDir), cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer fileLog.Close()
	multiLog := logger.NewMulti(consoleLog, fileLog)

	stepExec := executor.NewStepExecutor(shell.NewSystemRunner(), registry, multiLog)
	stepExec.Shell = cfg.Shell
	stepExec.ProjectDir = projectDir
	stepExec.RunsDir = manager.RunsDir()
	stepExec.FileEnv = fileEnv

	jobExec := &executor.JobExecutor{
		Branches:   stepExec,
		Workspaces: manager,
		Logger:     multiLog,
	}
	orch := executor.NewOrchestrator(jobExec, manager, registry, multiLog)

	result, err := orch.Run(cmd.Context(), executor.RunRequest{
		Workflow:     wf,
		Event:        event,
		MatrixFilter: matrixFilter,
		FailFast:     failFast,
		MaxParallel:  cfg.MaxParallel,
		Timeout:      cfg.Timeout,
	})
	if err != nil {
		return err
	}

	colorize := display.ColorOutput(os.Stdout)
	warnTo := cmd.ErrOrStderr()

	if cfg.History.Enabled {
		recordHistory(cmd.Context(), cfg, projectDir, result, warnTo, colorize)
	}

	reportDir := manager.ReportDir(result.RunID)
	if err := report.Write(reportDir, result); err != nil {
		display.Warning{
			Title:   "Run report not written",
			Message: err.Error(),
		}.Render(warnTo, colorize)
	} else {
		fmt.Fprintf(out, "\nReport:  %s\n", filepath.Join(reportDir, "summary.md"))
	}
	fmt.Fprintf(out, "Run log: %s\n", fileLog.RunLogPath())

	if result.Status != models.StatusSuccess {
		return fmt.Errorf("run finished with status %s (%d/%d branches passed)",
			result.Status, result.Succeeded(), len(result.Branches))
	}
	return nil
}

// loadProjectConfig loads the config named by --config, or the project
// default when the flag is absent.
func loadProjectConfig(cmd *cobra.Command, projectDir string) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, nil
	}
	cfg, err := config.LoadConfigFromDir(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// parseMatrixSelector turns repeated dim=value flags into a selector map.
func parseMatrixSelector(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	selector := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		dim, value, ok := strings.Cut(pair, "=")
		if !ok || dim == "" || value == "" {
			return nil, fmt.Errorf("invalid matrix selector %q, expected dim=value", pair)
		}
		selector[dim] = value
	}
	return selector, nil
}

// failFastFlag resolves --fail-fast/--no-fail-fast into an override.
// Nil means neither was given and the workflow strategy decides.
func failFastFlag(cmd *cobra.Command) (*bool, error) {
	ffGiven := cmd.Flags().Changed("fail-fast")
	nffGiven := cmd.Flags().Changed("no-fail-fast")
	if ffGiven && nffGiven {
		return nil, fmt.Errorf("cannot use both --fail-fast and --no-fail-fast")
	}
	if ffGiven {
		v, _ := cmd.Flags().GetBool("fail-fast")
		return &v, nil
	}
	if nffGiven {
		v, _ := cmd.Flags().GetBool("no-fail-fast")
		enabled := !v
		return &enabled, nil
	}
	return nil, nil
}

// resolveAll resolves each path against the project dir.
func resolveAll(projectDir string, paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	resolved := make([]string, 0, len(paths))
	for _, p := range paths {
		resolved = append(resolved, config.ResolvePath(projectDir, p))
	}
	return resolved
}

// printPlan renders the expanded branch/step plan for --dry-run.
func printPlan(out io.Writer, wf *models.Workflow, event models.Event, filter map[string]string) {
	plans, total := executor.PlanJobs(wf, filter)

	fmt.Fprintf(out, "Workflow: %s\n", wf.Name)
	fmt.Fprintf(out, "Event: %s\n", event.Type)
	fmt.Fprintf(out, "Branches: %d\n", total)

	for _, plan := range plans {
		fmt.Fprintf(out, "\nJob %s: %d branch(es)\n", plan.Job.ID, len(plan.Branches))
		for _, branch := range plan.Branches {
			fmt.Fprintf(out, "  %s\n", branch.Name)
		}
		fmt.Fprintf(out, "  Steps:\n")
		for i := range plan.Job.Steps {
			fmt.Fprintf(out, "    %d. %s\n", i+1, stepLabel(&plan.Job.Steps[i], i))
		}
	}

	fmt.Fprintf(out, "\nDry run: workflow is valid and ready to execute.\n")
}

// stepLabel names a step for plan output: the explicit name, the action
// reference, or the first line of the run body.
func stepLabel(step *models.Step, index int) string {
	if step.Name != "" {
		return step.Name
	}
	if step.Uses != "" {
		return step.Uses
	}
	line := strings.TrimSpace(step.Run)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" {
		return fmt.Sprintf("step %d", index+1)
	}
	return line
}

// recordHistory persists the run and applies retention. History
// problems never fail a completed run; they surface as warnings.
func recordHistory(ctx context.Context, cfg *config.Config, projectDir string, result *models.RunResult, warnTo io.Writer, colorize bool) {
	store, err := history.NewStore(config.ResolvePath(projectDir, cfg.History.DBPath))
	if err != nil {
		display.Warning{
			Title:   "Run history not recorded",
			Message: err.Error(),
		}.Render(warnTo, colorize)
		return
	}
	defer store.Close()

	if err := store.RecordRun(ctx, result); err != nil {
		display.Warning{
			Title:   "Run history not recorded",
			Message: err.Error(),
		}.Render(warnTo, colorize)
		return
	}
	if _, err := store.Prune(ctx, cfg.History.KeepDays, cfg.History.MaxRuns); err != nil {
		display.Warning{
			Title:   "History retention failed",
			Message: err.Error(),
		}.Render(warnTo, colorize)
	}
}
