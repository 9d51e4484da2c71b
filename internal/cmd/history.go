package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/walther/conveyor/internal/config"
	"github.com/walther/conveyor/internal/display"
	"github.com/walther/conveyor/internal/history"
	"github.com/walther/conveyor/internal/models"
)

// NewHistoryCommand creates the 'conveyor history' parent command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List and inspect recorded runs",
		Long: `Commands for the run history database.

Every completed run is recorded with its per-branch and per-step
outcomes, unless recording is turned off (--no-history or
history.enabled: false). Without a subcommand, the most recent runs
are listed.`,
		Args: cobra.NoArgs,
		RunE: runHistoryList,
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	addConfigFlag(cmd)

	// Add subcommands
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its branches and steps",
		Long: `Display a recorded run in full: the run header, a branch result
table, and the step outcomes of every branch.

The run ID may be abbreviated to any unique prefix.`,
		Args: cobra.ExactArgs(1),
		RunE: runHistoryShow,
	}
	addConfigFlag(cmd)
	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old runs per the retention settings",
		Long: `Apply the retention settings to the history database.

Defaults come from history.keep_days and history.max_runs in the
config; the flags override them for this invocation. A value of 0
disables that rule.`,
		Args: cobra.NoArgs,
		RunE: runHistoryPrune,
	}
	cmd.Flags().Int("keep-days", 0, "Delete runs older than this many days (0 = keep forever)")
	cmd.Flags().Int("max-runs", 0, "Keep at most this many runs (0 = unlimited)")
	addConfigFlag(cmd)
	return cmd
}

func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to config file (default: .conveyor/config.yaml)")
}

// openHistoryStore resolves the database location from the config and
// opens it. A nil store with a nil error means no database exists yet.
func openHistoryStore(cmd *cobra.Command) (*history.Store, *config.Config, error) {
	projectDir, err := config.FindProjectRoot(".")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to locate project root: %w", err)
	}
	cfg, err := loadProjectConfig(cmd, projectDir)
	if err != nil {
		return nil, nil, err
	}

	dbPath := config.ResolvePath(projectDir, cfg.History.DBPath)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, cfg, nil
	}

	store, err := history.NewStore(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return store, cfg, nil
}

// runHistoryList executes the history list command
func runHistoryList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	store, _, err := openHistoryStore(cmd)
	if err != nil {
		return err
	}
	if store == nil {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	colorize := display.ColorOutput(os.Stdout)
	for _, line := range formatRunList(runs, colorize) {
		fmt.Fprintln(out, line)
	}
	return nil
}

// runHistoryShow executes the history show command
func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, _, err := openHistoryStore(cmd)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("run %q: %w", args[0], history.ErrRunNotFound)
	}
	defer store.Close()

	detail, err := store.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	printRunDetail(cmd.OutOrStdout(), detail, display.ColorOutput(os.Stdout))
	return nil
}

// runHistoryPrune executes the history prune command
func runHistoryPrune(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	store, cfg, err := openHistoryStore(cmd)
	if err != nil {
		return err
	}
	if store == nil {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}
	defer store.Close()

	keepDays := cfg.History.KeepDays
	if cmd.Flags().Changed("keep-days") {
		keepDays, _ = cmd.Flags().GetInt("keep-days")
	}
	maxRuns := cfg.History.MaxRuns
	if cmd.Flags().Changed("max-runs") {
		maxRuns, _ = cmd.Flags().GetInt("max-runs")
	}
	if keepDays < 0 || maxRuns < 0 {
		return fmt.Errorf("retention values must be >= 0")
	}

	pruned, err := store.Prune(cmd.Context(), keepDays, maxRuns)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	fmt.Fprintf(out, "Pruned %d run(s).\n", pruned)
	return nil
}

// formatRunList renders run records as aligned table rows, newest first.
func formatRunList(runs []history.RunRecord, colorize bool) []string {
	idWidth := len("RUN ID")
	nameWidth := len("WORKFLOW")
	eventWidth := len("EVENT")
	statusWidth := len("STATUS")
	branchWidth := len("BRANCHES")
	startedWidth := len("2006-01-02 15:04:05")

	for _, r := range runs {
		if len(shortRunID(r.RunID)) > idWidth {
			idWidth = len(shortRunID(r.RunID))
		}
		if len(r.WorkflowName) > nameWidth {
			nameWidth = len(r.WorkflowName)
		}
		if len(r.Event) > eventWidth {
			eventWidth = len(r.Event)
		}
		if len(r.Status) > statusWidth {
			statusWidth = len(r.Status)
		}
	}

	header := fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %-*s  %-*s  %s",
		idWidth, "RUN ID",
		nameWidth, "WORKFLOW",
		eventWidth, "EVENT",
		statusWidth, "STATUS",
		branchWidth, "BRANCHES",
		startedWidth, "STARTED",
		"DURATION")
	rows := []string{header}

	for _, r := range runs {
		branches := fmt.Sprintf("%d/%d", r.Succeeded, r.BranchCount)
		row := fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %-*s  %-*s  %.1fs",
			idWidth, shortRunID(r.RunID),
			nameWidth, r.WorkflowName,
			eventWidth, r.Event,
			statusWidth, r.Status,
			branchWidth, branches,
			startedWidth, formatTimestamp(r.StartedAt),
			r.Duration.Seconds())
		rows = append(rows, display.Colorize(r.Status, row, colorize))
	}
	return rows
}

// printRunDetail formats and prints one recorded run
func printRunDetail(w io.Writer, detail *history.RunDetail, colorize bool) {
	cyan := color.New(color.FgCyan, color.Bold)

	cyan.Fprintf(w, "=== Run %s ===\n\n", detail.RunID)
	fmt.Fprintf(w, "Workflow: %s", detail.WorkflowName)
	if detail.WorkflowPath != "" {
		fmt.Fprintf(w, " (%s)", detail.WorkflowPath)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Event:    %s\n", detail.Event)
	fmt.Fprintf(w, "Status:   %s\n", detail.Status)
	fmt.Fprintf(w, "Started:  %s\n", formatTimestamp(detail.StartedAt))
	fmt.Fprintf(w, "Duration: %.1fs\n\n", detail.Duration.Seconds())

	results := make([]models.BranchResult, 0, len(detail.Branches))
	for _, b := range detail.Branches {
		results = append(results, models.BranchResult{
			Branch:   models.Branch{JobID: b.JobID, Name: b.Name},
			Status:   b.Status,
			Duration: b.Duration,
		})
	}
	for _, line := range display.FormatBranchTable(results, colorize) {
		fmt.Fprintln(w, line)
	}

	for _, b := range detail.Branches {
		fmt.Fprintf(w, "\n%s:\n", b.Name)
		for i, s := range b.Steps {
			fmt.Fprintf(w, "  %d. %-28s %s (%.1fs)", i+1, s.Name, s.Status, s.Duration.Seconds())
			if s.Status == models.StatusFailure {
				fmt.Fprintf(w, " exit %d", s.ExitCode)
			}
			fmt.Fprintln(w)
		}
	}
}

// shortRunID abbreviates a run ID for list display.
func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatTimestamp formats a timestamp for display
func formatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
