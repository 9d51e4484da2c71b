package executor

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/walther/conveyor/internal/models"
	"github.com/walther/conveyor/internal/shell"
	"github.com/walther/conveyor/internal/workspace"
)

// fakeRule maps a script substring to a canned shell outcome.
type fakeRule struct {
	match    string
	exitCode int
	stdout   string
	stderr   string
}

// fakeRunner substitutes for the system shell: it records every
// invocation and answers from the rule table. Scripts matching no rule
// succeed silently.
type fakeRunner struct {
	mu          sync.Mutex
	rules       []fakeRule
	invocations []shell.Invocation
}

func (f *fakeRunner) on(match string, exitCode int) {
	f.rules = append(f.rules, fakeRule{match: match, exitCode: exitCode})
}

func (f *fakeRunner) Run(_ context.Context, inv shell.Invocation) (*shell.Result, error) {
	f.mu.Lock()
	f.invocations = append(f.invocations, inv)
	rules := f.rules
	f.mu.Unlock()

	for _, rule := range rules {
		if strings.Contains(inv.Script, rule.match) {
			if rule.stdout != "" && inv.Stdout != nil {
				io.WriteString(inv.Stdout, rule.stdout)
			}
			if rule.stderr != "" && inv.Stderr != nil {
				io.WriteString(inv.Stderr, rule.stderr)
			}
			return &shell.Result{ExitCode: rule.exitCode}, nil
		}
	}
	return &shell.Result{ExitCode: 0}, nil
}

// scripts returns the recorded script texts in invocation order.
func (f *fakeRunner) scripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.invocations))
	for _, inv := range f.invocations {
		out = append(out, inv.Script)
	}
	return out
}

// fakeBranchExecutor records which branches ran and answers with either
// the scripted callback or a plain success.
type fakeBranchExecutor struct {
	mu       sync.Mutex
	executed []string
	run      func(ctx context.Context, req BranchRequest) models.BranchResult
}

func (f *fakeBranchExecutor) Execute(ctx context.Context, req BranchRequest) models.BranchResult {
	f.mu.Lock()
	f.executed = append(f.executed, req.Branch.Name)
	f.mu.Unlock()

	if f.run != nil {
		return f.run(ctx, req)
	}
	return models.BranchResult{Branch: req.Branch, Status: models.StatusSuccess}
}

func (f *fakeBranchExecutor) executedBranches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.executed...)
}

// recordingLogger captures logger calls for assertions. It never
// streams step output.
type recordingLogger struct {
	mu            sync.Mutex
	runStarts     int
	totalBranches int
	started       []string
	completed     map[string]models.Status
	warnings      []string
	summary       *models.RunResult
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{completed: make(map[string]models.Status)}
}

func (l *recordingLogger) LogRunStart(_ *models.Workflow, _ models.Event, _ string, branches int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runStarts++
	l.totalBranches = branches
}

func (l *recordingLogger) LogBranchStart(branch models.Branch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, branch.Name)
}

func (l *recordingLogger) LogBranchComplete(result models.BranchResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed[result.Branch.Name] = result.Status
}

func (l *recordingLogger) LogStepStart(models.Branch, string) {}

func (l *recordingLogger) LogStepResult(models.Branch, models.StepResult) {}

func (l *recordingLogger) LogSummary(result *models.RunResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.summary = result
}

func (l *recordingLogger) StepOutput(models.Branch) io.Writer { return nil }

func (l *recordingLogger) Warnf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, format)
}

func (l *recordingLogger) Debugf(string, ...interface{}) {}

// newTestManager creates a workspace manager rooted in a temp dir.
func newTestManager(t *testing.T) *workspace.Manager {
	t.Helper()
	m, err := workspace.NewManager(filepath.Join(t.TempDir(), "runs"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

// matrixJob builds a single-dimension matrix job in the shape the
// parser produces.
func matrixJob(id, dim string, values ...string) *models.Job {
	return &models.Job{
		ID: id,
		Strategy: models.Strategy{
			Matrix: models.Matrix{Dimensions: []models.Dimension{{Name: dim, Values: values}}},
		},
	}
}
