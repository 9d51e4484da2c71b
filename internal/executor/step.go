package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/walther/conveyor/internal/actions"
	"github.com/walther/conveyor/internal/expr"
	"github.com/walther/conveyor/internal/models"
	"github.com/walther/conveyor/internal/shell"
	"github.com/walther/conveyor/internal/workspace"
)

// BranchRequest bundles everything one branch execution needs.
type BranchRequest struct {
	RunID     string
	Workflow  *models.Workflow
	Job       *models.Job
	Branch    models.Branch
	Event     models.Event
	Workspace *workspace.Workspace
}

// BranchExecutor executes a single branch to its terminal status.
// The job executor fans out over this interface so tests can fake it.
type BranchExecutor interface {
	Execute(ctx context.Context, req BranchRequest) models.BranchResult
}

// StepExecutor is the real BranchExecutor: it walks a branch's steps
// strictly in order inside the provisioned workspace. Each step
// completes before the next begins; there are no retries.
type StepExecutor struct {
	Runner     shell.Runner
	Actions    *actions.Registry
	Shell      string            // default shell for run: steps
	ProjectDir string            // checkout source
	RunsDir    string            // excluded from checkouts
	HostPath   string            // base PATH for step environments
	FileEnv    map[string]string // values from configured env files
	Logger     Logger
}

// NewStepExecutor creates a StepExecutor with the host PATH as the
// environment base.
func NewStepExecutor(runner shell.Runner, registry *actions.Registry, logger Logger) *StepExecutor {
	return &StepExecutor{
		Runner:   runner,
		Actions:  registry,
		Shell:    shell.DefaultShell,
		HostPath: os.Getenv("PATH"),
		Logger:   logger,
	}
}

// Execute runs every step of the branch and derives its terminal
// status. A nonzero exit marks the branch failed and skips the
// remaining default-conditioned steps; always() and failure() steps
// still run. Cancellation marks the branch and its unexecuted steps
// cancelled.
func (e *StepExecutor) Execute(ctx context.Context, req BranchRequest) models.BranchResult {
	start := time.Now()
	result := models.BranchResult{
		Branch: req.Branch,
		Status: models.StatusRunning,
	}

	failed := false
	cancelled := false
	accumEnv := map[string]string{}
	var accumPaths []string

	for i := range req.Job.Steps {
		step := &req.Job.Steps[i]

		if ctx.Err() != nil {
			cancelled = true
			result.Steps = append(result.Steps, models.StepResult{
				Name:   stepDisplayName(step, i),
				Status: models.StatusCancelled,
			})
			continue
		}

		stepResult := e.executeStep(ctx, req, step, i, stepState{
			failed:     failed,
			accumEnv:   accumEnv,
			accumPaths: accumPaths,
		})
		result.Steps = append(result.Steps, stepResult)

		if e.Logger != nil {
			e.Logger.LogStepResult(req.Branch, stepResult)
		}

		switch stepResult.Status {
		case models.StatusFailure:
			failed = true
		case models.StatusCancelled:
			cancelled = true
		}

		// Ingest the accumulation files so later steps observe what
		// this step exported.
		if env, err := req.Workspace.ReadEnvFile(); err == nil {
			accumEnv = env
		} else if e.Logger != nil {
			e.Logger.Warnf("branch %s: %v", req.Branch.Name, err)
		}
		if paths, err := req.Workspace.ReadPathFile(); err == nil {
			accumPaths = paths
		} else if e.Logger != nil {
			e.Logger.Warnf("branch %s: %v", req.Branch.Name, err)
		}
	}

	if summary, err := req.Workspace.ReadSummary(); err == nil {
		result.Summary = summary
	} else if e.Logger != nil {
		e.Logger.Warnf("branch %s: %v", req.Branch.Name, err)
	}

	result.Duration = time.Since(start)
	switch {
	case failed:
		result.Status = models.StatusFailure
	case cancelled:
		result.Status = models.StatusCancelled
	default:
		result.Status = models.StatusSuccess
	}
	if failed {
		if step, ok := result.FailedStep(); ok && step.Err != nil {
			result.Err = NewBranchError(req.Branch.Name, step.Name, step.Err)
		}
	}
	return result
}

// stepState is the branch-local state a step evaluation sees.
type stepState struct {
	failed     bool
	accumEnv   map[string]string
	accumPaths []string
}

func (e *StepExecutor) executeStep(ctx context.Context, req BranchRequest, step *models.Step, index int, state stepState) models.StepResult {
	name := stepDisplayName(step, index)

	env := buildStepEnv(stepEnvInputs{
		hostPath: e.HostPath,
		ws:       req.Workspace,
		runID:    req.RunID,
		branch:   req.Branch,
		event:    req.Event,
		fileEnv:  e.FileEnv,
		wfEnv:    req.Workflow.Env,
		jobEnv:   req.Job.Env,
		accumEnv: state.accumEnv,
		paths:    state.accumPaths,
		stepEnv:  nil, // applied below, after interpolation
	})

	exprCtx := &expr.Context{
		Matrix:  req.Branch.Combination.Values,
		Env:     env,
		WorkDir: req.Workspace.Src,
		Failed:  state.failed,
	}

	if interpolated, err := expr.Interpolate(name, exprCtx); err == nil {
		name = interpolated
	}

	proceed, err := expr.Evaluate(step.If, exprCtx)
	if err != nil {
		return models.StepResult{Name: name, Status: models.StatusFailure, ExitCode: 1, Err: err}
	}
	if !proceed {
		return models.StepResult{Name: name, Status: models.StatusSkipped}
	}

	if e.Logger != nil {
		e.Logger.LogStepStart(req.Branch, name)
	}

	stepEnv, err := expr.InterpolateMap(step.Env, exprCtx)
	if err != nil {
		return models.StepResult{Name: name, Status: models.StatusFailure, ExitCode: 1, Err: err}
	}
	for k, v := range stepEnv {
		env[k] = v
	}
	exprCtx.Env = env

	logFile, logPath, err := e.openStepLog(req.Workspace, index, name)
	if err != nil {
		return models.StepResult{Name: name, Status: models.StatusFailure, ExitCode: 1, Err: err}
	}
	defer logFile.Close()

	output := io.Writer(logFile)
	if e.Logger != nil {
		if live := e.Logger.StepOutput(req.Branch); live != nil {
			output = io.MultiWriter(logFile, live)
		}
	}

	start := time.Now()
	var res models.StepResult
	if step.IsAction() {
		res = e.runAction(ctx, req, step, exprCtx, output)
	} else {
		res = e.runCommand(ctx, req, step, exprCtx, env, output)
	}
	res.Name = name
	res.LogPath = logPath
	res.Duration = time.Since(start)
	return res
}

// runAction dispatches a uses: step to the builtin registry.
func (e *StepExecutor) runAction(ctx context.Context, req BranchRequest, step *models.Step, exprCtx *expr.Context, output io.Writer) models.StepResult {
	action, ok := e.Actions.Get(step.Uses)
	if !ok {
		err := &UnknownActionError{JobID: req.Job.ID, Step: step.Uses, Uses: step.Uses, Known: e.Actions.Names()}
		return models.StepResult{Status: models.StatusFailure, ExitCode: 1, Err: err}
	}

	with, err := expr.InterpolateMap(step.With, exprCtx)
	if err != nil {
		return models.StepResult{Status: models.StatusFailure, ExitCode: 1, Err: err}
	}

	err = action.Run(ctx, &actions.Inputs{
		With:       with,
		Workspace:  req.Workspace,
		ProjectDir: e.ProjectDir,
		RunsDir:    e.RunsDir,
		Output:     output,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.StepResult{Status: models.StatusCancelled, Err: err}
		}
		fmt.Fprintf(output, "%s failed: %v\n", step.Uses, err)
		return models.StepResult{Status: models.StatusFailure, ExitCode: 1, Err: err}
	}
	return models.StepResult{Status: models.StatusSuccess}
}

// runCommand executes a run: step through the shell. Status derives
// from the exit code alone; stderr output never fails a step.
func (e *StepExecutor) runCommand(ctx context.Context, req BranchRequest, step *models.Step, exprCtx *expr.Context, env map[string]string, output io.Writer) models.StepResult {
	script, err := expr.Interpolate(step.Run, exprCtx)
	if err != nil {
		return models.StepResult{Status: models.StatusFailure, ExitCode: 1, Err: err}
	}

	dir := req.Workspace.Src
	if step.WorkingDirectory != "" {
		wd, err := expr.Interpolate(step.WorkingDirectory, exprCtx)
		if err != nil {
			return models.StepResult{Status: models.StatusFailure, ExitCode: 1, Err: err}
		}
		resolved, err := resolveWorkDir(req.Workspace.Src, wd)
		if err != nil {
			return models.StepResult{Status: models.StatusFailure, ExitCode: 1, Err: err}
		}
		dir = resolved
	}

	shellBin := step.Shell
	if shellBin == "" {
		shellBin = e.Shell
	}

	res, err := e.Runner.Run(ctx, shell.Invocation{
		Script: script,
		Shell:  shellBin,
		Dir:    dir,
		Env:    env,
		Stdout: output,
		Stderr: output,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.StepResult{Status: models.StatusCancelled, Err: err}
		}
		return models.StepResult{Status: models.StatusFailure, ExitCode: 1, Err: err}
	}

	status := models.StatusSuccess
	if res.ExitCode != 0 {
		status = models.StatusFailure
	}
	return models.StepResult{Status: status, ExitCode: res.ExitCode}
}

// openStepLog creates the per-step log file under the workspace logs dir.
func (e *StepExecutor) openStepLog(ws *workspace.Workspace, index int, name string) (*os.File, string, error) {
	path := filepath.Join(ws.Logs, fmt.Sprintf("%02d-%s.log", index+1, logSlug(name)))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create step log: %w", err)
	}
	return f, path, nil
}

// stepDisplayName picks the step's name: the explicit name, the action
// reference, or the first line of the run body.
func stepDisplayName(step *models.Step, index int) string {
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

// logSlug compresses a step name into a filesystem-safe fragment.
func logSlug(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	if slug == "" {
		slug = "step"
	}
	return slug
}

// resolveWorkDir joins a step working-directory with the workspace
// source dir and rejects escapes.
func resolveWorkDir(src, wd string) (string, error) {
	if filepath.IsAbs(wd) {
		return "", fmt.Errorf("working-directory must be relative: %s", wd)
	}
	cleaned := filepath.Clean(wd)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("working-directory escapes the workspace: %s", wd)
	}
	return filepath.Join(src, cleaned), nil
}
