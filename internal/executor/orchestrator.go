package executor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/walther/conveyor/internal/actions"
	"github.com/walther/conveyor/internal/models"
	"github.com/walther/conveyor/internal/workspace"
)

// JobRunner executes one job's branch fan-out. JobExecutor is the real
// implementation; tests substitute fakes.
type JobRunner interface {
	Execute(ctx context.Context, req JobRequest) []models.BranchResult
}

// RunRequest describes one workflow invocation.
type RunRequest struct {
	Workflow     *models.Workflow
	Event        models.Event
	MatrixFilter map[string]string // keep only branches matching these dims
	FailFast     *bool             // nil = workflow strategy decides
	MaxParallel  int               // overrides strategy when > 0
	Timeout      time.Duration     // whole-run budget, 0 = none
}

// Orchestrator drives a workflow run end to end: trigger check, action
// preflight, signal handling, per-job fan-out, and result aggregation.
type Orchestrator struct {
	jobs       JobRunner
	workspaces *workspace.Manager
	registry   *actions.Registry
	logger     Logger
}

// NewOrchestrator creates an Orchestrator. The logger may be nil.
func NewOrchestrator(jobs JobRunner, workspaces *workspace.Manager, registry *actions.Registry, logger Logger) *Orchestrator {
	if jobs == nil {
		panic("job runner cannot be nil")
	}
	if workspaces == nil {
		panic("workspace manager cannot be nil")
	}
	return &Orchestrator{
		jobs:       jobs,
		workspaces: workspaces,
		registry:   registry,
		logger:     logger,
	}
}

// Run executes the workflow for the given event. SIGINT/SIGTERM cancel
// the run context so in-flight branches finish as cancelled. The
// returned error covers invocation problems (wrong trigger, unknown
// action, lock failure); branch and step failures are reported through
// the RunResult status instead.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*models.RunResult, error) {
	wf := req.Workflow
	if wf == nil {
		return nil, fmt.Errorf("workflow cannot be nil")
	}
	if !wf.On.Supports(req.Event.Type) {
		return nil, fmt.Errorf("workflow %q declares [%s], not %s: %w",
			wf.Name, strings.Join(wf.On.Names(), ", "), req.Event.Type, models.ErrUnknownTrigger)
	}
	if o.registry != nil {
		if err := ValidateActions(wf, o.registry); err != nil {
			return nil, err
		}
	}

	plans, total := PlanJobs(wf, req.MatrixFilter)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if req.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, req.Timeout)
		defer cancelTimeout()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			if o.logger != nil {
				o.logger.Warnf("received interrupt, cancelling run")
			}
			cancel()
		case <-runCtx.Done():
		}
	}()

	runID := uuid.New().String()

	// One run at a time per runs dir. Waiting is the normal case when
	// another invocation is still finishing.
	if err := o.acquireLock(); err != nil {
		return nil, err
	}
	defer func() {
		if err := o.workspaces.Unlock(); err != nil && o.logger != nil {
			o.logger.Warnf("releasing runs lock: %v", err)
		}
	}()

	if o.logger != nil {
		o.logger.LogRunStart(wf, req.Event, runID, total)
	}

	started := time.Now()
	var branches []models.BranchResult
	for _, plan := range plans {
		if len(plan.Branches) == 0 {
			if len(req.MatrixFilter) > 0 && o.logger != nil {
				o.logger.Warnf("matrix filter matched no branches of job %q", plan.Job.ID)
			}
			continue
		}
		failFast := plan.Job.Strategy.FailFastEnabled()
		if req.FailFast != nil {
			failFast = *req.FailFast
		}
		maxParallel := plan.Job.Strategy.MaxParallel
		if req.MaxParallel > 0 {
			maxParallel = req.MaxParallel
		}
		results := o.jobs.Execute(runCtx, JobRequest{
			RunID:       runID,
			Workflow:    wf,
			Job:         plan.Job,
			Event:       req.Event,
			Branches:    plan.Branches,
			FailFast:    failFast,
			MaxParallel: maxParallel,
		})
		branches = append(branches, results...)
	}

	if err := o.workspaces.TidyRun(runID); err != nil && o.logger != nil {
		o.logger.Debugf("tidying run dir: %v", err)
	}

	result := &models.RunResult{
		RunID:        runID,
		WorkflowName: wf.Name,
		WorkflowPath: wf.FilePath,
		Event:        req.Event,
		Status:       models.OverallStatus(branches),
		Branches:     branches,
		StartedAt:    started,
		Duration:     time.Since(started),
	}

	if o.logger != nil {
		o.logger.LogSummary(result)
	}
	return result, nil
}

// acquireLock takes the runs-dir lock, logging when it has to wait.
func (o *Orchestrator) acquireLock() error {
	locked, err := o.workspaces.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire runs lock: %w", err)
	}
	if locked {
		return nil
	}
	if o.logger != nil {
		o.logger.Warnf("another run is active, waiting for the runs lock")
	}
	if err := o.workspaces.Lock(); err != nil {
		return fmt.Errorf("failed to acquire runs lock: %w", err)
	}
	return nil
}
