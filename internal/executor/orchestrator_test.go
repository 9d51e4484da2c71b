package executor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/walther/conveyor/internal/actions"
	"github.com/walther/conveyor/internal/models"
	"github.com/walther/conveyor/internal/runtimes"
	"github.com/walther/conveyor/internal/workspace"
)

// fakeJobRunner answers every job request with scripted branch results.
type fakeJobRunner struct {
	mu       sync.Mutex
	requests []JobRequest
	status   map[string]models.Status // branch name -> status, default success
	block    func(ctx context.Context, m *workspace.Manager)
	manager  *workspace.Manager
}

func (f *fakeJobRunner) Execute(ctx context.Context, req JobRequest) []models.BranchResult {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.block != nil {
		f.block(ctx, f.manager)
	}

	results := make([]models.BranchResult, 0, len(req.Branches))
	for _, b := range req.Branches {
		status := models.StatusSuccess
		if f.status != nil {
			if s, ok := f.status[b.Name]; ok {
				status = s
			}
		}
		results = append(results, models.BranchResult{Branch: b, Status: status})
	}
	return results
}

func dispatchWorkflow(jobs ...models.Job) *models.Workflow {
	return &models.Workflow{
		Name:     "CI",
		FilePath: "/tmp/ci.yaml",
		On:       models.Triggers{WorkflowDispatch: &models.TriggerSpec{}},
		Jobs:     jobs,
	}
}

func newTestOrchestrator(t *testing.T, jobs JobRunner, logger Logger) (*Orchestrator, *workspace.Manager) {
	t.Helper()
	m := newTestManager(t)
	registry := actions.NewRegistry(runtimes.NewFinder(nil))
	return NewOrchestrator(jobs, m, registry, logger), m
}

func TestOrchestratorRejectsUndeclaredTrigger(t *testing.T) {
	fake := &fakeJobRunner{}
	orch, _ := newTestOrchestrator(t, fake, nil)

	wf := dispatchWorkflow(*matrixJob("test", "python-version", "3.12"))
	_, err := orch.Run(context.Background(), RunRequest{
		Workflow: wf,
		Event:    models.NewEvent(models.EventWorkflowCall),
	})

	if !errors.Is(err, models.ErrUnknownTrigger) {
		t.Fatalf("err = %v, want ErrUnknownTrigger", err)
	}
	if len(fake.requests) != 0 {
		t.Errorf("jobs executed despite trigger rejection")
	}
}

func TestOrchestratorPreflightsUnknownAction(t *testing.T) {
	fake := &fakeJobRunner{}
	orch, _ := newTestOrchestrator(t, fake, nil)

	job := models.Job{ID: "test", Steps: []models.Step{{Uses: "docker-build"}}}
	_, err := orch.Run(context.Background(), RunRequest{
		Workflow: dispatchWorkflow(job),
		Event:    models.NewEvent(models.EventWorkflowDispatch),
	})

	var unknownErr *UnknownActionError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("err = %v, want UnknownActionError", err)
	}
	if unknownErr.Uses != "docker-build" {
		t.Errorf("Uses = %q", unknownErr.Uses)
	}
	if len(fake.requests) != 0 {
		t.Errorf("jobs executed despite failed preflight")
	}
}

func TestOrchestratorAggregatesAcrossJobs(t *testing.T) {
	fake := &fakeJobRunner{status: map[string]models.Status{
		"docs": models.StatusFailure,
	}}
	logger := newRecordingLogger()
	orch, _ := newTestOrchestrator(t, fake, logger)

	wf := dispatchWorkflow(
		*matrixJob("test", "python-version", "3.12", "3.10", "3.11"),
		models.Job{ID: "docs"},
	)
	result, err := orch.Run(context.Background(), RunRequest{
		Workflow: wf,
		Event:    models.NewEvent(models.EventWorkflowDispatch),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != models.StatusFailure {
		t.Errorf("run status = %s, want failure", result.Status)
	}
	if len(result.Branches) != 4 {
		t.Errorf("branches = %d, want 4", len(result.Branches))
	}
	if result.RunID == "" {
		t.Error("run ID not assigned")
	}
	if result.WorkflowName != "CI" || result.Event.Type != models.EventWorkflowDispatch {
		t.Errorf("result metadata = %q / %q", result.WorkflowName, result.Event.Type)
	}
	if result.Succeeded() != 3 || result.Failed() != 1 {
		t.Errorf("succeeded=%d failed=%d", result.Succeeded(), result.Failed())
	}

	// Jobs run in declaration order.
	if len(fake.requests) != 2 {
		t.Fatalf("job requests = %d, want 2", len(fake.requests))
	}
	if fake.requests[0].Job.ID != "test" || fake.requests[1].Job.ID != "docs" {
		t.Errorf("job order = %s, %s", fake.requests[0].Job.ID, fake.requests[1].Job.ID)
	}
	if fake.requests[0].RunID != fake.requests[1].RunID {
		t.Error("jobs of one run must share the run ID")
	}

	if logger.runStarts != 1 || logger.totalBranches != 4 {
		t.Errorf("LogRunStart calls=%d total=%d", logger.runStarts, logger.totalBranches)
	}
	if logger.summary == nil || logger.summary.Status != models.StatusFailure {
		t.Error("summary not logged")
	}
}

func TestOrchestratorFailFastResolution(t *testing.T) {
	ff := false
	strategyOff := models.Job{
		ID:       "off",
		Strategy: models.Strategy{FailFast: &ff},
	}
	unset := models.Job{ID: "unset"}

	t.Run("strategy decides when no override", func(t *testing.T) {
		fake := &fakeJobRunner{}
		orch, _ := newTestOrchestrator(t, fake, nil)
		_, err := orch.Run(context.Background(), RunRequest{
			Workflow: dispatchWorkflow(strategyOff, unset),
			Event:    models.NewEvent(models.EventWorkflowDispatch),
		})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if fake.requests[0].FailFast != false {
			t.Error("fail-fast: false strategy ignored")
		}
		if fake.requests[1].FailFast != true {
			t.Error("unset strategy must default to fail-fast")
		}
	})

	t.Run("flag override wins", func(t *testing.T) {
		fake := &fakeJobRunner{}
		orch, _ := newTestOrchestrator(t, fake, nil)
		override := true
		_, err := orch.Run(context.Background(), RunRequest{
			Workflow: dispatchWorkflow(strategyOff, unset),
			Event:    models.NewEvent(models.EventWorkflowDispatch),
			FailFast: &override,
		})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		for i, req := range fake.requests {
			if req.FailFast != true {
				t.Errorf("request %d FailFast = %v, want override", i, req.FailFast)
			}
		}
	})
}

func TestOrchestratorMatrixFilter(t *testing.T) {
	fake := &fakeJobRunner{}
	logger := newRecordingLogger()
	orch, _ := newTestOrchestrator(t, fake, logger)

	wf := dispatchWorkflow(*matrixJob("test", "python-version", "3.12", "3.10", "3.11"))
	result, err := orch.Run(context.Background(), RunRequest{
		Workflow:     wf,
		Event:        models.NewEvent(models.EventWorkflowDispatch),
		MatrixFilter: map[string]string{"python-version": "3.10"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Branches) != 1 {
		t.Fatalf("branches = %d, want 1", len(result.Branches))
	}
	if result.Branches[0].Branch.Name != "test (3.10)" {
		t.Errorf("branch = %q", result.Branches[0].Branch.Name)
	}
	if logger.totalBranches != 1 {
		t.Errorf("logged total = %d, want 1", logger.totalBranches)
	}
}

func TestOrchestratorMaxParallelOverride(t *testing.T) {
	fake := &fakeJobRunner{}
	orch, _ := newTestOrchestrator(t, fake, nil)

	wf := dispatchWorkflow(*matrixJob("test", "python-version", "3.12", "3.10"))
	_, err := orch.Run(context.Background(), RunRequest{
		Workflow:    wf,
		Event:       models.NewEvent(models.EventWorkflowDispatch),
		MaxParallel: 2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fake.requests[0].MaxParallel != 2 {
		t.Errorf("MaxParallel = %d, want 2", fake.requests[0].MaxParallel)
	}
}

func TestOrchestratorHoldsRunsLockDuringRun(t *testing.T) {
	fake := &fakeJobRunner{}
	orch, m := newTestOrchestrator(t, fake, nil)
	fake.manager = m
	fake.block = func(_ context.Context, m *workspace.Manager) {
		// While jobs run, a second invocation against the same runs
		// dir must not acquire the lock.
		other, err := workspace.NewManager(m.RunsDir())
		if err != nil {
			t.Errorf("NewManager: %v", err)
			return
		}
		locked, err := other.TryLock()
		if err != nil {
			t.Errorf("TryLock: %v", err)
			return
		}
		if locked {
			other.Unlock()
			t.Error("second manager acquired the lock mid-run")
		}
	}

	wf := dispatchWorkflow(models.Job{ID: "test"})
	if _, err := orch.Run(context.Background(), RunRequest{
		Workflow: wf,
		Event:    models.NewEvent(models.EventWorkflowDispatch),
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Released after the run.
	other, err := workspace.NewManager(m.RunsDir())
	if err != nil {
		t.Fatal(err)
	}
	locked, err := other.TryLock()
	if err != nil {
		t.Fatal(err)
	}
	if !locked {
		t.Error("lock not released after the run")
	}
	other.Unlock()
}

func TestOrchestratorNilWorkflow(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeJobRunner{}, nil)
	if _, err := orch.Run(context.Background(), RunRequest{}); err == nil {
		t.Fatal("expected an error for a nil workflow")
	}
}
