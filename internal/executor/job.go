package executor

import (
	"context"
	"sync"
	"time"

	"github.com/walther/conveyor/internal/models"
	"github.com/walther/conveyor/internal/workspace"
)

// JobRequest describes one job's fan-out: the branches to run and the
// concurrency policy governing them.
type JobRequest struct {
	RunID       string
	Workflow    *models.Workflow
	Job         *models.Job
	Event       models.Event
	Branches    []models.Branch
	FailFast    bool
	MaxParallel int // <= 0 means unbounded
}

// JobExecutor runs a job's branches concurrently. Each branch gets its
// own workspace and runs in isolation; branches never share state
// except through their results.
type JobExecutor struct {
	Branches   BranchExecutor
	Workspaces *workspace.Manager
	Logger     Logger
}

type indexedResult struct {
	index  int
	result models.BranchResult
}

// Execute launches every branch of the job, bounded by MaxParallel,
// and blocks until all launched branches finish. With fail-fast on,
// the first failure cancels the job context so in-flight siblings
// wind down; branches never launched are reported cancelled. Results
// come back in the branch order of the request.
func (je *JobExecutor) Execute(ctx context.Context, req JobRequest) []models.BranchResult {
	if len(req.Branches) == 0 {
		return nil
	}

	jobCtx, cancelJob := context.WithCancel(ctx)
	defer cancelJob()

	maxParallel := req.MaxParallel
	if maxParallel <= 0 {
		maxParallel = len(req.Branches)
	}

	semaphore := make(chan struct{}, maxParallel)
	resultsCh := make(chan indexedResult, len(req.Branches))

	var wg sync.WaitGroup
	var failFastOnce sync.Once

	for i := range req.Branches {
		select {
		case <-jobCtx.Done():
			goto launchComplete
		default:
		}

		select {
		case semaphore <- struct{}{}:
		case <-jobCtx.Done():
			goto launchComplete
		}

		wg.Add(1)

		go func(index int, branch models.Branch) {
			defer wg.Done()
			defer func() { <-semaphore }()

			result := je.executeBranch(jobCtx, req, branch)

			if req.FailFast && result.Status == models.StatusFailure {
				failFastOnce.Do(func() {
					if je.Logger != nil {
						je.Logger.Warnf("branch %s failed, cancelling remaining branches", branch.Name)
					}
					cancelJob()
				})
			}

			resultsCh <- indexedResult{index: index, result: result}
		}(i, req.Branches[i])
	}

launchComplete:
	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	collected := make(map[int]models.BranchResult, len(req.Branches))
	for r := range resultsCh {
		collected[r.index] = r.result
	}

	results := make([]models.BranchResult, 0, len(req.Branches))
	for i, branch := range req.Branches {
		if result, ok := collected[i]; ok {
			results = append(results, result)
			continue
		}
		// Never launched: the job was cancelled before this branch
		// acquired a slot.
		results = append(results, models.BranchResult{
			Branch: branch,
			Status: models.StatusCancelled,
		})
	}
	return results
}

// executeBranch provisions the branch workspace, runs the branch, and
// applies the retention policy afterwards.
func (je *JobExecutor) executeBranch(ctx context.Context, req JobRequest, branch models.Branch) models.BranchResult {
	if je.Logger != nil {
		je.Logger.LogBranchStart(branch)
	}
	start := time.Now()

	if req.Job.TimeoutMinutes > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Job.TimeoutMinutes)*time.Minute)
		defer cancel()
	}

	ws, err := je.Workspaces.Create(req.RunID, req.Job.ID, branch.Slug())
	if err != nil {
		result := models.BranchResult{
			Branch:   branch,
			Status:   models.StatusFailure,
			Duration: time.Since(start),
			Err:      NewBranchError(branch.Name, "", err),
		}
		if je.Logger != nil {
			je.Logger.LogBranchComplete(result)
		}
		return result
	}

	result := je.Branches.Execute(ctx, BranchRequest{
		RunID:     req.RunID,
		Workflow:  req.Workflow,
		Job:       req.Job,
		Branch:    branch,
		Event:     req.Event,
		Workspace: ws,
	})

	if err := je.Workspaces.Cleanup(ws, result.Status == models.StatusFailure); err != nil && je.Logger != nil {
		je.Logger.Warnf("workspace cleanup for %s: %v", branch.Name, err)
	}

	if je.Logger != nil {
		je.Logger.LogBranchComplete(result)
	}
	return result
}
