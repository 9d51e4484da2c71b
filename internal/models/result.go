package models

import "time"

// Status is the terminal (or in-flight) state of a run, branch, or step
type Status string

const (
	StatusPending   Status = "pending"   // Queued, not started
	StatusRunning   Status = "running"   // Currently executing
	StatusSuccess   Status = "success"   // Completed with exit code 0
	StatusFailure   Status = "failure"   // Completed with nonzero exit or infrastructure error
	StatusSkipped   Status = "skipped"   // Condition evaluated false (or prior step failed)
	StatusCancelled Status = "cancelled" // Interrupted before completion
)

// String returns the string form of the status.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

// Failed reports whether the status counts against the overall result.
// Skipped never fails; cancelled does.
func (s Status) Failed() bool {
	return s == StatusFailure || s == StatusCancelled
}

// Branch is one instantiation of a job: a single matrix combination.
type Branch struct {
	JobID       string      // Owning job ID
	Index       int         // Position within the expanded matrix
	Name        string      // Display name, e.g. "test (3.12)"
	Combination Combination // Matrix values for this branch
}

// Slug returns a filesystem-safe identifier for the branch, used for
// workspace and log directory names.
func (b Branch) Slug() string {
	name := b.JobID
	if !b.Combination.Empty() {
		name += "-" + b.Combination.Label()
	}
	out := make([]rune, 0, len(name))
	lastDash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
			lastDash = false
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
			lastDash = false
		default:
			if !lastDash && len(out) > 0 {
				out = append(out, '-')
				lastDash = true
			}
		}
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	return string(out)
}

// StepResult is the outcome of a single step within a branch
type StepResult struct {
	Name     string        // Interpolated step name
	Status   Status        // Terminal step status
	ExitCode int           // Process exit code (0 for skipped/action steps that ran clean)
	Duration time.Duration // Wall time for the step
	LogPath  string        // Per-step combined output log file
	Err      error         // Infrastructure error, nil for plain nonzero exits
}

// BranchResult is the outcome of one branch: its step results in order
// and the derived terminal status.
type BranchResult struct {
	Branch   Branch        // The branch that was executed
	Status   Status        // Terminal branch status
	Steps    []StepResult  // Step results in execution order
	Duration time.Duration // Wall time for the branch
	Summary  string        // Markdown collected from the branch step summary file
	Err      error         // First infrastructure error, if any
}

// FailedStep returns the first failing step of the branch, if any.
func (br BranchResult) FailedStep() (StepResult, bool) {
	for _, s := range br.Steps {
		if s.Status == StatusFailure {
			return s, true
		}
	}
	return StepResult{}, false
}

// RunResult is the aggregate outcome of a workflow run
type RunResult struct {
	RunID        string         // Unique run identifier
	WorkflowName string         // Name of the executed workflow
	WorkflowPath string         // Source file of the workflow
	Event        Event          // The invocation event
	Status       Status         // Overall status: AND over branches
	Branches     []BranchResult // Per-branch outcomes in matrix order
	StartedAt    time.Time      // Run start
	Duration     time.Duration  // Total wall time
}

// Succeeded counts branches that completed successfully.
func (r RunResult) Succeeded() int {
	n := 0
	for _, br := range r.Branches {
		if br.Status == StatusSuccess {
			n++
		}
	}
	return n
}

// Failed counts branches whose status counts as a failure.
func (r RunResult) Failed() int {
	n := 0
	for _, br := range r.Branches {
		if br.Status.Failed() {
			n++
		}
	}
	return n
}

// FailedBranches returns the branch results that count as failures.
func (r RunResult) FailedBranches() []BranchResult {
	var out []BranchResult
	for _, br := range r.Branches {
		if br.Status.Failed() {
			out = append(out, br)
		}
	}
	return out
}

// OverallStatus derives the run status from branch results: success only
// when every branch succeeded, failure when any branch failed, cancelled
// when the worst outcome was a cancellation.
func OverallStatus(branches []BranchResult) Status {
	sawCancelled := false
	for _, br := range branches {
		switch br.Status {
		case StatusFailure:
			return StatusFailure
		case StatusCancelled:
			sawCancelled = true
		}
	}
	if sawCancelled {
		return StatusCancelled
	}
	return StatusSuccess
}
