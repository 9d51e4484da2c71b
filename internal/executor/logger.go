package executor

import (
	"io"

	"github.com/walther/conveyor/internal/models"
)

// Logger receives execution progress. Implementations live in the
// logger package; every call site tolerates a nil Logger.
type Logger interface {
	// LogRunStart announces the run after expansion, before any branch starts.
	LogRunStart(wf *models.Workflow, event models.Event, runID string, branches int)
	// LogBranchStart announces a branch entering execution.
	LogBranchStart(branch models.Branch)
	// LogBranchComplete reports a branch's terminal result.
	LogBranchComplete(result models.BranchResult)
	// LogStepStart announces a step at debug level.
	LogStepStart(branch models.Branch, stepName string)
	// LogStepResult reports a finished or skipped step.
	LogStepResult(branch models.Branch, result models.StepResult)
	// LogSummary renders the final run summary.
	LogSummary(result *models.RunResult)

	// StepOutput returns a sink for live step output, or nil when the
	// level does not stream output. Step logs on disk are unaffected.
	StepOutput(branch models.Branch) io.Writer

	// Warnf and Debugf handle free-form diagnostics.
	Warnf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}
