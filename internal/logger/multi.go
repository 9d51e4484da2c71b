package logger

import (
	"io"

	"github.com/walther/conveyor/internal/executor"
	"github.com/walther/conveyor/internal/models"
)

// Multi fans every logger call out to each wrapped logger. The run
// command uses it to drive the console and the file log together.
type Multi struct {
	loggers []executor.Logger
}

// NewMulti combines loggers. Nil entries are dropped.
func NewMulti(loggers ...executor.Logger) *Multi {
	m := &Multi{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

func (m *Multi) LogRunStart(wf *models.Workflow, event models.Event, runID string, branches int) {
	for _, l := range m.loggers {
		l.LogRunStart(wf, event, runID, branches)
	}
}

func (m *Multi) LogBranchStart(branch models.Branch) {
	for _, l := range m.loggers {
		l.LogBranchStart(branch)
	}
}

func (m *Multi) LogBranchComplete(result models.BranchResult) {
	for _, l := range m.loggers {
		l.LogBranchComplete(result)
	}
}

func (m *Multi) LogStepStart(branch models.Branch, stepName string) {
	for _, l := range m.loggers {
		l.LogStepStart(branch, stepName)
	}
}

func (m *Multi) LogStepResult(branch models.Branch, result models.StepResult) {
	for _, l := range m.loggers {
		l.LogStepResult(branch, result)
	}
}

func (m *Multi) LogSummary(result *models.RunResult) {
	for _, l := range m.loggers {
		l.LogSummary(result)
	}
}

// StepOutput merges the non-nil step output sinks of the wrapped
// loggers, or returns nil when none of them streams.
func (m *Multi) StepOutput(branch models.Branch) io.Writer {
	var sinks []io.Writer
	for _, l := range m.loggers {
		if w := l.StepOutput(branch); w != nil {
			sinks = append(sinks, w)
		}
	}
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return io.MultiWriter(sinks...)
	}
}

func (m *Multi) Warnf(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Warnf(format, args...)
	}
}

func (m *Multi) Debugf(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Debugf(format, args...)
	}
}
