// Package logger provides the logging implementations for conveyor runs.
//
// ConsoleLogger writes timestamped progress lines for humans watching a
// run; FileLogger keeps a durable per-run log plus per-branch detail
// files. Both implement the executor.Logger interface and are safe for
// concurrent use by branch goroutines.
package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/walther/conveyor/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs run progress to a writer with [HH:MM:SS] prefixes.
// Branch lines appear at info, step lines at debug, raw step output at
// trace. Color is enabled automatically when writing to a terminal.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool

	progress *ProgressBar
}

// NewConsoleLogger creates a ConsoleLogger writing to the given writer.
// If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive);
// empty or invalid levels default to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
// Returns true for os.Stdout and os.Stderr when they are TTYs; the
// color library's detection also honors NO_COLOR.
func isTerminal(w io.Writer) bool {
	if w == nil {
		return false
	}
	if w == os.Stdout || w == os.Stderr {
		return !color.NoColor
	}
	return false
}

// normalizeLogLevel converts a log level string to lowercase and
// validates it. Returns "info" for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if validLevels[normalized] {
		return normalized
	}
	return "info"
}

// ValidLevel reports whether level names a known log level.
func ValidLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug", "info", "warn", "error":
		return true
	}
	return false
}

// shouldLog checks if a message at the given level should be logged.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

// Warnf formats and logs a warning.
func (cl *ConsoleLogger) Warnf(format string, args ...interface{}) {
	cl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

// Debugf formats and logs a debug message.
func (cl *ConsoleLogger) Debugf(format string, args ...interface{}) {
	cl.logWithLevel("DEBUG", fmt.Sprintf(format, args...))
}

// logWithLevel logs a message at the given level if filtering allows it.
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil {
		return
	}
	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var formatted string
	if cl.colorOutput {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, cl.colorLevel(level), message)
	} else {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, level, message)
	}
	cl.writer.Write([]byte(formatted))
}

// colorLevel renders a level tag with its ANSI color.
func (cl *ConsoleLogger) colorLevel(level string) string {
	switch strings.ToUpper(level) {
	case "TRACE":
		return color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		return color.New(color.FgCyan).Sprint(level)
	case "INFO":
		return color.New(color.FgBlue).Sprint(level)
	case "WARN":
		return color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		return color.New(color.FgRed).Sprint(level)
	}
	return level
}

// LogRunStart announces the run at INFO level.
// Format: "[HH:MM:SS] Running <workflow> (<event>): <n> branches"
func (cl *ConsoleLogger) LogRunStart(wf *models.Workflow, event models.Event, runID string, branches int) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	cl.progress = NewProgressBar(branches, 10, cl.colorOutput)

	ts := timestamp()
	branchLabel := "branch"
	if branches != 1 {
		branchLabel = "branches"
	}

	name := wf.Name
	if cl.colorOutput {
		name = color.New(color.Bold).Sprint(name)
	}
	fmt.Fprintf(cl.writer, "[%s] Running %s (%s): %d %s\n", ts, name, event.Type, branches, branchLabel)
	fmt.Fprintf(cl.writer, "[%s] Run ID: %s\n", ts, runID)
}

// LogBranchStart announces a branch entering execution at INFO level.
func (cl *ConsoleLogger) LogBranchStart(branch models.Branch) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	name := branch.Name
	if cl.colorOutput {
		name = color.New(color.Bold).Sprint(name)
	}
	fmt.Fprintf(cl.writer, "[%s] %s started\n", timestamp(), name)
}

// LogBranchComplete reports a branch result at INFO level with a
// completion counter.
// Format: "[HH:MM:SS] test (3.10) failure (2.1s) [==    ] 1/3 (33%)"
func (cl *ConsoleLogger) LogBranchComplete(result models.BranchResult) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	status := string(result.Status)
	name := result.Branch.Name
	if cl.colorOutput {
		status = cl.colorStatus(result.Status)
		name = color.New(color.Bold).Sprint(name)
	}

	var bar string
	if cl.progress != nil {
		cl.progress.Increment()
		bar = " " + cl.progress.Render()
	}
	fmt.Fprintf(cl.writer, "[%s] %s %s (%s)%s\n", ts, name, status, formatDuration(result.Duration), bar)
}

// LogStepStart announces a step at DEBUG level.
func (cl *ConsoleLogger) LogStepStart(branch models.Branch, stepName string) {
	if cl.writer == nil || !cl.shouldLog("debug") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	fmt.Fprintf(cl.writer, "[%s] [%s] > %s\n", timestamp(), branch.Name, stepName)
}

// LogStepResult reports a finished or skipped step at DEBUG level.
func (cl *ConsoleLogger) LogStepResult(branch models.Branch, result models.StepResult) {
	if cl.writer == nil || !cl.shouldLog("debug") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	status := string(result.Status)
	if cl.colorOutput {
		status = cl.colorStatus(result.Status)
	}
	fmt.Fprintf(cl.writer, "[%s] [%s] %s: %s (%s)\n",
		timestamp(), branch.Name, result.Name, status, formatDuration(result.Duration))
}

// LogSummary renders the final run summary at INFO level.
func (cl *ConsoleLogger) LogSummary(result *models.RunResult) {
	if cl.writer == nil || !cl.shouldLog("info") || result == nil {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var sb strings.Builder

	header := "=== Run Summary ==="
	if cl.colorOutput {
		header = color.New(color.Bold).Sprint(header)
	}
	fmt.Fprintf(&sb, "[%s] %s\n", ts, header)
	fmt.Fprintf(&sb, "[%s] Workflow: %s (%s)\n", ts, result.WorkflowName, result.Event.Type)

	for _, br := range result.Branches {
		status := string(br.Status)
		if cl.colorOutput {
			status = cl.colorStatus(br.Status)
		}
		fmt.Fprintf(&sb, "[%s]   %-24s %s (%s)\n", ts, br.Branch.Name, status, formatDuration(br.Duration))
		if step, found := br.FailedStep(); found {
			fmt.Fprintf(&sb, "[%s]     failed at: %s (exit %d)\n", ts, step.Name, step.ExitCode)
			if step.LogPath != "" {
				fmt.Fprintf(&sb, "[%s]     log: %s\n", ts, step.LogPath)
			}
		}
	}

	overall := strings.ToUpper(string(result.Status))
	if cl.colorOutput {
		overall = colorFor(result.Status).Sprint(overall)
	}
	fmt.Fprintf(&sb, "[%s] %d/%d branches passed, %s total\n",
		ts, result.Succeeded(), len(result.Branches), formatDuration(result.Duration))
	fmt.Fprintf(&sb, "[%s] Status: %s\n", ts, overall)

	cl.writer.Write([]byte(sb.String()))
}

// StepOutput streams raw step output at TRACE level, prefixed with the
// branch name. At higher levels step output goes to the log files only.
func (cl *ConsoleLogger) StepOutput(branch models.Branch) io.Writer {
	if cl.writer == nil || !cl.shouldLog("trace") {
		return nil
	}
	return &prefixWriter{logger: cl, prefix: branch.Name}
}

// colorStatus renders a status with its conventional color.
func (cl *ConsoleLogger) colorStatus(s models.Status) string {
	return colorFor(s).Sprint(string(s))
}

// colorFor maps a status to its display color.
func colorFor(s models.Status) *color.Color {
	switch s {
	case models.StatusSuccess:
		return color.New(color.FgGreen)
	case models.StatusFailure:
		return color.New(color.FgRed)
	case models.StatusCancelled:
		return color.New(color.FgYellow)
	case models.StatusSkipped:
		return color.New(color.FgHiBlack)
	case models.StatusRunning:
		return color.New(color.FgCyan)
	}
	return color.New(color.Reset)
}

// prefixWriter splits step output into lines and emits each with the
// branch prefix. Partial lines are buffered until their newline.
type prefixWriter struct {
	logger *ConsoleLogger
	prefix string
	buf    []byte
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := string(w.buf[:i])
		w.buf = w.buf[i+1:]

		w.logger.mutex.Lock()
		fmt.Fprintf(w.logger.writer, "[%s] [%s] | %s\n", timestamp(), w.prefix, line)
		w.logger.mutex.Unlock()
	}
	return len(p), nil
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a time.Duration to a short human-readable
// string: "5s", "1m30s", "2h15m0s".
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		minutes := remainder / time.Minute
		seconds := (remainder % time.Minute) / time.Second
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case d >= time.Minute:
		minutes := d / time.Minute
		seconds := (d % time.Minute) / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	case d >= time.Second:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
}

// NoOpLogger discards all run progress. Useful for tests and for
// commands that only need exit codes.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogRunStart(*models.Workflow, models.Event, string, int) {}
func (n *NoOpLogger) LogBranchStart(models.Branch)                            {}
func (n *NoOpLogger) LogBranchComplete(models.BranchResult)                   {}
func (n *NoOpLogger) LogStepStart(models.Branch, string)                      {}
func (n *NoOpLogger) LogStepResult(models.Branch, models.StepResult)          {}
func (n *NoOpLogger) LogSummary(*models.RunResult)                            {}
func (n *NoOpLogger) StepOutput(models.Branch) io.Writer                      { return nil }
func (n *NoOpLogger) Warnf(string, ...interface{})                            {}
func (n *NoOpLogger) Debugf(string, ...interface{})                           {}
