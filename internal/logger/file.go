package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/walther/conveyor/internal/models"
)

// FileLogger logs run events to files under the configured log
// directory. It creates a timestamped per-run log, per-branch detail
// files under branches/, and maintains a latest.log symlink pointing to
// the most recent run. It is thread-safe and implements the
// executor.Logger interface.
type FileLogger struct {
	logDir      string
	runLog      *os.File
	runFile     string
	branchesDir string
	logLevel    string
	mu          sync.Mutex
}

// NewFileLogger creates a FileLogger writing under logDir. The
// directory is created if missing; a run-YYYYMMDD-HHMMSS.log file is
// opened and latest.log is re-pointed at it.
func NewFileLogger(logDir, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	branchesDir := filepath.Join(logDir, "branches")
	if err := os.MkdirAll(branchesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create branches directory: %w", err)
	}

	ts := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", ts))

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	fl := &FileLogger{
		logDir:      logDir,
		runLog:      file,
		runFile:     runFile,
		branchesDir: branchesDir,
		logLevel:    normalizeLogLevel(logLevel),
	}

	fl.writeRunLog("=== Conveyor Run Log ===\n")
	fl.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))
	return fl, nil
}

// RunLogPath returns the path of the per-run log file.
func (fl *FileLogger) RunLogPath() string {
	return fl.runFile
}

// Close closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.runLog == nil {
		return nil
	}
	err := fl.runLog.Close()
	fl.runLog = nil
	return err
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.runLog == nil {
		return
	}
	fl.runLog.WriteString(message)
}

// Warnf formats and logs a warning line.
func (fl *FileLogger) Warnf(format string, args ...interface{}) {
	fl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

// Debugf formats and logs a debug line.
func (fl *FileLogger) Debugf(format string, args ...interface{}) {
	fl.logWithLevel("DEBUG", fmt.Sprintf(format, args...))
}

func (fl *FileLogger) logWithLevel(level, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, message))
}

// LogRunStart records the run header at INFO level.
func (fl *FileLogger) LogRunStart(wf *models.Workflow, event models.Event, runID string, branches int) {
	if !fl.shouldLog("info") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] Running %s (%s)\n", timestamp(), wf.Name, event.Type))
	fl.writeRunLog(fmt.Sprintf("[%s] Workflow file: %s\n", timestamp(), wf.FilePath))
	fl.writeRunLog(fmt.Sprintf("[%s] Run ID: %s\n", timestamp(), runID))
	fl.writeRunLog(fmt.Sprintf("[%s] Branches: %d\n", timestamp(), branches))
}

// LogBranchStart records a branch entering execution at INFO level.
func (fl *FileLogger) LogBranchStart(branch models.Branch) {
	if !fl.shouldLog("info") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] %s started\n", timestamp(), branch.Name))
}

// LogBranchComplete records the branch outcome in the run log and
// writes the branch detail file with every step result.
func (fl *FileLogger) LogBranchComplete(result models.BranchResult) {
	if fl.shouldLog("info") {
		fl.writeRunLog(fmt.Sprintf("[%s] %s %s (%.1fs)\n",
			timestamp(), result.Branch.Name, result.Status, result.Duration.Seconds()))
	}

	if err := fl.writeBranchLog(result); err != nil {
		fl.logWithLevel("WARN", fmt.Sprintf("branch log for %s: %v", result.Branch.Name, err))
	}
}

// writeBranchLog writes branches/<slug>.log with the full step detail.
func (fl *FileLogger) writeBranchLog(result models.BranchResult) error {
	path := filepath.Join(fl.branchesDir, result.Branch.Slug()+".log")

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create branch log file: %w", err)
	}
	defer file.Close()

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s ===\n", result.Branch.Name)
	fmt.Fprintf(&sb, "Status: %s\n", result.Status)
	fmt.Fprintf(&sb, "Duration: %.1fs\n", result.Duration.Seconds())
	if !result.Branch.Combination.Empty() {
		fmt.Fprintf(&sb, "Matrix: %s\n", result.Branch.Combination.Label())
	}
	sb.WriteString("\n")

	for i, step := range result.Steps {
		fmt.Fprintf(&sb, "Step %d: %s\n", i+1, step.Name)
		fmt.Fprintf(&sb, "  Status: %s\n", step.Status)
		if step.Status != models.StatusSkipped {
			fmt.Fprintf(&sb, "  Exit code: %d\n", step.ExitCode)
			fmt.Fprintf(&sb, "  Duration: %.1fs\n", step.Duration.Seconds())
		}
		if step.LogPath != "" {
			fmt.Fprintf(&sb, "  Log: %s\n", step.LogPath)
		}
		if step.Err != nil {
			fmt.Fprintf(&sb, "  Error: %v\n", step.Err)
		}
	}

	if result.Summary != "" {
		sb.WriteString("\n=== Step Summary ===\n")
		sb.WriteString(result.Summary)
	}
	if result.Err != nil {
		fmt.Fprintf(&sb, "\nError: %v\n", result.Err)
	}
	fmt.Fprintf(&sb, "\nCompleted at: %s\n", time.Now().Format(time.RFC3339))

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write branch log: %w", err)
	}
	return nil
}

// LogStepStart records a step start at DEBUG level.
func (fl *FileLogger) LogStepStart(branch models.Branch, stepName string) {
	if !fl.shouldLog("debug") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] > %s\n", timestamp(), branch.Name, stepName))
}

// LogStepResult records a step outcome at DEBUG level.
func (fl *FileLogger) LogStepResult(branch models.Branch, result models.StepResult) {
	if !fl.shouldLog("debug") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s: %s (%.1fs)\n",
		timestamp(), branch.Name, result.Name, result.Status, result.Duration.Seconds()))
}

// LogSummary records the final statistics block at INFO level.
func (fl *FileLogger) LogSummary(result *models.RunResult) {
	if !fl.shouldLog("info") || result == nil {
		return
	}

	ts := timestamp()
	message := fmt.Sprintf(
		"\n[%s] === RUN SUMMARY ===\n"+
			"[%s] Workflow:     %s\n"+
			"[%s] Run ID:       %s\n"+
			"[%s] Branches:     %d\n"+
			"[%s] Succeeded:    %d\n"+
			"[%s] Failed:       %d\n"+
			"[%s] Total time:   %.1fs\n"+
			"[%s] Status:       %s (%d/%d branches passed)\n"+
			"[%s] Completed at: %s\n",
		ts,
		ts, result.WorkflowName,
		ts, result.RunID,
		ts, len(result.Branches),
		ts, result.Succeeded(),
		ts, result.Failed(),
		ts, result.Duration.Seconds(),
		ts, strings.ToUpper(string(result.Status)), result.Succeeded(), len(result.Branches),
		ts, time.Now().Format(time.RFC3339),
	)
	fl.writeRunLog(message)
}

// StepOutput is nil for the file logger: step output already lands in
// the per-step workspace log files.
func (fl *FileLogger) StepOutput(models.Branch) io.Writer {
	return nil
}
