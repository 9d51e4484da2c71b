// Package workspace provisions the isolated per-branch directories
// workflow steps execute in, and the accumulation files steps use to
// pass environment and PATH entries to later steps.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/walther/conveyor/internal/filelock"
)

const (
	srcDirName  = "src"
	homeDirName = "home"
	tmpDirName  = "tmp"
	logsDirName = "logs"

	envFileName     = "conveyor.env"
	pathFileName    = "conveyor.path"
	summaryFileName = "step-summary.md"
	lockFileName    = ".lock"
)

// Workspace is the on-disk layout for one branch:
//
//	<runs>/<run-id>/<job>/<branch-slug>/
//	    src/             checked-out project tree, step working dir
//	    home/            HOME for the branch
//	    tmp/             TMPDIR for the branch
//	    logs/            per-step output logs
//	    conveyor.env     KEY=value lines steps append for later steps
//	    conveyor.path    PATH entries steps prepend for later steps
//	    step-summary.md  markdown steps append for the run report
type Workspace struct {
	Root string
	Src  string
	Home string
	Tmp  string
	Logs string

	EnvFile     string
	PathFile    string
	SummaryFile string
}

// Manager creates and removes workspaces under a runs directory.
type Manager struct {
	runsDir string
	// KeepAll leaves every workspace on disk after the run.
	KeepAll bool
	// KeepFailed leaves workspaces of failed branches on disk.
	KeepFailed bool

	lock *filelock.FileLock
}

// NewManager creates a Manager rooted at runsDir, creating the
// directory if needed.
func NewManager(runsDir string) (*Manager, error) {
	if runsDir == "" {
		return nil, fmt.Errorf("runs directory is empty")
	}
	abs, err := filepath.Abs(runsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve runs directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}
	return &Manager{
		runsDir: abs,
		lock:    filelock.New(filepath.Join(abs, lockFileName)),
	}, nil
}

// RunsDir returns the absolute runs directory.
func (m *Manager) RunsDir() string {
	return m.runsDir
}

// RunDir returns the directory holding everything for one run.
func (m *Manager) RunDir(runID string) string {
	return filepath.Join(m.runsDir, runID)
}

// ReportDir returns the directory the run report is written to.
func (m *Manager) ReportDir(runID string) string {
	return filepath.Join(m.RunDir(runID), "report")
}

// Lock serializes runner processes sharing this runs directory.
// Branches within a run stay fully parallel; the lock only guards the
// shared on-disk state between processes.
func (m *Manager) Lock() error {
	return m.lock.Lock()
}

// TryLock attempts the runs-dir lock without blocking.
func (m *Manager) TryLock() (bool, error) {
	return m.lock.TryLock()
}

// Unlock releases the runs-dir lock.
func (m *Manager) Unlock() error {
	return m.lock.Unlock()
}

// Create provisions the workspace for one branch.
func (m *Manager) Create(runID, jobID, branchSlug string) (*Workspace, error) {
	if runID == "" || jobID == "" || branchSlug == "" {
		return nil, fmt.Errorf("run ID, job ID and branch slug are required")
	}

	root := filepath.Join(m.RunDir(runID), jobID, branchSlug)
	ws := &Workspace{
		Root:        root,
		Src:         filepath.Join(root, srcDirName),
		Home:        filepath.Join(root, homeDirName),
		Tmp:         filepath.Join(root, tmpDirName),
		Logs:        filepath.Join(root, logsDirName),
		EnvFile:     filepath.Join(root, envFileName),
		PathFile:    filepath.Join(root, pathFileName),
		SummaryFile: filepath.Join(root, summaryFileName),
	}

	for _, dir := range []string{ws.Src, ws.Home, ws.Tmp, ws.Logs} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create workspace dir %s: %w", dir, err)
		}
	}
	for _, file := range []string{ws.EnvFile, ws.PathFile, ws.SummaryFile} {
		if err := touch(file); err != nil {
			return nil, fmt.Errorf("failed to create workspace file %s: %w", file, err)
		}
	}
	return ws, nil
}

// Cleanup removes the branch workspace according to the keep policy.
func (m *Manager) Cleanup(ws *Workspace, failed bool) error {
	if ws == nil {
		return nil
	}
	if m.KeepAll {
		return nil
	}
	if failed && m.KeepFailed {
		return nil
	}
	if err := os.RemoveAll(ws.Root); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", ws.Root, err)
	}
	return nil
}

// TidyRun removes job directories left empty after branch cleanup, so a
// fully cleaned run keeps only its logs and report.
func (m *Manager) TidyRun(runID string) error {
	runDir := m.RunDir(runID)
	entries, err := os.ReadDir(runDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read run directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(runDir, entry.Name())
		children, err := os.ReadDir(sub)
		if err != nil {
			continue
		}
		if len(children) == 0 {
			os.Remove(sub)
		}
	}
	return nil
}

// ReadEnvFile parses the KEY=value accumulation file. Returns an empty
// map when the file is absent or blank.
func (ws *Workspace) ReadEnvFile() (map[string]string, error) {
	data, err := os.ReadFile(ws.EnvFile)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]string{}, nil
	}
	env, err := godotenv.UnmarshalBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse env file %s: %w", ws.EnvFile, err)
	}
	return env, nil
}

// ReadPathFile returns the PATH entries steps prepended, in file order.
func (ws *Workspace) ReadPathFile() ([]string, error) {
	data, err := os.ReadFile(ws.PathFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read path file: %w", err)
	}
	var entries []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			entries = append(entries, line)
		}
	}
	return entries, nil
}

// AppendPath adds a directory to the PATH accumulation file. Used by
// builtin actions such as the interpreter setup.
func (ws *Workspace) AppendPath(dir string) error {
	return appendLine(ws.PathFile, dir)
}

// AppendEnv adds a KEY=value line to the env accumulation file.
func (ws *Workspace) AppendEnv(key, value string) error {
	return appendLine(ws.EnvFile, key+"="+value)
}

// ReadSummary returns the markdown steps appended for the run report.
func (ws *Workspace) ReadSummary() (string, error) {
	data, err := os.ReadFile(ws.SummaryFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read step summary: %w", err)
	}
	return string(data), nil
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return nil
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}
