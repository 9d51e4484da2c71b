package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/walther/conveyor/internal/actions"
	"github.com/walther/conveyor/internal/models"
	"github.com/walther/conveyor/internal/runtimes"
	"github.com/walther/conveyor/internal/shell"
)

// writeInterpreter drops a fake python binary that answers --version.
func writeInterpreter(t *testing.T, dir, name, version string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := fmt.Sprintf("#!/bin/sh\necho \"Python %s\"\n", version)
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

// testPipeline is the full three-version workflow: checkout, interpreter
// setup, installer upgrade, test-tool install, conditional manifest
// install, test run.
func testPipeline() *models.Workflow {
	ff := false
	return &models.Workflow{
		Name:     "CI",
		FilePath: "/tmp/ci.yaml",
		On:       models.Triggers{WorkflowDispatch: &models.TriggerSpec{}},
		Jobs: []models.Job{{
			ID: "test",
			Strategy: models.Strategy{
				FailFast: &ff,
				Matrix: models.Matrix{Dimensions: []models.Dimension{
					{Name: "python-version", Values: []string{"3.12", "3.10", "3.11"}},
				}},
			},
			Steps: []models.Step{
				{Uses: "checkout"},
				{
					Name: "Set up Python ${{ matrix.python-version }}",
					Uses: "setup-python",
					With: map[string]string{"python-version": "${{ matrix.python-version }}"},
				},
				{Run: "python -m pip install --upgrade pip"},
				{Run: "python -m pip install pytest"},
				{
					If:  "exists('requirements.txt')",
					Run: "python -m pip install -r requirements.txt",
				},
				{Run: "python -m pytest -p no:warnings"},
			},
		}},
	}
}

// newPipelineHarness wires the real executors over a fake shell and a
// fake toolchain.
func newPipelineHarness(t *testing.T, runner shell.Runner, project string) (*Orchestrator, *JobExecutor) {
	t.Helper()
	toolchain := t.TempDir()
	writeInterpreter(t, toolchain, "python3.12", "3.12.1")
	writeInterpreter(t, toolchain, "python3.10", "3.10.13")
	writeInterpreter(t, toolchain, "python3.11", "3.11.7")

	m := newTestManager(t)
	m.KeepAll = true

	registry := actions.NewRegistry(runtimes.NewFinder([]string{toolchain}))
	stepExec := &StepExecutor{
		Runner:     runner,
		Actions:    registry,
		Shell:      shell.DefaultShell,
		ProjectDir: project,
		RunsDir:    m.RunsDir(),
		HostPath:   os.Getenv("PATH"),
	}
	jobExec := &JobExecutor{Branches: stepExec, Workspaces: m}
	return NewOrchestrator(jobExec, m, registry, nil), jobExec
}

func writePipelineProject(t *testing.T) string {
	t.Helper()
	project := t.TempDir()
	files := map[string]string{
		"app.py":      "def add(a, b):\n    return a + b\n",
		"test_app.py": "from app import add\n\ndef test_add():\n    assert add(1, 2) == 3\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(project, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return project
}

func TestPipelineThreeVersionsGreen(t *testing.T) {
	runner := &fakeRunner{}
	runner.rules = append(runner.rules, fakeRule{match: "pytest", exitCode: 0, stdout: "5 passed\n"})

	project := writePipelineProject(t)
	orch, jobExec := newPipelineHarness(t, runner, project)

	result, err := orch.Run(context.Background(), RunRequest{
		Workflow: testPipeline(),
		Event:    models.NewEvent(models.EventWorkflowDispatch),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != models.StatusSuccess {
		t.Fatalf("run status = %s, want success", result.Status)
	}
	if len(result.Branches) != 3 {
		t.Fatalf("branches = %d, want 3", len(result.Branches))
	}

	wantVersions := []string{"3.12", "3.10", "3.11"}
	for i, br := range result.Branches {
		version := wantVersions[i]
		if br.Branch.Name != fmt.Sprintf("test (%s)", version) {
			t.Errorf("branch %d = %q", i, br.Branch.Name)
		}
		if br.Status != models.StatusSuccess {
			t.Errorf("branch %s status = %s", br.Branch.Name, br.Status)
		}
		if len(br.Steps) != 6 {
			t.Fatalf("branch %s ran %d steps, want 6", br.Branch.Name, len(br.Steps))
		}
		if got := br.Steps[1].Name; got != "Set up Python "+version {
			t.Errorf("branch %s setup step name = %q", br.Branch.Name, got)
		}
		// requirements.txt does not exist, so the manifest install is
		// skipped and everything else succeeds.
		for j, s := range br.Steps {
			want := models.StatusSuccess
			if j == 4 {
				want = models.StatusSkipped
			}
			if s.Status != want {
				t.Errorf("branch %s step %d status = %s, want %s", br.Branch.Name, j, s.Status, want)
			}
		}
	}

	// Every branch ran its three shell steps with its own interpreter
	// exposed through the accumulated environment.
	byVersion := map[string]int{}
	for _, inv := range runner.invocations {
		v := inv.Env["CONVEYOR_MATRIX_PYTHON_VERSION"]
		byVersion[v]++

		if loc := inv.Env["pythonLocation"]; loc == "" {
			t.Errorf("invocation %q has no pythonLocation", inv.Script)
		}
		if pv := inv.Env["PYTHON_VERSION"]; !strings.HasPrefix(pv, v+".") {
			t.Errorf("PYTHON_VERSION = %q for matrix value %s", pv, v)
		}
		// CONVEYOR_WORKSPACE is <branch>/src; the shim lives beside it.
		shimDir := filepath.Join(filepath.Dir(inv.Env["CONVEYOR_WORKSPACE"]), "toolchain")
		if !strings.HasPrefix(inv.Env["PATH"], shimDir+string(os.PathListSeparator)) {
			t.Errorf("PATH %q does not lead with the shim dir %q", inv.Env["PATH"], shimDir)
		}
	}
	for _, v := range wantVersions {
		if byVersion[v] != 3 {
			t.Errorf("version %s ran %d shell steps, want 3", v, byVersion[v])
		}
	}

	// Workspaces were kept, so the checkout and the interpreter shim
	// are inspectable.
	ws := filepath.Join(jobExec.Workspaces.RunDir(result.RunID), "test", "test-3-12")
	if _, err := os.Stat(filepath.Join(ws, "src", "app.py")); err != nil {
		t.Errorf("checkout did not copy app.py: %v", err)
	}
	target, err := os.Readlink(filepath.Join(ws, "toolchain", "python"))
	if err != nil {
		t.Fatalf("shim symlink: %v", err)
	}
	if !strings.HasSuffix(target, "python3.12") {
		t.Errorf("3.12 branch shim points at %q", target)
	}
}

func TestPipelineTestFailureFailsRunButNotSiblings(t *testing.T) {
	runner := &fakeRunner{}
	runner.on("pytest", 1)

	project := writePipelineProject(t)
	orch, _ := newPipelineHarness(t, runner, project)

	result, err := orch.Run(context.Background(), RunRequest{
		Workflow: testPipeline(),
		Event:    models.NewEvent(models.EventWorkflowDispatch),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != models.StatusFailure {
		t.Fatalf("run status = %s, want failure", result.Status)
	}
	// fail-fast is disabled: every branch still ran its full step
	// sequence and failed at the test step, not by cancellation.
	if result.Failed() != 3 {
		t.Errorf("failed branches = %d, want 3", result.Failed())
	}
	for _, br := range result.Branches {
		if br.Status != models.StatusFailure {
			t.Errorf("branch %s status = %s, want failure", br.Branch.Name, br.Status)
		}
		if len(br.Steps) != 6 {
			t.Fatalf("branch %s ran %d steps, want 6", br.Branch.Name, len(br.Steps))
		}
		step, found := br.FailedStep()
		if !found || !strings.Contains(step.Name, "pytest") {
			t.Errorf("branch %s failed at %q", br.Branch.Name, step.Name)
		}
		if step.ExitCode != 1 {
			t.Errorf("branch %s exit code = %d", br.Branch.Name, step.ExitCode)
		}
	}
}

func TestPipelineManifestInstallRuns(t *testing.T) {
	runner := &fakeRunner{}

	project := writePipelineProject(t)
	if err := os.WriteFile(filepath.Join(project, "requirements.txt"), []byte("pytest\n"), 0644); err != nil {
		t.Fatal(err)
	}
	orch, _ := newPipelineHarness(t, runner, project)

	result, err := orch.Run(context.Background(), RunRequest{
		Workflow: testPipeline(),
		Event:    models.NewEvent(models.EventWorkflowDispatch),
		// One branch is enough to observe the conditional step.
		MatrixFilter: map[string]string{"python-version": "3.11"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != models.StatusSuccess {
		t.Fatalf("run status = %s", result.Status)
	}
	if len(result.Branches) != 1 {
		t.Fatalf("branches = %d, want 1", len(result.Branches))
	}
	steps := result.Branches[0].Steps
	if steps[4].Status != models.StatusSuccess {
		t.Errorf("manifest install status = %s, want success", steps[4].Status)
	}

	var sawInstall bool
	for _, script := range runner.scripts() {
		if strings.Contains(script, "-r requirements.txt") {
			sawInstall = true
		}
	}
	if !sawInstall {
		t.Error("manifest install script never ran")
	}
}
