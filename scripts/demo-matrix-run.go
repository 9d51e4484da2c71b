//go:build ignore
// +build ignore

// Demo script that expands an interpreter matrix and runs it twice:
// once with fail-fast disabled (siblings finish after a failure) and
// once with fail-fast forced on (siblings are cancelled).
// Run with: go run scripts/demo-matrix-run.go
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/walther/conveyor/internal/actions"
	"github.com/walther/conveyor/internal/display"
	"github.com/walther/conveyor/internal/executor"
	"github.com/walther/conveyor/internal/logger"
	"github.com/walther/conveyor/internal/models"
	"github.com/walther/conveyor/internal/parser"
	"github.com/walther/conveyor/internal/runtimes"
	"github.com/walther/conveyor/internal/shell"
	"github.com/walther/conveyor/internal/workspace"
)

const demoWorkflow = `name: Demo
on: workflow_dispatch
jobs:
  test:
    strategy:
      fail-fast: false
      matrix:
        version: ["3.12", "3.10", "3.11"]
    steps:
      - name: Set up
        run: echo "preparing ${{ matrix.version }}"
      - name: Run tests
        run: |
          if [ "${{ matrix.version }}" = "3.10" ]; then
            echo "simulated test failure" >&2
            exit 1
          fi
          echo "all tests passed on ${{ matrix.version }}"
`

func main() {
	dir, err := os.MkdirTemp("", "conveyor-demo-*")
	check(err)
	defer os.RemoveAll(dir)

	wfPath := filepath.Join(dir, "ci.yaml")
	check(os.WriteFile(wfPath, []byte(demoWorkflow), 0644))

	wf, err := parser.ParseFile(wfPath)
	check(err)

	banner("Demo 1: fail-fast disabled (workflow strategy)")
	result := run(dir, wf, nil)
	printTable(result)

	banner("Demo 2: fail-fast forced on")
	failFast := true
	result = run(dir, wf, &failFast)
	printTable(result)
}

// run executes the workflow through the full stack with a console
// logger, returning the aggregated result.
func run(projectDir string, wf *models.Workflow, failFast *bool) *models.RunResult {
	manager, err := workspace.NewManager(filepath.Join(projectDir, "runs"))
	check(err)

	log := logger.NewConsoleLogger(os.Stdout, "info")
	registry := actions.NewRegistry(runtimes.NewFinder(nil))

	stepExec := executor.NewStepExecutor(shell.NewSystemRunner(), registry, log)
	stepExec.ProjectDir = projectDir
	stepExec.RunsDir = manager.RunsDir()

	jobExec := &executor.JobExecutor{
		Branches:   stepExec,
		Workspaces: manager,
		Logger:     log,
	}
	orch := executor.NewOrchestrator(jobExec, manager, registry, log)

	result, err := orch.Run(context.Background(), executor.RunRequest{
		Workflow: wf,
		Event:    models.NewEvent(models.EventWorkflowDispatch),
		FailFast: failFast,
	})
	check(err)
	return result
}

func printTable(result *models.RunResult) {
	fmt.Println()
	for _, line := range display.FormatBranchTable(result.Branches, display.ColorOutput(os.Stdout)) {
		fmt.Println(line)
	}
	fmt.Println()
}

func banner(title string) {
	fmt.Println()
	fmt.Println("============================================================")
	fmt.Println(title)
	fmt.Println("============================================================")
}

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "demo failed: %v\n", err)
		os.Exit(1)
	}
}
