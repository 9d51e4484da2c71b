package cmd

import (
	"strings"
	"testing"
)

func TestValidateValidWorkflow(t *testing.T) {
	dir := setupProject(t)
	path := writeWorkflowFile(t, dir, "ci.yaml", matrixWorkflowYAML)

	output, err := executeCommand(t, "validate", path)
	if err != nil {
		t.Fatalf("Execute error: %v\noutput: %s", err, output)
	}

	for _, want := range []string{
		"Validating 1 workflow:",
		"✓",
		"ci.yaml",
		"1/1 workflows valid",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\noutput: %s", want, output)
		}
	}
}

func TestValidateStructuralDefect(t *testing.T) {
	dir := setupProject(t)
	path := writeWorkflowFile(t, dir, "broken.yaml", `name: Broken
on: workflow_dispatch
jobs:
  build: {}
`)

	output, err := executeCommand(t, "validate", path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "validation failed for 1 workflow(s)") {
		t.Errorf("error = %v, want validation failure count", err)
	}

	for _, want := range []string{"✗", "broken.yaml", "has no steps", "0/1 workflows valid"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\noutput: %s", want, output)
		}
	}
}

func TestValidateUnknownAction(t *testing.T) {
	dir := setupProject(t)
	path := writeWorkflowFile(t, dir, "ci.yaml", `name: CI
on: workflow_dispatch
jobs:
  build:
    steps:
      - uses: docker-build
`)

	output, err := executeCommand(t, "validate", path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(output, `unknown action "docker-build"`) {
		t.Errorf("output missing unknown action\noutput: %s", output)
	}
}

func TestValidateMixedResults(t *testing.T) {
	dir := setupProject(t)
	good := writeWorkflowFile(t, dir, "good.yaml", matrixWorkflowYAML)
	bad := writeWorkflowFile(t, dir, "bad.yaml", `name: Bad
on: workflow_dispatch
jobs:
  build: {}
`)

	output, err := executeCommand(t, "validate", good, bad)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "validation failed for 1 workflow(s)") {
		t.Errorf("error = %v, want one failed workflow", err)
	}
	if !strings.Contains(output, "1/2 workflows valid") {
		t.Errorf("output missing tally\noutput: %s", output)
	}
}

func TestValidateLintWarnings(t *testing.T) {
	dir := setupProject(t)
	path := writeWorkflowFile(t, dir, "ci.yaml", `name: CI
on: workflow_dispatch
jobs:
  test:
    strategy:
      matrix:
        version: ["3.12"]
    steps:
      - run: echo ${{ matrix.os }}
`)

	output, err := executeCommand(t, "validate", path)
	if err != nil {
		t.Fatalf("lint warnings should not fail validation: %v\noutput: %s", err, output)
	}

	for _, want := range []string{
		"1/1 workflows valid",
		"has 1 lint warning(s)",
		"references matrix.os",
		"lint warnings do not block execution",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\noutput: %s", want, output)
		}
	}
}

func TestValidateDiscoversProjectWorkflows(t *testing.T) {
	dir := setupProject(t)
	writeWorkflowFile(t, dir, ".conveyor/workflows/ci.yaml", matrixWorkflowYAML)
	writeWorkflowFile(t, dir, ".conveyor/workflows/docs.yml", `name: Docs
on: workflow_dispatch
jobs:
  build:
    steps:
      - run: echo docs
`)

	output, err := executeCommand(t, "validate")
	if err != nil {
		t.Fatalf("Execute error: %v\noutput: %s", err, output)
	}

	for _, want := range []string{"Validating 2 workflows:", "ci.yaml", "docs.yml", "2/2 workflows valid"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\noutput: %s", want, output)
		}
	}
}

func TestValidateNoWorkflowFiles(t *testing.T) {
	setupProject(t)

	_, err := executeCommand(t, "validate")
	if err == nil {
		t.Fatal("expected discovery error")
	}
	if !strings.Contains(err.Error(), "no workflow files found under") {
		t.Errorf("error = %v, want no workflows found", err)
	}
}
