package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/walther/conveyor/internal/models"
)

func reportBranch(version string, status models.Status, d time.Duration, summary string) models.BranchResult {
	return models.BranchResult{
		Branch: models.Branch{
			JobID: "test",
			Name:  "test (" + version + ")",
			Combination: models.Combination{
				Keys:   []string{"python-version"},
				Values: map[string]string{"python-version": version},
			},
		},
		Status:   status,
		Duration: d,
		Summary:  summary,
	}
}

func multiBranchResult() *models.RunResult {
	return &models.RunResult{
		RunID:        "1f0c9aab-run0",
		WorkflowName: "CI",
		WorkflowPath: ".conveyor/workflows/ci.yaml",
		Event:        models.NewEvent(models.EventWorkflowDispatch),
		Status:       models.StatusFailure,
		StartedAt:    time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Duration:     3400 * time.Millisecond,
		Branches: []models.BranchResult{
			reportBranch("3.12", models.StatusSuccess, 1200*time.Millisecond, "## 5 passed\n"),
			reportBranch("3.10", models.StatusFailure, 1300*time.Millisecond, "## 4 passed, 1 failed\n"),
			reportBranch("3.11", models.StatusSuccess, 1100*time.Millisecond, ""),
		},
	}
}

func singleBranchResult() *models.RunResult {
	return &models.RunResult{
		RunID:        "7b1d2e3f-run1",
		WorkflowName: "Docs",
		WorkflowPath: ".conveyor/workflows/docs.yaml",
		Event:        models.NewEvent(models.EventWorkflowCall),
		Status:       models.StatusSuccess,
		StartedAt:    time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Duration:     800 * time.Millisecond,
		Branches: []models.BranchResult{
			{
				Branch:   models.Branch{JobID: "docs", Name: "docs"},
				Status:   models.StatusSuccess,
				Duration: 800 * time.Millisecond,
			},
		},
	}
}

func TestBuildMarkdownGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	t.Run("multi branch with summaries", func(t *testing.T) {
		g.Assert(t, "multi_branch", BuildMarkdown(multiBranchResult()))
	})

	t.Run("single branch without summaries", func(t *testing.T) {
		g.Assert(t, "single_branch", BuildMarkdown(singleBranchResult()))
	})
}

func TestBuildMarkdownEscapesPipes(t *testing.T) {
	result := singleBranchResult()
	result.Branches[0].Branch.Name = "docs | main"

	md := string(BuildMarkdown(result))
	if !strings.Contains(md, `| docs \| main | success |`) {
		t.Errorf("pipe not escaped:\n%s", md)
	}
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "report")
	result := multiBranchResult()

	if err := Write(dir, result); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	md, err := os.ReadFile(filepath.Join(dir, "summary.md"))
	if err != nil {
		t.Fatalf("summary.md: %v", err)
	}
	if string(md) != string(BuildMarkdown(result)) {
		t.Error("summary.md does not match BuildMarkdown output")
	}

	htmlDoc, err := os.ReadFile(filepath.Join(dir, "summary.html"))
	if err != nil {
		t.Fatalf("summary.html: %v", err)
	}
	content := string(htmlDoc)
	for _, want := range []string{
		"<!DOCTYPE html>",
		"<title>CI</title>",
		"<table>",
		"test (3.12)",
		"</html>",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("summary.html missing %q", want)
		}
	}
}

func TestWriteNilResult(t *testing.T) {
	if err := Write(t.TempDir(), nil); err == nil {
		t.Error("expected an error for a nil result")
	}
}
