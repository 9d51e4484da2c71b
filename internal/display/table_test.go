package display

import (
	"strings"
	"testing"
	"time"

	"github.com/walther/conveyor/internal/models"
)

func branchResult(name string, status models.Status, d time.Duration) models.BranchResult {
	return models.BranchResult{
		Branch:   models.Branch{JobID: "test", Name: name},
		Status:   status,
		Duration: d,
	}
}

func TestFormatBranchTable(t *testing.T) {
	results := []models.BranchResult{
		branchResult("test (3.12)", models.StatusSuccess, 2*time.Second),
		branchResult("test (3.10)", models.StatusFailure, 1500*time.Millisecond),
		branchResult("test (3.11)", models.StatusCancelled, 0),
	}

	rows := FormatBranchTable(results, false)

	if len(rows) != 5 {
		t.Fatalf("got %d rows, want header + separator + 3 branches", len(rows))
	}

	header := rows[0]
	for _, col := range []string{"BRANCH", "STATUS", "DURATION"} {
		if !strings.Contains(header, col) {
			t.Errorf("header %q missing column %q", header, col)
		}
	}
	if rows[1] != strings.Repeat("-", len(header)) {
		t.Errorf("separator %q does not match header width %d", rows[1], len(header))
	}

	if !strings.Contains(rows[2], "test (3.12)") || !strings.Contains(rows[2], "success") || !strings.Contains(rows[2], "2.0s") {
		t.Errorf("row = %q", rows[2])
	}
	if !strings.Contains(rows[3], "failure") || !strings.Contains(rows[3], "1.5s") {
		t.Errorf("row = %q", rows[3])
	}
	if !strings.Contains(rows[4], "cancelled") {
		t.Errorf("row = %q", rows[4])
	}

	// Columns line up: every status starts at the same offset.
	statusCol := strings.Index(rows[2], "success")
	if strings.Index(rows[3], "failure") != statusCol {
		t.Errorf("status columns misaligned:\n%q\n%q", rows[2], rows[3])
	}
}

func TestFormatBranchTableColors(t *testing.T) {
	tests := []struct {
		status models.Status
		code   string
	}{
		{models.StatusSuccess, ansiGreen},
		{models.StatusFailure, ansiRed},
		{models.StatusCancelled, ansiYellow},
		{models.StatusSkipped, ansiGray},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			rows := FormatBranchTable([]models.BranchResult{
				branchResult("test (3.12)", tt.status, time.Second),
			}, true)

			row := rows[2]
			if !strings.HasPrefix(row, tt.code) {
				t.Errorf("row = %q, want prefix %q", row, tt.code)
			}
			if !strings.HasSuffix(row, ansiReset) {
				t.Errorf("row = %q, want reset suffix", row)
			}
		})
	}
}

func TestFormatBranchTablePlainHasNoANSI(t *testing.T) {
	rows := FormatBranchTable([]models.BranchResult{
		branchResult("test (3.12)", models.StatusSuccess, time.Second),
	}, false)

	for _, row := range rows {
		if strings.Contains(row, "\x1b[") {
			t.Errorf("plain row contains ANSI codes: %q", row)
		}
	}
}

func TestFormatBranchTableEmpty(t *testing.T) {
	rows := FormatBranchTable(nil, false)
	if len(rows) != 1 || rows[0] != "No branches executed" {
		t.Errorf("rows = %q", rows)
	}
}

func TestColorize(t *testing.T) {
	if got := Colorize(models.StatusSuccess, "line", false); got != "line" {
		t.Errorf("Colorize(off) = %q, want unchanged line", got)
	}
	got := Colorize(models.StatusFailure, "line", true)
	if got != ansiRed+"line"+ansiReset {
		t.Errorf("Colorize(on) = %q", got)
	}
}

func TestFormatBranchTableWidensToLongNames(t *testing.T) {
	long := "integration-suite (3.12, ubuntu-24.04)"
	rows := FormatBranchTable([]models.BranchResult{
		branchResult(long, models.StatusSuccess, time.Second),
		branchResult("test (3.10)", models.StatusSuccess, time.Second),
	}, false)

	statusCol := strings.Index(rows[2], "success")
	if statusCol <= len(long) {
		t.Errorf("status column %d does not clear the longest name (%d)", statusCol, len(long))
	}
	if strings.Index(rows[3], "success") != statusCol {
		t.Errorf("rows misaligned:\n%q\n%q", rows[2], rows[3])
	}
}
