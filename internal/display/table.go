package display

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/walther/conveyor/internal/models"
)

// ANSI escape codes used for colorized rows.
const (
	ansiCyan   = "\x1b[36m"
	ansiGreen  = "\x1b[32m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiGray   = "\x1b[90m"
	ansiReset  = "\x1b[0m"
)

// ColorOutput reports whether f is a terminal that should receive ANSI
// colors. The color package's NoColor global already accounts for the
// NO_COLOR convention.
func ColorOutput(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) && !color.NoColor
}

// FormatBranchTable renders branch results as aligned table rows:
// branch name, status, duration. Rows are colorized by status when
// colorOutput is set.
func FormatBranchTable(results []models.BranchResult, colorOutput bool) []string {
	if len(results) == 0 {
		return []string{"No branches executed"}
	}

	branchWidth := len("BRANCH")
	statusWidth := len("STATUS")
	for _, br := range results {
		if len(br.Branch.Name) > branchWidth {
			branchWidth = len(br.Branch.Name)
		}
		if len(br.Status) > statusWidth {
			statusWidth = len(br.Status)
		}
	}

	header := fmt.Sprintf("%-*s  %-*s  %s", branchWidth, "BRANCH", statusWidth, "STATUS", "DURATION")
	rows := []string{header, strings.Repeat("-", len(header))}

	for _, br := range results {
		row := fmt.Sprintf("%-*s  %-*s  %.1fs",
			branchWidth, br.Branch.Name,
			statusWidth, br.Status,
			br.Duration.Seconds())
		rows = append(rows, Colorize(br.Status, row, colorOutput))
	}
	return rows
}

// Colorize wraps line in the ANSI color for the status. The line comes
// back unchanged when colorOutput is off.
func Colorize(s models.Status, line string, colorOutput bool) string {
	if !colorOutput {
		return line
	}
	return statusCode(s) + line + ansiReset
}

// statusCode maps a status to its ANSI color code.
func statusCode(s models.Status) string {
	switch s {
	case models.StatusSuccess:
		return ansiGreen
	case models.StatusFailure:
		return ansiRed
	case models.StatusCancelled:
		return ansiYellow
	case models.StatusSkipped:
		return ansiGray
	}
	return ansiCyan
}
