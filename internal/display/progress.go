package display

import (
	"fmt"
	"io"
	"path/filepath"
)

// ValidationProgress reports per-file progress while validating
// workflow files.
type ValidationProgress struct {
	writer      io.Writer
	total       int
	checked     int
	passed      int
	colorOutput bool
}

// NewValidationProgress creates a progress reporter for total files.
func NewValidationProgress(w io.Writer, total int, colorOutput bool) *ValidationProgress {
	return &ValidationProgress{writer: w, total: total, colorOutput: colorOutput}
}

// Start displays the header line.
func (p *ValidationProgress) Start() {
	noun := "workflows"
	if p.total == 1 {
		noun = "workflow"
	}
	fmt.Fprintf(p.writer, "Validating %d %s:\n", p.total, noun)
}

// Pass reports a file that validated cleanly: green check, basename.
func (p *ValidationProgress) Pass(path string) {
	p.checked++
	p.passed++
	mark := "✓"
	if p.colorOutput {
		mark = ansiGreen + mark + ansiReset
	}
	fmt.Fprintf(p.writer, "  %s [%d/%d] %s\n", mark, p.checked, p.total, filepath.Base(path))
}

// Fail reports a file that failed validation: red cross, basename, error.
func (p *ValidationProgress) Fail(path string, err error) {
	p.checked++
	mark := "✗"
	if p.colorOutput {
		mark = ansiRed + mark + ansiReset
	}
	fmt.Fprintf(p.writer, "  %s [%d/%d] %s: %v\n", mark, p.checked, p.total, filepath.Base(path), err)
}

// Passed returns how many files validated cleanly so far.
func (p *ValidationProgress) Passed() int {
	return p.passed
}

// Complete displays the closing tally and reports whether every file
// passed.
func (p *ValidationProgress) Complete() bool {
	ok := p.passed == p.total
	line := fmt.Sprintf("%d/%d workflows valid", p.passed, p.total)
	if p.colorOutput {
		if ok {
			line = ansiGreen + line + ansiReset
		} else {
			line = ansiRed + line + ansiReset
		}
	}
	fmt.Fprintf(p.writer, "%s\n", line)
	return ok
}
