package display

import (
	"fmt"
	"io"
	"strings"
)

// Warning is a user-facing notice about a non-fatal condition, such as
// failed workspaces being kept for inspection or a history database
// that could not be updated.
type Warning struct {
	Title   string   // What happened
	Message string   // Detail (optional)
	Files   []string // Related paths (optional)
	Hint    string   // What the user can do about it (optional)
}

// Render writes the warning block. Colorized output wraps the whole
// block in yellow.
func (w Warning) Render(out io.Writer, colorOutput bool) {
	var b strings.Builder

	if colorOutput {
		b.WriteString(ansiYellow)
	}
	b.WriteString("⚠️  Warning: ")
	b.WriteString(w.Title)
	b.WriteString("\n")

	if w.Message != "" {
		b.WriteString("    ")
		b.WriteString(w.Message)
		b.WriteString("\n")
	}

	for _, file := range w.Files {
		b.WriteString("      - ")
		b.WriteString(file)
		b.WriteString("\n")
	}

	if w.Hint != "" {
		b.WriteString("    Hint: ")
		b.WriteString(w.Hint)
		b.WriteString("\n")
	}

	if colorOutput {
		b.WriteString(ansiReset)
	}
	fmt.Fprint(out, b.String())
}
