// Package report writes the post-run report directory: an aggregated
// markdown summary of every branch plus an HTML rendering of it.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/walther/conveyor/internal/filelock"
	"github.com/walther/conveyor/internal/models"
)

// markdown renders GitHub-flavored markdown; GFM brings pipe tables.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Write renders the report for result into dir: summary.md and
// summary.html. Both files are written atomically so a reader polling
// the report directory never sees a partial file.
func Write(dir string, result *models.RunResult) error {
	if result == nil {
		return errors.New("nil run result")
	}

	md := BuildMarkdown(result)
	if err := filelock.AtomicWrite(filepath.Join(dir, "summary.md"), md); err != nil {
		return fmt.Errorf("write summary.md: %w", err)
	}

	htmlDoc, err := renderHTML(result.WorkflowName, md)
	if err != nil {
		return err
	}
	if err := filelock.AtomicWrite(filepath.Join(dir, "summary.html"), htmlDoc); err != nil {
		return fmt.Errorf("write summary.html: %w", err)
	}
	return nil
}

// BuildMarkdown renders the summary.md content: run header, branch
// table, and the step summaries collected from the branches. The output
// is deterministic for a given result.
func BuildMarkdown(result *models.RunResult) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run report: %s\n\n", result.WorkflowName)
	fmt.Fprintf(&b, "- Run ID: `%s`\n", result.RunID)
	fmt.Fprintf(&b, "- Event: `%s`\n", result.Event.Type)
	if result.WorkflowPath != "" {
		fmt.Fprintf(&b, "- Workflow file: `%s`\n", result.WorkflowPath)
	}
	fmt.Fprintf(&b, "- Status: **%s**\n", result.Status)
	fmt.Fprintf(&b, "- Started: %s\n", result.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %.1fs\n", result.Duration.Seconds())
	fmt.Fprintf(&b, "- Branches: %d/%d passed\n", result.Succeeded(), len(result.Branches))

	b.WriteString("\n## Branches\n\n")
	b.WriteString("| Branch | Status | Duration |\n")
	b.WriteString("| --- | --- | --- |\n")
	for _, br := range result.Branches {
		fmt.Fprintf(&b, "| %s | %s | %.1fs |\n",
			escapeCell(br.Branch.Name), br.Status, br.Duration.Seconds())
	}

	if hasSummaries(result) {
		b.WriteString("\n## Step summaries\n")
		for _, br := range result.Branches {
			if br.Summary == "" {
				continue
			}
			fmt.Fprintf(&b, "\n### %s\n\n", br.Branch.Name)
			b.WriteString(strings.TrimRight(br.Summary, "\n"))
			b.WriteString("\n")
		}
	}

	return []byte(b.String())
}

func hasSummaries(result *models.RunResult) bool {
	for _, br := range result.Branches {
		if br.Summary != "" {
			return true
		}
	}
	return false
}

// escapeCell keeps table cells intact when a value contains a pipe.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// renderHTML converts the markdown summary into a standalone HTML page.
func renderHTML(title string, md []byte) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert(md, &body); err != nil {
		return nil, fmt.Errorf("render summary.html: %w", err)
	}

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&out, "<title>%s</title>\n", html.EscapeString(title))
	out.WriteString("</head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}
