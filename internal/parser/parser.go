package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/walther/conveyor/internal/fileutil"
	"github.com/walther/conveyor/internal/models"
)

// Format represents the format of a workflow definition file
type Format int

const (
	// FormatUnknown represents an unknown or unsupported file format
	FormatUnknown Format = iota
	// FormatYAML represents a YAML (.yaml, .yml) workflow file
	FormatYAML
)

// String returns the string representation of the Format
func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// Parser is the interface that all workflow parsers must implement
type Parser interface {
	// Parse reads from an io.Reader and returns a parsed Workflow
	Parse(r io.Reader) (*models.Workflow, error)
}

// DetectFormat automatically detects the workflow format based on file extension
// Supported extensions:
//   - .yaml, .yml -> FormatYAML
//   - all others -> FormatUnknown
func DetectFormat(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// NewParser creates a new parser instance for the specified format
// Returns an error if the format is unknown or unsupported
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatYAML:
		return NewYAMLParser(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %v", format)
	}
}

// ParseFile is a convenience function that:
//  1. Auto-detects the format from the file extension
//  2. Opens and parses the file
//  3. Stores the original file path in workflow.FilePath
//
// This is the recommended way to load workflow files from disk.
func ParseFile(path string) (*models.Workflow, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access path: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, expected a workflow file: %s", path)
	}

	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unknown file format: %s (supported: .yaml, .yml)", path)
	}

	parser, err := NewParser(format)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	wf, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow: %w", err)
	}

	// Store the original file path for log output and history.
	// Convert to absolute path for consistency.
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	wf.FilePath = absPath

	if wf.Name == "" {
		base := filepath.Base(path)
		wf.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return wf, nil
}

// DiscoverWorkflows returns the workflow files under dir, sorted by path.
// Only files with a YAML extension are included; dot-directories are skipped.
// Used when a command is given a directory instead of a single workflow file.
func DiscoverWorkflows(dir string) ([]string, error) {
	result, err := fileutil.ScanDirectory(dir, fileutil.ScanOptions{
		Extensions: []string{".yaml", ".yml"},
		Recursive:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory %q: %w", dir, err)
	}
	if len(result.Files) == 0 {
		return nil, fmt.Errorf("no workflow files found under %s", dir)
	}
	return result.Files, nil
}
