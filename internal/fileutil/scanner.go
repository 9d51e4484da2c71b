package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScanOptions configures directory scanning.
type ScanOptions struct {
	// Extensions is the list of file extensions to include (e.g. ".yaml").
	// Matching is case-insensitive; empty means every file matches.
	Extensions []string
	// Recursive enables descending into subdirectories.
	Recursive bool
	// ExcludeDirs lists directory names skipped at any depth. Hidden
	// directories are always skipped.
	ExcludeDirs []string
}

// ScanResult holds the outcome of a scan.
type ScanResult struct {
	// Files contains the absolute paths of all matched files, sorted.
	Files []string
	// Errors collects non-fatal problems (unreadable subdirectories).
	Errors []error
}

// ScanDirectory walks dir and returns the files matching opts. Only a
// missing root is fatal; unreadable entries are collected and skipped.
func ScanDirectory(dir string, opts ScanOptions) (*ScanResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dir)
	}

	extMap := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extMap[strings.ToLower(ext)] = true
	}
	excludeMap := make(map[string]bool, len(opts.ExcludeDirs))
	for _, name := range opts.ExcludeDirs {
		excludeMap[name] = true
	}

	result := &ScanResult{Files: []string{}}
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("error accessing %s: %w", path, err))
			return nil
		}
		if path == dir {
			return nil
		}

		if d.IsDir() {
			if excludeMap[d.Name()] || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}

		if len(extMap) > 0 && !extMap[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("failed to resolve path %s: %w", path, err))
			return nil
		}
		result.Files = append(result.Files, abs)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.Strings(result.Files)
	return result, nil
}
