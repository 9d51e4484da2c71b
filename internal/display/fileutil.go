package display

import (
	"path/filepath"
	"strings"

	"github.com/walther/conveyor/internal/fileutil"
)

// IsWorkflowFile reports whether name looks like a workflow definition
// file (.yml or .yaml extension, case-insensitive).
func IsWorkflowFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yml", ".yaml":
		return true
	}
	return false
}

// FindWorkflowFiles returns the workflow files directly inside dir,
// sorted, as absolute paths. Subdirectories are not searched; the
// validate command uses this to check a whole workflows directory when
// no files are named explicitly.
func FindWorkflowFiles(dir string) ([]string, error) {
	result, err := fileutil.ScanDirectory(dir, fileutil.ScanOptions{
		Extensions: []string{".yml", ".yaml"},
		Recursive:  false,
	})
	if err != nil {
		return nil, err
	}
	return result.Files, nil
}
