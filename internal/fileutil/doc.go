// Package fileutil provides the file system primitives the runner
// builds on: directory scanning for workflow discovery and tree copying
// for source checkout.
//
// # Main Components
//
// ScanOptions / ScanDirectory - directory traversal with extension
// filtering and directory exclusion. Hidden directories (starting with
// ".") are always skipped, so a scan of a project dir never descends
// into .git or the runner's own .conveyor state. Output is sorted and
// absolute for deterministic behavior across runs and platforms.
//
// CopyOptions / CopyTree - recursive copy of a source tree into a
// workspace. Symlinks are skipped rather than followed, and individual
// names or whole subtrees can be excluded from the copy.
//
// # Usage
//
// Workflow discovery:
//
//	result, err := fileutil.ScanDirectory(dir, fileutil.ScanOptions{
//	    Extensions: []string{".yaml", ".yml"},
//	    Recursive:  true,
//	})
//
// Checkout into a branch workspace:
//
//	n, err := fileutil.CopyTree(projectDir, ws.Src, fileutil.CopyOptions{
//	    SkipNames: []string{".git"},
//	    SkipPaths: []string{runsDir},
//	})
package fileutil
