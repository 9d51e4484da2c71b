// Package display provides terminal output formatting for the conveyor CLI.
//
// It centralizes the ANSI color codes and user-facing layout used by the
// run, validate and history commands:
//
// # Branch Tables
//
// FormatBranchTable renders run results as an aligned table, one row per
// branch, colorized by status when the output is a terminal:
//
//	for _, row := range display.FormatBranchTable(result.Branches, colorOutput) {
//	    fmt.Println(row)
//	}
//
// # Validation Progress
//
// ValidationProgress reports per-file progress while validating
// workflow files:
//
//	progress := display.NewValidationProgress(os.Stdout, len(files), colorOutput)
//	progress.Start()
//	for _, file := range files {
//	    if err := validate(file); err != nil {
//	        progress.Fail(file, err)
//	    } else {
//	        progress.Pass(file)
//	    }
//	}
//	progress.Complete()
//
// # Warning Blocks
//
// Warning renders a non-fatal condition with optional detail, related
// files, and a hint:
//
//	display.Warning{
//	    Title: "Failed workspaces kept",
//	    Files: kept,
//	    Hint:  "inspect them, then remove the run directory",
//	}.Render(os.Stderr, colorOutput)
//
// # Workflow Discovery
//
// FindWorkflowFiles scans a directory for workflow definitions so the
// validate command can run without explicit arguments.
//
// # Colors
//
// Colorized output uses raw ANSI escape codes so rendering is
// deterministic under test: cyan for in-progress lines, green for
// success, red for failure, yellow for warnings and cancelled branches.
// ColorOutput reports whether a file is a terminal that should receive
// them; it honors NO_COLOR via the color package's global detection.
package display
