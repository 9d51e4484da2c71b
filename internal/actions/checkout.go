package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/walther/conveyor/internal/fileutil"
)

// Checkout copies the project source tree into the branch workspace.
// The local tree is the source of truth; nothing is fetched.
type Checkout struct{}

// NewCheckout creates the checkout action.
func NewCheckout() *Checkout {
	return &Checkout{}
}

// Name implements Action.
func (c *Checkout) Name() string {
	return "checkout"
}

// Run copies the tree named by with.path (default: the project dir)
// into the workspace src directory. The .git directory, the runner's
// own .conveyor state and the runs directory never enter the copy.
func (c *Checkout) Run(ctx context.Context, in *Inputs) error {
	source := in.With["path"]
	if source == "" {
		source = in.ProjectDir
	}
	if !filepath.IsAbs(source) {
		source = filepath.Join(in.ProjectDir, source)
	}

	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("checkout source: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("checkout source is not a directory: %s", source)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := fileutil.CopyTree(source, in.Workspace.Src, fileutil.CopyOptions{
		SkipNames: []string{".git", ".conveyor"},
		SkipPaths: []string{in.RunsDir, in.Workspace.Root},
	})
	if err != nil {
		return fmt.Errorf("checkout copy: %w", err)
	}

	in.Logf("Checked out %d files from %s", n, source)
	return nil
}
