package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/walther/conveyor/internal/runtimes"
)

// shimDirName is the directory the setup action creates inside the
// branch workspace for its interpreter links.
const shimDirName = "toolchain"

// SetupPython resolves a requested interpreter version against the
// host toolchains and exposes it to later steps via the workspace PATH
// accumulation file.
type SetupPython struct {
	finder *runtimes.Finder
}

// NewSetupPython creates the setup-python action over the given finder.
func NewSetupPython(finder *runtimes.Finder) *SetupPython {
	return &SetupPython{finder: finder}
}

// Name implements Action.
func (s *SetupPython) Name() string {
	return "setup-python"
}

// Run matches with.python-version against the discovered interpreters,
// links the chosen binary into a workspace shim directory and prepends
// that directory to the branch PATH. Later steps calling python or
// python3 get exactly the selected version.
func (s *SetupPython) Run(ctx context.Context, in *Inputs) error {
	request := in.With["python-version"]
	if request == "" {
		return fmt.Errorf("setup-python requires with.python-version")
	}
	if s.finder == nil {
		return fmt.Errorf("setup-python has no toolchain finder")
	}

	interp, err := s.finder.Match(ctx, request)
	if err != nil {
		return fmt.Errorf("setup-python %q: %w", request, err)
	}

	shimDir := filepath.Join(in.Workspace.Root, shimDirName)
	if err := os.MkdirAll(shimDir, 0755); err != nil {
		return fmt.Errorf("setup-python shim dir: %w", err)
	}
	for _, name := range []string{"python", "python3"} {
		link := filepath.Join(shimDir, name)
		if err := os.Symlink(interp.Path, link); err != nil && !os.IsExist(err) {
			return fmt.Errorf("setup-python link %s: %w", name, err)
		}
	}

	if err := in.Workspace.AppendPath(shimDir); err != nil {
		return fmt.Errorf("setup-python: %w", err)
	}
	if err := in.Workspace.AppendEnv("pythonLocation", filepath.Dir(interp.Path)); err != nil {
		return fmt.Errorf("setup-python: %w", err)
	}
	if err := in.Workspace.AppendEnv("PYTHON_VERSION", interp.Version.String()); err != nil {
		return fmt.Errorf("setup-python: %w", err)
	}

	in.Logf("Resolved python %s -> %s (%s)", request, interp.Version, interp.Path)
	return nil
}
