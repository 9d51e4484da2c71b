// Package runtimes discovers interpreter toolchains installed on the
// host and matches them against workflow version requests.
package runtimes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// ErrNoMatchingRuntime is returned when no discovered interpreter
// satisfies the requested version constraint.
var ErrNoMatchingRuntime = errors.New("no matching runtime")

// probeTimeout bounds a single --version invocation.
const probeTimeout = 10 * time.Second

var (
	// pythonNamePattern matches the executable names considered during
	// discovery: python, python3, python3.12 and friends.
	pythonNamePattern = regexp.MustCompile(`^python(3(\.\d+)?)?$`)
	// versionOutputPattern extracts the version number from --version output.
	versionOutputPattern = regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`)
	// plainVersionPattern recognizes bare requests like "3", "3.10", "3.10.2".
	plainVersionPattern = regexp.MustCompile(`^\d+(\.\d+){0,2}$`)
)

// Interpreter is a discovered toolchain binary with its probed version.
type Interpreter struct {
	// Path is the absolute path of the binary.
	Path string
	// Version is the version the binary reported.
	Version *semver.Version
}

func (i Interpreter) String() string {
	return fmt.Sprintf("%s (%s)", i.Path, i.Version)
}

// Finder locates interpreters in the configured toolchain directories
// and on PATH.
type Finder struct {
	// ToolchainDirs are searched before PATH and may contain versions
	// not exposed on PATH at all.
	ToolchainDirs []string
	// PathEnv is the PATH value to scan. Empty means the host PATH.
	PathEnv string

	// probe reports the version string of a candidate binary.
	// Swapped out in tests.
	probe func(ctx context.Context, bin string) (string, error)
}

// NewFinder creates a Finder over the given toolchain directories.
func NewFinder(toolchainDirs []string) *Finder {
	return &Finder{
		ToolchainDirs: toolchainDirs,
		probe:         probeVersion,
	}
}

// Discover returns every python interpreter found, deduplicated by
// resolved path and sorted newest first. Binaries that fail the version
// probe are skipped; discovery only fails on an empty search space.
func (f *Finder) Discover(ctx context.Context) ([]Interpreter, error) {
	dirs := append([]string{}, f.ToolchainDirs...)
	pathEnv := f.PathEnv
	if pathEnv == "" {
		pathEnv = os.Getenv("PATH")
	}
	for _, dir := range filepath.SplitList(pathEnv) {
		if dir != "" {
			dirs = append(dirs, dir)
		}
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no toolchain directories and PATH is empty")
	}

	probe := f.probe
	if probe == nil {
		probe = probeVersion
	}

	seen := make(map[string]bool)
	var found []Interpreter
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !pythonNamePattern.MatchString(entry.Name()) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil {
				continue
			}
			if seen[resolved] {
				continue
			}
			seen[resolved] = true

			if !isExecutable(resolved) {
				continue
			}

			out, err := probe(ctx, resolved)
			if err != nil {
				continue
			}
			version, err := parseVersionOutput(out)
			if err != nil {
				continue
			}
			found = append(found, Interpreter{Path: resolved, Version: version})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Version.GreaterThan(found[j].Version)
	})
	return found, nil
}

// Match returns the newest discovered interpreter satisfying request.
// Bare versions like "3.10" match any patch release of that minor
// line; anything else is handed to semver as a constraint verbatim.
func (f *Finder) Match(ctx context.Context, request string) (*Interpreter, error) {
	constraint, err := ParseConstraint(request)
	if err != nil {
		return nil, err
	}

	interpreters, err := f.Discover(ctx)
	if err != nil {
		return nil, err
	}

	for _, interp := range interpreters {
		if constraint.Check(interp.Version) {
			match := interp
			return &match, nil
		}
	}
	return nil, fmt.Errorf("%w for %q (discovered %d interpreters)", ErrNoMatchingRuntime, request, len(interpreters))
}

// ParseConstraint converts a workflow version request into a semver
// constraint. "3.10" becomes "~3.10" so 3.10.12 satisfies it.
func ParseConstraint(request string) (*semver.Constraints, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, fmt.Errorf("empty version request")
	}
	if plainVersionPattern.MatchString(request) {
		request = "~" + request
	}
	c, err := semver.NewConstraint(request)
	if err != nil {
		return nil, fmt.Errorf("invalid version request %q: %w", request, err)
	}
	return c, nil
}

// probeVersion runs `<bin> --version` and returns the combined output.
func probeVersion(ctx context.Context, bin string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, "--version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", bin, err)
	}
	return string(out), nil
}

// parseVersionOutput extracts a semver version from probe output such
// as "Python 3.12.1".
func parseVersionOutput(out string) (*semver.Version, error) {
	match := versionOutputPattern.FindString(out)
	if match == "" {
		return nil, fmt.Errorf("no version in output %q", strings.TrimSpace(out))
	}
	return semver.NewVersion(match)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}
