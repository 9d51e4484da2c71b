// Package actions implements the builtin steps a workflow references
// with uses:. There is no remote action fetching; the registry is the
// complete set.
package actions

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/walther/conveyor/internal/runtimes"
	"github.com/walther/conveyor/internal/workspace"
)

// ErrNoMatchingRuntime is returned by setup actions when no installed
// toolchain satisfies the requested version.
var ErrNoMatchingRuntime = runtimes.ErrNoMatchingRuntime

// Inputs carries everything an action invocation may need. With values
// arrive already interpolated.
type Inputs struct {
	// With holds the step's with: mapping.
	With map[string]string
	// Workspace is the executing branch's workspace.
	Workspace *workspace.Workspace
	// ProjectDir is the directory the runner was invoked in.
	ProjectDir string
	// RunsDir is excluded from checkout copies so a run never ingests
	// its own state.
	RunsDir string
	// Output receives the action's progress lines; it feeds the step log.
	Output io.Writer
}

// Logf writes a line to the action output.
func (in *Inputs) Logf(format string, args ...interface{}) {
	if in.Output != nil {
		fmt.Fprintf(in.Output, format+"\n", args...)
	}
}

// Action is a builtin step implementation. A returned error marks the
// step, and with it the branch, as failed.
type Action interface {
	// Name is the identifier workflows use in uses:.
	Name() string
	// Run performs the action inside the branch workspace.
	Run(ctx context.Context, in *Inputs) error
}

// Registry resolves uses: names to builtin actions.
type Registry struct {
	actions map[string]Action
}

// NewRegistry builds the registry of builtin actions. The finder
// backs the interpreter setup action.
func NewRegistry(finder *runtimes.Finder) *Registry {
	r := &Registry{actions: make(map[string]Action)}
	r.register(NewCheckout())
	r.register(NewSetupPython(finder))
	return r
}

func (r *Registry) register(a Action) {
	r.actions[a.Name()] = a
}

// Get returns the action registered under name.
func (r *Registry) Get(name string) (Action, bool) {
	a, ok := r.actions[name]
	return a, ok
}

// Known reports whether name resolves to a builtin action.
func (r *Registry) Known(name string) bool {
	_, ok := r.actions[name]
	return ok
}

// Names returns the registered action names, sorted. Used in the error
// for an unknown uses: reference.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
