// Package shell runs workflow step commands through a POSIX shell with
// an allowlisted environment.
package shell

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"syscall"
	"time"
)

// DefaultShell is used when a step or the config does not name one.
const DefaultShell = "sh"

// Invocation describes a single command to run.
type Invocation struct {
	// Script is the command text, interpreted by the shell.
	Script string
	// Shell is the shell binary (default: sh). Invoked as `<shell> -c <script>`.
	Shell string
	// Dir is the working directory.
	Dir string
	// Env is the complete environment the command sees. Host variables
	// are never passed through; the caller builds the allowlist.
	Env map[string]string
	// Stdout and Stderr receive the command output. Nil writers discard.
	Stdout io.Writer
	Stderr io.Writer
}

// Result reports how a command finished. A nonzero exit code is not an
// error; callers derive step status from the code.
type Result struct {
	ExitCode int
	Duration time.Duration
}

// Runner executes shell invocations. The executor depends on this
// interface so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Result, error)
}

// SystemRunner runs invocations as real processes on the host.
type SystemRunner struct{}

// NewSystemRunner creates a Runner backed by os/exec.
func NewSystemRunner() *SystemRunner {
	return &SystemRunner{}
}

// Run executes the invocation and waits for it to finish. On context
// cancellation the whole process group is killed so shell children do
// not outlive the step, and ctx.Err() is returned.
func (r *SystemRunner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	if inv.Script == "" {
		return nil, fmt.Errorf("invocation script is empty")
	}
	shellBin := inv.Shell
	if shellBin == "" {
		shellBin = DefaultShell
	}

	cmd := exec.Command(shellBin, "-c", inv.Script)
	cmd.Dir = inv.Dir
	cmd.Env = flattenEnv(inv.Env)
	// Own process group so cancellation can kill the full tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	cmd.Stdout = inv.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = io.Discard
	}
	cmd.Stderr = inv.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = io.Discard
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", shellBin, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			// Negative pid addresses the process group.
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return nil, ctx.Err()
	case waitErr = <-done:
	}

	res := &Result{Duration: time.Since(start)}
	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("failed to run %s: %w", shellBin, waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

// flattenEnv converts the env map to the KEY=value slice os/exec wants.
// Sorted for reproducible process environments and test output.
func flattenEnv(env map[string]string) []string {
	if len(env) == 0 {
		// Empty, not nil: the command must not inherit the host env.
		return []string{}
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
