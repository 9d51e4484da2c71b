package executor

import (
	"errors"
	"fmt"
	"strings"
)

// BranchError describes an infrastructure failure while executing a
// branch: workspace provisioning, an unresolvable action, a shell that
// would not start. Step commands exiting nonzero are results, not
// BranchErrors.
type BranchError struct {
	Branch string // Branch display name
	Step   string // Step name, empty when the branch itself failed
	Err    error  // Underlying error
}

// NewBranchError creates a BranchError for the given branch and step.
func NewBranchError(branch, step string, err error) *BranchError {
	return &BranchError{Branch: branch, Step: step, Err: err}
}

// Error implements the error interface.
func (e *BranchError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("branch %s", e.Branch))
	if e.Step != "" {
		sb.WriteString(fmt.Sprintf(", step %q", e.Step))
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *BranchError) Unwrap() error {
	return e.Err
}

// IsBranchError checks if the error is or wraps a BranchError.
func IsBranchError(err error) bool {
	if err == nil {
		return false
	}
	var be *BranchError
	return errors.As(err, &be)
}

// UnknownActionError is returned by preflight validation when a step
// references an action the registry does not provide.
type UnknownActionError struct {
	JobID string
	Step  string
	Uses  string
	Known []string
}

// Error implements the error interface.
func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("job %q step %q uses unknown action %q (available: %s)",
		e.JobID, e.Step, e.Uses, strings.Join(e.Known, ", "))
}
