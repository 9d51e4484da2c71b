package executor

import (
	"github.com/walther/conveyor/internal/actions"
	"github.com/walther/conveyor/internal/models"
)

// ValidateActions checks every uses: step against the builtin registry.
// An unknown action is a workflow defect, so it is reported before any
// branch starts rather than failing one branch at a time.
func ValidateActions(wf *models.Workflow, registry *actions.Registry) error {
	for i := range wf.Jobs {
		job := &wf.Jobs[i]
		for j := range job.Steps {
			step := &job.Steps[j]
			if !step.IsAction() {
				continue
			}
			if !registry.Known(step.Uses) {
				return &UnknownActionError{
					JobID: job.ID,
					Step:  stepDisplayName(step, j),
					Uses:  step.Uses,
					Known: registry.Names(),
				}
			}
		}
	}
	return nil
}
