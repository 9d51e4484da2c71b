package executor

import (
	"fmt"

	"github.com/walther/conveyor/internal/models"
)

// ExpandBranches instantiates one branch per matrix combination, in
// declaration order (first dimension varies slowest). A job without a
// matrix yields exactly one branch.
func ExpandBranches(job *models.Job) []models.Branch {
	combos := job.Strategy.Matrix.Expand()
	branches := make([]models.Branch, 0, len(combos))
	for i, combo := range combos {
		branches = append(branches, models.Branch{
			JobID:       job.ID,
			Index:       i,
			Name:        branchName(job, combo),
			Combination: combo,
		})
	}
	return branches
}

// branchName derives the display name: "test (3.12)" for matrix
// branches, the bare job name otherwise.
func branchName(job *models.Job, combo models.Combination) string {
	name := job.Name
	if name == "" {
		name = job.ID
	}
	if combo.Empty() {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, combo.Label())
}

// JobPlan is one job's resolved branch set.
type JobPlan struct {
	Job      *models.Job
	Branches []models.Branch
}

// PlanJobs expands every job's matrix and applies the branch filter,
// returning the plans in job declaration order plus the total branch
// count. Dry runs print this plan; real runs execute it.
func PlanJobs(wf *models.Workflow, filter map[string]string) ([]JobPlan, int) {
	plans := make([]JobPlan, 0, len(wf.Jobs))
	total := 0
	for i := range wf.Jobs {
		job := &wf.Jobs[i]
		branches := ExpandBranches(job)
		if len(filter) > 0 {
			branches = FilterBranches(branches, filter)
		}
		plans = append(plans, JobPlan{Job: job, Branches: branches})
		total += len(branches)
	}
	return plans, total
}

// FilterBranches keeps the branches whose combination matches every
// selector pair. An empty selector keeps everything. Selecting on a
// dimension the matrix does not define matches nothing.
func FilterBranches(branches []models.Branch, selector map[string]string) []models.Branch {
	if len(selector) == 0 {
		return branches
	}
	var out []models.Branch
	for _, b := range branches {
		match := true
		for dim, want := range selector {
			got, ok := b.Combination.Get(dim)
			if !ok || got != want {
				match = false
				break
			}
		}
		if match {
			out = append(out, b)
		}
	}
	return out
}
