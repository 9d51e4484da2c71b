package parser

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/walther/conveyor/internal/models"
)

var matrixRefPattern = regexp.MustCompile(`\$\{\{\s*matrix\.([A-Za-z_][A-Za-z0-9_-]*)\s*\}\}`)

// LintWorkflow runs static checks on a parsed workflow and returns every
// problem found. An empty result means the workflow is clean. Lint problems
// do not block execution; the validate command reports them as warnings.
func LintWorkflow(wf *models.Workflow) []string {
	var problems []string
	for i := range wf.Jobs {
		problems = append(problems, lintJob(&wf.Jobs[i])...)
	}
	return problems
}

// lintJob verifies that every ${{ matrix.NAME }} reference in the job
// resolves to a dimension declared in the job's matrix.
func lintJob(job *models.Job) []string {
	declared := make(map[string]bool)
	for _, dim := range job.Strategy.Matrix.Dimensions {
		declared[dim.Name] = true
	}

	missing := make(map[string]bool)
	collect := func(s string) {
		for _, m := range matrixRefPattern.FindAllStringSubmatch(s, -1) {
			if !declared[m[1]] {
				missing[m[1]] = true
			}
		}
	}

	collect(job.Name)
	for _, v := range job.Env {
		collect(v)
	}
	for _, step := range job.Steps {
		collect(step.Name)
		collect(step.Run)
		collect(step.If)
		collect(step.WorkingDirectory)
		for _, v := range step.With {
			collect(v)
		}
		for _, v := range step.Env {
			collect(v)
		}
	}

	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)

	problems := make([]string, 0, len(names))
	for _, name := range names {
		problems = append(problems, fmt.Sprintf("job %q references matrix.%s but the matrix does not define it", job.ID, name))
	}
	return problems
}
