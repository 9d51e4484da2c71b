package executor

import (
	"os"
	"strings"

	"github.com/walther/conveyor/internal/models"
	"github.com/walther/conveyor/internal/workspace"
)

// stepEnvInputs gathers the layers a step environment is built from.
type stepEnvInputs struct {
	hostPath string            // PATH the branch starts from
	ws       *workspace.Workspace
	runID    string
	branch   models.Branch
	event    models.Event
	fileEnv  map[string]string // values from configured env files
	wfEnv    map[string]string // workflow-level env
	jobEnv   map[string]string // job-level env
	accumEnv map[string]string // ingested from the env accumulation file
	paths    []string          // ingested from the path accumulation file
	stepEnv  map[string]string // step-level env, interpolated
}

// buildStepEnv assembles the allowlisted environment for one step.
// Later layers win: base, env files, workflow, job, accumulated, step.
// Runner-injected variables are applied last and cannot be overridden
// by workflow content.
func buildStepEnv(in stepEnvInputs) map[string]string {
	env := map[string]string{
		"PATH":   in.hostPath,
		"HOME":   in.ws.Home,
		"TMPDIR": in.ws.Tmp,
		"LANG":   "C.UTF-8",
	}

	for _, layer := range []map[string]string{in.fileEnv, in.wfEnv, in.jobEnv, in.accumEnv, in.stepEnv} {
		for k, v := range layer {
			env[k] = v
		}
	}

	// Path file entries are prepended to PATH, newest first.
	if len(in.paths) > 0 {
		sep := string(os.PathListSeparator)
		prepend := make([]string, 0, len(in.paths))
		for i := len(in.paths) - 1; i >= 0; i-- {
			prepend = append(prepend, in.paths[i])
		}
		env["PATH"] = strings.Join(prepend, sep) + sep + env["PATH"]
	}

	env["CI"] = "true"
	env["CONVEYOR"] = "true"
	env["CONVEYOR_RUN_ID"] = in.runID
	env["CONVEYOR_JOB"] = in.branch.JobID
	env["CONVEYOR_BRANCH"] = in.branch.Name
	env["CONVEYOR_WORKSPACE"] = in.ws.Src
	env["CONVEYOR_ENV"] = in.ws.EnvFile
	env["CONVEYOR_PATH"] = in.ws.PathFile
	env["CONVEYOR_STEP_SUMMARY"] = in.ws.SummaryFile

	for _, dim := range in.branch.Combination.Keys {
		if val, ok := in.branch.Combination.Get(dim); ok {
			env["CONVEYOR_MATRIX_"+models.EnvKey(dim)] = val
		}
	}
	for k, v := range in.event.EnvVars() {
		env[k] = v
	}
	return env
}
