package models

import (
	"errors"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// identPattern restricts job IDs, step IDs and matrix dimension names to
// names that are safe to embed in env var names and directory paths.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Workflow represents a parsed workflow definition
type Workflow struct {
	Name     string            // Workflow name (defaults to file base name)
	On       Triggers          // Events that may invoke this workflow
	Env      map[string]string // Workflow-level environment
	Jobs     []Job             // Jobs in declaration order
	FilePath string            // Original file path (absolute)
}

// Job is a single job definition. Every matrix combination of the job
// becomes one independent branch at execution time.
type Job struct {
	ID             string            // Job identifier (YAML mapping key)
	Name           string            // Display name (defaults to ID)
	Strategy       Strategy          // Matrix/fail-fast/parallelism settings
	Env            map[string]string // Job-level environment
	Steps          []Step            // Ordered step sequence
	TimeoutMinutes int               // Per-branch timeout (0 = none)
}

// Strategy controls how a job's matrix branches are scheduled
type Strategy struct {
	FailFast    *bool  // nil = platform default (true)
	MaxParallel int    // 0 = unlimited
	Matrix      Matrix // Enumerated dimensions
}

// FailFastEnabled resolves the fail-fast setting, applying the platform
// default (true) when the workflow does not set it.
func (s Strategy) FailFastEnabled() bool {
	if s.FailFast == nil {
		return true
	}
	return *s.FailFast
}

// Step is one entry in a job's step sequence. Exactly one of Uses or Run
// must be set.
type Step struct {
	Name             string            // Display name (may contain ${{ }} placeholders)
	ID               string            // Optional step identifier
	Uses             string            // Builtin action name
	Run              string            // Shell command(s)
	Shell            string            // Shell override for Run steps
	If               string            // Condition expression (default: success())
	With             map[string]string // Action parameters
	Env              map[string]string // Step-level environment
	WorkingDirectory string            // Working dir override for Run steps
}

// IsAction reports whether the step invokes a builtin action.
func (s *Step) IsAction() bool {
	return s.Uses != ""
}

// Validate checks step shape: exactly one of uses/run, and fields that
// only make sense for one kind are rejected on the other.
func (s *Step) Validate() error {
	switch {
	case s.Uses == "" && s.Run == "":
		return errors.New("step must set either 'uses' or 'run'")
	case s.Uses != "" && s.Run != "":
		return errors.New("step cannot set both 'uses' and 'run'")
	}
	if s.Uses != "" {
		if s.Shell != "" {
			return errors.New("'shell' is only valid on run steps")
		}
		if s.WorkingDirectory != "" {
			return errors.New("'working-directory' is only valid on run steps")
		}
	}
	if s.Run != "" && len(s.With) > 0 {
		return errors.New("'with' is only valid on action steps")
	}
	if s.ID != "" && !identPattern.MatchString(s.ID) {
		return fmt.Errorf("invalid step id %q", s.ID)
	}
	return nil
}

// Validate checks job-level requirements and every contained step.
func (j *Job) Validate() error {
	if j.ID == "" {
		return errors.New("job id is required")
	}
	if !identPattern.MatchString(j.ID) {
		return fmt.Errorf("invalid job id %q", j.ID)
	}
	if len(j.Steps) == 0 {
		return fmt.Errorf("job %q has no steps", j.ID)
	}
	if j.TimeoutMinutes < 0 {
		return fmt.Errorf("job %q: timeout-minutes cannot be negative", j.ID)
	}
	if j.Strategy.MaxParallel < 0 {
		return fmt.Errorf("job %q: max-parallel cannot be negative", j.ID)
	}
	if err := j.Strategy.Matrix.Validate(); err != nil {
		return fmt.Errorf("job %q: %w", j.ID, err)
	}
	seenIDs := make(map[string]bool)
	for i := range j.Steps {
		step := &j.Steps[i]
		if err := step.Validate(); err != nil {
			return fmt.Errorf("job %q step %d: %w", j.ID, i+1, err)
		}
		if step.ID != "" {
			if seenIDs[step.ID] {
				return fmt.Errorf("job %q: duplicate step id %q", j.ID, step.ID)
			}
			seenIDs[step.ID] = true
		}
	}
	return nil
}

// Validate checks the workflow as a whole: at least one declared trigger,
// at least one job, and every job valid.
func (w *Workflow) Validate() error {
	if len(w.Jobs) == 0 {
		return errors.New("workflow has no jobs")
	}
	if w.On.Empty() {
		return errors.New("workflow declares no triggers under 'on'")
	}
	for i := range w.Jobs {
		if err := w.Jobs[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Job returns the job with the given ID, if present.
func (w *Workflow) Job(id string) (*Job, bool) {
	for i := range w.Jobs {
		if w.Jobs[i].ID == id {
			return &w.Jobs[i], true
		}
	}
	return nil, false
}

// workflowYAML mirrors the on-disk workflow shape. Jobs are decoded via
// yaml.Node so declaration order survives (Go maps would scramble it).
type workflowYAML struct {
	Name string            `yaml:"name"`
	On   Triggers          `yaml:"on"`
	Env  map[string]string `yaml:"env"`
	Jobs yaml.Node         `yaml:"jobs"`
}

type jobYAML struct {
	Name           string            `yaml:"name"`
	Strategy       strategyYAML      `yaml:"strategy"`
	Env            map[string]string `yaml:"env"`
	Steps          []stepYAML        `yaml:"steps"`
	TimeoutMinutes int               `yaml:"timeout-minutes"`
}

type strategyYAML struct {
	FailFast    *bool     `yaml:"fail-fast"`
	MaxParallel int       `yaml:"max-parallel"`
	Matrix      yaml.Node `yaml:"matrix"`
}

type stepYAML struct {
	Name             string            `yaml:"name"`
	ID               string            `yaml:"id"`
	Uses             string            `yaml:"uses"`
	Run              string            `yaml:"run"`
	Shell            string            `yaml:"shell"`
	If               string            `yaml:"if"`
	With             yaml.Node         `yaml:"with"`
	Env              map[string]string `yaml:"env"`
	WorkingDirectory string            `yaml:"working-directory"`
}

// UnmarshalYAML decodes a workflow while preserving job declaration order.
func (w *Workflow) UnmarshalYAML(node *yaml.Node) error {
	var raw workflowYAML
	if err := node.Decode(&raw); err != nil {
		return err
	}

	w.Name = raw.Name
	w.On = raw.On
	w.Env = raw.Env

	if raw.Jobs.Kind == 0 || raw.Jobs.Tag == "!!null" {
		w.Jobs = nil
		return nil
	}
	if raw.Jobs.Kind != yaml.MappingNode {
		return errors.New("'jobs' must be a mapping of job id to job definition")
	}

	w.Jobs = make([]Job, 0, len(raw.Jobs.Content)/2)
	for i := 0; i < len(raw.Jobs.Content); i += 2 {
		keyNode := raw.Jobs.Content[i]
		valNode := raw.Jobs.Content[i+1]

		var rawJob jobYAML
		if err := valNode.Decode(&rawJob); err != nil {
			return fmt.Errorf("job %q: %w", keyNode.Value, err)
		}

		job, err := buildJob(keyNode.Value, rawJob)
		if err != nil {
			return err
		}
		w.Jobs = append(w.Jobs, job)
	}
	return nil
}

func buildJob(id string, raw jobYAML) (Job, error) {
	job := Job{
		ID:             id,
		Name:           raw.Name,
		Env:            raw.Env,
		TimeoutMinutes: raw.TimeoutMinutes,
	}
	if job.Name == "" {
		job.Name = id
	}

	job.Strategy.FailFast = raw.Strategy.FailFast
	job.Strategy.MaxParallel = raw.Strategy.MaxParallel
	if raw.Strategy.Matrix.Kind != 0 && raw.Strategy.Matrix.Tag != "!!null" {
		matrix, err := decodeMatrix(&raw.Strategy.Matrix)
		if err != nil {
			return Job{}, fmt.Errorf("job %q: %w", id, err)
		}
		job.Strategy.Matrix = matrix
	}

	job.Steps = make([]Step, 0, len(raw.Steps))
	for i, rawStep := range raw.Steps {
		step := Step{
			Name:             rawStep.Name,
			ID:               rawStep.ID,
			Uses:             rawStep.Uses,
			Run:              rawStep.Run,
			Shell:            rawStep.Shell,
			If:               rawStep.If,
			Env:              rawStep.Env,
			WorkingDirectory: rawStep.WorkingDirectory,
		}
		if rawStep.With.Kind != 0 && rawStep.With.Tag != "!!null" {
			with, err := decodeStringMap(&rawStep.With)
			if err != nil {
				return Job{}, fmt.Errorf("job %q step %d: invalid 'with': %w", id, i+1, err)
			}
			step.With = with
		}
		job.Steps = append(job.Steps, step)
	}
	return job, nil
}

// decodeStringMap reads a mapping of scalars, keeping each value's literal
// spelling. Decoding into map[string]string would turn `3.10` into the
// float 3.1 before stringification; reading node values avoids that.
func decodeStringMap(node *yaml.Node) (map[string]string, error) {
	if node.Kind != yaml.MappingNode {
		return nil, errors.New("expected a mapping")
	}
	out := make(map[string]string, len(node.Content)/2)
	for i := 0; i < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]
		if valNode.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("value for %q must be a scalar", keyNode.Value)
		}
		out[keyNode.Value] = valNode.Value
	}
	return out, nil
}
