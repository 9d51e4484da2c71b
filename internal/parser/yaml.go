package parser

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/walther/conveyor/internal/models"
)

// YAMLParser parses workflow definitions written in YAML
type YAMLParser struct{}

// NewYAMLParser creates a new YAML workflow parser
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

// Parse reads a YAML workflow definition and returns the validated Workflow.
// Decoding goes through Workflow.UnmarshalYAML so job order and the literal
// spelling of scalar values (e.g. unquoted version numbers) are preserved.
func (p *YAMLParser) Parse(r io.Reader) (*models.Workflow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("workflow file is empty")
	}

	var wf models.Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("invalid workflow YAML: %w", err)
	}

	if err := wf.Validate(); err != nil {
		return nil, err
	}

	return &wf, nil
}
