package models

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Matrix is the enumerated dimension set of a job strategy. Dimension and
// value order follow the workflow file so branch ordering is stable.
type Matrix struct {
	Dimensions []Dimension
}

// Dimension is one matrix axis with its enumerated values
type Dimension struct {
	Name   string   // Dimension name (e.g. "python-version")
	Values []string // Literal values in declaration order
}

// Combination is a single matrix point: one value per dimension, keyed by
// dimension name, with key order preserved for naming and display.
type Combination struct {
	Keys   []string          // Dimension names in declaration order
	Values map[string]string // Dimension name -> selected value
}

// Get returns the value selected for a dimension.
func (c Combination) Get(name string) (string, bool) {
	v, ok := c.Values[name]
	return v, ok
}

// Empty reports whether the combination has no dimensions (the single
// branch of a job without a matrix).
func (c Combination) Empty() bool {
	return len(c.Keys) == 0
}

// Label renders the combination the way run output names branches:
// comma-separated values in dimension order, e.g. "3.12" or "3.12, ubuntu".
func (c Combination) Label() string {
	parts := make([]string, 0, len(c.Keys))
	for _, k := range c.Keys {
		parts = append(parts, c.Values[k])
	}
	return strings.Join(parts, ", ")
}

// Size returns the number of combinations the matrix expands to.
// An empty matrix still yields exactly one (empty) combination.
func (m Matrix) Size() int {
	n := 1
	for _, d := range m.Dimensions {
		n *= len(d.Values)
	}
	return n
}

// Empty reports whether the matrix declares no dimensions.
func (m Matrix) Empty() bool {
	return len(m.Dimensions) == 0
}

// Validate checks dimension names and value lists.
func (m Matrix) Validate() error {
	seen := make(map[string]bool, len(m.Dimensions))
	for _, d := range m.Dimensions {
		if d.Name == "" {
			return errors.New("matrix dimension name cannot be empty")
		}
		if !identPattern.MatchString(d.Name) {
			return fmt.Errorf("invalid matrix dimension name %q", d.Name)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate matrix dimension %q", d.Name)
		}
		seen[d.Name] = true
		if len(d.Values) == 0 {
			return fmt.Errorf("matrix dimension %q has no values", d.Name)
		}
		for _, v := range d.Values {
			if v == "" {
				return fmt.Errorf("matrix dimension %q contains an empty value", d.Name)
			}
		}
	}
	return nil
}

// Expand returns the cartesian product of all dimensions, one Combination
// per matrix point. The first declared dimension varies slowest. For an
// empty matrix it returns a single empty combination so every job yields
// at least one branch.
func (m Matrix) Expand() []Combination {
	keys := make([]string, len(m.Dimensions))
	for i, d := range m.Dimensions {
		keys[i] = d.Name
	}

	combos := []Combination{{Keys: keys, Values: map[string]string{}}}
	for _, dim := range m.Dimensions {
		next := make([]Combination, 0, len(combos)*len(dim.Values))
		for _, base := range combos {
			for _, val := range dim.Values {
				values := make(map[string]string, len(base.Values)+1)
				for k, v := range base.Values {
					values[k] = v
				}
				values[dim.Name] = val
				next = append(next, Combination{Keys: keys, Values: values})
			}
		}
		combos = next
	}
	return combos
}

// decodeMatrix reads a matrix mapping from a YAML node, preserving the
// dimension declaration order and each value's literal spelling (an
// unquoted 3.10 must stay "3.10", not become the float 3.1).
func decodeMatrix(node *yaml.Node) (Matrix, error) {
	if node.Kind != yaml.MappingNode {
		return Matrix{}, errors.New("'matrix' must be a mapping of dimension to value list")
	}

	var m Matrix
	for i := 0; i < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]

		if valNode.Kind != yaml.SequenceNode {
			return Matrix{}, fmt.Errorf("matrix dimension %q must be a list", keyNode.Value)
		}
		values := make([]string, 0, len(valNode.Content))
		for _, item := range valNode.Content {
			if item.Kind != yaml.ScalarNode {
				return Matrix{}, fmt.Errorf("matrix dimension %q: values must be scalars", keyNode.Value)
			}
			values = append(values, item.Value)
		}
		m.Dimensions = append(m.Dimensions, Dimension{Name: keyNode.Value, Values: values})
	}

	if err := m.Validate(); err != nil {
		return Matrix{}, err
	}
	return m, nil
}
