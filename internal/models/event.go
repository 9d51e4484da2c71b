package models

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

// EventType identifies how a run was invoked
type EventType string

const (
	// EventWorkflowCall is the external "workflow call" invocation event.
	EventWorkflowCall EventType = "workflow_call"

	// EventWorkflowDispatch is a direct manual invocation.
	EventWorkflowDispatch EventType = "workflow_dispatch"
)

// ErrUnknownTrigger is returned when a workflow is invoked with an event
// type its 'on' block does not declare.
var ErrUnknownTrigger = errors.New("workflow does not declare this trigger")

// TriggerSpec is the per-trigger configuration block. The call trigger
// declares no input parameters, so the block is currently empty; it
// keeps its own type so trigger options have somewhere to live.
type TriggerSpec struct{}

// Triggers is the parsed 'on' block: which event types may invoke the
// workflow. A nil pointer means the trigger is not declared.
type Triggers struct {
	WorkflowCall     *TriggerSpec
	WorkflowDispatch *TriggerSpec
}

// Empty reports whether no trigger is declared.
func (t Triggers) Empty() bool {
	return t.WorkflowCall == nil && t.WorkflowDispatch == nil
}

// Supports reports whether the given event type may invoke the workflow.
func (t Triggers) Supports(et EventType) bool {
	switch et {
	case EventWorkflowCall:
		return t.WorkflowCall != nil
	case EventWorkflowDispatch:
		return t.WorkflowDispatch != nil
	default:
		return false
	}
}

// Names lists the declared trigger names in stable order.
func (t Triggers) Names() []string {
	var names []string
	if t.WorkflowCall != nil {
		names = append(names, string(EventWorkflowCall))
	}
	if t.WorkflowDispatch != nil {
		names = append(names, string(EventWorkflowDispatch))
	}
	return names
}

// UnmarshalYAML accepts the three YAML shapes the 'on' block comes in:
//
//	on: workflow_call                 # single scalar
//	on: [workflow_call, workflow_dispatch]
//	on:
//	  workflow_call:                  # mapping, values may be null
func (t *Triggers) UnmarshalYAML(node *yaml.Node) error {
	set := func(name string) error {
		switch name {
		case string(EventWorkflowCall):
			t.WorkflowCall = &TriggerSpec{}
		case string(EventWorkflowDispatch):
			t.WorkflowDispatch = &TriggerSpec{}
		default:
			return fmt.Errorf("unsupported trigger %q", name)
		}
		return nil
	}

	switch node.Kind {
	case yaml.ScalarNode:
		return set(node.Value)
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return errors.New("'on' list entries must be trigger names")
			}
			if err := set(item.Value); err != nil {
				return err
			}
		}
		return nil
	case yaml.MappingNode:
		for i := 0; i < len(node.Content); i += 2 {
			if err := set(node.Content[i].Value); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.New("'on' must be a trigger name, list, or mapping")
	}
}

// Event is one invocation of a workflow
type Event struct {
	Type        EventType      // How the run was invoked
	Payload     map[string]any // Decoded payload (nil when none given)
	PayloadPath string         // Absolute path of the payload file
	FiredAt     time.Time      // When the invocation was received
}

// NewEvent creates an event of the given type fired now.
func NewEvent(et EventType) Event {
	return Event{Type: et, FiredAt: time.Now()}
}

// LoadEventPayload reads and decodes a JSON payload file into the event.
// The payload must be a JSON object; its top-level scalar fields become
// step environment variables via EnvVars.
func (e *Event) LoadEventPayload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read event payload: %w", err)
	}

	var payload map[string]any
	if err := sonic.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to parse event payload: %w", err)
	}

	e.Payload = payload
	e.PayloadPath = path
	return nil
}

// EnvVars renders the event for step environments: the event type plus
// every top-level scalar payload field as CONVEYOR_EVENT_<KEY>. Keys are
// sorted so the injected environment is deterministic.
func (e Event) EnvVars() map[string]string {
	vars := map[string]string{
		"CONVEYOR_EVENT": string(e.Type),
	}
	if e.PayloadPath != "" {
		vars["CONVEYOR_EVENT_PATH"] = e.PayloadPath
	}

	keys := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		var rendered string
		switch v := e.Payload[k].(type) {
		case string:
			rendered = v
		case bool:
			rendered = strconv.FormatBool(v)
		case float64:
			rendered = strconv.FormatFloat(v, 'g', -1, 64)
		default:
			// Nested objects/arrays stay in the payload file only.
			continue
		}
		vars["CONVEYOR_EVENT_"+EnvKey(k)] = rendered
	}
	return vars
}

// EnvKey converts an arbitrary name (payload field, matrix dimension)
// to an env-var-safe suffix: uppercased, with every other rune mapped
// to an underscore.
func EnvKey(name string) string {
	upper := strings.ToUpper(name)
	var b strings.Builder
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
