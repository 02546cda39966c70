// Package models defines the core domain model for JCWF workflow orchestration.
package models

import "encoding/json"

// WorkflowDefinition is the static configuration parsed from a JCWF document.
// It is immutable after registration.
type WorkflowDefinition struct {
	Version string `json:"version" validate:"required,eq=1.0"`
	ID      string `json:"id"      validate:"required"`
	Label   string `json:"label,omitempty"`
	Doc     string `json:"doc,omitempty"`

	Triggers []Trigger           `json:"triggers"`
	Tasks    map[string]*TaskDef `json:"tasks" validate:"required"`
	Dataflow []DataflowEdge      `json:"dataflow,omitempty"`

	// Defaults is kept as raw JSON; consumers interpret it on demand.
	Defaults json.RawMessage `json:"defaults,omitempty"`
}

// Task returns the definition for the given task id, if present.
func (w *WorkflowDefinition) Task(taskID string) (*TaskDef, bool) {
	task, ok := w.Tasks[taskID]
	return task, ok
}

// DataflowEdge is a named channel from one task's output slot to another
// task's input slot. It is distinct from the dependency edge (depends_on).
type DataflowEdge struct {
	FromTask   string            `json:"from_task"   validate:"required"`
	FromOutput string            `json:"from_output" validate:"required"`
	ToTask     string            `json:"to_task"     validate:"required"`
	ToInput    string            `json:"to_input"    validate:"required"`
	Mapping    map[string]string `json:"mapping,omitempty"`
}
