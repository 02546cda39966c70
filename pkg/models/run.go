package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RunState is the overall state of a workflow run.
type RunState string

const (
	RunStatePending   RunState = "pending"
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateFailed    RunState = "failed"
	RunStateCancelled RunState = "cancelled"
)

// TaskState is the per-task lifecycle state within a run.
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateReady     TaskState = "ready"
	TaskStateRunning   TaskState = "running"
	TaskStateSkipped   TaskState = "skipped"
	TaskStateSucceeded TaskState = "succeeded"
	TaskStateFailed    TaskState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s TaskState) Terminal() bool {
	return s == TaskStateSucceeded || s == TaskStateSkipped || s == TaskStateFailed
}

// TaskInstanceState is the mutable runtime state of one task instance.
// Between submission and join it is touched by exactly one pool worker.
type TaskInstanceState struct {
	State        TaskState `json:"state"`
	AttemptCount uint32    `json:"attempt_count"`
	LastError    string    `json:"last_error,omitempty"`

	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`

	// Summaries rendered as key=value;key=value;... for UI inspection.
	InputsSummary  string `json:"inputs_summary,omitempty"`
	OutputsSummary string `json:"outputs_summary,omitempty"`

	InputValues  map[string]string `json:"input_values,omitempty"`
	OutputValues map[string]string `json:"output_values,omitempty"`
}

// NewTaskInstanceState returns a pending instance with empty value maps.
func NewTaskInstanceState() *TaskInstanceState {
	return &TaskInstanceState{
		State:        TaskStatePending,
		InputValues:  make(map[string]string),
		OutputValues: make(map[string]string),
	}
}

// SummarizeValues renders a slot→value map in deterministic slot order.
func SummarizeValues(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	var builder strings.Builder
	for _, key := range keys {
		builder.WriteString(key)
		builder.WriteString("=")
		builder.WriteString(values[key])
		builder.WriteString(";")
	}

	return builder.String()
}

// WorkflowRun is the ephemeral state of one workflow activation. It is owned
// by the orchestrator call that created it and transferred into the last-run
// cache on completion.
type WorkflowRun struct {
	RunID      string   `json:"run_id"`
	WorkflowID string   `json:"workflow_id"`
	State      RunState `json:"state"`

	Context map[string]string `json:"context,omitempty"`

	TaskStates map[string]*TaskInstanceState `json:"task_states"`

	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`

	Completed bool `json:"completed"`
	Failed    bool `json:"failed"`
}

// NewWorkflowRun builds a pending run with every task initialized to pending.
func NewWorkflowRun(def *WorkflowDefinition, runID string) *WorkflowRun {
	run := &WorkflowRun{
		RunID:      runID,
		WorkflowID: def.ID,
		State:      RunStatePending,
		Context:    make(map[string]string),
		TaskStates: make(map[string]*TaskInstanceState, len(def.Tasks)),
	}

	for taskID := range def.Tasks {
		run.TaskStates[taskID] = NewTaskInstanceState()
	}

	return run
}

// RunIDFor derives the default run id for a workflow at the given time.
func RunIDFor(workflowID string, now time.Time) string {
	return fmt.Sprintf("%s_%d", workflowID, now.Unix())
}
