package models

import (
	"encoding/json"
	"log/slog"
)

// TaskKind selects the executor a task is dispatched to.
type TaskKind string

const (
	TaskKindUnknown  TaskKind = "unknown"
	TaskKindPython   TaskKind = "python"
	TaskKindShell    TaskKind = "shell"
	TaskKindAICall   TaskKind = "ai_call"
	TaskKindInternal TaskKind = "internal"
)

// TaskMode controls whether a task runs once or once per item.
type TaskMode string

const (
	TaskModeSingle  TaskMode = "single"
	TaskModePerItem TaskMode = "per_item"
)

// ParseTaskKind maps a JCWF "type" string onto a TaskKind. Unknown strings
// resolve to internal with a warning so misspelled kinds stay runnable.
func ParseTaskKind(raw string, logger *slog.Logger) TaskKind {
	switch raw {
	case "python":
		return TaskKindPython
	case "shell":
		return TaskKindShell
	case "ai_call":
		return TaskKindAICall
	case "internal":
		return TaskKindInternal
	}

	logger.Warn("Unknown task type, defaulting to internal", "type", raw)

	return TaskKindInternal
}

// ParseTaskMode maps a JCWF "mode" string onto a TaskMode, defaulting to
// single for unknown values.
func ParseTaskMode(raw string, logger *slog.Logger) TaskMode {
	switch raw {
	case "single":
		return TaskModeSingle
	case "per_item":
		return TaskModePerItem
	}

	logger.Warn("Unknown task mode, defaulting to single", "mode", raw)

	return TaskModeSingle
}

// IOField describes one declared input or output slot.
type IOField struct {
	// Advisory type (string, object, json, ...) matching JCWF "type".
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

// IOMap maps slot names to their declarations.
type IOMap map[string]IOField

// TaskEnvironment carries the execution environment of a task.
type TaskEnvironment struct {
	Name        string `json:"name,omitempty"`
	AssistantID string `json:"assistant_id,omitempty"`

	// Variables maps variable names to their values. A JSON string value is
	// stored decoded; any other JSON value is kept as its raw JSON text.
	Variables map[string]string `json:"variables,omitempty"`
}

// QueueBinding names the queue files a task is bound to.
type QueueBinding struct {
	StngFiles []string `json:"stng_files,omitempty"`
	TaskFiles []string `json:"task_files,omitempty"`
	CnxtFiles []string `json:"cnxt_files,omitempty"`
}

// RetryPolicy is carried through the model but not honored by the
// orchestrator; executors may honor it.
type RetryPolicy struct {
	MaxAttempts uint32 `json:"max_attempts"`
	BackoffMs   uint32 `json:"backoff_ms"`
}

// TaskDef is the static configuration of one task.
type TaskDef struct {
	ID    string   `json:"id"`
	Kind  TaskKind `json:"type"`
	Mode  TaskMode `json:"mode"`
	Label string   `json:"label,omitempty"`
	Doc   string   `json:"doc,omitempty"`

	DependsOn []string `json:"depends_on,omitempty"`

	// Path templates; ${inputs.KEY} / ${outputs.KEY} tokens are expanded
	// by the orchestrator before freshness checks.
	FileInputs  []string `json:"file_inputs,omitempty"`
	FileOutputs []string `json:"file_outputs,omitempty"`

	Environment  TaskEnvironment `json:"environment,omitempty"`
	QueueBinding QueueBinding    `json:"queue_binding,omitempty"`

	Inputs  IOMap `json:"inputs,omitempty"`
	Outputs IOMap `json:"outputs,omitempty"`

	TimeoutMs uint64      `json:"timeout_ms,omitempty"`
	Retries   RetryPolicy `json:"retries,omitempty"`

	// Params is the executor-private payload, preserved verbatim.
	Params json.RawMessage `json:"params,omitempty"`
}
