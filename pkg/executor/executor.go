// Package executor dispatches task instances to per-kind executors.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/loomworks/weft/pkg/models"
)

// TaskExecutor runs one task instance. Implementations receive an exclusive
// reference to the instance state, populate OutputValues on success, and
// record failure details in state.LastError before returning an error.
type TaskExecutor interface {
	Execute(ctx context.Context, def *models.WorkflowDefinition, run *models.WorkflowRun, task *models.TaskDef, state *models.TaskInstanceState) error
}

// Registry keys executors by task kind. It is a value owned by the runtime,
// not a process-wide singleton.
type Registry struct {
	logger    *slog.Logger
	executors map[models.TaskKind]TaskExecutor
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "executor_registry"),
		executors: make(map[models.TaskKind]TaskExecutor),
	}
}

func (r *Registry) Register(kind models.TaskKind, impl TaskExecutor) {
	r.executors[kind] = impl
}

// Execute dispatches by task kind. An unregistered kind fails the task.
func (r *Registry) Execute(ctx context.Context, def *models.WorkflowDefinition, run *models.WorkflowRun, task *models.TaskDef, state *models.TaskInstanceState) error {
	impl, ok := r.executors[task.Kind]
	if !ok {
		r.logger.Error("No executor registered for task kind", "kind", task.Kind, "task", task.ID)

		state.LastError = "No executor registered"
		state.State = models.TaskStateFailed

		return fmt.Errorf("no executor registered for task kind %q", task.Kind)
	}

	return impl.Execute(ctx, def, run, task, state)
}

// buildOutputSlotMap derives the logical output values of a task after a
// successful execution. Output slots zip positionally with file_outputs when
// the counts match (slot names in ascending order); any slot still unmapped
// falls back to the resolved input of the same name.
func buildOutputSlotMap(task *models.TaskDef, state *models.TaskInstanceState) map[string]string {
	outputs := make(map[string]string, len(task.Outputs))

	slotNames := make([]string, 0, len(task.Outputs))
	for name := range task.Outputs {
		slotNames = append(slotNames, name)
	}

	sort.Strings(slotNames)

	if len(task.FileOutputs) > 0 && len(task.FileOutputs) == len(slotNames) {
		for i, name := range slotNames {
			outputs[name] = task.FileOutputs[i]
		}
	}

	for _, name := range slotNames {
		if _, mapped := outputs[name]; mapped {
			continue
		}

		if value, ok := state.InputValues[name]; ok {
			outputs[name] = value
		}
	}

	return outputs
}
