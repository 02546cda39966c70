package executor

import (
	"context"
	"log/slog"

	"github.com/loomworks/weft/pkg/models"
)

// InternalExecutor handles internal tasks. It runs no external process; it
// derives the task's logical outputs from its declared files and resolved
// inputs and succeeds. Pure grouping or renaming nodes in a task graph use
// this kind.
type InternalExecutor struct {
	logger *slog.Logger
}

func NewInternalExecutor(logger *slog.Logger) *InternalExecutor {
	return &InternalExecutor{logger: logger.With("module", "internal_executor")}
}

func (e *InternalExecutor) Execute(_ context.Context, _ *models.WorkflowDefinition, _ *models.WorkflowRun, task *models.TaskDef, state *models.TaskInstanceState) error {
	e.logger.Info("Executing internal task", "task", task.ID)

	for name, value := range buildOutputSlotMap(task, state) {
		state.OutputValues[name] = value
	}

	state.State = models.TaskStateSucceeded

	return nil
}
