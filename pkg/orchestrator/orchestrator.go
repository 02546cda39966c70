// Package orchestrator executes workflow runs in dependency-order waves.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/loomworks/weft/pkg/dataflow"
	"github.com/loomworks/weft/pkg/executor"
	"github.com/loomworks/weft/pkg/freshness"
	"github.com/loomworks/weft/pkg/models"
	"github.com/loomworks/weft/pkg/pool"
	"github.com/loomworks/weft/pkg/registry"
)

// Orchestrator drives workflow runs. It borrows definitions from the
// registry for the duration of RunOnce and keeps at most one completed run
// per workflow for inspection.
type Orchestrator struct {
	logger    *slog.Logger
	registry  *registry.Registry
	executors *executor.Registry
	resolver  *dataflow.Resolver
	checker   *freshness.Checker
	pool      *pool.Pool
	clock     clockwork.Clock

	mu       sync.RWMutex
	lastRuns map[string]*models.WorkflowRun
}

func NewOrchestrator(logger *slog.Logger, reg *registry.Registry, executors *executor.Registry, workerPool *pool.Pool, clock clockwork.Clock) *Orchestrator {
	return &Orchestrator{
		logger:    logger.With("module", "orchestrator"),
		registry:  reg,
		executors: executors,
		resolver:  dataflow.NewResolver(logger),
		checker:   freshness.NewChecker(),
		pool:      workerPool,
		clock:     clock,
	}
}

// LastRun returns the most recent completed run for a workflow. The returned
// run is the cached value itself, not a copy.
func (o *Orchestrator) LastRun(workflowID string) (*models.WorkflowRun, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	run, ok := o.lastRuns[workflowID]

	return run, ok
}

// RunOnce activates a workflow and drives it to a terminal completion
// record. The completed run is stored in the last-run cache irrespective of
// success. A non-nil error means the run failed or could not start.
func (o *Orchestrator) RunOnce(ctx context.Context, workflowID string) error {
	return o.RunOnceWithID(ctx, workflowID, "")
}

func (o *Orchestrator) RunOnceWithID(ctx context.Context, workflowID, runID string) error {
	def, ok := o.registry.Workflow(workflowID)
	if !ok {
		o.logger.Error("Unknown workflow id", "workflow_id", workflowID)
		return fmt.Errorf("unknown workflow id %q", workflowID)
	}

	if !o.registry.IsValid(workflowID) {
		o.logger.Error("Refusing to run invalid workflow", "workflow_id", workflowID)
		return fmt.Errorf("workflow %q failed validation", workflowID)
	}

	if runID == "" {
		runID = models.RunIDFor(workflowID, o.clock.Now())
	}

	run := models.NewWorkflowRun(def, runID)
	run.State = models.RunStateRunning
	run.StartedAt = o.clock.Now().UTC().Format(time.RFC3339)

	err := o.executeWorkflow(ctx, def, run)

	run.CompletedAt = o.clock.Now().UTC().Format(time.RFC3339)

	if run.Failed {
		run.State = models.RunStateFailed
	} else {
		run.State = models.RunStateSucceeded
	}

	o.mu.Lock()
	if o.lastRuns == nil {
		o.lastRuns = make(map[string]*models.WorkflowRun)
	}
	o.lastRuns[def.ID] = run
	o.mu.Unlock()

	return err
}

func (o *Orchestrator) executeWorkflow(ctx context.Context, def *models.WorkflowDefinition, run *models.WorkflowRun) error {
	o.logger.Info("Starting workflow run", "workflow_id", def.ID, "run_id", run.RunID)

	for !run.Completed {
		madeProgress := o.executeOneReadyWave(ctx, def, run)

		if !madeProgress {
			// No progress with non-terminal tasks left is a deadlock:
			// dependents of failed tasks wait forever.
			if hasActiveTasks(run) {
				o.logger.Error("Deadlock detected in workflow", "workflow_id", def.ID, "run_id", run.RunID)
				run.Failed = true
			}

			run.Completed = true

			continue
		}

		if allTerminal(run) {
			run.Completed = true
		}
	}

	if run.Failed {
		o.logger.Error("Workflow run finished with failure", "workflow_id", def.ID, "run_id", run.RunID)
		return fmt.Errorf("workflow %q run %q failed", def.ID, run.RunID)
	}

	o.logger.Info("Workflow run completed", "workflow_id", def.ID, "run_id", run.RunID)

	return nil
}

// executeOneReadyWave scans all non-terminal tasks, skips the up-to-date
// ones, dispatches the ready ones in parallel, and joins every future
// before returning. Output values written by a wave become visible to
// dependents only after the join.
func (o *Orchestrator) executeOneReadyWave(ctx context.Context, def *models.WorkflowDefinition, run *models.WorkflowRun) bool {
	madeProgress := false

	var readyTasks []string

	for taskID, state := range run.TaskStates {
		if state.State != models.TaskStatePending && state.State != models.TaskStateReady {
			continue
		}

		task, ok := def.Tasks[taskID]
		if !ok {
			o.logger.Error("Task missing from workflow definition", "task", taskID, "workflow_id", def.ID)

			state.State = models.TaskStateFailed
			state.LastError = "task missing from workflow definition"
			run.Failed = true
			madeProgress = true

			continue
		}

		if !o.isTaskReady(run, task) {
			continue
		}

		if paths, ok := o.resolveFreshnessPaths(def, run, task, taskID); ok {
			resolveUpstream := func(upstreamID string) ([]string, bool) {
				upstreamTask, ok := def.Tasks[upstreamID]
				if !ok {
					return nil, false
				}

				upstreamPaths, ok := o.resolveFreshnessPaths(def, run, upstreamTask, upstreamID)
				if !ok {
					return nil, false
				}

				return upstreamPaths.OutputPaths, true
			}

			if o.checker.IsTaskUpToDate(def, taskID, paths, resolveUpstream) {
				o.logger.Info("Task is up to date, skipping", "task", taskID)

				// Downstream edges still reference the skipped task's
				// outputs, so they are derived from its resolved files.
				o.populateSkippedTaskOutputs(def, run, task, taskID, state)

				state.State = models.TaskStateSkipped
				madeProgress = true

				continue
			}
		}
		// Unresolvable file templates leave the task not up to date.

		readyTasks = append(readyTasks, taskID)
	}

	if len(readyTasks) == 0 {
		return madeProgress
	}

	madeProgress = true

	type taskFuture struct {
		taskID string
		future *pool.Future
	}

	futures := make([]taskFuture, 0, len(readyTasks))

	for _, taskID := range readyTasks {
		task := def.Tasks[taskID]
		state := run.TaskStates[taskID]

		// Mark running before dispatch so concurrent observers see the
		// transition; the attempt count is bumped in executeTaskInstance.
		state.State = models.TaskStateRunning

		futures = append(futures, taskFuture{
			taskID: taskID,
			future: o.pool.Submit(func() bool {
				return o.executeTaskInstance(ctx, def, run, task, taskID, state)
			}),
		})
	}

	for _, tf := range futures {
		success, err := tf.future.Wait()
		if err != nil {
			o.logger.Error("Task raised an error", "task", tf.taskID, "error", err)
			success = false
		}

		state := run.TaskStates[tf.taskID]

		if !success {
			state.State = models.TaskStateFailed
			run.Failed = true

			continue
		}

		if state.State != models.TaskStateSucceeded && state.State != models.TaskStateSkipped {
			state.State = models.TaskStateSucceeded
		}
	}

	return madeProgress
}

// isTaskReady reports whether every dependency is succeeded or skipped.
func (o *Orchestrator) isTaskReady(run *models.WorkflowRun, task *models.TaskDef) bool {
	for _, dep := range task.DependsOn {
		depState, ok := run.TaskStates[dep]
		if !ok {
			o.logger.Error("Task depends on unknown task", "task", task.ID, "dependency", dep)
			return false
		}

		if depState.State != models.TaskStateSucceeded && depState.State != models.TaskStateSkipped {
			return false
		}
	}

	return true
}

// executeTaskInstance resolves inputs, dispatches the executor, and
// finalizes the instance state. It returns true iff the task ended
// succeeded or skipped.
func (o *Orchestrator) executeTaskInstance(ctx context.Context, def *models.WorkflowDefinition, run *models.WorkflowRun, task *models.TaskDef, taskID string, state *models.TaskInstanceState) bool {
	state.State = models.TaskStateRunning
	state.AttemptCount++
	state.StartedAt = o.clock.Now().UTC().Format(time.RFC3339)

	inputs, err := o.resolver.ResolveInputs(def, run, task, taskID)
	if err != nil {
		state.LastError = "Failed to resolve task inputs via dataflow / context"
		state.State = models.TaskStateFailed

		return false
	}

	state.InputValues = inputs
	state.InputsSummary = models.SummarizeValues(inputs)

	if err := o.executors.Execute(ctx, def, run, task, state); err != nil {
		if state.State != models.TaskStateFailed {
			state.State = models.TaskStateFailed
		}

		return false
	}

	state.OutputsSummary = models.SummarizeValues(state.OutputValues)
	state.CompletedAt = o.clock.Now().UTC().Format(time.RFC3339)

	if state.State != models.TaskStateFailed && state.State != models.TaskStateSkipped {
		state.State = models.TaskStateSucceeded
	}

	return state.State == models.TaskStateSucceeded || state.State == models.TaskStateSkipped
}

func hasActiveTasks(run *models.WorkflowRun) bool {
	for _, state := range run.TaskStates {
		switch state.State {
		case models.TaskStatePending, models.TaskStateReady, models.TaskStateRunning:
			return true
		}
	}

	return false
}

func allTerminal(run *models.WorkflowRun) bool {
	for _, state := range run.TaskStates {
		if !state.State.Terminal() {
			return false
		}
	}

	return true
}
