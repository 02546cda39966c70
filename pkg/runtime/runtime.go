// Package runtime assembles the engine: registry, orchestrator, executors,
// trigger engine, event bus, and file watcher, driven by a single loop.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/loomworks/weft/pkg/config"
	"github.com/loomworks/weft/pkg/eventbus"
	"github.com/loomworks/weft/pkg/executor"
	"github.com/loomworks/weft/pkg/models"
	"github.com/loomworks/weft/pkg/orchestrator"
	"github.com/loomworks/weft/pkg/pool"
	"github.com/loomworks/weft/pkg/registry"
	"github.com/loomworks/weft/pkg/trigger"
	"github.com/loomworks/weft/pkg/watcher"
)

// poolHeadroom is the number of workers the task pool keeps beyond max
// threads.
const poolHeadroom = 2

// Runtime is the owning aggregate for one engine process. It is constructed
// at startup and passed by exclusive handle; no component is a process-wide
// singleton.
type Runtime struct {
	logger *slog.Logger
	cfg    *config.Config
	clock  clockwork.Clock

	registry     *registry.Registry
	executors    *executor.Registry
	pool         *pool.Pool
	orchestrator *orchestrator.Orchestrator
	bus          *eventbus.TriggerBus
	engine       *trigger.Engine
	watcher      *watcher.Watcher
}

// Option tweaks runtime construction.
type Option func(*Runtime)

// WithClock injects a clock, mostly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Runtime) {
		r.clock = clock
	}
}

// WithAssistantClient wires the backend used by ai_call tasks.
func WithAssistantClient(client executor.AssistantClient) Option {
	return func(r *Runtime) {
		r.executors.Register(models.TaskKindAICall, executor.NewAICallExecutor(r.logger, client))
	}
}

// NewRuntime builds the full engine from a checked configuration.
func NewRuntime(logger *slog.Logger, cfg *config.Config, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		logger:    logger.With("module", "runtime"),
		cfg:       cfg,
		clock:     clockwork.NewRealClock(),
		registry:  registry.NewRegistry(logger),
		executors: executor.NewRegistry(logger),
	}

	r.executors.Register(models.TaskKindShell, executor.NewShellExecutor(logger))
	r.executors.Register(models.TaskKindPython, executor.NewPythonExecutor(logger))
	r.executors.Register(models.TaskKindInternal, executor.NewInternalExecutor(logger))

	for _, opt := range opts {
		opt(r)
	}

	workerPool, err := pool.NewPool(cfg.MaxThreads + poolHeadroom)
	if err != nil {
		return nil, err
	}

	r.pool = workerPool
	r.orchestrator = orchestrator.NewOrchestrator(logger, r.registry, r.executors, workerPool, r.clock)
	r.bus = eventbus.NewTriggerBus(logger)

	r.engine = trigger.NewEngine(logger, r.clock, func(workflowID, triggerID string) {
		if err := r.bus.PublishTriggerFired(workflowID, triggerID); err != nil {
			r.logger.Error("Failed to publish trigger event",
				"workflow_id", workflowID, "trigger_id", triggerID, "error", err)
		}
	})

	return r, nil
}

// Registry exposes the workflow registry for CLI commands.
func (r *Runtime) Registry() *registry.Registry {
	return r.registry
}

// Orchestrator exposes the orchestrator for CLI commands.
func (r *Runtime) Orchestrator() *orchestrator.Orchestrator {
	return r.orchestrator
}

// Engine exposes the trigger engine (manual fires from a UI or CLI).
func (r *Runtime) Engine() *trigger.Engine {
	return r.engine
}

// Load reads all workflows from the configured folder and validates them.
// Validation failures keep the definitions loaded but refused at run time.
func (r *Runtime) Load() error {
	if err := r.registry.LoadDirectory(r.cfg.WorkflowsFolder); err != nil {
		return err
	}

	if !r.registry.ValidateAll() {
		r.logger.Warn("Some workflows failed validation and will refuse to run")
	}

	return nil
}

// Run binds triggers and drives the engine until the context is cancelled.
// The driver goroutine owns trigger-engine mutations, cron ticks, event
// dispatch, and the wave loop; it blocks only on its bounded sleep and on
// wave joins.
func (r *Runtime) Run(ctx context.Context) error {
	queueWatcher, err := watcher.NewWatcher(r.logger, r.cfg.QueueFolder)
	if err != nil {
		return fmt.Errorf("failed to watch queue folder: %w", err)
	}

	r.watcher = queueWatcher
	defer r.watcher.Close()

	triggerMessages, err := r.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to trigger bus: %w", err)
	}

	// Auto triggers fire during registration, so binding happens after the
	// subscription is in place.
	trigger.NewBinder(r.logger).RegisterAll(r.registry, r.engine)

	sleep := time.Duration(r.cfg.SleepTimeMs) * time.Millisecond

	r.logger.Info("Engine running", "workflows", len(r.registry.WorkflowIDs()), "sleep", sleep)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Shutting down")
			r.pool.Release()

			return r.bus.Close()
		case msg, ok := <-triggerMessages:
			if !ok {
				return nil
			}

			event, err := eventbus.DecodeTriggerFired(msg)
			if err != nil {
				r.logger.Error("Dropping malformed trigger event", "error", err)
				continue
			}

			if err := r.orchestrator.RunOnce(ctx, event.WorkflowID); err != nil {
				r.logger.Error("Workflow run failed",
					"workflow_id", event.WorkflowID, "trigger_id", event.TriggerID, "error", err)
			}
		case fileEvent, ok := <-r.watcher.Events():
			if !ok {
				return nil
			}

			r.engine.NotifyFileEvent(fileEvent.Path, fileEvent.Kind, fileEvent.At)
		case <-r.clock.After(sleep):
			r.engine.Tick(r.clock.Now())
		}
	}
}
