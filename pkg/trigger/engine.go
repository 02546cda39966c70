// Package trigger binds workflow trigger records to event sources and fires
// workflow activations.
package trigger

import (
	"log/slog"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/loomworks/weft/pkg/models"
)

// FiredCallback receives every trigger fire. The engine holds no reference
// to the orchestrator; the callback typically publishes an event.
type FiredCallback func(workflowID, triggerID string)

type cronTrigger struct {
	workflowID string
	triggerID  string
	enabled    bool
	expression CronExpression
	nextFire   time.Time
}

type fileWatchTrigger struct {
	workflowID string
	triggerID  string
	enabled    bool
	path       string
	events     []models.FileEventKind
	debounce   time.Duration
	hasFired   bool
	lastFire   time.Time
}

type manualTrigger struct {
	workflowID string
	triggerID  string
	enabled    bool
}

// Engine owns the registered cron, file-watch, and manual triggers. All
// mutations run on the driver goroutine; no internal locking.
type Engine struct {
	logger   *slog.Logger
	clock    clockwork.Clock
	callback FiredCallback

	cronTriggers      []cronTrigger
	fileWatchTriggers []fileWatchTrigger
	manualTriggers    []manualTrigger

	// fileWatchIndex buckets file-watch trigger indices by watched path.
	fileWatchIndex map[string][]int
}

func NewEngine(logger *slog.Logger, clock clockwork.Clock, callback FiredCallback) *Engine {
	return &Engine{
		logger:         logger.With("module", "trigger_engine"),
		clock:          clock,
		callback:       callback,
		fileWatchIndex: make(map[string][]int),
	}
}

// AddAuto registers an auto trigger. Enabled auto triggers fire exactly once,
// synchronously, during registration.
func (e *Engine) AddAuto(workflowID, triggerID string, enabled bool) {
	e.logger.Info("Registered auto trigger", "workflow_id", workflowID, "trigger_id", triggerID)

	if !enabled {
		e.logger.Info("Auto trigger is disabled; not firing", "workflow_id", workflowID, "trigger_id", triggerID)
		return
	}

	e.fire(workflowID, triggerID)
}

// AddCron registers a cron trigger. An unparsable expression stores the
// trigger disabled instead of rejecting it.
func (e *Engine) AddCron(workflowID, triggerID, expression string, enabled bool) {
	instance := cronTrigger{
		workflowID: workflowID,
		triggerID:  triggerID,
		enabled:    enabled,
	}

	parsed, err := ParseCronExpression(expression)
	if err != nil {
		e.logger.Error("Failed to parse cron expression",
			"workflow_id", workflowID, "trigger_id", triggerID, "expression", expression, "error", err)

		instance.enabled = false
	} else {
		instance.expression = parsed
		instance.nextFire = parsed.ComputeNext(e.clock.Now())
	}

	e.cronTriggers = append(e.cronTriggers, instance)

	e.logger.Info("Registered cron trigger", "workflow_id", workflowID, "trigger_id", triggerID, "expression", expression)
}

// AddFileWatch registers a file-watch trigger on a path.
func (e *Engine) AddFileWatch(workflowID, triggerID, path string, events []models.FileEventKind, debounce time.Duration, enabled bool) {
	index := len(e.fileWatchTriggers)

	e.fileWatchTriggers = append(e.fileWatchTriggers, fileWatchTrigger{
		workflowID: workflowID,
		triggerID:  triggerID,
		enabled:    enabled,
		path:       path,
		events:     events,
		debounce:   debounce,
	})

	e.fileWatchIndex[path] = append(e.fileWatchIndex[path], index)

	e.logger.Info("Registered file watch trigger",
		"workflow_id", workflowID, "trigger_id", triggerID, "path", path)
}

// AddManual registers a manual trigger fired on demand via FireManual.
func (e *Engine) AddManual(workflowID, triggerID string, enabled bool) {
	e.manualTriggers = append(e.manualTriggers, manualTrigger{
		workflowID: workflowID,
		triggerID:  triggerID,
		enabled:    enabled,
	})

	e.logger.Info("Registered manual trigger", "workflow_id", workflowID, "trigger_id", triggerID)
}

// ClearWorkflowTriggers removes every trigger belonging to a workflow and
// rebuilds the file-watch index, whose positions may have shifted.
func (e *Engine) ClearWorkflowTriggers(workflowID string) {
	e.logger.Info("Clearing triggers for workflow", "workflow_id", workflowID)

	e.cronTriggers = slices.DeleteFunc(e.cronTriggers, func(t cronTrigger) bool {
		return t.workflowID == workflowID
	})
	e.fileWatchTriggers = slices.DeleteFunc(e.fileWatchTriggers, func(t fileWatchTrigger) bool {
		return t.workflowID == workflowID
	})
	e.manualTriggers = slices.DeleteFunc(e.manualTriggers, func(t manualTrigger) bool {
		return t.workflowID == workflowID
	})

	e.fileWatchIndex = make(map[string][]int, len(e.fileWatchTriggers))
	for i, instance := range e.fileWatchTriggers {
		e.fileWatchIndex[instance.path] = append(e.fileWatchIndex[instance.path], i)
	}
}

// Tick fires every enabled cron trigger whose next fire time has passed and
// recomputes its next fire from now. A stalled engine fires once per missed
// window, not once per missed minute.
func (e *Engine) Tick(now time.Time) {
	for i := range e.cronTriggers {
		instance := &e.cronTriggers[i]

		if !instance.enabled || !instance.expression.Valid() {
			continue
		}

		if !instance.nextFire.After(now) {
			e.fire(instance.workflowID, instance.triggerID)

			instance.nextFire = instance.expression.ComputeNext(now)
		}
	}
}

// NotifyFileEvent delivers one filesystem event to the file-watch triggers
// registered on the path. A trigger fires when the event kind is subscribed
// and either it never fired before or the debounce interval has elapsed.
func (e *Engine) NotifyFileEvent(path string, kind models.FileEventKind, now time.Time) {
	for _, index := range e.fileWatchIndex[path] {
		if index >= len(e.fileWatchTriggers) {
			continue
		}

		instance := &e.fileWatchTriggers[index]

		if !instance.enabled || !slices.Contains(instance.events, kind) {
			continue
		}

		canFire := !instance.hasFired || now.Sub(instance.lastFire) >= instance.debounce
		if !canFire {
			continue
		}

		instance.hasFired = true
		instance.lastFire = now

		e.fire(instance.workflowID, instance.triggerID)
	}
}

// FireManual fires the first enabled manual trigger matching the pair, or
// logs a warning.
func (e *Engine) FireManual(workflowID, triggerID string) {
	for _, instance := range e.manualTriggers {
		if !instance.enabled {
			continue
		}

		if instance.workflowID == workflowID && instance.triggerID == triggerID {
			e.fire(workflowID, triggerID)
			return
		}
	}

	e.logger.Warn("Manual trigger not found or disabled", "workflow_id", workflowID, "trigger_id", triggerID)
}

func (e *Engine) fire(workflowID, triggerID string) {
	if e.callback == nil {
		e.logger.Warn("Trigger callback is not set", "workflow_id", workflowID, "trigger_id", triggerID)
		return
	}

	e.logger.Info("Firing trigger", "workflow_id", workflowID, "trigger_id", triggerID)

	e.callback(workflowID, triggerID)
}
