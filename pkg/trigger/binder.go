package trigger

import (
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/loomworks/weft/pkg/models"
	"github.com/loomworks/weft/pkg/registry"
)

// Binder translates the trigger records of registered workflows into engine
// registrations. Trigger params stay opaque until this point; the binder
// parses them on demand.
type Binder struct {
	logger *slog.Logger
}

func NewBinder(logger *slog.Logger) *Binder {
	return &Binder{logger: logger.With("module", "trigger_binder")}
}

// RegisterAll walks every workflow in the registry and registers its
// triggers into the engine. Unparsable trigger params skip that trigger
// only.
func (b *Binder) RegisterAll(reg *registry.Registry, engine *Engine) {
	for _, workflowID := range reg.WorkflowIDs() {
		def, ok := reg.Workflow(workflowID)
		if !ok {
			b.logger.Warn("Workflow disappeared during registration", "workflow_id", workflowID)
			continue
		}

		for _, trig := range def.Triggers {
			switch trig.Type {
			case models.TriggerTypeAuto:
				engine.AddAuto(def.ID, trig.ID, trig.Enabled)
			case models.TriggerTypeCron:
				expression, ok := b.parseCronParams(def.ID, trig)
				if !ok {
					continue
				}

				engine.AddCron(def.ID, trig.ID, expression, trig.Enabled)
			case models.TriggerTypeFileWatch:
				path, events, debounce, ok := b.parseFileWatchParams(def.ID, trig)
				if !ok {
					continue
				}

				engine.AddFileWatch(def.ID, trig.ID, path, events, debounce, trig.Enabled)
			case models.TriggerTypeManual:
				engine.AddManual(def.ID, trig.ID, trig.Enabled)
			case models.TriggerTypeStructure:
				// Structure triggers document per-item expansion; they
				// register nothing at runtime.
				b.logger.Info("Structure trigger does not register a runtime trigger",
					"workflow_id", def.ID, "trigger_id", trig.ID)
			default:
				b.logger.Warn("Trigger has unsupported or unknown type",
					"workflow_id", def.ID, "trigger_id", trig.ID, "type", trig.Type)
			}
		}
	}
}

func (b *Binder) parseCronParams(workflowID string, trig models.Trigger) (string, bool) {
	params := string(trig.Params)

	if params == "" || !gjson.Valid(params) {
		b.logger.Error("Failed to parse cron params", "workflow_id", workflowID, "trigger_id", trig.ID)
		return "", false
	}

	expression := gjson.Get(params, "expression")
	if !expression.Exists() || expression.Type != gjson.String {
		b.logger.Error("Missing 'expression' field in cron params",
			"workflow_id", workflowID, "trigger_id", trig.ID)
		return "", false
	}

	return expression.String(), true
}

func (b *Binder) parseFileWatchParams(workflowID string, trig models.Trigger) (string, []models.FileEventKind, time.Duration, bool) {
	params := string(trig.Params)

	if params == "" || !gjson.Valid(params) {
		b.logger.Error("Failed to parse file_watch params", "workflow_id", workflowID, "trigger_id", trig.ID)
		return "", nil, 0, false
	}

	path := gjson.Get(params, "path")
	if !path.Exists() || path.Type != gjson.String {
		b.logger.Error("Missing 'path' field in file_watch params",
			"workflow_id", workflowID, "trigger_id", trig.ID)
		return "", nil, 0, false
	}

	var events []models.FileEventKind

	for _, entry := range gjson.Get(params, "events").Array() {
		switch strings.ToLower(entry.String()) {
		case "created":
			events = append(events, models.FileEventCreated)
		case "modified":
			events = append(events, models.FileEventModified)
		case "deleted":
			events = append(events, models.FileEventDeleted)
		default:
			b.logger.Warn("Unknown file event, ignoring",
				"workflow_id", workflowID, "trigger_id", trig.ID, "event", entry.String())
		}
	}

	if len(events) == 0 {
		b.logger.Error("No valid events in file_watch params",
			"workflow_id", workflowID, "trigger_id", trig.ID)
		return "", nil, 0, false
	}

	debounceMs := gjson.Get(params, "debounce_ms").Int()
	if debounceMs < 0 {
		debounceMs = 0
	}

	return path.String(), events, time.Duration(debounceMs) * time.Millisecond, true
}
