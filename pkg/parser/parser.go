// Package parser turns JCWF documents into workflow definitions.
//
// The parser recognizes the fields of the JCWF 1.0 schema, preserves
// engine-private sub-blobs (params, defaults, trigger params) as raw JSON,
// and accepts unknown keys with a warning so documents written against newer
// schema revisions still load.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loomworks/weft/pkg/models"
)

const supportedVersion = "1.0"

// Parser parses JCWF JSON documents.
type Parser struct {
	logger *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger.With("module", "jcwf_parser")}
}

// Parse consumes a UTF-8 JCWF document and produces a workflow definition or
// a descriptive error. No partial definition is returned on failure.
func (p *Parser) Parse(content []byte) (*models.WorkflowDefinition, error) {
	if len(content) == 0 {
		return nil, errors.New("workflow JSON content is empty")
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(content, &root); err != nil {
		return nil, fmt.Errorf("failed to parse workflow JSON: %w", err)
	}

	def := &models.WorkflowDefinition{
		Tasks: make(map[string]*models.TaskDef),
	}

	var hasVersion, hasID, hasTasks, hasTriggers bool

	for key, value := range root {
		switch key {
		case "version":
			if err := json.Unmarshal(value, &def.Version); err != nil {
				return nil, errors.New("field 'version' must be string")
			}

			if def.Version != supportedVersion {
				return nil, fmt.Errorf("unsupported JCWF version: %s", def.Version)
			}

			hasVersion = true
		case "id":
			if err := json.Unmarshal(value, &def.ID); err != nil {
				return nil, errors.New("field 'id' must be string")
			}

			hasID = true
		case "label":
			if err := json.Unmarshal(value, &def.Label); err != nil {
				return nil, errors.New("field 'label' must be string")
			}
		case "doc":
			if err := json.Unmarshal(value, &def.Doc); err != nil {
				return nil, errors.New("field 'doc' must be string")
			}
		case "triggers":
			triggers, err := p.parseTriggers(value)
			if err != nil {
				return nil, err
			}

			def.Triggers = triggers
			hasTriggers = true
		case "tasks":
			tasks, err := p.parseTasks(value)
			if err != nil {
				return nil, err
			}

			def.Tasks = tasks
			hasTasks = true
		case "dataflow":
			edges, err := p.parseDataflow(value)
			if err != nil {
				return nil, err
			}

			def.Dataflow = edges
		case "defaults":
			def.Defaults = value
		default:
			p.logger.Warn("Unknown field in root JCWF object", "key", key)
		}
	}

	if !hasVersion {
		return nil, errors.New("workflow missing required field: version")
	}

	if !hasID {
		return nil, errors.New("workflow missing required field: id")
	}

	if !hasTasks {
		return nil, errors.New("workflow missing required field: tasks")
	}

	// Without an explicit triggers list the workflow runs on registration.
	if !hasTriggers {
		def.Triggers = append(def.Triggers, models.Trigger{
			Type:    models.TriggerTypeAuto,
			ID:      "auto",
			Enabled: true,
			Params:  json.RawMessage("{}"),
		})
	}

	return def, nil
}

func (p *Parser) parseTriggers(value json.RawMessage) ([]models.Trigger, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(value, &entries); err != nil {
		return nil, errors.New("'triggers' must be an array")
	}

	triggers := make([]models.Trigger, 0, len(entries))

	for _, entry := range entries {
		trigger, err := p.parseTrigger(entry)
		if err != nil {
			return nil, err
		}

		triggers = append(triggers, trigger)
	}

	return triggers, nil
}

func (p *Parser) parseTrigger(entry json.RawMessage) (models.Trigger, error) {
	trigger := models.Trigger{Enabled: true}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(entry, &fields); err != nil {
		return trigger, errors.New("trigger entry must be an object")
	}

	var hasType, hasID bool

	for key, value := range fields {
		switch key {
		case "type":
			var raw string
			if err := json.Unmarshal(value, &raw); err != nil {
				return trigger, errors.New("trigger field 'type' must be string")
			}

			trigger.Type = models.ParseTriggerType(raw, p.logger)
			hasType = true
		case "id":
			if err := json.Unmarshal(value, &trigger.ID); err != nil {
				return trigger, errors.New("trigger field 'id' must be string")
			}

			hasID = true
		case "enabled":
			if err := json.Unmarshal(value, &trigger.Enabled); err != nil {
				return trigger, errors.New("trigger field 'enabled' must be bool")
			}
		case "params":
			trigger.Params = value
		default:
			p.logger.Warn("Unknown field in trigger", "trigger", trigger.ID, "key", key)
		}
	}

	if !hasType {
		return trigger, errors.New("trigger missing required field: type")
	}

	if !hasID {
		return trigger, errors.New("trigger missing required field: id")
	}

	return trigger, nil
}

func (p *Parser) parseTasks(value json.RawMessage) (map[string]*models.TaskDef, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(value, &entries); err != nil {
		return nil, errors.New("'tasks' must be an object")
	}

	tasks := make(map[string]*models.TaskDef, len(entries))

	for taskKey, entry := range entries {
		task, err := p.parseTask(entry)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", taskKey, err)
		}

		// A task without an explicit "id" takes the map key as its id.
		if task.ID == "" {
			task.ID = taskKey
		}

		tasks[taskKey] = task
	}

	return tasks, nil
}

func (p *Parser) parseTask(entry json.RawMessage) (*models.TaskDef, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(entry, &fields); err != nil {
		return nil, errors.New("task entry must be an object")
	}

	task := &models.TaskDef{
		Mode: models.TaskModeSingle,
	}

	var hasKind bool

	for key, value := range fields {
		switch key {
		case "id":
			if err := json.Unmarshal(value, &task.ID); err != nil {
				return nil, errors.New("task field 'id' must be string")
			}
		case "type":
			var raw string
			if err := json.Unmarshal(value, &raw); err != nil {
				return nil, errors.New("task field 'type' must be string")
			}

			task.Kind = models.ParseTaskKind(raw, p.logger)
			hasKind = true
		case "mode":
			var raw string
			if err := json.Unmarshal(value, &raw); err != nil {
				return nil, errors.New("task field 'mode' must be string")
			}

			task.Mode = models.ParseTaskMode(raw, p.logger)
		case "label":
			if err := json.Unmarshal(value, &task.Label); err != nil {
				return nil, errors.New("task field 'label' must be string")
			}
		case "doc":
			if err := json.Unmarshal(value, &task.Doc); err != nil {
				return nil, errors.New("task field 'doc' must be string")
			}
		case "depends_on":
			if err := json.Unmarshal(value, &task.DependsOn); err != nil {
				return nil, errors.New("task field 'depends_on' must be array of strings")
			}
		case "file_inputs":
			if err := json.Unmarshal(value, &task.FileInputs); err != nil {
				return nil, errors.New("task field 'file_inputs' must be array of strings")
			}
		case "file_outputs":
			if err := json.Unmarshal(value, &task.FileOutputs); err != nil {
				return nil, errors.New("task field 'file_outputs' must be array of strings")
			}
		case "environment":
			environment, err := p.parseEnvironment(value)
			if err != nil {
				return nil, err
			}

			task.Environment = environment
		case "queue_binding":
			if err := json.Unmarshal(value, &task.QueueBinding); err != nil {
				return nil, errors.New("task field 'queue_binding' must be object")
			}
		case "inputs":
			slots, err := p.parseIOMap(value, "inputs")
			if err != nil {
				return nil, err
			}

			task.Inputs = slots
		case "outputs":
			slots, err := p.parseIOMap(value, "outputs")
			if err != nil {
				return nil, err
			}

			task.Outputs = slots
		case "timeout_ms":
			if err := json.Unmarshal(value, &task.TimeoutMs); err != nil {
				return nil, errors.New("task field 'timeout_ms' must be integer")
			}
		case "retries":
			if err := json.Unmarshal(value, &task.Retries); err != nil {
				return nil, errors.New("task field 'retries' must be object")
			}
		case "params":
			task.Params = value
		default:
			p.logger.Warn("Unknown field in task", "task", task.ID, "key", key)
		}
	}

	if !hasKind {
		return nil, errors.New("task missing required field: type")
	}

	return task, nil
}

func (p *Parser) parseEnvironment(value json.RawMessage) (models.TaskEnvironment, error) {
	var environment models.TaskEnvironment

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(value, &fields); err != nil {
		return environment, errors.New("task field 'environment' must be object")
	}

	for key, raw := range fields {
		switch key {
		case "name":
			if err := json.Unmarshal(raw, &environment.Name); err != nil {
				return environment, errors.New("environment field 'name' must be string")
			}
		case "assistant_id":
			if err := json.Unmarshal(raw, &environment.AssistantID); err != nil {
				return environment, errors.New("environment field 'assistant_id' must be string")
			}
		case "variables":
			variables, err := p.parseEnvironmentVariables(raw)
			if err != nil {
				return environment, err
			}

			environment.Variables = variables
		default:
			p.logger.Warn("Unknown field in task environment", "key", key)
		}
	}

	return environment, nil
}

// parseEnvironmentVariables keeps each variable value as its raw JSON text
// when it is not a plain string, deferring interpretation to executors.
func (p *Parser) parseEnvironmentVariables(value json.RawMessage) (map[string]string, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(value, &entries); err != nil {
		return nil, errors.New("environment field 'variables' must be object")
	}

	variables := make(map[string]string, len(entries))

	for name, raw := range entries {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			text = string(raw)
		}

		variables[name] = text
	}

	return variables, nil
}

func (p *Parser) parseIOMap(value json.RawMessage, context string) (models.IOMap, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(value, &entries); err != nil {
		return nil, fmt.Errorf("task field '%s' must be object", context)
	}

	slots := make(models.IOMap, len(entries))

	for name, raw := range entries {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("task %s entry %q must be object", context, name)
		}

		var field models.IOField

		for key, sub := range fields {
			switch key {
			case "type":
				if err := json.Unmarshal(sub, &field.Type); err != nil {
					return nil, fmt.Errorf("task %s field 'type' must be string", context)
				}
			case "required":
				if err := json.Unmarshal(sub, &field.Required); err != nil {
					return nil, fmt.Errorf("task %s field 'required' must be bool", context)
				}
			default:
				p.logger.Warn("Unknown field in task slot", "slot", name, "key", key)
			}
		}

		slots[name] = field
	}

	return slots, nil
}

func (p *Parser) parseDataflow(value json.RawMessage) ([]models.DataflowEdge, error) {
	var edges []models.DataflowEdge
	if err := json.Unmarshal(value, &edges); err != nil {
		return nil, errors.New("'dataflow' must be an array of edge objects")
	}

	return edges, nil
}
