package registry

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/loomworks/weft/pkg/models"
)

var structValidator = validator.New()

// ValidateWorkflow runs every check on a single definition and returns all
// failures. An empty slice means the workflow is runnable.
func ValidateWorkflow(def *models.WorkflowDefinition) []error {
	var errs []error

	errs = append(errs, validateTriggers(def)...)
	errs = append(errs, validateTasks(def)...)
	errs = append(errs, validateDataflow(def)...)
	errs = append(errs, validateNoCycles(def)...)

	return errs
}

func validateTriggers(def *models.WorkflowDefinition) []error {
	var errs []error

	seen := make(map[string]struct{}, len(def.Triggers))

	for _, trigger := range def.Triggers {
		if _, dup := seen[trigger.ID]; dup {
			errs = append(errs, fmt.Errorf("trigger %q is duplicated", trigger.ID))
			continue
		}

		seen[trigger.ID] = struct{}{}

		if trigger.Type == models.TriggerTypeUnknown || trigger.Type == "" {
			errs = append(errs, fmt.Errorf("trigger %q has unknown type", trigger.ID))
		}

		if trigger.Type == models.TriggerTypeCron && len(trigger.Params) == 0 {
			errs = append(errs, fmt.Errorf("trigger %q missing cron parameters", trigger.ID))
		}
	}

	return errs
}

func validateTasks(def *models.WorkflowDefinition) []error {
	var errs []error

	for _, taskID := range sortedTaskIDs(def) {
		task := def.Tasks[taskID]

		for _, dep := range task.DependsOn {
			if _, ok := def.Tasks[dep]; !ok {
				errs = append(errs, fmt.Errorf("task %q depends on unknown task %q", taskID, dep))
			}
		}

		for name, field := range task.Inputs {
			if field.Required && field.Type == "" {
				errs = append(errs, fmt.Errorf("task %q input %q is required but has no type", taskID, name))
			}
		}

		for name, field := range task.Outputs {
			if field.Type == "" {
				errs = append(errs, fmt.Errorf("task %q output %q missing type", taskID, name))
			}
		}
	}

	return errs
}

func validateDataflow(def *models.WorkflowDefinition) []error {
	var errs []error

	for i, edge := range def.Dataflow {
		if err := structValidator.Struct(edge); err != nil {
			errs = append(errs, fmt.Errorf("dataflow edge %d is incomplete: %w", i, err))
			continue
		}

		from, fromOK := def.Tasks[edge.FromTask]
		if !fromOK {
			errs = append(errs, fmt.Errorf("dataflow references unknown from_task %q", edge.FromTask))
		}

		to, toOK := def.Tasks[edge.ToTask]
		if !toOK {
			errs = append(errs, fmt.Errorf("dataflow references unknown to_task %q", edge.ToTask))
		}

		if fromOK && edge.FromOutput != "" {
			if _, ok := from.Outputs[edge.FromOutput]; !ok {
				errs = append(errs, fmt.Errorf("dataflow: from_task %q has no output slot %q", edge.FromTask, edge.FromOutput))
			}
		}

		if toOK && edge.ToInput != "" {
			if _, ok := to.Inputs[edge.ToInput]; !ok {
				errs = append(errs, fmt.Errorf("dataflow: to_task %q has no input slot %q", edge.ToTask, edge.ToInput))
			}
		}
	}

	return errs
}

// validateNoCycles runs a three-color depth-first traversal over the
// depends_on graph. Revisiting a task in the visiting set is a cycle.
func validateNoCycles(def *models.WorkflowDefinition) []error {
	var errs []error

	visiting := make(map[string]struct{})
	visited := make(map[string]struct{})

	var dfs func(taskID string) error

	dfs = func(taskID string) error {
		if _, ok := visiting[taskID]; ok {
			return fmt.Errorf("cycle detected at task %q", taskID)
		}

		if _, ok := visited[taskID]; ok {
			return nil
		}

		visiting[taskID] = struct{}{}

		task, ok := def.Tasks[taskID]
		if ok {
			for _, dep := range task.DependsOn {
				if _, known := def.Tasks[dep]; !known {
					// Reported by validateTasks; nothing to traverse.
					continue
				}

				if err := dfs(dep); err != nil {
					return err
				}
			}
		}

		delete(visiting, taskID)
		visited[taskID] = struct{}{}

		return nil
	}

	for _, taskID := range sortedTaskIDs(def) {
		if err := dfs(taskID); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

func sortedTaskIDs(def *models.WorkflowDefinition) []string {
	ids := make([]string, 0, len(def.Tasks))
	for id := range def.Tasks {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}
