// Package dataflow resolves the logical inputs of a task from upstream
// outputs along the workflow's dataflow edges.
package dataflow

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/loomworks/weft/pkg/models"
)

const inputToken = "${inputs."

// Resolver computes the resolved input map for a task. Its output is a pure
// function of the definition and the current task states.
type Resolver struct {
	logger *slog.Logger
}

func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{logger: logger.With("module", "dataflow_resolver")}
}

// ResolveInputs produces a slot→value map covering every declared input of
// the task, or fails. Edges are resolved first, then a template-expansion
// pass rewrites ${inputs.KEY} references against the same map, so templates
// may reference sibling inputs of the same task.
func (r *Resolver) ResolveInputs(def *models.WorkflowDefinition, run *models.WorkflowRun, task *models.TaskDef, taskID string) (map[string]string, error) {
	resolved := make(map[string]string, len(task.Inputs))

	for name := range task.Inputs {
		value, found, err := r.resolveFromEdges(def, run, taskID, name)
		if err != nil {
			return nil, err
		}

		if !found {
			// Run-context and literal-default resolution are reserved
			// extension points; an unwired input is a hard failure.
			r.logger.Error("Missing input for task", "task", taskID, "input", name)
			return nil, fmt.Errorf("missing input %q for task %q", name, taskID)
		}

		resolved[name] = value
	}

	for name, value := range resolved {
		expanded, err := ExpandTemplates(value, resolved)
		if err != nil {
			r.logger.Error("Template expansion failed", "task", taskID, "value", value, "error", err)
			return nil, fmt.Errorf("template expansion failed for task %q value %q: %w", taskID, value, err)
		}

		resolved[name] = expanded
	}

	return resolved, nil
}

// resolveFromEdges scans the workflow's dataflow edges for one targeting
// (taskID, inputName) and pulls the value from the source task's outputs.
func (r *Resolver) resolveFromEdges(def *models.WorkflowDefinition, run *models.WorkflowRun, taskID, inputName string) (string, bool, error) {
	for _, edge := range def.Dataflow {
		if edge.ToTask != taskID || edge.ToInput != inputName {
			continue
		}

		sourceState, ok := run.TaskStates[edge.FromTask]
		if !ok {
			r.logger.Error("Dataflow references unknown task",
				"from_task", edge.FromTask, "to_task", edge.ToTask, "to_input", edge.ToInput)
			return "", false, fmt.Errorf("dataflow references unknown task %q for %s.%s", edge.FromTask, edge.ToTask, edge.ToInput)
		}

		value, ok := sourceState.OutputValues[edge.FromOutput]
		if !ok {
			r.logger.Error("Dataflow output not found",
				"output", edge.FromOutput, "from_task", edge.FromTask, "to_task", edge.ToTask, "to_input", edge.ToInput)
			return "", false, fmt.Errorf("output %q not found in task %q for dataflow into %s.%s",
				edge.FromOutput, edge.FromTask, edge.ToTask, edge.ToInput)
		}

		return value, true, nil
	}

	return "", false, nil
}

// ExpandTemplates rewrites literal ${inputs.KEY} substrings in value against
// the given input map. Malformed templates or references to unknown keys
// fail. Already-literal strings pass through unchanged.
func ExpandTemplates(value string, inputs map[string]string) (string, error) {
	var builder strings.Builder

	for current := 0; current < len(value); {
		start := strings.Index(value[current:], inputToken)
		if start < 0 {
			builder.WriteString(value[current:])
			break
		}

		start += current
		builder.WriteString(value[current:start])

		close := strings.IndexByte(value[start:], '}')
		if close < 0 {
			return "", fmt.Errorf("malformed template in %q", value)
		}

		close += start
		key := value[start+len(inputToken) : close]

		replacement, ok := inputs[key]
		if !ok {
			return "", fmt.Errorf("template references unknown input %q", key)
		}

		builder.WriteString(replacement)
		current = close + 1
	}

	return builder.String(), nil
}
