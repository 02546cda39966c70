package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loomworks/weft/pkg/freshness"
	"github.com/loomworks/weft/pkg/models"
)

// resolvePathTemplate rewrites ${inputs.KEY} and ${outputs.KEY} tokens in a
// path template. Any other token, a missing key, or a malformed template
// fails resolution.
func resolvePathTemplate(value string, inputValues, outputValues map[string]string) (string, error) {
	var builder strings.Builder

	for current := 0; current < len(value); {
		start := strings.Index(value[current:], "${")
		if start < 0 {
			builder.WriteString(value[current:])
			break
		}

		start += current
		builder.WriteString(value[current:start])

		close := strings.IndexByte(value[start+2:], '}')
		if close < 0 {
			return "", fmt.Errorf("malformed template in %q", value)
		}

		close += start + 2
		token := value[start+2 : close]

		switch {
		case strings.HasPrefix(token, "inputs."):
			key := token[len("inputs."):]

			replacement, ok := inputValues[key]
			if !ok {
				return "", fmt.Errorf("unknown input %q in path template %q", key, value)
			}

			builder.WriteString(replacement)
		case strings.HasPrefix(token, "outputs."):
			key := token[len("outputs."):]

			replacement, ok := outputValues[key]
			if !ok {
				return "", fmt.Errorf("unknown output %q in path template %q", key, value)
			}

			builder.WriteString(replacement)
		default:
			return "", fmt.Errorf("unsupported token %q in path template %q", token, value)
		}

		current = close + 1
	}

	return builder.String(), nil
}

// resolvePathList expands every template in the list. A path with no
// templates passes through literally; an entry that resolves to empty fails.
func resolvePathList(templates []string, inputValues, outputValues map[string]string) ([]string, bool) {
	paths := make([]string, 0, len(templates))

	for _, template := range templates {
		resolved, err := resolvePathTemplate(template, inputValues, outputValues)
		if err != nil {
			if !strings.Contains(template, "${") {
				paths = append(paths, template)
				continue
			}

			return nil, false
		}

		if resolved == "" {
			return nil, false
		}

		paths = append(paths, resolved)
	}

	return paths, true
}

// resolveFreshnessPaths expands the task's file_inputs and file_outputs for
// the freshness check. Declared inputs are resolved through the dataflow
// only when a path actually references ${inputs.*}; literal paths must not
// fail just because the task's logical inputs are not resolvable yet.
func (o *Orchestrator) resolveFreshnessPaths(def *models.WorkflowDefinition, run *models.WorkflowRun, task *models.TaskDef, taskID string) (freshness.ResolvedPaths, bool) {
	needsInputResolution := referencesInputTemplates(task.FileInputs) || referencesInputTemplates(task.FileOutputs)

	inputValues := map[string]string{}

	if needsInputResolution {
		resolved, err := o.resolver.ResolveInputs(def, run, task, taskID)
		if err != nil {
			return freshness.ResolvedPaths{}, false
		}

		inputValues = resolved
	}

	// Output templates substitute only outputs already produced; for
	// not-yet-run tasks the map is typically empty and resolution may fail,
	// which conservatively counts as not up to date.
	outputValues := map[string]string{}
	if state, ok := run.TaskStates[taskID]; ok {
		outputValues = state.OutputValues
	}

	inputPaths, ok := resolvePathList(task.FileInputs, inputValues, outputValues)
	if !ok {
		return freshness.ResolvedPaths{}, false
	}

	outputPaths, ok := resolvePathList(task.FileOutputs, inputValues, outputValues)
	if !ok {
		return freshness.ResolvedPaths{}, false
	}

	return freshness.ResolvedPaths{InputPaths: inputPaths, OutputPaths: outputPaths}, true
}

func referencesInputTemplates(templates []string) bool {
	for _, template := range templates {
		if strings.Contains(template, "${inputs.") {
			return true
		}
	}

	return false
}

// populateSkippedTaskOutputs derives the logical outputs of a task skipped
// by freshness so downstream dataflow still resolves. Slots pair with the
// resolved file outputs positionally (slot names sorted ascending); a single
// path fans out to every slot; a single slot takes the first path; anything
// else stays empty and downstream resolution fails deterministically.
func (o *Orchestrator) populateSkippedTaskOutputs(def *models.WorkflowDefinition, run *models.WorkflowRun, task *models.TaskDef, taskID string, state *models.TaskInstanceState) {
	paths, ok := o.resolveFreshnessPaths(def, run, task, taskID)
	if !ok {
		return
	}

	if len(task.Outputs) == 0 || len(paths.OutputPaths) == 0 {
		return
	}

	slotNames := make([]string, 0, len(task.Outputs))
	for name := range task.Outputs {
		slotNames = append(slotNames, name)
	}

	sort.Strings(slotNames)

	switch {
	case len(slotNames) == len(paths.OutputPaths):
		for i, name := range slotNames {
			state.OutputValues[name] = paths.OutputPaths[i]
		}
	case len(paths.OutputPaths) == 1:
		for _, name := range slotNames {
			state.OutputValues[name] = paths.OutputPaths[0]
		}
	case len(slotNames) == 1:
		state.OutputValues[slotNames[0]] = paths.OutputPaths[0]
	default:
		// Ambiguous mapping; do not guess.
		return
	}

	state.OutputsSummary = models.SummarizeValues(state.OutputValues)
}
