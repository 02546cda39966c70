// Package freshness implements the make-style up-to-date predicate used to
// skip tasks whose outputs are newer than all transitive inputs.
package freshness

import (
	"os"
	"time"

	"github.com/loomworks/weft/pkg/models"
)

// ResolvedPaths carries the fully template-resolved file paths of one task.
type ResolvedPaths struct {
	InputPaths  []string
	OutputPaths []string
}

// ResolveOutputPathsFn resolves the file outputs of an upstream task. A
// false return means the paths could not be resolved and the check must
// conservatively fail.
type ResolveOutputPathsFn func(taskID string) ([]string, bool)

// Checker decides whether a task's outputs are current. Filesystem errors
// default to "not up to date" so transient missing files trigger a rebuild
// rather than a failure.
type Checker struct{}

func NewChecker() *Checker {
	return &Checker{}
}

// IsTaskUpToDate returns true iff every output exists and the oldest output
// mtime is >= the newest mtime among the declared inputs and all transitive
// upstream outputs reachable through depends_on.
func (c *Checker) IsTaskUpToDate(def *models.WorkflowDefinition, taskID string, paths ResolvedPaths, resolveOutputs ResolveOutputPathsFn) bool {
	// Without declared outputs the task is never provably up to date.
	if len(paths.OutputPaths) == 0 {
		return false
	}

	inputTimes := make([]time.Time, 0, len(paths.InputPaths))

	for _, path := range paths.InputPaths {
		mtime, ok := fileModTime(path)
		if !ok {
			return false
		}

		inputTimes = append(inputTimes, mtime)
	}

	task, ok := def.Tasks[taskID]
	if !ok {
		return false
	}

	visited := make(map[string]struct{})

	for _, dep := range task.DependsOn {
		upstream, ok := c.collectUpstreamOutputTimes(def, dep, visited, resolveOutputs)
		if !ok {
			return false
		}

		inputTimes = append(inputTimes, upstream...)
	}

	// No inputs and no upstream outputs: freshness cannot be proven.
	if len(inputTimes) == 0 {
		return false
	}

	newestInput := inputTimes[0]
	for _, mtime := range inputTimes[1:] {
		if mtime.After(newestInput) {
			newestInput = mtime
		}
	}

	var oldestOutput time.Time

	for i, path := range paths.OutputPaths {
		mtime, ok := fileModTime(path)
		if !ok {
			return false
		}

		if i == 0 || mtime.Before(oldestOutput) {
			oldestOutput = mtime
		}
	}

	return !oldestOutput.Before(newestInput)
}

// collectUpstreamOutputTimes gathers output mtimes for taskID and all of its
// transitive dependencies. The visited set prevents re-traversal; cycles
// cannot occur here because the validator rejects them.
func (c *Checker) collectUpstreamOutputTimes(def *models.WorkflowDefinition, taskID string, visited map[string]struct{}, resolveOutputs ResolveOutputPathsFn) ([]time.Time, bool) {
	if _, seen := visited[taskID]; seen {
		return nil, true
	}

	visited[taskID] = struct{}{}

	task, ok := def.Tasks[taskID]
	if !ok {
		return nil, false
	}

	var times []time.Time

	for _, dep := range task.DependsOn {
		upstream, ok := c.collectUpstreamOutputTimes(def, dep, visited, resolveOutputs)
		if !ok {
			return nil, false
		}

		times = append(times, upstream...)
	}

	outputPaths, ok := resolveOutputs(taskID)
	if !ok {
		return nil, false
	}

	for _, path := range outputPaths {
		mtime, ok := fileModTime(path)
		if !ok {
			return nil, false
		}

		times = append(times, mtime)
	}

	return times, true
}

func fileModTime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}

	return info.ModTime(), true
}
