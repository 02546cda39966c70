package orchestrator

import (
	"log/slog"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/weft/pkg/executor"
	"github.com/loomworks/weft/pkg/models"
	"github.com/loomworks/weft/pkg/pool"
	"github.com/loomworks/weft/pkg/registry"
)

func TestResolvePathTemplate(t *testing.T) {
	inputs := map[string]string{"name": "report"}
	outputs := map[string]string{"dir": "out"}

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{"literal", "a.c", "a.c", false},
		{"input token", "${inputs.name}.md", "report.md", false},
		{"output token", "${outputs.dir}/x", "out/x", false},
		{"mixed", "${outputs.dir}/${inputs.name}.md", "out/report.md", false},
		{"unknown input", "${inputs.ghost}", "", true},
		{"unknown output", "${outputs.ghost}", "", true},
		{"argv-level token rejected", "${input[0]}", "", true},
		{"malformed", "${inputs.name", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvePathTemplate(tt.value, inputs, outputs)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolvePathList(t *testing.T) {
	inputs := map[string]string{"name": "report"}

	paths, ok := resolvePathList([]string{"a.c", "${inputs.name}.md"}, inputs, nil)
	require.True(t, ok)
	assert.Equal(t, []string{"a.c", "report.md"}, paths)

	// Unresolvable templates fail the list; literal entries do not.
	_, ok = resolvePathList([]string{"${inputs.ghost}"}, inputs, nil)
	assert.False(t, ok)
}

func newBareOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	logger := slog.Default()

	workerPool, err := pool.NewPool(2)
	require.NoError(t, err)
	t.Cleanup(workerPool.Release)

	return NewOrchestrator(logger, registry.NewRegistry(logger), executor.NewRegistry(logger), workerPool, clockwork.NewRealClock())
}

func skipPopulationFixture(slots []string, fileOutputs []string) (*models.WorkflowDefinition, *models.WorkflowRun) {
	outputs := models.IOMap{}
	for _, slot := range slots {
		outputs[slot] = models.IOField{Type: "string"}
	}

	def := &models.WorkflowDefinition{
		Version: "1.0",
		ID:      "wf",
		Tasks: map[string]*models.TaskDef{
			"t": {ID: "t", Kind: models.TaskKindInternal, FileOutputs: fileOutputs, Outputs: outputs},
		},
	}

	return def, models.NewWorkflowRun(def, "wf_1")
}

func TestPopulateSkippedTaskOutputs(t *testing.T) {
	orch := newBareOrchestrator(t)

	t.Run("slot count matches path count", func(t *testing.T) {
		def, run := skipPopulationFixture([]string{"beta", "alpha"}, []string{"one.txt", "two.txt"})
		state := run.TaskStates["t"]

		orch.populateSkippedTaskOutputs(def, run, def.Tasks["t"], "t", state)

		// Slots pair in ascending name order against declaration order.
		assert.Equal(t, map[string]string{"alpha": "one.txt", "beta": "two.txt"}, state.OutputValues)
		assert.Equal(t, "alpha=one.txt;beta=two.txt;", state.OutputsSummary)
	})

	t.Run("single path fans out to all slots", func(t *testing.T) {
		def, run := skipPopulationFixture([]string{"alpha", "beta"}, []string{"only.txt"})
		state := run.TaskStates["t"]

		orch.populateSkippedTaskOutputs(def, run, def.Tasks["t"], "t", state)

		assert.Equal(t, map[string]string{"alpha": "only.txt", "beta": "only.txt"}, state.OutputValues)
	})

	t.Run("single slot takes first path", func(t *testing.T) {
		def, run := skipPopulationFixture([]string{"alpha"}, []string{"one.txt", "two.txt"})
		state := run.TaskStates["t"]

		orch.populateSkippedTaskOutputs(def, run, def.Tasks["t"], "t", state)

		assert.Equal(t, map[string]string{"alpha": "one.txt"}, state.OutputValues)
	})

	t.Run("ambiguous mapping stays empty", func(t *testing.T) {
		def, run := skipPopulationFixture([]string{"a", "b", "c"}, []string{"one.txt", "two.txt"})
		state := run.TaskStates["t"]

		orch.populateSkippedTaskOutputs(def, run, def.Tasks["t"], "t", state)

		assert.Empty(t, state.OutputValues)
	})

	t.Run("no declared outputs stays empty", func(t *testing.T) {
		def, run := skipPopulationFixture(nil, []string{"one.txt"})
		state := run.TaskStates["t"]

		orch.populateSkippedTaskOutputs(def, run, def.Tasks["t"], "t", state)

		assert.Empty(t, state.OutputValues)
	})
}
