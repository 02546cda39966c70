package parser

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/weft/pkg/models"
)

const sampleDocument = `{
  "version": "1.0",
  "id": "daily-report",
  "label": "Daily Reporting Workflow",
  "doc": "Generates a daily report.",
  "triggers": [
    {"type": "cron", "id": "morning", "enabled": true, "params": {"expression": "30 6 * * *"}},
    {"type": "manual", "id": "kick"}
  ],
  "tasks": {
    "load_xls": {
      "type": "python",
      "mode": "single",
      "file_inputs": ["report.xls"],
      "file_outputs": ["rows.json"],
      "outputs": {"rows": {"type": "string"}},
      "params": {"script": "scripts/load.py"}
    },
    "summarize": {
      "id": "summarize",
      "type": "ai_call",
      "depends_on": ["load_xls"],
      "environment": {
        "name": "assistant_env",
        "assistant_id": "assistant-123",
        "variables": {"PROJECT": "DailyReports"}
      },
      "queue_binding": {"stng_files": ["STNG_daily.txt"]},
      "inputs": {"section_text": {"type": "string", "required": true}},
      "outputs": {"markdown_path": {"type": "string"}},
      "timeout_ms": 600000,
      "retries": {"max_attempts": 3, "backoff_ms": 1000},
      "params": {"provider": "local", "model": "report-writer"}
    }
  },
  "dataflow": [
    {"from_task": "load_xls", "from_output": "rows", "to_task": "summarize", "to_input": "section_text", "mapping": {"use_field": "A"}}
  ],
  "defaults": {"timeout_ms": 600000}
}`

func newTestParser() *Parser {
	return NewParser(slog.Default())
}

func TestParse_FullDocument(t *testing.T) {
	def, err := newTestParser().Parse([]byte(sampleDocument))
	require.NoError(t, err)

	assert.Equal(t, "1.0", def.Version)
	assert.Equal(t, "daily-report", def.ID)
	assert.Equal(t, "Daily Reporting Workflow", def.Label)
	require.Len(t, def.Triggers, 2)
	require.Len(t, def.Tasks, 2)
	require.Len(t, def.Dataflow, 1)

	load, ok := def.Task("load_xls")
	require.True(t, ok)
	// Task id falls back to the map key when not declared explicitly.
	assert.Equal(t, "load_xls", load.ID)
	assert.Equal(t, models.TaskKindPython, load.Kind)
	assert.Equal(t, models.TaskModeSingle, load.Mode)
	assert.Equal(t, []string{"report.xls"}, load.FileInputs)

	summarize, ok := def.Task("summarize")
	require.True(t, ok)
	assert.Equal(t, models.TaskKindAICall, summarize.Kind)
	assert.Equal(t, []string{"load_xls"}, summarize.DependsOn)
	assert.Equal(t, "assistant-123", summarize.Environment.AssistantID)
	assert.Equal(t, "DailyReports", summarize.Environment.Variables["PROJECT"])
	assert.Equal(t, []string{"STNG_daily.txt"}, summarize.QueueBinding.StngFiles)
	assert.Equal(t, uint64(600000), summarize.TimeoutMs)
	assert.Equal(t, uint32(3), summarize.Retries.MaxAttempts)
	assert.True(t, summarize.Inputs["section_text"].Required)

	edge := def.Dataflow[0]
	assert.Equal(t, "load_xls", edge.FromTask)
	assert.Equal(t, "rows", edge.FromOutput)
	assert.Equal(t, "summarize", edge.ToTask)
	assert.Equal(t, "section_text", edge.ToInput)
	assert.Equal(t, "A", edge.Mapping["use_field"])
}

func TestParse_OpaqueBlobsPreserved(t *testing.T) {
	def, err := newTestParser().Parse([]byte(sampleDocument))
	require.NoError(t, err)

	// Engine-private sub-blobs stay byte-identical raw JSON.
	assert.JSONEq(t, `{"timeout_ms": 600000}`, string(def.Defaults))
	assert.JSONEq(t, `{"expression": "30 6 * * *"}`, string(def.Triggers[0].Params))

	summarize := def.Tasks["summarize"]
	assert.JSONEq(t, `{"provider": "local", "model": "report-writer"}`, string(summarize.Params))
}

func TestParse_RoundTrip(t *testing.T) {
	parser := newTestParser()

	def, err := parser.Parse([]byte(sampleDocument))
	require.NoError(t, err)

	serialized, err := json.Marshal(def)
	require.NoError(t, err)

	reparsed, err := parser.Parse(serialized)
	require.NoError(t, err)

	// Marshalling compacts the raw blobs, so they compare as JSON.
	original, again := *def.Tasks["summarize"], *reparsed.Tasks["summarize"]
	assert.JSONEq(t, string(original.Params), string(again.Params))

	original.Params, again.Params = nil, nil
	assert.Equal(t, original, again)
	assert.JSONEq(t, string(def.Defaults), string(reparsed.Defaults))
}

func TestParse_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"empty", "", "empty"},
		{"no version", `{"id": "x", "tasks": {}}`, "missing required field: version"},
		{"bad version", `{"version": "2.0", "id": "x", "tasks": {}}`, "unsupported JCWF version"},
		{"no id", `{"version": "1.0", "tasks": {}}`, "missing required field: id"},
		{"no tasks", `{"version": "1.0", "id": "x"}`, "missing required field: tasks"},
		{"task without type", `{"version": "1.0", "id": "x", "tasks": {"a": {}}}`, "missing required field: type"},
		{"trigger without id", `{"version": "1.0", "id": "x", "tasks": {}, "triggers": [{"type": "auto"}]}`, "missing required field: id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestParser().Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_SynthesizesAutoTrigger(t *testing.T) {
	def, err := newTestParser().Parse([]byte(`{"version": "1.0", "id": "x", "tasks": {}}`))
	require.NoError(t, err)

	require.Len(t, def.Triggers, 1)
	assert.Equal(t, models.TriggerTypeAuto, def.Triggers[0].Type)
	assert.Equal(t, "auto", def.Triggers[0].ID)
	assert.True(t, def.Triggers[0].Enabled)
}

func TestParse_UnknownEnumsDegrade(t *testing.T) {
	doc := `{
	  "version": "1.0",
	  "id": "x",
	  "triggers": [{"type": "telepathy", "id": "t1"}],
	  "tasks": {"a": {"type": "fortran", "mode": "both"}}
	}`

	def, err := newTestParser().Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, models.TriggerTypeUnknown, def.Triggers[0].Type)
	assert.Equal(t, models.TaskKindInternal, def.Tasks["a"].Kind)
	assert.Equal(t, models.TaskModeSingle, def.Tasks["a"].Mode)
}

func TestParse_UnknownKeysAccepted(t *testing.T) {
	doc := `{
	  "version": "1.0",
	  "id": "x",
	  "future_field": {"nested": true},
	  "tasks": {"a": {"type": "internal", "color": "blue"}}
	}`

	def, err := newTestParser().Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, models.TaskKindInternal, def.Tasks["a"].Kind)
}
