package freshness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/weft/pkg/models"
)

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func buildDefinition() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		Version: "1.0",
		ID:      "build",
		Tasks: map[string]*models.TaskDef{
			"compile": {
				ID:          "compile",
				Kind:        models.TaskKindShell,
				FileInputs:  []string{"a.c"},
				FileOutputs: []string{"a.o"},
			},
			"link": {
				ID:          "link",
				Kind:        models.TaskKindShell,
				DependsOn:   []string{"compile"},
				FileInputs:  []string{"a.o"},
				FileOutputs: []string{"app"},
			},
		},
	}
}

func staticResolver(outputs map[string][]string) ResolveOutputPathsFn {
	return func(taskID string) ([]string, bool) {
		paths, ok := outputs[taskID]
		return paths, ok
	}
}

func TestIsTaskUpToDate_NoOutputs(t *testing.T) {
	checker := NewChecker()

	upToDate := checker.IsTaskUpToDate(buildDefinition(), "compile", ResolvedPaths{}, staticResolver(nil))
	assert.False(t, upToDate)
}

func TestIsTaskUpToDate_MissingInput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "a.o")
	touch(t, output, time.Now())

	paths := ResolvedPaths{
		InputPaths:  []string{filepath.Join(dir, "a.c")},
		OutputPaths: []string{output},
	}

	assert.False(t, NewChecker().IsTaskUpToDate(buildDefinition(), "compile", paths, staticResolver(nil)))
}

func TestIsTaskUpToDate_MissingOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.c")
	touch(t, input, time.Now())

	paths := ResolvedPaths{
		InputPaths:  []string{input},
		OutputPaths: []string{filepath.Join(dir, "a.o")},
	}

	assert.False(t, NewChecker().IsTaskUpToDate(buildDefinition(), "compile", paths, staticResolver(nil)))
}

func TestIsTaskUpToDate_FreshOutputs(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	input := filepath.Join(dir, "a.c")
	output := filepath.Join(dir, "a.o")
	touch(t, input, base)
	touch(t, output, base.Add(time.Minute))

	paths := ResolvedPaths{InputPaths: []string{input}, OutputPaths: []string{output}}

	assert.True(t, NewChecker().IsTaskUpToDate(buildDefinition(), "compile", paths, staticResolver(nil)))
}

func TestIsTaskUpToDate_StaleOutput(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	input := filepath.Join(dir, "a.c")
	output := filepath.Join(dir, "a.o")
	touch(t, input, base.Add(time.Minute))
	touch(t, output, base)

	paths := ResolvedPaths{InputPaths: []string{input}, OutputPaths: []string{output}}

	assert.False(t, NewChecker().IsTaskUpToDate(buildDefinition(), "compile", paths, staticResolver(nil)))
}

func TestIsTaskUpToDate_EqualTimestampsAreFresh(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	input := filepath.Join(dir, "a.c")
	output := filepath.Join(dir, "a.o")
	touch(t, input, base)
	touch(t, output, base)

	paths := ResolvedPaths{InputPaths: []string{input}, OutputPaths: []string{output}}

	assert.True(t, NewChecker().IsTaskUpToDate(buildDefinition(), "compile", paths, staticResolver(nil)))
}

func TestIsTaskUpToDate_TransitiveUpstream(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	source := filepath.Join(dir, "a.c")
	object := filepath.Join(dir, "a.o")
	app := filepath.Join(dir, "app")

	touch(t, source, base)
	touch(t, object, base.Add(time.Minute))
	touch(t, app, base.Add(2*time.Minute))

	resolver := staticResolver(map[string][]string{
		"compile": {object},
		"link":    {app},
	})

	paths := ResolvedPaths{InputPaths: []string{object}, OutputPaths: []string{app}}

	assert.True(t, NewChecker().IsTaskUpToDate(buildDefinition(), "link", paths, resolver))

	// A rebuilt upstream output newer than the link result forces a rerun.
	touch(t, object, base.Add(3*time.Minute))
	assert.False(t, NewChecker().IsTaskUpToDate(buildDefinition(), "link", paths, resolver))
}

func TestIsTaskUpToDate_UnresolvableUpstream(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	object := filepath.Join(dir, "a.o")
	app := filepath.Join(dir, "app")
	touch(t, object, base)
	touch(t, app, base.Add(time.Minute))

	paths := ResolvedPaths{InputPaths: []string{object}, OutputPaths: []string{app}}

	// Upstream output paths that cannot be resolved fail conservatively.
	resolver := staticResolver(map[string][]string{"link": {app}})

	assert.False(t, NewChecker().IsTaskUpToDate(buildDefinition(), "link", paths, resolver))
}

func TestIsTaskUpToDate_NoInputsNoUpstream(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "a.o")
	touch(t, output, time.Now())

	def := buildDefinition()
	def.Tasks["compile"].FileInputs = nil

	paths := ResolvedPaths{OutputPaths: []string{output}}

	assert.False(t, NewChecker().IsTaskUpToDate(def, "compile", paths, staticResolver(nil)))
}
