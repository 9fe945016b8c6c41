package harness

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFindScenarios(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "cycle.yaml"),
		filepath.Join("testdata", "scenarios", "group_order.yaml"),
		filepath.Join("testdata", "scenarios", "scene_apply.yaml"),
	}, files)

	files, err = FindScenarios("testdata/scenarios/cycle.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"testdata/scenarios/cycle.yaml"}, files)
}

func TestFindScenarios_Missing(t *testing.T) {
	_, err := FindScenarios("testdata/nowhere")
	require.Error(t, err)

	var nf *ScenarioNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "testdata/nowhere", nf.Path)
}

func TestRunSuite_Testdata(t *testing.T) {
	result, err := RunSuite("testdata/scenarios", quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Passed, "failures: %+v", result.Failures)
	assert.Zero(t, result.Failed)
}

func TestRunSuite_CountsFailures(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	write("a_broken.yaml", "name: [unclosed")
	write("b_failing.yml", `
name: failing
description: "expects a layer that never appears"
steps:
  - do: load
assertions:
  - type: layer_order
    layers: [ghost]
`)
	write("c_passing.yaml", `
name: passing
description: "empty target stays empty"
steps:
  - do: load
assertions:
  - type: layer_order
    layers: []
`)
	write("notes.txt", "ignored")

	result, err := RunSuite(dir, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Failures, 2)
	assert.Contains(t, result.Failures[0].Errors[0], "failed to load scenario")
	assert.Equal(t, "failing", result.Failures[1].Scenario)
}
