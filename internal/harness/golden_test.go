package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_CanonicalJSON(t *testing.T) {
	r := NewResult()
	r.Trace = []TraceEvent{{Step: 1, Call: "add_layer a before=<top>"}}
	r.Layers = []string{"a"}

	data, err := Snapshot("snap", r)
	require.NoError(t, err)

	// Keys sorted, no whitespace, no HTML escaping.
	assert.Equal(t,
		`{"layers":["a"],"scenario_name":"snap","trace":[{"call":"add_layer a before=<top>","step":1}]}`,
		string(data),
	)
}

func TestSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/group_order.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestAssertGolden_Cycle(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/cycle.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, scenario.Name, result))
}
