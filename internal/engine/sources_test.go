package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/target"
)

func TestEnsureSource_SameURLIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	f.ready()

	f.eng.EnsureSource("s", "u1", vectorSource())
	f.settle()
	f.target.ResetCalls()

	f.eng.EnsureSource("s", "u1", vectorSource())
	f.settle()
	assert.Empty(t, f.target.Calls())
}

func TestEnsureSource_PatchesTilesInPlace(t *testing.T) {
	f := newFixture(t, nil)
	f.ready()

	f.eng.EnsureSource("s", "u1", vectorSource())
	f.eng.EnsureLayer("s", fill("a", "s"), LayerOptions{})
	f.eng.EnsureLayer("s", fill("b", "s"), LayerOptions{})
	f.settle()
	f.target.ResetCalls()

	f.eng.EnsureSource("s", "u2", vectorSource())
	f.settle()

	assert.Equal(t, []string{"set_tiles s u2"}, f.calls())
	spec, ok := f.target.SourceSpec("s")
	require.True(t, ok)
	assert.Equal(t, []string{"u2"}, spec.Tiles)
	assert.Len(t, f.rec.PassesWithTrigger(TriggerPatchTiles), 1)
}

func TestEnsureSource_ReloadsWhenTilesCannotBePatched(t *testing.T) {
	f := newFixture(t, []target.MemoryOption{
		target.WithBaseLayers(baseLayers...),
		target.WithTilePatching(),
	})
	f.ready()

	f.eng.EnsureSource("s", "u1", vectorSource())
	f.eng.EnsureLayer("s", fill("a", "s"), LayerOptions{})
	f.eng.EnsureLayer("s", fill("b", "s"), LayerOptions{})
	f.settle()
	f.target.ResetCalls()

	f.eng.EnsureSource("s", "u2", vectorSource())
	f.settle()

	assert.Equal(t, []string{
		"remove_layer a",
		"remove_layer b",
		"remove_source s",
		"add_source s u2",
		"add_layer a",
		"add_layer b",
	}, f.calls())
	assert.Equal(t, append(append([]string{}, baseLayers...), "a", "b"), f.target.LayerIDs())
}

func TestEnsureSource_ReloadBeforeLoadIsQueued(t *testing.T) {
	f := newFixture(t, nil)

	f.eng.EnsureSource("s", "u1", vectorSource())
	f.eng.EnsureSource("s", "u2", vectorSource())
	f.settle()
	assert.Empty(t, f.target.Calls())

	f.eng.HandleLoad()
	spec, ok := f.target.SourceSpec("s")
	require.True(t, ok)
	assert.Equal(t, []string{"u2"}, spec.Tiles)
}

func TestReloadSource(t *testing.T) {
	f := newFixture(t, nil)
	f.ready()

	f.eng.EnsureSource("s", "u1", vectorSource())
	f.settle()
	f.target.ResetCalls()

	f.eng.ReloadSource("s")
	f.eng.ReloadSource("unknown")

	assert.Equal(t, []string{"set_tiles s u1"}, f.calls())
	assert.Len(t, f.rec.PassesWithTrigger(TriggerReload), 1)
}

func TestRemoveSource_WaitsForDependentLayers(t *testing.T) {
	f := newFixture(t, nil)
	f.ready()

	f.eng.EnsureSource("s", "u", vectorSource())
	f.eng.EnsureLayer("s", fill("a", "s"), LayerOptions{})
	f.settle()

	// The layer is still declared, so the target refuses the removal.
	f.eng.RemoveSource("s")
	f.settle()
	assert.True(t, f.target.HasLayer("a"))
	assert.Equal(t, []string{"s"}, f.target.SourceIDs())
	require.Error(t, f.eng.LastMutationErrors())

	f.eng.RemoveLayer("a")
	f.settle()
	assert.Empty(t, f.target.SourceIDs())
	assert.NoError(t, f.eng.LastMutationErrors())
}

func TestUpdateLayerPaint(t *testing.T) {
	f := newFixture(t, []target.MemoryOption{
		target.WithBaseLayers(baseLayers...),
		target.WithTilePatching(),
	})
	f.ready()

	f.eng.EnsureSource("s", "u", vectorSource())
	f.eng.EnsureLayer("s", ir.Layer{
		ID: "a", Type: "fill", Source: "s",
		Paint: map[string]any{"fill-color": "#000"},
	}, LayerOptions{})
	f.settle()
	f.target.ResetCalls()

	f.eng.UpdateLayerPaint("a", map[string]any{"fill-opacity": 0.5, "fill-color": "#fff"})

	assert.Equal(t, []string{
		`set_paint a fill-color="#fff"`,
		"set_paint a fill-opacity=0.5",
	}, f.calls())

	// A reload re-adds the layer from its declaration, which keeps the new paint.
	f.eng.ReloadSource("s")
	f.settle()
	layer, ok := f.target.Layer("a")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"fill-color": "#fff", "fill-opacity": 0.5}, layer.Paint)
}

func TestUpdateLayerPaint_AbsentLayerIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	f.ready()

	f.eng.UpdateLayerPaint("ghost", map[string]any{"fill-color": "#fff"})
	assert.Empty(t, f.target.Calls())
	assert.Empty(t, f.rec.PassesWithTrigger(TriggerPaint))
}
