package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/target"
)

func feature(id string) ir.Feature {
	return ir.Feature{ID: id, LayerID: "parcels-fill", Source: "parcels", SourceLayer: "p"}
}

// clickFixture has one bound layer and records the features clicked.
func clickFixture(t *testing.T) (*fixture, *[]string) {
	t.Helper()
	f := newFixture(t, nil)
	f.ready()

	var clicked []string
	f.eng.EnsureSource("parcels", "u", vectorSource())
	f.eng.EnsureLayer("parcels", fill("parcels-fill", "parcels"), LayerOptions{})
	f.eng.AddLayerClickListener("parcels-fill", func(_ target.Event, feat ir.Feature) {
		clicked = append(clicked, feat.ID)
	})
	f.settle()
	require.True(t, f.eng.Bound("parcels-fill"))
	return f, &clicked
}

func TestInteraction_ClickCyclesOverlappingFeatures(t *testing.T) {
	f, clicked := clickFixture(t)
	stack := []ir.Feature{feature("1"), feature("2"), feature("3")}

	for range 4 {
		f.target.Click("parcels-fill", stack...)
	}
	assert.Equal(t, []string{"1", "2", "3", "1"}, *clicked)
}

func TestInteraction_SingleFeatureClickResetsCycle(t *testing.T) {
	f, clicked := clickFixture(t)
	stack := []ir.Feature{feature("1"), feature("2"), feature("3")}

	f.target.Click("parcels-fill", stack...)
	f.target.Click("parcels-fill", stack...)
	f.target.Click("parcels-fill", feature("9"))
	f.target.Click("parcels-fill", stack...)

	assert.Equal(t, []string{"1", "2", "9", "1"}, *clicked)
}

func TestInteraction_HoverTracksFeatureState(t *testing.T) {
	f, _ := clickFixture(t)
	one, two := feature("1"), feature("2")
	id1, _ := one.Identifier()
	id2, _ := two.Identifier()

	f.target.Enter("parcels-fill", one)
	assert.Equal(t, "pointer", f.target.Cursor())
	assert.Equal(t, ir.FeatureState{"hover": true}, f.target.FeatureState(id1))

	f.target.Enter("parcels-fill", two)
	assert.Equal(t, ir.FeatureState{"hover": false}, f.target.FeatureState(id1))
	assert.Equal(t, ir.FeatureState{"hover": true}, f.target.FeatureState(id2))

	f.target.Leave("parcels-fill")
	assert.Equal(t, "", f.target.Cursor())
	assert.Equal(t, ir.FeatureState{"hover": false}, f.target.FeatureState(id2))
	assert.Equal(t, ir.FeatureState{"hover": false}, f.eng.FeatureState(id2))
}

func TestInteraction_LayersWithoutListenerAreNotBound(t *testing.T) {
	f := newFixture(t, nil)
	f.ready()

	f.eng.EnsureSource("s", "u", vectorSource())
	f.eng.EnsureLayer("s", fill("plain", "s"), LayerOptions{})
	f.settle()

	assert.False(t, f.eng.Bound("plain"))
	assert.Equal(t, 0, f.target.Subscriptions("plain"))
	assert.Equal(t, 0, f.target.Enter("plain", ir.Feature{ID: "1", Source: "s"}))
	assert.Equal(t, "", f.target.Cursor())
}

func TestInteraction_LayerWithoutListenerQueuesNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.eng.HandleLoad()

	f.eng.EnsureSource("s", "u", vectorSource())
	f.eng.EnsureLayer("s", fill("plain", "s"), LayerOptions{})
	f.settle()

	require.True(t, f.target.HasLayer("plain"))
	assert.Empty(t, f.eng.PendingOperations())
}

func TestInteraction_BindingWaitsForIdle(t *testing.T) {
	f := newFixture(t, nil)
	f.eng.HandleLoad()

	f.eng.EnsureSource("s", "u", vectorSource())
	f.eng.EnsureLayer("s", fill("a", "s"), LayerOptions{})
	f.eng.AddLayerClickListener("a", func(target.Event, ir.Feature) {})
	f.settle()
	require.True(t, f.target.HasLayer("a"))
	assert.False(t, f.eng.Bound("a"))

	f.eng.HandleIdle()
	assert.True(t, f.eng.Bound("a"))
	assert.Equal(t, 3, f.target.Subscriptions("a"))
}

func TestInteraction_RemovedLayerIsUnbound(t *testing.T) {
	f, _ := clickFixture(t)

	f.eng.RemoveLayer("parcels-fill")
	f.settle()

	assert.False(t, f.eng.Bound("parcels-fill"))
	assert.Equal(t, 0, f.target.Subscriptions("parcels-fill"))
}

func TestInteraction_DisposeListener(t *testing.T) {
	f := newFixture(t, nil)
	f.ready()

	f.eng.EnsureSource("s", "u", vectorSource())
	f.eng.EnsureLayer("s", fill("a", "s"), LayerOptions{})
	dispose := f.eng.AddLayerClickListener("a", func(target.Event, ir.Feature) {})
	f.settle()
	require.True(t, f.eng.Bound("a"))

	dispose()
	assert.False(t, f.eng.Bound("a"))
	assert.Equal(t, 0, f.target.Click("a", ir.Feature{ID: "1"}))
}
