package scene

import (
	"fmt"
	"slices"

	"github.com/team-wildflyer/mapsync/internal/engine"
	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/target"
)

// DefaultParent owns scene layers that name no parent.
const DefaultParent = "scene"

// Apply registers everything the scene declares with e: groups first, then
// sources, layers, polygons and feature states, then label visibility and
// the style. The returned disposer unregisters the scene in reverse order.
// On error the registrations made so far are undone.
func Apply(e *engine.Engine, s *Scene) (engine.Disposer, error) {
	var disposers []engine.Disposer
	dispose := func() {
		for _, d := range slices.Backward(disposers) {
			d()
		}
	}

	for _, g := range s.Groups {
		d, err := e.RegisterGroup(g.Name, g.Ordering)
		if err != nil {
			dispose()
			return nil, fmt.Errorf("register group %s: %w", g.Name, err)
		}
		disposers = append(disposers, d)
	}

	for _, src := range s.Sources {
		disposers = append(disposers, e.EnsureSource(src.ID, src.URL, src.Spec))
	}

	for _, l := range s.Layers {
		parent := l.Parent
		if parent == "" {
			parent = DefaultParent
		}
		disposers = append(disposers, e.EnsureLayer(parent, l.Layer, engine.LayerOptions{Group: l.Group}))
	}

	for _, p := range s.Polygons {
		d, err := e.AddPolygon(p.ID, p.Polygon, engine.LayerOptions{Group: p.Group})
		if err != nil {
			dispose()
			return nil, fmt.Errorf("add polygon %s: %w", p.ID, err)
		}
		disposers = append(disposers, d)
	}

	for _, fs := range s.FeatureStates {
		e.SetFeatureState(fs.Feature, fs.State)
	}

	if s.Labels != nil {
		e.SetLabelsVisible(*s.Labels)
	}
	if s.Style != "" {
		e.SetStyle(s.Style)
	}
	return dispose, nil
}

// BaseStyle describes the scene's base style as a Memory target style: its
// base layers, plain and unowned.
func (s *Scene) BaseStyle() target.Style {
	layers := make([]ir.Layer, len(s.Base))
	for i, id := range s.Base {
		layers[i] = ir.Layer{ID: id, Type: "background"}
	}
	return target.Style{Name: s.Style, Layers: layers}
}

// NewTarget builds an in-memory target loaded with the scene's base style,
// for planning and tests.
func NewTarget(s *Scene, opts ...target.MemoryOption) *target.Memory {
	return target.NewMemory(append([]target.MemoryOption{target.WithStyles(s.BaseStyle())}, opts...)...)
}
