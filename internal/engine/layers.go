package engine

import (
	"maps"
	"slices"
	"strings"

	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/ordering"
	"github.com/team-wildflyer/mapsync/internal/queue"
	"github.com/team-wildflyer/mapsync/internal/target"
)

// labelSuffix marks base style layers toggled by SetLabelsVisible.
const labelSuffix = " labels"

// EnsureLayer declares a backing layer owned by parent. Declaring an id
// that is already declared is a no-op and returns a no-op disposer.
func (e *Engine) EnsureLayer(parent string, layer ir.Layer, opts LayerOptions) Disposer {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed() || e.layers.Has(layer.ID) {
		return noopDisposer
	}
	e.layers.Set(layer.ID, layerEntry{parent: parent, layer: layer, options: opts})
	e.requestSync()

	return func() { e.RemoveLayer(layer.ID) }
}

// RemoveLayer forgets a declared layer; the next sync removes it from the
// target. Unknown ids are a no-op and never reach the target.
func (e *Engine) RemoveLayer(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.layers.Delete(id) {
		return
	}
	e.forgetUnplaced(id)
	e.requestSync()
}

// forgetUnplaced drops an undeclared layer that never reached the target
// from its ordering group. Layers on the target are removed, and forgotten,
// by the next pass. Caller holds e.mu.
func (e *Engine) forgetUnplaced(id string) {
	if e.target.HasLayer(id) {
		return
	}
	e.ordering.Forget(id)
	e.backing.Delete(id)
	e.tearDownInteraction(id)
}

// DeclaredLayers returns the ids of declared layers in declaration order.
func (e *Engine) DeclaredLayers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layers.Keys()
}

// UpdateLayerPaint sets paint properties on a layer that is on the target.
// For declared layers the declaration is updated too, so a re-added layer
// keeps the new paint.
func (e *Engine) UpdateLayerPaint(layerID string, paint map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.layers.Get(layerID); ok {
		entry.layer.Paint = maps.Clone(entry.layer.Paint)
		if entry.layer.Paint == nil {
			entry.layer.Paint = make(map[string]any, len(paint))
		}
		maps.Copy(entry.layer.Paint, paint)
		e.layers.Set(layerID, entry)
	}

	if !e.attached() || !e.target.HasLayer(layerID) {
		return
	}
	p := e.beginPass(TriggerPaint, false)
	for _, name := range slices.Sorted(maps.Keys(paint)) {
		value := paint[name]
		_ = e.mutate(target.OpSetPaint, layerID, "", func() error {
			return e.target.SetPaintProperty(layerID, name, value)
		})
	}
	e.endPass(p, nil)
}

// RegisterGroup declares a layer group (or re-positions an existing one,
// keeping its members) and schedules a sync. The disposer unregisters it.
func (e *Engine) RegisterGroup(name string, o ir.Ordering) (Disposer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ordering.RegisterGroup(name, o); err != nil {
		return noopDisposer, err
	}
	e.requestSync()
	return func() { e.UnregisterGroup(name) }, nil
}

// UnregisterGroup forgets a group and schedules a sync. Its layers stay
// where they are.
func (e *Engine) UnregisterGroup(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ordering.UnregisterGroup(name) {
		e.requestSync()
	}
}

// Groups returns the registered group names, sorted.
func (e *Engine) Groups() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ordering.GroupNames()
}

// GroupBounds resolves the current index range of a group on the target.
func (e *Engine) GroupBounds(name string) (ordering.Bounds, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ordering.Bounds(name)
}

// SetLabelsVisible shows or hides every target layer whose id ends in
// " labels". Applied once the target is loaded and again after style
// changes.
func (e *Engine) SetLabelsVisible(visible bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.labelsVisible = visible
	e.queueLabels()
}

// LabelsVisible reports the requested label visibility.
func (e *Engine) LabelsVisible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.labelsVisible
}

// queueLabels applies label visibility once the target is loaded. At most
// one label sync waits in the queue. Caller holds e.mu.
func (e *Engine) queueLabels() {
	if e.labelsQueued {
		return
	}
	ran := e.queue.Add("sync label visibility", queue.Loaded(), func() {
		e.labelsQueued = false
		e.applyLabels()
	})
	if !ran {
		e.labelsQueued = true
	}
}

// applyLabels sets the visibility of every label layer on the target.
// Caller holds e.mu.
func (e *Engine) applyLabels() {
	if !e.attached() {
		return
	}
	want := visibility(e.labelsVisible)

	p := e.beginPass(TriggerLabels, false)
	for _, id := range e.target.LayerIDs() {
		if !strings.HasSuffix(id, labelSuffix) {
			continue
		}
		_ = e.mutate(target.OpSetLayout, id, "", func() error {
			return e.target.SetLayoutProperty(id, "visibility", want)
		})
	}
	e.endPass(p, nil)
}

func visibility(visible bool) string {
	if visible {
		return "visible"
	}
	return "none"
}
