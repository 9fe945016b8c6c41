package engine

import (
	"slices"

	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/queue"
	"github.com/team-wildflyer/mapsync/internal/target"
)

const pointerCursor = "pointer"

// AddLayerClickListener routes clicks on a backing layer to l. Only layers
// with a listener are bound, so other layers never get a pointer cursor.
// Binding waits until the target is idle and the layer exists.
func (e *Engine) AddLayerClickListener(layerID string, l ClickListener) Disposer {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed() {
		return noopDisposer
	}
	e.tearDownInteraction(layerID)
	e.clickListeners[layerID] = l
	e.setUpInteraction(layerID)

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.tearDownInteraction(layerID)
		delete(e.clickListeners, layerID)
	}
}

// AddPolygonClickListener routes clicks on a polygon's fill layer to l.
func (e *Engine) AddPolygonClickListener(polygonID string, l ClickListener) Disposer {
	return e.AddLayerClickListener(fillLayerID(polygonID), l)
}

// setUpInteraction binds click and hover handlers once the target is idle.
// Layers without a click listener stay unbound. Caller holds e.mu.
func (e *Engine) setUpInteraction(layerID string) {
	if _, ok := e.clickListeners[layerID]; !ok {
		return
	}
	e.queue.Add("bind interaction "+layerID, queue.Idle(), func() {
		e.bindInteraction(layerID)
	})
}

// bindInteraction replaces the layer's bindings. Caller holds e.mu.
func (e *Engine) bindInteraction(layerID string) {
	if !e.attached() {
		return
	}
	e.tearDownInteraction(layerID)

	if _, ok := e.clickListeners[layerID]; !ok {
		return
	}
	if !e.target.HasLayer(layerID) {
		return
	}
	e.logger.Debug("binding layer interaction", "layer", layerID)
	e.bindings[layerID] = []target.Subscription{
		e.target.Subscribe(target.EventClick, layerID, e.onClick),
		e.target.Subscribe(target.EventMouseEnter, layerID, e.onEnter),
		e.target.Subscribe(target.EventMouseLeave, layerID, e.onLeave),
	}
}

// tearDownInteraction drops the layer's bindings. Caller holds e.mu.
func (e *Engine) tearDownInteraction(layerID string) {
	for _, sub := range e.bindings[layerID] {
		sub.Unsubscribe()
	}
	delete(e.bindings, layerID)
}

// Bound reports whether a layer currently has interaction handlers.
func (e *Engine) Bound(layerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.bindings[layerID]) > 0
}

func clickKey(f ir.Feature) string {
	return f.LayerID + "::" + f.ID
}

// onClick picks the feature for this click and calls the listener outside
// the lock. Repeated clicks over the same overlapping candidates cycle
// through them; a click elsewhere starts over at the first.
func (e *Engine) onClick(ev target.Event) {
	if len(ev.Features) == 0 {
		return
	}

	e.mu.Lock()
	layerID := ev.Features[0].LayerID
	if layerID == "" {
		layerID = ev.LayerID
	}
	listener := e.clickListeners[layerID]

	chosen := ev.Features[0]
	if len(ev.Features) < 2 {
		e.prevClickKey = ""
	} else {
		keys := make([]string, len(ev.Features))
		for i, f := range ev.Features {
			keys[i] = clickKey(f)
		}
		prev := -1
		if e.prevClickKey != "" {
			prev = slices.Index(keys, e.prevClickKey)
		}
		next := (prev + 1) % len(keys)
		chosen = ev.Features[next]
		e.prevClickKey = keys[next]
	}
	e.mu.Unlock()

	if listener != nil {
		listener(ev, chosen)
	}
}

// onEnter marks the hovered feature and shows the pointer cursor.
func (e *Engine) onEnter(ev target.Event) {
	if len(ev.Features) == 0 {
		return
	}
	id, ok := ev.Features[0].Identifier()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.attached() {
		return
	}
	if e.lastHover != nil && *e.lastHover != id {
		e.setFeatureState(*e.lastHover, ir.FeatureState{"hover": false})
	}
	e.target.SetCursor(pointerCursor)
	e.setFeatureState(id, ir.FeatureState{"hover": true})
	e.lastHover = &id
}

// onLeave clears hover state and the cursor.
func (e *Engine) onLeave(target.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.attached() || e.lastHover == nil {
		return
	}
	e.setFeatureState(*e.lastHover, ir.FeatureState{"hover": false})
	e.target.SetCursor("")
	e.lastHover = nil
}
