package engine

import (
	"github.com/team-wildflyer/mapsync/internal/queue"
	"github.com/team-wildflyer/mapsync/internal/target"
)

// HandleLoad reports that the target finished loading its style.
//
// Everything on the target at this point is unmanaged and never touched.
// Feature states, backing layers and label visibility are then synced, and
// operations waiting for the load run in order.
func (e *Engine) HandleLoad() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.attached() || e.machine.Snapshot().Loaded {
		return
	}
	e.deriveUnmanaged()

	// Queued ahead of the transition so the flush runs them after anything
	// that was already waiting.
	e.queueFeatureStates()
	_ = e.queueSync(TriggerLoad)
	e.queueLabels()

	e.machine.Load()
}

// HandleIdle reports the first fully rendered frame. Interaction bindings
// wait for it.
func (e *Engine) HandleIdle() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.machine.Idle() {
		e.logger.Debug("idle ignored", "status", e.machine.Status())
	}
}

// HandleSourceData reports that source data changed (typically a source
// finished loading). Feature state is replayed.
func (e *Engine) HandleSourceData() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed() {
		return
	}
	e.queueFeatureStates()
}

// HandleStyleChange reports that a new style was applied. The style's own
// layers and sources become the unmanaged sets, and the declared state is
// synced onto it.
func (e *Engine) HandleStyleChange() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.attached() {
		return
	}
	e.resetForStyle()
	_ = e.queueSync(TriggerStyleChange)
	e.queueLabels()
}

// resetForStyle re-derives the unmanaged sets from the new style and drops
// what the swap took with it: bindings and the backing layer cache. Declared
// layers still on the target are adopted again by the next sync.
// Caller holds e.mu.
func (e *Engine) resetForStyle() {
	e.deriveUnmanaged()
	for id := range e.bindings {
		e.tearDownInteraction(id)
	}
	e.backing.Clear()
}

// HandleError reports a target error. Before the first idle it is an
// initialization failure and moves the status to Error; afterwards it is
// only logged.
func (e *Engine) HandleError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.machine.Fail(err) {
		e.logger.Warn("render target failed to initialize", "error", err)
		return
	}
	e.logger.Error("render target error", "error", err)
}

// SetStyle requests a style swap. The swap is debounced and waits for the
// target to be loaded; the embedder reports its completion through
// HandleStyleChange.
func (e *Engine) SetStyle(style string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed() || style == e.style {
		return
	}
	e.style = style
	e.styleTimer.Trigger(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.queue.Add("sync style", queue.Loaded(), e.applyStyle)
	})
}

// Style returns the requested style.
func (e *Engine) Style() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.style
}

// applyStyle pushes the requested style to the target. Caller holds e.mu.
func (e *Engine) applyStyle() {
	if !e.attached() || e.style == e.currentStyle {
		return
	}
	style := e.style
	p := e.beginPass(TriggerStyle, false)
	err := e.mutate(target.OpSetStyle, style, "", func() error {
		return e.target.SetStyle(style)
	})
	if err == nil {
		e.currentStyle = style
		e.resetForStyle()
	}
	e.endPass(p, nil)
}

// deriveUnmanaged captures the target's current layers and sources as not
// ours. Declared ids are always ours, even when they are already on the
// target. Caller holds e.mu.
func (e *Engine) deriveUnmanaged() {
	ownLayers := make(map[string]bool)
	ownSources := make(map[string]bool)
	for id := range e.layers.All() {
		ownLayers[id] = true
	}
	for id := range e.sources.All() {
		ownSources[id] = true
	}
	for id := range e.polygons.All() {
		ownSources[id] = true
		ownLayers[fillLayerID(id)] = true
		ownLayers[outlineLayerID(id)] = true
	}

	e.unmanagedLayers = make(map[string]bool)
	for _, id := range e.target.LayerIDs() {
		if !ownLayers[id] {
			e.unmanagedLayers[id] = true
		}
	}
	e.unmanagedSources = make(map[string]bool)
	for _, id := range e.target.SourceIDs() {
		if !ownSources[id] {
			e.unmanagedSources[id] = true
		}
	}
}
