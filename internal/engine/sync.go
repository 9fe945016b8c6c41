package engine

import (
	"fmt"

	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/queue"
	"github.com/team-wildflyer/mapsync/internal/target"
)

// Sync runs a pass now, cancelling the pending debounced one, and returns
// the configuration error that aborted it, if any.
//
// If the target has not loaded yet the pass is queued and Sync returns nil.
func (e *Engine) Sync() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed() {
		return nil
	}
	e.syncTimer.Stop()
	return e.queueSync(TriggerManual)
}

// requestSync (re)starts the debounce window. Caller holds e.mu.
func (e *Engine) requestSync() {
	if e.disposed() {
		return
	}
	e.syncTimer.Trigger(e.fireSync)
}

func (e *Engine) fireSync() {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.queueSync(TriggerDebounce)
}

// queueSync runs a pass once the target is loaded. At most one sync waits in
// the queue; it reads the desired state as of when it runs. Caller holds
// e.mu.
func (e *Engine) queueSync(trigger string) error {
	if e.syncQueued {
		return nil
	}
	var err error
	ran := e.queue.Add("sync backing layers", queue.Loaded(), func() {
		e.syncQueued = false
		err = e.runSync(trigger)
	})
	if !ran {
		e.syncQueued = true
	}
	return err
}

// runSync performs one reconciliation pass. Caller holds e.mu.
func (e *Engine) runSync(trigger string) error {
	if !e.attached() {
		return nil
	}
	p := e.beginPass(trigger, true)
	err := e.reconcile()
	if err != nil {
		e.logger.Error("sync pass aborted",
			"pass", p.rec.Token,
			"error", err,
		)
	}
	e.lastSyncErr = err
	e.lastMutations = passErrors(p)
	e.endPass(p, err)
	return err
}

// reconcile diffs desired state against the target and applies the
// difference. Only configuration errors are returned. Caller holds e.mu.
func (e *Engine) reconcile() error {
	remainingSources := newIDSet(e.target.SourceIDs(), e.unmanagedSources)
	remainingLayers := newIDSet(e.target.LayerIDs(), e.unmanagedLayers)

	for id, src := range e.sources.All() {
		if remainingSources.Delete(id) {
			continue
		}
		spec := src.spec.WithTiles(src.url)
		_ = e.mutate(target.OpAddSource, id, "", func() error {
			return e.target.AddSource(id, spec)
		})
	}

	for id, entry := range e.layers.All() {
		if remainingLayers.Delete(id) {
			e.adopt(entry.layer)
			continue
		}
		if err := e.ordering.Add(entry.layer, entry.options.Group); err != nil {
			return fmt.Errorf("add layer %q: %w", id, err)
		}
		e.backing.Set(id, entry.layer)
		e.setUpInteraction(id)
	}

	for id, poly := range e.polygons.All() {
		if remainingSources.Delete(id) {
			if poly.changed() {
				e.patchPolygonSource(id, poly)
			}
			continue
		}
		spec := poly.source()
		_ = e.mutate(target.OpAddSource, id, "", func() error {
			return e.target.AddSource(id, spec)
		})
	}

	for id, poly := range e.polygons.All() {
		added := false
		for _, layer := range poly.layers(id) {
			if remainingLayers.Delete(layer.ID) {
				e.adopt(layer)
				if poly.changed() {
					e.patchPolygonLayer(poly, layer)
				}
				continue
			}
			if err := e.ordering.Add(layer, poly.options.Group); err != nil {
				return fmt.Errorf("add polygon %q: %w", id, err)
			}
			e.backing.Set(layer.ID, layer)
			added = true
		}
		if added {
			e.setUpInteraction(fillLayerID(id))
		}
		poly.markApplied()
	}

	// Layers go before sources: a source still in use cannot be removed.
	for _, id := range remainingLayers.Keys() {
		e.tearDownInteraction(id)
		_ = e.ordering.Remove(id)
		e.backing.Delete(id)
	}
	for _, id := range remainingSources.Keys() {
		_ = e.mutate(target.OpRemoveSource, id, "", func() error {
			return e.target.RemoveSource(id)
		})
	}
	return nil
}

// adopt tracks a declared layer found already on the target, as after a
// style change that kept it. Caller holds e.mu.
func (e *Engine) adopt(layer ir.Layer) {
	if e.backing.Has(layer.ID) {
		return
	}
	e.backing.Set(layer.ID, layer)
	e.setUpInteraction(layer.ID)
}
