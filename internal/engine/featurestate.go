package engine

import (
	"maps"

	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/queue"
	"github.com/team-wildflyer/mapsync/internal/target"
)

// directive is the desired state overlay of one feature.
//
// The target drops feature state whenever a source is removed, so the engine
// keeps its own copy and replays it when sources load.
type directive struct {
	feature ir.FeatureID
	state   ir.FeatureState
}

// SetFeatureState merges state into the feature's desired state and applies
// it once the target is loaded and the feature's source has loaded.
func (e *Engine) SetFeatureState(f ir.FeatureID, state ir.FeatureState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setFeatureState(f, state)
}

// UpdateFeatureState replaces the feature's desired state with
// fn(previous). previous is nil for a feature with no desired state yet.
func (e *Engine) UpdateFeatureState(f ir.FeatureID, fn func(prev ir.FeatureState) ir.FeatureState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := f.Key()
	var prev ir.FeatureState
	if d, ok := e.directives.Get(key); ok {
		prev = maps.Clone(d.state)
	}
	e.directives.Set(key, &directive{feature: f, state: fn(prev)})
	e.queueFeatureStates()
}

// FeatureState returns the desired state of a feature.
func (e *Engine) FeatureState(f ir.FeatureID) ir.FeatureState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.directives.Get(f.Key()); ok {
		return maps.Clone(d.state)
	}
	return nil
}

// setFeatureState is SetFeatureState with e.mu held.
func (e *Engine) setFeatureState(f ir.FeatureID, state ir.FeatureState) {
	if e.disposed() {
		return
	}
	key := f.Key()
	if d, ok := e.directives.Get(key); ok {
		d.state = d.state.Merge(state)
	} else {
		e.directives.Set(key, &directive{feature: f, state: maps.Clone(state)})
	}
	e.queueFeatureStates()
}

// queueFeatureStates replays directives once the target is loaded. At most
// one replay waits in the queue. Caller holds e.mu.
func (e *Engine) queueFeatureStates() {
	if e.fsQueued {
		return
	}
	ran := e.queue.Add("sync feature states", queue.Loaded(), func() {
		e.fsQueued = false
		e.applyFeatureStates()
	})
	if !ran {
		e.fsQueued = true
	}
}

// applyFeatureStates writes every directive whose source is loaded and
// whose state differs from what the target reports. If anything changed,
// backing layers are repainted. Caller holds e.mu.
func (e *Engine) applyFeatureStates() {
	if !e.attached() {
		return
	}

	p := e.beginPass(TriggerFeatureState, false)
	modified := false
	for _, d := range e.directives.All() {
		src, ok := e.target.Source(d.feature.Source)
		if !ok || !src.Loaded() {
			continue
		}
		if e.target.FeatureState(d.feature).Equal(d.state) {
			continue
		}
		f, state := d.feature, maps.Clone(d.state)
		err := e.mutate(target.OpSetFeatureState, f.Key(), "", func() error {
			return e.target.SetFeatureState(f, state)
		})
		if err == nil {
			modified = true
		}
	}
	if modified {
		e.forceRepaint()
	}
	e.endPass(p, nil)
}

// forceRepaint toggles every backing layer off and back to its declared
// visibility, so feature-state dependent paint is re-evaluated.
// Caller holds e.mu.
func (e *Engine) forceRepaint() {
	for id, layer := range e.backing.All() {
		if !e.target.HasLayer(id) {
			continue
		}
		declared := layer.Visibility()
		_ = e.mutate(target.OpSetLayout, id, "", func() error {
			return e.target.SetLayoutProperty(id, "visibility", "none")
		})
		_ = e.mutate(target.OpSetLayout, id, "", func() error {
			return e.target.SetLayoutProperty(id, "visibility", declared)
		})
	}
}
