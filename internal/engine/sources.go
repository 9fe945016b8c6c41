package engine

import (
	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/queue"
	"github.com/team-wildflyer/mapsync/internal/target"
)

// EnsureSource declares a tile source served from url.
//
// An unchanged url is a no-op. The first declaration schedules a sync. A
// changed url is patched in place when the target source supports it;
// otherwise the source is reloaded: its dependent layers and the source are
// removed and the next sync adds everything back.
func (e *Engine) EnsureSource(id, url string, spec ir.SourceSpec) Disposer {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed() {
		return noopDisposer
	}
	dispose := func() { e.RemoveSource(id) }

	prev, had := e.sources.Get(id)
	if had && prev.url == url {
		return dispose
	}
	e.sources.Set(id, sourceEntry{url: url, spec: spec})

	if !had {
		e.requestSync()
		return dispose
	}

	if src, ok := e.targetSource(id); ok {
		if tp, ok := src.(target.TilePatcher); ok {
			p := e.beginPass(TriggerPatchTiles, false)
			_ = e.mutate(target.OpSetTiles, id, "", func() error {
				return tp.SetTiles([]string{url})
			})
			e.endPass(p, nil)
			return dispose
		}
	}
	e.queueReload(id)
	return dispose
}

// RemoveSource forgets a declared source. The next sync removes it from the
// target once no declared layer uses it. Unknown ids are a no-op.
func (e *Engine) RemoveSource(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.sources.Delete(id) {
		return
	}
	e.requestSync()
}

// ReloadSource re-fetches a declared source. Sources that support tile
// patching get their tiles reset; others are removed together with their
// dependent layers and re-added by the next sync.
func (e *Engine) ReloadSource(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed() || !e.sources.Has(id) {
		return
	}
	e.queueReload(id)
}

func (e *Engine) queueReload(id string) {
	e.queue.Add("reload source "+id, queue.Loaded(), func() {
		e.reloadSource(id)
	})
}

// reloadSource runs the reload. Caller holds e.mu.
func (e *Engine) reloadSource(id string) {
	entry, ok := e.sources.Get(id)
	if !ok || !e.attached() {
		return
	}

	p := e.beginPass(TriggerReload, false)
	defer func() { e.endPass(p, nil) }()

	src, ok := e.targetSource(id)
	if ok {
		if tp, ok := src.(target.TilePatcher); ok {
			_ = e.mutate(target.OpSetTiles, id, "", func() error {
				return tp.SetTiles([]string{entry.url})
			})
			return
		}

		for _, dep := range e.target.LayerDependents(id) {
			e.tearDownInteraction(dep)
			_ = e.ordering.Remove(dep)
			e.backing.Delete(dep)
		}
		_ = e.mutate(target.OpRemoveSource, id, "", func() error {
			return e.target.RemoveSource(id)
		})
	}

	e.logger.Debug("source reloaded", "source", id, "url", entry.url)
	e.requestSync()
}

// targetSource looks a source up on the target. Caller holds e.mu.
func (e *Engine) targetSource(id string) (target.Source, bool) {
	if !e.attached() {
		return nil, false
	}
	return e.target.Source(id)
}
