// Package engine implements the mapsync reconciliation engine.
//
// The engine keeps a render target (a map canvas with an imperative layer
// and source API) in sync with desired state declared by calling code:
// sources, backing layers, polygons, layer groups, feature state and click
// listeners.
//
// ARCHITECTURE:
//
// Desired state lives in insertion-ordered registries. Every registration
// schedules the same debounced sync (16ms by default); a burst of
// registrations inside one window produces exactly one pass that reflects
// only the final state.
//
// A sync pass:
//  1. Snapshots the target's layer and source ids and subtracts the
//     unmanaged sets captured at load or style change
//  2. Keeps or adds every desired source
//  3. Keeps or adds every desired layer, asking the ordering resolver for
//     the insertion point of its group
//  4. Keeps or adds every polygon (a GeoJSON source plus fill and outline
//     layers), patching paint and data of polygons whose config changed
//  5. Removes whatever managed layers, then sources, are left over
//
// Work that needs the target in a given lifecycle state goes through the
// operation queue. Lifecycle transitions (load, idle) flush it.
//
// ERRORS:
//
// A failed target mutation is logged, journaled and skipped; the pass goes
// on. A circular group reference aborts the pass, is returned from Sync and
// kept as LastSyncError.
//
// CONCURRENCY:
//
// The engine is guarded by one mutex. Timer callbacks and target event
// handlers take it like any public method. Click listeners are called with
// the lock released, so they may call back into the engine. Targets must not
// call the Handle* methods synchronously from inside a mutation call.
package engine
