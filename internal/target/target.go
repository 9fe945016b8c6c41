// Package target defines the render-target contract the engine drives and
// an in-process implementation of it.
//
// A render target is an external, mutable layer stack with strict z-order:
// a map canvas with "add layer / add source / remove layer" calls. The
// engine never assumes it owns anything on the target it did not add.
//
// Lifecycle notifications (load, idle, source data, style change, errors)
// are not part of this interface. The embedder forwards them to the engine's
// Handle* methods. Implementations must not call those handlers
// synchronously from inside a mutation call.
package target

import "github.com/team-wildflyer/mapsync/internal/ir"

// EventKind names a pointer event a layer can be subscribed to.
type EventKind string

const (
	EventClick      EventKind = "click"
	EventMouseEnter EventKind = "mouseenter"
	EventMouseLeave EventKind = "mouseleave"
)

// Event is a pointer event scoped to one layer.
type Event struct {
	Kind    EventKind
	LayerID string

	// Features are the hit-test candidates under the pointer, topmost
	// first. Empty for mouseleave.
	Features []ir.Feature
}

// Handler receives layer-scoped pointer events.
type Handler func(Event)

// Subscription is a live event binding.
type Subscription interface {
	Unsubscribe()
}

// Source is a source object on the target.
type Source interface {
	ID() string
	Type() string
	Loaded() bool
}

// TilePatcher is implemented by sources whose tile URLs can be replaced in
// place without removing the source.
type TilePatcher interface {
	SetTiles(tiles []string) error
}

// DataPatcher is implemented by sources whose inline data can be replaced
// in place.
type DataPatcher interface {
	SetData(data any) error
}

// Target is the capability set of a render target.
type Target interface {
	// LayerIDs returns every layer id, bottom to top.
	LayerIDs() []string
	// SourceIDs returns every source id.
	SourceIDs() []string
	HasLayer(id string) bool

	// AddLayer inserts layer directly below before, or on top when before
	// is empty.
	AddLayer(layer ir.Layer, before string) error
	RemoveLayer(id string) error
	AddSource(id string, spec ir.SourceSpec) error
	RemoveSource(id string) error

	// Source returns the source object, if present. Optional capabilities
	// (TilePatcher, DataPatcher) are discovered by type assertion.
	Source(id string) (Source, bool)

	// LayerDependents returns the ids of layers reading from sourceID, in
	// stack order.
	LayerDependents(sourceID string) []string

	FeatureState(f ir.FeatureID) ir.FeatureState
	SetFeatureState(f ir.FeatureID, state ir.FeatureState) error

	SetLayoutProperty(layerID, name string, value any) error
	SetPaintProperty(layerID, name string, value any) error

	// Style returns the name (or URL) of the current style.
	Style() string
	SetStyle(style string) error

	Subscribe(kind EventKind, layerID string, h Handler) Subscription
	SetCursor(cursor string)
}
