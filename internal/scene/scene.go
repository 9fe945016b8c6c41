// Package scene compiles declarative CUE scene files into the registrations
// an engine needs.
//
// A scene names the base style and its layers, layer groups, sources,
// backing layers, polygons and feature states:
//
//	style: "streets"
//	base: ["background", "water", "Country border", "Country labels"]
//	groups: base: above: "$background"
//	groups: overlay: above: "group:base"
//	sources: parcels: {type: "vector", url: "https://tiles/{z}/{x}/{y}.pbf"}
//	layers: "parcels-fill": {type: "fill", source: "parcels", group: "base"}
//	polygons: zone: {geometry: {...}, color: "#f00", group: "overlay"}
//	feature_states: [{source: "parcels", source_layer: "p", id: "7", state: {selected: true}}]
//
// Compile keeps declaration order, Validate reports every schema problem at
// once, and AnalyzeCycles finds group reference cycles before the engine
// would hit them at runtime.
package scene

import (
	"cuelang.org/go/cue/token"

	"github.com/team-wildflyer/mapsync/internal/ir"
)

// Scene is a compiled scene file.
type Scene struct {
	Style         string         `json:"style,omitempty"`
	Base          []string       `json:"base,omitempty"`
	Labels        *bool          `json:"labels,omitempty"`
	Groups        []Group        `json:"groups,omitempty"`
	Sources       []Source       `json:"sources,omitempty"`
	Layers        []Layer        `json:"layers,omitempty"`
	Polygons      []Polygon      `json:"polygons,omitempty"`
	FeatureStates []FeatureState `json:"feature_states,omitempty"`
}

// Group is a declared layer group.
type Group struct {
	Name     string      `json:"name"`
	Ordering ir.Ordering `json:"ordering"`
	Pos      token.Pos   `json:"-"`
}

// Source is a declared tile source.
type Source struct {
	ID   string        `json:"id"`
	URL  string        `json:"url"`
	Spec ir.SourceSpec `json:"spec"`
	Pos  token.Pos     `json:"-"`
}

// Layer is a declared backing layer.
type Layer struct {
	Layer  ir.Layer  `json:"layer"`
	Group  string    `json:"group,omitempty"`
	Parent string    `json:"parent,omitempty"`
	Pos    token.Pos `json:"-"`
}

// Polygon is a declared polygon.
type Polygon struct {
	ID      string     `json:"id"`
	Polygon ir.Polygon `json:"polygon"`
	Group   string     `json:"group,omitempty"`
	Pos     token.Pos  `json:"-"`
}

// FeatureState is a declared feature state directive.
type FeatureState struct {
	Feature ir.FeatureID    `json:"feature"`
	State   ir.FeatureState `json:"state"`
	Pos     token.Pos       `json:"-"`
}

// GroupNames returns the declared group names in order.
func (s *Scene) GroupNames() []string {
	out := make([]string, len(s.Groups))
	for i, g := range s.Groups {
		out[i] = g.Name
	}
	return out
}

// LayerIDs returns every layer id the scene puts on the target, including
// the fill and outline layers of polygons.
func (s *Scene) LayerIDs() []string {
	var out []string
	for _, l := range s.Layers {
		out = append(out, l.Layer.ID)
	}
	for _, p := range s.Polygons {
		out = append(out, p.ID+":fill", p.ID+":outline")
	}
	return out
}
