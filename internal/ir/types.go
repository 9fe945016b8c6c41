package ir

import "maps"

// Layer is a render-target layer description (fill, line, raster, custom...).
//
// The engine only reads ID and Source. Everything else is passed through to
// the render target as-is.
type Layer struct {
	ID          string         `json:"id" yaml:"id"`
	Type        string         `json:"type" yaml:"type"`
	Source      string         `json:"source,omitempty" yaml:"source,omitempty"`
	SourceLayer string         `json:"source_layer,omitempty" yaml:"source_layer,omitempty"`
	Layout      map[string]any `json:"layout,omitempty" yaml:"layout,omitempty"`
	Paint       map[string]any `json:"paint,omitempty" yaml:"paint,omitempty"`
	Filter      any            `json:"filter,omitempty" yaml:"filter,omitempty"`
	MinZoom     *float64       `json:"minzoom,omitempty" yaml:"minzoom,omitempty"`
	MaxZoom     *float64       `json:"maxzoom,omitempty" yaml:"maxzoom,omitempty"`
}

// Visibility returns the declared layout visibility, "visible" when unset.
func (l Layer) Visibility() string {
	if v, ok := l.Layout["visibility"].(string); ok && v != "" {
		return v
	}
	return "visible"
}

// SourceSpec describes a tile or GeoJSON source.
type SourceSpec struct {
	Type       string         `json:"type" yaml:"type"`
	Tiles      []string       `json:"tiles,omitempty" yaml:"tiles,omitempty"`
	Data       any            `json:"data,omitempty" yaml:"data,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// WithTiles returns a copy of the spec whose tile list is exactly [url].
func (s SourceSpec) WithTiles(url string) SourceSpec {
	out := s
	out.Tiles = []string{url}
	out.Attributes = maps.Clone(s.Attributes)
	return out
}

// FeatureID identifies one feature within a source (and source layer for
// vector sources).
type FeatureID struct {
	Source      string `json:"source" yaml:"source"`
	SourceLayer string `json:"source_layer,omitempty" yaml:"source_layer,omitempty"`
	ID          string `json:"id" yaml:"id"`
}

// Key returns the stable cache key "source:sourceLayer:id".
func (f FeatureID) Key() string {
	return f.Source + ":" + f.SourceLayer + ":" + f.ID
}

// Feature is a hit-test result delivered with pointer events.
type Feature struct {
	ID          string         `json:"id"`
	LayerID     string         `json:"layer_id"`
	Source      string         `json:"source"`
	SourceLayer string         `json:"source_layer,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// Identifier returns the feature's FeatureID. ok is false when the feature
// carries no source or id, in which case feature state cannot be addressed.
func (f Feature) Identifier() (FeatureID, bool) {
	if f.Source == "" || f.ID == "" {
		return FeatureID{}, false
	}
	return FeatureID{Source: f.Source, SourceLayer: f.SourceLayer, ID: f.ID}, true
}

// FeatureState is a desired state overlay for one feature.
type FeatureState map[string]any

// Merge returns a new state with other's keys written over s.
func (s FeatureState) Merge(other FeatureState) FeatureState {
	out := make(FeatureState, len(s)+len(other))
	maps.Copy(out, s)
	maps.Copy(out, other)
	return out
}

// Equal reports whether two states are equal under canonical JSON. A nil
// state equals an empty one.
func (s FeatureState) Equal(other FeatureState) bool {
	return CanonicalEqual(map[string]any(s.orEmpty()), map[string]any(other.orEmpty()))
}

func (s FeatureState) orEmpty() FeatureState {
	if s == nil {
		return FeatureState{}
	}
	return s
}

// LineStyle selects the outline dash pattern of a polygon.
type LineStyle string

const (
	LineSolid  LineStyle = "solid"
	LineDashed LineStyle = "dashed"
)

// Polygon is a declared shape that expands into a fill and an outline layer
// sharing one GeoJSON source.
type Polygon struct {
	Geometry    map[string]any `json:"geometry" yaml:"geometry"`
	Color       string         `json:"color,omitempty" yaml:"color,omitempty"`
	LineColor   string         `json:"line_color,omitempty" yaml:"line_color,omitempty"`
	FillOpacity *float64       `json:"fill_opacity,omitempty" yaml:"fill_opacity,omitempty"`
	LineOpacity *float64       `json:"line_opacity,omitempty" yaml:"line_opacity,omitempty"`
	LineWidth   *float64       `json:"line_width,omitempty" yaml:"line_width,omitempty"`
	LineStyle   LineStyle      `json:"line_style,omitempty" yaml:"line_style,omitempty"`
	Hover       bool           `json:"hover,omitempty" yaml:"hover,omitempty"`
}

// Float returns a pointer to v, for the optional numeric polygon fields.
func Float(v float64) *float64 {
	return &v
}
