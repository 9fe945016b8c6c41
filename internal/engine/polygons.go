package engine

import (
	"maps"
	"slices"

	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/target"
)

// Polygon styling defaults.
const (
	defaultFillOpacity = 0.6
	defaultLineOpacity = 1.0
	defaultLineWidth   = 1.0
	hoverOpacityBoost  = 0.1
)

func fillLayerID(polygonID string) string    { return polygonID + ":fill" }
func outlineLayerID(polygonID string) string { return polygonID + ":outline" }

// polygonEntry is a declared polygon and the config last applied to the
// target.
type polygonEntry struct {
	polygon     ir.Polygon
	options     LayerOptions
	fingerprint string

	applied   ir.Polygon
	appliedFP string
}

// changed reports whether the polygon was applied before with a different
// config.
func (p *polygonEntry) changed() bool {
	return p.appliedFP != "" && p.appliedFP != p.fingerprint
}

func (p *polygonEntry) markApplied() {
	p.applied = p.polygon
	p.appliedFP = p.fingerprint
}

// source builds the GeoJSON source holding the polygon as feature 0.
func (p *polygonEntry) source() ir.SourceSpec {
	return ir.SourceSpec{Type: "geojson", Data: polygonFeature(p.polygon)}
}

func (p *polygonEntry) layers(id string) []ir.Layer {
	return []ir.Layer{fillLayer(id, p.polygon), outlineLayer(id, p.polygon)}
}

func polygonFeature(poly ir.Polygon) map[string]any {
	return map[string]any{
		"id":         0,
		"type":       "Feature",
		"geometry":   poly.Geometry,
		"properties": map[string]any{},
	}
}

func fillLayer(id string, poly ir.Polygon) ir.Layer {
	opacity := defaultFillOpacity
	if poly.FillOpacity != nil {
		opacity = *poly.FillOpacity
	}
	var fillOpacity any = opacity
	if poly.Hover {
		fillOpacity = []any{
			"case",
			[]any{"boolean", []any{"feature-state", "hover"}, false},
			opacity + hoverOpacityBoost,
			opacity,
		}
	}
	return ir.Layer{
		ID:     fillLayerID(id),
		Type:   "fill",
		Source: id,
		Paint: map[string]any{
			"fill-color":     poly.Color,
			"fill-opacity":   fillOpacity,
			"fill-antialias": true,
		},
	}
}

func outlineLayer(id string, poly ir.Polygon) ir.Layer {
	lineColor := poly.LineColor
	if lineColor == "" {
		lineColor = poly.Color
	}
	lineOpacity := defaultLineOpacity
	if poly.LineOpacity != nil {
		lineOpacity = *poly.LineOpacity
	}
	lineWidth := defaultLineWidth
	if poly.LineWidth != nil {
		lineWidth = *poly.LineWidth
	}
	dash := []any{1, 0}
	if poly.LineStyle == ir.LineDashed {
		dash = []any{0.2, 2}
	}
	return ir.Layer{
		ID:     outlineLayerID(id),
		Type:   "line",
		Source: id,
		Layout: map[string]any{"line-cap": "round", "line-join": "round"},
		Paint: map[string]any{
			"line-color":     lineColor,
			"line-opacity":   lineOpacity,
			"line-width":     lineWidth,
			"line-dasharray": dash,
		},
	}
}

// AddPolygon declares (or replaces) a polygon rendered as a fill and an
// outline layer over its own GeoJSON source. A replaced polygon is patched
// in place by the next sync.
func (e *Engine) AddPolygon(id string, poly ir.Polygon, opts LayerOptions) (Disposer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed() {
		return noopDisposer, nil
	}
	fp, err := ir.Fingerprint(ir.DomainPolygon, poly)
	if err != nil {
		return noopDisposer, err
	}

	entry, ok := e.polygons.Get(id)
	if !ok {
		entry = &polygonEntry{}
	}
	entry.polygon = poly
	entry.options = opts
	entry.fingerprint = fp
	e.polygons.Set(id, entry)
	e.requestSync()

	return func() { e.RemovePolygon(id) }, nil
}

// RemovePolygon forgets a polygon; the next sync removes its layers and
// source. Unknown ids are a no-op.
func (e *Engine) RemovePolygon(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	poly, ok := e.polygons.Get(id)
	if !ok {
		return
	}
	e.polygons.Delete(id)
	for _, layer := range poly.layers(id) {
		e.forgetUnplaced(layer.ID)
	}
	e.requestSync()
}

// patchPolygonSource replaces the GeoJSON of a kept polygon source whose
// geometry changed. Caller holds e.mu.
func (e *Engine) patchPolygonSource(id string, poly *polygonEntry) {
	if ir.CanonicalEqual(poly.applied.Geometry, poly.polygon.Geometry) {
		return
	}
	src, ok := e.target.Source(id)
	if !ok {
		return
	}
	dp, ok := src.(target.DataPatcher)
	if !ok {
		e.logger.Warn("polygon geometry changed but its source cannot be patched",
			"polygon", id,
		)
		return
	}
	data := polygonFeature(poly.polygon)
	_ = e.mutate(target.OpSetData, id, "", func() error {
		return dp.SetData(data)
	})
}

// patchPolygonLayer sets the paint properties of a kept polygon layer that
// differ from the applied config. Caller holds e.mu.
func (e *Engine) patchPolygonLayer(poly *polygonEntry, layer ir.Layer) {
	var old ir.Layer
	switch layer.Type {
	case "fill":
		old = fillLayer(layer.Source, poly.applied)
	default:
		old = outlineLayer(layer.Source, poly.applied)
	}

	for _, name := range slices.Sorted(maps.Keys(layer.Paint)) {
		value := layer.Paint[name]
		if ir.CanonicalEqual(old.Paint[name], value) {
			continue
		}
		_ = e.mutate(target.OpSetPaint, layer.ID, "", func() error {
			return e.target.SetPaintProperty(layer.ID, name, value)
		})
	}
	e.backing.Set(layer.ID, layer)
}
