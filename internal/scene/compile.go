package scene

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/team-wildflyer/mapsync/internal/ir"
)

// CompileError is a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads and compiles a scene file.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	return CompileSource(data, path)
}

// CompileSource compiles CUE scene source. filename is used for positions.
func CompileSource(src []byte, filename string) (*Scene, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return Compile(v)
}

// Compile converts a CUE value into a Scene. Every value must be concrete.
func Compile(v cue.Value) (*Scene, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	s := &Scene{}
	var err error

	if sv := v.LookupPath(cue.ParsePath("style")); sv.Exists() {
		if s.Style, err = sv.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	if bv := v.LookupPath(cue.ParsePath("base")); bv.Exists() {
		if err := bv.Decode(&s.Base); err != nil {
			return nil, formatCUEError(err)
		}
	}
	if lv := v.LookupPath(cue.ParsePath("labels")); lv.Exists() {
		visible, err := lv.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		s.Labels = &visible
	}

	if s.Groups, err = compileGroups(v.LookupPath(cue.ParsePath("groups"))); err != nil {
		return nil, err
	}
	if s.Sources, err = compileSources(v.LookupPath(cue.ParsePath("sources"))); err != nil {
		return nil, err
	}
	if s.Layers, err = compileLayers(v.LookupPath(cue.ParsePath("layers"))); err != nil {
		return nil, err
	}
	if s.Polygons, err = compilePolygons(v.LookupPath(cue.ParsePath("polygons"))); err != nil {
		return nil, err
	}
	if s.FeatureStates, err = compileFeatureStates(v.LookupPath(cue.ParsePath("feature_states"))); err != nil {
		return nil, err
	}
	return s, nil
}

// compileGroups parses `name: above: "<anchor>"` or `name: below: "<anchor>"`.
// A group with neither or both is kept with an empty direction and
// rejected by Validate.
func compileGroups(v cue.Value) ([]Group, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var groups []Group
	for iter.Next() {
		gv := iter.Value()
		g := Group{Name: iter.Label(), Pos: gv.Pos()}

		above, err := optionalString(gv, "above")
		if err != nil {
			return nil, err
		}
		below, err := optionalString(gv, "below")
		if err != nil {
			return nil, err
		}
		switch {
		case above != "" && below == "":
			g.Ordering = ir.Above(above)
		case below != "" && above == "":
			g.Ordering = ir.Below(below)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func compileSources(v cue.Value) ([]Source, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var sources []Source
	for iter.Next() {
		sv := iter.Value()
		src := Source{ID: iter.Label(), Pos: sv.Pos()}

		if src.Spec.Type, err = optionalString(sv, "type"); err != nil {
			return nil, err
		}
		if src.URL, err = optionalString(sv, "url"); err != nil {
			return nil, err
		}
		if av := sv.LookupPath(cue.ParsePath("attributes")); av.Exists() {
			if err := av.Decode(&src.Spec.Attributes); err != nil {
				return nil, formatCUEError(err)
			}
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func compileLayers(v cue.Value) ([]Layer, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var layers []Layer
	for iter.Next() {
		lv := iter.Value()
		l := Layer{Layer: ir.Layer{ID: iter.Label()}, Pos: lv.Pos()}

		fields := []struct {
			name string
			dst  *string
		}{
			{"type", &l.Layer.Type},
			{"source", &l.Layer.Source},
			{"source_layer", &l.Layer.SourceLayer},
			{"group", &l.Group},
			{"parent", &l.Parent},
		}
		for _, f := range fields {
			if *f.dst, err = optionalString(lv, f.name); err != nil {
				return nil, err
			}
		}

		if l.Layer.Layout, err = optionalObject(lv, "layout"); err != nil {
			return nil, err
		}
		if l.Layer.Paint, err = optionalObject(lv, "paint"); err != nil {
			return nil, err
		}
		if fv := lv.LookupPath(cue.ParsePath("filter")); fv.Exists() {
			if err := fv.Decode(&l.Layer.Filter); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if l.Layer.MinZoom, err = optionalFloat(lv, "minzoom"); err != nil {
			return nil, err
		}
		if l.Layer.MaxZoom, err = optionalFloat(lv, "maxzoom"); err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, nil
}

func compilePolygons(v cue.Value) ([]Polygon, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var polygons []Polygon
	for iter.Next() {
		pv := iter.Value()
		p := Polygon{ID: iter.Label(), Pos: pv.Pos()}
		poly := &p.Polygon

		if poly.Geometry, err = optionalObject(pv, "geometry"); err != nil {
			return nil, err
		}
		if poly.Color, err = optionalString(pv, "color"); err != nil {
			return nil, err
		}
		if poly.LineColor, err = optionalString(pv, "line_color"); err != nil {
			return nil, err
		}
		lineStyle, err := optionalString(pv, "line_style")
		if err != nil {
			return nil, err
		}
		poly.LineStyle = ir.LineStyle(lineStyle)
		if p.Group, err = optionalString(pv, "group"); err != nil {
			return nil, err
		}
		if poly.FillOpacity, err = optionalFloat(pv, "fill_opacity"); err != nil {
			return nil, err
		}
		if poly.LineOpacity, err = optionalFloat(pv, "line_opacity"); err != nil {
			return nil, err
		}
		if poly.LineWidth, err = optionalFloat(pv, "line_width"); err != nil {
			return nil, err
		}
		if hv := pv.LookupPath(cue.ParsePath("hover")); hv.Exists() {
			if poly.Hover, err = hv.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		polygons = append(polygons, p)
	}
	return polygons, nil
}

func compileFeatureStates(v cue.Value) ([]FeatureState, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var states []FeatureState
	for iter.Next() {
		fv := iter.Value()
		fs := FeatureState{Pos: fv.Pos()}

		if fs.Feature.Source, err = optionalString(fv, "source"); err != nil {
			return nil, err
		}
		if fs.Feature.SourceLayer, err = optionalString(fv, "source_layer"); err != nil {
			return nil, err
		}
		if fs.Feature.ID, err = featureID(fv); err != nil {
			return nil, err
		}
		state, err := optionalObject(fv, "state")
		if err != nil {
			return nil, err
		}
		fs.State = ir.FeatureState(state)
		states = append(states, fs)
	}
	return states, nil
}

// featureID accepts string or integer ids.
func featureID(v cue.Value) (string, error) {
	iv := v.LookupPath(cue.ParsePath("id"))
	if !iv.Exists() {
		return "", nil
	}
	if iv.Kind() == cue.IntKind {
		n, err := iv.Int64()
		if err != nil {
			return "", formatCUEError(err)
		}
		return fmt.Sprint(n), nil
	}
	s, err := iv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.MakePath(cue.Str(field)))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, nil
}

func optionalFloat(v cue.Value, field string) (*float64, error) {
	fv := v.LookupPath(cue.MakePath(cue.Str(field)))
	if !fv.Exists() {
		return nil, nil
	}
	f, err := fv.Float64()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a number", Pos: fv.Pos()}
	}
	return &f, nil
}

func optionalObject(v cue.Value, field string) (map[string]any, error) {
	fv := v.LookupPath(cue.MakePath(cue.Str(field)))
	if !fv.Exists() {
		return nil, nil
	}
	if fv.Kind() != cue.StructKind {
		return nil, &CompileError{Field: field, Message: "must be an object", Pos: fv.Pos()}
	}
	var out map[string]any
	if err := fv.Decode(&out); err != nil {
		return nil, formatCUEError(err)
	}
	return out, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
