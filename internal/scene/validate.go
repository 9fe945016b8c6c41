package scene

import (
	"fmt"
	"slices"

	"github.com/team-wildflyer/mapsync/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrInvalidOrdering    = "E201" // group needs exactly one of above/below
	ErrReservedGroup      = "E202" // group name is reserved
	ErrUnknownGroup       = "E203" // layer or polygon names an undeclared group
	ErrUnknownGroupAnchor = "E204" // group: anchor names an undeclared group
	ErrUnknownSource      = "E205" // layer references an undeclared source
	ErrDuplicateID        = "E206" // id declared twice
	ErrMissingField       = "E207" // required field missing
	ErrUnknownLayerAnchor = "E208" // literal anchor not in base layers
	ErrFeatureStateSource = "E209" // feature state names an undeclared source
	ErrInvalidLineStyle   = "E210" // line_style must be solid or dashed
	ErrGroupCycle         = "E211" // groups reference each other in a loop
)

// ValidationError represents a scene validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled scene. Returns all errors found (does not
// fail-fast). Group cycles are included as E211 errors.
func Validate(s *Scene) []ValidationError {
	var errs []ValidationError

	groups := make(map[string]bool, len(s.Groups))
	for _, g := range s.Groups {
		groups[g.Name] = true
	}

	for _, g := range s.Groups {
		field := "groups." + g.Name
		line := g.Pos.Line()

		if g.Name == ir.UnassignedGroup {
			errs = append(errs, ValidationError{
				Field: field, Message: "group name is reserved", Code: ErrReservedGroup, Line: line,
			})
			continue
		}
		if err := g.Ordering.Validate(); err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "exactly one of above or below is required",
				Code:    ErrInvalidOrdering,
				Line:    line,
			})
			continue
		}

		switch g.Ordering.Anchor.Kind() {
		case ir.AnchorGroup:
			if !groups[g.Ordering.Anchor.GroupName()] {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("anchor %q names an undeclared group", g.Ordering.Anchor),
					Code:    ErrUnknownGroupAnchor,
					Line:    line,
				})
			}
		case ir.AnchorLayer:
			// Literal anchors are only checked when the base layers are known.
			if len(s.Base) > 0 && !slices.Contains(s.Base, string(g.Ordering.Anchor)) {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("anchor %q is not a base layer", g.Ordering.Anchor),
					Code:    ErrUnknownLayerAnchor,
					Line:    line,
				})
			}
		}
	}

	for _, w := range AnalyzeCycles(s.Groups) {
		errs = append(errs, ValidationError{
			Field:   "groups." + w.Path[0],
			Message: w.Message,
			Code:    ErrGroupCycle,
		})
	}

	sources := make(map[string]bool, len(s.Sources))
	for _, src := range s.Sources {
		field := "sources." + src.ID
		if src.Spec.Type == "" {
			errs = append(errs, missing(field+".type", src.Pos.Line()))
		}
		if src.URL == "" {
			errs = append(errs, missing(field+".url", src.Pos.Line()))
		}
		sources[src.ID] = true
	}

	ids := make(map[string]string)
	claim := func(id, field string, line int) {
		if prev, ok := ids[id]; ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("id %q already declared by %s", id, prev),
				Code:    ErrDuplicateID,
				Line:    line,
			})
			return
		}
		ids[id] = field
	}

	checkGroup := func(group, field string, line int) {
		if group != "" && !groups[group] {
			errs = append(errs, ValidationError{
				Field:   field + ".group",
				Message: fmt.Sprintf("group %q is not declared", group),
				Code:    ErrUnknownGroup,
				Line:    line,
			})
		}
	}

	for _, l := range s.Layers {
		field := "layers." + l.Layer.ID
		line := l.Pos.Line()
		claim(l.Layer.ID, field, line)
		if l.Layer.Type == "" {
			errs = append(errs, missing(field+".type", line))
		}
		if l.Layer.Source != "" && !sources[l.Layer.Source] {
			errs = append(errs, ValidationError{
				Field:   field + ".source",
				Message: fmt.Sprintf("source %q is not declared", l.Layer.Source),
				Code:    ErrUnknownSource,
				Line:    line,
			})
		}
		checkGroup(l.Group, field, line)
	}

	for _, p := range s.Polygons {
		field := "polygons." + p.ID
		line := p.Pos.Line()
		// A polygon owns its source and two layers.
		if sources[p.ID] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("id %q already declared by sources.%s", p.ID, p.ID),
				Code:    ErrDuplicateID,
				Line:    line,
			})
		}
		claim(p.ID+":fill", field, line)
		claim(p.ID+":outline", field, line)
		if len(p.Polygon.Geometry) == 0 {
			errs = append(errs, missing(field+".geometry", line))
		}
		switch p.Polygon.LineStyle {
		case "", ir.LineSolid, ir.LineDashed:
		default:
			errs = append(errs, ValidationError{
				Field:   field + ".line_style",
				Message: fmt.Sprintf("invalid line style %q: must be solid or dashed", p.Polygon.LineStyle),
				Code:    ErrInvalidLineStyle,
				Line:    line,
			})
		}
		checkGroup(p.Group, field, line)
	}

	for i, fs := range s.FeatureStates {
		field := fmt.Sprintf("feature_states[%d]", i)
		line := fs.Pos.Line()
		if fs.Feature.Source == "" {
			errs = append(errs, missing(field+".source", line))
		} else if !sources[fs.Feature.Source] && !hasPolygon(s, fs.Feature.Source) {
			errs = append(errs, ValidationError{
				Field:   field + ".source",
				Message: fmt.Sprintf("source %q is not declared", fs.Feature.Source),
				Code:    ErrFeatureStateSource,
				Line:    line,
			})
		}
		if fs.Feature.ID == "" {
			errs = append(errs, missing(field+".id", line))
		}
	}

	return errs
}

func missing(field string, line int) ValidationError {
	return ValidationError{
		Field:   field,
		Message: "required field is missing",
		Code:    ErrMissingField,
		Line:    line,
	}
}

func hasPolygon(s *Scene, id string) bool {
	return slices.ContainsFunc(s.Polygons, func(p Polygon) bool { return p.ID == id })
}
