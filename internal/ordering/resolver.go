// Package ordering resolves where new layers go in the render target's layer
// stack.
//
// Layers belong to named groups. Each group is positioned above or below an
// anchor: the absolute top or bottom ("*"), another group ("group:<name>"),
// the style's top background layer ("$background"), or a literal layer id.
// Layers added to a group that already has members on the target are placed
// directly after the group's topmost member; the first member of a group is
// placed at the group's resolved anchor.
//
// Bounds are computed against a fresh snapshot of the target's layer ids on
// every call, with a per-call memo table and a set of groups currently being
// resolved. Re-entering a group that is still being resolved is a cycle and
// fails with ErrCodeCycle naming the chain.
package ordering

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/team-wildflyer/mapsync/internal/ir"
)

// Target is the slice of the render target the resolver needs.
type Target interface {
	// LayerIDs returns every layer id on the target, bottom to top.
	LayerIDs() []string

	// AddLayer inserts layer directly below before, or at the top when
	// before is empty.
	AddLayer(layer ir.Layer, before string) error

	// RemoveLayer removes a layer. Removing an absent layer is not an error.
	RemoveLayer(id string) error
}

// BackgroundFunc returns the id of the current style's top background
// layer, or "" when the style has none.
type BackgroundFunc func() string

// Bounds is the half-open index range [Lo, Hi) a group occupies in the
// target's layer list. An empty group has Lo == Hi at its insertion point.
type Bounds struct {
	Lo int
	Hi int
}

// Group is a named, ordered bucket of layers sharing a positioning rule.
type Group struct {
	Name     string
	Ordering ir.Ordering
	Layers   []ir.Layer
}

func (g *Group) indexOf(id string) int {
	return slices.IndexFunc(g.Layers, func(l ir.Layer) bool { return l.ID == id })
}

// Resolver owns the group registry and places layers on the target.
//
// Resolver is not safe for concurrent use.
type Resolver struct {
	target     Target
	background BackgroundFunc
	logger     *slog.Logger

	groups     map[string]*Group
	unassigned *Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBackground sets the hook resolving the "$background" anchor.
func WithBackground(fn BackgroundFunc) Option {
	return func(r *Resolver) {
		r.background = fn
	}
}

// WithLogger sets the logger for anchor fallbacks and failed insertions.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a resolver with only the implicit unassigned group.
func New(target Target, opts ...Option) *Resolver {
	r := &Resolver{
		target: target,
		logger: slog.Default(),
		groups: make(map[string]*Group),
		unassigned: &Group{
			Name:     ir.UnassignedGroup,
			Ordering: ir.Above(ir.Wildcard),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterGroup declares a group or changes the ordering of an existing one.
// Layers already assigned to the group keep their membership.
func (r *Resolver) RegisterGroup(name string, ordering ir.Ordering) error {
	if name == "" {
		return newInvalidGroupError(name, "group name is empty")
	}
	if name == ir.UnassignedGroup {
		return newInvalidGroupError(name, "group name is reserved")
	}
	if err := ordering.Validate(); err != nil {
		return &Error{Code: ErrCodeInvalidGroup, Message: err.Error(), Group: name}
	}
	if g, ok := r.groups[name]; ok {
		g.Ordering = ordering
		return nil
	}
	r.groups[name] = &Group{Name: name, Ordering: ordering}
	return nil
}

// UnregisterGroup forgets a group. Its layers stay on the target. Returns
// false if the group was not registered.
func (r *Resolver) UnregisterGroup(name string) bool {
	if _, ok := r.groups[name]; !ok {
		return false
	}
	delete(r.groups, name)
	return true
}

// HasGroup reports whether name is registered.
func (r *Resolver) HasGroup(name string) bool {
	_, ok := r.groups[name]
	return ok
}

// GroupNames returns the registered group names, sorted. The unassigned
// group is not included.
func (r *Resolver) GroupNames() []string {
	return slices.Sorted(maps.Keys(r.groups))
}

// Group returns a copy of the named group. Unknown names resolve to the
// unassigned group, as they do for placement.
func (r *Resolver) Group(name string) Group {
	g := r.group(name)
	return Group{
		Name:     g.Name,
		Ordering: g.Ordering,
		Layers:   slices.Clone(g.Layers),
	}
}

// group looks up a group, falling back to the unassigned group for unknown
// names.
func (r *Resolver) group(name string) *Group {
	if name == "" || name == ir.UnassignedGroup {
		return r.unassigned
	}
	if g, ok := r.groups[name]; ok {
		return g
	}
	return r.unassigned
}

// Add assigns layer to a group (moving it to the end of the group if it was
// already a member) and inserts it above the group's topmost member on the
// target. Other members are left alone.
//
// Only configuration errors are returned. A failed insertion is logged and
// the layer stays a member, so a later Add can retry it.
func (r *Resolver) Add(layer ir.Layer, groupName string) error {
	if groupName != "" && groupName != ir.UnassignedGroup && !r.HasGroup(groupName) {
		r.logger.Warn("layer group not registered, using unassigned group",
			"group", groupName,
			"layer", layer.ID,
		)
	}
	g := r.group(groupName)
	r.forget(layer.ID)
	g.Layers = append(g.Layers, layer)
	return r.insert(g, layer)
}

// Remove drops the layer from its group and removes it from the target.
func (r *Resolver) Remove(id string) error {
	r.forget(id)
	return r.target.RemoveLayer(id)
}

// Forget drops id from its group without touching the target. Used when a
// layer stops being declared while it is not on the target.
func (r *Resolver) Forget(id string) {
	r.forget(id)
}

// forget removes id from whichever group holds it.
func (r *Resolver) forget(id string) {
	for _, g := range r.allGroups() {
		if i := g.indexOf(id); i >= 0 {
			g.Layers = slices.Delete(g.Layers, i, i+1)
			return
		}
	}
}

func (r *Resolver) allGroups() []*Group {
	out := make([]*Group, 0, len(r.groups)+1)
	for _, name := range slices.Sorted(maps.Keys(r.groups)) {
		out = append(out, r.groups[name])
	}
	return append(out, r.unassigned)
}

// Bounds resolves the current bounds of the named group.
func (r *Resolver) Bounds(groupName string) (Bounds, error) {
	res := r.newResolution()
	return res.bounds(r.group(groupName))
}

// InsertionPoint returns the index at which a new layer of the group would
// be inserted and the id it would be inserted before ("" for the top).
func (r *Resolver) InsertionPoint(groupName string) (int, string, error) {
	res := r.newResolution()
	b, err := res.bounds(r.group(groupName))
	if err != nil {
		return 0, "", err
	}
	return b.Hi, res.before(b.Hi), nil
}

func (r *Resolver) insert(g *Group, layer ir.Layer) error {
	res := r.newResolution()
	b, err := res.bounds(g)
	if err != nil {
		return err
	}
	if slices.Contains(res.layers, layer.ID) {
		return nil
	}

	// New members always go after the group's current topmost member.
	before := res.before(b.Hi)
	if err := r.target.AddLayer(layer, before); err != nil {
		r.logger.Warn("add layer failed",
			"layer", layer.ID,
			"group", g.Name,
			"before", before,
			"error", err,
		)
	}
	return nil
}

// resolution is the state of one resolution call: the layer snapshot, the
// memo table and the chain of groups being resolved.
type resolution struct {
	r         *Resolver
	layers    []string
	memo      map[string]Bounds
	resolving []string
}

func (r *Resolver) newResolution() *resolution {
	return &resolution{
		r:      r,
		layers: r.target.LayerIDs(),
		memo:   make(map[string]Bounds),
	}
}

func (res *resolution) before(idx int) string {
	if idx >= 0 && idx < len(res.layers) {
		return res.layers[idx]
	}
	return ""
}

func (res *resolution) bounds(g *Group) (Bounds, error) {
	if b, ok := res.memo[g.Name]; ok {
		return b, nil
	}
	if slices.Contains(res.resolving, g.Name) {
		return Bounds{}, NewCycleError(append(slices.Clone(res.resolving), g.Name))
	}
	res.resolving = append(res.resolving, g.Name)
	defer func() { res.resolving = res.resolving[:len(res.resolving)-1] }()

	lo, hi := -1, -1
	for _, layer := range g.Layers {
		idx := slices.Index(res.layers, layer.ID)
		if idx < 0 {
			continue
		}
		if lo < 0 || idx < lo {
			lo = idx
		}
		if idx+1 > hi {
			hi = idx + 1
		}
	}
	if lo >= 0 {
		b := Bounds{Lo: lo, Hi: hi}
		res.memo[g.Name] = b
		return b, nil
	}

	idx, err := res.anchorIndex(g)
	if err != nil {
		return Bounds{}, err
	}
	b := Bounds{Lo: idx, Hi: idx}
	res.memo[g.Name] = b
	return b, nil
}

// anchorIndex resolves the insertion index of a group with no members on
// the target.
func (res *resolution) anchorIndex(g *Group) (int, error) {
	above := g.Ordering.Direction == ir.DirectionAbove
	anchor := g.Ordering.Anchor

	switch anchor.Kind() {
	case ir.AnchorWildcard:
		if above {
			return len(res.layers), nil
		}
		return 0, nil

	case ir.AnchorGroup:
		ref := res.r.group(anchor.GroupName())
		b, err := res.bounds(ref)
		if err != nil {
			return 0, err
		}
		if above {
			return b.Hi, nil
		}
		return b.Lo, nil

	default:
		id := string(anchor)
		if anchor.Kind() == ir.AnchorBackground && res.r.background != nil {
			if bg := res.r.background(); bg != "" {
				id = bg
			}
		}
		if idx := slices.Index(res.layers, id); idx >= 0 {
			if above {
				return idx + 1, nil
			}
			return idx, nil
		}
		res.r.logger.Warn("ordering anchor not on target, falling back",
			"group", g.Name,
			"anchor", id,
			"fallback", fallbackName(above),
		)
		if above {
			return len(res.layers), nil
		}
		return 0, nil
	}
}

func fallbackName(above bool) string {
	if above {
		return "top"
	}
	return "bottom"
}

// String renders bounds as "[lo, hi)".
func (b Bounds) String() string {
	return fmt.Sprintf("[%d, %d)", b.Lo, b.Hi)
}
