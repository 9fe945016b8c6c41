package ordering

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-wildflyer/mapsync/internal/ir"
)

// stack is a minimal ordered layer list.
type stack struct {
	ids     []string
	fail    map[string]error
	added   []string
	removed []string
}

func newStack(ids ...string) *stack {
	return &stack{ids: ids, fail: map[string]error{}}
}

func (s *stack) LayerIDs() []string { return slices.Clone(s.ids) }

func (s *stack) AddLayer(layer ir.Layer, before string) error {
	s.added = append(s.added, layer.ID)
	if err := s.fail[layer.ID]; err != nil {
		return err
	}
	idx := slices.Index(s.ids, before)
	if before == "" || idx < 0 {
		s.ids = append(s.ids, layer.ID)
		return nil
	}
	s.ids = slices.Insert(s.ids, idx, layer.ID)
	return nil
}

func (s *stack) RemoveLayer(id string) error {
	s.removed = append(s.removed, id)
	if idx := slices.Index(s.ids, id); idx >= 0 {
		s.ids = slices.Delete(s.ids, idx, idx+1)
	}
	return nil
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func layer(id string) ir.Layer {
	return ir.Layer{ID: id, Type: "fill", Source: "src"}
}

// =============================================================================
// Anchors
// =============================================================================

func TestAdd_WildcardAnchors(t *testing.T) {
	st := newStack("bg", "roads")
	r := New(st, quiet())
	require.NoError(t, r.RegisterGroup("top", ir.Above(ir.Wildcard)))
	require.NoError(t, r.RegisterGroup("bottom", ir.Below(ir.Wildcard)))

	require.NoError(t, r.Add(layer("t1"), "top"))
	require.NoError(t, r.Add(layer("b1"), "bottom"))

	assert.Equal(t, []string{"b1", "bg", "roads", "t1"}, st.ids)
}

func TestAdd_LiteralAnchor(t *testing.T) {
	st := newStack("bg", "water", "labels")
	r := New(st, quiet())
	require.NoError(t, r.RegisterGroup("over-water", ir.Above("water")))
	require.NoError(t, r.RegisterGroup("under-water", ir.Below("water")))

	require.NoError(t, r.Add(layer("o"), "over-water"))
	require.NoError(t, r.Add(layer("u"), "under-water"))

	assert.Equal(t, []string{"bg", "u", "water", "o", "labels"}, st.ids)
}

func TestAdd_MissingLiteralAnchorFallsBack(t *testing.T) {
	var buf bytes.Buffer
	st := newStack("bg", "labels")
	r := New(st, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	require.NoError(t, r.RegisterGroup("a", ir.Above("not-loaded-yet")))
	require.NoError(t, r.RegisterGroup("b", ir.Below("not-loaded-yet")))

	require.NoError(t, r.Add(layer("a1"), "a"))
	require.NoError(t, r.Add(layer("b1"), "b"))

	assert.Equal(t, []string{"b1", "bg", "labels", "a1"}, st.ids)
	assert.Contains(t, buf.String(), "ordering anchor not on target")
	assert.Contains(t, buf.String(), "anchor=not-loaded-yet")
}

func TestAdd_BackgroundAnchor(t *testing.T) {
	st := newStack("background", "water", "Country border", "Country labels")
	r := New(st, quiet(), WithBackground(func() string { return "Country border" }))
	require.NoError(t, r.RegisterGroup("base", ir.Above(ir.BackgroundAnchor)))

	require.NoError(t, r.Add(layer("parcels"), "base"))

	assert.Equal(t, []string{"background", "water", "Country border", "parcels", "Country labels"}, st.ids)
}

func TestAdd_BackgroundAnchorWithoutHookUsesLiteral(t *testing.T) {
	st := newStack("$background", "labels")
	r := New(st, quiet(), WithBackground(func() string { return "" }))
	require.NoError(t, r.RegisterGroup("base", ir.Above(ir.BackgroundAnchor)))

	require.NoError(t, r.Add(layer("x"), "base"))

	assert.Equal(t, []string{"$background", "x", "labels"}, st.ids)
}

// =============================================================================
// Group chains
// =============================================================================

func TestAdd_ChainedGroupsStayOrdered(t *testing.T) {
	st := newStack("bg", "water", "labels")
	r := New(st, quiet())
	require.NoError(t, r.RegisterGroup("g3", ir.Above("water")))
	require.NoError(t, r.RegisterGroup("g2", ir.Above("group:g3")))
	require.NoError(t, r.RegisterGroup("g1", ir.Above("group:g2")))

	require.NoError(t, r.Add(layer("a"), "g3"))
	require.NoError(t, r.Add(layer("b"), "g2"))

	idx, before, err := r.InsertionPoint("g1")
	require.NoError(t, err)
	g2, err := r.Bounds("g2")
	require.NoError(t, err)
	g3, err := r.Bounds("g3")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, idx, g2.Hi-1)
	assert.GreaterOrEqual(t, idx, g3.Hi-1)
	assert.Equal(t, "labels", before)

	require.NoError(t, r.Add(layer("c"), "g1"))
	// A later member of the lowest group lands directly after its group.
	require.NoError(t, r.Add(layer("a2"), "g3"))

	assert.Equal(t, []string{"bg", "water", "a", "a2", "b", "c", "labels"}, st.ids)
}

func TestBounds_ExistingMembers(t *testing.T) {
	st := newStack("bg", "x1", "other", "x2", "labels")
	r := New(st, quiet())
	require.NoError(t, r.RegisterGroup("x", ir.Above(ir.Wildcard)))
	// Register membership without inserting: both are already present.
	require.NoError(t, r.Add(layer("x1"), "x"))
	require.NoError(t, r.Add(layer("x2"), "x"))

	b, err := r.Bounds("x")
	require.NoError(t, err)
	assert.Equal(t, Bounds{Lo: 1, Hi: 4}, b)
	assert.Equal(t, "[1, 4)", b.String())
}

func TestBounds_EmptyGroup(t *testing.T) {
	st := newStack("bg", "labels")
	r := New(st, quiet())
	require.NoError(t, r.RegisterGroup("x", ir.Below("labels")))

	b, err := r.Bounds("x")
	require.NoError(t, err)
	assert.Equal(t, Bounds{Lo: 1, Hi: 1}, b)
}

// =============================================================================
// Cycles
// =============================================================================

func TestBounds_TwoGroupCycle(t *testing.T) {
	r := New(newStack("bg"), quiet())
	require.NoError(t, r.RegisterGroup("A", ir.Above("group:B")))
	require.NoError(t, r.RegisterGroup("B", ir.Above("group:A")))

	_, err := r.Bounds("A")
	require.Error(t, err)
	assert.True(t, IsCycleError(err))
	assert.Contains(t, err.Error(), "A -> B -> A")

	var oe *Error
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, []string{"A", "B", "A"}, oe.Chain)
}

func TestAdd_CycleLeavesTargetUntouched(t *testing.T) {
	st := newStack("bg")
	r := New(st, quiet())
	require.NoError(t, r.RegisterGroup("A", ir.Below("group:C")))
	require.NoError(t, r.RegisterGroup("B", ir.Above("group:A")))
	require.NoError(t, r.RegisterGroup("C", ir.Above("group:B")))

	err := r.Add(layer("x"), "B")
	require.Error(t, err)
	assert.True(t, IsCycleError(err))
	assert.Contains(t, err.Error(), "B -> A -> C -> B")
	assert.Equal(t, []string{"bg"}, st.ids)
}

func TestBounds_PresentMemberBreaksCycle(t *testing.T) {
	st := newStack("bg", "a1")
	r := New(st, quiet())
	require.NoError(t, r.RegisterGroup("A", ir.Above("group:B")))
	require.NoError(t, r.RegisterGroup("B", ir.Above("group:A")))
	require.NoError(t, r.Add(layer("a1"), "A"))

	// A has a member on the target, so its bounds never consult B.
	b, err := r.Bounds("B")
	require.NoError(t, err)
	assert.Equal(t, Bounds{Lo: 2, Hi: 2}, b)
}

// =============================================================================
// Registry
// =============================================================================

func TestRegisterGroup_Rejects(t *testing.T) {
	r := New(newStack(), quiet())

	err := r.RegisterGroup("", ir.Above(ir.Wildcard))
	assert.True(t, IsInvalidGroupError(err))

	err = r.RegisterGroup(ir.UnassignedGroup, ir.Above(ir.Wildcard))
	assert.True(t, IsInvalidGroupError(err))

	err = r.RegisterGroup("x", ir.Ordering{Direction: "beside", Anchor: "*"})
	assert.True(t, IsInvalidGroupError(err))
	assert.False(t, r.HasGroup("x"))
}

func TestGroupNames(t *testing.T) {
	r := New(newStack(), quiet())
	assert.Empty(t, r.GroupNames())

	require.NoError(t, r.RegisterGroup("b", ir.Above(ir.Wildcard)))
	require.NoError(t, r.RegisterGroup("a", ir.Below(ir.Wildcard)))
	assert.Equal(t, []string{"a", "b"}, r.GroupNames())
}

func TestRegisterGroup_ReRegisterKeepsMembers(t *testing.T) {
	st := newStack("bg")
	r := New(st, quiet())
	require.NoError(t, r.RegisterGroup("x", ir.Above(ir.Wildcard)))
	require.NoError(t, r.Add(layer("x1"), "x"))

	require.NoError(t, r.RegisterGroup("x", ir.Below(ir.Wildcard)))

	g := r.Group("x")
	assert.Equal(t, ir.Below(ir.Wildcard), g.Ordering)
	require.Len(t, g.Layers, 1)
	assert.Equal(t, "x1", g.Layers[0].ID)
}

func TestAdd_UnknownGroupUsesUnassigned(t *testing.T) {
	var buf bytes.Buffer
	st := newStack("bg")
	r := New(st, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	require.NoError(t, r.Add(layer("orphan"), "nope"))

	assert.Equal(t, []string{"bg", "orphan"}, st.ids)
	assert.Equal(t, ir.UnassignedGroup, r.Group("nope").Name)
	assert.Contains(t, buf.String(), "layer group not registered")
}

func TestAdd_GroupAnchorToUnknownGroupUsesUnassigned(t *testing.T) {
	st := newStack("bg", "orphan", "labels")
	r := New(st, quiet())
	require.NoError(t, r.Add(layer("orphan"), ""))
	require.NoError(t, r.RegisterGroup("x", ir.Below("group:missing")))

	require.NoError(t, r.Add(layer("x1"), "x"))

	assert.Equal(t, []string{"bg", "x1", "orphan", "labels"}, st.ids)
}

func TestUnregisterGroup(t *testing.T) {
	r := New(newStack(), quiet())
	require.NoError(t, r.RegisterGroup("x", ir.Above(ir.Wildcard)))

	assert.True(t, r.UnregisterGroup("x"))
	assert.False(t, r.UnregisterGroup("x"))
	assert.False(t, r.HasGroup("x"))
}

// =============================================================================
// Insertion and removal
// =============================================================================

func TestAdd_InsertsAboveGroupTop(t *testing.T) {
	st := newStack("bg", "labels")
	r := New(st, quiet())
	require.NoError(t, r.RegisterGroup("x", ir.Above("bg")))

	require.NoError(t, r.Add(layer("x1"), "x"))
	require.NoError(t, r.Add(layer("x2"), "x"))
	require.NoError(t, r.Add(layer("x3"), "x"))

	assert.Equal(t, []string{"bg", "x1", "x2", "x3", "labels"}, st.ids)
}

func TestAdd_FailedInsertionDoesNotStopOthers(t *testing.T) {
	var buf bytes.Buffer
	st := newStack("bg")
	st.fail["bad"] = errors.New("malformed paint")
	r := New(st, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	require.NoError(t, r.RegisterGroup("x", ir.Above(ir.Wildcard)))

	require.NoError(t, r.Add(layer("bad"), "x"))
	require.NoError(t, r.Add(layer("good"), "x"))

	assert.Equal(t, []string{"bg", "good"}, st.ids)
	assert.Equal(t, []string{"bad", "good"}, st.added, "a failed member is not retried by its siblings")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("add layer failed")))
}

func TestForget_FailedMemberIsNotReinserted(t *testing.T) {
	st := newStack("bg")
	st.fail["z"] = errors.New("malformed paint")
	r := New(st, quiet())
	require.NoError(t, r.RegisterGroup("g", ir.Above(ir.Wildcard)))
	require.NoError(t, r.Add(layer("z"), "g"))

	r.Forget("z")
	delete(st.fail, "z")
	require.NoError(t, r.Add(layer("w"), "g"))

	assert.Equal(t, []string{"bg", "w"}, st.ids)
	assert.Empty(t, st.removed)
	assert.Equal(t, []ir.Layer{layer("w")}, r.Group("g").Layers)
}

func TestRemove_ForgetsMembership(t *testing.T) {
	st := newStack("bg")
	r := New(st, quiet())
	require.NoError(t, r.RegisterGroup("x", ir.Above(ir.Wildcard)))
	require.NoError(t, r.Add(layer("x1"), "x"))

	require.NoError(t, r.Remove("x1"))

	assert.Empty(t, r.Group("x").Layers)
	assert.Equal(t, []string{"bg"}, st.ids)
	assert.Equal(t, []string{"x1"}, st.removed)
}
