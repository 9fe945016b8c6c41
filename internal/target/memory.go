package target

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/team-wildflyer/mapsync/internal/ir"
)

// Call is one recorded mutation against a Memory target.
type Call struct {
	Op     string `json:"op" yaml:"op"`
	ID     string `json:"id" yaml:"id"`
	Before string `json:"before,omitempty" yaml:"before,omitempty"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Call operations.
const (
	OpAddLayer        = "add_layer"
	OpRemoveLayer     = "remove_layer"
	OpAddSource       = "add_source"
	OpRemoveSource    = "remove_source"
	OpSetTiles        = "set_tiles"
	OpSetData         = "set_data"
	OpSetFeatureState = "set_feature_state"
	OpSetLayout       = "set_layout"
	OpSetPaint        = "set_paint"
	OpSetStyle        = "set_style"
)

// String renders the call as "op id [before=x] [detail]".
func (c Call) String() string {
	var b strings.Builder
	b.WriteString(c.Op)
	b.WriteByte(' ')
	b.WriteString(c.ID)
	if c.Before != "" {
		b.WriteString(" before=")
		b.WriteString(c.Before)
	}
	if c.Detail != "" {
		b.WriteByte(' ')
		b.WriteString(c.Detail)
	}
	return b.String()
}

// Style is a named base style: the layers and sources a style swap loads.
type Style struct {
	Name    string
	Layers  []ir.Layer
	Sources map[string]ir.SourceSpec
}

type memSource struct {
	spec   ir.SourceSpec
	loaded bool
}

type memSub struct {
	m       *Memory
	kind    EventKind
	layerID string
	h       Handler
	active  bool
}

// Memory is an in-process render target.
//
// It keeps an ordered layer stack, sources with loaded flags, feature state,
// layout and paint properties, and layer-scoped event subscriptions. Every
// mutation is appended to a call log. Failures can be injected per id.
//
// Thread-safety: All methods are safe for concurrent use. Event handlers run
// without the target lock held.
type Memory struct {
	mu sync.Mutex

	layers      []ir.Layer
	sources     map[string]*memSource
	sourceOrder []string
	states      map[string]ir.FeatureState
	style       string
	styles      map[string]Style
	cursor      string
	subs        []*memSub

	tilePatching map[string]bool
	dataPatching map[string]bool
	autoLoad     bool

	failAddLayer  map[string]error
	failAddSource map[string]error

	calls []Call
}

// MemoryOption configures a Memory target.
type MemoryOption func(*Memory)

// WithStyles registers styles a later SetStyle can load. The first one is
// loaded immediately.
func WithStyles(styles ...Style) MemoryOption {
	return func(m *Memory) {
		for i, s := range styles {
			m.styles[s.Name] = s
			if i == 0 {
				m.loadStyle(s)
			}
		}
	}
}

// WithBaseLayers seeds the stack with plain layers not owned by anyone.
func WithBaseLayers(ids ...string) MemoryOption {
	return func(m *Memory) {
		for _, id := range ids {
			m.layers = append(m.layers, ir.Layer{ID: id, Type: "background"})
		}
	}
}

// WithTilePatching sets the source types whose tiles can be patched in
// place. Defaults to vector and raster.
func WithTilePatching(types ...string) MemoryOption {
	return func(m *Memory) {
		m.tilePatching = setOf(types)
	}
}

// WithDataPatching sets the source types whose data can be patched in
// place. Defaults to geojson.
func WithDataPatching(types ...string) MemoryOption {
	return func(m *Memory) {
		m.dataPatching = setOf(types)
	}
}

// WithAutoLoad controls whether added sources report loaded immediately.
// Defaults to true.
func WithAutoLoad(auto bool) MemoryOption {
	return func(m *Memory) {
		m.autoLoad = auto
	}
}

// NewMemory creates an empty in-memory target.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		sources:       make(map[string]*memSource),
		states:        make(map[string]ir.FeatureState),
		styles:        make(map[string]Style),
		tilePatching:  setOf([]string{"vector", "raster"}),
		dataPatching:  setOf([]string{"geojson"}),
		autoLoad:      true,
		failAddLayer:  make(map[string]error),
		failAddSource: make(map[string]error),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func setOf(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}

// =============================================================================
// Target implementation
// =============================================================================

// LayerIDs implements Target.
func (m *Memory) LayerIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.layers))
	for i, l := range m.layers {
		ids[i] = l.ID
	}
	return ids
}

// SourceIDs implements Target.
func (m *Memory) SourceIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sourceOrder)
}

// HasLayer implements Target.
func (m *Memory) HasLayer(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.layerIndex(id) >= 0
}

// AddLayer implements Target.
func (m *Memory) AddLayer(layer ir.Layer, before string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failAddLayer[layer.ID]; err != nil {
		return err
	}
	if layer.ID == "" {
		return errors.New("layer id is empty")
	}
	if m.layerIndex(layer.ID) >= 0 {
		return fmt.Errorf("layer %q already exists", layer.ID)
	}
	if layer.Source != "" {
		if _, ok := m.sources[layer.Source]; !ok {
			return fmt.Errorf("layer %q: source %q not found", layer.ID, layer.Source)
		}
	}
	idx := len(m.layers)
	if before != "" {
		idx = m.layerIndex(before)
		if idx < 0 {
			return fmt.Errorf("layer %q: before layer %q not found", layer.ID, before)
		}
	}
	m.layers = slices.Insert(m.layers, idx, layer)
	m.record(Call{Op: OpAddLayer, ID: layer.ID, Before: before})
	return nil
}

// RemoveLayer implements Target.
func (m *Memory) RemoveLayer(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.layerIndex(id)
	if idx < 0 {
		return fmt.Errorf("layer %q not found", id)
	}
	m.layers = slices.Delete(m.layers, idx, idx+1)
	m.record(Call{Op: OpRemoveLayer, ID: id})
	return nil
}

// AddSource implements Target.
func (m *Memory) AddSource(id string, spec ir.SourceSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failAddSource[id]; err != nil {
		return err
	}
	if _, ok := m.sources[id]; ok {
		return fmt.Errorf("source %q already exists", id)
	}
	m.sources[id] = &memSource{spec: spec, loaded: m.autoLoad}
	m.sourceOrder = append(m.sourceOrder, id)
	m.record(Call{Op: OpAddSource, ID: id, Detail: strings.Join(spec.Tiles, ",")})
	return nil
}

// RemoveSource implements Target. A source still used by a layer cannot be
// removed. Feature state of the source is discarded with it.
func (m *Memory) RemoveSource(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sources[id]; !ok {
		return fmt.Errorf("source %q not found", id)
	}
	if deps := m.dependents(id); len(deps) > 0 {
		return fmt.Errorf("source %q is used by layers %v", id, deps)
	}
	delete(m.sources, id)
	m.sourceOrder = slices.DeleteFunc(m.sourceOrder, func(s string) bool { return s == id })
	maps.DeleteFunc(m.states, func(key string, _ ir.FeatureState) bool {
		return strings.HasPrefix(key, id+":")
	})
	m.record(Call{Op: OpRemoveSource, ID: id})
	return nil
}

// Source implements Target.
func (m *Memory) Source(id string) (Source, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[id]
	if !ok {
		return nil, false
	}
	base := memSourceRef{m: m, id: id}
	switch {
	case m.tilePatching[src.spec.Type]:
		return tileSourceRef{base}, true
	case m.dataPatching[src.spec.Type]:
		return dataSourceRef{base}, true
	default:
		return base, true
	}
}

// LayerDependents implements Target.
func (m *Memory) LayerDependents(sourceID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dependents(sourceID)
}

// FeatureState implements Target.
func (m *Memory) FeatureState(f ir.FeatureID) ir.FeatureState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.states[f.Key()])
}

// SetFeatureState implements Target. The state is merged into the stored one.
func (m *Memory) SetFeatureState(f ir.FeatureID, state ir.FeatureState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sources[f.Source]; !ok {
		return fmt.Errorf("feature %s: source %q not found", f.Key(), f.Source)
	}
	m.states[f.Key()] = m.states[f.Key()].Merge(state)
	detail, err := ir.MarshalCanonical(state)
	if err != nil {
		return fmt.Errorf("feature %s: %w", f.Key(), err)
	}
	m.record(Call{Op: OpSetFeatureState, ID: f.Key(), Detail: string(detail)})
	return nil
}

// SetLayoutProperty implements Target.
func (m *Memory) SetLayoutProperty(layerID, name string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.layerIndex(layerID)
	if idx < 0 {
		return fmt.Errorf("layer %q not found", layerID)
	}
	l := &m.layers[idx]
	l.Layout = maps.Clone(l.Layout)
	if l.Layout == nil {
		l.Layout = make(map[string]any)
	}
	l.Layout[name] = value
	m.record(Call{Op: OpSetLayout, ID: layerID, Detail: fmt.Sprintf("%s=%v", name, value)})
	return nil
}

// SetPaintProperty implements Target.
func (m *Memory) SetPaintProperty(layerID, name string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.layerIndex(layerID)
	if idx < 0 {
		return fmt.Errorf("layer %q not found", layerID)
	}
	l := &m.layers[idx]
	l.Paint = maps.Clone(l.Paint)
	if l.Paint == nil {
		l.Paint = make(map[string]any)
	}
	l.Paint[name] = value
	detail, err := ir.MarshalCanonical(value)
	if err != nil {
		detail = []byte(fmt.Sprint(value))
	}
	m.record(Call{Op: OpSetPaint, ID: layerID, Detail: name + "=" + string(detail)})
	return nil
}

// Style implements Target.
func (m *Memory) Style() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.style
}

// SetStyle implements Target. A registered style replaces every layer and
// source with its own; an unknown one leaves the target empty.
func (m *Memory) SetStyle(style string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.styles[style]
	if !ok {
		s = Style{Name: style}
	}
	m.loadStyle(s)
	m.record(Call{Op: OpSetStyle, ID: style})
	return nil
}

// Subscribe implements Target.
func (m *Memory) Subscribe(kind EventKind, layerID string, h Handler) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := &memSub{m: m, kind: kind, layerID: layerID, h: h, active: true}
	m.subs = append(m.subs, sub)
	return sub
}

// Unsubscribe implements Subscription.
func (s *memSub) Unsubscribe() {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	s.active = false
	s.m.subs = slices.DeleteFunc(s.m.subs, func(o *memSub) bool { return o == s })
}

// SetCursor implements Target.
func (m *Memory) SetCursor(cursor string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = cursor
}

// =============================================================================
// Sources
// =============================================================================

type memSourceRef struct {
	m  *Memory
	id string
}

func (s memSourceRef) ID() string { return s.id }

func (s memSourceRef) Type() string {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if src, ok := s.m.sources[s.id]; ok {
		return src.spec.Type
	}
	return ""
}

func (s memSourceRef) Loaded() bool {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	src, ok := s.m.sources[s.id]
	return ok && src.loaded
}

type tileSourceRef struct{ memSourceRef }

func (s tileSourceRef) SetTiles(tiles []string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	src, ok := s.m.sources[s.id]
	if !ok {
		return fmt.Errorf("source %q not found", s.id)
	}
	src.spec.Tiles = slices.Clone(tiles)
	s.m.record(Call{Op: OpSetTiles, ID: s.id, Detail: strings.Join(tiles, ",")})
	return nil
}

type dataSourceRef struct{ memSourceRef }

func (s dataSourceRef) SetData(data any) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	src, ok := s.m.sources[s.id]
	if !ok {
		return fmt.Errorf("source %q not found", s.id)
	}
	src.spec.Data = data
	s.m.record(Call{Op: OpSetData, ID: s.id})
	return nil
}

// =============================================================================
// Test controls
// =============================================================================

// FailAddLayer makes every AddLayer of id fail with err. A nil err clears it.
func (m *Memory) FailAddLayer(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failAddLayer, id)
		return
	}
	m.failAddLayer[id] = err
}

// FailAddSource makes every AddSource of id fail with err. A nil err clears it.
func (m *Memory) FailAddSource(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failAddSource, id)
		return
	}
	m.failAddSource[id] = err
}

// SetSourceLoaded flips the loaded flag of a source. Returns false if the
// source does not exist.
func (m *Memory) SetSourceLoaded(id string, loaded bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[id]
	if ok {
		src.loaded = loaded
	}
	return ok
}

// Calls returns a copy of the call log.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallsOf returns the recorded calls with the given op.
func (m *Memory) CallsOf(op string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Layer returns the layer as currently stored, including property changes.
func (m *Memory) Layer(id string) (ir.Layer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.layerIndex(id)
	if idx < 0 {
		return ir.Layer{}, false
	}
	return m.layers[idx], true
}

// SourceSpec returns the spec of a source as currently stored.
func (m *Memory) SourceSpec(id string) (ir.SourceSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[id]
	if !ok {
		return ir.SourceSpec{}, false
	}
	return src.spec, true
}

// Cursor returns the current cursor.
func (m *Memory) Cursor() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// Subscriptions counts live subscriptions for a layer.
func (m *Memory) Subscriptions(layerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subs {
		if s.layerID == layerID {
			n++
		}
	}
	return n
}

// Click dispatches a click on layerID with the given candidates and returns
// how many handlers ran.
func (m *Memory) Click(layerID string, features ...ir.Feature) int {
	return m.dispatch(Event{Kind: EventClick, LayerID: layerID, Features: features})
}

// Enter dispatches mouseenter on layerID.
func (m *Memory) Enter(layerID string, features ...ir.Feature) int {
	return m.dispatch(Event{Kind: EventMouseEnter, LayerID: layerID, Features: features})
}

// Leave dispatches mouseleave on layerID.
func (m *Memory) Leave(layerID string) int {
	return m.dispatch(Event{Kind: EventMouseLeave, LayerID: layerID})
}

func (m *Memory) dispatch(ev Event) int {
	m.mu.Lock()
	var handlers []Handler
	for _, s := range m.subs {
		if s.active && s.kind == ev.Kind && s.layerID == ev.LayerID {
			handlers = append(handlers, s.h)
		}
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
	return len(handlers)
}

// =============================================================================
// Helpers (caller holds mu)
// =============================================================================

func (m *Memory) layerIndex(id string) int {
	return slices.IndexFunc(m.layers, func(l ir.Layer) bool { return l.ID == id })
}

func (m *Memory) dependents(sourceID string) []string {
	var out []string
	for _, l := range m.layers {
		if l.Source == sourceID {
			out = append(out, l.ID)
		}
	}
	return out
}

func (m *Memory) loadStyle(s Style) {
	m.style = s.Name
	m.layers = slices.Clone(s.Layers)
	m.sources = make(map[string]*memSource, len(s.Sources))
	m.sourceOrder = nil
	for _, id := range slices.Sorted(maps.Keys(s.Sources)) {
		m.sources[id] = &memSource{spec: s.Sources[id], loaded: true}
		m.sourceOrder = append(m.sourceOrder, id)
	}
	m.states = make(map[string]ir.FeatureState)
}

func (m *Memory) record(c Call) {
	m.calls = append(m.calls, c)
}

var _ Target = (*Memory)(nil)
