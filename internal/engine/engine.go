package engine

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/lifecycle"
	"github.com/team-wildflyer/mapsync/internal/ordering"
	"github.com/team-wildflyer/mapsync/internal/queue"
	"github.com/team-wildflyer/mapsync/internal/schedule"
	"github.com/team-wildflyer/mapsync/internal/target"
)

// DefaultDebounce is the quiet window coalescing registrations into one pass.
const DefaultDebounce = 16 * time.Millisecond

// Disposer undoes a registration. Calling it more than once is harmless.
type Disposer func()

func noopDisposer() {}

// LayerOptions places a layer or polygon in a group. An empty or unknown
// group means the unassigned group, anchored on top.
type LayerOptions struct {
	Group string `json:"group,omitempty" yaml:"group,omitempty"`
}

// ClickListener receives clicks on a backing layer together with the
// feature selected for this click.
type ClickListener func(ev target.Event, feature ir.Feature)

// BackgroundHook returns the top background layer id of a style, or "".
type BackgroundHook func(style string) string

// DefaultBackground knows the two base style families: OpenStreetMap styles
// end their background with "Disputed border", the others with
// "Country border".
func DefaultBackground(style string) string {
	if strings.Contains(strings.ToLower(style), "openstreetmap") {
		return "Disputed border"
	}
	return "Country border"
}

type sourceEntry struct {
	url  string
	spec ir.SourceSpec
}

type layerEntry struct {
	parent  string
	layer   ir.Layer
	options LayerOptions
}

// Engine reconciles declared layers and sources onto a render target.
type Engine struct {
	mu sync.Mutex

	target     target.Target
	logger     *slog.Logger
	scheduler  schedule.Scheduler
	debounce   time.Duration
	background BackgroundHook
	recorder   Recorder
	tokens     PassTokenGenerator
	clock      *Clock

	machine  *lifecycle.Machine
	queue    *queue.Queue
	ordering *ordering.Resolver

	syncTimer    *schedule.Debouncer
	styleTimer   *schedule.Debouncer
	syncQueued   bool
	fsQueued     bool
	labelsQueued bool

	sources    *registry[sourceEntry]
	layers     *registry[layerEntry]
	polygons   *registry[*polygonEntry]
	backing    *registry[ir.Layer]
	directives *registry[*directive]

	unmanagedLayers  map[string]bool
	unmanagedSources map[string]bool

	clickListeners map[string]ClickListener
	bindings       map[string][]target.Subscription
	prevClickKey   string
	lastHover      *ir.FeatureID

	labelsVisible bool
	style         string
	currentStyle  string

	pass          *pass
	lastSyncErr   error
	lastMutations error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithDebounce sets the quiet window of the coalesced sync.
// Default: 16ms (DefaultDebounce).
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		e.debounce = d
	}
}

// WithScheduler sets the timer source. Tests pass a
// testutil.ManualScheduler.
func WithScheduler(s schedule.Scheduler) Option {
	return func(e *Engine) {
		e.scheduler = s
	}
}

// WithBackgroundHook sets how "$background" anchors resolve for a style.
func WithBackgroundHook(h BackgroundHook) Option {
	return func(e *Engine) {
		e.background = h
	}
}

// WithRecorder journals every pass.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithPassTokens sets the pass token generator. Default: UUIDv7Generator.
func WithPassTokens(g PassTokenGenerator) Option {
	return func(e *Engine) {
		e.tokens = g
	}
}

// WithClock sets the logical clock numbering passes.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an engine driving t. The engine starts Uninitialized; the
// embedder reports target lifecycle events through the Handle* methods.
func New(t target.Target, opts ...Option) *Engine {
	e := &Engine{
		target:           t,
		logger:           slog.Default(),
		scheduler:        schedule.Real{},
		debounce:         DefaultDebounce,
		background:       DefaultBackground,
		tokens:           UUIDv7Generator{},
		clock:            NewClock(),
		sources:          newRegistry[sourceEntry](),
		layers:           newRegistry[layerEntry](),
		polygons:         newRegistry[*polygonEntry](),
		backing:          newRegistry[ir.Layer](),
		directives:       newRegistry[*directive](),
		unmanagedLayers:  make(map[string]bool),
		unmanagedSources: make(map[string]bool),
		clickListeners:   make(map[string]ClickListener),
		bindings:         make(map[string][]target.Subscription),
		labelsVisible:    true,
	}
	for _, opt := range opts {
		opt(e)
	}

	if t != nil {
		e.style = t.Style()
		e.currentStyle = e.style
	}

	e.machine = lifecycle.New(t != nil)
	e.queue = queue.New(e.machine.Snapshot, queue.WithLogger(e.logger))
	e.machine.OnTransition(func(from, to lifecycle.Status) {
		e.logger.Debug("lifecycle transition", "from", from, "to", to)
		if to == lifecycle.Loaded || to == lifecycle.Idle {
			e.queue.Flush()
		}
	})

	e.ordering = ordering.New(&passTarget{e: e},
		ordering.WithLogger(e.logger),
		ordering.WithBackground(func() string {
			if e.background == nil {
				return ""
			}
			return e.background(e.style)
		}),
	)

	e.syncTimer = schedule.NewDebouncer(e.scheduler, e.debounce)
	e.styleTimer = schedule.NewDebouncer(e.scheduler, e.debounce)
	return e
}

// Status returns the lifecycle status of the target.
func (e *Engine) Status() lifecycle.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine.Status()
}

// PendingOperations returns the names of queued operations, oldest first.
func (e *Engine) PendingOperations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Pending()
}

// LastSyncError returns the configuration error that aborted the most recent
// sync pass, or nil if it completed.
func (e *Engine) LastSyncError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncErr
}

// LastMutationErrors returns the failed mutations of the most recent sync
// pass joined into one error, or nil.
func (e *Engine) LastMutationErrors() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastMutations
}

// Dispose stops all timers, drops queued work and unbinds listeners. Layers
// already on the target are left alone. Every later call is a no-op.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed() {
		return
	}
	e.syncTimer.Stop()
	e.styleTimer.Stop()
	e.queue.Dispose()
	for id := range e.bindings {
		e.tearDownInteraction(id)
	}
	e.machine.Dispose()
}

// disposed reports whether Dispose ran. Caller holds e.mu.
func (e *Engine) disposed() bool {
	return e.machine.Status() == lifecycle.Disposed
}

// attached reports whether there is a live target. Caller holds e.mu.
func (e *Engine) attached() bool {
	return e.target != nil && !e.disposed()
}
