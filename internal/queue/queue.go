// Package queue defers operations until the render target reaches a
// readiness condition.
//
// Operations run synchronously on Add when their condition already holds.
// Otherwise they wait in FIFO order and are retried on every Flush; an
// operation whose condition still fails keeps its place in the queue.
package queue

import (
	"log/slog"

	"github.com/team-wildflyer/mapsync/internal/lifecycle"
)

// Condition decides whether an operation may run against the current
// lifecycle snapshot.
type Condition func(lifecycle.Snapshot) bool

// Loaded holds once the target has finished loading its style.
func Loaded() Condition {
	return func(s lifecycle.Snapshot) bool { return s.Loaded }
}

// Idle holds once the target has rendered its first complete frame.
func Idle() Condition {
	return func(s lifecycle.Snapshot) bool { return s.Idle }
}

// Exactly holds while the derived status equals want.
func Exactly(want lifecycle.Status) Condition {
	return func(s lifecycle.Snapshot) bool { return s.Status == want }
}

// AtLeast holds once the target has progressed to want along
// Uninitialized -> Loaded -> Idle. Error and Disposed never satisfy it.
func AtLeast(want lifecycle.Status) Condition {
	return func(s lifecycle.Snapshot) bool {
		switch want {
		case lifecycle.Uninitialized:
			return s.Status != lifecycle.Disposed
		case lifecycle.Loaded:
			return s.Loaded && s.Status != lifecycle.Error
		case lifecycle.Idle:
			return s.Idle && s.Status != lifecycle.Error
		default:
			return s.Status == want
		}
	}
}

// All holds when every condition holds.
func All(conds ...Condition) Condition {
	return func(s lifecycle.Snapshot) bool {
		for _, c := range conds {
			if !c(s) {
				return false
			}
		}
		return true
	}
}

// Operation is a deferred unit of work.
type Operation struct {
	Name      string
	Condition Condition
	Fn        func()
}

// StateFunc reports the lifecycle snapshot the queue evaluates against.
type StateFunc func() lifecycle.Snapshot

// Queue is an ordered list of operations waiting on readiness conditions.
//
// Queue is not safe for concurrent use. The engine owns one queue and calls
// it with its own lock held.
type Queue struct {
	state    StateFunc
	ops      []Operation
	disposed bool
	logger   *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used to report panicking conditions.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = l
	}
}

// New creates an empty queue bound to a state source.
func New(state StateFunc, opts ...Option) *Queue {
	q := &Queue{
		state:  state,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add runs fn now if cond holds, otherwise enqueues it. Returns true if fn
// ran. A disposed queue drops the operation.
func (q *Queue) Add(name string, cond Condition, fn func()) bool {
	if q.disposed {
		return false
	}
	op := Operation{Name: name, Condition: cond, Fn: fn}
	if q.ready(op) {
		op.Fn()
		return true
	}
	q.ops = append(q.ops, op)
	return false
}

// Flush runs every queued operation whose condition now holds, in insertion
// order, and returns how many ran.
//
// Operations added while flushing are appended behind the ones still waiting
// and are considered in the same flush. Operations that are not ready keep
// their relative order.
func (q *Queue) Flush() int {
	ran := 0
	var deferred []Operation
	for len(q.ops) > 0 && !q.disposed {
		op := q.ops[0]
		// Clear the slot so the closure can be collected once it ran.
		q.ops[0] = Operation{}
		q.ops = q.ops[1:]

		if !q.ready(op) {
			deferred = append(deferred, op)
			continue
		}
		op.Fn()
		ran++
	}
	if q.disposed {
		return ran
	}
	q.ops = deferred
	return ran
}

// Len reports how many operations are waiting.
func (q *Queue) Len() int {
	return len(q.ops)
}

// Pending returns the names of the waiting operations in order.
func (q *Queue) Pending() []string {
	names := make([]string, len(q.ops))
	for i, op := range q.ops {
		names[i] = op.Name
	}
	return names
}

// Dispose drops all waiting operations. Later Add and Flush calls are no-ops.
func (q *Queue) Dispose() {
	q.disposed = true
	q.ops = nil
}

// Disposed reports whether Dispose was called.
func (q *Queue) Disposed() bool {
	return q.disposed
}

func (q *Queue) ready(op Operation) (ok bool) {
	snap := q.state()
	if !snap.Attached {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			q.logger.Warn("operation condition panicked",
				"operation", op.Name,
				"panic", r,
			)
			ok = false
		}
	}()
	return op.Condition(snap)
}
