// Package lifecycle models the readiness states of a render target.
//
// The states form a small machine:
//
//	Uninitialized -> Loaded -> Idle
//	Uninitialized | Loaded -> Error   (initialization errors)
//	any -> Disposed
//
// Errors raised after the target went idle are runtime errors, not
// initialization failures, and do not change the state. Transition hooks are
// how the engine learns it should flush deferred work.
package lifecycle

import "fmt"

// Status is the derived readiness of the render target.
type Status int

const (
	Uninitialized Status = iota
	Loaded
	Idle
	Error
	Disposed
)

func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loaded:
		return "loaded"
	case Idle:
		return "idle"
	case Error:
		return "error"
	case Disposed:
		return "disposed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus converts a status name back into a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "uninitialized":
		return Uninitialized, nil
	case "loaded":
		return Loaded, nil
	case "idle":
		return Idle, nil
	case "error":
		return Error, nil
	case "disposed":
		return Disposed, nil
	default:
		return Uninitialized, fmt.Errorf("unknown status %q", s)
	}
}

// Snapshot is the view of the machine that readiness conditions see.
//
// Loaded and Idle are sticky flags: a target that failed during
// initialization but still finished loading reports Status Error with
// Loaded true.
type Snapshot struct {
	Status   Status
	Loaded   bool
	Idle     bool
	Attached bool
}

// Hook observes a status transition.
type Hook func(from, to Status)

// Machine tracks the lifecycle of one render target.
//
// Machine is not safe for concurrent use; the owning engine serializes access.
type Machine struct {
	attached bool
	loaded   bool
	idle     bool
	disposed bool
	errs     []error
	hooks    []Hook
}

// New creates a machine in the Uninitialized state. attached reports whether
// a render target exists at all.
func New(attached bool) *Machine {
	return &Machine{attached: attached}
}

// OnTransition registers a hook fired after every status change.
func (m *Machine) OnTransition(h Hook) {
	m.hooks = append(m.hooks, h)
}

// Status derives the current status from the recorded flags.
func (m *Machine) Status() Status {
	switch {
	case m.disposed:
		return Disposed
	case len(m.errs) > 0:
		return Error
	case m.idle:
		return Idle
	case m.loaded:
		return Loaded
	default:
		return Uninitialized
	}
}

// Snapshot returns the condition view of the machine.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		Status:   m.Status(),
		Loaded:   m.loaded,
		Idle:     m.idle,
		Attached: m.attached && !m.disposed,
	}
}

// Errors returns the initialization errors recorded so far.
func (m *Machine) Errors() []error {
	out := make([]error, len(m.errs))
	copy(out, m.errs)
	return out
}

// Attach marks the render target as present (or absent).
func (m *Machine) Attach(attached bool) {
	m.attached = attached
}

// Load records the load event. Returns false if the target was already
// loaded or the machine is disposed.
func (m *Machine) Load() bool {
	if m.loaded || m.disposed {
		return false
	}
	m.transition(func() { m.loaded = true })
	return true
}

// Idle records the first idle event. Returns false if already idle, not yet
// loaded, or disposed.
func (m *Machine) Idle() bool {
	if m.idle || !m.loaded || m.disposed {
		return false
	}
	m.transition(func() { m.idle = true })
	return true
}

// Fail records an error. Before the target goes idle the error is an
// initialization failure and moves the machine to Error (returns true);
// afterwards it is left to the caller to log (returns false).
func (m *Machine) Fail(err error) bool {
	if m.idle || m.disposed || err == nil {
		return false
	}
	m.transition(func() { m.errs = append(m.errs, err) })
	return true
}

// Reset returns a live machine to Uninitialized, for a target that is torn
// down and created again. Disposed machines stay disposed.
func (m *Machine) Reset() {
	if m.disposed {
		return
	}
	m.transition(func() {
		m.loaded = false
		m.idle = false
		m.errs = nil
	})
}

// Dispose moves the machine to Disposed permanently.
func (m *Machine) Dispose() {
	if m.disposed {
		return
	}
	m.transition(func() { m.disposed = true })
}

func (m *Machine) transition(apply func()) {
	from := m.Status()
	apply()
	to := m.Status()
	if from == to {
		return
	}
	for _, h := range m.hooks {
		h(from, to)
	}
}
