// Package testutil holds deterministic stand-ins for time and identity used
// by tests, the scenario harness and the CLI simulator.
package testutil

import (
	"slices"
	"sync"
	"time"

	"github.com/team-wildflyer/mapsync/internal/schedule"
)

// ManualScheduler is a schedule.Scheduler driven by virtual time.
//
// Nothing fires until Advance is called. Due callbacks run on the goroutine
// calling Advance, in due-time order (ties in scheduling order), with no
// scheduler lock held, so a callback may schedule or stop other timers.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	s   *ManualScheduler
	due time.Duration
	seq int
	f   func()
}

// NewManualScheduler creates a scheduler at virtual time zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// AfterFunc implements schedule.Scheduler.
func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) schedule.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	t := &manualTimer{s: s, due: s.now + d, seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Stop implements schedule.Timer.
func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	idx := slices.Index(t.s.timers, t)
	if idx < 0 {
		return false
	}
	t.s.timers = slices.Delete(t.s.timers, idx, idx+1)
	return true
}

// Advance moves virtual time forward by d, firing every timer that falls
// due, and returns how many fired.
func (s *ManualScheduler) Advance(d time.Duration) int {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	fired := 0
	for {
		s.mu.Lock()
		next := s.nextDue(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return fired
		}
		s.now = next.due
		idx := slices.Index(s.timers, next)
		s.timers = slices.Delete(s.timers, idx, idx+1)
		s.mu.Unlock()

		next.f()
		fired++
	}
}

// Flush fires every pending timer, including ones scheduled by the timers
// it fires, advancing virtual time as far as needed.
func (s *ManualScheduler) Flush() int {
	fired := 0
	for {
		s.mu.Lock()
		if len(s.timers) == 0 {
			s.mu.Unlock()
			return fired
		}
		last := s.timers[0].due
		for _, t := range s.timers {
			last = max(last, t.due)
		}
		wait := last - s.now
		s.mu.Unlock()

		fired += s.Advance(wait)
	}
}

// Now returns the current virtual time.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending returns the number of timers waiting to fire.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// nextDue returns the earliest timer due at or before target. Caller holds mu.
func (s *ManualScheduler) nextDue(target time.Duration) *manualTimer {
	var best *manualTimer
	for _, t := range s.timers {
		if t.due > target {
			continue
		}
		if best == nil || t.due < best.due || (t.due == best.due && t.seq < best.seq) {
			best = t
		}
	}
	return best
}
