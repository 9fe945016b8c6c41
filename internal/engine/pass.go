package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/target"
)

// Pass triggers.
const (
	TriggerDebounce     = "debounce"
	TriggerManual       = "manual"
	TriggerLoad         = "load"
	TriggerStyleChange  = "style_change"
	TriggerFeatureState = "feature_state"
	TriggerPatchTiles   = "patch_tiles"
	TriggerReload       = "reload"
	TriggerLabels       = "labels"
	TriggerPaint        = "paint"
	TriggerStyle        = "style"
)

// Recorder journals passes. A failing recorder is logged and never aborts
// a pass.
type Recorder interface {
	RecordPass(ctx context.Context, rec ir.PassRecord) error
}

// MemoryRecorder keeps journaled passes in memory.
//
// Thread-safety: MemoryRecorder is safe for concurrent use via internal mutex.
type MemoryRecorder struct {
	mu     sync.Mutex
	passes []ir.PassRecord
}

// RecordPass implements Recorder.
func (r *MemoryRecorder) RecordPass(_ context.Context, rec ir.PassRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.Mutations = slices.Clone(rec.Mutations)
	r.passes = append(r.passes, rec)
	return nil
}

// Passes returns every recorded pass in order.
func (r *MemoryRecorder) Passes() []ir.PassRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.passes)
}

// PassesWithTrigger returns the recorded passes with the given trigger.
func (r *MemoryRecorder) PassesWithTrigger(trigger string) []ir.PassRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ir.PassRecord
	for _, p := range r.passes {
		if p.Trigger == trigger {
			out = append(out, p)
		}
	}
	return out
}

// MutationError is a failed render-target mutation.
type MutationError struct {
	Op  string
	ID  string
	Err error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// pass collects the mutations of one engine pass.
type pass struct {
	rec    ir.PassRecord
	errs   []error
	always bool
}

// beginPass opens a pass. Passes with always unset are only journaled when
// they mutated something. Caller holds e.mu.
func (e *Engine) beginPass(trigger string, always bool) *pass {
	p := &pass{
		rec: ir.PassRecord{
			Token:   e.tokens.Generate(),
			Seq:     e.clock.Next(),
			Trigger: trigger,
		},
		always: always,
	}
	e.pass = p
	e.logger.Debug("pass begin",
		"pass", p.rec.Token,
		"seq", p.rec.Seq,
		"trigger", trigger,
	)
	return p
}

// endPass closes p and journals it. Caller holds e.mu.
func (e *Engine) endPass(p *pass, err error) {
	if e.pass == p {
		e.pass = nil
	}
	if err != nil {
		p.rec.Error = err.Error()
	}

	added, removed := 0, 0
	for _, m := range p.rec.Mutations {
		switch m.Op {
		case target.OpAddLayer, target.OpAddSource:
			added++
		case target.OpRemoveLayer, target.OpRemoveSource:
			removed++
		}
	}
	e.logger.Debug("pass end",
		"pass", p.rec.Token,
		"seq", p.rec.Seq,
		"added", added,
		"removed", removed,
		"failed", len(p.errs),
	)

	if e.recorder == nil {
		return
	}
	if !p.always && len(p.rec.Mutations) == 0 && err == nil {
		return
	}
	if rerr := e.recorder.RecordPass(context.Background(), p.rec); rerr != nil {
		e.logger.Warn("journal write failed",
			"pass", p.rec.Token,
			"error", rerr,
		)
	}
}

// mutate runs one target mutation, journals it and logs a failure. The
// error is returned for callers that care; the pass goes on either way.
// Caller holds e.mu.
func (e *Engine) mutate(op, id, before string, fn func() error) error {
	err := e.record(op, id, before, fn())
	if err != nil {
		e.logger.Warn("render target mutation failed",
			"op", op,
			"id", id,
			"error", err,
		)
	}
	return err
}

// record journals a mutation outcome without logging it.
func (e *Engine) record(op, id, before string, err error) error {
	rec := ir.MutationRecord{Op: op, TargetID: id, Before: before}
	if err != nil {
		err = &MutationError{Op: op, ID: id, Err: err}
		rec.Error = err.Error()
	}
	if e.pass != nil {
		e.pass.rec.Mutations = append(e.pass.rec.Mutations, rec)
		if err != nil {
			e.pass.errs = append(e.pass.errs, err)
		}
	}
	return err
}

// passErrors joins the failed mutations of p.
func passErrors(p *pass) error {
	return errors.Join(p.errs...)
}

// passTarget is the view of the target handed to the ordering resolver.
// Its mutations land in the current pass.
type passTarget struct {
	e *Engine
}

func (t *passTarget) LayerIDs() []string {
	return t.e.target.LayerIDs()
}

// AddLayer journals the insertion. The resolver logs failures itself.
func (t *passTarget) AddLayer(layer ir.Layer, before string) error {
	return t.e.record(target.OpAddLayer, layer.ID, before, t.e.target.AddLayer(layer, before))
}

// RemoveLayer skips layers that are not on the target, so removing an id
// that was never added issues no call.
func (t *passTarget) RemoveLayer(id string) error {
	if !t.e.target.HasLayer(id) {
		return nil
	}
	return t.e.mutate(target.OpRemoveLayer, id, "", func() error {
		return t.e.target.RemoveLayer(id)
	})
}
