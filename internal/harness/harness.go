package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/team-wildflyer/mapsync/internal/engine"
	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/scene"
	"github.com/team-wildflyer/mapsync/internal/store"
	"github.com/team-wildflyer/mapsync/internal/target"
	"github.com/team-wildflyer/mapsync/internal/testutil"
)

// DefaultParent owns layers declared by ensure_layer steps without a
// parent.
const DefaultParent = "harness"

// Harness executes one scenario.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	target *target.Memory
	sched  *testutil.ManualScheduler
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory journal database and a fresh
// target. Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database and target
// 2. Compile and apply the scene, if any (trace step 0)
// 3. Execute steps in order (trace steps 1..n)
// 4. Evaluate assertions and return the result
//
// A returned error means the scenario could not be executed at all.
// Step and assertion failures are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with engine and harness logs going to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	var sc *scene.Scene
	if scenario.Scene != "" {
		sc, err = scene.Load(scenario.Scene)
		if err != nil {
			return nil, fmt.Errorf("failed to load scene: %w", err)
		}
		if errs := scene.Validate(sc); len(errs) > 0 {
			return nil, fmt.Errorf("invalid scene: %w", errs[0])
		}
	}

	tgt := target.NewMemory(target.WithStyles(styles(scenario, sc)...))
	sched := testutil.NewManualScheduler()
	eng := engine.New(tgt,
		engine.WithScheduler(sched),
		engine.WithLogger(logger),
		engine.WithRecorder(st),
		engine.WithPassTokens(testutil.NewSequentialTokens(scenario.Name)),
	)
	defer eng.Dispose()

	h := &Harness{
		store:  st,
		engine: eng,
		target: tgt,
		sched:  sched,
		logger: logger,
	}

	result := NewResult()
	if sc != nil {
		if _, err := scene.Apply(eng, sc); err != nil {
			return nil, fmt.Errorf("failed to apply scene: %w", err)
		}
		result.addCalls(0, h.drain())
	}

	for i, step := range scenario.Steps {
		err := h.execute(step)
		switch {
		case step.ExpectError != "" && err == nil:
			result.AddError(fmt.Sprintf("step %d (%s): expected error containing %q, got none", i+1, step.Do, step.ExpectError))
		case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
			result.AddError(fmt.Sprintf("step %d (%s): expected error containing %q, got %v", i+1, step.Do, step.ExpectError, err))
		case step.ExpectError == "" && err != nil:
			result.AddError(fmt.Sprintf("step %d (%s): %v", i+1, step.Do, err))
		}

		calls := h.drain()
		result.addCalls(i+1, calls)
		h.logger.Debug("step completed",
			"step", i+1,
			"do", step.Do,
			"calls", len(calls),
		)
	}
	result.Layers = tgt.LayerIDs()

	actx := &AssertionContext{
		Ctx:    context.Background(),
		Store:  st,
		Engine: eng,
		Target: tgt,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// styles builds the initial style (scene or scenario base layers) followed
// by the named extra styles in name order.
func styles(scenario *Scenario, sc *scene.Scene) []target.Style {
	initial := target.Style{}
	if sc != nil {
		initial = sc.BaseStyle()
	}
	if len(scenario.Base) > 0 {
		initial.Layers = plainLayers(scenario.Base)
	}

	out := []target.Style{initial}
	for _, name := range slices.Sorted(maps.Keys(scenario.Styles)) {
		out = append(out, target.Style{Name: name, Layers: plainLayers(scenario.Styles[name])})
	}
	return out
}

func plainLayers(ids []string) []ir.Layer {
	layers := make([]ir.Layer, len(ids))
	for i, id := range ids {
		layers[i] = ir.Layer{ID: id, Type: "background"}
	}
	return layers
}

// drain returns and clears the calls recorded since the last drain.
func (h *Harness) drain() []target.Call {
	calls := h.target.Calls()
	h.target.ResetCalls()
	return calls
}

// execute runs one step against the engine or the target.
func (h *Harness) execute(s Step) error {
	e, t := h.engine, h.target

	switch s.Do {
	case StepLoad:
		e.HandleLoad()
	case StepIdle:
		e.HandleIdle()
	case StepSourceData:
		e.HandleSourceData()
	case StepStyleChange:
		e.HandleStyleChange()
	case StepError:
		e.HandleError(errors.New(s.Error))
	case StepAdvance:
		d := engine.DefaultDebounce
		if s.Duration != "" {
			var err error
			if d, err = time.ParseDuration(s.Duration); err != nil {
				return err
			}
		}
		h.sched.Advance(d)
	case StepSync:
		return e.Sync()

	case StepRegisterGroup:
		o := ir.Above(s.Above)
		if s.Below != "" {
			o = ir.Below(s.Below)
		}
		_, err := e.RegisterGroup(s.ID, o)
		return err
	case StepUnregisterGroup:
		e.UnregisterGroup(s.ID)

	case StepEnsureSource:
		typ := s.Type
		if typ == "" {
			typ = "vector"
		}
		e.EnsureSource(s.ID, s.URL, ir.SourceSpec{Type: typ})
	case StepRemoveSource:
		e.RemoveSource(s.ID)
	case StepReloadSource:
		e.ReloadSource(s.ID)

	case StepEnsureLayer:
		parent := s.Parent
		if parent == "" {
			parent = DefaultParent
		}
		typ := s.Type
		if typ == "" {
			typ = "fill"
		}
		e.EnsureLayer(parent, ir.Layer{
			ID:          s.ID,
			Type:        typ,
			Source:      s.Source,
			SourceLayer: s.SourceLayer,
			Paint:       s.Paint,
			Layout:      s.Layout,
		}, engine.LayerOptions{Group: s.Group})
	case StepRemoveLayer:
		e.RemoveLayer(s.ID)
	case StepPaint:
		e.UpdateLayerPaint(s.ID, s.Paint)

	case StepPolygon:
		_, err := e.AddPolygon(s.ID, ir.Polygon{
			Geometry:  s.Geometry,
			Color:     s.Color,
			LineStyle: ir.LineStyle(s.LineStyle),
			Hover:     s.Hover,
		}, engine.LayerOptions{Group: s.Group})
		return err
	case StepRemovePolygon:
		e.RemovePolygon(s.ID)

	case StepFeatureState:
		f, err := parseFeature(s.Feature)
		if err != nil {
			return err
		}
		e.SetFeatureState(f, ir.FeatureState(s.State))
	case StepSourceLoaded:
		loaded := s.Loaded == nil || *s.Loaded
		if !t.SetSourceLoaded(s.ID, loaded) {
			return fmt.Errorf("source %q is not on the target", s.ID)
		}
	case StepClick:
		var features []ir.Feature
		if s.Feature != "" {
			f, err := parseFeature(s.Feature)
			if err != nil {
				return err
			}
			features = append(features, ir.Feature{
				ID:          f.ID,
				LayerID:     s.ID,
				Source:      f.Source,
				SourceLayer: f.SourceLayer,
			})
		}
		t.Click(s.ID, features...)

	case StepLabels:
		e.SetLabelsVisible(*s.Visible)
	case StepStyle:
		e.SetStyle(s.Style)

	case StepFailLayer:
		t.FailAddLayer(s.ID, errors.New(s.Error))
	case StepFailSource:
		t.FailAddSource(s.ID, errors.New(s.Error))

	default:
		return fmt.Errorf("unknown step %q", s.Do)
	}
	return nil
}

// parseFeature parses "source:source_layer:id". The source layer may be
// empty ("source::id").
func parseFeature(s string) (ir.FeatureID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return ir.FeatureID{}, fmt.Errorf("invalid feature %q: expected source:source_layer:id", s)
	}
	return ir.FeatureID{Source: parts[0], SourceLayer: parts[1], ID: parts[2]}, nil
}
