package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	exprlang "github.com/expr-lang/expr"

	"github.com/team-wildflyer/mapsync/internal/engine"
	"github.com/team-wildflyer/mapsync/internal/store"
	"github.com/team-wildflyer/mapsync/internal/target"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step %d: %s\n", i+1, event.Step, event.Call)
		}
	}

	return buf.String()
}

// assertLayerOrder checks the final layer ids exactly.
func assertLayerOrder(result *Result, assertion Assertion) error {
	if slices.Equal(result.Layers, assertion.Layers) {
		return nil
	}
	return &AssertionError{
		Type:     AssertLayerOrder,
		Expected: fmt.Sprintf("%q", assertion.Layers),
		Actual:   fmt.Sprintf("%q", result.Layers),
		Trace:    result.Trace,
	}
}

// assertCallOrder checks that calls appear in the specified order.
// Calls don't need to be consecutive (intervening calls are allowed).
func assertCallOrder(result *Result, assertion Assertion) error {
	pos := 0
	for _, ev := range result.Trace {
		if pos < len(assertion.Calls) && ev.Call == assertion.Calls[pos] {
			pos++
		}
	}
	if pos == len(assertion.Calls) {
		return nil
	}
	return &AssertionError{
		Type:     AssertCallOrder,
		Expected: fmt.Sprintf("calls in order: %q", assertion.Calls),
		Actual:   fmt.Sprintf("missing or out of order: %q", assertion.Calls[pos]),
		Trace:    result.Trace,
	}
}

// assertCallCount checks that calls with the op (and id, if given) appear
// exactly the specified number of times.
func assertCallCount(result *Result, assertion Assertion) error {
	count := 0
	for _, c := range result.calls {
		if c.Op == assertion.Op && (assertion.ID == "" || c.ID == assertion.ID) {
			count++
		}
	}
	if count == assertion.Count {
		return nil
	}

	what := assertion.Op
	if assertion.ID != "" {
		what += " " + assertion.ID
	}
	return &AssertionError{
		Type:     AssertCallCount,
		Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, what),
		Actual:   fmt.Sprintf("%d occurrences", count),
		Trace:    result.Trace,
	}
}

// assertPassCount checks the number of journaled passes.
func assertPassCount(ctx context.Context, st *store.Store, assertion Assertion) error {
	n, err := st.CountPasses(ctx)
	if err != nil {
		return &AssertionError{
			Type:     AssertPassCount,
			Expected: fmt.Sprintf("%d passes", assertion.Count),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	if n != assertion.Count {
		return &AssertionError{
			Type:     AssertPassCount,
			Expected: fmt.Sprintf("%d passes", assertion.Count),
			Actual:   fmt.Sprintf("%d passes", n),
		}
	}
	return nil
}

// assertExpr evaluates a boolean expression over the final state.
func assertExpr(result *Result, actx *AssertionContext, assertion Assertion) error {
	env := exprEnv(result, actx)
	program, err := exprlang.Compile(assertion.Expr,
		exprlang.Env(env),
		exprlang.AsBool(),
		exprlang.Function("pos", func(params ...any) (any, error) {
			id, _ := params[0].(string)
			return slices.Index(result.Layers, id), nil
		}, new(func(string) int)),
		exprlang.Function("state", func(params ...any) (any, error) {
			key, _ := params[0].(string)
			if actx.Target == nil {
				return map[string]any(nil), nil
			}
			f, err := parseFeature(key)
			if err != nil {
				return nil, err
			}
			return map[string]any(actx.Target.FeatureState(f)), nil
		}, new(func(string) map[string]any)),
	)
	if err != nil {
		return fmt.Errorf("expr %q: %w", assertion.Expr, err)
	}

	out, err := exprlang.Run(program, env)
	if err != nil {
		return fmt.Errorf("expr %q: %w", assertion.Expr, err)
	}
	if ok, _ := out.(bool); !ok {
		return &AssertionError{
			Type:     AssertExpr,
			Expected: assertion.Expr,
			Actual:   "false",
			Trace:    result.Trace,
		}
	}
	return nil
}

// exprEnv exposes the final state to expr assertions:
//
//	layers   []string  final layer order
//	sources  []string  final source ids
//	calls    []string  every call, as "op id [before=x] [detail]"
//	groups   []string  registered groups, sorted
//	status   string    engine lifecycle status
//	style    string    current target style
//	cursor   string    current cursor
//	labels   bool      requested label visibility
//	pos(id)  int       index of a layer, -1 if absent
//	state(f) map       target feature state of "source:source_layer:id"
func exprEnv(result *Result, actx *AssertionContext) map[string]any {
	env := map[string]any{
		"layers": result.Layers,
		"calls":  result.Calls(),
	}
	if t := actx.Target; t != nil {
		env["sources"] = t.SourceIDs()
		env["style"] = t.Style()
		env["cursor"] = t.Cursor()
	}
	if e := actx.Engine; e != nil {
		env["groups"] = e.Groups()
		env["status"] = e.Status().String()
		env["labels"] = e.LabelsVisible()
	}
	return env
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx    context.Context
	Store  *store.Store
	Engine *engine.Engine
	Target *target.Memory
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertLayerOrder:
			err = assertLayerOrder(result, assertion)
		case AssertCallOrder:
			err = assertCallOrder(result, assertion)
		case AssertCallCount:
			err = assertCallCount(result, assertion)
		case AssertPassCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: pass_count requires a journal", i)
			} else {
				err = assertPassCount(actx.Ctx, actx.Store, assertion)
			}
		case AssertExpr:
			if actx == nil {
				actx = &AssertionContext{}
			}
			err = assertExpr(result, actx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
