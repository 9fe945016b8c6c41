package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/store"
	"github.com/team-wildflyer/mapsync/internal/target"
)

func sampleResult() *Result {
	r := NewResult()
	r.addCalls(1, []target.Call{
		{Op: target.OpAddSource, ID: "s", Detail: "u"},
		{Op: target.OpAddLayer, ID: "a", Before: "labels"},
	})
	r.addCalls(2, []target.Call{
		{Op: target.OpAddLayer, ID: "b", Before: "labels"},
		{Op: target.OpRemoveLayer, ID: "a"},
	})
	r.Layers = []string{"bg", "b", "labels"}
	return r
}

func TestAssertLayerOrder(t *testing.T) {
	r := sampleResult()
	assert.NoError(t, assertLayerOrder(r, Assertion{Layers: []string{"bg", "b", "labels"}}))

	err := assertLayerOrder(r, Assertion{Layers: []string{"bg", "labels", "b"}})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertLayerOrder, ae.Type)
}

func TestAssertCallOrder(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertCallOrder(r, Assertion{Calls: []string{
		"add_source s u",
		"remove_layer a",
	}}), "intervening calls are allowed")

	err := assertCallOrder(r, Assertion{Calls: []string{
		"add_layer b before=labels",
		"add_layer a before=labels",
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add_layer a before=labels")

	assert.Error(t, assertCallOrder(r, Assertion{Calls: []string{"set_style x"}}))
}

func TestAssertCallCount(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertCallCount(r, Assertion{Op: target.OpAddLayer, Count: 2}))
	assert.NoError(t, assertCallCount(r, Assertion{Op: target.OpAddLayer, ID: "a", Count: 1}))
	assert.NoError(t, assertCallCount(r, Assertion{Op: target.OpSetStyle, Count: 0}))

	err := assertCallCount(r, Assertion{Op: target.OpRemoveLayer, ID: "b", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 occurrences of remove_layer b")
	assert.Contains(t, err.Error(), "0 occurrences")
}

func TestAssertExpr(t *testing.T) {
	r := sampleResult()
	tgt := target.NewMemory()
	require.NoError(t, tgt.AddSource("s", ir.SourceSpec{Type: "vector"}))
	require.NoError(t, tgt.SetFeatureState(ir.FeatureID{Source: "s", ID: "1"}, ir.FeatureState{"hover": true}))
	actx := &AssertionContext{Ctx: context.Background(), Target: tgt}

	tests := []struct {
		expr string
		pass bool
	}{
		{`pos("b") == 1`, true},
		{`pos("gone") == -1`, true},
		{`pos("b") < pos("labels") && len(layers) == 3`, true},
		{`"remove_layer a" in calls`, true},
		{`"s" in sources`, true},
		{`state("s::1").hover == true`, true},
		{`len(calls) == 5`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := assertExpr(r, actx, Assertion{Expr: tt.expr})
			if tt.pass {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestAssertExpr_NotBoolean(t *testing.T) {
	err := assertExpr(sampleResult(), &AssertionContext{}, Assertion{Expr: `len(layers)`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "len(layers)")
}

func TestAssertExpr_UnknownName(t *testing.T) {
	err := assertExpr(sampleResult(), &AssertionContext{}, Assertion{Expr: `nope == 1`})
	assert.Error(t, err)
}

func TestAssertPassCount(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.RecordPass(ctx, ir.PassRecord{Token: "p1", Seq: 1, Trigger: "manual"}))

	assert.NoError(t, assertPassCount(ctx, st, Assertion{Count: 1}))
	err = assertPassCount(ctx, st, Assertion{Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 passes")
}

func TestEvaluateAssertions(t *testing.T) {
	r := sampleResult()
	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertLayerOrder, Layers: []string{"bg", "b", "labels"}},
		{Type: AssertCallCount, Op: target.OpAddLayer, Count: 9},
		{Type: AssertPassCount, Count: 0},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "call_count")
	assert.Contains(t, errs[1], "requires a journal")
	assert.Contains(t, errs[2], `unknown assertion type "bogus"`)
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertLayerOrder,
		Expected: `["a"]`,
		Actual:   `["b"]`,
		Trace:    []TraceEvent{{Step: 2, Call: "add_layer b"}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: layer_order")
	assert.Contains(t, msg, `Expected: ["a"]`)
	assert.Contains(t, msg, `Actual: ["b"]`)
	assert.Contains(t, msg, "[1] step 2: add_layer b")
}
