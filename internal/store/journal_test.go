package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/team-wildflyer/mapsync/internal/engine"
	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/queryir"
)

var _ engine.Recorder = (*Store)(nil)

func TestWritePass_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	want := testPass("p1", 7, "debounce")
	want.Mutations = append(want.Mutations, ir.MutationRecord{
		Op: "add_layer", TargetID: "bad", Error: "add_layer bad: invalid paint",
	})

	inserted, err := s.WritePass(ctx, want)
	if err != nil {
		t.Fatalf("WritePass() failed: %v", err)
	}
	if !inserted {
		t.Error("WritePass() inserted = false for a new pass")
	}

	got, err := s.ReadPass(ctx, "p1")
	if err != nil {
		t.Fatalf("ReadPass() failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadPass() = %+v, want %+v", got, want)
	}
	if len(got.Failed()) != 1 {
		t.Errorf("Failed() = %v, want one failed mutation", got.Failed())
	}
}

func TestWritePass_EmptyPass(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := ir.PassRecord{Token: "p1", Seq: 1, Trigger: "manual"}
	if _, err := s.WritePass(ctx, rec); err != nil {
		t.Fatalf("WritePass() failed: %v", err)
	}
	got, err := s.ReadPass(ctx, "p1")
	if err != nil {
		t.Fatalf("ReadPass() failed: %v", err)
	}
	if got.Mutations != nil {
		t.Errorf("Mutations = %v, want nil", got.Mutations)
	}
}

func TestWritePass_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := testPass("p1", 1, "debounce")

	if _, err := s.WritePass(ctx, rec); err != nil {
		t.Fatalf("first WritePass() failed: %v", err)
	}
	inserted, err := s.WritePass(ctx, rec)
	if err != nil {
		t.Fatalf("second WritePass() failed: %v", err)
	}
	if inserted {
		t.Error("second WritePass() inserted = true, want false")
	}

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM mutations").Scan(&n); err != nil {
		t.Fatalf("count mutations: %v", err)
	}
	if n != 2 {
		t.Errorf("mutations = %d, want 2", n)
	}
}

func TestWritePass_ConflictingToken(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.WritePass(ctx, testPass("p1", 1, "debounce")); err != nil {
		t.Fatalf("WritePass() failed: %v", err)
	}
	_, err := s.WritePass(ctx, testPass("p1", 1, "manual"))
	if !errors.Is(err, ErrConflictingPass) {
		t.Errorf("WritePass() error = %v, want ErrConflictingPass", err)
	}
}

func TestWritePass_EmptyToken(t *testing.T) {
	s := createTestStore(t)
	if _, err := s.WritePass(context.Background(), ir.PassRecord{Seq: 1}); err == nil {
		t.Error("expected error for empty token, got nil")
	}
}

func TestReadPass_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadPass(context.Background(), "missing")
	if !errors.Is(err, ErrPassNotFound) {
		t.Errorf("ReadPass() error = %v, want ErrPassNotFound", err)
	}
}

func TestReadPasses_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Written out of order; seq decides.
	for _, rec := range []ir.PassRecord{
		testPass("c", 3, "debounce"),
		testPass("a", 1, "load"),
		testPass("b", 2, "manual"),
	} {
		if _, err := s.WritePass(ctx, rec); err != nil {
			t.Fatalf("WritePass(%s) failed: %v", rec.Token, err)
		}
	}

	all, err := s.ReadPasses(ctx, 0)
	if err != nil {
		t.Fatalf("ReadPasses() failed: %v", err)
	}
	if got := tokens(all); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("ReadPasses(0) tokens = %v, want [a b c]", got)
	}
	if len(all[0].Mutations) != 2 {
		t.Errorf("ReadPasses() did not load mutations: %+v", all[0])
	}

	last, err := s.ReadPasses(ctx, 2)
	if err != nil {
		t.Fatalf("ReadPasses(2) failed: %v", err)
	}
	if got := tokens(last); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("ReadPasses(2) tokens = %v, want [b c]", got)
	}
}

func TestReadPasses_Empty(t *testing.T) {
	s := createTestStore(t)
	passes, err := s.ReadPasses(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReadPasses() failed: %v", err)
	}
	if passes == nil || len(passes) != 0 {
		t.Errorf("ReadPasses() = %v, want empty non-nil slice", passes)
	}
}

func TestReadHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.WritePass(ctx, testPass("p1", 1, "load")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.WritePass(ctx, ir.PassRecord{
		Token: "p2", Seq: 2, Trigger: "debounce",
		Mutations: []ir.MutationRecord{{Op: "remove_layer", TargetID: "parcels-fill"}},
	}); err != nil {
		t.Fatal(err)
	}

	history, err := s.ReadHistory(ctx, "parcels-fill")
	if err != nil {
		t.Fatalf("ReadHistory() failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("ReadHistory() = %d entries, want 2", len(history))
	}
	if history[0].Mutation.Op != "add_layer" || history[0].Mutation.Before != "Country labels" {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[1].Mutation.Op != "remove_layer" || history[1].Trigger != "debounce" {
		t.Errorf("history[1] = %+v", history[1])
	}
}

func TestFindMutations(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	passes := []ir.PassRecord{
		{Token: "p1", Seq: 1, Trigger: "load", Mutations: []ir.MutationRecord{
			{Op: "add_source", TargetID: "parcels"},
			{Op: "add_layer", TargetID: "parcels-fill"},
		}},
		{Token: "p2", Seq: 2, Trigger: "debounce", Mutations: []ir.MutationRecord{
			{Op: "add_layer", TargetID: "roads", Error: "boom"},
			{Op: "move_layer", TargetID: "parcels-fill", Before: "roads"},
		}},
	}
	for _, p := range passes {
		if _, err := s.WritePass(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		query queryir.Query
		want  []string
	}{
		{"all", queryir.Select{}, []string{"parcels", "parcels-fill", "roads", "parcels-fill"}},
		{"op", queryir.Select{Filter: queryir.Equals{Field: queryir.FieldOp, Value: "add_layer"}}, []string{"parcels-fill", "roads"}},
		{"failed", queryir.Select{Filter: queryir.Failed{}}, []string{"roads"}},
		{"since", queryir.Select{Filter: queryir.SeqAtLeast{Seq: 2}}, []string{"roads", "parcels-fill"}},
		{"trigger and op", queryir.Select{Filter: queryir.All(
			queryir.Equals{Field: queryir.FieldTrigger, Value: "debounce"},
			queryir.Equals{Field: queryir.FieldOp, Value: "move_layer"},
		)}, []string{"parcels-fill"}},
		{"limit", queryir.Select{Limit: 1}, []string{"parcels"}},
		{"no match", queryir.Select{Filter: queryir.Equals{Field: queryir.FieldPassToken, Value: "p9"}}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindMutations(ctx, tt.query)
			if err != nil {
				t.Fatalf("FindMutations() failed: %v", err)
			}
			ids := make([]string, len(got))
			for i, h := range got {
				ids[i] = h.Mutation.TargetID
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("FindMutations() = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestFindMutations_InvalidQuery(t *testing.T) {
	s := createTestStore(t)

	_, err := s.FindMutations(context.Background(), queryir.Select{Limit: -1})
	if err == nil {
		t.Fatal("FindMutations() with negative limit succeeded")
	}
}

func TestLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.LastSeq(ctx)
	if err != nil {
		t.Fatalf("LastSeq() failed: %v", err)
	}
	if seq != 0 {
		t.Errorf("LastSeq() on empty journal = %d, want 0", seq)
	}

	for _, rec := range []ir.PassRecord{testPass("a", 4, "load"), testPass("b", 9, "manual")} {
		if _, err := s.WritePass(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	seq, err = s.LastSeq(ctx)
	if err != nil {
		t.Fatalf("LastSeq() failed: %v", err)
	}
	if seq != 9 {
		t.Errorf("LastSeq() = %d, want 9", seq)
	}
}

func TestRecordPass_FromEngine(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.RecordPass(ctx, testPass("p1", 1, "debounce")); err != nil {
		t.Fatalf("RecordPass() failed: %v", err)
	}
	if err := s.RecordPass(ctx, testPass("p1", 1, "debounce")); err != nil {
		t.Errorf("re-recording a pass should be harmless: %v", err)
	}
}

func tokens(passes []ir.PassRecord) []string {
	out := make([]string, len(passes))
	for i, p := range passes {
		out[i] = p.Token
	}
	return out
}
