package store

import (
	"path/filepath"
	"testing"

	"github.com/team-wildflyer/mapsync/internal/ir"
)

// createTestStore creates a new store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testPass creates a pass that added a source and one layer.
func testPass(token string, seq int64, trigger string) ir.PassRecord {
	return ir.PassRecord{
		Token:   token,
		Seq:     seq,
		Trigger: trigger,
		Mutations: []ir.MutationRecord{
			{Op: "add_source", TargetID: "parcels"},
			{Op: "add_layer", TargetID: "parcels-fill", Before: "Country labels"},
		},
	}
}
