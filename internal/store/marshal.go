package store

import (
	"fmt"

	"github.com/team-wildflyer/mapsync/internal/ir"
)

// passFingerprint content-addresses a pass: its trigger, abort error and
// mutations. The token and seq are left out so a retried write of the same
// pass matches.
func passFingerprint(rec ir.PassRecord) (string, error) {
	mutations := rec.Mutations
	if mutations == nil {
		mutations = []ir.MutationRecord{}
	}
	fp, err := ir.Fingerprint(ir.DomainMutation, map[string]any{
		"trigger":   rec.Trigger,
		"error":     rec.Error,
		"mutations": mutations,
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint pass %s: %w", rec.Token, err)
	}
	return fp, nil
}
