package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/team-wildflyer/mapsync/internal/ir"
)

// ErrConflictingPass is returned when a token is reused for a different pass.
var ErrConflictingPass = errors.New("conflicting pass for journaled token")

// WritePass journals a pass and its mutations in one transaction.
//
// Uses ON CONFLICT(token) DO NOTHING for idempotency: writing the same pass
// twice returns inserted=false. Writing a pass whose content differs from
// the journaled one under the same token returns ErrConflictingPass.
func (s *Store) WritePass(ctx context.Context, rec ir.PassRecord) (inserted bool, err error) {
	if rec.Token == "" {
		return false, fmt.Errorf("write pass: token is empty")
	}
	fp, err := passFingerprint(rec)
	if err != nil {
		return false, fmt.Errorf("write pass: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write pass: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO passes (token, seq, trigger, error, fingerprint)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`,
		rec.Token,
		rec.Seq,
		rec.Trigger,
		rec.Error,
		fp,
	)
	if err != nil {
		return false, fmt.Errorf("write pass: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write pass: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var existing string
		err := tx.QueryRowContext(ctx,
			"SELECT fingerprint FROM passes WHERE token = ?", rec.Token,
		).Scan(&existing)
		if err != nil {
			return false, fmt.Errorf("write pass: select existing: %w", err)
		}
		if existing != fp {
			return false, fmt.Errorf("write pass %s: %w", rec.Token, ErrConflictingPass)
		}
		return false, nil
	}

	for i, m := range rec.Mutations {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mutations (pass_token, idx, op, target_id, before_id, error)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			rec.Token,
			i,
			m.Op,
			m.TargetID,
			m.Before,
			m.Error,
		)
		if err != nil {
			return false, fmt.Errorf("write pass: insert mutation %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write pass: commit: %w", err)
	}
	return true, nil
}

// RecordPass journals a pass for the engine. Re-recording a pass is
// harmless.
func (s *Store) RecordPass(ctx context.Context, rec ir.PassRecord) error {
	_, err := s.WritePass(ctx, rec)
	return err
}
