package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/queryir"
	"github.com/team-wildflyer/mapsync/internal/querysql"
)

// ErrPassNotFound is returned by ReadPass for an unknown token.
var ErrPassNotFound = errors.New("pass not found")

// HistoryEntry is one mutation of a target id together with the pass that
// issued it.
type HistoryEntry struct {
	PassToken string
	Seq       int64
	Trigger   string
	Mutation  ir.MutationRecord
}

// ReadPasses returns the most recent passes, oldest first. limit <= 0 returns
// every pass.
//
// Ordering: seq ASC, token ASC COLLATE BINARY.
func (s *Store) ReadPasses(ctx context.Context, limit int) ([]ir.PassRecord, error) {
	query := `
		SELECT token, seq, trigger, error FROM (
			SELECT token, seq, trigger, error FROM passes
			ORDER BY seq DESC, token COLLATE BINARY DESC
			LIMIT ?
		)
		ORDER BY seq ASC, token COLLATE BINARY ASC
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	var passes []ir.PassRecord
	for rows.Next() {
		var rec ir.PassRecord
		if err := rows.Scan(&rec.Token, &rec.Seq, &rec.Trigger, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		passes = append(passes, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passes: %w", err)
	}

	for i := range passes {
		mutations, err := s.readMutations(ctx, passes[i].Token)
		if err != nil {
			return nil, err
		}
		passes[i].Mutations = mutations
	}

	// Return empty slice instead of nil
	if passes == nil {
		passes = []ir.PassRecord{}
	}
	return passes, nil
}

// ReadPass returns one pass with its mutations.
func (s *Store) ReadPass(ctx context.Context, token string) (ir.PassRecord, error) {
	var rec ir.PassRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT token, seq, trigger, error FROM passes WHERE token = ?
	`, token).Scan(&rec.Token, &rec.Seq, &rec.Trigger, &rec.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.PassRecord{}, fmt.Errorf("read pass %s: %w", token, ErrPassNotFound)
	}
	if err != nil {
		return ir.PassRecord{}, fmt.Errorf("read pass %s: %w", token, err)
	}

	rec.Mutations, err = s.readMutations(ctx, token)
	if err != nil {
		return ir.PassRecord{}, err
	}
	return rec, nil
}

// readMutations returns a pass's mutations in issue order. nil when the
// pass issued none, matching the engine's records.
func (s *Store) readMutations(ctx context.Context, token string) ([]ir.MutationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT op, target_id, before_id, error
		FROM mutations
		WHERE pass_token = ?
		ORDER BY idx ASC
	`, token)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	defer rows.Close()

	var out []ir.MutationRecord
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mutations: %w", err)
	}
	return out, nil
}

// ReadHistory returns every journaled mutation of a layer or source id,
// oldest first.
func (s *Store) ReadHistory(ctx context.Context, targetID string) ([]HistoryEntry, error) {
	return s.FindMutations(ctx, queryir.Select{
		Filter: queryir.Equals{Field: queryir.FieldTargetID, Value: targetID},
	})
}

// FindMutations returns the journaled mutations matching q, in journal
// order.
func (s *Store) FindMutations(ctx context.Context, q queryir.Query) ([]HistoryEntry, error) {
	query, params, err := querysql.Compile(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(
			&h.PassToken, &h.Seq, &h.Trigger,
			&h.Mutation.Op, &h.Mutation.TargetID, &h.Mutation.Before, &h.Mutation.Error,
		); err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mutations: %w", err)
	}
	return entries, nil
}

// LastSeq returns the highest journaled seq, or 0 for an empty journal.
// Used to resume the engine's logical clock.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM passes
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}

func scanMutation(rows *sql.Rows) (ir.MutationRecord, error) {
	var m ir.MutationRecord
	if err := rows.Scan(&m.Op, &m.TargetID, &m.Before, &m.Error); err != nil {
		return ir.MutationRecord{}, fmt.Errorf("scan mutation: %w", err)
	}
	return m, nil
}
