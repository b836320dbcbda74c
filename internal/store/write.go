package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/packrelay/internal/event"
)

// Put inserts an event keyed by its id.
// Uses ON CONFLICT(id) DO NOTHING for idempotency: if the id already
// exists nothing is written and PutResult.Duplicate is true. A duplicate is
// not an error.
//
// The event row and its tag rows are written in one transaction. Sizes are
// checked before the insert and again by the table's CHECK constraints.
func (s *Store) Put(ctx context.Context, ev StoredEvent) (PutResult, error) {
	if ev.RawSize <= 0 {
		return PutResult{}, fmt.Errorf("put event %s: raw size must be positive, got %d", ev.ID, ev.RawSize)
	}
	if ev.CompressedSize != len(ev.Payload) {
		return PutResult{}, fmt.Errorf("put event %s: compressed size %d does not match payload length %d",
			ev.ID, ev.CompressedSize, len(ev.Payload))
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return PutResult{}, fmt.Errorf("put event: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO events
		(id, pubkey, kind, created_at, tags, payload, raw_size, compressed_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		ev.ID,
		ev.PubKey,
		ev.Kind,
		ev.CreatedAt,
		string(event.MarshalTags(ev.Tags)),
		ev.Payload,
		ev.RawSize,
		ev.CompressedSize,
	)
	if err != nil {
		return PutResult{}, fmt.Errorf("put event: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return PutResult{}, fmt.Errorf("put event: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Conflict - the id is already stored, nothing more to do
		return PutResult{Duplicate: true}, nil
	}

	if err := insertTags(ctx, tx, ev); err != nil {
		return PutResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return PutResult{}, fmt.Errorf("put event: commit: %w", err)
	}

	return PutResult{Stored: true}, nil
}

// insertTags writes one event_tags row per distinct indexable (name, value).
func insertTags(ctx context.Context, tx *sqlx.Tx, ev StoredEvent) error {
	seen := make(map[[2]string]bool)
	for _, tag := range ev.Tags {
		if !tag.Indexable() {
			continue
		}
		key := [2]string{tag.Name(), tag.Value()}
		if seen[key] {
			continue
		}
		seen[key] = true

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO event_tags (event_id, name, value) VALUES (?, ?, ?)
		`, ev.ID, key[0], key[1]); err != nil {
			return fmt.Errorf("put event: insert tag %s: %w", key[0], err)
		}
	}
	return nil
}
