package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// eventColumns is the column list every event read selects. Callers that
// supply their own SQL to QueryEvents must select exactly these names.
const eventColumns = "id, pubkey, kind, created_at, tags, payload, raw_size, compressed_size"

// GetByID retrieves a single event by id.
// Returns ErrNotFound if no such event exists.
func (s *Store) GetByID(ctx context.Context, id string) (StoredEvent, error) {
	var row eventRow
	err := s.reader.GetContext(ctx, &row, `
		SELECT `+eventColumns+`
		FROM events
		WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredEvent{}, ErrNotFound
	}
	if err != nil {
		return StoredEvent{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return row.toStoredEvent()
}

// Has reports whether an event with the given id is stored.
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	var count int
	if err := s.reader.GetContext(ctx, &count, `SELECT COUNT(*) FROM events WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("check event %s: %w", id, err)
	}
	return count > 0, nil
}

// QueryEvents runs a compiled SELECT over the events table and returns the
// rows in the order the query produced them.
// The query must select the columns id, pubkey, kind, created_at, tags,
// payload, raw_size and compressed_size.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) QueryEvents(ctx context.Context, query string, args ...any) ([]StoredEvent, error) {
	var rows []eventRow
	if err := s.reader.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return toStoredEvents(rows)
}

// Stats returns the event count and aggregate byte totals.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.reader.GetContext(ctx, &st, `
		SELECT
			COUNT(*) AS events,
			COALESCE(SUM(raw_size), 0) AS raw_bytes,
			COALESCE(SUM(compressed_size), 0) AS compressed_bytes
		FROM events
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// Scan calls fn for every stored event, oldest first.
// Rows are streamed; fn must not call back into the store.
// Iteration stops at the first error fn returns.
func (s *Store) Scan(ctx context.Context, fn func(StoredEvent) error) error {
	rows, err := s.reader.QueryxContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return fmt.Errorf("scan events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row eventRow
		if err := rows.StructScan(&row); err != nil {
			return fmt.Errorf("scan events: %w", err)
		}
		ev, err := row.toStoredEvent()
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate events: %w", err)
	}
	return nil
}
