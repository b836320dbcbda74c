// Package store provides SQLite-backed durable storage for relay events.
//
// The store is an append-only keyed table of compressed events:
//   - events: one row per accepted event, keyed by id, holding the
//     compressed canonical payload and its raw/compressed sizes
//   - event_tags: one row per single-letter tag, for exact tag predicates
//
// # Critical Patterns
//
// Write-once: INSERT … ON CONFLICT(id) DO NOTHING. A duplicate id is
// reported through PutResult, never as an error, and never overwrites.
//
// Atomic insert: the event row and its tag rows are written in one
// transaction, and CHECK constraints make a row whose compressed_size does
// not match its payload impossible to commit.
//
// Recency ordering: every multi-row read is ORDER BY created_at DESC,
// id COLLATE BINARY ASC so equal timestamps still order deterministically.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: event_tags rows must reference an event
//
// Writes go through a single connection; reads use a separate small pool.
package store
