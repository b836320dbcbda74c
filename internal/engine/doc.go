// Package engine implements the relay's ingest pipeline and query path.
//
// ARCHITECTURE:
//
// Single-Writer Ingest Loop:
// Every store write happens in one goroutine, Engine.Run. This ensures:
// - Inserts never interleave
// - The duplicate check and the insert that follows it cannot race
// - SQLite never sees two writers
//
// Ingest Flow:
// 1. Submit() validates the event in the caller's goroutine
// 2. Authentic events are enqueued to a bounded FIFO queue
// 3. Run() dequeues one submission at a time
// 4. Duplicate ids are answered without compressing anything
// 5. New events are compressed once and written in one transaction
// 6. The Result is sent back to the waiting Submit
//
// Reads do not go through the loop. Query compiles a filter with querysql
// and runs it on the store's read pool.
//
// CRITICAL PATTERNS:
//
// Write Once:
// A stored payload is never recompressed or rewritten. Republishing an
// event is a successful no-op.
//
// Bounded Results:
// Every query carries LIMIT min(filter.limit, MaxLimit). MaxLimit is
// configuration, never caller input.
//
// Deterministic Order:
// Results are ordered by created_at DESC, id COLLATE BINARY ASC.
package engine
