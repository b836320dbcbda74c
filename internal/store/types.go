package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/packrelay/internal/event"
)

// StoredEvent is one persisted row. Every field except Payload is kept
// uncompressed so that queries and filter matching never decode payloads.
type StoredEvent struct {
	ID        string
	PubKey    string
	Kind      int
	CreatedAt int64
	Tags      event.Tags

	// Payload is the compressed canonical serialization, written once.
	Payload []byte

	RawSize        int
	CompressedSize int
}

// PutResult reports the outcome of Put. Exactly one field is true.
type PutResult struct {
	Stored    bool
	Duplicate bool
}

// Stats aggregates the whole table.
type Stats struct {
	Events          int64 `db:"events"`
	RawBytes        int64 `db:"raw_bytes"`
	CompressedBytes int64 `db:"compressed_bytes"`
}

// Ratio returns raw/compressed, or 0 for an empty store.
func (s Stats) Ratio() float64 {
	if s.CompressedBytes == 0 {
		return 0
	}
	return float64(s.RawBytes) / float64(s.CompressedBytes)
}

// eventRow is the database shape of StoredEvent; tags are JSON text.
type eventRow struct {
	ID             string `db:"id"`
	PubKey         string `db:"pubkey"`
	Kind           int    `db:"kind"`
	CreatedAt      int64  `db:"created_at"`
	Tags           string `db:"tags"`
	Payload        []byte `db:"payload"`
	RawSize        int    `db:"raw_size"`
	CompressedSize int    `db:"compressed_size"`
}

func (r eventRow) toStoredEvent() (StoredEvent, error) {
	var tags event.Tags
	if err := json.Unmarshal([]byte(r.Tags), &tags); err != nil {
		return StoredEvent{}, fmt.Errorf("event %s: unmarshal tags: %w", r.ID, err)
	}
	if tags == nil {
		tags = event.Tags{}
	}
	return StoredEvent{
		ID:             r.ID,
		PubKey:         r.PubKey,
		Kind:           r.Kind,
		CreatedAt:      r.CreatedAt,
		Tags:           tags,
		Payload:        r.Payload,
		RawSize:        r.RawSize,
		CompressedSize: r.CompressedSize,
	}, nil
}

func toStoredEvents(rows []eventRow) ([]StoredEvent, error) {
	out := make([]StoredEvent, 0, len(rows))
	for _, r := range rows {
		ev, err := r.toStoredEvent()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
