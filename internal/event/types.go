package event

import (
	"encoding/json"
	"fmt"
)

// Event is a signed record as it travels on the wire.
// All JSON tags use snake_case to match the relay protocol.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Tag is one tag record: a name followed by zero or more values.
type Tag []string

// Tags is the ordered tag list of an event.
type Tags []Tag

// Name returns the tag name, or "" for an empty tag.
func (t Tag) Name() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the first value of the tag, or "" if it has none.
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Indexable reports whether the tag is addressable by a filter tag
// predicate: a single-letter name followed by at least one value.
func (t Tag) Indexable() bool {
	if len(t) < 2 || len(t[0]) != 1 {
		return false
	}
	c := t[0][0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// ContainsValue reports whether any tag named name carries one of values as
// its first value. Comparison is exact; no prefix or substring matching.
func (tags Tags) ContainsValue(name string, values []string) bool {
	for _, t := range tags {
		if t.Name() != name || len(t) < 2 {
			continue
		}
		for _, v := range values {
			if t[1] == v {
				return true
			}
		}
	}
	return false
}

// Parse decodes a wire-format event. It does not validate it.
func Parse(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("parse event: %w", err)
	}
	if ev.Tags == nil {
		ev.Tags = Tags{}
	}
	return ev, nil
}

// MarshalJSON renders the canonical serialization so that an Event embedded
// in any JSON document is byte-identical to its stored form.
func (ev Event) MarshalJSON() ([]byte, error) {
	return Canonical(ev), nil
}
