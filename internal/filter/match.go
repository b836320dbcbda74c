package filter

import (
	"github.com/roach88/packrelay/internal/event"
)

// Fields is the subset of an event a filter inspects. Stored rows carry all
// of it uncompressed, so matching never needs to decode a payload.
type Fields struct {
	ID        string
	Author    string
	Kind      int
	CreatedAt int64
	Tags      event.Tags
}

// FieldsOf extracts the matchable fields of an event.
func FieldsOf(ev event.Event) Fields {
	return Fields{
		ID:        ev.ID,
		Author:    ev.PubKey,
		Kind:      ev.Kind,
		CreatedAt: ev.CreatedAt,
		Tags:      ev.Tags,
	}
}

// Matches reports whether every constraint present in f holds for e.
// Limit is not a per-event constraint and is ignored here.
func (f Filter) Matches(e Fields) bool {
	if f.IDs != nil && !containsString(f.IDs, e.ID) {
		return false
	}
	if f.Authors != nil && !containsString(f.Authors, e.Author) {
		return false
	}
	if f.Kinds != nil && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if f.Since != nil && e.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && e.CreatedAt > *f.Until {
		return false
	}
	for name, values := range f.Tags {
		if !e.Tags.ContainsValue(name, values) {
			return false
		}
	}
	return true
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
