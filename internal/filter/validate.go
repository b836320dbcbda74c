package filter

import (
	"fmt"
)

// Validate rejects filters a caller cannot have meant: a negative limit,
// ids or authors that are not 64 lowercase hex characters, or tag names
// that are not a single letter.
//
// Validate is a pure function with no side effects.
func (f Filter) Validate() error {
	if f.Limit < 0 {
		return fmt.Errorf("limit: must not be negative, got %d", f.Limit)
	}
	for _, id := range f.IDs {
		if !isHex64(id) {
			return fmt.Errorf("ids: %q is not a 64-character hex id", id)
		}
	}
	for _, author := range f.Authors {
		if !isHex64(author) {
			return fmt.Errorf("authors: %q is not a 64-character hex key", author)
		}
	}
	for name := range f.Tags {
		if !IsTagName(name) {
			return fmt.Errorf("tags: %q is not a single-letter tag name", name)
		}
	}
	return nil
}

func isHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
