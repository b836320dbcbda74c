package filter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Filter selects events. See the package documentation for semantics.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int

	// Tags maps a single-letter tag name to its acceptable values.
	Tags map[string][]string

	// Since and Until are inclusive created_at bounds.
	Since *int64
	Until *int64

	// Limit caps the result count; 0 means "no caller limit".
	// The engine always applies its own ceiling on top.
	Limit int
}

// IsEmpty reports whether the filter has no constraints at all.
func (f Filter) IsEmpty() bool {
	return f.IDs == nil && f.Authors == nil && f.Kinds == nil &&
		len(f.Tags) == 0 && f.Since == nil && f.Until == nil
}

// TagNames returns the tag predicate names in sorted order, so that
// anything derived from a filter is deterministic.
func (f Filter) TagNames() []string {
	names := make([]string, 0, len(f.Tags))
	for name := range f.Tags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnmarshalJSON accepts the relay wire form:
//
//	{"ids":[…],"authors":[…],"kinds":[…],"#e":[…],"since":n,"until":n,"limit":n}
//
// Unknown keys are ignored. Tag keys must be '#' plus one ASCII letter.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	var out Filter
	for key, value := range raw {
		var err error
		switch key {
		case "ids":
			err = json.Unmarshal(value, &out.IDs)
			out.IDs = nonNil(out.IDs)
		case "authors":
			err = json.Unmarshal(value, &out.Authors)
			out.Authors = nonNil(out.Authors)
		case "kinds":
			err = json.Unmarshal(value, &out.Kinds)
			if out.Kinds == nil {
				out.Kinds = []int{}
			}
		case "since":
			out.Since = new(int64)
			err = json.Unmarshal(value, out.Since)
		case "until":
			out.Until = new(int64)
			err = json.Unmarshal(value, out.Until)
		case "limit":
			err = json.Unmarshal(value, &out.Limit)
		default:
			if !strings.HasPrefix(key, "#") {
				continue
			}
			name := key[1:]
			if !IsTagName(name) {
				return fmt.Errorf("filter: invalid tag key %q", key)
			}
			var values []string
			err = json.Unmarshal(value, &values)
			if out.Tags == nil {
				out.Tags = make(map[string][]string)
			}
			out.Tags[name] = nonNil(values)
		}
		if err != nil {
			return fmt.Errorf("filter: field %q: %w", key, err)
		}
	}

	*f = out
	return nil
}

// MarshalJSON renders the wire form. Only non-nil constraints are
// written; encoding/json sorts the keys.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 6+len(f.Tags))
	if f.IDs != nil {
		m["ids"] = f.IDs
	}
	if f.Authors != nil {
		m["authors"] = f.Authors
	}
	if f.Kinds != nil {
		m["kinds"] = f.Kinds
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	for name, values := range f.Tags {
		m["#"+name] = nonNil(values)
	}
	return json.Marshal(m)
}

// IsTagName reports whether name is a single ASCII letter.
func IsTagName(name string) bool {
	if len(name) != 1 {
		return false
	}
	c := name[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
