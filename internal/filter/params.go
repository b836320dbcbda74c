package filter

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// FromQuery builds a filter from HTTP query parameters:
//
//	ids, authors, kinds   comma-separated, may repeat
//	since, until, limit   integers
//	tag                   "<letter>:<value>", may repeat
//
// A parameter that is absent leaves the field unconstrained.
func FromQuery(q url.Values) (Filter, error) {
	var f Filter

	if vs, ok := q["ids"]; ok {
		f.IDs = splitList(vs)
	}
	if vs, ok := q["authors"]; ok {
		f.Authors = splitList(vs)
	}
	if vs, ok := q["kinds"]; ok {
		f.Kinds = []int{}
		for _, s := range splitList(vs) {
			k, err := strconv.Atoi(s)
			if err != nil {
				return Filter{}, fmt.Errorf("kinds: %q is not an integer", s)
			}
			f.Kinds = append(f.Kinds, k)
		}
	}

	var err error
	if f.Since, err = optionalInt64(q, "since"); err != nil {
		return Filter{}, err
	}
	if f.Until, err = optionalInt64(q, "until"); err != nil {
		return Filter{}, err
	}
	if s := q.Get("limit"); s != "" {
		if f.Limit, err = strconv.Atoi(s); err != nil {
			return Filter{}, fmt.Errorf("limit: %q is not an integer", s)
		}
	}

	for _, raw := range q["tag"] {
		name, value, ok := strings.Cut(raw, ":")
		if !ok || !IsTagName(name) {
			return Filter{}, fmt.Errorf("tag: %q is not <letter>:<value>", raw)
		}
		if f.Tags == nil {
			f.Tags = make(map[string][]string)
		}
		f.Tags[name] = append(f.Tags[name], value)
	}

	return f, f.Validate()
}

func splitList(values []string) []string {
	out := []string{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func optionalInt64(q url.Values, key string) (*int64, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not an integer", key, s)
	}
	return &v, nil
}
