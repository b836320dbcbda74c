package filter

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/packrelay/internal/event"
)

var (
	idA     = strings.Repeat("a", 64)
	idB     = strings.Repeat("b", 64)
	author1 = strings.Repeat("1", 64)
	author2 = strings.Repeat("2", 64)
)

func int64p(v int64) *int64 { return &v }

func TestUnmarshalJSON_AllFields(t *testing.T) {
	var f Filter
	err := json.Unmarshal([]byte(`{
		"ids": ["`+idA+`"],
		"authors": ["`+author1+`"],
		"kinds": [1, 7],
		"#e": ["x", "y"],
		"#t": ["nostr"],
		"since": 100,
		"until": 200,
		"limit": 10,
		"search": "ignored"
	}`), &f)
	require.NoError(t, err)

	assert.Equal(t, []string{idA}, f.IDs)
	assert.Equal(t, []string{author1}, f.Authors)
	assert.Equal(t, []int{1, 7}, f.Kinds)
	assert.Equal(t, map[string][]string{"e": {"x", "y"}, "t": {"nostr"}}, f.Tags)
	assert.Equal(t, int64p(100), f.Since)
	assert.Equal(t, int64p(200), f.Until)
	assert.Equal(t, 10, f.Limit)
	assert.Equal(t, []string{"e", "t"}, f.TagNames())
}

func TestUnmarshalJSON_Empty(t *testing.T) {
	var f Filter
	require.NoError(t, json.Unmarshal([]byte(`{}`), &f))
	assert.True(t, f.IsEmpty())
	assert.Nil(t, f.IDs)
	assert.Nil(t, f.Since)
}

func TestUnmarshalJSON_EmptyListIsAConstraint(t *testing.T) {
	var f Filter
	require.NoError(t, json.Unmarshal([]byte(`{"ids":[]}`), &f))
	assert.NotNil(t, f.IDs)
	assert.False(t, f.IsEmpty())
	assert.False(t, f.Matches(Fields{ID: idA}))
}

func TestUnmarshalJSON_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not an object", `[1,2]`},
		{"kinds not ints", `{"kinds":["one"]}`},
		{"since not int", `{"since":"yesterday"}`},
		{"multi-letter tag", `{"#emoji":["x"]}`},
		{"tag values not strings", `{"#e":[1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Filter
			require.Error(t, json.Unmarshal([]byte(tt.input), &f))
		})
	}
}

func TestMarshalJSON_RoundTrip(t *testing.T) {
	f := Filter{
		IDs:   []string{idA},
		Kinds: []int{1},
		Tags:  map[string][]string{"t": {"nostr"}},
		Since: int64p(5),
		Limit: 3,
	}

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, `{"#t":["nostr"],"ids":["`+idA+`"],"kinds":[1],"limit":3,"since":5}`, string(data))

	var back Filter
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, f, back)
}

func TestMatches(t *testing.T) {
	e := Fields{
		ID:        idA,
		Author:    author1,
		Kind:      1,
		CreatedAt: 150,
		Tags:      event.Tags{{"t", "nostr"}, {"e", idB}},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty matches all", Filter{}, true},
		{"id hit", Filter{IDs: []string{idB, idA}}, true},
		{"id miss", Filter{IDs: []string{idB}}, false},
		{"author hit", Filter{Authors: []string{author1}}, true},
		{"author miss", Filter{Authors: []string{author2}}, false},
		{"kind hit", Filter{Kinds: []int{7, 1}}, true},
		{"kind miss", Filter{Kinds: []int{7}}, false},
		{"since inclusive", Filter{Since: int64p(150)}, true},
		{"since excludes", Filter{Since: int64p(151)}, false},
		{"until inclusive", Filter{Until: int64p(150)}, true},
		{"until excludes", Filter{Until: int64p(149)}, false},
		{"tag hit", Filter{Tags: map[string][]string{"t": {"nostr"}}}, true},
		{"tag substring miss", Filter{Tags: map[string][]string{"t": {"nost"}}}, false},
		{"tag other name miss", Filter{Tags: map[string][]string{"p": {"nostr"}}}, false},
		{"all tags required", Filter{Tags: map[string][]string{"t": {"nostr"}, "e": {idA}}}, false},
		{"conjunction", Filter{Kinds: []int{1}, Authors: []string{author2}}, false},
		{"limit ignored", Filter{Limit: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(e))
		})
	}
}

func TestFieldsOf(t *testing.T) {
	ev := event.Event{ID: idA, PubKey: author1, Kind: 3, CreatedAt: 9, Tags: event.Tags{{"t", "x"}}}
	assert.Equal(t, Fields{ID: idA, Author: author1, Kind: 3, CreatedAt: 9, Tags: ev.Tags}, FieldsOf(ev))
}

func TestFromQuery(t *testing.T) {
	q := url.Values{
		"ids":     {idA + "," + idB},
		"authors": {author1, author2},
		"kinds":   {"1,7"},
		"since":   {"100"},
		"until":   {"200"},
		"limit":   {"25"},
		"tag":     {"t:nostr", "t:go", "e:" + idA},
	}

	f, err := FromQuery(q)
	require.NoError(t, err)

	assert.Equal(t, []string{idA, idB}, f.IDs)
	assert.Equal(t, []string{author1, author2}, f.Authors)
	assert.Equal(t, []int{1, 7}, f.Kinds)
	assert.Equal(t, int64p(100), f.Since)
	assert.Equal(t, int64p(200), f.Until)
	assert.Equal(t, 25, f.Limit)
	assert.Equal(t, map[string][]string{"t": {"nostr", "go"}, "e": {idA}}, f.Tags)
}

func TestFromQuery_AbsentIsUnconstrained(t *testing.T) {
	f, err := FromQuery(url.Values{})
	require.NoError(t, err)
	assert.True(t, f.IsEmpty())
	assert.Equal(t, 0, f.Limit)
}

func TestFromQuery_Errors(t *testing.T) {
	tests := []struct {
		name string
		q    url.Values
	}{
		{"bad kind", url.Values{"kinds": {"one"}}},
		{"bad since", url.Values{"since": {"soon"}}},
		{"bad until", url.Values{"until": {"1.5"}}},
		{"bad limit", url.Values{"limit": {"many"}}},
		{"negative limit", url.Values{"limit": {"-1"}}},
		{"bad id", url.Values{"ids": {"xyz"}}},
		{"bad author", url.Values{"authors": {strings.Repeat("Z", 64)}}},
		{"bad tag", url.Values{"tag": {"nocolon"}}},
		{"long tag name", url.Values{"tag": {"tt:v"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromQuery(tt.q)
			require.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, Filter{}.Validate())
	require.NoError(t, Filter{IDs: []string{idA}, Authors: []string{author1}, Limit: 5}.Validate())
	require.Error(t, Filter{Limit: -5}.Validate())
	require.Error(t, Filter{Tags: map[string][]string{"12": {"x"}}}.Validate())
}
