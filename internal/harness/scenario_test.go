package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: one event
publish:
  - label: A
    key: alice
    created_at: 1
    kind: 1
    content: hi
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Publish, 1)
	assert.Equal(t, "alice", s.Publish[0].Key)
	assert.Equal(t, int64(1), s.Publish[0].CreatedAt)
	assert.Empty(t, s.Queries)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "malformed yaml",
			yaml: "name: [unclosed",
			want: "failed to parse YAML",
		},
		{
			name: "unknown field",
			yaml: minimalScenario + "querys: []\n",
			want: "field querys not found",
		},
		{
			name: "missing name",
			yaml: "description: x\npublish: [{label: A, key: k}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: x\npublish: [{label: A, key: k}]\n",
			want: "description is required",
		},
		{
			name: "no publish steps",
			yaml: "name: x\ndescription: x\n",
			want: "publish list is required",
		},
		{
			name: "negative max limit",
			yaml: "name: x\ndescription: x\nmax_limit: -1\npublish: [{label: A, key: k}]\n",
			want: "max_limit must not be negative",
		},
		{
			name: "missing label",
			yaml: "name: x\ndescription: x\npublish: [{key: k}]\n",
			want: "publish[0]: label is required",
		},
		{
			name: "missing key",
			yaml: "name: x\ndescription: x\npublish: [{label: A}]\n",
			want: "publish[0]: key is required",
		},
		{
			name: "duplicate label",
			yaml: "name: x\ndescription: x\npublish: [{label: A, key: k}, {label: A, key: k}]\n",
			want: `publish[1]: duplicate label "A"`,
		},
		{
			name: "unknown expect",
			yaml: "name: x\ndescription: x\npublish: [{label: A, key: k, expect: accepted}]\n",
			want: `unknown expect "accepted"`,
		},
		{
			name: "unknown tamper",
			yaml: "name: x\ndescription: x\npublish: [{label: A, key: k, tamper: pubkey}]\n",
			want: `unknown tamper "pubkey"`,
		},
		{
			name: "republish before publish",
			yaml: "name: x\ndescription: x\npublish: [{republish: A}, {label: A, key: k}]\n",
			want: `unknown label "A"`,
		},
		{
			name: "republish with fields",
			yaml: "name: x\ndescription: x\npublish: [{label: A, key: k}, {republish: A, content: changed}]\n",
			want: "republish cannot set event fields",
		},
		{
			name: "query without name",
			yaml: minimalScenario + "queries: [{filters: [{}]}]\n",
			want: "queries[0]: name is required",
		},
		{
			name: "query without filters",
			yaml: minimalScenario + "queries: [{name: q}]\n",
			want: "filters list is required",
		},
		{
			name: "expect length mismatch",
			yaml: minimalScenario + "queries: [{name: q, filters: [{}], expect: [[A], [A]]}]\n",
			want: "expect has 2 lists for 1 filters",
		},
		{
			name: "bad filter",
			yaml: minimalScenario + "queries: [{name: q, filters: [{limit: -1}]}]\n",
			want: "queries[0].filters[0]: limit",
		},
		{
			name: "bad tag key",
			yaml: minimalScenario + "queries: [{name: q, filters: [{\"#ee\": [x]}]}]\n",
			want: "invalid tag key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScenario_Republish(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario + "  - republish: A\n    expect: duplicate\n"))
	require.NoError(t, err)
	require.Len(t, s.Publish, 2)
	assert.Equal(t, "A", s.Publish[1].Republish)
	assert.Equal(t, "duplicate", s.Publish[1].Expect)
}

func TestParseFilter_WireForm(t *testing.T) {
	f, err := parseFilter(map[string]any{
		"kinds": []any{1, 7},
		"#e":    []any{"ref"},
		"since": 10,
		"limit": 3,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 7}, f.Kinds)
	assert.Equal(t, map[string][]string{"e": {"ref"}}, f.Tags)
	require.NotNil(t, f.Since)
	assert.Equal(t, int64(10), *f.Since)
	assert.Equal(t, 3, f.Limit)
}

func TestParseFilter_ResolvesAuthors(t *testing.T) {
	raw := map[string]any{"authors": []any{"alice"}}

	f, err := parseFilter(raw, func(name string) string {
		assert.Equal(t, "alice", name)
		return strings.Repeat("ab", 32)
	})
	require.NoError(t, err)
	require.Len(t, f.Authors, 1)
	assert.Equal(t, strings.Repeat("ab", 32), f.Authors[0])
	assert.Equal(t, []any{"alice"}, raw["authors"], "the scenario's filter is not modified")
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(minimalScenario), 0o644))
	}

	files, err := FindScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}, files)

	single, err := FindScenarios(files[1])
	require.NoError(t, err)
	assert.Equal(t, []string{files[1]}, single)

	_, err = FindScenarios(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestLoadExampleScenarios(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			_, err := LoadScenario(file)
			assert.NoError(t, err)
		})
	}
}
