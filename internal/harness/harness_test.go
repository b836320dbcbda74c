package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/packrelay/internal/testutil"
)

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return s
}

func TestRun_MinimalScenario(t *testing.T) {
	result, err := Run(mustParse(t, minimalScenario+`
queries:
  - name: all
    filters: [{}]
    expect: [[A]]
`))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, TraceEvent{Type: TracePublish, Seq: 1, Label: "A", Outcome: "stored"}, result.Trace[0])
	assert.Equal(t, TraceEvent{Type: TraceQuery, Seq: 2, Query: "all", Results: [][]string{{"A"}}}, result.Trace[1])
}

func TestRun_OutcomeMismatchReported(t *testing.T) {
	result, err := Run(mustParse(t, `
name: mismatch
description: a valid event expected to be rejected
publish:
  - label: A
    key: alice
    created_at: 1
    kind: 1
    content: fine
    expect: invalid
`))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "publish[0] A: expected invalid, got stored")
}

func TestRun_InvalidReasonInError(t *testing.T) {
	result, err := Run(mustParse(t, `
name: reason
description: a tampered event expected to be stored
publish:
  - label: A
    key: alice
    created_at: 1
    kind: 1
    content: fine
    tamper: content
    expect: stored
`))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "got invalid (invalid: ")
}

func TestRun_QueryMismatchReported(t *testing.T) {
	result, err := Run(mustParse(t, minimalScenario+`
queries:
  - name: wrong
    filters: [{kinds: [2]}]
    expect: [[A]]
`))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, `query "wrong": expected [[A]], got [[]]`, result.Errors[0])
}

func TestRun_UncheckedStepsOnlyTrace(t *testing.T) {
	result, err := Run(mustParse(t, minimalScenario+`
queries:
  - name: unchecked
    filters: [{kinds: [2]}]
`))
	require.NoError(t, err)
	assert.True(t, result.Pass)
	assert.Equal(t, [][]string{{}}, result.Trace[1].Results)
}

func TestRun_Deterministic(t *testing.T) {
	s := mustParse(t, `
name: twice
description: same scenario, same trace
publish:
  - {label: A, key: alice, created_at: 5, kind: 1, content: a}
  - {label: B, key: bob, created_at: 5, kind: 1, content: b}
  - {label: C, key: carol, created_at: 5, kind: 1, content: c}
queries:
  - name: ties
    filters: [{}]
`)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Len(t, first.Trace[3].Results[0], 3)
}

func TestRun_FreshDatabasePerRun(t *testing.T) {
	s := mustParse(t, minimalScenario+"    expect: stored\n")

	for i := 0; i < 2; i++ {
		result, err := Run(s)
		require.NoError(t, err)
		assert.True(t, result.Pass, "run %d: %v", i, result.Errors)
	}
}

func TestRun_AuthorsByKey(t *testing.T) {
	alice := testutil.PubKeyHex(testutil.NamedKey("alice"))
	result, err := Run(mustParse(t, minimalScenario+`
queries:
  - name: by hex key
    filters: [{authors: ["`+alice+`"]}]
    expect: [[A]]
  - name: by name
    filters: [{authors: [alice]}]
    expect: [[A]]
  - name: other publisher
    filters: [{authors: [bob]}]
    expect: [[]]
`))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestFlipLastHex(t *testing.T) {
	assert.Equal(t, "ab0", flipLastHex("abc"))
	assert.Equal(t, "ab1", flipLastHex("ab0"))
	assert.Equal(t, "", flipLastHex(""))
}

func TestIsPubKey(t *testing.T) {
	assert.True(t, isPubKey(strings.Repeat("0f", 32)))
	assert.False(t, isPubKey("alice"))
	assert.False(t, isPubKey(strings.Repeat("zz", 32)))
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestResult_SeqFollowsTrace(t *testing.T) {
	r := NewResult()
	r.AddPublishTrace("A", "stored")
	r.AddQueryTrace("q", [][]string{{"A"}})
	r.AddPublishTrace("B", "invalid")

	for i, ev := range r.Trace {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}
