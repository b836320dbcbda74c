package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/packrelay/internal/filter"
)

// DefaultMaxLimit is the result ceiling used when none is configured.
const DefaultMaxLimit = 500

// Columns is the select list every compiled query returns.
const Columns = "id, pubkey, kind, created_at, tags, payload, raw_size, compressed_size"

// orderBy is appended to every query: newest first, id as tiebreaker.
// COLLATE BINARY ensures deterministic text ordering across SQLite versions.
const orderBy = " ORDER BY created_at DESC, id COLLATE BINARY ASC"

// SQLCompiler compiles filters to parameterized SQL for SQLite.
//
// CRITICAL: ALL queries include ORDER BY and LIMIT.
// CRITICAL: All values are parameterized (never interpolated).
type SQLCompiler struct {
	// MaxLimit is the hard ceiling on rows per query. A filter may ask
	// for fewer, never more.
	MaxLimit int
}

// NewSQLCompiler creates a compiler with the given ceiling.
// A non-positive ceiling selects DefaultMaxLimit.
func NewSQLCompiler(maxLimit int) *SQLCompiler {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	return &SQLCompiler{MaxLimit: maxLimit}
}

// EffectiveLimit returns the row cap applied to a filter's limit:
// min(limit, MaxLimit), where a limit of zero or less means MaxLimit.
func (c *SQLCompiler) EffectiveLimit(limit int) int {
	if limit <= 0 || limit > c.MaxLimit {
		return c.MaxLimit
	}
	return limit
}

// Compile converts a filter to a SELECT over the events table.
// Returns (sql, params, error) tuple.
//
// MANDATORY: Every query orders by (created_at DESC, id ASC) and is bounded
// by EffectiveLimit.
func (c *SQLCompiler) Compile(f filter.Filter) (string, []any, error) {
	if c.MaxLimit <= 0 {
		return "", nil, fmt.Errorf("compiler has no result ceiling")
	}
	if f.Limit < 0 {
		return "", nil, fmt.Errorf("negative limit %d", f.Limit)
	}

	whereSQL, params := c.compilePredicates(f)

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(Columns)
	sb.WriteString(" FROM events")
	if whereSQL != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(whereSQL)
	}
	sb.WriteString(orderBy)
	sb.WriteString(" LIMIT ?")
	params = append(params, c.EffectiveLimit(f.Limit))

	return sb.String(), params, nil
}

// compilePredicates builds the conjunction of every constraint present in
// f. Returns "" when f is unconstrained.
func (c *SQLCompiler) compilePredicates(f filter.Filter) (string, []any) {
	var parts []string
	var params []any

	add := func(sql string, p []any) {
		parts = append(parts, sql)
		params = append(params, p...)
	}

	if f.IDs != nil {
		add(compileIn("id", stringParams(f.IDs)))
	}
	if f.Authors != nil {
		add(compileIn("pubkey", stringParams(f.Authors)))
	}
	if f.Kinds != nil {
		kinds := make([]any, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = k
		}
		add(compileIn("kind", kinds))
	}
	if f.Since != nil {
		add("created_at >= ?", []any{*f.Since})
	}
	if f.Until != nil {
		add("created_at <= ?", []any{*f.Until})
	}

	// Sorted so identical filters compile to identical SQL
	for _, name := range f.TagNames() {
		add(compileTag(name, f.Tags[name]))
	}

	return strings.Join(parts, " AND "), params
}

// compileIn compiles "field IN (?, ?, …)".
// An empty set is a constraint nothing satisfies.
func compileIn(field string, values []any) (string, []any) {
	if len(values) == 0 {
		return "0 = 1", nil
	}
	if len(values) == 1 {
		return field + " = ?", values
	}
	return field + " IN (" + placeholders(len(values)) + ")", values
}

// compileTag compiles an exact tag predicate against event_tags.
func compileTag(name string, values []string) (string, []any) {
	if len(values) == 0 {
		return "0 = 1", nil
	}
	valueSQL, valueParams := compileIn("t.value", stringParams(values))
	sql := "EXISTS (SELECT 1 FROM event_tags t WHERE t.event_id = events.id AND t.name = ? AND " + valueSQL + ")"
	return sql, append([]any{name}, valueParams...)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringParams(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
