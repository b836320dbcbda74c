// Package querysql compiles relay filters to parameterized SQLite queries.
//
// The compiled form reads only the uncompressed index columns of the events
// table and the event_tags table. Payloads are selected but never inspected.
package querysql
