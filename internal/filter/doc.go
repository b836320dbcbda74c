// Package filter defines the declarative query used for both bulk HTTP
// retrieval and subscription backfill.
//
// A Filter is a conjunction of optional constraints. A nil slice or nil
// bound means "unconstrained"; a non-nil empty slice is a constraint that
// nothing satisfies. Tag predicates are exact: an event matches #t=[v] only
// if it carries a tag ["t", v, ...].
//
// Matches is the in-memory form of the predicate that querysql compiles to
// SQL. The two must agree; tests check one against the other.
package filter
