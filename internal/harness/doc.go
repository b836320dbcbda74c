// Package harness runs relay conformance scenarios.
//
// A scenario is a YAML file that publishes a sequence of labeled events
// through a fresh engine and then runs filter queries against what was
// stored. Publishers are named, and their keys are derived from the name,
// so a scenario is fully deterministic.
//
// Each step is recorded in a trace that refers to events by label and to
// publishers by name, never by id or public key. Traces are therefore
// stable and can be compared against golden files:
//
//	go test ./internal/harness -update
//
// regenerates testdata/golden/*.golden.
//
// Scenario format:
//
//	name: ordering
//	description: newest first across kinds
//	max_limit: 500            # optional engine ceiling
//	publish:
//	  - label: A
//	    key: alice
//	    created_at: 100
//	    kind: 1
//	    content: first
//	    tags: [[e, ref]]
//	    expect: stored        # stored | duplicate | invalid
//	  - republish: A          # resend an earlier event verbatim
//	    expect: duplicate
//	  - label: bad
//	    key: alice
//	    tamper: content       # content | sig
//	    expect: invalid
//	queries:
//	  - name: kind one
//	    filters:
//	      - {kinds: [1], authors: [alice]}
//	    expect: [[A]]
//
// Filters use the relay wire form. Authors may be given as publisher names.
package harness
