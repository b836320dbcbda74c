package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/packrelay/internal/event"
)

var (
	// ErrStopped is returned by Submit after the engine has stopped.
	ErrStopped = errors.New("engine stopped")

	// ErrQueueFull is returned by Submit when the ingest queue is at
	// capacity.
	ErrQueueFull = errors.New("ingest queue full")
)

// Outcome classifies what happened to a submitted event.
type Outcome int

const (
	// OutcomeStored means the event was new and is now durable.
	OutcomeStored Outcome = iota + 1

	// OutcomeDuplicate means an event with the same id was already stored.
	// Nothing was compressed or written.
	OutcomeDuplicate

	// OutcomeInvalid means the event failed validation and was dropped.
	OutcomeInvalid

	// OutcomeFailed means a storage or queueing error prevented the write.
	OutcomeFailed
)

// String returns the lowercase outcome name, also used as a metrics label.
func (o Outcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeFailed:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the outcome of one Submit.
type Result struct {
	// ID is the event id as submitted.
	ID string

	Outcome Outcome

	// Err is set for OutcomeInvalid and OutcomeFailed.
	Err error
}

// Accepted reports whether the event is stored, either by this submission
// or an earlier one.
func (r Result) Accepted() bool {
	return r.Outcome == OutcomeStored || r.Outcome == OutcomeDuplicate
}

// Reason is the machine-prefixed explanation sent back to publishers.
// Empty for accepted events; "invalid: …" for validation failures;
// "error: …" for everything else.
func (r Result) Reason() string {
	switch r.Outcome {
	case OutcomeStored, OutcomeDuplicate:
		return ""
	case OutcomeInvalid:
		return "invalid: " + errString(r.Err)
	default:
		return "error: " + errString(r.Err)
	}
}

func errString(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}

// invalid builds the Result for a validation failure.
func invalid(id string, err error) Result {
	return Result{ID: id, Outcome: OutcomeInvalid, Err: err}
}

// failed builds the Result for a storage or queueing failure.
func failed(id string, err error) Result {
	if event.IsValidationError(err) {
		return invalid(id, err)
	}
	return Result{ID: id, Outcome: OutcomeFailed, Err: err}
}
