package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/packrelay/internal/event"
	"github.com/roach88/packrelay/internal/filter"
)

// Frame labels. Every frame is a JSON array whose first element is one of
// these.
const (
	// Client to relay
	TypeEvent = "EVENT"
	TypeReq   = "REQ"
	TypeClose = "CLOSE"

	// Relay to client
	TypeOK   = "OK"
	TypeEOSE = "EOSE"
)

// maxSubscriptionID bounds caller-chosen subscription names.
const maxSubscriptionID = 64

// Message is a parsed client frame: *EventMessage, *ReqMessage or
// *CloseMessage.
type Message interface {
	Type() string
}

// EventMessage is ["EVENT", <event>]: publish one event.
type EventMessage struct {
	Event event.Event
}

// ReqMessage is ["REQ", <name>, <filter>, <filter>…]: replace the named
// subscription and backfill it.
type ReqMessage struct {
	SubscriptionID string
	Filters        []filter.Filter
}

// CloseMessage is ["CLOSE", <name>]: drop the named subscription.
type CloseMessage struct {
	SubscriptionID string
}

func (*EventMessage) Type() string { return TypeEvent }
func (*ReqMessage) Type() string   { return TypeReq }
func (*CloseMessage) Type() string { return TypeClose }

// MalformedError reports a client frame that could not be understood.
// Malformed frames are logged and otherwise ignored.
type MalformedError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed message: %s: %v", e.Reason, e.Err)
	}
	return "malformed message: " + e.Reason
}

// Unwrap returns the underlying error.
func (e *MalformedError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is or wraps a *MalformedError.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}

func malformed(err error, format string, args ...any) *MalformedError {
	return &MalformedError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// ParseMessage decodes one client frame.
// Every failure is a *MalformedError.
func ParseMessage(data []byte) (Message, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, malformed(err, "not a JSON array")
	}
	if len(parts) == 0 {
		return nil, malformed(nil, "empty array")
	}

	var label string
	if err := json.Unmarshal(parts[0], &label); err != nil {
		return nil, malformed(err, "label is not a string")
	}

	switch label {
	case TypeEvent:
		if len(parts) != 2 {
			return nil, malformed(nil, "EVENT takes exactly one event, got %d elements", len(parts)-1)
		}
		ev, err := event.Parse(parts[1])
		if err != nil {
			return nil, malformed(err, "EVENT payload")
		}
		return &EventMessage{Event: ev}, nil

	case TypeReq:
		if len(parts) < 3 {
			return nil, malformed(nil, "REQ needs a subscription id and at least one filter")
		}
		subID, err := parseSubscriptionID(parts[1])
		if err != nil {
			return nil, err
		}
		filters := make([]filter.Filter, 0, len(parts)-2)
		for i, raw := range parts[2:] {
			var f filter.Filter
			if err := json.Unmarshal(raw, &f); err != nil {
				return nil, malformed(err, "REQ filter %d", i)
			}
			if err := f.Validate(); err != nil {
				return nil, malformed(err, "REQ filter %d", i)
			}
			filters = append(filters, f)
		}
		return &ReqMessage{SubscriptionID: subID, Filters: filters}, nil

	case TypeClose:
		if len(parts) != 2 {
			return nil, malformed(nil, "CLOSE takes exactly one subscription id")
		}
		subID, err := parseSubscriptionID(parts[1])
		if err != nil {
			return nil, err
		}
		return &CloseMessage{SubscriptionID: subID}, nil

	default:
		return nil, malformed(nil, "unknown message type %q", label)
	}
}

func parseSubscriptionID(raw json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", malformed(err, "subscription id is not a string")
	}
	if id == "" || len(id) > maxSubscriptionID {
		return "", malformed(nil, "subscription id must be 1-%d bytes", maxSubscriptionID)
	}
	return id, nil
}

// okFrame renders ["OK", id, accepted, reason].
func okFrame(id string, accepted bool, reason string) ([]byte, error) {
	return json.Marshal([]any{TypeOK, id, accepted, reason})
}

// eoseFrame renders ["EOSE", name].
func eoseFrame(subID string) ([]byte, error) {
	return json.Marshal([]string{TypeEOSE, subID})
}

// eventFrame renders ["EVENT", name, <event>] by splicing the stored
// canonical serialization in as-is.
func eventFrame(subID string, canonical []byte) ([]byte, error) {
	name, err := json.Marshal(subID)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(`["EVENT",,]`)+len(name)+len(canonical))
	buf = append(buf, `["EVENT",`...)
	buf = append(buf, name...)
	buf = append(buf, ',')
	buf = append(buf, canonical...)
	buf = append(buf, ']')
	return buf, nil
}
