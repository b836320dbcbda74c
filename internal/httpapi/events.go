package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/roach88/packrelay/internal/codec"
	"github.com/roach88/packrelay/internal/filter"
	"github.com/roach88/packrelay/internal/store"
)

// handleGetEvent serves one event. A client that accepts zstd receives the
// stored payload byte-for-byte; any other client gets it decoded.
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ev, err := s.store.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found", ID: id})
		return
	}
	if err != nil {
		slog.Error("get event failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h := w.Header()
	h.Set("Vary", "Accept-Encoding")

	if codec.Accepts(r.Header.Get("Accept-Encoding"), codec.Encoding) {
		h.Set("Content-Encoding", codec.Encoding)
		h.Set("X-Precompressed", "true")
		h.Set("Content-Length", strconv.Itoa(len(ev.Payload)))
		writeBody(w, ev.Payload)
		return
	}

	canonical, err := codec.Decode(ev.Payload, ev.RawSize)
	if err != nil {
		slog.Error("decode event failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeBody(w, canonical)
}

// handleListEvents runs a filter given as query parameters.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	f, err := filter.FromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.serveEvents(w, r, f)
}

// handleQueryEvents runs a filter given as a JSON request body.
func (s *Server) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	var f filter.Filter
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodySize))
	if err := dec.Decode(&f); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid filter: %v", err))
		return
	}
	if err := f.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.serveEvents(w, r, f)
}

// serveEvents executes f and writes the results as one JSON array. Each
// member is the decoded canonical serialization spliced in as-is. Clients
// that accept zstd get the array zstd-compressed here; gzip is applied by
// the wrapper installed in Handler.
func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request, f filter.Filter) {
	events, err := s.querier.Query(r.Context(), f)
	if err != nil {
		slog.Error("query events failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	body, err := spliceEvents(events)
	if err != nil {
		slog.Error("decode events failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h := w.Header()
	h.Set("Vary", "Accept-Encoding")
	h.Set("X-Event-Count", strconv.Itoa(len(events)))
	if codec.Accepts(r.Header.Get("Accept-Encoding"), codec.Encoding) {
		body = codec.CompressEnvelope(body)
		h.Set("Content-Encoding", codec.Encoding)
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	writeBody(w, body)
}

// spliceEvents builds "[e1,e2,…]" from stored payloads without re-marshaling
// any event.
func spliceEvents(events []store.StoredEvent) ([]byte, error) {
	size := 2
	for _, ev := range events {
		size += ev.RawSize + 1
	}

	buf := make([]byte, 0, size)
	buf = append(buf, '[')
	for i, ev := range events {
		canonical, err := codec.Decode(ev.Payload, ev.RawSize)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, canonical...)
	}
	buf = append(buf, ']')
	return buf, nil
}
