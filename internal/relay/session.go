package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gorilla/websocket"

	"github.com/roach88/packrelay/internal/codec"
	"github.com/roach88/packrelay/internal/engine"
	"github.com/roach88/packrelay/internal/event"
	"github.com/roach88/packrelay/internal/filter"
	"github.com/roach88/packrelay/internal/metrics"
	"github.com/roach88/packrelay/internal/store"
)

// Backend is what a session needs from the engine.
type Backend interface {
	Submit(ctx context.Context, ev event.Event) engine.Result
	QueryAll(ctx context.Context, filters []filter.Filter) ([][]store.StoredEvent, error)
}

// Session is one subscription connection. It exclusively owns its
// subscription map: the map is created on connect, mutated only by the
// session's own goroutine, and dropped on disconnect.
//
// Frames are handled strictly in arrival order; a publish or backfill runs
// to completion before the next frame is read.
type Session struct {
	id      string
	conn    *websocket.Conn
	backend Backend
	logger  *slog.Logger

	// subs maps subscription name to its filter set.
	subs map[string][]filter.Filter
}

func newSession(id string, conn *websocket.Conn, backend Backend) *Session {
	return &Session{
		id:      id,
		conn:    conn,
		backend: backend,
		logger:  slog.With("session", id),
		subs:    make(map[string][]filter.Filter),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Subscriptions returns the active subscription names, sorted.
func (s *Session) Subscriptions() []string {
	names := make([]string, 0, len(s.subs))
	for name := range s.subs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Serve reads and handles frames until the connection ends.
// Work is never cancelled: ctx only carries values.
func (s *Session) Serve(ctx context.Context) {
	metrics.SessionsActive.Inc()
	s.logger.Info("session opened", "remote", s.conn.RemoteAddr().String())

	defer s.teardown()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Warn("session read failed", "error", err)
			}
			return
		}

		if msgType != websocket.TextMessage {
			s.logMalformed(malformed(nil, "binary frame"))
			continue
		}

		if err := s.handle(ctx, data); err != nil {
			s.logger.Warn("session write failed", "error", err)
			return
		}
	}
}

// teardown releases everything the session owns.
func (s *Session) teardown() {
	metrics.SubscriptionsActive.Sub(float64(len(s.subs)))
	metrics.SessionsActive.Dec()
	s.subs = nil
	s.conn.Close()
	s.logger.Info("session closed")
}

// handle processes one frame. The returned error is a transport failure;
// malformed input is logged here and never returned.
func (s *Session) handle(ctx context.Context, data []byte) error {
	msg, err := ParseMessage(data)
	if err != nil {
		s.logMalformed(err)
		return nil
	}
	metrics.MessagesReceived.WithLabelValues(msg.Type()).Inc()

	switch m := msg.(type) {
	case *EventMessage:
		return s.handleEvent(ctx, m)
	case *ReqMessage:
		return s.handleReq(ctx, m)
	case *CloseMessage:
		s.handleClose(m)
		return nil
	default:
		s.logMalformed(malformed(nil, "unhandled message type %s", msg.Type()))
		return nil
	}
}

func (s *Session) logMalformed(err error) {
	metrics.MessagesReceived.WithLabelValues("malformed").Inc()
	s.logger.Warn("ignoring malformed message", "error", err)
}

// handleEvent publishes one event and acknowledges it.
func (s *Session) handleEvent(ctx context.Context, m *EventMessage) error {
	res := s.backend.Submit(ctx, m.Event)

	if !res.Accepted() {
		s.logger.Info("event rejected", "id", res.ID, "reason", res.Reason())
	}

	frame, err := okFrame(res.ID, res.Accepted(), res.Reason())
	if err != nil {
		return fmt.Errorf("encode OK: %w", err)
	}
	return s.write(frame)
}

// handleReq replaces the named subscription and streams its backfill:
// each filter's results in that filter's order, then one EOSE.
func (s *Session) handleReq(ctx context.Context, m *ReqMessage) error {
	if _, exists := s.subs[m.SubscriptionID]; !exists {
		metrics.SubscriptionsActive.Inc()
	}
	s.subs[m.SubscriptionID] = m.Filters

	results, err := s.backend.QueryAll(ctx, m.Filters)
	if err != nil {
		// The subscription stays registered; the client still gets EOSE.
		s.logger.Error("backfill query failed", "subscription", m.SubscriptionID, "error", err)
		results = nil
	}

	sent := 0
	for _, events := range results {
		for _, ev := range events {
			canonical, err := codec.Decode(ev.Payload, ev.RawSize)
			if err != nil {
				s.logger.Error("skipping undecodable event", "id", ev.ID, "error", err)
				continue
			}
			frame, err := eventFrame(m.SubscriptionID, canonical)
			if err != nil {
				return fmt.Errorf("encode EVENT: %w", err)
			}
			if err := s.write(frame); err != nil {
				return err
			}
			sent++
		}
	}

	s.logger.Debug("backfill complete", "subscription", m.SubscriptionID, "filters", len(m.Filters), "events", sent)

	frame, err := eoseFrame(m.SubscriptionID)
	if err != nil {
		return fmt.Errorf("encode EOSE: %w", err)
	}
	return s.write(frame)
}

// handleClose drops the named subscription. Unknown names are ignored.
func (s *Session) handleClose(m *CloseMessage) {
	if _, exists := s.subs[m.SubscriptionID]; !exists {
		return
	}
	delete(s.subs, m.SubscriptionID)
	metrics.SubscriptionsActive.Dec()
}

func (s *Session) write(frame []byte) error {
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
