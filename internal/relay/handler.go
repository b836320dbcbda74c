package relay

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// DefaultReadLimit is the largest frame a session accepts, in bytes.
const DefaultReadLimit = 512 * 1024

// Handler upgrades HTTP requests to subscription sessions.
type Handler struct {
	backend   Backend
	ids       IDGenerator
	readLimit int64
	upgrader  websocket.Upgrader
}

// HandlerOption allows configuration of a Handler.
type HandlerOption func(*Handler)

// WithIDGenerator sets how sessions are named.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) HandlerOption {
	return func(h *Handler) {
		h.ids = g
	}
}

// WithReadLimit sets the largest frame accepted. Larger frames end the
// session.
func WithReadLimit(n int64) HandlerOption {
	return func(h *Handler) {
		h.readLimit = n
	}
}

// NewHandler creates a Handler serving sessions against backend.
func NewHandler(backend Backend, opts ...HandlerOption) *Handler {
	h := &Handler{
		backend:   backend,
		ids:       UUIDv7Generator{},
		readLimit: DefaultReadLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Any origin may connect; the relay has no ambient credentials.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// IsUpgrade reports whether r asks for a subscription session.
func IsUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// ServeHTTP upgrades the connection and serves the session until it ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(h.readLimit)

	// In-flight work runs to completion even if the peer goes away
	ctx := context.WithoutCancel(r.Context())
	newSession(h.ids.Generate(), conn, h.backend).Serve(ctx)
}
