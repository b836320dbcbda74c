package httpapi

import (
	"context"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/packrelay/internal/filter"
	"github.com/roach88/packrelay/internal/metrics"
	"github.com/roach88/packrelay/internal/relay"
	"github.com/roach88/packrelay/internal/store"
)

// DefaultMaxBodySize bounds POST /events request bodies, in bytes.
const DefaultMaxBodySize = 64 * 1024

// Store is the read side of the storage engine.
type Store interface {
	GetByID(ctx context.Context, id string) (store.StoredEvent, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// Querier executes one filter with the relay's ceiling applied.
type Querier interface {
	Query(ctx context.Context, f filter.Filter) ([]store.StoredEvent, error)
}

// Info describes the relay in health responses.
type Info struct {
	Name        string
	Description string
}

// Server serves the HTTP surface of the relay.
type Server struct {
	store         Store
	querier       Querier
	subscriptions http.Handler
	info          Info
	maxBodySize   int64
	serveMetrics  bool
}

// Option allows configuration of a Server.
type Option func(*Server)

// WithInfo sets the name and description reported by the health endpoint.
func WithInfo(info Info) Option {
	return func(s *Server) {
		s.info = info
	}
}

// WithSubscriptions sets the handler that takes over WebSocket upgrade
// requests on "/". Without it, upgrades get the health response.
func WithSubscriptions(h http.Handler) Option {
	return func(s *Server) {
		s.subscriptions = h
	}
}

// WithMaxBodySize bounds POST request bodies.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		s.maxBodySize = n
	}
}

// WithMetrics toggles GET /metrics. Default: enabled.
func WithMetrics(enabled bool) Option {
	return func(s *Server) {
		s.serveMetrics = enabled
	}
}

// New creates a Server reading from st and querying through q.
func New(st Store, q Querier, opts ...Option) *Server {
	s := &Server{
		store:        st,
		querier:      q,
		info:         Info{Name: "packrelay"},
		maxBodySize:  DefaultMaxBodySize,
		serveMetrics: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// gzipEnvelope gzips event-list responses for clients that accept gzip.
// Responses that already carry a Content-Encoding pass through untouched.
var gzipEnvelope = mustGzipWrapper()

func mustGzipWrapper() func(http.Handler) http.HandlerFunc {
	wrap, err := gzhttp.NewWrapper(
		gzhttp.MinSize(0),
		gzhttp.ContentTypes([]string{"application/json"}),
	)
	if err != nil {
		panic("httpapi: gzip wrapper initialization failed: " + err.Error())
	}
	return wrap
}

// baseEndpoints is advertised by the health response.
var baseEndpoints = []string{
	"GET /",
	"GET /health",
	"GET /event/{id}",
	"GET /events",
	"POST /events",
	"WS /",
}

func (s *Server) endpoints() []string {
	if !s.serveMetrics {
		return baseEndpoints
	}
	return append(append([]string{}, baseEndpoints...), "GET /metrics")
}

// Handler returns the routed handler with CORS and request metrics applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /event/{id}", s.handleGetEvent)
	mux.Handle("GET /events", gzipEnvelope(http.HandlerFunc(s.handleListEvents)))
	mux.Handle("POST /events", gzipEnvelope(http.HandlerFunc(s.handleQueryEvents)))
	if s.serveMetrics {
		mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}

	return metrics.HTTPMiddleware(CORS(mux))
}

// handleRoot hands WebSocket upgrades to the subscription transport and
// answers everything else with health.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.subscriptions != nil && relay.IsUpgrade(r) {
		s.subscriptions.ServeHTTP(w, r)
		return
	}
	s.handleHealth(w, r)
}
