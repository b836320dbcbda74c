package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/packrelay/internal/codec"
	"github.com/roach88/packrelay/internal/event"
	"github.com/roach88/packrelay/internal/filter"
	"github.com/roach88/packrelay/internal/metrics"
	"github.com/roach88/packrelay/internal/querysql"
	"github.com/roach88/packrelay/internal/store"
)

// DefaultQueueSize is the default number of submissions that may wait for
// the writer.
const DefaultQueueSize = 1024

// Engine owns the ingest pipeline and the query path.
//
// CRITICAL: All store writes happen in the single-writer Run loop goroutine.
// Connection goroutines call Submit, which validates in the caller and then
// hands the event to the loop.
//
// Thread-safety model:
//   - Submit(), Query(), QueryAll(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	store    *store.Store
	compiler *querysql.SQLCompiler
	queue    *ingestQueue

	maxLimit  int
	queueSize int
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithMaxLimit sets the hard ceiling on events returned per filter.
//
// Default: querysql.DefaultMaxLimit. Callers can ask for fewer, never more.
func WithMaxLimit(n int) Option {
	return func(e *Engine) {
		e.maxLimit = n
	}
}

// WithQueueSize bounds the number of submissions waiting for the writer.
// Submissions beyond it fail with ErrQueueFull. Zero means unbounded.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		e.queueSize = n
	}
}

// New creates an Engine over s.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		maxLimit:  querysql.DefaultMaxLimit,
		queueSize: DefaultQueueSize,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.compiler = querysql.NewSQLCompiler(e.maxLimit)
	e.maxLimit = e.compiler.MaxLimit
	e.queue = newIngestQueue(e.queueSize)
	return e
}

// MaxLimit returns the per-filter result ceiling in effect.
func (e *Engine) MaxLimit() int {
	return e.maxLimit
}

// Submit validates ev and, if it is authentic, waits for the Run loop to
// store it. Safe from any goroutine.
//
// Validation failures are returned without touching the queue. If ctx ends
// before the writer replies, Submit returns early with OutcomeFailed; the
// write itself still completes.
func (e *Engine) Submit(ctx context.Context, ev event.Event) Result {
	if err := event.Validate(ev); err != nil {
		return record(invalid(ev.ID, err))
	}

	sub := submission{ev: ev, reply: make(chan Result, 1)}
	if err := e.queue.Enqueue(sub); err != nil {
		return record(failed(ev.ID, err))
	}
	metrics.IngestQueueDepth.Set(float64(e.queue.Len()))

	select {
	case res := <-sub.reply:
		return record(res)
	case <-ctx.Done():
		return record(failed(ev.ID, ctx.Err()))
	}
}

// record updates ingest counters for a finished submission.
func record(r Result) Result {
	metrics.EventsIngested.WithLabelValues(r.Outcome.String()).Inc()
	return r
}

// Run starts the single-writer ingest loop.
// Blocks until ctx is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// On shutdown, submissions already queued are still written so that every
// waiting Submit gets a reply. Writes never observe cancellation.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("ingest loop starting", "max_limit", e.maxLimit, "queue_size", e.queueSize)
	writeCtx := context.WithoutCancel(ctx)

	for {
		if sub, ok := e.queue.TryDequeue(); ok {
			e.process(writeCtx, sub)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("ingest loop stopping: context cancelled")
			e.queue.Close()
			e.drain(writeCtx)
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed,
			// which will cause this case to fire immediately
			if e.queue.Len() == 0 && e.queue.Closed() {
				slog.Info("ingest loop stopping: queue closed")
				return nil
			}
		}
	}
}

// drain writes whatever is still queued.
func (e *Engine) drain(ctx context.Context) {
	for {
		sub, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		e.process(ctx, sub)
	}
}

// Stop gracefully shuts down the ingest loop.
// Closes the queue, which will cause Run() to return once it is empty.
func (e *Engine) Stop() {
	e.queue.Close()
}

// process writes one submission and replies.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) process(ctx context.Context, sub submission) {
	metrics.IngestQueueDepth.Set(float64(e.queue.Len()))
	start := time.Now()

	res := e.ingest(ctx, sub.ev)
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	if res.Outcome == OutcomeFailed {
		slog.Error("ingest failed", "id", res.ID, "error", res.Err)
	} else {
		slog.Debug("ingested", "id", res.ID, "outcome", res.Outcome.String())
	}

	sub.reply <- res
}

// ingest runs the duplicate check, compression and write for an already
// validated event. Duplicates are detected before compressing, so an event
// is compressed at most once however often it is republished.
func (e *Engine) ingest(ctx context.Context, ev event.Event) Result {
	exists, err := e.store.Has(ctx, ev.ID)
	if err != nil {
		return failed(ev.ID, err)
	}
	if exists {
		return Result{ID: ev.ID, Outcome: OutcomeDuplicate}
	}

	enc := codec.Encode(ev)
	put, err := e.store.Put(ctx, store.StoredEvent{
		ID:             ev.ID,
		PubKey:         ev.PubKey,
		Kind:           ev.Kind,
		CreatedAt:      ev.CreatedAt,
		Tags:           ev.Tags,
		Payload:        enc.Payload,
		RawSize:        enc.RawSize,
		CompressedSize: enc.CompressedSize,
	})
	if err != nil {
		return failed(ev.ID, err)
	}
	if put.Duplicate {
		return Result{ID: ev.ID, Outcome: OutcomeDuplicate}
	}

	metrics.IngestBytes.WithLabelValues("raw").Add(float64(enc.RawSize))
	metrics.IngestBytes.WithLabelValues("compressed").Add(float64(enc.CompressedSize))
	return Result{ID: ev.ID, Outcome: OutcomeStored}
}

// Query returns the stored events matching f, newest first (ties by id
// ascending), at most min(f.Limit, MaxLimit) of them. A limit of zero means
// MaxLimit. Reads go straight to the store's read pool.
func (e *Engine) Query(ctx context.Context, f filter.Filter) ([]store.StoredEvent, error) {
	start := time.Now()

	query, params, err := e.compiler.Compile(f)
	if err != nil {
		metrics.QueryErrors.Inc()
		return nil, fmt.Errorf("compile filter: %w", err)
	}

	events, err := e.store.QueryEvents(ctx, query, params...)
	metrics.QueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueryErrors.Inc()
		return nil, err
	}

	metrics.QueryResults.Observe(float64(len(events)))
	return events, nil
}

// QueryAll runs each filter independently, in order, and returns one result
// slice per filter. Results are not merged or deduplicated across filters.
func (e *Engine) QueryAll(ctx context.Context, filters []filter.Filter) ([][]store.StoredEvent, error) {
	out := make([][]store.StoredEvent, 0, len(filters))
	for i, f := range filters {
		events, err := e.Query(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		out = append(out, events)
	}
	return out, nil
}
