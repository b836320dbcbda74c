package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/packrelay/internal/store"
)

// Storage metrics
var (
	// StoredEvents is the number of events in the store
	StoredEvents = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_events",
			Help:      "Number of events in the store",
		},
	)

	// StoredBytes is the total size of stored events
	StoredBytes = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_bytes",
			Help:      "Total size of stored events in bytes",
		},
		[]string{"form"}, // form: raw|compressed
	)

	// CompressionRatio is raw bytes over compressed bytes across the store
	CompressionRatio = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "compression_ratio",
			Help:      "Raw size divided by compressed size across all stored events",
		},
	)
)

// StatsSource is anything that can report aggregate store totals.
type StatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// StorageCollector periodically samples store totals
type StorageCollector struct {
	source StatsSource
}

// NewStorageCollector creates a new storage metrics collector
func NewStorageCollector(source StatsSource) *StorageCollector {
	return &StorageCollector{source: source}
}

// Start samples at the given interval until ctx is cancelled.
func (c *StorageCollector) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	c.Collect(ctx)

	for {
		select {
		case <-ticker.C:
			c.Collect(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Collect takes one sample.
func (c *StorageCollector) Collect(ctx context.Context) {
	st, err := c.source.Stats(ctx)
	if err != nil {
		slog.Warn("storage metrics sample failed", "error", err)
		return
	}
	StoredEvents.Set(float64(st.Events))
	StoredBytes.WithLabelValues("raw").Set(float64(st.RawBytes))
	StoredBytes.WithLabelValues("compressed").Set(float64(st.CompressedBytes))
	CompressionRatio.Set(st.Ratio())
}
