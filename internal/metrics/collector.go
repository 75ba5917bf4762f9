package metrics

import (
	"context"
	"time"

	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
)

// FleetStats is the store surface the collector polls.
type FleetStats interface {
	CollectionCounts(ctx context.Context) (map[string]int64, error)
	StatusSummary(ctx context.Context) (map[string]int64, error)
}

// Collector periodically refreshes the fleet-wide gauges from the store.
type Collector struct {
	stats    FleetStats
	interval time.Duration

	// statuses previously seen, so vanished statuses are zeroed
	seenStatuses map[string]struct{}
}

// NewCollector builds a gauge collector polling at the given interval.
func NewCollector(stats FleetStats, interval time.Duration) *Collector {
	return &Collector{
		stats:        stats,
		interval:     interval,
		seenStatuses: make(map[string]struct{}),
	}
}

// Start runs the collection loop until the context is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Collector) collect(ctx context.Context) {
	log := logger.WithComponent("metrics")

	counts, err := c.stats.CollectionCounts(ctx)
	if err != nil {
		log.Warn("collection counts failed", "err", err)
		MetricsCollectionErrors.WithLabelValues("collections").Inc()
	} else {
		for name, n := range counts {
			DocumentsTotal.WithLabelValues(name).Set(float64(n))
		}
	}

	summary, err := c.stats.StatusSummary(ctx)
	if err != nil {
		log.Warn("status summary failed", "err", err)
		MetricsCollectionErrors.WithLabelValues("scrapers").Inc()
		return
	}
	for status := range c.seenStatuses {
		if _, still := summary[status]; !still {
			ScrapersByStatus.WithLabelValues(status).Set(0)
		}
	}
	for status, n := range summary {
		c.seenStatuses[status] = struct{}{}
		ScrapersByStatus.WithLabelValues(status).Set(float64(n))
	}
}
