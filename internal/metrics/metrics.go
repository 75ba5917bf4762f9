package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scraper cycle metrics
	ScrapeCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_cycles_total",
			Help: "Total number of scrape cycles completed",
		},
		[]string{"status"}, // status: success, failed
	)

	ScrapePhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_phase_duration_seconds",
			Help:    "Duration of scrape phases in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"phase"}, // phase: posts, metadata, verify, comments
	)

	ScrapePhaseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_phase_errors_total",
			Help: "Total number of scrape phase failures after retries",
		},
		[]string{"phase"},
	)

	PostsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "posts_upserted_total",
			Help: "Total number of posts written to the store",
		},
	)

	CommentsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comments_upserted_total",
			Help: "Total number of comments written to the store",
		},
	)

	GhostPostsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghost_posts_detected_total",
			Help: "Total number of posts whose claimed comments never materialized",
		},
	)

	// Reddit API transport metrics
	RedditHTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reddit_http_requests_total",
			Help: "Total number of HTTP requests made to the Reddit API",
		},
		[]string{"status"}, // status: success, retry, error
	)

	RedditHTTPRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reddit_http_retries_total",
			Help: "Total number of HTTP request retries",
		},
	)

	RedditRetryAfterWaits = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reddit_retry_after_wait_seconds",
			Help:    "Duration of Retry-After waits in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	RedditBudgetWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reddit_budget_waits_total",
			Help: "Total number of times a worker slept for rate budget recovery",
		},
	)

	RedditBudgetRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reddit_budget_remaining",
			Help: "Most recent X-Ratelimit-Remaining value observed",
		},
	)

	RedditRequestCost = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reddit_request_cost_dollars_total",
			Help: "Estimated cumulative cost of Reddit API requests in dollars",
		},
	)

	// Store operation metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of document store operations",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operation_errors_total",
			Help: "Total number of document store operation errors",
		},
		[]string{"operation"},
	)

	// Supervisor metrics
	ScrapersRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrapers_running",
			Help: "Number of scraper sub-processes currently running",
		},
	)

	ScraperRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_restarts_total",
			Help: "Total number of scraper restarts by the liveness loop",
		},
		[]string{"reason"}, // reason: crashed, manual
	)

	// Enrichment metrics
	EnrichmentProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_processed_total",
			Help: "Total number of subreddits processed by the enrichment worker",
		},
		[]string{"status"}, // status: completed, failed
	)

	EnrichmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrichment_duration_seconds",
			Help:    "Duration of per-subreddit enrichment in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// Suggestions sync metrics
	SuggestionsSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestions_synced_total",
			Help: "Total number of suggestions processed by the sync worker",
		},
		[]string{"status"}, // status: synced, skipped
	)

	// API cache metrics
	APICacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_hits_total",
			Help: "Total number of API cache hits",
		},
		[]string{"endpoint"},
	)

	APICacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_misses_total",
			Help: "Total number of API cache misses",
		},
		[]string{"endpoint"},
	)

	// Fleet-wide gauges maintained by the collector
	DocumentsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_documents_total",
			Help: "Estimated document count per collection (-1 signals stale data)",
		},
		[]string{"collection"},
	)

	ScrapersByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_scrapers_by_status",
			Help: "Number of scraper instances per status",
		},
		[]string{"status"},
	)

	MetricsCollectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_collection_errors_total",
			Help: "Total number of errors while collecting fleet gauges",
		},
		[]string{"source"},
	)

	// Provider circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips to open",
		},
		[]string{"name"},
	)

	// Control-plane request metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)
)
