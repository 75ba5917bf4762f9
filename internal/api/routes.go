package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/reddit-scraper-fleet/internal/api/handlers"
	"github.com/onnwee/reddit-scraper-fleet/internal/metrics"
	"github.com/onnwee/reddit-scraper-fleet/internal/middleware"
)

// NewRouter mounts the control-plane routes.
func NewRouter(d *handlers.Deps) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RecoverWithSentry)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg := d.Cfg; cfg != nil && cfg.EnableRateLimit {
		limiter := middleware.NewRateLimiter(cfg.RateLimitGlobal, cfg.RateLimitGlobalBurst,
			cfg.RateLimitPerIP, cfg.RateLimitPerIPBurst)
		r.Use(limiter.Limit)
	}
	r.Use(middleware.ValidateRequestBody)
	r.Use(middleware.Gzip)
	r.Use(instrument)

	// Fleet control
	r.HandleFunc("/scrapers/start-flexible", handlers.StartFlexible(d)).Methods("POST")
	r.HandleFunc("/scrapers/restart-all-failed", handlers.RestartAllFailed(d)).Methods("POST")
	r.HandleFunc("/scrapers/status-summary", handlers.StatusSummary(d)).Methods("GET")
	r.HandleFunc("/scrapers", handlers.ListScrapers(d)).Methods("GET")
	r.HandleFunc("/scrapers/{subreddit}/stop", handlers.StopScraper(d)).Methods("POST")
	r.HandleFunc("/scrapers/{subreddit}/restart", handlers.RestartScraper(d)).Methods("POST")
	r.HandleFunc("/scrapers/{subreddit}/auto-restart", handlers.SetAutoRestart(d)).Methods("PUT")
	r.HandleFunc("/scrapers/{subreddit}/stats", handlers.ScraperStats(d)).Methods("GET")
	r.HandleFunc("/scrapers/{subreddit}/logs", handlers.ScraperLogs(d)).Methods("GET")
	r.HandleFunc("/scrapers/{subreddit}/status", handlers.ScraperStatus(d)).Methods("GET")
	r.HandleFunc("/scrapers/{subreddit}", handlers.DeleteScraper(d)).Methods("DELETE")

	// Credential vault
	r.HandleFunc("/accounts/stats", handlers.AccountStats(d)).Methods("GET")
	r.HandleFunc("/accounts", handlers.SaveAccount(d)).Methods("POST")
	r.HandleFunc("/accounts", handlers.ListAccounts(d)).Methods("GET")
	r.HandleFunc("/accounts/{name}", handlers.GetAccount(d)).Methods("GET")
	r.HandleFunc("/accounts/{name}", handlers.DeleteAccount(d)).Methods("DELETE")

	// Search and discovery
	r.HandleFunc("/search/subreddits", handlers.SearchSubreddits(d)).Methods("POST")
	r.HandleFunc("/discover/subreddits", handlers.DiscoverSubreddits(d)).Methods("POST")

	// Enrichment control
	r.HandleFunc("/embeddings/stats", handlers.EmbeddingStats(d)).Methods("GET")
	r.HandleFunc("/embeddings/worker/status", handlers.EnrichmentWorkerStatus(d)).Methods("GET")
	r.HandleFunc("/embeddings/worker/process", handlers.EnrichmentWorkerProcess(d)).Methods("POST")

	// Observability
	r.HandleFunc("/health", handlers.Health(d)).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}

// instrument records per-route request counts and latency.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := mux.CurrentRoute(r)
		path := r.URL.Path
		if route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		timer := metrics.NewAPITimer(path, r.Method)
		next.ServeHTTP(rec, r)
		timer.Done(rec.status)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
