package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/onnwee/reddit-scraper-fleet/internal/cache"
	"github.com/onnwee/reddit-scraper-fleet/internal/config"
	"github.com/onnwee/reddit-scraper-fleet/internal/enrichment"
	"github.com/onnwee/reddit-scraper-fleet/internal/reddit"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
	"github.com/onnwee/reddit-scraper-fleet/internal/suggestions"
)

// Fleet is the supervisor surface the control plane drives.
type Fleet interface {
	Start(ctx context.Context, doc store.ScraperDoc) error
	Stop(ctx context.Context, subreddit, scraperType string) error
	Restart(ctx context.Context, subreddit, scraperType string) error
	Remove(ctx context.Context, subreddit, scraperType string) error
	SetAutoRestart(ctx context.Context, subreddit, scraperType string, enabled bool) error
	RestartAllFailed(ctx context.Context) (int, error)
	Alive(subreddit, scraperType string) bool
	TailLogs(subreddit, scraperType string, n int) ([]string, error)
}

// Enricher is the enrichment-worker surface exposed on the control plane.
type Enricher interface {
	Status() enrichment.Status
	ProcessNow(ctx context.Context) (int, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Enabled() bool
}

// Discoverer searches Reddit for subreddits matching a query. Nil when the
// supervisor has no Reddit credentials of its own.
type Discoverer interface {
	SearchSubreddits(ctx context.Context, query string, limit int) ([]reddit.About, error)
}

// SuggestionSync exposes the sync worker's counters.
type SuggestionSync interface {
	Stats() suggestions.Stats
}

// Deps carries the wiring every handler closes over.
type Deps struct {
	Store       *store.Store
	Fleet       Fleet
	Enricher    Enricher
	Discoverer  Discoverer
	Suggestions SuggestionSync
	Cache       cache.Cache
	Cfg         *config.Config
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// maskedCredentials hides the secret fields, keeping username and user agent
// so operators can tell accounts apart.
func maskedCredentials(c store.AccountCredentials) store.AccountCredentials {
	return store.AccountCredentials{
		ClientID:     "***",
		ClientSecret: "***",
		Username:     c.Username,
		Password:     "***",
		UserAgent:    c.UserAgent,
	}
}
