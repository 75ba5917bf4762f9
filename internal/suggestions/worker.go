package suggestions

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/onnwee/reddit-scraper-fleet/internal/config"
	"github.com/onnwee/reddit-scraper-fleet/internal/errorreporting"
	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
	"github.com/onnwee/reddit-scraper-fleet/internal/metrics"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
)

// Storage is the store surface the sync worker needs.
type Storage interface {
	FindUnsyncedSuggestions(ctx context.Context) ([]store.SuggestionDoc, error)
	FindRunningScraper(ctx context.Context, scraperType string) (*store.ScraperDoc, error)
	AppendSubreddits(ctx context.Context, subreddit, scraperType string, names []string) error
	MarkSuggestionsSynced(ctx context.Context, ids []primitive.ObjectID, target string) error
}

// Stats counts sync outcomes since startup.
type Stats struct {
	Synced     int64      `json:"synced"`
	Skipped    int64      `json:"skipped"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// Worker drains externally-inserted subreddit suggestions into a running
// posts scraper's target list.
type Worker struct {
	storage Storage
	cfg     config.SuggestionsConfig
	log     *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New builds the sync worker.
func New(storage Storage, cfg config.SuggestionsConfig) *Worker {
	return &Worker{
		storage: storage,
		cfg:     cfg,
		log:     logger.WithComponent("suggestions"),
	}
}

// Run polls for unsynced suggestions until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.SyncOnce(ctx); err != nil {
				w.log.Error("suggestions sync failed", "err", err)
				errorreporting.CaptureError(err)
			}
		}
	}
}

// SyncOnce drains every unsynced suggestion into the first running scraper
// of the target type. With no running target the suggestions stay unsynced
// for a later pass.
func (w *Worker) SyncOnce(ctx context.Context) error {
	docs, err := w.storage.FindUnsyncedSuggestions(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	target, err := w.storage.FindRunningScraper(ctx, w.cfg.TargetScraperType)
	if err != nil {
		return err
	}
	if target == nil {
		w.log.Info("no running target, suggestions deferred", "pending", len(docs))
		return nil
	}

	names, skipped := newNames(docs, target.Subreddits)
	if len(names) > 0 {
		if err := w.storage.AppendSubreddits(ctx, target.Subreddit, target.ScraperType, names); err != nil {
			metrics.SuggestionsSynced.WithLabelValues("error").Inc()
			return err
		}
	}

	ids := make([]primitive.ObjectID, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	if err := w.storage.MarkSuggestionsSynced(ctx, ids, target.Subreddit); err != nil {
		return err
	}

	metrics.SuggestionsSynced.WithLabelValues("synced").Add(float64(len(names)))
	metrics.SuggestionsSynced.WithLabelValues("skipped").Add(float64(skipped))
	now := time.Now().UTC()
	w.mu.Lock()
	w.stats.Synced += int64(len(names))
	w.stats.Skipped += int64(skipped)
	w.stats.LastSyncAt = &now
	w.mu.Unlock()

	w.log.Info("suggestions synced",
		"target", target.Subreddit, "added", len(names),
		"skipped", skipped, "documents", len(docs))
	return nil
}

// newNames unions the suggested names across documents, lowercased, minus
// what the target already scrapes. skipped counts the unique suggested
// names the target already has; repeats across documents collapse into the
// union and are not counted.
func newNames(docs []store.SuggestionDoc, existing []string) (names []string, skipped int) {
	have := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		have[strings.ToLower(name)] = struct{}{}
	}

	suggested := make(map[string]struct{})
	for _, doc := range docs {
		for _, s := range doc.Subreddits {
			name := strings.ToLower(strings.TrimSpace(s.Name))
			if name == "" {
				continue
			}
			suggested[name] = struct{}{}
		}
	}

	for name := range suggested {
		if _, dup := have[name]; dup {
			skipped++
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, skipped
}

// Stats returns a snapshot of sync counters.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
