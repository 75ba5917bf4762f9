package enrichment

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/reddit-scraper-fleet/internal/config"
	"github.com/onnwee/reddit-scraper-fleet/internal/errorreporting"
	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
	"github.com/onnwee/reddit-scraper-fleet/internal/metrics"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
)

// MetadataStorage is the store surface the enrichment worker needs.
type MetadataStorage interface {
	PendingEnrichment(ctx context.Context, limit, maxRetries int) ([]store.MetadataDoc, error)
	SetEnrichmentResult(ctx context.Context, name string, embeddings store.EmbeddingsDoc, enrichment *store.LLMEnrichment) error
	SetEnrichmentFailed(ctx context.Context, name, errMsg string) error
	GetEmbeddingStats(ctx context.Context) (store.EmbeddingStats, error)
}

// Status is the worker state exposed on the control plane.
type Status struct {
	Enabled       bool       `json:"enabled"`
	Running       bool       `json:"running"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastBatchSize int        `json:"last_batch_size"`
	TotalDone     int64      `json:"total_processed"`
	TotalFailed   int64      `json:"total_failed"`
}

// Worker drains the pending-enrichment queue: combined embedding (required),
// then audience profile and persona embedding (both best-effort).
type Worker struct {
	storage  MetadataStorage
	embedder Embedder
	chat     ChatCompleter
	cfg      config.EnrichmentConfig
	provider config.ProviderConfig
	enabled  bool
	log      *slog.Logger
	sleep    func(ctx context.Context, d time.Duration)

	mu     sync.Mutex
	status Status
}

// New builds the worker. A missing provider configuration disables it; the
// run loop then idles and ProcessNow reports zero work.
func New(storage MetadataStorage, cfg config.EnrichmentConfig, providerCfg config.ProviderConfig) *Worker {
	w := &Worker{
		storage:  storage,
		cfg:      cfg,
		provider: providerCfg,
		log:      logger.WithComponent("enrichment"),
		sleep:    sleepCtx,
	}
	if p := getProvider(providerCfg); p != nil {
		w.embedder = p
		w.chat = p
		w.enabled = true
	}
	w.status.Enabled = w.enabled
	return w
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run polls the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if !w.enabled {
		w.log.Info("enrichment worker idle: provider not configured")
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessNow(ctx); err != nil {
				w.log.Error("enrichment pass failed", "err", err)
				errorreporting.CaptureError(err)
			}
		}
	}
}

// ProcessNow drains one batch immediately and returns how many documents
// were attempted. Safe to call from the control plane while the loop runs.
func (w *Worker) ProcessNow(ctx context.Context) (int, error) {
	if !w.enabled {
		return 0, nil
	}
	w.mu.Lock()
	if w.status.Running {
		w.mu.Unlock()
		return 0, nil
	}
	w.status.Running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.status.Running = false
		now := time.Now().UTC()
		w.status.LastRunAt = &now
		w.mu.Unlock()
	}()

	docs, err := w.storage.PendingEnrichment(ctx, w.cfg.BatchSize, w.cfg.MaxRetries)
	if err != nil {
		return 0, err
	}
	w.mu.Lock()
	w.status.LastBatchSize = len(docs)
	w.mu.Unlock()
	if len(docs) == 0 {
		return 0, nil
	}

	for i, doc := range docs {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		w.processOne(ctx, doc)
		if i < len(docs)-1 {
			w.sleep(ctx, w.cfg.ItemDelay)
		}
	}
	return len(docs), nil
}

// processOne runs the three-step pipeline for one subreddit. Only a failed
// combined embedding fails the document; the profile and persona steps
// degrade to a result without them.
func (w *Worker) processOne(ctx context.Context, doc store.MetadataDoc) {
	start := time.Now()
	name := doc.SubredditName

	combined, err := w.embedder.Embed(ctx, combinedText(doc))
	if err != nil {
		w.fail(ctx, name, err.Error())
		return
	}
	now := time.Now().UTC()
	embeddings := store.EmbeddingsDoc{
		Combined: &store.EmbeddingRecord{
			Vector:      combined,
			Model:       w.provider.EmbeddingDeployment,
			Dimensions:  w.provider.EmbeddingDimensions,
			GeneratedAt: now,
		},
	}

	enrichment := w.generateProfile(ctx, doc)

	if enrichment != nil {
		persona, err := w.embedder.Embed(ctx, personaText(doc, enrichment))
		if err != nil {
			w.log.Warn("persona embedding failed", "subreddit", name, "err", err)
		} else {
			embeddings.Persona = &store.EmbeddingRecord{
				Vector:      persona,
				Model:       w.provider.EmbeddingDeployment,
				Dimensions:  w.provider.EmbeddingDimensions,
				GeneratedAt: time.Now().UTC(),
			}
		}
	}

	if err := w.storage.SetEnrichmentResult(ctx, name, embeddings, enrichment); err != nil {
		w.log.Error("enrichment persist failed", "subreddit", name, "err", err)
		errorreporting.CaptureError(err)
		return
	}

	metrics.EnrichmentProcessed.WithLabelValues("completed").Inc()
	metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())
	w.mu.Lock()
	w.status.TotalDone++
	w.mu.Unlock()
	w.log.Info("subreddit enriched",
		"subreddit", name,
		"persona", embeddings.Persona != nil,
		"profile", enrichment != nil,
		"duration", time.Since(start).Round(time.Millisecond))
}

// generateProfile asks the chat provider for the audience profile. Any
// failure here degrades to nil rather than failing the document.
func (w *Worker) generateProfile(ctx context.Context, doc store.MetadataDoc) *store.LLMEnrichment {
	raw, err := w.chat.Complete(ctx, profileSystemPrompt, combinedText(doc))
	if err != nil {
		w.log.Warn("profile generation failed", "subreddit", doc.SubredditName, "err", err)
		return nil
	}
	var parsed struct {
		AudienceProfile string   `json:"audience_profile"`
		AudienceTypes   []string `json:"audience_types"`
		UserIntents     []string `json:"user_intents"`
		PainPoints      []string `json:"pain_points"`
		ContentThemes   []string `json:"content_themes"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		w.log.Warn("profile response unparseable", "subreddit", doc.SubredditName, "err", err)
		return nil
	}
	return &store.LLMEnrichment{
		AudienceProfile: parsed.AudienceProfile,
		AudienceTypes:   parsed.AudienceTypes,
		UserIntents:     parsed.UserIntents,
		PainPoints:      parsed.PainPoints,
		ContentThemes:   parsed.ContentThemes,
		GeneratedAt:     time.Now().UTC(),
		Model:           w.provider.ChatDeployment,
	}
}

func (w *Worker) fail(ctx context.Context, name, msg string) {
	metrics.EnrichmentProcessed.WithLabelValues("failed").Inc()
	w.mu.Lock()
	w.status.TotalFailed++
	w.mu.Unlock()
	w.log.Warn("enrichment failed", "subreddit", name, "err", msg)
	if err := w.storage.SetEnrichmentFailed(ctx, name, msg); err != nil {
		w.log.Error("failure record failed", "subreddit", name, "err", err)
	}
}

// Status returns a snapshot of the worker state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// EmbedQuery embeds ad-hoc text for vector search. Returns nil when the
// provider is not configured.
func (w *Worker) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if !w.enabled {
		return nil, nil
	}
	return w.embedder.Embed(ctx, text)
}

// Enabled reports whether a provider is configured.
func (w *Worker) Enabled() bool { return w.enabled }
