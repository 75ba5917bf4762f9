package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/reddit-scraper-fleet/internal/config"
	"github.com/onnwee/reddit-scraper-fleet/internal/errorreporting"
	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
	"github.com/onnwee/reddit-scraper-fleet/internal/metrics"
	"github.com/onnwee/reddit-scraper-fleet/internal/reddit"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
	"github.com/onnwee/reddit-scraper-fleet/internal/tracing"
)

// fatalRetrySleep is how long the main loop pauses after an unexpected
// cycle failure before starting over.
const fatalRetrySleep = 60 * time.Second

// Storage is the slice of the persistence layer the worker depends on.
type Storage interface {
	UpsertPosts(ctx context.Context, posts []store.PostDoc) (int64, int64, error)
	UpsertComments(ctx context.Context, comments []store.CommentDoc) (int64, int64, error)
	MarkPostsCommentState(ctx context.Context, ids []string, initial bool) error
	CommentCandidates(ctx context.Context, subreddit string, limit int) ([]store.PostDoc, error)
	CountPosts(ctx context.Context, subreddit string) (int64, error)
	StoredCommentIDs(ctx context.Context, postID string) (map[string]struct{}, error)
	CountComments(ctx context.Context, postID string) (int64, error)
	UpsertSubredditMetadata(ctx context.Context, doc store.MetadataDoc) error
	GetSubredditMetadata(ctx context.Context, name string) (*store.MetadataDoc, error)
	RecordError(ctx context.Context, doc store.ErrorDoc) error
	AppendAPIUsage(ctx context.Context, doc store.UsageDoc) error
	GetScraper(ctx context.Context, subreddit, scraperType string) (*store.ScraperDoc, error)
	UpdateScraperMetrics(ctx context.Context, subreddit, scraperType string, m store.ScraperMetrics) error
}

// RedditAPI is the slice of the Reddit client the worker depends on.
type RedditAPI interface {
	ListPosts(ctx context.Context, subreddit, sort, timeFilter string, limit int) ([]reddit.Post, error)
	About(ctx context.Context, subreddit string) (*reddit.About, error)
	Rules(ctx context.Context, subreddit string) ([]reddit.Rule, error)
	PostRequirements(ctx context.Context, subreddit string) (string, error)
	CommentTree(ctx context.Context, postID string, replaceMoreLimit int) ([]reddit.CommentNode, error)
}

// BudgetChecker gates each phase batch on the remaining request budget.
type BudgetChecker interface {
	CheckBudget(ctx context.Context, minRemaining int)
}

// CycleCounter is the transport-level request accounting consumed in phase D.
type CycleCounter interface {
	CycleStats() reddit.Stats
	ResetCycle() reddit.Stats
	Snapshot() (reddit.RateSnapshot, bool)
}

// Worker runs the cyclic scraping state machine for one scraper instance.
type Worker struct {
	storage     Storage
	api         RedditAPI
	governor    BudgetChecker
	counter     CycleCounter
	cfg         config.ScrapeConfig
	retryCfg    retryConfig
	subreddits  []string
	primary     string
	scraperType string
	log         *slog.Logger

	// sleep is swappable so tests run without real time.
	sleep func(ctx context.Context, d time.Duration)

	// logical per-cycle call counts, reset in phase D
	callCounts map[string]int64
}

type retryConfig struct {
	attempts int
	base     time.Duration
}

// New builds a worker for one scraper instance.
func New(storage Storage, api RedditAPI, governor BudgetChecker, counter CycleCounter, cfg config.ScrapeConfig, primary, scraperType string, subreddits []string) *Worker {
	return &Worker{
		storage:     storage,
		api:         api,
		governor:    governor,
		counter:     counter,
		cfg:         cfg,
		retryCfg:    retryConfig{attempts: 3, base: time.Second},
		subreddits:  subreddits,
		primary:     primary,
		scraperType: scraperType,
		log:         logger.WithComponent("scraper").With("scraper", primary),
		sleep:       sleepCtx,
		callCounts:  make(map[string]int64),
	}
}

// Run executes cycles until the context is cancelled. Unexpected cycle
// failures sleep 60s and restart from the top; process-level restart
// stays with the supervisor.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("worker starting", "subreddits", len(w.subreddits), "type", w.scraperType)
	for ctx.Err() == nil {
		start := time.Now()
		if err := w.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			w.log.Error("cycle failed", "err", err)
			errorreporting.CaptureError(err)
			metrics.ScrapeCyclesTotal.WithLabelValues("failed").Inc()
			w.sleep(ctx, fatalRetrySleep)
			continue
		}
		metrics.ScrapeCyclesTotal.WithLabelValues("success").Inc()
		w.log.Info("cycle complete", "duration", time.Since(start).String())
		w.sleep(ctx, w.cfg.ScrapeInterval)
	}
	w.log.Info("worker stopping")
}

// RunCycle executes the four phases once, strictly in order.
func (w *Worker) RunCycle(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "scrape.cycle")
	defer span.End()

	start := time.Now()
	var cyclePosts, cycleComments int

	for _, subreddit := range w.subreddits {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		phaseStart := time.Now()
		n, err := w.harvestPosts(ctx, subreddit)
		metrics.ScrapePhaseDuration.WithLabelValues("posts").Observe(time.Since(phaseStart).Seconds())
		if err != nil {
			return err
		}
		cyclePosts += n

		phaseStart = time.Now()
		n, err = w.refreshComments(ctx, subreddit)
		metrics.ScrapePhaseDuration.WithLabelValues("comments").Observe(time.Since(phaseStart).Seconds())
		if err != nil {
			return err
		}
		cycleComments += n

		phaseStart = time.Now()
		if err := w.refreshMetadata(ctx, subreddit); err != nil {
			return err
		}
		metrics.ScrapePhaseDuration.WithLabelValues("metadata").Observe(time.Since(phaseStart).Seconds())
	}

	return w.flushMetrics(ctx, cyclePosts, cycleComments, time.Since(start))
}

// countCall tracks one logical API call for the accuracy ratio.
func (w *Worker) countCall(kind string) {
	w.callCounts[kind]++
}

// recordError appends a scrape error row; persistence failures here are
// logged and swallowed so the cycle keeps going.
func (w *Worker) recordError(ctx context.Context, subreddit, postID, errType, msg string, retries int) {
	doc := store.ErrorDoc{
		Subreddit:  subreddit,
		PostID:     postID,
		ErrorType:  errType,
		Message:    msg,
		RetryCount: retries,
		Timestamp:  time.Now().UTC(),
	}
	if err := w.storage.RecordError(ctx, doc); err != nil {
		w.log.Warn("failed to record scrape error", "err", err)
	}
}

// flushMetrics is phase D: update the instance's metrics block, append one
// usage record with dual counts, and reset the cycle counters.
func (w *Worker) flushMetrics(ctx context.Context, cyclePosts, cycleComments int, cycleDur time.Duration) error {
	doc, err := w.storage.GetScraper(ctx, w.primary, w.scraperType)
	if err != nil {
		return err
	}

	m := store.ScraperMetrics{}
	createdAt := time.Now().UTC()
	if doc != nil {
		m = doc.Metrics
		if !doc.CreatedAt.IsZero() {
			createdAt = doc.CreatedAt
		}
	}

	m.TotalPostsCollected += int64(cyclePosts)
	m.TotalCommentsCollected += int64(cycleComments)
	m.CyclesCompleted++
	m.LastCyclePosts = cyclePosts
	m.LastCycleComments = cycleComments
	m.LastCycleDuration = cycleDur.Seconds()
	m.LastCycleAt = time.Now().UTC()
	if m.CyclesCompleted == 1 {
		m.AvgCycleDuration = cycleDur.Seconds()
	} else {
		n := float64(m.CyclesCompleted)
		m.AvgCycleDuration = (m.AvgCycleDuration*(n-1) + cycleDur.Seconds()) / n
	}

	// rates are computed against lifetime, not the last cycle
	lifetimeHours := time.Since(createdAt).Hours()
	if lifetimeHours > 0 {
		m.PostsPerHour = float64(m.TotalPostsCollected) / lifetimeHours
		m.CommentsPerHour = float64(m.TotalCommentsCollected) / lifetimeHours
	}

	if err := w.storage.UpdateScraperMetrics(ctx, w.primary, w.scraperType, m); err != nil {
		return err
	}

	cycleStats := w.counter.ResetCycle()
	snap, _ := w.counter.Snapshot()

	var logical int64
	counts := make(map[string]int64, len(w.callCounts))
	for k, v := range w.callCounts {
		counts[k] = v
		logical += v
	}
	w.callCounts = make(map[string]int64)

	accuracy := 0.0
	if cycleStats.Requests > 0 {
		accuracy = float64(logical) / float64(cycleStats.Requests)
	}

	usage := store.UsageDoc{
		Subreddit:          w.primary,
		ScraperType:        w.scraperType,
		Timestamp:          time.Now().UTC(),
		CallCounts:         counts,
		LogicalRequests:    logical,
		ActualHTTPRequests: cycleStats.Requests,
		EstimatedCostUSD:   cycleStats.CostUSD,
		AvgResponseMs:      float64(cycleStats.AvgResponseTime.Milliseconds()),
		ErrorCount:         cycleStats.Errors,
		AccuracyRatio:      accuracy,
		RateLimit: store.RateLimitSnapshot{
			Remaining: snap.Remaining,
			Used:      snap.Used,
			ResetIn:   snap.ResetIn.Seconds(),
		},
	}
	return w.storage.AppendAPIUsage(ctx, usage)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
