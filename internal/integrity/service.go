package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
)

// Default windows for staleness checks.
const (
	DefaultScraperStaleAfter = 30 * time.Minute
	DefaultSuggestionGrace   = 24 * time.Hour
	defaultCleanupBatch      = 1000
)

// Storage is the audit surface of the document store.
type Storage interface {
	CountOrphanComments(ctx context.Context) (int64, error)
	FindOrphanCommentIDs(ctx context.Context, limit int) ([]string, error)
	DeleteCommentsByIDs(ctx context.Context, ids []string) (int64, error)
	CountGhostMarkedPosts(ctx context.Context) (int64, error)
	ResetGhostMarkedPosts(ctx context.Context, limit int) (int64, error)
	CountStaleScrapers(ctx context.Context, cutoff time.Time) (int64, error)
	MarkStaleScrapersFailed(ctx context.Context, cutoff time.Time) (int64, error)
	CountStaleUnsyncedSuggestions(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service audits and repairs cross-collection consistency.
type Service struct {
	storage         Storage
	scraperStale    time.Duration
	suggestionGrace time.Duration
	log             *slog.Logger
}

// NewService builds an audit service with default staleness windows.
func NewService(storage Storage) *Service {
	return &Service{
		storage:         storage,
		scraperStale:    DefaultScraperStaleAfter,
		suggestionGrace: DefaultSuggestionGrace,
		log:             logger.WithComponent("integrity"),
	}
}

// CheckResult is the outcome of one integrity check.
type CheckResult struct {
	CheckName  string    `json:"check_name"`
	IssueCount int64     `json:"issue_count"`
	Details    string    `json:"details"`
	CheckedAt  time.Time `json:"checked_at"`
	HasIssues  bool      `json:"has_issues"`
}

// CheckAll runs every integrity check and returns one result per check.
func (s *Service) CheckAll(ctx context.Context) ([]CheckResult, error) {
	now := time.Now().UTC()
	results := make([]CheckResult, 0, 4)

	orphans, err := s.storage.CountOrphanComments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count orphan comments: %w", err)
	}
	results = append(results, CheckResult{
		CheckName:  "orphan_comments",
		IssueCount: orphans,
		Details:    "Comments whose parent post is missing",
		CheckedAt:  now,
		HasIssues:  orphans > 0,
	})

	ghosts, err := s.storage.CountGhostMarkedPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count ghost-marked posts: %w", err)
	}
	results = append(results, CheckResult{
		CheckName:  "ghost_marked_posts",
		IssueCount: ghosts,
		Details:    "Posts marked scraped with claimed comments but none stored",
		CheckedAt:  now,
		HasIssues:  ghosts > 0,
	})

	stale, err := s.storage.CountStaleScrapers(ctx, now.Add(-s.scraperStale))
	if err != nil {
		return nil, fmt.Errorf("count stale scrapers: %w", err)
	}
	results = append(results, CheckResult{
		CheckName:  "stale_scrapers",
		IssueCount: stale,
		Details:    fmt.Sprintf("Scrapers claiming to run with no heartbeat for %s", s.scraperStale),
		CheckedAt:  now,
		HasIssues:  stale > 0,
	})

	undrained, err := s.storage.CountStaleUnsyncedSuggestions(ctx, now.Add(-s.suggestionGrace))
	if err != nil {
		return nil, fmt.Errorf("count stale suggestions: %w", err)
	}
	results = append(results, CheckResult{
		CheckName:  "stale_suggestions",
		IssueCount: undrained,
		Details:    fmt.Sprintf("Suggestions undrained for over %s", s.suggestionGrace),
		CheckedAt:  now,
		HasIssues:  undrained > 0,
	})

	return results, nil
}

// CleanOrphanComments deletes orphaned comments in batches until none
// remain. Returns the total deleted.
func (s *Service) CleanOrphanComments(ctx context.Context, batch int) (int64, error) {
	if batch <= 0 {
		batch = defaultCleanupBatch
	}
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		ids, err := s.storage.FindOrphanCommentIDs(ctx, batch)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}
		deleted, err := s.storage.DeleteCommentsByIDs(ctx, ids)
		if err != nil {
			return total, err
		}
		total += deleted
		s.log.Info("deleted orphan comments", "batch", deleted, "total", total)
		if len(ids) < batch {
			return total, nil
		}
	}
}

// ResetGhostPosts clears tracking flags on ghost-marked posts in batches
// so scrapers retry them. Returns the total reset.
func (s *Service) ResetGhostPosts(ctx context.Context, batch int) (int64, error) {
	if batch <= 0 {
		batch = defaultCleanupBatch
	}
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		reset, err := s.storage.ResetGhostMarkedPosts(ctx, batch)
		if err != nil {
			return total, err
		}
		total += reset
		if reset < int64(batch) {
			return total, nil
		}
		s.log.Info("reset ghost-marked posts", "batch", reset, "total", total)
	}
}

// FailStaleScrapers marks heartbeat-dead running rows failed, handing them
// to the supervisor's restart loop.
func (s *Service) FailStaleScrapers(ctx context.Context) (int64, error) {
	return s.storage.MarkStaleScrapersFailed(ctx, time.Now().UTC().Add(-s.scraperStale))
}
