package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/reddit-scraper-fleet/internal/config"
	"github.com/onnwee/reddit-scraper-fleet/internal/errorreporting"
	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
	"github.com/onnwee/reddit-scraper-fleet/internal/metrics"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
)

// deadHandleError is the recorded reason when a running worker vanishes.
const deadHandleError = "Container stopped unexpectedly"

type instanceKey struct {
	subreddit   string
	scraperType string
}

// Storage is the control-collection surface the supervisor needs.
type Storage interface {
	UpsertScraper(ctx context.Context, doc store.ScraperDoc) error
	GetScraper(ctx context.Context, subreddit, scraperType string) (*store.ScraperDoc, error)
	ListScrapers(ctx context.Context) ([]store.ScraperDoc, error)
	SetScraperStatus(ctx context.Context, subreddit, scraperType, status, handle, lastError string) error
	IncrementRestartCount(ctx context.Context, subreddit, scraperType string) error
	SetAutoRestart(ctx context.Context, subreddit, scraperType string, enabled bool) error
	DeleteScraper(ctx context.Context, subreddit, scraperType string) error
}

// Supervisor owns the scraper instance set: it spawns workers as isolated
// sub-processes, probes their liveness, and converges the live population
// to the control collection's intent. All mutations are serialised through
// one mutex; the liveness loop is a single goroutine.
type Supervisor struct {
	store Storage
	cfg   config.MonitorConfig

	mu      sync.Mutex
	handles map[instanceKey]*Handle

	// sleep is the restart-delay wait, run with the mutex released
	sleep func(time.Duration)

	log *logSink
}

type logSink struct{}

func (l *logSink) info(msg string, args ...any)  { logger.WithComponent("supervisor").Info(msg, args...) }
func (l *logSink) warn(msg string, args ...any)  { logger.WithComponent("supervisor").Warn(msg, args...) }
func (l *logSink) error(msg string, args ...any) { logger.WithComponent("supervisor").Error(msg, args...) }

// New builds a supervisor over the control collection.
func New(st Storage, cfg config.MonitorConfig) *Supervisor {
	return &Supervisor{
		store:   st,
		cfg:     cfg,
		handles: make(map[instanceKey]*Handle),
		sleep:   time.Sleep,
		log:     &logSink{},
	}
}

// HandleName derives the deterministic process handle for an instance.
func (s *Supervisor) HandleName(subreddit, scraperType string) string {
	name := s.cfg.HandlePrefix + subreddit
	if scraperType == "comments" {
		name += "-comments"
	}
	return name
}

// workerBinary resolves the scraper binary path: configured explicitly or
// found next to the supervisor executable.
func (s *Supervisor) workerBinary() (string, error) {
	if s.cfg.WorkerBinary != "" {
		return s.cfg.WorkerBinary, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(self), "scraper"), nil
}

// Start validates and persists the instance, then spawns its worker.
func (s *Supervisor) Start(ctx context.Context, doc store.ScraperDoc) error {
	if len(doc.Subreddits) == 0 {
		return fmt.Errorf("at least one subreddit is required")
	}
	if len(doc.Subreddits) > s.cfg.MaxSubredditsPerScraper {
		return fmt.Errorf("too many subreddits: %d (max %d)", len(doc.Subreddits), s.cfg.MaxSubredditsPerScraper)
	}
	if doc.Credentials.ClientID == "" || doc.Credentials.ClientSecret == "" ||
		doc.Credentials.Username == "" || doc.Credentials.Password == "" {
		return fmt.Errorf("incomplete credentials")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc.Status = store.StatusStarting
	if err := s.store.UpsertScraper(ctx, doc); err != nil {
		return err
	}
	return s.spawnLocked(ctx, doc)
}

// spawnLocked launches the worker process for an instance and records the
// outcome. Must be called with the mutex held.
func (s *Supervisor) spawnLocked(ctx context.Context, doc store.ScraperDoc) error {
	key := instanceKey{doc.Subreddit, doc.ScraperType}
	name := s.HandleName(doc.Subreddit, doc.ScraperType)

	binary, err := s.workerBinary()
	if err != nil {
		_ = s.store.SetScraperStatus(ctx, doc.Subreddit, doc.ScraperType, store.StatusError, "", err.Error())
		return err
	}

	args := []string{
		"--primary", doc.Subreddit,
		"--type", doc.ScraperType,
		"--subreddits", strings.Join(doc.Subreddits, ","),
	}
	if doc.PostsLimit > 0 {
		args = append(args, "--posts-limit", strconv.Itoa(doc.PostsLimit))
	}
	if doc.ScrapeInterval > 0 {
		args = append(args, "--scrape-interval", strconv.Itoa(doc.ScrapeInterval))
	}
	if doc.CommentBatch > 0 {
		args = append(args, "--comment-batch", strconv.Itoa(doc.CommentBatch))
	}
	if len(doc.SortingMethods) > 0 {
		args = append(args, "--sorting-methods", strings.Join(doc.SortingMethods, ","))
	}
	env := []string{
		"R_CLIENT_ID=" + doc.Credentials.ClientID,
		"R_CLIENT_SECRET=" + doc.Credentials.ClientSecret,
		"R_USERNAME=" + doc.Credentials.Username,
		"R_PASSWORD=" + doc.Credentials.Password,
		"R_USER_AGENT=" + doc.Credentials.UserAgent,
	}

	handle, err := spawnProcess(binary, name, s.cfg.LogDir, args, env)
	if err != nil {
		s.log.error("spawn failed", "handle", name, "err", err)
		errorreporting.CaptureError(err)
		_ = s.store.SetScraperStatus(ctx, doc.Subreddit, doc.ScraperType, store.StatusError, "", err.Error())
		return err
	}

	s.handles[key] = handle
	metrics.ScrapersRunning.Set(float64(s.aliveCountLocked()))
	s.log.info("worker spawned", "handle", name, "subreddits", len(doc.Subreddits))
	return s.store.SetScraperStatus(ctx, doc.Subreddit, doc.ScraperType, store.StatusRunning, name, "")
}

// Stop terminates the worker and marks the instance stopped.
func (s *Supervisor) Stop(ctx context.Context, subreddit, scraperType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(ctx, subreddit, scraperType, store.StatusStopped)
}

func (s *Supervisor) stopLocked(ctx context.Context, subreddit, scraperType, status string) error {
	key := instanceKey{subreddit, scraperType}
	if handle, ok := s.handles[key]; ok {
		if err := handle.Stop(s.cfg.StopGracePeriod); err != nil {
			s.log.warn("stop failed", "handle", handle.Name, "err", err)
		}
		delete(s.handles, key)
	}
	metrics.ScrapersRunning.Set(float64(s.aliveCountLocked()))
	return s.store.SetScraperStatus(ctx, subreddit, scraperType, status, "", "")
}

// Restart tears down the handle and respawns the worker.
func (s *Supervisor) Restart(ctx context.Context, subreddit, scraperType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.GetScraper(ctx, subreddit, scraperType)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("scraper %s/%s not found", subreddit, scraperType)
	}

	if err := s.stopLocked(ctx, subreddit, scraperType, store.StatusRestarting); err != nil {
		return err
	}
	metrics.ScraperRestarts.WithLabelValues("manual").Inc()
	return s.spawnLocked(ctx, *doc)
}

// Remove tears down the handle and deletes the row.
func (s *Supervisor) Remove(ctx context.Context, subreddit, scraperType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := instanceKey{subreddit, scraperType}
	if handle, ok := s.handles[key]; ok {
		_ = handle.Stop(s.cfg.StopGracePeriod)
		delete(s.handles, key)
	}
	metrics.ScrapersRunning.Set(float64(s.aliveCountLocked()))
	return s.store.DeleteScraper(ctx, subreddit, scraperType)
}

// SetAutoRestart toggles only the auto_restart flag.
func (s *Supervisor) SetAutoRestart(ctx context.Context, subreddit, scraperType string, enabled bool) error {
	return s.store.SetAutoRestart(ctx, subreddit, scraperType, enabled)
}

// RestartAllFailed respawns every failed or errored instance.
func (s *Supervisor) RestartAllFailed(ctx context.Context) (int, error) {
	docs, err := s.store.ListScrapers(ctx)
	if err != nil {
		return 0, err
	}
	restarted := 0
	for _, doc := range docs {
		if doc.Status != store.StatusFailed && doc.Status != store.StatusError {
			continue
		}
		if err := s.Restart(ctx, doc.Subreddit, doc.ScraperType); err != nil {
			s.log.warn("restart-all skip", "subreddit", doc.Subreddit, "err", err)
			continue
		}
		restarted++
	}
	return restarted, nil
}

// Alive reports whether the instance's handle is live.
func (s *Supervisor) Alive(subreddit, scraperType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[instanceKey{subreddit, scraperType}].Alive()
}

// LogPath returns the instance's worker log file path, or empty.
func (s *Supervisor) LogPath(subreddit, scraperType string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[instanceKey{subreddit, scraperType}]; ok {
		return h.LogPath
	}
	// a dead worker's log stays tailable at the deterministic path
	return filepath.Join(s.cfg.LogDir, s.HandleName(subreddit, scraperType)+".log")
}

// TailLogs returns the last n lines of the instance's worker log.
func (s *Supervisor) TailLogs(subreddit, scraperType string, n int) ([]string, error) {
	return TailLog(s.LogPath(subreddit, scraperType), n)
}

func (s *Supervisor) aliveCountLocked() int {
	n := 0
	for _, h := range s.handles {
		if h.Alive() {
			n++
		}
	}
	return n
}

// Reconcile rebuilds the in-memory index on startup. Rows that claim to be
// running have no live handle in a fresh process; they are marked failed so
// the liveness loop can respawn them on cooldown.
func (s *Supervisor) Reconcile(ctx context.Context) error {
	docs, err := s.store.ListScrapers(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		if doc.Status == store.StatusRunning || doc.Status == store.StatusStarting {
			s.log.warn("orphaned running row on startup", "subreddit", doc.Subreddit, "type", doc.ScraperType)
			if err := s.store.SetScraperStatus(ctx, doc.Subreddit, doc.ScraperType, store.StatusFailed, "", deadHandleError); err != nil {
				return err
			}
		}
	}
	s.log.info("reconciled", "instances", len(docs))
	return nil
}

// Run executes the liveness loop until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-ticker.C:
			if err := s.checkOnce(ctx); err != nil {
				s.log.error("liveness check failed", "err", err)
				errorreporting.CaptureError(err)
			}
		}
	}
}

// checkOnce probes every instance and converges dead or cooled-down
// instances back to running.
func (s *Supervisor) checkOnce(ctx context.Context) error {
	docs, err := s.store.ListScrapers(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		key := instanceKey{doc.Subreddit, doc.ScraperType}
		switch doc.Status {
		case store.StatusRunning:
			if s.handles[key].Alive() {
				continue
			}
			s.log.warn("worker died", "subreddit", doc.Subreddit, "type", doc.ScraperType)
			delete(s.handles, key)
			if err := s.store.SetScraperStatus(ctx, doc.Subreddit, doc.ScraperType, store.StatusFailed, "", deadHandleError); err != nil {
				return err
			}
			if err := s.store.IncrementRestartCount(ctx, doc.Subreddit, doc.ScraperType); err != nil {
				return err
			}
			if doc.AutoRestart {
				// the delay must not stall control-plane mutations
				s.mu.Unlock()
				s.sleep(s.cfg.RestartDelay)
				s.mu.Lock()
				if _, respawned := s.handles[key]; respawned {
					continue
				}
				metrics.ScraperRestarts.WithLabelValues("crashed").Inc()
				if err := s.spawnLocked(ctx, doc); err != nil {
					s.log.error("respawn failed", "subreddit", doc.Subreddit, "err", err)
				}
			}

		case store.StatusStopped, store.StatusFailed:
			if !doc.AutoRestart {
				continue
			}
			if time.Since(doc.LastUpdated) <= s.cfg.RestartCooldown {
				continue
			}
			// explicit stops have auto_restart cleared by the control plane
			metrics.ScraperRestarts.WithLabelValues("crashed").Inc()
			if err := s.spawnLocked(ctx, doc); err != nil {
				s.log.error("cooldown respawn failed", "subreddit", doc.Subreddit, "err", err)
			}
		}
	}

	metrics.ScrapersRunning.Set(float64(s.aliveCountLocked()))
	return nil
}

// shutdown stops every live worker gracefully.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, handle := range s.handles {
		s.log.info("stopping worker", "handle", handle.Name)
		_ = handle.Stop(s.cfg.StopGracePeriod)
		delete(s.handles, key)
	}
}
