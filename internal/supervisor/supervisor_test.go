package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/onnwee/reddit-scraper-fleet/internal/config"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
)

type statusChange struct {
	subreddit   string
	scraperType string
	status      string
	lastError   string
}

type fakeStorage struct {
	docs []store.ScraperDoc

	upserts  []store.ScraperDoc
	statuses []statusChange
	restarts []string
	deleted  []string
}

func (f *fakeStorage) UpsertScraper(ctx context.Context, doc store.ScraperDoc) error {
	f.upserts = append(f.upserts, doc)
	return nil
}

func (f *fakeStorage) GetScraper(ctx context.Context, subreddit, scraperType string) (*store.ScraperDoc, error) {
	for i := range f.docs {
		if f.docs[i].Subreddit == subreddit && f.docs[i].ScraperType == scraperType {
			return &f.docs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStorage) ListScrapers(ctx context.Context) ([]store.ScraperDoc, error) {
	return f.docs, nil
}

func (f *fakeStorage) SetScraperStatus(ctx context.Context, subreddit, scraperType, status, handle, lastError string) error {
	f.statuses = append(f.statuses, statusChange{subreddit, scraperType, status, lastError})
	return nil
}

func (f *fakeStorage) IncrementRestartCount(ctx context.Context, subreddit, scraperType string) error {
	f.restarts = append(f.restarts, subreddit+"/"+scraperType)
	return nil
}

func (f *fakeStorage) SetAutoRestart(ctx context.Context, subreddit, scraperType string, enabled bool) error {
	return nil
}

func (f *fakeStorage) DeleteScraper(ctx context.Context, subreddit, scraperType string) error {
	f.deleted = append(f.deleted, subreddit+"/"+scraperType)
	return nil
}

func testMonitorConfig(t *testing.T) config.MonitorConfig {
	return config.MonitorConfig{
		HandlePrefix:            "reddit-scraper-",
		LogDir:                  t.TempDir(),
		WorkerBinary:            "/bin/echo",
		RestartDelay:            time.Millisecond,
		RestartCooldown:         30 * time.Second,
		StopGracePeriod:         time.Second,
		MaxSubredditsPerScraper: 30,
	}
}

func runningDoc() store.ScraperDoc {
	return store.ScraperDoc{
		Subreddit:   "golang",
		ScraperType: "posts",
		Status:      store.StatusRunning,
		AutoRestart: true,
		Subreddits:  []string{"golang"},
		LastUpdated: time.Now().Add(-time.Hour),
		Credentials: store.AccountCredentials{
			ClientID: "id", ClientSecret: "secret", Username: "u", Password: "p",
		},
	}
}

func TestHandleName(t *testing.T) {
	s := New(nil, config.MonitorConfig{HandlePrefix: "scraper-"})

	if got := s.HandleName("golang", "posts"); got != "scraper-golang" {
		t.Errorf("posts handle = %q, want scraper-golang", got)
	}
	if got := s.HandleName("golang", "comments"); got != "scraper-golang-comments" {
		t.Errorf("comments handle = %q, want scraper-golang-comments", got)
	}
}

func TestSpawnProcessLifecycle(t *testing.T) {
	dir := t.TempDir()

	h, err := spawnProcess("/bin/sh", "worker-test", dir,
		[]string{"-c", "echo started; sleep 30"}, nil)
	if err != nil {
		t.Fatalf("spawnProcess: %v", err)
	}
	if !h.Alive() {
		t.Fatal("handle should be alive right after spawn")
	}
	if h.LogPath != filepath.Join(dir, "worker-test.log") {
		t.Errorf("log path = %q", h.LogPath)
	}

	if err := h.Stop(2 * time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.Alive() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if h.Alive() {
		t.Error("handle still alive after Stop")
	}
}

func TestSpawnProcessExit(t *testing.T) {
	dir := t.TempDir()

	h, err := spawnProcess("/bin/sh", "worker-exit", dir, []string{"-c", "exit 0"}, nil)
	if err != nil {
		t.Fatalf("spawnProcess: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.Alive() && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if h.Alive() {
		t.Fatal("handle should report dead after process exit")
	}
	// Stop on a dead handle is a no-op
	if err := h.Stop(time.Second); err != nil {
		t.Errorf("Stop on dead handle: %v", err)
	}
}

func TestNilHandleAlive(t *testing.T) {
	var h *Handle
	if h.Alive() {
		t.Error("nil handle must report dead")
	}
	if err := h.Stop(time.Second); err != nil {
		t.Errorf("Stop on nil handle: %v", err)
	}
}

func TestCheckOnceRespawnsDeadWorker(t *testing.T) {
	st := &fakeStorage{docs: []store.ScraperDoc{runningDoc()}}
	s := New(st, testMonitorConfig(t))

	mutexFreeDuringDelay := false
	s.sleep = func(time.Duration) {
		if s.mu.TryLock() {
			mutexFreeDuringDelay = true
			s.mu.Unlock()
		}
	}

	if err := s.checkOnce(context.Background()); err != nil {
		t.Fatalf("checkOnce: %v", err)
	}

	if !mutexFreeDuringDelay {
		t.Error("restart delay must not hold the supervisor mutex")
	}
	if want := []string{"golang/posts"}; !reflect.DeepEqual(st.restarts, want) {
		t.Errorf("restart counts = %v, want %v", st.restarts, want)
	}
	if len(st.statuses) != 2 {
		t.Fatalf("status changes = %v, want failed then running", st.statuses)
	}
	if st.statuses[0].status != store.StatusFailed || st.statuses[0].lastError != deadHandleError {
		t.Errorf("first change = %+v, want failed with the dead-handle reason", st.statuses[0])
	}
	if st.statuses[1].status != store.StatusRunning {
		t.Errorf("second change = %+v, want running after respawn", st.statuses[1])
	}
	if _, ok := s.handles[instanceKey{"golang", "posts"}]; !ok {
		t.Error("respawned worker has no handle in the index")
	}
}

func TestCheckOnceSkipsRespawnWhenRestartedMeanwhile(t *testing.T) {
	st := &fakeStorage{docs: []store.ScraperDoc{runningDoc()}}
	s := New(st, testMonitorConfig(t))

	// a manual restart lands while the liveness loop waits out the delay
	s.sleep = func(time.Duration) {
		s.mu.Lock()
		s.handles[instanceKey{"golang", "posts"}] = &Handle{Name: "manual"}
		s.mu.Unlock()
	}

	if err := s.checkOnce(context.Background()); err != nil {
		t.Fatalf("checkOnce: %v", err)
	}

	if len(st.statuses) != 1 || st.statuses[0].status != store.StatusFailed {
		t.Fatalf("status changes = %v, want only the failed mark", st.statuses)
	}
	if h := s.handles[instanceKey{"golang", "posts"}]; h == nil || h.Name != "manual" {
		t.Error("concurrent restart's handle must be kept, not replaced")
	}
}

func TestStartValidation(t *testing.T) {
	st := &fakeStorage{}
	s := New(st, testMonitorConfig(t))
	ctx := context.Background()

	doc := runningDoc()
	doc.Subreddits = nil
	if err := s.Start(ctx, doc); err == nil {
		t.Error("empty target list must be rejected")
	}

	doc = runningDoc()
	doc.Subreddits = make([]string, 31)
	if err := s.Start(ctx, doc); err == nil {
		t.Error("oversized target list must be rejected")
	}

	doc = runningDoc()
	doc.Credentials.Password = ""
	if err := s.Start(ctx, doc); err == nil {
		t.Error("incomplete credentials must be rejected")
	}
	if len(st.upserts) != 0 {
		t.Error("rejected starts must not touch storage")
	}

	if err := s.Start(ctx, runningDoc()); err != nil {
		t.Fatalf("valid start: %v", err)
	}
	if len(st.upserts) != 1 || st.upserts[0].Status != store.StatusStarting {
		t.Errorf("upserts = %+v, want one starting row", st.upserts)
	}
}

func TestReconcileFailsOrphanedRows(t *testing.T) {
	docs := []store.ScraperDoc{runningDoc()}
	docs[0].Status = store.StatusRunning
	stopped := runningDoc()
	stopped.Subreddit = "rust"
	stopped.Status = store.StatusStopped
	docs = append(docs, stopped)

	st := &fakeStorage{docs: docs}
	s := New(st, testMonitorConfig(t))
	if err := s.Reconcile(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(st.statuses) != 1 {
		t.Fatalf("status changes = %v, want only the orphaned running row", st.statuses)
	}
	if c := st.statuses[0]; c.subreddit != "golang" || c.status != store.StatusFailed || c.lastError != deadHandleError {
		t.Errorf("change = %+v, want golang marked failed", c)
	}
}

func TestTailLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tail.log")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\nfour\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	lines, err := TailLog(path, 2)
	if err != nil {
		t.Fatalf("TailLog: %v", err)
	}
	if want := []string{"three", "four"}; !reflect.DeepEqual(lines, want) {
		t.Errorf("tail = %v, want %v", lines, want)
	}

	all, err := TailLog(path, 0)
	if err != nil {
		t.Fatalf("TailLog all: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("all lines = %d, want 4", len(all))
	}

	if _, err := TailLog(filepath.Join(dir, "missing.log"), 5); err == nil {
		t.Error("expected error for missing log file")
	}
}
