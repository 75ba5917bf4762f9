package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/onnwee/reddit-scraper-fleet/internal/config"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
)

type fakeFleet struct {
	started    []store.ScraperDoc
	startErr   error
	stopped    []string
	restarted  []string
	removed    []string
	autoFlags  map[string]bool
	failedRuns int
	logLines   []string
	logErr     error
}

func (f *fakeFleet) Start(ctx context.Context, doc store.ScraperDoc) error {
	f.started = append(f.started, doc)
	return f.startErr
}

func (f *fakeFleet) Stop(ctx context.Context, subreddit, scraperType string) error {
	f.stopped = append(f.stopped, subreddit+"/"+scraperType)
	return nil
}

func (f *fakeFleet) Restart(ctx context.Context, subreddit, scraperType string) error {
	f.restarted = append(f.restarted, subreddit+"/"+scraperType)
	return nil
}

func (f *fakeFleet) Remove(ctx context.Context, subreddit, scraperType string) error {
	f.removed = append(f.removed, subreddit+"/"+scraperType)
	return nil
}

func (f *fakeFleet) SetAutoRestart(ctx context.Context, subreddit, scraperType string, enabled bool) error {
	if f.autoFlags == nil {
		f.autoFlags = make(map[string]bool)
	}
	f.autoFlags[subreddit+"/"+scraperType] = enabled
	return nil
}

func (f *fakeFleet) RestartAllFailed(ctx context.Context) (int, error) {
	return f.failedRuns, nil
}

func (f *fakeFleet) Alive(subreddit, scraperType string) bool { return true }

func (f *fakeFleet) TailLogs(subreddit, scraperType string, n int) ([]string, error) {
	return f.logLines, f.logErr
}

func testDeps(fleet *fakeFleet) *Deps {
	return &Deps{
		Fleet: fleet,
		Cfg: &config.Config{
			Scrape: config.ScrapeConfig{
				PostsLimit:     1000,
				CommentBatch:   20,
				ScrapeInterval: 5 * time.Minute,
				SortingMethods: []string{"new", "hot", "rising"},
			},
			Monitor: config.MonitorConfig{MaxSubredditsPerScraper: 30},
		},
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest("POST", "/scrapers/start-flexible", &buf)
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (detail, code string) {
	t.Helper()
	var e struct {
		Detail string `json:"detail"`
		Code   string `json:"code"`
	}
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e.Detail, e.Code
}

func TestStartFlexibleValidation(t *testing.T) {
	manyTargets := make([]string, 31)
	for i := range manyTargets {
		manyTargets[i] = fmt.Sprintf("sub%d", i)
	}
	creds := map[string]string{
		"client_id": "id", "client_secret": "secret",
		"username": "u", "password": "p",
	}

	tests := []struct {
		name     string
		body     any
		wantCode string
	}{
		{"invalid json", "{not json", "VALIDATION_INVALID_JSON"},
		{"no targets", map[string]any{"credentials": creds}, "VALIDATION_MISSING_FIELD"},
		{"blank target", map[string]any{"subreddit": "   ", "credentials": creds}, "VALIDATION_MISSING_FIELD"},
		{"invalid name", map[string]any{"subreddit": "bad name!", "credentials": creds}, "VALIDATION_INVALID_VALUE"},
		{"too many", map[string]any{"subreddits": manyTargets, "credentials": creds}, "SCRAPER_TOO_MANY_SUBREDDITS"},
		{"no credentials", map[string]any{"subreddit": "golang"}, "VALIDATION_MISSING_FIELD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fleet := &fakeFleet{}
			w := postJSON(t, StartFlexible(testDeps(fleet)), tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if _, code := decodeError(t, w); code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
			if len(fleet.started) != 0 {
				t.Error("fleet should not be started on validation failure")
			}
		})
	}
}

func TestStartFlexibleSpawns(t *testing.T) {
	fleet := &fakeFleet{}
	body := map[string]any{
		"subreddits": []string{"GoLang", " rust ", "golang"},
		"credentials": map[string]string{
			"client_id": "id", "client_secret": "secret",
			"username": "u", "password": "p",
		},
	}
	w := postJSON(t, StartFlexible(testDeps(fleet)), body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(fleet.started) != 1 {
		t.Fatalf("started %d scrapers, want 1", len(fleet.started))
	}
	doc := fleet.started[0]
	if doc.Subreddit != "golang" {
		t.Errorf("primary = %q, want golang", doc.Subreddit)
	}
	if want := []string{"golang", "rust"}; !reflect.DeepEqual(doc.Subreddits, want) {
		t.Errorf("targets = %v, want %v (lowercased, deduped)", doc.Subreddits, want)
	}
	if doc.ScraperType != "posts" {
		t.Errorf("scraper type = %q, want posts default", doc.ScraperType)
	}
	if !doc.AutoRestart {
		t.Error("auto_restart should default to true")
	}
	if doc.PostsLimit != 1000 || doc.CommentBatch != 20 {
		t.Errorf("config defaults not applied: posts=%d batch=%d", doc.PostsLimit, doc.CommentBatch)
	}
	if want := []string{"new", "hot", "rising"}; !reflect.DeepEqual(doc.SortingMethods, want) {
		t.Errorf("sorting methods = %v, want %v", doc.SortingMethods, want)
	}
}

func TestStartFlexibleSpawnFailure(t *testing.T) {
	fleet := &fakeFleet{startErr: fmt.Errorf("binary not found")}
	body := map[string]any{
		"subreddit": "golang",
		"credentials": map[string]string{
			"client_id": "id", "client_secret": "secret",
			"username": "u", "password": "p",
		},
	}
	w := postJSON(t, StartFlexible(testDeps(fleet)), body)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if _, code := decodeError(t, w); code != "SCRAPER_SPAWN_FAILED" {
		t.Errorf("code = %q, want SCRAPER_SPAWN_FAILED", code)
	}
}

func TestStopScraperDefaultsType(t *testing.T) {
	fleet := &fakeFleet{}
	req := mux.SetURLVars(httptest.NewRequest("POST", "/scrapers/golang/stop", nil),
		map[string]string{"subreddit": "golang"})
	w := httptest.NewRecorder()
	StopScraper(testDeps(fleet))(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if want := []string{"golang/posts"}; !reflect.DeepEqual(fleet.stopped, want) {
		t.Errorf("stopped = %v, want %v", fleet.stopped, want)
	}
}

func TestSetAutoRestart(t *testing.T) {
	fleet := &fakeFleet{}
	deps := testDeps(fleet)

	req := mux.SetURLVars(
		httptest.NewRequest("PUT", "/scrapers/golang/auto-restart?auto_restart=false&scraper_type=comments", nil),
		map[string]string{"subreddit": "golang"})
	w := httptest.NewRecorder()
	SetAutoRestart(deps)(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if enabled, ok := fleet.autoFlags["golang/comments"]; !ok || enabled {
		t.Errorf("auto flag = %v (present %v), want false", enabled, ok)
	}

	req = mux.SetURLVars(
		httptest.NewRequest("PUT", "/scrapers/golang/auto-restart?auto_restart=maybe", nil),
		map[string]string{"subreddit": "golang"})
	w = httptest.NewRecorder()
	SetAutoRestart(deps)(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for bad auto_restart value", w.Code)
	}
}

func TestScraperLogsRejectsBadLines(t *testing.T) {
	fleet := &fakeFleet{logLines: []string{"line1", "line2"}}
	deps := testDeps(fleet)

	req := mux.SetURLVars(
		httptest.NewRequest("GET", "/scrapers/golang/logs?lines=zero", nil),
		map[string]string{"subreddit": "golang"})
	w := httptest.NewRecorder()
	ScraperLogs(deps)(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	req = mux.SetURLVars(
		httptest.NewRequest("GET", "/scrapers/golang/logs?lines=2", nil),
		map[string]string{"subreddit": "golang"})
	w = httptest.NewRecorder()
	ScraperLogs(deps)(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Lines []string `json:"lines"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Lines) != 2 {
		t.Errorf("lines = %v, want 2 entries", resp.Lines)
	}
}

func TestRestartAllFailed(t *testing.T) {
	fleet := &fakeFleet{failedRuns: 4}
	req := httptest.NewRequest("POST", "/scrapers/restart-all-failed", nil)
	w := httptest.NewRecorder()
	RestartAllFailed(testDeps(fleet))(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]int
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["restarted"] != 4 {
		t.Errorf("restarted = %d, want 4", resp["restarted"])
	}
}
