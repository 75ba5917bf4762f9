package scraper

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/onnwee/reddit-scraper-fleet/internal/config"
	"github.com/onnwee/reddit-scraper-fleet/internal/reddit"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
)

type fakeStorage struct {
	postCount      int64
	posts          []store.PostDoc
	comments       []store.CommentDoc
	commentCounts  map[string]int64
	storedComments map[string]map[string]struct{}
	candidates     []store.PostDoc
	metadata       *store.MetadataDoc
	scraper        *store.ScraperDoc

	markedInitial []string
	markedUpdate  []string
	errs          []store.ErrorDoc
	usage         []store.UsageDoc
	metrics       *store.ScraperMetrics
	metadataDocs  []store.MetadataDoc
}

func (f *fakeStorage) UpsertPosts(ctx context.Context, posts []store.PostDoc) (int64, int64, error) {
	f.posts = append(f.posts, posts...)
	return int64(len(posts)), 0, nil
}

func (f *fakeStorage) UpsertComments(ctx context.Context, comments []store.CommentDoc) (int64, int64, error) {
	f.comments = append(f.comments, comments...)
	return int64(len(comments)), 0, nil
}

func (f *fakeStorage) MarkPostsCommentState(ctx context.Context, ids []string, initial bool) error {
	if initial {
		f.markedInitial = append(f.markedInitial, ids...)
	} else {
		f.markedUpdate = append(f.markedUpdate, ids...)
	}
	return nil
}

func (f *fakeStorage) CommentCandidates(ctx context.Context, subreddit string, limit int) ([]store.PostDoc, error) {
	return f.candidates, nil
}

func (f *fakeStorage) CountPosts(ctx context.Context, subreddit string) (int64, error) {
	return f.postCount, nil
}

func (f *fakeStorage) StoredCommentIDs(ctx context.Context, postID string) (map[string]struct{}, error) {
	if ids, ok := f.storedComments[postID]; ok {
		return ids, nil
	}
	return map[string]struct{}{}, nil
}

func (f *fakeStorage) CountComments(ctx context.Context, postID string) (int64, error) {
	return f.commentCounts[postID], nil
}

func (f *fakeStorage) UpsertSubredditMetadata(ctx context.Context, doc store.MetadataDoc) error {
	f.metadataDocs = append(f.metadataDocs, doc)
	return nil
}

func (f *fakeStorage) GetSubredditMetadata(ctx context.Context, name string) (*store.MetadataDoc, error) {
	return f.metadata, nil
}

func (f *fakeStorage) RecordError(ctx context.Context, doc store.ErrorDoc) error {
	f.errs = append(f.errs, doc)
	return nil
}

func (f *fakeStorage) AppendAPIUsage(ctx context.Context, doc store.UsageDoc) error {
	f.usage = append(f.usage, doc)
	return nil
}

func (f *fakeStorage) GetScraper(ctx context.Context, subreddit, scraperType string) (*store.ScraperDoc, error) {
	return f.scraper, nil
}

func (f *fakeStorage) UpdateScraperMetrics(ctx context.Context, subreddit, scraperType string, m store.ScraperMetrics) error {
	f.metrics = &m
	return nil
}

type listCall struct {
	sort       string
	timeFilter string
}

type fakeAPI struct {
	listCalls []listCall
	posts     map[string][]reddit.Post
	listErr   error
	trees     map[string][]reddit.CommentNode
	treeErr   map[string]error
}

func (f *fakeAPI) ListPosts(ctx context.Context, subreddit, sort, timeFilter string, limit int) ([]reddit.Post, error) {
	f.listCalls = append(f.listCalls, listCall{sort, timeFilter})
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.posts[sort], nil
}

func (f *fakeAPI) About(ctx context.Context, subreddit string) (*reddit.About, error) {
	return &reddit.About{DisplayName: subreddit, Title: "t"}, nil
}

func (f *fakeAPI) Rules(ctx context.Context, subreddit string) ([]reddit.Rule, error) {
	return nil, nil
}

func (f *fakeAPI) PostRequirements(ctx context.Context, subreddit string) (string, error) {
	return "", nil
}

func (f *fakeAPI) CommentTree(ctx context.Context, postID string, replaceMoreLimit int) ([]reddit.CommentNode, error) {
	if err, ok := f.treeErr[postID]; ok {
		return nil, err
	}
	return f.trees[postID], nil
}

type fakeGovernor struct{ checks int }

func (f *fakeGovernor) CheckBudget(ctx context.Context, minRemaining int) { f.checks++ }

type fakeCounter struct {
	cycle reddit.Stats
	snap  reddit.RateSnapshot
}

func (f *fakeCounter) CycleStats() reddit.Stats { return f.cycle }

func (f *fakeCounter) ResetCycle() reddit.Stats {
	s := f.cycle
	f.cycle = reddit.Stats{}
	return s
}

func (f *fakeCounter) Snapshot() (reddit.RateSnapshot, bool) { return f.snap, true }

func testScrapeConfig() config.ScrapeConfig {
	return config.ScrapeConfig{
		PostsLimit:              100,
		CommentBatch:            20,
		SortingMethods:          []string{"new", "hot", "top"},
		TopTimeFilter:           "day",
		InitialTopTimeFilter:    "month",
		ControversialTimeFilter: "day",
		MaxCommentDepth:         3,
		SubredditUpdateInterval: 24 * time.Hour,
		MinRemainingBudget:      50,
		SamplePostsLimit:        20,
	}
}

func newTestWorker(storage *fakeStorage, api *fakeAPI) *Worker {
	w := New(storage, api, &fakeGovernor{}, &fakeCounter{}, testScrapeConfig(), "golang", "posts", []string{"golang"})
	w.sleep = func(ctx context.Context, d time.Duration) {}
	return w
}

func TestHarvestFirstRunUsesBootstrapFilter(t *testing.T) {
	storage := &fakeStorage{postCount: 0}
	api := &fakeAPI{posts: map[string][]reddit.Post{}}
	w := newTestWorker(storage, api)

	if _, err := w.harvestPosts(context.Background(), "golang"); err != nil {
		t.Fatal(err)
	}

	want := map[string]string{"new": "", "hot": "", "top": "month"}
	for _, call := range api.listCalls {
		if filter, ok := want[call.sort]; !ok || filter != call.timeFilter {
			t.Errorf("sort %s used filter %q, want %q", call.sort, call.timeFilter, want[call.sort])
		}
	}
}

func TestHarvestSteadyStateUsesDayFilter(t *testing.T) {
	storage := &fakeStorage{postCount: 500}
	api := &fakeAPI{posts: map[string][]reddit.Post{}}
	w := newTestWorker(storage, api)

	if _, err := w.harvestPosts(context.Background(), "golang"); err != nil {
		t.Fatal(err)
	}

	for _, call := range api.listCalls {
		if call.sort == "top" && call.timeFilter != "day" {
			t.Errorf("steady-state top filter = %q, want day", call.timeFilter)
		}
	}
}

func TestHarvestDedupsAcrossSorts(t *testing.T) {
	shared := reddit.Post{ID: "x1", Title: "shared"}
	storage := &fakeStorage{postCount: 500}
	api := &fakeAPI{posts: map[string][]reddit.Post{
		"new": {shared, {ID: "n1"}},
		"hot": {shared, {ID: "h1"}},
		"top": {shared},
	}}
	w := newTestWorker(storage, api)

	n, err := w.harvestPosts(context.Background(), "golang")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("distinct posts = %d, want 3", n)
	}
	seen := map[string]int{}
	for _, p := range storage.posts {
		seen[p.PostID]++
	}
	if seen["x1"] != 1 {
		t.Errorf("shared post upserted %d times, want 1", seen["x1"])
	}
}

func TestHarvestSortFailureSkipsAndRecords(t *testing.T) {
	storage := &fakeStorage{postCount: 500}
	api := &fakeAPI{listErr: errors.New("reddit down")}
	w := newTestWorker(storage, api)
	w.retryCfg = retryConfig{attempts: 2, base: time.Millisecond}

	if _, err := w.harvestPosts(context.Background(), "golang"); err != nil {
		t.Fatalf("sort failures must not fail the phase: %v", err)
	}
	if len(storage.errs) != 3 {
		t.Fatalf("recorded %d errors, want 3 (one per sort)", len(storage.errs))
	}
	if storage.errs[0].ErrorType != "listing_failed" {
		t.Errorf("error type = %s, want listing_failed", storage.errs[0].ErrorType)
	}
}

func TestRefreshCommentsGhostVerification(t *testing.T) {
	tree := []reddit.CommentNode{{ID: "c1", Body: "hi", ParentID: "ghost", ParentType: "post"}}
	storage := &fakeStorage{
		candidates: []store.PostDoc{
			// claims comments but the store never shows them
			{PostID: "ghost", Subreddit: "golang", NumComments: 50, InitialCommentsScraped: false},
			// legitimately empty post
			{PostID: "empty", Subreddit: "golang", NumComments: 0, InitialCommentsScraped: false},
			// already-initialized post on a refresh pass
			{PostID: "update", Subreddit: "golang", NumComments: 10, InitialCommentsScraped: true},
		},
		commentCounts: map[string]int64{"ghost": 0, "update": 3},
	}
	api := &fakeAPI{trees: map[string][]reddit.CommentNode{
		"ghost":  tree,
		"empty":  {},
		"update": {},
	}}
	w := newTestWorker(storage, api)

	if _, err := w.refreshComments(context.Background(), "golang"); err != nil {
		t.Fatal(err)
	}

	if contains(storage.markedInitial, "ghost") {
		t.Error("ghost post must not be marked initial-scraped")
	}
	if !contains(storage.markedInitial, "empty") {
		t.Error("claimed-zero post must be marked initial-scraped")
	}
	if !contains(storage.markedUpdate, "update") {
		t.Error("update candidate must be marked")
	}

	var ghostErr bool
	for _, e := range storage.errs {
		if e.ErrorType == "verification_failed" && e.PostID == "ghost" {
			ghostErr = true
		}
	}
	if !ghostErr {
		t.Error("verification_failed must be recorded for the ghost post")
	}
}

func TestRefreshCommentsFetchFailureExcluded(t *testing.T) {
	storage := &fakeStorage{
		candidates: []store.PostDoc{
			{PostID: "bad", Subreddit: "golang", NumComments: 5},
			{PostID: "good", Subreddit: "golang", NumComments: 5},
		},
		commentCounts: map[string]int64{"good": 1},
	}
	api := &fakeAPI{
		trees:   map[string][]reddit.CommentNode{"good": {{ID: "g1", ParentID: "good", ParentType: "post"}}},
		treeErr: map[string]error{"bad": errors.New("boom")},
	}
	w := newTestWorker(storage, api)
	w.retryCfg = retryConfig{attempts: 2, base: time.Millisecond}

	if _, err := w.refreshComments(context.Background(), "golang"); err != nil {
		t.Fatal(err)
	}
	if contains(storage.markedInitial, "bad") || contains(storage.markedUpdate, "bad") {
		t.Error("failed fetch must not be marked in either partition")
	}
	if !contains(storage.markedInitial, "good") {
		t.Error("successful fetch must be marked")
	}
}

func TestCollectCommentsDepthAndSeen(t *testing.T) {
	tree := []reddit.CommentNode{
		{ID: "a", Depth: 0, Replies: []reddit.CommentNode{
			{ID: "b", Depth: 1, Replies: []reddit.CommentNode{
				{ID: "c", Depth: 2, Replies: []reddit.CommentNode{
					{ID: "d", Depth: 3},
				}},
			}},
		}},
	}
	stored := map[string]struct{}{"a": {}}

	docs := collectComments(tree, stored, 3, "p1", "golang")

	got := map[string]bool{}
	for _, d := range docs {
		got[d.CommentID] = true
	}
	if got["a"] {
		t.Error("seen comment re-materialised")
	}
	if !got["b"] || !got["c"] {
		t.Error("unseen nested comments must be collected")
	}
	if got["d"] {
		t.Error("comment at max depth must be excluded")
	}
}

func TestFlushMetricsAccuracyRatio(t *testing.T) {
	storage := &fakeStorage{
		scraper: &store.ScraperDoc{
			Subreddit: "golang", ScraperType: "posts",
			CreatedAt: time.Now().Add(-2 * time.Hour),
		},
	}
	counter := &fakeCounter{
		cycle: reddit.Stats{Requests: 20, Errors: 1, AvgResponseTime: 150 * time.Millisecond, CostUSD: 20 * reddit.CostPerRequest},
		snap:  reddit.RateSnapshot{Remaining: 500, Used: 100, ResetIn: 30 * time.Second},
	}
	w := New(storage, &fakeAPI{}, &fakeGovernor{}, counter, testScrapeConfig(), "golang", "posts", []string{"golang"})
	w.sleep = func(ctx context.Context, d time.Duration) {}
	w.countCall("posts_new")
	w.countCall("posts_new")
	w.countCall("comments")
	w.countCall("comments")
	w.countCall("about")

	if err := w.flushMetrics(context.Background(), 40, 120, time.Minute); err != nil {
		t.Fatal(err)
	}

	if len(storage.usage) != 1 {
		t.Fatalf("usage records = %d, want 1", len(storage.usage))
	}
	u := storage.usage[0]
	if u.LogicalRequests != 5 {
		t.Errorf("LogicalRequests = %d, want 5", u.LogicalRequests)
	}
	if u.ActualHTTPRequests != 20 {
		t.Errorf("ActualHTTPRequests = %d, want 20", u.ActualHTTPRequests)
	}
	if want := 5.0 / 20.0; u.AccuracyRatio != want {
		t.Errorf("AccuracyRatio = %v, want %v", u.AccuracyRatio, want)
	}
	if u.RateLimit.Remaining != 500 {
		t.Errorf("RateLimit.Remaining = %v, want 500", u.RateLimit.Remaining)
	}

	if storage.metrics == nil {
		t.Fatal("scraper metrics not written")
	}
	if storage.metrics.TotalPostsCollected != 40 || storage.metrics.TotalCommentsCollected != 120 {
		t.Errorf("totals = %d/%d, want 40/120",
			storage.metrics.TotalPostsCollected, storage.metrics.TotalCommentsCollected)
	}
	if storage.metrics.CyclesCompleted != 1 {
		t.Errorf("CyclesCompleted = %d, want 1", storage.metrics.CyclesCompleted)
	}

	// counters drained for the next cycle
	if len(w.callCounts) != 0 {
		t.Errorf("callCounts not reset: %v", w.callCounts)
	}
	if counter.cycle.Requests != 0 {
		t.Errorf("transport cycle counters not reset")
	}
}

func TestRefreshMetadataGate(t *testing.T) {
	fresh := time.Now().Add(-time.Hour)
	storage := &fakeStorage{metadata: &store.MetadataDoc{SubredditName: "golang", LastUpdated: fresh}}
	api := &fakeAPI{}
	w := newTestWorker(storage, api)

	if err := w.refreshMetadata(context.Background(), "golang"); err != nil {
		t.Fatal(err)
	}
	if len(storage.metadataDocs) != 0 {
		t.Error("fresh metadata must not be refetched inside the update interval")
	}

	storage.metadata = &store.MetadataDoc{SubredditName: "golang", LastUpdated: time.Now().Add(-25 * time.Hour)}
	if err := w.refreshMetadata(context.Background(), "golang"); err != nil {
		t.Fatal(err)
	}
	if len(storage.metadataDocs) != 1 {
		t.Error("stale metadata must be refreshed")
	}
}

func TestTruncateExcerptRuneBoundary(t *testing.T) {
	// "é" is two bytes; cutting between them must back up to the rune start
	long := strings.Repeat("a", excerptLen-1) + "éé"
	got := truncateExcerpt(long, excerptLen)
	if !utf8.ValidString(got) {
		t.Fatalf("excerpt is not valid UTF-8: %q", got[len(got)-4:])
	}
	if want := strings.Repeat("a", excerptLen-1); got != want {
		t.Errorf("excerpt cut at byte %d, want clean cut before the split rune", len(got))
	}
	if short := "short"; truncateExcerpt(short, excerptLen) != short {
		t.Error("strings within the bound must pass through unchanged")
	}

	doc := metadataDoc("golang", &reddit.About{Title: "Go"}, nil, "", []reddit.Post{
		{Title: "post", SelfText: long, Score: 10},
	})
	if !utf8.ValidString(doc.SamplePosts[0].Excerpt) {
		t.Error("stored sample excerpt must be valid UTF-8")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
