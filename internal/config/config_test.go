package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// ensure defaults kick in with empty env
	os.Unsetenv("REDDIT_USER_AGENT")
	os.Unsetenv("HTTP_MAX_RETRIES")
	os.Unsetenv("HTTP_RETRY_BASE_MS")
	os.Unsetenv("SORTING_METHODS")
	os.Unsetenv("MAX_COMMENT_DEPTH")
	os.Unsetenv("SCRAPE_INTERVAL")
	os.Unsetenv("MAX_SUBREDDITS_PER_SCRAPER")
	ResetForTest()

	cfg := Load()
	if cfg.UserAgent == "" {
		t.Fatalf("expected default UA, got empty")
	}
	if cfg.HTTPMaxRetries != 3 {
		t.Fatalf("expected default retries=3, got %d", cfg.HTTPMaxRetries)
	}
	if got := cfg.Scrape.SortingMethods; len(got) != 3 || got[0] != "new" || got[1] != "hot" || got[2] != "rising" {
		t.Fatalf("unexpected default sorting methods: %v", got)
	}
	if cfg.Scrape.MaxCommentDepth != 3 {
		t.Fatalf("expected default comment depth=3, got %d", cfg.Scrape.MaxCommentDepth)
	}
	if cfg.Scrape.InitialTopTimeFilter != "month" || cfg.Scrape.TopTimeFilter != "day" {
		t.Fatalf("unexpected top filters: initial=%q steady=%q",
			cfg.Scrape.InitialTopTimeFilter, cfg.Scrape.TopTimeFilter)
	}
	if cfg.Monitor.MaxSubredditsPerScraper != 30 {
		t.Fatalf("expected default max subreddits=30, got %d", cfg.Monitor.MaxSubredditsPerScraper)
	}
	if cfg.Database.Database != "noldo" {
		t.Fatalf("expected default database noldo, got %q", cfg.Database.Database)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SORTING_METHODS", "new,top")
	t.Setenv("SCRAPE_INTERVAL", "90s")
	t.Setenv("MONGODB_DATABASE", "fleet_test")
	ResetForTest()
	t.Cleanup(ResetForTest)

	cfg := Load()
	if got := cfg.Scrape.SortingMethods; len(got) != 2 || got[0] != "new" || got[1] != "top" {
		t.Fatalf("sorting methods override not applied: %v", got)
	}
	if cfg.Scrape.ScrapeInterval != 90*time.Second {
		t.Fatalf("scrape interval override not applied: %v", cfg.Scrape.ScrapeInterval)
	}
	if cfg.Database.Database != "fleet_test" {
		t.Fatalf("database override not applied: %q", cfg.Database.Database)
	}
}

func TestLoadCaches(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	if Load() != Load() {
		t.Fatal("Load should return the cached config")
	}
}
