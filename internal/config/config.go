package config

import (
	"os"
	"strings"
	"time"

	"github.com/onnwee/reddit-scraper-fleet/internal/utils"
)

// DatabaseConfig holds MongoDB connection settings and collection names.
type DatabaseConfig struct {
	URI          string
	Database     string
	Posts        string
	Comments     string
	Metadata     string
	Scrapers     string
	Accounts     string
	Errors       string
	APIUsage     string
	Suggestions  string
	UsageTTLDays int
}

// ScrapeConfig holds per-worker scraping parameters.
type ScrapeConfig struct {
	ScrapeInterval          time.Duration
	PostsLimit              int
	CommentBatch            int
	SortingMethods          []string
	TopTimeFilter           string
	InitialTopTimeFilter    string
	ControversialTimeFilter string
	MaxCommentDepth         int
	// ReplaceMoreLimit controls continuation expansion: -1 expands all,
	// 0 skips them, N caps the number expanded per post.
	ReplaceMoreLimit        int
	SubredditUpdateInterval time.Duration
	InterSortDelay          time.Duration
	InterPostDelay          time.Duration
	MinRemainingBudget      int
	SamplePostsLimit        int
}

// MonitorConfig holds supervisor liveness-loop parameters.
type MonitorConfig struct {
	CheckInterval           time.Duration
	RestartCooldown         time.Duration
	RestartDelay            time.Duration
	StopGracePeriod         time.Duration
	MaxSubredditsPerScraper int
	HandlePrefix            string
	LogDir                  string
	WorkerBinary            string
}

// ProviderConfig holds embedding/chat provider settings (Azure OpenAI).
type ProviderConfig struct {
	Endpoint            string
	APIKey              string
	ChatDeployment      string
	EmbeddingDeployment string
	EmbeddingDimensions int
}

// EnrichmentConfig holds the enrichment worker parameters.
type EnrichmentConfig struct {
	CheckInterval time.Duration
	BatchSize     int
	MaxRetries    int
	ItemDelay     time.Duration
}

// SuggestionsConfig holds the suggestions sync worker parameters.
type SuggestionsConfig struct {
	CheckInterval     time.Duration
	TargetScraperType string
}

// Config holds application configuration derived from environment variables.
type Config struct {
	UserAgent      string
	APIPort        int
	HTTPMaxRetries int
	HTTPRetryBase  time.Duration
	HTTPTimeout    time.Duration
	LogHTTPRetries bool

	// Reddit pacing (token bucket under the header-driven budget check)
	CrawlerRPS       float64 // requests per second to Reddit API
	CrawlerBurstSize int     // burst size for crawler rate limit

	// Control-plane rate limiting
	RateLimitGlobal      float64 // requests per second globally
	RateLimitGlobalBurst int     // burst size for global rate limit
	RateLimitPerIP       float64 // requests per second per IP
	RateLimitPerIPBurst  int     // burst size for per-IP rate limit
	EnableRateLimit      bool    // enable rate limiting middleware

	Database    DatabaseConfig
	Scrape      ScrapeConfig
	Monitor     MonitorConfig
	Provider    ProviderConfig
	Enrichment  EnrichmentConfig
	Suggestions SuggestionsConfig

	// Observability settings
	LogLevel          string  // log level: debug, info, warn, error
	OTELEnabled       bool    // enable OpenTelemetry tracing
	OTELEndpoint      string  // OpenTelemetry collector endpoint
	OTELSampleRate    float64 // trace sampling rate (0.0 to 1.0)
	SentryDSN         string  // Sentry DSN for error reporting
	SentryEnvironment string  // Sentry environment (dev, staging, production)
	SentryRelease     string  // Sentry release version
	SentrySampleRate  float64 // Sentry error sampling rate (0.0 to 1.0)

	// Stats response cache
	StatsCacheTTL     time.Duration
	StatsCacheMaxMB   int64
	StatsCacheEntries int64
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	ua := strings.TrimSpace(os.Getenv("REDDIT_USER_AGENT"))
	if ua == "" {
		ua = "reddit-scraper-fleet/0.1"
	}
	cached = &Config{
		UserAgent:      ua,
		APIPort:        utils.GetEnvAsInt("API_PORT", 8000),
		HTTPMaxRetries: utils.GetEnvAsInt("HTTP_MAX_RETRIES", 3),
		HTTPRetryBase:  time.Duration(utils.GetEnvAsInt("HTTP_RETRY_BASE_MS", 300)) * time.Millisecond,
		HTTPTimeout:    time.Duration(utils.GetEnvAsInt("HTTP_TIMEOUT_MS", 15000)) * time.Millisecond,
		LogHTTPRetries: utils.GetEnvAsBool("LOG_HTTP_RETRIES", false),

		// Default to ~1.66 rps (100 requests per minute, Reddit's OAuth ceiling)
		CrawlerRPS:       utils.GetEnvAsFloat("CRAWLER_RPS", 1.66),
		CrawlerBurstSize: utils.GetEnvAsInt("CRAWLER_BURST_SIZE", 1),

		RateLimitGlobal:      utils.GetEnvAsFloat("RATE_LIMIT_GLOBAL", 100.0),
		RateLimitGlobalBurst: utils.GetEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 200),
		RateLimitPerIP:       utils.GetEnvAsFloat("RATE_LIMIT_PER_IP", 10.0),
		RateLimitPerIPBurst:  utils.GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 20),
		EnableRateLimit:      utils.GetEnvAsBool("ENABLE_RATE_LIMIT", true),

		Database: DatabaseConfig{
			URI:          strings.TrimSpace(os.Getenv("MONGODB_URI")),
			Database:     utils.GetEnvOrDefault("MONGODB_DATABASE", "noldo"),
			Posts:        "reddit_posts",
			Comments:     "reddit_comments",
			Metadata:     "subreddit_metadata",
			Scrapers:     "reddit_scrapers",
			Accounts:     "reddit_accounts",
			Errors:       "scrape_errors",
			APIUsage:     "reddit_api_usage",
			Suggestions:  "subreddit_suggestions",
			UsageTTLDays: utils.GetEnvAsInt("API_USAGE_RETENTION_DAYS", 30),
		},

		Scrape: ScrapeConfig{
			ScrapeInterval:          utils.GetEnvAsDuration("SCRAPE_INTERVAL", 5*time.Minute),
			PostsLimit:              utils.GetEnvAsInt("POSTS_LIMIT", 1000),
			CommentBatch:            utils.GetEnvAsInt("COMMENT_BATCH", 20),
			SortingMethods:          utils.GetEnvAsSlice("SORTING_METHODS", []string{"new", "hot", "rising"}, ","),
			TopTimeFilter:           utils.GetEnvOrDefault("TOP_TIME_FILTER", "day"),
			InitialTopTimeFilter:    utils.GetEnvOrDefault("INITIAL_TOP_TIME_FILTER", "month"),
			ControversialTimeFilter: utils.GetEnvOrDefault("CONTROVERSIAL_TIME_FILTER", "day"),
			MaxCommentDepth:         utils.GetEnvAsInt("MAX_COMMENT_DEPTH", 3),
			ReplaceMoreLimit:        utils.GetEnvAsInt("REPLACE_MORE_LIMIT", 0),
			SubredditUpdateInterval: utils.GetEnvAsDuration("SUBREDDIT_UPDATE_INTERVAL", 24*time.Hour),
			InterSortDelay:          utils.GetEnvAsDuration("INTER_SORT_DELAY", 2*time.Second),
			InterPostDelay:          utils.GetEnvAsDuration("INTER_POST_DELAY", 2*time.Second),
			MinRemainingBudget:      utils.GetEnvAsInt("MIN_REMAINING", 50),
			SamplePostsLimit:        utils.GetEnvAsInt("SAMPLE_POSTS_LIMIT", 20),
		},

		Monitor: MonitorConfig{
			CheckInterval:           utils.GetEnvAsDuration("CHECK_INTERVAL", 30*time.Second),
			RestartCooldown:         utils.GetEnvAsDuration("RESTART_COOLDOWN", 30*time.Second),
			RestartDelay:            utils.GetEnvAsDuration("RESTART_DELAY", 5*time.Second),
			StopGracePeriod:         utils.GetEnvAsDuration("STOP_GRACE_PERIOD", 30*time.Second),
			MaxSubredditsPerScraper: utils.GetEnvAsInt("MAX_SUBREDDITS_PER_SCRAPER", 30),
			HandlePrefix:            utils.GetEnvOrDefault("SCRAPER_HANDLE_PREFIX", "reddit-scraper-"),
			LogDir:                  utils.GetEnvOrDefault("SCRAPER_LOG_DIR", "logs"),
			WorkerBinary:            strings.TrimSpace(os.Getenv("SCRAPER_WORKER_BINARY")),
		},

		Provider: ProviderConfig{
			Endpoint:            strings.TrimSpace(os.Getenv("AZURE_OPENAI_ENDPOINT")),
			APIKey:              strings.TrimSpace(os.Getenv("AZURE_OPENAI_API_KEY")),
			ChatDeployment:      utils.GetEnvOrDefault("AZURE_DEPLOYMENT_NAME", "gpt-4o-mini"),
			EmbeddingDeployment: utils.GetEnvOrDefault("AZURE_EMBEDDING_DEPLOYMENT", "text-embedding-3-small"),
			EmbeddingDimensions: utils.GetEnvAsInt("EMBEDDING_DIMENSIONS", 1536),
		},

		Enrichment: EnrichmentConfig{
			CheckInterval: utils.GetEnvAsDuration("EMBEDDING_CHECK_INTERVAL", 60*time.Second),
			BatchSize:     utils.GetEnvAsInt("EMBEDDING_BATCH_SIZE", 10),
			MaxRetries:    utils.GetEnvAsInt("EMBEDDING_MAX_RETRIES", 3),
			ItemDelay:     utils.GetEnvAsDuration("EMBEDDING_ITEM_DELAY", 500*time.Millisecond),
		},

		Suggestions: SuggestionsConfig{
			CheckInterval:     utils.GetEnvAsDuration("SUGGESTIONS_CHECK_INTERVAL", 60*time.Second),
			TargetScraperType: utils.GetEnvOrDefault("SUGGESTIONS_TARGET_TYPE", "posts"),
		},

		LogLevel:          strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		OTELEnabled:       utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRate:    utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
		SentryRelease:     strings.TrimSpace(os.Getenv("SENTRY_RELEASE")),
		SentrySampleRate:  utils.GetEnvAsFloat("SENTRY_SAMPLE_RATE", 1.0),

		StatsCacheTTL:     utils.GetEnvAsDuration("STATS_CACHE_TTL", 15*time.Second),
		StatsCacheMaxMB:   int64(utils.GetEnvAsInt("STATS_CACHE_MAX_MB", 16)),
		StatsCacheEntries: int64(utils.GetEnvAsInt("STATS_CACHE_ENTRIES", 1024)),
	}
	if cached.LogLevel == "" {
		cached.LogLevel = "info"
	}
	if cached.SentryEnvironment == "" {
		if env := os.Getenv("ENV"); env != "" {
			cached.SentryEnvironment = env
		} else {
			cached.SentryEnvironment = "development"
		}
	}
	return cached
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }
