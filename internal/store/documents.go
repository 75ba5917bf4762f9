package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PostDoc is one submission row in reddit_posts, keyed on post_id.
type PostDoc struct {
	PostID          string    `bson:"post_id" json:"post_id"`
	Subreddit       string    `bson:"subreddit" json:"subreddit"`
	Title           string    `bson:"title" json:"title"`
	Author          string    `bson:"author" json:"author"`
	SelfText        string    `bson:"selftext" json:"selftext"`
	URL             string    `bson:"url" json:"url"`
	Permalink       string    `bson:"permalink" json:"permalink"`
	Score           int       `bson:"score" json:"score"`
	UpvoteRatio     float64   `bson:"upvote_ratio" json:"upvote_ratio"`
	NumComments     int       `bson:"num_comments" json:"num_comments"`
	CreatedUTC      float64   `bson:"created_utc" json:"created_utc"`
	CreatedDatetime time.Time `bson:"created_datetime" json:"created_datetime"`
	IsSelf          bool      `bson:"is_self" json:"is_self"`
	Over18          bool      `bson:"over_18" json:"over_18"`
	Stickied        bool      `bson:"stickied" json:"stickied"`
	LinkFlair       string    `bson:"link_flair_text,omitempty" json:"link_flair_text,omitempty"`
	Domain          string    `bson:"domain,omitempty" json:"domain,omitempty"`
	Distinguished   string    `bson:"distinguished,omitempty" json:"distinguished,omitempty"`
	SortMethod      string    `bson:"sort_method" json:"sort_method"`
	ScrapedAt       time.Time `bson:"scraped_at" json:"scraped_at"`

	// Comment-tracking fields; monotonic once true, preserved across upserts.
	CommentsScraped        bool       `bson:"comments_scraped" json:"comments_scraped"`
	InitialCommentsScraped bool       `bson:"initial_comments_scraped" json:"initial_comments_scraped"`
	LastCommentFetchTime   *time.Time `bson:"last_comment_fetch_time,omitempty" json:"last_comment_fetch_time,omitempty"`
	CommentsScrapedAt      *time.Time `bson:"comments_scraped_at,omitempty" json:"comments_scraped_at,omitempty"`
}

// CommentDoc is one comment row in reddit_comments, keyed on comment_id.
type CommentDoc struct {
	CommentID       string    `bson:"comment_id" json:"comment_id"`
	PostID          string    `bson:"post_id" json:"post_id"`
	Subreddit       string    `bson:"subreddit" json:"subreddit"`
	Author          string    `bson:"author" json:"author"`
	Body            string    `bson:"body" json:"body"`
	Score           int       `bson:"score" json:"score"`
	Depth           int       `bson:"depth" json:"depth"`
	ParentID        string    `bson:"parent_id" json:"parent_id"`
	ParentType      string    `bson:"parent_type" json:"parent_type"`
	CreatedUTC      float64   `bson:"created_utc" json:"created_utc"`
	CreatedDatetime time.Time `bson:"created_datetime" json:"created_datetime"`
	ScrapedAt       time.Time `bson:"scraped_at" json:"scraped_at"`
}

// RuleDoc is one structured community rule.
type RuleDoc struct {
	ShortName   string `bson:"short_name" json:"short_name"`
	Description string `bson:"description" json:"description"`
	Kind        string `bson:"kind,omitempty" json:"kind,omitempty"`
	Priority    int    `bson:"priority" json:"priority"`
}

// SamplePostDoc is one title+excerpt sample kept on subreddit metadata.
type SamplePostDoc struct {
	Title   string `bson:"title" json:"title"`
	Excerpt string `bson:"excerpt,omitempty" json:"excerpt,omitempty"`
	Score   int    `bson:"score" json:"score"`
}

// EmbeddingRecord is one stored embedding with provenance.
type EmbeddingRecord struct {
	Vector      []float32 `bson:"vector" json:"vector"`
	Model       string    `bson:"model" json:"model"`
	Dimensions  int       `bson:"dimensions" json:"dimensions"`
	GeneratedAt time.Time `bson:"generated_at" json:"generated_at"`
}

// EmbeddingsDoc groups the two embedding variants on subreddit metadata.
type EmbeddingsDoc struct {
	Combined *EmbeddingRecord `bson:"combined_embedding,omitempty" json:"combined_embedding,omitempty"`
	Persona  *EmbeddingRecord `bson:"persona_embedding,omitempty" json:"persona_embedding,omitempty"`
}

// LLMEnrichment is the audience profile produced by the chat provider.
type LLMEnrichment struct {
	AudienceProfile string    `bson:"audience_profile" json:"audience_profile"`
	AudienceTypes   []string  `bson:"audience_types" json:"audience_types"`
	UserIntents     []string  `bson:"user_intents" json:"user_intents"`
	PainPoints      []string  `bson:"pain_points" json:"pain_points"`
	ContentThemes   []string  `bson:"content_themes" json:"content_themes"`
	GeneratedAt     time.Time `bson:"generated_at" json:"generated_at"`
	Model           string    `bson:"model" json:"model"`
}

// Embedding status values on MetadataDoc.
const (
	EmbeddingPending  = "pending"
	EmbeddingComplete = "complete"
	EmbeddingFailed   = "failed"
)

// MetadataDoc is one row in subreddit_metadata, keyed on subreddit_name.
type MetadataDoc struct {
	SubredditName      string          `bson:"subreddit_name" json:"subreddit_name"`
	Title              string          `bson:"title" json:"title"`
	PublicDescription  string          `bson:"public_description" json:"public_description"`
	Description        string          `bson:"description" json:"description"`
	Subscribers        int64           `bson:"subscribers" json:"subscribers"`
	ActiveUserCount    int64           `bson:"active_user_count" json:"active_user_count"`
	CreatedUTC         float64         `bson:"created_utc" json:"created_utc"`
	Over18             bool            `bson:"over18" json:"over18"`
	SubredditType      string          `bson:"subreddit_type,omitempty" json:"subreddit_type,omitempty"`
	AdvertiserCategory string          `bson:"advertiser_category,omitempty" json:"advertiser_category,omitempty"`
	Lang               string          `bson:"lang,omitempty" json:"lang,omitempty"`
	URL                string          `bson:"url,omitempty" json:"url,omitempty"`
	Rules              []RuleDoc       `bson:"rules,omitempty" json:"rules,omitempty"`
	RulesText          string          `bson:"rules_text,omitempty" json:"rules_text,omitempty"`
	GuidelinesText     string          `bson:"guidelines_text,omitempty" json:"guidelines_text,omitempty"`
	SamplePostsTitles  []string        `bson:"sample_posts_titles,omitempty" json:"sample_posts_titles,omitempty"`
	SamplePosts        []SamplePostDoc `bson:"sample_posts,omitempty" json:"sample_posts,omitempty"`

	EmbeddingStatus      string         `bson:"embedding_status,omitempty" json:"embedding_status,omitempty"`
	EmbeddingRequestedAt *time.Time     `bson:"embedding_requested_at,omitempty" json:"embedding_requested_at,omitempty"`
	EmbeddingError       string         `bson:"embedding_error,omitempty" json:"embedding_error,omitempty"`
	EmbeddingRetryCount  int            `bson:"embedding_retry_count,omitempty" json:"embedding_retry_count,omitempty"`
	Embeddings           *EmbeddingsDoc `bson:"embeddings,omitempty" json:"embeddings,omitempty"`
	Enrichment           *LLMEnrichment `bson:"llm_enrichment,omitempty" json:"llm_enrichment,omitempty"`

	LastUpdated time.Time `bson:"last_updated" json:"last_updated"`
}

// ScraperMetrics is the worker-owned metrics block on a scraper instance.
type ScraperMetrics struct {
	TotalPostsCollected    int64     `bson:"total_posts_collected" json:"total_posts_collected"`
	TotalCommentsCollected int64     `bson:"total_comments_collected" json:"total_comments_collected"`
	CyclesCompleted        int64     `bson:"cycles_completed" json:"cycles_completed"`
	PostsPerHour           float64   `bson:"posts_per_hour" json:"posts_per_hour"`
	CommentsPerHour        float64   `bson:"comments_per_hour" json:"comments_per_hour"`
	LastCyclePosts         int       `bson:"last_cycle_posts" json:"last_cycle_posts"`
	LastCycleComments      int       `bson:"last_cycle_comments" json:"last_cycle_comments"`
	LastCycleDuration      float64   `bson:"last_cycle_duration_seconds" json:"last_cycle_duration_seconds"`
	AvgCycleDuration       float64   `bson:"avg_cycle_duration_seconds" json:"avg_cycle_duration_seconds"`
	LastCycleAt            time.Time `bson:"last_cycle_at" json:"last_cycle_at"`
}

// Scraper status values.
const (
	StatusStarting   = "starting"
	StatusRunning    = "running"
	StatusStopped    = "stopped"
	StatusFailed     = "failed"
	StatusError      = "error"
	StatusRestarting = "restarting"
)

// AccountCredentials is the credential block embedded in scraper rows and
// stored in the account vault. Masked with "***" on any external surface.
type AccountCredentials struct {
	ClientID     string `bson:"client_id" json:"client_id"`
	ClientSecret string `bson:"client_secret" json:"client_secret"`
	Username     string `bson:"username" json:"username"`
	Password     string `bson:"password" json:"password"`
	UserAgent    string `bson:"user_agent" json:"user_agent"`
}

// ScraperDoc is one scraper instance row in reddit_scrapers, keyed on
// (subreddit, scraper_type).
type ScraperDoc struct {
	Subreddit      string             `bson:"subreddit" json:"subreddit"`
	Subreddits     []string           `bson:"subreddits" json:"subreddits"`
	ScraperType    string             `bson:"scraper_type" json:"scraper_type"`
	Status         string             `bson:"status" json:"status"`
	ContainerHandle string            `bson:"container_handle,omitempty" json:"container_handle,omitempty"`
	AutoRestart    bool               `bson:"auto_restart" json:"auto_restart"`
	RestartCount   int                `bson:"restart_count" json:"restart_count"`
	LastError      string             `bson:"last_error,omitempty" json:"last_error,omitempty"`
	Credentials    AccountCredentials `bson:"credentials" json:"credentials"`

	PostsLimit     int      `bson:"posts_limit" json:"posts_limit"`
	ScrapeInterval int      `bson:"scrape_interval" json:"scrape_interval"`
	CommentBatch   int      `bson:"comment_batch" json:"comment_batch"`
	SortingMethods []string `bson:"sorting_methods" json:"sorting_methods"`

	PendingScrape  []string       `bson:"pending_scrape,omitempty" json:"pending_scrape,omitempty"`
	ScrapeFailures map[string]int `bson:"scrape_failures,omitempty" json:"scrape_failures,omitempty"`

	Metrics     ScraperMetrics `bson:"metrics" json:"metrics"`
	CreatedAt   time.Time      `bson:"created_at" json:"created_at"`
	LastUpdated time.Time      `bson:"last_updated" json:"last_updated"`
}

// AccountDoc is one saved credential set in reddit_accounts.
type AccountDoc struct {
	AccountName string             `bson:"account_name" json:"account_name"`
	Credentials AccountCredentials `bson:"credentials" json:"credentials"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	LastUpdated time.Time          `bson:"last_updated" json:"last_updated"`
}

// ErrorDoc is one append-only row in scrape_errors.
type ErrorDoc struct {
	Subreddit  string    `bson:"subreddit" json:"subreddit"`
	PostID     string    `bson:"post_id,omitempty" json:"post_id,omitempty"`
	ErrorType  string    `bson:"error_type" json:"error_type"`
	Message    string    `bson:"message" json:"message"`
	RetryCount int       `bson:"retry_count" json:"retry_count"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
	Resolved   bool      `bson:"resolved" json:"resolved"`
}

// RateLimitSnapshot is the header budget observed at cycle end.
type RateLimitSnapshot struct {
	Remaining float64 `bson:"remaining" json:"remaining"`
	Used      float64 `bson:"used" json:"used"`
	ResetIn   float64 `bson:"reset_in_seconds" json:"reset_in_seconds"`
}

// UsageDoc is one append-only cycle record in reddit_api_usage.
// Expired by a TTL index on timestamp.
type UsageDoc struct {
	Subreddit          string            `bson:"subreddit" json:"subreddit"`
	ScraperType        string            `bson:"scraper_type" json:"scraper_type"`
	Timestamp          time.Time         `bson:"timestamp" json:"timestamp"`
	MinuteBucket       string            `bson:"minute_bucket" json:"minute_bucket"`
	HourBucket         string            `bson:"hour_bucket" json:"hour_bucket"`
	DayBucket          string            `bson:"day_bucket" json:"day_bucket"`
	CallCounts         map[string]int64  `bson:"call_counts" json:"call_counts"`
	LogicalRequests    int64             `bson:"logical_requests" json:"logical_requests"`
	ActualHTTPRequests int64             `bson:"actual_http_requests" json:"actual_http_requests"`
	EstimatedCostUSD   float64           `bson:"estimated_cost_usd" json:"estimated_cost_usd"`
	AvgResponseMs      float64           `bson:"avg_response_ms" json:"avg_response_ms"`
	ErrorCount         int64             `bson:"error_count" json:"error_count"`
	AccuracyRatio      float64           `bson:"accuracy_ratio" json:"accuracy_ratio"`
	RateLimit          RateLimitSnapshot `bson:"rate_limit" json:"rate_limit"`
}

// SuggestedName is one proposed subreddit inside a suggestion document.
type SuggestedName struct {
	Name string `bson:"name" json:"name"`
}

// SuggestionDoc is one externally-inserted row in subreddit_suggestions.
type SuggestionDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Subreddits      []SuggestedName    `bson:"subreddits" json:"subreddits"`
	SyncedAt        *time.Time         `bson:"synced_at,omitempty" json:"synced_at,omitempty"`
	SyncedToScraper string             `bson:"synced_to_scraper,omitempty" json:"synced_to_scraper,omitempty"`
	CreatedAt       time.Time          `bson:"created_at,omitempty" json:"created_at,omitempty"`
}
