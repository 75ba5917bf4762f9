package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/onnwee/reddit-scraper-fleet/internal/config"
	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
	"github.com/onnwee/reddit-scraper-fleet/internal/metrics"
)

// Store is the document persistence layer over a single Mongo database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	cfg    config.DatabaseConfig
}

// Connect dials Mongo and pings it within the given context.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	logger.WithComponent("store").Info("connected to database", "database", cfg.Database)
	return &Store{client: client, db: client.Database(cfg.Database), cfg: cfg}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies connectivity; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) posts() *mongo.Collection       { return s.db.Collection(s.cfg.Posts) }
func (s *Store) comments() *mongo.Collection    { return s.db.Collection(s.cfg.Comments) }
func (s *Store) metadata() *mongo.Collection    { return s.db.Collection(s.cfg.Metadata) }
func (s *Store) scrapers() *mongo.Collection    { return s.db.Collection(s.cfg.Scrapers) }
func (s *Store) accounts() *mongo.Collection    { return s.db.Collection(s.cfg.Accounts) }
func (s *Store) errors() *mongo.Collection      { return s.db.Collection(s.cfg.Errors) }
func (s *Store) usage() *mongo.Collection       { return s.db.Collection(s.cfg.APIUsage) }
func (s *Store) suggestions() *mongo.Collection { return s.db.Collection(s.cfg.Suggestions) }

// observe records duration and error outcome for one store operation.
func observe(op string, start time.Time, err error) {
	metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreOperationErrors.WithLabelValues(op).Inc()
	}
}

// EnsureIndexes creates the unique, secondary, and TTL indexes the hot
// paths depend on. Safe to call on every startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	if _, err := s.posts().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "post_id", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "subreddit", Value: 1}, {Key: "created_datetime", Value: -1}}},
		{Keys: bson.D{{Key: "subreddit", Value: 1}, {Key: "score", Value: -1}}},
		{Keys: bson.D{{Key: "subreddit", Value: 1}, {Key: "num_comments", Value: -1}}},
		{Keys: bson.D{{Key: "subreddit", Value: 1}, {Key: "scraped_at", Value: -1}}},
		{Keys: bson.D{{Key: "subreddit", Value: 1}, {Key: "sort_method", Value: 1}}},
		{Keys: bson.D{{Key: "subreddit", Value: 1}, {Key: "initial_comments_scraped", Value: 1}, {Key: "num_comments", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("post indexes: %w", err)
	}

	if _, err := s.comments().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "comment_id", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "post_id", Value: 1}}},
		{Keys: bson.D{{Key: "subreddit", Value: 1}, {Key: "created_datetime", Value: -1}}},
		{Keys: bson.D{{Key: "subreddit", Value: 1}, {Key: "score", Value: -1}}},
		{Keys: bson.D{{Key: "subreddit", Value: 1}, {Key: "depth", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("comment indexes: %w", err)
	}

	if _, err := s.metadata().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "subreddit_name", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "embedding_status", Value: 1}, {Key: "embedding_requested_at", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("metadata indexes: %w", err)
	}

	if _, err := s.scrapers().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "subreddit", Value: 1}, {Key: "scraper_type", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("scraper index: %w", err)
	}

	if _, err := s.accounts().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "account_name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("account index: %w", err)
	}

	if _, err := s.errors().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "resolved", Value: 1}, {Key: "timestamp", Value: -1}},
	}); err != nil {
		return fmt.Errorf("error index: %w", err)
	}

	ttl := int32(s.cfg.UsageTTLDays * 24 * 3600)
	if _, err := s.usage().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "timestamp", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(ttl),
	}); err != nil {
		return fmt.Errorf("usage ttl index: %w", err)
	}

	if _, err := s.suggestions().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "synced_at", Value: 1}},
	}); err != nil {
		return fmt.Errorf("suggestion index: %w", err)
	}

	return nil
}
