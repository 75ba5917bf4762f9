package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// RecordError appends one scrape error row. Append-only; the repair
// tooling flips resolved out of band.
func (s *Store) RecordError(ctx context.Context, doc ErrorDoc) (err error) {
	defer func(start time.Time) { observe("record_error", start, err) }(time.Now())
	if doc.Timestamp.IsZero() {
		doc.Timestamp = time.Now().UTC()
	}
	_, err = s.errors().InsertOne(ctx, doc)
	return err
}

// AppendAPIUsage appends one cycle usage record. The minute/hour/day
// buckets are derived from the timestamp when unset.
func (s *Store) AppendAPIUsage(ctx context.Context, doc UsageDoc) (err error) {
	defer func(start time.Time) { observe("append_api_usage", start, err) }(time.Now())
	if doc.Timestamp.IsZero() {
		doc.Timestamp = time.Now().UTC()
	}
	if doc.MinuteBucket == "" {
		doc.MinuteBucket = doc.Timestamp.Format("2006-01-02T15:04")
		doc.HourBucket = doc.Timestamp.Format("2006-01-02T15")
		doc.DayBucket = doc.Timestamp.Format("2006-01-02")
	}
	_, err = s.usage().InsertOne(ctx, doc)
	return err
}

// UsageWindow aggregates usage records over a lookback window.
type UsageWindow struct {
	Requests int64   `bson:"requests" json:"requests"`
	CostUSD  float64 `bson:"cost_usd" json:"cost_usd"`
	Errors   int64   `bson:"errors" json:"errors"`
	Records  int64   `bson:"records" json:"records"`
}

// AggregateUsage sums actual request counts and cost since the cutoff,
// optionally filtered to one subreddit.
func (s *Store) AggregateUsage(ctx context.Context, subreddit string, since time.Time) (UsageWindow, error) {
	match := bson.M{"timestamp": bson.M{"$gte": since}}
	if subreddit != "" {
		match["subreddit"] = subreddit
	}
	cursor, err := s.usage().Aggregate(ctx, []bson.M{
		{"$match": match},
		{"$group": bson.M{
			"_id":      nil,
			"requests": bson.M{"$sum": "$actual_http_requests"},
			"cost_usd": bson.M{"$sum": "$estimated_cost_usd"},
			"errors":   bson.M{"$sum": "$error_count"},
			"records":  bson.M{"$sum": 1},
		}},
	})
	if err != nil {
		return UsageWindow{}, err
	}
	var rows []UsageWindow
	if err := cursor.All(ctx, &rows); err != nil {
		return UsageWindow{}, err
	}
	if len(rows) == 0 {
		return UsageWindow{}, nil
	}
	return rows[0], nil
}

// SubredditTotals carries the per-subreddit counts shown in listings.
type SubredditTotals struct {
	Posts             int64 `json:"posts"`
	Comments          int64 `json:"comments"`
	InitialDone       int64 `json:"initial_done"`
	UnresolvedErrors  int64 `json:"unresolved_errors"`
}

// GetSubredditTotals assembles post/comment totals and completion counts
// for one subreddit.
func (s *Store) GetSubredditTotals(ctx context.Context, subreddit string) (SubredditTotals, error) {
	var t SubredditTotals
	var err error
	if t.Posts, err = s.posts().CountDocuments(ctx, bson.M{"subreddit": subreddit}); err != nil {
		return t, err
	}
	if t.Comments, err = s.comments().CountDocuments(ctx, bson.M{"subreddit": subreddit}); err != nil {
		return t, err
	}
	if t.InitialDone, err = s.posts().CountDocuments(ctx, bson.M{
		"subreddit":                subreddit,
		"initial_comments_scraped": true,
	}); err != nil {
		return t, err
	}
	t.UnresolvedErrors, err = s.errors().CountDocuments(ctx, bson.M{
		"subreddit": subreddit,
		"resolved":  false,
	})
	return t, err
}
