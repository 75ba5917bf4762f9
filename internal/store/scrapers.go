package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UpsertScraper creates or replaces a scraper instance row, keyed on
// (subreddit, scraper_type).
func (s *Store) UpsertScraper(ctx context.Context, doc ScraperDoc) (err error) {
	defer func(start time.Time) { observe("upsert_scraper", start, err) }(time.Now())
	doc.LastUpdated = time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.LastUpdated
	}
	_, err = s.scrapers().UpdateOne(ctx,
		bson.M{"subreddit": doc.Subreddit, "scraper_type": doc.ScraperType},
		bson.M{
			"$set": bson.M{
				"subreddits":      doc.Subreddits,
				"status":          doc.Status,
				"auto_restart":    doc.AutoRestart,
				"credentials":     doc.Credentials,
				"posts_limit":     doc.PostsLimit,
				"scrape_interval": doc.ScrapeInterval,
				"comment_batch":   doc.CommentBatch,
				"sorting_methods": doc.SortingMethods,
				"last_updated":    doc.LastUpdated,
			},
			"$setOnInsert": bson.M{
				"created_at":    doc.CreatedAt,
				"restart_count": 0,
				"metrics":       ScraperMetrics{},
			},
		},
		options.Update().SetUpsert(true))
	return err
}

// GetScraper fetches one scraper row; nil when absent.
func (s *Store) GetScraper(ctx context.Context, subreddit, scraperType string) (*ScraperDoc, error) {
	var doc ScraperDoc
	err := s.scrapers().FindOne(ctx, bson.M{"subreddit": subreddit, "scraper_type": scraperType}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListScrapers returns all scraper rows.
func (s *Store) ListScrapers(ctx context.Context) ([]ScraperDoc, error) {
	cursor, err := s.scrapers().Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var docs []ScraperDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// FindRunningScraper returns the first running scraper of the given type;
// nil when none. Used by the suggestions sync worker to pick its target.
func (s *Store) FindRunningScraper(ctx context.Context, scraperType string) (*ScraperDoc, error) {
	var doc ScraperDoc
	err := s.scrapers().FindOne(ctx,
		bson.M{"scraper_type": scraperType, "status": StatusRunning}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// SetScraperStatus records a supervisor-owned status transition. handle and
// lastError replace the stored values; an empty handle clears it.
func (s *Store) SetScraperStatus(ctx context.Context, subreddit, scraperType, status, handle, lastError string) (err error) {
	defer func(start time.Time) { observe("set_scraper_status", start, err) }(time.Now())
	set := bson.M{
		"status":       status,
		"last_updated": time.Now().UTC(),
	}
	unset := bson.M{}
	if handle != "" {
		set["container_handle"] = handle
	} else {
		unset["container_handle"] = ""
	}
	if lastError != "" {
		set["last_error"] = lastError
	} else {
		unset["last_error"] = ""
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	_, err = s.scrapers().UpdateOne(ctx,
		bson.M{"subreddit": subreddit, "scraper_type": scraperType}, update)
	return err
}

// IncrementRestartCount bumps restart_count; supervisor-owned.
func (s *Store) IncrementRestartCount(ctx context.Context, subreddit, scraperType string) (err error) {
	defer func(start time.Time) { observe("increment_restart_count", start, err) }(time.Now())
	_, err = s.scrapers().UpdateOne(ctx,
		bson.M{"subreddit": subreddit, "scraper_type": scraperType},
		bson.M{
			"$inc": bson.M{"restart_count": 1},
			"$set": bson.M{"last_updated": time.Now().UTC()},
		})
	return err
}

// SetAutoRestart mutates only the auto_restart flag.
func (s *Store) SetAutoRestart(ctx context.Context, subreddit, scraperType string, enabled bool) (err error) {
	defer func(start time.Time) { observe("set_auto_restart", start, err) }(time.Now())
	_, err = s.scrapers().UpdateOne(ctx,
		bson.M{"subreddit": subreddit, "scraper_type": scraperType},
		bson.M{"$set": bson.M{
			"auto_restart": enabled,
			"last_updated": time.Now().UTC(),
		}})
	return err
}

// UpdateScraperMetrics writes the metrics block; worker-owned, nothing else
// on the row is touched.
func (s *Store) UpdateScraperMetrics(ctx context.Context, subreddit, scraperType string, m ScraperMetrics) (err error) {
	defer func(start time.Time) { observe("update_scraper_metrics", start, err) }(time.Now())
	_, err = s.scrapers().UpdateOne(ctx,
		bson.M{"subreddit": subreddit, "scraper_type": scraperType},
		bson.M{"$set": bson.M{"metrics": m}})
	return err
}

// DeleteScraper removes a scraper row.
func (s *Store) DeleteScraper(ctx context.Context, subreddit, scraperType string) (err error) {
	defer func(start time.Time) { observe("delete_scraper", start, err) }(time.Now())
	_, err = s.scrapers().DeleteOne(ctx, bson.M{"subreddit": subreddit, "scraper_type": scraperType})
	return err
}

// AppendSubreddits adds new names to the target's list and pending queue,
// clearing any recorded scrape failure for each; used by suggestions sync.
func (s *Store) AppendSubreddits(ctx context.Context, subreddit, scraperType string, names []string) (err error) {
	defer func(start time.Time) { observe("append_subreddits", start, err) }(time.Now())
	if len(names) == 0 {
		return nil
	}
	unset := bson.M{}
	for _, name := range names {
		unset["scrape_failures."+name] = ""
	}
	_, err = s.scrapers().UpdateOne(ctx,
		bson.M{"subreddit": subreddit, "scraper_type": scraperType},
		bson.M{
			"$push": bson.M{
				"subreddits":     bson.M{"$each": names},
				"pending_scrape": bson.M{"$each": names},
			},
			"$unset": unset,
			"$set":   bson.M{"last_updated": time.Now().UTC()},
		})
	return err
}

// StatusSummary counts scraper rows by status.
func (s *Store) StatusSummary(ctx context.Context) (map[string]int64, error) {
	cursor, err := s.scrapers().Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	})
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	summary := make(map[string]int64, len(rows))
	for _, row := range rows {
		summary[row.Status] = row.Count
	}
	return summary, nil
}
