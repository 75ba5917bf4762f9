package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CountOrphanComments counts comments whose parent post is absent from the
// posts collection.
func (s *Store) CountOrphanComments(ctx context.Context) (int64, error) {
	return s.aggregateCount(ctx, s.comments(), s.orphanCommentsPipeline(0))
}

// FindOrphanCommentIDs returns up to limit orphaned comment ids.
func (s *Store) FindOrphanCommentIDs(ctx context.Context, limit int) ([]string, error) {
	pipeline := s.orphanCommentsPipeline(limit)
	pipeline = append(pipeline, bson.M{"$project": bson.M{"comment_id": 1}})
	cursor, err := s.comments().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		CommentID string `bson:"comment_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.CommentID)
	}
	return ids, nil
}

// DeleteCommentsByIDs removes the given comments.
func (s *Store) DeleteCommentsByIDs(ctx context.Context, ids []string) (deleted int64, err error) {
	defer func(start time.Time) { observe("delete_comments", start, err) }(time.Now())
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.comments().DeleteMany(ctx, bson.M{"comment_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// CountGhostMarkedPosts counts posts marked initial-scraped with claimed
// comments, but with none actually stored. The scraper refuses to mark
// these during a cycle; rows counted here predate that verification or
// lost their comments afterwards.
func (s *Store) CountGhostMarkedPosts(ctx context.Context) (int64, error) {
	return s.aggregateCount(ctx, s.posts(), s.ghostPostsPipeline(0))
}

// ResetGhostMarkedPosts clears the comment-tracking flags on up to limit
// ghost-marked posts so the next cycle rescrapes them.
func (s *Store) ResetGhostMarkedPosts(ctx context.Context, limit int) (reset int64, err error) {
	defer func(start time.Time) { observe("reset_ghost_posts", start, err) }(time.Now())
	pipeline := s.ghostPostsPipeline(limit)
	pipeline = append(pipeline, bson.M{"$project": bson.M{"post_id": 1}})
	cursor, err := s.posts().Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	var rows []struct {
		PostID string `bson:"post_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.PostID)
	}
	res, err := s.posts().UpdateMany(ctx,
		bson.M{"post_id": bson.M{"$in": ids}},
		bson.M{
			"$set": bson.M{
				"comments_scraped":         false,
				"initial_comments_scraped": false,
			},
			"$unset": bson.M{
				"last_comment_fetch_time": "",
				"comments_scraped_at":     "",
			},
		})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// CountStaleScrapers counts rows claiming to run whose worker has not
// written a heartbeat since the cutoff.
func (s *Store) CountStaleScrapers(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.scrapers().CountDocuments(ctx, staleScraperFilter(cutoff))
}

// MarkStaleScrapersFailed flips stale running rows to failed so the
// supervisor's restart loop picks them up.
func (s *Store) MarkStaleScrapersFailed(ctx context.Context, cutoff time.Time) (marked int64, err error) {
	defer func(start time.Time) { observe("mark_stale_scrapers", start, err) }(time.Now())
	res, err := s.scrapers().UpdateMany(ctx, staleScraperFilter(cutoff), bson.M{
		"$set": bson.M{
			"status":       StatusFailed,
			"last_error":   "no heartbeat within the stale window",
			"last_updated": time.Now().UTC(),
		},
	})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// CountStaleUnsyncedSuggestions counts suggestion rows still undrained
// past the grace cutoff.
func (s *Store) CountStaleUnsyncedSuggestions(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.suggestions().CountDocuments(ctx, bson.M{
		"synced_at":  bson.M{"$exists": false},
		"created_at": bson.M{"$lt": cutoff},
	})
}

// CollectionCounts returns estimated document counts for the fleet's
// collections, keyed by logical collection name.
func (s *Store) CollectionCounts(ctx context.Context) (map[string]int64, error) {
	colls := map[string]*mongo.Collection{
		"posts":       s.posts(),
		"comments":    s.comments(),
		"metadata":    s.metadata(),
		"scrapers":    s.scrapers(),
		"accounts":    s.accounts(),
		"errors":      s.errors(),
		"api_usage":   s.usage(),
		"suggestions": s.suggestions(),
	}
	counts := make(map[string]int64, len(colls))
	for name, coll := range colls {
		n, err := coll.EstimatedDocumentCount(ctx)
		if err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, nil
}

func staleScraperFilter(cutoff time.Time) bson.M {
	return bson.M{
		"status":       bson.M{"$in": []string{StatusRunning, StatusStarting}},
		"last_updated": bson.M{"$lt": cutoff},
	}
}

// orphanCommentsPipeline matches comments with no parent post.
func (s *Store) orphanCommentsPipeline(limit int) []bson.M {
	pipeline := []bson.M{
		{"$lookup": bson.M{
			"from":         s.cfg.Posts,
			"localField":   "post_id",
			"foreignField": "post_id",
			"as":           "post",
		}},
		{"$match": bson.M{"post": bson.M{"$size": 0}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.M{"$limit": limit})
	}
	return pipeline
}

// ghostPostsPipeline matches initial-scraped posts claiming comments with
// none stored.
func (s *Store) ghostPostsPipeline(limit int) []bson.M {
	pipeline := []bson.M{
		{"$match": bson.M{
			"initial_comments_scraped": true,
			"num_comments":             bson.M{"$gt": 0},
		}},
		{"$lookup": bson.M{
			"from":         s.cfg.Comments,
			"localField":   "post_id",
			"foreignField": "post_id",
			"as":           "stored",
			"pipeline":     []bson.M{{"$limit": 1}},
		}},
		{"$match": bson.M{"stored": bson.M{"$size": 0}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.M{"$limit": limit})
	}
	return pipeline
}

func (s *Store) aggregateCount(ctx context.Context, coll *mongo.Collection, pipeline []bson.M) (int64, error) {
	pipeline = append(pipeline, bson.M{"$count": "n"})
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	var rows []struct {
		N int64 `bson:"n"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].N, nil
}
