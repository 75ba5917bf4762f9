package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NeedsEmbedding compares the embedding-relevant text fields of the incoming
// document against the stored one. Only a real change (or a first insert,
// existing == nil) warrants re-embedding.
func NeedsEmbedding(doc MetadataDoc, existing *MetadataDoc) bool {
	if existing == nil {
		return true
	}
	if doc.Title != existing.Title ||
		doc.PublicDescription != existing.PublicDescription ||
		doc.Description != existing.Description ||
		doc.GuidelinesText != existing.GuidelinesText ||
		doc.RulesText != existing.RulesText ||
		doc.AdvertiserCategory != existing.AdvertiserCategory {
		return true
	}
	if len(doc.SamplePostsTitles) != len(existing.SamplePostsTitles) {
		return true
	}
	for i := range doc.SamplePostsTitles {
		if doc.SamplePostsTitles[i] != existing.SamplePostsTitles[i] {
			return true
		}
	}
	return false
}

// UpsertSubredditMetadata writes the metadata document, stamping
// embedding_status=pending only when the embedding-relevant fields actually
// changed. Unchanged documents keep their current status untouched.
func (s *Store) UpsertSubredditMetadata(ctx context.Context, doc MetadataDoc) (err error) {
	defer func(start time.Time) { observe("upsert_subreddit_metadata", start, err) }(time.Now())

	var existing *MetadataDoc
	var stored MetadataDoc
	findErr := s.metadata().FindOne(ctx, bson.M{"subreddit_name": doc.SubredditName}).Decode(&stored)
	switch findErr {
	case nil:
		existing = &stored
	case mongo.ErrNoDocuments:
	default:
		return findErr
	}

	doc.LastUpdated = time.Now().UTC()

	set := bson.M{
		"subreddit_name":      doc.SubredditName,
		"title":               doc.Title,
		"public_description":  doc.PublicDescription,
		"description":         doc.Description,
		"subscribers":         doc.Subscribers,
		"active_user_count":   doc.ActiveUserCount,
		"created_utc":         doc.CreatedUTC,
		"over18":              doc.Over18,
		"subreddit_type":      doc.SubredditType,
		"advertiser_category": doc.AdvertiserCategory,
		"lang":                doc.Lang,
		"url":                 doc.URL,
		"rules":               doc.Rules,
		"rules_text":          doc.RulesText,
		"guidelines_text":     doc.GuidelinesText,
		"sample_posts_titles": doc.SamplePostsTitles,
		"sample_posts":        doc.SamplePosts,
		"last_updated":        doc.LastUpdated,
	}
	if NeedsEmbedding(doc, existing) {
		set["embedding_status"] = EmbeddingPending
		set["embedding_requested_at"] = doc.LastUpdated
	}

	_, err = s.metadata().UpdateOne(ctx,
		bson.M{"subreddit_name": doc.SubredditName},
		bson.M{"$set": set},
		options.Update().SetUpsert(true))
	return err
}

// GetSubredditMetadata fetches one metadata row; nil when absent.
func (s *Store) GetSubredditMetadata(ctx context.Context, name string) (*MetadataDoc, error) {
	var doc MetadataDoc
	err := s.metadata().FindOne(ctx, bson.M{"subreddit_name": name}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// PendingEnrichment returns up to limit documents awaiting enrichment:
// pending, or failed with retries left, oldest request first.
func (s *Store) PendingEnrichment(ctx context.Context, limit, maxRetries int) (docs []MetadataDoc, err error) {
	defer func(start time.Time) { observe("pending_enrichment", start, err) }(time.Now())
	filter := bson.M{"$or": []bson.M{
		{"embedding_status": EmbeddingPending},
		{
			"embedding_status":      EmbeddingFailed,
			"embedding_retry_count": bson.M{"$lt": maxRetries},
		},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "embedding_requested_at", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := s.metadata().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	err = cursor.All(ctx, &docs)
	return docs, err
}

// SetEnrichmentResult stores the produced embeddings and profile, marks the
// document complete, and clears any previous error state.
func (s *Store) SetEnrichmentResult(ctx context.Context, name string, embeddings EmbeddingsDoc, enrichment *LLMEnrichment) (err error) {
	defer func(start time.Time) { observe("set_enrichment_result", start, err) }(time.Now())
	set := bson.M{
		"embedding_status": EmbeddingComplete,
		"embeddings":       embeddings,
	}
	if enrichment != nil {
		set["llm_enrichment"] = enrichment
	}
	_, err = s.metadata().UpdateOne(ctx,
		bson.M{"subreddit_name": name},
		bson.M{
			"$set":   set,
			"$unset": bson.M{"embedding_error": ""},
		})
	return err
}

// SetEnrichmentFailed records a failure and bumps the retry counter.
func (s *Store) SetEnrichmentFailed(ctx context.Context, name, errMsg string) (err error) {
	defer func(start time.Time) { observe("set_enrichment_failed", start, err) }(time.Now())
	_, err = s.metadata().UpdateOne(ctx,
		bson.M{"subreddit_name": name},
		bson.M{
			"$set": bson.M{
				"embedding_status": EmbeddingFailed,
				"embedding_error":  errMsg,
			},
			"$inc": bson.M{"embedding_retry_count": 1},
		})
	return err
}

// EmbeddingStats summarises enrichment progress by status.
type EmbeddingStats struct {
	Total    int64 `json:"total"`
	Pending  int64 `json:"pending"`
	Complete int64 `json:"complete"`
	Failed   int64 `json:"failed"`
	Unmarked int64 `json:"unmarked"`
}

// GetEmbeddingStats counts metadata rows by embedding status.
func (s *Store) GetEmbeddingStats(ctx context.Context) (EmbeddingStats, error) {
	var stats EmbeddingStats
	var err error
	if stats.Total, err = s.metadata().CountDocuments(ctx, bson.M{}); err != nil {
		return stats, err
	}
	if stats.Pending, err = s.metadata().CountDocuments(ctx, bson.M{"embedding_status": EmbeddingPending}); err != nil {
		return stats, err
	}
	if stats.Complete, err = s.metadata().CountDocuments(ctx, bson.M{"embedding_status": EmbeddingComplete}); err != nil {
		return stats, err
	}
	if stats.Failed, err = s.metadata().CountDocuments(ctx, bson.M{"embedding_status": EmbeddingFailed}); err != nil {
		return stats, err
	}
	stats.Unmarked = stats.Total - stats.Pending - stats.Complete - stats.Failed
	return stats, nil
}

// SubredditSearchResult is one $vectorSearch hit.
type SubredditSearchResult struct {
	SubredditName     string  `bson:"subreddit_name" json:"subreddit_name"`
	Title             string  `bson:"title" json:"title"`
	PublicDescription string  `bson:"public_description" json:"public_description"`
	Subscribers       int64   `bson:"subscribers" json:"subscribers"`
	Score             float64 `bson:"score" json:"score"`
}

// SearchSubredditsByVector runs an Atlas $vectorSearch over the combined
// embeddings. persona switches to the persona-weighted variant.
func (s *Store) SearchSubredditsByVector(ctx context.Context, queryVector []float32, limit int, persona bool) (results []SubredditSearchResult, err error) {
	defer func(start time.Time) { observe("search_subreddits_by_vector", start, err) }(time.Now())
	if limit <= 0 {
		limit = 10
	}
	path := "embeddings.combined_embedding.vector"
	index := "subreddit_combined_index"
	if persona {
		path = "embeddings.persona_embedding.vector"
		index = "subreddit_persona_index"
	}
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.M{
			"index":         index,
			"path":          path,
			"queryVector":   queryVector,
			"numCandidates": limit * 10,
			"limit":         limit,
		}}},
		{{Key: "$project", Value: bson.M{
			"subreddit_name":     1,
			"title":              1,
			"public_description": 1,
			"subscribers":        1,
			"score":              bson.M{"$meta": "vectorSearchScore"},
		}}},
	}
	cursor, err := s.metadata().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	err = cursor.All(ctx, &results)
	return results, err
}
