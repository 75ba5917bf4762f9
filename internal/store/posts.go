package store

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Staleness thresholds for the phase-B candidate tiers.
const (
	staleHighTraffic = 2 * time.Hour  // num_comments > 100
	staleMidTraffic  = 6 * time.Hour  // 20 < num_comments <= 100
	staleLowTraffic  = 24 * time.Hour // num_comments <= 20
)

// trackingFields is the slice of a post we must carry forward on upsert.
type trackingFields struct {
	CommentsScraped        bool       `bson:"comments_scraped"`
	InitialCommentsScraped bool       `bson:"initial_comments_scraped"`
	LastCommentFetchTime   *time.Time `bson:"last_comment_fetch_time,omitempty"`
	CommentsScrapedAt      *time.Time `bson:"comments_scraped_at,omitempty"`
}

// MergeTracking carries forward true/non-nil tracking values from the stored
// post into the incoming document. Tracking is monotonic once true: a fresh
// harvest of an already-scraped post must not reset it.
func MergeTracking(doc PostDoc, existing trackingFields) PostDoc {
	if existing.CommentsScraped {
		doc.CommentsScraped = true
	}
	if existing.InitialCommentsScraped {
		doc.InitialCommentsScraped = true
	}
	if existing.LastCommentFetchTime != nil {
		if doc.LastCommentFetchTime == nil || doc.LastCommentFetchTime.Before(*existing.LastCommentFetchTime) {
			doc.LastCommentFetchTime = existing.LastCommentFetchTime
		}
	}
	if existing.CommentsScrapedAt != nil && doc.CommentsScrapedAt == nil {
		doc.CommentsScrapedAt = existing.CommentsScrapedAt
	}
	return doc
}

// UpsertPosts bulk-upserts a batch keyed on post_id, preserving the
// comment-tracking fields of any post already stored.
func (s *Store) UpsertPosts(ctx context.Context, posts []PostDoc) (inserted, modified int64, err error) {
	defer func(start time.Time) { observe("upsert_posts", start, err) }(time.Now())
	if len(posts) == 0 {
		return 0, 0, nil
	}

	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.PostID)
	}

	existing := make(map[string]trackingFields, len(ids))
	cursor, err := s.posts().Find(ctx,
		bson.M{"post_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{
			"post_id":                  1,
			"comments_scraped":         1,
			"initial_comments_scraped": 1,
			"last_comment_fetch_time":  1,
			"comments_scraped_at":      1,
		}))
	if err != nil {
		return 0, 0, err
	}
	var rows []struct {
		PostID         string `bson:"post_id"`
		trackingFields `bson:",inline"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return 0, 0, err
	}
	for _, row := range rows {
		existing[row.PostID] = row.trackingFields
	}

	models := make([]mongo.WriteModel, 0, len(posts))
	for _, p := range posts {
		if tf, ok := existing[p.PostID]; ok {
			p = MergeTracking(p, tf)
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"post_id": p.PostID}).
			SetUpdate(bson.M{"$set": p}).
			SetUpsert(true))
	}

	res, err := s.posts().BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		if res == nil {
			return 0, 0, err
		}
		// partial success with unordered writes is reported in counts
		return res.UpsertedCount, res.ModifiedCount, err
	}
	return res.UpsertedCount, res.ModifiedCount, nil
}

// MarkPostsCommentState stamps comment-tracking fields after a successful
// comment pass. initial additionally latches initial_comments_scraped.
func (s *Store) MarkPostsCommentState(ctx context.Context, ids []string, initial bool) (err error) {
	defer func(start time.Time) { observe("mark_posts_comment_state", start, err) }(time.Now())
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	set := bson.M{
		"comments_scraped":        true,
		"last_comment_fetch_time": now,
	}
	if initial {
		set["initial_comments_scraped"] = true
		set["comments_scraped_at"] = now
	}
	_, err = s.posts().UpdateMany(ctx, bson.M{"post_id": bson.M{"$in": ids}}, bson.M{"$set": set})
	return err
}

// IsCommentCandidate reports whether a post is due for a comment pass.
func IsCommentCandidate(p PostDoc, now time.Time) bool {
	if !p.InitialCommentsScraped {
		return true
	}
	if p.LastCommentFetchTime == nil {
		return true
	}
	age := now.Sub(*p.LastCommentFetchTime)
	switch {
	case p.NumComments > 100:
		return age > staleHighTraffic
	case p.NumComments > 20:
		return age > staleMidTraffic
	default:
		return age > staleLowTraffic
	}
}

// SortCandidates orders candidates never-scraped first, then by
// num_comments desc, then created_utc desc.
func SortCandidates(posts []PostDoc) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if a.InitialCommentsScraped != b.InitialCommentsScraped {
			return !a.InitialCommentsScraped
		}
		if a.NumComments != b.NumComments {
			return a.NumComments > b.NumComments
		}
		return a.CreatedUTC > b.CreatedUTC
	})
}

// CommentCandidates returns up to limit posts due for a comment pass,
// in priority order.
func (s *Store) CommentCandidates(ctx context.Context, subreddit string, limit int) (candidates []PostDoc, err error) {
	defer func(start time.Time) { observe("comment_candidates", start, err) }(time.Now())
	now := time.Now().UTC()
	filter := bson.M{
		"subreddit": subreddit,
		"$or": []bson.M{
			{"initial_comments_scraped": bson.M{"$ne": true}},
			{"last_comment_fetch_time": nil},
			{
				"num_comments":            bson.M{"$gt": 100},
				"last_comment_fetch_time": bson.M{"$lt": now.Add(-staleHighTraffic)},
			},
			{
				"num_comments":            bson.M{"$gt": 20, "$lte": 100},
				"last_comment_fetch_time": bson.M{"$lt": now.Add(-staleMidTraffic)},
			},
			{
				"num_comments":            bson.M{"$lte": 20},
				"last_comment_fetch_time": bson.M{"$lt": now.Add(-staleLowTraffic)},
			},
		},
	}
	opts := options.Find().
		SetSort(bson.D{
			{Key: "initial_comments_scraped", Value: 1},
			{Key: "num_comments", Value: -1},
			{Key: "created_utc", Value: -1},
		}).
		SetLimit(int64(limit))
	cursor, err := s.posts().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	err = cursor.All(ctx, &candidates)
	return candidates, err
}

// CountPosts returns the number of stored posts for a subreddit. The
// first-run top time filter is keyed on this being zero.
func (s *Store) CountPosts(ctx context.Context, subreddit string) (int64, error) {
	return s.posts().CountDocuments(ctx, bson.M{"subreddit": subreddit})
}
