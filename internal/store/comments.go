package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UpsertComments bulk-upserts a batch keyed on comment_id.
func (s *Store) UpsertComments(ctx context.Context, comments []CommentDoc) (inserted, modified int64, err error) {
	defer func(start time.Time) { observe("upsert_comments", start, err) }(time.Now())
	if len(comments) == 0 {
		return 0, 0, nil
	}
	models := make([]mongo.WriteModel, 0, len(comments))
	for _, c := range comments {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"comment_id": c.CommentID}).
			SetUpdate(bson.M{"$set": c}).
			SetUpsert(true))
	}
	res, err := s.comments().BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		if res == nil {
			return 0, 0, err
		}
		return res.UpsertedCount, res.ModifiedCount, err
	}
	return res.UpsertedCount, res.ModifiedCount, nil
}

// StoredCommentIDs returns the set of comment IDs already stored for a post.
func (s *Store) StoredCommentIDs(ctx context.Context, postID string) (map[string]struct{}, error) {
	cursor, err := s.comments().Find(ctx,
		bson.M{"post_id": postID},
		options.Find().SetProjection(bson.M{"comment_id": 1}))
	if err != nil {
		return nil, err
	}
	var rows []struct {
		CommentID string `bson:"comment_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		ids[row.CommentID] = struct{}{}
	}
	return ids, nil
}

// CountComments returns the number of stored comments for a post; used by
// the ghost-post verification step.
func (s *Store) CountComments(ctx context.Context, postID string) (int64, error) {
	return s.comments().CountDocuments(ctx, bson.M{"post_id": postID})
}

// CountCommentsBySubreddit returns the comment total for a subreddit.
func (s *Store) CountCommentsBySubreddit(ctx context.Context, subreddit string) (int64, error) {
	return s.comments().CountDocuments(ctx, bson.M{"subreddit": subreddit})
}
