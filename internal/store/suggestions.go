package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FindUnsyncedSuggestions returns all suggestion documents not yet drained.
func (s *Store) FindUnsyncedSuggestions(ctx context.Context) (docs []SuggestionDoc, err error) {
	defer func(start time.Time) { observe("find_unsynced_suggestions", start, err) }(time.Now())
	cursor, err := s.suggestions().Find(ctx, bson.M{"synced_at": bson.M{"$exists": false}})
	if err != nil {
		return nil, err
	}
	err = cursor.All(ctx, &docs)
	return docs, err
}

// MarkSuggestionsSynced stamps synced_at and the target scraper on the
// drained suggestion documents.
func (s *Store) MarkSuggestionsSynced(ctx context.Context, ids []primitive.ObjectID, target string) (err error) {
	defer func(start time.Time) { observe("mark_suggestions_synced", start, err) }(time.Now())
	if len(ids) == 0 {
		return nil
	}
	_, err = s.suggestions().UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{
			"synced_at":         time.Now().UTC(),
			"synced_to_scraper": target,
		}})
	return err
}
