package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SaveAccount creates or updates a saved credential set.
func (s *Store) SaveAccount(ctx context.Context, doc AccountDoc) (err error) {
	defer func(start time.Time) { observe("save_account", start, err) }(time.Now())
	now := time.Now().UTC()
	_, err = s.accounts().UpdateOne(ctx,
		bson.M{"account_name": doc.AccountName},
		bson.M{
			"$set": bson.M{
				"credentials":  doc.Credentials,
				"last_updated": now,
			},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true))
	return err
}

// GetAccount fetches one saved account; nil when absent.
func (s *Store) GetAccount(ctx context.Context, name string) (*AccountDoc, error) {
	var doc AccountDoc
	err := s.accounts().FindOne(ctx, bson.M{"account_name": name}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListAccounts returns all saved accounts.
func (s *Store) ListAccounts(ctx context.Context) ([]AccountDoc, error) {
	cursor, err := s.accounts().Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var docs []AccountDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteAccount removes a saved account; returns whether it existed.
func (s *Store) DeleteAccount(ctx context.Context, name string) (bool, error) {
	res, err := s.accounts().DeleteOne(ctx, bson.M{"account_name": name})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// CountAccounts returns the vault size.
func (s *Store) CountAccounts(ctx context.Context) (int64, error) {
	return s.accounts().CountDocuments(ctx, bson.M{})
}
