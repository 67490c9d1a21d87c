package idempotency

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "idempotency_keys"

// MongoRepository implements Repository on a TTL-indexed collection
type MongoRepository struct {
	collection *mongo.Collection
}

// NewMongoRepository creates a new MongoDB-backed repository
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection(collectionName)}
}

// Acquire upserts the record, keeping whatever was stored first
func (r *MongoRepository) Acquire(ctx context.Context, record *Record) (*Record, bool, error) {
	update := bson.M{"$setOnInsert": bson.M{
		"requestPath":        record.RequestPath,
		"requestMethod":      record.RequestMethod,
		"requestFingerprint": record.RequestFingerprint,
		"lockedAt":           record.LockedAt,
		"createdAt":          record.CreatedAt,
		"expiresAt":          record.ExpiresAt,
	}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored Record
	if err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": record.Key}, update, opts).Decode(&stored); err != nil {
		return nil, false, fmt.Errorf("failed to acquire idempotency key: %w", err)
	}
	created := !stored.IsCompleted() &&
		stored.RequestFingerprint == record.RequestFingerprint &&
		stored.CreatedAt.Equal(record.CreatedAt)
	return &stored, created, nil
}

// Complete stores the response for key
func (r *MongoRepository) Complete(ctx context.Context, key string, code int, body []byte) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": key}, bson.M{
		"$set": bson.M{
			"responseCode": code,
			"responseBody": body,
			"completedAt":  time.Now().UTC(),
		},
		"$unset": bson.M{"lockedAt": ""},
	})
	return err
}

// Release deletes an incomplete record
func (r *MongoRepository) Release(ctx context.Context, key string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": key, "completedAt": bson.M{"$exists": false}})
	return err
}

// EnsureIndexes creates the TTL index on expiresAt
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return err
}
