package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Now returns the current time in UTC truncated to Mongo's millisecond precision
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// BuildUpdateWithTimestamp builds a $set update that also bumps updatedAt
func BuildUpdateWithTimestamp(set bson.M) bson.M {
	set["updatedAt"] = Now()
	return bson.M{"$set": set}
}

// SortAscending creates an ascending sort option
func SortAscending(field string) bson.D {
	return bson.D{{Key: field, Value: 1}}
}

// SortDescending creates a descending sort option
func SortDescending(field string) bson.D {
	return bson.D{{Key: field, Value: -1}}
}

// IsDuplicateKey reports whether err contains a duplicate key write error
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// IsTransient reports whether err is worth retrying: network failures,
// timeouts and transaction conflicts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}

	var labeled mongo.LabeledError
	if errors.As(err, &labeled) {
		return labeled.HasErrorLabel("TransientTransactionError") ||
			labeled.HasErrorLabel("RetryableWriteError")
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		// WriteConflict
		return cmdErr.Code == 112
	}
	return false
}

// EnsureIndexes creates indexes and ignores the result names
func EnsureIndexes(ctx context.Context, collection *mongo.Collection, models ...mongo.IndexModel) error {
	if len(models) == 0 {
		return nil
	}
	_, err := collection.Indexes().CreateMany(ctx, models)
	return err
}
