package idempotency

import (
	"context"
	"time"
)

// HeaderIdempotencyKey is the request header clients set on retries
const HeaderIdempotencyKey = "Idempotency-Key"

// Record is a stored Idempotency-Key and, once complete, its response
type Record struct {
	Key                string     `bson:"_id"`
	RequestPath        string     `bson:"requestPath"`
	RequestMethod      string     `bson:"requestMethod"`
	RequestFingerprint string     `bson:"requestFingerprint"`
	LockedAt           *time.Time `bson:"lockedAt,omitempty"`
	ResponseCode       int        `bson:"responseCode,omitempty"`
	ResponseBody       []byte     `bson:"responseBody,omitempty"`
	CreatedAt          time.Time  `bson:"createdAt"`
	CompletedAt        *time.Time `bson:"completedAt,omitempty"`
	ExpiresAt          time.Time  `bson:"expiresAt"`
}

// IsCompleted returns true if the request has been completed
func (r *Record) IsCompleted() bool {
	return r.CompletedAt != nil
}

// Repository stores idempotency records
type Repository interface {
	// Acquire inserts record if absent. It returns the stored record and
	// whether this call created it.
	Acquire(ctx context.Context, record *Record) (*Record, bool, error)
	// Complete stores the response and clears the lock
	Complete(ctx context.Context, key string, code int, body []byte) error
	// Release drops an incomplete record so the client can retry
	Release(ctx context.Context, key string) error
}
