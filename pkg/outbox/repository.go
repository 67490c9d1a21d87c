package outbox

import (
	"context"

	"github.com/wms-platform/qrbatch-service/pkg/cloudevents"
)

// Repository defines outbox persistence
type Repository interface {
	// SaveAll inserts events; pass a session context to join a transaction
	SaveAll(ctx context.Context, events []*OutboxEvent) error

	// FindUnpublished returns the oldest unpublished events still under their retry limit
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)

	MarkPublished(ctx context.Context, eventID string) error

	// IncrementRetry bumps the retry count and stores the last error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error

	// DeletePublished removes events published before olderThan ago
	DeletePublished(ctx context.Context, olderThan int64) error
}

// EventPublisher sends a decoded CloudEvent to a topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error
}
