package storage

import (
	"context"
	"io"
	"time"

	"github.com/wms-platform/qrbatch-service/internal/application"
	"github.com/wms-platform/qrbatch-service/pkg/resilience"
)

// BreakerFileStore guards writes to a file store with a circuit breaker so a
// failing disk fails generation chunks fast
type BreakerFileStore struct {
	inner   application.FileStore
	breaker *resilience.CircuitBreaker
}

// NewBreakerFileStore wraps inner
func NewBreakerFileStore(inner application.FileStore, breaker *resilience.CircuitBreaker) *BreakerFileStore {
	return &BreakerFileStore{inner: inner, breaker: breaker}
}

// Write streams through the breaker
func (s *BreakerFileStore) Write(ctx context.Context, key string, write func(io.Writer) error) error {
	_, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, s.inner.Write(ctx, key, write)
	})
	return err
}

// SignedURL is local computation and bypasses the breaker
func (s *BreakerFileStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	return s.inner.SignedURL(ctx, key, ttl)
}
