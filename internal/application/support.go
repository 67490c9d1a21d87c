package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wms-platform/qrbatch-service/internal/domain"
	"github.com/wms-platform/qrbatch-service/pkg/errors"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
	"github.com/wms-platform/qrbatch-service/pkg/metrics"
	"github.com/wms-platform/qrbatch-service/pkg/resilience"
	"github.com/wms-platform/qrbatch-service/pkg/tenant"
)

// codeMover advances code rows and keeps the audit trail
type codeMover struct {
	codes     domain.CodeRepository
	movements domain.MovementRepository
	metrics   *metrics.Metrics
	logger    *logging.Logger
	retry     *resilience.RetryConfig
}

// chunk advances up to limit rows, retrying transient failures
func (m *codeMover) chunk(ctx context.Context, kind domain.CodeKind, batchID string, from, to domain.CodeStatus, limit int) (int64, error) {
	start := time.Now()
	n, err := resilience.RetryWithResult(ctx, m.retry, func() (int64, error) {
		return m.codes.AdvanceChunk(ctx, kind, batchID, from, to, limit)
	})
	if err != nil {
		m.metrics.RecordChunkFailure(fmt.Sprintf("%s:%s->%s", kind, from, to))
		return 0, err
	}
	m.logger.ChunkProcessed(ctx, fmt.Sprintf("advance %s %s->%s", kind, from, to), batchID, limit, n, time.Since(start))
	return n, nil
}

// drain advances every row in from, one chunk at a time
func (m *codeMover) drain(ctx context.Context, kind domain.CodeKind, batchID string, from, to domain.CodeStatus, limit int) (int64, error) {
	var total int64
	for {
		n, err := m.chunk(ctx, kind, batchID, from, to, limit)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(limit) {
			return total, nil
		}
	}
}

// record writes a movement row; audit failures are logged, never returned
func (m *codeMover) record(ctx context.Context, batchID string, kind domain.CodeKind, from, to domain.CodeStatus, count int64, actor, reason string, now time.Time) {
	if count <= 0 {
		return
	}
	m.metrics.RecordCodesAdvanced(string(kind), string(from), string(to), count)
	movement := domain.NewCodeMovement(batchID, kind, from, to, count, actor, reason, now)
	if err := m.movements.Record(ctx, movement); err != nil {
		m.logger.WithError(err).Warn("Failed to record code movement",
			"batchId", batchID, "kind", kind, "from", from, "to", to, "count", count)
	}
}

// progress counts packed-or-beyond rows unless the batch is completed
func (m *codeMover) progress(ctx context.Context, b *domain.Batch) (domain.Progress, error) {
	if b.Status == domain.BatchStatusCompleted {
		return domain.ComputeProgress(b, 0, 0), nil
	}
	packed := domain.PackedOrBeyondStatuses()
	packedMaster, err := m.codes.CountInStatus(ctx, domain.CodeKindMaster, b.ID, packed...)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("failed to count packed master codes: %w", err)
	}
	packedUnique, err := m.codes.CountInStatus(ctx, domain.CodeKindUnique, b.ID, packed...)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("failed to count packed unique codes: %w", err)
	}
	return domain.ComputeProgress(b, packedMaster, packedUnique), nil
}

// checkTenant hides resources of other tenants behind a not found
func checkTenant(ctx context.Context, resource, resourceTenantID string) error {
	tc := tenant.FromContextOptional(ctx)
	if err := tc.ValidateOwnership(resourceTenantID); err != nil {
		return errors.ErrNotFound(resource)
	}
	return nil
}

func tenantID(ctx context.Context) string {
	return tenant.FromContextOptional(ctx).TenantID
}
