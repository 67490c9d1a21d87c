package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/wms-platform/qrbatch-service/internal/domain"
	"github.com/wms-platform/qrbatch-service/pkg/errors"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
	"github.com/wms-platform/qrbatch-service/pkg/metrics"
	"github.com/wms-platform/qrbatch-service/pkg/resilience"
)

// PackingService runs the chunked packing worker
type PackingService struct {
	batches    domain.BatchRepository
	codes      domain.CodeRepository
	mover      *codeMover
	dispatcher TaskDispatcher
	metrics    *metrics.Metrics
	logger     *logging.Logger
	opts       Options
	now        func() time.Time
}

// NewPackingService creates a new PackingService
func NewPackingService(
	repos Repositories,
	dispatcher TaskDispatcher,
	m *metrics.Metrics,
	logger *logging.Logger,
	opts Options,
) *PackingService {
	opts = opts.withDefaults()
	logger = logger.WithComponent("packing-service")
	return &PackingService{
		batches:    repos.Batches,
		codes:      repos.Codes,
		mover:      &codeMover{codes: repos.Codes, movements: repos.Movements, metrics: m, logger: logger, retry: opts.Retry},
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger,
		opts:       opts,
		now:        defaultClock,
	}
}

func (s *PackingService) progressDTO(ctx context.Context, b *domain.Batch) (*ProgressDTO, error) {
	p, err := s.mover.progress(ctx, b)
	if err != nil {
		return nil, toAppError(err)
	}
	return ToProgressDTO(p), nil
}

// StartPacking queues packing for a printing or in_production batch. A
// batch that is already packing is reported, not rejected.
func (s *PackingService) StartPacking(ctx context.Context, cmd StartPackingCommand) (*StartPackingResponse, error) {
	batch, err := s.batches.FindByID(ctx, cmd.BatchID)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to get batch: %w", err))
	}
	if batch == nil {
		return nil, errors.ErrNotFoundWithID("batch", cmd.BatchID)
	}
	if err := checkTenant(ctx, "batch", batch.TenantID); err != nil {
		return nil, err
	}

	running, err := batch.StartPacking(s.now())
	if err != nil {
		return nil, toAppError(err)
	}
	if running || len(batch.DomainEvents) == 0 {
		return s.startResponse(ctx, batch, running)
	}

	if err := s.batches.Update(ctx, batch); err != nil {
		if stderrors.Is(err, domain.ErrConcurrentModification) {
			current, ferr := s.batches.FindByID(ctx, cmd.BatchID)
			if ferr == nil && current != nil {
				return s.startResponse(ctx, current, current.PackingStatus.IsRunning())
			}
		}
		return nil, toAppError(fmt.Errorf("failed to queue packing: %w", err))
	}
	s.metrics.RecordBatchTransition(string(batch.Status))

	if err := s.dispatcher.DispatchPacking(ctx, batch.ID); err != nil {
		s.logger.WithError(err).Warn("Failed to dispatch packing", "batchId", batch.ID)
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "qrbatch.packing.queued",
		EntityType: "batch",
		EntityID:   batch.ID,
		Action:     "packing_queued",
		RelatedIDs: map[string]string{"orderId": batch.OrderID},
	})
	return s.startResponse(ctx, batch, false)
}

func (s *PackingService) startResponse(ctx context.Context, b *domain.Batch, running bool) (*StartPackingResponse, error) {
	progress, err := s.progressDTO(ctx, b)
	if err != nil {
		return nil, err
	}
	msg := "Packing queued"
	switch {
	case running:
		msg = "Packing already in progress"
	case b.PackingStatus == domain.PackingStatusCompleted:
		msg = "Packing already completed"
	}
	return &StartPackingResponse{Message: msg, AlreadyInProgress: running, ProgressDTO: progress}, nil
}

// RunPackingChunk claims the packing lease and advances at most one chunk of
// master and one chunk of unique codes printed -> packed. Rows still
// generated after a best-effort print are repaired first; a call that repairs
// rows of a kind packs that kind on the next call. Only rows in the expected
// prior status are touched, so concurrent callers never double-advance.
func (s *PackingService) RunPackingChunk(ctx context.Context, cmd RunPackingChunkCommand) (*PackingChunkResponse, error) {
	batchID := cmd.BatchID
	if batchID == "" {
		next, err := s.batches.FindNextPacking(ctx)
		if err != nil {
			return nil, toAppError(fmt.Errorf("failed to find packing batch: %w", err))
		}
		if next == nil {
			return &PackingChunkResponse{Message: "No batches to process"}, nil
		}
		batchID = next.ID
	}

	now := s.now()
	batch, err := s.batches.ClaimPacking(ctx, batchID, cmd.WorkerID, now.Add(s.opts.LeaseTTL))
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to claim packing: %w", err))
	}
	if batch == nil {
		return s.unclaimedPacking(ctx, batchID)
	}
	if err := checkTenant(ctx, "batch", batch.TenantID); err != nil {
		return nil, err
	}

	if err := s.advance(ctx, batch.ID, cmd.WorkerID); err != nil {
		if domain.IsTransient(err) {
			s.logger.WithError(err).Warn("Transient packing failure, no state changed", "batchId", batch.ID)
			return nil, toAppError(err)
		}
		return s.failPacking(ctx, batch.ID, err)
	}

	remaining, err := s.codes.CountInStatus(ctx, domain.CodeKindMaster, batch.ID, domain.CodeStatusGenerated, domain.CodeStatusPrinted)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to count pending master codes: %w", err))
	}
	uniqueRemaining, err := s.codes.CountInStatus(ctx, domain.CodeKindUnique, batch.ID, domain.CodeStatusGenerated, domain.CodeStatusPrinted)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to count pending unique codes: %w", err))
	}
	remaining += uniqueRemaining

	if remaining == 0 {
		batch, err = s.completePacking(ctx, batch.ID)
		if err != nil {
			return nil, toAppError(err)
		}
	}

	progress, err := s.progressDTO(ctx, batch)
	if err != nil {
		return nil, err
	}
	return &PackingChunkResponse{
		BatchID:     batch.ID,
		HasMore:     remaining > 0,
		ProgressDTO: progress,
	}, nil
}

func (s *PackingService) advance(ctx context.Context, batchID, workerID string) error {
	now := s.now()
	size := s.opts.ChunkSize
	for _, kind := range []domain.CodeKind{domain.CodeKindMaster, domain.CodeKindUnique} {
		healed, err := s.mover.chunk(ctx, kind, batchID, domain.CodeStatusGenerated, domain.CodeStatusPrinted, size)
		if err != nil {
			return err
		}
		s.mover.record(ctx, batchID, kind, domain.CodeStatusGenerated, domain.CodeStatusPrinted, healed, workerID, domain.MovementReasonPrintRepair, now)
		if healed > 0 {
			continue
		}

		packed, err := s.mover.chunk(ctx, kind, batchID, domain.CodeStatusPrinted, domain.CodeStatusPacked, size)
		if err != nil {
			return err
		}
		s.mover.record(ctx, batchID, kind, domain.CodeStatusPrinted, domain.CodeStatusPacked, packed, workerID, domain.MovementReasonPacking, now)
	}
	return nil
}

// completePacking marks packing completed, reloading on version conflicts
// with other callers sharing the lease
func (s *PackingService) completePacking(ctx context.Context, batchID string) (*domain.Batch, error) {
	return resilience.RetryWithResult(ctx, conflictRetry(), func() (*domain.Batch, error) {
		batch, err := s.batches.FindByID(ctx, batchID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload batch: %w", err)
		}
		if batch == nil {
			return nil, domain.ErrBatchNotFound
		}
		if batch.PackingStatus == domain.PackingStatusCompleted {
			return batch, nil
		}
		if err := batch.CompletePacking(s.now()); err != nil {
			return nil, err
		}
		if err := s.batches.Update(ctx, batch); err != nil {
			return nil, err
		}
		s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
			EventType:  "qrbatch.packing.completed",
			EntityType: "batch",
			EntityID:   batch.ID,
			Action:     "packing_completed",
			RelatedIDs: map[string]string{"orderId": batch.OrderID},
		})
		return batch, nil
	})
}

func (s *PackingService) failPacking(ctx context.Context, batchID string, cause error) (*PackingChunkResponse, error) {
	s.logger.WithError(cause).Error("Packing failed", "batchId", batchID)

	batch, err := resilience.RetryWithResult(ctx, conflictRetry(), func() (*domain.Batch, error) {
		batch, err := s.batches.FindByID(ctx, batchID)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			return nil, domain.ErrBatchNotFound
		}
		batch.FailPacking(cause.Error(), s.now())
		return batch, s.batches.Update(ctx, batch)
	})
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to record packing failure: %w", err))
	}

	progress, err := s.progressDTO(ctx, batch)
	if err != nil {
		return nil, err
	}
	return &PackingChunkResponse{
		BatchID:     batchID,
		Failed:      true,
		Error:       cause.Error(),
		ProgressDTO: progress,
	}, nil
}

// unclaimedPacking reports progress for a batch whose lease is held
// elsewhere or whose packing is not running
func (s *PackingService) unclaimedPacking(ctx context.Context, batchID string) (*PackingChunkResponse, error) {
	current, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to get batch: %w", err))
	}
	if current == nil {
		return nil, errors.ErrNotFoundWithID("batch", batchID)
	}
	if err := checkTenant(ctx, "batch", current.TenantID); err != nil {
		return nil, err
	}
	progress, err := s.progressDTO(ctx, current)
	if err != nil {
		return nil, err
	}

	resp := &PackingChunkResponse{BatchID: current.ID, ProgressDTO: progress}
	switch current.PackingStatus {
	case domain.PackingStatusQueued, domain.PackingStatusProcessing:
		if !current.Status.AcceptsPacking() {
			resp.Message = fmt.Sprintf("Batch is %s", current.Status)
			break
		}
		resp.HasMore = true
		resp.LeaseHeld = true
	case domain.PackingStatusFailed:
		resp.Failed = true
		resp.Error = current.PackingError
	case domain.PackingStatusNone:
		resp.Message = "Packing not started"
	}
	return resp, nil
}
