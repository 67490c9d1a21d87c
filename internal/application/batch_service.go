package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/wms-platform/qrbatch-service/internal/domain"
	"github.com/wms-platform/qrbatch-service/pkg/errors"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
	"github.com/wms-platform/qrbatch-service/pkg/metrics"
	"github.com/wms-platform/qrbatch-service/pkg/resilience"
)

// BatchService handles the batch lifecycle: submit, generate, print and
// production close-out
type BatchService struct {
	batches    domain.BatchRepository
	codes      domain.CodeRepository
	reports    domain.ValidationReportRepository
	payments   domain.BalancePaymentRepository
	movements  domain.MovementRepository
	mover      *codeMover
	dispatcher TaskDispatcher
	exporter   Exporter
	labels     LabelRenderer
	files      FileStore
	metrics    *metrics.Metrics
	logger     *logging.Logger
	opts       Options
	now        func() time.Time
}

// NewBatchService creates a new BatchService
func NewBatchService(
	repos Repositories,
	dispatcher TaskDispatcher,
	exporter Exporter,
	labels LabelRenderer,
	files FileStore,
	m *metrics.Metrics,
	logger *logging.Logger,
	opts Options,
) *BatchService {
	opts = opts.withDefaults()
	logger = logger.WithComponent("batch-service")
	return &BatchService{
		batches:    repos.Batches,
		codes:      repos.Codes,
		reports:    repos.Reports,
		payments:   repos.Payments,
		movements:  repos.Movements,
		mover:      &codeMover{codes: repos.Codes, movements: repos.Movements, metrics: m, logger: logger, retry: opts.Retry},
		dispatcher: dispatcher,
		exporter:   exporter,
		labels:     labels,
		files:      files,
		metrics:    m,
		logger:     logger,
		opts:       opts,
		now:        defaultClock,
	}
}

// ExportKey is the file store key of a batch export
func ExportKey(batchID, extension string) string {
	return fmt.Sprintf("batches/%s/codes.%s", batchID, extension)
}

func (s *BatchService) load(ctx context.Context, batchID string) (*domain.Batch, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get batch", "batchId", batchID)
		return nil, toAppError(fmt.Errorf("failed to get batch: %w", err))
	}
	if batch == nil {
		return nil, errors.ErrNotFoundWithID("batch", batchID)
	}
	if err := checkTenant(ctx, "batch", batch.TenantID); err != nil {
		return nil, err
	}
	return batch, nil
}

// SubmitGeneration creates a queued batch and dispatches generation. An order
// with an active batch is rejected.
func (s *BatchService) SubmitGeneration(ctx context.Context, cmd SubmitGenerationCommand) (*SubmitBatchResponse, error) {
	active, err := s.batches.FindActiveByOrderID(ctx, cmd.OrderID)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to check active batches: %w", err))
	}
	if active != nil {
		return nil, errors.ErrConflict(domain.ErrActiveBatchExists.Error()).
			WithDetail("batchId", active.ID).
			WithDetail("status", string(active.Status))
	}

	now := s.now()
	batch, err := domain.NewBatch(cmd.OrderID, cmd.VariantID, cmd.Quantity, cmd.BufferPercentage, cmd.UnitsPerCase, cmd.RequestedBy, now)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}
	batch.TenantID = tenantID(ctx)
	if err := batch.Enqueue(now); err != nil {
		return nil, toAppError(err)
	}

	if err := s.batches.Create(ctx, batch); err != nil {
		if stderrors.Is(err, domain.ErrActiveBatchExists) {
			return nil, errors.ErrConflict(err.Error())
		}
		s.logger.WithError(err).Error("Failed to create batch", "orderId", cmd.OrderID)
		return nil, toAppError(fmt.Errorf("failed to create batch: %w", err))
	}
	s.metrics.RecordBatchTransition(string(batch.Status))

	// A failed dispatch leaves the batch queued; the lease monitor picks it up
	if err := s.dispatcher.DispatchGeneration(ctx, batch.ID); err != nil {
		s.logger.WithError(err).Warn("Failed to dispatch generation", "batchId", batch.ID)
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "qrbatch.queued",
		EntityType: "batch",
		EntityID:   batch.ID,
		Action:     "queued",
		RelatedIDs: map[string]string{"orderId": batch.OrderID},
		Data: map[string]any{
			"totalUniqueCodes": batch.TotalUniqueCodes,
			"totalMasterCodes": batch.TotalMasterCodes,
		},
	})

	return &SubmitBatchResponse{
		Message: "Batch generation queued",
		BatchID: batch.ID,
		Status:  string(batch.Status),
	}, nil
}

// GenerateCodes claims the batch and inserts one chunk of master and unique
// codes. Once every row exists it renders the export and marks the batch
// generated. Transient store errors are returned without touching the batch;
// any other failure marks the batch failed.
func (s *BatchService) GenerateCodes(ctx context.Context, cmd GenerateCodesCommand) (*GenerationResult, error) {
	now := s.now()
	batch, err := s.batches.ClaimGeneration(ctx, cmd.BatchID, cmd.WorkerID, now.Add(s.opts.LeaseTTL))
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to claim batch: %w", err))
	}
	if batch == nil {
		return s.unclaimedGeneration(ctx, cmd.BatchID)
	}
	logger := s.logger.WithBatch(batch.ID)

	if !batch.GenerationComplete() {
		batch, err = s.insertChunk(ctx, batch, cmd.WorkerID)
		if err != nil {
			if stderrors.Is(err, domain.ErrLeaseLost) {
				return &GenerationResult{BatchID: cmd.BatchID, Status: string(domain.BatchStatusProcessing), HasMore: true, LeaseHeld: true}, nil
			}
			if domain.IsTransient(err) {
				logger.WithError(err).Warn("Transient failure inserting codes")
				return nil, toAppError(err)
			}
			return s.failGeneration(ctx, cmd.BatchID, err)
		}
	}

	if batch.GenerationComplete() {
		if err := s.finishGeneration(ctx, batch, cmd.Progress); err != nil {
			if domain.IsTransient(err) || stderrors.Is(err, resilience.ErrCircuitOpen) {
				logger.WithError(err).Warn("Export deferred")
				return nil, toAppError(err)
			}
			if stderrors.Is(err, domain.ErrConcurrentModification) {
				return s.unclaimedGeneration(ctx, cmd.BatchID)
			}
			return s.failGeneration(ctx, cmd.BatchID, err)
		}
	}

	return &GenerationResult{
		BatchID:        batch.ID,
		Status:         string(batch.Status),
		HasMore:        batch.Status == domain.BatchStatusProcessing,
		InsertedUnique: batch.QRInsertedCount,
		TotalUnique:    batch.TotalUniqueCodes,
	}, nil
}

// unclaimedGeneration reports on a batch this worker could not claim
func (s *BatchService) unclaimedGeneration(ctx context.Context, batchID string) (*GenerationResult, error) {
	current, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to get batch: %w", err))
	}
	if current == nil {
		return nil, errors.ErrNotFoundWithID("batch", batchID)
	}
	result := &GenerationResult{
		BatchID:        current.ID,
		Status:         string(current.Status),
		InsertedUnique: current.QRInsertedCount,
		TotalUnique:    current.TotalUniqueCodes,
	}
	switch current.Status {
	case domain.BatchStatusProcessing, domain.BatchStatusQueued:
		result.HasMore = true
		result.LeaseHeld = true
	case domain.BatchStatusFailed:
		result.Failed = true
		result.Error = current.ErrorMessage
	case domain.BatchStatusPending:
		return nil, toAppError(fmt.Errorf("%w: batch is pending", domain.ErrInvalidTransition))
	}
	return result, nil
}

func (s *BatchService) insertChunk(ctx context.Context, batch *domain.Batch, workerID string) (*domain.Batch, error) {
	now := s.now()
	size := s.opts.GenerationChunkSize

	masterTo := min(batch.MasterInsertedCount+size, batch.TotalMasterCodes)
	uniqueTo := min(batch.QRInsertedCount+size, batch.TotalUniqueCodes)

	masters := domain.BuildMasterCodes(batch, batch.MasterInsertedCount+1, masterTo, now)
	if len(masters) > 0 {
		err := resilience.Retry(ctx, s.opts.Retry, func() error {
			return s.codes.InsertMasterCodes(ctx, masters)
		})
		if err != nil {
			s.metrics.RecordChunkFailure("insert:master")
			return nil, fmt.Errorf("failed to insert master codes: %w", err)
		}
		s.metrics.RecordCodesInserted(string(domain.CodeKindMaster), len(masters))
	}

	uniques := domain.BuildUniqueCodes(batch, batch.QRInsertedCount+1, uniqueTo, now)
	if len(uniques) > 0 {
		err := resilience.Retry(ctx, s.opts.Retry, func() error {
			return s.codes.InsertUniqueCodes(ctx, uniques)
		})
		if err != nil {
			s.metrics.RecordChunkFailure("insert:unique")
			return nil, fmt.Errorf("failed to insert unique codes: %w", err)
		}
		s.metrics.RecordCodesInserted(string(domain.CodeKindUnique), len(uniques))
	}

	updated, err := s.batches.UpdateInsertProgress(ctx, batch.ID, workerID, masterTo, uniqueTo, now.Add(s.opts.LeaseTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to update insert progress: %w", err)
	}
	s.logger.Debug("Codes inserted",
		"batchId", batch.ID,
		"masterInserted", masterTo,
		"qrInserted", uniqueTo,
		"totalUnique", batch.TotalUniqueCodes,
	)
	return updated, nil
}

// finishGeneration streams the code manifest into the file store one page at
// a time, then marks the batch generated
func (s *BatchService) finishGeneration(ctx context.Context, batch *domain.Batch, progress func(done, total int)) error {
	start := time.Now()
	pages := newCodePages(s.codes, batch, s.opts.ExportPageSize, progress)
	key := ExportKey(batch.ID, s.exporter.Extension())
	err := s.files.Write(ctx, key, func(w io.Writer) error {
		return s.exporter.Export(ctx, batch, pages, w)
	})
	if err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	s.metrics.ObserveExportRender(time.Since(start))

	if err := batch.MarkGenerated(key, s.now()); err != nil {
		return err
	}
	if err := s.batches.Update(ctx, batch); err != nil {
		return fmt.Errorf("failed to mark batch generated: %w", err)
	}
	s.metrics.RecordBatchTransition(string(batch.Status))

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "qrbatch.generated",
		EntityType: "batch",
		EntityID:   batch.ID,
		Action:     "generated",
		RelatedIDs: map[string]string{"orderId": batch.OrderID},
		Data:       map[string]any{"file": key, "attempts": batch.Attempts},
	})
	return nil
}

// failGeneration records a hard failure on a freshly loaded batch
func (s *BatchService) failGeneration(ctx context.Context, batchID string, cause error) (*GenerationResult, error) {
	s.logger.WithError(cause).Error("Batch generation failed", "batchId", batchID)

	err := resilience.Retry(ctx, conflictRetry(), func() error {
		batch, err := s.batches.FindByID(ctx, batchID)
		if err != nil {
			return err
		}
		if batch == nil {
			return domain.ErrBatchNotFound
		}
		if err := batch.Fail(cause.Error(), s.now()); err != nil {
			return err
		}
		return s.batches.Update(ctx, batch)
	})
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to record generation failure: %w", err))
	}
	s.metrics.RecordBatchTransition(string(domain.BatchStatusFailed))

	return &GenerationResult{
		BatchID: batchID,
		Status:  string(domain.BatchStatusFailed),
		Failed:  true,
		Error:   cause.Error(),
	}, nil
}

// RetryBatch re-queues a failed batch under the same id
func (s *BatchService) RetryBatch(ctx context.Context, cmd RetryBatchCommand) (*BatchDTO, error) {
	batch, err := s.load(ctx, cmd.BatchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != domain.BatchStatusFailed {
		return nil, errors.ErrConflict(fmt.Sprintf("only failed batches can be retried, batch is %s", batch.Status))
	}
	if err := batch.Enqueue(s.now()); err != nil {
		return nil, toAppError(err)
	}
	if err := s.batches.Update(ctx, batch); err != nil {
		return nil, toAppError(fmt.Errorf("failed to re-queue batch: %w", err))
	}
	s.metrics.RecordBatchTransition(string(batch.Status))

	if err := s.dispatcher.DispatchGeneration(ctx, batch.ID); err != nil {
		s.logger.WithError(err).Warn("Failed to dispatch generation", "batchId", batch.ID)
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "qrbatch.retried",
		EntityType: "batch",
		EntityID:   batch.ID,
		Action:     "retried",
		RelatedIDs: map[string]string{"orderId": batch.OrderID},
		Data:       map[string]any{"qrInsertedCount": batch.QRInsertedCount},
	})
	return ToBatchDTO(batch), nil
}

// DownloadExport returns a signed link to the export. The first download of
// a generated batch moves it and its codes to printing.
func (s *BatchService) DownloadExport(ctx context.Context, cmd DownloadExportCommand) (*DownloadResponse, error) {
	batch, err := s.load(ctx, cmd.BatchID)
	if err != nil {
		return nil, err
	}
	if !batch.Status.HasExport() || batch.GeneratedFile == "" {
		return nil, errors.ErrConflict(domain.ErrExportNotReady.Error()).WithDetail("status", string(batch.Status))
	}

	url, expiresAt, err := s.files.SignedURL(ctx, batch.GeneratedFile, s.opts.ExportURLTTL)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to sign export url: %w", err))
	}
	resp := &DownloadResponse{URL: url, ExpiresAt: expiresAt, Status: string(batch.Status)}

	if batch.Status == domain.BatchStatusGenerated {
		result, err := s.markPrinted(ctx, batch, cmd.Actor)
		if err != nil {
			return nil, err
		}
		resp.Print = result
		resp.Status = string(domain.BatchStatusPrinting)
	}
	return resp, nil
}

// RenderLabels renders the printable labels of cases [FromCase, ToCase]:
// each master code followed by the unique codes of its case
func (s *BatchService) RenderLabels(ctx context.Context, query RenderLabelsQuery) (*LabelSheet, error) {
	batch, err := s.load(ctx, query.BatchID)
	if err != nil {
		return nil, err
	}
	if !batch.Status.HasExport() {
		return nil, errors.ErrConflict(domain.ErrExportNotReady.Error()).WithDetail("status", string(batch.Status))
	}

	from, to := query.FromCase, query.ToCase
	if from <= 0 {
		from = 1
	}
	if to <= 0 || to > batch.TotalMasterCodes {
		to = batch.TotalMasterCodes
	}
	if from > to {
		return nil, errors.ErrValidation("fromCase must not exceed toCase").
			WithDetail("fromCase", fmt.Sprint(from)).
			WithDetail("toCase", fmt.Sprint(to))
	}
	cases := to - from + 1
	if labels := cases * (1 + batch.UnitsPerCase); labels > s.opts.MaxLabelsPerSheet {
		return nil, errors.ErrValidation(fmt.Sprintf("label range holds %d labels, at most %d fit one sheet", labels, s.opts.MaxLabelsPerSheet)).
			WithDetail("maxCases", fmt.Sprint(s.opts.MaxLabelsPerSheet/(1+batch.UnitsPerCase)))
	}

	masters, err := s.codes.ListMasterCodes(ctx, batch.ID, from-1, cases)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to list master codes: %w", err))
	}
	uniques, err := s.codes.ListUniqueCodes(ctx, batch.ID, (from-1)*batch.UnitsPerCase, cases*batch.UnitsPerCase)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to list unique codes: %w", err))
	}
	content, err := s.labels.Render(ctx, batch, masters, uniques)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to render labels: %w", err))
	}
	return &LabelSheet{
		FileName: fmt.Sprintf("%s-cases-%d-%d.pdf", batch.ID, from, to),
		Content:  content,
	}, nil
}

// markPrinted flips the batch and its generated codes to printed in one
// transaction, falling back to sequential updates when the transaction fails.
func (s *BatchService) markPrinted(ctx context.Context, batch *domain.Batch, actor string) (*PrintTransitionDTO, error) {
	now := s.now()
	if err := batch.StartPrinting(now); err != nil {
		return nil, toAppError(err)
	}

	res, err := s.batches.TransitionToPrinting(ctx, batch)
	switch {
	case err == nil:
		s.mover.record(ctx, batch.ID, domain.CodeKindMaster, domain.CodeStatusGenerated, domain.CodeStatusPrinted, res.MasterPrinted, actor, domain.MovementReasonPrint, now)
		s.mover.record(ctx, batch.ID, domain.CodeKindUnique, domain.CodeStatusGenerated, domain.CodeStatusPrinted, res.UniquePrinted, actor, domain.MovementReasonPrint, now)
		s.metrics.RecordBatchTransition(string(domain.BatchStatusPrinting))
		s.logPrinted(ctx, batch, false, 0)
		return &PrintTransitionDTO{MasterPrinted: res.MasterPrinted, UniquePrinted: res.UniquePrinted}, nil
	case stderrors.Is(err, domain.ErrConcurrentModification):
		// another download already moved the batch
		return nil, nil
	}

	s.logger.WithError(err).Warn("Atomic print transition failed, falling back to sequential updates", "batchId", batch.ID)
	s.metrics.RecordPrintFallback()
	return s.printFallback(ctx, batch.ID, actor)
}

// printFallback runs the print transition as best-effort sequential
// updates: batch row, master codes, then unique codes in sequence ranges.
// Failed chunks are logged and skipped; the packing worker repairs them.
func (s *BatchService) printFallback(ctx context.Context, batchID, actor string) (*PrintTransitionDTO, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to reload batch: %w", err))
	}
	if batch == nil {
		return nil, errors.ErrNotFoundWithID("batch", batchID)
	}
	if batch.Status != domain.BatchStatusGenerated {
		return nil, nil
	}

	now := s.now()
	if err := batch.StartPrinting(now); err != nil {
		return nil, toAppError(err)
	}
	if err := s.batches.Update(ctx, batch); err != nil {
		if stderrors.Is(err, domain.ErrConcurrentModification) {
			return nil, nil
		}
		return nil, toAppError(fmt.Errorf("failed to mark batch printing: %w", err))
	}
	s.metrics.RecordBatchTransition(string(domain.BatchStatusPrinting))

	result := &PrintTransitionDTO{Fallback: true}
	logger := s.logger.WithBatch(batchID).WithOperation("print-fallback")

	n, err := s.codes.AdvanceAll(ctx, domain.CodeKindMaster, batchID, domain.CodeStatusGenerated, domain.CodeStatusPrinted)
	if err != nil {
		result.FailedChunks++
		s.metrics.RecordChunkFailure("print:master")
		logger.WithError(err).Error("Master code print update failed, continuing")
	}
	result.MasterPrinted = n

	step := s.opts.PrintFallbackChunk
	for lo := 1; lo <= batch.TotalUniqueCodes; lo += step {
		hi := min(lo+step-1, batch.TotalUniqueCodes)
		n, err := s.codes.AdvanceRange(ctx, domain.CodeKindUnique, batchID, domain.CodeStatusGenerated, domain.CodeStatusPrinted, lo, hi)
		if err != nil {
			result.FailedChunks++
			s.metrics.RecordChunkFailure("print:unique")
			logger.WithError(err).Error("Unique code print chunk failed, continuing", "from", lo, "to", hi)
			continue
		}
		result.UniquePrinted += n
	}

	s.mover.record(ctx, batchID, domain.CodeKindMaster, domain.CodeStatusGenerated, domain.CodeStatusPrinted, result.MasterPrinted, actor, domain.MovementReasonPrint, now)
	s.mover.record(ctx, batchID, domain.CodeKindUnique, domain.CodeStatusGenerated, domain.CodeStatusPrinted, result.UniquePrinted, actor, domain.MovementReasonPrint, now)
	s.logPrinted(ctx, batch, true, result.FailedChunks)
	return result, nil
}

func (s *BatchService) logPrinted(ctx context.Context, batch *domain.Batch, fallback bool, failedChunks int) {
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "qrbatch.printing",
		EntityType: "batch",
		EntityID:   batch.ID,
		Action:     "printing",
		RelatedIDs: map[string]string{"orderId": batch.OrderID},
		Data:       map[string]any{"fallback": fallback, "failedChunks": failedChunks},
	})
}

// GetBatch retrieves a batch by ID
func (s *BatchService) GetBatch(ctx context.Context, query GetBatchQuery) (*BatchDTO, error) {
	batch, err := s.load(ctx, query.BatchID)
	if err != nil {
		return nil, err
	}
	return ToBatchDTO(batch), nil
}

// ListBatchesByOrder lists the batches of an order, newest first
func (s *BatchService) ListBatchesByOrder(ctx context.Context, query ListBatchesByOrderQuery) ([]*BatchDTO, error) {
	batches, err := s.batches.FindByOrderID(ctx, query.OrderID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list batches", "orderId", query.OrderID)
		return nil, toAppError(fmt.Errorf("failed to list batches: %w", err))
	}
	out := make([]*BatchDTO, 0, len(batches))
	for _, b := range batches {
		if checkTenant(ctx, "batch", b.TenantID) != nil {
			continue
		}
		out = append(out, ToBatchDTO(b))
	}
	return out, nil
}

// GetProgress returns the packing progress readout
func (s *BatchService) GetProgress(ctx context.Context, query GetBatchQuery) (*ProgressDTO, error) {
	batch, err := s.load(ctx, query.BatchID)
	if err != nil {
		return nil, err
	}
	progress, err := s.mover.progress(ctx, batch)
	if err != nil {
		return nil, toAppError(err)
	}
	return ToProgressDTO(progress), nil
}

// CompleteProduction moves packed codes to ready_to_ship, completes the
// batch and its packing, and opens the balance payment request. Calling it
// again on a completed batch only makes sure packing is closed and the
// payment request exists.
func (s *BatchService) CompleteProduction(ctx context.Context, cmd CompleteProductionCommand) (*CompleteProductionResponse, error) {
	batch, err := s.load(ctx, cmd.BatchID)
	if err != nil {
		return nil, err
	}

	if batch.Status == domain.BatchStatusCompleted {
		if batch.PackingStatus.IsRunning() {
			if err := batch.CompletePacking(s.now()); err != nil {
				return nil, toAppError(err)
			}
			if err := s.batches.Update(ctx, batch); err != nil {
				return nil, toAppError(fmt.Errorf("failed to close packing: %w", err))
			}
		}
		created, err := s.ensureBalancePayment(ctx, batch, cmd.Actor)
		if err != nil {
			return nil, err
		}
		return completeResponse(batch, int64(batch.TotalMasterCodes), int64(batch.TotalUniqueCodes), created), nil
	}
	if !domain.CanTransition(batch.Status, domain.BatchStatusCompleted) {
		return nil, toAppError(fmt.Errorf("%w: batch is %s", domain.ErrInvalidTransition, batch.Status))
	}

	progress, err := s.mover.progress(ctx, batch)
	if err != nil {
		return nil, toAppError(err)
	}
	if !progress.IsFullyPacked() {
		return nil, errors.ErrConflict(domain.ErrPackingNotComplete.Error()).WithDetails(map[string]string{
			"packed_master_codes": fmt.Sprint(progress.PackedMasterCodes),
			"total_master_codes":  fmt.Sprint(progress.TotalMasterCodes),
			"packed_unique_codes": fmt.Sprint(progress.PackedUniqueCodes),
			"total_unique_codes":  fmt.Sprint(progress.TotalUniqueCodes),
		})
	}

	now := s.now()
	for _, kind := range []domain.CodeKind{domain.CodeKindMaster, domain.CodeKindUnique} {
		n, err := s.mover.drain(ctx, kind, batch.ID, domain.CodeStatusPacked, domain.CodeStatusReadyToShip, s.opts.ChunkSize)
		s.mover.record(ctx, batch.ID, kind, domain.CodeStatusPacked, domain.CodeStatusReadyToShip, n, cmd.Actor, domain.MovementReasonCompletion, now)
		if err != nil {
			s.logger.WithError(err).Error("Failed to advance packed codes", "batchId", batch.ID, "kind", kind)
			return nil, toAppError(fmt.Errorf("failed to advance %s codes: %w", kind, err))
		}
	}

	// every row is packed, so packing left running only missed its final write
	if batch.PackingStatus.IsRunning() {
		if err := batch.CompletePacking(now); err != nil {
			return nil, toAppError(err)
		}
	}
	if err := batch.Complete(progress.PackedMasterCodes, progress.PackedUniqueCodes, now); err != nil {
		return nil, toAppError(err)
	}
	if err := s.batches.Update(ctx, batch); err != nil {
		return nil, toAppError(fmt.Errorf("failed to complete batch: %w", err))
	}
	s.metrics.RecordBatchTransition(string(batch.Status))

	created, err := s.ensureBalancePayment(ctx, batch, cmd.Actor)
	if err != nil {
		return nil, err
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "qrbatch.completed",
		EntityType: "batch",
		EntityID:   batch.ID,
		Action:     "completed",
		RelatedIDs: map[string]string{"orderId": batch.OrderID},
		Data:       map[string]any{"balancePaymentCreated": created},
	})
	return completeResponse(batch, progress.PackedMasterCodes, progress.PackedUniqueCodes, created), nil
}

func completeResponse(b *domain.Batch, packedMaster, packedUnique int64, created bool) *CompleteProductionResponse {
	return &CompleteProductionResponse{
		PackedMasterCodes:     packedMaster,
		TotalMasterCodes:      int64(b.TotalMasterCodes),
		PackedUniqueCodes:     packedUnique,
		TotalUniqueCodes:      int64(b.TotalUniqueCodes),
		BalancePaymentCreated: created,
	}
}

func (s *BatchService) ensureBalancePayment(ctx context.Context, batch *domain.Batch, actor string) (bool, error) {
	created, err := s.payments.CreateIfAbsent(ctx, domain.NewBalancePaymentRequest(batch, actor, s.now()))
	if err != nil {
		s.logger.WithError(err).Error("Failed to create balance payment request", "orderId", batch.OrderID)
		return false, toAppError(fmt.Errorf("failed to create balance payment request: %w", err))
	}
	if created {
		s.logger.Audit(ctx, "balance_payment.requested", "order", batch.OrderID, actor, map[string]any{"batchId": batch.ID})
	}
	return created, nil
}

// ListMovements returns the audit trail of a batch
func (s *BatchService) ListMovements(ctx context.Context, query GetBatchQuery) ([]CodeMovementDTO, error) {
	if _, err := s.load(ctx, query.BatchID); err != nil {
		return nil, err
	}
	movements, err := s.movements.ListByBatch(ctx, query.BatchID)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to list movements: %w", err))
	}
	return ToCodeMovementDTOs(movements), nil
}

// ValidateBatch checks the batch counters against its code rows and stores
// the report
func (s *BatchService) ValidateBatch(ctx context.Context, cmd ValidateBatchCommand) (*ValidationReportDTO, error) {
	batch, err := s.load(ctx, cmd.BatchID)
	if err != nil {
		return nil, err
	}
	master, err := s.codes.CountByStatus(ctx, domain.CodeKindMaster, batch.ID)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to count master codes: %w", err))
	}
	unique, err := s.codes.CountByStatus(ctx, domain.CodeKindUnique, batch.ID)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to count unique codes: %w", err))
	}

	report := domain.BuildValidationReport(batch, master, unique, cmd.Actor, s.now())
	if err := s.reports.Save(ctx, report); err != nil {
		return nil, toAppError(fmt.Errorf("failed to save validation report: %w", err))
	}
	if !report.Valid {
		s.logger.Warn("Batch validation found violations", "batchId", batch.ID, "violations", report.Violations)
	}
	return ToValidationReportDTO(report), nil
}
