package activities

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/wms-platform/qrbatch-service/internal/application"
	"github.com/wms-platform/qrbatch-service/internal/workflows"
	apperrors "github.com/wms-platform/qrbatch-service/pkg/errors"
	"github.com/wms-platform/qrbatch-service/pkg/metrics"
	"github.com/wms-platform/qrbatch-service/pkg/tracing"
)

const tracerName = "qrbatch-activities"

// GenerationRunner runs one generation chunk
type GenerationRunner interface {
	GenerateCodes(ctx context.Context, cmd application.GenerateCodesCommand) (*application.GenerationResult, error)
}

// PackingRunner runs one packing chunk
type PackingRunner interface {
	RunPackingChunk(ctx context.Context, cmd application.RunPackingChunkCommand) (*application.PackingChunkResponse, error)
}

// ReverseJobRunner runs one reverse job chunk
type ReverseJobRunner interface {
	ProcessReverseJob(ctx context.Context, cmd application.ProcessReverseJobCommand) (*application.ReverseJobChunkResult, error)
}

// ChunkActivities exposes the one-chunk service operations to Temporal
type ChunkActivities struct {
	generation GenerationRunner
	packing    PackingRunner
	reverse    ReverseJobRunner
	metrics    *metrics.Metrics
}

// NewChunkActivities creates a new ChunkActivities instance
func NewChunkActivities(generation GenerationRunner, packing PackingRunner, reverse ReverseJobRunner, m *metrics.Metrics) *ChunkActivities {
	return &ChunkActivities{
		generation: generation,
		packing:    packing,
		reverse:    reverse,
		metrics:    m,
	}
}

// workerID is the lease owner for the calling workflow. It is stable across
// activity retries so a retried chunk reclaims its own lease.
func workerID(ctx context.Context) string {
	return "temporal:" + activity.GetInfo(ctx).WorkflowExecution.ID
}

// GenerateChunk inserts one chunk of a batch's codes
func (a *ChunkActivities) GenerateChunk(ctx context.Context, batchID string) (*workflows.ChunkOutcome, error) {
	logger := activity.GetLogger(ctx)
	start := time.Now()
	activity.RecordHeartbeat(ctx, batchID)

	ctx, span := tracing.StartSpan(ctx, tracerName, workflows.ActivityNames.GenerateChunk, attribute.String("batch.id", batchID))
	res, err := a.generation.GenerateCodes(ctx, application.GenerateCodesCommand{
		BatchID:  batchID,
		WorkerID: workerID(ctx),
		Progress: func(done, total int) {
			activity.RecordHeartbeat(ctx, batchID, done, total)
		},
	})
	tracing.EndSpan(span, err)
	a.metrics.RecordActivityCompleted(workflows.ActivityNames.GenerateChunk, err == nil, time.Since(start))
	if err != nil {
		logger.Warn("Generation chunk failed", "batchId", batchID, "error", err)
		return nil, toActivityError(err)
	}

	logger.Info("Generation chunk done", "batchId", batchID, "inserted", res.InsertedUnique, "total", res.TotalUnique, "hasMore", res.HasMore)
	return &workflows.ChunkOutcome{
		ID:        batchID,
		Status:    res.Status,
		HasMore:   res.HasMore,
		LeaseHeld: res.LeaseHeld,
		Failed:    res.Failed,
		Error:     res.Error,
	}, nil
}

// PackingChunk packs one chunk of a batch's printed codes
func (a *ChunkActivities) PackingChunk(ctx context.Context, batchID string) (*workflows.ChunkOutcome, error) {
	logger := activity.GetLogger(ctx)
	start := time.Now()
	activity.RecordHeartbeat(ctx, batchID)

	ctx, span := tracing.StartSpan(ctx, tracerName, workflows.ActivityNames.PackingChunk, attribute.String("batch.id", batchID))
	res, err := a.packing.RunPackingChunk(ctx, application.RunPackingChunkCommand{BatchID: batchID, WorkerID: workerID(ctx)})
	tracing.EndSpan(span, err)
	a.metrics.RecordActivityCompleted(workflows.ActivityNames.PackingChunk, err == nil, time.Since(start))
	if err != nil {
		logger.Warn("Packing chunk failed", "batchId", batchID, "error", err)
		return nil, toActivityError(err)
	}

	outcome := &workflows.ChunkOutcome{
		ID:        batchID,
		HasMore:   res.HasMore,
		LeaseHeld: res.LeaseHeld,
		Failed:    res.Failed,
		Error:     res.Error,
	}
	if res.ProgressDTO != nil {
		outcome.Status = res.PackingStatus
	}
	logger.Info("Packing chunk done", "batchId", batchID, "hasMore", res.HasMore, "leaseHeld", res.LeaseHeld)
	return outcome, nil
}

// ReverseJobChunk prepares one chunk of a reverse job
func (a *ChunkActivities) ReverseJobChunk(ctx context.Context, jobID string) (*workflows.ChunkOutcome, error) {
	logger := activity.GetLogger(ctx)
	start := time.Now()
	activity.RecordHeartbeat(ctx, jobID)

	ctx, span := tracing.StartSpan(ctx, tracerName, workflows.ActivityNames.ReverseJobChunk, attribute.String("reverse_job.id", jobID))
	res, err := a.reverse.ProcessReverseJob(ctx, application.ProcessReverseJobCommand{JobID: jobID, WorkerID: workerID(ctx)})
	tracing.EndSpan(span, err)
	a.metrics.RecordActivityCompleted(workflows.ActivityNames.ReverseJobChunk, err == nil, time.Since(start))
	if err != nil {
		logger.Warn("Reverse job chunk failed", "jobId", jobID, "error", err)
		return nil, toActivityError(err)
	}

	logger.Info("Reverse job chunk done", "jobId", jobID, "progress", res.Progress, "hasMore", res.HasMore)
	return &workflows.ChunkOutcome{
		ID:        jobID,
		Status:    res.Status,
		HasMore:   res.HasMore,
		LeaseHeld: res.LeaseHeld,
		Failed:    res.Failed,
		Error:     res.Error,
	}, nil
}

// toActivityError keeps unavailable and internal errors retryable and makes
// client errors final
func toActivityError(err error) error {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return err
	}
	switch appErr.HTTPStatus {
	case http.StatusBadRequest:
		return temporal.NewNonRetryableApplicationError(appErr.Message, workflows.ErrTypeValidation, err)
	case http.StatusNotFound:
		return temporal.NewNonRetryableApplicationError(appErr.Message, workflows.ErrTypeNotFound, err)
	case http.StatusConflict:
		return temporal.NewNonRetryableApplicationError(appErr.Message, workflows.ErrTypeConflict, err)
	}
	return fmt.Errorf("%s: %w", appErr.Code, err)
}
