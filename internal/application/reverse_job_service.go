package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/wms-platform/qrbatch-service/internal/domain"
	"github.com/wms-platform/qrbatch-service/pkg/api"
	"github.com/wms-platform/qrbatch-service/pkg/errors"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
	"github.com/wms-platform/qrbatch-service/pkg/metrics"
	"github.com/wms-platform/qrbatch-service/pkg/resilience"
)

// ReverseJobService prepares the non-excluded codes of a batch for re-linking
type ReverseJobService struct {
	batches    domain.BatchRepository
	jobs       domain.ReverseJobRepository
	codes      domain.CodeRepository
	prepared   domain.PreparedCodeRepository
	logs       domain.ReverseJobLogRepository
	dispatcher TaskDispatcher
	metrics    *metrics.Metrics
	logger     *logging.Logger
	opts       Options
	now        func() time.Time
}

// NewReverseJobService creates a new ReverseJobService
func NewReverseJobService(
	repos Repositories,
	dispatcher TaskDispatcher,
	m *metrics.Metrics,
	logger *logging.Logger,
	opts Options,
) *ReverseJobService {
	return &ReverseJobService{
		batches:    repos.Batches,
		jobs:       repos.ReverseJobs,
		codes:      repos.Codes,
		prepared:   repos.PreparedCodes,
		logs:       repos.JobLogs,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.WithComponent("reverse-job-service"),
		opts:       opts.withDefaults(),
		now:        defaultClock,
	}
}

// SubmitReverseJob validates the request, stores a queued job and
// dispatches it
func (s *ReverseJobService) SubmitReverseJob(ctx context.Context, cmd SubmitReverseJobCommand) (*SubmitReverseJobResponse, error) {
	if strings.TrimSpace(cmd.BatchID) == "" {
		return nil, errors.ErrValidation(domain.ErrBatchRequired.Error())
	}
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

	now := s.now()
	job, err := domain.NewReverseJob(batch, cmd.OrderID, cmd.ManufacturerOrgID, cmd.RequestedBy, cmd.ExcludeCodes, cmd.VariantID, cmd.CaseNumbers, now)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.logger.WithError(err).Error("Failed to create reverse job", "batchId", batch.ID)
		return nil, toAppError(fmt.Errorf("failed to create reverse job: %w", err))
	}
	s.metrics.RecordReverseJob(string(job.Status))
	s.appendLog(ctx, job.ID, domain.JobLogInfo, "Job queued", map[string]int{"exclude_count": len(job.ExcludeCodes)})

	if err := s.dispatcher.DispatchReverseJob(ctx, job.ID); err != nil {
		s.logger.WithError(err).Warn("Failed to dispatch reverse job", "jobId", job.ID)
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "qrbatch.reverse_job.queued",
		EntityType: "reverseJob",
		EntityID:   job.ID,
		Action:     "queued",
		RelatedIDs: map[string]string{"batchId": job.BatchID, "orderId": job.OrderID},
		Data:       map[string]any{"excludeCount": len(job.ExcludeCodes), "requestedBy": job.RequestedBy},
	})

	return &SubmitReverseJobResponse{JobID: job.ID, ExcludeCount: len(job.ExcludeCodes)}, nil
}

// ProcessReverseJob claims the job and handles one chunk of candidates in
// sequence order. The candidate set is counted on the first chunk. The job
// completes when a chunk comes back short.
func (s *ReverseJobService) ProcessReverseJob(ctx context.Context, cmd ProcessReverseJobCommand) (*ReverseJobChunkResult, error) {
	now := s.now()
	job, err := s.jobs.Claim(ctx, cmd.JobID, cmd.WorkerID, now.Add(s.opts.LeaseTTL))
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to claim reverse job: %w", err))
	}
	if job == nil {
		return s.unclaimedJob(ctx, cmd.JobID)
	}

	if job.CandidateCount == nil {
		n, err := resilience.RetryWithResult(ctx, s.opts.Retry, func() (int64, error) {
			return s.codes.CountCandidates(ctx, job.Filter)
		})
		if err != nil {
			return s.jobError(ctx, job.ID, fmt.Errorf("failed to count candidates: %w", err))
		}
		count := int(n)
		job.CandidateCount = &count
		s.appendLog(ctx, job.ID, domain.JobLogInfo, "Candidates counted", map[string]int{
			"candidate_count": count,
			"exclude_count":   len(job.ExcludeCodes),
		})
	}

	candidates, err := resilience.RetryWithResult(ctx, s.opts.Retry, func() ([]domain.UniqueCode, error) {
		return s.codes.FindCandidates(ctx, job.Filter, job.Cursor, s.opts.ChunkSize)
	})
	if err != nil {
		return s.jobError(ctx, job.ID, fmt.Errorf("failed to load candidates: %w", err))
	}

	var res domain.ChunkResult
	if len(candidates) > 0 {
		res, err = s.prepareChunk(ctx, job, candidates)
		if err != nil {
			return s.jobError(ctx, job.ID, err)
		}
	}

	now = s.now()
	job.RecordChunk(res, now.Add(s.opts.LeaseTTL), now)
	hasMore := len(candidates) == s.opts.ChunkSize
	if !hasMore {
		if err := job.Complete(now); err != nil {
			return nil, toAppError(err)
		}
	}

	if err := s.jobs.Update(ctx, job); err != nil {
		if stderrors.Is(err, domain.ErrConcurrentModification) {
			return &ReverseJobChunkResult{JobID: job.ID, Status: string(domain.ReverseJobRunning), HasMore: true, LeaseHeld: true}, nil
		}
		return nil, toAppError(fmt.Errorf("failed to save reverse job: %w", err))
	}

	if len(candidates) > 0 {
		s.appendLog(ctx, job.ID, domain.JobLogInfo, "Chunk processed", map[string]int{
			"candidates": res.Candidates,
			"excluded":   res.Excluded,
			"prepared":   res.Prepared,
			"duplicates": res.Duplicates,
			"invalid":    res.Invalid,
			"progress":   job.Progress,
		})
	}
	if job.Status == domain.ReverseJobCompleted {
		s.completed(ctx, job)
	}

	return &ReverseJobChunkResult{
		JobID:    job.ID,
		Status:   string(job.Status),
		Progress: job.Progress,
		HasMore:  hasMore,
	}, nil
}

// prepareChunk classifies one chunk. Codes this job prepared on an earlier
// attempt count as prepared again, so a resumed chunk converges.
func (s *ReverseJobService) prepareChunk(ctx context.Context, job *domain.ReverseJob, candidates []domain.UniqueCode) (domain.ChunkResult, error) {
	res := domain.ChunkResult{
		Candidates:   len(candidates),
		LastSequence: candidates[len(candidates)-1].Sequence,
	}

	remaining, excluded := domain.NewExclusionSet(job.ExcludeCodes).SplitCandidates(candidates)
	res.Excluded = excluded
	if len(remaining) == 0 {
		return res, nil
	}

	values := make([]string, 0, len(remaining))
	for _, c := range remaining {
		values = append(values, c.Code)
	}
	preparedBy, err := resilience.RetryWithResult(ctx, s.opts.Retry, func() (map[string]string, error) {
		return s.prepared.PreparedBy(ctx, values)
	})
	if err != nil {
		return res, fmt.Errorf("failed to look up prepared codes: %w", err)
	}

	now := s.now()
	for _, c := range remaining {
		owner := preparedBy[c.Code]
		switch domain.ClassifyCandidate(c, owner, job.ID) {
		case domain.OutcomeDuplicate:
			res.Duplicates++
		case domain.OutcomeInvalid:
			res.Invalid++
		case domain.OutcomePrepare:
			if owner == job.ID {
				res.Prepared++
				continue
			}
			err := s.prepared.Insert(ctx, domain.NewPreparedCode(job, c, now))
			switch {
			case err == nil:
				res.Prepared++
			case stderrors.Is(err, domain.ErrAlreadyPrepared):
				res.Duplicates++
			default:
				return res, fmt.Errorf("failed to prepare code %s: %w", c.Code, err)
			}
		}
	}
	return res, nil
}

// jobError returns transient failures for a retry and fails the job on
// anything else
func (s *ReverseJobService) jobError(ctx context.Context, jobID string, cause error) (*ReverseJobChunkResult, error) {
	if domain.IsTransient(cause) {
		s.logger.WithError(cause).Warn("Transient reverse job failure", "jobId", jobID)
		return nil, toAppError(cause)
	}
	s.logger.WithError(cause).Error("Reverse job failed", "jobId", jobID)

	job, err := resilience.RetryWithResult(ctx, conflictRetry(), func() (*domain.ReverseJob, error) {
		job, err := s.jobs.FindByID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, domain.ErrReverseJobNotFound
		}
		if err := job.Fail(cause.Error(), s.now()); err != nil {
			return nil, err
		}
		return job, s.jobs.Update(ctx, job)
	})
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to record reverse job failure: %w", err))
	}
	s.metrics.RecordReverseJob(string(job.Status))
	s.appendLog(ctx, jobID, domain.JobLogError, cause.Error(), nil)

	return &ReverseJobChunkResult{
		JobID:    jobID,
		Status:   string(job.Status),
		Progress: job.Progress,
		Failed:   true,
		Error:    cause.Error(),
	}, nil
}

func (s *ReverseJobService) completed(ctx context.Context, job *domain.ReverseJob) {
	s.metrics.RecordReverseJob(string(job.Status))
	summary := job.ResultSummary
	s.appendLog(ctx, job.ID, domain.JobLogInfo, "Job completed", map[string]int{
		"prepared":        summary.Prepared,
		"duplicates":      summary.Duplicates,
		"invalid":         summary.Invalid,
		"total_available": summary.TotalAvailable,
		"excluded_count":  summary.ExcludedCount,
		"candidate_count": summary.CandidateCount,
	})
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "qrbatch.reverse_job.completed",
		EntityType: "reverseJob",
		EntityID:   job.ID,
		Action:     "completed",
		RelatedIDs: map[string]string{"batchId": job.BatchID, "orderId": job.OrderID},
		Data:       map[string]any{"prepared": summary.Prepared, "totalAvailable": summary.TotalAvailable},
	})
}

func (s *ReverseJobService) unclaimedJob(ctx context.Context, jobID string) (*ReverseJobChunkResult, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to get reverse job: %w", err))
	}
	if job == nil {
		return nil, errors.ErrNotFoundWithID("reverse job", jobID)
	}
	result := &ReverseJobChunkResult{
		JobID:    job.ID,
		Status:   string(job.Status),
		Progress: job.Progress,
	}
	switch job.Status {
	case domain.ReverseJobQueued, domain.ReverseJobRunning:
		result.HasMore = true
		result.LeaseHeld = true
	case domain.ReverseJobFailed:
		result.Failed = true
		result.Error = job.ErrorMessage
	}
	return result, nil
}

func (s *ReverseJobService) appendLog(ctx context.Context, jobID string, level domain.JobLogLevel, message string, data map[string]int) {
	entry := domain.NewReverseJobLog(jobID, level, message, data, s.now())
	if err := s.logs.Append(ctx, entry); err != nil {
		s.logger.WithError(err).Warn("Failed to append reverse job log", "jobId", jobID)
	}
}

func (s *ReverseJobService) loadJob(ctx context.Context, jobID string) (*domain.ReverseJob, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to get reverse job: %w", err))
	}
	if job == nil {
		return nil, errors.ErrNotFoundWithID("reverse job", jobID)
	}
	if err := checkTenant(ctx, "reverse job", job.TenantID); err != nil {
		return nil, err
	}
	return job, nil
}

// GetReverseJob returns the job status readout
func (s *ReverseJobService) GetReverseJob(ctx context.Context, query GetReverseJobQuery) (*JobStatusDTO, error) {
	job, err := s.loadJob(ctx, query.JobID)
	if err != nil {
		return nil, err
	}
	return ToJobStatusDTO(job), nil
}

// ListReverseJobLogs returns the job log in write order
func (s *ReverseJobService) ListReverseJobLogs(ctx context.Context, query GetReverseJobQuery) ([]ReverseJobLogDTO, error) {
	if _, err := s.loadJob(ctx, query.JobID); err != nil {
		return nil, err
	}
	entries, err := s.logs.ListByJob(ctx, query.JobID)
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to list reverse job logs: %w", err))
	}
	return ToReverseJobLogDTOs(entries), nil
}

// ListPreparedCodes pages through the codes a job prepared
func (s *ReverseJobService) ListPreparedCodes(ctx context.Context, query GetReverseJobQuery, page api.PageRequest) (*api.PageResponse[PreparedCodeDTO], error) {
	if _, err := s.loadJob(ctx, query.JobID); err != nil {
		return nil, err
	}
	codes, total, err := s.prepared.ListByJob(ctx, query.JobID, int(page.Offset()), int(page.PageSize))
	if err != nil {
		return nil, toAppError(fmt.Errorf("failed to list prepared codes: %w", err))
	}
	resp := api.NewPageResponse(ToPreparedCodeDTOs(codes), page, total)
	return &resp, nil
}
