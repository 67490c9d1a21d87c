package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrRequesterRequired = errors.New("requested_by is required")
	ErrBatchRequired     = errors.New("batch_id is required")
	ErrOrderMismatch     = errors.New("batch does not belong to order")
	ErrInvalidCaseNumber = errors.New("case number out of range")
)

// ReverseJobStatus is the lifecycle state of a reverse job
type ReverseJobStatus string

const (
	ReverseJobQueued    ReverseJobStatus = "queued"
	ReverseJobRunning   ReverseJobStatus = "running"
	ReverseJobCompleted ReverseJobStatus = "completed"
	ReverseJobFailed    ReverseJobStatus = "failed"
)

// IsTerminal reports whether polling can stop
func (s ReverseJobStatus) IsTerminal() bool {
	return s == ReverseJobCompleted || s == ReverseJobFailed
}

// CandidateFilter narrows the batch unique codes a reverse job considers
type CandidateFilter struct {
	BatchID     string `bson:"batchId"`
	VariantID   string `bson:"variantId,omitempty"`
	CaseNumbers []int  `bson:"caseNumbers,omitempty"`
}

// ResultSummary is the final accounting of a reverse job. TotalAvailable is
// the candidate count after exclusions.
type ResultSummary struct {
	Prepared       int `bson:"prepared" json:"prepared"`
	Duplicates     int `bson:"duplicates" json:"duplicates"`
	Invalid        int `bson:"invalid" json:"invalid"`
	TotalAvailable int `bson:"totalAvailable" json:"total_available"`
	ExcludedCount  int `bson:"excludedCount" json:"excluded_count"`
	CandidateCount int `bson:"candidateCount" json:"candidate_count"`
}

// ReverseJob prepares the non-excluded codes of a batch for re-linking
type ReverseJob struct {
	ID                string           `bson:"_id"`
	TenantID          string           `bson:"tenantId,omitempty"`
	BatchID           string           `bson:"batchId"`
	OrderID           string           `bson:"orderId"`
	ManufacturerOrgID string           `bson:"manufacturerOrgId,omitempty"`
	RequestedBy       string           `bson:"requestedBy"`
	ExcludeCodes      []string         `bson:"excludeCodes"`
	Filter            CandidateFilter  `bson:"filter"`
	Status            ReverseJobStatus `bson:"status"`
	Progress          int              `bson:"progress"`

	// CandidateCount is nil until the first chunk counts the candidate set
	CandidateCount *int `bson:"candidateCount,omitempty"`
	Processed      int  `bson:"processed"`
	ExcludedCount  int  `bson:"excludedCount"`
	PreparedCount  int  `bson:"preparedCount"`
	Duplicates     int  `bson:"duplicates"`
	Invalid        int  `bson:"invalid"`
	// Cursor is the last unique code sequence handled
	Cursor int `bson:"cursor"`

	ResultSummary *ResultSummary `bson:"resultSummary,omitempty"`
	ErrorMessage  string         `bson:"errorMessage,omitempty"`

	LockedBy    string     `bson:"lockedBy,omitempty"`
	LockedUntil *time.Time `bson:"lockedUntil,omitempty"`
	Attempts    int        `bson:"attempts"`

	StartedAt   *time.Time `bson:"startedAt,omitempty"`
	CompletedAt *time.Time `bson:"completedAt,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt"`
	Version     int64      `bson:"version"`

	DomainEvents []DomainEvent `bson:"-"`
}

// NewReverseJob validates the request and creates a queued job
func NewReverseJob(batch *Batch, orderID, manufacturerOrgID, requestedBy string, excludeCodes []string, variantID string, caseNumbers []int, now time.Time) (*ReverseJob, error) {
	if batch == nil {
		return nil, ErrBatchRequired
	}
	if strings.TrimSpace(requestedBy) == "" {
		return nil, ErrRequesterRequired
	}
	if batch.OrderID != orderID {
		return nil, fmt.Errorf("%w: batch %s, order %s", ErrOrderMismatch, batch.ID, orderID)
	}
	for _, n := range caseNumbers {
		if n < 1 || n > batch.TotalMasterCodes {
			return nil, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidCaseNumber, n, batch.TotalMasterCodes)
		}
	}

	return &ReverseJob{
		ID:                uuid.New().String(),
		TenantID:          batch.TenantID,
		BatchID:           batch.ID,
		OrderID:           orderID,
		ManufacturerOrgID: manufacturerOrgID,
		RequestedBy:       requestedBy,
		ExcludeCodes:      NormalizeExclusions(excludeCodes),
		Filter: CandidateFilter{
			BatchID:     batch.ID,
			VariantID:   variantID,
			CaseNumbers: caseNumbers,
		},
		Status:    ReverseJobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// LeaseExpired reports whether the job lease is free at now
func (j *ReverseJob) LeaseExpired(now time.Time) bool {
	return j.LockedUntil == nil || j.LockedUntil.Before(now)
}

// Claim takes the job lease, moving queued jobs to running
func (j *ReverseJob) Claim(workerID string, until, now time.Time) error {
	switch j.Status {
	case ReverseJobQueued:
		j.Status = ReverseJobRunning
		j.Attempts++
	case ReverseJobRunning:
		if j.LockedBy != workerID && !j.LeaseExpired(now) {
			return ErrLeaseHeld
		}
	default:
		return fmt.Errorf("%w: reverse job is %s", ErrInvalidTransition, j.Status)
	}
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
	j.LockedBy = workerID
	j.LockedUntil = &until
	j.UpdatedAt = now
	return nil
}

// ChunkResult is the outcome of one processed candidate chunk
type ChunkResult struct {
	Candidates   int
	Excluded     int
	Prepared     int
	Duplicates   int
	Invalid      int
	LastSequence int
}

// RecordChunk folds a processed chunk into the job counters
func (j *ReverseJob) RecordChunk(r ChunkResult, until, now time.Time) {
	j.Processed += r.Candidates
	j.ExcludedCount += r.Excluded
	j.PreparedCount += r.Prepared
	j.Duplicates += r.Duplicates
	j.Invalid += r.Invalid
	if r.LastSequence > j.Cursor {
		j.Cursor = r.LastSequence
	}
	if j.CandidateCount != nil {
		j.Progress = Percentage(int64(j.Processed), int64(*j.CandidateCount))
	}
	j.LockedUntil = &until
	j.UpdatedAt = now
}

// Summary builds the result summary from the current counters
func (j *ReverseJob) Summary() ResultSummary {
	candidates := j.Processed
	if j.CandidateCount != nil && *j.CandidateCount > candidates {
		candidates = *j.CandidateCount
	}
	return ResultSummary{
		Prepared:       j.PreparedCount,
		Duplicates:     j.Duplicates,
		Invalid:        j.Invalid,
		TotalAvailable: j.Processed - j.ExcludedCount,
		ExcludedCount:  j.ExcludedCount,
		CandidateCount: candidates,
	}
}

// Complete finishes the job with its summary
func (j *ReverseJob) Complete(now time.Time) error {
	if j.Status != ReverseJobRunning {
		return fmt.Errorf("%w: reverse job is %s", ErrInvalidTransition, j.Status)
	}
	summary := j.Summary()
	j.Status = ReverseJobCompleted
	j.Progress = 100
	j.ResultSummary = &summary
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.LockedBy = ""
	j.LockedUntil = nil
	j.DomainEvents = append(j.DomainEvents, &ReverseJobCompletedEvent{
		JobID:         j.ID,
		BatchID:       j.BatchID,
		OrderID:       j.OrderID,
		PreparedCount: j.PreparedCount,
		Summary:       summary,
		CompletedAt:   now,
	})
	return nil
}

// Fail stops the job with a diagnostic
func (j *ReverseJob) Fail(message string, now time.Time) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: reverse job is %s", ErrInvalidTransition, j.Status)
	}
	j.Status = ReverseJobFailed
	j.ErrorMessage = message
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.LockedBy = ""
	j.LockedUntil = nil
	j.DomainEvents = append(j.DomainEvents, &ReverseJobFailedEvent{
		JobID:    j.ID,
		BatchID:  j.BatchID,
		OrderID:  j.OrderID,
		Reason:   message,
		FailedAt: now,
	})
	return nil
}

// PreparedCode is a unit code reserved by a reverse job. Code is unique
// across jobs.
type PreparedCode struct {
	ID           string    `bson:"_id" json:"id"`
	Code         string    `bson:"code" json:"code"`
	JobID        string    `bson:"jobId" json:"jobId"`
	BatchID      string    `bson:"batchId" json:"batchId"`
	OrderID      string    `bson:"orderId" json:"orderId"`
	UniqueCodeID string    `bson:"uniqueCodeId" json:"uniqueCodeId"`
	VariantID    string    `bson:"variantId,omitempty" json:"variantId,omitempty"`
	Sequence     int       `bson:"sequence" json:"sequence"`
	CaseNumber   int       `bson:"caseNumber" json:"caseNumber"`
	PreparedAt   time.Time `bson:"preparedAt" json:"preparedAt"`
}

// NewPreparedCode reserves code for job
func NewPreparedCode(job *ReverseJob, code UniqueCode, now time.Time) PreparedCode {
	return PreparedCode{
		ID:           uuid.New().String(),
		Code:         code.Code,
		JobID:        job.ID,
		BatchID:      job.BatchID,
		OrderID:      job.OrderID,
		UniqueCodeID: code.ID,
		VariantID:    code.VariantID,
		Sequence:     code.Sequence,
		CaseNumber:   code.CaseNumber,
		PreparedAt:   now,
	}
}

// JobLogLevel is the severity of a reverse job log entry
type JobLogLevel string

const (
	JobLogInfo  JobLogLevel = "info"
	JobLogWarn  JobLogLevel = "warn"
	JobLogError JobLogLevel = "error"
)

// ReverseJobLog is one progress line of a reverse job
type ReverseJobLog struct {
	ID        string         `bson:"_id" json:"id"`
	JobID     string         `bson:"jobId" json:"jobId"`
	Level     JobLogLevel    `bson:"level" json:"level"`
	Message   string         `bson:"message" json:"message"`
	Data      map[string]int `bson:"data,omitempty" json:"data,omitempty"`
	CreatedAt time.Time      `bson:"createdAt" json:"createdAt"`
}

// NewReverseJobLog creates a log entry for job
func NewReverseJobLog(jobID string, level JobLogLevel, message string, data map[string]int, now time.Time) ReverseJobLog {
	return ReverseJobLog{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Level:     level,
		Message:   message,
		Data:      data,
		CreatedAt: now,
	}
}
