package domain

import (
	"context"
	"time"
)

// BatchRepository defines batch persistence. Find methods return nil, nil
// when nothing matches. Writes that carry domain events store them in the
// outbox in the same transaction.
type BatchRepository interface {
	Create(ctx context.Context, batch *Batch) error
	// Update writes the batch if its version is unchanged since it was read
	// and returns ErrConcurrentModification otherwise.
	Update(ctx context.Context, batch *Batch) error
	FindByID(ctx context.Context, batchID string) (*Batch, error)
	FindByOrderID(ctx context.Context, orderID string) ([]*Batch, error)
	FindActiveByOrderID(ctx context.Context, orderID string) (*Batch, error)

	// ClaimGeneration atomically takes the generation lease. It returns nil
	// when the batch is not claimable by workerID.
	ClaimGeneration(ctx context.Context, batchID, workerID string, until time.Time) (*Batch, error)
	// UpdateInsertProgress advances the insert cursors while workerID still
	// holds the lease, or returns ErrLeaseLost.
	UpdateInsertProgress(ctx context.Context, batchID, workerID string, masterInserted, qrInserted int, until time.Time) (*Batch, error)
	// ClaimPacking atomically takes the packing lease, or returns nil
	ClaimPacking(ctx context.Context, batchID, workerID string, until time.Time) (*Batch, error)
	FindNextPacking(ctx context.Context) (*Batch, error)

	FindStalledGeneration(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*Batch, error)
	FindStalledPacking(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*Batch, error)

	// TransitionToPrinting persists a batch that has just called
	// StartPrinting and flips its generated codes to printed, all in one
	// transaction.
	TransitionToPrinting(ctx context.Context, batch *Batch) (PrintResult, error)
}

// PrintResult counts the code rows flipped by the print transition
type PrintResult struct {
	MasterPrinted int64
	UniquePrinted int64
}

// CodeRepository defines master and unique code persistence. Bulk
// advances only touch rows still in the from status.
type CodeRepository interface {
	// Insert methods skip rows that already exist
	InsertMasterCodes(ctx context.Context, codes []MasterCode) error
	InsertUniqueCodes(ctx context.Context, codes []UniqueCode) error

	// List methods page by case number (master) or sequence (unique)
	ListMasterCodes(ctx context.Context, batchID string, afterCase, limit int) ([]MasterCode, error)
	ListUniqueCodes(ctx context.Context, batchID string, afterSequence, limit int) ([]UniqueCode, error)

	CountByStatus(ctx context.Context, kind CodeKind, batchID string) (StatusHistogram, error)
	CountInStatus(ctx context.Context, kind CodeKind, batchID string, statuses ...CodeStatus) (int64, error)

	// AdvanceChunk moves up to limit rows, lowest sequence first
	AdvanceChunk(ctx context.Context, kind CodeKind, batchID string, from, to CodeStatus, limit int) (int64, error)
	AdvanceAll(ctx context.Context, kind CodeKind, batchID string, from, to CodeStatus) (int64, error)
	// AdvanceRange moves rows whose sequence (unique) or case number
	// (master) is within [lo, hi]
	AdvanceRange(ctx context.Context, kind CodeKind, batchID string, from, to CodeStatus, lo, hi int) (int64, error)

	CountCandidates(ctx context.Context, filter CandidateFilter) (int64, error)
	FindCandidates(ctx context.Context, filter CandidateFilter, afterSequence, limit int) ([]UniqueCode, error)
}

// ReverseJobRepository defines reverse job persistence
type ReverseJobRepository interface {
	Create(ctx context.Context, job *ReverseJob) error
	Update(ctx context.Context, job *ReverseJob) error
	FindByID(ctx context.Context, jobID string) (*ReverseJob, error)
	Claim(ctx context.Context, jobID, workerID string, until time.Time) (*ReverseJob, error)
	FindStalled(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*ReverseJob, error)
}

// PreparedCodeRepository defines prepared code persistence
type PreparedCodeRepository interface {
	// Insert returns ErrAlreadyPrepared when the code is taken
	Insert(ctx context.Context, code PreparedCode) error
	// PreparedBy maps each already prepared code to its job id
	PreparedBy(ctx context.Context, codes []string) (map[string]string, error)
	ListByJob(ctx context.Context, jobID string, offset, limit int) ([]PreparedCode, int64, error)
}

// ReverseJobLogRepository stores reverse job log lines
type ReverseJobLogRepository interface {
	Append(ctx context.Context, entry ReverseJobLog) error
	ListByJob(ctx context.Context, jobID string) ([]ReverseJobLog, error)
}

// MovementRepository stores code movement audit rows
type MovementRepository interface {
	Record(ctx context.Context, movement CodeMovement) error
	ListByBatch(ctx context.Context, batchID string) ([]CodeMovement, error)
}

// ValidationReportRepository stores validation reports
type ValidationReportRepository interface {
	Save(ctx context.Context, report *ValidationReport) error
}

// BalancePaymentRepository stores balance payment requests
type BalancePaymentRepository interface {
	// CreateIfAbsent returns false when the order already has a request
	CreateIfAbsent(ctx context.Context, request *BalancePaymentRequest) (bool, error)
}
