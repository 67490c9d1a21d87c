package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle state of a batch as a whole
type BatchStatus string

const (
	BatchStatusPending      BatchStatus = "pending"
	BatchStatusQueued       BatchStatus = "queued"
	BatchStatusProcessing   BatchStatus = "processing"
	BatchStatusGenerated    BatchStatus = "generated"
	BatchStatusPrinting     BatchStatus = "printing"
	BatchStatusInProduction BatchStatus = "in_production"
	BatchStatusCompleted    BatchStatus = "completed"
	BatchStatusFailed       BatchStatus = "failed"
)

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusPending:      {BatchStatusQueued},
	BatchStatusQueued:       {BatchStatusProcessing, BatchStatusFailed},
	BatchStatusProcessing:   {BatchStatusGenerated, BatchStatusFailed},
	BatchStatusGenerated:    {BatchStatusPrinting},
	BatchStatusPrinting:     {BatchStatusInProduction, BatchStatusCompleted},
	BatchStatusInProduction: {BatchStatusCompleted},
	BatchStatusFailed:       {BatchStatusQueued},
}

// CanTransition reports whether a batch may move from one status to another
func CanTransition(from, to BatchStatus) bool {
	for _, allowed := range batchTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ActiveBatchStatuses are the statuses that block a new submission for the order
func ActiveBatchStatuses() []BatchStatus {
	return []BatchStatus{
		BatchStatusPending,
		BatchStatusQueued,
		BatchStatusProcessing,
		BatchStatusGenerated,
		BatchStatusPrinting,
		BatchStatusInProduction,
	}
}

// AcceptsPacking reports whether codes of a batch in this status can be packed
func (s BatchStatus) AcceptsPacking() bool {
	return slices.Contains(PackableBatchStatuses(), s)
}

// PackableBatchStatuses are the statuses whose codes can still be packed
func PackableBatchStatuses() []BatchStatus {
	return []BatchStatus{BatchStatusPrinting, BatchStatusInProduction}
}

// HasExport reports whether the status implies a generated export file
func (s BatchStatus) HasExport() bool {
	switch s {
	case BatchStatusGenerated, BatchStatusPrinting, BatchStatusInProduction, BatchStatusCompleted:
		return true
	}
	return false
}

// PackingStatus is the packing worker sub-state, independent of BatchStatus
type PackingStatus string

const (
	PackingStatusNone       PackingStatus = ""
	PackingStatusQueued     PackingStatus = "queued"
	PackingStatusProcessing PackingStatus = "processing"
	PackingStatusCompleted  PackingStatus = "completed"
	PackingStatusFailed     PackingStatus = "failed"
)

// IsRunning reports whether packing work is pending or in flight
func (s PackingStatus) IsRunning() bool {
	return s == PackingStatusQueued || s == PackingStatusProcessing
}

// Batch is the aggregate root for one QR generation run of an order
type Batch struct {
	ID               string        `bson:"_id"`
	TenantID         string        `bson:"tenantId,omitempty"`
	OrderID          string        `bson:"orderId"`
	VariantID        string        `bson:"variantId,omitempty"`
	Status           BatchStatus   `bson:"status"`
	PackingStatus    PackingStatus `bson:"packingStatus"`
	Quantity         int           `bson:"quantity"`
	BufferPercentage int           `bson:"bufferPercentage"`
	UnitsPerCase     int           `bson:"unitsPerCase"`
	TotalMasterCodes int           `bson:"totalMasterCodes"`
	TotalUniqueCodes int           `bson:"totalUniqueCodes"`

	// Insert cursors: codes [1, n] are known to exist
	QRInsertedCount     int `bson:"qrInsertedCount"`
	MasterInsertedCount int `bson:"masterInsertedCount"`

	GeneratedFile string `bson:"generatedFile,omitempty"`
	ErrorMessage  string `bson:"errorMessage,omitempty"`
	PackingError  string `bson:"packingError,omitempty"`

	LockedBy           string     `bson:"lockedBy,omitempty"`
	LockedUntil        *time.Time `bson:"lockedUntil,omitempty"`
	PackingLockedBy    string     `bson:"packingLockedBy,omitempty"`
	PackingLockedUntil *time.Time `bson:"packingLockedUntil,omitempty"`
	Attempts           int        `bson:"attempts"`

	ProcessingStartedAt  *time.Time `bson:"processingStartedAt,omitempty"`
	ProcessingFinishedAt *time.Time `bson:"processingFinishedAt,omitempty"`
	PackingStartedAt     *time.Time `bson:"packingStartedAt,omitempty"`
	PackingFinishedAt    *time.Time `bson:"packingFinishedAt,omitempty"`
	PrintedAt            *time.Time `bson:"printedAt,omitempty"`
	CompletedAt          *time.Time `bson:"completedAt,omitempty"`

	CreatedBy string    `bson:"createdBy,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`

	// Version guards compare-and-swap updates
	Version int64 `bson:"version"`

	DomainEvents []DomainEvent `bson:"-"`
}

// NewBatch creates a pending batch sized by PlanGeneration
func NewBatch(orderID, variantID string, quantity, bufferPercentage, unitsPerCase int, createdBy string, now time.Time) (*Batch, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, ErrOrderRequired
	}
	plan, err := PlanGeneration(quantity, bufferPercentage, unitsPerCase)
	if err != nil {
		return nil, err
	}

	return &Batch{
		ID:               uuid.New().String(),
		OrderID:          orderID,
		VariantID:        variantID,
		Status:           BatchStatusPending,
		PackingStatus:    PackingStatusNone,
		Quantity:         plan.Quantity,
		BufferPercentage: plan.BufferPercentage,
		UnitsPerCase:     plan.UnitsPerCase,
		TotalMasterCodes: plan.TotalMasterCodes,
		TotalUniqueCodes: plan.TotalUniqueCodes,
		CreatedBy:        createdBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func (b *Batch) transition(to BatchStatus, now time.Time) error {
	if !CanTransition(b.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
	}
	b.Status = to
	b.UpdatedAt = now
	return nil
}

// IsTerminal reports whether the batch is completed
func (b *Batch) IsTerminal() bool {
	return b.Status == BatchStatusCompleted
}

// IsActive reports whether the batch still blocks a new submission
func (b *Batch) IsActive() bool {
	return slices.Contains(ActiveBatchStatuses(), b.Status)
}

// Enqueue moves a pending or failed batch to queued. A failed batch keeps its
// id and insert cursors so generation resumes from existing rows.
func (b *Batch) Enqueue(now time.Time) error {
	retry := b.Status == BatchStatusFailed
	if err := b.transition(BatchStatusQueued, now); err != nil {
		return err
	}
	b.ErrorMessage = ""
	b.releaseLease()
	b.AddDomainEvent(&BatchQueuedEvent{
		BatchID:  b.ID,
		OrderID:  b.OrderID,
		Retry:    retry,
		QueuedAt: now,
	})
	return nil
}

// LeaseExpired reports whether the generation lease is free at now
func (b *Batch) LeaseExpired(now time.Time) bool {
	return b.LockedUntil == nil || b.LockedUntil.Before(now)
}

// ClaimGeneration takes the generation lease: queued batches move to
// processing, processing batches are re-claimed when the lease expired or is
// already held by workerID.
func (b *Batch) ClaimGeneration(workerID string, until, now time.Time) error {
	switch b.Status {
	case BatchStatusQueued:
		if err := b.transition(BatchStatusProcessing, now); err != nil {
			return err
		}
		b.Attempts++
	case BatchStatusProcessing:
		if b.LockedBy != workerID && !b.LeaseExpired(now) {
			return ErrLeaseHeld
		}
	default:
		return fmt.Errorf("%w: cannot generate codes for %s batch", ErrInvalidTransition, b.Status)
	}

	if b.ProcessingStartedAt == nil {
		b.ProcessingStartedAt = &now
	}
	b.LockedBy = workerID
	b.LockedUntil = &until
	b.UpdatedAt = now
	return nil
}

// GenerationComplete reports whether every planned code row is inserted
func (b *Batch) GenerationComplete() bool {
	return b.MasterInsertedCount >= b.TotalMasterCodes && b.QRInsertedCount >= b.TotalUniqueCodes
}

// MarkGenerated finishes generation with the rendered export file
func (b *Batch) MarkGenerated(file string, now time.Time) error {
	if !b.GenerationComplete() {
		return fmt.Errorf("%w: %d/%d unique codes inserted", ErrInvalidTransition, b.QRInsertedCount, b.TotalUniqueCodes)
	}
	if err := b.transition(BatchStatusGenerated, now); err != nil {
		return err
	}
	b.GeneratedFile = file
	b.ProcessingFinishedAt = &now
	b.releaseLease()
	b.AddDomainEvent(&BatchGeneratedEvent{
		BatchID:          b.ID,
		OrderID:          b.OrderID,
		TotalMasterCodes: b.TotalMasterCodes,
		TotalUniqueCodes: b.TotalUniqueCodes,
		File:             file,
		GeneratedAt:      now,
	})
	return nil
}

// Fail marks a queued or processing batch as failed
func (b *Batch) Fail(message string, now time.Time) error {
	if err := b.transition(BatchStatusFailed, now); err != nil {
		return err
	}
	b.ErrorMessage = message
	b.ProcessingFinishedAt = &now
	b.releaseLease()
	b.AddDomainEvent(&BatchFailedEvent{
		BatchID:  b.ID,
		OrderID:  b.OrderID,
		Reason:   message,
		FailedAt: now,
	})
	return nil
}

// StartPrinting moves a generated batch to printing
func (b *Batch) StartPrinting(now time.Time) error {
	if err := b.transition(BatchStatusPrinting, now); err != nil {
		return err
	}
	b.PrintedAt = &now
	b.AddDomainEvent(&BatchPrintingEvent{
		BatchID:   b.ID,
		OrderID:   b.OrderID,
		PrintedAt: now,
	})
	return nil
}

// StartPacking queues packing. It returns alreadyRunning when packing is
// queued or processing, which callers treat as a non-fatal conflict.
func (b *Batch) StartPacking(now time.Time) (alreadyRunning bool, err error) {
	if !b.Status.AcceptsPacking() {
		return false, fmt.Errorf("%w: batch is %s", ErrPackingNotAllowed, b.Status)
	}
	switch b.PackingStatus {
	case PackingStatusQueued, PackingStatusProcessing:
		return true, nil
	case PackingStatusCompleted:
		return false, nil
	}

	if b.Status == BatchStatusPrinting {
		if err := b.transition(BatchStatusInProduction, now); err != nil {
			return false, err
		}
	}
	b.PackingStatus = PackingStatusQueued
	b.PackingError = ""
	b.PackingFinishedAt = nil
	b.UpdatedAt = now
	b.AddDomainEvent(&PackingQueuedEvent{
		BatchID:  b.ID,
		OrderID:  b.OrderID,
		QueuedAt: now,
	})
	return false, nil
}

// PackingLeaseExpired reports whether the packing lease is free at now
func (b *Batch) PackingLeaseExpired(now time.Time) bool {
	return b.PackingLockedUntil == nil || b.PackingLockedUntil.Before(now)
}

// ClaimPacking takes the packing lease for workerID
func (b *Batch) ClaimPacking(workerID string, until, now time.Time) error {
	switch b.PackingStatus {
	case PackingStatusQueued:
		b.PackingStatus = PackingStatusProcessing
	case PackingStatusProcessing:
		if b.PackingLockedBy != workerID && !b.PackingLeaseExpired(now) {
			return ErrLeaseHeld
		}
	default:
		return fmt.Errorf("%w: packing is %q", ErrInvalidTransition, b.PackingStatus)
	}
	if b.PackingStartedAt == nil {
		b.PackingStartedAt = &now
	}
	b.PackingLockedBy = workerID
	b.PackingLockedUntil = &until
	b.UpdatedAt = now
	return nil
}

// CompletePacking records that no pre-pack rows remain
func (b *Batch) CompletePacking(now time.Time) error {
	if b.PackingStatus != PackingStatusProcessing && b.PackingStatus != PackingStatusQueued {
		return fmt.Errorf("%w: packing is %q", ErrInvalidTransition, b.PackingStatus)
	}
	b.PackingStatus = PackingStatusCompleted
	b.PackingFinishedAt = &now
	b.releasePackingLease()
	b.UpdatedAt = now
	b.AddDomainEvent(&PackingCompletedEvent{
		BatchID:     b.ID,
		OrderID:     b.OrderID,
		CompletedAt: now,
	})
	return nil
}

// FailPacking records an unrecoverable packing error
func (b *Batch) FailPacking(message string, now time.Time) {
	b.PackingStatus = PackingStatusFailed
	b.PackingError = message
	b.PackingFinishedAt = &now
	b.releasePackingLease()
	b.UpdatedAt = now
	b.AddDomainEvent(&PackingFailedEvent{
		BatchID:  b.ID,
		OrderID:  b.OrderID,
		Reason:   message,
		FailedAt: now,
	})
}

// Complete closes the batch after production
func (b *Batch) Complete(packedMaster, packedUnique int64, now time.Time) error {
	if err := b.transition(BatchStatusCompleted, now); err != nil {
		return err
	}
	b.CompletedAt = &now
	b.AddDomainEvent(&ProductionCompletedEvent{
		BatchID:           b.ID,
		OrderID:           b.OrderID,
		PackedMasterCodes: packedMaster,
		PackedUniqueCodes: packedUnique,
		CompletedAt:       now,
	})
	return nil
}

func (b *Batch) releaseLease() {
	b.LockedBy = ""
	b.LockedUntil = nil
}

func (b *Batch) releasePackingLease() {
	b.PackingLockedBy = ""
	b.PackingLockedUntil = nil
}

// AddDomainEvent records an event to be written to the outbox with the batch
func (b *Batch) AddDomainEvent(event DomainEvent) {
	b.DomainEvents = append(b.DomainEvents, event)
}

// ClearDomainEvents drops recorded events after they are persisted
func (b *Batch) ClearDomainEvents() {
	b.DomainEvents = nil
}
