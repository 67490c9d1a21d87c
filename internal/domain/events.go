package domain

import (
	"time"

	"github.com/wms-platform/qrbatch-service/pkg/cloudevents"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// BatchQueuedEvent is published when a batch is queued for generation
type BatchQueuedEvent struct {
	BatchID  string    `json:"batchId"`
	OrderID  string    `json:"orderId"`
	Retry    bool      `json:"retry"`
	QueuedAt time.Time `json:"queuedAt"`
}

func (e *BatchQueuedEvent) EventType() string     { return cloudevents.BatchQueued }
func (e *BatchQueuedEvent) OccurredAt() time.Time { return e.QueuedAt }

// BatchGeneratedEvent is published when every code row and the export exist
type BatchGeneratedEvent struct {
	BatchID          string    `json:"batchId"`
	OrderID          string    `json:"orderId"`
	TotalMasterCodes int       `json:"totalMasterCodes"`
	TotalUniqueCodes int       `json:"totalUniqueCodes"`
	File             string    `json:"file"`
	GeneratedAt      time.Time `json:"generatedAt"`
}

func (e *BatchGeneratedEvent) EventType() string     { return cloudevents.BatchGenerated }
func (e *BatchGeneratedEvent) OccurredAt() time.Time { return e.GeneratedAt }

// BatchFailedEvent is published when generation fails hard
type BatchFailedEvent struct {
	BatchID  string    `json:"batchId"`
	OrderID  string    `json:"orderId"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failedAt"`
}

func (e *BatchFailedEvent) EventType() string     { return cloudevents.BatchGenerationFailed }
func (e *BatchFailedEvent) OccurredAt() time.Time { return e.FailedAt }

// BatchPrintingEvent is published on the first export download
type BatchPrintingEvent struct {
	BatchID   string    `json:"batchId"`
	OrderID   string    `json:"orderId"`
	PrintedAt time.Time `json:"printedAt"`
}

func (e *BatchPrintingEvent) EventType() string     { return cloudevents.BatchPrinted }
func (e *BatchPrintingEvent) OccurredAt() time.Time { return e.PrintedAt }

// PackingQueuedEvent is published when packing starts or is re-queued
type PackingQueuedEvent struct {
	BatchID  string    `json:"batchId"`
	OrderID  string    `json:"orderId"`
	QueuedAt time.Time `json:"queuedAt"`
}

func (e *PackingQueuedEvent) EventType() string     { return cloudevents.PackingQueued }
func (e *PackingQueuedEvent) OccurredAt() time.Time { return e.QueuedAt }

// PackingCompletedEvent is published when no pre-pack rows remain
type PackingCompletedEvent struct {
	BatchID     string    `json:"batchId"`
	OrderID     string    `json:"orderId"`
	CompletedAt time.Time `json:"completedAt"`
}

func (e *PackingCompletedEvent) EventType() string     { return cloudevents.PackingCompleted }
func (e *PackingCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// PackingFailedEvent is published when packing stops on an unrecoverable error
type PackingFailedEvent struct {
	BatchID  string    `json:"batchId"`
	OrderID  string    `json:"orderId"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failedAt"`
}

func (e *PackingFailedEvent) EventType() string     { return cloudevents.PackingFailed }
func (e *PackingFailedEvent) OccurredAt() time.Time { return e.FailedAt }

// ProductionCompletedEvent is consumed by the balance payment workflow
type ProductionCompletedEvent struct {
	BatchID           string    `json:"batchId"`
	OrderID           string    `json:"orderId"`
	PackedMasterCodes int64     `json:"packedMasterCodes"`
	PackedUniqueCodes int64     `json:"packedUniqueCodes"`
	CompletedAt       time.Time `json:"completedAt"`
}

func (e *ProductionCompletedEvent) EventType() string     { return cloudevents.BatchCompleted }
func (e *ProductionCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// ReverseJobCompletedEvent is published when a reverse job finishes
type ReverseJobCompletedEvent struct {
	JobID         string        `json:"jobId"`
	BatchID       string        `json:"batchId"`
	OrderID       string        `json:"orderId"`
	PreparedCount int           `json:"preparedCount"`
	Summary       ResultSummary `json:"summary"`
	CompletedAt   time.Time     `json:"completedAt"`
}

func (e *ReverseJobCompletedEvent) EventType() string     { return cloudevents.ReverseJobCompleted }
func (e *ReverseJobCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// ReverseJobFailedEvent is published when a reverse job fails
type ReverseJobFailedEvent struct {
	JobID    string    `json:"jobId"`
	BatchID  string    `json:"batchId"`
	OrderID  string    `json:"orderId"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failedAt"`
}

func (e *ReverseJobFailedEvent) EventType() string     { return cloudevents.ReverseJobFailed }
func (e *ReverseJobFailedEvent) OccurredAt() time.Time { return e.FailedAt }
