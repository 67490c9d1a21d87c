package application

import (
	"time"

	"github.com/wms-platform/qrbatch-service/internal/domain"
)

// BatchDTO represents a batch in responses
type BatchDTO struct {
	ID                   string     `json:"id"`
	OrderID              string     `json:"orderId"`
	VariantID            string     `json:"variantId,omitempty"`
	Status               string     `json:"status"`
	PackingStatus        string     `json:"packingStatus,omitempty"`
	Quantity             int        `json:"quantity"`
	BufferPercentage     int        `json:"bufferPercentage"`
	UnitsPerCase         int        `json:"unitsPerCase"`
	TotalMasterCodes     int        `json:"totalMasterCodes"`
	TotalUniqueCodes     int        `json:"totalUniqueCodes"`
	QRInsertedCount      int        `json:"qrInsertedCount"`
	MasterInsertedCount  int        `json:"masterInsertedCount"`
	GeneratedFile        string     `json:"generatedFile,omitempty"`
	ErrorMessage         string     `json:"errorMessage,omitempty"`
	PackingError         string     `json:"packingError,omitempty"`
	Attempts             int        `json:"attempts"`
	ProcessingStartedAt  *time.Time `json:"processingStartedAt,omitempty"`
	ProcessingFinishedAt *time.Time `json:"processingFinishedAt,omitempty"`
	PrintedAt            *time.Time `json:"printedAt,omitempty"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
	CreatedBy            string     `json:"createdBy,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// SubmitBatchResponse is returned when generation is queued
type SubmitBatchResponse struct {
	Message string `json:"message"`
	BatchID string `json:"batchId"`
	Status  string `json:"status"`
}

// GenerationResult reports one generation chunk
type GenerationResult struct {
	BatchID        string `json:"batchId"`
	Status         string `json:"status"`
	HasMore        bool   `json:"hasMore"`
	LeaseHeld      bool   `json:"leaseHeld,omitempty"`
	InsertedUnique int    `json:"insertedUnique"`
	TotalUnique    int    `json:"totalUnique"`
	Failed         bool   `json:"failed,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ProgressDTO is the packing progress readout
type ProgressDTO struct {
	TotalMasterCodes         int64  `json:"total_master_codes"`
	PackedMasterCodes        int64  `json:"packed_master_codes"`
	TotalUniqueCodes         int64  `json:"total_unique_codes"`
	PackedUniqueCodes        int64  `json:"packed_unique_codes"`
	MasterProgressPercentage int    `json:"master_progress_percentage"`
	UniqueProgressPercentage int    `json:"unique_progress_percentage"`
	Status                   string `json:"status"`
	PackingStatus            string `json:"packing_status"`
	QRInsertedCount          int    `json:"qr_inserted_count"`
}

// PrintTransitionDTO describes how the generated -> printing flip ran
type PrintTransitionDTO struct {
	Fallback      bool  `json:"fallback"`
	FailedChunks  int   `json:"failedChunks"`
	MasterPrinted int64 `json:"masterPrinted"`
	UniquePrinted int64 `json:"uniquePrinted"`
}

// DownloadResponse carries the signed export link
type DownloadResponse struct {
	URL       string              `json:"url"`
	ExpiresAt time.Time           `json:"expiresAt"`
	Status    string              `json:"status"`
	Print     *PrintTransitionDTO `json:"print,omitempty"`
}

// LabelSheet is a rendered PDF of printable labels
type LabelSheet struct {
	FileName string
	Content  []byte
}

// StartPackingResponse is returned by StartPacking
type StartPackingResponse struct {
	Message           string `json:"message"`
	AlreadyInProgress bool   `json:"alreadyInProgress"`
	*ProgressDTO
}

// PackingChunkResponse is returned by the packing trigger
type PackingChunkResponse struct {
	Message   string `json:"message,omitempty"`
	BatchID   string `json:"batchId,omitempty"`
	HasMore   bool   `json:"hasMore"`
	LeaseHeld bool   `json:"leaseHeld,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
	Error     string `json:"error,omitempty"`
	*ProgressDTO
}

// CompleteProductionResponse reports the production close-out
type CompleteProductionResponse struct {
	PackedMasterCodes     int64 `json:"packed_master_codes"`
	TotalMasterCodes      int64 `json:"total_master_codes"`
	PackedUniqueCodes     int64 `json:"packed_unique_codes"`
	TotalUniqueCodes      int64 `json:"total_unique_codes"`
	BalancePaymentCreated bool  `json:"balance_payment_created"`
}

// CodeMovementDTO represents an audit row
type CodeMovementDTO struct {
	ID         string    `json:"id"`
	CodeKind   string    `json:"codeKind"`
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus"`
	Count      int64     `json:"count"`
	Actor      string    `json:"actor"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurredAt"`
}

// ValidationReportDTO represents a stored validation report
type ValidationReportDTO struct {
	ID          string           `json:"id"`
	BatchID     string           `json:"batchId"`
	BatchStatus string           `json:"batchStatus"`
	Master      map[string]int64 `json:"master"`
	Unique      map[string]int64 `json:"unique"`
	Violations  []string         `json:"violations"`
	Valid       bool             `json:"valid"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// SubmitReverseJobResponse is returned when a reverse job is queued
type SubmitReverseJobResponse struct {
	JobID        string `json:"job_id"`
	ExcludeCount int    `json:"exclude_count"`
}

// JobStatusDTO is the reverse job readout clients poll
type JobStatusDTO struct {
	JobID         string                `json:"job_id"`
	BatchID       string                `json:"batch_id"`
	OrderID       string                `json:"order_id"`
	Status        string                `json:"status"`
	Progress      int                   `json:"progress"`
	PreparedCount int                   `json:"prepared_count"`
	ResultSummary *domain.ResultSummary `json:"result_summary,omitempty"`
	ErrorMessage  string                `json:"error_message,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// ReverseJobChunkResult reports one reverse job chunk
type ReverseJobChunkResult struct {
	JobID     string `json:"jobId"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	HasMore   bool   `json:"hasMore"`
	LeaseHeld bool   `json:"leaseHeld,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ReverseJobLogDTO represents a reverse job log line
type ReverseJobLogDTO struct {
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]int `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// PreparedCodeDTO represents a prepared code
type PreparedCodeDTO struct {
	Code       string    `json:"code"`
	Sequence   int       `json:"sequence"`
	CaseNumber int       `json:"case_number"`
	VariantID  string    `json:"variant_id,omitempty"`
	PreparedAt time.Time `json:"prepared_at"`
}
