package application

// SubmitGenerationCommand requests a new batch for an order
type SubmitGenerationCommand struct {
	OrderID          string
	VariantID        string
	Quantity         int
	BufferPercentage int
	UnitsPerCase     int
	RequestedBy      string
}

// GenerateCodesCommand inserts one chunk of codes
type GenerateCodesCommand struct {
	BatchID  string
	WorkerID string
	// Progress, when set, is called after each page written to the export
	Progress func(done, total int)
}

// RetryBatchCommand re-queues a failed batch
type RetryBatchCommand struct {
	BatchID string
}

// DownloadExportCommand returns the export link and marks the batch printed
type DownloadExportCommand struct {
	BatchID string
	Actor   string
}

// CompleteProductionCommand closes a fully packed batch
type CompleteProductionCommand struct {
	BatchID string
	Actor   string
}

// ValidateBatchCommand stores a consistency report
type ValidateBatchCommand struct {
	BatchID string
	Actor   string
}

// StartPackingCommand queues the packing worker for a batch
type StartPackingCommand struct {
	BatchID string
}

// RunPackingChunkCommand advances at most one chunk. An empty BatchID picks
// the oldest batch waiting for packing.
type RunPackingChunkCommand struct {
	BatchID  string
	WorkerID string
}

// SubmitReverseJobCommand requests preparation of the non-excluded codes
type SubmitReverseJobCommand struct {
	BatchID           string
	OrderID           string
	ManufacturerOrgID string
	RequestedBy       string
	ExcludeCodes      []string
	VariantID         string
	CaseNumbers       []int
}

// ProcessReverseJobCommand processes one candidate chunk
type ProcessReverseJobCommand struct {
	JobID    string
	WorkerID string
}

// GetBatchQuery retrieves a batch by ID
type GetBatchQuery struct {
	BatchID string
}

// RenderLabelsQuery selects the cases [FromCase, ToCase] of a batch
type RenderLabelsQuery struct {
	BatchID  string
	FromCase int
	ToCase   int
}

// ListBatchesByOrderQuery lists every batch of an order
type ListBatchesByOrderQuery struct {
	OrderID string
}

// GetReverseJobQuery retrieves a reverse job by ID
type GetReverseJobQuery struct {
	JobID string
}
