package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
)

const (
	// MaxChunksPerRun bounds history size; the loop continues as new after it
	MaxChunksPerRun = 200

	// LeaseHeldBackoff is the pause after a chunk found another worker's lease
	LeaseHeldBackoff = 5 * time.Second

	// ChunkActivityTimeout bounds a single chunk activity
	ChunkActivityTimeout = 5 * time.Minute

	// GenerationActivityTimeout bounds a generation chunk. The last chunk also
	// writes the export, heartbeating once per page.
	GenerationActivityTimeout = 30 * time.Minute

	// ChunkHeartbeatTimeout is the heartbeat window of chunk activities
	ChunkHeartbeatTimeout = time.Minute
)

// ActivityNames are the registered chunk activity names
var ActivityNames = struct {
	GenerateChunk   string
	PackingChunk    string
	ReverseJobChunk string
}{
	GenerateChunk:   "GenerateChunk",
	PackingChunk:    "PackingChunk",
	ReverseJobChunk: "ReverseJobChunk",
}

// Non-retryable error types raised by chunk activities
const (
	ErrTypeValidation = "ValidationError"
	ErrTypeNotFound   = "NotFoundError"
	ErrTypeConflict   = "ConflictError"
)

// ChunkWorkflowInput identifies the batch or job a loop drives. The counters
// carry over continue-as-new runs.
type ChunkWorkflowInput struct {
	ID              string `json:"id"`
	ChunksProcessed int    `json:"chunksProcessed"`
	LeaseWaits      int    `json:"leaseWaits"`
}

// ChunkOutcome is what a chunk activity reports back
type ChunkOutcome struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	HasMore   bool   `json:"hasMore"`
	LeaseHeld bool   `json:"leaseHeld"`
	Failed    bool   `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// ChunkWorkflowResult summarizes a finished loop
type ChunkWorkflowResult struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	ChunksProcessed int    `json:"chunksProcessed"`
	LeaseWaits      int    `json:"leaseWaits"`
	Failed          bool   `json:"failed"`
	Error           string `json:"error,omitempty"`
}

// chunkRetryPolicy retries transient store failures; state errors are final
func chunkRetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    10,
		NonRetryableErrorTypes: []string{
			ErrTypeValidation,
			ErrTypeNotFound,
			ErrTypeConflict,
		},
	}
}
