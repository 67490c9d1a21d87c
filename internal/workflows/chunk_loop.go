package workflows

import (
	"time"

	"go.temporal.io/sdk/workflow"
)

// runChunkLoop executes activityName until the work reports no more chunks,
// a hard failure, or MaxChunksPerRun chunks ran in this execution. In the
// last case it continues as new through next.
func runChunkLoop(ctx workflow.Context, activityName string, input ChunkWorkflowInput, next interface{}) (*ChunkWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: activityTimeout(activityName),
		HeartbeatTimeout:    ChunkHeartbeatTimeout,
		RetryPolicy:         chunkRetryPolicy(),
	})

	result := &ChunkWorkflowResult{
		ID:              input.ID,
		ChunksProcessed: input.ChunksProcessed,
		LeaseWaits:      input.LeaseWaits,
	}

	for i := 0; i < MaxChunksPerRun; i++ {
		var outcome ChunkOutcome
		if err := workflow.ExecuteActivity(ctx, activityName, input.ID).Get(ctx, &outcome); err != nil {
			logger.Error("Chunk activity failed", "activity", activityName, "id", input.ID, "error", err)
			result.Error = err.Error()
			return result, err
		}
		result.ChunksProcessed++
		result.Status = outcome.Status

		if outcome.Failed {
			logger.Warn("Work failed", "activity", activityName, "id", input.ID, "error", outcome.Error)
			result.Failed = true
			result.Error = outcome.Error
			return result, nil
		}
		if !outcome.HasMore {
			logger.Info("Work finished", "activity", activityName, "id", input.ID, "chunks", result.ChunksProcessed)
			return result, nil
		}
		if outcome.LeaseHeld {
			result.LeaseWaits++
			if err := workflow.Sleep(ctx, LeaseHeldBackoff); err != nil {
				return result, err
			}
		}
	}

	logger.Info("Continuing as new", "activity", activityName, "id", input.ID, "chunks", result.ChunksProcessed)
	return result, workflow.NewContinueAsNewError(ctx, next, ChunkWorkflowInput{
		ID:              input.ID,
		ChunksProcessed: result.ChunksProcessed,
		LeaseWaits:      result.LeaseWaits,
	})
}

func activityTimeout(activityName string) time.Duration {
	if activityName == ActivityNames.GenerateChunk {
		return GenerationActivityTimeout
	}
	return ChunkActivityTimeout
}
