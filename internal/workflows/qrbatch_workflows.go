package workflows

import (
	"go.temporal.io/sdk/workflow"
)

// QRGenerationWorkflow inserts a batch's codes chunk by chunk and renders
// its export once every code exists
func QRGenerationWorkflow(ctx workflow.Context, input ChunkWorkflowInput) (*ChunkWorkflowResult, error) {
	workflow.GetLogger(ctx).Info("Starting QR generation workflow", "batchId", input.ID, "chunksSoFar", input.ChunksProcessed)
	return runChunkLoop(ctx, ActivityNames.GenerateChunk, input, QRGenerationWorkflow)
}

// QRPackingWorkflow moves a batch's printed codes to packed chunk by chunk
func QRPackingWorkflow(ctx workflow.Context, input ChunkWorkflowInput) (*ChunkWorkflowResult, error) {
	workflow.GetLogger(ctx).Info("Starting QR packing workflow", "batchId", input.ID, "chunksSoFar", input.ChunksProcessed)
	return runChunkLoop(ctx, ActivityNames.PackingChunk, input, QRPackingWorkflow)
}

// ReverseJobWorkflow prepares the non-excluded codes of a reverse job chunk
// by chunk
func ReverseJobWorkflow(ctx workflow.Context, input ChunkWorkflowInput) (*ChunkWorkflowResult, error) {
	workflow.GetLogger(ctx).Info("Starting reverse job workflow", "jobId", input.ID, "chunksSoFar", input.ChunksProcessed)
	return runChunkLoop(ctx, ActivityNames.ReverseJobChunk, input, ReverseJobWorkflow)
}
