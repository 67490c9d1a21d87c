package dispatch

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"

	"github.com/wms-platform/qrbatch-service/internal/workflows"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
	"github.com/wms-platform/qrbatch-service/pkg/metrics"
	"github.com/wms-platform/qrbatch-service/pkg/temporal"
)

// Workflow id prefixes. One id per batch or job, so a second dispatch joins
// the running execution.
const (
	GenerationWorkflowPrefix = "qr-generation-"
	PackingWorkflowPrefix    = "qr-packing-"
	ReverseJobWorkflowPrefix = "qr-reverse-"
)

// WorkflowStarter starts a workflow execution
type WorkflowStarter interface {
	StartWorkflow(ctx context.Context, workflowID, taskQueue, workflowName string, args ...interface{}) (client.WorkflowRun, error)
}

// TemporalDispatcher implements application.TaskDispatcher on Temporal
type TemporalDispatcher struct {
	starter   WorkflowStarter
	taskQueue string
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewTemporalDispatcher creates a dispatcher on the service task queue
func NewTemporalDispatcher(starter WorkflowStarter, logger *logging.Logger, m *metrics.Metrics) *TemporalDispatcher {
	return &TemporalDispatcher{
		starter:   starter,
		taskQueue: temporal.TaskQueues.QRBatch,
		logger:    logger,
		metrics:   m,
	}
}

// DispatchGeneration starts or joins the generation workflow of a batch
func (d *TemporalDispatcher) DispatchGeneration(ctx context.Context, batchID string) error {
	return d.start(ctx, GenerationWorkflowPrefix+batchID, temporal.WorkflowNames.QRGeneration, batchID)
}

// DispatchPacking starts or joins the packing workflow of a batch
func (d *TemporalDispatcher) DispatchPacking(ctx context.Context, batchID string) error {
	return d.start(ctx, PackingWorkflowPrefix+batchID, temporal.WorkflowNames.QRPacking, batchID)
}

// DispatchReverseJob starts or joins the workflow of a reverse job
func (d *TemporalDispatcher) DispatchReverseJob(ctx context.Context, jobID string) error {
	return d.start(ctx, ReverseJobWorkflowPrefix+jobID, temporal.WorkflowNames.ReverseJob, jobID)
}

func (d *TemporalDispatcher) start(ctx context.Context, workflowID, workflowName, id string) error {
	run, err := d.starter.StartWorkflow(ctx, workflowID, d.taskQueue, workflowName, workflows.ChunkWorkflowInput{ID: id})
	d.metrics.RecordWorkflowDispatched(workflowName, err == nil)
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Error("Failed to dispatch workflow",
			"workflowId", workflowID,
			"workflowType", workflowName,
		)
		return fmt.Errorf("failed to start %s: %w", workflowID, err)
	}
	d.logger.WorkflowDispatched(ctx, workflowName, workflowID, run.GetRunID())
	return nil
}
