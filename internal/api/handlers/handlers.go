package handlers

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/qrbatch-service/internal/application"
	"github.com/wms-platform/qrbatch-service/pkg/api"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
	"github.com/wms-platform/qrbatch-service/pkg/middleware"
)

// BatchAPI is the batch lifecycle surface the handlers call
type BatchAPI interface {
	SubmitGeneration(ctx context.Context, cmd application.SubmitGenerationCommand) (*application.SubmitBatchResponse, error)
	GenerateCodes(ctx context.Context, cmd application.GenerateCodesCommand) (*application.GenerationResult, error)
	RetryBatch(ctx context.Context, cmd application.RetryBatchCommand) (*application.BatchDTO, error)
	DownloadExport(ctx context.Context, cmd application.DownloadExportCommand) (*application.DownloadResponse, error)
	RenderLabels(ctx context.Context, query application.RenderLabelsQuery) (*application.LabelSheet, error)
	GetBatch(ctx context.Context, query application.GetBatchQuery) (*application.BatchDTO, error)
	ListBatchesByOrder(ctx context.Context, query application.ListBatchesByOrderQuery) ([]*application.BatchDTO, error)
	GetProgress(ctx context.Context, query application.GetBatchQuery) (*application.ProgressDTO, error)
	CompleteProduction(ctx context.Context, cmd application.CompleteProductionCommand) (*application.CompleteProductionResponse, error)
	ListMovements(ctx context.Context, query application.GetBatchQuery) ([]application.CodeMovementDTO, error)
	ValidateBatch(ctx context.Context, cmd application.ValidateBatchCommand) (*application.ValidationReportDTO, error)
}

// PackingAPI is the packing worker surface
type PackingAPI interface {
	StartPacking(ctx context.Context, cmd application.StartPackingCommand) (*application.StartPackingResponse, error)
	RunPackingChunk(ctx context.Context, cmd application.RunPackingChunkCommand) (*application.PackingChunkResponse, error)
}

// ReverseJobAPI is the reverse job surface
type ReverseJobAPI interface {
	SubmitReverseJob(ctx context.Context, cmd application.SubmitReverseJobCommand) (*application.SubmitReverseJobResponse, error)
	GetReverseJob(ctx context.Context, query application.GetReverseJobQuery) (*application.JobStatusDTO, error)
	ListReverseJobLogs(ctx context.Context, query application.GetReverseJobQuery) ([]application.ReverseJobLogDTO, error)
	ListPreparedCodes(ctx context.Context, query application.GetReverseJobQuery, page api.PageRequest) (*api.PageResponse[application.PreparedCodeDTO], error)
}

// FileServer serves stored exports behind signed tokens
type FileServer interface {
	Verify(token, key string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

func respondError(c *gin.Context, logger *logging.Logger, err error) {
	middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
}

// actor is the calling user from the tenant headers
func actor(c *gin.Context) string {
	if tc := middleware.GetTenantContext(c); tc != nil {
		return tc.UserID
	}
	return ""
}
