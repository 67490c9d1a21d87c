package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/qrbatch-service/internal/application"
	"github.com/wms-platform/qrbatch-service/pkg/api"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
	"github.com/wms-platform/qrbatch-service/pkg/middleware"
)

type mockBatchAPI struct {
	submitFn      func(ctx context.Context, cmd application.SubmitGenerationCommand) (*application.SubmitBatchResponse, error)
	generateFn    func(ctx context.Context, cmd application.GenerateCodesCommand) (*application.GenerationResult, error)
	retryFn       func(ctx context.Context, cmd application.RetryBatchCommand) (*application.BatchDTO, error)
	downloadFn    func(ctx context.Context, cmd application.DownloadExportCommand) (*application.DownloadResponse, error)
	labelsFn      func(ctx context.Context, query application.RenderLabelsQuery) (*application.LabelSheet, error)
	getFn         func(ctx context.Context, query application.GetBatchQuery) (*application.BatchDTO, error)
	listByOrderFn func(ctx context.Context, query application.ListBatchesByOrderQuery) ([]*application.BatchDTO, error)
	progressFn    func(ctx context.Context, query application.GetBatchQuery) (*application.ProgressDTO, error)
	completeFn    func(ctx context.Context, cmd application.CompleteProductionCommand) (*application.CompleteProductionResponse, error)
	movementsFn   func(ctx context.Context, query application.GetBatchQuery) ([]application.CodeMovementDTO, error)
	validateFn    func(ctx context.Context, cmd application.ValidateBatchCommand) (*application.ValidationReportDTO, error)
}

func (m *mockBatchAPI) SubmitGeneration(ctx context.Context, cmd application.SubmitGenerationCommand) (*application.SubmitBatchResponse, error) {
	if m.submitFn == nil {
		panic("SubmitGeneration not implemented")
	}
	return m.submitFn(ctx, cmd)
}

func (m *mockBatchAPI) GenerateCodes(ctx context.Context, cmd application.GenerateCodesCommand) (*application.GenerationResult, error) {
	if m.generateFn == nil {
		panic("GenerateCodes not implemented")
	}
	return m.generateFn(ctx, cmd)
}

func (m *mockBatchAPI) RetryBatch(ctx context.Context, cmd application.RetryBatchCommand) (*application.BatchDTO, error) {
	if m.retryFn == nil {
		panic("RetryBatch not implemented")
	}
	return m.retryFn(ctx, cmd)
}

func (m *mockBatchAPI) DownloadExport(ctx context.Context, cmd application.DownloadExportCommand) (*application.DownloadResponse, error) {
	if m.downloadFn == nil {
		panic("DownloadExport not implemented")
	}
	return m.downloadFn(ctx, cmd)
}

func (m *mockBatchAPI) RenderLabels(ctx context.Context, query application.RenderLabelsQuery) (*application.LabelSheet, error) {
	if m.labelsFn == nil {
		panic("RenderLabels not implemented")
	}
	return m.labelsFn(ctx, query)
}

func (m *mockBatchAPI) GetBatch(ctx context.Context, query application.GetBatchQuery) (*application.BatchDTO, error) {
	if m.getFn == nil {
		panic("GetBatch not implemented")
	}
	return m.getFn(ctx, query)
}

func (m *mockBatchAPI) ListBatchesByOrder(ctx context.Context, query application.ListBatchesByOrderQuery) ([]*application.BatchDTO, error) {
	if m.listByOrderFn == nil {
		panic("ListBatchesByOrder not implemented")
	}
	return m.listByOrderFn(ctx, query)
}

func (m *mockBatchAPI) GetProgress(ctx context.Context, query application.GetBatchQuery) (*application.ProgressDTO, error) {
	if m.progressFn == nil {
		panic("GetProgress not implemented")
	}
	return m.progressFn(ctx, query)
}

func (m *mockBatchAPI) CompleteProduction(ctx context.Context, cmd application.CompleteProductionCommand) (*application.CompleteProductionResponse, error) {
	if m.completeFn == nil {
		panic("CompleteProduction not implemented")
	}
	return m.completeFn(ctx, cmd)
}

func (m *mockBatchAPI) ListMovements(ctx context.Context, query application.GetBatchQuery) ([]application.CodeMovementDTO, error) {
	if m.movementsFn == nil {
		panic("ListMovements not implemented")
	}
	return m.movementsFn(ctx, query)
}

func (m *mockBatchAPI) ValidateBatch(ctx context.Context, cmd application.ValidateBatchCommand) (*application.ValidationReportDTO, error) {
	if m.validateFn == nil {
		panic("ValidateBatch not implemented")
	}
	return m.validateFn(ctx, cmd)
}

type mockPackingAPI struct {
	startFn   func(ctx context.Context, cmd application.StartPackingCommand) (*application.StartPackingResponse, error)
	triggerFn func(ctx context.Context, cmd application.RunPackingChunkCommand) (*application.PackingChunkResponse, error)
}

func (m *mockPackingAPI) StartPacking(ctx context.Context, cmd application.StartPackingCommand) (*application.StartPackingResponse, error) {
	if m.startFn == nil {
		panic("StartPacking not implemented")
	}
	return m.startFn(ctx, cmd)
}

func (m *mockPackingAPI) RunPackingChunk(ctx context.Context, cmd application.RunPackingChunkCommand) (*application.PackingChunkResponse, error) {
	if m.triggerFn == nil {
		panic("RunPackingChunk not implemented")
	}
	return m.triggerFn(ctx, cmd)
}

type mockReverseJobAPI struct {
	submitFn   func(ctx context.Context, cmd application.SubmitReverseJobCommand) (*application.SubmitReverseJobResponse, error)
	getFn      func(ctx context.Context, query application.GetReverseJobQuery) (*application.JobStatusDTO, error)
	logsFn     func(ctx context.Context, query application.GetReverseJobQuery) ([]application.ReverseJobLogDTO, error)
	preparedFn func(ctx context.Context, query application.GetReverseJobQuery, page api.PageRequest) (*api.PageResponse[application.PreparedCodeDTO], error)
}

func (m *mockReverseJobAPI) SubmitReverseJob(ctx context.Context, cmd application.SubmitReverseJobCommand) (*application.SubmitReverseJobResponse, error) {
	if m.submitFn == nil {
		panic("SubmitReverseJob not implemented")
	}
	return m.submitFn(ctx, cmd)
}

func (m *mockReverseJobAPI) GetReverseJob(ctx context.Context, query application.GetReverseJobQuery) (*application.JobStatusDTO, error) {
	if m.getFn == nil {
		panic("GetReverseJob not implemented")
	}
	return m.getFn(ctx, query)
}

func (m *mockReverseJobAPI) ListReverseJobLogs(ctx context.Context, query application.GetReverseJobQuery) ([]application.ReverseJobLogDTO, error) {
	if m.logsFn == nil {
		panic("ListReverseJobLogs not implemented")
	}
	return m.logsFn(ctx, query)
}

func (m *mockReverseJobAPI) ListPreparedCodes(ctx context.Context, query application.GetReverseJobQuery, page api.PageRequest) (*api.PageResponse[application.PreparedCodeDTO], error) {
	if m.preparedFn == nil {
		panic("ListPreparedCodes not implemented")
	}
	return m.preparedFn(ctx, query, page)
}

type mockFileServer struct {
	verifyFn func(token, key string) error
	openFn   func(ctx context.Context, key string) (io.ReadCloser, error)
}

func (m *mockFileServer) Verify(token, key string) error {
	return m.verifyFn(token, key)
}

func (m *mockFileServer) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return m.openFn(ctx, key)
}

func newTestRouter(batches BatchAPI, packing PackingAPI, jobs ReverseJobAPI, files FileServer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	logger := logging.NewNop()

	v1 := router.Group("/api/v1")
	if files != nil {
		RegisterFileRoutes(v1, files, logger)
	}
	scoped := v1.Group("")
	scoped.Use(middleware.RequireTenantAuth())
	RegisterRoutes(scoped, Services{
		Batches:     batches,
		Packing:     packing,
		ReverseJobs: jobs,
		Logger:      logger,
	})
	return router
}

func performRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.HeaderTenantID, "tenant-1")
	req.Header.Set(middleware.HeaderUserID, "user-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func httptestRecorder(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}
