package handlers

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/qrbatch-service/internal/application"
	"github.com/wms-platform/qrbatch-service/pkg/api"
	"github.com/wms-platform/qrbatch-service/pkg/contracts/openapi"
	apperrors "github.com/wms-platform/qrbatch-service/pkg/errors"
	"github.com/wms-platform/qrbatch-service/pkg/middleware"
)

func contractRouter() *gin.Engine {
	batches := &mockBatchAPI{
		submitFn: func(ctx context.Context, cmd application.SubmitGenerationCommand) (*application.SubmitBatchResponse, error) {
			return &application.SubmitBatchResponse{Message: "Batch queued for generation", BatchID: "b-1", Status: "queued"}, nil
		},
		getFn: func(ctx context.Context, query application.GetBatchQuery) (*application.BatchDTO, error) {
			if query.BatchID == "missing" {
				return nil, apperrors.ErrNotFoundWithID("batch", query.BatchID)
			}
			return &application.BatchDTO{ID: query.BatchID, OrderID: "ORD-1", Status: "generated", Quantity: 100, UnitsPerCase: 10, TotalMasterCodes: 10, TotalUniqueCodes: 100}, nil
		},
		listByOrderFn: func(ctx context.Context, query application.ListBatchesByOrderQuery) ([]*application.BatchDTO, error) {
			return []*application.BatchDTO{{ID: "b-1", OrderID: query.OrderID, Status: "completed"}}, nil
		},
		generateFn: func(ctx context.Context, cmd application.GenerateCodesCommand) (*application.GenerationResult, error) {
			return &application.GenerationResult{BatchID: cmd.BatchID, Status: "processing", HasMore: true, InsertedUnique: 40, TotalUnique: 100}, nil
		},
		progressFn: func(ctx context.Context, query application.GetBatchQuery) (*application.ProgressDTO, error) {
			return &application.ProgressDTO{TotalUniqueCodes: 100, PackedUniqueCodes: 100, UniqueProgressPercentage: 100, Status: "in_production", PackingStatus: "completed"}, nil
		},
		downloadFn: func(ctx context.Context, cmd application.DownloadExportCommand) (*application.DownloadResponse, error) {
			return &application.DownloadResponse{URL: "http://localhost/files/batches/b-1/codes.xlsx?token=t", Status: "printing",
				Print: &application.PrintTransitionDTO{MasterPrinted: 10, UniquePrinted: 100}}, nil
		},
		labelsFn: func(ctx context.Context, query application.RenderLabelsQuery) (*application.LabelSheet, error) {
			return &application.LabelSheet{FileName: "b-1-cases-1-2.pdf", Content: []byte("%PDF-1.3")}, nil
		},
		completeFn: func(ctx context.Context, cmd application.CompleteProductionCommand) (*application.CompleteProductionResponse, error) {
			return &application.CompleteProductionResponse{PackedUniqueCodes: 100, TotalUniqueCodes: 100}, nil
		},
		movementsFn: func(ctx context.Context, query application.GetBatchQuery) ([]application.CodeMovementDTO, error) {
			return []application.CodeMovementDTO{{ID: "m-1", CodeKind: "unique", FromStatus: "printed", ToStatus: "packed", Count: 100}}, nil
		},
		validateFn: func(ctx context.Context, cmd application.ValidateBatchCommand) (*application.ValidationReportDTO, error) {
			return &application.ValidationReportDTO{ID: "r-1", BatchID: cmd.BatchID, Master: map[string]int64{"packed": 10}, Valid: true}, nil
		},
	}
	packing := &mockPackingAPI{
		startFn: func(ctx context.Context, cmd application.StartPackingCommand) (*application.StartPackingResponse, error) {
			return &application.StartPackingResponse{Message: "Packing started", ProgressDTO: &application.ProgressDTO{PackingStatus: "queued"}}, nil
		},
		triggerFn: func(ctx context.Context, cmd application.RunPackingChunkCommand) (*application.PackingChunkResponse, error) {
			return &application.PackingChunkResponse{Message: "No batches to process"}, nil
		},
	}
	jobs := &mockReverseJobAPI{
		submitFn: func(ctx context.Context, cmd application.SubmitReverseJobCommand) (*application.SubmitReverseJobResponse, error) {
			return &application.SubmitReverseJobResponse{JobID: "j-1", ExcludeCount: 1}, nil
		},
		getFn: func(ctx context.Context, query application.GetReverseJobQuery) (*application.JobStatusDTO, error) {
			return &application.JobStatusDTO{JobID: query.JobID, BatchID: "b-1", OrderID: "ORD-1", Status: "queued"}, nil
		},
		logsFn: func(ctx context.Context, query application.GetReverseJobQuery) ([]application.ReverseJobLogDTO, error) {
			return []application.ReverseJobLogDTO{{Level: "info", Message: "Job queued", Data: map[string]int{"excluded": 1}}}, nil
		},
		preparedFn: func(ctx context.Context, query application.GetReverseJobQuery, page api.PageRequest) (*api.PageResponse[application.PreparedCodeDTO], error) {
			return &api.PageResponse[application.PreparedCodeDTO]{Data: []application.PreparedCodeDTO{{Code: "U-1", Sequence: 1, CaseNumber: 1}}, Page: 1, PageSize: 20, TotalItems: 1, TotalPages: 1}, nil
		},
	}
	return newTestRouter(batches, packing, jobs, nil)
}

func TestResponsesMatchOpenAPIContract(t *testing.T) {
	validator, err := openapi.NewValidator(OpenAPIDocument)
	require.NoError(t, err)
	router := contractRouter()

	tests := []struct {
		method   string
		path     string
		body     string
		wantCode int
	}{
		{http.MethodPost, "/api/v1/batches", `{"orderId":"ORD-1","quantity":100,"bufferPercentage":5,"unitsPerCase":10}`, http.StatusAccepted},
		{http.MethodGet, "/api/v1/batches/b-1", "", http.StatusOK},
		{http.MethodGet, "/api/v1/batches/missing", "", http.StatusNotFound},
		{http.MethodPost, "/api/v1/batches/b-1/generate", "", http.StatusOK},
		{http.MethodGet, "/api/v1/batches/b-1/progress", "", http.StatusOK},
		{http.MethodGet, "/api/v1/batches/b-1/download", "", http.StatusOK},
		{http.MethodGet, "/api/v1/batches/b-1/labels?fromCase=1&toCase=2", "", http.StatusOK},
		{http.MethodPost, "/api/v1/batches/b-1/packing", "", http.StatusAccepted},
		{http.MethodPost, "/api/v1/batches/b-1/complete-production", "", http.StatusOK},
		{http.MethodGet, "/api/v1/batches/b-1/movements", "", http.StatusOK},
		{http.MethodPost, "/api/v1/batches/b-1/validation-reports", "", http.StatusCreated},
		{http.MethodGet, "/api/v1/orders/ORD-1/batches", "", http.StatusOK},
		{http.MethodPost, "/api/v1/packing/trigger", "", http.StatusOK},
		{http.MethodPost, "/api/v1/reverse-jobs", `{"batch_id":"b-1","order_id":"ORD-1","manufacturer_org_id":"M-1","exclude_codes":["U-9"]}`, http.StatusAccepted},
		{http.MethodGet, "/api/v1/reverse-jobs/j-1", "", http.StatusOK},
		{http.MethodGet, "/api/v1/reverse-jobs/j-1/logs", "", http.StatusOK},
		{http.MethodGet, "/api/v1/reverse-jobs/j-1/prepared-codes?page=1&pageSize=20", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := performRequest(router, tt.method, tt.path, tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			req, _ := http.NewRequest(tt.method, "http://localhost"+tt.path, bytes.NewBufferString(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			req.Header.Set(middleware.HeaderTenantID, "tenant-1")

			ctx := context.Background()
			assert.NoError(t, validator.ValidateRequest(ctx, req))
			assert.NoError(t, validator.ValidateResponse(ctx, req, rec.Code, rec.Header(), rec.Body.Bytes()))
		})
	}
}

func TestEveryRouteIsDocumented(t *testing.T) {
	validator, err := openapi.NewValidator(OpenAPIDocument)
	require.NoError(t, err)

	documented := make(map[string]bool)
	for _, p := range validator.Paths() {
		documented[p] = true
	}

	engine := newTestRouter(&mockBatchAPI{}, &mockPackingAPI{}, &mockReverseJobAPI{}, nil)
	for _, r := range engine.Routes() {
		assert.True(t, documented[ginPathToOpenAPI(r.Path)], "undocumented route %s %s", r.Method, r.Path)
	}
}

// ginPathToOpenAPI rewrites /batches/:batchId as /batches/{batchId}
func ginPathToOpenAPI(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, ":") {
			parts[i] = "{" + p[1:] + "}"
		}
	}
	return strings.Join(parts, "/")
}
