package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/qrbatch-service/internal/domain"
	"github.com/wms-platform/qrbatch-service/pkg/cloudevents"
	apperrors "github.com/wms-platform/qrbatch-service/pkg/errors"
	"github.com/wms-platform/qrbatch-service/pkg/tenant"
)

func requireHTTPStatus(t *testing.T, err error, status int) *apperrors.AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %T: %v", err, err)
	assert.Equal(t, status, appErr.HTTPStatus)
	return appErr
}

func submitCommand(orderID string) SubmitGenerationCommand {
	return SubmitGenerationCommand{
		OrderID:      orderID,
		VariantID:    "VAR-1",
		Quantity:     100,
		UnitsPerCase: 10,
		RequestedBy:  "user-1",
	}
}

func TestBatchService_SubmitGeneration(t *testing.T) {
	ctx := context.Background()

	t.Run("queues batch and dispatches generation", func(t *testing.T) {
		env := newTestEnv(testOptions())

		resp, err := env.batchService.SubmitGeneration(ctx, submitCommand("ORD-001"))

		require.NoError(t, err)
		assert.Equal(t, "queued", resp.Status)
		assert.Equal(t, []string{resp.BatchID}, env.dispatcher.generation)

		stored := env.batches.Get(resp.BatchID)
		require.NotNil(t, stored)
		assert.Equal(t, 100, stored.TotalUniqueCodes)
		assert.Equal(t, 10, stored.TotalMasterCodes)
		assert.Contains(t, env.batches.EventTypes(), cloudevents.BatchQueued)
	})

	t.Run("rejects a second active batch for the order", func(t *testing.T) {
		env := newTestEnv(testOptions())
		first, err := env.batchService.SubmitGeneration(ctx, submitCommand("ORD-001"))
		require.NoError(t, err)

		_, err = env.batchService.SubmitGeneration(ctx, submitCommand("ORD-001"))

		appErr := requireHTTPStatus(t, err, http.StatusConflict)
		assert.Equal(t, first.BatchID, appErr.Details["batchId"])
		assert.Equal(t, "queued", appErr.Details["status"])
	})

	t.Run("invalid quantity is a validation error", func(t *testing.T) {
		env := newTestEnv(testOptions())
		cmd := submitCommand("ORD-001")
		cmd.Quantity = 0

		_, err := env.batchService.SubmitGeneration(ctx, cmd)

		requireHTTPStatus(t, err, http.StatusBadRequest)
	})

	t.Run("dispatch failure still accepts the batch", func(t *testing.T) {
		env := newTestEnv(testOptions())
		env.dispatcher.Err = errors.New("temporal unavailable")

		resp, err := env.batchService.SubmitGeneration(ctx, submitCommand("ORD-001"))

		require.NoError(t, err)
		assert.Equal(t, domain.BatchStatusQueued, env.batches.Get(resp.BatchID).Status)
	})
}

func TestBatchService_GenerateCodes(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts chunks until the export is written", func(t *testing.T) {
		opts := testOptions()
		opts.GenerationChunkSize = 40
		env := newTestEnv(opts)
		sub, err := env.batchService.SubmitGeneration(ctx, submitCommand("ORD-001"))
		require.NoError(t, err)

		var results []*GenerationResult
		for i := 0; i < 10; i++ {
			res, err := env.batchService.GenerateCodes(ctx, GenerateCodesCommand{BatchID: sub.BatchID, WorkerID: "worker-1"})
			require.NoError(t, err)
			results = append(results, res)
			if !res.HasMore {
				break
			}
		}

		require.Len(t, results, 3)
		assert.Equal(t, 40, results[0].InsertedUnique)
		assert.Equal(t, 80, results[1].InsertedUnique)
		assert.Equal(t, "generated", results[2].Status)

		stored := env.batches.Get(sub.BatchID)
		assert.Equal(t, domain.BatchStatusGenerated, stored.Status)
		assert.Equal(t, ExportKey(sub.BatchID, "xlsx"), stored.GeneratedFile)
		assert.Empty(t, stored.LockedBy)
		assert.Equal(t, 1, stored.Attempts)
		assert.Contains(t, env.files.files, stored.GeneratedFile)

		uniques := env.codes.Uniques(sub.BatchID)
		require.Len(t, uniques, 100)
		seen := make(map[string]bool)
		for i, c := range uniques {
			assert.Equal(t, i+1, c.Sequence)
			assert.False(t, seen[c.Code], "duplicate code %s", c.Code)
			seen[c.Code] = true
		}
	})

	t.Run("generated batch is not claimed again", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusGenerated, domain.PackingStatusNone, domain.CodeStatusGenerated)

		res, err := env.batchService.GenerateCodes(ctx, GenerateCodesCommand{BatchID: b.ID, WorkerID: "worker-1"})

		require.NoError(t, err)
		assert.False(t, res.HasMore)
		assert.Equal(t, "generated", res.Status)
		assert.Equal(t, 0, env.exporter.exported)
	})

	t.Run("export reads codes one page at a time", func(t *testing.T) {
		opts := testOptions()
		opts.GenerationChunkSize = 1000
		opts.ExportPageSize = 30
		env := newTestEnv(opts)
		sub, err := env.batchService.SubmitGeneration(ctx, submitCommand("ORD-001"))
		require.NoError(t, err)

		var reported [][2]int
		res, err := env.batchService.GenerateCodes(ctx, GenerateCodesCommand{
			BatchID:  sub.BatchID,
			WorkerID: "worker-1",
			Progress: func(done, total int) { reported = append(reported, [2]int{done, total}) },
		})

		require.NoError(t, err)
		assert.Equal(t, "generated", res.Status)
		assert.Equal(t, [][2]int{{10, 110}, {40, 110}, {70, 110}, {100, 110}, {110, 110}}, reported)
		// one page of masters and four of uniques, each kind ended by an empty page
		assert.Equal(t, 7, env.codes.listCalls)

		stored := env.batches.Get(sub.BatchID)
		lines := strings.Count(string(env.files.files[stored.GeneratedFile]), "\n")
		assert.Equal(t, 110, lines)
	})

	t.Run("failed export write leaves the batch processing", func(t *testing.T) {
		opts := testOptions()
		opts.GenerationChunkSize = 1000
		env := newTestEnv(opts)
		env.files.WriteFunc = func(ctx context.Context, key string, write func(io.Writer) error) error {
			return fmt.Errorf("%w: disk full", domain.ErrTransientStore)
		}
		sub, err := env.batchService.SubmitGeneration(ctx, submitCommand("ORD-001"))
		require.NoError(t, err)

		_, err = env.batchService.GenerateCodes(ctx, GenerateCodesCommand{BatchID: sub.BatchID, WorkerID: "worker-1"})

		require.Error(t, err)
		stored := env.batches.Get(sub.BatchID)
		assert.Equal(t, domain.BatchStatusProcessing, stored.Status)
		assert.Empty(t, stored.GeneratedFile)
	})

	t.Run("live lease of another worker is reported", func(t *testing.T) {
		opts := testOptions()
		opts.GenerationChunkSize = 40
		env := newTestEnv(opts)
		sub, err := env.batchService.SubmitGeneration(ctx, submitCommand("ORD-001"))
		require.NoError(t, err)
		_, err = env.batchService.GenerateCodes(ctx, GenerateCodesCommand{BatchID: sub.BatchID, WorkerID: "worker-1"})
		require.NoError(t, err)

		res, err := env.batchService.GenerateCodes(ctx, GenerateCodesCommand{BatchID: sub.BatchID, WorkerID: "worker-2"})

		require.NoError(t, err)
		assert.True(t, res.LeaseHeld)
		assert.True(t, res.HasMore)
		assert.Equal(t, 40, env.batches.Get(sub.BatchID).QRInsertedCount)
	})

	t.Run("transient store error leaves the batch processing", func(t *testing.T) {
		env := newTestEnv(testOptions())
		sub, err := env.batchService.SubmitGeneration(ctx, submitCommand("ORD-001"))
		require.NoError(t, err)
		env.codes.InsertUniqueCodesFunc = func(ctx context.Context, codes []domain.UniqueCode) error {
			return fmt.Errorf("%w: socket timeout", domain.ErrTransientStore)
		}

		_, err = env.batchService.GenerateCodes(ctx, GenerateCodesCommand{BatchID: sub.BatchID, WorkerID: "worker-1"})

		requireHTTPStatus(t, err, http.StatusServiceUnavailable)
		stored := env.batches.Get(sub.BatchID)
		assert.Equal(t, domain.BatchStatusProcessing, stored.Status)
		assert.Equal(t, 0, stored.QRInsertedCount)
	})

	t.Run("hard failure marks the batch failed and retry resumes it", func(t *testing.T) {
		env := newTestEnv(testOptions())
		sub, err := env.batchService.SubmitGeneration(ctx, submitCommand("ORD-001"))
		require.NoError(t, err)
		env.codes.InsertUniqueCodesFunc = func(ctx context.Context, codes []domain.UniqueCode) error {
			return errors.New("document failed validation")
		}

		res, err := env.batchService.GenerateCodes(ctx, GenerateCodesCommand{BatchID: sub.BatchID, WorkerID: "worker-1"})

		require.NoError(t, err)
		assert.True(t, res.Failed)
		assert.Contains(t, res.Error, "document failed validation")
		stored := env.batches.Get(sub.BatchID)
		assert.Equal(t, domain.BatchStatusFailed, stored.Status)
		assert.Empty(t, stored.LockedBy)

		env.codes.InsertUniqueCodesFunc = nil
		dto, err := env.batchService.RetryBatch(ctx, RetryBatchCommand{BatchID: sub.BatchID})
		require.NoError(t, err)
		assert.Equal(t, sub.BatchID, dto.ID)
		assert.Equal(t, "queued", dto.Status)
		assert.Empty(t, dto.ErrorMessage)

		res, err = env.batchService.GenerateCodes(ctx, GenerateCodesCommand{BatchID: sub.BatchID, WorkerID: "worker-2"})
		require.NoError(t, err)
		assert.Equal(t, "generated", res.Status)
		assert.Equal(t, 2, env.batches.Get(sub.BatchID).Attempts)
		assert.Len(t, env.codes.Uniques(sub.BatchID), 100)
	})

	t.Run("only failed batches can be retried", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusGenerated, domain.PackingStatusNone, domain.CodeStatusGenerated)

		_, err := env.batchService.RetryBatch(ctx, RetryBatchCommand{BatchID: b.ID})

		requireHTTPStatus(t, err, http.StatusConflict)
	})
}

func TestBatchService_DownloadExport(t *testing.T) {
	ctx := context.Background()

	t.Run("export not ready", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusProcessing, domain.PackingStatusNone, domain.CodeStatusGenerated)

		_, err := env.batchService.DownloadExport(ctx, DownloadExportCommand{BatchID: b.ID, Actor: "user-1"})

		requireHTTPStatus(t, err, http.StatusConflict)
	})

	t.Run("first download prints the batch atomically", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusGenerated, domain.PackingStatusNone, domain.CodeStatusGenerated)

		resp, err := env.batchService.DownloadExport(ctx, DownloadExportCommand{BatchID: b.ID, Actor: "user-1"})

		require.NoError(t, err)
		assert.Contains(t, resp.URL, b.GeneratedFile)
		assert.Equal(t, "printing", resp.Status)
		require.NotNil(t, resp.Print)
		assert.False(t, resp.Print.Fallback)
		assert.Equal(t, int64(10), resp.Print.MasterPrinted)
		assert.Equal(t, int64(100), resp.Print.UniquePrinted)

		assert.Equal(t, domain.BatchStatusPrinting, env.batches.Get(b.ID).Status)
		printed, _ := env.codes.CountInStatus(ctx, domain.CodeKindUnique, b.ID, domain.CodeStatusPrinted)
		assert.Equal(t, int64(100), printed)
		assert.Equal(t, int64(100), env.movements.Total(domain.CodeKindUnique, domain.CodeStatusGenerated, domain.CodeStatusPrinted))

		again, err := env.batchService.DownloadExport(ctx, DownloadExportCommand{BatchID: b.ID, Actor: "user-1"})
		require.NoError(t, err)
		assert.Nil(t, again.Print)
		assert.Equal(t, "printing", again.Status)
	})

	t.Run("failed transaction falls back to chunked updates", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(1000, 10, domain.BatchStatusGenerated, domain.PackingStatusNone, domain.CodeStatusGenerated)
		env.batches.TransitionToPrintingFunc = func(ctx context.Context, batch *domain.Batch) (domain.PrintResult, error) {
			return domain.PrintResult{}, errors.New("transactions not supported")
		}
		env.codes.AdvanceRangeFunc = func(ctx context.Context, kind domain.CodeKind, batchID string, from, to domain.CodeStatus, lo, hi int) (int64, error) {
			if lo == 501 {
				return 0, errors.New("write conflict")
			}
			return env.codes.advanceRange(kind, batchID, from, to, lo, hi)
		}

		resp, err := env.batchService.DownloadExport(ctx, DownloadExportCommand{BatchID: b.ID, Actor: "user-1"})

		require.NoError(t, err)
		require.NotNil(t, resp.Print)
		assert.True(t, resp.Print.Fallback)
		assert.Equal(t, 1, resp.Print.FailedChunks)
		assert.Equal(t, int64(100), resp.Print.MasterPrinted)
		assert.Equal(t, int64(500), resp.Print.UniquePrinted)

		assert.Equal(t, domain.BatchStatusPrinting, env.batches.Get(b.ID).Status)
		stragglers, _ := env.codes.CountInStatus(ctx, domain.CodeKindUnique, b.ID, domain.CodeStatusGenerated)
		assert.Equal(t, int64(500), stragglers)
	})
}

func TestBatchService_GetProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("counts packed rows", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusInProduction, domain.PackingStatusProcessing, domain.CodeStatusPrinted)
		_, err := env.codes.AdvanceChunk(ctx, domain.CodeKindUnique, b.ID, domain.CodeStatusPrinted, domain.CodeStatusPacked, 25)
		require.NoError(t, err)
		_, err = env.codes.AdvanceChunk(ctx, domain.CodeKindMaster, b.ID, domain.CodeStatusPrinted, domain.CodeStatusPacked, 3)
		require.NoError(t, err)

		p, err := env.batchService.GetProgress(ctx, GetBatchQuery{BatchID: b.ID})

		require.NoError(t, err)
		assert.Equal(t, int64(25), p.PackedUniqueCodes)
		assert.Equal(t, 25, p.UniqueProgressPercentage)
		assert.Equal(t, int64(3), p.PackedMasterCodes)
		assert.Equal(t, 30, p.MasterProgressPercentage)
		assert.Equal(t, 100, p.QRInsertedCount)
	})

	t.Run("completed batch reads fully packed", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusCompleted, domain.PackingStatusCompleted, domain.CodeStatusPrinted)

		p, err := env.batchService.GetProgress(ctx, GetBatchQuery{BatchID: b.ID})

		require.NoError(t, err)
		assert.Equal(t, 100, p.UniqueProgressPercentage)
		assert.Equal(t, 100, p.MasterProgressPercentage)
	})

	t.Run("other tenant sees not found", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusGenerated, domain.PackingStatusNone, domain.CodeStatusGenerated)
		stored := env.batches.Get(b.ID)
		stored.TenantID = "TNT-A"
		env.batches.AddBatch(stored)

		tctx := tenant.ToContext(ctx, &tenant.Context{TenantID: "TNT-B"})
		_, err := env.batchService.GetProgress(tctx, GetBatchQuery{BatchID: b.ID})

		requireHTTPStatus(t, err, http.StatusNotFound)
	})
}

func TestBatchService_CompleteProduction(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects a batch that is not fully packed", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusInProduction, domain.PackingStatusProcessing, domain.CodeStatusPrinted)
		_, err := env.codes.AdvanceChunk(ctx, domain.CodeKindUnique, b.ID, domain.CodeStatusPrinted, domain.CodeStatusPacked, 60)
		require.NoError(t, err)

		_, err = env.batchService.CompleteProduction(ctx, CompleteProductionCommand{BatchID: b.ID, Actor: "user-1"})

		appErr := requireHTTPStatus(t, err, http.StatusConflict)
		assert.Equal(t, "60", appErr.Details["packed_unique_codes"])
		assert.Equal(t, "100", appErr.Details["total_unique_codes"])
		assert.Equal(t, domain.BatchStatusInProduction, env.batches.Get(b.ID).Status)
	})

	t.Run("rejects a batch that was never printed", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusGenerated, domain.PackingStatusNone, domain.CodeStatusGenerated)

		_, err := env.batchService.CompleteProduction(ctx, CompleteProductionCommand{BatchID: b.ID, Actor: "user-1"})

		requireHTTPStatus(t, err, http.StatusConflict)
	})

	t.Run("completes and opens one balance payment", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(1200, 10, domain.BatchStatusInProduction, domain.PackingStatusCompleted, domain.CodeStatusPacked)

		resp, err := env.batchService.CompleteProduction(ctx, CompleteProductionCommand{BatchID: b.ID, Actor: "user-1"})

		require.NoError(t, err)
		assert.Equal(t, int64(1200), resp.PackedUniqueCodes)
		assert.Equal(t, int64(120), resp.PackedMasterCodes)
		assert.True(t, resp.BalancePaymentCreated)

		assert.Equal(t, domain.BatchStatusCompleted, env.batches.Get(b.ID).Status)
		ready, _ := env.codes.CountInStatus(ctx, domain.CodeKindUnique, b.ID, domain.CodeStatusReadyToShip)
		assert.Equal(t, int64(1200), ready)
		assert.Equal(t, int64(1200), env.movements.Total(domain.CodeKindUnique, domain.CodeStatusPacked, domain.CodeStatusReadyToShip))

		again, err := env.batchService.CompleteProduction(ctx, CompleteProductionCommand{BatchID: b.ID, Actor: "user-1"})
		require.NoError(t, err)
		assert.False(t, again.BalancePaymentCreated)
		assert.Equal(t, int64(1200), again.PackedUniqueCodes)
		assert.Len(t, env.payments.requests, 1)
	})
}

func TestBatchService_CompleteProduction_SettlesPacking(t *testing.T) {
	ctx := context.Background()

	t.Run("packing left running is completed with the batch", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusInProduction, domain.PackingStatusProcessing, domain.CodeStatusPacked)

		_, err := env.batchService.CompleteProduction(ctx, CompleteProductionCommand{BatchID: b.ID, Actor: "user-1"})
		require.NoError(t, err)

		stored := env.batches.Get(b.ID)
		assert.Equal(t, domain.BatchStatusCompleted, stored.Status)
		assert.Equal(t, domain.PackingStatusCompleted, stored.PackingStatus)

		resp, err := env.packingService.RunPackingChunk(ctx, RunPackingChunkCommand{WorkerID: "worker-1"})
		require.NoError(t, err)
		assert.Equal(t, "No batches to process", resp.Message)
		assert.False(t, resp.HasMore)
	})

	t.Run("repeat call closes packing of an already completed batch", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusCompleted, domain.PackingStatusProcessing, domain.CodeStatusReadyToShip)

		_, err := env.batchService.CompleteProduction(ctx, CompleteProductionCommand{BatchID: b.ID, Actor: "user-1"})

		require.NoError(t, err)
		assert.Equal(t, domain.PackingStatusCompleted, env.batches.Get(b.ID).PackingStatus)
	})

	t.Run("trigger on a completed batch with running packing stops", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusCompleted, domain.PackingStatusProcessing, domain.CodeStatusReadyToShip)

		resp, err := env.packingService.RunPackingChunk(ctx, RunPackingChunkCommand{BatchID: b.ID, WorkerID: "worker-1"})

		require.NoError(t, err)
		assert.False(t, resp.HasMore)
		assert.False(t, resp.LeaseHeld)
		assert.Equal(t, "Batch is completed", resp.Message)
	})
}

func TestBatchService_RenderLabels(t *testing.T) {
	ctx := context.Background()

	t.Run("renders the codes of the case range", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusPrinting, domain.PackingStatusNone, domain.CodeStatusPrinted)

		sheet, err := env.batchService.RenderLabels(ctx, RenderLabelsQuery{BatchID: b.ID, FromCase: 3, ToCase: 4})

		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%s-cases-3-4.pdf", b.ID), sheet.FileName)
		assert.Equal(t, []byte("%PDF-1.3"), sheet.Content)
		require.Len(t, env.labels.masters, 2)
		assert.Equal(t, 3, env.labels.masters[0].CaseNumber)
		assert.Equal(t, 4, env.labels.masters[1].CaseNumber)
		require.Len(t, env.labels.uniques, 20)
		assert.Equal(t, 21, env.labels.uniques[0].Sequence)
		assert.Equal(t, 40, env.labels.uniques[19].Sequence)
	})

	t.Run("open bounds cover the whole batch", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusGenerated, domain.PackingStatusNone, domain.CodeStatusGenerated)

		sheet, err := env.batchService.RenderLabels(ctx, RenderLabelsQuery{BatchID: b.ID})

		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%s-cases-1-10.pdf", b.ID), sheet.FileName)
		assert.Len(t, env.labels.masters, 10)
		assert.Len(t, env.labels.uniques, 100)
	})

	t.Run("range over the sheet cap is rejected", func(t *testing.T) {
		opts := testOptions()
		opts.MaxLabelsPerSheet = 50
		env := newTestEnv(opts)
		b := env.seedBatch(100, 10, domain.BatchStatusPrinting, domain.PackingStatusNone, domain.CodeStatusPrinted)

		_, err := env.batchService.RenderLabels(ctx, RenderLabelsQuery{BatchID: b.ID, FromCase: 1, ToCase: 5})

		appErr := requireHTTPStatus(t, err, http.StatusBadRequest)
		assert.Equal(t, "4", appErr.Details["maxCases"])
		assert.Nil(t, env.labels.masters)
	})

	t.Run("inverted range is rejected", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusPrinting, domain.PackingStatusNone, domain.CodeStatusPrinted)

		_, err := env.batchService.RenderLabels(ctx, RenderLabelsQuery{BatchID: b.ID, FromCase: 6, ToCase: 2})

		requireHTTPStatus(t, err, http.StatusBadRequest)
	})

	t.Run("batch without codes yet", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusProcessing, domain.PackingStatusNone, domain.CodeStatusGenerated)

		_, err := env.batchService.RenderLabels(ctx, RenderLabelsQuery{BatchID: b.ID})

		requireHTTPStatus(t, err, http.StatusConflict)
	})
}

func TestBatchService_ValidateBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("consistent batch", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusGenerated, domain.PackingStatusNone, domain.CodeStatusGenerated)

		report, err := env.batchService.ValidateBatch(ctx, ValidateBatchCommand{BatchID: b.ID, Actor: "auditor"})

		require.NoError(t, err)
		assert.True(t, report.Valid)
		assert.Empty(t, report.Violations)
		assert.Equal(t, int64(100), report.Unique["generated"])
		assert.Len(t, env.reports.reports, 1)
	})

	t.Run("printing batch with generated rows", func(t *testing.T) {
		env := newTestEnv(testOptions())
		b := env.seedBatch(100, 10, domain.BatchStatusPrinting, domain.PackingStatusNone, domain.CodeStatusGenerated)

		report, err := env.batchService.ValidateBatch(ctx, ValidateBatchCommand{BatchID: b.ID, Actor: "auditor"})

		require.NoError(t, err)
		assert.False(t, report.Valid)
		assert.NotEmpty(t, report.Violations)
	})
}

func TestBatchService_ListMovements(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(testOptions())
	b := env.seedBatch(100, 10, domain.BatchStatusGenerated, domain.PackingStatusNone, domain.CodeStatusGenerated)
	_, err := env.batchService.DownloadExport(ctx, DownloadExportCommand{BatchID: b.ID, Actor: "user-1"})
	require.NoError(t, err)

	movements, err := env.batchService.ListMovements(ctx, GetBatchQuery{BatchID: b.ID})

	require.NoError(t, err)
	require.Len(t, movements, 2)
	for _, mv := range movements {
		assert.Equal(t, "user-1", mv.Actor)
		assert.Equal(t, domain.MovementReasonPrint, mv.Reason)
	}
}
