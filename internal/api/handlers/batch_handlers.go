package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/qrbatch-service/internal/application"
	apperrors "github.com/wms-platform/qrbatch-service/pkg/errors"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
	"github.com/wms-platform/qrbatch-service/pkg/middleware"
)

// SubmitBatchRequest is the body of POST /batches
type SubmitBatchRequest struct {
	OrderID          string `json:"orderId" binding:"required,entity_id"`
	VariantID        string `json:"variantId" binding:"omitempty,entity_id"`
	Quantity         int    `json:"quantity" binding:"required,min=1,max=1000000"`
	BufferPercentage int    `json:"bufferPercentage" binding:"gte=0,lte=100"`
	UnitsPerCase     int    `json:"unitsPerCase" binding:"required,min=1"`
	RequestedBy      string `json:"requestedBy"`
}

func submitBatchHandler(svc BatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitBatchRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithAppError(appErr)
			return
		}
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"order.id":       req.OrderID,
			"batch.quantity": req.Quantity,
		})

		requestedBy := req.RequestedBy
		if requestedBy == "" {
			requestedBy = actor(c)
		}
		resp, err := svc.SubmitGeneration(c.Request.Context(), application.SubmitGenerationCommand{
			OrderID:          req.OrderID,
			VariantID:        req.VariantID,
			Quantity:         req.Quantity,
			BufferPercentage: req.BufferPercentage,
			UnitsPerCase:     req.UnitsPerCase,
			RequestedBy:      requestedBy,
		})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusAccepted, resp)
	}
}

func getBatchHandler(svc BatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		batchID := c.Param("batchId")
		middleware.AddSpanAttributes(c, map[string]interface{}{"batch.id": batchID})

		batch, err := svc.GetBatch(c.Request.Context(), application.GetBatchQuery{BatchID: batchID})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}

func listBatchesByOrderHandler(svc BatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("orderId")
		middleware.AddSpanAttributes(c, map[string]interface{}{"order.id": orderID})

		batches, err := svc.ListBatchesByOrder(c.Request.Context(), application.ListBatchesByOrderQuery{OrderID: orderID})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": batches, "total": len(batches)})
	}
}

func retryBatchHandler(svc BatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		batchID := c.Param("batchId")
		middleware.AddSpanAttributes(c, map[string]interface{}{"batch.id": batchID})

		batch, err := svc.RetryBatch(c.Request.Context(), application.RetryBatchCommand{BatchID: batchID})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusAccepted, batch)
	}
}

// generateHandler runs one generation chunk for operators who want to push a
// batch without waiting for the worker
func generateHandler(svc BatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		batchID := c.Param("batchId")
		middleware.AddSpanAttributes(c, map[string]interface{}{"batch.id": batchID})

		result, err := svc.GenerateCodes(c.Request.Context(), application.GenerateCodesCommand{
			BatchID:  batchID,
			WorkerID: application.HTTPTriggerWorkerID,
		})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func progressHandler(svc BatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		batchID := c.Param("batchId")

		progress, err := svc.GetProgress(c.Request.Context(), application.GetBatchQuery{BatchID: batchID})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, progress)
	}
}

func downloadHandler(svc BatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		batchID := c.Param("batchId")
		middleware.AddSpanAttributes(c, map[string]interface{}{"batch.id": batchID})

		resp, err := svc.DownloadExport(c.Request.Context(), application.DownloadExportCommand{
			BatchID: batchID,
			Actor:   actor(c),
		})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// LabelsQuery selects the cases of GET /batches/:batchId/labels. Zero bounds
// default to the first and last case.
type LabelsQuery struct {
	FromCase int `form:"fromCase" binding:"gte=0"`
	ToCase   int `form:"toCase" binding:"gte=0"`
}

func labelsHandler(svc BatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		batchID := c.Param("batchId")
		middleware.AddSpanAttributes(c, map[string]interface{}{"batch.id": batchID})

		var query LabelsQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithAppError(apperrors.ErrBadRequest("invalid label range: " + err.Error()))
			return
		}

		sheet, err := svc.RenderLabels(c.Request.Context(), application.RenderLabelsQuery{
			BatchID:  batchID,
			FromCase: query.FromCase,
			ToCase:   query.ToCase,
		})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+sheet.FileName+`"`)
		c.Header("Cache-Control", "private, no-store")
		c.Data(http.StatusOK, "application/pdf", sheet.Content)
	}
}

func completeProductionHandler(svc BatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		batchID := c.Param("batchId")
		middleware.AddSpanAttributes(c, map[string]interface{}{"batch.id": batchID})

		resp, err := svc.CompleteProduction(c.Request.Context(), application.CompleteProductionCommand{
			BatchID: batchID,
			Actor:   actor(c),
		})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func listMovementsHandler(svc BatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		movements, err := svc.ListMovements(c.Request.Context(), application.GetBatchQuery{BatchID: c.Param("batchId")})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": movements, "total": len(movements)})
	}
}

func validateBatchHandler(svc BatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := svc.ValidateBatch(c.Request.Context(), application.ValidateBatchCommand{
			BatchID: c.Param("batchId"),
			Actor:   actor(c),
		})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, report)
	}
}
