package handlers

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/qrbatch-service/internal/application"
	apperrors "github.com/wms-platform/qrbatch-service/pkg/errors"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
	"github.com/wms-platform/qrbatch-service/pkg/middleware"
)

// PackingTriggerRequest is the optional body of POST /packing/trigger
type PackingTriggerRequest struct {
	BatchID string `json:"batchId" binding:"omitempty,entity_id"`
}

func startPackingHandler(svc PackingAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		batchID := c.Param("batchId")
		middleware.AddSpanAttributes(c, map[string]interface{}{"batch.id": batchID})

		resp, err := svc.StartPacking(c.Request.Context(), application.StartPackingCommand{BatchID: batchID})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusAccepted, resp)
	}
}

// packingTriggerHandler advances at most one chunk. It is safe to poll on a
// fixed interval from several clients at once.
func packingTriggerHandler(svc PackingAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PackingTriggerRequest
		if appErr := bindOptionalBody(c, &req); appErr != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithAppError(appErr)
			return
		}
		if req.BatchID != "" {
			middleware.AddSpanAttributes(c, map[string]interface{}{"batch.id": req.BatchID})
		}

		resp, err := svc.RunPackingChunk(c.Request.Context(), application.RunPackingChunkCommand{
			BatchID:  req.BatchID,
			WorkerID: application.HTTPTriggerWorkerID,
		})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

const maxOptionalBody = 64 << 10

// bindOptionalBody binds a JSON body when one is sent, whether its length is
// declared or it arrives chunked. A missing or blank body leaves obj as is.
func bindOptionalBody(c *gin.Context, obj interface{}) *apperrors.AppError {
	if c.Request.Body == nil || c.Request.Body == http.NoBody || c.Request.ContentLength == 0 {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxOptionalBody))
	if err != nil {
		return apperrors.ErrBadRequest("failed to read request body: " + err.Error())
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	return middleware.BindAndValidate(c, obj)
}
