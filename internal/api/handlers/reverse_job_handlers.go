package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/qrbatch-service/internal/application"
	"github.com/wms-platform/qrbatch-service/pkg/api"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
	"github.com/wms-platform/qrbatch-service/pkg/middleware"
)

// SubmitReverseJobRequest is the body of POST /reverse-jobs
type SubmitReverseJobRequest struct {
	BatchID           string   `json:"batch_id" binding:"required,entity_id"`
	OrderID           string   `json:"order_id" binding:"required,entity_id"`
	ManufacturerOrgID string   `json:"manufacturer_org_id" binding:"required"`
	RequestedBy       string   `json:"requested_by"`
	ExcludeCodes      []string `json:"exclude_codes"`
	VariantID         string   `json:"variant_id" binding:"omitempty,entity_id"`
	CaseNumbers       []int    `json:"case_numbers" binding:"omitempty,dive,min=1"`
}

func submitReverseJobHandler(svc ReverseJobAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitReverseJobRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithAppError(appErr)
			return
		}
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"batch.id":      req.BatchID,
			"order.id":      req.OrderID,
			"exclude.count": len(req.ExcludeCodes),
		})

		requestedBy := req.RequestedBy
		if requestedBy == "" {
			requestedBy = actor(c)
		}
		resp, err := svc.SubmitReverseJob(c.Request.Context(), application.SubmitReverseJobCommand{
			BatchID:           req.BatchID,
			OrderID:           req.OrderID,
			ManufacturerOrgID: req.ManufacturerOrgID,
			RequestedBy:       requestedBy,
			ExcludeCodes:      req.ExcludeCodes,
			VariantID:         req.VariantID,
			CaseNumbers:       req.CaseNumbers,
		})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusAccepted, resp)
	}
}

func getReverseJobHandler(svc ReverseJobAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("jobId")
		middleware.AddSpanAttributes(c, map[string]interface{}{"job.id": jobID})

		job, err := svc.GetReverseJob(c.Request.Context(), application.GetReverseJobQuery{JobID: jobID})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func listReverseJobLogsHandler(svc ReverseJobAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		logs, err := svc.ListReverseJobLogs(c.Request.Context(), application.GetReverseJobQuery{JobID: c.Param("jobId")})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": logs, "total": len(logs)})
	}
}

func listPreparedCodesHandler(svc ReverseJobAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := svc.ListPreparedCodes(c.Request.Context(),
			application.GetReverseJobQuery{JobID: c.Param("jobId")},
			api.ParsePagination(c))
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}
