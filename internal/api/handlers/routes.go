package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/wms-platform/qrbatch-service/pkg/logging"
)

// Services groups what the routes call
type Services struct {
	Batches     BatchAPI
	Packing     PackingAPI
	ReverseJobs ReverseJobAPI
	Logger      *logging.Logger
	// Idempotency guards the submit endpoints when set
	Idempotency gin.HandlerFunc
}

// RegisterRoutes mounts the tenant-scoped API on group
func RegisterRoutes(group *gin.RouterGroup, s Services) {
	submit := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if s.Idempotency == nil {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{s.Idempotency, h}
	}

	batches := group.Group("/batches")
	{
		batches.POST("", submit(submitBatchHandler(s.Batches, s.Logger))...)
		batches.GET("/:batchId", getBatchHandler(s.Batches, s.Logger))
		batches.POST("/:batchId/retry", retryBatchHandler(s.Batches, s.Logger))
		batches.POST("/:batchId/generate", generateHandler(s.Batches, s.Logger))
		batches.GET("/:batchId/progress", progressHandler(s.Batches, s.Logger))
		batches.GET("/:batchId/download", downloadHandler(s.Batches, s.Logger))
		batches.GET("/:batchId/labels", labelsHandler(s.Batches, s.Logger))
		batches.POST("/:batchId/packing", startPackingHandler(s.Packing, s.Logger))
		batches.POST("/:batchId/complete-production", completeProductionHandler(s.Batches, s.Logger))
		batches.GET("/:batchId/movements", listMovementsHandler(s.Batches, s.Logger))
		batches.POST("/:batchId/validation-reports", validateBatchHandler(s.Batches, s.Logger))
	}

	group.GET("/orders/:orderId/batches", listBatchesByOrderHandler(s.Batches, s.Logger))
	group.POST("/packing/trigger", packingTriggerHandler(s.Packing, s.Logger))

	jobs := group.Group("/reverse-jobs")
	{
		jobs.POST("", submit(submitReverseJobHandler(s.ReverseJobs, s.Logger))...)
		jobs.GET("/:jobId", getReverseJobHandler(s.ReverseJobs, s.Logger))
		jobs.GET("/:jobId/logs", listReverseJobLogsHandler(s.ReverseJobs, s.Logger))
		jobs.GET("/:jobId/prepared-codes", listPreparedCodesHandler(s.ReverseJobs, s.Logger))
	}
}

// RegisterFileRoutes mounts the signed download route on group
func RegisterFileRoutes(group *gin.RouterGroup, files FileServer, logger *logging.Logger) {
	group.GET("/files/*key", downloadFileHandler(files, logger))
}
