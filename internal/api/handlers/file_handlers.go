package handlers

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/qrbatch-service/internal/infrastructure/storage"
	apperrors "github.com/wms-platform/qrbatch-service/pkg/errors"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
	"github.com/wms-platform/qrbatch-service/pkg/middleware"
)

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
	".zip":  "application/zip",
}

// downloadFileHandler streams a stored export to holders of a signed link.
// The token is the only credential, so the route sits outside tenant auth.
func downloadFileHandler(files FileServer, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)
		key := strings.TrimPrefix(c.Param("key"), "/")

		if err := files.Verify(c.Query("token"), key); err != nil {
			responder.RespondWithAppError(apperrors.NewAppError(apperrors.CodeUnauthorized, "invalid or expired download link", http.StatusForbidden))
			return
		}

		r, err := files.Open(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, storage.ErrFileNotFound) {
				responder.RespondWithAppError(apperrors.ErrNotFound("file"))
				return
			}
			responder.RespondInternalError(err)
			return
		}
		defer r.Close()

		contentType, ok := contentTypes[path.Ext(key)]
		if !ok {
			contentType = "application/octet-stream"
		}
		c.Header("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
		c.Header("Cache-Control", "private, no-store")
		c.Header("Content-Type", contentType)
		c.Status(http.StatusOK)
		if _, err := io.Copy(c.Writer, r); err != nil {
			logger.WithError(err).Warn("Export download interrupted", "key", key)
		}
	}
}
