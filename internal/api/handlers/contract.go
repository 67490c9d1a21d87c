package handlers

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

// OpenAPIDocument documents the tenant-scoped API
//
//go:embed openapi.yaml
var OpenAPIDocument []byte

// OpenAPIHandler serves OpenAPIDocument
func OpenAPIHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", OpenAPIDocument)
	}
}
