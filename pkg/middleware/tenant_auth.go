package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/qrbatch-service/pkg/errors"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
	"github.com/wms-platform/qrbatch-service/pkg/tenant"
)

// Tenant headers set by the upstream identity proxy
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderOrgID    = "X-Org-ID"
	HeaderUserID   = "X-User-ID"
)

const contextKeyTenant = "tenantContext"

// TenantAuthConfig holds configuration for the tenant middleware
type TenantAuthConfig struct {
	// Required rejects requests without X-Tenant-ID
	Required        bool
	DefaultTenantID string
}

// TenantAuth copies tenant headers onto the request context
func TenantAuth(config *TenantAuthConfig) gin.HandlerFunc {
	if config == nil {
		config = &TenantAuthConfig{DefaultTenantID: tenant.DefaultTenantID}
	}

	return func(c *gin.Context) {
		tc := &tenant.Context{
			TenantID: c.GetHeader(HeaderTenantID),
			OrgID:    c.GetHeader(HeaderOrgID),
			UserID:   c.GetHeader(HeaderUserID),
		}

		if tc.TenantID == "" {
			if config.Required {
				AbortWithAppError(c, errors.NewAppError("MISSING_TENANT_CONTEXT", "X-Tenant-ID header is required", http.StatusUnauthorized))
				return
			}
			tc.TenantID = config.DefaultTenantID
		}

		ctx := tenant.ToContext(c.Request.Context(), tc)
		if tc.UserID != "" {
			ctx = logging.ContextWithUserID(ctx, tc.UserID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextKeyTenant, tc)

		c.Next()
	}
}

// RequireTenantAuth rejects requests without tenant headers
func RequireTenantAuth() gin.HandlerFunc {
	return TenantAuth(&TenantAuthConfig{Required: true})
}

// GetTenantContext returns the tenant context set by TenantAuth
func GetTenantContext(c *gin.Context) *tenant.Context {
	if val, ok := c.Get(contextKeyTenant); ok {
		if tc, ok := val.(*tenant.Context); ok {
			return tc
		}
	}
	return tenant.FromContextOptional(c.Request.Context())
}
