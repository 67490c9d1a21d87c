package tenant

import (
	"context"
	"errors"
)

type contextKey string

const tenantContextKey contextKey = "tenantContext"

var (
	ErrMissingTenantContext = errors.New("tenant context is required")
	ErrUnauthorizedAccess   = errors.New("unauthorized access to tenant resource")
)

// DefaultTenantID is used for requests that arrive without tenant headers when
// tenant headers are optional.
const DefaultTenantID = "DEFAULT_TENANT"

// Context scopes a request to a tenant and the organization acting inside it.
// Identity itself is established upstream; the service only carries the ids.
type Context struct {
	TenantID string `json:"tenantId"`
	OrgID    string `json:"orgId,omitempty"`
	UserID   string `json:"userId,omitempty"`
}

// ToContext stores the tenant context on ctx
func ToContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, tenantContextKey, tc)
}

// FromContext returns the tenant context or an error when it is missing
func FromContext(ctx context.Context) (*Context, error) {
	if tc, ok := ctx.Value(tenantContextKey).(*Context); ok && tc != nil && tc.TenantID != "" {
		return tc, nil
	}
	return nil, ErrMissingTenantContext
}

// FromContextOptional returns the tenant context, or an empty one when absent
func FromContextOptional(ctx context.Context) *Context {
	if tc, err := FromContext(ctx); err == nil {
		return tc
	}
	return &Context{}
}

// ValidateOwnership rejects access to resources owned by another tenant
func (tc *Context) ValidateOwnership(resourceTenantID string) error {
	if tc.TenantID != "" && resourceTenantID != "" && tc.TenantID != resourceTenantID {
		return ErrUnauthorizedAccess
	}
	return nil
}
