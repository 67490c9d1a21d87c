package testing

import (
	"context"
	"testing"
	"time"
)


// CreateTestContext creates a context with a timeout for tests
func CreateTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
