package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type memoryRepository struct {
	mu      sync.Mutex
	records map[string]*Record
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{records: map[string]*Record{}}
}

func (m *memoryRepository) Acquire(_ context.Context, record *Record) (*Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[record.Key]; ok {
		copied := *existing
		return &copied, false, nil
	}
	copied := *record
	m.records[record.Key] = &copied
	return record, true, nil
}

func (m *memoryRepository) Complete(_ context.Context, key string, code int, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	r := m.records[key]
	r.ResponseCode = code
	r.ResponseBody = append([]byte(nil), body...)
	r.CompletedAt = &now
	r.LockedAt = nil
	return nil
}

func (m *memoryRepository) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func newRouter(repo Repository, status *int, calls *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(DefaultConfig(repo, nil)))
	router.POST("/batches", func(c *gin.Context) {
		*calls++
		c.JSON(*status, gin.H{"call": *calls})
	})
	return router
}

func post(router *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/batches", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_ReplaysCompletedResponse(t *testing.T) {
	status, calls := http.StatusCreated, 0
	router := newRouter(newMemoryRepository(), &status, &calls)

	first := post(router, "key-1", `{"quantity":10}`)
	second := post(router, "key-1", `{"quantity":10}`)

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)
}

func TestMiddleware_RejectsDifferentBodyForSameKey(t *testing.T) {
	status, calls := http.StatusCreated, 0
	router := newRouter(newMemoryRepository(), &status, &calls)

	post(router, "key-2", `{"quantity":10}`)
	rec := post(router, "key-2", `{"quantity":11}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestMiddleware_ReleasesKeyOnServerError(t *testing.T) {
	status, calls := http.StatusServiceUnavailable, 0
	router := newRouter(newMemoryRepository(), &status, &calls)

	post(router, "key-3", `{}`)
	status = http.StatusOK
	rec := post(router, "key-3", `{}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, calls)
}

func TestMiddleware_PassesThroughWithoutKey(t *testing.T) {
	status, calls := http.StatusOK, 0
	router := newRouter(newMemoryRepository(), &status, &calls)

	post(router, "", `{}`)
	post(router, "", `{}`)

	assert.Equal(t, 2, calls)
}

func TestMiddleware_RejectsMalformedKey(t *testing.T) {
	status, calls := http.StatusOK, 0
	router := newRouter(newMemoryRepository(), &status, &calls)

	rec := post(router, "bad key with spaces", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, calls)
}
