package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{1,255}$`)

// Config holds configuration for the idempotency middleware
type Config struct {
	Repository Repository
	Logger     *slog.Logger
	// Retention is how long completed responses are replayed
	Retention time.Duration
	// LockTimeout is how long an in-flight duplicate is answered with 409
	LockTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig(repo Repository, logger *slog.Logger) *Config {
	return &Config{
		Repository:  repo,
		Logger:      logger,
		Retention:   24 * time.Hour,
		LockTimeout: time.Minute,
	}
}

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Fingerprint hashes the method, path and body of a request
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Middleware replays the stored response for a repeated Idempotency-Key on
// mutating requests. Requests without the header pass through.
func Middleware(config *Config) gin.HandlerFunc {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}
		if !keyPattern.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "IDEMPOTENCY_KEY_INVALID",
				"message": "Idempotency-Key must be 1-255 characters of [A-Za-z0-9_-:.]",
			})
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		ctx := c.Request.Context()
		now := time.Now().UTC().Truncate(time.Millisecond)
		record := &Record{
			Key:                key,
			RequestPath:        c.Request.URL.Path,
			RequestMethod:      c.Request.Method,
			RequestFingerprint: Fingerprint(c.Request.Method, c.Request.URL.Path, body),
			LockedAt:           &now,
			CreatedAt:          now,
			ExpiresAt:          now.Add(config.Retention),
		}

		stored, created, err := config.Repository.Acquire(ctx, record)
		if err != nil {
			logger.Error("Idempotency storage unavailable", "error", err, "key", key)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"code":    "IDEMPOTENCY_STORAGE_UNAVAILABLE",
				"message": "Idempotency storage is temporarily unavailable",
			})
			return
		}

		if !created {
			switch {
			case stored.RequestFingerprint != record.RequestFingerprint:
				c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
					"code":    "IDEMPOTENCY_PARAMETER_MISMATCH",
					"message": "Request differs from the original request with this Idempotency-Key",
				})
			case stored.IsCompleted():
				logger.Info("Idempotency replay", "key", key, "status", stored.ResponseCode)
				c.Data(stored.ResponseCode, "application/json; charset=utf-8", stored.ResponseBody)
				c.Abort()
			case stored.LockedAt != nil && time.Since(*stored.LockedAt) < config.LockTimeout:
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"code":    "IDEMPOTENCY_CONCURRENT_REQUEST",
					"message": "A request with this Idempotency-Key is in progress",
				})
			default:
				// stale lock from a crashed request, take it over
				c.Next()
			}
			return
		}

		writer := &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer
		c.Next()

		status := writer.Status()
		if status >= http.StatusInternalServerError {
			if err := config.Repository.Release(ctx, key); err != nil {
				logger.Warn("Failed to release idempotency key", "error", err, "key", key)
			}
			return
		}
		if err := config.Repository.Complete(ctx, key, status, writer.body.Bytes()); err != nil {
			logger.Error("Failed to store idempotency response", "error", err, "key", key)
		}
	}
}
