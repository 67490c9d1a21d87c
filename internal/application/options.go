package application

import (
	"errors"
	"time"

	"github.com/wms-platform/qrbatch-service/internal/domain"
	"github.com/wms-platform/qrbatch-service/pkg/resilience"
)

const (
	DefaultChunkSize          = 500
	DefaultGenerationChunk    = 1000
	DefaultLeaseTTL           = 2 * time.Minute
	DefaultExportURLTTL       = 15 * time.Minute
	DefaultPrintFallbackChunk = 500
	DefaultExportPageSize     = 5000
	DefaultMaxLabelsPerSheet  = 2000

	// HTTPTriggerWorkerID is shared by every HTTP caller so browser tabs
	// polling the same batch reuse one lease.
	HTTPTriggerWorkerID = "http-trigger"
)

// Options tunes chunk sizes, leases and retries
type Options struct {
	ChunkSize           int
	GenerationChunkSize int
	PrintFallbackChunk  int
	ExportPageSize      int
	MaxLabelsPerSheet   int
	LeaseTTL            time.Duration
	ExportURLTTL        time.Duration
	Retry               *resilience.RetryConfig
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		ChunkSize:           DefaultChunkSize,
		GenerationChunkSize: DefaultGenerationChunk,
		PrintFallbackChunk:  DefaultPrintFallbackChunk,
		ExportPageSize:      DefaultExportPageSize,
		MaxLabelsPerSheet:   DefaultMaxLabelsPerSheet,
		LeaseTTL:            DefaultLeaseTTL,
		ExportURLTTL:        DefaultExportURLTTL,
		Retry:               transientRetry(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.GenerationChunkSize <= 0 {
		o.GenerationChunkSize = d.GenerationChunkSize
	}
	if o.PrintFallbackChunk <= 0 {
		o.PrintFallbackChunk = d.PrintFallbackChunk
	}
	if o.ExportPageSize <= 0 {
		o.ExportPageSize = d.ExportPageSize
	}
	if o.MaxLabelsPerSheet <= 0 {
		o.MaxLabelsPerSheet = d.MaxLabelsPerSheet
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = d.LeaseTTL
	}
	if o.ExportURLTTL <= 0 {
		o.ExportURLTTL = d.ExportURLTTL
	}
	if o.Retry == nil {
		o.Retry = d.Retry
	}
	return o
}

func transientRetry() *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.RetryableErrors = domain.IsTransient
	return cfg
}

func conflictRetry() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  20 * time.Millisecond,
		MaxDelay:      200 * time.Millisecond,
		BackoffFactor: 2.0,
		RetryableErrors: func(err error) bool {
			return errors.Is(err, domain.ErrConcurrentModification)
		},
	}
}

func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
