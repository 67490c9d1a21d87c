package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wms-platform/qrbatch-service/internal/application"
	"github.com/wms-platform/qrbatch-service/internal/domain"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
	"github.com/wms-platform/qrbatch-service/pkg/metrics"
)

// StalledBatchFinder lists batches whose generation or packing stopped moving
type StalledBatchFinder interface {
	FindStalledGeneration(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*domain.Batch, error)
	FindStalledPacking(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*domain.Batch, error)
}

// StalledJobFinder lists reverse jobs that stopped moving
type StalledJobFinder interface {
	FindStalled(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*domain.ReverseJob, error)
}

// LeaseMonitorConfig holds configuration for the lease monitor
type LeaseMonitorConfig struct {
	ScanInterval time.Duration
	// QueuedGrace is how long queued work may wait before it is re-dispatched
	QueuedGrace time.Duration
	BatchSize   int
}

// DefaultLeaseMonitorConfig returns default configuration
func DefaultLeaseMonitorConfig() *LeaseMonitorConfig {
	return &LeaseMonitorConfig{
		ScanInterval: 30 * time.Second,
		QueuedGrace:  time.Minute,
		BatchSize:    100,
	}
}

// ScanResult counts the work handed back to the queue by one scan
type ScanResult struct {
	Generation  int
	Packing     int
	ReverseJobs int
	Errors      int
}

// LeaseMonitor re-dispatches queued work nobody picked up and running work
// whose lease expired
type LeaseMonitor struct {
	batches    StalledBatchFinder
	jobs       StalledJobFinder
	dispatcher application.TaskDispatcher
	logger     *logging.Logger
	metrics    *metrics.Metrics
	config     *LeaseMonitorConfig
	now        func() time.Time

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewLeaseMonitor creates a new lease monitor
func NewLeaseMonitor(
	batches StalledBatchFinder,
	jobs StalledJobFinder,
	dispatcher application.TaskDispatcher,
	logger *logging.Logger,
	m *metrics.Metrics,
	config *LeaseMonitorConfig,
) *LeaseMonitor {
	if config == nil {
		config = DefaultLeaseMonitorConfig()
	}
	return &LeaseMonitor{
		batches:    batches,
		jobs:       jobs,
		dispatcher: dispatcher,
		logger:     logger.WithComponent("lease-monitor"),
		metrics:    m,
		config:     config,
		now:        func() time.Time { return time.Now().UTC() },
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}
}

// Start starts the scan loop
func (m *LeaseMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("lease monitor already running")
	}
	m.running = true

	m.logger.Info("Starting lease monitor", "interval", m.config.ScanInterval, "queuedGrace", m.config.QueuedGrace)
	go m.run(ctx)
	return nil
}

// Stop stops the loop and waits for it to exit
func (m *LeaseMonitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("lease monitor not running")
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	<-m.stoppedCh
	m.logger.Info("Lease monitor stopped")
	return nil
}

func (m *LeaseMonitor) run(ctx context.Context) {
	defer close(m.stoppedCh)

	ticker := time.NewTicker(m.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.ScanOnce(ctx)
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ScanOnce re-dispatches one page of each kind of stalled work
func (m *LeaseMonitor) ScanOnce(ctx context.Context) ScanResult {
	var result ScanResult
	now := m.now()
	queuedBefore := now.Add(-m.config.QueuedGrace)

	if batches, err := m.batches.FindStalledGeneration(ctx, queuedBefore, now, m.config.BatchSize); err != nil {
		m.logger.WithError(err).Error("Failed to find stalled generation")
		result.Errors++
	} else {
		for _, b := range batches {
			if m.redispatch(ctx, "generation", b.ID, m.dispatcher.DispatchGeneration) {
				result.Generation++
			} else {
				result.Errors++
			}
		}
	}

	if batches, err := m.batches.FindStalledPacking(ctx, queuedBefore, now, m.config.BatchSize); err != nil {
		m.logger.WithError(err).Error("Failed to find stalled packing")
		result.Errors++
	} else {
		for _, b := range batches {
			if m.redispatch(ctx, "packing", b.ID, m.dispatcher.DispatchPacking) {
				result.Packing++
			} else {
				result.Errors++
			}
		}
	}

	if jobs, err := m.jobs.FindStalled(ctx, queuedBefore, now, m.config.BatchSize); err != nil {
		m.logger.WithError(err).Error("Failed to find stalled reverse jobs")
		result.Errors++
	} else {
		for _, j := range jobs {
			if m.redispatch(ctx, "reverse_job", j.ID, m.dispatcher.DispatchReverseJob) {
				result.ReverseJobs++
			} else {
				result.Errors++
			}
		}
	}

	if result.Generation+result.Packing+result.ReverseJobs > 0 || result.Errors > 0 {
		m.logger.Info("Lease scan finished",
			"generation", result.Generation,
			"packing", result.Packing,
			"reverseJobs", result.ReverseJobs,
			"errors", result.Errors,
		)
	}
	return result
}

func (m *LeaseMonitor) redispatch(ctx context.Context, kind, id string, dispatch func(context.Context, string) error) bool {
	if err := dispatch(ctx, id); err != nil {
		m.logger.WithError(err).Warn("Failed to re-dispatch stalled work", "kind", kind, "id", id)
		return false
	}
	m.metrics.RecordLeaseReclaimed(kind)
	return true
}
