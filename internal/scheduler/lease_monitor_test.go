package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/qrbatch-service/internal/domain"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
)

type mockBatchFinder struct {
	FindStalledGenerationFunc func(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*domain.Batch, error)
	FindStalledPackingFunc    func(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*domain.Batch, error)
}

func (m *mockBatchFinder) FindStalledGeneration(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*domain.Batch, error) {
	if m.FindStalledGenerationFunc != nil {
		return m.FindStalledGenerationFunc(ctx, queuedBefore, now, limit)
	}
	return nil, nil
}

func (m *mockBatchFinder) FindStalledPacking(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*domain.Batch, error) {
	if m.FindStalledPackingFunc != nil {
		return m.FindStalledPackingFunc(ctx, queuedBefore, now, limit)
	}
	return nil, nil
}

type mockJobFinder struct {
	FindStalledFunc func(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*domain.ReverseJob, error)
}

func (m *mockJobFinder) FindStalled(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*domain.ReverseJob, error) {
	if m.FindStalledFunc != nil {
		return m.FindStalledFunc(ctx, queuedBefore, now, limit)
	}
	return nil, nil
}

type mockDispatcher struct {
	mu         sync.Mutex
	generation []string
	packing    []string
	reverse    []string
	failID     string
}

func (m *mockDispatcher) record(list *[]string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == m.failID {
		return errors.New("temporal unavailable")
	}
	*list = append(*list, id)
	return nil
}

func (m *mockDispatcher) DispatchGeneration(_ context.Context, id string) error {
	return m.record(&m.generation, id)
}

func (m *mockDispatcher) DispatchPacking(_ context.Context, id string) error {
	return m.record(&m.packing, id)
}

func (m *mockDispatcher) DispatchReverseJob(_ context.Context, id string) error {
	return m.record(&m.reverse, id)
}

func TestLeaseMonitor_ScanOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotQueuedBefore, gotNow time.Time
	var gotLimit int

	batches := &mockBatchFinder{
		FindStalledGenerationFunc: func(_ context.Context, queuedBefore, at time.Time, limit int) ([]*domain.Batch, error) {
			gotQueuedBefore, gotNow, gotLimit = queuedBefore, at, limit
			return []*domain.Batch{{ID: "b-1"}, {ID: "b-2"}}, nil
		},
		FindStalledPackingFunc: func(context.Context, time.Time, time.Time, int) ([]*domain.Batch, error) {
			return []*domain.Batch{{ID: "b-3"}}, nil
		},
	}
	jobs := &mockJobFinder{
		FindStalledFunc: func(context.Context, time.Time, time.Time, int) ([]*domain.ReverseJob, error) {
			return []*domain.ReverseJob{{ID: "j-1"}}, nil
		},
	}
	dispatcher := &mockDispatcher{}

	monitor := NewLeaseMonitor(batches, jobs, dispatcher, logging.NewNop(), nil, &LeaseMonitorConfig{
		ScanInterval: time.Minute,
		QueuedGrace:  2 * time.Minute,
		BatchSize:    25,
	})
	monitor.now = func() time.Time { return now }

	result := monitor.ScanOnce(context.Background())

	assert.Equal(t, ScanResult{Generation: 2, Packing: 1, ReverseJobs: 1}, result)
	assert.Equal(t, []string{"b-1", "b-2"}, dispatcher.generation)
	assert.Equal(t, []string{"b-3"}, dispatcher.packing)
	assert.Equal(t, []string{"j-1"}, dispatcher.reverse)
	assert.Equal(t, now.Add(-2*time.Minute), gotQueuedBefore)
	assert.Equal(t, now, gotNow)
	assert.Equal(t, 25, gotLimit)
}

func TestLeaseMonitor_ScanOnceContinuesPastErrors(t *testing.T) {
	batches := &mockBatchFinder{
		FindStalledGenerationFunc: func(context.Context, time.Time, time.Time, int) ([]*domain.Batch, error) {
			return nil, domain.ErrTransientStore
		},
		FindStalledPackingFunc: func(context.Context, time.Time, time.Time, int) ([]*domain.Batch, error) {
			return []*domain.Batch{{ID: "b-bad"}, {ID: "b-ok"}}, nil
		},
	}
	dispatcher := &mockDispatcher{failID: "b-bad"}
	monitor := NewLeaseMonitor(batches, &mockJobFinder{}, dispatcher, logging.NewNop(), nil, nil)

	result := monitor.ScanOnce(context.Background())

	assert.Equal(t, ScanResult{Packing: 1, Errors: 2}, result)
	assert.Equal(t, []string{"b-ok"}, dispatcher.packing)
}

func TestLeaseMonitor_StartStop(t *testing.T) {
	scanned := make(chan struct{}, 1)
	batches := &mockBatchFinder{
		FindStalledGenerationFunc: func(context.Context, time.Time, time.Time, int) ([]*domain.Batch, error) {
			select {
			case scanned <- struct{}{}:
			default:
			}
			return nil, nil
		},
	}
	monitor := NewLeaseMonitor(batches, &mockJobFinder{}, &mockDispatcher{}, logging.NewNop(), nil, &LeaseMonitorConfig{
		ScanInterval: 5 * time.Millisecond,
		QueuedGrace:  time.Minute,
		BatchSize:    10,
	})

	require.NoError(t, monitor.Start(context.Background()))
	assert.Error(t, monitor.Start(context.Background()))

	select {
	case <-scanned:
	case <-time.After(2 * time.Second):
		t.Fatal("lease monitor did not scan")
	}

	require.NoError(t, monitor.Stop())
	assert.Error(t, monitor.Stop())
}
