package application

import (
	"context"
	"io"
	"time"

	"github.com/wms-platform/qrbatch-service/internal/domain"
)

// TaskDispatcher hands work to the durable worker queue. Dispatching the same
// id twice joins the running execution.
type TaskDispatcher interface {
	DispatchGeneration(ctx context.Context, batchID string) error
	DispatchPacking(ctx context.Context, batchID string) error
	DispatchReverseJob(ctx context.Context, jobID string) error
}

// CodePages reads a batch's codes in order, one page per call. An empty
// page ends the kind.
type CodePages interface {
	NextMasters(ctx context.Context) ([]domain.MasterCode, error)
	NextUniques(ctx context.Context) ([]domain.UniqueCode, error)
}

// Exporter streams the code manifest of a batch to w
type Exporter interface {
	Export(ctx context.Context, batch *domain.Batch, pages CodePages, w io.Writer) error
	Extension() string
}

// LabelRenderer draws the printable labels of a run of cases
type LabelRenderer interface {
	Render(ctx context.Context, batch *domain.Batch, masters []domain.MasterCode, uniques []domain.UniqueCode) ([]byte, error)
}

// FileStore keeps exports and hands out time-limited links
type FileStore interface {
	// Write streams a file under key, replacing it only when write succeeds
	Write(ctx context.Context, key string, write func(io.Writer) error) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error)
}

// Repositories groups the stores the services write to
type Repositories struct {
	Batches       domain.BatchRepository
	Codes         domain.CodeRepository
	Movements     domain.MovementRepository
	Reports       domain.ValidationReportRepository
	Payments      domain.BalancePaymentRepository
	ReverseJobs   domain.ReverseJobRepository
	PreparedCodes domain.PreparedCodeRepository
	JobLogs       domain.ReverseJobLogRepository
}
