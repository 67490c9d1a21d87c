package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/qrbatch-service/pkg/cloudevents"
)

// Repositories groups every MongoDB repository of the service
type Repositories struct {
	Batches       *BatchRepository
	Codes         *CodeRepository
	Movements     *MovementRepository
	Reports       *ValidationReportRepository
	Payments      *BalancePaymentRepository
	ReverseJobs   *ReverseJobRepository
	PreparedCodes *PreparedCodeRepository
	JobLogs       *ReverseJobLogRepository
}

// NewRepositories builds the repositories on db
func NewRepositories(db *mongo.Database, eventFactory *cloudevents.EventFactory) *Repositories {
	return &Repositories{
		Batches:       NewBatchRepository(db, eventFactory),
		Codes:         NewCodeRepository(db),
		Movements:     NewMovementRepository(db),
		Reports:       NewValidationReportRepository(db),
		Payments:      NewBalancePaymentRepository(db),
		ReverseJobs:   NewReverseJobRepository(db, eventFactory),
		PreparedCodes: NewPreparedCodeRepository(db),
		JobLogs:       NewReverseJobLogRepository(db),
	}
}

// EnsureIndexes creates the indexes of every collection
func (r *Repositories) EnsureIndexes(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{BatchesCollection, r.Batches.EnsureIndexes},
		{"codes", r.Codes.EnsureIndexes},
		{MovementsCollection, r.Movements.EnsureIndexes},
		{ValidationReportsCollection, r.Reports.EnsureIndexes},
		{BalancePaymentsCollection, r.Payments.EnsureIndexes},
		{ReverseJobsCollection, r.ReverseJobs.EnsureIndexes},
		{PreparedCodesCollection, r.PreparedCodes.EnsureIndexes},
		{ReverseJobLogsCollection, r.JobLogs.EnsureIndexes},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", step.name, err)
		}
	}
	return nil
}
