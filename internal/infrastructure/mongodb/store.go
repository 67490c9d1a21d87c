package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/qrbatch-service/internal/domain"
	"github.com/wms-platform/qrbatch-service/pkg/cloudevents"
	"github.com/wms-platform/qrbatch-service/pkg/kafka"
	pkgmongo "github.com/wms-platform/qrbatch-service/pkg/mongodb"
	"github.com/wms-platform/qrbatch-service/pkg/outbox"
	outboxMongo "github.com/wms-platform/qrbatch-service/pkg/outbox/mongodb"
)

// Collection names
const (
	BatchesCollection           = "qr_batches"
	MasterCodesCollection       = "master_codes"
	UniqueCodesCollection       = "unique_codes"
	MovementsCollection         = "code_movements"
	ReverseJobsCollection       = "reverse_jobs"
	PreparedCodesCollection     = "prepared_codes"
	ReverseJobLogsCollection    = "reverse_job_logs"
	ValidationReportsCollection = "validation_reports"
	BalancePaymentsCollection   = "balance_payment_requests"
)

// storeError wraps err with op and marks retryable driver errors as
// domain.ErrTransientStore
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrConcurrentModification) || errors.Is(err, domain.ErrTransientStore) {
		return err
	}
	if pkgmongo.IsTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTransientStore, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// eventWriter turns domain events into outbox rows inside a transaction
type eventWriter struct {
	outbox  *outboxMongo.OutboxRepository
	factory *cloudevents.EventFactory
}

func newEventWriter(db *mongo.Database, factory *cloudevents.EventFactory) *eventWriter {
	return &eventWriter{outbox: outboxMongo.NewOutboxRepository(db), factory: factory}
}

func (w *eventWriter) save(sessCtx context.Context, aggregateType, aggregateID, batchID, orderID string, events []domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]*outbox.OutboxEvent, 0, len(events))
	for _, e := range events {
		ce := w.factory.CreateBatchEvent(sessCtx, e.EventType(), batchID, orderID, e)
		row, err := outbox.NewOutboxEventFromCloudEvent(aggregateID, aggregateType, kafka.Topics.QRBatchEvents, ce)
		if err != nil {
			return fmt.Errorf("failed to create outbox event: %w", err)
		}
		rows = append(rows, row)
	}
	if err := w.outbox.SaveAll(sessCtx, rows); err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}

// ignoreDuplicates drops duplicate key errors from an unordered bulk insert
func ignoreDuplicates(err error) error {
	if err == nil {
		return nil
	}
	var bulk mongo.BulkWriteException
	if errors.As(err, &bulk) {
		if bulk.WriteConcernError != nil {
			return err
		}
		for _, we := range bulk.WriteErrors {
			if we.Code != 11000 {
				return err
			}
		}
		return nil
	}
	if pkgmongo.IsDuplicateKey(err) {
		return nil
	}
	return err
}
