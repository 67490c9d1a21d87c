package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/qrbatch-service/internal/domain"
	pkgmongo "github.com/wms-platform/qrbatch-service/pkg/mongodb"
)

// MovementRepository implements domain.MovementRepository
type MovementRepository struct {
	collection *mongo.Collection
}

// NewMovementRepository creates a new MovementRepository
func NewMovementRepository(db *mongo.Database) *MovementRepository {
	return &MovementRepository{collection: db.Collection(MovementsCollection)}
}

// EnsureIndexes creates the movement index
func (r *MovementRepository) EnsureIndexes(ctx context.Context) error {
	return pkgmongo.EnsureIndexes(ctx, r.collection,
		mongo.IndexModel{Keys: bson.D{{Key: "batchId", Value: 1}, {Key: "occurredAt", Value: 1}}},
	)
}

// Record stores one movement row
func (r *MovementRepository) Record(ctx context.Context, movement domain.CodeMovement) error {
	if _, err := r.collection.InsertOne(ctx, movement); err != nil {
		return storeError("failed to record movement", err)
	}
	return nil
}

// ListByBatch returns a batch's movements oldest first
func (r *MovementRepository) ListByBatch(ctx context.Context, batchID string) ([]domain.CodeMovement, error) {
	opts := options.Find().SetSort(pkgmongo.SortAscending("occurredAt"))
	cursor, err := r.collection.Find(ctx, bson.M{"batchId": batchID}, opts)
	if err != nil {
		return nil, storeError("failed to list movements", err)
	}
	defer cursor.Close(ctx)

	var movements []domain.CodeMovement
	if err := cursor.All(ctx, &movements); err != nil {
		return nil, storeError("failed to decode movements", err)
	}
	return movements, nil
}

// ValidationReportRepository implements domain.ValidationReportRepository
type ValidationReportRepository struct {
	collection *mongo.Collection
}

// NewValidationReportRepository creates a new ValidationReportRepository
func NewValidationReportRepository(db *mongo.Database) *ValidationReportRepository {
	return &ValidationReportRepository{collection: db.Collection(ValidationReportsCollection)}
}

// EnsureIndexes creates the report index
func (r *ValidationReportRepository) EnsureIndexes(ctx context.Context) error {
	return pkgmongo.EnsureIndexes(ctx, r.collection,
		mongo.IndexModel{Keys: bson.D{{Key: "batchId", Value: 1}, {Key: "createdAt", Value: -1}}},
	)
}

// Save stores a report
func (r *ValidationReportRepository) Save(ctx context.Context, report *domain.ValidationReport) error {
	if _, err := r.collection.InsertOne(ctx, report); err != nil {
		return storeError("failed to save validation report", err)
	}
	return nil
}

// BalancePaymentRepository implements domain.BalancePaymentRepository with
// one request per order
type BalancePaymentRepository struct {
	collection *mongo.Collection
}

// NewBalancePaymentRepository creates a new BalancePaymentRepository
func NewBalancePaymentRepository(db *mongo.Database) *BalancePaymentRepository {
	return &BalancePaymentRepository{collection: db.Collection(BalancePaymentsCollection)}
}

// EnsureIndexes creates the unique order index
func (r *BalancePaymentRepository) EnsureIndexes(ctx context.Context) error {
	return pkgmongo.EnsureIndexes(ctx, r.collection,
		mongo.IndexModel{Keys: bson.D{{Key: "orderId", Value: 1}}, Options: options.Index().SetUnique(true)},
	)
}

// CreateIfAbsent inserts the request unless the order already has one
func (r *BalancePaymentRepository) CreateIfAbsent(ctx context.Context, request *domain.BalancePaymentRequest) (bool, error) {
	if _, err := r.collection.InsertOne(ctx, request); err != nil {
		if pkgmongo.IsDuplicateKey(err) {
			return false, nil
		}
		return false, storeError("failed to create balance payment request", err)
	}
	return true, nil
}
