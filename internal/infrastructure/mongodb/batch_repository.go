package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/qrbatch-service/internal/domain"
	"github.com/wms-platform/qrbatch-service/pkg/cloudevents"
	pkgmongo "github.com/wms-platform/qrbatch-service/pkg/mongodb"
)

// batchDocument adds the active flag the partial unique index keys on
type batchDocument struct {
	domain.Batch `bson:",inline"`
	Active       bool `bson:"active"`
}

func toBatchDocument(b *domain.Batch) *batchDocument {
	return &batchDocument{Batch: *b, Active: b.IsActive()}
}

// BatchRepository implements domain.BatchRepository using MongoDB
type BatchRepository struct {
	db          *mongo.Database
	collection  *mongo.Collection
	masterCodes *mongo.Collection
	uniqueCodes *mongo.Collection
	events      *eventWriter
}

// NewBatchRepository creates a new BatchRepository
func NewBatchRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory) *BatchRepository {
	return &BatchRepository{
		db:          db,
		collection:  db.Collection(BatchesCollection),
		masterCodes: db.Collection(MasterCodesCollection),
		uniqueCodes: db.Collection(UniqueCodesCollection),
		events:      newEventWriter(db, eventFactory),
	}
}

// EnsureIndexes creates the batch indexes. At most one active batch may
// exist per order.
func (r *BatchRepository) EnsureIndexes(ctx context.Context) error {
	if err := pkgmongo.EnsureIndexes(ctx, r.collection,
		mongo.IndexModel{
			Keys: bson.D{{Key: "orderId", Value: 1}},
			Options: options.Index().
				SetName("one_active_batch_per_order").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		mongo.IndexModel{Keys: bson.D{{Key: "orderId", Value: 1}, {Key: "createdAt", Value: -1}}},
		mongo.IndexModel{Keys: bson.D{{Key: "status", Value: 1}, {Key: "lockedUntil", Value: 1}}},
		mongo.IndexModel{Keys: bson.D{{Key: "packingStatus", Value: 1}, {Key: "createdAt", Value: 1}}},
	); err != nil {
		return err
	}
	return r.events.outbox.EnsureIndexes(ctx)
}

// Create inserts a new batch with its domain events
func (r *BatchRepository) Create(ctx context.Context, batch *domain.Batch) error {
	batch.UpdatedAt = pkgmongo.Now()
	err := pkgmongo.WithTransaction(ctx, r.db, func(sessCtx mongo.SessionContext) error {
		if _, err := r.collection.InsertOne(sessCtx, toBatchDocument(batch)); err != nil {
			return err
		}
		return r.events.save(sessCtx, "Batch", batch.ID, batch.ID, batch.OrderID, batch.DomainEvents)
	})
	if err != nil {
		if pkgmongo.IsDuplicateKey(err) {
			return domain.ErrActiveBatchExists
		}
		return storeError("failed to create batch", err)
	}
	batch.ClearDomainEvents()
	return nil
}

// Update replaces the batch if its version is unchanged and stores its
// domain events in the same transaction
func (r *BatchRepository) Update(ctx context.Context, batch *domain.Batch) error {
	err := pkgmongo.WithTransaction(ctx, r.db, func(sessCtx mongo.SessionContext) error {
		return r.replace(sessCtx, batch)
	})
	if err != nil {
		if pkgmongo.IsDuplicateKey(err) {
			return domain.ErrActiveBatchExists
		}
		return storeError("failed to update batch", err)
	}
	batch.Version++
	batch.ClearDomainEvents()
	return nil
}

// replace runs the versioned replace and outbox insert on sessCtx. The
// caller bumps the in-memory version once the transaction commits.
func (r *BatchRepository) replace(sessCtx mongo.SessionContext, batch *domain.Batch) error {
	doc := toBatchDocument(batch)
	doc.Version = batch.Version + 1
	doc.UpdatedAt = pkgmongo.Now()

	res, err := r.collection.ReplaceOne(sessCtx, bson.M{"_id": batch.ID, "version": batch.Version}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrConcurrentModification
	}
	batch.UpdatedAt = doc.UpdatedAt
	return r.events.save(sessCtx, "Batch", batch.ID, batch.ID, batch.OrderID, batch.DomainEvents)
}

// FindByID retrieves a batch by its ID
func (r *BatchRepository) FindByID(ctx context.Context, batchID string) (*domain.Batch, error) {
	return r.findOne(ctx, bson.M{"_id": batchID}, nil)
}

// FindByOrderID returns every batch of an order, newest first
func (r *BatchRepository) FindByOrderID(ctx context.Context, orderID string) ([]*domain.Batch, error) {
	opts := options.Find().SetSort(pkgmongo.SortDescending("createdAt"))
	return r.findMany(ctx, bson.M{"orderId": orderID}, opts)
}

// FindActiveByOrderID returns the batch blocking new submissions for the order
func (r *BatchRepository) FindActiveByOrderID(ctx context.Context, orderID string) (*domain.Batch, error) {
	return r.findOne(ctx, bson.M{"orderId": orderID, "active": true}, nil)
}

// leaseFree matches documents whose lease is absent, expired, or held by workerID
func leaseFree(byField, untilField, workerID string, now time.Time) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{byField: workerID},
		bson.M{untilField: nil},
		bson.M{untilField: bson.M{"$lt": now}},
	}}
}

// ClaimGeneration moves a queued batch to processing, or re-leases a
// processing batch whose lease is free, in one findAndModify
func (r *BatchRepository) ClaimGeneration(ctx context.Context, batchID, workerID string, until time.Time) (*domain.Batch, error) {
	now := pkgmongo.Now()
	filter := bson.M{
		"_id": batchID,
		"$or": bson.A{
			bson.M{"status": domain.BatchStatusQueued},
			bson.M{"$and": bson.A{
				bson.M{"status": domain.BatchStatusProcessing},
				leaseFree("lockedBy", "lockedUntil", workerID, now),
			}},
		},
	}
	update := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "attempts", Value: bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{"$status", domain.BatchStatusQueued}},
			bson.M{"$add": bson.A{"$attempts", 1}},
			"$attempts",
		}}},
		{Key: "status", Value: domain.BatchStatusProcessing},
		{Key: "lockedBy", Value: workerID},
		{Key: "lockedUntil", Value: until},
		{Key: "processingStartedAt", Value: bson.M{"$ifNull": bson.A{"$processingStartedAt", now}}},
		{Key: "updatedAt", Value: now},
		{Key: "version", Value: bson.M{"$add": bson.A{"$version", 1}}},
	}}}}
	return r.findAndModify(ctx, filter, update, "failed to claim batch")
}

// UpdateInsertProgress advances the insert cursors while workerID holds the lease
func (r *BatchRepository) UpdateInsertProgress(ctx context.Context, batchID, workerID string, masterInserted, qrInserted int, until time.Time) (*domain.Batch, error) {
	filter := bson.M{
		"_id":      batchID,
		"status":   domain.BatchStatusProcessing,
		"lockedBy": workerID,
	}
	update := bson.M{
		"$max": bson.M{
			"masterInsertedCount": masterInserted,
			"qrInsertedCount":     qrInserted,
		},
		"$set": bson.M{
			"lockedUntil": until,
			"updatedAt":   pkgmongo.Now(),
		},
		"$inc": bson.M{"version": 1},
	}
	batch, err := r.findAndModify(ctx, filter, update, "failed to update insert progress")
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrLeaseLost
	}
	return batch, nil
}

// ClaimPacking takes the packing lease of a printing or in_production batch
func (r *BatchRepository) ClaimPacking(ctx context.Context, batchID, workerID string, until time.Time) (*domain.Batch, error) {
	now := pkgmongo.Now()
	filter := bson.M{
		"_id":    batchID,
		"status": bson.M{"$in": domain.PackableBatchStatuses()},
		"$or": bson.A{
			bson.M{"packingStatus": domain.PackingStatusQueued},
			bson.M{"$and": bson.A{
				bson.M{"packingStatus": domain.PackingStatusProcessing},
				leaseFree("packingLockedBy", "packingLockedUntil", workerID, now),
			}},
		},
	}
	update := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "packingStatus", Value: domain.PackingStatusProcessing},
		{Key: "packingLockedBy", Value: workerID},
		{Key: "packingLockedUntil", Value: until},
		{Key: "packingStartedAt", Value: bson.M{"$ifNull": bson.A{"$packingStartedAt", now}}},
		{Key: "updatedAt", Value: now},
		{Key: "version", Value: bson.M{"$add": bson.A{"$version", 1}}},
	}}}}
	return r.findAndModify(ctx, filter, update, "failed to claim packing")
}

// FindNextPacking returns the oldest packable batch with packing queued or
// processing
func (r *BatchRepository) FindNextPacking(ctx context.Context) (*domain.Batch, error) {
	filter := bson.M{
		"status":        bson.M{"$in": domain.PackableBatchStatuses()},
		"packingStatus": bson.M{"$in": bson.A{domain.PackingStatusQueued, domain.PackingStatusProcessing}},
	}
	return r.findOne(ctx, filter, options.FindOne().SetSort(pkgmongo.SortAscending("createdAt")))
}

// FindStalledGeneration returns batches queued before queuedBefore and
// processing batches whose lease expired
func (r *BatchRepository) FindStalledGeneration(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*domain.Batch, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"status": domain.BatchStatusQueued, "updatedAt": bson.M{"$lt": queuedBefore}},
		bson.M{"status": domain.BatchStatusProcessing, "lockedUntil": bson.M{"$lt": now}},
	}}
	opts := options.Find().SetSort(pkgmongo.SortAscending("updatedAt")).SetLimit(int64(limit))
	return r.findMany(ctx, filter, opts)
}

// FindStalledPacking is FindStalledGeneration for the packing sub-state
func (r *BatchRepository) FindStalledPacking(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*domain.Batch, error) {
	filter := bson.M{
		"status": bson.M{"$in": domain.PackableBatchStatuses()},
		"$or": bson.A{
			bson.M{"packingStatus": domain.PackingStatusQueued, "updatedAt": bson.M{"$lt": queuedBefore}},
			bson.M{"packingStatus": domain.PackingStatusProcessing, "packingLockedUntil": bson.M{"$lt": now}},
		},
	}
	opts := options.Find().SetSort(pkgmongo.SortAscending("updatedAt")).SetLimit(int64(limit))
	return r.findMany(ctx, filter, opts)
}

// TransitionToPrinting writes the printing batch and flips its generated
// master and unique codes to printed in one transaction
func (r *BatchRepository) TransitionToPrinting(ctx context.Context, batch *domain.Batch) (domain.PrintResult, error) {
	var result domain.PrintResult
	err := pkgmongo.WithTransaction(ctx, r.db, func(sessCtx mongo.SessionContext) error {
		result = domain.PrintResult{}
		if err := r.replace(sessCtx, batch); err != nil {
			return err
		}
		filter := bson.M{"batchId": batch.ID, "status": domain.CodeStatusGenerated}
		update := pkgmongo.BuildUpdateWithTimestamp(bson.M{"status": domain.CodeStatusPrinted})

		masters, err := r.masterCodes.UpdateMany(sessCtx, filter, update)
		if err != nil {
			return fmt.Errorf("failed to print master codes: %w", err)
		}
		uniques, err := r.uniqueCodes.UpdateMany(sessCtx, filter, update)
		if err != nil {
			return fmt.Errorf("failed to print unique codes: %w", err)
		}
		result.MasterPrinted = masters.ModifiedCount
		result.UniquePrinted = uniques.ModifiedCount
		return nil
	})
	if err != nil {
		return domain.PrintResult{}, storeError("print transition failed", err)
	}
	batch.Version++
	batch.ClearDomainEvents()
	return result, nil
}

func (r *BatchRepository) findAndModify(ctx context.Context, filter, update interface{}, op string) (*domain.Batch, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc batchDocument
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, storeError(op, err)
	}
	return &doc.Batch, nil
}

func (r *BatchRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*domain.Batch, error) {
	if opts == nil {
		opts = options.FindOne()
	}
	var doc batchDocument
	err := r.collection.FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, storeError("failed to find batch", err)
	}
	return &doc.Batch, nil
}

func (r *BatchRepository) findMany(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Batch, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeError("failed to find batches", err)
	}
	defer cursor.Close(ctx)

	var docs []batchDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storeError("failed to decode batches", err)
	}
	batches := make([]*domain.Batch, 0, len(docs))
	for i := range docs {
		batches = append(batches, &docs[i].Batch)
	}
	return batches, nil
}
