package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/qrbatch-service/internal/domain"
	"github.com/wms-platform/qrbatch-service/pkg/cloudevents"
	pkgmongo "github.com/wms-platform/qrbatch-service/pkg/mongodb"
)

// ReverseJobRepository implements domain.ReverseJobRepository using MongoDB
type ReverseJobRepository struct {
	db         *mongo.Database
	collection *mongo.Collection
	events     *eventWriter
}

// NewReverseJobRepository creates a new ReverseJobRepository
func NewReverseJobRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory) *ReverseJobRepository {
	return &ReverseJobRepository{
		db:         db,
		collection: db.Collection(ReverseJobsCollection),
		events:     newEventWriter(db, eventFactory),
	}
}

// EnsureIndexes creates the reverse job indexes
func (r *ReverseJobRepository) EnsureIndexes(ctx context.Context) error {
	return pkgmongo.EnsureIndexes(ctx, r.collection,
		mongo.IndexModel{Keys: bson.D{{Key: "batchId", Value: 1}, {Key: "createdAt", Value: -1}}},
		mongo.IndexModel{Keys: bson.D{{Key: "status", Value: 1}, {Key: "lockedUntil", Value: 1}}},
	)
}

// Create inserts a queued job
func (r *ReverseJobRepository) Create(ctx context.Context, job *domain.ReverseJob) error {
	if _, err := r.collection.InsertOne(ctx, job); err != nil {
		return storeError("failed to create reverse job", err)
	}
	return nil
}

// Update replaces the job if its version is unchanged and stores its
// domain events in the same transaction
func (r *ReverseJobRepository) Update(ctx context.Context, job *domain.ReverseJob) error {
	err := pkgmongo.WithTransaction(ctx, r.db, func(sessCtx mongo.SessionContext) error {
		doc := *job
		doc.Version = job.Version + 1
		doc.UpdatedAt = pkgmongo.Now()

		res, err := r.collection.ReplaceOne(sessCtx, bson.M{"_id": job.ID, "version": job.Version}, &doc)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return domain.ErrConcurrentModification
		}
		return r.events.save(sessCtx, "ReverseJob", job.ID, job.BatchID, job.OrderID, job.DomainEvents)
	})
	if err != nil {
		return storeError("failed to update reverse job", err)
	}
	job.Version++
	job.DomainEvents = nil
	return nil
}

// FindByID retrieves a job by its ID
func (r *ReverseJobRepository) FindByID(ctx context.Context, jobID string) (*domain.ReverseJob, error) {
	var job domain.ReverseJob
	err := r.collection.FindOne(ctx, bson.M{"_id": jobID}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, storeError("failed to find reverse job", err)
	}
	return &job, nil
}

// Claim moves a queued job to running, or re-leases a running job whose
// lease is free
func (r *ReverseJobRepository) Claim(ctx context.Context, jobID, workerID string, until time.Time) (*domain.ReverseJob, error) {
	now := pkgmongo.Now()
	filter := bson.M{
		"_id": jobID,
		"$or": bson.A{
			bson.M{"status": domain.ReverseJobQueued},
			bson.M{"$and": bson.A{
				bson.M{"status": domain.ReverseJobRunning},
				leaseFree("lockedBy", "lockedUntil", workerID, now),
			}},
		},
	}
	update := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "attempts", Value: bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{"$status", domain.ReverseJobQueued}},
			bson.M{"$add": bson.A{"$attempts", 1}},
			"$attempts",
		}}},
		{Key: "status", Value: domain.ReverseJobRunning},
		{Key: "lockedBy", Value: workerID},
		{Key: "lockedUntil", Value: until},
		{Key: "startedAt", Value: bson.M{"$ifNull": bson.A{"$startedAt", now}}},
		{Key: "updatedAt", Value: now},
		{Key: "version", Value: bson.M{"$add": bson.A{"$version", 1}}},
	}}}}

	var job domain.ReverseJob
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, storeError("failed to claim reverse job", err)
	}
	return &job, nil
}

// FindStalled returns jobs queued before queuedBefore and running jobs
// whose lease expired
func (r *ReverseJobRepository) FindStalled(ctx context.Context, queuedBefore, now time.Time, limit int) ([]*domain.ReverseJob, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"status": domain.ReverseJobQueued, "updatedAt": bson.M{"$lt": queuedBefore}},
		bson.M{"status": domain.ReverseJobRunning, "lockedUntil": bson.M{"$lt": now}},
	}}
	opts := options.Find().SetSort(pkgmongo.SortAscending("updatedAt")).SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeError("failed to find stalled reverse jobs", err)
	}
	defer cursor.Close(ctx)

	var jobs []*domain.ReverseJob
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, storeError("failed to decode reverse jobs", err)
	}
	return jobs, nil
}

// PreparedCodeRepository implements domain.PreparedCodeRepository. A code
// value can be prepared by one job only.
type PreparedCodeRepository struct {
	collection *mongo.Collection
}

// NewPreparedCodeRepository creates a new PreparedCodeRepository
func NewPreparedCodeRepository(db *mongo.Database) *PreparedCodeRepository {
	return &PreparedCodeRepository{collection: db.Collection(PreparedCodesCollection)}
}

// EnsureIndexes creates the prepared code indexes
func (r *PreparedCodeRepository) EnsureIndexes(ctx context.Context) error {
	return pkgmongo.EnsureIndexes(ctx, r.collection,
		mongo.IndexModel{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		mongo.IndexModel{Keys: bson.D{{Key: "jobId", Value: 1}, {Key: "sequence", Value: 1}}},
	)
}

// Insert stores a prepared code or returns domain.ErrAlreadyPrepared
func (r *PreparedCodeRepository) Insert(ctx context.Context, code domain.PreparedCode) error {
	if _, err := r.collection.InsertOne(ctx, code); err != nil {
		if pkgmongo.IsDuplicateKey(err) {
			return domain.ErrAlreadyPrepared
		}
		return storeError("failed to insert prepared code", err)
	}
	return nil
}

// PreparedBy maps each already prepared code value to its job id
func (r *PreparedCodeRepository) PreparedBy(ctx context.Context, codes []string) (map[string]string, error) {
	result := make(map[string]string)
	if len(codes) == 0 {
		return result, nil
	}
	opts := options.Find().SetProjection(bson.M{"code": 1, "jobId": 1})
	cursor, err := r.collection.Find(ctx, bson.M{"code": bson.M{"$in": codes}}, opts)
	if err != nil {
		return nil, storeError("failed to look up prepared codes", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Code  string `bson:"code"`
		JobID string `bson:"jobId"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, storeError("failed to decode prepared codes", err)
	}
	for _, row := range rows {
		result[row.Code] = row.JobID
	}
	return result, nil
}

// ListByJob pages through a job's prepared codes by sequence
func (r *PreparedCodeRepository) ListByJob(ctx context.Context, jobID string, offset, limit int) ([]domain.PreparedCode, int64, error) {
	filter := bson.M{"jobId": jobID}
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, storeError("failed to count prepared codes", err)
	}
	opts := options.Find().
		SetSort(pkgmongo.SortAscending("sequence")).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, storeError("failed to list prepared codes", err)
	}
	defer cursor.Close(ctx)

	var codes []domain.PreparedCode
	if err := cursor.All(ctx, &codes); err != nil {
		return nil, 0, storeError("failed to decode prepared codes", err)
	}
	return codes, total, nil
}

// ReverseJobLogRepository implements domain.ReverseJobLogRepository
type ReverseJobLogRepository struct {
	collection *mongo.Collection
}

// NewReverseJobLogRepository creates a new ReverseJobLogRepository
func NewReverseJobLogRepository(db *mongo.Database) *ReverseJobLogRepository {
	return &ReverseJobLogRepository{collection: db.Collection(ReverseJobLogsCollection)}
}

// EnsureIndexes creates the job log index
func (r *ReverseJobLogRepository) EnsureIndexes(ctx context.Context) error {
	return pkgmongo.EnsureIndexes(ctx, r.collection,
		mongo.IndexModel{Keys: bson.D{{Key: "jobId", Value: 1}, {Key: "createdAt", Value: 1}}},
	)
}

// Append stores a log line
func (r *ReverseJobLogRepository) Append(ctx context.Context, entry domain.ReverseJobLog) error {
	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		return storeError("failed to append reverse job log", err)
	}
	return nil
}

// ListByJob returns a job's log lines in write order
func (r *ReverseJobLogRepository) ListByJob(ctx context.Context, jobID string) ([]domain.ReverseJobLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"jobId": jobID}, opts)
	if err != nil {
		return nil, storeError("failed to list reverse job logs", err)
	}
	defer cursor.Close(ctx)

	var entries []domain.ReverseJobLog
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, storeError("failed to decode reverse job logs", err)
	}
	return entries, nil
}
