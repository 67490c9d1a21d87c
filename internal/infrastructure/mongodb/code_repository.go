package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/qrbatch-service/internal/domain"
	pkgmongo "github.com/wms-platform/qrbatch-service/pkg/mongodb"
)

// CodeRepository implements domain.CodeRepository over the master and
// unique code collections
type CodeRepository struct {
	masters *mongo.Collection
	uniques *mongo.Collection
}

// NewCodeRepository creates a new CodeRepository
func NewCodeRepository(db *mongo.Database) *CodeRepository {
	return &CodeRepository{
		masters: db.Collection(MasterCodesCollection),
		uniques: db.Collection(UniqueCodesCollection),
	}
}

// EnsureIndexes creates the code indexes. Code values are globally unique
// and (batch, position) pairs are unique so re-inserted chunks are skipped.
func (r *CodeRepository) EnsureIndexes(ctx context.Context) error {
	if err := pkgmongo.EnsureIndexes(ctx, r.masters,
		mongo.IndexModel{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		mongo.IndexModel{Keys: bson.D{{Key: "batchId", Value: 1}, {Key: "caseNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
		mongo.IndexModel{Keys: bson.D{{Key: "batchId", Value: 1}, {Key: "status", Value: 1}, {Key: "caseNumber", Value: 1}}},
	); err != nil {
		return fmt.Errorf("master code indexes: %w", err)
	}
	if err := pkgmongo.EnsureIndexes(ctx, r.uniques,
		mongo.IndexModel{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		mongo.IndexModel{Keys: bson.D{{Key: "batchId", Value: 1}, {Key: "sequence", Value: 1}}, Options: options.Index().SetUnique(true)},
		mongo.IndexModel{Keys: bson.D{{Key: "batchId", Value: 1}, {Key: "status", Value: 1}, {Key: "sequence", Value: 1}}},
		mongo.IndexModel{Keys: bson.D{{Key: "batchId", Value: 1}, {Key: "caseNumber", Value: 1}, {Key: "sequence", Value: 1}}},
	); err != nil {
		return fmt.Errorf("unique code indexes: %w", err)
	}
	return nil
}

func (r *CodeRepository) collection(kind domain.CodeKind) *mongo.Collection {
	if kind == domain.CodeKindMaster {
		return r.masters
	}
	return r.uniques
}

// positionField is the ordering field of a code kind
func positionField(kind domain.CodeKind) string {
	if kind == domain.CodeKindMaster {
		return "caseNumber"
	}
	return "sequence"
}

// InsertMasterCodes inserts the codes, skipping cases that already exist
func (r *CodeRepository) InsertMasterCodes(ctx context.Context, codes []domain.MasterCode) error {
	if len(codes) == 0 {
		return nil
	}
	docs := make([]interface{}, len(codes))
	for i := range codes {
		docs[i] = codes[i]
	}
	_, err := r.masters.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return storeError("failed to insert master codes", ignoreDuplicates(err))
}

// InsertUniqueCodes inserts the codes, skipping sequences that already exist
func (r *CodeRepository) InsertUniqueCodes(ctx context.Context, codes []domain.UniqueCode) error {
	if len(codes) == 0 {
		return nil
	}
	docs := make([]interface{}, len(codes))
	for i := range codes {
		docs[i] = codes[i]
	}
	_, err := r.uniques.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return storeError("failed to insert unique codes", ignoreDuplicates(err))
}

// ListMasterCodes returns up to limit master codes after afterCase
func (r *CodeRepository) ListMasterCodes(ctx context.Context, batchID string, afterCase, limit int) ([]domain.MasterCode, error) {
	filter := bson.M{"batchId": batchID, "caseNumber": bson.M{"$gt": afterCase}}
	opts := options.Find().SetSort(pkgmongo.SortAscending("caseNumber")).SetLimit(int64(limit))
	cursor, err := r.masters.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeError("failed to list master codes", err)
	}
	defer cursor.Close(ctx)

	var codes []domain.MasterCode
	if err := cursor.All(ctx, &codes); err != nil {
		return nil, storeError("failed to decode master codes", err)
	}
	return codes, nil
}

// ListUniqueCodes returns up to limit unique codes after afterSequence
func (r *CodeRepository) ListUniqueCodes(ctx context.Context, batchID string, afterSequence, limit int) ([]domain.UniqueCode, error) {
	filter := bson.M{"batchId": batchID, "sequence": bson.M{"$gt": afterSequence}}
	return r.findUniques(ctx, filter, limit)
}

func (r *CodeRepository) findUniques(ctx context.Context, filter bson.M, limit int) ([]domain.UniqueCode, error) {
	opts := options.Find().SetSort(pkgmongo.SortAscending("sequence")).SetLimit(int64(limit))
	cursor, err := r.uniques.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeError("failed to find unique codes", err)
	}
	defer cursor.Close(ctx)

	var codes []domain.UniqueCode
	if err := cursor.All(ctx, &codes); err != nil {
		return nil, storeError("failed to decode unique codes", err)
	}
	return codes, nil
}

// CountByStatus groups the batch's codes of one kind by status
func (r *CodeRepository) CountByStatus(ctx context.Context, kind domain.CodeKind, batchID string) (domain.StatusHistogram, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"batchId": batchID}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := r.collection(kind).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, storeError("failed to count codes by status", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status domain.CodeStatus `bson:"_id"`
		Count  int64             `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, storeError("failed to decode status counts", err)
	}
	histogram := make(domain.StatusHistogram, len(rows))
	for _, row := range rows {
		histogram[row.Status] = row.Count
	}
	return histogram, nil
}

// CountInStatus counts the batch's codes of one kind in any of statuses
func (r *CodeRepository) CountInStatus(ctx context.Context, kind domain.CodeKind, batchID string, statuses ...domain.CodeStatus) (int64, error) {
	n, err := r.collection(kind).CountDocuments(ctx, bson.M{"batchId": batchID, "status": bson.M{"$in": statuses}})
	if err != nil {
		return 0, storeError("failed to count codes", err)
	}
	return n, nil
}

// AdvanceChunk selects up to limit row ids in from, lowest position first,
// then moves only those still in from
func (r *CodeRepository) AdvanceChunk(ctx context.Context, kind domain.CodeKind, batchID string, from, to domain.CodeStatus, limit int) (int64, error) {
	coll := r.collection(kind)
	opts := options.Find().
		SetSort(pkgmongo.SortAscending(positionField(kind))).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"_id": 1})

	cursor, err := coll.Find(ctx, bson.M{"batchId": batchID, "status": from}, opts)
	if err != nil {
		return 0, storeError("failed to select codes", err)
	}
	var ids []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &ids); err != nil {
		return 0, storeError("failed to decode code ids", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make(bson.A, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.ID)
	}
	res, err := coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": keys}, "status": from},
		pkgmongo.BuildUpdateWithTimestamp(bson.M{"status": to}),
	)
	if err != nil {
		return 0, storeError("failed to advance codes", err)
	}
	return res.ModifiedCount, nil
}

// AdvanceAll moves every row of the batch in from
func (r *CodeRepository) AdvanceAll(ctx context.Context, kind domain.CodeKind, batchID string, from, to domain.CodeStatus) (int64, error) {
	res, err := r.collection(kind).UpdateMany(ctx,
		bson.M{"batchId": batchID, "status": from},
		pkgmongo.BuildUpdateWithTimestamp(bson.M{"status": to}),
	)
	if err != nil {
		return 0, storeError("failed to advance codes", err)
	}
	return res.ModifiedCount, nil
}

// AdvanceRange moves rows in from whose position is within [lo, hi]
func (r *CodeRepository) AdvanceRange(ctx context.Context, kind domain.CodeKind, batchID string, from, to domain.CodeStatus, lo, hi int) (int64, error) {
	filter := bson.M{
		"batchId":           batchID,
		"status":            from,
		positionField(kind): bson.M{"$gte": lo, "$lte": hi},
	}
	res, err := r.collection(kind).UpdateMany(ctx, filter, pkgmongo.BuildUpdateWithTimestamp(bson.M{"status": to}))
	if err != nil {
		return 0, storeError("failed to advance code range", err)
	}
	return res.ModifiedCount, nil
}

func candidateFilter(f domain.CandidateFilter) bson.M {
	filter := bson.M{"batchId": f.BatchID}
	if f.VariantID != "" {
		filter["variantId"] = f.VariantID
	}
	if len(f.CaseNumbers) > 0 {
		filter["caseNumber"] = bson.M{"$in": f.CaseNumbers}
	}
	return filter
}

// CountCandidates counts the unique codes matching the reverse job filter
func (r *CodeRepository) CountCandidates(ctx context.Context, filter domain.CandidateFilter) (int64, error) {
	n, err := r.uniques.CountDocuments(ctx, candidateFilter(filter))
	if err != nil {
		return 0, storeError("failed to count candidates", err)
	}
	return n, nil
}

// FindCandidates returns up to limit matching codes after afterSequence
func (r *CodeRepository) FindCandidates(ctx context.Context, filter domain.CandidateFilter, afterSequence, limit int) ([]domain.UniqueCode, error) {
	f := candidateFilter(filter)
	f["sequence"] = bson.M{"$gt": afterSequence}
	return r.findUniques(ctx, f, limit)
}
