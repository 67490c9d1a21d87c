package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StatusHistogram counts codes per status
type StatusHistogram map[CodeStatus]int64

// Total sums every bucket
func (h StatusHistogram) Total() int64 {
	var n int64
	for _, c := range h {
		n += c
	}
	return n
}

// PackedOrBeyond sums the buckets at or past packed
func (h StatusHistogram) PackedOrBeyond() int64 {
	var n int64
	for s, c := range h {
		if s.IsPackedOrBeyond() {
			n += c
		}
	}
	return n
}

// ValidationReport is a point-in-time consistency check of a batch
type ValidationReport struct {
	ID          string          `bson:"_id" json:"id"`
	BatchID     string          `bson:"batchId" json:"batchId"`
	BatchStatus BatchStatus     `bson:"batchStatus" json:"batchStatus"`
	Master      StatusHistogram `bson:"master" json:"master"`
	Unique      StatusHistogram `bson:"unique" json:"unique"`
	Violations  []string        `bson:"violations" json:"violations"`
	Valid       bool            `bson:"valid" json:"valid"`
	CreatedBy   string          `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt   time.Time       `bson:"createdAt" json:"createdAt"`
}

// BuildValidationReport checks the batch counters against the code
// histograms.
func BuildValidationReport(b *Batch, master, unique StatusHistogram, createdBy string, now time.Time) *ValidationReport {
	var violations []string

	if n := master.Total(); n > int64(b.TotalMasterCodes) {
		violations = append(violations, fmt.Sprintf("master rows %d exceed total %d", n, b.TotalMasterCodes))
	}
	if n := unique.Total(); n > int64(b.TotalUniqueCodes) {
		violations = append(violations, fmt.Sprintf("unique rows %d exceed total %d", n, b.TotalUniqueCodes))
	}
	if b.QRInsertedCount > b.TotalUniqueCodes {
		violations = append(violations, fmt.Sprintf("qr inserted count %d exceeds total %d", b.QRInsertedCount, b.TotalUniqueCodes))
	}
	if n := unique.Total(); n < int64(b.QRInsertedCount) {
		violations = append(violations, fmt.Sprintf("qr inserted count %d but only %d unique rows", b.QRInsertedCount, n))
	}

	if b.Status.HasExport() {
		if n := master.Total(); n != int64(b.TotalMasterCodes) {
			violations = append(violations, fmt.Sprintf("generated batch has %d of %d master rows", n, b.TotalMasterCodes))
		}
		if n := unique.Total(); n != int64(b.TotalUniqueCodes) {
			violations = append(violations, fmt.Sprintf("generated batch has %d of %d unique rows", n, b.TotalUniqueCodes))
		}
	}

	if b.Status == BatchStatusPrinting || b.Status == BatchStatusInProduction || b.Status == BatchStatusCompleted {
		if n := master[CodeStatusGenerated]; n > 0 {
			violations = append(violations, fmt.Sprintf("%d master codes still generated after printing", n))
		}
		if n := unique[CodeStatusGenerated]; n > 0 {
			violations = append(violations, fmt.Sprintf("%d unique codes still generated after printing", n))
		}
	}

	if b.PackingStatus == PackingStatusCompleted {
		if n := unique.PackedOrBeyond(); n != int64(b.TotalUniqueCodes) {
			violations = append(violations, fmt.Sprintf("packing completed with %d of %d unique codes packed", n, b.TotalUniqueCodes))
		}
	}

	return &ValidationReport{
		ID:          uuid.New().String(),
		BatchID:     b.ID,
		BatchStatus: b.Status,
		Master:      master,
		Unique:      unique,
		Violations:  violations,
		Valid:       len(violations) == 0,
		CreatedBy:   createdBy,
		CreatedAt:   now,
	}
}
