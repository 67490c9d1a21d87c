package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrInvalidQuantity     = errors.New("quantity must be greater than zero")
	ErrInvalidBuffer       = errors.New("buffer percentage must be between 0 and 100")
	ErrInvalidUnitsPerCase = errors.New("units per case must be greater than zero")
	ErrOrderRequired       = errors.New("order id is required")
)

// CodeStatus is the position of a master or unique code in the physical pipeline
type CodeStatus string

const (
	CodeStatusGenerated          CodeStatus = "generated"
	CodeStatusPrinted            CodeStatus = "printed"
	CodeStatusPacked             CodeStatus = "packed"
	CodeStatusWarehousePacked    CodeStatus = "warehouse_packed"
	CodeStatusReadyToShip        CodeStatus = "ready_to_ship"
	CodeStatusCompleted          CodeStatus = "completed"
	CodeStatusReceivedWarehouse  CodeStatus = "received_warehouse"
	CodeStatusShippedDistributor CodeStatus = "shipped_distributor"
	CodeStatusOpened             CodeStatus = "opened"
)

// codePipeline is ordered; a code only ever moves to the right
var codePipeline = []CodeStatus{
	CodeStatusGenerated,
	CodeStatusPrinted,
	CodeStatusPacked,
	CodeStatusWarehousePacked,
	CodeStatusReadyToShip,
	CodeStatusCompleted,
	CodeStatusReceivedWarehouse,
	CodeStatusShippedDistributor,
	CodeStatusOpened,
}

// Rank returns the pipeline position of s, or -1 for unknown statuses
func (s CodeStatus) Rank() int {
	for i, status := range codePipeline {
		if status == s {
			return i
		}
	}
	return -1
}

// IsValid reports whether s is a known pipeline status
func (s CodeStatus) IsValid() bool {
	return s.Rank() >= 0
}

// IsPackedOrBeyond reports whether s counts toward packing progress
func (s CodeStatus) IsPackedOrBeyond() bool {
	return s.Rank() >= CodeStatusPacked.Rank()
}

// IsRelinkable reports whether a unit can still be moved to another case.
// Anything past warehouse_packed has left the packing floor.
func (s CodeStatus) IsRelinkable() bool {
	return s.IsValid() && s.Rank() <= CodeStatusWarehousePacked.Rank()
}

// CanAdvance reports whether a code may move from one status to another.
// Only the next pipeline step is allowed, except the production completion
// shortcut from packed straight to ready_to_ship.
func CanAdvance(from, to CodeStatus) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from == CodeStatusPacked && to == CodeStatusReadyToShip {
		return true
	}
	return to.Rank() == from.Rank()+1
}

// PackedOrBeyondStatuses lists every status that counts as packed
func PackedOrBeyondStatuses() []CodeStatus {
	return append([]CodeStatus(nil), codePipeline[CodeStatusPacked.Rank():]...)
}

// CodeKind distinguishes case-level from unit-level codes
type CodeKind string

const (
	CodeKindMaster CodeKind = "master"
	CodeKindUnique CodeKind = "unique"
)

// MasterCode identifies a case/carton
type MasterCode struct {
	ID            string     `bson:"_id" json:"id"`
	Code          string     `bson:"code" json:"code"`
	BatchID       string     `bson:"batchId" json:"batchId"`
	OrderID       string     `bson:"orderId" json:"orderId"`
	CaseNumber    int        `bson:"caseNumber" json:"caseNumber"`
	ExpectedUnits int        `bson:"expectedUnits" json:"expectedUnits"`
	Status        CodeStatus `bson:"status" json:"status"`
	CreatedAt     time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// UniqueCode identifies a single unit. Sequence is 1-based and dense within a batch.
type UniqueCode struct {
	ID         string     `bson:"_id" json:"id"`
	Code       string     `bson:"code" json:"code"`
	BatchID    string     `bson:"batchId" json:"batchId"`
	OrderID    string     `bson:"orderId" json:"orderId"`
	VariantID  string     `bson:"variantId,omitempty" json:"variantId,omitempty"`
	Sequence   int        `bson:"sequence" json:"sequence"`
	CaseNumber int        `bson:"caseNumber" json:"caseNumber"`
	Status     CodeStatus `bson:"status" json:"status"`
	CreatedAt  time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// GenerationPlan is the fixed code count of a batch, decided at submit time
type GenerationPlan struct {
	Quantity         int
	BufferPercentage int
	UnitsPerCase     int
	TotalUniqueCodes int
	TotalMasterCodes int
}

// PlanGeneration sizes a batch: the ordered quantity plus a rounded-up buffer,
// packed into rounded-up cases.
func PlanGeneration(quantity, bufferPercentage, unitsPerCase int) (GenerationPlan, error) {
	if quantity <= 0 {
		return GenerationPlan{}, ErrInvalidQuantity
	}
	if bufferPercentage < 0 || bufferPercentage > 100 {
		return GenerationPlan{}, ErrInvalidBuffer
	}
	if unitsPerCase <= 0 {
		return GenerationPlan{}, ErrInvalidUnitsPerCase
	}

	buffer := ceilDiv(quantity*bufferPercentage, 100)
	totalUnique := quantity + buffer
	return GenerationPlan{
		Quantity:         quantity,
		BufferPercentage: bufferPercentage,
		UnitsPerCase:     unitsPerCase,
		TotalUniqueCodes: totalUnique,
		TotalMasterCodes: ceilDiv(totalUnique, unitsPerCase),
	}, nil
}

// CaseNumberFor returns the 1-based case a unit sequence falls into
func CaseNumberFor(sequence, unitsPerCase int) int {
	return (sequence-1)/unitsPerCase + 1
}

// ExpectedUnitsFor returns how many units a case holds; the last case may be short
func ExpectedUnitsFor(caseNumber, totalUnique, unitsPerCase int) int {
	remaining := totalUnique - (caseNumber-1)*unitsPerCase
	if remaining > unitsPerCase {
		return unitsPerCase
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NewCodeValue returns a printable code value with the given prefix
func NewCodeValue(prefix string) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(raw[:16]))
}

// BuildMasterCodes returns the master codes for cases [from, to] of the batch
func BuildMasterCodes(b *Batch, from, to int, now time.Time) []MasterCode {
	if from > to {
		return nil
	}
	codes := make([]MasterCode, 0, to-from+1)
	for caseNumber := from; caseNumber <= to; caseNumber++ {
		codes = append(codes, MasterCode{
			ID:            uuid.New().String(),
			Code:          NewCodeValue("M"),
			BatchID:       b.ID,
			OrderID:       b.OrderID,
			CaseNumber:    caseNumber,
			ExpectedUnits: ExpectedUnitsFor(caseNumber, b.TotalUniqueCodes, b.UnitsPerCase),
			Status:        CodeStatusGenerated,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return codes
}

// BuildUniqueCodes returns the unique codes for sequences [from, to] of the batch
func BuildUniqueCodes(b *Batch, from, to int, now time.Time) []UniqueCode {
	if from > to {
		return nil
	}
	codes := make([]UniqueCode, 0, to-from+1)
	for seq := from; seq <= to; seq++ {
		codes = append(codes, UniqueCode{
			ID:         uuid.New().String(),
			Code:       NewCodeValue("U"),
			BatchID:    b.ID,
			OrderID:    b.OrderID,
			VariantID:  b.VariantID,
			Sequence:   seq,
			CaseNumber: CaseNumberFor(seq, b.UnitsPerCase),
			Status:     CodeStatusGenerated,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return codes
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
