package domain

import (
	"time"

	"github.com/google/uuid"
)

// Movement reasons
const (
	MovementReasonPrint       = "print"
	MovementReasonPrintRepair = "print-repair"
	MovementReasonPacking     = "packing"
	MovementReasonCompletion  = "production-complete"
)

// CodeMovement is an audit row for one bulk status change
type CodeMovement struct {
	ID         string     `bson:"_id" json:"id"`
	BatchID    string     `bson:"batchId" json:"batchId"`
	CodeKind   CodeKind   `bson:"codeKind" json:"codeKind"`
	FromStatus CodeStatus `bson:"fromStatus" json:"fromStatus"`
	ToStatus   CodeStatus `bson:"toStatus" json:"toStatus"`
	Count      int64      `bson:"count" json:"count"`
	Actor      string     `bson:"actor" json:"actor"`
	Reason     string     `bson:"reason" json:"reason"`
	OccurredAt time.Time  `bson:"occurredAt" json:"occurredAt"`
}

// NewCodeMovement builds a movement row. Callers skip zero counts.
func NewCodeMovement(batchID string, kind CodeKind, from, to CodeStatus, count int64, actor, reason string, now time.Time) CodeMovement {
	return CodeMovement{
		ID:         uuid.New().String(),
		BatchID:    batchID,
		CodeKind:   kind,
		FromStatus: from,
		ToStatus:   to,
		Count:      count,
		Actor:      actor,
		Reason:     reason,
		OccurredAt: now,
	}
}
