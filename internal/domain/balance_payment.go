package domain

import (
	"time"

	"github.com/google/uuid"
)

// BalancePaymentStatus is the state of a balance payment request
type BalancePaymentStatus string

const BalancePaymentPending BalancePaymentStatus = "pending"

// BalancePaymentRequest asks finance to collect the order balance once
// production is complete. One request exists per order.
type BalancePaymentRequest struct {
	ID          string               `bson:"_id" json:"id"`
	TenantID    string               `bson:"tenantId,omitempty" json:"-"`
	OrderID     string               `bson:"orderId" json:"orderId"`
	BatchID     string               `bson:"batchId" json:"batchId"`
	Status      BalancePaymentStatus `bson:"status" json:"status"`
	RequestedBy string               `bson:"requestedBy,omitempty" json:"requestedBy,omitempty"`
	CreatedAt   time.Time            `bson:"createdAt" json:"createdAt"`
}

// NewBalancePaymentRequest creates a pending request for the batch order
func NewBalancePaymentRequest(b *Batch, requestedBy string, now time.Time) *BalancePaymentRequest {
	return &BalancePaymentRequest{
		ID:          uuid.New().String(),
		TenantID:    b.TenantID,
		OrderID:     b.OrderID,
		BatchID:     b.ID,
		Status:      BalancePaymentPending,
		RequestedBy: requestedBy,
		CreatedAt:   now,
	}
}
