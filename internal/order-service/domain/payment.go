package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is a sibling of Order linked by OrderID. PaidAt stays nil while a
// cash-on-delivery payment waits for the courier.
type Payment struct {
	ID        string
	OrderID   string
	Amount    decimal.Decimal
	Method    PaymentMethod
	Status    PaymentStatus
	PaidAt    *time.Time
	CreatedAt time.Time
}

func (p *Payment) Settled() bool {
	return p.Status == PaymentCompleted
}
