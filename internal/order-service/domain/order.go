package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrTicketNotFound  = errors.New("delivery ticket not found")
)

type Order struct {
	ID              string
	UserID          int64
	OrderDate       time.Time
	TotalAmount     decimal.Decimal
	Status          OrderStatus
	ShippingAddress string
	Items           []OrderItem

	// Read-side projections, filled by the ledger queries only.
	PaymentStatus PaymentStatus
	TicketID      string
}

type OrderItem struct {
	ID        string
	OrderID   string
	ProductID int64
	Quantity  int
	Product   ProductView
}

// NewOrder is the input of a ledger write: everything the checkout knows
// before the order row exists.
type NewOrder struct {
	UserID          int64
	TotalAmount     decimal.Decimal
	ShippingAddress string
}

// Ticket is the delivery record created together with its order. Code is
// empty until a courier asks for one.
type Ticket struct {
	ID             string
	OrderID        string
	Code           string
	CodeIssuedAt   *time.Time
	FailedAttempts int
}

func (t *Ticket) HasCode() bool {
	return t.Code != ""
}

// Expired reports whether the current code was issued more than ttl ago.
// A zero ttl disables expiry.
func (t *Ticket) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 || t.CodeIssuedAt == nil {
		return false
	}
	return now.Sub(*t.CodeIssuedAt) > ttl
}

type ShippingAddress struct {
	ID         int64
	UserID     int64
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}

// String renders the snapshot stored on the order row.
func (a ShippingAddress) String() string {
	out := a.Street
	for _, part := range []string{a.City, a.State, a.PostalCode, a.Country} {
		if part == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += part
	}
	return out
}
