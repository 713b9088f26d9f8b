package paymentservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/quitq-checkout/internal/order-service/domain"
)

var ErrUnsupportedMethod = errors.New("unsupported payment method")

type Repository interface {
	InsertPayment(ctx context.Context, p *domain.Payment) error
	DeletePayment(ctx context.Context, id string) (bool, error)
	PaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error)
	// SettlePayment flips a pending payment of the order to completed. It
	// reports false when there was nothing pending.
	SettlePayment(ctx context.Context, orderID string, paidAt time.Time) (bool, error)
}

// Recorder creates the payment row of an order. For cash on delivery the
// payment stays pending until the courier confirms delivery.
type Recorder struct {
	repo Repository
	now  func() time.Time
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *Recorder) Record(ctx context.Context, order *domain.Order, method domain.PaymentMethod) (*domain.Payment, error) {
	now := r.now()

	p := &domain.Payment{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Amount:    order.TotalAmount,
		Method:    method,
		CreatedAt: now,
	}

	switch method {
	case domain.MethodCashOnDelivery:
		p.Status = domain.PaymentPending
	case domain.MethodCard:
		p.Status = domain.PaymentCompleted
		p.PaidAt = &now
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}

	if err := r.repo.InsertPayment(ctx, p); err != nil {
		return nil, fmt.Errorf("payment: record for order %s: %w", order.ID, err)
	}

	slog.InfoContext(ctx, "payment recorded",
		"order_id", order.ID,
		"payment_id", p.ID,
		"method", method,
		"status", p.Status,
		"amount", p.Amount.StringFixed(2),
	)
	return p, nil
}

func (r *Recorder) Delete(ctx context.Context, paymentID string) error {
	deleted, err := r.repo.DeletePayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("payment: delete %s: %w", paymentID, err)
	}
	if !deleted {
		slog.WarnContext(ctx, "no payment found to delete", "payment_id", paymentID)
	}
	return nil
}

// Settle marks the cash-on-delivery payment of an order as paid.
func (r *Recorder) Settle(ctx context.Context, orderID string) error {
	settled, err := r.repo.SettlePayment(ctx, orderID, r.now())
	if err != nil {
		return fmt.Errorf("payment: settle order %s: %w", orderID, err)
	}
	if !settled {
		slog.WarnContext(ctx, "no pending payment to settle", "order_id", orderID)
	}
	return nil
}

func (r *Recorder) ByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.repo.PaymentByOrder(ctx, orderID)
}
