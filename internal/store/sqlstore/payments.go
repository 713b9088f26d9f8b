package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/jcmexdev/quitq-checkout/internal/order-service/domain"
)

var paymentColumns = []string{"id", "order_id", "amount", "method", "status", "paid_at", "created_at"}

func (s *Store) InsertPayment(ctx context.Context, p *domain.Payment) error {
	_, err := exec(ctx, s.db, s.sb.Insert("payments").
		Columns(paymentColumns...).
		Values(p.ID, p.OrderID, p.Amount.String(), string(p.Method), string(p.Status), formatNullTime(p.PaidAt), formatTime(p.CreatedAt)))
	if err != nil {
		return fmt.Errorf("sqlstore: insert payment of order %s: %w", p.OrderID, err)
	}
	return nil
}

func (s *Store) DeletePayment(ctx context.Context, id string) (bool, error) {
	n, err := exec(ctx, s.db, s.sb.Delete("payments").Where(sq.Eq{"id": id}))
	if err != nil {
		return false, fmt.Errorf("sqlstore: delete payment %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *Store) PaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	row, err := queryRow(ctx, s.db, s.sb.Select(paymentColumns...).From("payments").Where(sq.Eq{"order_id": orderID}))
	if err != nil {
		return nil, err
	}

	var (
		p         domain.Payment
		paidAt    sql.NullString
		createdAt string
	)
	err = row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Status, &paidAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment of order %s: %w", orderID, domain.ErrPaymentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: payment of order %s: %w", orderID, err)
	}
	if p.PaidAt, err = parseNullTime(paidAt); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SettlePayment(ctx context.Context, orderID string, paidAt time.Time) (bool, error) {
	n, err := exec(ctx, s.db, s.sb.Update("payments").
		Set("status", string(domain.PaymentCompleted)).
		Set("paid_at", formatTime(paidAt)).
		Where(sq.Eq{"order_id": orderID, "status": string(domain.PaymentPending)}))
	if err != nil {
		return false, fmt.Errorf("sqlstore: settle payment of order %s: %w", orderID, err)
	}
	return n > 0, nil
}
