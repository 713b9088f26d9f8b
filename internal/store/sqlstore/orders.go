package sqlstore

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/jcmexdev/quitq-checkout/internal/order-service/domain"
)

// InsertOrder writes the order row and its empty delivery ticket together.
func (s *Store) InsertOrder(ctx context.Context, o *domain.Order, t *domain.Ticket) error {
	return s.inTx(ctx, func(q querier) error {
		if _, err := exec(ctx, q, s.sb.Insert("orders").
			Columns("id", "user_id", "order_date", "total_amount", "status", "shipping_address").
			Values(o.ID, o.UserID, formatTime(o.OrderDate), o.TotalAmount.String(), string(o.Status), o.ShippingAddress)); err != nil {
			return fmt.Errorf("sqlstore: insert order %s: %w", o.ID, err)
		}
		if _, err := exec(ctx, q, s.sb.Insert("delivery_tickets").
			Columns("id", "order_id").
			Values(t.ID, t.OrderID)); err != nil {
			return fmt.Errorf("sqlstore: insert ticket of order %s: %w", o.ID, err)
		}
		return nil
	})
}

// DeleteOrder removes the order and everything hanging off it. The children
// are deleted explicitly so the result does not depend on the driver
// enforcing foreign keys.
func (s *Store) DeleteOrder(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.inTx(ctx, func(q querier) error {
		for _, table := range []string{"order_items", "payments", "delivery_tickets"} {
			if _, err := exec(ctx, q, s.sb.Delete(table).Where(sq.Eq{"order_id": id})); err != nil {
				return fmt.Errorf("sqlstore: delete %s of order %s: %w", table, id, err)
			}
		}
		n, err := exec(ctx, q, s.sb.Delete("orders").Where(sq.Eq{"id": id}))
		if err != nil {
			return fmt.Errorf("sqlstore: delete order %s: %w", id, err)
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// InsertOrderItems writes all items in one statement.
func (s *Store) InsertOrderItems(ctx context.Context, items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	b := s.sb.Insert("order_items").Columns("id", "order_id", "line_no", "product_id", "quantity")
	for i, it := range items {
		b = b.Values(it.ID, it.OrderID, i, it.ProductID, it.Quantity)
	}
	if _, err := exec(ctx, s.db, b); err != nil {
		return fmt.Errorf("sqlstore: insert items of order %s: %w", items[0].OrderID, err)
	}
	return nil
}

func (s *Store) selectOrders() sq.SelectBuilder {
	return s.sb.Select(
		"o.id", "o.user_id", "o.order_date", "o.total_amount", "o.status", "o.shipping_address",
		"COALESCE(p.status, '')", "COALESCE(t.id, '')",
	).
		From("orders o").
		LeftJoin("payments p ON p.order_id = o.id").
		LeftJoin("delivery_tickets t ON t.order_id = o.id")
}

// Order returns the order row without items.
func (s *Store) Order(ctx context.Context, id string) (*domain.Order, error) {
	orders, err := s.scanOrders(ctx, s.selectOrders().Where(sq.Eq{"o.id": id}))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: order %s: %w", id, err)
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrOrderNotFound)
	}
	return &orders[0], nil
}

// Orders returns order rows matching q, newest first.
func (s *Store) Orders(ctx context.Context, q domain.OrderQuery) ([]domain.Order, error) {
	b := s.selectOrders()
	if len(q.IDs) > 0 {
		b = b.Where(sq.Eq{"o.id": q.IDs})
	}
	if len(q.UserIDs) > 0 {
		b = b.Where(sq.Eq{"o.user_id": q.UserIDs})
	}
	if len(q.ProductIDs) > 0 {
		sub, args, err := sq.Select("order_id").From("order_items").Where(sq.Eq{"product_id": q.ProductIDs}).ToSql()
		if err != nil {
			return nil, fmt.Errorf("sqlstore: build product filter: %w", err)
		}
		b = b.Where(sq.Expr("o.id IN ("+sub+")", args...))
	}

	orders, err := s.scanOrders(ctx, b.OrderBy("o.order_date DESC", "o.id"))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query orders: %w", err)
	}
	return orders, nil
}

func (s *Store) scanOrders(ctx context.Context, b sq.SelectBuilder) ([]domain.Order, error) {
	rows, err := query(ctx, s.db, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var (
			o         domain.Order
			orderDate string
		)
		if err := rows.Scan(
			&o.ID,
			&o.UserID,
			&orderDate,
			&o.TotalAmount,
			&o.Status,
			&o.ShippingAddress,
			&o.PaymentStatus,
			&o.TicketID,
		); err != nil {
			return nil, err
		}
		if o.OrderDate, err = parseTime(orderDate); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) OrderItems(ctx context.Context, orderIDs []string) ([]domain.OrderItem, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	rows, err := query(ctx, s.db, s.sb.Select("id", "order_id", "product_id", "quantity").
		From("order_items").
		Where(sq.Eq{"order_id": orderIDs}).
		OrderBy("order_id", "line_no"))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("sqlstore: scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateOrderStatus reports false when the order does not exist or is
// already delivered or cancelled.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (bool, error) {
	n, err := exec(ctx, s.db, s.sb.Update("orders").
		Set("status", string(status)).
		Where(sq.Eq{"id": id}).
		Where(sq.NotEq{"status": terminalStatuses}))
	if err != nil {
		return false, fmt.Errorf("sqlstore: update status of order %s: %w", id, err)
	}
	return n > 0, nil
}

var terminalStatuses = []string{string(domain.StatusDelivered), string(domain.StatusCancelled)}
