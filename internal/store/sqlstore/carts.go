package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	cartdomain "github.com/jcmexdev/quitq-checkout/internal/cart-service/domain"
	"github.com/jcmexdev/quitq-checkout/internal/order-service/domain"
)

func (s *Store) CartLines(ctx context.Context, userID int64) ([]cartdomain.CartLine, error) {
	rows, err := query(ctx, s.db, s.sb.Select("user_id", "product_id", "quantity").
		From("cart_lines").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("added_at", "id"))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: cart of user %d: %w", userID, err)
	}
	defer rows.Close()

	var lines []cartdomain.CartLine
	for rows.Next() {
		var l cartdomain.CartLine
		if err := rows.Scan(&l.UserID, &l.ProductID, &l.Quantity); err != nil {
			return nil, fmt.Errorf("sqlstore: scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *Store) DeleteCartLines(ctx context.Context, userID int64) (int64, error) {
	n, err := exec(ctx, s.db, s.sb.Delete("cart_lines").Where(sq.Eq{"user_id": userID}))
	if err != nil {
		return 0, fmt.Errorf("sqlstore: clear cart of user %d: %w", userID, err)
	}
	return n, nil
}

// AddCartLine appends a line to the user's cart. Seeding and tests only;
// cart editing is not part of this service.
func (s *Store) AddCartLine(ctx context.Context, line cartdomain.CartLine) error {
	_, err := exec(ctx, s.db, s.sb.Insert("cart_lines").
		Columns("id", "user_id", "product_id", "quantity", "added_at").
		Values(uuid.NewString(), line.UserID, line.ProductID, line.Quantity, formatTime(time.Now())))
	if err != nil {
		return fmt.Errorf("sqlstore: add cart line for user %d: %w", line.UserID, err)
	}
	return nil
}

var addressColumns = []string{"id", "user_id", "street", "city", "state", "postal_code", "country"}

// ActiveShippingAddress returns nil, nil when the user has no active address.
func (s *Store) ActiveShippingAddress(ctx context.Context, userID int64) (*domain.ShippingAddress, error) {
	row, err := queryRow(ctx, s.db, s.sb.Select(addressColumns...).
		From("user_addresses").
		Where(sq.Eq{"user_id": userID, "is_active": true}).
		OrderBy("id").
		Limit(1))
	if err != nil {
		return nil, err
	}

	var a domain.ShippingAddress
	err = row.Scan(&a.ID, &a.UserID, &a.Street, &a.City, &a.State, &a.PostalCode, &a.Country)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: address of user %d: %w", userID, err)
	}
	return &a, nil
}

// SaveShippingAddress stores an address. When active is set, every other
// address of the user is deactivated in the same transaction.
func (s *Store) SaveShippingAddress(ctx context.Context, a domain.ShippingAddress, active bool) error {
	return s.inTx(ctx, func(q querier) error {
		if active {
			if _, err := exec(ctx, q, s.sb.Update("user_addresses").
				Set("is_active", false).
				Where(sq.Eq{"user_id": a.UserID})); err != nil {
				return fmt.Errorf("sqlstore: deactivate addresses of user %d: %w", a.UserID, err)
			}
		}
		if _, err := exec(ctx, q, s.sb.Insert("user_addresses").
			Columns(append(addressColumns, "is_active")...).
			Values(a.ID, a.UserID, a.Street, a.City, a.State, a.PostalCode, a.Country, active)); err != nil {
			return fmt.Errorf("sqlstore: insert address %d: %w", a.ID, err)
		}
		return nil
	})
}
