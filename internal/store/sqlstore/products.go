package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/jcmexdev/quitq-checkout/internal/inventory-service/domain"
)

var productColumns = []string{"id", "store_id", "name", "image", "price", "stock_quantity", "status"}

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.StoreID, &p.Name, &p.Image, &p.Price, &p.StockQuantity, &p.Status)
	return p, err
}

func (s *Store) Product(ctx context.Context, id int64) (*domain.Product, error) {
	row, err := queryRow(ctx, s.db, s.sb.Select(productColumns...).From("products").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: product %d: %w", id, err)
	}
	return &p, nil
}

// ProductsByIDs returns the products that still exist, keyed by id.
func (s *Store) ProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := query(ctx, s.db, s.sb.Select(productColumns...).From("products").Where(sq.Eq{"id": ids}))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: products by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan product: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (s *Store) ProductIDsByStore(ctx context.Context, storeID int64) ([]int64, error) {
	rows, err := query(ctx, s.db, s.sb.Select("id").From("products").Where(sq.Eq{"store_id": storeID}).OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: products of store %d: %w", storeID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DecrementStockIfAvailable takes qty units in a single conditional update.
// ok is false when the product is missing or has fewer than qty units.
func (s *Store) DecrementStockIfAvailable(ctx context.Context, id int64, qty int) (int, bool, error) {
	row, err := queryRow(ctx, s.db, s.sb.Update("products").
		Set("stock_quantity", sq.Expr("stock_quantity - ?", qty)).
		Where(sq.Eq{"id": id}).
		Where(sq.GtOrEq{"stock_quantity": qty}).
		Suffix("RETURNING stock_quantity"))
	if err != nil {
		return 0, false, err
	}

	var remaining int
	err = row.Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sqlstore: decrement stock of %d: %w", id, err)
	}
	return remaining, true, nil
}

// IncrementStock gives qty units back and puts the product back in stock.
func (s *Store) IncrementStock(ctx context.Context, id int64, qty int) error {
	n, err := exec(ctx, s.db, s.sb.Update("products").
		Set("stock_quantity", sq.Expr("stock_quantity + ?", qty)).
		Set("status", string(domain.ProductInStock)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("sqlstore: increment stock of %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
	}
	return nil
}

// MarkOutOfStock flags the product only while its counter is still zero,
// so a concurrent restore is not overwritten.
func (s *Store) MarkOutOfStock(ctx context.Context, id int64) error {
	_, err := exec(ctx, s.db, s.sb.Update("products").
		Set("status", string(domain.ProductOutOfStock)).
		Where(sq.Eq{"id": id, "stock_quantity": 0}))
	if err != nil {
		return fmt.Errorf("sqlstore: mark %d out of stock: %w", id, err)
	}
	return nil
}

// UpsertProduct is used by seeding and tests; the catalog itself is managed
// elsewhere.
func (s *Store) UpsertProduct(ctx context.Context, p domain.Product) error {
	status := p.Status
	if status == "" {
		status = domain.ProductInStock
		if p.StockQuantity == 0 {
			status = domain.ProductOutOfStock
		}
	}
	_, err := exec(ctx, s.db, s.sb.Insert("products").
		Columns(productColumns...).
		Values(p.ID, p.StoreID, p.Name, p.Image, p.Price.String(), p.StockQuantity, string(status)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			store_id = excluded.store_id,
			name = excluded.name,
			image = excluded.image,
			price = excluded.price,
			stock_quantity = excluded.stock_quantity,
			status = excluded.status`))
	if err != nil {
		return fmt.Errorf("sqlstore: upsert product %d: %w", p.ID, err)
	}
	return nil
}
