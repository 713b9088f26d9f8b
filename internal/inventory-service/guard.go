package inventoryservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jcmexdev/quitq-checkout/internal/inventory-service/domain"
)

// Catalog is the part of the product catalog the guard needs. The
// decrement must be a single conditional update on the store side
// (UPDATE ... WHERE stock_quantity >= qty); the guard never writes a value
// it read earlier.
type Catalog interface {
	Product(ctx context.Context, id int64) (*domain.Product, error)
	DecrementStockIfAvailable(ctx context.Context, id int64, qty int) (remaining int, ok bool, err error)
	IncrementStock(ctx context.Context, id int64, qty int) error
	MarkOutOfStock(ctx context.Context, id int64) error
}

// Guard is the only component allowed to mutate product stock.
type Guard struct {
	catalog Catalog
}

func NewGuard(catalog Catalog) *Guard {
	return &Guard{catalog: catalog}
}

// Validate checks every item against the current stock without mutating
// anything. It returns the offending product ids together with an
// *InsufficientStockError when at least one item cannot be served.
func (g *Guard) Validate(ctx context.Context, items []domain.StockItem) ([]int64, error) {
	var short []int64
	for _, item := range merge(items) {
		product, err := g.catalog.Product(ctx, item.ProductID)
		if errors.Is(err, domain.ErrProductNotFound) {
			short = append(short, item.ProductID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("inventory: read product %d: %w", item.ProductID, err)
		}
		if product.StockQuantity < item.Quantity {
			slog.InfoContext(ctx, "insufficient stock",
				"product_id", item.ProductID,
				"available", product.StockQuantity,
				"requested", item.Quantity,
			)
			short = append(short, item.ProductID)
		}
	}

	if len(short) > 0 {
		return short, &InsufficientStockError{ProductIDs: short}
	}
	return nil, nil
}

// Commit decrements the stock of every item. Each decrement re-checks the
// quantity atomically in the store; if one of them loses a race the items
// already decremented are restored and the whole commit fails.
func (g *Guard) Commit(ctx context.Context, items []domain.StockItem) error {
	merged := merge(items)
	done := make([]domain.StockItem, 0, len(merged))

	for _, item := range merged {
		remaining, ok, err := g.catalog.DecrementStockIfAvailable(ctx, item.ProductID, item.Quantity)
		if err != nil || !ok {
			if undoErr := g.restore(ctx, done); undoErr != nil {
				err = errors.Join(err, undoErr)
			}
			return &StockCommitFailedError{ProductIDs: []int64{item.ProductID}, Err: err}
		}
		done = append(done, item)

		slog.InfoContext(ctx, "stock decremented",
			"product_id", item.ProductID,
			"quantity", item.Quantity,
			"remaining", remaining,
		)

		if remaining == 0 {
			if err := g.catalog.MarkOutOfStock(ctx, item.ProductID); err != nil {
				// The counter is already correct; the flag is derived state.
				slog.WarnContext(ctx, "failed to flag product out of stock",
					"product_id", item.ProductID, "error", err)
			}
		}
	}
	return nil
}

// Release gives back stock taken by a previous Commit. It is the
// compensation of the stock step when something after it fails.
func (g *Guard) Release(ctx context.Context, items []domain.StockItem) error {
	return g.restore(ctx, merge(items))
}

func (g *Guard) restore(ctx context.Context, items []domain.StockItem) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for _, item := range items {
		if err := g.catalog.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			errs = append(errs, fmt.Errorf("inventory: restore %d of product %d: %w", item.Quantity, item.ProductID, err))
			continue
		}
		slog.InfoContext(ctx, "stock restored", "product_id", item.ProductID, "quantity", item.Quantity)
	}
	return errors.Join(errs...)
}

// merge folds duplicate products into one item and orders them by id so
// concurrent commits touch products in the same order.
func merge(items []domain.StockItem) []domain.StockItem {
	byID := make(map[int64]int, len(items))
	for _, it := range items {
		byID[it.ProductID] += it.Quantity
	}

	out := make([]domain.StockItem, 0, len(byID))
	for id, qty := range byID {
		out = append(out, domain.StockItem{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
