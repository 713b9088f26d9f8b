package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cartdomain "github.com/jcmexdev/quitq-checkout/internal/cart-service/domain"
	inventorydomain "github.com/jcmexdev/quitq-checkout/internal/inventory-service/domain"
	"github.com/jcmexdev/quitq-checkout/internal/order-service/domain"
)

type Repository interface {
	// InsertOrder stores the order and its delivery ticket in one unit of work.
	InsertOrder(ctx context.Context, o *domain.Order, t *domain.Ticket) error
	DeleteOrder(ctx context.Context, id string) (bool, error)
	InsertOrderItems(ctx context.Context, items []domain.OrderItem) error
	Order(ctx context.Context, id string) (*domain.Order, error)
	Orders(ctx context.Context, q domain.OrderQuery) ([]domain.Order, error)
	OrderItems(ctx context.Context, orderIDs []string) ([]domain.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (bool, error)
}

// Catalog resolves the products referenced by order lines on the read path.
type Catalog interface {
	ProductsByIDs(ctx context.Context, ids []int64) (map[int64]inventorydomain.Product, error)
	ProductIDsByStore(ctx context.Context, storeID int64) ([]int64, error)
}

// Ledger owns Order and OrderItem rows and the order status.
type Ledger struct {
	repo    Repository
	catalog Catalog
	now     func() time.Time
}

func NewLedger(repo Repository, catalog Catalog) *Ledger {
	return &Ledger{
		repo:    repo,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a pending order and its delivery ticket.
func (l *Ledger) Create(ctx context.Context, in domain.NewOrder) (*domain.Order, error) {
	order := &domain.Order{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		OrderDate:       l.now(),
		TotalAmount:     in.TotalAmount,
		Status:          domain.StatusPending,
		ShippingAddress: in.ShippingAddress,
	}
	ticket := &domain.Ticket{
		ID:      uuid.NewString(),
		OrderID: order.ID,
	}

	if err := l.repo.InsertOrder(ctx, order, ticket); err != nil {
		return nil, fmt.Errorf("ledger: create order for user %d: %w", in.UserID, err)
	}
	order.TicketID = ticket.ID

	slog.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"user_id", order.UserID,
		"total", order.TotalAmount.StringFixed(2),
	)
	return order, nil
}

// Delete removes an order together with its items and ticket.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	deleted, err := l.repo.DeleteOrder(ctx, id)
	if err != nil {
		return fmt.Errorf("ledger: delete order %s: %w", id, err)
	}
	if !deleted {
		slog.WarnContext(ctx, "no order found to delete", "order_id", id)
	}
	return nil
}

// AddItems records one immutable item per cart line.
func (l *Ledger) AddItems(ctx context.Context, orderID string, lines []cartdomain.CartLine) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, len(lines))
	for i, line := range lines {
		items[i] = domain.OrderItem{
			ID:        uuid.NewString(),
			OrderID:   orderID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		}
	}

	if err := l.repo.InsertOrderItems(ctx, items); err != nil {
		return nil, fmt.Errorf("ledger: add items to order %s: %w", orderID, err)
	}
	return items, nil
}

// Find returns the order row without its items.
func (l *Ledger) Find(ctx context.Context, id string) (*domain.Order, error) {
	return l.repo.Order(ctx, id)
}

func (l *Ledger) SetStatus(ctx context.Context, id string, status domain.OrderStatus) (bool, error) {
	ok, err := l.repo.UpdateOrderStatus(ctx, id, status)
	if err != nil {
		return false, fmt.Errorf("ledger: set status of order %s: %w", id, err)
	}
	return ok, nil
}

// Get returns one order with its items, or domain.ErrOrderNotFound.
func (l *Ledger) Get(ctx context.Context, id string) (*domain.Order, error) {
	orders, err := l.query(ctx, domain.OrderQuery{IDs: []string{id}}, nil)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, domain.ErrOrderNotFound
	}
	return &orders[0], nil
}

func (l *Ledger) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	return l.query(ctx, domain.OrderQuery{UserIDs: []int64{userID}}, nil)
}

func (l *Ledger) ListAll(ctx context.Context) ([]domain.Order, error) {
	return l.query(ctx, domain.OrderQuery{}, nil)
}

// ListByStore returns the orders that contain at least one product of the
// store, each restricted to that store's lines.
func (l *Ledger) ListByStore(ctx context.Context, storeID int64) ([]domain.Order, error) {
	productIDs, err := l.catalog.ProductIDsByStore(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("ledger: products of store %d: %w", storeID, err)
	}
	if len(productIDs) == 0 {
		return []domain.Order{}, nil
	}

	keep := func(item domain.OrderItem) bool {
		p, ok := item.Product.(domain.AvailableProduct)
		return ok && p.StoreID == storeID
	}
	return l.query(ctx, domain.OrderQuery{ProductIDs: productIDs}, keep)
}

func (l *Ledger) query(ctx context.Context, q domain.OrderQuery, keep func(domain.OrderItem) bool) ([]domain.Order, error) {
	orders, err := l.repo.Orders(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ledger: query orders: %w", err)
	}
	if len(orders) == 0 {
		return []domain.Order{}, nil
	}

	orderIDs := make([]string, len(orders))
	for i, o := range orders {
		orderIDs[i] = o.ID
	}

	items, err := l.repo.OrderItems(ctx, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("ledger: query order items: %w", err)
	}

	products := l.resolveProducts(ctx, items)

	byOrder := make(map[string][]domain.OrderItem, len(orders))
	for _, item := range items {
		if p, ok := products[item.ProductID]; ok {
			item.Product = domain.AvailableProduct{ID: p.ID, Name: p.Name, Image: p.Image, StoreID: p.StoreID}
		} else {
			item.Product = domain.UnavailableProduct{ID: item.ProductID}
		}
		if keep != nil && !keep(item) {
			continue
		}
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}

	out := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		o.Items = byOrder[o.ID]
		if keep != nil && len(o.Items) == 0 {
			continue
		}
		if o.Items == nil {
			o.Items = []domain.OrderItem{}
		}
		out = append(out, o)
	}
	return out, nil
}

// resolveProducts never fails the read: if the catalog is unreachable every
// line degrades to an unavailable product.
func (l *Ledger) resolveProducts(ctx context.Context, items []domain.OrderItem) map[int64]inventorydomain.Product {
	if len(items) == 0 {
		return nil
	}

	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}

	products, err := l.catalog.ProductsByIDs(ctx, ids)
	if err != nil {
		slog.WarnContext(ctx, "catalog lookup failed, showing products as unavailable", "error", err)
		return nil
	}
	return products
}
