package app

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartdomain "github.com/jcmexdev/quitq-checkout/internal/cart-service/domain"
	inventorydomain "github.com/jcmexdev/quitq-checkout/internal/inventory-service/domain"
	"github.com/jcmexdev/quitq-checkout/internal/order-service/domain"
)

type memRepo struct {
	orders  map[string]domain.Order
	tickets map[string]domain.Ticket
	items   []domain.OrderItem
}

func newMemRepo() *memRepo {
	return &memRepo{orders: map[string]domain.Order{}, tickets: map[string]domain.Ticket{}}
}

func (m *memRepo) InsertOrder(_ context.Context, o *domain.Order, t *domain.Ticket) error {
	m.orders[o.ID] = *o
	m.tickets[t.ID] = *t
	return nil
}

func (m *memRepo) DeleteOrder(_ context.Context, id string) (bool, error) {
	_, ok := m.orders[id]
	delete(m.orders, id)
	kept := m.items[:0]
	for _, it := range m.items {
		if it.OrderID != id {
			kept = append(kept, it)
		}
	}
	m.items = kept
	return ok, nil
}

func (m *memRepo) InsertOrderItems(_ context.Context, items []domain.OrderItem) error {
	m.items = append(m.items, items...)
	return nil
}

func (m *memRepo) Order(_ context.Context, id string) (*domain.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &o, nil
}

func (m *memRepo) Orders(_ context.Context, q domain.OrderQuery) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range m.orders {
		if len(q.IDs) > 0 && !containsString(q.IDs, o.ID) {
			continue
		}
		if len(q.UserIDs) > 0 && !containsInt(q.UserIDs, o.UserID) {
			continue
		}
		if len(q.ProductIDs) > 0 && !m.hasProduct(o.ID, q.ProductIDs) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderDate.After(out[j].OrderDate) })
	return out, nil
}

func (m *memRepo) hasProduct(orderID string, ids []int64) bool {
	for _, it := range m.items {
		if it.OrderID == orderID && containsInt(ids, it.ProductID) {
			return true
		}
	}
	return false
}

func (m *memRepo) OrderItems(_ context.Context, orderIDs []string) ([]domain.OrderItem, error) {
	var out []domain.OrderItem
	for _, it := range m.items {
		if containsString(orderIDs, it.OrderID) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateOrderStatus(_ context.Context, id string, status domain.OrderStatus) (bool, error) {
	o, ok := m.orders[id]
	if !ok || o.Status.Terminal() {
		return false, nil
	}
	o.Status = status
	m.orders[id] = o
	return true, nil
}

type memCatalog struct {
	products map[int64]inventorydomain.Product
	err      error
}

func (c *memCatalog) ProductsByIDs(_ context.Context, ids []int64) (map[int64]inventorydomain.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := map[int64]inventorydomain.Product{}
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (c *memCatalog) ProductIDsByStore(_ context.Context, storeID int64) ([]int64, error) {
	var ids []int64
	for id, p := range c.products {
		if p.StoreID == storeID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func containsString(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsInt(xs []int64, v int64) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func newTestLedger() (*Ledger, *memRepo, *memCatalog) {
	repo := newMemRepo()
	catalog := &memCatalog{products: map[int64]inventorydomain.Product{
		42: {ID: 42, StoreID: 7, Name: "lamp", Image: "lamp.png"},
		43: {ID: 43, StoreID: 8, Name: "mug"},
	}}
	ledger := NewLedger(repo, catalog)
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return ledger, repo, catalog
}

func placeOrder(t *testing.T, l *Ledger, userID int64, lines ...cartdomain.CartLine) *domain.Order {
	t.Helper()
	o, err := l.Create(context.Background(), domain.NewOrder{
		UserID:          userID,
		TotalAmount:     decimal.RequireFromString("30.00"),
		ShippingAddress: "1 Main St",
	})
	require.NoError(t, err)
	_, err = l.AddItems(context.Background(), o.ID, lines)
	require.NoError(t, err)
	return o
}

func TestLedger_CreateAddsTicket(t *testing.T) {
	ledger, repo, _ := newTestLedger()

	o, err := ledger.Create(context.Background(), domain.NewOrder{UserID: 1, TotalAmount: decimal.NewFromInt(30)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.NotEmpty(t, o.TicketID)
	require.Contains(t, repo.tickets, o.TicketID)
	assert.Equal(t, o.ID, repo.tickets[o.TicketID].OrderID)
	ticket := repo.tickets[o.TicketID]
	assert.False(t, ticket.HasCode())
}

func TestLedger_GetResolvesProducts(t *testing.T) {
	ledger, _, _ := newTestLedger()
	o := placeOrder(t, ledger, 1,
		cartdomain.CartLine{UserID: 1, ProductID: 42, Quantity: 3},
		cartdomain.CartLine{UserID: 1, ProductID: 99, Quantity: 1},
	)

	got, err := ledger.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)

	avail, ok := got.Items[0].Product.(domain.AvailableProduct)
	require.True(t, ok)
	assert.Equal(t, "lamp", avail.Name)

	gone, ok := got.Items[1].Product.(domain.UnavailableProduct)
	require.True(t, ok)
	assert.Equal(t, int64(99), gone.OriginalID())
}

func TestLedger_GetMissing(t *testing.T) {
	ledger, _, _ := newTestLedger()

	_, err := ledger.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestLedger_CatalogDownDegradesToUnavailable(t *testing.T) {
	ledger, _, catalog := newTestLedger()
	o := placeOrder(t, ledger, 1, cartdomain.CartLine{UserID: 1, ProductID: 42, Quantity: 1})
	catalog.err = errors.New("catalog down")

	got, err := ledger.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.IsType(t, domain.UnavailableProduct{}, got.Items[0].Product)
}

func TestLedger_ListByUser(t *testing.T) {
	ledger, _, _ := newTestLedger()
	first := placeOrder(t, ledger, 1, cartdomain.CartLine{UserID: 1, ProductID: 42, Quantity: 1})
	second := placeOrder(t, ledger, 1, cartdomain.CartLine{UserID: 1, ProductID: 43, Quantity: 1})
	placeOrder(t, ledger, 2, cartdomain.CartLine{UserID: 2, ProductID: 42, Quantity: 1})

	orders, err := ledger.ListByUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)

	none, err := ledger.ListByUser(context.Background(), 3)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestLedger_ListByStoreKeepsOnlyStoreLines(t *testing.T) {
	ledger, _, _ := newTestLedger()
	mixed := placeOrder(t, ledger, 1,
		cartdomain.CartLine{UserID: 1, ProductID: 42, Quantity: 3},
		cartdomain.CartLine{UserID: 1, ProductID: 43, Quantity: 1},
	)
	placeOrder(t, ledger, 2, cartdomain.CartLine{UserID: 2, ProductID: 43, Quantity: 2})

	orders, err := ledger.ListByStore(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, mixed.ID, orders[0].ID)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, int64(42), orders[0].Items[0].ProductID)

	empty, err := ledger.ListByStore(context.Background(), 999)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLedger_DeleteAndSetStatus(t *testing.T) {
	ledger, repo, _ := newTestLedger()
	o := placeOrder(t, ledger, 1, cartdomain.CartLine{UserID: 1, ProductID: 42, Quantity: 1})

	ok, err := ledger.SetStatus(context.Background(), o.ID, domain.StatusShipped)
	require.NoError(t, err)
	assert.True(t, ok)
	found, err := ledger.Find(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusShipped, found.Status)

	require.NoError(t, ledger.Delete(context.Background(), o.ID))
	assert.Empty(t, repo.orders)
	assert.Empty(t, repo.items)
	require.NoError(t, ledger.Delete(context.Background(), o.ID), "deleting twice is a no-op")
}
