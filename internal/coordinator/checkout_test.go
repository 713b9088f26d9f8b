package coordinator_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartservice "github.com/jcmexdev/quitq-checkout/internal/cart-service"
	cartdomain "github.com/jcmexdev/quitq-checkout/internal/cart-service/domain"
	"github.com/jcmexdev/quitq-checkout/internal/coordinator"
	"github.com/jcmexdev/quitq-checkout/internal/coordinator/sagalog"
	sagasqlite "github.com/jcmexdev/quitq-checkout/internal/coordinator/sagalog/sqlite"
	inventoryservice "github.com/jcmexdev/quitq-checkout/internal/inventory-service"
	inventorydomain "github.com/jcmexdev/quitq-checkout/internal/inventory-service/domain"
	orderapp "github.com/jcmexdev/quitq-checkout/internal/order-service/app"
	"github.com/jcmexdev/quitq-checkout/internal/order-service/domain"
	paymentservice "github.com/jcmexdev/quitq-checkout/internal/payment-service/app"
	"github.com/jcmexdev/quitq-checkout/internal/store/sqlstore"
)

type env struct {
	store    *sqlstore.Store
	sagas    *sagasqlite.Repository
	ledger   *orderapp.Ledger
	payments *paymentservice.Recorder
	deps     coordinator.CheckoutDeps

	mu       sync.Mutex
	outcomes []string
}

func (e *env) ObserveCheckout(outcome string, _ time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outcomes = append(e.outcomes, outcome)
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	store, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, sqlstore.SQLiteDSN(filepath.Join(dir, "quitq.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sagas, err := sagasqlite.Open(filepath.Join(dir, "saga.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sagas.Close() })

	e := &env{
		store:    store,
		sagas:    sagas,
		ledger:   orderapp.NewLedger(store, store),
		payments: paymentservice.NewRecorder(store),
	}
	e.deps = coordinator.CheckoutDeps{
		Cart:     cartservice.NewSnapshot(store),
		Guard:    inventoryservice.NewGuard(store),
		Identity: store,
		Catalog:  store,
		Ledger:   e.ledger,
		Payments: e.payments,
		SagaLog:  sagas,
		Metrics:  e,
	}
	return e
}

func (e *env) service() *coordinator.CheckoutService {
	return coordinator.NewCheckoutService(e.deps, 5*time.Second)
}

func (e *env) seed(t *testing.T, stock int, withAddress bool) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.store.UpsertProduct(ctx, inventorydomain.Product{
		ID: 42, StoreID: 7, Name: "lamp", Price: decimal.RequireFromString("10.00"), StockQuantity: stock,
	}))
	require.NoError(t, e.store.AddCartLine(ctx, cartdomain.CartLine{UserID: 1, ProductID: 42, Quantity: 3}))
	if withAddress {
		require.NoError(t, e.store.SaveShippingAddress(ctx, domain.ShippingAddress{
			ID: 1, UserID: 1, Street: "1 Main St", City: "Pune", Country: "IN",
		}, true))
	}
}

func (e *env) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := e.store.Product(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func (e *env) assertNothingCreated(t *testing.T) {
	t.Helper()
	orders, err := e.ledger.ListByUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, orders)
	tickets, err := e.store.Tickets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestPlaceOrder_Success(t *testing.T) {
	e := newEnv(t)
	e.seed(t, 5, true)

	res, err := e.service().PlaceOrder(context.Background(), 1, domain.MethodCashOnDelivery)
	require.NoError(t, err)

	assert.Equal(t, coordinator.PlacedMessage, res.Message)
	assert.Equal(t, coordinator.StateDone, res.State)
	assert.Equal(t, "30.00", res.Total.StringFixed(2))
	assert.Equal(t, 2, e.stock(t, 42))

	lines, err := e.store.CartLines(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, lines)

	order, err := e.ledger.Get(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Equal(t, domain.PaymentPending, order.PaymentStatus)
	assert.Equal(t, "1 Main St, Pune, IN", order.ShippingAddress)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Quantity)

	payment, err := e.payments.ByOrder(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Nil(t, payment.PaidAt)
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(30)))

	ticket, err := e.store.TicketByOrder(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.False(t, ticket.HasCode())

	latest, err := e.sagas.GetLatest(context.Background(), res.SagaID)
	require.NoError(t, err)
	assert.Equal(t, sagalog.StatusCompleted, latest.Status)
	assert.Equal(t, res.OrderID, latest.OrderID)

	assert.Equal(t, []string{"placed"}, e.outcomes)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	e := newEnv(t)
	e.seed(t, 2, true)

	_, err := e.service().PlaceOrder(context.Background(), 1, domain.MethodCashOnDelivery)

	var short *inventoryservice.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, []int64{42}, short.ProductIDs)
	assert.Equal(t, 2, e.stock(t, 42))
	e.assertNothingCreated(t)

	lines, err := e.store.CartLines(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, lines, 1, "cart kept for the user to fix")
	assert.Equal(t, []string{"insufficient_stock"}, e.outcomes)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	e := newEnv(t)

	_, err := e.service().PlaceOrder(context.Background(), 1, domain.MethodCashOnDelivery)
	assert.ErrorIs(t, err, coordinator.ErrEmptyCart)
}

func TestPlaceOrder_NoAddress(t *testing.T) {
	e := newEnv(t)
	e.seed(t, 5, false)

	_, err := e.service().PlaceOrder(context.Background(), 1, domain.MethodCashOnDelivery)
	assert.ErrorIs(t, err, coordinator.ErrNoShippingAddress)
	assert.Equal(t, 5, e.stock(t, 42))
	e.assertNothingCreated(t)
}

type failingPayments struct{}

func (failingPayments) Record(context.Context, *domain.Order, domain.PaymentMethod) (*domain.Payment, error) {
	return nil, errors.New("gateway timeout")
}

func (failingPayments) Delete(context.Context, string) error { return nil }

func TestPlaceOrder_PaymentFailureRollsBack(t *testing.T) {
	e := newEnv(t)
	e.seed(t, 5, true)
	e.deps.Payments = failingPayments{}

	res, err := e.service().PlaceOrder(context.Background(), 1, domain.MethodCashOnDelivery)
	require.Nil(t, res)
	assert.ErrorIs(t, err, coordinator.ErrPaymentFailed)
	assert.Equal(t, 5, e.stock(t, 42))
	e.assertNothingCreated(t)
	assert.Equal(t, []string{"payment_failed"}, e.outcomes)
}

// racingGuard empties the shelf between validation and commit.
type racingGuard struct {
	*inventoryservice.Guard
	store *sqlstore.Store
}

func (g racingGuard) Commit(ctx context.Context, items []inventorydomain.StockItem) error {
	if _, _, err := g.store.DecrementStockIfAvailable(ctx, 42, 4); err != nil {
		return err
	}
	return g.Guard.Commit(ctx, items)
}

func TestPlaceOrder_StockLostToConcurrentBuyer(t *testing.T) {
	e := newEnv(t)
	e.seed(t, 5, true)
	e.deps.Guard = racingGuard{Guard: inventoryservice.NewGuard(e.store), store: e.store}

	_, err := e.service().PlaceOrder(context.Background(), 1, domain.MethodCashOnDelivery)

	var commitErr *inventoryservice.StockCommitFailedError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, []int64{42}, commitErr.ProductIDs)
	assert.Equal(t, 1, e.stock(t, 42), "only the other buyer's units are gone")
	e.assertNothingCreated(t)

	_, err = e.store.PaymentByOrder(context.Background(), "any")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

type failingItems struct {
	coordinator.OrderWriter
}

func (failingItems) AddItems(context.Context, string, []cartdomain.CartLine) ([]domain.OrderItem, error) {
	return nil, errors.New("constraint violation")
}

func TestPlaceOrder_ItemsFailureRestoresStock(t *testing.T) {
	e := newEnv(t)
	e.seed(t, 5, true)
	e.deps.Ledger = failingItems{OrderWriter: e.ledger}

	_, err := e.service().PlaceOrder(context.Background(), 1, domain.MethodCashOnDelivery)
	assert.ErrorIs(t, err, coordinator.ErrOrderCreationFailed)
	assert.Equal(t, 5, e.stock(t, 42))
	e.assertNothingCreated(t)
}

func TestPlaceOrder_PriceFrozenAtPricing(t *testing.T) {
	e := newEnv(t)
	e.seed(t, 5, true)

	res, err := e.service().PlaceOrder(context.Background(), 1, domain.MethodCashOnDelivery)
	require.NoError(t, err)

	require.NoError(t, e.store.UpsertProduct(context.Background(), inventorydomain.Product{
		ID: 42, StoreID: 7, Name: "lamp", Price: decimal.RequireFromString("99.00"), StockQuantity: 2,
	}))
	order, err := e.ledger.Get(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "30.00", order.TotalAmount.StringFixed(2))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "placed", coordinator.Outcome(nil))
	assert.Equal(t, "empty_cart", coordinator.Outcome(coordinator.ErrEmptyCart))
	assert.Equal(t, "stock_commit_failed", coordinator.Outcome(&inventoryservice.StockCommitFailedError{}))
	assert.Equal(t, "error", coordinator.Outcome(errors.New("x")))
}

func TestPlaceOrder_LastUnitsGoToOneBuyer(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.store.UpsertProduct(ctx, inventorydomain.Product{
		ID: 42, StoreID: 7, Name: "lamp", Price: decimal.RequireFromString("10.00"), StockQuantity: 3,
	}))

	const buyers = 8
	for user := int64(1); user <= buyers; user++ {
		require.NoError(t, e.store.AddCartLine(ctx, cartdomain.CartLine{UserID: user, ProductID: 42, Quantity: 3}))
		require.NoError(t, e.store.SaveShippingAddress(ctx, domain.ShippingAddress{
			ID: user, UserID: user, Street: "1 Main St", City: "Pune", Country: "IN",
		}, true))
	}

	svc := e.service()
	results := make(chan error, buyers)
	var wg sync.WaitGroup
	for user := int64(1); user <= buyers; user++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, err := svc.PlaceOrder(ctx, user, domain.MethodCashOnDelivery)
			results <- err
		}(user)
	}
	wg.Wait()
	close(results)

	var won int
	for err := range results {
		var (
			short  *inventoryservice.InsufficientStockError
			commit *inventoryservice.StockCommitFailedError
		)
		switch {
		case err == nil:
			won++
		case errors.As(err, &short), errors.As(err, &commit):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Zero(t, e.stock(t, 42))

	orders, err := e.ledger.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	tickets, err := e.store.Tickets(ctx)
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
}
