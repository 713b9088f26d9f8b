package inventoryservice_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inventoryservice "github.com/jcmexdev/quitq-checkout/internal/inventory-service"
	"github.com/jcmexdev/quitq-checkout/internal/inventory-service/domain"
	"github.com/jcmexdev/quitq-checkout/internal/store/sqlstore"
)

type fakeCatalog struct {
	mu          sync.Mutex
	stock       map[int64]int
	failOn      map[int64]error
	restoreErr  error
	outOfStock  []int64
	decremented []int64
}

func newFakeCatalog(stock map[int64]int) *fakeCatalog {
	return &fakeCatalog{stock: stock, failOn: map[int64]error{}}
}

func (f *fakeCatalog) Product(_ context.Context, id int64) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	qty, ok := f.stock[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &domain.Product{ID: id, Price: decimal.NewFromInt(10), StockQuantity: qty}, nil
}

func (f *fakeCatalog) DecrementStockIfAvailable(_ context.Context, id int64, qty int) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[id]; err != nil {
		return 0, false, err
	}
	cur, ok := f.stock[id]
	if !ok || cur < qty {
		return 0, false, nil
	}
	f.stock[id] = cur - qty
	f.decremented = append(f.decremented, id)
	return f.stock[id], true, nil
}

func (f *fakeCatalog) IncrementStock(_ context.Context, id int64, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restoreErr != nil {
		return f.restoreErr
	}
	f.stock[id] += qty
	return nil
}

func (f *fakeCatalog) MarkOutOfStock(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outOfStock = append(f.outOfStock, id)
	return nil
}

func TestGuard_Validate(t *testing.T) {
	tests := []struct {
		name      string
		stock     map[int64]int
		items     []domain.StockItem
		wantShort []int64
	}{
		{
			name:  "enough stock",
			stock: map[int64]int{42: 5},
			items: []domain.StockItem{{ProductID: 42, Quantity: 3}},
		},
		{
			name:      "one unit short",
			stock:     map[int64]int{42: 2},
			items:     []domain.StockItem{{ProductID: 42, Quantity: 3}},
			wantShort: []int64{42},
		},
		{
			name:      "duplicate lines are summed",
			stock:     map[int64]int{42: 4},
			items:     []domain.StockItem{{ProductID: 42, Quantity: 2}, {ProductID: 42, Quantity: 3}},
			wantShort: []int64{42},
		},
		{
			name:      "missing product counts as short",
			stock:     map[int64]int{42: 5},
			items:     []domain.StockItem{{ProductID: 42, Quantity: 1}, {ProductID: 7, Quantity: 1}},
			wantShort: []int64{7},
		},
		{
			name:      "every offender is reported",
			stock:     map[int64]int{1: 0, 2: 1, 3: 9},
			items:     []domain.StockItem{{ProductID: 3, Quantity: 1}, {ProductID: 2, Quantity: 2}, {ProductID: 1, Quantity: 1}},
			wantShort: []int64{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := newFakeCatalog(tt.stock)
			guard := inventoryservice.NewGuard(catalog)

			short, err := guard.Validate(context.Background(), tt.items)
			if tt.wantShort == nil {
				require.NoError(t, err)
				assert.Empty(t, short)
				return
			}

			var stockErr *inventoryservice.InsufficientStockError
			require.ErrorAs(t, err, &stockErr)
			assert.Equal(t, tt.wantShort, short)
			assert.Equal(t, tt.wantShort, stockErr.ProductIDs)
			assert.Empty(t, catalog.decremented, "validate never writes")
		})
	}
}

func TestGuard_Commit(t *testing.T) {
	catalog := newFakeCatalog(map[int64]int{1: 3, 2: 2})
	guard := inventoryservice.NewGuard(catalog)

	err := guard.Commit(context.Background(), []domain.StockItem{
		{ProductID: 2, Quantity: 2},
		{ProductID: 1, Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 2, 2: 0}, catalog.stock)
	assert.Equal(t, []int64{1, 2}, catalog.decremented, "products are locked in id order")
	assert.Equal(t, []int64{2}, catalog.outOfStock)
}

func TestGuard_CommitRestoresOnRace(t *testing.T) {
	catalog := newFakeCatalog(map[int64]int{1: 3, 2: 1})
	guard := inventoryservice.NewGuard(catalog)

	err := guard.Commit(context.Background(), []domain.StockItem{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 2},
	})

	var commitErr *inventoryservice.StockCommitFailedError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, []int64{2}, commitErr.ProductIDs)
	assert.Equal(t, map[int64]int{1: 3, 2: 1}, catalog.stock, "product 1 restored")
}

func TestGuard_CommitReportsRestoreFailure(t *testing.T) {
	storeDown := errors.New("store down")
	catalog := newFakeCatalog(map[int64]int{1: 3, 2: 1})
	catalog.failOn[2] = errors.New("deadlock")
	catalog.restoreErr = storeDown
	guard := inventoryservice.NewGuard(catalog)

	err := guard.Commit(context.Background(), []domain.StockItem{
		{ProductID: 1, Quantity: 1},
		{ProductID: 2, Quantity: 1},
	})

	var commitErr *inventoryservice.StockCommitFailedError
	require.ErrorAs(t, err, &commitErr)
	assert.ErrorIs(t, err, storeDown)
}

func TestGuard_Release(t *testing.T) {
	catalog := newFakeCatalog(map[int64]int{1: 0})
	guard := inventoryservice.NewGuard(catalog)

	require.NoError(t, guard.Release(context.Background(), []domain.StockItem{
		{ProductID: 1, Quantity: 2},
		{ProductID: 1, Quantity: 1},
	}))
	assert.Equal(t, 3, catalog.stock[1])
}

func TestGuard_LastUnitGoesToOneBuyer(t *testing.T) {
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, sqlstore.SQLiteDSN(filepath.Join(t.TempDir(), "quitq.db")))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.UpsertProduct(ctx, domain.Product{
		ID: 42, StoreID: 1, Name: "lamp", Price: decimal.NewFromInt(10), StockQuantity: 1,
	}))
	guard := inventoryservice.NewGuard(store)

	const buyers = 8
	results := make(chan error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- guard.Commit(ctx, []domain.StockItem{{ProductID: 42, Quantity: 1}})
		}()
	}
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		var commitErr *inventoryservice.StockCommitFailedError
		switch {
		case err == nil:
			won++
		case errors.As(err, &commitErr):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, buyers-1, lost)

	p, err := store.Product(ctx, 42)
	require.NoError(t, err)
	assert.Zero(t, p.StockQuantity)
	assert.Equal(t, domain.ProductOutOfStock, p.Status)
}
