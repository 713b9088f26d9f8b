package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	cartdomain "github.com/jcmexdev/quitq-checkout/internal/cart-service/domain"
	"github.com/jcmexdev/quitq-checkout/internal/coordinator/sagalog"
	inventoryservice "github.com/jcmexdev/quitq-checkout/internal/inventory-service"
	inventorydomain "github.com/jcmexdev/quitq-checkout/internal/inventory-service/domain"
	"github.com/jcmexdev/quitq-checkout/internal/order-service/domain"
)

const PlacedMessage = "Successfully placed order."

type CartSnapshot interface {
	Read(ctx context.Context, userID int64) ([]cartdomain.CartLine, error)
	Clear(ctx context.Context, userID int64) (bool, error)
}

type StockGuard interface {
	Validate(ctx context.Context, items []inventorydomain.StockItem) ([]int64, error)
	StockCommitter
}

// Identity returns the user's single active shipping address, or nil when
// none is selected.
type Identity interface {
	ActiveShippingAddress(ctx context.Context, userID int64) (*domain.ShippingAddress, error)
}

type PriceLookup interface {
	Product(ctx context.Context, id int64) (*inventorydomain.Product, error)
}

// Metrics is satisfied by *metrics.CheckoutMetrics.
type Metrics interface {
	ObserveCheckout(outcome string, elapsed time.Duration)
}

type CheckoutDeps struct {
	Cart     CartSnapshot
	Guard    StockGuard
	Identity Identity
	Catalog  PriceLookup
	Ledger   OrderWriter
	Payments PaymentWriter
	SagaLog  sagalog.Writer
	Metrics  Metrics
}

type Result struct {
	SagaID  string
	OrderID string
	Total   decimal.Decimal
	State   State
	Message string
}

// CheckoutService turns a user's cart into a committed order.
type CheckoutService struct {
	deps    CheckoutDeps
	timeout time.Duration
}

func NewCheckoutService(deps CheckoutDeps, timeout time.Duration) *CheckoutService {
	return &CheckoutService{deps: deps, timeout: timeout}
}

func (s *CheckoutService) PlaceOrder(ctx context.Context, userID int64, method domain.PaymentMethod) (*Result, error) {
	start := time.Now()
	res, err := s.placeOrder(ctx, userID, method)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveCheckout(Outcome(err), time.Since(start))
	}
	return res, err
}

func (s *CheckoutService) placeOrder(ctx context.Context, userID int64, method domain.PaymentMethod) (*Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	sagaID := uuid.NewString()
	logger := slog.With("saga_id", sagaID, "user_id", userID)
	logger.DebugContext(ctx, "checkout state", "state", StateValidating)

	lines, err := s.deps.Cart.Read(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	if _, err := s.deps.Guard.Validate(ctx, toStockItems(lines)); err != nil {
		return nil, err
	}

	address, err := s.deps.Identity.ActiveShippingAddress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("checkout: shipping address of user %d: %w", userID, err)
	}
	if address == nil {
		return nil, ErrNoShippingAddress
	}

	logger.DebugContext(ctx, "checkout state", "state", StatePricing)
	total, err := s.price(ctx, lines)
	if err != nil {
		return nil, err
	}

	attempt := &Attempt{
		SagaID:  sagaID,
		UserID:  userID,
		Method:  method,
		Lines:   lines,
		Address: address.String(),
		Total:   total,
	}

	steps := []Step{
		NewCreateOrderStep(s.deps.Ledger, attempt),
		NewPaymentStep(s.deps.Payments, attempt),
		NewInventoryStep(s.deps.Guard, attempt),
		NewRecordItemsStep(s.deps.Ledger, attempt),
	}
	saga := NewOrchestrator(sagaID, steps, s.deps.SagaLog,
		WithPayload(payloadOf(attempt)),
		WithOrderRef(attempt.OrderID),
	)

	if err := saga.Start(ctx); err != nil {
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			if stepErr.Compensation != nil {
				logger.ErrorContext(ctx, "CRITICAL: checkout left partial state behind",
					"order_id", attempt.OrderID(),
					"error", stepErr.Compensation,
				)
			}
			return nil, classify(stepErr)
		}
		return nil, err
	}

	// The order is committed from here on. A cart that fails to clear is
	// stale, not inconsistent, so it is only logged.
	state := StateItemsRecorded
	if _, err := s.deps.Cart.Clear(context.WithoutCancel(ctx), userID); err != nil {
		logger.ErrorContext(ctx, "order placed but cart was not cleared",
			"order_id", attempt.OrderID(),
			"error", err,
		)
	} else {
		state = StateCartCleared
	}
	logger.InfoContext(ctx, "order placed",
		"order_id", attempt.OrderID(),
		"total", total.StringFixed(2),
		"last_state", state,
	)

	return &Result{
		SagaID:  sagaID,
		OrderID: attempt.OrderID(),
		Total:   total,
		State:   StateDone,
		Message: PlacedMessage,
	}, nil
}

// price reads the current price of every line once. The total is never
// recomputed after this point.
func (s *CheckoutService) price(ctx context.Context, lines []cartdomain.CartLine) (decimal.Decimal, error) {
	total := decimal.Zero
	var missing []int64
	for _, line := range lines {
		p, err := s.deps.Catalog.Product(ctx, line.ProductID)
		if errors.Is(err, inventorydomain.ErrProductNotFound) {
			missing = append(missing, line.ProductID)
			continue
		}
		if err != nil {
			return decimal.Zero, fmt.Errorf("checkout: price product %d: %w", line.ProductID, err)
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	if len(missing) > 0 {
		return decimal.Zero, &inventoryservice.InsufficientStockError{ProductIDs: missing}
	}
	return total, nil
}

// Outcome names the result of a checkout for metrics and logs.
func Outcome(err error) string {
	var (
		short  *inventoryservice.InsufficientStockError
		commit *inventoryservice.StockCommitFailedError
	)
	switch {
	case err == nil:
		return "placed"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.As(err, &short):
		return "insufficient_stock"
	case errors.Is(err, ErrNoShippingAddress):
		return "no_shipping_address"
	case errors.Is(err, ErrPaymentFailed):
		return "payment_failed"
	case errors.As(err, &commit):
		return "stock_commit_failed"
	case errors.Is(err, ErrOrderCreationFailed):
		return "order_creation_failed"
	default:
		return "error"
	}
}

func toStockItems(lines []cartdomain.CartLine) []inventorydomain.StockItem {
	items := make([]inventorydomain.StockItem, len(lines))
	for i, l := range lines {
		items[i] = inventorydomain.StockItem{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return items
}

func payloadOf(a *Attempt) string {
	type line struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	p := struct {
		UserID int64                `json:"user_id"`
		Method domain.PaymentMethod `json:"method"`
		Total  string               `json:"total"`
		Lines  []line               `json:"lines"`
	}{UserID: a.UserID, Method: a.Method, Total: a.Total.StringFixed(2)}
	for _, l := range a.Lines {
		p.Lines = append(p.Lines, line{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	b, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(b)
}
