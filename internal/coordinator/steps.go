package coordinator

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	cartdomain "github.com/jcmexdev/quitq-checkout/internal/cart-service/domain"
	inventorydomain "github.com/jcmexdev/quitq-checkout/internal/inventory-service/domain"
	"github.com/jcmexdev/quitq-checkout/internal/order-service/domain"
)

type OrderWriter interface {
	Create(ctx context.Context, in domain.NewOrder) (*domain.Order, error)
	Delete(ctx context.Context, id string) error
	AddItems(ctx context.Context, orderID string, lines []cartdomain.CartLine) ([]domain.OrderItem, error)
}

type PaymentWriter interface {
	Record(ctx context.Context, order *domain.Order, method domain.PaymentMethod) (*domain.Payment, error)
	Delete(ctx context.Context, paymentID string) error
}

type StockCommitter interface {
	Commit(ctx context.Context, items []inventorydomain.StockItem) error
	Release(ctx context.Context, items []inventorydomain.StockItem) error
}

// Attempt is the state shared by the steps of one checkout. Inputs are
// frozen before the saga starts; outputs are filled in as steps succeed.
type Attempt struct {
	SagaID  string
	UserID  int64
	Method  domain.PaymentMethod
	Lines   []cartdomain.CartLine
	Address string
	Total   decimal.Decimal

	Order   *domain.Order
	Payment *domain.Payment
	Items   []domain.OrderItem
}

func (a *Attempt) OrderID() string {
	if a.Order == nil {
		return ""
	}
	return a.Order.ID
}

func (a *Attempt) stockItems() []inventorydomain.StockItem {
	return toStockItems(a.Lines)
}

// --- CreateOrderStep ---

type CreateOrderStep struct {
	ledger  OrderWriter
	attempt *Attempt
}

func NewCreateOrderStep(ledger OrderWriter, attempt *Attempt) *CreateOrderStep {
	return &CreateOrderStep{ledger: ledger, attempt: attempt}
}

func (s *CreateOrderStep) Name() string  { return "Create_Order_Step" }
func (s *CreateOrderStep) Target() State { return StateOrderCreated }

func (s *CreateOrderStep) Execute(ctx context.Context) error {
	order, err := s.ledger.Create(ctx, domain.NewOrder{
		UserID:          s.attempt.UserID,
		TotalAmount:     s.attempt.Total,
		ShippingAddress: s.attempt.Address,
	})
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	s.attempt.Order = order
	return nil
}

// Compensate deletes the order; its ticket and items cascade with it.
func (s *CreateOrderStep) Compensate(ctx context.Context) error {
	if s.attempt.Order == nil {
		return nil
	}
	return s.ledger.Delete(ctx, s.attempt.Order.ID)
}

// --- PaymentStep ---

type PaymentStep struct {
	payments PaymentWriter
	attempt  *Attempt
}

func NewPaymentStep(payments PaymentWriter, attempt *Attempt) *PaymentStep {
	return &PaymentStep{payments: payments, attempt: attempt}
}

func (s *PaymentStep) Name() string  { return "Record_Payment_Step" }
func (s *PaymentStep) Target() State { return StatePaymentRecorded }

func (s *PaymentStep) Execute(ctx context.Context) error {
	payment, err := s.payments.Record(ctx, s.attempt.Order, s.attempt.Method)
	if err != nil {
		return fmt.Errorf("payment service error: %w", err)
	}
	s.attempt.Payment = payment
	return nil
}

func (s *PaymentStep) Compensate(ctx context.Context) error {
	if s.attempt.Payment == nil {
		return nil
	}
	return s.payments.Delete(ctx, s.attempt.Payment.ID)
}

// --- InventoryStep ---

type InventoryStep struct {
	guard   StockCommitter
	attempt *Attempt
}

func NewInventoryStep(guard StockCommitter, attempt *Attempt) *InventoryStep {
	return &InventoryStep{guard: guard, attempt: attempt}
}

func (s *InventoryStep) Name() string  { return "Inventory_Commit_Step" }
func (s *InventoryStep) Target() State { return StateStockCommitted }

func (s *InventoryStep) Execute(ctx context.Context) error {
	if err := s.guard.Commit(ctx, s.attempt.stockItems()); err != nil {
		return fmt.Errorf("inventory commit for order %s: %w", s.attempt.OrderID(), err)
	}
	return nil
}

func (s *InventoryStep) Compensate(ctx context.Context) error {
	return s.guard.Release(ctx, s.attempt.stockItems())
}

// --- RecordItemsStep ---

type RecordItemsStep struct {
	ledger  OrderWriter
	attempt *Attempt
}

func NewRecordItemsStep(ledger OrderWriter, attempt *Attempt) *RecordItemsStep {
	return &RecordItemsStep{ledger: ledger, attempt: attempt}
}

func (s *RecordItemsStep) Name() string  { return "Record_Items_Step" }
func (s *RecordItemsStep) Target() State { return StateItemsRecorded }

func (s *RecordItemsStep) Execute(ctx context.Context) error {
	items, err := s.ledger.AddItems(ctx, s.attempt.OrderID(), s.attempt.Lines)
	if err != nil {
		return fmt.Errorf("failed to record order items: %w", err)
	}
	s.attempt.Items = items
	return nil
}

func (s *RecordItemsStep) Compensate(ctx context.Context) error {
	// Items are owned by the order and go away with CreateOrderStep's
	// compensation.
	return nil
}
