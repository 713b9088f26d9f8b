package ports

import (
	"context"

	"github.com/jcmexdev/quitq-checkout/internal/coordinator"
	"github.com/jcmexdev/quitq-checkout/internal/order-service/domain"
)

type CheckoutService interface {
	PlaceOrder(ctx context.Context, userID int64, method domain.PaymentMethod) (*coordinator.Result, error)
}

type OrderService interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	ListByStore(ctx context.Context, storeID int64) ([]domain.Order, error)
	ListAll(ctx context.Context) ([]domain.Order, error)
}

type DeliveryService interface {
	IssueCode(ctx context.Context, ticketID string) (bool, error)
	ValidateCode(ctx context.Context, ticketID, code string) (bool, error)
	SetOrderStatus(ctx context.Context, orderID, status string) (bool, error)
	Ticket(ctx context.Context, id string) (*domain.Ticket, error)
	TicketByOrder(ctx context.Context, orderID string) (*domain.Ticket, error)
	Tickets(ctx context.Context) ([]domain.Ticket, error)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
