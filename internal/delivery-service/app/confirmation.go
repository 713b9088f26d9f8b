package deliveryservice

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/jcmexdev/quitq-checkout/internal/order-service/domain"
)

var (
	ErrOrderFinalized    = errors.New("order already reached a terminal status")
	ErrCodeNotIssued     = errors.New("no delivery code issued")
	ErrCodeExpired       = errors.New("delivery code expired")
	ErrCodeMismatch      = errors.New("delivery code mismatch")
	ErrAttemptsExceeded  = errors.New("too many wrong delivery codes, code revoked")
	ErrInvalidTransition = errors.New("order status transition not allowed")
)

type TicketRepository interface {
	Ticket(ctx context.Context, id string) (*domain.Ticket, error)
	TicketByOrder(ctx context.Context, orderID string) (*domain.Ticket, error)
	Tickets(ctx context.Context) ([]domain.Ticket, error)
	StoreCode(ctx context.Context, ticketID, code string, issuedAt time.Time) (bool, error)
	// ConfirmDelivery clears the code and marks the order delivered
	// atomically. It reports false, changing nothing, when the code no
	// longer matches or the order already reached a terminal status.
	ConfirmDelivery(ctx context.Context, ticketID, code string) (bool, error)
	RecordFailedAttempt(ctx context.Context, ticketID string) (int, error)
	RevokeCode(ctx context.Context, ticketID string) error
}

type Orders interface {
	Find(ctx context.Context, id string) (*domain.Order, error)
	// SetStatus reports false when the order is missing or already terminal.
	SetStatus(ctx context.Context, id string, status domain.OrderStatus) (bool, error)
}

type PaymentSettler interface {
	Settle(ctx context.Context, orderID string) error
}

type Metrics interface {
	ObserveCodeValidation(result string)
}

// Confirmation drives an order from pending to delivered with a one-time
// code handed to the customer and typed in by the courier.
type Confirmation struct {
	tickets     TicketRepository
	orders      Orders
	payments    PaymentSettler
	notifier    Notifier
	metrics     Metrics
	codeTTL     time.Duration
	maxAttempts int
	generate    func() (string, error)
	now         func() time.Time
}

type Option func(*Confirmation)

// WithCodeTTL sets how long an issued code stays valid. Zero disables expiry.
func WithCodeTTL(ttl time.Duration) Option {
	return func(c *Confirmation) { c.codeTTL = ttl }
}

// WithMaxAttempts sets how many wrong codes revoke the current one. Zero
// disables the limit.
func WithMaxAttempts(n int) Option {
	return func(c *Confirmation) { c.maxAttempts = n }
}

func WithCodeGenerator(gen func() (string, error)) Option {
	return func(c *Confirmation) { c.generate = gen }
}

func WithClock(now func() time.Time) Option {
	return func(c *Confirmation) { c.now = now }
}

func WithMetrics(m Metrics) Option {
	return func(c *Confirmation) { c.metrics = m }
}

func NewConfirmation(tickets TicketRepository, orders Orders, payments PaymentSettler, notifier Notifier, opts ...Option) *Confirmation {
	c := &Confirmation{
		tickets:     tickets,
		orders:      orders,
		payments:    payments,
		notifier:    notifier,
		codeTTL:     15 * time.Minute,
		maxAttempts: 5,
		generate:    randomCode,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IssueCode generates a fresh 6-digit code for the ticket and sends it to
// the customer. A new code replaces the previous one.
func (c *Confirmation) IssueCode(ctx context.Context, ticketID string) (bool, error) {
	ticket, order, err := c.load(ctx, ticketID)
	if err != nil {
		return false, err
	}
	if order.Status.Terminal() {
		return false, fmt.Errorf("%w: order %s is %s", ErrOrderFinalized, order.ID, order.Status)
	}

	code, err := c.generate()
	if err != nil {
		return false, fmt.Errorf("delivery: generate code: %w", err)
	}

	issuedAt := c.now()
	stored, err := c.tickets.StoreCode(ctx, ticket.ID, code, issuedAt)
	if err != nil {
		return false, fmt.Errorf("delivery: store code for ticket %s: %w", ticket.ID, err)
	}
	if !stored {
		return false, domain.ErrTicketNotFound
	}

	msg := DeliveryCode{
		TicketID: ticket.ID,
		OrderID:  order.ID,
		UserID:   order.UserID,
		Code:     code,
		IssuedAt: issuedAt,
	}
	if c.codeTTL > 0 {
		exp := issuedAt.Add(c.codeTTL)
		msg.ExpiresAt = &exp
	}
	if err := c.notifier.NotifyDeliveryCode(ctx, msg); err != nil {
		return false, fmt.Errorf("delivery: notify customer of order %s: %w", order.ID, err)
	}

	slog.InfoContext(ctx, "delivery code issued", "ticket_id", ticket.ID, "order_id", order.ID)
	return true, nil
}

// ValidateCode reports whether code confirms the delivery. Wrong, expired
// or revoked codes yield false without touching the order; only an unknown
// ticket or an infrastructure failure is returned as an error.
func (c *Confirmation) ValidateCode(ctx context.Context, ticketID, code string) (bool, error) {
	err := c.Confirm(ctx, ticketID, code)
	c.observe(err)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrCodeMismatch),
		errors.Is(err, ErrCodeExpired),
		errors.Is(err, ErrCodeNotIssued),
		errors.Is(err, ErrAttemptsExceeded),
		errors.Is(err, ErrOrderFinalized):
		slog.InfoContext(ctx, "delivery code rejected", "ticket_id", ticketID, "reason", err)
		return false, nil
	default:
		return false, err
	}
}

// Confirm is ValidateCode with the rejection reason kept as an error.
func (c *Confirmation) Confirm(ctx context.Context, ticketID, code string) error {
	ticket, order, err := c.load(ctx, ticketID)
	if err != nil {
		return err
	}
	if order.Status.Terminal() {
		return fmt.Errorf("%w: order %s is %s", ErrOrderFinalized, order.ID, order.Status)
	}
	if !ticket.HasCode() {
		return ErrCodeNotIssued
	}
	if ticket.Expired(c.now(), c.codeTTL) {
		if err := c.tickets.RevokeCode(ctx, ticket.ID); err != nil {
			return fmt.Errorf("delivery: revoke expired code: %w", err)
		}
		return ErrCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(ticket.Code), []byte(code)) != 1 {
		return c.reject(ctx, ticket)
	}

	confirmed, err := c.tickets.ConfirmDelivery(ctx, ticket.ID, code)
	if err != nil {
		return fmt.Errorf("delivery: confirm order %s: %w", order.ID, err)
	}
	if !confirmed {
		// The code changed or the order was finalized since it was read.
		if current, err := c.orders.Find(ctx, order.ID); err == nil && current.Status.Terminal() {
			return fmt.Errorf("%w: order %s is %s", ErrOrderFinalized, order.ID, current.Status)
		}
		return ErrCodeMismatch
	}

	if err := c.payments.Settle(ctx, order.ID); err != nil {
		// The parcel is delivered; a pending payment row can be settled later.
		slog.ErrorContext(ctx, "order delivered but payment not settled", "order_id", order.ID, "error", err)
	}

	slog.InfoContext(ctx, "order delivered", "order_id", order.ID, "ticket_id", ticket.ID)
	return nil
}

func (c *Confirmation) reject(ctx context.Context, ticket *domain.Ticket) error {
	attempts, err := c.tickets.RecordFailedAttempt(ctx, ticket.ID)
	if err != nil {
		return fmt.Errorf("delivery: record failed attempt: %w", err)
	}
	if c.maxAttempts > 0 && attempts >= c.maxAttempts {
		if err := c.tickets.RevokeCode(ctx, ticket.ID); err != nil {
			return fmt.Errorf("delivery: revoke code: %w", err)
		}
		slog.WarnContext(ctx, "delivery code revoked after failed attempts",
			"ticket_id", ticket.ID, "attempts", attempts)
		return fmt.Errorf("%w: %w", ErrCodeMismatch, ErrAttemptsExceeded)
	}
	return ErrCodeMismatch
}

// SetOrderStatus is the administrative status setter used outside the code
// flow (e.g. "shipped"). It only accepts known statuses and never moves an
// order out of a terminal status. It reports false for an unknown order.
func (c *Confirmation) SetOrderStatus(ctx context.Context, orderID, status string) (bool, error) {
	next, err := domain.ParseStatus(status)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	}

	order, err := c.orders.Find(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delivery: load order %s: %w", orderID, err)
	}
	if !order.Status.CanTransitionTo(next) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, next)
	}

	ok, err := c.orders.SetStatus(ctx, orderID, next)
	if err != nil {
		return false, err
	}
	if !ok {
		// Finalized or deleted since it was read.
		current, err := c.orders.Find(ctx, orderID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("delivery: reload order %s: %w", orderID, err)
		}
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next)
	}
	slog.InfoContext(ctx, "order status set administratively",
		"order_id", orderID, "from", order.Status, "to", next)
	return true, nil
}

func (c *Confirmation) Ticket(ctx context.Context, id string) (*domain.Ticket, error) {
	return c.tickets.Ticket(ctx, id)
}

func (c *Confirmation) TicketByOrder(ctx context.Context, orderID string) (*domain.Ticket, error) {
	return c.tickets.TicketByOrder(ctx, orderID)
}

func (c *Confirmation) Tickets(ctx context.Context) ([]domain.Ticket, error) {
	return c.tickets.Tickets(ctx)
}

func (c *Confirmation) load(ctx context.Context, ticketID string) (*domain.Ticket, *domain.Order, error) {
	ticket, err := c.tickets.Ticket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	order, err := c.orders.Find(ctx, ticket.OrderID)
	if err != nil {
		return nil, nil, fmt.Errorf("delivery: order of ticket %s: %w", ticketID, err)
	}
	return ticket, order, nil
}

func (c *Confirmation) observe(err error) {
	if c.metrics == nil {
		return
	}
	result := "accepted"
	switch {
	case err == nil:
	case errors.Is(err, ErrAttemptsExceeded):
		result = "revoked"
	case errors.Is(err, ErrCodeMismatch):
		result = "mismatch"
	case errors.Is(err, ErrCodeExpired):
		result = "expired"
	default:
		result = "rejected"
	}
	c.metrics.ObserveCodeValidation(result)
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
