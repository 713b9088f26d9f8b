package deliveryservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jcmexdev/quitq-checkout/internal/pkg/rabbitmq"
)

// DeliveryCode is the message a customer receives when a courier asks for
// a confirmation code.
type DeliveryCode struct {
	TicketID  string     `json:"ticketId"`
	OrderID   string     `json:"orderId"`
	UserID    int64      `json:"userId"`
	Code      string     `json:"code"`
	IssuedAt  time.Time  `json:"issuedAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type Notifier interface {
	NotifyDeliveryCode(ctx context.Context, msg DeliveryCode) error
}

type publisher interface {
	Publish(ctx context.Context, queue, contentType string, body []byte) error
}

// QueueNotifier hands delivery codes to the notification queue.
type QueueNotifier struct {
	client publisher
	queue  string
}

func NewQueueNotifier(client *rabbitmq.Client, queue string) (*QueueNotifier, error) {
	q, err := client.DeclareQueue(rabbitmq.DeclareQueueConfig{
		Name:    queue,
		Durable: true,
	})
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &QueueNotifier{client: client, queue: q.Name}, nil
}

func (n *QueueNotifier) NotifyDeliveryCode(ctx context.Context, msg DeliveryCode) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.queue, "application/json", body)
}

// LogNotifier is used when no broker is configured. The code itself is
// never logged.
type LogNotifier struct{}

func (LogNotifier) NotifyDeliveryCode(ctx context.Context, msg DeliveryCode) error {
	slog.InfoContext(ctx, "delivery code ready for customer",
		"user_id", msg.UserID,
		"order_id", msg.OrderID,
		"ticket_id", msg.TicketID,
	)
	return nil
}
