package httpx

import (
	"encoding/json"
	"time"

	"github.com/jcmexdev/quitq-checkout/internal/coordinator/sagalog"
	"github.com/jcmexdev/quitq-checkout/internal/order-service/domain"
)

const unavailableProductName = "Product Not Available"

type PlaceOrderRequest struct {
	UserID int64 `json:"userId"`
}

type PlaceOrderResponse struct {
	Message     string `json:"message"`
	OrderID     string `json:"orderId"`
	SagaID      string `json:"sagaId"`
	TotalAmount string `json:"totalAmount"`
}

// MessageResponse is the body of a rejected checkout.
type MessageResponse struct {
	Message    string  `json:"message"`
	ProductIDs []int64 `json:"productIds,omitempty"`
}

type ValidateCodeRequest struct {
	ShipperID string `json:"shipperId"`
	Code      string `json:"code"`
}

type UpdateOrderStatusRequest struct {
	OrderID     string `json:"orderId"`
	OrderStatus string `json:"orderStatus"`
}

type OrderResponse struct {
	OrderID         string              `json:"orderId"`
	UserID          int64               `json:"userId"`
	OrderDate       string              `json:"orderDate"`
	TotalAmount     string              `json:"totalAmount"`
	OrderStatus     string              `json:"orderStatus"`
	ShippingAddress string              `json:"shippingAddress"`
	PaymentStatus   string              `json:"paymentStatus,omitempty"`
	ShipperID       string              `json:"shipperId,omitempty"`
	Items           []OrderItemResponse `json:"orderItems"`
}

type OrderItemResponse struct {
	OrderItemID string          `json:"orderItemId"`
	Quantity    int             `json:"quantity"`
	Product     ProductResponse `json:"product"`
}

type ProductResponse struct {
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Image       string `json:"image,omitempty"`
	StoreID     int64  `json:"storeId,omitempty"`
	Available   bool   `json:"available"`
}

// TicketResponse never carries the code itself.
type TicketResponse struct {
	ShipperID      string  `json:"shipperId"`
	OrderID        string  `json:"orderId"`
	CodeIssued     bool    `json:"codeIssued"`
	CodeIssuedAt   *string `json:"codeIssuedAt,omitempty"`
	FailedAttempts int     `json:"failedAttempts"`
}

type SagaStatusResponse struct {
	SagaID      string          `json:"sagaId"`
	OrderID     string          `json:"orderId,omitempty"`
	Status      string          `json:"status"`
	CurrentStep string          `json:"currentStep,omitempty"`
	State       string          `json:"state"`
	Errors      json.RawMessage `json:"errors"`
	TraceID     string          `json:"traceId,omitempty"`
	UpdatedAt   string          `json:"updatedAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func mapOrderToResponse(o domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			OrderItemID: it.ID,
			Quantity:    it.Quantity,
			Product:     mapProduct(it),
		}
	}
	return OrderResponse{
		OrderID:         o.ID,
		UserID:          o.UserID,
		OrderDate:       o.OrderDate.Format(time.RFC3339),
		TotalAmount:     o.TotalAmount.StringFixed(2),
		OrderStatus:     o.Status.String(),
		ShippingAddress: o.ShippingAddress,
		PaymentStatus:   string(o.PaymentStatus),
		ShipperID:       o.TicketID,
		Items:           items,
	}
}

func mapOrders(orders []domain.Order) []OrderResponse {
	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = mapOrderToResponse(o)
	}
	return out
}

func mapProduct(it domain.OrderItem) ProductResponse {
	switch p := it.Product.(type) {
	case domain.AvailableProduct:
		return ProductResponse{
			ProductID:   p.ID,
			ProductName: p.Name,
			Image:       p.Image,
			StoreID:     p.StoreID,
			Available:   true,
		}
	case domain.UnavailableProduct:
		return ProductResponse{ProductID: p.ID, ProductName: unavailableProductName}
	default:
		return ProductResponse{ProductID: it.ProductID, ProductName: unavailableProductName}
	}
}

func mapTicket(t domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ShipperID:      t.ID,
		OrderID:        t.OrderID,
		CodeIssued:     t.HasCode(),
		FailedAttempts: t.FailedAttempts,
	}
	if t.CodeIssuedAt != nil {
		s := t.CodeIssuedAt.Format(time.RFC3339)
		resp.CodeIssuedAt = &s
	}
	return resp
}

func mapSagaLog(l *sagalog.Entry) SagaStatusResponse {
	return SagaStatusResponse{
		SagaID:      l.SagaID,
		OrderID:     l.OrderID,
		Status:      string(l.Status),
		CurrentStep: l.Step,
		State:       l.State,
		Errors:      json.RawMessage(l.Errors),
		TraceID:     l.TraceID,
		UpdatedAt:   l.UpdatedAt.Format(time.RFC3339Nano),
	}
}
