package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	deliveryservice "github.com/jcmexdev/quitq-checkout/internal/delivery-service/app"
	"github.com/jcmexdev/quitq-checkout/internal/order-service/domain"
)

// GenerateCode issues a new delivery code for a ticket and sends it to the
// customer.
func (h *Handler) GenerateCode(w http.ResponseWriter, r *http.Request) {
	shipID := chi.URLParam(r, "shipId")

	ok, err := h.delivery.IssueCode(r.Context(), shipID)
	switch {
	case errors.Is(err, domain.ErrTicketNotFound):
		writeError(w, http.StatusNotFound, "shipment_not_found", "")
	case errors.Is(err, deliveryservice.ErrOrderFinalized):
		writeError(w, http.StatusConflict, "order_finalized", err.Error())
	case err != nil:
		slog.ErrorContext(r.Context(), "issue delivery code failed", "ship_id", shipID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	case !ok:
		writeError(w, http.StatusNotFound, "shipment_not_found", "")
	default:
		writeJSON(w, http.StatusOK, true)
	}
}

// ValidateCode answers 200 true on a match and 404 false otherwise.
func (h *Handler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	var req ValidateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.ShipperID == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "shipperId and code are required")
		return
	}

	ok, err := h.delivery.ValidateCode(r.Context(), req.ShipperID, req.Code)
	switch {
	case errors.Is(err, domain.ErrTicketNotFound):
		writeJSON(w, http.StatusNotFound, false)
	case err != nil:
		slog.ErrorContext(r.Context(), "validate delivery code failed", "ship_id", req.ShipperID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	case !ok:
		writeJSON(w, http.StatusNotFound, false)
	default:
		writeJSON(w, http.StatusOK, true)
	}
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	h.setOrderStatus(w, r, msgStatusUpdated)
}

func (h *Handler) UpdateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	h.setOrderStatus(w, r, true)
}

func (h *Handler) setOrderStatus(w http.ResponseWriter, r *http.Request, success any) {
	var req UpdateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.OrderID == "" || req.OrderStatus == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "orderId and orderStatus are required")
		return
	}

	ok, err := h.delivery.SetOrderStatus(r.Context(), req.OrderID, req.OrderStatus)
	switch {
	case errors.Is(err, deliveryservice.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case err != nil:
		slog.ErrorContext(r.Context(), "update order status failed", "order_id", req.OrderID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	case !ok:
		writeError(w, http.StatusNotFound, "order_not_found", "")
	default:
		writeJSON(w, http.StatusOK, success)
	}
}

func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.delivery.Tickets(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "list shipments failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	out := make([]TicketResponse, len(tickets))
	for i, t := range tickets {
		out[i] = mapTicket(t)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetShipment(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.delivery.Ticket(r.Context(), chi.URLParam(r, "shipId"))
	writeTicket(w, r, ticket, err)
}

func (h *Handler) GetShipmentByOrder(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.delivery.TicketByOrder(r.Context(), chi.URLParam(r, "orderId"))
	writeTicket(w, r, ticket, err)
}

func writeTicket(w http.ResponseWriter, r *http.Request, t *domain.Ticket, err error) {
	if errors.Is(err, domain.ErrTicketNotFound) {
		writeError(w, http.StatusNotFound, "shipment_not_found", "")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "get shipment failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	writeJSON(w, http.StatusOK, mapTicket(*t))
}
