package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/quitq-checkout/internal/order-service/domain"
)

// GetOrder answers 204 with an empty body when the order does not exist.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	order, err := h.orders.Get(r.Context(), orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "get order failed", "order_id", orderID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(*order))
}

func (h *Handler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := int64Param(w, r, "userId")
	if !ok {
		return
	}
	orders, err := h.orders.ListByUser(r.Context(), userID)
	h.writeOrders(w, r, orders, err)
}

func (h *Handler) ListStoreOrders(w http.ResponseWriter, r *http.Request) {
	storeID, ok := int64Param(w, r, "storeId")
	if !ok {
		return
	}
	orders, err := h.orders.ListByStore(r.Context(), storeID)
	h.writeOrders(w, r, orders, err)
}

func (h *Handler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAll(r.Context())
	h.writeOrders(w, r, orders, err)
}

func (h *Handler) writeOrders(w http.ResponseWriter, r *http.Request, orders []domain.Order, err error) {
	if err != nil {
		slog.ErrorContext(r.Context(), "list orders failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	writeJSON(w, http.StatusOK, mapOrders(orders))
}

func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+name, "")
		return 0, false
	}
	return v, true
}
