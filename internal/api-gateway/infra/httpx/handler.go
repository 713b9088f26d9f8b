package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/quitq-checkout/internal/api-gateway/core/ports"
	"github.com/jcmexdev/quitq-checkout/internal/api-gateway/infra/httpx/middlewares"
	"github.com/jcmexdev/quitq-checkout/internal/coordinator"
	"github.com/jcmexdev/quitq-checkout/internal/coordinator/sagalog"
	inventoryservice "github.com/jcmexdev/quitq-checkout/internal/inventory-service"
	"github.com/jcmexdev/quitq-checkout/internal/order-service/domain"
	"github.com/jcmexdev/quitq-checkout/internal/pkg/cache"
)

const (
	msgOutOfStock      = "Could not place order. Some products are out of stock."
	msgNoAddress       = "Could not place order. Please select the delivery address."
	msgEmptyCart       = "Could not place order. Your cart is empty."
	msgTryLater        = "Could not place the order. Try again later."
	msgPaymentFailed   = "Could not process payment. If amount debited will be refunded. Could not place the order."
	msgStatusUpdated   = "Successfully updated order status"
	idempotencyTTL     = 24 * time.Hour
	idempotencyPending = "in-flight"
	// Outlives the checkout timeout; bounds how long a crashed request
	// blocks its key.
	idempotencyPendingTTL = time.Minute
)

// Handler serves the checkout, order and shipment endpoints.
type Handler struct {
	checkout ports.CheckoutService
	orders   ports.OrderService
	delivery ports.DeliveryService
	sagas    sagalog.Reader // nil: saga status endpoint answers 404
	cache    cache.Cache    // nil: idempotency keys are ignored
	health   []ports.HealthChecker
}

type HandlerDeps struct {
	Checkout ports.CheckoutService
	Orders   ports.OrderService
	Delivery ports.DeliveryService
	Sagas    sagalog.Reader
	Cache    cache.Cache
	Health   []ports.HealthChecker
}

func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		checkout: deps.Checkout,
		orders:   deps.Orders,
		delivery: deps.Delivery,
		sagas:    deps.Sagas,
		cache:    deps.Cache,
		health:   deps.Health,
	}
}

// storedResponse is what an idempotency key maps to once the first request
// finished.
type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// PlaceOrder turns the user's cart into an order paid cash on delivery.
// A repeated X-Idempotency-Key replays the first successful response.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.UserID <= 0 {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "userId is required"})
		return
	}

	ctx := r.Context()
	cacheKey := ""
	if key := middlewares.IdempotencyKey(ctx); key != "" && h.cache != nil {
		cacheKey = h.cache.Key("place-order", strconv.FormatInt(req.UserID, 10), key)
		if h.replay(w, r, cacheKey) {
			return
		}
		acquired, err := h.cache.SetNX(ctx, cacheKey, idempotencyPending, idempotencyPendingTTL)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "idempotency cache unavailable, continuing without it", "error", err)
			cacheKey = ""
		case !acquired:
			if !h.replay(w, r, cacheKey) {
				writeError(w, http.StatusConflict, "request_in_progress", "a request with this idempotency key is being processed")
			}
			return
		}
	}

	if cacheKey != "" {
		defer func() {
			if p := recover(); p != nil {
				h.release(ctx, cacheKey)
				panic(p)
			}
		}()
	}

	status, body := h.placeOrder(ctx, req.UserID)
	if cacheKey != "" {
		h.remember(ctx, cacheKey, status, body)
	}
	writeJSON(w, status, body)
}

func (h *Handler) placeOrder(ctx context.Context, userID int64) (int, any) {
	res, err := h.checkout.PlaceOrder(ctx, userID, domain.MethodCashOnDelivery)
	if err == nil {
		return http.StatusOK, PlaceOrderResponse{
			Message:     res.Message,
			OrderID:     res.OrderID,
			SagaID:      res.SagaID,
			TotalAmount: res.Total.StringFixed(2),
		}
	}

	var (
		short  *inventoryservice.InsufficientStockError
		commit *inventoryservice.StockCommitFailedError
	)
	switch {
	case errors.Is(err, coordinator.ErrEmptyCart):
		return http.StatusBadRequest, MessageResponse{Message: msgEmptyCart}
	case errors.As(err, &short):
		return http.StatusBadRequest, MessageResponse{Message: msgOutOfStock, ProductIDs: short.ProductIDs}
	case errors.Is(err, coordinator.ErrNoShippingAddress):
		return http.StatusBadRequest, MessageResponse{Message: msgNoAddress}
	case errors.Is(err, coordinator.ErrPaymentFailed):
		return http.StatusBadRequest, MessageResponse{Message: msgPaymentFailed}
	case errors.As(err, &commit):
		return http.StatusBadRequest, MessageResponse{Message: msgOutOfStock, ProductIDs: commit.ProductIDs}
	case errors.Is(err, coordinator.ErrOrderCreationFailed):
		return http.StatusBadRequest, MessageResponse{Message: msgTryLater}
	default:
		slog.ErrorContext(ctx, "place order failed", "user_id", userID, "error", err)
		return http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: msgTryLater}
	}
}

// replay writes the stored response for key, if there is one.
func (h *Handler) replay(w http.ResponseWriter, r *http.Request, key string) bool {
	val, err := h.cache.Get(r.Context(), key)
	if err != nil {
		slog.WarnContext(r.Context(), "idempotency lookup failed", "error", err)
		return false
	}
	if val == "" || val == idempotencyPending {
		return false
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		slog.WarnContext(r.Context(), "corrupt idempotency record", "key", key, "error", err)
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(middlewares.HeaderIdempotentReplay, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
	return true
}

// remember keeps successful responses only: a rejected checkout may succeed
// once the user fixes the cart or the address.
func (h *Handler) remember(ctx context.Context, key string, status int, body any) {
	ctx = context.WithoutCancel(ctx)
	if status != http.StatusOK {
		h.release(ctx, key)
		return
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return
	}
	rec, err := json.Marshal(storedResponse{Status: status, Body: raw})
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, key, string(rec), idempotencyTTL); err != nil {
		slog.WarnContext(ctx, "failed to store idempotent response", "key", key, "error", err)
	}
}

func (h *Handler) release(ctx context.Context, key string) {
	if err := h.cache.Delete(context.WithoutCancel(ctx), key); err != nil {
		slog.WarnContext(ctx, "failed to release idempotency key", "key", key, "error", err)
	}
}

// SagaStatus returns the latest saga log entry of a checkout attempt.
func (h *Handler) SagaStatus(w http.ResponseWriter, r *http.Request) {
	sagaID := chi.URLParam(r, "sagaId")
	if h.sagas == nil {
		writeError(w, http.StatusNotFound, "saga_not_found", "")
		return
	}

	entry, err := h.sagas.GetLatest(r.Context(), sagaID)
	if errors.Is(err, sagalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "saga_not_found", "")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "saga status lookup failed", "saga_id", sagaID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	writeJSON(w, http.StatusOK, mapSagaLog(entry))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, c := range h.health {
		if err := c.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
