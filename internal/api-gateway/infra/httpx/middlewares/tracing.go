package middlewares

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	HeaderRequestID        = "X-Request-Id"
	HeaderIdempotencyKey   = "X-Idempotency-Key"
	HeaderIdempotentReplay = "X-Idempotent-Replay"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	idempotencyKeyKey
)

// AttachTracingMetadata exposes the chi request id and the client's
// idempotency key to handlers and echoes the request id in the response.
// Must run after middleware.RequestID.
func AttachTracingMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = context.WithValue(ctx, requestIDKey, id)
			w.Header().Set(HeaderRequestID, id)
		}
		if key := r.Header.Get(HeaderIdempotencyKey); key != "" {
			ctx = context.WithValue(ctx, idempotencyKeyKey, key)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// IdempotencyKey returns "" when the client sent none.
func IdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyKey).(string)
	return key
}
