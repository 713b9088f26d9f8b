package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerMetrics_LabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServerMetrics(reg, "checkout_api")

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/order/{orderId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/order/"+id, nil))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Requests.WithLabelValues("GET /order/{orderId}", "204")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Requests))
}

func TestCheckoutMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)

	m.ObserveCheckout("placed", 20*time.Millisecond)
	m.ObserveCheckout("placed", 30*time.Millisecond)
	m.ObserveCheckout("insufficient_stock", time.Millisecond)
	m.ObserveCodeValidation("mismatch")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Checkouts.WithLabelValues("placed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Checkouts.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CodeValidations.WithLabelValues("mismatch")))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCheckoutMetrics(reg).ObserveCheckout("placed", time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `quitq_checkouts_total{outcome="placed"} 1`))
}
