package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/quitq-checkout/internal/api-gateway/infra/httpx/middlewares"
	"github.com/jcmexdev/quitq-checkout/internal/pkg/metrics"
)

type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	Metrics        *metrics.ServerMetrics // optional
	MetricsHandler http.Handler           // optional, mounted at /metrics
}

func NewRouter(handler *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.AttachTracingMetadata)
	r.Use(middlewares.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middlewares.HeaderIdempotencyKey, middlewares.HeaderRequestID},
		ExposedHeaders: []string{middlewares.HeaderRequestID},
		MaxAge:         300,
	}))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	r.Get("/health", handler.Health)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/checkout", func(r chi.Router) {
		r.Post("/place-order", handler.PlaceOrder)
		r.Get("/saga/{sagaId}", handler.SagaStatus)
	})

	r.Route("/order", func(r chi.Router) {
		r.Get("/all", handler.ListAllOrders)
		r.Get("/all/{userId}", handler.ListUserOrders)
		r.Get("/store/{storeId}", handler.ListStoreOrders)
		r.Get("/{orderId}", handler.GetOrder)
	})

	r.Route("/shipment", func(r chi.Router) {
		r.Get("/all", handler.ListShipments)
		r.Get("/by-order/{orderId}", handler.GetShipmentByOrder)
		r.Get("/{shipId}", handler.GetShipment)
		r.Post("/generateotp/{shipId}", handler.GenerateCode)
		r.Post("/validateotp", handler.ValidateCode)
		r.Put("/updateorder", handler.UpdateOrderStatus)
		r.Put("/update-delivery-status", handler.UpdateDeliveryStatus)
	})

	name := cfg.ServiceName
	if name == "" {
		name = "http.server"
	}
	return otelhttp.NewHandler(r, name,
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	)
}
