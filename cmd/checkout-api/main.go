package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/jcmexdev/quitq-checkout/internal/api-gateway/core/ports"
	"github.com/jcmexdev/quitq-checkout/internal/api-gateway/infra/httpx"
	cartservice "github.com/jcmexdev/quitq-checkout/internal/cart-service"
	"github.com/jcmexdev/quitq-checkout/internal/config"
	"github.com/jcmexdev/quitq-checkout/internal/coordinator"
	sagasqlite "github.com/jcmexdev/quitq-checkout/internal/coordinator/sagalog/sqlite"
	deliveryservice "github.com/jcmexdev/quitq-checkout/internal/delivery-service/app"
	inventoryservice "github.com/jcmexdev/quitq-checkout/internal/inventory-service"
	orderapp "github.com/jcmexdev/quitq-checkout/internal/order-service/app"
	paymentservice "github.com/jcmexdev/quitq-checkout/internal/payment-service/app"
	"github.com/jcmexdev/quitq-checkout/internal/pkg/cache"
	"github.com/jcmexdev/quitq-checkout/internal/pkg/metrics"
	"github.com/jcmexdev/quitq-checkout/internal/pkg/rabbitmq"
	"github.com/jcmexdev/quitq-checkout/internal/pkg/telemetry"
	"github.com/jcmexdev/quitq-checkout/internal/store/sqlstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	telemetry.InitLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("checkout api stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.OTel.Enabled {
		shutdown, err := telemetry.SetupTracer(ctx, telemetry.TracerConfig{
			ServiceName: cfg.OTel.ServiceName,
			Endpoint:    cfg.OTel.Endpoint,
			Environment: cfg.OTel.Environment,
			SampleRatio: cfg.OTel.SampleRatio,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Error("failed to shut down tracer", "error", err)
			}
		}()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Saga.LogPath), 0o755); err != nil {
		return fmt.Errorf("create saga log dir: %w", err)
	}

	store, err := sqlstore.Open(ctx, cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer closeWithLog("store", store.Close)

	sagas, err := sagasqlite.Open(cfg.Saga.LogPath)
	if err != nil {
		return err
	}
	defer closeWithLog("saga log", sagas.Close)

	health := []ports.HealthChecker{store, sagas}

	// A nil cache.Cache turns idempotent replay off.
	var idempotency cache.Cache
	if cfg.Redis.Addr != "" {
		rc := cache.NewRedis(cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   "checkout",
		})
		defer closeWithLog("redis", rc.Close)
		idempotency = rc
		health = append(health, rc)
	}

	var notifier deliveryservice.Notifier = deliveryservice.LogNotifier{}
	if cfg.RabbitMQ.URL != "" {
		client, err := rabbitmq.NewClient(cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		defer closeWithLog("rabbitmq", client.Close)
		qn, err := deliveryservice.NewQueueNotifier(client, cfg.RabbitMQ.Queue)
		if err != nil {
			return err
		}
		notifier = qn
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	serverMetrics := metrics.NewServerMetrics(reg, "checkout_api")
	checkoutMetrics := metrics.NewCheckoutMetrics(reg)

	ledger := orderapp.NewLedger(store, store)
	payments := paymentservice.NewRecorder(store)

	checkout := coordinator.NewCheckoutService(coordinator.CheckoutDeps{
		Cart:     cartservice.NewSnapshot(store),
		Guard:    inventoryservice.NewGuard(store),
		Identity: store,
		Catalog:  store,
		Ledger:   ledger,
		Payments: payments,
		SagaLog:  sagas,
		Metrics:  checkoutMetrics,
	}, cfg.Checkout.Timeout)

	delivery := deliveryservice.NewConfirmation(store, ledger, payments, notifier,
		deliveryservice.WithCodeTTL(cfg.Delivery.CodeTTL),
		deliveryservice.WithMaxAttempts(cfg.Delivery.MaxAttempts),
		deliveryservice.WithMetrics(checkoutMetrics),
	)

	handler := httpx.NewHandler(httpx.HandlerDeps{
		Checkout: checkout,
		Orders:   ledger,
		Delivery: delivery,
		Sagas:    sagas,
		Cache:    idempotency,
		Health:   health,
	})
	router := httpx.NewRouter(handler, httpx.RouterConfig{
		ServiceName:    cfg.OTel.ServiceName,
		AllowedOrigins: cfg.HTTP.CORSOrigins,
		Metrics:        serverMetrics,
		MetricsHandler: metrics.Handler(reg),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("checkout api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func closeWithLog(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		slog.Error("close failed", "resource", name, "error", err)
	}
}
