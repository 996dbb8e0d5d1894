// Package app wires configuration, storage, domain services, and the HTTP
// server into a runnable application.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/vendora/commerce-core/internal/domain/coupon"
	"github.com/vendora/commerce-core/internal/domain/order"
	"github.com/vendora/commerce-core/internal/handler"
	"github.com/vendora/commerce-core/internal/repository"
	"github.com/vendora/commerce-core/pkg/health"
	"github.com/vendora/commerce-core/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Domain services.
	ledger := coupon.NewLedger(couponRepo)
	orderService := order.NewService(
		orderRepo, productRepo, couponRepo, ledger,
		productRepo, logNotifier{},
		order.Config{
			NumberPrefix: cfg.Orders.NumberPrefix,
			ReturnWindow: cfg.Orders.ReturnWindow(),
		},
	)

	// HTTP handlers.
	h := handler.NewHandler(
		handler.Config{
			ImageBaseURL: cfg.ImageBaseURL,
			APIKeyPepper: []byte(cfg.APIKeyPepper),
		},
		productRepo, couponRepo, ledger, orderService, apikeyRepo,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", http.StripPrefix("/api", h.Routes()))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				MaxAge:       86400,
			}),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("commerce-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// logNotifier emits order notifications as log lines. A real deployment
// would swap in an email or push gateway behind the same interface.
type logNotifier struct{}

func (logNotifier) OrderConfirmed(ctx context.Context, o *order.Order) error {
	zctx.From(ctx).Info("order confirmed",
		zap.String("order_id", o.ID),
		zap.String("number", o.Number),
	)
	return nil
}

func (logNotifier) OrderStatusUpdated(ctx context.Context, o *order.Order, previous order.Status) error {
	zctx.From(ctx).Info("order status updated",
		zap.String("order_id", o.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(o.Status)),
	)
	return nil
}
