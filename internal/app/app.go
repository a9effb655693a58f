package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/stripe/stripe-go/v82"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/checkoutapi"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/internal/payment"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
	"github.com/xenking/kart-checkout/internal/storage/static"
	"github.com/xenking/kart-checkout/internal/stripecheckout"
	"github.com/xenking/kart-checkout/internal/view"
	"github.com/xenking/kart-checkout/pkg/health"
	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

const serviceName = "kart-web"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("session_url", cfg.Checkout.SessionURL),
		zap.Bool("payments_enabled", cfg.Stripe.PublishableKey != ""),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("heap", time.Second, health.HeapInUseCheck(1<<30))

	products, closeCatalog, err := openCatalog(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer closeCatalog()

	carts := cart.NewRegistry(cfg.Cart.TTL)
	carts.StartCleanup(ctx, time.Minute)

	stripeCfg := stripecheckout.Config{
		SecretKey:  cfg.Stripe.SecretKey,
		SuccessURL: cfg.Stripe.SuccessURL,
		CancelURL:  cfg.Stripe.CancelURL,
	}
	if cfg.Stripe.BackendURL != "" {
		stripeCfg.Backend = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL: stripe.String(cfg.Stripe.BackendURL),
		})
	}
	sessions := stripecheckout.New(stripeCfg)

	sessionClient := checkoutapi.NewClient(cfg.Checkout.SessionURL, &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	})
	initiator, err := checkout.NewInitiator(
		checkout.InitiatorConfig{Currency: cfg.Checkout.Currency},
		sessionClient,
		m.TracerProvider(),
		m.MeterProvider(),
	)
	if err != nil {
		return errors.Wrap(err, "create checkout initiator")
	}

	payments := payment.NewLoader(payment.LoaderConfig{
		PublishableKey: cfg.Stripe.PublishableKey,
		CheckoutURL:    cfg.Stripe.CheckoutURL,
	})

	views, err := view.NewRenderer()
	if err != nil {
		return errors.Wrap(err, "parse templates")
	}

	h := handler.NewHandler(
		handler.HandlerConfig{SecureCookie: cfg.Cart.SecureCookie},
		products,
		carts,
		initiator,
		payments,
		sessions,
		views,
	)
	limits := h.NewRouteLimits(ctx, cfg.RateLimit.Max, cfg.RateLimit.Window)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	r := chi.NewRouter()
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Mount("/", h.Routes(limits))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.Recovery(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument(serviceName, m),
			httpmiddleware.LogRequests(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		// Wait for context cancellation or a server failure, drain, then stop.
		<-gctx.Done()
		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		defer healthSvc.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	return g.Wait()
}

// openCatalog returns the PostgreSQL catalog when a database is configured,
// and the static catalog file otherwise. The returned func releases the
// catalog's resources.
func openCatalog(ctx context.Context, lg *zap.Logger, cfg *Config, hs *health.Health) (product.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		catalog, err := static.Load(cfg.CatalogFile)
		if err != nil {
			return nil, nil, errors.Wrap(err, "load catalog file")
		}
		lg.Info("Using static catalog", zap.String("file", cfg.CatalogFile))
		return catalog, func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "run migrations")
	}
	hs.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	lg.Info("Using PostgreSQL catalog")
	return postgres.NewProductRepository(pool), pool.Close, nil
}
