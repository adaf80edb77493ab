package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/client"
	"github.com/xenking/kart-checkout/internal/client/couponapi"
	"github.com/xenking/kart-checkout/internal/client/orderapi"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/internal/session"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
	"github.com/xenking/kart-checkout/internal/summary"
	"github.com/xenking/kart-checkout/pkg/health"
	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

const serviceName = "checkout-api"

// Telemetry provides the OpenTelemetry providers of the server.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// collaborators are the coupon source and order sink selected by Backend.
type collaborators struct {
	provider  coupon.Provider
	submitter order.Submitter
	ready     health.CheckFunc
	close     func()
}

func newCollaborators(ctx context.Context, cfg *Config) (*collaborators, error) {
	switch cfg.Backend {
	case BackendHTTP:
		return &collaborators{
			provider:  couponapi.New(cfg.CouponService.URL, client.New(cfg.CouponService.Timeout)),
			submitter: orderapi.New(cfg.OrderService.URL, client.New(cfg.OrderService.Timeout)),
			close:     func() {},
		}, nil
	case BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		return &collaborators{
			provider:  postgres.NewCouponRepository(pool),
			submitter: postgres.NewOrderRepository(pool),
			ready:     pool.Ping,
			close:     pool.Close,
		}, nil
	default:
		return nil, errors.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("backend", cfg.Backend),
	)

	collab, err := newCollaborators(ctx, cfg)
	if err != nil {
		return err
	}
	defer collab.close()

	// Background workers outlive request handling so that in-flight requests
	// drain before stores are closed.
	bgCtx, stopBackground := context.WithCancel(zctx.Base(context.WithoutCancel(ctx), lg))
	defer stopBackground()

	sessions := session.New(bgCtx, collab.provider, collab.submitter,
		session.WithTTL(cfg.Session.TTL),
		session.WithSweepInterval(cfg.Session.SweepInterval),
		session.WithLimit(cfg.Session.Limit),
		session.WithStoreOptions(
			summary.WithShippingFee(money.Money(cfg.ShippingFee)),
			summary.WithMeterProvider(m.MeterProvider()),
			summary.WithTracerProvider(m.TracerProvider()),
		),
	)

	healthSvc := health.New(lg)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	if cfg.Session.Limit > 0 {
		healthSvc.AddReadinessCheck("sessions", time.Second,
			health.GaugeCheck("open sessions", sessions.Len, cfg.Session.Limit-1),
		)
	}
	if collab.ready != nil {
		healthSvc.AddReadinessCheck(cfg.Backend, 5*time.Second, collab.ready)
	}

	limitCfg := httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	}
	trusted, err := cfg.RateLimit.TrustedPrefixes()
	if err != nil {
		return errors.Wrap(err, "rate limit")
	}
	if len(trusted) > 0 {
		limitCfg.KeyFunc = httpmiddleware.ForwardedClientIP(trusted)
	}
	limiter := httpmiddleware.NewRateLimiter(limitCfg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.New(sessions).Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:          cfg.CORS.Origins,
				Headers:          []string{"Content-Type", httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           24 * time.Hour,
			}),
			limiter.Middleware(),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument(serviceName, routeFinder, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(routeFinder),
		),
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}

	bg, bgCtx := errgroup.WithContext(bgCtx)
	bg.Go(func() error { return sessions.Run(bgCtx) })
	bg.Go(func() error { return healthSvc.Run(bgCtx, 10*time.Second) })
	bg.Go(func() error { return limiter.Run(bgCtx) })

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.Stringer("addr", ln.Addr()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	healthSvc.SetReady(true)

	serveErr := g.Wait()
	stopBackground()
	if err := bg.Wait(); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}
