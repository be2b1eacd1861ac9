package app

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/burgershop/order-service/internal/domain/auth"
	"github.com/burgershop/order-service/internal/domain/coupon"
	"github.com/burgershop/order-service/internal/domain/order"
	"github.com/burgershop/order-service/internal/handler"
	"github.com/burgershop/order-service/internal/notify"
	"github.com/burgershop/order-service/internal/seed"
	"github.com/burgershop/order-service/internal/storage/memory"
	"github.com/burgershop/order-service/internal/storage/postgres"
	"github.com/burgershop/order-service/pkg/health"
	"github.com/burgershop/order-service/pkg/httpmiddleware"
)

// stores is the storage backend selected by Config.Storage.
type stores struct {
	orders  order.Repository
	coupons coupon.Store
	apikeys auth.Repository
	ping    health.CheckFunc
	close   func()
}

func openStores(ctx context.Context, lg *zap.Logger, cfg *Config) (*stores, error) {
	switch cfg.Storage {
	case StorageMemory:
		lg.Warn("Using in-memory storage, data is lost on restart")
		keys := memory.NewAPIKeyRepository()
		for _, k := range seed.Keys(cfg.Memory.AdminKey, cfg.Memory.CustomerKey, cfg.Memory.CustomerID) {
			keys.Add(k.Info([]byte(cfg.APIKeyPepper)))
		}
		return &stores{
			orders:  memory.NewOrderRepository(),
			coupons: memory.NewCouponStore(seed.Coupons(cfg.Memory.CustomerID, time.Now())...),
			apikeys: keys,
			close:   func() {},
		}, nil
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		return &stores{
			orders:  postgres.NewOrderRepository(pool),
			coupons: postgres.NewCouponStore(pool),
			apikeys: postgres.NewAPIKeyRepository(pool),
			ping:    health.PingCheck(pool),
			close:   pool.Close,
		}, nil
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	st, err := openStores(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	freeItem, err := cfg.FreeItemValue()
	if err != nil {
		return err
	}

	healthSvc := health.New()
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	if st.ping != nil {
		healthSvc.Add(health.Readiness, "postgres", 5*time.Second, st.ping)
	}

	// Notifications: local registry, optionally relayed through Redis.
	hub, err := notify.NewHub(notify.HubOptions{
		Logger:        lg.Named("notify"),
		QueueSize:     cfg.Notify.QueueSize,
		MeterProvider: m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create hub")
	}
	var (
		publisher order.Publisher = hub
		bridge    *notify.RedisBridge
	)
	if cfg.Notify.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Notify.RedisURL)
		if err != nil {
			return errors.Wrap(err, "parse redis url")
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		bridge, err = notify.NewRedisBridge(rdb, hub, notify.BridgeOptions{
			Logger:        lg.Named("relay"),
			MeterProvider: m.MeterProvider(),
		})
		if err != nil {
			return errors.Wrap(err, "create relay")
		}
		publisher = bridge
		healthSvc.Add(health.Readiness, "redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	// Domain services.
	couponValidator := coupon.NewValidator(st.coupons, coupon.NewCalculator(freeItem))
	orderService, err := order.NewService(st.orders, st.coupons, couponValidator, publisher,
		order.WithGroup(cfg.Notify.Group),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	// HTTP.
	authn := handler.NewAuthenticator(st.apikeys, []byte(cfg.APIKeyPepper))
	rateLimit, limiter := httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
		Max:     cfg.RateLimit.Max,
		Window:  cfg.RateLimit.Window,
		KeyFunc: authn.RateLimitKey,
	})
	events := notify.NewTransport(hub, notify.TransportOptions{
		AdminGroup:  cfg.Notify.Group,
		CheckOrigin: originChecker(cfg.CORS.Origins),
	})
	router := handler.NewRouter(handler.Routes{
		Handler:       handler.NewHandler(orderService, couponValidator),
		Authenticator: authn,
		Events:        events,
		Live:          healthSvc.Live,
		Ready:         healthSvc.Ready,
		RateLimit:     rateLimit,
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(router,
				httpmiddleware.RequestID(),
				httpmiddleware.InjectLogger(lg),
				httpmiddleware.Recovery(),
				httpmiddleware.LogRequests(),
				httpmiddleware.CORS(httpmiddleware.CORSConfig{
					Origins:          cfg.CORS.Origins,
					AllowCredentials: cfg.CORS.AllowCredentials,
				}),
			),
			"order-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		healthSvc.Run(gctx, 10*time.Second)
		return nil
	})
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	if bridge != nil {
		g.Go(func() error {
			return bridge.Run(gctx, cfg.Notify.Group)
		})
	}

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		// Hijacked WebSocket connections are not tracked by the server.
		hub.Close()
		return nil
	})
	g.Go(func() error {
		healthSvc.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

// originChecker allows WebSocket upgrades from the configured CORS origins.
func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}
