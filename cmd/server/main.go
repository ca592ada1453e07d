package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/kevin07696/mpesa-checkout/internal/adapters/events"
	"github.com/kevin07696/mpesa-checkout/internal/adapters/mpesa"
	"github.com/kevin07696/mpesa-checkout/internal/adapters/postgres"
	"github.com/kevin07696/mpesa-checkout/internal/adapters/secrets"
	"github.com/kevin07696/mpesa-checkout/internal/config"
	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
	"github.com/kevin07696/mpesa-checkout/internal/handlers"
	adminHandler "github.com/kevin07696/mpesa-checkout/internal/handlers/admin"
	orderHandler "github.com/kevin07696/mpesa-checkout/internal/handlers/order"
	paymentHandler "github.com/kevin07696/mpesa-checkout/internal/handlers/payment"
	orderService "github.com/kevin07696/mpesa-checkout/internal/services/order"
	paymentService "github.com/kevin07696/mpesa-checkout/internal/services/payment"
	"github.com/kevin07696/mpesa-checkout/internal/services/reconcile"
	httpclient "github.com/kevin07696/mpesa-checkout/pkg/http"
	"github.com/kevin07696/mpesa-checkout/pkg/logging"
	"github.com/kevin07696/mpesa-checkout/pkg/middleware"
	"github.com/kevin07696/mpesa-checkout/pkg/observability"
	"github.com/kevin07696/mpesa-checkout/pkg/resilience"
	"github.com/kevin07696/mpesa-checkout/pkg/shutdown"
)

const version = "0.1.0"

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}

	logger, err := logging.New(cfg.Server.Environment, cfg.Logger.Level)
	if err != nil {
		panic(fmt.Sprintf("init logger: %v", err))
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting mpesa checkout service",
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownMgr := shutdown.NewManager(logger, 30*time.Second)

	resolveSecrets(ctx, cfg, logger)
	if err := cfg.Gateway.Validate(); err != nil {
		logger.Fatal("M-Pesa gateway is not configured", zap.Error(err))
	}

	db, err := postgres.Open(ctx, poolConfig(cfg), logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	shutdownMgr.RegisterNoErr("database", db.Close)

	if err := postgres.RunMigrations(ctx, db.Pool()); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	go db.StartPoolMonitoring(ctx, 30*time.Second)

	publisher := initPublisher(cfg, logger)
	shutdownMgr.RegisterCloser("events", publisher)

	timeouts := timeoutConfig(cfg)
	store := postgres.NewOrderRepository(db)
	gateway := initGateway(cfg, timeouts, logger)

	orders := orderService.NewService(store, publisher, timeouts, logger)
	payments := paymentService.NewService(store, gateway, &cfg.Gateway, publisher, timeouts, logger)

	sweeper := reconcile.NewSweeper(store, cfg.Reconcile.Threshold, timeouts, logger)
	scheduler, err := sweeper.Schedule(cfg.Reconcile.Schedule)
	if err != nil {
		logger.Fatal("Invalid reconcile schedule", zap.String("schedule", cfg.Reconcile.Schedule), zap.Error(err))
	}
	scheduler.Start()
	shutdownMgr.Register("reconcile-cron", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	healthChecker := observability.NewHealthChecker(db)
	if rp, ok := publisher.(*events.RabbitPublisher); ok {
		healthChecker.AddCheck("broker", func(context.Context) error {
			if rp.IsClosed() {
				return errors.New("amqp connection closed")
			}
			return nil
		})
	}
	metricsServer := observability.StartMetricsServer(cfg.Server.MetricsPort, healthChecker, logger)
	shutdownMgr.Register("metrics-server", func(ctx context.Context) error {
		return observability.ShutdownMetricsServer(ctx, metricsServer)
	})

	grpcServer := startHealthServer(ctx, cfg.Server.HealthPort, healthChecker, logger)
	shutdownMgr.RegisterNoErr("grpc-health", grpcServer.GracefulStop)

	proxies := middleware.NewProxyResolver(cfg.Server.TrustedProxies, logger)
	rateLimiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, proxies)
	shutdownMgr.RegisterNoErr("rate-limiter", rateLimiter.Shutdown)

	router := handlers.NewRouter(handlers.RouterDeps{
		Payments:      paymentHandler.NewHandler(payments, logger),
		Orders:        orderHandler.NewHandler(orders, payments, logger),
		Admin:         adminHandler.NewHandler(orders, logger),
		RateLimiter:   rateLimiter,
		Allowlist:     middleware.NewCallbackAllowlist(cfg.Server.CallbackAllowedIPs, proxies, logger),
		Logger:        logger,
		AdminPIN:      cfg.Admin.PIN,
		Development:   cfg.Server.Environment == "development",
		HandlerBudget: timeouts.HTTPHandler,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      timeouts.HTTPHandler + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()
	// Registered last so it drains first.
	shutdownMgr.Register("http-server", httpServer.Shutdown)

	errs := shutdownMgr.WaitForShutdown(ctx)
	for name, err := range errs {
		logger.Error("Component shutdown failed", zap.String("component", name), zap.Error(err))
	}
	logger.Info("Service stopped")
}

func resolveSecrets(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	sm, err := secrets.New(ctx, cfg.Secrets, logger)
	if err != nil {
		logger.Fatal("Failed to initialize secret manager",
			zap.String("backend", cfg.Secrets.Backend),
			zap.Error(err),
		)
	}
	if err := cfg.ResolveGatewaySecrets(ctx, sm); err != nil {
		logger.Fatal("Failed to resolve M-Pesa credentials", zap.Error(err))
	}
	logger.Info("Gateway credentials loaded",
		zap.String("backend", cfg.Secrets.Backend),
		zap.String("consumer_key", logging.Mask(cfg.Gateway.ConsumerKey)),
		zap.String("shortcode", cfg.Gateway.ShortCode),
	)
}

func poolConfig(cfg *config.Config) postgres.PoolConfig {
	pc := postgres.DefaultPoolConfig(cfg.Database.ConnectionString())
	pc.MaxConns = cfg.Database.MaxConns
	pc.MinConns = cfg.Database.MinConns
	return pc
}

func timeoutConfig(cfg *config.Config) *resilience.TimeoutConfig {
	tc := resilience.DefaultTimeoutConfig()
	tc.Push = cfg.Gateway.PushTimeout
	tc.GatewayCall = cfg.Gateway.RequestTimeout
	if tc.HTTPHandler <= tc.Push {
		tc.HTTPHandler = tc.Push + 10*time.Second
	}
	return tc
}

func initPublisher(cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	if cfg.Events.AMQPURL == "" {
		logger.Info("AMQP_URL not set; order events are logged only")
		return events.NewLogPublisher(logger)
	}
	pub, err := events.NewRabbitPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
	if err != nil {
		// Events are best effort; payments keep working without the broker.
		logger.Error("Failed to connect to RabbitMQ; falling back to log publisher", zap.Error(err))
		return events.NewLogPublisher(logger)
	}
	logger.Info("Publishing order events", zap.String("exchange", cfg.Events.Exchange))
	return pub
}

func initGateway(cfg *config.Config, timeouts *resilience.TimeoutConfig, logger *zap.Logger) *mpesa.Client {
	httpClient := httpclient.NewHTTPClient(httpclient.GatewayClientConfig(), timeouts.GatewayCall)
	portsLogger := logging.NewZapLogger(logger)

	tokens := mpesa.NewTokenFetcher(
		cfg.Gateway.BaseURL,
		mpesa.Credentials{
			ConsumerKey:    cfg.Gateway.ConsumerKey,
			ConsumerSecret: cfg.Gateway.ConsumerSecret,
		},
		mpesa.TokenFetcherConfig{
			MaxAttempts: cfg.Gateway.TokenAttempts,
			Backoff: &resilience.ExponentialBackoff{
				BaseDelay:  cfg.Gateway.TokenBaseDelay,
				MaxDelay:   4 * cfg.Gateway.TokenBaseDelay,
				Multiplier: 2,
			},
		},
		httpClient,
		portsLogger,
	)

	return mpesa.NewClient(mpesa.Config{
		BaseURL:         cfg.Gateway.BaseURL,
		ShortCode:       cfg.Gateway.ShortCode,
		Passkey:         cfg.Gateway.Passkey,
		CallbackURL:     cfg.Gateway.CallbackURL,
		TransactionType: cfg.Gateway.TransactionType,
	}, tokens, httpClient, portsLogger, nil)
}

func startHealthServer(ctx context.Context, port int, hc *observability.HealthChecker, logger *zap.Logger) *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor()))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		logger.Fatal("Failed to listen for gRPC health", zap.Int("port", port), zap.Error(err))
	}

	go hc.WatchGRPC(ctx, hs, 15*time.Second)
	go func() {
		logger.Info("gRPC health server listening", zap.String("address", lis.Addr().String()))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC health server failed", zap.Error(err))
		}
	}()
	return srv
}
