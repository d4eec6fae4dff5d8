package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/bazarly/auth-service/internal/adapters/cache"
	eventadapter "github.com/bazarly/auth-service/internal/adapters/events"
	grpcadapter "github.com/bazarly/auth-service/internal/adapters/grpc"
	httpadapter "github.com/bazarly/auth-service/internal/adapters/http"
	"github.com/bazarly/auth-service/internal/adapters/postgres"
	"github.com/bazarly/auth-service/internal/adapters/security"
	"github.com/bazarly/auth-service/internal/adapters/sms"
	"github.com/bazarly/auth-service/internal/application"
	"github.com/bazarly/auth-service/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	outbox     *eventadapter.OutboxWorker
	janitorFn  func(ctx context.Context)
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping auth service",
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"store_backend", cfg.StoreBackend,
		"sms_backend", cfg.SMSBackend,
	)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	var (
		sessionStore ports.OTPSessionStore
		rateStore    ports.RateLimitStore
		ticketStore  ports.RegistrationTicketStore
		janitorFn    func(ctx context.Context)
		readyFn      func(ctx context.Context) error
		closeStores  func()
	)
	switch cfg.StoreBackend {
	case "redis":
		redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		sessionStore = cacheadapter.NewRedisOTPSessionStore(redisClient)
		rateStore = cacheadapter.NewRedisRateLimitStore(redisClient)
		ticketStore = cacheadapter.NewRedisRegistrationTicketStore(redisClient)
		readyFn = func(ctx context.Context) error {
			if err := sqlDB.PingContext(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			return redisClient.Ping(ctx).Err()
		}
		closeStores = func() { _ = redisClient.Close() }
	case "memory":
		memSessions := cacheadapter.NewMemoryOTPSessionStore()
		sessionStore = memSessions
		rateStore = cacheadapter.NewMemoryRateLimitStore()
		ticketStore = cacheadapter.NewMemoryRegistrationTicketStore()
		janitorFn = func(ctx context.Context) {
			memSessions.RunJanitor(ctx, cfg.JanitorInterval)
		}
		readyFn = func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		}
		closeStores = func() {}
	default:
		_ = sqlDB.Close()
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	repos := postgres.NewRepositories(pool)
	tokenSigner, err := security.NewJWTSigner(cfg.JWTKeyID, cfg.JWTPrivateKeyPEM, cfg.JWTPublicKeyPEM)
	if err != nil {
		if !cfg.AllowEphemeralJWT {
			_ = sqlDB.Close()
			closeStores()
			return nil, fmt.Errorf("init jwt signer: %w", err)
		}
		logger.Warn("using ephemeral JWT keys for local/dev runtime")
		tokenSigner, err = security.NewEphemeralJWTSigner(cfg.JWTKeyID)
		if err != nil {
			_ = sqlDB.Close()
			closeStores()
			return nil, fmt.Errorf("init ephemeral jwt signer: %w", err)
		}
	}

	var sender ports.SMSSender
	switch cfg.SMSBackend {
	case "http":
		sender = sms.NewHTTPProvider(cfg.SMSEndpoint, cfg.SMSAPIKey, cfg.SMSFrom)
	default:
		sender = sms.NewLogProvider()
	}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			AppName:               cfg.ServiceID,
			CodeLength:            cfg.CodeLength,
			CodeTTL:               cfg.CodeTTL,
			MaxAttempts:           cfg.MaxAttempts,
			ResendCooldown:        cfg.ResendCooldown,
			SendWindow:            cfg.SendWindow,
			SendLimit:             cfg.SendLimit,
			SMSTimeout:            cfg.SMSTimeout,
			TokenTTL:              cfg.TokenTTL,
			RefreshGrace:          cfg.RefreshGrace,
			RegistrationTicketTTL: cfg.RegistrationTicketTTL,
		},
		Directory: repos.Identities,
		Sessions:  sessionStore,
		RateLimit: rateStore,
		Tickets:   ticketStore,
		SMS:       sender,
		Hasher:    security.NewBcryptCodeHasher(),
		Signer:    tokenSigner,
	})

	handler := httpadapter.NewHandler(svc, readyFn)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewAuthInternalServer(svc))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		_ = sqlDB.Close()
		closeStores()
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	outbox := eventadapter.NewOutboxWorker(
		logger,
		repos.Outbox,
		eventadapter.NewLoggingPublisher(logger),
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxClaimTTL,
		cfg.OutboxMaxRetries,
	)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		outbox:     outbox,
		janitorFn:  janitorFn,
		cleanupFn: func(ctx context.Context) {
			closeStores()
			_ = sqlDB.Close()
		},
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if r.janitorFn != nil {
		go r.janitorFn(ctx)
	}

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("outbox worker started")
	err := r.outbox.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return nil
}
