package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/arklim/authflow/internal/core/port"
	"github.com/arklim/authflow/internal/infra/config"
	"github.com/arklim/authflow/internal/infra/database"
	kafkainfra "github.com/arklim/authflow/internal/infra/kafka"
	"github.com/arklim/authflow/internal/infra/logger"
	"github.com/arklim/authflow/internal/infra/mail"
	redisinfra "github.com/arklim/authflow/internal/infra/redis"
	"github.com/arklim/authflow/internal/infra/security"
	"github.com/arklim/authflow/internal/infra/telemetry"
	"github.com/arklim/authflow/internal/repository/memory"
	postgresrepo "github.com/arklim/authflow/internal/repository/postgres"
	redisrepo "github.com/arklim/authflow/internal/repository/redis"
	transportgrpc "github.com/arklim/authflow/internal/transport/grpc"
	grpcinterceptors "github.com/arklim/authflow/internal/transport/grpc/interceptors"
	"github.com/arklim/authflow/internal/transport/http/middleware"
	"github.com/arklim/authflow/internal/transport/http/routes"
	"github.com/arklim/authflow/internal/usecase"
)

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	grpcServer *transportgrpc.Server
	grpcAddr   string
	janitor    *memory.EphemeralStore
	closers    []func() error
}

// New builds every component from cfg. Resources opened before a failure
// are released before returning the error.
func New(ctx context.Context, cfg *config.AppConfig) (_ *Application, err error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{
		cfg:      cfg,
		logger:   log,
		grpcAddr: fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.onClose(func() error { return tracer.Shutdown(context.Background()) })

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	a.onClose(func() error { pool.Close(); return nil })

	if cfg.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, pool, log); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	store, rateLimitStore, cache, err := a.buildStores(ctx)
	if err != nil {
		return nil, err
	}

	mailer, events, err := a.buildMessaging()
	if err != nil {
		return nil, err
	}

	codec, err := security.NewTokenCodec(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("init token codec: %w", err)
	}
	hasher, err := security.NewArgon2Hasher(security.Argon2ParamsFromConfig(cfg.Argon2))
	if err != nil {
		return nil, fmt.Errorf("init argon2: %w", err)
	}
	validator := security.DefaultPasswordValidator(cfg.Auth.PasswordMinStrength)

	authMetrics, err := telemetry.NewAuthMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("init auth metrics: %w", err)
	}

	users := postgresrepo.NewRepositories(pool).Users

	sessions := usecase.NewSessionService(users, codec, cfg.Auth).
		WithLogger(log).
		WithObserver(authMetrics)
	registration := usecase.NewRegistrationService(users, store, mailer, codec, hasher, validator, sessions, cfg.Auth).
		WithLogger(log).
		WithObserver(authMetrics).
		WithEvents(events)
	reset := usecase.NewPasswordResetService(users, store, mailer, codec, hasher, validator, cfg.Auth).
		WithLogger(log).
		WithObserver(authMetrics).
		WithEvents(events)
	auth := usecase.NewAuthService(users, hasher, sessions, registration, reset).
		WithLogger(log).
		WithObserver(authMetrics)
	authorizer := usecase.NewAuthorizer(users, codec).
		WithLogger(log).
		WithObserver(authMetrics)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}
	grpcMetrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init grpc metrics: %w", err)
	}

	var rateLimiter *middleware.RateLimiter
	if rateLimitStore != nil {
		rateLimiter = middleware.NewRateLimiter(rateLimitStore, log)
	}

	a.grpcServer, err = transportgrpc.NewServer(transportgrpc.ServerDependencies{
		Authorizer: authorizer,
		Metrics:    grpcMetrics,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("init grpc server: %w", err)
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     httpMetrics,
		Database:    pool,
		Cache:       cache,
		Services: routes.ServiceSet{
			Auth:          auth,
			Registration:  registration,
			PasswordReset: reset,
			Sessions:      sessions,
			Authorizer:    authorizer,
		},
	})

	return a, nil
}

// buildStores selects the ephemeral store backend. The memory backend runs
// without Redis, so rate limiting is disabled in that mode.
func (a *Application) buildStores(ctx context.Context) (port.EphemeralStore, port.RateLimitStore, routes.HealthChecker, error) {
	if a.cfg.Auth.Store == "memory" {
		a.logger.Warn("using in-memory ephemeral store; rate limiting disabled")
		store := memory.NewEphemeralStore()
		a.janitor = store
		return store, nil, nil, nil
	}

	client, err := redisinfra.Connect(ctx, a.cfg.Redis, a.logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init redis: %w", err)
	}
	a.onClose(client.Close)

	store := redisrepo.NewEphemeralRepository(client, a.cfg.Redis.EphemeralPrefix)
	limits := redisrepo.NewRateLimitRepository(client, a.cfg.Redis.RateLimitPrefix)
	return store, limits, redisinfra.Pinger{Client: client}, nil
}

// buildMessaging selects the mail dispatcher and the domain event publisher.
func (a *Application) buildMessaging() (port.MailDispatcher, port.EventPublisher, error) {
	var producer *kafkainfra.Producer
	if a.cfg.Kafka.Enabled {
		p, err := kafkainfra.NewProducer(a.cfg.Kafka, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init kafka producer: %w", err)
		}
		a.onClose(p.Close)
		producer = p
	}

	var events port.EventPublisher = kafkainfra.NewStubPublisher(a.logger)
	if producer != nil {
		events = kafkainfra.NewEventPublisher(producer, a.cfg.App, a.logger)
	}

	var mailer port.MailDispatcher
	switch a.cfg.Mail.Driver {
	case "smtp":
		d, err := mail.NewSMTPDispatcher(a.cfg.Mail, a.logger)
		if err != nil {
			return nil, nil, err
		}
		mailer = d
	case "kafka":
		if producer == nil {
			return nil, nil, errors.New("mail.driver=kafka requires kafka.enabled")
		}
		mailer = kafkainfra.NewMailPublisher(producer, a.logger)
	default:
		mailer = mail.NewLogDispatcher(a.logger)
	}
	a.logger.Info("mail dispatcher selected", zap.String("driver", a.cfg.Mail.Driver))

	return mailer, events, nil
}

func (a *Application) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse order of acquisition.
func (a *Application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close resource", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.close()

	if a.janitor != nil {
		a.janitor.StartJanitor(ctx)
	}

	grpcErrCh := make(chan error, 1)
	lis, err := net.Listen("tcp", a.grpcAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	a.grpcServer.Health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))
	go func() {
		if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			grpcErrCh <- fmt.Errorf("run grpc server: %w", err)
		}
	}()
	defer a.grpcServer.GracefulStop()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting authflow API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.grpcServer.Health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	case err := <-grpcErrCh:
		return err
	}
}
