package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/di"
	"github.com/hanko-field/storefront/internal/handlers"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/platform/metrics"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/platform/secrets"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	var loadOpts []config.Option
	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	if fetcher != nil {
		defer func() {
			if err := fetcher.Close(); err != nil {
				logger.Warn("secret fetcher close error", zap.Error(err))
			}
		}()
		loadOpts = append(loadOpts, config.WithSecretResolver(fetcher))
	}

	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	registry, err := di.OpenRegistry(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open repositories", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.WithLogger(logger.Named("services")))
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	authenticator, err := di.NewAuthenticator(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.String("mode", cfg.Auth.Mode), zap.Error(err))
	}

	idempotent := idempotency.Middleware(container.Idempotency)
	cartHandlers := handlers.NewCartHandlers(authenticator, container.Services.Cart, container.Services.Finalizer,
		handlers.WithIdempotency(idempotent))
	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo(startedAt)),
		handlers.WithHealthChecks(container.HealthChecks...),
	)

	httpMetrics := metrics.NewHTTPMetrics()
	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		httpMetrics.Middleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(httpMetrics.Handler()),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithAdditionalRoutes(cartHandlers.RegisterStandaloneRoutes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("store", cfg.Store.Driver))
	go func() {
		serverLogger.Info("storefront api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfo(started time.Time) handlers.BuildInfo {
	lookup := func(key string) string {
		value, _ := config.Lookup(key)
		return value
	}
	environment := lookup("API_ENVIRONMENT")
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     lookup("API_BUILD_VERSION"),
		CommitSHA:   lookup("API_BUILD_COMMIT_SHA"),
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

// newSecretFetcher returns nil when no secrets project is configured; secret:// references then fail Load.
func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	projectID, err := config.Lookup("API_SECRETS_PROJECT_ID")
	if err != nil {
		return nil, err
	}
	if projectID == "" {
		return nil, nil
	}
	return secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(projectID),
	)
}
