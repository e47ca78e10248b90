package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/hanko-field/storefront/internal/handlers"
	"github.com/hanko-field/storefront/internal/platform/cache"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/platform/jobs"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/services"
)

const meterName = "github.com/hanko-field/storefront"

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Cart      services.CartService
	Finalizer services.OrderFinalizer
	Orders    services.OrderService
	Ledger    services.InventoryLedger
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Idempotency  idempotency.Store
	HealthChecks []handlers.DependencyCheck

	redis   *redis.Client
	closers []func(context.Context) error
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	logger   *zap.Logger
	redis    *redis.Client
	notifier services.AdminNotifier
	clock    func() time.Time
	dispatch func(func())
}

// WithLogger sets the fallback logger used outside request scope.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRedisClient injects a Redis client instead of dialing Config.Redis.Addr.
func WithRedisClient(client *redis.Client) Option {
	return func(o *containerOptions) {
		o.redis = client
	}
}

// WithAdminNotifier overrides the Pub/Sub notifier.
func WithAdminNotifier(notifier services.AdminNotifier) Option {
	return func(o *containerOptions) {
		o.notifier = notifier
	}
}

// WithClock overrides the time source shared by all services.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithDispatch overrides how post-commit notifications are scheduled.
func WithDispatch(dispatch func(func())) Option {
	return func(o *containerOptions) {
		o.dispatch = dispatch
	}
}

// NewContainer constructs the runtime dependencies. Production wiring passes the registry returned
// by OpenRegistry, while tests can supply the in-memory store.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	options := containerOptions{
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	c := &Container{
		Config:       cfg,
		Repositories: reg,
		redis:        options.redis,
	}
	if c.redis == nil && cfg.Redis.Addr != "" {
		client, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// Redis only backs caches, so the API starts without it.
			options.logger.Warn("redis unavailable; caches disabled", zap.Error(err))
		} else {
			c.redis = client
			c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		}
	}

	notifier, err := c.buildNotifier(ctx, cfg, options)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}

	svc, err := c.buildServices(cfg, reg, notifier, options)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.Services = svc

	c.HealthChecks = []handlers.DependencyCheck{{Name: "store", Check: reg.Ping}}
	if c.redis != nil {
		rdb := c.redis
		c.HealthChecks = append(c.HealthChecks, handlers.DependencyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	return c, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Container) buildNotifier(ctx context.Context, cfg config.Config, options containerOptions) (services.AdminNotifier, error) {
	if options.notifier != nil {
		return options.notifier, nil
	}
	if cfg.PubSub.AdminTopic == "" {
		return services.LogNotifier{Logger: observability.ServiceLogger(options.logger)}, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("build pubsub client: %w", err)
	}
	topic := client.Topic(cfg.PubSub.AdminTopic)
	c.closers = append(c.closers, func(context.Context) error {
		topic.Stop()
		return client.Close()
	})
	notifier, err := jobs.NewAdminNotifier(topic, language.Make(cfg.Pricing.Locale))
	if err != nil {
		return nil, fmt.Errorf("build admin notifier: %w", err)
	}
	return notifier, nil
}

func (c *Container) buildServices(cfg config.Config, reg repositories.Registry, notifier services.AdminNotifier, options containerOptions) (Services, error) {
	logger := observability.ServiceLogger(options.logger)
	meter := otel.GetMeterProvider().Meter(meterName)

	var (
		catalog     services.ProductReader = reg.Products()
		invalidator services.ProductCacheInvalidator
		hints       services.CartHintStore
	)
	if c.redis != nil {
		products := cache.NewProductCache(reg.Products(), c.redis, cfg.Redis.ProductCacheTTL,
			cache.WithErrorHandler(func(ctx context.Context, err error) {
				logger(ctx, "product.cache.degraded", map[string]any{"error": err.Error()})
			}))
		catalog = products
		invalidator = products
		hints = cache.NewCartHintStore(c.redis, cfg.Redis.CartHintTTL)
		c.Idempotency = idempotency.NewRedisStore(c.redis)
	} else {
		c.Idempotency = idempotency.NewMemoryStore()
	}

	pricing, err := services.NewPricingEngine(services.PricingConfig{
		FreeDeliveryThreshold: cfg.Pricing.FreeDeliveryThreshold,
		FlatDeliveryFee:       cfg.Pricing.DeliveryFee,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}

	ledger, err := services.NewInventoryLedger(services.InventoryLedgerDeps{
		Products:   reg.Products(),
		UnitOfWork: reg,
		Cache:      invalidator,
		Clock:      options.clock,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory ledger: %w", err)
	}

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:           reg.Carts(),
		Items:           reg.CartItems(),
		Products:        reg.Products(),
		Catalog:         catalog,
		Pricing:         pricing,
		Hints:           hints,
		UnitOfWork:      reg,
		AcquireAttempts: cfg.Cart.AcquireAttempts,
		AcquireBackoff:  cfg.Cart.AcquireBackoff,
		Clock:           options.clock,
		Logger:          logger,
		Meter:           meter,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}

	finalizer, err := services.NewOrderFinalizer(services.OrderFinalizerDeps{
		Carts:         reg.Carts(),
		Items:         reg.CartItems(),
		Orders:        reg.Orders(),
		Counters:      reg.Counters(),
		Ledger:        ledger,
		Pricing:       pricing,
		Notifier:      notifier,
		UnitOfWork:    reg,
		Currency:      cfg.Pricing.Currency,
		NotifyTimeout: cfg.PubSub.NotifyTimeout,
		Sanitize:      newPlainTextSanitizer(),
		Dispatch:      options.dispatch,
		Clock:         options.clock,
		Logger:        logger,
		Meter:         meter,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order finalizer: %w", err)
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Ledger:     ledger,
		UnitOfWork: reg,
		Clock:      options.clock,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	return Services{
		Cart:      cartSvc,
		Finalizer: finalizer,
		Orders:    orderSvc,
		Ledger:    ledger,
	}, nil
}
