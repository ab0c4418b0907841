// Package di assembles the storefront runtime from configuration.
package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/omnipizza/storefront/internal/handlers"
	"github.com/omnipizza/storefront/internal/menu"
	"github.com/omnipizza/storefront/internal/platform/config"
	"github.com/omnipizza/storefront/internal/platform/events"
	pfirestore "github.com/omnipizza/storefront/internal/platform/firestore"
	"github.com/omnipizza/storefront/internal/platform/idempotency"
	"github.com/omnipizza/storefront/internal/platform/observability"
	"github.com/omnipizza/storefront/internal/platform/pizzaapi"
	"github.com/omnipizza/storefront/internal/platform/secrets"
	"github.com/omnipizza/storefront/internal/pricing"
	"github.com/omnipizza/storefront/internal/repositories"
	firestoreRepo "github.com/omnipizza/storefront/internal/repositories/firestore"
	"github.com/omnipizza/storefront/internal/repositories/memory"
	"github.com/omnipizza/storefront/internal/services"
)

const (
	meterName             = "github.com/omnipizza/storefront/internal/services"
	secretHealthReference = "secret://storefront-healthz"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Markets        services.MarketService
	Catalog        services.CatalogService
	Carts          services.CartService
	Customizations services.CustomizationStore
	Checkout       services.CheckoutService
	Health         services.HealthService
}

// Deps carries collaborators created before the container, usually by main.
type Deps struct {
	Logger  *zap.Logger
	Secrets *secrets.Fetcher
	Build   services.BuildInfo
	Clock   func() time.Time
}

// Container wires repositories, services and background infrastructure for runtime use.
type Container struct {
	Config   config.Config
	Services Services
	Options  *menu.Catalog
	Router   http.Handler

	logger  *zap.Logger
	closers []func() error

	runOnce sync.Once
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewContainer constructs the runtime dependencies. An empty Firestore project keeps carts and
// idempotency records in memory; an empty Pub/Sub project logs order events instead of
// publishing them; an empty pizza API base URL serves the built-in demo catalog.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	c := &Container{Config: cfg, logger: logger}

	options, err := loadOptions(cfg.Menu)
	if err != nil {
		return nil, err
	}
	c.Options = options

	markets, err := services.NewMarketService(cfg.Markets.Supported, cfg.Markets.Default)
	if err != nil {
		return nil, fmt.Errorf("build market service: %w", err)
	}

	var checks []repositories.DependencyCheck

	var (
		cartRepo  repositories.CartRepository
		idemStore idempotency.Store
	)
	if strings.TrimSpace(cfg.Firestore.ProjectID) != "" {
		provider := pfirestore.NewProvider(cfg.Firestore)
		c.closers = append(c.closers, provider.Close)
		repo, err := firestoreRepo.NewCartRepository(provider, cfg.Firestore.CartsCollection, clock)
		if err != nil {
			c.closeAll()
			return nil, fmt.Errorf("build cart repository: %w", err)
		}
		cartRepo = repo
		idemStore = idempotency.NewFirestoreStore(provider, "")
		collection := cfg.Firestore.CartsCollection
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check:   func(ctx context.Context) error { return provider.Ping(ctx, collection) },
		})
	} else {
		logger.Warn("firestore project not configured; carts are kept in memory")
		cartRepo = memory.NewCartRepository(clock)
		idemStore = idempotency.NewMemoryStore()
	}

	publisher, err := c.buildPublisher(ctx, cfg.PubSub, &checks)
	if err != nil {
		c.closeAll()
		return nil, err
	}

	languages := make(map[string]string, len(cfg.Markets.Supported))
	for _, market := range cfg.Markets.Supported {
		languages[market.Country] = market.Language
	}
	client := pizzaapi.NewClient(cfg.PizzaAPI.BaseURL, cfg.PizzaAPI.Timeout,
		pizzaapi.WithToken(cfg.PizzaAPI.Token),
		pizzaapi.WithIdempotencyHeader(cfg.PizzaAPI.IdempotencyHeader),
		pizzaapi.WithLanguages(languages),
	)
	if client.UsesFixtures() {
		logger.Warn("pizza api base url not configured; serving the demo catalog")
	} else {
		defaultCountry := markets.Default().Country
		checks = append(checks, repositories.DependencyCheck{
			Name:     "pizzaApi",
			Timeout:  3 * time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				_, err := client.ListPizzas(ctx, defaultCountry)
				return err
			},
		})
	}

	if deps.Secrets != nil {
		fetcher := deps.Secrets
		checks = append(checks, repositories.DependencyCheck{
			Name:     "secretManager",
			Timeout:  time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil || errors.Is(err, secrets.ErrNotFound) {
					return nil
				}
				return err
			},
		})
	}

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Source:   client,
		Markets:  markets,
		CacheTTL: cfg.Catalog.CacheTTL,
		Clock:    clock,
		Logger:   observability.ServiceLogger(logger.Named("catalog")),
	})
	if err != nil {
		c.closeAll()
		return nil, fmt.Errorf("build catalog service: %w", err)
	}

	carts, err := services.NewCartService(services.CartServiceDeps{
		Repository:  cartRepo,
		Catalog:     catalog,
		Markets:     markets,
		Engine:      pricing.NewEngine(options),
		Clock:       clock,
		Logger:      observability.ServiceLogger(logger.Named("cart")),
		IDGenerator: func() string { return ulid.Make().String() },
		Meter:       otel.GetMeterProvider().Meter(meterName),
	})
	if err != nil {
		c.closeAll()
		return nil, fmt.Errorf("build cart service: %w", err)
	}

	customizations, err := services.NewCustomizationService(services.CustomizationServiceDeps{
		Catalog:     catalog,
		Carts:       carts,
		Markets:     markets,
		Options:     options,
		SessionTTL:  cfg.Menu.SessionTTL,
		Clock:       clock,
		IDGenerator: func() string { return ulid.Make().String() },
		Logger:      observability.ServiceLogger(logger.Named("customization")),
	})
	if err != nil {
		c.closeAll()
		return nil, fmt.Errorf("build customization service: %w", err)
	}

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:     carts,
		Markets:   markets,
		Orders:    client,
		Publisher: publisher,
		Clock:     clock,
		Logger:    observability.ServiceLogger(logger.Named("checkout")),
	})
	if err != nil {
		c.closeAll()
		return nil, fmt.Errorf("build checkout service: %w", err)
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyClock(clock))
	if err != nil {
		c.closeAll()
		return nil, fmt.Errorf("build health repository: %w", err)
	}
	health, err := services.NewHealthService(services.HealthServiceDeps{
		Repository: healthRepo,
		Clock:      clock,
		Build:      deps.Build,
	})
	if err != nil {
		c.closeAll()
		return nil, fmt.Errorf("build health service: %w", err)
	}

	c.Services = Services{
		Markets:        markets,
		Catalog:        catalog,
		Carts:          carts,
		Customizations: customizations,
		Checkout:       checkout,
		Health:         health,
	}
	c.Router = c.buildRouter(idemStore, clock)
	return c, nil
}

func (c *Container) buildPublisher(ctx context.Context, cfg config.PubSubConfig, checks *[]repositories.DependencyCheck) (services.OrderEventPublisher, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		c.logger.Warn("pub/sub project not configured; order events are logged only")
		return events.NewLogOrderPublisher(c.logger), nil
	}
	var opts []option.ClientOption
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		opts = append(opts,
			option.WithoutAuthentication(),
			option.WithEndpoint(host),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("build pubsub client: %w", err)
	}
	topic := client.Topic(cfg.OrdersTopic)
	c.closers = append(c.closers, func() error {
		topic.Stop()
		return client.Close()
	})
	publisher, err := events.NewPubSubOrderPublisher(topic)
	if err != nil {
		return nil, err
	}
	*checks = append(*checks, repositories.DependencyCheck{
		Name:     "pubsub",
		Timeout:  time.Second,
		Optional: true,
		Check: func(ctx context.Context) error {
			ok, err := topic.Exists(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("topic %s does not exist", cfg.OrdersTopic)
			}
			return nil
		},
	})
	return publisher, nil
}

func (c *Container) buildRouter(store idempotency.Store, clock func() time.Time) http.Handler {
	svc := c.Services
	httpLogger := c.logger.Named("http")
	projectID := c.Config.Firestore.ProjectID

	healthHandlers := handlers.NewHealthHandlers(handlers.WithHealthService(svc.Health), handlers.WithHealthClock(clock))
	return handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(),
			observability.MarketHintMiddleware,
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMarketRoutes(handlers.NewMarketHandlers(svc.Markets, c.Options).Routes),
		handlers.WithCatalogRoutes(handlers.NewCatalogHandlers(svc.Markets, svc.Catalog).Routes),
		handlers.WithCustomizationRoutes(handlers.NewCustomizationHandlers(svc.Markets, svc.Customizations).Routes),
		handlers.WithCartRoutes(handlers.NewCartHandlers(svc.Markets, svc.Carts).Routes),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(svc.Markets, svc.Checkout).Routes),
		handlers.WithCheckoutMiddlewares(idempotency.Middleware(store,
			idempotency.WithClock(clock),
			idempotency.WithLogger(observability.ServiceLogger(c.logger.Named("idempotency"))),
		)),
	)
}

// Start launches background workers. It is safe to call more than once.
func (c *Container) Start(ctx context.Context) {
	c.runOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.Services.Customizations.Run(runCtx, c.Config.Menu.SweepInterval)
		}()
	})
}

// Close stops background workers and releases clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.closeAll()
}

func (c *Container) closeAll() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func loadOptions(cfg config.MenuConfig) (*menu.Catalog, error) {
	if path := strings.TrimSpace(cfg.OptionsFile); path != "" {
		options, err := menu.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load menu options: %w", err)
		}
		return options, nil
	}
	return menu.Default()
}
