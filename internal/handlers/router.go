package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/omnipizza/storefront/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	markets        RouteRegistrar
	catalog        RouteRegistrar
	customizations RouteRegistrar
	carts          RouteRegistrar
	checkout       RouteRegistrar

	checkoutMiddlewares []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the storefront route groups.
// Groups without a registrar answer 501.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(registrar RouteRegistrar, name string, groupMW []func(http.Handler) http.Handler, paths ...string) {
			if registrar == nil {
				for _, path := range paths {
					registerNotImplementedRoute(api, path, name)
				}
				return
			}
			group := api
			for _, mw := range groupMW {
				if mw != nil {
					group = group.With(mw)
				}
			}
			registrar(group)
		}

		mount(cfg.markets, "markets", nil, "/markets", "/options")
		mount(cfg.catalog, "catalog", nil, "/catalog")
		mount(cfg.customizations, "customizations", nil, "/customizations", "/customizations/*")
		mount(cfg.carts, "carts", nil, "/carts/*")
		mount(cfg.checkout, "checkout", cfg.checkoutMiddlewares, "/checkout")
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithMarketRoutes configures the registrar for /markets and /options.
func WithMarketRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.markets = reg
	}
}

// WithCatalogRoutes configures the registrar for /catalog.
func WithCatalogRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.catalog = reg
	}
}

// WithCustomizationRoutes configures the registrar for /customizations.
func WithCustomizationRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.customizations = reg
	}
}

// WithCartRoutes configures the registrar for /carts.
func WithCartRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.carts = reg
	}
}

// WithCheckoutRoutes configures the registrar for /checkout.
func WithCheckoutRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.checkout = reg
	}
}

// WithCheckoutMiddlewares configures middlewares applied to /checkout only.
func WithCheckoutMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.checkoutMiddlewares = append(cfg.checkoutMiddlewares, mw...)
	}
}

func registerNotImplementedRoute(r chi.Router, path string, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc(path, handler)
}
