package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/omnipizza/storefront/internal/domain"
	"github.com/omnipizza/storefront/internal/menu"
	"github.com/omnipizza/storefront/internal/platform/idempotency"
	"github.com/omnipizza/storefront/internal/platform/observability"
	"github.com/omnipizza/storefront/internal/platform/pizzaapi"
	"github.com/omnipizza/storefront/internal/pricing"
	"github.com/omnipizza/storefront/internal/repositories/memory"
	"github.com/omnipizza/storefront/internal/services"
)

var testNow = time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)

type testAPI struct {
	router chi.Router
	client *pizzaapi.Client
	repo   *memory.CartRepository
}

// newTestAPI assembles the storefront on in-memory storage and the fixture pizza catalog.
func newTestAPI(t *testing.T) testAPI {
	t.Helper()
	clock := func() time.Time { return testNow }
	options := menu.MustDefault()
	markets, err := services.NewMarketService([]domain.Market{
		{Country: "MX", Currency: "MXN", Language: "es-MX"},
		{Country: "US", Currency: "USD", Language: "en-US"},
		{Country: "CH", Currency: "CHF", Language: "de-CH"},
		{Country: "JP", Currency: "JPY", Language: "ja-JP"},
	}, "MX")
	if err != nil {
		t.Fatalf("NewMarketService: %v", err)
	}
	client := pizzaapi.NewClient("", time.Second)
	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{Source: client, Markets: markets, Clock: clock})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	repo := memory.NewCartRepository(clock)
	carts, err := services.NewCartService(services.CartServiceDeps{
		Repository: repo,
		Catalog:    catalog,
		Markets:    markets,
		Engine:     pricing.NewEngine(options),
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	customizations, err := services.NewCustomizationService(services.CustomizationServiceDeps{
		Catalog: catalog,
		Carts:   carts,
		Markets: markets,
		Options: options,
		Clock:   clock,
	})
	if err != nil {
		t.Fatalf("NewCustomizationService: %v", err)
	}
	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:   carts,
		Markets: markets,
		Orders:  client,
		Clock:   clock,
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}

	router := NewRouter(
		WithMiddlewares(observability.MarketHintMiddleware),
		WithMarketRoutes(NewMarketHandlers(markets, options).Routes),
		WithCatalogRoutes(NewCatalogHandlers(markets, catalog).Routes),
		WithCustomizationRoutes(NewCustomizationHandlers(markets, customizations).Routes),
		WithCartRoutes(NewCartHandlers(markets, carts).Routes),
		WithCheckoutRoutes(NewCheckoutHandlers(markets, checkout).Routes),
		WithCheckoutMiddlewares(idempotency.Middleware(idempotency.NewMemoryStore(), idempotency.WithClock(clock))),
	)
	return testAPI{router: router, client: client, repo: repo}
}

func (a testAPI) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decodeResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeResponse[map[string]any](t, rr)
	code, _ := body["error"].(string)
	return code
}
