package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/omnipizza/storefront/internal/domain"
	"github.com/omnipizza/storefront/internal/menu"
	"github.com/omnipizza/storefront/internal/pricing"
	"github.com/omnipizza/storefront/internal/repositories/memory"
)

var testNow = time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func mxItem(id string) domain.CatalogItem {
	return domain.CatalogItem{ID: id, Name: id, Price: dec("120"), BasePrice: dec("8"), Currency: "MXN", CurrencySymbol: "$"}
}

func usItem(id string) domain.CatalogItem {
	return domain.CatalogItem{ID: id, Name: id, Price: dec("9"), BasePrice: dec("9"), Currency: "USD", CurrencySymbol: "$"}
}

func newTestMarkets(t *testing.T) MarketService {
	t.Helper()
	markets, err := NewMarketService([]Market{
		{Country: "MX", Currency: "MXN", Language: "es-MX"},
		{Country: "US", Currency: "USD", Language: "en-US"},
		{Country: "CH", Currency: "CHF", Language: "de-CH"},
		{Country: "JP", Currency: "JPY", Language: "ja-JP"},
	}, "MX")
	if err != nil {
		t.Fatalf("NewMarketService: %v", err)
	}
	return markets
}

// stubCatalog serves fixed items per country unless listFunc is set.
type stubCatalog struct {
	mu       sync.Mutex
	items    map[string][]domain.CatalogItem
	listFunc func(ctx context.Context, country string) ([]domain.CatalogItem, error)
	calls    int
}

func (s *stubCatalog) List(ctx context.Context, country string) ([]domain.CatalogItem, error) {
	s.mu.Lock()
	s.calls++
	fn := s.listFunc
	items := s.items[country]
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, country)
	}
	return items, nil
}

func (s *stubCatalog) Find(ctx context.Context, country, pizzaID string) (domain.CatalogItem, error) {
	items, err := s.List(ctx, country)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	for _, item := range items {
		if item.ID == pizzaID {
			return item, nil
		}
	}
	return domain.CatalogItem{}, ErrCatalogItemNotFound
}

type cartFixture struct {
	service CartService
	repo    *memory.CartRepository
	catalog *stubCatalog
	engine  *pricing.Engine
	options *menu.Catalog
	markets MarketService
}

func newCartFixture(t *testing.T) cartFixture {
	t.Helper()
	options := menu.MustDefault()
	engine := pricing.NewEngine(options)
	repo := memory.NewCartRepository(func() time.Time { return testNow })
	catalog := &stubCatalog{items: map[string][]domain.CatalogItem{
		"MX": {mxItem("margherita")},
		"US": {usItem("margherita")},
	}}
	markets := newTestMarkets(t)
	ids := 0
	service, err := NewCartService(CartServiceDeps{
		Repository: repo,
		Catalog:    catalog,
		Markets:    markets,
		Engine:     engine,
		Clock:      func() time.Time { return testNow },
		IDGenerator: func() string {
			ids++
			return "id-" + string(rune('a'+ids-1))
		},
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return cartFixture{service: service, repo: repo, catalog: catalog, engine: engine, options: options, markets: markets}
}

func (f cartFixture) priced(item domain.CatalogItem, sizeID string, toppings ...string) domain.PricedConfiguration {
	cfg := domain.PizzaConfiguration{SizeID: sizeID, ToppingIDs: toppings}
	return domain.PricedConfiguration{SizeID: sizeID, ToppingIDs: toppings, UnitPrice: f.engine.Price(item, cfg)}
}
