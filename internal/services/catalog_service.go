package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultCatalogCacheTTL = 30 * time.Second

var (
	// ErrCatalogUnavailable indicates the remote catalog could not be fetched.
	ErrCatalogUnavailable = errors.New("catalog service: unavailable")
	// ErrCatalogItemNotFound indicates the pizza is not offered in the market.
	ErrCatalogItemNotFound = errors.New("catalog service: item not found")
)

// CatalogSource fetches the catalog priced for one country.
type CatalogSource interface {
	ListPizzas(ctx context.Context, country string) ([]CatalogItem, error)
}

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Source  CatalogSource
	Markets MarketService
	// CacheTTL bounds how long a fetched catalog is reused. Zero disables caching.
	CacheTTL time.Duration
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

type catalogEntry struct {
	items     []CatalogItem
	fetchedAt time.Time
}

type catalogService struct {
	source  CatalogSource
	markets MarketService
	ttl     time.Duration
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)

	mu    sync.RWMutex
	cache map[string]catalogEntry
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Source == nil {
		return nil, errors.New("catalog service: source is required")
	}
	if deps.Markets == nil {
		return nil, errors.New("catalog service: markets are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	ttl := deps.CacheTTL
	if ttl < 0 {
		ttl = defaultCatalogCacheTTL
	}
	return &catalogService{
		source:  deps.Source,
		markets: deps.Markets,
		ttl:     ttl,
		now:     clock,
		logger:  logger,
		cache:   make(map[string]catalogEntry),
	}, nil
}

func (s *catalogService) List(ctx context.Context, country string) ([]CatalogItem, error) {
	market, err := s.markets.Resolve(country)
	if err != nil {
		return nil, err
	}

	if items, ok := s.cached(market.Country); ok {
		return items, nil
	}

	items, err := s.source.ListPizzas(ctx, market.Country)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger(ctx, "catalog.fetch.failed", map[string]any{"country": market.Country, "error": err.Error()})
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	if s.ttl > 0 {
		s.mu.Lock()
		s.cache[market.Country] = catalogEntry{items: items, fetchedAt: s.now()}
		s.mu.Unlock()
	}
	s.logger(ctx, "catalog.fetched", map[string]any{"country": market.Country, "items": len(items)})
	return cloneItems(items), nil
}

func (s *catalogService) Find(ctx context.Context, country, pizzaID string) (CatalogItem, error) {
	pizzaID = strings.TrimSpace(pizzaID)
	if pizzaID == "" {
		return CatalogItem{}, ErrCatalogItemNotFound
	}
	items, err := s.List(ctx, country)
	if err != nil {
		return CatalogItem{}, err
	}
	for _, item := range items {
		if item.ID == pizzaID {
			return item, nil
		}
	}
	return CatalogItem{}, fmt.Errorf("%w: %s", ErrCatalogItemNotFound, pizzaID)
}

func (s *catalogService) cached(country string) ([]CatalogItem, bool) {
	if s.ttl <= 0 {
		return nil, false
	}
	s.mu.RLock()
	entry, ok := s.cache[country]
	s.mu.RUnlock()
	if !ok || s.now().Sub(entry.fetchedAt) >= s.ttl {
		return nil, false
	}
	return cloneItems(entry.items), true
}

func cloneItems(items []CatalogItem) []CatalogItem {
	return append([]CatalogItem(nil), items...)
}
