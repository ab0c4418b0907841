package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/omnipizza/storefront/internal/pricing"
	"github.com/omnipizza/storefront/internal/repositories"
)

const (
	maxLineQuantity = 99
	meterName       = "github.com/omnipizza/storefront/internal/services"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartEngineRequired     = errors.New("cart service: pricing engine is required")
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart service: invalid input")
	// ErrCartNotFound indicates the requested cart or line does not exist.
	ErrCartNotFound = errors.New("cart service: not found")
	// ErrCartConflict indicates the cart was modified concurrently.
	ErrCartConflict = errors.New("cart service: conflict")
	// ErrCartUnavailable indicates the cart store cannot be reached.
	ErrCartUnavailable = errors.New("cart service: unavailable")
	// ErrCartMarketMismatch indicates a line priced for one market was added to a cart in another.
	ErrCartMarketMismatch = errors.New("cart service: market mismatch")
	// ErrRefreshSuperseded indicates a newer price refresh started for the same cart, so the
	// results of this one were discarded.
	ErrRefreshSuperseded = errors.New("cart service: refresh superseded")
)

// CartServiceDeps wires the repository and pricing dependencies for cart operations.
type CartServiceDeps struct {
	Repository  repositories.CartRepository
	Catalog     CatalogService
	Markets     MarketService
	Engine      *pricing.Engine
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
	Meter       metric.Meter
}

// cartState serialises writes to one cart and hands out refresh tickets. It lives only while some
// call holds it; refs is guarded by cartService.statesMu.
type cartState struct {
	mu      sync.Mutex
	tickets atomic.Uint64
	refs    int
}

type cartService struct {
	repo    repositories.CartRepository
	catalog CatalogService
	markets MarketService
	engine  *pricing.Engine
	newID   func() string
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)

	refreshApplied    metric.Int64Counter
	refreshSuperseded metric.Int64Counter

	statesMu sync.Mutex
	states   map[string]*cartState
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Engine == nil {
		return nil, errCartEngineRequired
	}
	if deps.Catalog == nil || deps.Markets == nil {
		return nil, errors.New("cart service: catalog and markets are required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	applied, err := meter.Int64Counter("storefront.cart.refresh.applied",
		metric.WithDescription("Price refreshes whose results were written to the cart"))
	if err != nil {
		return nil, fmt.Errorf("cart service: create counter: %w", err)
	}
	superseded, err := meter.Int64Counter("storefront.cart.refresh.superseded",
		metric.WithDescription("Price refreshes discarded because a newer refresh started"))
	if err != nil {
		return nil, fmt.Errorf("cart service: create counter: %w", err)
	}

	return &cartService{
		repo:              deps.Repository,
		catalog:           deps.Catalog,
		markets:           deps.Markets,
		engine:            deps.Engine,
		newID:             idGen,
		now:               func() time.Time { return clock().UTC() },
		logger:            logger,
		refreshApplied:    applied,
		refreshSuperseded: superseded,
		states:            make(map[string]*cartState),
	}, nil
}

// GetCart loads a cart. Unknown carts read as empty carts in the default market.
func (s *cartService) GetCart(ctx context.Context, cartID string) (Cart, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return Cart{}, fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	cart, _, err := s.load(ctx, cartID)
	return cart, err
}

func (s *cartService) AddLine(ctx context.Context, cmd AddLineCommand) (Cart, error) {
	cartID := strings.TrimSpace(cmd.CartID)
	if cartID == "" {
		cartID = s.newID()
	}
	if strings.TrimSpace(cmd.Item.ID) == "" {
		return Cart{}, fmt.Errorf("%w: item is required", ErrCartInvalidInput)
	}
	quantity := cmd.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 || quantity > maxLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxLineQuantity)
	}
	market, err := s.markets.Resolve(cmd.Country)
	if err != nil {
		return Cart{}, err
	}

	return s.mutate(ctx, cartID, func(cart *Cart) error {
		if len(cart.Lines) > 0 && cart.Market != market.Country {
			return fmt.Errorf("%w: cart is priced for %s", ErrCartMarketMismatch, cart.Market)
		}
		cart.Market = market.Country

		cfg := cmd.Priced.Configuration()
		for idx, line := range cart.Lines {
			if line.Item.ID == cmd.Item.ID && sameConfiguration(line.Configuration, cfg) {
				merged := line.Quantity + quantity
				if merged > maxLineQuantity {
					return fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxLineQuantity)
				}
				cart.Lines[idx].Quantity = merged
				cart.Lines[idx].UnitPrice = cmd.Priced.UnitPrice
				return nil
			}
		}
		cart.Lines = append(cart.Lines, CartLine{
			ID:             s.newID(),
			Item:           cmd.Item,
			Configuration:  cfg,
			UnitPrice:      cmd.Priced.UnitPrice,
			Quantity:       quantity,
			Currency:       cmd.Item.Currency,
			CurrencySymbol: cmd.Item.CurrencySymbol,
			AddedAt:        s.now(),
		})
		return nil
	})
}

func (s *cartService) ReplaceLine(ctx context.Context, cmd ReplaceLineCommand) (Cart, error) {
	cartID, lineID, err := requireIDs(cmd.CartID, cmd.LineID)
	if err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, cartID, func(cart *Cart) error {
		idx := cart.FindLine(lineID)
		if idx < 0 {
			return fmt.Errorf("%w: line %s", ErrCartNotFound, lineID)
		}
		line := &cart.Lines[idx]
		if strings.TrimSpace(cmd.Item.ID) != "" {
			line.Item = cmd.Item
			line.Currency = cmd.Item.Currency
			line.CurrencySymbol = cmd.Item.CurrencySymbol
		}
		line.Configuration = cmd.Priced.Configuration()
		line.UnitPrice = cmd.Priced.UnitPrice
		return nil
	})
}

// UpdateQuantity sets a line quantity. Zero removes the line.
func (s *cartService) UpdateQuantity(ctx context.Context, cartID, lineID string, quantity int) (Cart, error) {
	cartID, lineID, err := requireIDs(cartID, lineID)
	if err != nil {
		return Cart{}, err
	}
	if quantity < 0 || quantity > maxLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 0 and %d", ErrCartInvalidInput, maxLineQuantity)
	}
	return s.mutate(ctx, cartID, func(cart *Cart) error {
		idx := cart.FindLine(lineID)
		if idx < 0 {
			return fmt.Errorf("%w: line %s", ErrCartNotFound, lineID)
		}
		if quantity == 0 {
			cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)
			return nil
		}
		cart.Lines[idx].Quantity = quantity
		return nil
	})
}

func (s *cartService) RemoveLine(ctx context.Context, cartID, lineID string) (Cart, error) {
	return s.UpdateQuantity(ctx, cartID, lineID, 0)
}

func (s *cartService) Clear(ctx context.Context, cartID string) error {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	state := s.acquireState(cartID)
	defer s.releaseState(cartID, state)
	state.mu.Lock()
	defer state.mu.Unlock()

	if err := s.repo.DeleteCart(ctx, cartID); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "cart.cleared", map[string]any{"cartId": cartID})
	return nil
}

// RefreshPrices reprices every line against a fresh catalog for country. Each call takes a ticket
// before fetching; results are applied only while that ticket is still the newest for the cart.
func (s *cartService) RefreshPrices(ctx context.Context, cartID, country string) (Cart, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return Cart{}, fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	market, err := s.markets.Resolve(country)
	if err != nil {
		return Cart{}, err
	}

	state := s.acquireState(cartID)
	defer s.releaseState(cartID, state)
	ticket := state.tickets.Add(1)

	items, err := s.catalog.List(ctx, market.Country)
	if err != nil {
		return Cart{}, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("country", market.Country))
	if latest := state.tickets.Load(); latest != ticket {
		s.refreshSuperseded.Add(ctx, 1, attrs)
		s.logger(ctx, "cart.refresh.superseded", map[string]any{"cartId": cartID, "ticket": ticket, "latest": latest})
		return Cart{}, ErrRefreshSuperseded
	}

	cart, exists, err := s.load(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	if !exists {
		cart.Market = market.Country
		return cart, nil
	}
	expected := cart.UpdatedAt
	cart.Lines = s.engine.RepriceLines(cart.Lines, items)
	cart.Market = market.Country
	cart.PriceGeneration++

	saved, err := s.save(ctx, cart, exists, expected)
	if err != nil {
		return Cart{}, err
	}
	s.refreshApplied.Add(ctx, 1, attrs)
	s.logger(ctx, "cart.refresh.applied", map[string]any{
		"cartId":     cartID,
		"country":    market.Country,
		"lines":      len(saved.Lines),
		"generation": saved.PriceGeneration,
	})
	return saved, nil
}

func (s *cartService) mutate(ctx context.Context, cartID string, apply func(*Cart) error) (Cart, error) {
	state := s.acquireState(cartID)
	defer s.releaseState(cartID, state)
	state.mu.Lock()
	defer state.mu.Unlock()

	cart, exists, err := s.load(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	expected := cart.UpdatedAt
	if err := apply(&cart); err != nil {
		return Cart{}, err
	}
	return s.save(ctx, cart, exists, expected)
}

// load returns the stored cart, or an empty cart in the default market when none exists.
func (s *cartService) load(ctx context.Context, cartID string) (Cart, bool, error) {
	cart, err := s.repo.GetCart(ctx, cartID)
	if err == nil {
		return cart, true, nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return Cart{ID: cartID, Market: s.markets.Default().Country, Lines: []CartLine{}}, false, nil
	}
	return Cart{}, false, s.translateRepoError(err)
}

func (s *cartService) save(ctx context.Context, cart Cart, exists bool, expected time.Time) (Cart, error) {
	precondition := time.Time{}
	if exists {
		precondition = expected
	}
	saved, err := s.repo.SaveCart(ctx, cart, &precondition)
	if err != nil {
		translated := s.translateRepoError(err)
		s.logger(ctx, "cart.save.failed", map[string]any{"cartId": cart.ID, "error": err.Error()})
		return Cart{}, translated
	}
	return saved, nil
}

func (s *cartService) acquireState(cartID string) *cartState {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	st, ok := s.states[cartID]
	if !ok {
		st = &cartState{}
		s.states[cartID] = st
	}
	st.refs++
	return st
}

// releaseState drops the state once no call holds it. A later refresh starts a fresh ticket
// sequence, which is safe because no older refresh for the cart is still in flight.
func (s *cartService) releaseState(cartID string, st *cartState) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	st.refs--
	if st.refs <= 0 && s.states[cartID] == st {
		delete(s.states, cartID)
	}
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return ErrCartConflict
		}
	}
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}

func requireIDs(cartID, lineID string) (string, string, error) {
	cartID = strings.TrimSpace(cartID)
	lineID = strings.TrimSpace(lineID)
	if cartID == "" || lineID == "" {
		return "", "", fmt.Errorf("%w: cart id and line id are required", ErrCartInvalidInput)
	}
	return cartID, lineID, nil
}

func sameConfiguration(a, b PizzaConfiguration) bool {
	if a.SizeID != b.SizeID || len(a.ToppingIDs) != len(b.ToppingIDs) {
		return false
	}
	seen := make(map[string]struct{}, len(a.ToppingIDs))
	for _, id := range a.ToppingIDs {
		seen[id] = struct{}{}
	}
	for _, id := range b.ToppingIDs {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}
