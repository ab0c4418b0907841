package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/omnipizza/storefront/internal/customization"
	"github.com/omnipizza/storefront/internal/menu"
)

const defaultSessionTTL = 30 * time.Minute

// ErrSessionNotFound indicates the session id is unknown or expired.
var ErrSessionNotFound = errors.New("customization service: session not found")

// ErrSessionClosed is returned when a confirmed or cancelled session is used again.
var ErrSessionClosed = customization.ErrSessionClosed

// CustomizationServiceDeps wires the session store.
type CustomizationServiceDeps struct {
	Catalog     CatalogService
	Carts       CartService
	Markets     MarketService
	Options     *menu.Catalog
	SessionTTL  time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type sessionEntry struct {
	mu        sync.Mutex
	id        string
	session   *customization.Session
	market    Market
	cartID    string
	expiresAt time.Time
}

type customizationService struct {
	catalog CatalogService
	carts   CartService
	markets MarketService
	options *menu.Catalog
	ttl     time.Duration
	now     func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// CustomizationStore is a CustomizationService that also owns the expiry of its sessions.
type CustomizationStore interface {
	CustomizationService
	Sweep(now time.Time) int
	Run(ctx context.Context, interval time.Duration)
}

// NewCustomizationService constructs the in-memory session store.
func NewCustomizationService(deps CustomizationServiceDeps) (CustomizationStore, error) {
	if deps.Catalog == nil || deps.Carts == nil || deps.Markets == nil {
		return nil, errors.New("customization service: catalog, carts and markets are required")
	}
	if deps.Options == nil {
		return nil, errors.New("customization service: option catalog is required")
	}
	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &customizationService{
		catalog:  deps.Catalog,
		carts:    deps.Carts,
		markets:  deps.Markets,
		options:  deps.Options,
		ttl:      ttl,
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
		sessions: make(map[string]*sessionEntry),
	}, nil
}

func (s *customizationService) Start(ctx context.Context, cmd StartCustomizationCommand) (CustomizationView, error) {
	market, err := s.markets.Resolve(cmd.Country)
	if err != nil {
		return CustomizationView{}, err
	}
	item, err := s.catalog.Find(ctx, market.Country, cmd.PizzaID)
	if err != nil {
		return CustomizationView{}, err
	}
	entry := s.store(&sessionEntry{session: customization.NewSession(item, s.options), market: market})
	s.logger(ctx, "customization.started", map[string]any{"sessionId": entry.id, "pizzaId": item.ID, "country": market.Country})
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return s.view(entry), nil
}

func (s *customizationService) StartEdit(ctx context.Context, cmd EditCustomizationCommand) (CustomizationView, error) {
	cartID, lineID, err := requireIDs(cmd.CartID, cmd.LineID)
	if err != nil {
		return CustomizationView{}, err
	}
	cart, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		return CustomizationView{}, err
	}
	idx := cart.FindLine(lineID)
	if idx < 0 {
		return CustomizationView{}, fmt.Errorf("%w: line %s", ErrCartNotFound, lineID)
	}
	market, err := s.markets.Resolve(cart.Market)
	if err != nil {
		return CustomizationView{}, err
	}
	line := cart.Lines[idx]
	entry := s.store(&sessionEntry{
		session: customization.EditSession(line.ID, line.Item, line.Configuration, s.options),
		market:  market,
		cartID:  cartID,
	})
	s.logger(ctx, "customization.edit_started", map[string]any{"sessionId": entry.id, "cartId": cartID, "lineId": lineID})
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return s.view(entry), nil
}

func (s *customizationService) Get(_ context.Context, sessionID string) (CustomizationView, error) {
	entry, err := s.acquire(sessionID)
	if err != nil {
		return CustomizationView{}, err
	}
	defer entry.mu.Unlock()
	return s.view(entry), nil
}

// ToggleTopping flips one topping. The returned view's ToggleApplied is false when the toggle was
// ignored because the id is unknown or the selection is at the cap.
func (s *customizationService) ToggleTopping(_ context.Context, sessionID, toppingID string) (CustomizationView, error) {
	var applied bool
	view, err := s.edit(sessionID, func(session *customization.Session) error {
		var err error
		applied, err = session.ToggleTopping(strings.TrimSpace(toppingID))
		return err
	})
	if err != nil {
		return CustomizationView{}, err
	}
	view.ToggleApplied = &applied
	return view, nil
}

func (s *customizationService) SelectSize(_ context.Context, sessionID, sizeID string) (CustomizationView, error) {
	return s.edit(sessionID, func(session *customization.Session) error {
		return session.SelectSize(strings.TrimSpace(sizeID))
	})
}

// Confirm prices the selection against the current catalog item and writes it to the cart: a new
// line for new pizzas, a replacement of the edited line in edit mode. When the cart write fails
// the session is reopened so the client can retry.
func (s *customizationService) Confirm(ctx context.Context, cmd ConfirmCustomizationCommand) (ConfirmCustomizationResult, error) {
	entry, err := s.acquire(cmd.SessionID)
	if err != nil {
		return ConfirmCustomizationResult{}, err
	}
	defer entry.mu.Unlock()

	session := entry.session
	if session.State() != customization.StateEditing {
		return ConfirmCustomizationResult{}, ErrSessionClosed
	}

	item := session.Item()
	if fresh, err := s.catalog.Find(ctx, entry.market.Country, item.ID); err == nil {
		item = fresh
	} else {
		s.logger(ctx, "customization.item_refresh.failed", map[string]any{"sessionId": entry.id, "pizzaId": item.ID, "error": err.Error()})
	}

	cfg := session.Configuration()
	priced, err := session.Confirm(item)
	if err != nil {
		return ConfirmCustomizationResult{}, err
	}

	var (
		cart   Cart
		lineID = session.EditingLineID()
	)
	if lineID != "" {
		cart, err = s.carts.ReplaceLine(ctx, ReplaceLineCommand{CartID: entry.cartID, LineID: lineID, Item: item, Priced: priced})
	} else {
		cart, err = s.carts.AddLine(ctx, AddLineCommand{
			CartID:   cmd.CartID,
			Country:  entry.market.Country,
			Item:     item,
			Priced:   priced,
			Quantity: cmd.Quantity,
		})
	}
	if err != nil {
		entry.session = customization.EditSession(lineID, item, cfg, s.options)
		entry.expiresAt = s.now().Add(s.ttl)
		return ConfirmCustomizationResult{}, err
	}

	if lineID == "" {
		lineID = findConfirmedLine(cart, item.ID, priced)
	}
	s.logger(ctx, "customization.confirmed", map[string]any{
		"sessionId": entry.id,
		"cartId":    cart.ID,
		"lineId":    lineID,
		"unitPrice": priced.UnitPrice.String(),
	})
	return ConfirmCustomizationResult{Cart: cart, LineID: lineID, Priced: priced}, nil
}

func (s *customizationService) Cancel(ctx context.Context, sessionID string) error {
	entry, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer entry.mu.Unlock()
	if err := entry.session.Cancel(); err != nil {
		return err
	}
	s.logger(ctx, "customization.cancelled", map[string]any{"sessionId": entry.id})
	return nil
}

// Sweep drops expired sessions and sessions that have ended. It returns how many were removed.
func (s *customizationService) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.sessions {
		entry.mu.Lock()
		ended := entry.session.State() != customization.StateEditing
		expired := !now.Before(entry.expiresAt)
		entry.mu.Unlock()
		if ended || expired {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *customizationService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(s.now()); removed > 0 {
				s.logger(ctx, "customization.swept", map[string]any{"removed": removed})
			}
		}
	}
}

func (s *customizationService) edit(sessionID string, apply func(*customization.Session) error) (CustomizationView, error) {
	entry, err := s.acquire(sessionID)
	if err != nil {
		return CustomizationView{}, err
	}
	defer entry.mu.Unlock()
	if err := apply(entry.session); err != nil {
		return CustomizationView{}, err
	}
	entry.expiresAt = s.now().Add(s.ttl)
	return s.view(entry), nil
}

func (s *customizationService) store(entry *sessionEntry) *sessionEntry {
	entry.id = s.newID()
	entry.expiresAt = s.now().Add(s.ttl)
	s.mu.Lock()
	s.sessions[entry.id] = entry
	s.mu.Unlock()
	return entry
}

// acquire returns the live session with entry.mu held; the caller unlocks it.
func (s *customizationService) acquire(sessionID string) (*sessionEntry, error) {
	sessionID = strings.TrimSpace(sessionID)
	s.mu.Lock()
	entry, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	entry.mu.Lock()
	if !s.now().Before(entry.expiresAt) {
		entry.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	return entry, nil
}

// view must be called with entry.mu held.
func (s *customizationService) view(entry *sessionEntry) CustomizationView {
	session := entry.session
	return CustomizationView{
		ID:            entry.id,
		Market:        entry.market,
		CartID:        entry.cartID,
		EditingLineID: session.EditingLineID(),
		State:         session.State(),
		Item:          session.Item(),
		Configuration: session.Configuration(),
		Quote:         session.Quote(),
		AtCap:         session.AtCap(),
		MaxToppings:   s.options.MaxToppings(),
		ExpiresAt:     entry.expiresAt,
	}
}

func findConfirmedLine(cart Cart, itemID string, priced PricedConfiguration) string {
	cfg := priced.Configuration()
	for _, line := range cart.Lines {
		if line.Item.ID == itemID && sameConfiguration(line.Configuration, cfg) {
			return line.ID
		}
	}
	return ""
}
