// Package customization implements the pizza configuration lifecycle: a session starts from an
// item's defaults (or an existing cart line in edit mode), accepts size and topping changes with
// a live price preview, and ends when confirmed or cancelled.
package customization

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/omnipizza/storefront/internal/domain"
	"github.com/omnipizza/storefront/internal/menu"
	"github.com/omnipizza/storefront/internal/pricing"
)

// ErrSessionClosed is returned when a confirmed or cancelled session is mutated.
var ErrSessionClosed = errors.New("customization: session closed")

// State is the lifecycle position of a session.
type State int

const (
	StateInitializing State = iota
	StateEditing
	StateConfirmed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateEditing:
		return "editing"
	case StateConfirmed:
		return "confirmed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Session owns one in-progress pizza configuration. It is not safe for concurrent use.
type Session struct {
	engine        *pricing.Engine
	item          domain.CatalogItem
	sizeID        string
	toppings      []string
	selected      map[string]struct{}
	editingLineID string
	state         State
}

// NewSession starts configuring item with the default size and no toppings.
func NewSession(item domain.CatalogItem, options *menu.Catalog) *Session {
	s := newSession(item, options)
	s.sizeID = options.DefaultSize().ID
	s.state = StateEditing
	return s
}

// EditSession reopens an existing cart line. Stale size ids fall back to the default size, unknown
// toppings are dropped and the selection is truncated to the topping cap.
func EditSession(lineID string, item domain.CatalogItem, existing domain.PizzaConfiguration, options *menu.Catalog) *Session {
	s := newSession(item, options)
	s.editingLineID = lineID
	s.sizeID = options.ResolveSize(existing.SizeID).ID
	for _, id := range existing.ToppingIDs {
		if len(s.toppings) >= options.MaxToppings() {
			break
		}
		if !options.HasTopping(id) {
			continue
		}
		if _, dup := s.selected[id]; dup {
			continue
		}
		s.selected[id] = struct{}{}
		s.toppings = append(s.toppings, id)
	}
	s.state = StateEditing
	return s
}

func newSession(item domain.CatalogItem, options *menu.Catalog) *Session {
	return &Session{
		engine:   pricing.NewEngine(options),
		item:     item,
		selected: make(map[string]struct{}),
		state:    StateInitializing,
	}
}

// State reports the lifecycle state.
func (s *Session) State() State { return s.state }

// Item is the catalog item being configured.
func (s *Session) Item() domain.CatalogItem { return s.item }

// EditingLineID is the cart line being edited, empty for a new pizza.
func (s *Session) EditingLineID() string { return s.editingLineID }

// Configuration returns a copy of the current selection.
func (s *Session) Configuration() domain.PizzaConfiguration {
	return domain.PizzaConfiguration{
		SizeID:     s.sizeID,
		ToppingIDs: append([]string{}, s.toppings...),
	}
}

// IsSelected reports whether the topping is part of the selection.
func (s *Session) IsSelected(toppingID string) bool {
	_, ok := s.selected[toppingID]
	return ok
}

// AtCap reports whether no further toppings can be added.
func (s *Session) AtCap() bool {
	return len(s.toppings) >= s.engine.Options().MaxToppings()
}

// ToggleTopping removes a selected topping or adds an unselected one. Adding at the cap or adding
// an unknown topping leaves the selection unchanged and returns false.
func (s *Session) ToggleTopping(toppingID string) (bool, error) {
	if s.state != StateEditing {
		return false, ErrSessionClosed
	}
	if _, ok := s.selected[toppingID]; ok {
		delete(s.selected, toppingID)
		for idx, id := range s.toppings {
			if id == toppingID {
				s.toppings = append(s.toppings[:idx], s.toppings[idx+1:]...)
				break
			}
		}
		return true, nil
	}
	if s.AtCap() || !s.engine.Options().HasTopping(toppingID) {
		return false, nil
	}
	s.selected[toppingID] = struct{}{}
	s.toppings = append(s.toppings, toppingID)
	return true, nil
}

// SelectSize switches the size. Unknown ids select the default size.
func (s *Session) SelectSize(sizeID string) error {
	if s.state != StateEditing {
		return ErrSessionClosed
	}
	s.sizeID = s.engine.Options().ResolveSize(sizeID).ID
	return nil
}

// UnitPrice previews the price of the current selection.
func (s *Session) UnitPrice() decimal.Decimal {
	return s.engine.Price(s.item, s.Configuration())
}

// Quote previews the price breakdown of the current selection.
func (s *Session) Quote() domain.PriceBreakdown {
	return s.engine.Quote(s.item, s.Configuration())
}

// Confirm prices the selection against item, which may be fresher than the one the session
// started with, and ends the session.
func (s *Session) Confirm(item domain.CatalogItem) (domain.PricedConfiguration, error) {
	if s.state != StateEditing {
		return domain.PricedConfiguration{}, ErrSessionClosed
	}
	if item.ID == "" {
		item = s.item
	}
	s.item = item
	cfg := s.Configuration()
	s.state = StateConfirmed
	return domain.PricedConfiguration{
		SizeID:     cfg.SizeID,
		ToppingIDs: cfg.ToppingIDs,
		UnitPrice:  s.engine.Price(item, cfg),
	}, nil
}

// Cancel ends the session without producing a configuration.
func (s *Session) Cancel() error {
	if s.state != StateEditing {
		return ErrSessionClosed
	}
	s.state = StateCancelled
	return nil
}
