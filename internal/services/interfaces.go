package services

import (
	"context"
	"time"

	"github.com/omnipizza/storefront/internal/customization"
	"github.com/omnipizza/storefront/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart                = domain.Cart
	CartLine            = domain.CartLine
	CatalogItem         = domain.CatalogItem
	Market              = domain.Market
	PizzaConfiguration  = domain.PizzaConfiguration
	PricedConfiguration = domain.PricedConfiguration
	PriceBreakdown      = domain.PriceBreakdown
	Order               = domain.Order
	OrderConfirmation   = domain.OrderConfirmation
	Customer            = domain.Customer
)

// MarketService resolves the countries the storefront sells in.
type MarketService interface {
	List() []Market
	Default() Market
	// Resolve maps a country code to a supported market. An empty code resolves to the default.
	Resolve(country string) (Market, error)
}

// CatalogService serves the remote pizza catalog for a market.
type CatalogService interface {
	List(ctx context.Context, country string) ([]CatalogItem, error)
	Find(ctx context.Context, country, pizzaID string) (CatalogItem, error)
}

// CartService owns cart persistence and the latest-wins price refresh.
type CartService interface {
	GetCart(ctx context.Context, cartID string) (Cart, error)
	AddLine(ctx context.Context, cmd AddLineCommand) (Cart, error)
	ReplaceLine(ctx context.Context, cmd ReplaceLineCommand) (Cart, error)
	UpdateQuantity(ctx context.Context, cartID, lineID string, quantity int) (Cart, error)
	RemoveLine(ctx context.Context, cartID, lineID string) (Cart, error)
	Clear(ctx context.Context, cartID string) error
	RefreshPrices(ctx context.Context, cartID, country string) (Cart, error)
}

// CustomizationService keeps customization sessions between client calls.
type CustomizationService interface {
	Start(ctx context.Context, cmd StartCustomizationCommand) (CustomizationView, error)
	StartEdit(ctx context.Context, cmd EditCustomizationCommand) (CustomizationView, error)
	Get(ctx context.Context, sessionID string) (CustomizationView, error)
	ToggleTopping(ctx context.Context, sessionID, toppingID string) (CustomizationView, error)
	SelectSize(ctx context.Context, sessionID, sizeID string) (CustomizationView, error)
	Confirm(ctx context.Context, cmd ConfirmCustomizationCommand) (ConfirmCustomizationResult, error)
	Cancel(ctx context.Context, sessionID string) error
}

// CheckoutService validates a cart for its market and submits it as an order.
type CheckoutService interface {
	Submit(ctx context.Context, cmd CheckoutCommand) (OrderConfirmation, error)
}

// OrderSubmitter sends orders to the remote order API.
type OrderSubmitter interface {
	CreateOrder(ctx context.Context, order Order) (OrderConfirmation, error)
}

// OrderEventPublisher announces accepted orders.
type OrderEventPublisher interface {
	PublishOrderConfirmed(ctx context.Context, event OrderConfirmedEvent) (string, error)
}

// AddLineCommand adds a confirmed configuration to a cart. An empty CartID creates a new cart.
type AddLineCommand struct {
	CartID   string
	Country  string
	Item     CatalogItem
	Priced   PricedConfiguration
	Quantity int
}

// ReplaceLineCommand overwrites the configuration and price of an existing line, keeping its quantity.
type ReplaceLineCommand struct {
	CartID string
	LineID string
	Item   CatalogItem
	Priced PricedConfiguration
}

// StartCustomizationCommand begins configuring a catalog pizza.
type StartCustomizationCommand struct {
	PizzaID string
	Country string
}

// EditCustomizationCommand reopens a cart line.
type EditCustomizationCommand struct {
	CartID string
	LineID string
}

// ConfirmCustomizationCommand writes the session result to a cart. CartID is ignored in edit mode.
type ConfirmCustomizationCommand struct {
	SessionID string
	CartID    string
	Quantity  int
}

// ConfirmCustomizationResult is the cart after the confirmed line was written.
type ConfirmCustomizationResult struct {
	Cart   Cart
	LineID string
	Priced PricedConfiguration
}

// CustomizationView is the client-facing snapshot of a session.
type CustomizationView struct {
	ID            string
	Market        Market
	CartID        string
	EditingLineID string
	State         customization.State
	Item          CatalogItem
	Configuration PizzaConfiguration
	Quote         PriceBreakdown
	AtCap         bool
	MaxToppings   int
	ExpiresAt     time.Time
	// ToggleApplied is set by ToggleTopping only.
	ToggleApplied *bool
}

// CheckoutCommand is a checkout submission.
type CheckoutCommand struct {
	CartID         string
	Country        string
	Customer       Customer
	PaymentMethod  string
	Notes          string
	IdempotencyKey string
}

// OrderConfirmedEventType names the event published after a successful checkout.
const OrderConfirmedEventType = "order.confirmed"

// OrderConfirmedEvent is the payload of the order.confirmed message.
type OrderConfirmedEvent struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	CartID         string    `json:"cartId"`
	Country        string    `json:"country"`
	Currency       string    `json:"currency"`
	Total          string    `json:"total"`
	ItemCount      int       `json:"itemCount"`
	OccurredAt     time.Time `json:"occurredAt"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
}
