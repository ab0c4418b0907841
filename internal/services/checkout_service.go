package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/omnipizza/storefront/internal/domain"
)

const (
	maxCustomerNameLength = 120
	maxAddressLength      = 300
	maxNotesLength        = 500
)

var (
	// ErrCheckoutInvalid indicates the checkout submission failed validation.
	ErrCheckoutInvalid = errors.New("checkout: invalid input")
	// ErrCheckoutRejected indicates the order API refused the order.
	ErrCheckoutRejected = errors.New("checkout: order rejected")
	// ErrCheckoutUnavailable indicates the order API could not be reached.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

var (
	postalCodePatterns = map[string]*regexp.Regexp{
		"US": regexp.MustCompile(`^\d{5}$`),
		"MX": regexp.MustCompile(`^\d{5}$`),
		"CH": regexp.MustCompile(`^\d{4}$`),
		"JP": regexp.MustCompile(`^\d{3}-?\d{4}$`),
	}
	phonePattern   = regexp.MustCompile(`^\+?[0-9 ()\-]{6,20}$`)
	paymentMethods = map[string]struct{}{"cash": {}, "card": {}}
)

// CheckoutValidationError lists every rejected field of a checkout submission.
type CheckoutValidationError struct {
	Fields map[string]string
}

func (e *CheckoutValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("checkout: invalid fields: %s", strings.Join(names, ", "))
}

func (e *CheckoutValidationError) Unwrap() error { return ErrCheckoutInvalid }

// rejection is implemented by order API errors that carry an HTTP status.
type rejection interface {
	Temporary() bool
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts     CartService
	Markets   MarketService
	Orders    OrderSubmitter
	Publisher OrderEventPublisher
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts     CartService
	markets   MarketService
	orders    OrderSubmitter
	publisher OrderEventPublisher
	policy    *bluemonday.Policy
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs the checkout service.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil || deps.Markets == nil || deps.Orders == nil {
		return nil, errors.New("checkout service: carts, markets and orders are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &checkoutService{
		carts:     deps.Carts,
		markets:   deps.Markets,
		orders:    deps.Orders,
		publisher: deps.Publisher,
		policy:    bluemonday.StrictPolicy(),
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// Submit validates the command for its market, reprices the cart for that market, submits the
// order and clears the cart. Event publication and cart clearing failures are logged only.
func (s *checkoutService) Submit(ctx context.Context, cmd CheckoutCommand) (OrderConfirmation, error) {
	market, err := s.markets.Resolve(cmd.Country)
	if err != nil {
		return OrderConfirmation{}, err
	}
	cmd = s.normalise(cmd)
	if err := validateCheckout(cmd, market); err != nil {
		return OrderConfirmation{}, err
	}

	cart, err := s.carts.RefreshPrices(ctx, cmd.CartID, market.Country)
	if errors.Is(err, ErrRefreshSuperseded) {
		cart, err = s.carts.GetCart(ctx, cmd.CartID)
		if err == nil && cart.Market != market.Country {
			err = ErrCartMarketMismatch
		}
	}
	if err != nil {
		return OrderConfirmation{}, err
	}
	if len(cart.Lines) == 0 {
		return OrderConfirmation{}, &CheckoutValidationError{Fields: map[string]string{"cartId": "cart is empty"}}
	}

	order := Order{
		CartID:         cart.ID,
		Country:        market.Country,
		Currency:       market.Currency,
		Customer:       cmd.Customer,
		PaymentMethod:  cmd.PaymentMethod,
		Notes:          cmd.Notes,
		Subtotal:       cart.Subtotal(),
		IdempotencyKey: cmd.IdempotencyKey,
	}
	if currency := cart.Currency(); currency != "" {
		order.Currency = currency
	}
	for _, line := range cart.Lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			PizzaID:    line.Item.ID,
			Name:       line.Item.Name,
			SizeID:     line.Configuration.SizeID,
			ToppingIDs: append([]string(nil), line.Configuration.ToppingIDs...),
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
		})
	}

	confirmation, err := s.orders.CreateOrder(ctx, order)
	if err != nil {
		s.logger(ctx, "checkout.submit.failed", map[string]any{"cartId": cart.ID, "country": market.Country, "error": err.Error()})
		var rej rejection
		if errors.As(err, &rej) && !rej.Temporary() {
			return OrderConfirmation{}, fmt.Errorf("%w: %v", ErrCheckoutRejected, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return OrderConfirmation{}, ctxErr
		}
		return OrderConfirmation{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	if confirmation.CreatedAt.IsZero() {
		confirmation.CreatedAt = s.now()
	}

	s.publish(ctx, cart, confirmation, cmd.IdempotencyKey)
	if err := s.carts.Clear(ctx, cart.ID); err != nil {
		s.logger(ctx, "checkout.cart_clear.failed", map[string]any{"cartId": cart.ID, "error": err.Error()})
	}
	s.logger(ctx, "checkout.submitted", map[string]any{
		"cartId":  cart.ID,
		"orderId": confirmation.OrderID,
		"country": market.Country,
		"total":   confirmation.Total.String(),
	})
	return confirmation, nil
}

func (s *checkoutService) publish(ctx context.Context, cart Cart, confirmation OrderConfirmation, key string) {
	if s.publisher == nil {
		return
	}
	event := OrderConfirmedEvent{
		Type:           OrderConfirmedEventType,
		OrderID:        confirmation.OrderID,
		CartID:         cart.ID,
		Country:        confirmation.Country,
		Currency:       confirmation.Currency,
		Total:          confirmation.Total.String(),
		ItemCount:      cart.ItemCount(),
		OccurredAt:     s.now(),
		IdempotencyKey: key,
	}
	if _, err := s.publisher.PublishOrderConfirmed(ctx, event); err != nil {
		s.logger(ctx, "checkout.publish.failed", map[string]any{"orderId": confirmation.OrderID, "error": err.Error()})
	}
}

func (s *checkoutService) normalise(cmd CheckoutCommand) CheckoutCommand {
	cmd.CartID = strings.TrimSpace(cmd.CartID)
	cmd.PaymentMethod = strings.ToLower(strings.TrimSpace(cmd.PaymentMethod))
	cmd.IdempotencyKey = strings.TrimSpace(cmd.IdempotencyKey)
	cmd.Customer.Name = s.plainText(cmd.Customer.Name)
	cmd.Customer.Address = s.plainText(cmd.Customer.Address)
	cmd.Customer.Phone = strings.TrimSpace(cmd.Customer.Phone)
	cmd.Customer.PostalCode = strings.ToUpper(strings.TrimSpace(cmd.Customer.PostalCode))
	cmd.Notes = s.plainText(cmd.Notes)
	return cmd
}

// plainText strips markup and collapses whitespace, keeping characters such as "&" readable.
func (s *checkoutService) plainText(value string) string {
	cleaned := html.UnescapeString(s.policy.Sanitize(value))
	return strings.Join(strings.Fields(cleaned), " ")
}

func validateCheckout(cmd CheckoutCommand, market Market) error {
	problems := make(map[string]string)
	if cmd.CartID == "" {
		problems["cartId"] = "is required"
	}
	switch {
	case cmd.Customer.Name == "":
		problems["customer.name"] = "is required"
	case len(cmd.Customer.Name) > maxCustomerNameLength:
		problems["customer.name"] = "is too long"
	}
	switch {
	case cmd.Customer.Address == "":
		problems["customer.address"] = "is required"
	case len(cmd.Customer.Address) > maxAddressLength:
		problems["customer.address"] = "is too long"
	}
	if !phonePattern.MatchString(cmd.Customer.Phone) {
		problems["customer.phone"] = "must be a phone number"
	}
	if pattern, ok := postalCodePatterns[market.Country]; ok {
		if !pattern.MatchString(cmd.Customer.PostalCode) {
			problems["customer.postalCode"] = "is not valid for " + market.Country
		}
	}
	if _, ok := paymentMethods[cmd.PaymentMethod]; !ok {
		problems["paymentMethod"] = "must be cash or card"
	}
	if len(cmd.Notes) > maxNotesLength {
		problems["notes"] = "is too long"
	}
	if len(problems) > 0 {
		return &CheckoutValidationError{Fields: problems}
	}
	return nil
}
