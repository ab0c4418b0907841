package pizzaapi

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/omnipizza/storefront/internal/domain"
)

// FixturePizza is a catalog entry priced in USD.
type FixturePizza struct {
	ID          string
	Name        string
	Description string
	Image       string
	USDPrice    decimal.Decimal
}

// FixtureMarket converts USD fixture prices into one market's currency.
type FixtureMarket struct {
	Currency string
	Symbol   string
	Rate     decimal.Decimal
}

// Fixtures is the demo catalog served when no API base URL is configured.
type Fixtures struct {
	Catalog []FixturePizza
	Markets map[string]FixtureMarket
}

// DefaultFixtures returns the built-in demo catalog for MX, US, CH and JP.
func DefaultFixtures() Fixtures {
	usd := func(v string) decimal.Decimal { return decimal.RequireFromString(v) }
	return Fixtures{
		Catalog: []FixturePizza{
			{ID: "margherita", Name: "Margherita", Description: "Tomato, mozzarella, basil", Image: "/img/margherita.png", USDPrice: usd("8")},
			{ID: "pepperoni", Name: "Pepperoni", Description: "Tomato, mozzarella, pepperoni", Image: "/img/pepperoni.png", USDPrice: usd("9")},
			{ID: "hawaiian", Name: "Hawaiian", Description: "Ham and pineapple", Image: "/img/hawaiian.png", USDPrice: usd("9.5")},
			{ID: "veggie", Name: "Veggie", Description: "Peppers, onions, mushrooms, olives", Image: "/img/veggie.png", USDPrice: usd("8.5")},
			{ID: "quattro-formaggi", Name: "Quattro Formaggi", Description: "Four cheeses", Image: "/img/quattro-formaggi.png", USDPrice: usd("10")},
		},
		Markets: map[string]FixtureMarket{
			"MX": {Currency: "MXN", Symbol: "$", Rate: usd("17")},
			"US": {Currency: "USD", Symbol: "$", Rate: usd("1")},
			"CH": {Currency: "CHF", Symbol: "CHF", Rate: usd("0.9")},
			"JP": {Currency: "JPY", Symbol: "¥", Rate: usd("150")},
		},
	}
}

// Pizzas prices the fixture catalog for country. Unknown countries get USD prices.
func (f Fixtures) Pizzas(country string) []domain.CatalogItem {
	market, ok := f.Markets[strings.ToUpper(country)]
	if !ok {
		market = FixtureMarket{Currency: "USD", Symbol: "$", Rate: decimal.NewFromInt(1)}
	}
	items := make([]domain.CatalogItem, 0, len(f.Catalog))
	for _, p := range f.Catalog {
		items = append(items, domain.CatalogItem{
			ID:             p.ID,
			Name:           p.Name,
			Description:    p.Description,
			Image:          p.Image,
			Price:          p.USDPrice.Mul(market.Rate).Ceil(),
			BasePrice:      p.USDPrice,
			Currency:       market.Currency,
			CurrencySymbol: market.Symbol,
		})
	}
	return items
}

// Confirm accepts every order in demo mode.
func (f Fixtures) Confirm(order domain.Order, now time.Time) domain.OrderConfirmation {
	count := 0
	for _, line := range order.Lines {
		count += line.Quantity
	}
	return domain.OrderConfirmation{
		OrderID:   "ord_" + strings.ToLower(ulid.Make().String()),
		Status:    "confirmed",
		Country:   strings.ToUpper(order.Country),
		Currency:  order.Currency,
		Subtotal:  order.Subtotal,
		Total:     order.Subtotal,
		ItemCount: count,
		CreatedAt: now,
	}
}
