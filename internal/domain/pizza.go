package domain

import "github.com/shopspring/decimal"

// CatalogItem is a pizza as priced by the catalog API for a single market.
type CatalogItem struct {
	ID             string
	Name           string
	Description    string
	Image          string
	Price          decimal.Decimal
	BasePrice      decimal.Decimal
	Currency       string
	CurrencySymbol string
}

// SizeOption describes a selectable pizza size and its USD surcharge over the baseline size.
type SizeOption struct {
	ID           string
	Label        string
	USDSurcharge decimal.Decimal
}

// ToppingItem is a single selectable topping.
type ToppingItem struct {
	ID    string
	Label string
}

// ToppingGroup groups toppings for display. Grouping never affects price.
type ToppingGroup struct {
	ID       string
	Label    string
	Toppings []ToppingItem
}

// PizzaConfiguration is the size and topping selection attached to a cart line.
type PizzaConfiguration struct {
	SizeID     string
	ToppingIDs []string
}

// Clone returns a deep copy so callers can mutate the topping slice safely.
func (c PizzaConfiguration) Clone() PizzaConfiguration {
	dup := c
	if c.ToppingIDs != nil {
		dup.ToppingIDs = append([]string(nil), c.ToppingIDs...)
	}
	return dup
}

// ToppingCount reports how many toppings are selected.
func (c PizzaConfiguration) ToppingCount() int {
	return len(c.ToppingIDs)
}

// PricedConfiguration is emitted when a customization session is confirmed.
type PricedConfiguration struct {
	SizeID     string
	ToppingIDs []string
	UnitPrice  decimal.Decimal
}

// Configuration strips the price from the priced configuration.
func (p PricedConfiguration) Configuration() PizzaConfiguration {
	return PizzaConfiguration{SizeID: p.SizeID, ToppingIDs: append([]string(nil), p.ToppingIDs...)}
}
