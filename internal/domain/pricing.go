package domain

import "github.com/shopspring/decimal"

// PriceBreakdown captures every term of a unit price so clients can display how it was built.
type PriceBreakdown struct {
	Currency      string
	Rate          decimal.Decimal
	Base          decimal.Decimal
	SizeSurcharge decimal.Decimal
	ToppingUnit   decimal.Decimal
	ToppingCount  int
	ToppingsTotal decimal.Decimal
	UnitPrice     decimal.Decimal
}

// CartTotals aggregates the displayed totals of a cart.
type CartTotals struct {
	Currency  string
	Subtotal  decimal.Decimal
	ItemCount int
	LineCount int
}
