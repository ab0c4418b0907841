package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one configured pizza in a cart.
type CartLine struct {
	ID             string
	Item           CatalogItem
	Configuration  PizzaConfiguration
	UnitPrice      decimal.Decimal
	Quantity       int
	Currency       string
	CurrencySymbol string
	AddedAt        time.Time
}

// LineTotal multiplies the unit price by the quantity.
func (l CartLine) LineTotal() decimal.Decimal {
	if l.Quantity <= 0 {
		return decimal.Zero
	}
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart holds the lines a customer intends to order in one market.
type Cart struct {
	ID              string
	Market          string
	Lines           []CartLine
	PriceGeneration int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Subtotal sums all line totals.
func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

// ItemCount sums line quantities.
func (c Cart) ItemCount() int {
	count := 0
	for _, line := range c.Lines {
		count += line.Quantity
	}
	return count
}

// Currency reports the currency of the first line, or an empty string for an empty cart.
func (c Cart) Currency() string {
	if len(c.Lines) == 0 {
		return ""
	}
	return c.Lines[0].Currency
}

// FindLine returns the index of the line with the given ID, or -1.
func (c Cart) FindLine(lineID string) int {
	for idx, line := range c.Lines {
		if line.ID == lineID {
			return idx
		}
	}
	return -1
}

// Clone returns a deep copy of the cart.
func (c Cart) Clone() Cart {
	dup := c
	if c.Lines != nil {
		dup.Lines = make([]CartLine, len(c.Lines))
		for idx, line := range c.Lines {
			line.Configuration = line.Configuration.Clone()
			dup.Lines[idx] = line
		}
	}
	return dup
}
