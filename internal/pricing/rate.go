package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/omnipizza/storefront/internal/domain"
)

// divisionPrecision is the number of fractional digits kept when dividing local by USD prices.
const divisionPrecision = 16

var one = decimal.NewFromInt(1)

// DeriveRate returns the implied local-currency-per-USD rate of a catalog item. Items without a
// positive local and USD price fall back to the identity rate, which leaves USD surcharges
// unconverted.
func DeriveRate(item domain.CatalogItem) decimal.Decimal {
	if !item.Price.IsPositive() || !item.BasePrice.IsPositive() {
		return one
	}
	return item.Price.DivRound(item.BasePrice, divisionPrecision)
}

// ConvertUSDToLocal converts a USD amount into whole units of the item's local currency,
// rounding up so fractional units are never undercharged.
func ConvertUSDToLocal(usd decimal.Decimal, item domain.CatalogItem) decimal.Decimal {
	if !usd.IsPositive() {
		return decimal.Zero
	}
	if !item.Price.IsPositive() || !item.BasePrice.IsPositive() {
		return usd.Ceil()
	}
	// usd * (price / basePrice), multiplied first to keep exact rates exact.
	return usd.Mul(item.Price).DivRound(item.BasePrice, divisionPrecision).Ceil()
}
