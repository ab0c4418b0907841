package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/omnipizza/storefront/internal/domain"
	"github.com/omnipizza/storefront/internal/menu"
)

// ToppingUSDSurcharge is the flat USD price of one topping, whichever topping it is.
var ToppingUSDSurcharge = decimal.NewFromInt(1)

// ComputeUnitPrice prices one pizza: the local base price, plus the converted size surcharge,
// plus the converted per-topping surcharge times the topping count. Malformed inputs degrade to
// zero terms rather than failing.
func ComputeUnitPrice(item domain.CatalogItem, size domain.SizeOption, toppingCount int) decimal.Decimal {
	return Breakdown(item, size, toppingCount).UnitPrice
}

// Breakdown returns every term used by ComputeUnitPrice.
func Breakdown(item domain.CatalogItem, size domain.SizeOption, toppingCount int) domain.PriceBreakdown {
	if toppingCount < 0 {
		toppingCount = 0
	}
	base := NonNegative(item.Price)
	sizeAdd := ConvertUSDToLocal(size.USDSurcharge, item)
	toppingUnit := ConvertUSDToLocal(ToppingUSDSurcharge, item)
	toppingsAdd := toppingUnit.Mul(decimal.NewFromInt(int64(toppingCount)))

	return domain.PriceBreakdown{
		Currency:      item.Currency,
		Rate:          DeriveRate(item),
		Base:          base,
		SizeSurcharge: sizeAdd,
		ToppingUnit:   toppingUnit,
		ToppingCount:  toppingCount,
		ToppingsTotal: toppingsAdd,
		UnitPrice:     base.Add(sizeAdd).Add(toppingsAdd),
	}
}

// Engine prices configurations against the option catalog, resolving stale size references to
// the default size.
type Engine struct {
	options *menu.Catalog
}

// NewEngine binds the pricing functions to an option catalog.
func NewEngine(options *menu.Catalog) *Engine {
	return &Engine{options: options}
}

// Options exposes the catalog the engine resolves sizes against.
func (e *Engine) Options() *menu.Catalog {
	return e.options
}

// Price computes the unit price of a configuration for an item.
func (e *Engine) Price(item domain.CatalogItem, cfg domain.PizzaConfiguration) decimal.Decimal {
	return e.Quote(item, cfg).UnitPrice
}

// Quote computes the full breakdown of a configuration for an item.
func (e *Engine) Quote(item domain.CatalogItem, cfg domain.PizzaConfiguration) domain.PriceBreakdown {
	size := e.options.ResolveSize(cfg.SizeID)
	return Breakdown(item, size, cfg.ToppingCount())
}

// RepriceLines recomputes every line against fresh catalog data. Items missing from fresh keep
// the line's stored snapshot; sizes that no longer exist resolve to the default size for pricing.
// Configurations are never modified.
func (e *Engine) RepriceLines(lines []domain.CartLine, fresh []domain.CatalogItem) []domain.CartLine {
	if len(lines) == 0 {
		return lines
	}
	index := make(map[string]domain.CatalogItem, len(fresh))
	for _, item := range fresh {
		index[item.ID] = item
	}

	out := make([]domain.CartLine, len(lines))
	for idx, line := range lines {
		item, ok := index[line.Item.ID]
		if !ok {
			item = line.Item
		}
		line.Item = item
		line.Configuration = line.Configuration.Clone()
		line.UnitPrice = e.Price(item, line.Configuration)
		line.Currency = item.Currency
		line.CurrencySymbol = item.CurrencySymbol
		out[idx] = line
	}
	return out
}
