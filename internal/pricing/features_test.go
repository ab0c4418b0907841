package pricing_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"github.com/omnipizza/storefront/internal/domain"
	"github.com/omnipizza/storefront/internal/menu"
	"github.com/omnipizza/storefront/internal/pricing"
)

type pricingTestContext struct {
	engine    *pricing.Engine
	item      domain.CatalogItem
	size      domain.SizeOption
	breakdown domain.PriceBreakdown
	lines     []domain.CartLine
}

func (p *pricingTestContext) reset() {
	p.engine = pricing.NewEngine(menu.MustDefault())
	p.item = domain.CatalogItem{}
	p.size = domain.SizeOption{}
	p.breakdown = domain.PriceBreakdown{}
	p.lines = nil
}

func (p *pricingTestContext) aCatalogItemPriced(id string, price int, currency string, base int) error {
	p.item = domain.CatalogItem{
		ID:        id,
		Price:     decimal.NewFromInt(int64(price)),
		BasePrice: decimal.NewFromInt(int64(base)),
		Currency:  currency,
	}
	return nil
}

func (p *pricingTestContext) aSizeSurchargeOf(usd int) error {
	p.size = domain.SizeOption{ID: "test", USDSurcharge: decimal.NewFromInt(int64(usd))}
	return nil
}

func (p *pricingTestContext) iPriceItWithToppings(count int) error {
	p.breakdown = pricing.Breakdown(p.item, p.size, count)
	return nil
}

func (p *pricingTestContext) theDerivedRateIs(want int) error {
	return expectAmount("rate", p.breakdown.Rate, want)
}

func (p *pricingTestContext) theSizeSurchargeConvertsTo(want int) error {
	return expectAmount("size surcharge", p.breakdown.SizeSurcharge, want)
}

func (p *pricingTestContext) oneToppingConvertsTo(want int) error {
	return expectAmount("topping unit", p.breakdown.ToppingUnit, want)
}

func (p *pricingTestContext) theUnitPriceIs(want int) error {
	if err := expectAmount("unit price", p.breakdown.UnitPrice, want); err != nil {
		return err
	}
	// the convenience entry point must agree with the breakdown
	return expectAmount("unit price", pricing.ComputeUnitPrice(p.item, p.size, p.breakdown.ToppingCount), want)
}

func (p *pricingTestContext) aCartLine(id string, price int, currency string, base int, sizeID, toppings string) error {
	item := domain.CatalogItem{
		ID:        id,
		Price:     decimal.NewFromInt(int64(price)),
		BasePrice: decimal.NewFromInt(int64(base)),
		Currency:  currency,
	}
	cfg := domain.PizzaConfiguration{SizeID: sizeID, ToppingIDs: splitList(toppings)}
	p.lines = []domain.CartLine{{
		ID:            "line-1",
		Item:          item,
		Configuration: cfg,
		UnitPrice:     p.engine.Price(item, cfg),
		Quantity:      1,
		Currency:      currency,
	}}
	return nil
}

func (p *pricingTestContext) theCatalogIsRefreshed(id string, price int, currency string, base int) error {
	fresh := domain.CatalogItem{
		ID:        id,
		Price:     decimal.NewFromInt(int64(price)),
		BasePrice: decimal.NewFromInt(int64(base)),
		Currency:  currency,
	}
	p.lines = p.engine.RepriceLines(p.lines, []domain.CatalogItem{fresh})
	return nil
}

func (p *pricingTestContext) theCartLineUnitPriceIs(want int) error {
	return expectAmount("cart line unit price", p.lines[0].UnitPrice, want)
}

func (p *pricingTestContext) theCartLineCurrencyIs(want string) error {
	if got := p.lines[0].Currency; got != want {
		return fmt.Errorf("expected currency %s, got %s", want, got)
	}
	return nil
}

func (p *pricingTestContext) theCartLineKeeps(sizeID, toppings string) error {
	cfg := p.lines[0].Configuration
	if cfg.SizeID != sizeID {
		return fmt.Errorf("expected size %s, got %s", sizeID, cfg.SizeID)
	}
	if got := strings.Join(cfg.ToppingIDs, ","); got != toppings {
		return fmt.Errorf("expected toppings %s, got %s", toppings, got)
	}
	return nil
}

func expectAmount(label string, got decimal.Decimal, want int) error {
	if !got.Equal(decimal.NewFromInt(int64(want))) {
		return fmt.Errorf("expected %s %d, got %s", label, want, got)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &pricingTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	ctx.Step(`^a catalog item "([^"]*)" priced (\d+) ([A-Z]{3}) with a USD reference of (\d+)$`, tc.aCatalogItemPriced)
	ctx.Step(`^a size surcharge of (\d+) USD$`, tc.aSizeSurchargeOf)
	ctx.Step(`^a cart line for "([^"]*)" priced (\d+) ([A-Z]{3}) with a USD reference of (\d+) in size "([^"]*)" with toppings "([^"]*)"$`, tc.aCartLine)

	ctx.Step(`^I price it with (\d+) toppings$`, tc.iPriceItWithToppings)
	ctx.Step(`^the catalog is refreshed with "([^"]*)" priced (\d+) ([A-Z]{3}) with a USD reference of (\d+)$`, tc.theCatalogIsRefreshed)

	ctx.Step(`^the derived rate is (\d+)$`, tc.theDerivedRateIs)
	ctx.Step(`^the size surcharge converts to (\d+)$`, tc.theSizeSurchargeConvertsTo)
	ctx.Step(`^one topping converts to (\d+)$`, tc.oneToppingConvertsTo)
	ctx.Step(`^the unit price is (\d+)$`, tc.theUnitPriceIs)
	ctx.Step(`^the cart line unit price is (\d+)$`, tc.theCartLineUnitPriceIs)
	ctx.Step(`^the cart line currency is "([^"]*)"$`, tc.theCartLineCurrencyIs)
	ctx.Step(`^the cart line keeps size "([^"]*)" and toppings "([^"]*)"$`, tc.theCartLineKeeps)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"../../features/pricing.feature"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
