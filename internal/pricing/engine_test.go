package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/omnipizza/storefront/internal/domain"
	"github.com/omnipizza/storefront/internal/menu"
)

func size(id, usd string) domain.SizeOption {
	return domain.SizeOption{ID: id, USDSurcharge: decimal.RequireFromString(usd)}
}

func TestComputeUnitPriceScenarios(t *testing.T) {
	cases := []struct {
		name     string
		it       domain.CatalogItem
		size     domain.SizeOption
		toppings int
		want     int64
	}{
		{"base only", item("120", "8"), size("small", "0"), 0, 120},
		{"size and toppings", item("120", "8"), size("large", "3"), 2, 195},
		{"missing usd price", item("50", "0"), size("family", "4"), 3, 57},
	}
	for _, tc := range cases {
		got := ComputeUnitPrice(tc.it, tc.size, tc.toppings)
		if !got.Equal(decimal.NewFromInt(tc.want)) {
			t.Fatalf("%s: got %s, want %d", tc.name, got, tc.want)
		}
	}
}

func TestComputeUnitPriceDegradesMalformedInput(t *testing.T) {
	it := item("-10", "8")
	got := ComputeUnitPrice(it, size("small", "0"), -4)
	if !got.IsZero() {
		t.Fatalf("expected 0, got %s", got)
	}
}

func TestComputeUnitPriceMonotonicInToppings(t *testing.T) {
	it := item("189", "11")
	sz := size("medium", "2")
	prev := ComputeUnitPrice(it, sz, 0)
	for count := 1; count <= 10; count++ {
		got := ComputeUnitPrice(it, sz, count)
		if got.LessThan(prev) {
			t.Fatalf("price decreased at %d toppings: %s < %s", count, got, prev)
		}
		prev = got
	}
}

func TestComputeUnitPriceIdempotent(t *testing.T) {
	it := item("17.99", "20")
	sz := size("large", "4")
	first := ComputeUnitPrice(it, sz, 5)
	second := ComputeUnitPrice(it, sz, 5)
	if !first.Equal(second) {
		t.Fatalf("expected identical results, got %s and %s", first, second)
	}
}

func TestBreakdownTerms(t *testing.T) {
	b := Breakdown(item("120", "8"), size("large", "3"), 2)
	if !b.Rate.Equal(decimal.NewFromInt(15)) || !b.SizeSurcharge.Equal(decimal.NewFromInt(45)) ||
		!b.ToppingUnit.Equal(decimal.NewFromInt(15)) || !b.ToppingsTotal.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected breakdown: %+v", b)
	}
	if b.ToppingCount != 2 || b.Currency != "MXN" {
		t.Fatalf("unexpected breakdown metadata: %+v", b)
	}
}

func TestEngineResolvesUnknownSizeToDefault(t *testing.T) {
	engine := NewEngine(menu.MustDefault())
	it := item("120", "8")

	stale := engine.Price(it, domain.PizzaConfiguration{SizeID: "retired"})
	small := engine.Price(it, domain.PizzaConfiguration{SizeID: "small"})
	if !stale.Equal(small) {
		t.Fatalf("expected stale size to price like the default size, got %s vs %s", stale, small)
	}
}

func TestRepriceLinesKeepsConfiguration(t *testing.T) {
	engine := NewEngine(menu.MustDefault())
	mx := item("120", "8")
	lines := []domain.CartLine{{
		ID:            "line-1",
		Item:          mx,
		Configuration: domain.PizzaConfiguration{SizeID: "medium", ToppingIDs: []string{"ham", "olives"}},
		UnitPrice:     engine.Price(mx, domain.PizzaConfiguration{SizeID: "medium", ToppingIDs: []string{"ham", "olives"}}),
		Quantity:      2,
		Currency:      "MXN",
	}, {
		ID:            "line-2",
		Item:          domain.CatalogItem{ID: "seasonal", Price: decimal.NewFromInt(90), BasePrice: decimal.NewFromInt(6), Currency: "MXN"},
		Configuration: domain.PizzaConfiguration{SizeID: "small"},
		UnitPrice:     decimal.NewFromInt(90),
		Quantity:      1,
		Currency:      "MXN",
	}}

	us := domain.CatalogItem{ID: "margherita", Price: decimal.NewFromInt(8), BasePrice: decimal.NewFromInt(8), Currency: "USD", CurrencySymbol: "$"}
	out := engine.RepriceLines(lines, []domain.CatalogItem{us})

	// medium (+2 USD) and two toppings at rate 1.
	if !out[0].UnitPrice.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("expected repriced unit price 12, got %s", out[0].UnitPrice)
	}
	if out[0].Currency != "USD" || out[0].CurrencySymbol != "$" {
		t.Fatalf("expected currency metadata to follow the fresh item, got %+v", out[0])
	}
	if out[0].Configuration.SizeID != "medium" || len(out[0].Configuration.ToppingIDs) != 2 || out[0].Quantity != 2 {
		t.Fatalf("configuration must be untouched: %+v", out[0])
	}
	if !out[1].UnitPrice.Equal(decimal.NewFromInt(90)) || out[1].Currency != "MXN" {
		t.Fatalf("missing item should keep its snapshot: %+v", out[1])
	}
	if !lines[0].UnitPrice.Equal(decimal.NewFromInt(120 + 30 + 30)) {
		t.Fatalf("input lines must not be mutated, got %s", lines[0].UnitPrice)
	}
}
