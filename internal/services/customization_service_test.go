package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/omnipizza/storefront/internal/customization"
	"github.com/omnipizza/storefront/internal/domain"
)

type customizationFixture struct {
	cartFixture
	service CustomizationStore
	now     *time.Time
}

func newCustomizationFixture(t *testing.T) customizationFixture {
	t.Helper()
	carts := newCartFixture(t)
	now := testNow
	ids := 0
	svc, err := NewCustomizationService(CustomizationServiceDeps{
		Catalog:    carts.catalog,
		Carts:      carts.service,
		Markets:    carts.markets,
		Options:    carts.options,
		SessionTTL: 10 * time.Minute,
		Clock:      func() time.Time { return now },
		IDGenerator: func() string {
			ids++
			return "sess-" + string(rune('0'+ids))
		},
	})
	if err != nil {
		t.Fatalf("NewCustomizationService: %v", err)
	}
	return customizationFixture{cartFixture: carts, service: svc, now: &now}
}

func TestCustomizationServiceStartSeedsDefaults(t *testing.T) {
	f := newCustomizationFixture(t)
	view, err := f.service.Start(context.Background(), StartCustomizationCommand{PizzaID: "margherita", Country: "MX"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if view.ID == "" || view.State != customization.StateEditing || view.Configuration.SizeID != "small" {
		t.Fatalf("unexpected view %+v", view)
	}
	if len(view.Configuration.ToppingIDs) != 0 || !view.Quote.UnitPrice.Equal(dec("120")) || view.MaxToppings != 10 {
		t.Fatalf("unexpected defaults %+v", view)
	}

	if _, err := f.service.Start(context.Background(), StartCustomizationCommand{PizzaID: "calzone", Country: "MX"}); !errors.Is(err, ErrCatalogItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
}

func TestCustomizationServiceLivePriceAndConfirm(t *testing.T) {
	f := newCustomizationFixture(t)
	ctx := context.Background()
	view, _ := f.service.Start(ctx, StartCustomizationCommand{PizzaID: "margherita", Country: "MX"})

	if _, err := f.service.SelectSize(ctx, view.ID, "medium"); err != nil {
		t.Fatalf("SelectSize: %v", err)
	}
	f.service.ToggleTopping(ctx, view.ID, "ham")
	updated, err := f.service.ToggleTopping(ctx, view.ID, "olives")
	if err != nil {
		t.Fatalf("ToggleTopping: %v", err)
	}
	if !updated.Quote.UnitPrice.Equal(dec("180")) {
		t.Fatalf("expected live price 180, got %s", updated.Quote.UnitPrice)
	}

	result, err := f.service.Confirm(ctx, ConfirmCustomizationCommand{SessionID: view.ID, CartID: "c1", Quantity: 2})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if result.Cart.ID != "c1" || len(result.Cart.Lines) != 1 || result.LineID != result.Cart.Lines[0].ID {
		t.Fatalf("unexpected confirm result %+v", result)
	}
	if result.Cart.Lines[0].Quantity != 2 || !result.Priced.UnitPrice.Equal(dec("180")) {
		t.Fatalf("unexpected line %+v", result.Cart.Lines[0])
	}

	if _, err := f.service.ToggleTopping(ctx, view.ID, "bacon"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected closed session, got %v", err)
	}
	if _, err := f.service.Confirm(ctx, ConfirmCustomizationCommand{SessionID: view.ID}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected closed session on second confirm, got %v", err)
	}
}

func TestCustomizationServiceConfirmUsesCurrentCatalogPrice(t *testing.T) {
	f := newCustomizationFixture(t)
	ctx := context.Background()
	view, _ := f.service.Start(ctx, StartCustomizationCommand{PizzaID: "margherita", Country: "MX"})

	raised := mxItem("margherita")
	raised.Price = dec("135")
	raised.BasePrice = dec("9")
	f.catalog.mu.Lock()
	f.catalog.items["MX"] = []domain.CatalogItem{raised}
	f.catalog.mu.Unlock()

	result, err := f.service.Confirm(ctx, ConfirmCustomizationCommand{SessionID: view.ID, CartID: "c1"})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !result.Priced.UnitPrice.Equal(dec("135")) || !result.Cart.Lines[0].Item.Price.Equal(dec("135")) {
		t.Fatalf("expected confirm to use the current item, got %+v", result.Priced)
	}
}

func TestCustomizationServiceEditModeReplacesLine(t *testing.T) {
	f := newCustomizationFixture(t)
	ctx := context.Background()
	item := mxItem("margherita")
	cart, _ := f.cartFixture.service.AddLine(ctx, AddLineCommand{
		CartID:   "c1",
		Country:  "MX",
		Item:     item,
		Priced:   domain.PricedConfiguration{SizeID: "retired-size", ToppingIDs: []string{"ham", "unicorn", "ham"}},
		Quantity: 3,
	})
	lineID := cart.Lines[0].ID

	view, err := f.service.StartEdit(ctx, EditCustomizationCommand{CartID: "c1", LineID: lineID})
	if err != nil {
		t.Fatalf("StartEdit: %v", err)
	}
	if view.EditingLineID != lineID || view.Configuration.SizeID != "small" || len(view.Configuration.ToppingIDs) != 1 {
		t.Fatalf("edit mode must normalise the stored configuration, got %+v", view)
	}

	f.service.SelectSize(ctx, view.ID, "large")
	result, err := f.service.Confirm(ctx, ConfirmCustomizationCommand{SessionID: view.ID, CartID: "ignored"})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if len(result.Cart.Lines) != 1 || result.LineID != lineID {
		t.Fatalf("expected in-place replacement, got %+v", result.Cart.Lines)
	}
	line := result.Cart.Lines[0]
	if line.Quantity != 3 || line.Configuration.SizeID != "large" || !line.UnitPrice.Equal(dec("195")) {
		t.Fatalf("unexpected replaced line %+v", line)
	}

	if _, err := f.service.StartEdit(ctx, EditCustomizationCommand{CartID: "c1", LineID: "nope"}); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected missing line, got %v", err)
	}
}

func TestCustomizationServiceConfirmFailureReopensSession(t *testing.T) {
	f := newCustomizationFixture(t)
	ctx := context.Background()
	item := mxItem("margherita")
	if _, err := f.cartFixture.service.AddLine(ctx, AddLineCommand{CartID: "us-cart", Country: "US", Item: usItem("margherita"), Priced: f.priced(usItem("margherita"), "small")}); err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	view, _ := f.service.Start(ctx, StartCustomizationCommand{PizzaID: item.ID, Country: "MX"})
	f.service.ToggleTopping(ctx, view.ID, "bacon")

	if _, err := f.service.Confirm(ctx, ConfirmCustomizationCommand{SessionID: view.ID, CartID: "us-cart"}); !errors.Is(err, ErrCartMarketMismatch) {
		t.Fatalf("expected market mismatch, got %v", err)
	}
	reopened, err := f.service.Get(ctx, view.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if reopened.State != customization.StateEditing || len(reopened.Configuration.ToppingIDs) != 1 {
		t.Fatalf("expected session to be reopened with its selection, got %+v", reopened)
	}
}

func TestCustomizationServiceCancelAndSweep(t *testing.T) {
	f := newCustomizationFixture(t)
	ctx := context.Background()

	cancelled, _ := f.service.Start(ctx, StartCustomizationCommand{PizzaID: "margherita"})
	if err := f.service.Cancel(ctx, cancelled.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := f.service.Cancel(ctx, cancelled.ID); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected closed on second cancel, got %v", err)
	}

	idle, _ := f.service.Start(ctx, StartCustomizationCommand{PizzaID: "margherita"})
	active, _ := f.service.Start(ctx, StartCustomizationCommand{PizzaID: "margherita"})

	*f.now = f.now.Add(6 * time.Minute)
	f.service.ToggleTopping(ctx, active.ID, "ham")
	*f.now = f.now.Add(6 * time.Minute)

	if _, err := f.service.Get(ctx, idle.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected idle session to expire, got %v", err)
	}
	if removed := f.service.Sweep(*f.now); removed != 2 {
		t.Fatalf("expected cancelled and idle sessions swept, got %d", removed)
	}
	if _, err := f.service.Get(ctx, active.ID); err != nil {
		t.Fatalf("active session should survive: %v", err)
	}
}

func TestCustomizationServiceConcurrentAccessToOneSession(t *testing.T) {
	f := newCustomizationFixture(t)
	ctx := context.Background()
	view, err := f.service.Start(ctx, StartCustomizationCommand{PizzaID: "margherita", Country: "MX"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	sizes := []string{"small", "medium", "large", "family"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func(size string) {
			defer wg.Done()
			if _, err := f.service.SelectSize(ctx, view.ID, size); err != nil {
				t.Errorf("SelectSize: %v", err)
			}
		}(sizes[i%len(sizes)])
		go func() {
			defer wg.Done()
			if _, err := f.service.Get(ctx, view.ID); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := f.service.ToggleTopping(ctx, view.ID, "ham"); err != nil {
				t.Errorf("ToggleTopping: %v", err)
			}
		}()
	}
	wg.Wait()

	final, err := f.service.Get(ctx, view.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// eight toggles of the same topping cancel out
	if len(final.Configuration.ToppingIDs) != 0 {
		t.Fatalf("expected no toppings after an even number of toggles, got %v", final.Configuration.ToppingIDs)
	}
}

func TestCustomizationServiceReportsIgnoredToggles(t *testing.T) {
	f := newCustomizationFixture(t)
	ctx := context.Background()
	view, _ := f.service.Start(ctx, StartCustomizationCommand{PizzaID: "margherita", Country: "MX"})

	if view.ToggleApplied != nil {
		t.Fatalf("expected no toggle result outside ToggleTopping, got %v", *view.ToggleApplied)
	}
	applied, err := f.service.ToggleTopping(ctx, view.ID, "ham")
	if err != nil {
		t.Fatalf("ToggleTopping: %v", err)
	}
	if applied.ToggleApplied == nil || !*applied.ToggleApplied {
		t.Fatalf("expected ham toggle to apply, got %+v", applied.ToggleApplied)
	}

	unknown, err := f.service.ToggleTopping(ctx, view.ID, "pineapple-jam")
	if err != nil {
		t.Fatalf("ToggleTopping unknown: %v", err)
	}
	if unknown.ToggleApplied == nil || *unknown.ToggleApplied {
		t.Fatalf("expected unknown topping to be reported as ignored, got %+v", unknown.ToggleApplied)
	}
	if len(unknown.Configuration.ToppingIDs) != 1 {
		t.Fatalf("unknown topping must not change the selection, got %v", unknown.Configuration.ToppingIDs)
	}
}
