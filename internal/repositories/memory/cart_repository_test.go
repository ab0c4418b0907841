package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omnipizza/storefront/internal/domain"
	"github.com/omnipizza/storefront/internal/repositories"
)

func TestCartRepositoryRoundTrip(t *testing.T) {
	now := time.Date(2026, time.May, 2, 10, 0, 0, 0, time.UTC)
	repo := NewCartRepository(func() time.Time { return now })
	ctx := context.Background()

	zero := time.Time{}
	saved, err := repo.SaveCart(ctx, domain.Cart{
		ID:     "cart-1",
		Market: "MX",
		Lines: []domain.CartLine{{
			ID:            "line-1",
			Configuration: domain.PizzaConfiguration{SizeID: "medium", ToppingIDs: []string{"ham"}},
			Quantity:      1,
		}},
	}, &zero)
	if err != nil {
		t.Fatalf("SaveCart: %v", err)
	}
	if !saved.UpdatedAt.Equal(now) || !saved.CreatedAt.Equal(now) {
		t.Fatalf("expected timestamps from clock, got %+v", saved)
	}

	saved.Lines[0].Configuration.ToppingIDs[0] = "bacon"
	got, err := repo.GetCart(ctx, "cart-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if got.Lines[0].Configuration.ToppingIDs[0] != "ham" {
		t.Fatalf("stored cart must not alias returned cart")
	}

	second, err := repo.SaveCart(ctx, got, &got.UpdatedAt)
	if err != nil {
		t.Fatalf("SaveCart update: %v", err)
	}
	if !second.UpdatedAt.After(got.UpdatedAt) {
		t.Fatalf("expected version to advance with a frozen clock")
	}
}

func TestCartRepositoryConflicts(t *testing.T) {
	repo := NewCartRepository(nil)
	ctx := context.Background()

	zero := time.Time{}
	first, err := repo.SaveCart(ctx, domain.Cart{ID: "cart-1"}, &zero)
	if err != nil {
		t.Fatalf("SaveCart: %v", err)
	}

	_, err = repo.SaveCart(ctx, domain.Cart{ID: "cart-1"}, &zero)
	assertConflict(t, err)

	stale := first.UpdatedAt.Add(-time.Second)
	_, err = repo.SaveCart(ctx, first, &stale)
	assertConflict(t, err)

	if _, err := repo.SaveCart(ctx, first, nil); err != nil {
		t.Fatalf("unconditional save should succeed: %v", err)
	}
}

func TestCartRepositoryNotFoundAndDelete(t *testing.T) {
	repo := NewCartRepository(nil)
	ctx := context.Background()

	_, err := repo.GetCart(ctx, "missing")
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := repo.SaveCart(ctx, domain.Cart{ID: "cart-1"}, nil); err != nil {
		t.Fatalf("SaveCart: %v", err)
	}
	if err := repo.DeleteCart(ctx, "cart-1"); err != nil {
		t.Fatalf("DeleteCart: %v", err)
	}
	if _, err := repo.GetCart(ctx, "cart-1"); err == nil {
		t.Fatal("expected cart to be gone")
	}
}

func assertConflict(t *testing.T, err error) {
	t.Helper()
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict, got %v", err)
	}
}
