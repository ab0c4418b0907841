// Package memory holds in-process repositories used when no Firestore project is configured.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/omnipizza/storefront/internal/domain"
	"github.com/omnipizza/storefront/internal/repositories"
)

// CartRepository keeps carts in a map guarded by a mutex.
type CartRepository struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
	now   func() time.Time
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository returns an empty in-memory cart store. A nil clock uses time.Now.
func NewCartRepository(clock func() time.Time) *CartRepository {
	if clock == nil {
		clock = time.Now
	}
	return &CartRepository{carts: make(map[string]domain.Cart), now: clock}
}

func (r *CartRepository) GetCart(_ context.Context, cartID string) (domain.Cart, error) {
	cartID = strings.TrimSpace(cartID)
	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[cartID]
	if !ok {
		return domain.Cart{}, repositories.NewNotFoundError("carts.get", "cart "+cartID+" not found")
	}
	return cart.Clone(), nil
}

func (r *CartRepository) SaveCart(_ context.Context, cart domain.Cart, expectedUpdatedAt *time.Time) (domain.Cart, error) {
	cart.ID = strings.TrimSpace(cart.ID)
	if cart.ID == "" {
		return domain.Cart{}, repositories.NewNotFoundError("carts.save", "cart id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.carts[cart.ID]
	if expectedUpdatedAt != nil {
		switch {
		case expectedUpdatedAt.IsZero() && exists:
			return domain.Cart{}, repositories.NewConflictError("carts.save", "cart "+cart.ID+" already exists")
		case !expectedUpdatedAt.IsZero() && (!exists || !existing.UpdatedAt.Equal(*expectedUpdatedAt)):
			return domain.Cart{}, repositories.NewConflictError("carts.save", "cart "+cart.ID+" was modified concurrently")
		}
	}

	now := repositories.NextVersion(r.now(), existing.UpdatedAt)
	if exists {
		cart.CreatedAt = existing.CreatedAt
	} else if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now

	stored := cart.Clone()
	r.carts[cart.ID] = stored
	return stored.Clone(), nil
}

func (r *CartRepository) DeleteCart(_ context.Context, cartID string) error {
	r.mu.Lock()
	delete(r.carts, strings.TrimSpace(cartID))
	r.mu.Unlock()
	return nil
}
