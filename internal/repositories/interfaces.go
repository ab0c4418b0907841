package repositories

import (
	"context"
	"time"

	"github.com/omnipizza/storefront/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository persists carts with optimistic concurrency on UpdatedAt.
type CartRepository interface {
	// GetCart returns a RepositoryError with IsNotFound for unknown carts.
	GetCart(ctx context.Context, cartID string) (domain.Cart, error)
	// SaveCart writes the whole cart. When expectedUpdatedAt is non-nil the stored cart must still
	// carry that UpdatedAt (zero means "must not exist yet"); otherwise IsConflict is reported.
	// The returned cart carries the new UpdatedAt.
	SaveCart(ctx context.Context, cart domain.Cart, expectedUpdatedAt *time.Time) (domain.Cart, error)
	DeleteCart(ctx context.Context, cartID string) error
}

// HealthRepository reports dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
