package port

import (
	"context"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
)

// CartRepository keeps ephemeral session carts. Entries expire according to
// the store's expiry policy.
type CartRepository interface {
	// Get returns the session's cart, or an empty cart if none exists
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)

	// Save stores the cart and refreshes its expiry; an empty cart is deleted
	Save(ctx context.Context, sessionID string, cart *domain.Cart) error

	Delete(ctx context.Context, sessionID string) error
}
