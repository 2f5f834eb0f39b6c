package port

import (
	"context"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
)

type OrderRepository interface {
	// GetOrder returns the user's order with items, or domain.ErrOrderNotFound
	GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error)

	// ListOrders returns the user's orders newest first, without items
	ListOrders(ctx context.Context, userID string, limit, offset int) ([]domain.Order, error)
}
