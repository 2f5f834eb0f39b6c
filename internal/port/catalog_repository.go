package port

import (
	"context"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
)

type CatalogRepository interface {
	// GetProduct returns an active product or domain.ErrProductNotFound
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)

	// ListProducts returns the active products among ids; missing ids are omitted
	ListProducts(ctx context.Context, ids []int64) ([]domain.Product, error)
}
