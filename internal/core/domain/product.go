package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        int64
	Name      string
	Price     decimal.Decimal
	Stock     int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Catalog is a point-in-time view of products keyed by id. Missing keys mean
// the product no longer exists (or is inactive).
type Catalog map[int64]Product

func NewCatalog(products []Product) Catalog {
	c := make(Catalog, len(products))
	for _, p := range products {
		if p.Active {
			c[p.ID] = p
		}
	}
	return c
}
