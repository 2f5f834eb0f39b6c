package service

import (
	"context"
	"fmt"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
	"github.com/rl1809/storefront-checkout/internal/port"
)

// CartValidator reconciles a session cart against an unlocked catalog read.
// Its result is advisory: stock can change before checkout takes its locks.
type CartValidator struct {
	catalog port.CatalogRepository
}

func NewCartValidator(catalog port.CatalogRepository) *CartValidator {
	return &CartValidator{catalog: catalog}
}

// Snapshot reads the current catalog state of every product in the cart.
func (v *CartValidator) Snapshot(ctx context.Context, cart *domain.Cart) (domain.Catalog, error) {
	if cart.IsEmpty() {
		return domain.Catalog{}, nil
	}
	products, err := v.catalog.ListProducts(ctx, cart.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return domain.NewCatalog(products), nil
}

func (v *CartValidator) Validate(ctx context.Context, cart *domain.Cart) (*domain.Cart, []domain.Issue, error) {
	catalog, err := v.Snapshot(ctx, cart)
	if err != nil {
		return nil, nil, err
	}
	cleaned, issues := CleanCart(cart, catalog)
	return cleaned, issues, nil
}

// CleanCart returns a copy of cart with every entry made consistent with
// catalog, plus one issue per adjusted entry in product id order. The input
// cart is not modified.
func CleanCart(cart *domain.Cart, catalog domain.Catalog) (*domain.Cart, []domain.Issue) {
	cleaned := domain.NewCart()
	var issues []domain.Issue

	for _, id := range cart.ProductIDs() {
		qty := cart.Items[id]
		if qty <= 0 {
			issues = append(issues, domain.Issue{ProductID: id, Reason: domain.IssueInvalidQuantity, Requested: qty})
			continue
		}

		p, ok := catalog[id]
		if !ok {
			issues = append(issues, domain.Issue{ProductID: id, Reason: domain.IssueProductRemoved, Requested: qty})
			continue
		}

		if qty > p.Stock {
			issues = append(issues, domain.Issue{
				ProductID: id,
				Reason:    domain.IssueQuantityClamped,
				Requested: qty,
				Available: max(p.Stock, 0),
			})
			if p.Stock <= 0 {
				continue
			}
			qty = p.Stock
		}

		cleaned.Items[id] = qty
	}

	return cleaned, issues
}
