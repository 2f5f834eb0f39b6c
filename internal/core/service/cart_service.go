package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
	"github.com/rl1809/storefront-checkout/internal/core/pricing"
	"github.com/rl1809/storefront-checkout/internal/port"
)

type CartLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
	Stock     int             `json:"stock"`
}

// CartView is what every cart operation hands back for display.
type CartView struct {
	Lines   []CartLine      `json:"lines"`
	Total   decimal.Decimal `json:"total"`
	Count   int             `json:"count"`
	Notices []domain.Issue  `json:"notices,omitempty"`
}

type CartService struct {
	carts     port.CartRepository
	catalog   port.CatalogRepository
	validator *CartValidator
}

func NewCartService(carts port.CartRepository, catalog port.CatalogRepository) *CartService {
	return &CartService{
		carts:     carts,
		catalog:   catalog,
		validator: NewCartValidator(catalog),
	}
}

func (s *CartService) View(ctx context.Context, sess domain.Session) (*CartView, error) {
	if sess.ID == "" {
		return nil, domain.ErrMissingSession
	}
	cart, err := s.carts.Get(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return s.view(ctx, cart)
}

// Add merges qty of an existing, active product into the cart.
func (s *CartService) Add(ctx context.Context, sess domain.Session, productID int64, qty int) (*CartView, error) {
	if productID <= 0 {
		return nil, domain.ErrMalformedProductID
	}
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, sess, func(c *domain.Cart) error {
		return c.Add(productID, qty)
	})
}

func (s *CartService) SetQuantity(ctx context.Context, sess domain.Session, productID int64, qty int) (*CartView, error) {
	return s.mutate(ctx, sess, func(c *domain.Cart) error {
		return c.SetQuantity(productID, qty)
	})
}

func (s *CartService) Remove(ctx context.Context, sess domain.Session, productID int64) (*CartView, error) {
	return s.mutate(ctx, sess, func(c *domain.Cart) error {
		return c.Remove(productID)
	})
}

func (s *CartService) Increment(ctx context.Context, sess domain.Session, productID int64) (*CartView, error) {
	return s.mutate(ctx, sess, func(c *domain.Cart) error {
		return c.Increment(productID)
	})
}

func (s *CartService) Decrement(ctx context.Context, sess domain.Session, productID int64) (*CartView, error) {
	return s.mutate(ctx, sess, func(c *domain.Cart) error {
		_, err := c.Decrement(productID)
		return err
	})
}

// Clean rewrites the stored cart with the validator's cleaned version and
// returns the adjustments that were applied.
func (s *CartService) Clean(ctx context.Context, sess domain.Session) (*CartView, []domain.Issue, error) {
	if sess.ID == "" {
		return nil, nil, domain.ErrMissingSession
	}
	cart, err := s.carts.Get(ctx, sess.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("get cart: %w", err)
	}

	cleaned, issues, err := s.validator.Validate(ctx, cart)
	if err != nil {
		return nil, nil, err
	}
	if len(issues) > 0 {
		if err := s.carts.Save(ctx, sess.ID, cleaned); err != nil {
			return nil, nil, fmt.Errorf("save cart: %w", err)
		}
	}

	view, err := s.view(ctx, cleaned)
	if err != nil {
		return nil, nil, err
	}
	return view, issues, nil
}

func (s *CartService) Clear(ctx context.Context, sess domain.Session) error {
	if sess.ID == "" {
		return domain.ErrMissingSession
	}
	return s.carts.Delete(ctx, sess.ID)
}

func (s *CartService) mutate(ctx context.Context, sess domain.Session, fn func(*domain.Cart) error) (*CartView, error) {
	if sess.ID == "" {
		return nil, domain.ErrMissingSession
	}
	cart, err := s.carts.Get(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	if err := fn(cart); err != nil {
		return nil, err
	}

	if err := s.carts.Save(ctx, sess.ID, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	return s.view(ctx, cart)
}

// view prices the stored quantities at current catalog prices. Lines whose
// product is gone are left out of the total and reported as notices.
func (s *CartService) view(ctx context.Context, cart *domain.Cart) (*CartView, error) {
	catalog, err := s.validator.Snapshot(ctx, cart)
	if err != nil {
		return nil, err
	}
	_, notices := CleanCart(cart, catalog)

	view := &CartView{
		Lines:   make([]CartLine, 0, len(cart.Items)),
		Count:   cart.Count(),
		Notices: notices,
	}
	var priced []pricing.Line
	for _, id := range cart.ProductIDs() {
		p, ok := catalog[id]
		if !ok {
			continue
		}
		qty := cart.Items[id]
		view.Lines = append(view.Lines, CartLine{
			ProductID: id,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  qty,
			LineTotal: pricing.LineTotal(p.Price, qty),
			Stock:     p.Stock,
		})
		priced = append(priced, pricing.Line{UnitPrice: p.Price, Quantity: qty})
	}
	view.Total = pricing.CartTotal(priced)
	return view, nil
}

// IsInputError reports whether err is the caller's fault.
func IsInputError(err error) bool {
	return errors.Is(err, domain.ErrInvalidQuantity) ||
		errors.Is(err, domain.ErrMalformedProductID) ||
		errors.Is(err, domain.ErrEmptyCart) ||
		errors.Is(err, domain.ErrMissingSession) ||
		errors.Is(err, domain.ErrMissingUser)
}
