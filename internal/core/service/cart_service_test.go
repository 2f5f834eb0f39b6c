package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
)

func TestCartService_AddAndView(t *testing.T) {
	env := newTestEnv(t, 0, newProduct(1, "9.99", 5), newProduct(2, "0.10", 100))
	svc := NewCartService(env.carts, env.store)
	ctx := context.Background()

	if _, err := svc.Add(ctx, testSession, 1, 2); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	view, err := svc.Add(ctx, testSession, 2, 3)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if got := view.Total.StringFixed(2); got != "20.28" {
		t.Errorf("expected total 20.28, got %s", got)
	}
	if view.Count != 5 {
		t.Errorf("expected 5 units, got %d", view.Count)
	}
	if len(view.Lines) != 2 || view.Lines[0].ProductID != 1 {
		t.Errorf("expected lines in product order, got %+v", view.Lines)
	}

	// Adding again merges.
	view, _ = svc.Add(ctx, testSession, 1, 1)
	if view.Lines[0].Quantity != 3 {
		t.Errorf("expected merged quantity 3, got %d", view.Lines[0].Quantity)
	}
}

func TestCartService_AddRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, 0, newProduct(1, "1.00", 5))
	svc := NewCartService(env.carts, env.store)
	ctx := context.Background()

	cases := []struct {
		name string
		id   int64
		qty  int
		want error
	}{
		{"zero quantity", 1, 0, domain.ErrInvalidQuantity},
		{"negative quantity", 1, -2, domain.ErrInvalidQuantity},
		{"malformed id", 0, 1, domain.ErrMalformedProductID},
		{"unknown product", 42, 1, domain.ErrProductNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := svc.Add(ctx, testSession, c.id, c.qty); !errors.Is(err, c.want) {
				t.Errorf("expected %v, got %v", c.want, err)
			}
		})
	}

	if _, err := svc.Add(ctx, domain.Session{}, 1, 1); !errors.Is(err, domain.ErrMissingSession) {
		t.Errorf("expected ErrMissingSession, got %v", err)
	}
}

func TestCartService_QuantityOperations(t *testing.T) {
	env := newTestEnv(t, 0, newProduct(1, "2.50", 10))
	svc := NewCartService(env.carts, env.store)
	ctx := context.Background()

	if _, err := svc.Add(ctx, testSession, 1, 1); err != nil {
		t.Fatal(err)
	}

	view, err := svc.SetQuantity(ctx, testSession, 1, 4)
	if err != nil || view.Lines[0].Quantity != 4 {
		t.Fatalf("set quantity: %v %+v", err, view)
	}
	if _, err := svc.SetQuantity(ctx, testSession, 1, 0); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}

	view, _ = svc.Increment(ctx, testSession, 1)
	if view.Lines[0].Quantity != 5 {
		t.Errorf("expected 5 after increment, got %d", view.Lines[0].Quantity)
	}
	if got := view.Total.StringFixed(2); got != "12.50" {
		t.Errorf("expected total 12.50, got %s", got)
	}

	if err := svc.carts.Save(ctx, testSession.ID, &domain.Cart{Items: map[int64]int{1: 1}}); err != nil {
		t.Fatal(err)
	}
	view, err = svc.Decrement(ctx, testSession, 1)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if len(view.Lines) != 0 || !view.Total.IsZero() {
		t.Errorf("expected entry removed at zero, got %+v", view)
	}

	if _, err := svc.Decrement(ctx, testSession, 1); !errors.Is(err, domain.ErrItemNotInCart) {
		t.Errorf("expected ErrItemNotInCart, got %v", err)
	}
	if _, err := svc.Remove(ctx, testSession, 1); !errors.Is(err, domain.ErrItemNotInCart) {
		t.Errorf("expected ErrItemNotInCart, got %v", err)
	}
}

func TestCartService_ViewReportsStaleLines(t *testing.T) {
	env := newTestEnv(t, 0, newProduct(1, "1.00", 2), newProduct(2, "3.00", 5))
	svc := NewCartService(env.carts, env.store)
	ctx := context.Background()

	env.fillCart(t, testSession.ID, map[int64]int{1: 4, 2: 1})
	if err := env.store.DeleteProduct(ctx, 2); err != nil {
		t.Fatal(err)
	}

	view, err := svc.View(ctx, testSession)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Lines) != 1 || view.Lines[0].ProductID != 1 {
		t.Errorf("expected only product 1 priced, got %+v", view.Lines)
	}
	if got := view.Total.StringFixed(2); got != "4.00" {
		t.Errorf("expected total 4.00, got %s", got)
	}
	if len(view.Notices) != 2 {
		t.Errorf("expected clamp and removal notices, got %+v", view.Notices)
	}
}

func TestCartService_Clean(t *testing.T) {
	env := newTestEnv(t, 0, newProduct(1, "1.00", 2))
	svc := NewCartService(env.carts, env.store)
	ctx := context.Background()

	env.fillCart(t, testSession.ID, map[int64]int{1: 4, 9: 1})

	view, issues, err := svc.Clean(ctx, testSession)
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 2 {
		t.Errorf("expected 2 adjustments, got %+v", issues)
	}
	if len(view.Notices) != 0 {
		t.Errorf("cleaned view should carry no notices, got %+v", view.Notices)
	}

	stored, _ := env.carts.Get(ctx, testSession.ID)
	if stored.Quantity(1) != 2 || stored.Quantity(9) != 0 {
		t.Errorf("expected cleaned cart saved, got %v", stored.Items)
	}
}

func TestCartService_Clear(t *testing.T) {
	env := newTestEnv(t, 0, newProduct(1, "1.00", 2))
	svc := NewCartService(env.carts, env.store)
	ctx := context.Background()

	env.fillCart(t, testSession.ID, map[int64]int{1: 1})
	if err := svc.Clear(ctx, testSession); err != nil {
		t.Fatal(err)
	}
	view, _ := svc.View(ctx, testSession)
	if view.Count != 0 {
		t.Errorf("expected empty cart, got %d units", view.Count)
	}
}
