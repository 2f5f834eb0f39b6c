package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
)

type mockOrderRepo struct {
	limit, offset int
	order         *domain.Order
}

func (m *mockOrderRepo) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if m.order == nil || m.order.ID != orderID || m.order.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return m.order, nil
}

func (m *mockOrderRepo) ListOrders(ctx context.Context, userID string, limit, offset int) ([]domain.Order, error) {
	m.limit, m.offset = limit, offset
	return nil, nil
}

func TestListOrders_Pagination(t *testing.T) {
	cases := []struct {
		page, size            int
		wantLimit, wantOffset int
	}{
		{1, 10, 10, 0},
		{3, 10, 10, 20},
		{0, 0, DefaultPageSize, 0},
		{-4, 5, 5, 0},
		{2, 0, DefaultPageSize, DefaultPageSize},
	}
	for _, c := range cases {
		repo := &mockOrderRepo{}
		svc := NewOrderService(repo)
		if _, err := svc.ListOrders(context.Background(), "u1", c.page, c.size); err != nil {
			t.Fatal(err)
		}
		if repo.limit != c.wantLimit || repo.offset != c.wantOffset {
			t.Errorf("page %d size %d: got limit %d offset %d, want %d %d",
				c.page, c.size, repo.limit, repo.offset, c.wantLimit, c.wantOffset)
		}
	}
}

func TestListOrders_RequiresUser(t *testing.T) {
	svc := NewOrderService(&mockOrderRepo{})
	if _, err := svc.ListOrders(context.Background(), "", 1, 10); !errors.Is(err, domain.ErrMissingUser) {
		t.Errorf("expected ErrMissingUser, got %v", err)
	}
}

func TestGetOrder_ScopedToUser(t *testing.T) {
	repo := &mockOrderRepo{order: &domain.Order{ID: "o1", UserID: "u1", CreatedAt: time.Now()}}
	svc := NewOrderService(repo)
	ctx := context.Background()

	if _, err := svc.GetOrder(ctx, "u1", "o1"); err != nil {
		t.Errorf("expected order, got %v", err)
	}
	if _, err := svc.GetOrder(ctx, "u2", "o1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound for another user, got %v", err)
	}
	if _, err := svc.GetOrder(ctx, "u1", ""); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}
