package service

import (
	"context"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
	"github.com/rl1809/storefront-checkout/internal/port"
)

const DefaultPageSize = 10

// OrderService serves a buyer's order history.
type OrderService struct {
	orders port.OrderRepository
}

func NewOrderService(orders port.OrderRepository) *OrderService {
	return &OrderService{orders: orders}
}

// ListOrders returns one page of the user's orders, newest first. Pages start
// at 1; anything lower is treated as the first page.
func (s *OrderService) ListOrders(ctx context.Context, userID string, page, pageSize int) ([]domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrMissingUser
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return s.orders.ListOrders(ctx, userID, pageSize, (page-1)*pageSize)
}

func (s *OrderService) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrMissingUser
	}
	if orderID == "" {
		return nil, domain.ErrOrderNotFound
	}
	return s.orders.GetOrder(ctx, userID, orderID)
}
