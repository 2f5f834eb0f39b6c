package port

import (
	"context"
	"time"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
)

type OrderEventPublisher interface {
	PublishOrderCompleted(ctx context.Context, order *domain.Order) error
}

type CheckoutObserver interface {
	ObserveCheckout(outcome string, elapsed time.Duration)
}
