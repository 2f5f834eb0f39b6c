package messaging

import (
	"time"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
	"github.com/rl1809/storefront-checkout/internal/core/pricing"
)

const EventOrderCompleted = "order.completed"

type OrderCompletedEvent struct {
	Type      string      `json:"type"`
	OrderID   string      `json:"order_id"`
	UserID    string      `json:"user_id"`
	Total     string      `json:"total"`
	Items     []EventItem `json:"items"`
	CreatedAt time.Time   `json:"created_at"`
}

type EventItem struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

func NewOrderCompletedEvent(o *domain.Order) OrderCompletedEvent {
	ev := OrderCompletedEvent{
		Type:      EventOrderCompleted,
		OrderID:   o.ID,
		UserID:    o.UserID,
		Total:     o.Total.StringFixed(pricing.Places),
		Items:     make([]EventItem, 0, len(o.Items)),
		CreatedAt: o.CreatedAt,
	}
	for _, it := range o.Items {
		ev.Items = append(ev.Items, EventItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(pricing.Places),
			LineTotal: it.LineTotal.StringFixed(pricing.Places),
		})
	}
	return ev
}
