package handler

import (
	"time"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
	"github.com/rl1809/storefront-checkout/internal/core/pricing"
	"github.com/rl1809/storefront-checkout/internal/core/service"
)

type CartLineDTO struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"line_total"`
	Stock     int    `json:"stock"`
}

type CartDTO struct {
	Lines   []CartLineDTO `json:"lines"`
	Total   string        `json:"total"`
	Count   int           `json:"count"`
	Notices []IssueDTO    `json:"notices,omitempty"`
}

type IssueDTO struct {
	ProductID int64  `json:"product_id"`
	Reason    string `json:"reason"`
	Detail    string `json:"detail"`
	Requested int    `json:"requested,omitempty"`
	Available int    `json:"available"`
}

type OrderItemDTO struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   string `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	LineTotal   string `json:"line_total"`
	Status      string `json:"status"`
}

type OrderDTO struct {
	ID        string         `json:"id"`
	Status    string         `json:"status"`
	Total     string         `json:"total"`
	Items     []OrderItemDTO `json:"items,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func toCartDTO(v *service.CartView) CartDTO {
	out := CartDTO{
		Lines:   make([]CartLineDTO, 0, len(v.Lines)),
		Total:   v.Total.StringFixed(pricing.Places),
		Count:   v.Count,
		Notices: toIssueDTOs(v.Notices),
	}
	for _, l := range v.Lines {
		out.Lines = append(out.Lines, CartLineDTO{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice.StringFixed(pricing.Places),
			Quantity:  l.Quantity,
			LineTotal: l.LineTotal.StringFixed(pricing.Places),
			Stock:     l.Stock,
		})
	}
	return out
}

func toIssueDTOs(issues []domain.Issue) []IssueDTO {
	if len(issues) == 0 {
		return nil
	}
	out := make([]IssueDTO, 0, len(issues))
	for _, is := range issues {
		out = append(out, IssueDTO{
			ProductID: is.ProductID,
			Reason:    string(is.Reason),
			Detail:    is.Detail(),
			Requested: is.Requested,
			Available: is.Available,
		})
	}
	return out
}

func toOrderDTO(o *domain.Order) OrderDTO {
	out := OrderDTO{
		ID:        o.ID,
		Status:    string(o.Status),
		Total:     o.Total.StringFixed(pricing.Places),
		CreatedAt: o.CreatedAt,
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, OrderItemDTO{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice.StringFixed(pricing.Places),
			Quantity:    it.Quantity,
			LineTotal:   it.LineTotal.StringFixed(pricing.Places),
			Status:      string(it.Status),
		})
	}
	return out
}

func toOrderDTOs(orders []domain.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderDTO(&orders[i]))
	}
	return out
}
