package domain

import (
	"fmt"
	"strings"
)

type IssueReason string

const (
	// Advisory adjustments produced by cart validation.
	IssueProductRemoved  IssueReason = "product_removed"
	IssueQuantityClamped IssueReason = "quantity_clamped"
	IssueInvalidQuantity IssueReason = "invalid_quantity"

	// Conflicts found during reconciliation under lock.
	IssueSoldOut           IssueReason = "sold_out"
	IssueInsufficientStock IssueReason = "insufficient_stock"
)

// Issue describes one cart line that needs the buyer's attention.
type Issue struct {
	ProductID int64       `json:"product_id"`
	Reason    IssueReason `json:"reason"`
	Requested int         `json:"requested,omitempty"`
	Available int         `json:"available,omitempty"`
}

func (i Issue) Detail() string {
	switch i.Reason {
	case IssueProductRemoved:
		return "product is no longer available"
	case IssueQuantityClamped:
		if i.Available == 0 {
			return fmt.Sprintf("requested %d but the product is sold out", i.Requested)
		}
		return fmt.Sprintf("requested %d, only %d left in stock", i.Requested, i.Available)
	case IssueInvalidQuantity:
		return "quantity must be positive"
	case IssueSoldOut:
		return "sold out"
	case IssueInsufficientStock:
		return fmt.Sprintf("requested %d, only %d left in stock", i.Requested, i.Available)
	}
	return string(i.Reason)
}

func (i Issue) String() string {
	return fmt.Sprintf("product %d: %s", i.ProductID, i.Detail())
}

// CheckoutError is returned when checkout aborts because of the cart's
// contents. It lists every offending line, not just the first.
type CheckoutError struct {
	State  CheckoutState
	Reason error
	Issues []Issue
}

func (e *CheckoutError) Error() string {
	if len(e.Issues) == 0 {
		return e.Reason.Error()
	}
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(parts, "; "))
}

func (e *CheckoutError) Unwrap() error {
	return e.Reason
}
