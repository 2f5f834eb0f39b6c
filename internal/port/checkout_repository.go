package port

import (
	"context"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
)

// CheckoutRepository opens the atomic unit of work used by checkout.
type CheckoutRepository interface {
	// WithinTx runs fn in one transaction. If fn returns an error or ctx is
	// cancelled the transaction is rolled back and every lock is released;
	// otherwise it is committed. Commit failures wrap domain.ErrCommitFailure.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx CheckoutTx) error) error
}

type CheckoutTx interface {
	// LockProducts takes an exclusive row lock on each product, one at a time,
	// in the order given, blocking while another transaction holds it. Rows that
	// no longer exist are skipped and absent from the result. A bounded wait that
	// expires fails with domain.ErrLockTimeout.
	LockProducts(ctx context.Context, ids []int64) (domain.Catalog, error)

	// DecrementStock lowers stock of a locked product; it never goes below zero
	DecrementStock(ctx context.Context, productID int64, quantity int) error

	// InsertOrder persists the order and its items
	InsertOrder(ctx context.Context, order *domain.Order) error
}
