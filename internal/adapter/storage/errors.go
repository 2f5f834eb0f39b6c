package storage

import "errors"

// ErrStockUnderflow means a decrement would drive stock below zero. Checkout
// reconciles under lock first, so seeing it indicates a broken invariant.
var ErrStockUnderflow = errors.New("stock would go negative")

// ErrRowNotLocked means a write targeted a product the transaction did not lock.
var ErrRowNotLocked = errors.New("product row is not locked by this transaction")
