package domain

import "errors"

// Input errors.
var (
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrMalformedProductID = errors.New("malformed product id")
	ErrMissingUser        = errors.New("checkout requires an authenticated user")
	ErrItemNotInCart      = errors.New("item not found in cart")
	ErrMissingSession     = errors.New("missing session id")
)

// Lookup errors.
var (
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
)

// ErrCartConflict is the reason attached to a CheckoutError whose cart lines
// disagree with live inventory.
var ErrCartConflict = errors.New("cart conflicts with current inventory")

// Transaction errors. The unit of work has been rolled back in full and the
// caller may retry the whole checkout.
var (
	ErrLockTimeout   = errors.New("timed out waiting for inventory lock")
	ErrCommitFailure = errors.New("checkout could not be committed")
)

var ErrDuplicateRequest = errors.New("duplicate checkout request")
