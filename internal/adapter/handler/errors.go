package handler

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
)

type errorMapping struct {
	httpStatus int
	grpcCode   codes.Code
	code       string
}

// mapError classifies a service error for both transports. Anything unknown
// is an internal error.
func mapError(err error) errorMapping {
	switch {
	case errors.Is(err, domain.ErrCartConflict):
		return errorMapping{http.StatusConflict, codes.FailedPrecondition, "cart_conflict"}
	case errors.Is(err, domain.ErrEmptyCart):
		return errorMapping{http.StatusUnprocessableEntity, codes.FailedPrecondition, "empty_cart"}
	case errors.Is(err, domain.ErrInvalidQuantity):
		return errorMapping{http.StatusBadRequest, codes.InvalidArgument, "invalid_quantity"}
	case errors.Is(err, domain.ErrMalformedProductID):
		return errorMapping{http.StatusBadRequest, codes.InvalidArgument, "invalid_product_id"}
	case errors.Is(err, domain.ErrMissingSession):
		return errorMapping{http.StatusBadRequest, codes.InvalidArgument, "missing_session"}
	case errors.Is(err, domain.ErrMissingUser):
		return errorMapping{http.StatusUnauthorized, codes.Unauthenticated, "unauthorized"}
	case errors.Is(err, domain.ErrItemNotInCart):
		return errorMapping{http.StatusNotFound, codes.NotFound, "item_not_in_cart"}
	case errors.Is(err, domain.ErrProductNotFound):
		return errorMapping{http.StatusNotFound, codes.NotFound, "product_not_found"}
	case errors.Is(err, domain.ErrOrderNotFound):
		return errorMapping{http.StatusNotFound, codes.NotFound, "order_not_found"}
	case errors.Is(err, domain.ErrDuplicateRequest):
		return errorMapping{http.StatusConflict, codes.AlreadyExists, "duplicate_request"}
	case errors.Is(err, domain.ErrLockTimeout):
		return errorMapping{http.StatusServiceUnavailable, codes.Aborted, "lock_timeout"}
	case errors.Is(err, domain.ErrCommitFailure):
		return errorMapping{http.StatusServiceUnavailable, codes.Aborted, "commit_failure"}
	case errors.Is(err, context.DeadlineExceeded):
		return errorMapping{http.StatusGatewayTimeout, codes.DeadlineExceeded, "timeout"}
	case errors.Is(err, context.Canceled):
		return errorMapping{http.StatusServiceUnavailable, codes.Canceled, "cancelled"}
	}
	return errorMapping{http.StatusInternalServerError, codes.Internal, "internal_error"}
}

// retryable reports whether the buyer can resubmit the same checkout unchanged.
func (m errorMapping) retryable() bool {
	return m.code == "lock_timeout" || m.code == "commit_failure"
}
