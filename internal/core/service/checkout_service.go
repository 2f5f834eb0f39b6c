package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
	"github.com/rl1809/storefront-checkout/internal/core/pricing"
	"github.com/rl1809/storefront-checkout/internal/port"
)

// Checkout outcomes reported to the observer.
const (
	OutcomeCompleted     = "completed"
	OutcomeEmptyCart     = "empty_cart"
	OutcomeConflict      = "conflict"
	OutcomeLockTimeout   = "lock_timeout"
	OutcomeCommitFailure = "commit_failure"
	OutcomeDuplicate     = "duplicate"
	OutcomeCancelled     = "cancelled"
	OutcomeInvalid       = "invalid"
	OutcomeError         = "error"
)

type CheckoutService struct {
	carts     port.CartRepository
	validator *CartValidator
	repo      port.CheckoutRepository
	guard     port.IdempotencyGuard
	events    port.OrderEventPublisher
	observer  port.CheckoutObserver
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

type CheckoutOption func(*CheckoutService)

func WithIdempotencyGuard(g port.IdempotencyGuard) CheckoutOption {
	return func(s *CheckoutService) { s.guard = g }
}

func WithEventPublisher(p port.OrderEventPublisher) CheckoutOption {
	return func(s *CheckoutService) { s.events = p }
}

func WithObserver(o port.CheckoutObserver) CheckoutOption {
	return func(s *CheckoutService) { s.observer = o }
}

// WithTimeout bounds the whole unit of work, lock waits included.
func WithTimeout(d time.Duration) CheckoutOption {
	return func(s *CheckoutService) { s.timeout = d }
}

func WithLogger(l *slog.Logger) CheckoutOption {
	return func(s *CheckoutService) { s.logger = l }
}

func NewCheckoutService(carts port.CartRepository, catalog port.CatalogRepository, repo port.CheckoutRepository, opts ...CheckoutOption) *CheckoutService {
	s := &CheckoutService{
		carts:     carts,
		validator: NewCartValidator(catalog),
		repo:      repo,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout turns the session's cart into a completed order, or fails with an
// error that leaves stock, orders and the cart untouched. Cart conflicts come
// back as *domain.CheckoutError listing every offending line.
func (s *CheckoutService) Checkout(ctx context.Context, sess domain.Session, requestID string) (*domain.Order, error) {
	start := time.Now()
	order, err := s.checkout(ctx, sess, requestID)
	if s.observer != nil {
		s.observer.ObserveCheckout(outcome(err), time.Since(start))
	}
	return order, err
}

func (s *CheckoutService) checkout(ctx context.Context, sess domain.Session, requestID string) (order *domain.Order, err error) {
	if sess.UserID == "" {
		return nil, domain.ErrMissingUser
	}
	if sess.ID == "" {
		return nil, domain.ErrMissingSession
	}

	if requestID != "" && s.guard != nil {
		key := fmt.Sprintf("checkout:%s:%s", sess.UserID, requestID)
		ok, err := s.guard.Acquire(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
		defer func() {
			if err == nil {
				return
			}
			if relErr := s.guard.Release(context.WithoutCancel(ctx), key); relErr != nil {
				s.logger.Warn("release idempotency key", "key", key, "error", relErr)
			}
		}()
	}

	run := &checkoutRun{
		state:  domain.CheckoutInitiated,
		logger: s.logger.With("session_id", sess.ID, "user_id", sess.UserID),
	}

	cart, err := s.carts.Get(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	run.transition(domain.CheckoutValidating)
	cleaned, adjustments, err := s.validator.Validate(ctx, cart)
	if err != nil {
		run.abort(err)
		return nil, err
	}
	if cleaned.IsEmpty() {
		err := &domain.CheckoutError{State: domain.CheckoutValidating, Reason: domain.ErrEmptyCart, Issues: adjustments}
		if soldOut, ok := soldOutIssues(adjustments); ok {
			err = &domain.CheckoutError{State: domain.CheckoutValidating, Reason: domain.ErrCartConflict, Issues: soldOut}
		}
		run.abort(err)
		return nil, err
	}

	txCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	err = s.repo.WithinTx(txCtx, func(ctx context.Context, tx port.CheckoutTx) error {
		run.transition(domain.CheckoutLocking)
		ids := cart.ProductIDs()
		locked, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}

		run.transition(domain.CheckoutReconciling)
		if issues := reconcile(cart, ids, locked); len(issues) > 0 {
			return &domain.CheckoutError{State: domain.CheckoutReconciling, Reason: domain.ErrCartConflict, Issues: issues}
		}

		run.transition(domain.CheckoutCommitting)
		order = s.buildOrder(sess.UserID, cart, ids, locked)
		for _, item := range order.Items {
			if err := tx.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("decrement stock for product %d: %w", item.ProductID, err)
			}
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		// The checkout deadline expiring while waiting on row locks is a lock timeout.
		if run.state == domain.CheckoutLocking && ctx.Err() == nil &&
			errors.Is(txCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrLockTimeout) {
			err = fmt.Errorf("%w: %w", domain.ErrLockTimeout, err)
		}
		run.abort(err)
		return nil, err
	}

	run.transition(domain.CheckoutCompleted)
	run.logger.Info("checkout completed", "order_id", order.ID, "total", order.Total.StringFixed(pricing.Places), "items", len(order.Items))

	// The order is committed; what follows must not turn it into a failure.
	afterCtx := context.WithoutCancel(ctx)
	if err := s.carts.Delete(afterCtx, sess.ID); err != nil {
		run.logger.Error("clear cart after checkout", "order_id", order.ID, "error", err)
	}
	if s.events != nil {
		if err := s.events.PublishOrderCompleted(afterCtx, order); err != nil {
			run.logger.Warn("publish order completed", "order_id", order.ID, "error", err)
		}
	}

	return order, nil
}

// reconcile classifies every line against the locked rows. It never stops at
// the first failure.
func reconcile(cart *domain.Cart, ids []int64, locked domain.Catalog) []domain.Issue {
	var issues []domain.Issue
	for _, id := range ids {
		qty := cart.Items[id]
		p, ok := locked[id]
		switch {
		case qty <= 0:
			issues = append(issues, domain.Issue{ProductID: id, Reason: domain.IssueInvalidQuantity, Requested: qty})
		case !ok:
			issues = append(issues, domain.Issue{ProductID: id, Reason: domain.IssueProductRemoved, Requested: qty})
		case p.Stock <= 0:
			issues = append(issues, domain.Issue{ProductID: id, Reason: domain.IssueSoldOut, Requested: qty})
		case qty > p.Stock:
			issues = append(issues, domain.Issue{ProductID: id, Reason: domain.IssueInsufficientStock, Requested: qty, Available: p.Stock})
		}
	}
	return issues
}

// soldOutIssues reports a cart emptied only by exhausted stock as sold out
// lines. Removed or invalid lines leave it an empty cart.
func soldOutIssues(adjustments []domain.Issue) ([]domain.Issue, bool) {
	if len(adjustments) == 0 {
		return nil, false
	}
	out := make([]domain.Issue, 0, len(adjustments))
	for _, is := range adjustments {
		if is.Reason != domain.IssueQuantityClamped || is.Available > 0 {
			return nil, false
		}
		out = append(out, domain.Issue{ProductID: is.ProductID, Reason: domain.IssueSoldOut, Requested: is.Requested})
	}
	return out, true
}

func (s *CheckoutService) buildOrder(userID string, cart *domain.Cart, ids []int64, locked domain.Catalog) *domain.Order {
	order := &domain.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    domain.OrderStatusCompleted,
		Items:     make([]domain.OrderItem, 0, len(ids)),
		CreatedAt: s.now().UTC(),
	}

	lines := make([]pricing.Line, 0, len(ids))
	for _, id := range ids {
		p := locked[id]
		qty := cart.Items[id]
		order.Items = append(order.Items, domain.OrderItem{
			OrderID:     order.ID,
			ProductID:   id,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    qty,
			LineTotal:   pricing.LineTotal(p.Price, qty),
			Status:      domain.ItemStatusPending,
		})
		lines = append(lines, pricing.Line{UnitPrice: p.Price, Quantity: qty})
	}
	order.Total = pricing.CartTotal(lines)
	return order
}

type checkoutRun struct {
	state  domain.CheckoutState
	logger *slog.Logger
}

func (r *checkoutRun) transition(to domain.CheckoutState) {
	if !domain.CanTransitionTo(r.state, to) {
		// Programming error: the sequence above is fixed.
		panic(fmt.Sprintf("illegal checkout transition %s -> %s", r.state, to))
	}
	r.logger.Debug("checkout transition", "from", r.state, "to", to)
	r.state = to
}

func (r *checkoutRun) abort(err error) {
	from := r.state
	r.transition(domain.CheckoutAborted)

	var ce *domain.CheckoutError
	if errors.As(err, &ce) {
		r.logger.Warn("checkout aborted", "state", from, "reason", ce.Reason, "issues", len(ce.Issues))
		return
	}
	r.logger.Error("checkout aborted", "state", from, "error", err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, domain.ErrEmptyCart):
		return OutcomeEmptyCart
	case errors.Is(err, domain.ErrCartConflict):
		return OutcomeConflict
	case errors.Is(err, domain.ErrLockTimeout):
		return OutcomeLockTimeout
	case errors.Is(err, domain.ErrCommitFailure):
		return OutcomeCommitFailure
	case errors.Is(err, domain.ErrDuplicateRequest):
		return OutcomeDuplicate
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	case IsInputError(err):
		return OutcomeInvalid
	}
	return OutcomeError
}
