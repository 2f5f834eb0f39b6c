package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
	"github.com/rl1809/storefront-checkout/internal/core/service"
)

const (
	sessionCookieName = "storefront_session"
	sessionIDKey      = "sid"

	HeaderUserID         = "X-User-ID"
	HeaderIdempotencyKey = "Idempotency-Key"

	maxRequestBodySize = 1 << 20
)

type HTTPHandler struct {
	carts    *service.CartService
	checkout *service.CheckoutService
	orders   *service.OrderService
	sessions sessions.Store
	logger   *slog.Logger
}

type AddItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type CleanCartResponse struct {
	Cart        CartDTO    `json:"cart"`
	Adjustments []IssueDTO `json:"adjustments"`
}

type CheckoutResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Order     *OrderDTO  `json:"order,omitempty"`
	Code      string     `json:"code,omitempty"`
	Issues    []IssueDTO `json:"issues,omitempty"`
	Retryable bool       `json:"retryable,omitempty"`
}

type ErrorResponse struct {
	Error     string     `json:"error"`
	Code      string     `json:"code"`
	Issues    []IssueDTO `json:"issues,omitempty"`
	Retryable bool       `json:"retryable,omitempty"`
}

func NewHTTPHandler(carts *service.CartService, checkout *service.CheckoutService, orders *service.OrderService, store sessions.Store, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{
		carts:    carts,
		checkout: checkout,
		orders:   orders,
		sessions: store,
		logger:   logger,
	}
}

// NewCookieStore builds the signed cookie store that carries the session id.
func NewCookieStore(secret string) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// Routes mounts the storefront API. Extra middleware runs before routing.
func (h *HTTPHandler) Routes(metrics http.Handler, mw ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(mw...)

	r.Get("/health", h.HealthCheck)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.sessionMiddleware)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/clean", h.CleanCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{productID}", h.UpdateQuantity)
			r.Delete("/items/{productID}", h.RemoveItem)
			r.Post("/items/{productID}/increment", h.IncrementItem)
			r.Post("/items/{productID}/decrement", h.DecrementItem)
		})
		r.Post("/checkout", h.Checkout)
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{orderID}", h.GetOrder)
	})

	return r
}

type sessionCtxKey struct{}

// sessionMiddleware resolves the cookie session id, issuing one on first
// contact, and attaches the caller's identity to the request context.
func (h *HTTPHandler) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A tampered or expired cookie yields a fresh session alongside the error.
		s, _ := h.sessions.Get(r, sessionCookieName)

		sid, _ := s.Values[sessionIDKey].(string)
		if sid == "" {
			sid = uuid.NewString()
			s.Values[sessionIDKey] = sid
			if err := s.Save(r, w); err != nil {
				h.logger.Error("save session", "error", err)
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "could not start session", Code: "internal_error"})
				return
			}
		}

		sess := domain.Session{ID: sid, UserID: r.Header.Get(HeaderUserID)}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionCtxKey{}, sess)))
	})
}

func sessionFrom(ctx context.Context) domain.Session {
	sess, _ := ctx.Value(sessionCtxKey{}).(domain.Session)
	return sess
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.View(r.Context(), sessionFrom(r.Context()))
	h.respondCart(w, r, http.StatusOK, view, err)
}

func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.carts.Add(r.Context(), sessionFrom(r.Context()), req.ProductID, req.Quantity)
	h.respondCart(w, r, http.StatusCreated, view, err)
}

func (h *HTTPHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req UpdateQuantityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.carts.SetQuantity(r.Context(), sessionFrom(r.Context()), id, req.Quantity)
	h.respondCart(w, r, http.StatusOK, view, err)
}

func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	view, err := h.carts.Remove(r.Context(), sessionFrom(r.Context()), id)
	h.respondCart(w, r, http.StatusOK, view, err)
}

func (h *HTTPHandler) IncrementItem(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	view, err := h.carts.Increment(r.Context(), sessionFrom(r.Context()), id)
	h.respondCart(w, r, http.StatusOK, view, err)
}

func (h *HTTPHandler) DecrementItem(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	view, err := h.carts.Decrement(r.Context(), sessionFrom(r.Context()), id)
	h.respondCart(w, r, http.StatusOK, view, err)
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), sessionFrom(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) CleanCart(w http.ResponseWriter, r *http.Request) {
	view, issues, err := h.carts.Clean(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	adjustments := toIssueDTOs(issues)
	if adjustments == nil {
		adjustments = []IssueDTO{}
	}
	writeJSON(w, http.StatusOK, CleanCartResponse{Cart: toCartDTO(view), Adjustments: adjustments})
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	order, err := h.checkout.Checkout(r.Context(), sessionFrom(r.Context()), r.Header.Get(HeaderIdempotencyKey))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	dto := toOrderDTO(order)
	writeJSON(w, http.StatusCreated, CheckoutResponse{
		Success: true,
		Message: "order placed successfully",
		Order:   &dto,
	})
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	orders, err := h.orders.ListOrders(r.Context(), r.Header.Get(HeaderUserID), page, size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTOs(orders))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), r.Header.Get(HeaderUserID), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) respondCart(w http.ResponseWriter, r *http.Request, status int, view *service.CartView, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, toCartDTO(view))
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	m := mapError(err)
	resp := ErrorResponse{Error: err.Error(), Code: m.code, Retryable: m.retryable()}

	var ce *domain.CheckoutError
	if errors.As(err, &ce) {
		resp.Error = ce.Reason.Error()
		resp.Issues = toIssueDTOs(ce.Issues)
	}
	if m.httpStatus >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		if m.code == "internal_error" {
			resp.Error = "internal error"
		}
	}
	if m.retryable() {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, m.httpStatus, resp)
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: domain.ErrMalformedProductID.Error(), Code: "invalid_product_id"})
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "invalid_request"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
