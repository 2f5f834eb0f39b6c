package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
	"github.com/rl1809/storefront-checkout/internal/core/service"
)

const (
	// JSONCodecName is the content subtype both ends negotiate.
	JSONCodecName = "json"

	MetadataSessionID = "session-id"
	MetadataUserID    = "user-id"

	checkoutServiceName = "storefront.Checkout"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type GetCartRequest struct{}

// ItemRequest addresses one cart line.
type ItemRequest struct {
	ProductID int64 `json:"product_id"`
}

type SetQuantityRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type CleanCartRequest struct{}

type ClearCartRequest struct{}

type CheckoutRequest struct {
	RequestID string `json:"request_id"`
}

type ListOrdersRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

type ListOrdersResponse struct {
	Orders []OrderDTO `json:"orders"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

// CheckoutServer is the gRPC surface of the storefront. The caller's session
// and user travel in request metadata.
type CheckoutServer interface {
	GetCart(context.Context, *GetCartRequest) (*CartDTO, error)
	AddItem(context.Context, *AddItemRequest) (*CartDTO, error)
	SetQuantity(context.Context, *SetQuantityRequest) (*CartDTO, error)
	RemoveItem(context.Context, *ItemRequest) (*CartDTO, error)
	IncrementItem(context.Context, *ItemRequest) (*CartDTO, error)
	DecrementItem(context.Context, *ItemRequest) (*CartDTO, error)
	CleanCart(context.Context, *CleanCartRequest) (*CleanCartResponse, error)
	ClearCart(context.Context, *ClearCartRequest) (*CartDTO, error)
	Checkout(context.Context, *CheckoutRequest) (*CheckoutResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*OrderDTO, error)
}

var checkoutServiceDesc = grpc.ServiceDesc{
	ServiceName: checkoutServiceName,
	HandlerType: (*CheckoutServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCart", Handler: unaryHandler("GetCart", CheckoutServer.GetCart)},
		{MethodName: "AddItem", Handler: unaryHandler("AddItem", CheckoutServer.AddItem)},
		{MethodName: "SetQuantity", Handler: unaryHandler("SetQuantity", CheckoutServer.SetQuantity)},
		{MethodName: "RemoveItem", Handler: unaryHandler("RemoveItem", CheckoutServer.RemoveItem)},
		{MethodName: "IncrementItem", Handler: unaryHandler("IncrementItem", CheckoutServer.IncrementItem)},
		{MethodName: "DecrementItem", Handler: unaryHandler("DecrementItem", CheckoutServer.DecrementItem)},
		{MethodName: "CleanCart", Handler: unaryHandler("CleanCart", CheckoutServer.CleanCart)},
		{MethodName: "ClearCart", Handler: unaryHandler("ClearCart", CheckoutServer.ClearCart)},
		{MethodName: "Checkout", Handler: unaryHandler("Checkout", CheckoutServer.Checkout)},
		{MethodName: "ListOrders", Handler: unaryHandler("ListOrders", CheckoutServer.ListOrders)},
		{MethodName: "GetOrder", Handler: unaryHandler("GetOrder", CheckoutServer.GetOrder)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/checkout.json",
}

func RegisterCheckoutServer(s grpc.ServiceRegistrar, srv CheckoutServer) {
	s.RegisterService(&checkoutServiceDesc, srv)
}

func unaryHandler[Req, Resp any](method string, call func(CheckoutServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + checkoutServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(CheckoutServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var _ CheckoutServer = (*GRPCHandler)(nil)

type GRPCHandler struct {
	carts    *service.CartService
	checkout *service.CheckoutService
	orders   *service.OrderService
	logger   *slog.Logger
}

func NewGRPCHandler(carts *service.CartService, checkout *service.CheckoutService, orders *service.OrderService, logger *slog.Logger) *GRPCHandler {
	return &GRPCHandler{carts: carts, checkout: checkout, orders: orders, logger: logger}
}

func (h *GRPCHandler) GetCart(ctx context.Context, _ *GetCartRequest) (*CartDTO, error) {
	view, err := h.carts.View(ctx, sessionFromMetadata(ctx))
	return h.cartReply(view, err)
}

func (h *GRPCHandler) AddItem(ctx context.Context, req *AddItemRequest) (*CartDTO, error) {
	view, err := h.carts.Add(ctx, sessionFromMetadata(ctx), req.ProductID, req.Quantity)
	return h.cartReply(view, err)
}

func (h *GRPCHandler) SetQuantity(ctx context.Context, req *SetQuantityRequest) (*CartDTO, error) {
	view, err := h.carts.SetQuantity(ctx, sessionFromMetadata(ctx), req.ProductID, req.Quantity)
	return h.cartReply(view, err)
}

func (h *GRPCHandler) RemoveItem(ctx context.Context, req *ItemRequest) (*CartDTO, error) {
	view, err := h.carts.Remove(ctx, sessionFromMetadata(ctx), req.ProductID)
	return h.cartReply(view, err)
}

func (h *GRPCHandler) IncrementItem(ctx context.Context, req *ItemRequest) (*CartDTO, error) {
	view, err := h.carts.Increment(ctx, sessionFromMetadata(ctx), req.ProductID)
	return h.cartReply(view, err)
}

func (h *GRPCHandler) DecrementItem(ctx context.Context, req *ItemRequest) (*CartDTO, error) {
	view, err := h.carts.Decrement(ctx, sessionFromMetadata(ctx), req.ProductID)
	return h.cartReply(view, err)
}

func (h *GRPCHandler) CleanCart(ctx context.Context, _ *CleanCartRequest) (*CleanCartResponse, error) {
	view, issues, err := h.carts.Clean(ctx, sessionFromMetadata(ctx))
	if err != nil {
		return nil, h.statusError(err)
	}
	adjustments := toIssueDTOs(issues)
	if adjustments == nil {
		adjustments = []IssueDTO{}
	}
	return &CleanCartResponse{Cart: toCartDTO(view), Adjustments: adjustments}, nil
}

func (h *GRPCHandler) ClearCart(ctx context.Context, _ *ClearCartRequest) (*CartDTO, error) {
	sess := sessionFromMetadata(ctx)
	if err := h.carts.Clear(ctx, sess); err != nil {
		return nil, h.statusError(err)
	}
	view, err := h.carts.View(ctx, sess)
	return h.cartReply(view, err)
}

// Checkout reports business rejections in the reply body so callers can read
// the offending lines. Only unclassified failures become status errors.
func (h *GRPCHandler) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	order, err := h.checkout.Checkout(ctx, sessionFromMetadata(ctx), req.RequestID)
	if err != nil {
		m := mapError(err)
		if m.grpcCode == codes.Internal {
			return nil, h.statusError(err)
		}
		resp := &CheckoutResponse{
			Success:   false,
			Message:   err.Error(),
			Code:      m.code,
			Retryable: m.retryable(),
		}
		var ce *domain.CheckoutError
		if errors.As(err, &ce) {
			resp.Message = ce.Reason.Error()
			resp.Issues = toIssueDTOs(ce.Issues)
		}
		return resp, nil
	}

	dto := toOrderDTO(order)
	return &CheckoutResponse{
		Success: true,
		Message: "order placed successfully",
		Order:   &dto,
	}, nil
}

func (h *GRPCHandler) ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	orders, err := h.orders.ListOrders(ctx, sessionFromMetadata(ctx).UserID, req.Page, req.PageSize)
	if err != nil {
		return nil, h.statusError(err)
	}
	return &ListOrdersResponse{Orders: toOrderDTOs(orders)}, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderDTO, error) {
	order, err := h.orders.GetOrder(ctx, sessionFromMetadata(ctx).UserID, req.OrderID)
	if err != nil {
		return nil, h.statusError(err)
	}
	dto := toOrderDTO(order)
	return &dto, nil
}

func (h *GRPCHandler) cartReply(view *service.CartView, err error) (*CartDTO, error) {
	if err != nil {
		return nil, h.statusError(err)
	}
	dto := toCartDTO(view)
	return &dto, nil
}

func (h *GRPCHandler) statusError(err error) error {
	m := mapError(err)
	if m.grpcCode == codes.Internal {
		h.logger.Error("grpc request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(m.grpcCode, err.Error())
}

func sessionFromMetadata(ctx context.Context) domain.Session {
	md, _ := metadata.FromIncomingContext(ctx)
	return domain.Session{
		ID:     firstValue(md, MetadataSessionID),
		UserID: firstValue(md, MetadataUserID),
	}
}

func firstValue(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

// CheckoutClient calls a remote CheckoutServer using the JSON codec.
type CheckoutClient struct {
	cc grpc.ClientConnInterface
}

func NewCheckoutClient(cc grpc.ClientConnInterface) *CheckoutClient {
	return &CheckoutClient{cc: cc}
}

// WithIdentity attaches the caller's session and user to an outgoing context.
func WithIdentity(ctx context.Context, sess domain.Session) context.Context {
	return metadata.AppendToOutgoingContext(ctx, MetadataSessionID, sess.ID, MetadataUserID, sess.UserID)
}

func (c *CheckoutClient) GetCart(ctx context.Context, in *GetCartRequest, opts ...grpc.CallOption) (*CartDTO, error) {
	return invoke[CartDTO](ctx, c.cc, "GetCart", in, opts)
}

func (c *CheckoutClient) AddItem(ctx context.Context, in *AddItemRequest, opts ...grpc.CallOption) (*CartDTO, error) {
	return invoke[CartDTO](ctx, c.cc, "AddItem", in, opts)
}

func (c *CheckoutClient) SetQuantity(ctx context.Context, in *SetQuantityRequest, opts ...grpc.CallOption) (*CartDTO, error) {
	return invoke[CartDTO](ctx, c.cc, "SetQuantity", in, opts)
}

func (c *CheckoutClient) RemoveItem(ctx context.Context, in *ItemRequest, opts ...grpc.CallOption) (*CartDTO, error) {
	return invoke[CartDTO](ctx, c.cc, "RemoveItem", in, opts)
}

func (c *CheckoutClient) IncrementItem(ctx context.Context, in *ItemRequest, opts ...grpc.CallOption) (*CartDTO, error) {
	return invoke[CartDTO](ctx, c.cc, "IncrementItem", in, opts)
}

func (c *CheckoutClient) DecrementItem(ctx context.Context, in *ItemRequest, opts ...grpc.CallOption) (*CartDTO, error) {
	return invoke[CartDTO](ctx, c.cc, "DecrementItem", in, opts)
}

func (c *CheckoutClient) CleanCart(ctx context.Context, in *CleanCartRequest, opts ...grpc.CallOption) (*CleanCartResponse, error) {
	return invoke[CleanCartResponse](ctx, c.cc, "CleanCart", in, opts)
}

func (c *CheckoutClient) ClearCart(ctx context.Context, in *ClearCartRequest, opts ...grpc.CallOption) (*CartDTO, error) {
	return invoke[CartDTO](ctx, c.cc, "ClearCart", in, opts)
}

func (c *CheckoutClient) Checkout(ctx context.Context, in *CheckoutRequest, opts ...grpc.CallOption) (*CheckoutResponse, error) {
	return invoke[CheckoutResponse](ctx, c.cc, "Checkout", in, opts)
}

func (c *CheckoutClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, "ListOrders", in, opts)
}

func (c *CheckoutClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*OrderDTO, error) {
	return invoke[OrderDTO](ctx, c.cc, "GetOrder", in, opts)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+checkoutServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
