package grpcapi

import (
	"context"
	"log/slog"
	"time"

	"shop-service/pkg/logkey"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const purchaseServiceName = "shop.PurchaseService"

type HasPurchasedRequest struct {
	UserID    int64 `json:"user_id"`
	ProductID int64 `json:"product_id"`
}

type HasPurchasedResponse struct {
	Purchased bool `json:"purchased"`
}

// PurchaseServer lets other services (reviews) check that a user bought a product.
type PurchaseServer interface {
	HasPurchased(ctx context.Context, req *HasPurchasedRequest) (*HasPurchasedResponse, error)
}

// PurchaseChecker is the storage lookup behind PurchaseServer.
type PurchaseChecker interface {
	HasPurchased(ctx context.Context, userID, productID int64) (bool, error)
}

type purchaseService struct {
	checker PurchaseChecker
}

func NewPurchaseService(checker PurchaseChecker) PurchaseServer {
	return &purchaseService{checker: checker}
}

func (s *purchaseService) HasPurchased(ctx context.Context, req *HasPurchasedRequest) (*HasPurchasedResponse, error) {
	if req.UserID <= 0 || req.ProductID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "user_id and product_id must be positive")
	}
	ok, err := s.checker.HasPurchased(ctx, req.UserID, req.ProductID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to check purchase: %v", err)
	}
	return &HasPurchasedResponse{Purchased: ok}, nil
}

func hasPurchasedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HasPurchasedRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PurchaseServer).HasPurchased(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + purchaseServiceName + "/HasPurchased",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PurchaseServer).HasPurchased(ctx, req.(*HasPurchasedRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var PurchaseServiceDesc = grpc.ServiceDesc{
	ServiceName: purchaseServiceName,
	HandlerType: (*PurchaseServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "HasPurchased", Handler: hasPurchasedHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shop/purchase",
}

// NewServer returns a gRPC server exposing the purchase service.
func NewServer(checker PurchaseChecker) *grpc.Server {
	s := grpc.NewServer(
		grpc.ForceServerCodec(Codec),
		grpc.ChainUnaryInterceptor(loggingInterceptor),
	)
	s.RegisterService(&PurchaseServiceDesc, NewPurchaseService(checker))
	return s
}

func loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	traceId := uuid.NewString()
	resp, err := handler(ctx, req)
	slog.Info("grpc call",
		slog.String(logkey.TraceID, traceId),
		slog.String("method", info.FullMethod),
		slog.String("code", status.Code(err).String()),
		slog.Duration("latency", time.Since(start)))
	return resp, err
}

// PurchaseClient calls a remote PurchaseService.
type PurchaseClient struct {
	cc grpc.ClientConnInterface
}

func NewPurchaseClient(cc grpc.ClientConnInterface) *PurchaseClient {
	return &PurchaseClient{cc: cc}
}

func (c *PurchaseClient) HasPurchased(ctx context.Context, in *HasPurchasedRequest, opts ...grpc.CallOption) (*HasPurchasedResponse, error) {
	out := new(HasPurchasedResponse)
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+purchaseServiceName+"/HasPurchased", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
