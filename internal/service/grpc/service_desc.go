package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName — полное имя gRPC сервиса заказов.
const ServiceName = "sashop.v1.OrderService"

const (
	MethodCreateOrder       = "/" + ServiceName + "/CreateOrder"
	MethodUpdateOrderStatus = "/" + ServiceName + "/UpdateOrderStatus"
	MethodCheckStock        = "/" + ServiceName + "/CheckStock"
	MethodGetOrder          = "/" + ServiceName + "/GetOrder"
)

// OrderServiceServer — серверная часть sashop.v1.OrderService.
// Тела запросов и ответов повторяют JSON API и передаются как google.protobuf.Struct.
type OrderServiceServer interface {
	CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	UpdateOrderStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CheckStock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(srv OrderServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// OrderServiceDesc описывает сервис для grpc.Server.RegisterService.
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateOrder",
			Handler:    unaryHandler(MethodCreateOrder, OrderServiceServer.CreateOrder),
		},
		{
			MethodName: "UpdateOrderStatus",
			Handler:    unaryHandler(MethodUpdateOrderStatus, OrderServiceServer.UpdateOrderStatus),
		},
		{
			MethodName: "CheckStock",
			Handler:    unaryHandler(MethodCheckStock, OrderServiceServer.CheckStock),
		},
		{
			MethodName: "GetOrder",
			Handler:    unaryHandler(MethodGetOrder, OrderServiceServer.GetOrder),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sashop/v1/order_service.proto",
}

// RegisterOrderServiceServer регистрирует реализацию на сервере.
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

// Client — клиент sashop.v1.OrderService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient создаёт клиента поверх соединения.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateOrder(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodCreateOrder, req, opts...)
}

func (c *Client) UpdateOrderStatus(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodUpdateOrderStatus, req, opts...)
}

func (c *Client) CheckStock(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodCheckStock, req, opts...)
}

func (c *Client) GetOrder(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetOrder, req, opts...)
}
