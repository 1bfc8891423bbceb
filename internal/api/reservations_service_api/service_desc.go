package reservations_service_api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "railbooking.v1.ReservationService"

// ReservationServiceServer is the server API of railbooking.v1.ReservationService.
// Requests and responses are google.protobuf.Struct documents whose keys
// follow the JSON names of the REST API.
type ReservationServiceServer interface {
	CreateBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CancelBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetRACQueue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetWaitlist(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(ReservationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ReservationServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ReservationServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReservationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CreateBooking", ReservationServiceServer.CreateBooking),
		unaryHandler("CancelBooking", ReservationServiceServer.CancelBooking),
		unaryHandler("ListBookings", ReservationServiceServer.ListBookings),
		unaryHandler("GetRACQueue", ReservationServiceServer.GetRACQueue),
		unaryHandler("GetWaitlist", ReservationServiceServer.GetWaitlist),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "railbooking/v1/reservations.proto",
}

func RegisterReservationServiceServer(s grpc.ServiceRegistrar, srv ReservationServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls railbooking.v1.ReservationService over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateBooking(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CreateBooking", in, opts...)
}

func (c *Client) CancelBooking(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CancelBooking", in, opts...)
}

func (c *Client) ListBookings(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListBookings", in, opts...)
}

func (c *Client) GetRACQueue(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetRACQueue", in, opts...)
}

func (c *Client) GetWaitlist(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetWaitlist", in, opts...)
}
