package grpc

import (
	"context"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "salon.scheduling.v1.SchedulingService"

// SchedulingServiceServer is the server side of ServiceName. Every method
// takes and returns a google.protobuf.Struct whose fields mirror the JSON
// payloads of the HTTP API.
type SchedulingServiceServer interface {
	ListSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckAvailability(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAvailability(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DescribeSlot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reserve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reschedule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Cancel(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAppointments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateBlackout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListBlackouts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteBlackout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PruneBlackouts(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(SchedulingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) gogrpc.MethodDesc {
	return gogrpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SchedulingServiceServer), ctx, in)
			}
			info := &gogrpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SchedulingServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = gogrpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServiceServer)(nil),
	Methods: []gogrpc.MethodDesc{
		unary("ListSlots", SchedulingServiceServer.ListSlots),
		unary("CheckAvailability", SchedulingServiceServer.CheckAvailability),
		unary("GetAvailability", SchedulingServiceServer.GetAvailability),
		unary("DescribeSlot", SchedulingServiceServer.DescribeSlot),
		unary("Reserve", SchedulingServiceServer.Reserve),
		unary("Reschedule", SchedulingServiceServer.Reschedule),
		unary("Cancel", SchedulingServiceServer.Cancel),
		unary("GetAppointment", SchedulingServiceServer.GetAppointment),
		unary("ListAppointments", SchedulingServiceServer.ListAppointments),
		unary("CreateBlackout", SchedulingServiceServer.CreateBlackout),
		unary("ListBlackouts", SchedulingServiceServer.ListBlackouts),
		unary("DeleteBlackout", SchedulingServiceServer.DeleteBlackout),
		unary("PruneBlackouts", SchedulingServiceServer.PruneBlackouts),
	},
	Streams:  []gogrpc.StreamDesc{},
	Metadata: "salon/scheduling/v1/scheduling.proto",
}

func RegisterSchedulingServiceServer(s gogrpc.ServiceRegistrar, srv SchedulingServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}
