// Package controlrpc exposes the placement controller over gRPC as the
// anchorpoint.v1.Placement service. Messages are protobuf well-known types
// so no generated code is needed: requests are google.protobuf.Empty and
// replies google.protobuf.Struct.
package controlrpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/anchorpoint/internal/monitoring"
	"github.com/banshee-data/anchorpoint/internal/placement"
	"github.com/banshee-data/anchorpoint/internal/session"
	"github.com/banshee-data/anchorpoint/internal/xr"
)

const (
	ServiceName = "anchorpoint.v1.Placement"

	EnterMethod   = "/" + ServiceName + "/Enter"
	ConfirmMethod = "/" + ServiceName + "/Confirm"
	ReplaceMethod = "/" + ServiceName + "/Replace"
	ExitMethod    = "/" + ServiceName + "/Exit"
	StatusMethod  = "/" + ServiceName + "/Status"
	WatchMethod   = "/" + ServiceName + "/Watch"
)

// Controller is the placement surface the service drives.
type Controller interface {
	Enter(ctx context.Context) error
	Confirm() placement.Transition
	Replace() placement.Transition
	Exit(ctx context.Context) error
	Status() placement.Status
}

// PlacementServer is the server API for anchorpoint.v1.Placement.
type PlacementServer interface {
	Enter(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Confirm(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Replace(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Exit(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Watch(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

var _ PlacementServer = (*Service)(nil)

// Service implements anchorpoint.v1.Placement.
type Service struct {
	ctrl   Controller
	events *Broadcaster
	// enterTimeout bounds an Enter call on top of the caller's deadline.
	enterTimeout time.Duration
}

// NewService wires ctrl and the event broadcaster that feeds Watch. events
// should also be installed as (part of) the controller's Sink.
func NewService(ctrl Controller, events *Broadcaster) *Service {
	return &Service{ctrl: ctrl, events: events, enterTimeout: 30 * time.Second}
}

// Enter starts a session and replies with the resulting status.
func (s *Service) Enter(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	ctx, cancel := context.WithTimeout(ctx, s.enterTimeout)
	defer cancel()
	if err := s.ctrl.Enter(ctx); err != nil {
		monitoring.Logf("[controlrpc] enter failed: %v", err)
		return nil, toStatus(err)
	}
	return toStruct(s.ctrl.Status().Fields())
}

// Confirm replies with the transition; an unchanged transition means the
// confirm was ignored.
func (s *Service) Confirm(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.ctrl.Confirm().Fields())
}

func (s *Service) Replace(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.ctrl.Replace().Fields())
}

func (s *Service) Exit(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ctrl.Exit(ctx); err != nil {
		return nil, toStatus(err)
	}
	return toStruct(s.ctrl.Status().Fields())
}

func (s *Service) Status(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.ctrl.Status().Fields())
}

// Watch streams the current status followed by every placement event until
// the client goes away or the server stops.
func (s *Service) Watch(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s.events == nil {
		return status.Error(codes.Unimplemented, "watch not enabled")
	}
	client := s.events.add()
	defer s.events.remove(client.id)

	first := s.ctrl.Status().Fields()
	first["event"] = "status"
	msg, err := toStruct(first)
	if err != nil {
		return err
	}
	if err := stream.Send(msg); err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-client.done:
			return nil
		case <-s.events.stopCh:
			return nil
		case ev := <-client.events:
			if err := stream.Send(ev); err != nil {
				monitoring.Logf("[controlrpc] watch %s send failed: %v", client.id, err)
				return err
			}
		}
	}
}

func toStruct(fields map[string]interface{}) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	return st, nil
}

// toStatus maps controller errors onto gRPC codes. The user-facing message
// travels as the status message.
func toStatus(err error) error {
	var xe *xr.Error
	switch {
	case errors.As(err, &xe):
		return status.Error(codeForCategory(xe.Category), xe.Message())
	case errors.Is(err, placement.ErrAlreadyEntered), errors.Is(err, session.ErrAlreadyActive):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, session.ErrCanceled), errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func codeForCategory(c xr.Category) codes.Code {
	switch c {
	case xr.CategoryUnsupported:
		return codes.Unimplemented
	case xr.CategoryPermissionDenied:
		return codes.PermissionDenied
	case xr.CategoryAcquisitionFailed:
		return codes.Unavailable
	case xr.CategoryEndedExternally:
		return codes.Aborted
	default:
		return codes.Unknown
	}
}

type unaryFunc func(PlacementServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)

func unaryHandler(method string, fn unaryFunc) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(srv.(PlacementServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return fn(srv.(PlacementServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(PlacementServer).Watch(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// ServiceDesc describes anchorpoint.v1.Placement for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PlacementServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Enter", Handler: unaryHandler(EnterMethod, PlacementServer.Enter)},
		{MethodName: "Confirm", Handler: unaryHandler(ConfirmMethod, PlacementServer.Confirm)},
		{MethodName: "Replace", Handler: unaryHandler(ReplaceMethod, PlacementServer.Replace)},
		{MethodName: "Exit", Handler: unaryHandler(ExitMethod, PlacementServer.Exit)},
		{MethodName: "Status", Handler: unaryHandler(StatusMethod, PlacementServer.Status)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "anchorpoint/v1/placement.proto",
}
