package controlrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls anchorpoint.v1.Placement.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) call(ctx context.Context, method string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Enter(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, EnterMethod, opts...)
}

func (c *Client) Confirm(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, ConfirmMethod, opts...)
}

func (c *Client) Replace(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, ReplaceMethod, opts...)
}

func (c *Client) Exit(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, ExitMethod, opts...)
}

func (c *Client) Status(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, StatusMethod, opts...)
}

// Call invokes a unary method by its short name ("status", "enter", ...).
func (c *Client) Call(ctx context.Context, name string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	switch name {
	case "enter":
		return c.Enter(ctx, opts...)
	case "confirm":
		return c.Confirm(ctx, opts...)
	case "replace":
		return c.Replace(ctx, opts...)
	case "exit":
		return c.Exit(ctx, opts...)
	case "status":
		return c.Status(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown method %q", name)
	}
}

// Watch opens the event stream. The first message is the current status.
func (c *Client) Watch(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], WatchMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
