package host

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// WidgetClient calls WidgetService.
type WidgetClient struct {
	cc grpc.ClientConnInterface
}

// NewWidgetClient returns a client using cc.
func NewWidgetClient(cc grpc.ClientConnInterface) *WidgetClient {
	return &WidgetClient{cc: cc}
}

// List returns the widget kinds the server offers.
func (c *WidgetClient) List(ctx context.Context, opts ...grpc.CallOption) ([]string, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	raw := out.GetFields()["kinds"].GetListValue().GetValues()
	kinds := make([]string, 0, len(raw))
	for _, v := range raw {
		kinds = append(kinds, v.GetStringValue())
	}
	return kinds, nil
}

// Watch opens a snapshot stream for kind. Cancel ctx to unmount.
func (c *WidgetClient) Watch(ctx context.Context, kind string, opts ...grpc.CallOption) (*WatchStream, error) {
	stream, err := c.cc.NewStream(ctx, &widgetServiceDesc.Streams[0], watchMethod, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(wrapperspb.String(kind)); err != nil {
		return nil, fmt.Errorf("send watch request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("close watch request: %w", err)
	}
	return &WatchStream{stream: stream}, nil
}

// WatchStream is the client side of a Watch call.
type WatchStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next snapshot. It returns io.EOF when the server ends
// the stream.
func (w *WatchStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := w.stream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
