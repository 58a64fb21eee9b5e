package host

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/livedemo/internal/engine"
	"github.com/signalsfoundry/livedemo/internal/logging"
)

// WidgetServiceName is the fully-qualified gRPC service name. Messages are
// protobuf well-known types so clients need no generated code:
//
//	rpc List(google.protobuf.Empty) returns (google.protobuf.Struct);           // {"kinds": [...]}
//	rpc Watch(google.protobuf.StringValue) returns (stream google.protobuf.Struct); // snapshots
const WidgetServiceName = "livedemo.v1.WidgetService"

const (
	listMethod  = "/" + WidgetServiceName + "/List"
	watchMethod = "/" + WidgetServiceName + "/Watch"
)

// WidgetServiceServer is the server API for WidgetService.
type WidgetServiceServer interface {
	List(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Watch(*wrapperspb.StringValue, WatchServer) error
}

// WatchServer is the server side of a Watch stream.
type WatchServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchServer struct {
	grpc.ServerStream
}

func (s *watchServer) Send(m *structpb.Struct) error { return s.ServerStream.SendMsg(m) }

var widgetServiceDesc = grpc.ServiceDesc{
	ServiceName: WidgetServiceName,
	HandlerType: (*WidgetServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "List", Handler: listHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "livedemo/v1/widget.proto",
}

// RegisterWidgetServiceServer registers srv on s.
func RegisterWidgetServiceServer(s grpc.ServiceRegistrar, srv WidgetServiceServer) {
	s.RegisterService(&widgetServiceDesc, srv)
}

func listHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WidgetServiceServer).List(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WidgetServiceServer).List(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(WidgetServiceServer).Watch(in, &watchServer{stream})
}

// WidgetService serves hub widgets over gRPC.
type WidgetService struct {
	hub *Hub
	log logging.Logger
}

// NewWidgetService constructs a WidgetService bound to hub.
func NewWidgetService(hub *Hub, log logging.Logger) *WidgetService {
	if log == nil {
		log = logging.Noop()
	}
	return &WidgetService{hub: hub, log: log}
}

// List returns the subscribable widget kinds.
func (s *WidgetService) List(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	kinds := s.hub.Kinds()
	values := make([]interface{}, len(kinds))
	for i, k := range kinds {
		values[i] = k
	}
	out, err := structpb.NewStruct(map[string]interface{}{"kinds": values})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

// Watch mounts a widget for the lifetime of the stream and sends every
// snapshot it produces.
func (s *WidgetService) Watch(req *wrapperspb.StringValue, stream WatchServer) error {
	ctx := stream.Context()
	reqLog := logging.LoggerFromContext(ctx)
	if reqLog == nil {
		reqLog = s.log
	}
	reqLog = reqLog.With(logging.String("kind", req.GetValue()))

	sub, err := s.hub.Subscribe(ctx, req.GetValue())
	if err != nil {
		reqLog.Warn(ctx, "watch rejected", logging.Err(err))
		return ToStatusError(err)
	}
	defer sub.Close()
	reqLog.Info(ctx, "watch started", logging.String("widget_id", sub.ID()))

	sent := 0
	for {
		select {
		case <-ctx.Done():
			reqLog.Info(ctx, "watch ended by client", logging.Int("snapshots", sent))
			return nil
		case snap, ok := <-sub.C():
			if !ok {
				reqLog.Info(ctx, "watch ended by server", logging.Int("snapshots", sent))
				return nil
			}
			msg, err := SnapshotStruct(snap)
			if err != nil {
				return ToStatusError(err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
			sent++
		}
	}
}

// SnapshotStruct converts a snapshot to its JSON shape as a protobuf Struct.
func SnapshotStruct(snap engine.Snapshot) (*structpb.Struct, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("convert snapshot: %w", err)
	}
	return out, nil
}
