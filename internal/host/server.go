package host

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/livedemo/internal/logging"
	"github.com/signalsfoundry/livedemo/internal/observability"
)

// NewGRPCServer builds a gRPC server exposing WidgetService and the standard
// health service. rpc may be nil to skip RPC metrics.
func NewGRPCServer(hub *Hub, log logging.Logger, rpc *observability.RPCCollector, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if log == nil {
		log = logging.Noop()
	}
	serverOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(log),
			TracingUnaryServerInterceptor(),
			rpc.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			RequestIDStreamServerInterceptor(log),
			TracingStreamServerInterceptor(),
			rpc.StreamServerInterceptor(),
		),
	}
	server := grpc.NewServer(append(serverOpts, opts...)...)

	RegisterWidgetServiceServer(server, NewWidgetService(hub, log))

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(WidgetServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthSrv)

	return server, healthSrv
}
