package host

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/signalsfoundry/livedemo/internal/logging"
	"github.com/signalsfoundry/livedemo/internal/observability"
)

func newBufconnClient(t *testing.T, h *Hub) (*grpc.ClientConn, *observability.RPCCollector) {
	t.Helper()

	rpc, err := observability.NewRPCCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	server, _ := NewGRPCServer(h, logging.Noop(), rpc)
	go func() { _ = server.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})
	return conn, rpc
}

func TestGRPCList(t *testing.T) {
	h, _ := newFakeHub(t)
	conn, rpc := newBufconnClient(t, h)

	kinds, err := NewWidgetClient(conn).List(context.Background())
	require.NoError(t, err)
	require.Equal(t, h.Kinds(), kinds)

	require.Equal(t, float64(1), testutil.ToFloat64(rpc.RPCRequests.WithLabelValues("WidgetService", "List", "OK")))
}

func TestGRPCWatchStreamsSnapshots(t *testing.T) {
	h, _ := newFakeHub(t, WithBuffer(64))
	conn, _ := newBufconnClient(t, h)

	ctx, cancel := context.WithCancel(metadata.AppendToOutgoingContext(context.Background(), requestIDMetadataKey, "watch-1"))
	defer cancel()

	stream, err := NewWidgetClient(conn).Watch(ctx, "audience-counter")
	require.NoError(t, err)

	msg, err := stream.Recv()
	require.NoError(t, err)
	fields := msg.GetFields()
	require.Equal(t, "audience-counter", fields["kind"].GetStringValue())
	require.Equal(t, "running", fields["state"].GetStringValue())
	require.Equal(t, float64(140000000), fields["value"].GetNumberValue())
	require.Equal(t, 1, h.Active())

	cancel()
	require.Eventually(t, func() bool { return h.Active() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestGRPCWatchErrors(t *testing.T) {
	h, _ := newFakeHub(t)
	conn, rpc := newBufconnClient(t, h)
	client := NewWidgetClient(conn)

	cases := map[string]codes.Code{
		"no-such-widget": codes.NotFound,
		"":               codes.InvalidArgument,
	}
	for kind, want := range cases {
		stream, err := client.Watch(context.Background(), kind)
		require.NoError(t, err)
		_, err = stream.Recv()
		require.Equal(t, want, status.Code(err), "kind %q: %v", kind, err)
	}

	require.Equal(t, float64(1), testutil.ToFloat64(rpc.RPCRequests.WithLabelValues("WidgetService", "Watch", "NotFound")))
}

func TestGRPCHealth(t *testing.T) {
	h, _ := newFakeHub(t)
	conn, _ := newBufconnClient(t, h)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: WidgetServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
