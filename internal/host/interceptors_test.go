package host

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/signalsfoundry/livedemo/internal/logging"
)

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeServerStream) Context() context.Context { return s.ctx }

func TestRequestIDUnaryInterceptorUsesIncomingMetadata(t *testing.T) {
	interceptor := RequestIDUnaryServerInterceptor(logging.Noop())
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDMetadataKey, "abc"))
	info := &grpc.UnaryServerInfo{FullMethod: listMethod}

	var gotID string
	var gotLogger logging.Logger
	_, err := interceptor(ctx, nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		gotID = logging.RequestIDFromContext(ctx)
		gotLogger = logging.LoggerFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if gotID != "abc" {
		t.Fatalf("request id = %q, want abc", gotID)
	}
	if gotLogger == nil {
		t.Fatalf("expected a request logger on the context")
	}
}

func TestRequestIDStreamInterceptorGeneratesID(t *testing.T) {
	interceptor := RequestIDStreamServerInterceptor(nil)
	ss := &fakeServerStream{ctx: context.Background()}
	info := &grpc.StreamServerInfo{FullMethod: watchMethod, IsServerStream: true}

	var gotID string
	err := interceptor(nil, ss, info, func(srv interface{}, stream grpc.ServerStream) error {
		gotID = logging.RequestIDFromContext(stream.Context())
		return nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if gotID == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestTracingInterceptorCreatesAnnotatedSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	interceptor := TracingUnaryServerInterceptor()
	ctx := logging.ContextWithRequestID(context.Background(), "req-9")
	info := &grpc.UnaryServerInfo{FullMethod: listMethod}

	if _, err := interceptor(ctx, nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("interceptor: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if got := spans[0].Name(); got != "WidgetRPC/WidgetService/List" {
		t.Fatalf("span name = %q", got)
	}
	want := attribute.String("request_id", "req-9")
	found := false
	for _, kv := range spans[0].Attributes() {
		if kv == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("span attributes %v missing %v", spans[0].Attributes(), want)
	}
}
