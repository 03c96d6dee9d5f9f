package transportgrpc

import (
	"context"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/arklim/authflow/internal/core/domain"
	grpcinterceptors "github.com/arklim/authflow/internal/transport/grpc/interceptors"
	grpcserver "github.com/arklim/authflow/internal/transport/grpc/server"
	"github.com/arklim/authflow/internal/usecase"
)

type denyAllAuthorizer struct {
	calls int
}

func (d *denyAllAuthorizer) Authorize(context.Context, string, ...domain.Role) (*domain.User, error) {
	d.calls++
	return nil, context.Canceled
}

func TestNewServerRequiresAuthorizer(t *testing.T) {
	if _, err := NewServer(ServerDependencies{}); err == nil {
		t.Fatalf("expected error without authorizer")
	}
}

func TestHealthCheckIsPublicAndInstrumented(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	registry := prometheus.NewRegistry()
	metrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	authorizer := &denyAllAuthorizer{}
	srv, err := NewServer(ServerDependencies{
		Authorizer:     authorizer,
		Metrics:        metrics,
		TracerProvider: tp,
		Logger:         zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.Health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	listener := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected status %v", resp.GetStatus())
	}
	if authorizer.calls != 0 {
		t.Fatalf("health check must not be authorized, got %d calls", authorizer.calls)
	}

	if n, err := testutil.GatherAndCount(registry, "authflow_grpc_requests_total"); err != nil || n != 1 {
		t.Fatalf("expected one request series, got %d (%v)", n, err)
	}

	srv.GracefulStop()
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(recorder.Ended()) == 0 {
		t.Fatalf("expected a server span")
	}
}

type tokenAuthorizer struct {
	calls int
}

func (a *tokenAuthorizer) Authorize(_ context.Context, header string, roles ...domain.Role) (*domain.User, error) {
	a.calls++
	if header != "Bearer good" {
		return nil, usecase.ErrUnauthorized
	}
	return &domain.User{ID: "user-1", Email: "a@x.io", Username: "ann", Role: domain.RoleUser}, nil
}

func dialTestServer(t *testing.T, deps ServerDependencies) *grpc.ClientConn {
	t.Helper()

	srv, err := NewServer(deps)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	listener := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestAuthorizeRequiresBearerMetadata(t *testing.T) {
	authorizer := &tokenAuthorizer{}
	conn := dialTestServer(t, ServerDependencies{Authorizer: authorizer, Logger: zaptest.NewLogger(t)})

	out := &structpb.Struct{}
	err := conn.Invoke(context.Background(), grpcserver.AuthorizeFullMethodName, &emptypb.Empty{}, out)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated without metadata, got %v", err)
	}

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer good")
	if err := conn.Invoke(ctx, grpcserver.AuthorizeFullMethodName, &emptypb.Empty{}, out); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if got := out.AsMap()["userId"]; got != "user-1" {
		t.Fatalf("unexpected user id %v", got)
	}
}

func TestValidateIsPublic(t *testing.T) {
	authorizer := &tokenAuthorizer{}
	conn := dialTestServer(t, ServerDependencies{Authorizer: authorizer, Logger: zaptest.NewLogger(t)})

	out := &structpb.Struct{}
	if err := conn.Invoke(context.Background(), grpcserver.ValidateFullMethodName, wrapperspb.String("bad"), out); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out.AsMap()["valid"] != false {
		t.Fatalf("expected invalid token, got %v", out.AsMap())
	}
	// only the service itself consulted the authorizer
	if authorizer.calls != 1 {
		t.Fatalf("expected one authorizer call, got %d", authorizer.calls)
	}
}
