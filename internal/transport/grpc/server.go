package transportgrpc

import (
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"

	grpcinterceptors "github.com/arklim/authflow/internal/transport/grpc/interceptors"
	grpcserver "github.com/arklim/authflow/internal/transport/grpc/server"
)

// DefaultPublicMethods never require a bearer token.
var DefaultPublicMethods = []string{
	healthpb.Health_Check_FullMethodName,
	healthpb.Health_Watch_FullMethodName,
	reflectionpb.ServerReflection_ServerReflectionInfo_FullMethodName,
	"/grpc.reflection.v1alpha.ServerReflection/ServerReflectionInfo",
	grpcserver.ValidateFullMethodName,
}

// ServerDependencies encapsulates what the gRPC server layer needs.
type ServerDependencies struct {
	Authorizer     grpcinterceptors.RequestAuthorizer
	Metrics        *grpcinterceptors.GRPCMetrics
	TracerProvider trace.TracerProvider
	Logger         *zap.Logger
	// PublicMethods are added to DefaultPublicMethods.
	PublicMethods []string
}

// Server bundles the gRPC server with its health service.
type Server struct {
	*grpc.Server
	Health *health.Server
}

// NewServer wires the authorization, health and reflection services behind
// tracing, metrics and bearer authorization.
func NewServer(deps ServerDependencies) (*Server, error) {
	if deps.Authorizer == nil {
		return nil, fmt.Errorf("authorizer is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	public := append(append([]string{}, DefaultPublicMethods...), deps.PublicMethods...)
	authInterceptor := grpcinterceptors.NewAuthInterceptor(deps.Authorizer, grpcinterceptors.AuthOptions{
		Logger:       logger,
		AllowMethods: public,
	})

	server := grpc.NewServer(
		grpcinterceptors.TracingServerOption(grpcinterceptors.TracingOptions{TracerProvider: deps.TracerProvider}),
		grpc.ChainUnaryInterceptor(
			deps.Metrics.UnaryServerInterceptor(),
			authInterceptor.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			deps.Metrics.StreamServerInterceptor(),
			authInterceptor.StreamServerInterceptor(),
		),
	)

	grpcserver.RegisterAuthorizationServiceServer(server, grpcserver.NewAuthorizationServer(deps.Authorizer))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)

	// Register reflection service for tools like Postman, grpcurl, etc.
	reflection.Register(server)

	return &Server{Server: server, Health: healthServer}, nil
}
