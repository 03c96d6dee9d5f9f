package interceptors

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/usecase"
)

const authorizationKey = "authorization"

// RequestAuthorizer resolves the user behind an Authorization value.
type RequestAuthorizer interface {
	Authorize(ctx context.Context, header string, roles ...domain.Role) (*domain.User, error)
}

// AuthOptions fine-tunes interceptor behaviour.
type AuthOptions struct {
	// AllowMethods skip authorization entirely.
	AllowMethods []string
	// MethodRoles restricts a full method name to the listed roles.
	MethodRoles map[string][]domain.Role
	Logger      *zap.Logger
}

// AuthInterceptor authorizes incoming calls from the authorization metadata.
type AuthInterceptor struct {
	authorizer RequestAuthorizer
	logger     *zap.Logger
	allow      map[string]struct{}
	roles      map[string][]domain.Role
}

// NewAuthInterceptor constructs a new AuthInterceptor instance.
func NewAuthInterceptor(authorizer RequestAuthorizer, opts AuthOptions) *AuthInterceptor {
	allow := make(map[string]struct{}, len(opts.AllowMethods))
	for _, method := range opts.AllowMethods {
		if method = strings.TrimSpace(method); method != "" {
			allow[method] = struct{}{}
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuthInterceptor{authorizer: authorizer, logger: logger, allow: allow, roles: opts.MethodRoles}
}

// UnaryServerInterceptor returns a gRPC unary interceptor that enforces bearer authentication.
func (ai *AuthInterceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, err := ai.authorize(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor applies the same checks to streaming calls.
func (ai *AuthInterceptor) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := ai.authorize(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authorizedStream{ServerStream: ss, ctx: ctx})
	}
}

func (ai *AuthInterceptor) authorize(ctx context.Context, method string) (context.Context, error) {
	if ai == nil || ai.authorizer == nil {
		return ctx, nil
	}
	if _, ok := ai.allow[method]; ok {
		return ctx, nil
	}

	user, err := ai.authorizer.Authorize(ctx, authorizationFromMetadata(ctx), ai.roles[method]...)
	if err != nil {
		ai.logger.Warn("gRPC authorization failed", zap.String("method", method), zap.Error(err))
		return nil, toStatus(err)
	}

	return usecase.WithUser(ctx, user), nil
}

func toStatus(err error) error {
	switch usecase.KindOf(err) {
	case usecase.KindUnauthorized:
		return status.Error(codes.Unauthenticated, err.Error())
	case usecase.KindForbidden:
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		return status.Error(codes.Internal, "failed to authorize request")
	}
}

func authorizationFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, value := range md.Get(authorizationKey) {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

type authorizedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authorizedStream) Context() context.Context {
	return s.ctx
}
