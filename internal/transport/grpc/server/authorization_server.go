package server

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/usecase"
)

const AuthorizationServiceName = "authflow.v1.AuthorizationService"

// Full method names, used for interceptor allow lists.
const (
	AuthorizeFullMethodName = "/" + AuthorizationServiceName + "/Authorize"
	ValidateFullMethodName  = "/" + AuthorizationServiceName + "/Validate"
)

// TokenAuthorizer resolves the user behind an Authorization value.
type TokenAuthorizer interface {
	Authorize(ctx context.Context, header string, roles ...domain.Role) (*domain.User, error)
}

// AuthorizationServiceServer is the server API of AuthorizationService.
type AuthorizationServiceServer interface {
	// Authorize returns the caller resolved by the auth interceptor.
	Authorize(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// Validate checks a bearer token on behalf of another service.
	Validate(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// AuthorizationServer lets other services resolve access tokens.
type AuthorizationServer struct {
	authorizer TokenAuthorizer
}

func NewAuthorizationServer(authorizer TokenAuthorizer) *AuthorizationServer {
	return &AuthorizationServer{authorizer: authorizer}
}

var _ AuthorizationServiceServer = (*AuthorizationServer)(nil)

// Authorize expects the interceptor to have attached the user.
func (s *AuthorizationServer) Authorize(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	user, ok := usecase.UserFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, usecase.ErrUnauthorized.Error())
	}
	return userStruct(user, true, "")
}

// Validate reports token problems in the response body. Only store
// failures are returned as errors.
func (s *AuthorizationServer) Validate(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	token := strings.TrimSpace(req.GetValue())
	if token == "" {
		return userStruct(nil, false, "token is required")
	}

	user, err := s.authorizer.Authorize(ctx, "Bearer "+token)
	if err != nil {
		switch usecase.KindOf(err) {
		case usecase.KindUnauthorized, usecase.KindForbidden:
			return userStruct(nil, false, "access token invalid")
		default:
			return nil, status.Error(codes.Internal, "failed to validate token")
		}
	}
	return userStruct(user, true, "")
}

func userStruct(user *domain.User, valid bool, reason string) (*structpb.Struct, error) {
	fields := map[string]any{"valid": valid}
	if reason != "" {
		fields["error"] = reason
	}
	if user != nil {
		fields["userId"] = user.ID
		fields["email"] = user.Email
		fields["username"] = user.Username
		fields["role"] = string(user.Role)
	}

	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

// RegisterAuthorizationServiceServer registers srv on s.
func RegisterAuthorizationServiceServer(s grpc.ServiceRegistrar, srv AuthorizationServiceServer) {
	s.RegisterService(&AuthorizationServiceDesc, srv)
}

// AuthorizationServiceDesc describes the service without generated code.
// Messages are well-known protobuf types.
var AuthorizationServiceDesc = grpc.ServiceDesc{
	ServiceName: AuthorizationServiceName,
	HandlerType: (*AuthorizationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Authorize", Handler: authorizeHandler},
		{MethodName: "Validate", Handler: validateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "authflow/v1/authorization.proto",
}

func authorizeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AuthorizationServiceServer).Authorize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AuthorizeFullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AuthorizationServiceServer).Authorize(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func validateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AuthorizationServiceServer).Validate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ValidateFullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AuthorizationServiceServer).Validate(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}
