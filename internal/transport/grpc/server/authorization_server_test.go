package server

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/usecase"
)

type stubAuthorizer struct {
	users   map[string]*domain.User
	err     error
	headers []string
}

func (s *stubAuthorizer) Authorize(_ context.Context, header string, _ ...domain.Role) (*domain.User, error) {
	s.headers = append(s.headers, header)
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[header]
	if !ok {
		return nil, usecase.ErrUnauthorized
	}
	return user, nil
}

func TestAuthorizationServerAuthorize(t *testing.T) {
	srv := NewAuthorizationServer(&stubAuthorizer{})

	if _, err := srv.Authorize(context.Background(), &emptypb.Empty{}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated without user, got %v", err)
	}

	user := &domain.User{ID: "user-1", Email: "a@x.io", Username: "ann", Role: domain.RoleAdmin}
	resp, err := srv.Authorize(usecase.WithUser(context.Background(), user), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	fields := resp.AsMap()
	if fields["valid"] != true || fields["userId"] != "user-1" || fields["role"] != "ADMIN" {
		t.Fatalf("unexpected response %v", fields)
	}
}

func TestAuthorizationServerValidate(t *testing.T) {
	authorizer := &stubAuthorizer{users: map[string]*domain.User{
		"Bearer good": {ID: "user-1", Email: "a@x.io", Username: "ann", Role: domain.RoleUser},
	}}
	srv := NewAuthorizationServer(authorizer)

	tests := []struct {
		name   string
		token  string
		valid  bool
		reason string
	}{
		{name: "valid", token: "good", valid: true},
		{name: "surrounding space", token: "  good ", valid: true},
		{name: "invalid", token: "bad", reason: "access token invalid"},
		{name: "empty", token: " ", reason: "token is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := srv.Validate(context.Background(), wrapperspb.String(tc.token))
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			fields := resp.AsMap()
			if fields["valid"] != tc.valid {
				t.Fatalf("expected valid=%v, got %v", tc.valid, fields)
			}
			if tc.valid && fields["userId"] != "user-1" {
				t.Fatalf("missing user id: %v", fields)
			}
			if !tc.valid && fields["error"] != tc.reason {
				t.Fatalf("expected reason %q, got %v", tc.reason, fields["error"])
			}
		})
	}

	if authorizer.headers[0] != "Bearer good" || authorizer.headers[1] != "Bearer good" {
		t.Fatalf("unexpected headers %v", authorizer.headers)
	}
}

func TestAuthorizationServerValidateStoreFailure(t *testing.T) {
	srv := NewAuthorizationServer(&stubAuthorizer{err: errors.New("connection reset")})

	_, err := srv.Validate(context.Background(), wrapperspb.String("good"))
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}
