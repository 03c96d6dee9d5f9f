package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/infra/security"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{header: "Bearer abc", token: "abc", ok: true},
		{header: "  Bearer  abc ", token: "abc", ok: true},
		{header: "", ok: false},
		{header: "Bearer ", ok: false},
		{header: "Basic abc", ok: false},
		{header: "bearer abc", ok: false},
	}

	for _, tc := range cases {
		token, ok := BearerToken(tc.header)
		if token != tc.token || ok != tc.ok {
			t.Fatalf("BearerToken(%q) = %q, %v; want %q, %v", tc.header, token, ok, tc.token, tc.ok)
		}
	}
}

func TestAuthorizer_Authorize(t *testing.T) {
	env := newTestEnv(t)
	user := seedActiveUser(env, "u@x.io")
	admin := env.users.seed(domain.User{Email: "root@x.io", Username: "root", Role: domain.RoleAdmin, IsActive: true})
	banned := env.users.seed(domain.User{Email: "b@x.io", Username: "banned", IsActive: true, Security: domain.Security{IsBanned: true}})
	inactive := env.users.seed(domain.User{Email: "i@x.io", Username: "idle", IsActive: false})

	bearer := func(userID string, purpose security.TokenPurpose) string {
		t.Helper()
		token, err := env.codec.Sign(security.SessionClaims(userID, purpose), time.Hour)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		return "Bearer " + token
	}

	cases := []struct {
		name   string
		header string
		roles  []domain.Role
		want   error
		userID string
	}{
		{name: "valid user", header: bearer(user.ID, security.PurposeAccess), userID: user.ID},
		{name: "admin gate", header: bearer(admin.ID, security.PurposeAccess), roles: []domain.Role{domain.RoleAdmin}, userID: admin.ID},
		{name: "missing header", header: "", want: ErrMissingToken},
		{name: "wrong scheme", header: "Token abc", want: ErrMissingToken},
		{name: "garbage token", header: "Bearer nope", want: ErrUnauthorized},
		{name: "refresh token", header: bearer(user.ID, security.PurposeRefresh), want: ErrUnauthorized},
		{name: "unknown user", header: bearer("user-404", security.PurposeAccess), want: ErrUnauthorized},
		{name: "banned user", header: bearer(banned.ID, security.PurposeAccess), want: ErrUnauthorized},
		{name: "inactive user", header: bearer(inactive.ID, security.PurposeAccess), want: ErrUnauthorized},
		{name: "insufficient role", header: bearer(user.ID, security.PurposeAccess), roles: []domain.Role{domain.RoleAdmin}, want: ErrForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := env.authorizer.Authorize(context.Background(), tc.header, tc.roles...)
			if tc.want != nil {
				assertErrorIs(t, err, tc.want)
				return
			}
			if err != nil {
				t.Fatalf("Authorize: %v", err)
			}
			if got.ID != tc.userID {
				t.Fatalf("expected user %s, got %s", tc.userID, got.ID)
			}
		})
	}
}

func TestAuthorizer_RejectsExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	user := seedActiveUser(env, "u@x.io")
	tokens, err := env.sessions.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	env.clock.Advance(time.Hour + time.Second)
	_, err = env.authorizer.Authorize(context.Background(), "Bearer "+tokens.AccessToken)
	assertErrorIs(t, err, ErrUnauthorized)
}

func TestUserFromContext(t *testing.T) {
	if _, ok := UserFromContext(context.Background()); ok {
		t.Fatal("expected no user on empty context")
	}

	user := &domain.User{ID: "user-1"}
	got, ok := UserFromContext(WithUser(context.Background(), user))
	if !ok || got.ID != "user-1" {
		t.Fatalf("unexpected user %+v", got)
	}
}
