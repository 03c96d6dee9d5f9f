package usecase

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/core/port"
	"github.com/arklim/authflow/internal/infra/security"
)

const bearerPrefix = "Bearer "

type userContextKey struct{}

// Authorizer validates bearer access tokens and enforces role requirements.
// It is transport agnostic; HTTP and gRPC adapters pass the raw header.
type Authorizer struct {
	codec    *security.TokenCodec
	accounts accountVerifier
	logger   *zap.Logger
	observer OperationObserver
}

func NewAuthorizer(users port.UserRepository, codec *security.TokenCodec) *Authorizer {
	return &Authorizer{
		codec:    codec,
		accounts: accountVerifier{users: users},
		logger:   zap.NewNop(),
		observer: noopObserver{},
	}
}

func (a *Authorizer) WithLogger(logger *zap.Logger) *Authorizer {
	if logger != nil {
		a.logger = logger
	}
	return a
}

func (a *Authorizer) WithObserver(observer OperationObserver) *Authorizer {
	if observer != nil {
		a.observer = observer
	}
	return a
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// value. ok is false for empty values and other schemes.
func BearerToken(header string) (string, bool) {
	token, found := strings.CutPrefix(strings.TrimSpace(header), bearerPrefix)
	token = strings.TrimSpace(token)
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// Authorize resolves the user behind header. With roles set, the user must
// hold one of them. Token and account failures are all ErrUnauthorized.
func (a *Authorizer) Authorize(ctx context.Context, header string, roles ...domain.Role) (user *domain.User, err error) {
	ctx, done := traceOperation(ctx, a.observer, "authorize")
	defer func() { done(err) }()

	token, ok := BearerToken(header)
	if !ok {
		return nil, ErrMissingToken
	}

	claims, err := a.codec.Verify(token)
	if err != nil {
		a.logger.Debug("access token rejected", zap.Error(err))
		return nil, ErrUnauthorized
	}
	if claims.Purpose != security.PurposeAccess || claims.Subject == "" {
		return nil, ErrUnauthorized
	}

	user, err = a.accounts.byID(ctx, claims.Subject)
	if err != nil {
		if isAccountRejection(err) {
			a.logger.Debug("account rejected", zap.String("user_id", claims.Subject), zap.Error(err))
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	if len(roles) > 0 && !slices.Contains(roles, user.Role) {
		return nil, ErrForbidden
	}

	return user, nil
}

// WithUser attaches an authorized user to ctx.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*domain.User)
	return user, ok && user != nil
}
