package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/core/port"
	"github.com/arklim/authflow/internal/infra/config"
	"github.com/arklim/authflow/internal/infra/security"
)

// SessionService mints access/refresh pairs. Tokens carry only the user id
// and are not tracked server-side.
type SessionService struct {
	accounts   accountVerifier
	codec      *security.TokenCodec
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *zap.Logger
	observer   OperationObserver
}

// NewSessionService constructs a session issuer.
func NewSessionService(users port.UserRepository, codec *security.TokenCodec, cfg config.AuthSettings) *SessionService {
	return &SessionService{
		accounts:   accountVerifier{users: users},
		codec:      codec,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		logger:     zap.NewNop(),
		observer:   noopObserver{},
	}
}

func (s *SessionService) WithLogger(logger *zap.Logger) *SessionService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *SessionService) WithObserver(observer OperationObserver) *SessionService {
	if observer != nil {
		s.observer = observer
	}
	return s
}

// Issue signs a fresh access and refresh token for user.
func (s *SessionService) Issue(user *domain.User) (domain.SessionTokens, error) {
	if user == nil || user.ID == "" {
		return domain.SessionTokens{}, fmt.Errorf("issue session: user id is required")
	}

	expiresAt := s.codec.Now().Add(s.accessTTL)
	access, err := s.codec.Sign(security.SessionClaims(user.ID, security.PurposeAccess), s.accessTTL)
	if err != nil {
		return domain.SessionTokens{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.codec.Sign(security.SessionClaims(user.ID, security.PurposeRefresh), s.refreshTTL)
	if err != nil {
		return domain.SessionTokens{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return domain.SessionTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh mints a new access token and echoes refreshToken back unchanged.
// Every token or account rejection is reported as ErrInvalidRefreshToken.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (tokens domain.SessionTokens, err error) {
	ctx, done := traceOperation(ctx, s.observer, "session.refresh")
	defer func() { done(err) }()

	claims, err := s.codec.Verify(refreshToken)
	if err != nil || claims.Purpose != security.PurposeRefresh || claims.Subject == "" {
		return domain.SessionTokens{}, ErrInvalidRefreshToken
	}

	user, err := s.accounts.byID(ctx, claims.Subject)
	if err != nil {
		if isAccountRejection(err) {
			return domain.SessionTokens{}, ErrInvalidRefreshToken
		}
		return domain.SessionTokens{}, err
	}

	expiresAt := s.codec.Now().Add(s.accessTTL)
	access, err := s.codec.Sign(security.SessionClaims(user.ID, security.PurposeAccess), s.accessTTL)
	if err != nil {
		return domain.SessionTokens{}, fmt.Errorf("sign access token: %w", err)
	}

	s.logger.Debug("session refreshed", zap.String("user_id", user.ID))

	return domain.SessionTokens{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}
