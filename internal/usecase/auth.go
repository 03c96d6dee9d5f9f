package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/core/port"
	"github.com/arklim/authflow/internal/infra/logger"
	"github.com/arklim/authflow/internal/repository"
)

// AuthService covers password sign-in and purpose-based OTP resend.
type AuthService struct {
	users        port.UserRepository
	hasher       port.PasswordHasher
	sessions     sessionIssuer
	registration *RegistrationService
	reset        *PasswordResetService
	logger       *zap.Logger
	observer     OperationObserver
}

func NewAuthService(
	users port.UserRepository,
	hasher port.PasswordHasher,
	sessions sessionIssuer,
	registration *RegistrationService,
	reset *PasswordResetService,
) *AuthService {
	return &AuthService{
		users:        users,
		hasher:       hasher,
		sessions:     sessions,
		registration: registration,
		reset:        reset,
		logger:       zap.NewNop(),
		observer:     noopObserver{},
	}
}

func (s *AuthService) WithLogger(logger *zap.Logger) *AuthService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *AuthService) WithObserver(observer OperationObserver) *AuthService {
	if observer != nil {
		s.observer = observer
	}
	return s
}

// SignIn verifies email and password and issues a session. Unknown emails
// and wrong passwords are indistinguishable; the account state is only
// reported once the password matched.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (tokens domain.SessionTokens, err error) {
	ctx, done := traceOperation(ctx, s.observer, "auth.sign_in")
	defer func() { done(err) }()

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.SessionTokens{}, ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.SessionTokens{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.SessionTokens{}, fmt.Errorf("lookup user by email: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Warn("password hash verification failed", zap.String("user_id", user.ID), zap.Error(err))
		return domain.SessionTokens{}, ErrInvalidCredentials
	}
	if !ok {
		return domain.SessionTokens{}, ErrInvalidCredentials
	}

	if err := checkAccountState(user); err != nil {
		return domain.SessionTokens{}, err
	}

	tokens, err = s.sessions.Issue(user)
	if err != nil {
		return domain.SessionTokens{}, err
	}

	s.logger.Info("user signed in", zap.String("user_id", user.ID), logger.Email(email))
	return tokens, nil
}

// ResendOTP dispatches to the registration or reset resend by purpose.
func (s *AuthService) ResendOTP(ctx context.Context, email, purpose string) (Ack, error) {
	switch purpose {
	case PurposeSignup:
		return s.registration.Resend(ctx, email)
	case PurposePasswordReset:
		return s.reset.Resend(ctx, email)
	default:
		return Ack{}, ErrInvalidPurpose
	}
}
