package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/core/port"
	"github.com/arklim/authflow/internal/infra/config"
	"github.com/arklim/authflow/internal/infra/logger"
	"github.com/arklim/authflow/internal/infra/security"
	"github.com/arklim/authflow/internal/repository"
)

// RegistrationService runs the OTP-gated sign-up flow:
// Initiate -> VerifyOTP -> Complete, with Resend replacing the code.
// No user row exists until both the OTP and the verification token derived
// from it have been presented.
type RegistrationService struct {
	otpFlow
	users     port.UserRepository
	usernames *UsernameAllocator
	hasher    port.PasswordHasher
	validator port.PasswordValidator
	sessions  sessionIssuer
	events    port.EventPublisher
}

// NewRegistrationService constructs a registration flow.
func NewRegistrationService(
	users port.UserRepository,
	store port.EphemeralStore,
	mailer port.MailDispatcher,
	codec *security.TokenCodec,
	hasher port.PasswordHasher,
	validator port.PasswordValidator,
	sessions sessionIssuer,
	cfg config.AuthSettings,
) *RegistrationService {
	return &RegistrationService{
		otpFlow:   newOTPFlow(store, mailer, codec, cfg.OTPTTL, cfg.VerificationTTL, cfg.OTPDigits),
		users:     users,
		usernames: NewUsernameAllocator(users, cfg.UsernameAttempts),
		hasher:    hasher,
		validator: validator,
		sessions:  sessions,
	}
}

func (s *RegistrationService) WithLogger(logger *zap.Logger) *RegistrationService {
	s.setLogger(logger)
	return s
}

func (s *RegistrationService) WithObserver(observer OperationObserver) *RegistrationService {
	if observer != nil {
		s.observer = observer
	}
	return s
}

// WithEvents publishes user.registered after each completed registration.
func (s *RegistrationService) WithEvents(events port.EventPublisher) *RegistrationService {
	s.events = events
	return s
}

// WithOTPGenerator overrides code generation, used in tests.
func (s *RegistrationService) WithOTPGenerator(gen func() (string, error)) *RegistrationService {
	if gen != nil {
		s.generateOTP = gen
	}
	return s
}

// WithClock overrides the clock used for pending record timestamps.
func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithUsernameAllocator replaces the default allocator.
func (s *RegistrationService) WithUsernameAllocator(allocator *UsernameAllocator) *RegistrationService {
	if allocator != nil {
		s.usernames = allocator
	}
	return s
}

// Initiate stores a PendingSignup under signup:<email> and mails its OTP.
// A supplied username must be free; otherwise one is allocated from name.
func (s *RegistrationService) Initiate(ctx context.Context, email, name, username string) (ack Ack, err error) {
	ctx, done := traceOperation(ctx, s.observer, "registration.initiate")
	defer func() { done(err) }()

	in := signupInput{Email: email, Name: name, Username: username}
	in.normalize()
	if err := in.validate(); err != nil {
		return Ack{}, err
	}

	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		return Ack{}, ErrEmailAlreadyRegistered
	} else if !errors.Is(err, repository.ErrNotFound) {
		return Ack{}, fmt.Errorf("lookup user by email: %w", err)
	}

	resolved, err := s.resolveUsername(ctx, in)
	if err != nil {
		return Ack{}, err
	}

	code, err := s.newCode()
	if err != nil {
		return Ack{}, err
	}

	record := domain.PendingSignup{
		Email:     in.Email,
		Name:      in.Name,
		Username:  resolved,
		Role:      domain.RoleUser,
		OTP:       code,
		CreatedAt: s.now().UTC(),
	}
	if err := s.pending.putJSON(ctx, signupKey(in.Email), record, s.otpTTL); err != nil {
		return Ack{}, err
	}

	if err := s.sendCode(ctx, in.Email, domain.TemplateVerifyAccount, in.Name, code); err != nil {
		return Ack{}, err
	}

	s.logger.Info("signup initiated", logger.Email(in.Email), zap.String("username", resolved))

	return Ack{
		Message: "OTP has been sent to your email address for verification",
		Email:   in.Email,
	}, nil
}

func (s *RegistrationService) resolveUsername(ctx context.Context, in signupInput) (string, error) {
	if in.Username == "" {
		seed := in.Name
		if seed == "" {
			seed = in.Email
		}
		return s.usernames.Allocate(ctx, seed)
	}

	taken, err := s.users.ExistsByUsername(ctx, in.Username)
	if err != nil {
		return "", fmt.Errorf("check username availability: %w", err)
	}
	if taken {
		return "", ErrUsernameTaken
	}
	return in.Username, nil
}

// VerifyOTP checks code against the pending signup and returns a
// verification token. The pending record stays for Complete.
func (s *RegistrationService) VerifyOTP(ctx context.Context, email, code string) (result Verification, err error) {
	ctx, done := traceOperation(ctx, s.observer, "registration.verify_otp")
	defer func() { done(err) }()

	in := otpInput{Email: normalizeEmail(email), Code: code}
	if err := in.validate(); err != nil {
		return Verification{}, err
	}

	record, err := s.pending.signup(ctx, in.Email)
	if err != nil {
		return Verification{}, err
	}
	if record == nil {
		return Verification{}, ErrOTPExpiredOrNotFound
	}
	if record.OTP != in.Code {
		return Verification{}, ErrInvalidOTP
	}

	token, err := s.issueVerificationToken(in.Email)
	if err != nil {
		return Verification{}, err
	}

	return Verification{
		Message:           "OTP verified successfully. You can now complete your registration.",
		Email:             in.Email,
		VerificationToken: token,
	}, nil
}

// Complete creates the user from the pending signup and returns a session.
func (s *RegistrationService) Complete(ctx context.Context, email, password, verificationToken string) (tokens domain.SessionTokens, err error) {
	ctx, done := traceOperation(ctx, s.observer, "registration.complete")
	defer func() { done(err) }()

	in := credentialInput{Email: normalizeEmail(email), Password: password, VerificationToken: verificationToken}
	if err := in.validate(); err != nil {
		return domain.SessionTokens{}, err
	}
	if err := s.validator.Validate(password); err != nil {
		return domain.SessionTokens{}, passwordPolicyError(err)
	}

	if err := s.checkVerificationToken(in.VerificationToken, in.Email); err != nil {
		return domain.SessionTokens{}, err
	}

	record, err := s.pending.signup(ctx, in.Email)
	if err != nil {
		return domain.SessionTokens{}, err
	}
	if record == nil {
		return domain.SessionTokens{}, ErrSessionExpired
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.SessionTokens{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, domain.NewUser{
		Email:        in.Email,
		Username:     record.Username,
		Name:         record.Name,
		PasswordHash: hash,
		Role:         record.Role,
	})
	if errors.Is(err, repository.ErrUniqueViolation) {
		return domain.SessionTokens{}, ErrConflictUsernameOrEmail
	}
	if err != nil {
		return domain.SessionTokens{}, fmt.Errorf("create user: %w", err)
	}

	if err := s.pending.delete(ctx, signupKey(in.Email)); err != nil {
		s.logger.Warn("clear pending signup failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.publishRegistered(ctx, user)
	s.logger.Info("registration completed", zap.String("user_id", user.ID), zap.String("username", user.Username))

	return s.sessions.Issue(user)
}

// Resend replaces the OTP of an existing pending signup, restarting its TTL.
func (s *RegistrationService) Resend(ctx context.Context, email string) (ack Ack, err error) {
	ctx, done := traceOperation(ctx, s.observer, "registration.resend")
	defer func() { done(err) }()

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return Ack{}, err
	}

	record, err := s.pending.signup(ctx, email)
	if err != nil {
		return Ack{}, err
	}
	if record == nil {
		return Ack{}, ErrNoPendingSignup
	}

	code, err := s.newCode()
	if err != nil {
		return Ack{}, err
	}
	record.OTP = code

	if err := s.pending.putJSON(ctx, signupKey(email), record, s.otpTTL); err != nil {
		return Ack{}, err
	}
	if err := s.sendCode(ctx, email, domain.TemplateVerifyAccount, record.Name, code); err != nil {
		return Ack{}, err
	}

	return Ack{
		Message: "A new OTP has been sent to your email address",
		Email:   email,
	}, nil
}

func (s *RegistrationService) publishRegistered(ctx context.Context, user *domain.User) {
	if s.events == nil {
		return
	}
	event := domain.UserRegisteredEvent{
		EventID:      uuid.NewString(),
		UserID:       user.ID,
		Username:     user.Username,
		Email:        user.Email,
		Role:         user.Role,
		RegisteredAt: user.CreatedAt,
	}
	if err := s.events.PublishUserRegistered(ctx, event); err != nil {
		s.logger.Warn("publish user registered event failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}
