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

// PasswordResetService runs the OTP-gated reset flow:
// Initiate -> VerifyOTP -> Commit, with Resend replacing the code.
// Unlike sign-up, the reset OTP is consumed as soon as it verifies.
type PasswordResetService struct {
	otpFlow
	accounts  accountVerifier
	users     port.UserRepository
	hasher    port.PasswordHasher
	validator port.PasswordValidator
	events    port.EventPublisher
}

// NewPasswordResetService constructs a reset flow.
func NewPasswordResetService(
	users port.UserRepository,
	store port.EphemeralStore,
	mailer port.MailDispatcher,
	codec *security.TokenCodec,
	hasher port.PasswordHasher,
	validator port.PasswordValidator,
	cfg config.AuthSettings,
) *PasswordResetService {
	return &PasswordResetService{
		otpFlow:   newOTPFlow(store, mailer, codec, cfg.OTPTTL, cfg.VerificationTTL, cfg.OTPDigits),
		accounts:  accountVerifier{users: users},
		users:     users,
		hasher:    hasher,
		validator: validator,
	}
}

func (s *PasswordResetService) WithLogger(logger *zap.Logger) *PasswordResetService {
	s.setLogger(logger)
	return s
}

func (s *PasswordResetService) WithObserver(observer OperationObserver) *PasswordResetService {
	if observer != nil {
		s.observer = observer
	}
	return s
}

// WithEvents publishes password.reset after each committed reset.
func (s *PasswordResetService) WithEvents(events port.EventPublisher) *PasswordResetService {
	s.events = events
	return s
}

// WithOTPGenerator overrides code generation, used in tests.
func (s *PasswordResetService) WithOTPGenerator(gen func() (string, error)) *PasswordResetService {
	if gen != nil {
		s.generateOTP = gen
	}
	return s
}

// WithClock overrides the clock used for pending record timestamps.
func (s *PasswordResetService) WithClock(now func() time.Time) *PasswordResetService {
	if now != nil {
		s.now = now
	}
	return s
}

// Initiate mails a reset OTP to an existing account that may log in.
func (s *PasswordResetService) Initiate(ctx context.Context, email string) (ack Ack, err error) {
	ctx, done := traceOperation(ctx, s.observer, "password_reset.initiate")
	defer func() { done(err) }()

	if err := s.issueCode(ctx, normalizeEmail(email)); err != nil {
		return Ack{}, err
	}

	return Ack{
		Message: "Password reset instructions sent to your email",
		Email:   normalizeEmail(email),
	}, nil
}

// Resend re-checks the account and replaces the reset OTP.
func (s *PasswordResetService) Resend(ctx context.Context, email string) (ack Ack, err error) {
	ctx, done := traceOperation(ctx, s.observer, "password_reset.resend")
	defer func() { done(err) }()

	if err := s.issueCode(ctx, normalizeEmail(email)); err != nil {
		return Ack{}, err
	}

	return Ack{
		Message: "A new password reset OTP has been sent to your email address",
		Email:   normalizeEmail(email),
	}, nil
}

func (s *PasswordResetService) issueCode(ctx context.Context, email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}

	user, err := s.accounts.byEmail(ctx, email)
	if err != nil {
		return err
	}

	code, err := s.newCode()
	if err != nil {
		return err
	}

	record := domain.PendingReset{OTP: code, CreatedAt: s.now().UTC()}
	if err := s.pending.putJSON(ctx, resetKey(email), record, s.otpTTL); err != nil {
		return err
	}

	if err := s.sendCode(ctx, email, domain.TemplateResetPassword, user.Name, code); err != nil {
		return err
	}

	s.logger.Info("password reset code issued", logger.Email(email), zap.String("user_id", user.ID))
	return nil
}

// VerifyOTP consumes the reset OTP and returns a verification token.
func (s *PasswordResetService) VerifyOTP(ctx context.Context, email, code string) (result Verification, err error) {
	ctx, done := traceOperation(ctx, s.observer, "password_reset.verify_otp")
	defer func() { done(err) }()

	in := otpInput{Email: normalizeEmail(email), Code: code}
	if err := in.validate(); err != nil {
		return Verification{}, err
	}

	record, err := s.pending.reset(ctx, in.Email)
	if err != nil {
		return Verification{}, err
	}
	if record == nil {
		return Verification{}, ErrOTPExpiredOrNotFound
	}
	if record.OTP != in.Code {
		return Verification{}, ErrInvalidOTP
	}

	if err := s.pending.delete(ctx, resetKey(in.Email)); err != nil {
		return Verification{}, err
	}

	token, err := s.issueVerificationToken(in.Email)
	if err != nil {
		return Verification{}, err
	}

	return Verification{
		Message:           "OTP verified successfully. You can now reset your password.",
		Email:             in.Email,
		VerificationToken: token,
	}, nil
}

// Commit stores the new password for email after checking the
// verification token.
func (s *PasswordResetService) Commit(ctx context.Context, email, newPassword, verificationToken string) (ack Ack, err error) {
	ctx, done := traceOperation(ctx, s.observer, "password_reset.commit")
	defer func() { done(err) }()

	in := credentialInput{Email: normalizeEmail(email), Password: newPassword, VerificationToken: verificationToken}
	if err := in.validate(); err != nil {
		return Ack{}, err
	}
	if err := s.validator.Validate(newPassword); err != nil {
		return Ack{}, passwordPolicyError(err)
	}

	if err := s.checkVerificationToken(in.VerificationToken, in.Email); err != nil {
		return Ack{}, err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return Ack{}, fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, in.Email, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Ack{}, ErrUserNotFound
		}
		return Ack{}, fmt.Errorf("update password: %w", err)
	}

	if err := s.pending.delete(ctx, resetKey(in.Email)); err != nil {
		s.logger.Warn("clear pending reset failed", logger.Email(in.Email), zap.Error(err))
	}

	s.publishReset(ctx, in.Email)
	s.logger.Info("password reset committed", logger.Email(in.Email))

	return Ack{
		Message: "Password has been reset successfully",
		Email:   in.Email,
	}, nil
}

func (s *PasswordResetService) publishReset(ctx context.Context, email string) {
	if s.events == nil {
		return
	}
	event := domain.PasswordResetEvent{
		EventID: uuid.NewString(),
		Email:   email,
		ResetAt: s.now().UTC(),
	}
	if err := s.events.PublishPasswordReset(ctx, event); err != nil {
		s.logger.Warn("publish password reset event failed", logger.Email(email), zap.Error(err))
	}
}
