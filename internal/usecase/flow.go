package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/core/port"
	"github.com/arklim/authflow/internal/infra/security"
)

// OTP resend purposes accepted by AuthService.ResendOTP.
const (
	PurposeSignup        = "signup"
	PurposePasswordReset = "password-reset"
)

// Ack acknowledges a step that sent or accepted a code.
type Ack struct {
	Message string
	Email   string
}

// Verification is returned after a successful OTP check.
type Verification struct {
	Message           string
	Email             string
	VerificationToken string
}

// otpFlow holds what the signup and reset flows share: code generation,
// pending record storage, mail delivery and verification tokens.
type otpFlow struct {
	pending     *pendingStore
	mailer      port.MailDispatcher
	codec       *security.TokenCodec
	otpTTL      time.Duration
	verifyTTL   time.Duration
	generateOTP func() (string, error)
	logger      *zap.Logger
	observer    OperationObserver
	now         func() time.Time
}

func newOTPFlow(store port.EphemeralStore, mailer port.MailDispatcher, codec *security.TokenCodec, otpTTL, verifyTTL time.Duration, digits int) otpFlow {
	return otpFlow{
		pending:     newPendingStore(store, nil),
		mailer:      mailer,
		codec:       codec,
		otpTTL:      otpTTL,
		verifyTTL:   verifyTTL,
		generateOTP: func() (string, error) { return security.GenerateOTP(digits) },
		logger:      zap.NewNop(),
		observer:    noopObserver{},
		now:         time.Now,
	}
}

func (f *otpFlow) setLogger(logger *zap.Logger) {
	if logger != nil {
		f.logger = logger
		f.pending.logger = logger
	}
}

func (f *otpFlow) newCode() (string, error) {
	code, err := f.generateOTP()
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return code, nil
}

func (f *otpFlow) sendCode(ctx context.Context, to, template, name, code string) error {
	data := map[string]any{
		"otp":           code,
		"expiryMinutes": int(f.otpTTL / time.Minute),
		"name":          name,
	}
	if err := f.mailer.Send(ctx, to, template, data); err != nil {
		return fmt.Errorf("send %s email: %w", template, err)
	}
	return nil
}

func (f *otpFlow) issueVerificationToken(email string) (string, error) {
	token, err := f.codec.Sign(security.VerificationClaims(email), f.verifyTTL)
	if err != nil {
		return "", fmt.Errorf("sign verification token: %w", err)
	}
	return token, nil
}

// checkVerificationToken requires a valid verification token whose email
// claim equals email.
func (f *otpFlow) checkVerificationToken(token, email string) error {
	claims, err := f.codec.Verify(token)
	if err != nil {
		return ErrInvalidVerificationToken
	}
	if claims.Purpose != security.PurposeVerification || !claims.Verified || claims.Email != email {
		return ErrInvalidVerificationToken
	}
	return nil
}

// sessionIssuer is the part of SessionService the flows need.
type sessionIssuer interface {
	Issue(user *domain.User) (domain.SessionTokens, error)
}
