package usecase

import "errors"

// ErrorKind classifies flow failures for transport mapping.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindExpired
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindExpired:
		return "expired"
	default:
		return "internal"
	}
}

// Error is a tagged flow failure. Sentinels below are compared with errors.Is.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	// ErrValidation is wrapped with a detail message for malformed input.
	ErrValidation = newError(KindValidation, "validation_failed", "invalid input")
	// ErrInvalidPurpose indicates an unknown OTP resend purpose.
	ErrInvalidPurpose = newError(KindValidation, "invalid_purpose", "Invalid purpose for OTP resend")

	ErrEmailAlreadyRegistered  = newError(KindConflict, "email_already_registered", "Email already exists")
	ErrUsernameTaken           = newError(KindConflict, "username_taken", "Username already exists")
	ErrConflictUsernameOrEmail = newError(KindConflict, "username_or_email_conflict", "Username or email already exists")

	ErrOTPExpiredOrNotFound = newError(KindExpired, "otp_expired_or_not_found", "OTP expired or not found")
	ErrSessionExpired       = newError(KindExpired, "registration_session_expired", "Registration session expired. Please start the signup process again.")

	ErrNoPendingSignup = newError(KindNotFound, "no_pending_signup", "No pending signup found for this email")
	ErrUserNotFound    = newError(KindNotFound, "user_not_found", "User with this email does not exist")

	ErrInvalidOTP               = newError(KindUnauthorized, "invalid_otp", "Invalid OTP")
	ErrInvalidVerificationToken = newError(KindUnauthorized, "invalid_verification_token", "Invalid or expired verification token")
	ErrInvalidRefreshToken      = newError(KindUnauthorized, "invalid_refresh_token", "Invalid refresh token")
	ErrInvalidCredentials       = newError(KindUnauthorized, "invalid_credentials", "Invalid email or password")
	ErrAccountInactive          = newError(KindUnauthorized, "account_inactive", "Account is suspended or inactive")
	ErrAccountBanned            = newError(KindUnauthorized, "account_banned", "Account has been banned")
	ErrMissingToken             = newError(KindUnauthorized, "missing_token", "No token provided")
	ErrUnauthorized             = newError(KindUnauthorized, "unauthorized", "Unauthorized")

	ErrForbidden = newError(KindForbidden, "forbidden", "Insufficient permissions")

	ErrAllocationExhausted = newError(KindInternal, "username_allocation_exhausted", "Could not allocate a unique username")
)

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal for untagged errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine-readable code of err, or "internal_error".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}
