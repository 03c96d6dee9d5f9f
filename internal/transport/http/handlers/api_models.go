package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, code, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		Code:    code,
		TraceID: traceIDStr,
	}
}

// MessageResponse acknowledges a step that sent or accepted a code.
type MessageResponse struct {
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
}

func newMessageResponse(ack usecase.Ack) MessageResponse {
	return MessageResponse{Message: ack.Message, Email: ack.Email}
}

// VerificationResponse carries the short-lived token issued after an OTP check.
type VerificationResponse struct {
	Message           string `json:"message"`
	Email             string `json:"email"`
	VerificationToken string `json:"verificationToken"`
}

// TokenResponse is returned by sign-in, registration completion and refresh.
// ExpiresIn is the access token expiry as Unix milliseconds.
type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func newTokenResponse(tokens domain.SessionTokens) TokenResponse {
	return TokenResponse{
		Token:        tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresAt.UnixMilli(),
	}
}

// UserResponse is the public view of the authorized user.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Name:      user.Name,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt,
	}
}

// SignInRequest defines the payload for the sign-in endpoint.
type SignInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignUpRequest starts a registration. Username is optional and allocated
// from the name when omitted.
type SignUpRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Username string `json:"username"`
}

// VerifyOTPRequest is shared by the signup and reset OTP checks.
type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required"`
	OTP   string `json:"otp" binding:"required"`
}

// CompleteRegistrationRequest finishes a registration after OTP verification.
type CompleteRegistrationRequest struct {
	Email             string `json:"email" binding:"required"`
	Password          string `json:"password" binding:"required"`
	VerificationToken string `json:"verificationToken" binding:"required"`
}

// ResendOTPRequest asks for a fresh code. Purpose defaults to signup.
type ResendOTPRequest struct {
	Email   string `json:"email" binding:"required"`
	Purpose string `json:"purpose"`
}

// RefreshTokenRequest represents the payload to refresh an access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// ForgetPasswordRequest starts a password reset.
type ForgetPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResetPasswordRequest commits a new password after OTP verification.
type ResetPasswordRequest struct {
	Email             string `json:"email" binding:"required"`
	Password          string `json:"password" binding:"required"`
	VerificationToken string `json:"verificationToken" binding:"required"`
}

// HealthResponse describes the liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse lists the outcome of each dependency check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
