package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/transport/http/middleware"
	"github.com/arklim/authflow/internal/usecase"
)

// SignInService authenticates credentials and dispatches OTP resends.
type SignInService interface {
	SignIn(ctx context.Context, email, password string) (domain.SessionTokens, error)
	ResendOTP(ctx context.Context, email, purpose string) (usecase.Ack, error)
}

// RegistrationFlow is the three-step signup flow.
type RegistrationFlow interface {
	Initiate(ctx context.Context, email, name, username string) (usecase.Ack, error)
	VerifyOTP(ctx context.Context, email, code string) (usecase.Verification, error)
	Complete(ctx context.Context, email, password, verificationToken string) (domain.SessionTokens, error)
}

// PasswordResetFlow is the three-step password reset flow.
type PasswordResetFlow interface {
	Initiate(ctx context.Context, email string) (usecase.Ack, error)
	VerifyOTP(ctx context.Context, email, code string) (usecase.Verification, error)
	Commit(ctx context.Context, email, newPassword, verificationToken string) (usecase.Ack, error)
}

// TokenRefresher exchanges a refresh token for a new session.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (domain.SessionTokens, error)
}

// AuthHandler exposes the authentication endpoints.
type AuthHandler struct {
	auth         SignInService
	registration RegistrationFlow
	reset        PasswordResetFlow
	sessions     TokenRefresher
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth SignInService, registration RegistrationFlow, reset PasswordResetFlow, sessions TokenRefresher) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		registration: registration,
		reset:        reset,
		sessions:     sessions,
	}
}

// bindJSON decodes the body through gin's cache so it stays readable after
// rate limit middleware inspected it.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindBodyWith(req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid_payload", "invalid request payload"))
		return false
	}
	return true
}

// SignIn handles POST /auth/sign-in.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req SignInRequest
	if !bindJSON(c, &req) {
		return
	}

	tokens, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RespondWithMappedError(c, err, "failed to sign in")
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(tokens))
}

// SignUp handles POST /auth/sign-up.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if !bindJSON(c, &req) {
		return
	}

	ack, err := h.registration.Initiate(c.Request.Context(), req.Email, req.Name, req.Username)
	if err != nil {
		RespondWithMappedError(c, err, "failed to start registration")
		return
	}

	c.JSON(http.StatusCreated, newMessageResponse(ack))
}

// VerifySignupOTP handles POST /auth/verify-signup-otp.
func (h *AuthHandler) VerifySignupOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.registration.VerifyOTP(c.Request.Context(), req.Email, req.OTP)
	if err != nil {
		RespondWithMappedError(c, err, "failed to verify code")
		return
	}

	c.JSON(http.StatusOK, VerificationResponse(result))
}

// CompleteRegistration handles POST /auth/complete-registration.
func (h *AuthHandler) CompleteRegistration(c *gin.Context) {
	var req CompleteRegistrationRequest
	if !bindJSON(c, &req) {
		return
	}

	tokens, err := h.registration.Complete(c.Request.Context(), req.Email, req.Password, req.VerificationToken)
	if err != nil {
		RespondWithMappedError(c, err, "failed to complete registration")
		return
	}

	c.JSON(http.StatusCreated, newTokenResponse(tokens))
}

// ResendOTP handles POST /auth/resend-otp.
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req ResendOTPRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Purpose == "" {
		req.Purpose = usecase.PurposeSignup
	}

	ack, err := h.auth.ResendOTP(c.Request.Context(), req.Email, req.Purpose)
	if err != nil {
		RespondWithMappedError(c, err, "failed to resend code")
		return
	}

	c.JSON(http.StatusOK, newMessageResponse(ack))
}

// RefreshToken handles POST /auth/refresh-token.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	tokens, err := h.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondWithMappedError(c, err, "failed to refresh token")
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(tokens))
}

// ForgetPassword handles POST /auth/forget-password.
func (h *AuthHandler) ForgetPassword(c *gin.Context) {
	var req ForgetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	ack, err := h.reset.Initiate(c.Request.Context(), req.Email)
	if err != nil {
		RespondWithMappedError(c, err, "failed to start password reset")
		return
	}

	c.JSON(http.StatusOK, newMessageResponse(ack))
}

// VerifyResetOTP handles POST /auth/verify-reset-otp.
func (h *AuthHandler) VerifyResetOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.reset.VerifyOTP(c.Request.Context(), req.Email, req.OTP)
	if err != nil {
		RespondWithMappedError(c, err, "failed to verify code")
		return
	}

	c.JSON(http.StatusOK, VerificationResponse(result))
}

// ResetPassword handles POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	ack, err := h.reset.Commit(c.Request.Context(), req.Email, req.Password, req.VerificationToken)
	if err != nil {
		RespondWithMappedError(c, err, "failed to reset password")
		return
	}

	c.JSON(http.StatusOK, newMessageResponse(ack))
}

// Me returns the user resolved by middleware.RequireAuth.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, usecase.ErrUnauthorized.Code, usecase.ErrUnauthorized.Message))
		return
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}

// AdminPing confirms that the caller holds the admin role.
func (h *AuthHandler) AdminPing(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	resp := MessageResponse{Message: "pong"}
	if user != nil {
		resp.Email = user.Email
	}
	c.JSON(http.StatusOK, resp)
}
