package domain

import "time"

// UserRegisteredEvent represents the payload for <prefix>.user.registered messages.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Username     string
	Email        string
	Role         Role
	RegisteredAt time.Time
}

// PasswordResetEvent represents the payload for <prefix>.user.password.reset messages.
type PasswordResetEvent struct {
	EventID string
	Email   string
	ResetAt time.Time
}

// EmailJob is a templated message handed to the mail pipeline.
type EmailJob struct {
	To       string
	Template string
	Data     map[string]any
}

// Mail templates used by the OTP flows.
const (
	TemplateVerifyAccount = "verify-account"
	TemplateResetPassword = "reset-password"
)
