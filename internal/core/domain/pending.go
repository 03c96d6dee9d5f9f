package domain

import "time"

// PendingSignup is the ephemeral record held between sign-up initiation and
// registration completion. It is stored as JSON under "signup:<email>".
type PendingSignup struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	OTP       string    `json:"otp"`
	CreatedAt time.Time `json:"createdAt"`
}

// PendingReset is the ephemeral record held under "password-reset:<email>".
type PendingReset struct {
	OTP       string    `json:"otp"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionTokens is the result of a successful sign-in, registration or refresh.
type SessionTokens struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt is the access token expiry.
	ExpiresAt time.Time
}
