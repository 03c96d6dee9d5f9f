package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/arklim/authflow/internal/infra/config"
)

// ErrInvalidToken covers bad signatures, malformed input, unexpected
// algorithms and passed expiry alike.
var ErrInvalidToken = errors.New("jwt: invalid token")

// TokenPurpose distinguishes verification, access and refresh tokens that
// share a signing secret.
type TokenPurpose string

const (
	PurposeVerification TokenPurpose = "verification"
	PurposeAccess       TokenPurpose = "access"
	PurposeRefresh      TokenPurpose = "refresh"
)

// Claims is the claim set carried by every token the service signs.
type Claims struct {
	Purpose  TokenPurpose `json:"typ,omitempty"`
	Email    string       `json:"email,omitempty"`
	Verified bool         `json:"verified,omitempty"`
	jwt.RegisteredClaims
}

// VerificationClaims asserts that email passed the OTP step.
func VerificationClaims(email string) Claims {
	return Claims{Purpose: PurposeVerification, Email: email, Verified: true}
}

// SessionClaims identifies a user by id for access or refresh use.
func SessionClaims(userID string, purpose TokenPurpose) Claims {
	return Claims{
		Purpose:          purpose,
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
	}
}

// TokenCodec signs and verifies HS256 tokens with a shared secret.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenCodec builds a codec from the auth settings.
func NewTokenCodec(cfg config.AuthSettings) (*TokenCodec, error) {
	secret := strings.TrimSpace(cfg.SigningSecret)
	if secret == "" {
		return nil, errors.New("jwt: signing secret is required")
	}
	return &TokenCodec{
		secret: []byte(secret),
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// WithClock overrides the time source used for iat, exp and validation.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	if now != nil {
		c.now = now
	}
	return c
}

// Now returns the codec's current time.
func (c *TokenCodec) Now() time.Time {
	return c.now()
}

// Sign stamps iat, exp, iss and jti on claims and returns the compact token.
func (c *TokenCodec) Sign(claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("jwt: ttl must be positive")
	}

	now := c.now().UTC()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	claims.Issuer = c.issuer
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer and expiry, then returns the
// decoded claims.
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
