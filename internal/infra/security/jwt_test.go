package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/authflow/internal/infra/config"
)

func newTestCodec(t *testing.T, now *time.Time) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(config.AuthSettings{SigningSecret: "test-secret", Issuer: "authflow"})
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return codec.WithClock(func() time.Time { return *now })
}

func TestTokenCodecRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, &now)

	token, err := codec.Sign(VerificationClaims("a@x.io"), 15*time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	claims, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Purpose != PurposeVerification || claims.Email != "a@x.io" || !claims.Verified {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
	if got := claims.ExpiresAt.Time; !got.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %s", got)
	}
}

func TestTokenCodecRejectsExpiredToken(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, &now)

	token, err := codec.Sign(SessionClaims("u1", PurposeAccess), time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	now = now.Add(time.Hour + time.Second)
	if _, err := codec.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}
}

func TestTokenCodecRejectsForeignSignature(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, &now)

	other, err := NewTokenCodec(config.AuthSettings{SigningSecret: "other-secret", Issuer: "authflow"})
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	other.WithClock(func() time.Time { return now })

	token, err := other.Sign(SessionClaims("u1", PurposeAccess), time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := codec.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestTokenCodecRejectsMalformedAndUnsignedTokens(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, &now)

	for _, token := range []string{"", "   ", "not.a.token", strings.Repeat("a", 40)} {
		if _, err := codec.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Verify(%q): expected ErrInvalidToken, got %v", token, err)
		}
	}

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Purpose: PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "authflow",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := codec.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for alg=none, got %v", err)
	}
}

func TestNewTokenCodecRequiresSecret(t *testing.T) {
	if _, err := NewTokenCodec(config.AuthSettings{SigningSecret: " "}); err == nil {
		t.Fatal("expected error for blank secret")
	}
}
