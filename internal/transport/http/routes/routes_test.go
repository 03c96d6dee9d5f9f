package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/infra/config"
	"github.com/arklim/authflow/internal/infra/security"
	"github.com/arklim/authflow/internal/repository"
	"github.com/arklim/authflow/internal/repository/memory"
	redisrepo "github.com/arklim/authflow/internal/repository/redis"
	"github.com/arklim/authflow/internal/transport/http/handlers"
	"github.com/arklim/authflow/internal/transport/http/middleware"
	httproutes "github.com/arklim/authflow/internal/transport/http/routes"
	"github.com/arklim/authflow/internal/usecase"
)

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: make(map[string]*domain.User)}
}

func (m *memoryUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[email]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUsers) ExistsByUsername(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryUsers) Create(_ context.Context, nu domain.NewUser) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[nu.Email]; ok {
		return nil, repository.ErrUniqueViolation
	}
	u := &domain.User{
		ID:           fmt.Sprintf("user-%d", len(m.users)+1),
		Email:        nu.Email,
		Username:     nu.Username,
		Name:         nu.Name,
		PasswordHash: nu.PasswordHash,
		Role:         nu.Role,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	m.users[nu.Email] = u
	clone := *u
	return &clone, nil
}

func (m *memoryUsers) UpdatePassword(_ context.Context, email, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

type capturingMailer struct {
	mu   sync.Mutex
	otps map[string]string
}

func (m *capturingMailer) Send(_ context.Context, to, _ string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otps[to], _ = data["otp"].(string)
	return nil
}

func (m *capturingMailer) otp(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.otps[email]
}

type routeEnv struct {
	router *gin.Engine
	mailer *capturingMailer
	users  *memoryUsers
}

func newRouteEnv(t *testing.T, rateLimit config.RateLimitSettings) *routeEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authCfg := config.AuthSettings{
		SigningSecret:    "routes-secret",
		Issuer:           "authflow",
		OTPTTL:           15 * time.Minute,
		OTPDigits:        4,
		VerificationTTL:  15 * time.Minute,
		AccessTTL:        time.Hour,
		RefreshTTL:       7 * 24 * time.Hour,
		UsernameAttempts: 20,
	}
	cfg := &config.AppConfig{App: config.AppSettings{Name: "authflow", Env: "test"}, Auth: authCfg, RateLimit: rateLimit}

	codec, err := security.NewTokenCodec(authCfg)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	hasher, err := security.NewArgon2Hasher(security.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}

	users := newMemoryUsers()
	store := memory.NewEphemeralStore()
	mailer := &capturingMailer{otps: make(map[string]string)}
	validator := security.DefaultPasswordValidator(0)

	sessions := usecase.NewSessionService(users, codec, authCfg)
	registration := usecase.NewRegistrationService(users, store, mailer, codec, hasher, validator, sessions, authCfg)
	reset := usecase.NewPasswordResetService(users, store, mailer, codec, hasher, validator, authCfg)

	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zaptest.NewLogger(t)
	registry := prometheus.NewRegistry()
	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	router := httproutes.Register(httproutes.Dependencies{
		Config:      cfg,
		Logger:      logger,
		RateLimiter: middleware.NewRateLimiter(redisrepo.NewRateLimitRepository(client, "test:rl"), logger),
		Metrics:     metrics,
		Gatherer:    registry,
		Services: httproutes.ServiceSet{
			Auth:          usecase.NewAuthService(users, hasher, sessions, registration, reset),
			Registration:  registration,
			PasswordReset: reset,
			Sessions:      sessions,
			Authorizer:    usecase.NewAuthorizer(users, codec),
		},
	})

	return &routeEnv{router: router, mailer: mailer, users: users}
}

func (e *routeEnv) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *routeEnv) get(path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	r := httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: zaptest.NewLogger(t),
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if w.Header().Get(middleware.TraceIDHeader) == "" {
		t.Fatalf("expected trace id header")
	}
}

func TestRegistrationThroughHTTP(t *testing.T) {
	env := newRouteEnv(t, config.RateLimitSettings{})
	const email = "jane@example.com"

	rr := env.post(t, "/api/v1/auth/sign-up", map[string]string{"email": " Jane@Example.com ", "name": "Jane Doe"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("sign-up: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	otp := env.mailer.otp(email)
	if len(otp) != 4 {
		t.Fatalf("expected a 4 digit otp, got %q", otp)
	}

	rr = env.post(t, "/api/v1/auth/verify-signup-otp", map[string]string{"email": email, "otp": otp})
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	verification := decode[handlers.VerificationResponse](t, rr)

	rr = env.post(t, "/api/v1/auth/complete-registration", map[string]string{
		"email":             email,
		"password":          "Sup3rSecurePass",
		"verificationToken": verification.VerificationToken,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("complete: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	tokens := decode[handlers.TokenResponse](t, rr)

	rr = env.get("/api/v1/auth/me", tokens.Token)
	if rr.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if me := decode[handlers.UserResponse](t, rr); me.Email != email || me.Username != "janedoe" || me.Role != string(domain.RoleUser) {
		t.Fatalf("unexpected user %+v", me)
	}

	if rr := env.get("/api/v1/auth/admin/ping", tokens.Token); rr.Code != http.StatusForbidden {
		t.Fatalf("admin ping: expected 403, got %d", rr.Code)
	}
	if rr := env.get("/api/v1/auth/me", tokens.RefreshToken); rr.Code != http.StatusUnauthorized {
		t.Fatalf("me with refresh token: expected 401, got %d", rr.Code)
	}

	rr = env.post(t, "/api/v1/auth/refresh-token", map[string]string{"refreshToken": tokens.RefreshToken})
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", rr.Code)
	}
	if refreshed := decode[handlers.TokenResponse](t, rr); refreshed.RefreshToken != tokens.RefreshToken {
		t.Fatalf("expected refresh token to be echoed")
	}

	rr = env.post(t, "/api/v1/auth/sign-in", map[string]string{"email": email, "password": "Sup3rSecurePass"})
	if rr.Code != http.StatusOK {
		t.Fatalf("sign-in: expected 200, got %d", rr.Code)
	}
}

func TestPasswordResetThroughHTTP(t *testing.T) {
	env := newRouteEnv(t, config.RateLimitSettings{})
	const email = "member@example.com"

	hasher, err := security.NewArgon2Hasher(security.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	hash, err := hasher.Hash("OldPassw0rd")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := env.users.Create(context.Background(), domain.NewUser{Email: email, Username: "member", Name: "Member", PasswordHash: hash, Role: domain.RoleUser}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if rr := env.post(t, "/api/v1/auth/forget-password", map[string]string{"email": email}); rr.Code != http.StatusOK {
		t.Fatalf("forget: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr := env.post(t, "/api/v1/auth/verify-reset-otp", map[string]string{"email": email, "otp": env.mailer.otp(email)})
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	verification := decode[handlers.VerificationResponse](t, rr)

	rr = env.post(t, "/api/v1/auth/reset-password", map[string]string{
		"email":             email,
		"password":          "N3wPassword!",
		"verificationToken": verification.VerificationToken,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if rr := env.post(t, "/api/v1/auth/sign-in", map[string]string{"email": email, "password": "OldPassw0rd"}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("old password: expected 401, got %d", rr.Code)
	}
	if rr := env.post(t, "/api/v1/auth/sign-in", map[string]string{"email": email, "password": "N3wPassword!"}); rr.Code != http.StatusOK {
		t.Fatalf("new password: expected 200, got %d", rr.Code)
	}
}

func TestResendIsRateLimitedPerEmail(t *testing.T) {
	env := newRouteEnv(t, config.RateLimitSettings{WindowDuration: time.Minute, ResendMaxAttempts: 2})

	if rr := env.post(t, "/api/v1/auth/sign-up", map[string]string{"email": "r@example.com", "name": "Rita"}); rr.Code != http.StatusCreated {
		t.Fatalf("sign-up: expected 201, got %d", rr.Code)
	}

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := env.post(t, "/api/v1/auth/resend-otp", map[string]string{"email": "R@example.com", "purpose": "signup"})
		statuses = append(statuses, rr.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK || statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected statuses %v", statuses)
	}
}

func TestMetricsEndpointExposesHTTPCounters(t *testing.T) {
	env := newRouteEnv(t, config.RateLimitSettings{})
	env.get("/healthz", "")

	rr := env.get("/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "authflow_http_requests_total") {
		t.Fatalf("expected http request counter in exposition")
	}
}
