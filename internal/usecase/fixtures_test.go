package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/core/port"
	"github.com/arklim/authflow/internal/infra/config"
	"github.com/arklim/authflow/internal/infra/security"
	"github.com/arklim/authflow/internal/repository"
	"github.com/arklim/authflow/internal/repository/memory"
)

const strongPassword = "Sup3rSecurePass"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 10, 24, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// mockUserRepository keeps users in memory keyed by email and counts calls.
type mockUserRepository struct {
	mu      sync.Mutex
	byEmail map[string]*domain.User
	nextID  int
	clock   func() time.Time

	findByEmailErr error
	findByIDErr    error
	existsErr      error
	createErr      error
	updateErr      error

	findByEmailCalls int
	findByIDCalls    int
	existsCalls      int
	createCalls      int
	updateCalls      int
	existsChecked    []string
	reserved         map[string]bool
}

func newMockUserRepository(clock func() time.Time) *mockUserRepository {
	return &mockUserRepository{
		byEmail:  make(map[string]*domain.User),
		reserved: make(map[string]bool),
		clock:    clock,
	}
}

var _ port.UserRepository = (*mockUserRepository)(nil)

func (m *mockUserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findByEmailCalls++
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	user, ok := m.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *user
	return &copy, nil
}

func (m *mockUserRepository) FindByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findByIDCalls++
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	for _, user := range m.byEmail {
		if user.ID == id {
			copy := *user
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepository) ExistsByUsername(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existsCalls++
	m.existsChecked = append(m.existsChecked, username)
	if m.existsErr != nil {
		return false, m.existsErr
	}
	if m.reserved[username] {
		return true, nil
	}
	for _, user := range m.byEmail {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepository) Create(_ context.Context, in domain.NewUser) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return nil, m.createErr
	}
	if _, ok := m.byEmail[in.Email]; ok {
		return nil, repository.ErrUniqueViolation
	}
	for _, user := range m.byEmail {
		if user.Username == in.Username {
			return nil, repository.ErrUniqueViolation
		}
	}

	m.nextID++
	now := m.clock()
	user := &domain.User{
		ID:           fmt.Sprintf("user-%d", m.nextID),
		Email:        in.Email,
		Username:     in.Username,
		Name:         in.Name,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.byEmail[in.Email] = user
	copy := *user
	return &copy, nil
}

func (m *mockUserRepository) UpdatePassword(_ context.Context, email, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	user, ok := m.byEmail[email]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = hash
	return nil
}

func (m *mockUserRepository) seed(user domain.User) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		m.nextID++
		user.ID = fmt.Sprintf("user-%d", m.nextID)
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	m.byEmail[user.Email] = &user
	return &user
}

func (m *mockUserRepository) get(email string) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byEmail[email]
}

type sentMail struct {
	to       string
	template string
	data     map[string]any
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, template string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, template: template, data: data})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("expected a mail to be sent")
	}
	return m.sent[len(m.sent)-1]
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type recordingEvents struct {
	registered []domain.UserRegisteredEvent
	resets     []domain.PasswordResetEvent
	err        error
}

func (e *recordingEvents) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	e.registered = append(e.registered, event)
	return e.err
}

func (e *recordingEvents) PublishPasswordReset(_ context.Context, event domain.PasswordResetEvent) error {
	e.resets = append(e.resets, event)
	return e.err
}

// stubHasher avoids argon2 cost in flow tests.
type stubHasher struct {
	hashErr error
}

func (h stubHasher) Hash(password string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "hashed:" + password, nil
}

func (stubHasher) Verify(password, encoded string) (bool, error) {
	if !strings.HasPrefix(encoded, "hashed:") {
		return false, errors.New("unknown hash format")
	}
	return encoded == "hashed:"+password, nil
}

type countingObserver struct {
	mu      sync.Mutex
	outcomes map[string][]string
}

func (o *countingObserver) ObserveOperation(operation, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string][]string)
	}
	o.outcomes[operation] = append(o.outcomes[operation], outcome)
}

// sequenceOTP yields "1111", "2222", ... on successive calls.
type sequenceOTP struct {
	n int
}

func (s *sequenceOTP) next() (string, error) {
	s.n++
	return strings.Repeat(fmt.Sprint(s.n%10), 4), nil
}

type testEnv struct {
	clock        *testClock
	cfg          config.AuthSettings
	users        *mockUserRepository
	store        *memory.EphemeralStore
	mailer       *recordingMailer
	events       *recordingEvents
	observer     *countingObserver
	codec        *security.TokenCodec
	sessions     *SessionService
	registration *RegistrationService
	reset        *PasswordResetService
	auth         *AuthService
	authorizer   *Authorizer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := newTestClock()
	cfg := config.AuthSettings{
		SigningSecret:    "test-signing-secret",
		Issuer:           "authflow-test",
		OTPTTL:           15 * time.Minute,
		OTPDigits:        4,
		VerificationTTL:  15 * time.Minute,
		AccessTTL:        time.Hour,
		RefreshTTL:       7 * 24 * time.Hour,
		UsernameAttempts: 20,
	}

	codec, err := security.NewTokenCodec(cfg)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	codec.WithClock(clock.Now)

	log := zaptest.NewLogger(t)
	users := newMockUserRepository(clock.Now)
	store := memory.NewEphemeralStore().WithClock(clock.Now)
	mailer := &recordingMailer{}
	events := &recordingEvents{}
	observer := &countingObserver{}
	validator := security.DefaultPasswordValidator(0)
	otps := &sequenceOTP{}

	sessions := NewSessionService(users, codec, cfg).WithLogger(log).WithObserver(observer)
	registration := NewRegistrationService(users, store, mailer, codec, stubHasher{}, validator, sessions, cfg).
		WithLogger(log).
		WithObserver(observer).
		WithEvents(events).
		WithOTPGenerator(otps.next).
		WithClock(clock.Now)
	reset := NewPasswordResetService(users, store, mailer, codec, stubHasher{}, validator, cfg).
		WithLogger(log).
		WithObserver(observer).
		WithEvents(events).
		WithOTPGenerator(otps.next).
		WithClock(clock.Now)

	return &testEnv{
		clock:        clock,
		cfg:          cfg,
		users:        users,
		store:        store,
		mailer:       mailer,
		events:       events,
		observer:     observer,
		codec:        codec,
		sessions:     sessions,
		registration: registration,
		reset:        reset,
		auth:         NewAuthService(users, stubHasher{}, sessions, registration, reset).WithLogger(log).WithObserver(observer),
		authorizer:   NewAuthorizer(users, codec).WithLogger(log).WithObserver(observer),
	}
}

func lastOTP(t *testing.T, mailer *recordingMailer) string {
	t.Helper()
	code, ok := mailer.last(t).data["otp"].(string)
	if !ok {
		t.Fatalf("mail data has no otp: %#v", mailer.last(t).data)
	}
	return code
}

func assertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
