package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nexusoptimizer/nexus/internal/auth"
	"github.com/nexusoptimizer/nexus/internal/config"
	"github.com/nexusoptimizer/nexus/internal/email"
	"github.com/nexusoptimizer/nexus/internal/logger"
	"github.com/nexusoptimizer/nexus/internal/model"
	"github.com/nexusoptimizer/nexus/internal/repository"
	"github.com/nexusoptimizer/nexus/internal/repository/memory"
)

// captureSender records sent messages so tests can fish out reset tokens.
type captureSender struct {
	messages []email.Message
}

func (s *captureSender) Send(_ context.Context, msg email.Message) error {
	s.messages = append(s.messages, msg)
	return nil
}

// lastResetToken extracts the raw reset token from the most recent mail.
func (s *captureSender) lastResetToken(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, s.messages, "expected a reset mail to have been sent")
	body := s.messages[len(s.messages)-1].TextBody
	for _, line := range strings.Split(body, "\n") {
		if token, ok := strings.CutPrefix(line, "Your reset code: "); ok {
			return strings.TrimSpace(token)
		}
	}
	t.Fatalf("no reset token in mail body:\n%s", body)
	return ""
}

func testConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{
			Password: config.PasswordConfig{MinLength: 8, BcryptCost: bcrypt.MinCost},
			Tokens: config.TokenConfig{
				Secret: "test-secret-at-least-32-characters!!",
				TTL:    time.Hour,
				Issuer: "test",
			},
			Lockout: config.LockoutConfig{Threshold: 5, Duration: 15 * time.Minute},
			Reset:   config.ResetConfig{TicketTTL: time.Hour, MaxPerHour: 3},
		},
		TwoFA: config.TwoFAConfig{Issuer: "Test", Digits: 6, Period: 30},
		Email: config.EmailConfig{AppName: "Test", Provider: "log"},
	}
}

type testEnv struct {
	svc    *AuthService
	repos  *repository.Repositories
	sender *captureSender
	cfg    *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()
	log := logger.Nop()
	repos := memory.New()
	sender := &captureSender{}

	tokenSvc, err := auth.NewTokenService(cfg.Security.Tokens)
	require.NoError(t, err)

	securityLog := NewSecurityLogService(repos.SecurityLog, log)
	svc := NewAuthService(repos, securityLog, tokenSvc, sender, cfg, log)

	return &testEnv{svc: svc, repos: repos, sender: sender, cfg: cfg}
}

func (e *testEnv) signup(t *testing.T, username, emailAddr, password string) *model.Account {
	t.Helper()
	resp, err := e.svc.Signup(context.Background(), SignupRequest{
		Username: username,
		Email:    emailAddr,
		Password: password,
	})
	require.NoError(t, err)
	return resp.Account
}

func TestSignup(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.svc.Signup(context.Background(), SignupRequest{
		Username: "alice",
		Email:    "Alice@Example.COM",
		Password: "password123",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.Account.ID, "acc_"))
	assert.Equal(t, "alice", resp.Account.Username)
	assert.Equal(t, "alice@example.com", resp.Account.Email, "email is normalized")
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)

	// Default settings are created alongside
	settings, err := env.svc.GetSettings(context.Background(), resp.Account.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(settings.Preferences))
}

func TestSignupDuplicates(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@example.com", "password123")

	_, err := env.svc.Signup(context.Background(), SignupRequest{
		Username: "alice", Password: "password123",
	})
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	_, err = env.svc.Signup(context.Background(), SignupRequest{
		Username: "alice2", Email: "alice@example.com", Password: "password123",
	})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Signup(ctx, SignupRequest{Username: "ab", Password: "password123"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Signup(ctx, SignupRequest{Username: "alice", Password: "short"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Signup(ctx, SignupRequest{Username: "alice", Email: "not-an-email", Password: "password123"})
	assert.ErrorIs(t, err, ErrValidation)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "email", validationErr.Field)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "", "password123")

	resp, err := env.svc.Login(context.Background(), LoginRequest{
		Username: "alice", Password: "password123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	claims, err := env.svc.VerifyToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.Account.ID, claims.AccountID())
	assert.Equal(t, "alice", claims.Username)
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "", "password123")

	_, err := env.svc.Login(context.Background(), LoginRequest{
		Username: "alice", Password: "wrong-password",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownUsername(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Login(context.Background(), LoginRequest{
		Username: "nobody", Password: "password123",
	})
	// Same error as a wrong password, so callers cannot probe usernames
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)
	account := env.signup(t, "alice", "", "password123")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})
		assert.ErrorIs(t, err, ErrInvalidCredentials, "failure %d", i+1)
	}

	// The fifth failure locked the account; even the correct password
	// is rejected now.
	_, err := env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "password123"})
	assert.ErrorIs(t, err, ErrAccountLocked)

	var lockedErr *AccountLockedError
	require.ErrorAs(t, err, &lockedErr)
	assert.Greater(t, lockedErr.RetryAfter, time.Duration(0))
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), lockedErr.Until, time.Minute)

	// The lock event landed in the security log
	entries, err := env.repos.SecurityLog.ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	var sawLock bool
	for _, e := range entries {
		if e.Event == model.EventAccountLocked {
			sawLock = true
		}
	}
	assert.True(t, sawLock)
}

func TestFourFailuresDoNotLock(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "", "password123")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "password123"})
	assert.NoError(t, err, "threshold not reached, correct password logs in")
}

func TestSuccessfulLoginResetsCounter(t *testing.T) {
	env := newTestEnv(t)
	account := env.signup(t, "alice", "", "password123")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})
	}
	_, err := env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "password123"})
	require.NoError(t, err)

	stored, err := env.repos.Accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedAttempts)

	// The slate is clean: four more failures still do not lock.
	for i := 0; i < 4; i++ {
		_, _ = env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})
	}
	_, err = env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "password123"})
	assert.NoError(t, err)
}

func TestLazyUnlock(t *testing.T) {
	env := newTestEnv(t)
	account := env.signup(t, "alice", "", "password123")
	ctx := context.Background()

	// Simulate a lock whose window has already passed.
	require.NoError(t, env.repos.Accounts.LockUntil(ctx, account.ID, time.Now().Add(-time.Minute)))

	resp, err := env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "password123"})
	require.NoError(t, err, "expired lock clears on the next login")
	assert.NotEmpty(t, resp.Token)

	stored, err := env.repos.Accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, stored.Locked)
	assert.Zero(t, stored.FailedAttempts)
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "", "password123")
	ctx := context.Background()

	session, err := env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "password123"})
	require.NoError(t, err)

	refreshed, err := env.svc.Refresh(ctx, session.Token, RequestMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.Token)
	assert.Equal(t, session.Account.ID, refreshed.Account.ID)

	_, err = env.svc.Refresh(ctx, "not-a-token", RequestMeta{})
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	account := env.signup(t, "alice", "", "password123")
	ctx := context.Background()

	err := env.svc.ChangePassword(ctx, account.ID, "wrong", "newpassword456", RequestMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = env.svc.ChangePassword(ctx, account.ID, "password123", "short", RequestMeta{})
	assert.ErrorIs(t, err, ErrValidation)

	err = env.svc.ChangePassword(ctx, account.ID, "password123", "newpassword456", RequestMeta{})
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "newpassword456"})
	assert.NoError(t, err)
}

func TestUpdateEmail(t *testing.T) {
	env := newTestEnv(t)
	account := env.signup(t, "alice", "alice@example.com", "password123")
	env.signup(t, "bob", "bob@example.com", "password123")
	ctx := context.Background()

	_, err := env.svc.UpdateEmail(ctx, account.ID, "bob@example.com", RequestMeta{})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = env.svc.UpdateEmail(ctx, account.ID, "nonsense", RequestMeta{})
	assert.ErrorIs(t, err, ErrValidation)

	updated, err := env.svc.UpdateEmail(ctx, account.ID, "New-Alice@Example.com", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "new-alice@example.com", updated.Email)

	// Setting the same email again is a no-op
	_, err = env.svc.UpdateEmail(ctx, account.ID, "new-alice@example.com", RequestMeta{})
	assert.NoError(t, err)
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	account := env.signup(t, "alice", "", "password123")
	ctx := context.Background()

	err := env.svc.UpdateSettings(ctx, &model.Settings{
		AccountID:   account.ID,
		Preferences: []byte(`{"theme":"dark","toasts":false}`),
	}, RequestMeta{})
	require.NoError(t, err)

	got, err := env.svc.GetSettings(ctx, account.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme":"dark","toasts":false}`, string(got.Preferences))

	// Unknown account falls back to defaults
	fresh, err := env.svc.GetSettings(ctx, "acc_unknown")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(fresh.Preferences))
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@example.com", "password123")
	ctx := context.Background()

	resp, err := env.svc.RequestPasswordReset(ctx, "alice@example.com", RequestMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Message)

	token := env.sender.lastResetToken(t)

	err = env.svc.CompletePasswordReset(ctx, token, "newpassword456", RequestMeta{})
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "newpassword456"})
	assert.NoError(t, err)

	// A ticket is single-use
	err = env.svc.CompletePasswordReset(ctx, token, "anotherpass789", RequestMeta{})
	assert.ErrorIs(t, err, ErrResetTicketInvalid)
	_, err = env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "anotherpass789"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.svc.RequestPasswordReset(ctx, "stranger@example.com", RequestMeta{})
	require.NoError(t, err, "unknown email gets the same generic response")
	assert.NotEmpty(t, resp.Message)
	assert.Empty(t, env.sender.messages, "no mail for unknown addresses")
}

func TestPasswordResetInvalidToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.svc.CompletePasswordReset(ctx, "bogus-token", "newpassword456", RequestMeta{})
	assert.ErrorIs(t, err, ErrResetTicketInvalid)
}

func TestPasswordResetWeakPasswordKeepsTicket(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@example.com", "password123")
	ctx := context.Background()

	_, err := env.svc.RequestPasswordReset(ctx, "alice@example.com", RequestMeta{})
	require.NoError(t, err)
	token := env.sender.lastResetToken(t)

	// Validation rejects before the ticket is consumed.
	err = env.svc.CompletePasswordReset(ctx, token, "short", RequestMeta{})
	assert.ErrorIs(t, err, ErrValidation)

	err = env.svc.CompletePasswordReset(ctx, token, "newpassword456", RequestMeta{})
	assert.NoError(t, err, "the ticket survives a failed validation attempt")
}

func TestPasswordResetClearsLockout(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@example.com", "password123")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})
	}
	_, err := env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "password123"})
	require.ErrorIs(t, err, ErrAccountLocked)

	_, err = env.svc.RequestPasswordReset(ctx, "alice@example.com", RequestMeta{})
	require.NoError(t, err)
	token := env.sender.lastResetToken(t)
	require.NoError(t, env.svc.CompletePasswordReset(ctx, token, "newpassword456", RequestMeta{}))

	// Proving mailbox control outranks the lockout heuristic.
	_, err = env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "newpassword456"})
	assert.NoError(t, err)
}

func TestPasswordResetInvalidatesEarlierTickets(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@example.com", "password123")
	ctx := context.Background()

	_, err := env.svc.RequestPasswordReset(ctx, "alice@example.com", RequestMeta{})
	require.NoError(t, err)
	firstToken := env.sender.lastResetToken(t)

	_, err = env.svc.RequestPasswordReset(ctx, "alice@example.com", RequestMeta{})
	require.NoError(t, err)
	secondToken := env.sender.lastResetToken(t)

	err = env.svc.CompletePasswordReset(ctx, firstToken, "newpassword456", RequestMeta{})
	assert.ErrorIs(t, err, ErrResetTicketInvalid, "older ticket is dead once a new one exists")

	err = env.svc.CompletePasswordReset(ctx, secondToken, "newpassword456", RequestMeta{})
	assert.NoError(t, err)
}

func TestPasswordResetThrottle(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@example.com", "password123")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.svc.RequestPasswordReset(ctx, "alice@example.com", RequestMeta{})
		require.NoError(t, err)
	}
	require.Len(t, env.sender.messages, 3)

	// The fourth request inside the hour gets the generic response but
	// no ticket and no mail.
	resp, err := env.svc.RequestPasswordReset(ctx, "alice@example.com", RequestMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Message)
	assert.Len(t, env.sender.messages, 3)
}

func TestSecurityLogScenario(t *testing.T) {
	env := newTestEnv(t)
	account := env.signup(t, "alice", "", "password123")
	ctx := context.Background()
	meta := RequestMeta{IPAddress: "203.0.113.9", UserAgent: "test-agent"}

	_, _ = env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "wrong", Meta: meta})
	_, err := env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "password123", Meta: meta})
	require.NoError(t, err)
	require.NoError(t, env.svc.Logout(ctx, account.ID, meta))

	entries, err := env.repos.SecurityLog.ListByAccount(ctx, account.ID)
	require.NoError(t, err)

	var events []string
	for _, e := range entries {
		events = append(events, e.Event)
	}
	assert.Equal(t, []string{
		model.EventAccountCreated,
		model.EventLoginFailed,
		model.EventLoginSuccess,
		model.EventLogout,
	}, events)

	assert.Equal(t, "203.0.113.9", entries[1].IPAddress)
	assert.Equal(t, "test-agent", entries[1].UserAgent)
}

func TestLogoutRecordsOnly(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "", "password123")
	ctx := context.Background()

	session, err := env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "password123"})
	require.NoError(t, err)
	require.NoError(t, env.svc.Logout(ctx, session.Account.ID, RequestMeta{}))

	// Tokens are self-contained; a logged-out token still verifies until
	// it expires. Its invalidation is the client discarding it.
	_, err = env.svc.VerifyToken(session.Token)
	assert.NoError(t, err)
}

func TestGenerateID(t *testing.T) {
	id := generateID("acc")
	assert.True(t, strings.HasPrefix(id, "acc_"))
	assert.Len(t, id, 30)
	assert.NotEqual(t, id, generateID("acc"))
}

func TestCleanIP(t *testing.T) {
	assert.Equal(t, "192.0.2.1", CleanIP("192.0.2.1:51234"))
	assert.Equal(t, "192.0.2.1", CleanIP("192.0.2.1"))
	assert.Equal(t, "2001:db8::1", CleanIP("[2001:db8::1]:443"))
}
