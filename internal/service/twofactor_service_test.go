package service

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusoptimizer/nexus/internal/logger"
	"github.com/nexusoptimizer/nexus/internal/model"
)

func newTwoFactorEnv(t *testing.T) (*testEnv, *TwoFactorService) {
	t.Helper()
	env := newTestEnv(t)
	securityLog := NewSecurityLogService(env.repos.SecurityLog, logger.Nop())
	svc := NewTwoFactorService(env.repos.Accounts, securityLog, env.cfg, logger.Nop())
	return env, svc
}

// enable walks an account through the full enrollment.
func enable(t *testing.T, svc *TwoFactorService, accountID string) string {
	t.Helper()
	ctx := context.Background()

	setup, err := svc.Setup(ctx, accountID)
	require.NoError(t, err)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.VerifyAndEnable(ctx, accountID, code, RequestMeta{}))
	return setup.Secret
}

func TestTwoFactorSetup(t *testing.T) {
	env, svc := newTwoFactorEnv(t)
	account := env.signup(t, "alice", "", "password123")
	ctx := context.Background()

	setup, err := svc.Setup(ctx, account.ID)
	require.NoError(t, err)

	assert.NotEmpty(t, setup.Secret)
	assert.Equal(t, "Test", setup.Issuer)
	assert.Equal(t, "alice", setup.Account)

	png, err := base64.StdEncoding.DecodeString(setup.QRCode)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	// The secret is stored pending; the factor is not live yet.
	stored, err := env.repos.Accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, stored.TwoFactor.Enabled)
	assert.Equal(t, setup.Secret, stored.TwoFactor.Secret)

	_, err = env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "password123"})
	assert.NoError(t, err, "pending enrollment does not gate login")
}

func TestTwoFactorVerifyAndEnable(t *testing.T) {
	env, svc := newTwoFactorEnv(t)
	account := env.signup(t, "alice", "", "password123")
	ctx := context.Background()

	setup, err := svc.Setup(ctx, account.ID)
	require.NoError(t, err)

	err = svc.VerifyAndEnable(ctx, account.ID, "000000", RequestMeta{})
	assert.ErrorIs(t, err, ErrInvalidTwoFactorCode)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.VerifyAndEnable(ctx, account.ID, code, RequestMeta{}))

	stored, err := env.repos.Accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, stored.TwoFactor.Enabled)

	// Enrolling again is a conflict in either step.
	_, err = svc.Setup(ctx, account.ID)
	assert.ErrorIs(t, err, ErrTwoFactorAlreadyEnabled)
	err = svc.VerifyAndEnable(ctx, account.ID, code, RequestMeta{})
	assert.ErrorIs(t, err, ErrTwoFactorAlreadyEnabled)
}

func TestTwoFactorVerifyWithoutSetup(t *testing.T) {
	env, svc := newTwoFactorEnv(t)
	account := env.signup(t, "alice", "", "password123")

	err := svc.VerifyAndEnable(context.Background(), account.ID, "123456", RequestMeta{})
	assert.ErrorIs(t, err, ErrTwoFactorNotPending)
}

func TestLoginWithTwoFactor(t *testing.T) {
	env, svc := newTwoFactorEnv(t)
	account := env.signup(t, "alice", "", "password123")
	ctx := context.Background()

	secret := enable(t, svc, account.ID)

	_, err := env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "password123"})
	assert.ErrorIs(t, err, ErrTwoFactorRequired)

	_, err = env.svc.Login(ctx, LoginRequest{
		Username: "alice", Password: "password123", TwoFactorCode: "000000",
	})
	assert.ErrorIs(t, err, ErrInvalidTwoFactorCode)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	resp, err := env.svc.Login(ctx, LoginRequest{
		Username: "alice", Password: "password123", TwoFactorCode: code,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
}

func TestTwoFactorFailuresDoNotLockAccount(t *testing.T) {
	env, svc := newTwoFactorEnv(t)
	account := env.signup(t, "alice", "", "password123")
	ctx := context.Background()

	secret := enable(t, svc, account.ID)

	// The password is correct every time, so these misses must not feed
	// the lockout counter.
	for i := 0; i < 6; i++ {
		_, err := env.svc.Login(ctx, LoginRequest{
			Username: "alice", Password: "password123", TwoFactorCode: "000000",
		})
		assert.ErrorIs(t, err, ErrInvalidTwoFactorCode)
	}

	stored, err := env.repos.Accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, stored.Locked)
	assert.Zero(t, stored.FailedAttempts)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	_, err = env.svc.Login(ctx, LoginRequest{
		Username: "alice", Password: "password123", TwoFactorCode: code,
	})
	assert.NoError(t, err)
}

func TestTwoFactorDisable(t *testing.T) {
	env, svc := newTwoFactorEnv(t)
	account := env.signup(t, "alice", "", "password123")
	ctx := context.Background()

	err := svc.Disable(ctx, account.ID, "password123", RequestMeta{})
	assert.ErrorIs(t, err, ErrTwoFactorNotEnabled)

	enable(t, svc, account.ID)

	err = svc.Disable(ctx, account.ID, "wrong-password", RequestMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, svc.Disable(ctx, account.ID, "password123", RequestMeta{}))

	stored, err := env.repos.Accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, stored.TwoFactor.Enabled)
	assert.Empty(t, stored.TwoFactor.Secret)

	_, err = env.svc.Login(ctx, LoginRequest{Username: "alice", Password: "password123"})
	assert.NoError(t, err, "login no longer asks for a code")
}

func TestTwoFactorEventsRecorded(t *testing.T) {
	env, svc := newTwoFactorEnv(t)
	account := env.signup(t, "alice", "", "password123")
	ctx := context.Background()

	enable(t, svc, account.ID)
	require.NoError(t, svc.Disable(ctx, account.ID, "password123", RequestMeta{}))

	entries, err := env.repos.SecurityLog.ListByAccount(ctx, account.ID)
	require.NoError(t, err)

	var events []string
	for _, e := range entries {
		events = append(events, e.Event)
	}
	assert.Contains(t, events, model.EventTwoFactorEnabled)
	assert.Contains(t, events, model.EventTwoFactorDisabled)
}
