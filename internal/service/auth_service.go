package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nexusoptimizer/nexus/internal/auth"
	"github.com/nexusoptimizer/nexus/internal/config"
	"github.com/nexusoptimizer/nexus/internal/email"
	"github.com/nexusoptimizer/nexus/internal/logger"
	"github.com/nexusoptimizer/nexus/internal/model"
	"github.com/nexusoptimizer/nexus/internal/repository"
)

// Common service errors
var (
	// ErrInvalidCredentials covers bad password and unknown username
	// alike, so callers cannot enumerate accounts.
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrAccountLocked        = errors.New("account is temporarily locked")
	ErrTwoFactorRequired    = errors.New("two-factor code required")
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	ErrDuplicateUsername    = errors.New("username already taken")
	ErrDuplicateEmail       = errors.New("email already registered")
	ErrWeakPassword         = errors.New("password does not meet requirements")
	// ErrResetTicketInvalid covers expired, used and unknown tickets.
	ErrResetTicketInvalid = errors.New("invalid or expired reset ticket")
	ErrValidation         = errors.New("validation failed")
)

// AccountLockedError carries the remaining lockout time. It matches
// ErrAccountLocked under errors.Is.
type AccountLockedError struct {
	Until      time.Time
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is locked for another %s", e.RetryAfter.Round(time.Second))
}

// Is makes errors.Is(err, ErrAccountLocked) succeed.
func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// ValidationError carries field-level detail for malformed input. It
// matches ErrValidation under errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) succeed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// AuthService implements signup, login with lockout, token refresh and
// the password lifecycle.
type AuthService struct {
	accounts    repository.AccountRepository
	resetRepo   repository.ResetTicketRepository
	settings    repository.SettingsRepository
	securityLog *SecurityLogService
	tokenSvc    *auth.TokenService
	sender      email.Sender
	cfg         *config.Config
	log         *logger.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	repos *repository.Repositories,
	securityLog *SecurityLogService,
	tokenSvc *auth.TokenService,
	sender email.Sender,
	cfg *config.Config,
	log *logger.Logger,
) *AuthService {
	return &AuthService{
		accounts:    repos.Accounts,
		resetRepo:   repos.ResetTickets,
		settings:    repos.Settings,
		securityLog: securityLog,
		tokenSvc:    tokenSvc,
		sender:      sender,
		cfg:         cfg,
		log:         log.WithComponent("auth_service"),
	}
}

// RequestMeta carries the client context attached to security events.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// SignupRequest contains the data for creating an account
type SignupRequest struct {
	Username string
	Email    string
	Password string
	Meta     RequestMeta
}

// SessionResponse contains an authenticated session
type SessionResponse struct {
	Account   *model.Account `json:"account"`
	Token     string         `json:"token"`
	TokenType string         `json:"tokenType"`
	ExpiresIn int            `json:"expiresIn"`
}

// Signup creates a new account and issues a first token
func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*SessionResponse, error) {
	if err := auth.ValidateUsername(req.Username); err != nil {
		return nil, &ValidationError{Field: "username", Reason: err.Error()}
	}
	if err := auth.ValidatePassword(req.Password, s.cfg.Security.Password.MinLength); err != nil {
		return nil, &ValidationError{Field: "password", Reason: err.Error()}
	}

	normalizedEmail := ""
	if req.Email != "" {
		normalizedEmail = auth.NormalizeEmail(req.Email)
		if err := auth.ValidateEmail(normalizedEmail); err != nil {
			return nil, &ValidationError{Field: "email", Reason: err.Error()}
		}
	}

	exists, err := s.accounts.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, ErrDuplicateUsername
	}
	if normalizedEmail != "" {
		exists, err = s.accounts.ExistsByEmail(ctx, normalizedEmail)
		if err != nil {
			return nil, fmt.Errorf("failed to check email: %w", err)
		}
		if exists {
			return nil, ErrDuplicateEmail
		}
	}

	passwordHash, err := auth.HashPassword(req.Password, s.cfg.Security.Password.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	account := &model.Account{
		ID:           generateID("acc"),
		Username:     req.Username,
		Email:        normalizedEmail,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	if err := s.settings.Upsert(ctx, model.DefaultSettings(account.ID)); err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("failed to create default settings")
		// Don't fail signup if settings creation fails
	}

	s.securityLog.Record(ctx, account.ID, model.EventAccountCreated, "", req.Meta.IPAddress, req.Meta.UserAgent)
	s.log.Info().Str("account_id", account.ID).Str("username", account.Username).Msg("account created")

	return s.newSession(account)
}

// LoginRequest contains the data for logging in
type LoginRequest struct {
	Username      string
	Password      string
	TwoFactorCode string
	Meta          RequestMeta
}

// Login authenticates an account and returns a session token.
// Lockout state is consulted before the password is verified; the lock
// is lazily cleared here once lockedUntil has passed.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*SessionResponse, error) {
	account, err := s.accounts.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Unknown username: same error as a bad password, logged
			// without an account id.
			s.securityLog.Record(ctx, "", model.EventLoginFailed, "unknown username", req.Meta.IPAddress, req.Meta.UserAgent)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	// Lazy unlock: the lock expired but was never cleared.
	if account.Locked && !account.IsLocked() {
		if err := s.accounts.ResetLockout(ctx, account.ID); err != nil {
			return nil, fmt.Errorf("failed to clear expired lockout: %w", err)
		}
		account.Locked = false
		account.LockedUntil = nil
		account.FailedAttempts = 0
	}

	if account.IsLocked() {
		s.securityLog.Record(ctx, account.ID, model.EventLoginFailed, "account locked", req.Meta.IPAddress, req.Meta.UserAgent)
		return nil, &AccountLockedError{
			Until:      *account.LockedUntil,
			RetryAfter: account.LockRemaining(),
		}
	}

	if !auth.CheckPassword(req.Password, account.PasswordHash) {
		s.handleFailedLogin(ctx, account, req.Meta)
		return nil, ErrInvalidCredentials
	}

	// Second factor. Wrong or missing codes do not count toward account
	// lockout; the endpoint rate limiter still sees them.
	if account.TwoFactor.Enabled {
		if req.TwoFactorCode == "" {
			return nil, ErrTwoFactorRequired
		}
		if !verifyTOTP(account.TwoFactor.Secret, req.TwoFactorCode) {
			s.securityLog.Record(ctx, account.ID, model.EventTwoFactorFailed, "", req.Meta.IPAddress, req.Meta.UserAgent)
			return nil, ErrInvalidTwoFactorCode
		}
	}

	// Reset failed attempts on successful login
	if account.FailedAttempts > 0 {
		if err := s.accounts.ResetLockout(ctx, account.ID); err != nil {
			s.log.Error().Err(err).Str("account_id", account.ID).Msg("failed to reset failed attempts")
		}
	}

	s.securityLog.Record(ctx, account.ID, model.EventLoginSuccess, "", req.Meta.IPAddress, req.Meta.UserAgent)
	s.log.Info().Str("account_id", account.ID).Msg("login")

	return s.newSession(account)
}

// handleFailedLogin increments the failure counter and locks the account
// once the threshold is reached.
func (s *AuthService) handleFailedLogin(ctx context.Context, account *model.Account, meta RequestMeta) {
	attempts, err := s.accounts.IncrementFailedAttempts(ctx, account.ID)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("failed to increment failed attempts")
	}

	s.securityLog.Record(ctx, account.ID, model.EventLoginFailed,
		fmt.Sprintf("attempt %d", attempts), meta.IPAddress, meta.UserAgent)

	threshold := s.cfg.Security.Lockout.Threshold
	if threshold > 0 && attempts >= threshold {
		until := time.Now().Add(s.cfg.Security.Lockout.Duration)
		if err := s.accounts.LockUntil(ctx, account.ID, until); err != nil {
			s.log.Error().Err(err).Str("account_id", account.ID).Msg("failed to lock account")
			return
		}
		s.securityLog.Record(ctx, account.ID, model.EventAccountLocked,
			fmt.Sprintf("until %s", until.Format(time.RFC3339)), meta.IPAddress, meta.UserAgent)
		s.log.Warn().
			Str("account_id", account.ID).
			Int("attempts", attempts).
			Time("locked_until", until).
			Msg("account locked after repeated failures")
	}
}

// Logout records the logout event. Tokens are self-contained, so the
// actual invalidation is the client discarding its copy.
func (s *AuthService) Logout(ctx context.Context, accountID string, meta RequestMeta) error {
	s.securityLog.Record(ctx, accountID, model.EventLogout, "", meta.IPAddress, meta.UserAgent)
	return nil
}

// Refresh exchanges a still-valid token for a fresh one with a full TTL.
// An expired token cannot be refreshed.
func (s *AuthService) Refresh(ctx context.Context, tokenString string, meta RequestMeta) (*SessionResponse, error) {
	claims, err := s.tokenSvc.Verify(tokenString)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, auth.ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	s.securityLog.Record(ctx, account.ID, model.EventTokenRefreshed, "", meta.IPAddress, meta.UserAgent)

	return s.newSession(account)
}

// VerifyToken validates an access token and returns the claims
func (s *AuthService) VerifyToken(tokenString string) (*auth.Claims, error) {
	return s.tokenSvc.Verify(tokenString)
}

// GetAccount returns an account by id
func (s *AuthService) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	return s.accounts.GetByID(ctx, accountID)
}

// UpdateEmail changes the account's email address
func (s *AuthService) UpdateEmail(ctx context.Context, accountID, newEmail string, meta RequestMeta) (*model.Account, error) {
	normalized := auth.NormalizeEmail(newEmail)
	if err := auth.ValidateEmail(normalized); err != nil {
		return nil, &ValidationError{Field: "email", Reason: err.Error()}
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Email == normalized {
		return account, nil
	}

	exists, err := s.accounts.ExistsByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, ErrDuplicateEmail
	}

	if err := s.accounts.UpdateEmail(ctx, accountID, normalized); err != nil {
		return nil, fmt.Errorf("failed to update email: %w", err)
	}

	s.securityLog.Record(ctx, accountID, model.EventProfileUpdated, "email changed", meta.IPAddress, meta.UserAgent)

	account.Email = normalized
	return account, nil
}

// GetSettings returns the account's settings document, falling back to
// defaults when none has been stored yet.
func (s *AuthService) GetSettings(ctx context.Context, accountID string) (*model.Settings, error) {
	settings, err := s.settings.Get(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.DefaultSettings(accountID), nil
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// UpdateSettings replaces the account's settings document
func (s *AuthService) UpdateSettings(ctx context.Context, settings *model.Settings, meta RequestMeta) error {
	settings.UpdatedAt = time.Now()
	if err := s.settings.Upsert(ctx, settings); err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	s.securityLog.Record(ctx, settings.AccountID, model.EventSettingsUpdated, "", meta.IPAddress, meta.UserAgent)
	return nil
}

// ChangePassword changes a password for an authenticated account
func (s *AuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string, meta RequestMeta) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}

	if !auth.CheckPassword(currentPassword, account.PasswordHash) {
		return ErrInvalidCredentials
	}

	if err := auth.ValidatePassword(newPassword, s.cfg.Security.Password.MinLength); err != nil {
		return &ValidationError{Field: "newPassword", Reason: err.Error()}
	}

	passwordHash, err := auth.HashPassword(newPassword, s.cfg.Security.Password.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.accounts.UpdatePasswordHash(ctx, accountID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.securityLog.Record(ctx, accountID, model.EventPasswordChanged, "", meta.IPAddress, meta.UserAgent)
	s.log.Info().Str("account_id", accountID).Msg("password changed")
	return nil
}

// --- Password reset tickets ---

// ResetRequestResponse contains the response from a reset request
type ResetRequestResponse struct {
	Message string `json:"message"`
}

// RequestPasswordReset starts a reset flow. The response is identical
// whether or not the email matches an account, so the endpoint cannot be
// used to enumerate addresses.
func (s *AuthService) RequestPasswordReset(ctx context.Context, emailAddr string, meta RequestMeta) (*ResetRequestResponse, error) {
	successResp := &ResetRequestResponse{
		Message: "If an account with that email exists, a password reset link has been sent.",
	}

	normalized := auth.NormalizeEmail(emailAddr)
	account, err := s.accounts.GetByEmail(ctx, normalized)
	if err != nil {
		s.log.Debug().Str("email", normalized).Msg("reset requested for unknown email")
		return successResp, nil
	}

	// Throttle per account, independent of the endpoint rate limiter.
	recentCount, err := s.resetRepo.CountRecentByAccount(ctx, account.ID, time.Now().Add(-1*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count recent reset tickets: %w", err)
	}
	if recentCount >= s.cfg.Security.Reset.MaxPerHour {
		s.log.Warn().Str("account_id", account.ID).Int("count", recentCount).Msg("too many reset requests")
		// Still the generic response, nothing to enumerate.
		return successResp, nil
	}

	if err := s.resetRepo.InvalidateAllForAccount(ctx, account.ID); err != nil {
		s.log.Error().Err(err).Msg("failed to invalidate existing reset tickets")
	}

	tokenRaw, err := auth.GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate reset token: %w", err)
	}

	now := time.Now()
	ticket := &model.ResetTicket{
		ID:        generateID("tkt"),
		AccountID: account.ID,
		TokenHash: auth.HashToken(tokenRaw),
		ExpiresAt: now.Add(s.cfg.Security.Reset.TicketTTL),
		CreatedAt: now,
	}

	if err := s.resetRepo.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to store reset ticket: %w", err)
	}

	s.securityLog.Record(ctx, account.ID, model.EventPasswordResetRequested, "", meta.IPAddress, meta.UserAgent)

	// Mail delivery is best-effort: the ticket exists either way and a
	// delivery failure must not disclose anything to the caller.
	msg := email.PasswordResetMessage(s.cfg.Email.AppName, account.Username, normalized, tokenRaw, s.cfg.Security.Reset.TicketTTL)
	if err := s.sender.Send(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("failed to send reset mail")
	}

	return successResp, nil
}

// CompletePasswordReset redeems a ticket and sets a new password. A
// ticket can be redeemed exactly once; the used transition is atomic.
func (s *AuthService) CompletePasswordReset(ctx context.Context, tokenRaw, newPassword string, meta RequestMeta) error {
	ticket, err := s.resetRepo.GetByTokenHash(ctx, auth.HashToken(tokenRaw))
	if err != nil {
		return ErrResetTicketInvalid
	}
	if !ticket.Usable() {
		return ErrResetTicketInvalid
	}

	if err := auth.ValidatePassword(newPassword, s.cfg.Security.Password.MinLength); err != nil {
		return &ValidationError{Field: "newPassword", Reason: err.Error()}
	}

	// Consume before writing the new hash so a concurrent redemption of
	// the same ticket cannot also get its password in.
	consumed, err := s.resetRepo.Consume(ctx, ticket.ID)
	if err != nil {
		return fmt.Errorf("failed to consume reset ticket: %w", err)
	}
	if !consumed {
		return ErrResetTicketInvalid
	}

	passwordHash, err := auth.HashPassword(newPassword, s.cfg.Security.Password.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.accounts.UpdatePasswordHash(ctx, ticket.AccountID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	// Proving control of the mailbox outranks the lockout heuristic:
	// a reset clears any standing lock.
	if err := s.accounts.ResetLockout(ctx, ticket.AccountID); err != nil {
		s.log.Error().Err(err).Msg("failed to clear lockout after reset")
	}

	s.securityLog.Record(ctx, ticket.AccountID, model.EventPasswordResetCompleted, "", meta.IPAddress, meta.UserAgent)
	s.log.Info().Str("account_id", ticket.AccountID).Msg("password reset completed")
	return nil
}

// newSession issues a token for the account
func (s *AuthService) newSession(account *model.Account) (*SessionResponse, error) {
	token, err := s.tokenSvc.Issue(account.ID, account.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &SessionResponse{
		Account:   account,
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(s.tokenSvc.TTL().Seconds()),
	}, nil
}

// Helper functions

func generateID(prefix string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	if prefix != "" {
		return prefix + "_" + id[:26]
	}
	return id
}

// CleanIP strips the port from a host:port address if present.
func CleanIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
