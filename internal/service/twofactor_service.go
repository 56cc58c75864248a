package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/nexusoptimizer/nexus/internal/auth"
	"github.com/nexusoptimizer/nexus/internal/config"
	"github.com/nexusoptimizer/nexus/internal/logger"
	"github.com/nexusoptimizer/nexus/internal/model"
	"github.com/nexusoptimizer/nexus/internal/repository"
)

// Two-factor service errors
var (
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	ErrTwoFactorNotPending     = errors.New("no pending two-factor enrollment")
	ErrTwoFactorNotEnabled     = errors.New("two-factor authentication not enabled")
)

// TwoFactorService manages TOTP enrollment. The secret is stored with
// the account when setup begins but the factor only becomes required at
// login after the owner verifies a live code.
type TwoFactorService struct {
	accounts    repository.AccountRepository
	securityLog *SecurityLogService
	cfg         *config.Config
	log         *logger.Logger
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(
	accounts repository.AccountRepository,
	securityLog *SecurityLogService,
	cfg *config.Config,
	log *logger.Logger,
) *TwoFactorService {
	return &TwoFactorService{
		accounts:    accounts,
		securityLog: securityLog,
		cfg:         cfg,
		log:         log.WithComponent("twofactor_service"),
	}
}

// SetupResponse is returned when starting TOTP enrollment
type SetupResponse struct {
	Secret  string `json:"secret"`
	QRCode  string `json:"qrCode"` // base64-encoded PNG of the provisioning URL
	Issuer  string `json:"issuer"`
	Account string `json:"account"`
}

// Setup generates a TOTP secret and provisioning QR code for an account
func (s *TwoFactorService) Setup(ctx context.Context, accountID string) (*SetupResponse, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account.TwoFactor.Enabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	issuer := s.cfg.TwoFA.Issuer
	if issuer == "" {
		issuer = "Nexus Optimizer"
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account.Username,
		Period:      uint(s.cfg.TwoFA.Period),
		Digits:      otp.Digits(s.cfg.TwoFA.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	qrPNG, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	// Store the secret as pending; enabled stays false until verified.
	if err := s.accounts.SetTwoFactor(ctx, accountID, false, key.Secret()); err != nil {
		return nil, fmt.Errorf("failed to store pending secret: %w", err)
	}

	return &SetupResponse{
		Secret:  key.Secret(),
		QRCode:  base64.StdEncoding.EncodeToString(qrPNG),
		Issuer:  issuer,
		Account: account.Username,
	}, nil
}

// VerifyAndEnable confirms a live code against the pending secret and
// turns the second factor on.
func (s *TwoFactorService) VerifyAndEnable(ctx context.Context, accountID, code string, meta RequestMeta) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}
	if account.TwoFactor.Enabled {
		return ErrTwoFactorAlreadyEnabled
	}
	if account.TwoFactor.Secret == "" {
		return ErrTwoFactorNotPending
	}

	if !verifyTOTP(account.TwoFactor.Secret, code) {
		s.securityLog.Record(ctx, accountID, model.EventTwoFactorFailed, "enrollment", meta.IPAddress, meta.UserAgent)
		return ErrInvalidTwoFactorCode
	}

	if err := s.accounts.SetTwoFactor(ctx, accountID, true, account.TwoFactor.Secret); err != nil {
		return fmt.Errorf("failed to enable two-factor: %w", err)
	}

	s.securityLog.Record(ctx, accountID, model.EventTwoFactorEnabled, "", meta.IPAddress, meta.UserAgent)
	s.log.Info().Str("account_id", accountID).Msg("two-factor enabled")
	return nil
}

// Disable turns the second factor off. The caller must re-prove the
// password; a stolen session alone cannot weaken the account.
func (s *TwoFactorService) Disable(ctx context.Context, accountID, password string, meta RequestMeta) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}
	if !account.TwoFactor.Enabled {
		return ErrTwoFactorNotEnabled
	}

	if !auth.CheckPassword(password, account.PasswordHash) {
		return ErrInvalidCredentials
	}

	if err := s.accounts.SetTwoFactor(ctx, accountID, false, ""); err != nil {
		return fmt.Errorf("failed to disable two-factor: %w", err)
	}

	s.securityLog.Record(ctx, accountID, model.EventTwoFactorDisabled, "", meta.IPAddress, meta.UserAgent)
	s.log.Info().Str("account_id", accountID).Msg("two-factor disabled")
	return nil
}

// verifyTOTP checks a code against a base32 secret
func verifyTOTP(secret, code string) bool {
	return totp.Validate(code, secret)
}
