package service

import (
	"context"
	"time"

	"github.com/nexusoptimizer/nexus/internal/logger"
	"github.com/nexusoptimizer/nexus/internal/model"
	"github.com/nexusoptimizer/nexus/internal/repository"
)

// SecurityLogService records and serves security-relevant events.
// Recording is best-effort: a failure to persist an entry is logged and
// swallowed, never surfaced to the security action that triggered it.
type SecurityLogService struct {
	repo repository.SecurityLogRepository
	log  *logger.Logger
}

// NewSecurityLogService creates a new SecurityLogService
func NewSecurityLogService(repo repository.SecurityLogRepository, log *logger.Logger) *SecurityLogService {
	return &SecurityLogService{
		repo: repo,
		log:  log.WithComponent("security_log"),
	}
}

// Record appends an event for an account. accountID may be empty for
// unauthenticated failures.
func (s *SecurityLogService) Record(ctx context.Context, accountID, event, detail, ipAddress, userAgent string) {
	entry := &model.SecurityLogEntry{
		ID:        generateID("evt"),
		Event:     event,
		Detail:    detail,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		CreatedAt: time.Now(),
	}
	if accountID != "" {
		entry.AccountID = &accountID
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("event", event).Msg("failed to record security event")
	}
}

// List returns the entries for one account in insertion order.
func (s *SecurityLogService) List(ctx context.Context, accountID string) ([]*model.SecurityLogEntry, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

// ListAll returns every entry in insertion order.
func (s *SecurityLogService) ListAll(ctx context.Context) ([]*model.SecurityLogEntry, error) {
	return s.repo.ListAll(ctx)
}

// Clear removes the entries for one account.
func (s *SecurityLogService) Clear(ctx context.Context, accountID string) error {
	return s.repo.ClearByAccount(ctx, accountID)
}

// ClearAll removes the whole log. Used sparingly.
func (s *SecurityLogService) ClearAll(ctx context.Context) error {
	return s.repo.ClearAll(ctx)
}
