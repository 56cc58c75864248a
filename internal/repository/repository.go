package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nexusoptimizer/nexus/internal/model"
)

// Common repository errors
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("record already exists")
	ErrInvalidInput = errors.New("invalid input")
)

// AccountRepository handles account persistence. Accounts are never
// hard-deleted.
type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	GetByID(ctx context.Context, id string) (*model.Account, error)
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdateEmail(ctx context.Context, id, email string) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	// IncrementFailedAttempts bumps the failure counter and returns the
	// new count.
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	// ResetLockout clears the failure counter and any lock.
	ResetLockout(ctx context.Context, id string) error
	// LockUntil marks the account locked until the given time.
	LockUntil(ctx context.Context, id string, until time.Time) error
	SetTwoFactor(ctx context.Context, id string, enabled bool, secret string) error
}

// SecurityLogRepository handles the append-only security log.
type SecurityLogRepository interface {
	Create(ctx context.Context, entry *model.SecurityLogEntry) error
	// ListByAccount returns entries for one account in insertion order.
	ListByAccount(ctx context.Context, accountID string) ([]*model.SecurityLogEntry, error)
	// ListAll returns every entry in insertion order.
	ListAll(ctx context.Context) ([]*model.SecurityLogEntry, error)
	ClearByAccount(ctx context.Context, accountID string) error
	ClearAll(ctx context.Context) error
}

// ResetTicketRepository handles password reset tickets.
type ResetTicketRepository interface {
	Create(ctx context.Context, ticket *model.ResetTicket) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*model.ResetTicket, error)
	// Consume atomically marks the ticket used. It returns false when the
	// ticket was already consumed, so concurrent redemptions cannot both
	// win.
	Consume(ctx context.Context, id string) (bool, error)
	InvalidateAllForAccount(ctx context.Context, accountID string) error
	CountRecentByAccount(ctx context.Context, accountID string, since time.Time) (int, error)
	// PurgeFinished deletes used and expired tickets, returning how many
	// were removed.
	PurgeFinished(ctx context.Context) (int64, error)
}

// SettingsRepository handles per-account dashboard settings.
type SettingsRepository interface {
	Get(ctx context.Context, accountID string) (*model.Settings, error)
	Upsert(ctx context.Context, settings *model.Settings) error
}

// Repositories bundles the full persistence surface for wiring.
type Repositories struct {
	Accounts     AccountRepository
	SecurityLog  SecurityLogRepository
	ResetTickets ResetTicketRepository
	Settings     SettingsRepository
}
