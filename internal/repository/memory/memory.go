// Package memory provides an in-process implementation of the repository
// interfaces for single-instance deployments and tests. All state lives
// behind a single mutex per repository; accounts, log entries and tickets
// are copied on the way in and out so callers never share memory with the
// store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nexusoptimizer/nexus/internal/model"
	"github.com/nexusoptimizer/nexus/internal/repository"
)

// New creates the full in-memory repository set.
func New() *repository.Repositories {
	return &repository.Repositories{
		Accounts:     NewAccountRepository(),
		SecurityLog:  NewSecurityLogRepository(),
		ResetTickets: NewResetTicketRepository(),
		Settings:     NewSettingsRepository(),
	}
}

// AccountRepository is an in-memory repository.AccountRepository.
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account // keyed by id
}

// NewAccountRepository creates an empty AccountRepository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{accounts: make(map[string]*model.Account)}
}

func copyAccount(a *model.Account) *model.Account {
	cp := *a
	if a.LockedUntil != nil {
		until := *a.LockedUntil
		cp.LockedUntil = &until
	}
	return &cp
}

// Create implements repository.AccountRepository.
func (r *AccountRepository) Create(_ context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range r.accounts {
		if existing.Username == account.Username {
			return repository.ErrDuplicate
		}
		if account.Email != "" && existing.Email == account.Email {
			return repository.ErrDuplicate
		}
	}
	r.accounts[account.ID] = copyAccount(account)
	return nil
}

// GetByID implements repository.AccountRepository.
func (r *AccountRepository) GetByID(_ context.Context, id string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyAccount(account), nil
}

// GetByUsername implements repository.AccountRepository.
func (r *AccountRepository) GetByUsername(_ context.Context, username string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if account.Username == username {
			return copyAccount(account), nil
		}
	}
	return nil, repository.ErrNotFound
}

// GetByEmail implements repository.AccountRepository.
func (r *AccountRepository) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if email == "" {
		return nil, repository.ErrNotFound
	}
	for _, account := range r.accounts {
		if account.Email == email {
			return copyAccount(account), nil
		}
	}
	return nil, repository.ErrNotFound
}

// ExistsByUsername implements repository.AccountRepository.
func (r *AccountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	if err == repository.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ExistsByEmail implements repository.AccountRepository.
func (r *AccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	if err == repository.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *AccountRepository) update(id string, fn func(*model.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(account)
	account.UpdatedAt = time.Now()
	return nil
}

// UpdateEmail implements repository.AccountRepository.
func (r *AccountRepository) UpdateEmail(_ context.Context, id, email string) error {
	return r.update(id, func(a *model.Account) { a.Email = email })
}

// UpdatePasswordHash implements repository.AccountRepository.
func (r *AccountRepository) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return r.update(id, func(a *model.Account) { a.PasswordHash = hash })
}

// IncrementFailedAttempts implements repository.AccountRepository.
func (r *AccountRepository) IncrementFailedAttempts(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	account.FailedAttempts++
	return account.FailedAttempts, nil
}

// ResetLockout implements repository.AccountRepository.
func (r *AccountRepository) ResetLockout(_ context.Context, id string) error {
	return r.update(id, func(a *model.Account) {
		a.FailedAttempts = 0
		a.Locked = false
		a.LockedUntil = nil
	})
}

// LockUntil implements repository.AccountRepository.
func (r *AccountRepository) LockUntil(_ context.Context, id string, until time.Time) error {
	return r.update(id, func(a *model.Account) {
		a.Locked = true
		a.LockedUntil = &until
	})
}

// SetTwoFactor implements repository.AccountRepository.
func (r *AccountRepository) SetTwoFactor(_ context.Context, id string, enabled bool, secret string) error {
	return r.update(id, func(a *model.Account) {
		a.TwoFactor.Enabled = enabled
		a.TwoFactor.Secret = secret
	})
}

// SecurityLogRepository is an in-memory repository.SecurityLogRepository.
// Entries are held in a slice, which gives insertion order for free.
type SecurityLogRepository struct {
	mu      sync.RWMutex
	entries []*model.SecurityLogEntry
}

// NewSecurityLogRepository creates an empty SecurityLogRepository.
func NewSecurityLogRepository() *SecurityLogRepository {
	return &SecurityLogRepository{}
}

func copyEntry(e *model.SecurityLogEntry) *model.SecurityLogEntry {
	cp := *e
	if e.AccountID != nil {
		id := *e.AccountID
		cp.AccountID = &id
	}
	return &cp
}

// Create implements repository.SecurityLogRepository.
func (r *SecurityLogRepository) Create(_ context.Context, entry *model.SecurityLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, copyEntry(entry))
	return nil
}

// ListByAccount implements repository.SecurityLogRepository.
func (r *SecurityLogRepository) ListByAccount(_ context.Context, accountID string) ([]*model.SecurityLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.SecurityLogEntry
	for _, entry := range r.entries {
		if entry.AccountID != nil && *entry.AccountID == accountID {
			out = append(out, copyEntry(entry))
		}
	}
	return out, nil
}

// ListAll implements repository.SecurityLogRepository.
func (r *SecurityLogRepository) ListAll(_ context.Context) ([]*model.SecurityLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.SecurityLogEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, copyEntry(entry))
	}
	return out, nil
}

// ClearByAccount implements repository.SecurityLogRepository.
func (r *SecurityLogRepository) ClearByAccount(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	for _, entry := range r.entries {
		if entry.AccountID == nil || *entry.AccountID != accountID {
			kept = append(kept, entry)
		}
	}
	r.entries = kept
	return nil
}

// ClearAll implements repository.SecurityLogRepository.
func (r *SecurityLogRepository) ClearAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	return nil
}

// ResetTicketRepository is an in-memory repository.ResetTicketRepository.
type ResetTicketRepository struct {
	mu      sync.Mutex
	tickets map[string]*model.ResetTicket // keyed by id
}

// NewResetTicketRepository creates an empty ResetTicketRepository.
func NewResetTicketRepository() *ResetTicketRepository {
	return &ResetTicketRepository{tickets: make(map[string]*model.ResetTicket)}
}

func copyTicket(t *model.ResetTicket) *model.ResetTicket {
	cp := *t
	if t.UsedAt != nil {
		used := *t.UsedAt
		cp.UsedAt = &used
	}
	return &cp
}

// Create implements repository.ResetTicketRepository.
func (r *ResetTicketRepository) Create(_ context.Context, ticket *model.ResetTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tickets[ticket.ID]; ok {
		return repository.ErrDuplicate
	}
	r.tickets[ticket.ID] = copyTicket(ticket)
	return nil
}

// GetByTokenHash implements repository.ResetTicketRepository.
func (r *ResetTicketRepository) GetByTokenHash(_ context.Context, tokenHash string) (*model.ResetTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ticket := range r.tickets {
		if ticket.TokenHash == tokenHash {
			return copyTicket(ticket), nil
		}
	}
	return nil, repository.ErrNotFound
}

// Consume implements repository.ResetTicketRepository. The check and the
// set happen under one lock, so only one concurrent redemption wins.
func (r *ResetTicketRepository) Consume(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if ticket.UsedAt != nil {
		return false, nil
	}
	now := time.Now()
	ticket.UsedAt = &now
	return true, nil
}

// InvalidateAllForAccount implements repository.ResetTicketRepository.
func (r *ResetTicketRepository) InvalidateAllForAccount(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, ticket := range r.tickets {
		if ticket.AccountID == accountID && ticket.UsedAt == nil {
			used := now
			ticket.UsedAt = &used
		}
	}
	return nil
}

// CountRecentByAccount implements repository.ResetTicketRepository.
func (r *ResetTicketRepository) CountRecentByAccount(_ context.Context, accountID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, ticket := range r.tickets {
		if ticket.AccountID == accountID && ticket.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

// PurgeFinished implements repository.ResetTicketRepository.
func (r *ResetTicketRepository) PurgeFinished(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	now := time.Now()
	for id, ticket := range r.tickets {
		if ticket.UsedAt != nil || now.After(ticket.ExpiresAt) {
			delete(r.tickets, id)
			purged++
		}
	}
	return purged, nil
}

// SettingsRepository is an in-memory repository.SettingsRepository.
type SettingsRepository struct {
	mu       sync.RWMutex
	settings map[string]*model.Settings // keyed by account id
}

// NewSettingsRepository creates an empty SettingsRepository.
func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{settings: make(map[string]*model.Settings)}
}

func copySettings(s *model.Settings) *model.Settings {
	cp := *s
	cp.Preferences = append([]byte(nil), s.Preferences...)
	return &cp
}

// Get implements repository.SettingsRepository.
func (r *SettingsRepository) Get(_ context.Context, accountID string) (*model.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	settings, ok := r.settings[accountID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copySettings(settings), nil
}

// Upsert implements repository.SettingsRepository.
func (r *SettingsRepository) Upsert(_ context.Context, settings *model.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[settings.AccountID] = copySettings(settings)
	return nil
}
