package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/nexusoptimizer/nexus/internal/database"
	"github.com/nexusoptimizer/nexus/internal/model"
)

// PostgresAccountRepository persists accounts in PostgreSQL
type PostgresAccountRepository struct {
	db *database.Postgres
}

// NewPostgresAccountRepository creates a new PostgresAccountRepository
func NewPostgresAccountRepository(db *database.Postgres) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

// Create inserts a new account
func (r *PostgresAccountRepository) Create(ctx context.Context, account *model.Account) error {
	query := `
		INSERT INTO accounts (id, username, email, password_hash, locked, failed_attempts,
		    two_factor_enabled, two_factor_secret, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.Locked,
		account.FailedAttempts,
		account.TwoFactor.Enabled,
		account.TwoFactor.Secret,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

const accountColumns = `id, username, COALESCE(email, ''), password_hash, locked, locked_until,
	failed_attempts, two_factor_enabled, two_factor_secret, created_at, updated_at`

// GetByID retrieves an account by ID
func (r *PostgresAccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// GetByUsername retrieves an account by username
func (r *PostgresAccountRepository) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, username))
}

// GetByEmail retrieves an account by email
func (r *PostgresAccountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, email))
}

// ExistsByUsername checks if an account with the given username exists
func (r *PostgresAccountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM accounts WHERE username = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}
	return exists, nil
}

// ExistsByEmail checks if an account with the given email exists
func (r *PostgresAccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}
	return exists, nil
}

// UpdateEmail updates the account's email address
func (r *PostgresAccountRepository) UpdateEmail(ctx context.Context, id, email string) error {
	query := `UPDATE accounts SET email = NULLIF($1, ''), updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, email, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update email: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePasswordHash updates the account's password hash
func (r *PostgresAccountRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	query := `UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, hash, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementFailedAttempts increments the failed login attempts counter
func (r *PostgresAccountRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE accounts
		SET failed_attempts = failed_attempts + 1
		WHERE id = $1
		RETURNING failed_attempts
	`
	var attempts int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("failed to increment failed attempts: %w", err)
	}
	return attempts, nil
}

// ResetLockout clears the failure counter and any lock
func (r *PostgresAccountRepository) ResetLockout(ctx context.Context, id string) error {
	query := `UPDATE accounts SET failed_attempts = 0, locked = false, locked_until = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to reset lockout: %w", err)
	}
	return nil
}

// LockUntil locks the account until the specified time
func (r *PostgresAccountRepository) LockUntil(ctx context.Context, id string, until time.Time) error {
	query := `UPDATE accounts SET locked = true, locked_until = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, until, id); err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}
	return nil
}

// SetTwoFactor updates the account's second-factor state
func (r *PostgresAccountRepository) SetTwoFactor(ctx context.Context, id string, enabled bool, secret string) error {
	query := `UPDATE accounts SET two_factor_enabled = $1, two_factor_secret = $2, updated_at = $3 WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, enabled, secret, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update two-factor state: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// scanAccount scans a single account row
func (r *PostgresAccountRepository) scanAccount(row *sql.Row) (*model.Account, error) {
	var account model.Account
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.Locked,
		&account.LockedUntil,
		&account.FailedAttempts,
		&account.TwoFactor.Enabled,
		&account.TwoFactor.Secret,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &account, nil
}
