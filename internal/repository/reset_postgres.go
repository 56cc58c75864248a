package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nexusoptimizer/nexus/internal/database"
	"github.com/nexusoptimizer/nexus/internal/model"
)

// PostgresResetTicketRepository persists password reset tickets in PostgreSQL
type PostgresResetTicketRepository struct {
	db *database.Postgres
}

// NewPostgresResetTicketRepository creates a new PostgresResetTicketRepository
func NewPostgresResetTicketRepository(db *database.Postgres) *PostgresResetTicketRepository {
	return &PostgresResetTicketRepository{db: db}
}

// Create stores a new reset ticket
func (r *PostgresResetTicketRepository) Create(ctx context.Context, ticket *model.ResetTicket) error {
	query := `
		INSERT INTO reset_tickets (id, account_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		ticket.ID,
		ticket.AccountID,
		ticket.TokenHash,
		ticket.ExpiresAt,
		ticket.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reset ticket: %w", err)
	}
	return nil
}

// GetByTokenHash retrieves a reset ticket by its token hash
func (r *PostgresResetTicketRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*model.ResetTicket, error) {
	query := `
		SELECT id, account_id, token_hash, expires_at, used_at, created_at
		FROM reset_tickets
		WHERE token_hash = $1
	`
	var ticket model.ResetTicket
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&ticket.ID,
		&ticket.AccountID,
		&ticket.TokenHash,
		&ticket.ExpiresAt,
		&ticket.UsedAt,
		&ticket.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reset ticket: %w", err)
	}
	return &ticket, nil
}

// Consume marks the ticket used. The used_at guard in the WHERE clause
// makes the transition a check-and-set, so only one of two concurrent
// redemptions succeeds.
func (r *PostgresResetTicketRepository) Consume(ctx context.Context, id string) (bool, error) {
	query := `UPDATE reset_tickets SET used_at = $1 WHERE id = $2 AND used_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to consume reset ticket: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	return rowsAffected == 1, nil
}

// InvalidateAllForAccount marks all unused tickets for an account as used
func (r *PostgresResetTicketRepository) InvalidateAllForAccount(ctx context.Context, accountID string) error {
	query := `UPDATE reset_tickets SET used_at = $1 WHERE account_id = $2 AND used_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, time.Now(), accountID); err != nil {
		return fmt.Errorf("failed to invalidate reset tickets: %w", err)
	}
	return nil
}

// CountRecentByAccount counts recent tickets for request throttling
func (r *PostgresResetTicketRepository) CountRecentByAccount(ctx context.Context, accountID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM reset_tickets WHERE account_id = $1 AND created_at > $2`
	var count int
	if err := r.db.QueryRowContext(ctx, query, accountID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recent reset tickets: %w", err)
	}
	return count, nil
}

// PurgeFinished deletes used and expired tickets
func (r *PostgresResetTicketRepository) PurgeFinished(ctx context.Context) (int64, error) {
	query := `DELETE FROM reset_tickets WHERE used_at IS NOT NULL OR expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge reset tickets: %w", err)
	}
	return result.RowsAffected()
}
