package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nexusoptimizer/nexus/internal/database"
	"github.com/nexusoptimizer/nexus/internal/model"
)

// PostgresSecurityLogRepository persists security log entries in PostgreSQL
type PostgresSecurityLogRepository struct {
	db *database.Postgres
}

// NewPostgresSecurityLogRepository creates a new PostgresSecurityLogRepository
func NewPostgresSecurityLogRepository(db *database.Postgres) *PostgresSecurityLogRepository {
	return &PostgresSecurityLogRepository{db: db}
}

// Create inserts a new security log entry
func (r *PostgresSecurityLogRepository) Create(ctx context.Context, entry *model.SecurityLogEntry) error {
	query := `
		INSERT INTO security_log (id, account_id, event, detail, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.Event,
		entry.Detail,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create security log entry: %w", err)
	}
	return nil
}

const securityLogColumns = `id, account_id, event, detail, ip_address, user_agent, created_at`

// ListByAccount returns entries for one account in insertion order.
// seq is a monotonic insert counter, so ordering is stable even for
// entries created within the same timestamp tick.
func (r *PostgresSecurityLogRepository) ListByAccount(ctx context.Context, accountID string) ([]*model.SecurityLogEntry, error) {
	query := `SELECT ` + securityLogColumns + ` FROM security_log WHERE account_id = $1 ORDER BY seq`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list security log entries: %w", err)
	}
	defer rows.Close()
	return scanSecurityLogRows(rows)
}

// ListAll returns every entry in insertion order
func (r *PostgresSecurityLogRepository) ListAll(ctx context.Context) ([]*model.SecurityLogEntry, error) {
	query := `SELECT ` + securityLogColumns + ` FROM security_log ORDER BY seq`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list security log entries: %w", err)
	}
	defer rows.Close()
	return scanSecurityLogRows(rows)
}

// ClearByAccount removes all entries for an account
func (r *PostgresSecurityLogRepository) ClearByAccount(ctx context.Context, accountID string) error {
	query := `DELETE FROM security_log WHERE account_id = $1`
	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to clear security log: %w", err)
	}
	return nil
}

// ClearAll removes every entry
func (r *PostgresSecurityLogRepository) ClearAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM security_log`); err != nil {
		return fmt.Errorf("failed to clear security log: %w", err)
	}
	return nil
}

func scanSecurityLogRows(rows *sql.Rows) ([]*model.SecurityLogEntry, error) {
	var entries []*model.SecurityLogEntry
	for rows.Next() {
		var entry model.SecurityLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.Event,
			&entry.Detail,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan security log entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate security log entries: %w", err)
	}
	return entries, nil
}
