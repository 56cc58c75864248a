package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nexusoptimizer/nexus/internal/database"
	"github.com/nexusoptimizer/nexus/internal/model"
)

// PostgresSettingsRepository persists dashboard settings in PostgreSQL
type PostgresSettingsRepository struct {
	db *database.Postgres
}

// NewPostgresSettingsRepository creates a new PostgresSettingsRepository
func NewPostgresSettingsRepository(db *database.Postgres) *PostgresSettingsRepository {
	return &PostgresSettingsRepository{db: db}
}

// Get retrieves the settings document for an account
func (r *PostgresSettingsRepository) Get(ctx context.Context, accountID string) (*model.Settings, error) {
	query := `SELECT account_id, preferences, updated_at FROM settings WHERE account_id = $1`
	var settings model.Settings
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&settings.AccountID,
		&settings.Preferences,
		&settings.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &settings, nil
}

// Upsert inserts or replaces the settings document for an account
func (r *PostgresSettingsRepository) Upsert(ctx context.Context, settings *model.Settings) error {
	query := `
		INSERT INTO settings (account_id, preferences, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE
		SET preferences = EXCLUDED.preferences, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		settings.AccountID,
		[]byte(settings.Preferences),
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}
	return nil
}
