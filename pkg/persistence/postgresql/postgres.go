// Package postgresql provides PostgreSQL persistence for variants and environments.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/persistence"
	"github.com/dukex/playground/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "postgresql")

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:     database,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Variants returns all variants ordered by id.
func (p *Persistence) Variants(ctx context.Context) ([]*models.VariantRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, record FROM variants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]*models.VariantRecord, 0)

	for rows.Next() {
		var (
			id   string
			data []byte
		)

		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}

		record, err := decodeRecord(id, data)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate variants: %w", err)
	}

	return records, nil
}

func (p *Persistence) VariantByID(ctx context.Context, id string) (*models.VariantRecord, error) {
	var data []byte

	err := p.db.QueryRowContext(ctx, `SELECT record FROM variants WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewVariantError("VariantByID", id, persistence.ErrVariantNotFound)
		}

		return nil, fmt.Errorf("failed to fetch variant %s: %w", id, err)
	}

	return decodeRecord(id, data)
}

// SaveVariant upserts a variant. The stored row is locked while the next revision is computed.
func (p *Persistence) SaveVariant(ctx context.Context, record *models.VariantRecord) (err error) {
	if err := persistence.ValidateRecord(record); err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current *models.VariantRecord

	var stored int

	err = tx.QueryRowContext(ctx, `SELECT revision FROM variants WHERE id = $1 FOR UPDATE`, record.ID).Scan(&stored)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	case err != nil:
		return fmt.Errorf("failed to lock variant %s: %w", record.ID, err)
	default:
		current = &models.VariantRecord{Revision: stored}
	}

	persistence.Stamp(record, current, p.now())

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal variant %s: %w", record.ID, err)
	}

	query := `
		INSERT INTO variants (id, uri, app_id, variant_name, revision, record, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			uri = EXCLUDED.uri,
			app_id = EXCLUDED.app_id,
			variant_name = EXCLUDED.variant_name,
			revision = EXCLUDED.revision,
			record = EXCLUDED.record,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, query,
		record.ID,
		record.URI,
		record.AppID,
		record.VariantName,
		record.Revision,
		data,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save variant %s: %w", record.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (p *Persistence) DeleteVariant(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM variants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete variant: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewVariantError("DeleteVariant", id, persistence.ErrVariantNotFound)
	}

	return nil
}

func (p *Persistence) Environments(ctx context.Context) ([]*models.Environment, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT name, record FROM environments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query environments: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	envs := make([]*models.Environment, 0)

	for rows.Next() {
		var (
			name string
			data []byte
			env  models.Environment
		)

		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("failed to scan environment: %w", err)
		}

		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("failed to unmarshal environment %s: %w", name, err)
		}

		envs = append(envs, &env)
	}

	return envs, rows.Err()
}

func (p *Persistence) SaveEnvironment(ctx context.Context, env *models.Environment) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal environment %s: %w", env.Name, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO environments (name, app_id, record) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET app_id = EXCLUDED.app_id, record = EXCLUDED.record
	`, env.Name, env.AppID, data)
	if err != nil {
		return fmt.Errorf("failed to save environment %s: %w", env.Name, err)
	}

	return nil
}

func decodeRecord(id string, data []byte) (*models.VariantRecord, error) {
	var record models.VariantRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variant %s: %w", id, err)
	}

	return &record, nil
}
