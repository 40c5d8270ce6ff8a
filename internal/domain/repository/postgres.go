package repository

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

type PostgresRepository struct {
	DB *sqlx.DB
}

// NewPostgresRepository connects with lib/pq ("postgres") or pgx ("pgx").
func NewPostgresRepository(driver, connStr string) (*PostgresRepository, error) {
	if driver == "" {
		driver = DriverPQ
	}
	if driver != DriverPQ && driver != DriverPGX {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sqlx.Connect(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PostgresRepository{DB: db}, nil
}

const schemaDDL = `
	CREATE TABLE IF NOT EXISTS operation_samples (
		id                    TEXT PRIMARY KEY,
		speed_mph             DOUBLE PRECISION NOT NULL,
		engine_load_pct       DOUBLE PRECISION NOT NULL,
		implement_width_ft    DOUBLE PRECISION NOT NULL,
		field_acres           DOUBLE PRECISION NOT NULL DEFAULT 0,
		weather_factor        DOUBLE PRECISION NOT NULL DEFAULT 1,
		operation_type        TEXT NOT NULL DEFAULT '',
		soil_type             TEXT NOT NULL DEFAULT '',
		terrain_type          TEXT NOT NULL DEFAULT '',
		fuel_rate_gph         DOUBLE PRECISION NOT NULL,
		co2_rate_lbs_per_hour DOUBLE PRECISION NOT NULL,
		recorded_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS model_bundles (
		id             TEXT PRIMARY KEY,
		schema_version TEXT NOT NULL,
		trained_at     TIMESTAMPTZ NOT NULL,
		payload        JSONB NOT NULL
	);`

// EnsureSchema creates the sample and bundle tables when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	return r.DB.Close()
}
