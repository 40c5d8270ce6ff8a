package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"carbonsense/internal/domain/model"

	"github.com/jmoiron/sqlx"
)

// ModelStore persists a model bundle as one unit. Load returns model.ErrNoBundle when the
// store is empty.
type ModelStore interface {
	Save(ctx context.Context, bundle *model.ModelBundle) error
	Load(ctx context.Context) (*model.ModelBundle, error)
}

type FileModelStore struct {
	path string
}

func NewFileModelStore(path string) *FileModelStore {
	return &FileModelStore{path: path}
}

// Save writes to a temporary file in the same directory and renames it over the target,
// so readers see either the old bundle or the new one.
func (s *FileModelStore) Save(_ context.Context, bundle *model.ModelBundle) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bundle); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode model bundle: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync model file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to publish model file: %w", err)
	}
	return nil
}

func (s *FileModelStore) Load(_ context.Context) (*model.ModelBundle, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, model.ErrNoBundle
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return DecodeBundle(data)
}

// DecodeBundle parses a JSON bundle; structural consistency is checked by the caller.
func DecodeBundle(data []byte) (*model.ModelBundle, error) {
	var b model.ModelBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: failed to decode model bundle: %v", model.ErrSchemaMismatch, err)
	}
	return &b, nil
}

// PostgresModelStore keeps every trained bundle and serves the newest one.
type PostgresModelStore struct {
	db *sqlx.DB
}

func NewPostgresModelStore(db *sqlx.DB) *PostgresModelStore {
	return &PostgresModelStore{db: db}
}

func (s *PostgresModelStore) Save(ctx context.Context, bundle *model.ModelBundle) error {
	const query = `
		INSERT INTO model_bundles (id, schema_version, trained_at, payload)
		VALUES ($1, $2, $3, $4)`

	payload, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("failed to marshal model bundle: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, bundle.ID, bundle.SchemaVersion, bundle.TrainedAt, payload); err != nil {
		return fmt.Errorf("failed to save model bundle: %w", err)
	}
	return nil
}

func (s *PostgresModelStore) Load(ctx context.Context) (*model.ModelBundle, error) {
	const query = `
		SELECT payload
		FROM model_bundles
		ORDER BY trained_at DESC
		LIMIT 1`

	var payload []byte
	err := s.db.GetContext(ctx, &payload, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNoBundle
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query model bundle: %w", err)
	}
	return DecodeBundle(payload)
}
