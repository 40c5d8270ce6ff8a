package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"carbonsense/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBundle(id string) *model.ModelBundle {
	return &model.ModelBundle{
		ID:            id,
		SchemaVersion: "carbonsense-features/v1",
		TrainedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Columns:       []string{"speed_mph", "engine_load_pct"},
		Scaler:        model.ScalerParams{Mean: []float64{7, 70}, Scale: []float64{2, 10}},
		Fuel:          model.RegressorParams{Intercept: 12, Coefficients: []float64{1.5, 0.4}, R2: 0.91},
		Emission:      model.RegressorParams{Intercept: 268.8, Coefficients: []float64{33.6, 8.96}, R2: 0.9},
	}
}

func TestFileModelStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileModelStore(filepath.Join(dir, "models", "bundle.json"))
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, model.ErrNoBundle)

	require.NoError(t, store.Save(ctx, testBundle("first")))
	require.NoError(t, store.Save(ctx, testBundle("second")))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, testBundle("second"), got)

	entries, err := os.ReadDir(filepath.Join(dir, "models"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bundle.json", entries[0].Name())
}

func TestFileModelStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileModelStore(path).Load(context.Background())
	assert.ErrorIs(t, err, model.ErrSchemaMismatch)
}
