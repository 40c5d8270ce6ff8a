package repository

import (
	"context"
	"fmt"
	"time"

	"carbonsense/internal/domain/model"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type SampleRecorder interface {
	SaveSample(ctx context.Context, sample model.TrainingSample) error
}

// SampleSource yields the rows a model is trained on.
type SampleSource interface {
	LoadSamples(ctx context.Context) ([]model.TrainingSample, error)
}

type PostgresSampleStore struct {
	db *sqlx.DB
}

func NewPostgresSampleStore(db *sqlx.DB) *PostgresSampleStore {
	return &PostgresSampleStore{db: db}
}

type sampleRow struct {
	ID               string    `db:"id"`
	SpeedMPH         float64   `db:"speed_mph"`
	EngineLoadPct    float64   `db:"engine_load_pct"`
	ImplementWidthFt float64   `db:"implement_width_ft"`
	FieldAcres       float64   `db:"field_acres"`
	WeatherFactor    float64   `db:"weather_factor"`
	OperationType    string    `db:"operation_type"`
	SoilType         string    `db:"soil_type"`
	TerrainType      string    `db:"terrain_type"`
	FuelRateGPH      float64   `db:"fuel_rate_gph"`
	CO2RateLbsHour   float64   `db:"co2_rate_lbs_per_hour"`
	RecordedAt       time.Time `db:"recorded_at"`
}

func (r sampleRow) toSample() model.TrainingSample {
	return model.TrainingSample{
		ID: r.ID,
		Point: model.OperatingPoint{
			SpeedMPH:         r.SpeedMPH,
			EngineLoadPct:    r.EngineLoadPct,
			ImplementWidthFt: r.ImplementWidthFt,
			FieldAcres:       r.FieldAcres,
			WeatherFactor:    r.WeatherFactor,
			OperationType:    r.OperationType,
			SoilType:         model.SoilType(r.SoilType),
			TerrainType:      model.TerrainType(r.TerrainType),
		},
		FuelRateGPH:    r.FuelRateGPH,
		CO2RateLbsHour: r.CO2RateLbsHour,
		RecordedAt:     r.RecordedAt,
	}
}

func (r *PostgresSampleStore) SaveSample(ctx context.Context, s model.TrainingSample) error {
	const query = `
		INSERT INTO operation_samples (
			id, speed_mph, engine_load_pct, implement_width_ft,
			field_acres, weather_factor, operation_type, soil_type, terrain_type,
			fuel_rate_gph, co2_rate_lbs_per_hour, recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)`

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.RecordedAt.IsZero() {
		s.RecordedAt = time.Now().UTC()
	}
	p := s.Point
	_, err := r.db.ExecContext(ctx, query,
		s.ID, p.SpeedMPH, p.EngineLoadPct, p.ImplementWidthFt,
		p.FieldAcres, p.WeatherFactor, p.OperationType, string(p.SoilType), string(p.TerrainType),
		s.FuelRateGPH, s.CO2RateLbsHour, s.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save operation sample: %w", err)
	}
	return nil
}

func (r *PostgresSampleStore) LoadSamples(ctx context.Context) ([]model.TrainingSample, error) {
	const query = `
		SELECT
			id, speed_mph, engine_load_pct, implement_width_ft,
			field_acres, weather_factor, operation_type, soil_type, terrain_type,
			fuel_rate_gph, co2_rate_lbs_per_hour, recorded_at
		FROM operation_samples
		ORDER BY recorded_at, id`

	var rows []sampleRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to query operation samples: %w", err)
	}
	samples := make([]model.TrainingSample, len(rows))
	for i, row := range rows {
		samples[i] = row.toSample()
	}
	return samples, nil
}
