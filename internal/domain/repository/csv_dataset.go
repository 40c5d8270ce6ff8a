package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"carbonsense/internal/domain/model"

	"github.com/google/uuid"
)

var requiredCSVColumns = []string{
	"speed_mph", "engine_load_pct", "implement_width_ft", "fuel_rate_gph", "co2_rate_lbs_per_hour",
}

// ParseSamplesCSV reads telemetry rows with a header line. Optional columns are
// field_acres, weather_factor (default 1), operation_type, soil_type, terrain_type and timestamp.
func ParseSamplesCSV(r io.Reader) ([]model.TrainingSample, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredCSVColumns {
		if _, ok := index[c]; !ok {
			return nil, fmt.Errorf("%w: csv column %q is required", model.ErrValidation, c)
		}
	}

	var samples []model.TrainingSample
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}
		s, err := parseRecord(record, index)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func parseRecord(record []string, index map[string]int) (model.TrainingSample, error) {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	number := func(name string, def float64, required bool) (float64, error) {
		raw := field(name)
		if raw == "" {
			if required {
				return 0, fmt.Errorf("%w: %s is required", model.ErrValidation, name)
			}
			return def, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid %s %q", model.ErrValidation, name, raw)
		}
		return v, nil
	}

	var (
		s    model.TrainingSample
		errs []error
		get  = func(dst *float64, name string, def float64, required bool) {
			v, err := number(name, def, required)
			if err != nil {
				errs = append(errs, err)
			}
			*dst = v
		}
	)
	get(&s.Point.SpeedMPH, "speed_mph", 0, true)
	get(&s.Point.EngineLoadPct, "engine_load_pct", 0, true)
	get(&s.Point.ImplementWidthFt, "implement_width_ft", 0, true)
	get(&s.Point.FieldAcres, "field_acres", 0, false)
	get(&s.Point.WeatherFactor, "weather_factor", 1, false)
	get(&s.FuelRateGPH, "fuel_rate_gph", 0, true)
	get(&s.CO2RateLbsHour, "co2_rate_lbs_per_hour", 0, true)
	if err := errors.Join(errs...); err != nil {
		return model.TrainingSample{}, err
	}

	s.Point.OperationType = field("operation_type")
	s.Point.SoilType = model.SoilType(strings.ToLower(field("soil_type")))
	s.Point.TerrainType = model.TerrainType(strings.ToLower(field("terrain_type")))

	s.ID = uuid.New().String()
	if ts := field("timestamp"); ts != "" {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			t, err = time.Parse("2006-01-02T15:04:05.999999", ts)
		}
		if err != nil {
			return model.TrainingSample{}, fmt.Errorf("%w: invalid timestamp %q", model.ErrValidation, ts)
		}
		s.RecordedAt = t.UTC()
	}
	return s, nil
}

// CSVFileSource loads samples from a local CSV file.
type CSVFileSource struct {
	path string
}

func NewCSVFileSource(path string) *CSVFileSource {
	return &CSVFileSource{path: path}
}

func (s *CSVFileSource) LoadSamples(_ context.Context) ([]model.TrainingSample, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return ParseSamplesCSV(f)
}
