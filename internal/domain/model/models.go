package model

import (
	"fmt"
	"math"
	"time"
)

type SoilType string

const (
	SoilClay  SoilType = "clay"
	SoilLoam  SoilType = "loam"
	SoilSandy SoilType = "sandy"
	SoilSilty SoilType = "silty"
)

// SoilTypes is the closed set of soil values, in schema order.
var SoilTypes = []SoilType{SoilClay, SoilLoam, SoilSandy, SoilSilty}

type TerrainType string

const (
	TerrainFlat    TerrainType = "flat"
	TerrainRolling TerrainType = "rolling"
	TerrainHilly   TerrainType = "hilly"
)

// TerrainTypes is the closed set of terrain values, in schema order.
var TerrainTypes = []TerrainType{TerrainFlat, TerrainRolling, TerrainHilly}

func (s SoilType) Known() bool {
	for _, v := range SoilTypes {
		if v == s {
			return true
		}
	}
	return false
}

func (t TerrainType) Known() bool {
	for _, v := range TerrainTypes {
		if v == t {
			return true
		}
	}
	return false
}

// OperatingPoint is a snapshot of equipment speed, load and field context.
type OperatingPoint struct {
	SpeedMPH         float64     `json:"speed_mph"`
	EngineLoadPct    float64     `json:"engine_load_pct"`
	ImplementWidthFt float64     `json:"implement_width_ft"`
	FieldAcres       float64     `json:"field_acres"`
	WeatherFactor    float64     `json:"weather_factor"`
	OperationType    string      `json:"operation_type,omitempty"`
	SoilType         SoilType    `json:"soil_type,omitempty"`
	TerrainType      TerrainType `json:"terrain_type,omitempty"`
	Location         *LatLon     `json:"location,omitempty"`
}

type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// WithSpeed returns a copy of p operated at speed.
func (p OperatingPoint) WithSpeed(speed float64) OperatingPoint {
	p.SpeedMPH = speed
	return p
}

// ValidateNumeric rejects NaN and infinite numeric fields.
func (p OperatingPoint) ValidateNumeric() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"speed_mph", p.SpeedMPH},
		{"engine_load_pct", p.EngineLoadPct},
		{"implement_width_ft", p.ImplementWidthFt},
		{"field_acres", p.FieldAcres},
		{"weather_factor", p.WeatherFactor},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s must be a finite number", ErrValidation, f.name)
		}
	}
	return nil
}

// ValidateFields checks finite numbers, physical signs and closed-set categoricals.
// Empty categoricals are allowed.
func (p OperatingPoint) ValidateFields() error {
	if err := p.ValidateNumeric(); err != nil {
		return err
	}
	if p.SpeedMPH <= 0 {
		return fmt.Errorf("%w: speed_mph must be positive", ErrValidation)
	}
	if p.EngineLoadPct < 0 {
		return fmt.Errorf("%w: engine_load_pct must not be negative", ErrValidation)
	}
	if p.ImplementWidthFt <= 0 {
		return fmt.Errorf("%w: implement_width_ft must be positive", ErrValidation)
	}
	if p.FieldAcres < 0 {
		return fmt.Errorf("%w: field_acres must not be negative", ErrValidation)
	}
	if p.WeatherFactor < 0 {
		return fmt.Errorf("%w: weather_factor must not be negative", ErrValidation)
	}
	if p.SoilType != "" && !p.SoilType.Known() {
		return fmt.Errorf("%w: unknown soil_type %q", ErrValidation, p.SoilType)
	}
	if p.TerrainType != "" && !p.TerrainType.Known() {
		return fmt.Errorf("%w: unknown terrain_type %q", ErrValidation, p.TerrainType)
	}
	return nil
}

// Validate additionally requires speed and load within b, as optimizer inputs must be.
func (p OperatingPoint) Validate(b Bounds) error {
	if err := p.ValidateFields(); err != nil {
		return err
	}
	if p.SpeedMPH < b.SpeedMin || p.SpeedMPH > b.SpeedMax {
		return fmt.Errorf("%w: speed_mph %.2f outside [%.1f, %.1f]", ErrValidation, p.SpeedMPH, b.SpeedMin, b.SpeedMax)
	}
	if p.EngineLoadPct < b.LoadMin || p.EngineLoadPct > b.LoadMax {
		return fmt.Errorf("%w: engine_load_pct %.2f outside [%.1f, %.1f]", ErrValidation, p.EngineLoadPct, b.LoadMin, b.LoadMax)
	}
	return nil
}

// Bounds are the physical limits an optimizer input must respect.
type Bounds struct {
	SpeedMin float64 // mph
	SpeedMax float64 // mph
	LoadMin  float64 // %
	LoadMax  float64 // %
}

// FeatureVector is the ordered numeric encoding of an operating point.
type FeatureVector struct {
	Columns []string  `json:"columns"`
	Values  []float64 `json:"values"`
}

func (v FeatureVector) Get(column string) (float64, bool) {
	for i, c := range v.Columns {
		if c == column {
			return v.Values[i], true
		}
	}
	return 0, false
}

type PredictionResult struct {
	FuelRateGPH    float64 `json:"fuel_rate_gph"`
	CO2RateLbsHour float64 `json:"co2_rate_lbs_per_hour"`
}

func (r PredictionResult) Finite() bool {
	return !math.IsNaN(r.FuelRateGPH) && !math.IsInf(r.FuelRateGPH, 0) &&
		!math.IsNaN(r.CO2RateLbsHour) && !math.IsInf(r.CO2RateLbsHour, 0)
}

type OptimizationResult struct {
	OptimalSpeed          float64 `json:"optimal_speed"`
	FuelSavingsPercent    float64 `json:"fuel_savings_percent"`
	CO2ReductionPercent   float64 `json:"co2_reduction_percent"`
	OptimalFuelRate       float64 `json:"optimal_fuel_rate"`
	OptimalCO2Rate        float64 `json:"optimal_co2_rate"`
	CostSavingsPerHour    float64 `json:"cost_savings_per_hour"`
	AnnualSavingsEstimate float64 `json:"annual_savings_estimate"`
	BaselineSpeed         float64 `json:"baseline_speed"`
	BaselineFuelRate      float64 `json:"baseline_fuel_rate"`
	BaselineCO2Rate       float64 `json:"baseline_co2_rate"`
	Converged             bool    `json:"converged"`
	CorrectionApplied     bool    `json:"correction_applied"`
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities, high first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

type Recommendation struct {
	Type                string   `json:"type"`
	Priority            Priority `json:"priority"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Action              string   `json:"action"`
	TargetValue         *float64 `json:"target_value,omitempty"`
	TargetLabel         string   `json:"target_label,omitempty"`
	SavingsPerHour      float64  `json:"savings_per_hour,omitempty"`
	CO2ReductionPercent float64  `json:"co2_reduction_percent,omitempty"`
}

// TrainingSample is one observed row of the training dataset.
type TrainingSample struct {
	ID             string         `json:"id"`
	Point          OperatingPoint `json:"point"`
	FuelRateGPH    float64        `json:"fuel_rate_gph"`
	CO2RateLbsHour float64        `json:"co2_rate_lbs_per_hour"`
	RecordedAt     time.Time      `json:"recorded_at"`
}

type RoutePlan struct {
	RecommendedPattern      string  `json:"recommended_pattern"`
	FuelSavingsPercent      float64 `json:"fuel_savings_percent"`
	OverlapReductionPercent float64 `json:"overlap_reduction_percent"`
	EfficiencyImprovement   float64 `json:"efficiency_improvement"`
	EstimatedTimeSavingsMin float64 `json:"estimated_time_savings"`
	FieldLengthMiles        float64 `json:"field_length_miles"`
	FieldWidthMiles         float64 `json:"field_width_miles"`
	Passes                  int     `json:"passes"`
	PatternDescription      string  `json:"pattern_description"`
}
