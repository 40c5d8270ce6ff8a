package core

import (
	"carbonsense/internal/domain/model"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// LearnedModel predicts with a validated, immutable model bundle.
type LearnedModel struct {
	bundle model.ModelBundle
	schema Schema
}

// NewLearnedModel validates the bundle and returns a model that owns a private copy.
func NewLearnedModel(b *model.ModelBundle) (*LearnedModel, error) {
	if b == nil {
		return nil, model.ErrModelNotReady
	}
	schema, err := ValidateBundle(b)
	if err != nil {
		return nil, err
	}
	return &LearnedModel{bundle: cloneBundle(b), schema: schema}, nil
}

func (m *LearnedModel) Name() string { return "learned" }

func (m *LearnedModel) Predict(v model.FeatureVector) (model.PredictionResult, error) {
	if m == nil {
		return model.PredictionResult{}, model.ErrModelNotReady
	}
	scaled := transform(m.bundle.Scaler, m.schema.Align(v))
	return model.PredictionResult{
		FuelRateGPH:    nonNegative(predictLinear(m.bundle.Fuel, scaled)),
		CO2RateLbsHour: nonNegative(predictLinear(m.bundle.Emission, scaled)),
	}, nil
}

// Bundle returns a copy of the underlying bundle.
func (m *LearnedModel) Bundle() model.ModelBundle {
	return cloneBundle(&m.bundle)
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// ValidateBundle checks that columns, scaler and both regressors agree with each other
// and with the feature schema this build produces.
func ValidateBundle(b *model.ModelBundle) (Schema, error) {
	schema, err := NewSchema(b.SchemaVersion, b.Columns)
	if err != nil {
		return Schema{}, err
	}
	n := len(b.Columns)
	checks := []struct {
		name string
		vals []float64
	}{
		{"scaler mean", b.Scaler.Mean},
		{"scaler scale", b.Scaler.Scale},
		{"fuel coefficients", b.Fuel.Coefficients},
		{"emission coefficients", b.Emission.Coefficients},
	}
	for _, c := range checks {
		if len(c.vals) != n {
			return Schema{}, fmt.Errorf("%w: %s has %d values for %d columns", model.ErrSchemaMismatch, c.name, len(c.vals), n)
		}
		for _, v := range c.vals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Schema{}, fmt.Errorf("%w: %s contains a non-finite value", model.ErrSchemaMismatch, c.name)
			}
		}
	}
	for _, s := range b.Scaler.Scale {
		if s <= 0 {
			return Schema{}, fmt.Errorf("%w: scaler scale must be positive", model.ErrSchemaMismatch)
		}
	}
	for _, v := range []float64{b.Fuel.Intercept, b.Emission.Intercept} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Schema{}, fmt.Errorf("%w: non-finite intercept", model.ErrSchemaMismatch)
		}
	}
	return schema, nil
}

func cloneBundle(b *model.ModelBundle) model.ModelBundle {
	c := *b
	c.Columns = append([]string(nil), b.Columns...)
	c.Scaler.Mean = append([]float64(nil), b.Scaler.Mean...)
	c.Scaler.Scale = append([]float64(nil), b.Scaler.Scale...)
	c.Fuel.Coefficients = append([]float64(nil), b.Fuel.Coefficients...)
	c.Emission.Coefficients = append([]float64(nil), b.Emission.Coefficients...)
	return c
}

type TrainingConfig struct {
	Ridge             float64 // L2 penalty on scaled coefficients, must be > 0
	HoldoutEvery      int     // every n-th row is held out for scoring
	MinHoldoutSamples int     // below this many rows everything trains and scores in-sample
	SensitivityProbes int     // holdout rows probed at ±20% speed
}

func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		Ridge:             1.0,
		HoldoutEvery:      5,
		MinHoldoutSamples: 10,
		SensitivityProbes: 5,
	}
}

type SensitivityProbe struct {
	BaseFuel    float64 `json:"base_fuel"`
	HighFuel    float64 `json:"high_fuel"`
	LowFuel     float64 `json:"low_fuel"`
	HighDiffPct float64 `json:"high_diff_pct"`
	LowDiffPct  float64 `json:"low_diff_pct"`
}

type TrainingReport struct {
	Samples     int                `json:"samples"`
	TrainRows   int                `json:"train_rows"`
	HoldoutRows int                `json:"holdout_rows"`
	FuelR2      float64            `json:"fuel_r2"`
	EmissionR2  float64            `json:"emission_r2"`
	Sensitivity []SensitivityProbe `json:"sensitivity"`
}

// Train fits the schema, scaler and both regressors from observed samples.
func Train(builder *FeatureBuilder, samples []model.TrainingSample, cfg TrainingConfig) (*model.ModelBundle, TrainingReport, error) {
	report := TrainingReport{Samples: len(samples)}
	if len(samples) == 0 {
		return nil, report, fmt.Errorf("%w: no training samples", model.ErrValidation)
	}
	if cfg.Ridge <= 0 {
		return nil, report, fmt.Errorf("%w: ridge penalty must be positive", model.ErrValidation)
	}

	vectors := make([]model.FeatureVector, len(samples))
	for i, s := range samples {
		v, err := builder.Build(s.Point)
		if err != nil {
			return nil, report, fmt.Errorf("sample %d: %w", i, err)
		}
		if !finiteNonNegative(s.FuelRateGPH) || !finiteNonNegative(s.CO2RateLbsHour) {
			return nil, report, fmt.Errorf("%w: sample %d has invalid observed rates", model.ErrValidation, i)
		}
		vectors[i] = v
	}

	schema, err := FitSchema(vectors)
	if err != nil {
		return nil, report, err
	}
	rows := make([][]float64, len(vectors))
	for i, v := range vectors {
		rows[i] = schema.Align(v)
	}
	scaler := fitScaler(rows)

	var trainIdx, holdoutIdx []int
	for i := range rows {
		if len(rows) >= cfg.MinHoldoutSamples && cfg.HoldoutEvery > 1 && i%cfg.HoldoutEvery == cfg.HoldoutEvery-1 {
			holdoutIdx = append(holdoutIdx, i)
		} else {
			trainIdx = append(trainIdx, i)
		}
	}
	if len(holdoutIdx) == 0 {
		holdoutIdx = trainIdx
	}

	x := make([][]float64, len(trainIdx))
	yFuel := make([]float64, len(trainIdx))
	yCO2 := make([]float64, len(trainIdx))
	for k, i := range trainIdx {
		x[k] = transform(scaler, rows[i])
		yFuel[k] = samples[i].FuelRateGPH
		yCO2[k] = samples[i].CO2RateLbsHour
	}

	fuel, err := fitRidge(x, yFuel, cfg.Ridge)
	if err != nil {
		return nil, report, fmt.Errorf("failed to fit fuel regressor: %w", err)
	}
	emission, err := fitRidge(x, yCO2, cfg.Ridge)
	if err != nil {
		return nil, report, fmt.Errorf("failed to fit emission regressor: %w", err)
	}

	bundle := &model.ModelBundle{
		ID:            uuid.New().String(),
		SchemaVersion: SchemaVersion,
		TrainedAt:     time.Now().UTC(),
		Samples:       len(samples),
		Columns:       schema.Columns,
		Scaler:        scaler,
		Fuel:          fuel,
		Emission:      emission,
	}

	m, err := NewLearnedModel(bundle)
	if err != nil {
		return nil, report, err
	}

	estFuel := make([]float64, len(holdoutIdx))
	estCO2 := make([]float64, len(holdoutIdx))
	obsFuel := make([]float64, len(holdoutIdx))
	obsCO2 := make([]float64, len(holdoutIdx))
	for k, i := range holdoutIdx {
		pred, _ := m.Predict(vectors[i])
		estFuel[k], estCO2[k] = pred.FuelRateGPH, pred.CO2RateLbsHour
		obsFuel[k], obsCO2[k] = samples[i].FuelRateGPH, samples[i].CO2RateLbsHour
	}
	bundle.Fuel.R2 = rSquared(estFuel, obsFuel)
	bundle.Emission.R2 = rSquared(estCO2, obsCO2)

	report.TrainRows = len(trainIdx)
	report.HoldoutRows = len(holdoutIdx)
	report.FuelR2 = bundle.Fuel.R2
	report.EmissionR2 = bundle.Emission.R2
	report.Sensitivity = probeSensitivity(builder, m, samples, holdoutIdx, cfg.SensitivityProbes)

	return bundle, report, nil
}

func probeSensitivity(builder *FeatureBuilder, m *LearnedModel, samples []model.TrainingSample, idx []int, limit int) []SensitivityProbe {
	var probes []SensitivityProbe
	for _, i := range idx {
		if len(probes) >= limit {
			break
		}
		p := samples[i].Point
		base, errBase := predictPoint(builder, m, p)
		high, errHigh := predictPoint(builder, m, p.WithSpeed(p.SpeedMPH*1.2))
		low, errLow := predictPoint(builder, m, p.WithSpeed(p.SpeedMPH*0.8))
		if errBase != nil || errHigh != nil || errLow != nil || base.FuelRateGPH == 0 {
			continue
		}
		probes = append(probes, SensitivityProbe{
			BaseFuel:    base.FuelRateGPH,
			HighFuel:    high.FuelRateGPH,
			LowFuel:     low.FuelRateGPH,
			HighDiffPct: (high.FuelRateGPH - base.FuelRateGPH) / base.FuelRateGPH * 100,
			LowDiffPct:  (low.FuelRateGPH - base.FuelRateGPH) / base.FuelRateGPH * 100,
		})
	}
	return probes
}

func predictPoint(builder *FeatureBuilder, m model.ResponseModel, p model.OperatingPoint) (model.PredictionResult, error) {
	v, err := builder.Build(p)
	if err != nil {
		return model.PredictionResult{}, err
	}
	return m.Predict(v)
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
