package core

import (
	"math"
	"testing"

	"carbonsense/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linearSamples observe fuel = 2 + 0.8·speed + 0.1·load and CO2 = 22.4·fuel.
func linearSamples() []model.TrainingSample {
	var samples []model.TrainingSample
	for _, soil := range model.SoilTypes {
		for speed := 4.0; speed <= 14; speed++ {
			for load := 50.0; load <= 90; load += 10 {
				fuel := 2 + 0.8*speed + 0.1*load
				samples = append(samples, model.TrainingSample{
					Point: model.OperatingPoint{
						SpeedMPH:         speed,
						EngineLoadPct:    load,
						ImplementWidthFt: 24,
						FieldAcres:       80,
						WeatherFactor:    1,
						SoilType:         soil,
						TerrainType:      model.TerrainRolling,
					},
					FuelRateGPH:    fuel,
					CO2RateLbsHour: fuel * 22.4,
				})
			}
		}
	}
	return samples
}

func trainLinear(t *testing.T) (*model.ModelBundle, TrainingReport) {
	t.Helper()
	bundle, report, err := Train(NewFeatureBuilder(), linearSamples(), DefaultTrainingConfig())
	require.NoError(t, err)
	return bundle, report
}

func TestTrainFitsLinearResponse(t *testing.T) {
	bundle, report := trainLinear(t)

	assert.Equal(t, 220, report.Samples)
	assert.Equal(t, 44, report.HoldoutRows)
	assert.Equal(t, 176, report.TrainRows)
	assert.Greater(t, report.FuelR2, 0.99)
	assert.Greater(t, report.EmissionR2, 0.99)
	assert.NotEmpty(t, bundle.ID)
	assert.Equal(t, SchemaVersion, bundle.SchemaVersion)
	assert.Len(t, bundle.Scaler.Mean, len(bundle.Columns))

	m, err := NewLearnedModel(bundle)
	require.NoError(t, err)
	p := samplePoint()
	p.OperationType = ""
	res := predictWith(t, m, p)
	assert.InDelta(t, 2+0.8*7.5+0.1*78, res.FuelRateGPH, 0.5)
	assert.Equal(t, "learned", m.Name())
}

func TestTrainReportsSpeedSensitivity(t *testing.T) {
	_, report := trainLinear(t)
	require.Len(t, report.Sensitivity, 5)
	for _, probe := range report.Sensitivity {
		assert.Greater(t, probe.HighDiffPct, 0.0)
		assert.Less(t, probe.LowDiffPct, 0.0)
	}
}

func TestSmallDatasetScoresInSample(t *testing.T) {
	samples := linearSamples()[:6]
	_, report, err := Train(NewFeatureBuilder(), samples, DefaultTrainingConfig())
	require.NoError(t, err)
	assert.Equal(t, 6, report.TrainRows)
	assert.Equal(t, 6, report.HoldoutRows)
}

func TestTrainRejectsBadInput(t *testing.T) {
	_, _, err := Train(NewFeatureBuilder(), nil, DefaultTrainingConfig())
	assert.ErrorIs(t, err, model.ErrValidation)

	samples := linearSamples()
	samples[3].FuelRateGPH = -1
	_, _, err = Train(NewFeatureBuilder(), samples, DefaultTrainingConfig())
	assert.ErrorIs(t, err, model.ErrValidation)

	samples = linearSamples()
	samples[0].Point.SpeedMPH = math.NaN()
	_, _, err = Train(NewFeatureBuilder(), samples, DefaultTrainingConfig())
	assert.ErrorIs(t, err, model.ErrValidation)

	cfg := DefaultTrainingConfig()
	cfg.Ridge = 0
	_, _, err = Train(NewFeatureBuilder(), linearSamples(), cfg)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestNewLearnedModelRejectsInconsistentBundle(t *testing.T) {
	_, err := NewLearnedModel(nil)
	assert.ErrorIs(t, err, model.ErrModelNotReady)

	tests := map[string]func(b *model.ModelBundle){
		"short coefficients": func(b *model.ModelBundle) { b.Fuel.Coefficients = b.Fuel.Coefficients[1:] },
		"short scaler":       func(b *model.ModelBundle) { b.Scaler.Scale = b.Scaler.Scale[1:] },
		"nan coefficient":    func(b *model.ModelBundle) { b.Emission.Coefficients[0] = math.NaN() },
		"zero scale":         func(b *model.ModelBundle) { b.Scaler.Scale[0] = 0 },
		"inf intercept":      func(b *model.ModelBundle) { b.Fuel.Intercept = math.Inf(1) },
		"schema version":     func(b *model.ModelBundle) { b.SchemaVersion = "legacy" },
		"missing column":     func(b *model.ModelBundle) { b.Columns[0] = "rpm" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			bundle, _ := trainLinear(t)
			mutate(bundle)
			_, err := NewLearnedModel(bundle)
			assert.ErrorIs(t, err, model.ErrSchemaMismatch)
		})
	}
}

func TestLearnedModelOwnsItsParameters(t *testing.T) {
	bundle, _ := trainLinear(t)
	m, err := NewLearnedModel(bundle)
	require.NoError(t, err)

	before := predictWith(t, m, samplePoint())
	bundle.Fuel.Intercept += 100
	bundle.Fuel.Coefficients[0] = 0
	assert.Equal(t, before, predictWith(t, m, samplePoint()))
}

func TestFiniteGuardFallsBackToRules(t *testing.T) {
	rules := NewRuleBasedModel(DefaultRuleConfig())
	fell := 0
	guard := NewFiniteGuard(stubModel{fuel: math.NaN()}, rules, func() { fell++ })

	want := rulePredict(t, rules, samplePoint())
	got := predictWith(t, guard, samplePoint())
	assert.Equal(t, want, got)
	assert.Equal(t, 1, fell)
	assert.Equal(t, "stub", guard.Name())
}

func predictWith(t *testing.T, m model.ResponseModel, p model.OperatingPoint) model.PredictionResult {
	t.Helper()
	res, err := predictPoint(NewFeatureBuilder(), m, p)
	require.NoError(t, err)
	return res
}

// stubModel returns fixed rates, or err when set.
type stubModel struct {
	fuel float64
	err  error
}

func (s stubModel) Name() string { return "stub" }

func (s stubModel) Predict(model.FeatureVector) (model.PredictionResult, error) {
	if s.err != nil {
		return model.PredictionResult{}, s.err
	}
	return model.PredictionResult{FuelRateGPH: s.fuel, CO2RateLbsHour: s.fuel * 22.4}, nil
}
