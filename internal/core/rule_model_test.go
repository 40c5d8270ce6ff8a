package core

import (
	"testing"

	"carbonsense/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rulePredict(t *testing.T, m *RuleBasedModel, p model.OperatingPoint) model.PredictionResult {
	t.Helper()
	v, err := NewFeatureBuilder().Build(p)
	require.NoError(t, err)
	res, err := m.Predict(v)
	require.NoError(t, err)
	return res
}

func TestRuleModelFuelRisesBeyondOptimum(t *testing.T) {
	m := NewRuleBasedModel(DefaultRuleConfig())
	for _, soil := range model.SoilTypes {
		for _, terrain := range model.TerrainTypes {
			for _, load := range []float64{40, 78, 95} {
				p := samplePoint()
				p.SoilType, p.TerrainType, p.EngineLoadPct = soil, terrain, load

				prev := 0.0
				for speed := m.OptimalSpeed(soil, terrain, load); speed <= 15; speed += 0.25 {
					fuel := rulePredict(t, m, p.WithSpeed(speed)).FuelRateGPH
					assert.GreaterOrEqual(t, fuel, prev, "%s/%s load %.0f at %.2f mph", soil, terrain, load, speed)
					prev = fuel
				}
			}
		}
	}
}

func TestRuleModelOptimalSpeedOrdering(t *testing.T) {
	m := NewRuleBasedModel(DefaultRuleConfig())
	assert.Less(t, m.OptimalSpeed(model.SoilClay, model.TerrainRolling, 70), m.OptimalSpeed(model.SoilSandy, model.TerrainRolling, 70))
	assert.Less(t, m.OptimalSpeed(model.SoilLoam, model.TerrainHilly, 70), m.OptimalSpeed(model.SoilLoam, model.TerrainFlat, 70))
	assert.Less(t, m.OptimalSpeed(model.SoilLoam, model.TerrainRolling, 90), m.OptimalSpeed(model.SoilLoam, model.TerrainRolling, 70))
	assert.InDelta(t, 6.8, m.OptimalSpeed("", "", 70), 1e-9)
}

func TestRuleModelIsDeterministic(t *testing.T) {
	m := NewRuleBasedModel(DefaultRuleConfig())
	p := samplePoint()
	first := rulePredict(t, m, p)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, rulePredict(t, m, p))
	}
	assert.InDelta(t, first.FuelRateGPH*22.4, first.CO2RateLbsHour, 1e-9)
}

func TestRuleModelReadsCategoricalsFromVector(t *testing.T) {
	m := NewRuleBasedModel(DefaultRuleConfig())
	clay := samplePoint()
	clay.SoilType = model.SoilClay
	sandy := samplePoint()
	sandy.SoilType = model.SoilSandy

	assert.Greater(t, rulePredict(t, m, clay).FuelRateGPH, rulePredict(t, m, sandy).FuelRateGPH)
}

func TestRuleModelRejectsMissingSpeed(t *testing.T) {
	m := NewRuleBasedModel(DefaultRuleConfig())
	_, err := m.Predict(model.FeatureVector{Columns: []string{colLoad}, Values: []float64{70}})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = m.Predict(model.FeatureVector{Columns: []string{colSpeed}, Values: []float64{0}})
	assert.ErrorIs(t, err, model.ErrValidation)
}
