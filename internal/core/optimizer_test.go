package core

import (
	"errors"
	"math"
	"testing"

	"carbonsense/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOptimizer(cfg OptimizerConfig) *Optimizer {
	return NewOptimizer(cfg, NewFeatureBuilder(), NewSavingsCalculator(DefaultSavingsConfig()))
}

func TestOptimizeTypicalTillage(t *testing.T) {
	o := newTestOptimizer(DefaultOptimizerConfig())
	rules := NewRuleBasedModel(DefaultRuleConfig())

	res, err := o.Optimize(rules, samplePoint(), nil)
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.GreaterOrEqual(t, res.OptimalSpeed, 5.25)
	assert.LessOrEqual(t, res.OptimalSpeed, 9.75)
	assert.Equal(t, 7.5, res.BaselineSpeed)
	if math.Abs(res.OptimalSpeed-7.5) > 0.2 {
		assert.Greater(t, res.FuelSavingsPercent, 0.0)
	}
	assert.GreaterOrEqual(t, res.FuelSavingsPercent, 0.0)
}

func TestOptimizeHeavyClayOnHills(t *testing.T) {
	o := newTestOptimizer(DefaultOptimizerConfig())
	rules := NewRuleBasedModel(DefaultRuleConfig())

	p := samplePoint()
	p.SpeedMPH, p.EngineLoadPct = 12, 95
	p.SoilType, p.TerrainType = model.SoilClay, model.TerrainHilly

	res, err := o.Optimize(rules, p, nil)
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Less(t, res.OptimalSpeed, 12.0)
	assert.GreaterOrEqual(t, res.OptimalSpeed, 12*0.7-1e-9)
	assert.InDelta(t, 8.4, res.OptimalSpeed, 0.1+1e-9)
	assert.GreaterOrEqual(t, res.FuelSavingsPercent, 12.5)
	assert.LessOrEqual(t, res.FuelSavingsPercent, 25.0)
	assert.Less(t, res.OptimalFuelRate, res.BaselineFuelRate)
	assert.Greater(t, res.CostSavingsPerHour, 0.0)
}

func TestOptimizeStaysInsideEnvelope(t *testing.T) {
	cfg := DefaultOptimizerConfig()
	o := newTestOptimizer(cfg)
	rules := NewRuleBasedModel(DefaultRuleConfig())

	for speed := 3.0; speed <= 15; speed++ {
		for _, load := range []float64{40, 78, 95} {
			for _, soil := range model.SoilTypes {
				p := samplePoint()
				p.SpeedMPH, p.EngineLoadPct, p.SoilType = speed, load, soil

				res, err := o.Optimize(rules, p, nil)
				require.NoError(t, err)

				assert.GreaterOrEqual(t, res.OptimalSpeed, cfg.Bounds.SpeedMin)
				assert.LessOrEqual(t, res.OptimalSpeed, cfg.Bounds.SpeedMax)
				assert.GreaterOrEqual(t, res.OptimalSpeed, speed*(1-cfg.MaxRelativeChange)-feasibilityTolerance)
				assert.LessOrEqual(t, res.OptimalSpeed, speed*(1+cfg.MaxRelativeChange)+feasibilityTolerance)
				assert.GreaterOrEqual(t, res.FuelSavingsPercent, 0.0)
				assert.LessOrEqual(t, res.FuelSavingsPercent, 25.0)
				assert.GreaterOrEqual(t, res.CostSavingsPerHour, 0.0)
			}
		}
	}
}

func TestOptimizeFailingModelReturnsBaseline(t *testing.T) {
	o := newTestOptimizer(DefaultOptimizerConfig())
	models := map[string]model.ResponseModel{
		"error": stubModel{err: errors.New("backend down")},
		"nan":   stubModel{fuel: math.NaN()},
	}
	for name, m := range models {
		t.Run(name, func(t *testing.T) {
			res, err := o.Optimize(m, samplePoint(), nil)
			require.NoError(t, err)
			assert.False(t, res.Converged)
			assert.Equal(t, 7.5, res.OptimalSpeed)
			assert.Zero(t, res.FuelSavingsPercent)
			assert.Zero(t, res.CostSavingsPerHour)
			assert.False(t, res.CorrectionApplied)
		})
	}
}

// baselineBlindModel fails only at the baseline speed and prefers slower speeds elsewhere.
type baselineBlindModel struct {
	baseline float64
}

func (baselineBlindModel) Name() string { return "baseline_blind" }

func (m baselineBlindModel) Predict(v model.FeatureVector) (model.PredictionResult, error) {
	speed, _ := v.Get(colSpeed)
	if math.Abs(speed-m.baseline) < 1e-9 {
		return model.PredictionResult{}, errors.New("sensor gap")
	}
	return model.PredictionResult{FuelRateGPH: speed, CO2RateLbsHour: speed * 22.4}, nil
}

func TestOptimizeFailedBaselineReturnsBaseline(t *testing.T) {
	o := newTestOptimizer(DefaultOptimizerConfig())
	p := samplePoint()
	p.SpeedMPH = 10

	res, err := o.Optimize(baselineBlindModel{baseline: 10}, p, nil)
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 10.0, res.OptimalSpeed)
	assert.Zero(t, res.FuelSavingsPercent)
	assert.Zero(t, res.CO2ReductionPercent)
	assert.Zero(t, res.CostSavingsPerHour)
	assert.False(t, res.CorrectionApplied)
}

func TestOptimizeInfeasibleTargetReturnsBaseline(t *testing.T) {
	o := newTestOptimizer(DefaultOptimizerConfig())
	target := 100.0

	res, err := o.Optimize(NewRuleBasedModel(DefaultRuleConfig()), samplePoint(), &target)
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 7.5, res.OptimalSpeed)
	assert.Zero(t, res.FuelSavingsPercent)
}

func TestOptimizeMeetsProductivityTarget(t *testing.T) {
	o := newTestOptimizer(DefaultOptimizerConfig())
	p := samplePoint()
	p.SpeedMPH = 10
	target := 30.0

	res, err := o.Optimize(NewRuleBasedModel(DefaultRuleConfig()), p, &target)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.GreaterOrEqual(t, o.AcresPerHour(res.OptimalSpeed, p.ImplementWidthFt), target)
	assert.LessOrEqual(t, res.OptimalSpeed, 10.5+1e-9)
}

func TestOptimizeFlatObjectiveKeepsBaseline(t *testing.T) {
	cfg := DefaultOptimizerConfig()
	cfg.SpeedPenalty = 0
	o := newTestOptimizer(cfg)
	p := samplePoint()
	p.SpeedMPH = 10

	res, err := o.Optimize(stubModel{fuel: 12}, p, nil)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.InDelta(t, 10, res.OptimalSpeed, 1e-9)
	assert.Zero(t, res.FuelSavingsPercent)
	assert.False(t, res.CorrectionApplied)
}

func TestOptimizeRejectsInvalidInput(t *testing.T) {
	o := newTestOptimizer(DefaultOptimizerConfig())
	rules := NewRuleBasedModel(DefaultRuleConfig())

	p := samplePoint()
	p.SpeedMPH = 20
	_, err := o.Optimize(rules, p, nil)
	assert.ErrorIs(t, err, model.ErrValidation)

	p = samplePoint()
	p.EngineLoadPct = 120
	_, err = o.Optimize(rules, p, nil)
	assert.ErrorIs(t, err, model.ErrValidation)

	target := -1.0
	_, err = o.Optimize(rules, samplePoint(), &target)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestOptimizeIsRepeatable(t *testing.T) {
	o := newTestOptimizer(DefaultOptimizerConfig())
	rules := NewRuleBasedModel(DefaultRuleConfig())
	p := samplePoint()
	p.SpeedMPH = 11

	first, err := o.Optimize(rules, p, nil)
	require.NoError(t, err)
	second, err := o.Optimize(rules, p, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRoundWithin(t *testing.T) {
	assert.InDelta(t, 10.4, roundWithin(10.3125, 10.3125, 13, 0.1), 1e-9)
	assert.InDelta(t, 8.4, roundWithin(8.4000001, 8.399999999, 15, 0.1), 1e-9)
	assert.InDelta(t, 7.3, roundWithin(7.34, 5, 9, 0.1), 1e-9)
	assert.InDelta(t, 5.05, roundWithin(5.05, 5.01, 5.09, 0.1), 1e-9)
}

func TestAcresPerHour(t *testing.T) {
	o := newTestOptimizer(DefaultOptimizerConfig())
	assert.InDelta(t, 1, o.AcresPerHour(8.25, 1), 1e-9)
	assert.InDelta(t, 29.0909, o.AcresPerHour(10, 24), 1e-4)
}
