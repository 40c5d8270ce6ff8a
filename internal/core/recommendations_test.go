package core

import (
	"testing"

	"carbonsense/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommendOrdersByPriority(t *testing.T) {
	p := samplePoint()
	p.EngineLoadPct = 92
	p.TerrainType = model.TerrainHilly
	p.WeatherFactor = 1.3
	opt := model.OptimizationResult{OptimalSpeed: 6.4, FuelSavingsPercent: 12, CO2ReductionPercent: 12, CostSavingsPerHour: 4.1}

	recs := DefaultRecommendationRules().Recommend(p, opt)
	require.Len(t, recs, 4)

	var types []string
	for _, r := range recs {
		types = append(types, r.Type)
	}
	assert.Equal(t, []string{"speed_optimization", "load_optimization", "path_optimization", "weather_optimization"}, types)
	assert.Equal(t, model.PriorityHigh, recs[0].Priority)
	require.NotNil(t, recs[0].TargetValue)
	assert.Equal(t, 6.4, *recs[0].TargetValue)
	assert.Equal(t, "Adjust speed to 6.4 mph", recs[0].Title)
	assert.Equal(t, 4.1, recs[0].SavingsPerHour)
	require.NotNil(t, recs[1].TargetValue)
	assert.Equal(t, 75.0, *recs[1].TargetValue)
	assert.Equal(t, model.PriorityLow, recs[3].Priority)
}

func TestRecommendQuietWhenNothingToImprove(t *testing.T) {
	opt := model.OptimizationResult{OptimalSpeed: 7.5, FuelSavingsPercent: 5}
	assert.Empty(t, DefaultRecommendationRules().Recommend(samplePoint(), opt))
}

func TestRecommendThresholdsAreStrict(t *testing.T) {
	p := samplePoint()
	p.EngineLoadPct = 85
	p.WeatherFactor = 1.1
	assert.Empty(t, DefaultRecommendationRules().Recommend(p, model.OptimizationResult{}))
}
