package core

import (
	"testing"

	"carbonsense/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// squareField is a 0.01 degree square with its south-west corner at lat, lon.
func squareField(lat, lon float64) []model.LatLon {
	return []model.LatLon{
		{Lat: lat, Lon: lon},
		{Lat: lat, Lon: lon + 0.01},
		{Lat: lat + 0.01, Lon: lon + 0.01},
		{Lat: lat + 0.01, Lon: lon},
	}
}

func TestPlanFromParallel(t *testing.T) {
	plan, err := NewRoutePlanner().Plan(squareField(40, -90), 24, "")
	require.NoError(t, err)

	assert.Equal(t, PatternOptimizedParallel, plan.RecommendedPattern)
	assert.Equal(t, 3.2, plan.EfficiencyImprovement)
	assert.Equal(t, 8.2, plan.FuelSavingsPercent)
	assert.Equal(t, 5.0, plan.OverlapReductionPercent)
	assert.Equal(t, 2.0, plan.EstimatedTimeSavingsMin)
	assert.InDelta(t, 0.69, plan.FieldLengthMiles, 0.01)
	assert.InDelta(t, 0.53, plan.FieldWidthMiles, 0.01)
	assert.GreaterOrEqual(t, plan.Passes, 100)
	assert.LessOrEqual(t, plan.Passes, 130)
}

func TestPlanPatterns(t *testing.T) {
	tests := []struct {
		pattern     string
		improvement float64
		savings     float64
		minutes     float64
	}{
		{"parallel", 3.2, 8.2, 2},
		{"contour", 11.4, 16.4, 7},
		{"spiral", 6.5, 11.5, 4},
		{PatternOptimizedParallel, 0, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			plan, err := NewRoutePlanner().Plan(squareField(40, -90), 30, tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.improvement, plan.EfficiencyImprovement)
			assert.Equal(t, tt.savings, plan.FuelSavingsPercent)
			assert.Equal(t, tt.minutes, plan.EstimatedTimeSavingsMin)
		})
	}
}

func TestPlanRejectsBadInput(t *testing.T) {
	planner := NewRoutePlanner()

	_, err := planner.Plan(squareField(40, -90)[:2], 24, "parallel")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = planner.Plan(squareField(40, -90), 0, "parallel")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = planner.Plan(squareField(40, -90), 24, "zigzag")
	assert.ErrorIs(t, err, model.ErrValidation)
}
