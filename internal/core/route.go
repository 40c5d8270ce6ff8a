package core

import (
	"carbonsense/internal/domain/model"
	"fmt"
	"math"
)

const PatternOptimizedParallel = "optimized_parallel"

// fieldEfficiency is the share of time spent working rather than turning or overlapping.
var fieldEfficiency = map[string]float64{
	"parallel":               0.95,
	"contour":                0.88,
	"spiral":                 0.92,
	PatternOptimizedParallel: 0.98,
}

// overlapReductionPercent is the assumed pass overlap removed by the optimized pattern.
const overlapReductionPercent = 5.0

// RoutePlanner compares the current field pattern to the optimized parallel pattern.
type RoutePlanner struct{}

func NewRoutePlanner() *RoutePlanner {
	return &RoutePlanner{}
}

func (r *RoutePlanner) Plan(boundary []model.LatLon, implementWidthFt float64, currentPattern string) (model.RoutePlan, error) {
	if len(boundary) < 3 {
		return model.RoutePlan{}, fmt.Errorf("%w: field boundary needs at least 3 points", model.ErrValidation)
	}
	if implementWidthFt <= 0 || math.IsNaN(implementWidthFt) || math.IsInf(implementWidthFt, 0) {
		return model.RoutePlan{}, fmt.Errorf("%w: implement_width_ft must be positive", model.ErrValidation)
	}
	if currentPattern == "" {
		currentPattern = "parallel"
	}
	current, ok := fieldEfficiency[currentPattern]
	if !ok {
		return model.RoutePlan{}, fmt.Errorf("%w: unknown pattern %q", model.ErrValidation, currentPattern)
	}
	optimal := fieldEfficiency[PatternOptimizedParallel]

	length, width := FieldDimensions(model.RingOf(boundary).Bound())
	improvement := (optimal - current) / current

	return model.RoutePlan{
		RecommendedPattern:      PatternOptimizedParallel,
		FuelSavingsPercent:      round1(improvement*100 + overlapReductionPercent),
		OverlapReductionPercent: overlapReductionPercent,
		EfficiencyImprovement:   round1(improvement * 100),
		EstimatedTimeSavingsMin: math.Round(improvement * 60),
		FieldLengthMiles:        math.Round(length*100) / 100,
		FieldWidthMiles:         math.Round(width*100) / 100,
		Passes:                  int(math.Ceil(width * feetPerMile / implementWidthFt)),
		PatternDescription:      "Parallel passes with minimal overlap and reduced turn time",
	}, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
