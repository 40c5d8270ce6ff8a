package core

import (
	"carbonsense/internal/domain/model"
	"fmt"
	"sort"
)

// RecommendationRules are the thresholds for the real-time advice list.
type RecommendationRules struct {
	MinSpeedSavingsPercent float64
	HighLoadPct            float64
	TargetLoadPct          float64
	AdverseWeatherFactor   float64
}

func DefaultRecommendationRules() RecommendationRules {
	return RecommendationRules{
		MinSpeedSavingsPercent: 5,
		HighLoadPct:            85,
		TargetLoadPct:          75,
		AdverseWeatherFactor:   1.1,
	}
}

// Recommend derives the advice for the current point from its optimization outcome.
// The list is ordered by priority, keeping rule order within one priority.
func (r RecommendationRules) Recommend(p model.OperatingPoint, opt model.OptimizationResult) []model.Recommendation {
	recs := make([]model.Recommendation, 0, 4)

	if opt.FuelSavingsPercent > r.MinSpeedSavingsPercent {
		speed := opt.OptimalSpeed
		recs = append(recs, model.Recommendation{
			Type:                "speed_optimization",
			Priority:            model.PriorityHigh,
			Title:               fmt.Sprintf("Adjust speed to %.1f mph", speed),
			Description:         fmt.Sprintf("Reduce fuel consumption by %.1f%%", opt.FuelSavingsPercent),
			Action:              "speed_adjustment",
			TargetValue:         &speed,
			TargetLabel:         "mph",
			SavingsPerHour:      opt.CostSavingsPerHour,
			CO2ReductionPercent: opt.CO2ReductionPercent,
		})
	}

	if p.EngineLoadPct > r.HighLoadPct {
		target := r.TargetLoadPct
		recs = append(recs, model.Recommendation{
			Type:        "load_optimization",
			Priority:    model.PriorityMedium,
			Title:       "Reduce engine load",
			Description: "Current load is high, consider reducing working depth or speed",
			Action:      "load_reduction",
			TargetValue: &target,
			TargetLabel: "engine_load_pct",
		})
	}

	if p.TerrainType == model.TerrainHilly {
		recs = append(recs, model.Recommendation{
			Type:        "path_optimization",
			Priority:    model.PriorityMedium,
			Title:       "Follow field contours",
			Description: "Hilly terrain, contour passes reduce climbing load",
			Action:      "route_adjustment",
			TargetLabel: "contour",
		})
	}

	if p.WeatherFactor > r.AdverseWeatherFactor {
		recs = append(recs, model.Recommendation{
			Type:        "weather_optimization",
			Priority:    model.PriorityLow,
			Title:       "Weather impact detected",
			Description: "Consider adjusting operation timing due to weather conditions",
			Action:      "timing_adjustment",
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.Rank() < recs[j].Priority.Rank()
	})
	return recs
}
