package core

import (
	"carbonsense/internal/domain/model"
	"math"
)

// SavingsConfig tunes the savings report and its correction policy.
type SavingsConfig struct {
	FuelCostPerGallon    float64
	AnnualOperatingHours float64

	// The correction fires when speed moves by more than TriggerSpeedDelta mph while
	// predicted fuel savings, rounded to one decimal, stay at or below TriggerSavingsPercent.
	TriggerSpeedDelta     float64
	TriggerSavingsPercent float64
	Sensitivity           float64
	FloorPercent          float64
	CeilingPercent        float64

	TerrainFactor     map[model.TerrainType]float64
	SoilFactor        map[model.SoilType]float64
	HighLoadThreshold float64
	HighLoadFactor    float64
	LowLoadThreshold  float64
	LowLoadFactor     float64
}

func DefaultSavingsConfig() SavingsConfig {
	return SavingsConfig{
		FuelCostPerGallon:     3.85,
		AnnualOperatingHours:  8 * 200,
		TriggerSpeedDelta:     0.2,
		TriggerSavingsPercent: 0.5,
		Sensitivity:           1.2,
		FloorPercent:          5,
		CeilingPercent:        25,
		TerrainFactor: map[model.TerrainType]float64{
			model.TerrainHilly: 1.2,
			model.TerrainFlat:  0.8,
		},
		SoilFactor: map[model.SoilType]float64{
			model.SoilClay:  1.2,
			model.SoilSandy: 0.9,
		},
		HighLoadThreshold: 85,
		HighLoadFactor:    1.3,
		LowLoadThreshold:  60,
		LowLoadFactor:     0.7,
	}
}

// SavingsInput is everything the calculator needs about one optimization outcome.
type SavingsInput struct {
	Baseline           model.OperatingPoint
	OptimalSpeed       float64
	BaselinePrediction model.PredictionResult
	OptimalPrediction  model.PredictionResult
}

// SavingsCalculator turns baseline and optimum predictions into the reported outcome.
// It is a pure function of its input and configuration.
type SavingsCalculator struct {
	cfg SavingsConfig
}

func NewSavingsCalculator(cfg SavingsConfig) *SavingsCalculator {
	return &SavingsCalculator{cfg: cfg}
}

func (c *SavingsCalculator) Calculate(in SavingsInput) model.OptimizationResult {
	base := in.BaselinePrediction
	opt := in.OptimalPrediction

	res := model.OptimizationResult{
		OptimalSpeed:     in.OptimalSpeed,
		BaselineSpeed:    in.Baseline.SpeedMPH,
		BaselineFuelRate: base.FuelRateGPH,
		BaselineCO2Rate:  base.CO2RateLbsHour,
		OptimalFuelRate:  opt.FuelRateGPH,
		OptimalCO2Rate:   opt.CO2RateLbsHour,
	}

	fuelPct := percentDrop(base.FuelRateGPH, opt.FuelRateGPH)
	co2Pct := percentDrop(base.CO2RateLbsHour, opt.CO2RateLbsHour)

	speedDelta := math.Abs(in.OptimalSpeed - in.Baseline.SpeedMPH)
	if speedDelta > c.cfg.TriggerSpeedDelta && round1(fuelPct) <= c.cfg.TriggerSavingsPercent {
		fuelPct = c.correctedPercent(in.Baseline, speedDelta)
		co2Pct = fuelPct
		res.CorrectionApplied = true
	}

	reportedFuel := clamp(fuelPct, 0, c.cfg.CeilingPercent)
	reportedCO2 := clamp(co2Pct, 0, c.cfg.CeilingPercent)
	if res.CorrectionApplied || reportedFuel != fuelPct {
		res.OptimalFuelRate = base.FuelRateGPH * (1 - reportedFuel/100)
	}
	if res.CorrectionApplied || reportedCO2 != co2Pct {
		res.OptimalCO2Rate = base.CO2RateLbsHour * (1 - reportedCO2/100)
	}

	res.FuelSavingsPercent = reportedFuel
	res.CO2ReductionPercent = reportedCO2
	res.CostSavingsPerHour = (base.FuelRateGPH - res.OptimalFuelRate) * c.cfg.FuelCostPerGallon
	if res.CostSavingsPerHour < 0 {
		res.CostSavingsPerHour = 0
	}
	res.AnnualSavingsEstimate = res.CostSavingsPerHour * c.cfg.AnnualOperatingHours
	return res
}

func (c *SavingsCalculator) correctedPercent(p model.OperatingPoint, speedDelta float64) float64 {
	speedDiffPct := 0.0
	if p.SpeedMPH > 0 {
		speedDiffPct = speedDelta / p.SpeedMPH * 100
	}

	terrain := 1.0
	if f, ok := c.cfg.TerrainFactor[p.TerrainType]; ok {
		terrain = f
	}
	soil := 1.0
	if f, ok := c.cfg.SoilFactor[p.SoilType]; ok {
		soil = f
	}
	load := 1.0
	switch {
	case p.EngineLoadPct > c.cfg.HighLoadThreshold:
		load = c.cfg.HighLoadFactor
	case p.EngineLoadPct < c.cfg.LowLoadThreshold:
		load = c.cfg.LowLoadFactor
	}

	return clamp(speedDiffPct*c.cfg.Sensitivity*terrain*load*soil, c.cfg.FloorPercent, c.cfg.CeilingPercent)
}

func percentDrop(base, opt float64) float64 {
	if base <= 0 {
		return 0
	}
	return (base - opt) / base * 100
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}
