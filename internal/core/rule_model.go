package core

import (
	"carbonsense/internal/domain/model"
	"fmt"
	"math"
)

// RuleConfig holds the lookup tables and physical constants of the rule-based model.
type RuleConfig struct {
	OptimalSpeed        map[model.SoilType]float64    // mph, before terrain and load corrections
	DefaultOptimalSpeed float64                       // unknown or missing soil
	TerrainSpeedFactor  map[model.TerrainType]float64 // multiplies optimal speed
	HighLoadThreshold   float64
	HighLoadSpeedFactor float64
	LowLoadThreshold    float64
	LowLoadSpeedFactor  float64

	IdleFuelGPH      float64
	MaxFuelGPH       float64
	SoilResistance   map[model.SoilType]float64
	TerrainSlope     map[model.TerrainType]float64
	ReferenceWidthFt float64
	WidthSensitivity float64 // fractional fuel change per foot beyond the reference width
	CO2PerGallon     float64 // lbs CO2 per gallon of diesel
}

func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		OptimalSpeed: map[model.SoilType]float64{
			model.SoilClay:  6.2,
			model.SoilLoam:  6.8,
			model.SoilSilty: 6.8,
			model.SoilSandy: 7.8,
		},
		DefaultOptimalSpeed: 6.8,
		TerrainSpeedFactor: map[model.TerrainType]float64{
			model.TerrainFlat:    1.1,
			model.TerrainRolling: 1.0,
			model.TerrainHilly:   0.85,
		},
		HighLoadThreshold:   85,
		HighLoadSpeedFactor: 0.9,
		LowLoadThreshold:    60,
		LowLoadSpeedFactor:  1.05,

		IdleFuelGPH: 3.2,
		MaxFuelGPH:  25,
		SoilResistance: map[model.SoilType]float64{
			model.SoilClay:  1.25,
			model.SoilLoam:  1.0,
			model.SoilSilty: 1.05,
			model.SoilSandy: 0.9,
		},
		TerrainSlope: map[model.TerrainType]float64{
			model.TerrainFlat:    1.0,
			model.TerrainRolling: 1.1,
			model.TerrainHilly:   1.25,
		},
		ReferenceWidthFt: 20,
		WidthSensitivity: 0.01,
		CO2PerGallon:     22.4,
	}
}

// RuleBasedModel is the deterministic physical substitute for the learned model.
// Fuel is minimal at the soil and terrain dependent optimal speed and rises on either side.
type RuleBasedModel struct {
	cfg RuleConfig
}

func NewRuleBasedModel(cfg RuleConfig) *RuleBasedModel {
	return &RuleBasedModel{cfg: cfg}
}

func (m *RuleBasedModel) Name() string { return "rule_based" }

func (m *RuleBasedModel) Predict(v model.FeatureVector) (model.PredictionResult, error) {
	speed, ok := v.Get(colSpeed)
	if !ok {
		return model.PredictionResult{}, fmt.Errorf("%w: feature vector has no %s", model.ErrValidation, colSpeed)
	}
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return model.PredictionResult{}, fmt.Errorf("%w: speed must be positive", model.ErrValidation)
	}
	load, _ := v.Get(colLoad)
	width, _ := v.Get(colWidth)
	weather, _ := v.Get(colWeather)
	soil, terrain := categoricals(v)

	r := speed / m.OptimalSpeed(soil, terrain, load)
	fuel := m.baseRate(load, width, weather, soil, terrain) * (r*r*r + 3/r) / 4

	return model.PredictionResult{
		FuelRateGPH:    fuel,
		CO2RateLbsHour: fuel * m.cfg.CO2PerGallon,
	}, nil
}

// OptimalSpeed is the speed at which the rule-based fuel curve bottoms out.
func (m *RuleBasedModel) OptimalSpeed(soil model.SoilType, terrain model.TerrainType, load float64) float64 {
	speed, ok := m.cfg.OptimalSpeed[soil]
	if !ok {
		speed = m.cfg.DefaultOptimalSpeed
	}
	if f, ok := m.cfg.TerrainSpeedFactor[terrain]; ok {
		speed *= f
	}
	switch {
	case load > m.cfg.HighLoadThreshold:
		speed *= m.cfg.HighLoadSpeedFactor
	case load < m.cfg.LowLoadThreshold:
		speed *= m.cfg.LowLoadSpeedFactor
	}
	return speed
}

func (m *RuleBasedModel) baseRate(load, width, weather float64, soil model.SoilType, terrain model.TerrainType) float64 {
	load = math.Max(0, math.Min(load, 100))
	rate := m.cfg.IdleFuelGPH + (m.cfg.MaxFuelGPH-m.cfg.IdleFuelGPH)*load/100

	if f, ok := m.cfg.SoilResistance[soil]; ok {
		rate *= f
	}
	if f, ok := m.cfg.TerrainSlope[terrain]; ok {
		rate *= f
	}
	if weather > 0 {
		rate *= weather
	}
	if width > 0 {
		rate *= math.Max(0.5, 1+(width-m.cfg.ReferenceWidthFt)*m.cfg.WidthSensitivity)
	}
	return rate
}

// categoricals recovers soil and terrain from their indicator columns.
func categoricals(v model.FeatureVector) (model.SoilType, model.TerrainType) {
	var soil model.SoilType
	var terrain model.TerrainType
	for _, s := range model.SoilTypes {
		if x, ok := v.Get(prefixSoil + string(s)); ok && x == 1 {
			soil = s
			break
		}
	}
	for _, t := range model.TerrainTypes {
		if x, ok := v.Get(prefixTerrain + string(t)); ok && x == 1 {
			terrain = t
			break
		}
	}
	return soil, terrain
}
