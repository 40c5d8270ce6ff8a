package model

import "time"

// ResponseModel maps a feature vector to fuel and emission rates.
type ResponseModel interface {
	// Predict returns the fuel and CO2 rates for one feature vector
	Predict(vector FeatureVector) (PredictionResult, error)

	// Name identifies the variant ("learned" or "rule_based")
	Name() string
}

// ModelInfo describes the response model currently serving predictions
type ModelInfo struct {
	Mode          string    `json:"mode"`
	Ready         bool      `json:"ready"`
	BundleID      string    `json:"bundle_id,omitempty"`
	SchemaVersion string    `json:"schema_version,omitempty"`
	TrainedAt     time.Time `json:"trained_at,omitempty"`
	Columns       int       `json:"columns,omitempty"`
	Metrics       struct {
		FuelR2     float64 `json:"fuel_r2"`
		EmissionR2 float64 `json:"emission_r2"`
	} `json:"metrics"`
}

// ScalerParams are the per-column centering and scaling fitted at training time.
type ScalerParams struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// RegressorParams are the coefficients of one linear regressor over scaled features.
type RegressorParams struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	R2           float64   `json:"r2"`
}

// ModelBundle is the persisted unit: both regressors, the scaler and the frozen columns.
type ModelBundle struct {
	ID            string          `json:"id"`
	SchemaVersion string          `json:"schema_version"`
	TrainedAt     time.Time       `json:"trained_at"`
	Samples       int             `json:"samples"`
	Columns       []string        `json:"columns"`
	Scaler        ScalerParams    `json:"scaler"`
	Fuel          RegressorParams `json:"fuel"`
	Emission      RegressorParams `json:"emission"`
}
