package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"carbonsense/internal/core"
	"carbonsense/internal/domain/model"
)

// Service is the optimization surface the HTTP layer exposes.
type Service interface {
	PredictConsumption(ctx context.Context, p model.OperatingPoint) (model.PredictionResult, error)
	OptimizeSpeedForOperation(ctx context.Context, p model.OperatingPoint, targetAcresPerHour *float64) (model.OptimizationResult, error)
	RealTimeRecommendations(ctx context.Context, p model.OperatingPoint) ([]model.Recommendation, error)
	OptimizeRoute(boundary []model.LatLon, implementWidthFt float64, currentPattern string) (model.RoutePlan, error)
	RecordSample(ctx context.Context, sample model.TrainingSample) error
	Retrain(ctx context.Context) (core.TrainingReport, error)
	ModelInfo() model.ModelInfo
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// OperationRequest is the wire form of an operating point. Pointers tell a missing
// required number apart from zero.
type OperationRequest struct {
	SpeedMPH           *float64 `json:"speed_mph"`
	EngineLoadPct      *float64 `json:"engine_load_pct"`
	ImplementWidthFt   *float64 `json:"implement_width_ft"`
	FieldAcres         *float64 `json:"field_acres"`
	WeatherFactor      *float64 `json:"weather_factor"`
	OperationType      string   `json:"operation_type"`
	SoilType           string   `json:"soil_type"`
	TerrainType        string   `json:"terrain_type"`
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	TargetAcresPerHour *float64 `json:"target_acres_per_hour"`
}

func (r OperationRequest) toPoint() (model.OperatingPoint, error) {
	switch {
	case r.SpeedMPH == nil:
		return model.OperatingPoint{}, fmt.Errorf("%w: speed_mph is required", model.ErrValidation)
	case r.EngineLoadPct == nil:
		return model.OperatingPoint{}, fmt.Errorf("%w: engine_load_pct is required", model.ErrValidation)
	case r.ImplementWidthFt == nil:
		return model.OperatingPoint{}, fmt.Errorf("%w: implement_width_ft is required", model.ErrValidation)
	case (r.Latitude == nil) != (r.Longitude == nil):
		return model.OperatingPoint{}, fmt.Errorf("%w: latitude and longitude must be given together", model.ErrValidation)
	case r.FieldAcres == nil && r.Latitude == nil:
		return model.OperatingPoint{}, fmt.Errorf("%w: field_acres is required without a location", model.ErrValidation)
	}

	p := model.OperatingPoint{
		SpeedMPH:         *r.SpeedMPH,
		EngineLoadPct:    *r.EngineLoadPct,
		ImplementWidthFt: *r.ImplementWidthFt,
		WeatherFactor:    1.0,
		OperationType:    r.OperationType,
		SoilType:         model.SoilType(r.SoilType),
		TerrainType:      model.TerrainType(r.TerrainType),
	}
	if r.FieldAcres != nil {
		p.FieldAcres = *r.FieldAcres
	}
	if r.WeatherFactor != nil {
		p.WeatherFactor = *r.WeatherFactor
	}
	if r.Latitude != nil {
		p.Location = &model.LatLon{Lat: *r.Latitude, Lon: *r.Longitude}
	}
	return p, nil
}

type TelemetryRequest struct {
	OperationRequest
	FuelRateGPH    *float64 `json:"fuel_rate_gph"`
	CO2RateLbsHour *float64 `json:"co2_rate_lbs_per_hour"`
}

type RouteRequest struct {
	FieldBoundary    []model.LatLon `json:"field_boundary"`
	ImplementWidthFt float64        `json:"implement_width_ft"`
	CurrentPattern   string         `json:"current_pattern"`
}

type RecommendationsResponse struct {
	Recommendations []model.Recommendation `json:"recommendations"`
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/predict", h.Predict)
	mux.HandleFunc("/api/optimize", h.Optimize)
	mux.HandleFunc("/api/recommendations", h.Recommendations)
	mux.HandleFunc("/api/route", h.Route)
	mux.HandleFunc("/api/telemetry", h.Telemetry)
	mux.HandleFunc("/api/train", h.Train)
	mux.HandleFunc("/api/model", h.Model)
	return mux
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	p, _, ok := decodeOperation(w, r)
	if !ok {
		return
	}
	prediction, err := h.service.PredictConsumption(r.Context(), p)
	if err != nil {
		writeError(w, "Error predicting consumption", err)
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}

func (h *Handler) Optimize(w http.ResponseWriter, r *http.Request) {
	p, target, ok := decodeOperation(w, r)
	if !ok {
		return
	}
	result, err := h.service.OptimizeSpeedForOperation(r.Context(), p, target)
	if err != nil {
		writeError(w, "Error optimizing speed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	p, _, ok := decodeOperation(w, r)
	if !ok {
		return
	}
	recs, err := h.service.RealTimeRecommendations(r.Context(), p)
	if err != nil {
		writeError(w, "Error building recommendations", err)
		return
	}
	writeJSON(w, http.StatusOK, RecommendationsResponse{Recommendations: recs})
}

func (h *Handler) Route(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.FieldBoundary) == 0 {
		http.Error(w, "Field boundary is required", http.StatusBadRequest)
		return
	}
	plan, err := h.service.OptimizeRoute(req.FieldBoundary, req.ImplementWidthFt, req.CurrentPattern)
	if err != nil {
		writeError(w, "Error optimizing route", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *Handler) Telemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req TelemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.FuelRateGPH == nil {
		http.Error(w, "Fuel rate is required", http.StatusBadRequest)
		return
	}
	if req.CO2RateLbsHour == nil {
		http.Error(w, "CO2 rate is required", http.StatusBadRequest)
		return
	}
	p, err := req.toPoint()
	if err != nil {
		writeError(w, "Invalid operating point", err)
		return
	}
	sample := model.TrainingSample{Point: p, FuelRateGPH: *req.FuelRateGPH, CO2RateLbsHour: *req.CO2RateLbsHour}
	if err := h.service.RecordSample(r.Context(), sample); err != nil {
		writeError(w, "Error recording telemetry", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	report, err := h.service.Retrain(r.Context())
	if err != nil {
		writeError(w, "Error training model", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) Model(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.service.ModelInfo())
}

func decodeOperation(w http.ResponseWriter, r *http.Request) (model.OperatingPoint, *float64, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return model.OperatingPoint{}, nil, false
	}
	var req OperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return model.OperatingPoint{}, nil, false
	}
	p, err := req.toPoint()
	if err != nil {
		writeError(w, "Invalid operating point", err)
		return model.OperatingPoint{}, nil, false
	}
	return p, req.TargetAcresPerHour, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrModelNotReady), errors.Is(err, model.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, msg string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error(msg, "error", err)
	}
	http.Error(w, fmt.Sprintf("%s: %v", msg, err), code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
