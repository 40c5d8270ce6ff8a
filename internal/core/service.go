package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"carbonsense/internal/domain/model"
	"carbonsense/internal/domain/repository"
)

type Mode string

const (
	// ModeAuto serves the learned model when one can be loaded or trained, else rules.
	ModeAuto    Mode = "auto"
	ModeLearned Mode = "learned"
	ModeRule    Mode = "rule"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAuto, ModeLearned, ModeRule:
		return m, nil
	case "":
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("unknown model mode %q", s)
	}
}

// Metrics receives service level observations.
type Metrics interface {
	Optimization(modelName string, converged bool, savingsPercent float64)
	PredictionFallback()
	ModelPublished(modelName string)
	Trained(fuelR2, emissionR2 float64)
}

type noopMetrics struct{}

func (noopMetrics) Optimization(string, bool, float64) {}
func (noopMetrics) PredictionFallback() {}
func (noopMetrics) ModelPublished(string) {}
func (noopMetrics) Trained(float64, float64) {}

type ServiceConfig struct {
	Mode            Mode
	TrainOnStart    bool
	SaveSamples     bool
	Optimizer       OptimizerConfig
	Savings         SavingsConfig
	Rules           RuleConfig
	Training        TrainingConfig
	Recommendations RecommendationRules
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Mode:            ModeAuto,
		Optimizer:       DefaultOptimizerConfig(),
		Savings:         DefaultSavingsConfig(),
		Rules:           DefaultRuleConfig(),
		Training:        DefaultTrainingConfig(),
		Recommendations: DefaultRecommendationRules(),
	}
}

// Dependencies are the optional collaborators of the service; nil disables the feature.
type Dependencies struct {
	Store    repository.ModelStore
	Dataset  repository.SampleSource
	Recorder repository.SampleRecorder
	Locator  repository.FieldLocator
	Metrics  Metrics
}

type OptimizationService struct {
	cfg       ServiceConfig
	builder   *FeatureBuilder
	optimizer *Optimizer
	rules     *RuleBasedModel
	routes    *RoutePlanner
	registry  *ModelRegistry
	deps      Dependencies
	logger    *slog.Logger

	trainMu sync.Mutex
}

func NewOptimizationService(cfg ServiceConfig, deps Dependencies, logger *slog.Logger) *OptimizationService {
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	builder := NewFeatureBuilder()
	return &OptimizationService{
		cfg:       cfg,
		builder:   builder,
		optimizer: NewOptimizer(cfg.Optimizer, builder, NewSavingsCalculator(cfg.Savings)),
		rules:     NewRuleBasedModel(cfg.Rules),
		routes:    NewRoutePlanner(),
		registry:  NewModelRegistry(),
		deps:      deps,
		logger:    logger,
	}
}

// Init selects the serving model once. In learned mode a failure leaves the service
// not ready; in auto mode the rule-based model is published instead.
func (s *OptimizationService) Init(ctx context.Context) error {
	if s.cfg.Mode == ModeRule {
		s.publishRules()
		return nil
	}

	err := s.LoadModel(ctx)
	if errors.Is(err, model.ErrNoBundle) && s.cfg.TrainOnStart {
		s.logger.Info("no persisted model bundle, training from dataset")
		_, err = s.Retrain(ctx)
	}
	if err == nil {
		return nil
	}

	if s.cfg.Mode == ModeLearned {
		return fmt.Errorf("failed to initialise learned model: %w", err)
	}
	s.logger.Warn("learned model unavailable, serving rule-based model", "error", err)
	s.publishRules()
	return nil
}

func (s *OptimizationService) publishRules() {
	s.registry.Publish(s.rules, model.ModelInfo{})
	s.deps.Metrics.ModelPublished(s.rules.Name())
}

func (s *OptimizationService) publishLearned(m *LearnedModel) {
	b := m.Bundle()
	info := model.ModelInfo{
		BundleID:      b.ID,
		SchemaVersion: b.SchemaVersion,
		TrainedAt:     b.TrainedAt,
		Columns:       len(b.Columns),
	}
	info.Metrics.FuelR2 = b.Fuel.R2
	info.Metrics.EmissionR2 = b.Emission.R2

	s.registry.Publish(NewFiniteGuard(m, s.rules, s.deps.Metrics.PredictionFallback), info)
	s.deps.Metrics.ModelPublished(m.Name())
	s.logger.Info("published learned model", "bundle_id", b.ID, "columns", len(b.Columns))
}

// LoadModel reads the persisted bundle and publishes it. An inconsistent bundle is
// rejected and the current model, if any, keeps serving.
func (s *OptimizationService) LoadModel(ctx context.Context) error {
	if s.deps.Store == nil {
		return fmt.Errorf("%w: no model store configured", model.ErrNoBundle)
	}
	bundle, err := s.deps.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load model bundle: %w", err)
	}
	m, err := NewLearnedModel(bundle)
	if err != nil {
		return fmt.Errorf("failed to validate model bundle: %w", err)
	}
	s.publishLearned(m)
	return nil
}

// Retrain fits a new bundle from the dataset, persists it and swaps it in.
func (s *OptimizationService) Retrain(ctx context.Context) (TrainingReport, error) {
	if s.cfg.Mode == ModeRule {
		return TrainingReport{}, fmt.Errorf("%w: retraining is disabled in rule mode", model.ErrUnavailable)
	}
	if s.deps.Dataset == nil {
		return TrainingReport{}, fmt.Errorf("%w: no training dataset configured", model.ErrUnavailable)
	}

	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	samples, err := s.deps.Dataset.LoadSamples(ctx)
	if err != nil {
		return TrainingReport{}, fmt.Errorf("failed to load training samples: %w", err)
	}
	bundle, report, err := Train(s.builder, samples, s.cfg.Training)
	if err != nil {
		return report, fmt.Errorf("failed to train model: %w", err)
	}
	m, err := NewLearnedModel(bundle)
	if err != nil {
		return report, err
	}
	if s.deps.Store != nil {
		if err := s.deps.Store.Save(ctx, bundle); err != nil {
			return report, fmt.Errorf("failed to persist model bundle: %w", err)
		}
	}

	s.deps.Metrics.Trained(report.FuelR2, report.EmissionR2)
	s.logger.Info("trained model",
		"samples", report.Samples,
		"fuel_r2", report.FuelR2,
		"emission_r2", report.EmissionR2,
	)
	s.publishLearned(m)
	return report, nil
}

func (s *OptimizationService) ModelInfo() model.ModelInfo {
	return s.registry.Info()
}

func (s *OptimizationService) PredictConsumption(ctx context.Context, p model.OperatingPoint) (model.PredictionResult, error) {
	m, err := s.registry.Current()
	if err != nil {
		return model.PredictionResult{}, err
	}
	if err := p.ValidateFields(); err != nil {
		return model.PredictionResult{}, err
	}
	p = s.ResolveFieldArea(ctx, p)
	return s.predict(m, p)
}

func (s *OptimizationService) predict(m model.ResponseModel, p model.OperatingPoint) (model.PredictionResult, error) {
	v, err := s.builder.Build(p)
	if err != nil {
		return model.PredictionResult{}, err
	}
	res, err := m.Predict(v)
	if err != nil {
		return model.PredictionResult{}, fmt.Errorf("prediction failed: %w", err)
	}
	if !res.Finite() {
		return model.PredictionResult{}, fmt.Errorf("prediction failed: non-finite result")
	}
	return res, nil
}

func (s *OptimizationService) OptimizeSpeedForOperation(ctx context.Context, p model.OperatingPoint, targetAcresPerHour *float64) (model.OptimizationResult, error) {
	m, err := s.registry.Current()
	if err != nil {
		return model.OptimizationResult{}, err
	}
	p = s.ResolveFieldArea(ctx, p)

	res, err := s.optimizer.Optimize(m, p, targetAcresPerHour)
	if err != nil {
		return model.OptimizationResult{}, err
	}
	if !res.Converged {
		s.logger.Warn("optimizer found no feasible optimum, returning baseline",
			"speed_mph", p.SpeedMPH,
			"engine_load_pct", p.EngineLoadPct,
			"model", m.Name(),
		)
	}
	s.deps.Metrics.Optimization(m.Name(), res.Converged, res.FuelSavingsPercent)
	return res, nil
}

func (s *OptimizationService) RealTimeRecommendations(ctx context.Context, p model.OperatingPoint) ([]model.Recommendation, error) {
	opt, err := s.OptimizeSpeedForOperation(ctx, p, nil)
	if err != nil {
		return nil, err
	}
	return s.cfg.Recommendations.Recommend(p, opt), nil
}

func (s *OptimizationService) OptimizeRoute(boundary []model.LatLon, implementWidthFt float64, currentPattern string) (model.RoutePlan, error) {
	return s.routes.Plan(boundary, implementWidthFt, currentPattern)
}

// ResolveFieldArea fills a missing field area from the farmland polygon enclosing the
// point's location. Lookup failures leave the point unchanged.
func (s *OptimizationService) ResolveFieldArea(ctx context.Context, p model.OperatingPoint) model.OperatingPoint {
	if p.FieldAcres > 0 || p.Location == nil || s.deps.Locator == nil {
		return p
	}
	fields, err := s.deps.Locator.FieldsAround(ctx, *p.Location)
	if err != nil {
		s.logger.Warn("field lookup failed", "lat", p.Location.Lat, "lon", p.Location.Lon, "error", err)
		return p
	}
	for i := range fields {
		fields[i].Acres = PolygonAcres(fields[i].Ring)
	}
	field, ok := ContainingField(*p.Location, fields)
	if !ok {
		s.logger.Debug("no farmland polygon contains location", "lat", p.Location.Lat, "lon", p.Location.Lon)
		return p
	}
	p.FieldAcres = math.Round(field.Acres*100) / 100
	return p
}

// RecordSample stores an observed operating sample for later training.
func (s *OptimizationService) RecordSample(ctx context.Context, sample model.TrainingSample) error {
	if !s.cfg.SaveSamples || s.deps.Recorder == nil {
		return fmt.Errorf("%w: sample recording is disabled", model.ErrUnavailable)
	}
	if err := sample.Point.ValidateFields(); err != nil {
		return err
	}
	if !finiteNonNegative(sample.FuelRateGPH) || !finiteNonNegative(sample.CO2RateLbsHour) {
		return fmt.Errorf("%w: observed rates must be non-negative numbers", model.ErrValidation)
	}
	if err := s.deps.Recorder.SaveSample(ctx, sample); err != nil {
		return fmt.Errorf("failed to record sample: %w", err)
	}
	return nil
}
