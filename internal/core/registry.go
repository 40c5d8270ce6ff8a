package core

import (
	"carbonsense/internal/domain/model"
	"sync/atomic"
)

type modelEntry struct {
	model model.ResponseModel
	info  model.ModelInfo
}

// ModelRegistry holds the response model currently serving requests.
// Replacements are published whole; readers never observe a partial update.
type ModelRegistry struct {
	current atomic.Pointer[modelEntry]
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{}
}

func (r *ModelRegistry) Publish(m model.ResponseModel, info model.ModelInfo) {
	info.Mode = m.Name()
	info.Ready = true
	r.current.Store(&modelEntry{model: m, info: info})
}

// Current returns a snapshot of the active model.
func (r *ModelRegistry) Current() (model.ResponseModel, error) {
	e := r.current.Load()
	if e == nil {
		return nil, model.ErrModelNotReady
	}
	return e.model, nil
}

func (r *ModelRegistry) Info() model.ModelInfo {
	e := r.current.Load()
	if e == nil {
		return model.ModelInfo{Mode: "none"}
	}
	return e.info
}

// FiniteGuard answers with the fallback model whenever the primary yields a non-finite result.
type FiniteGuard struct {
	primary  model.ResponseModel
	fallback model.ResponseModel
	onFall   func()
}

func NewFiniteGuard(primary, fallback model.ResponseModel, onFallback func()) *FiniteGuard {
	return &FiniteGuard{primary: primary, fallback: fallback, onFall: onFallback}
}

func (g *FiniteGuard) Name() string { return g.primary.Name() }

func (g *FiniteGuard) Predict(v model.FeatureVector) (model.PredictionResult, error) {
	res, err := g.primary.Predict(v)
	if err != nil {
		return res, err
	}
	if res.Finite() {
		return res, nil
	}
	if g.onFall != nil {
		g.onFall()
	}
	return g.fallback.Predict(v)
}
