package core

import (
	"carbonsense/internal/domain/model"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// OptimizerConfig tunes the objective, the constraint envelope and the local search.
type OptimizerConfig struct {
	Bounds model.Bounds

	TypicalSpeed  float64 // mph reference for the speed penalty
	SpeedPenalty  float64 // k1, per mph away from TypicalSpeed
	LoadThreshold float64 // %
	LoadPenalty   float64 // k2, per % above LoadThreshold
	ErrorPenalty  float64 // objective value of an erroring evaluation

	MaxRelativeChange float64 // allowed |speed - baseline| / baseline
	StartPerturbation float64 // extra starts at baseline × (1 ± StartPerturbation)
	FieldEfficiency   float64 // multiplies theoretical acres per hour

	MaxIterations     int
	GradientThreshold float64
	SpeedResolution   float64 // reported speeds are rounded to this step
}

func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		Bounds:            model.Bounds{SpeedMin: 3, SpeedMax: 15, LoadMin: 0, LoadMax: 100},
		TypicalSpeed:      7.5,
		SpeedPenalty:      0.05,
		LoadThreshold:     85,
		LoadPenalty:       0.1,
		ErrorPenalty:      999,
		MaxRelativeChange: 0.3,
		StartPerturbation: 0.1,
		FieldEfficiency:   1.0,
		MaxIterations:     100,
		GradientThreshold: 1e-6,
		SpeedResolution:   0.1,
	}
}

const feasibilityTolerance = 1e-6

// acresPerHourDivisor converts mph × feet of implement width into acres per hour.
const acresPerHourDivisor = 8.25

// Optimizer searches the feasible speed interval for the lowest penalized fuel rate.
type Optimizer struct {
	cfg     OptimizerConfig
	builder *FeatureBuilder
	savings *SavingsCalculator
}

func NewOptimizer(cfg OptimizerConfig, builder *FeatureBuilder, savings *SavingsCalculator) *Optimizer {
	return &Optimizer{cfg: cfg, builder: builder, savings: savings}
}

// AcresPerHour is the field capacity at speed with an implement of width feet.
func (o *Optimizer) AcresPerHour(speed, width float64) float64 {
	return speed * width * o.cfg.FieldEfficiency / acresPerHourDivisor
}

// constraint is feasible where it evaluates to a non-negative value.
type constraint func(speed float64) float64

type candidate struct {
	speed     float64
	objective float64
}

// Optimize returns the recommended operating speed for baseline under m. Only an invalid
// baseline or target is an error; a failed search yields the baseline itself.
func (o *Optimizer) Optimize(m model.ResponseModel, baseline model.OperatingPoint, targetAcresPerHour *float64) (model.OptimizationResult, error) {
	if err := baseline.Validate(o.cfg.Bounds); err != nil {
		return model.OptimizationResult{}, err
	}
	if t := targetAcresPerHour; t != nil && (math.IsNaN(*t) || math.IsInf(*t, 0) || *t < 0) {
		return model.OptimizationResult{}, fmt.Errorf("%w: target acres per hour must be a non-negative number", model.ErrValidation)
	}

	constraints := o.constraints(baseline, targetAcresPerHour)
	lo, hi := o.feasibleInterval(baseline, targetAcresPerHour)

	// Savings are measured against the baseline, so without it there is nothing to report.
	basePred, baseErr := o.predict(m, baseline)

	var best *candidate
	if baseErr == nil && lo <= hi+feasibilityTolerance {
		for _, c := range o.search(m, baseline, lo, hi) {
			if !satisfies(constraints, c.speed) {
				continue
			}
			if best == nil || better(c, *best, baseline.SpeedMPH) {
				c := c
				best = &c
			}
		}
	}

	optimal := baseline.SpeedMPH
	if best != nil {
		optimal = math.Max(o.cfg.Bounds.SpeedMin, math.Min(best.speed, o.cfg.Bounds.SpeedMax))
	}

	optPred := basePred
	if best != nil {
		optPred, _ = o.predict(m, baseline.WithSpeed(optimal))
	}

	res := o.savings.Calculate(SavingsInput{
		Baseline:           baseline,
		OptimalSpeed:       optimal,
		BaselinePrediction: basePred,
		OptimalPrediction:  optPred,
	})
	res.Converged = best != nil
	return res, nil
}

func (o *Optimizer) constraints(b model.OperatingPoint, target *float64) []constraint {
	base := b.SpeedMPH
	c := o.cfg.MaxRelativeChange
	cs := []constraint{
		func(s float64) float64 { return s - o.cfg.Bounds.SpeedMin },
		func(s float64) float64 { return o.cfg.Bounds.SpeedMax - s },
		func(s float64) float64 { return s - base*(1-c) },
		func(s float64) float64 { return base*(1+c) - s },
	}
	if target != nil {
		t := *target
		cs = append(cs, func(s float64) float64 {
			return o.AcresPerHour(s, b.ImplementWidthFt) - t
		})
	}
	return cs
}

// feasibleInterval intersects every constraint; all of them are bounds on speed alone.
func (o *Optimizer) feasibleInterval(b model.OperatingPoint, target *float64) (float64, float64) {
	c := o.cfg.MaxRelativeChange
	lo := math.Max(o.cfg.Bounds.SpeedMin, b.SpeedMPH*(1-c))
	hi := math.Min(o.cfg.Bounds.SpeedMax, b.SpeedMPH*(1+c))
	if target != nil && *target > 0 {
		perMph := o.AcresPerHour(1, b.ImplementWidthFt)
		if perMph <= 0 {
			return 1, 0
		}
		lo = math.Max(lo, *target/perMph)
	}
	return lo, hi
}

func satisfies(cs []constraint, speed float64) bool {
	for _, c := range cs {
		if c(speed) < -feasibilityTolerance {
			return false
		}
	}
	return true
}

// better prefers the lower objective and, on a tie, the smaller change from baseline.
func better(a, b candidate, baseline float64) bool {
	tol := 1e-9 * math.Max(1, math.Abs(b.objective))
	if math.Abs(a.objective-b.objective) > tol {
		return a.objective < b.objective
	}
	return math.Abs(a.speed-baseline) < math.Abs(b.speed-baseline)
}

// search runs the local minimiser from every start and returns the candidates whose
// re-evaluation succeeded.
func (o *Optimizer) search(m model.ResponseModel, b model.OperatingPoint, lo, hi float64) []candidate {
	if hi-lo < feasibilityTolerance {
		return o.evaluateCandidates(m, b, lo, hi, []float64{lo})
	}

	// speed(u) = lo + (hi-lo)(1+sin u)/2 keeps every evaluation inside the interval.
	toSpeed := func(u float64) float64 { return lo + (hi-lo)*(1+math.Sin(u))/2 }
	toParam := func(s float64) float64 {
		t := (s - lo) / (hi - lo)
		t = math.Max(0.01, math.Min(t, 0.99))
		return math.Asin(2*t - 1)
	}

	f := func(x []float64) float64 {
		j, _ := o.objective(m, b, toSpeed(x[0]))
		return j
	}
	problem := optimize.Problem{
		Func: f,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, f, x, &fd.Settings{Formula: fd.Central})
		},
	}
	settings := &optimize.Settings{
		MajorIterations:   o.cfg.MaxIterations,
		GradientThreshold: o.cfg.GradientThreshold,
	}

	base := b.SpeedMPH
	starts := []float64{base, base * (1 - o.cfg.StartPerturbation), base * (1 + o.cfg.StartPerturbation)}
	var speeds []float64
	for _, s := range starts {
		result, err := optimize.Minimize(problem, []float64{toParam(s)}, settings, &optimize.BFGS{})
		if err != nil && !stalledAtMinimum(err) {
			continue
		}
		if result == nil || len(result.X) != 1 {
			continue
		}
		speeds = append(speeds, toSpeed(result.X[0]))
	}
	return o.evaluateCandidates(m, b, lo, hi, speeds)
}

// stalledAtMinimum reports line search stops that happen when no descent is left to
// find, such as at a kink of the objective or against an interval end.
func stalledAtMinimum(err error) bool {
	return errors.Is(err, optimize.ErrNoProgress) || errors.Is(err, optimize.ErrLinesearcherFailure)
}

func (o *Optimizer) evaluateCandidates(m model.ResponseModel, b model.OperatingPoint, lo, hi float64, speeds []float64) []candidate {
	out := make([]candidate, 0, len(speeds))
	for _, s := range speeds {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		s = roundWithin(s, lo, hi, o.cfg.SpeedResolution)
		j, ok := o.objective(m, b, s)
		if !ok {
			continue
		}
		out = append(out, candidate{speed: s, objective: j})
	}
	return out
}

// objective is the penalized fuel rate at speed; ok is false when the model could not
// produce a finite prediction there.
func (o *Optimizer) objective(m model.ResponseModel, b model.OperatingPoint, speed float64) (float64, bool) {
	pred, err := o.predict(m, b.WithSpeed(speed))
	if err != nil || !pred.Finite() {
		return o.cfg.ErrorPenalty, false
	}
	speedPenalty := math.Abs(speed-o.cfg.TypicalSpeed) * o.cfg.SpeedPenalty
	loadPenalty := math.Max(0, b.EngineLoadPct-o.cfg.LoadThreshold) * o.cfg.LoadPenalty
	j := pred.FuelRateGPH * (1 + speedPenalty + loadPenalty)
	if math.IsNaN(j) || math.IsInf(j, 0) {
		return o.cfg.ErrorPenalty, false
	}
	return j, true
}

func (o *Optimizer) predict(m model.ResponseModel, p model.OperatingPoint) (model.PredictionResult, error) {
	v, err := o.builder.Build(p)
	if err != nil {
		return model.PredictionResult{}, err
	}
	res, err := m.Predict(v)
	if err != nil {
		return model.PredictionResult{}, err
	}
	if !res.Finite() {
		return model.PredictionResult{}, fmt.Errorf("non-finite prediction at %.2f mph", p.SpeedMPH)
	}
	return res, nil
}

// roundWithin rounds v to the nearest step that stays inside [lo, hi].
func roundWithin(v, lo, hi, step float64) float64 {
	if step <= 0 {
		return math.Max(lo, math.Min(v, hi))
	}
	r := math.Round(v/step) * step
	if r < lo-feasibilityTolerance {
		r = math.Ceil(lo/step-1e-9) * step
	}
	if r > hi+feasibilityTolerance {
		r = math.Floor(hi/step+1e-9) * step
	}
	if r < lo-feasibilityTolerance || r > hi+feasibilityTolerance {
		return math.Max(lo, math.Min(v, hi))
	}
	return r
}
