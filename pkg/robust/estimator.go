package robust

import (
	"math"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// RefineRequest describes one refinement of a robust estimate.
type RefineRequest struct {
	// Inliers are the correspondences the refinement may use.
	Inliers []int
	// Fast asks for a single linearized step instead of a full
	// Levenberg-Marquardt run.
	Fast bool
	// KeepCovariance asks for the parameter covariance.
	KeepCovariance bool
}

// Refiner polishes a robust estimate. A returned error makes the estimator
// keep the unrefined model.
type Refiner[M any] interface {
	Refine(initial M, req RefineRequest) (M, *mat.SymDense, error)
}

// RefinerFunc adapts a function to Refiner.
type RefinerFunc[M any] func(initial M, req RefineRequest) (M, *mat.SymDense, error)

// Refine implements Refiner.
func (f RefinerFunc[M]) Refine(initial M, req RefineRequest) (M, *mat.SymDense, error) {
	return f(initial, req)
}

// Estimator runs one robust method over a bound Model. It is not safe for
// concurrent use; the lock only rejects re-entrant use from listener
// callbacks.
type Estimator[M any] struct {
	method   Method
	cfg      Config
	model    Model[M]
	quality  []float64
	listener Listener[M]
	refiner  Refiner[M]
	logger   golog.Logger

	refineResult   bool
	fastRefinement bool
	keepCovariance bool

	locked     bool
	inliers    *InliersData
	covariance *mat.SymDense
}

// NewEstimator returns an estimator for method with the default
// configuration and no model bound.
func NewEstimator[M any](method Method) (*Estimator[M], error) {
	if !method.Valid() {
		return nil, invalid("unknown method %d", int(method))
	}
	return &Estimator[M]{
		method:       method,
		cfg:          DefaultConfig(),
		logger:       zap.NewNop().Sugar(),
		refineResult: true,
	}, nil
}

func (e *Estimator[M]) checkUnlocked() error {
	if e.locked {
		return errors.Wrap(ErrLocked, "estimation in progress")
	}
	return nil
}

// Method returns the robust method.
func (e *Estimator[M]) Method() Method { return e.method }

// Config returns a copy of the configuration.
func (e *Estimator[M]) Config() Config { return e.cfg }

// Model returns the bound model, or nil.
func (e *Estimator[M]) Model() Model[M] { return e.model }

// QualityScores returns a copy of the quality scores.
func (e *Estimator[M]) QualityScores() []float64 {
	if e.quality == nil {
		return nil
	}
	out := make([]float64, len(e.quality))
	copy(out, e.quality)
	return out
}

// Listener returns the listener, or nil.
func (e *Estimator[M]) Listener() Listener[M] { return e.listener }

// IsListenerAvailable reports whether a listener is set.
func (e *Estimator[M]) IsListenerAvailable() bool { return e.listener != nil }

// IsLocked reports whether an estimation is in progress.
func (e *Estimator[M]) IsLocked() bool { return e.locked }

// RefineResult reports whether robust estimates are refined.
func (e *Estimator[M]) RefineResult() bool { return e.refineResult }

// UseFastRefinement reports whether refinement takes a single step.
func (e *Estimator[M]) UseFastRefinement() bool { return e.fastRefinement }

// KeepCovariance reports whether the refinement covariance is kept.
func (e *Estimator[M]) KeepCovariance() bool { return e.keepCovariance }

// Logger returns the logger.
func (e *Estimator[M]) Logger() golog.Logger { return e.logger }

// InliersData returns the inliers of the last successful estimation, or nil.
func (e *Estimator[M]) InliersData() *InliersData { return e.inliers }

// Covariance returns the parameter covariance of the last refined
// estimate. It is nil unless refinement ran, succeeded and KeepCovariance
// is set.
func (e *Estimator[M]) Covariance() *mat.SymDense {
	if e.covariance == nil {
		return nil
	}
	out := mat.NewSymDense(e.covariance.SymmetricDim(), nil)
	out.CopySym(e.covariance)
	return out
}

// IsReady reports whether Estimate can run: a model with at least
// SampleSize correspondences is bound and, for the progressive methods,
// there is one quality score per correspondence.
func (e *Estimator[M]) IsReady() bool {
	if e.model == nil {
		return false
	}
	n := e.model.NumData()
	if m := e.model.SampleSize(); m < 1 || n < m {
		return false
	}
	if e.method.RequiresQualityScores() && len(e.quality) != n {
		return false
	}
	return true
}

// SetMethod switches the robust method, keeping the configuration.
func (e *Estimator[M]) SetMethod(m Method) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if !m.Valid() {
		return invalid("unknown method %d", int(m))
	}
	e.method = m
	return nil
}

// SetConfig replaces the whole configuration after validating it.
func (e *Estimator[M]) SetConfig(cfg Config) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	return nil
}

// SetThreshold sets the inlier threshold.
func (e *Estimator[M]) SetThreshold(v float64) error {
	return e.set(validateThreshold(v), func() { e.cfg.Threshold = v })
}

// SetConfidence sets the confidence.
func (e *Estimator[M]) SetConfidence(v float64) error {
	return e.set(validateConfidence(v), func() { e.cfg.Confidence = v })
}

// SetMaxIterations sets the iteration cap.
func (e *Estimator[M]) SetMaxIterations(v int) error {
	return e.set(validateMaxIterations(v), func() { e.cfg.MaxIterations = v })
}

// SetProgressDelta sets the minimum reported progress change.
func (e *Estimator[M]) SetProgressDelta(v float64) error {
	return e.set(validateProgressDelta(v), func() { e.cfg.ProgressDelta = v })
}

// SetStopThreshold sets the early stop threshold of the median methods.
func (e *Estimator[M]) SetStopThreshold(v float64) error {
	return e.set(validateStopThreshold(v), func() { e.cfg.StopThreshold = v })
}

// SetInlierFactor sets the robust threshold factor of the median methods.
func (e *Estimator[M]) SetInlierFactor(v float64) error {
	return e.set(validateInlierFactor(v), func() { e.cfg.InlierFactor = v })
}

// SetSeed sets the sampler seed. Zero seeds from the clock.
func (e *Estimator[M]) SetSeed(seed int64) error {
	return e.set(nil, func() { e.cfg.Seed = seed })
}

// SetComputeAndKeepInliers controls whether InliersData keeps the flags.
func (e *Estimator[M]) SetComputeAndKeepInliers(keep bool) error {
	return e.set(nil, func() { e.cfg.ComputeAndKeepInliers = keep })
}

// SetComputeAndKeepResiduals controls whether InliersData keeps residuals.
func (e *Estimator[M]) SetComputeAndKeepResiduals(keep bool) error {
	return e.set(nil, func() { e.cfg.ComputeAndKeepResiduals = keep })
}

// SetQualityScores sets one score per correspondence; higher is better.
// Nil clears them. A length that differs from the data leaves the
// estimator not ready for the progressive methods.
func (e *Estimator[M]) SetQualityScores(q []float64) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	for i, v := range q {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return invalid("quality score %d is %v", i, v)
		}
	}
	e.quality = q
	return nil
}

// SetListener sets the listener. Nil removes it.
func (e *Estimator[M]) SetListener(l Listener[M]) error {
	return e.set(nil, func() { e.listener = l })
}

// SetModel binds the model family and its data.
func (e *Estimator[M]) SetModel(m Model[M]) error {
	return e.set(nil, func() { e.model = m })
}

// SetRefiner sets the refiner used when RefineResult is on.
func (e *Estimator[M]) SetRefiner(r Refiner[M]) error {
	return e.set(nil, func() { e.refiner = r })
}

// SetRefineResult enables refinement of the robust estimate.
func (e *Estimator[M]) SetRefineResult(refine bool) error {
	return e.set(nil, func() { e.refineResult = refine })
}

// SetUseFastRefinement selects the single-step refinement.
func (e *Estimator[M]) SetUseFastRefinement(fast bool) error {
	return e.set(nil, func() { e.fastRefinement = fast })
}

// SetKeepCovariance controls whether the refinement covariance is kept.
func (e *Estimator[M]) SetKeepCovariance(keep bool) error {
	return e.set(nil, func() { e.keepCovariance = keep })
}

// SetLogger sets the logger. Nil installs a no-op logger.
func (e *Estimator[M]) SetLogger(l golog.Logger) error {
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	return e.set(nil, func() { e.logger = l })
}

func (e *Estimator[M]) set(validation error, apply func()) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if validation != nil {
		return validation
	}
	apply()
	return nil
}

// Estimate runs the robust method and returns the best model. The
// estimator stays locked until Estimate returns, and OnEstimateEnd is
// delivered only for successful runs.
func (e *Estimator[M]) Estimate() (M, error) {
	var zero M
	if err := e.checkUnlocked(); err != nil {
		return zero, err
	}
	if !e.IsReady() {
		return zero, errors.Wrapf(ErrNotReady, "%v estimator", e.method)
	}

	e.locked = true
	defer func() { e.locked = false }()
	e.inliers = nil
	e.covariance = nil

	if e.listener != nil {
		e.listener.OnEstimateStart(e)
	}

	seed := e.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	res, err := e.consensus(rand.New(rand.NewSource(uint64(seed))))
	if err != nil {
		e.logger.Debugw("robust estimation failed", "method", e.method, "error", err)
		return zero, err
	}

	best := res.model
	indices := res.inlierIndices()
	if len(indices) >= e.model.SampleSize() {
		refit, err := e.model.Refit(indices)
		switch {
		case err != nil:
			e.logger.Debugw("refit failed, keeping sampled model", "method", e.method, "error", err)
		case !e.acceptable(refit):
			e.logger.Debugw("refit rejected, keeping sampled model", "method", e.method)
		default:
			best = refit
		}
	}

	if e.refineResult && e.refiner != nil && len(indices) > 0 {
		refined, cov, err := e.refiner.Refine(best, RefineRequest{
			Inliers:        indices,
			Fast:           e.fastRefinement,
			KeepCovariance: e.keepCovariance,
		})
		if err != nil {
			e.logger.Warnw("refinement failed, keeping robust estimate", "method", e.method, "error", err)
		} else {
			best = refined
			if e.keepCovariance {
				e.covariance = cov
			}
		}
	}

	e.inliers = res.inliersData(e.method, e.cfg)
	e.logger.Debugw("robust estimation finished",
		"method", e.method,
		"iterations", res.iterations,
		"inliers", e.inliers.NumInliers(),
		"data", e.model.NumData())

	if e.listener != nil {
		e.listener.OnEstimateEnd(e)
	}
	return best, nil
}

// acceptable applies the model's own validity and suitability checks.
func (e *Estimator[M]) acceptable(m M) bool {
	if v, ok := e.model.(Validator[M]); ok && !v.IsValid(m) {
		return false
	}
	if s, ok := e.model.(SuitabilityChecker[M]); ok && !s.IsSuitable(m) {
		return false
	}
	return true
}
