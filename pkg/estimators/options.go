// Package estimators binds the geometric model families to the robust
// framework: a minimal solver, a residual, a least squares refit and a
// refinement parameterization per family.
package estimators

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"robust-geometry/pkg/refine"
	"robust-geometry/pkg/robust"
)

// Option configures an estimator at construction.
type Option func(*options)

type options struct {
	method   robust.Method
	quality  []float64
	config   *robust.Config
	listener interface{}
	logger   golog.Logger
}

// WithMethod selects the robust method. The default is robust.DefaultMethod.
func WithMethod(m robust.Method) Option {
	return func(o *options) { o.method = m }
}

// WithQualityScores sets one quality score per correspondence, required by
// PROSAC and PROMedS.
func WithQualityScores(q []float64) Option {
	return func(o *options) { o.quality = q }
}

// WithConfig replaces the family's default configuration.
func WithConfig(cfg robust.Config) Option {
	return func(o *options) { o.config = &cfg }
}

// WithListener sets the progress listener. Its model type must match the
// estimator's.
func WithListener[M any](l robust.Listener[M]) Option {
	return func(o *options) { o.listener = l }
}

// WithLogger sets the logger.
func WithLogger(l golog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// familyConfig returns the defaults with a family-specific threshold.
func familyConfig(threshold float64) robust.Config {
	cfg := robust.DefaultConfig()
	cfg.Threshold = threshold
	cfg.StopThreshold = threshold
	return cfg
}

// newEstimator applies the options shared by every family. n is the number
// of correspondences or -1 when no data was given.
func newEstimator[M any](n int, defaults robust.Config, opts []Option) (*robust.Estimator[M], error) {
	o := options{method: robust.DefaultMethod}
	for _, opt := range opts {
		opt(&o)
	}

	e, err := robust.NewEstimator[M](o.method)
	if err != nil {
		return nil, err
	}
	cfg := defaults
	if o.config != nil {
		cfg = *o.config
	}
	if err := e.SetConfig(cfg); err != nil {
		return nil, err
	}
	if o.quality != nil {
		if n >= 0 && len(o.quality) != n {
			return nil, errors.Wrapf(robust.ErrInvalidArgument,
				"%d quality scores for %d correspondences", len(o.quality), n)
		}
		if err := e.SetQualityScores(o.quality); err != nil {
			return nil, err
		}
	}
	if o.listener != nil {
		l, ok := o.listener.(robust.Listener[M])
		if !ok {
			return nil, errors.Wrapf(robust.ErrInvalidArgument, "listener %T does not match the estimator", o.listener)
		}
		if err := e.SetListener(l); err != nil {
			return nil, err
		}
	}
	if o.logger != nil {
		if err := e.SetLogger(o.logger); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// checkData validates a correspondence count. Absent data (nil) is allowed
// and leaves the estimator not ready.
func checkData(present bool, n, minimum int, what string) error {
	if present && n < minimum {
		return errors.Wrapf(robust.ErrInvalidArgument, "%d %s, need at least %d", n, what, minimum)
	}
	return nil
}

// locked returns ErrLocked when an estimation is in progress.
func locked[M any](e *robust.Estimator[M]) error {
	if e.IsLocked() {
		return errors.Wrap(robust.ErrLocked, "estimation in progress")
	}
	return nil
}

// refiner adapts a Parameterization to robust.Refiner.
type refiner[M any] struct {
	par refine.Parameterization[M]
	// chart, when set, builds a local parameterization around the starting
	// model and replaces par.
	chart func(initial M) refine.Parameterization[M]
	// terms returns extra residual blocks for a starting model.
	terms func(initial M) []refine.Term
}

func (r refiner[M]) Refine(initial M, req robust.RefineRequest) (M, *mat.SymDense, error) {
	var terms []refine.Term
	if r.terms != nil {
		terms = r.terms(initial)
	}
	par := r.par
	if r.chart != nil {
		par = r.chart(initial)
	}
	res, err := refine.Refine(par, initial, req.Inliers, refine.Options{
		Fast:           req.Fast,
		KeepCovariance: req.KeepCovariance,
		Terms:          terms,
	})
	if err != nil {
		var zero M
		return zero, nil, err
	}
	return res.Model, res.Covariance, nil
}

// gauge returns the unit norm gauge for homogeneous parameterizations.
func gauge[M any](M) []refine.Term {
	return []refine.Term{refine.UnitNorm(1)}
}
