// Package refine polishes robust estimates by non-linear least squares over
// their inliers and estimates the covariance of the refined parameters.
package refine

import (
	"math"

	"github.com/maorshutman/lm"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

var (
	// ErrNoData is returned when there are fewer residuals than parameters.
	ErrNoData = errors.New("refine: not enough residuals")
	// ErrNotConverged is returned when no step lowered the cost.
	ErrNotConverged = errors.New("refine: no improvement")
	// ErrSingular is returned when the normal matrix cannot be inverted.
	ErrSingular = errors.New("refine: singular normal matrix")
)

// DefaultMaxIterations bounds the full refinement.
const DefaultMaxIterations = 100

// maxCondition is the largest normal matrix condition number for which a
// covariance is reported.
const maxCondition = 1e14

// Parameterization maps a model to a parameter vector and evaluates the
// residual block of one correspondence.
type Parameterization[M any] interface {
	Params(m M) []float64
	Model(p []float64) (M, bool)
	// ResidualSize is the length of the block written by Residuals.
	ResidualSize() int
	// Residuals writes the residual block of correspondence i at p.
	Residuals(dst, p []float64, i int)
}

// Term is an extra residual block added to the objective, used for soft
// priors and gauge constraints. Its values are multiplied by Weight.
type Term struct {
	Name   string
	Size   int
	Weight float64
	Eval   func(dst, p []float64)
}

// Options controls a refinement.
type Options struct {
	// Fast takes a single Gauss-Newton step instead of running
	// Levenberg-Marquardt to convergence.
	Fast bool
	// KeepCovariance computes the parameter covariance.
	KeepCovariance bool
	// MaxIterations bounds the full refinement.
	MaxIterations int
	// Terms are appended to the correspondence residuals.
	Terms []Term
}

// Result is a refined model.
type Result[M any] struct {
	Model       M
	Params      []float64
	InitialCost float64
	Cost        float64
	// Covariance is nil unless requested and well defined.
	Covariance *mat.SymDense
}

// objective stacks the correspondence residuals and the weighted terms.
type objective[M any] struct {
	par     Parameterization[M]
	indices []int
	terms   []Term
	dim     int
	size    int
}

func newObjective[M any](par Parameterization[M], indices []int, terms []Term, dim int) *objective[M] {
	size := len(indices) * par.ResidualSize()
	for _, t := range terms {
		size += t.Size
	}
	return &objective[M]{par: par, indices: indices, terms: terms, dim: dim, size: size}
}

func (o *objective[M]) residuals(dst, p []float64) {
	rs := o.par.ResidualSize()
	k := 0
	for _, i := range o.indices {
		o.par.Residuals(dst[k:k+rs], p, i)
		k += rs
	}
	for _, t := range o.terms {
		block := dst[k : k+t.Size]
		t.Eval(block, p)
		floats.Scale(t.Weight, block)
		k += t.Size
	}
}

// cost is the sum of squared residuals.
func (o *objective[M]) cost(p []float64) float64 {
	r := make([]float64, o.size)
	o.residuals(r, p)
	c := floats.Dot(r, r)
	if math.IsNaN(c) {
		return math.Inf(1)
	}
	return c
}

func (o *objective[M]) jacobian(p []float64) *mat.Dense {
	j := mat.NewDense(o.size, o.dim, nil)
	fd.Jacobian(j, o.residuals, p, &fd.JacobianSettings{Formula: fd.Central})
	return j
}

// Refine minimizes the squared residuals of the given correspondences
// starting from initial. On error the caller should keep initial.
func Refine[M any](par Parameterization[M], initial M, indices []int, opts Options) (*Result[M], error) {
	p0 := par.Params(initial)
	dim := len(p0)
	obj := newObjective(par, indices, opts.Terms, dim)
	if obj.size < dim || dim == 0 {
		return nil, errors.Wrapf(ErrNoData, "%d residuals for %d parameters", obj.size, dim)
	}

	initialCost := obj.cost(p0)
	var p []float64
	var err error
	if opts.Fast {
		p, err = gaussNewtonStep(obj, p0, initialCost)
	} else {
		iterations := opts.MaxIterations
		if iterations <= 0 {
			iterations = DefaultMaxIterations
		}
		p, err = levenbergMarquardt(obj, p0, iterations)
	}
	if err != nil {
		return nil, err
	}

	finalCost := obj.cost(p)
	if !(finalCost <= initialCost) {
		return nil, errors.Wrapf(ErrNotConverged, "cost rose from %g to %g", initialCost, finalCost)
	}
	model, ok := par.Model(p)
	if !ok {
		return nil, errors.Wrap(ErrNotConverged, "refined parameters do not describe a model")
	}

	res := &Result[M]{
		Model:       model,
		Params:      p,
		InitialCost: initialCost,
		Cost:        finalCost,
	}
	if opts.KeepCovariance {
		// A missing covariance does not invalidate the refined model.
		res.Covariance, _ = Covariance(obj.jacobian(p), finalCost)
	}
	return res, nil
}

func levenbergMarquardt[M any](obj *objective[M], p0 []float64, iterations int) ([]float64, error) {
	init := append([]float64(nil), p0...)
	jac := lm.NumJac{Func: obj.residuals}
	prob := lm.LMProblem{
		Dim:        obj.dim,
		Size:       obj.size,
		Func:       obj.residuals,
		Jac:        jac.Jac,
		InitParams: init,
		Tau:        1e-6,
		Eps1:       1e-8,
		Eps2:       1e-8,
	}
	res, err := lm.LM(prob, &lm.Settings{Iterations: iterations, ObjectiveTol: 1e-16})
	if err == nil && len(res.X) == obj.dim && !floats.HasNaN(res.X) {
		return res.X, nil
	}
	return minimizeBFGS(obj, p0, iterations)
}

// minimizeBFGS is the fallback when Levenberg-Marquardt fails.
func minimizeBFGS[M any](obj *objective[M], p0 []float64, iterations int) ([]float64, error) {
	problem := optimize.Problem{
		Func: obj.cost,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, obj.cost, x, nil)
		},
	}
	settings := &optimize.Settings{MajorIterations: iterations}
	res, err := optimize.Minimize(problem, append([]float64(nil), p0...), settings, &optimize.BFGS{})
	if res == nil {
		return nil, errors.Wrap(ErrNotConverged, "bfgs returned no result")
	}
	if err != nil && !(res.F < obj.cost(p0)) {
		return nil, errors.Wrapf(ErrNotConverged, "bfgs: %v", err)
	}
	return res.X, nil
}

// gaussNewtonStep solves J δ = -r at p0 and halves the step until the cost
// does not rise.
func gaussNewtonStep[M any](obj *objective[M], p0 []float64, cost0 float64) ([]float64, error) {
	j := obj.jacobian(p0)
	r := make([]float64, obj.size)
	obj.residuals(r, p0)
	floats.Scale(-1, r)

	var qr mat.QR
	qr.Factorize(j)
	var delta mat.VecDense
	if err := qr.SolveVecTo(&delta, false, mat.NewVecDense(obj.size, r)); err != nil {
		return nil, errors.Wrapf(ErrSingular, "gauss-newton step: %v", err)
	}

	step := delta.RawVector().Data
	p := make([]float64, len(p0))
	for scale := 1.0; scale > 1e-4; scale /= 2 {
		floats.AddScaledTo(p, p0, scale, step)
		if obj.cost(p) <= cost0 {
			return p, nil
		}
	}
	return nil, errors.Wrap(ErrNotConverged, "gauss-newton step did not lower the cost")
}

// Covariance returns s²(JᵀJ)⁻¹ for a Jacobian at the optimum with squared
// residual sum cost. s² is cost/(m-n) for m residuals and n parameters, or
// 1 without redundancy.
func Covariance(j mat.Matrix, cost float64) (*mat.SymDense, error) {
	m, n := j.Dims()
	jtj := mat.NewSymDense(n, nil)
	jtj.SymOuterK(1, j.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(jtj); !ok {
		return nil, errors.Wrap(ErrSingular, "normal matrix is not positive definite")
	}
	if c := chol.Cond(); c > maxCondition || math.IsInf(c, 0) || math.IsNaN(c) {
		return nil, errors.Wrapf(ErrSingular, "normal matrix condition %g", c)
	}
	cov := mat.NewSymDense(n, nil)
	if err := chol.InverseTo(cov); err != nil {
		return nil, errors.Wrap(ErrSingular, err.Error())
	}
	s2 := 1.0
	if m > n {
		s2 = cost / float64(m-n)
	}
	cov.ScaleSym(s2, cov)
	for i := 0; i < n; i++ {
		for k := i; k < n; k++ {
			if v := cov.At(i, k); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Wrap(ErrSingular, "non-finite covariance")
			}
		}
	}
	return cov, nil
}
