package estimators

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"robust-geometry/internal/linalg"
	"robust-geometry/pkg/geometry"
	"robust-geometry/pkg/robust"
)

// ConicSampleSize is the number of points that determine a conic.
const ConicSampleSize = 5

// DefaultConicThreshold is the default Sampson distance of an inlier.
const DefaultConicThreshold = 1e-3

// ConicEstimator fits a general conic to 2D points.
type ConicEstimator struct {
	*robust.Estimator[geometry.Conic]
	points []geometry.Point2D
}

// NewConicEstimator returns a conic estimator over points.
func NewConicEstimator(points []geometry.Point2D, opts ...Option) (*ConicEstimator, error) {
	if err := checkData(points != nil, len(points), ConicSampleSize, "points"); err != nil {
		return nil, err
	}
	n := -1
	if points != nil {
		n = len(points)
	}
	e, err := newEstimator[geometry.Conic](n, familyConfig(DefaultConicThreshold), opts)
	if err != nil {
		return nil, err
	}
	est := &ConicEstimator{Estimator: e}
	if points != nil {
		if err := est.SetPoints(points); err != nil {
			return nil, err
		}
	}
	return est, nil
}

// Points returns the points being fitted.
func (e *ConicEstimator) Points() []geometry.Point2D { return e.points }

// SetPoints replaces the points.
func (e *ConicEstimator) SetPoints(points []geometry.Point2D) error {
	if err := locked(e.Estimator); err != nil {
		return err
	}
	if err := checkData(true, len(points), ConicSampleSize, "points"); err != nil {
		return err
	}
	model := conicModel{points: points}
	if err := e.SetModel(model); err != nil {
		return err
	}
	if err := e.SetRefiner(refiner[geometry.Conic]{par: conicParams{model}, terms: gauge[geometry.Conic]}); err != nil {
		return err
	}
	e.points = points
	return nil
}

type conicModel struct {
	points []geometry.Point2D
}

func (m conicModel) NumData() int    { return len(m.points) }
func (m conicModel) SampleSize() int { return ConicSampleSize }

func (m conicModel) Fit(sample []int) []geometry.Conic {
	c, err := m.solve(sample)
	if err != nil {
		return nil
	}
	return []geometry.Conic{c}
}

func (m conicModel) Residual(c geometry.Conic, i int) float64 {
	return c.SampsonDistance(m.points[i])
}

func (m conicModel) Refit(indices []int) (geometry.Conic, error) {
	return m.solve(indices)
}

// solve is the normalized algebraic fit: the coefficient vector spans the
// null space of the design matrix [x² xy y² x y 1] built on Hartley
// normalized points, then C = Tᵀ C̃ T.
func (m conicModel) solve(indices []int) (geometry.Conic, error) {
	sel := make([]geometry.Point2D, len(indices))
	for k, i := range indices {
		sel[k] = m.points[i]
	}
	t, norm := linalg.Normalize2D(sel)
	a := mat.NewDense(len(norm), 6, nil)
	for k, p := range norm {
		a.SetRow(k, []float64{p.X * p.X, p.X * p.Y, p.Y * p.Y, p.X, p.Y, 1})
	}
	v, ok := linalg.NullVector(a)
	if !ok {
		return geometry.Conic{}, errors.New("conic: degenerate configuration")
	}
	var tc, q mat.Dense
	tc.Mul(t.T(), geometry.ConicFromParams(v).Matrix())
	q.Mul(&tc, t)
	c, ok := geometry.ConicFromMatrix(&q).Normalize()
	if !ok {
		return geometry.Conic{}, errors.New("conic: vanishing coefficients")
	}
	return c, nil
}

func (m conicModel) IsValid(c geometry.Conic) bool {
	return c.IsFinite()
}

// conicParams refines the six coefficients on the signed Sampson distance.
type conicParams struct {
	model conicModel
}

func (p conicParams) Params(c geometry.Conic) []float64 { return c.Params() }

func (p conicParams) Model(v []float64) (geometry.Conic, bool) {
	return geometry.ConicFromParams(v).Normalize()
}

func (p conicParams) ResidualSize() int { return 1 }

func (p conicParams) Residuals(dst, v []float64, i int) {
	c := geometry.ConicFromParams(v)
	x := p.model.points[i]
	g := c.Gradient(x).Norm()
	if g < 1e-12 {
		dst[0] = c.Evaluate(x)
		return
	}
	dst[0] = c.Evaluate(x) / g
}
