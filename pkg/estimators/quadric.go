package estimators

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"robust-geometry/internal/linalg"
	"robust-geometry/pkg/geometry"
	"robust-geometry/pkg/robust"
)

// QuadricSampleSize is the number of points that determine a quadric.
const QuadricSampleSize = 9

// DefaultQuadricThreshold is the default Sampson distance of an inlier.
const DefaultQuadricThreshold = 1e-3

// QuadricEstimator fits a general quadric surface to 3D points.
type QuadricEstimator struct {
	*robust.Estimator[geometry.Quadric]
	points []geometry.Point3D
}

// NewQuadricEstimator returns a quadric estimator over points.
func NewQuadricEstimator(points []geometry.Point3D, opts ...Option) (*QuadricEstimator, error) {
	if err := checkData(points != nil, len(points), QuadricSampleSize, "points"); err != nil {
		return nil, err
	}
	n := -1
	if points != nil {
		n = len(points)
	}
	e, err := newEstimator[geometry.Quadric](n, familyConfig(DefaultQuadricThreshold), opts)
	if err != nil {
		return nil, err
	}
	est := &QuadricEstimator{Estimator: e}
	if points != nil {
		if err := est.SetPoints(points); err != nil {
			return nil, err
		}
	}
	return est, nil
}

// Points returns the points being fitted.
func (e *QuadricEstimator) Points() []geometry.Point3D { return e.points }

// SetPoints replaces the points.
func (e *QuadricEstimator) SetPoints(points []geometry.Point3D) error {
	if err := locked(e.Estimator); err != nil {
		return err
	}
	if err := checkData(true, len(points), QuadricSampleSize, "points"); err != nil {
		return err
	}
	model := quadricModel{points: points}
	if err := e.SetModel(model); err != nil {
		return err
	}
	if err := e.SetRefiner(refiner[geometry.Quadric]{par: quadricParams{model}, terms: gauge[geometry.Quadric]}); err != nil {
		return err
	}
	e.points = points
	return nil
}

type quadricModel struct {
	points []geometry.Point3D
}

func (m quadricModel) NumData() int    { return len(m.points) }
func (m quadricModel) SampleSize() int { return QuadricSampleSize }

func (m quadricModel) Fit(sample []int) []geometry.Quadric {
	q, err := m.solve(sample)
	if err != nil {
		return nil
	}
	return []geometry.Quadric{q}
}

func (m quadricModel) Residual(q geometry.Quadric, i int) float64 {
	return q.SampsonDistance(m.points[i])
}

func (m quadricModel) Refit(indices []int) (geometry.Quadric, error) {
	return m.solve(indices)
}

// solve mirrors the conic fit in three dimensions with the design row
// [x² y² z² xy xz yz x y z 1].
func (m quadricModel) solve(indices []int) (geometry.Quadric, error) {
	sel := make([]geometry.Point3D, len(indices))
	for k, i := range indices {
		sel[k] = m.points[i]
	}
	t, norm := linalg.Normalize3D(sel)
	a := mat.NewDense(len(norm), 10, nil)
	for k, p := range norm {
		x, y, z := p.X, p.Y, p.Z
		a.SetRow(k, []float64{x * x, y * y, z * z, x * y, x * z, y * z, x, y, z, 1})
	}
	v, ok := linalg.NullVector(a)
	if !ok {
		return geometry.Quadric{}, errors.New("quadric: degenerate configuration")
	}
	var tq, q mat.Dense
	tq.Mul(t.T(), geometry.QuadricFromParams(v).Matrix())
	q.Mul(&tq, t)
	out, ok := geometry.QuadricFromMatrix(&q).Normalize()
	if !ok {
		return geometry.Quadric{}, errors.New("quadric: vanishing coefficients")
	}
	return out, nil
}

func (m quadricModel) IsValid(q geometry.Quadric) bool {
	return q.IsFinite()
}

type quadricParams struct {
	model quadricModel
}

func (p quadricParams) Params(q geometry.Quadric) []float64 { return q.Params() }

func (p quadricParams) Model(v []float64) (geometry.Quadric, bool) {
	return geometry.QuadricFromParams(v).Normalize()
}

func (p quadricParams) ResidualSize() int { return 1 }

func (p quadricParams) Residuals(dst, v []float64, i int) {
	q := geometry.QuadricFromParams(v)
	x := p.model.points[i]
	g := q.Gradient(x).Norm()
	if g < 1e-12 {
		dst[0] = q.Evaluate(x)
		return
	}
	dst[0] = q.Evaluate(x) / g
}
