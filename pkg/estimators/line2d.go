package estimators

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"robust-geometry/internal/linalg"
	"robust-geometry/pkg/geometry"
	"robust-geometry/pkg/robust"
)

// Line2DSampleSize is the number of points that determine a line.
const Line2DSampleSize = 2

// DefaultLine2DThreshold is the default point to line distance of an inlier.
const DefaultLine2DThreshold = 1e-3

// Line2DEstimator fits a 2D line to points.
type Line2DEstimator struct {
	*robust.Estimator[geometry.Line2D]
	points []geometry.Point2D
}

// NewLine2DEstimator returns a line estimator over points. Nil points leave
// it not ready until SetPoints.
func NewLine2DEstimator(points []geometry.Point2D, opts ...Option) (*Line2DEstimator, error) {
	if err := checkData(points != nil, len(points), Line2DSampleSize, "points"); err != nil {
		return nil, err
	}
	n := -1
	if points != nil {
		n = len(points)
	}
	e, err := newEstimator[geometry.Line2D](n, familyConfig(DefaultLine2DThreshold), opts)
	if err != nil {
		return nil, err
	}
	est := &Line2DEstimator{Estimator: e}
	if points != nil {
		if err := est.SetPoints(points); err != nil {
			return nil, err
		}
	}
	return est, nil
}

// Points returns the points being fitted.
func (e *Line2DEstimator) Points() []geometry.Point2D { return e.points }

// SetPoints replaces the points.
func (e *Line2DEstimator) SetPoints(points []geometry.Point2D) error {
	if err := locked(e.Estimator); err != nil {
		return err
	}
	if err := checkData(true, len(points), Line2DSampleSize, "points"); err != nil {
		return err
	}
	model := line2DModel{points: points}
	if err := e.SetModel(model); err != nil {
		return err
	}
	if err := e.SetRefiner(refiner[geometry.Line2D]{par: line2DParams{model}}); err != nil {
		return err
	}
	e.points = points
	return nil
}

type line2DModel struct {
	points []geometry.Point2D
}

func (m line2DModel) NumData() int    { return len(m.points) }
func (m line2DModel) SampleSize() int { return Line2DSampleSize }

func (m line2DModel) Fit(sample []int) []geometry.Line2D {
	l, ok := geometry.LineThrough(m.points[sample[0]], m.points[sample[1]])
	if !ok {
		return nil
	}
	return []geometry.Line2D{l}
}

func (m line2DModel) Residual(l geometry.Line2D, i int) float64 {
	return l.Distance(m.points[i])
}

// Refit is the total least squares line: through the centroid, normal to
// the direction of largest spread.
func (m line2DModel) Refit(indices []int) (geometry.Line2D, error) {
	sel := make([]geometry.Point2D, len(indices))
	for k, i := range indices {
		sel[k] = m.points[i]
	}
	c := geometry.Centroid(sel)
	a := mat.NewDense(len(sel), 2, nil)
	for k, p := range sel {
		a.Set(k, 0, p.X-c.X)
		a.Set(k, 1, p.Y-c.Y)
	}
	n, ok := linalg.NullVector(a)
	if !ok {
		return geometry.Line2D{}, errors.New("line refit: points coincide")
	}
	l, ok := geometry.NewLine2D(n[0], n[1], -(n[0]*c.X + n[1]*c.Y))
	if !ok {
		return geometry.Line2D{}, errors.New("line refit: degenerate normal")
	}
	return l, nil
}

func (m line2DModel) IsValid(l geometry.Line2D) bool {
	return linalg.Finite(l.A, l.B, l.C)
}

// line2DParams refines a line in polar form (theta, rho).
type line2DParams struct {
	model line2DModel
}

func (p line2DParams) Params(l geometry.Line2D) []float64 {
	theta, rho := l.Polar()
	return []float64{theta, rho}
}

func (p line2DParams) Model(v []float64) (geometry.Line2D, bool) {
	return geometry.LineFromPolar(v[0], v[1]), linalg.Finite(v...)
}

func (p line2DParams) ResidualSize() int { return 1 }

func (p line2DParams) Residuals(dst, v []float64, i int) {
	dst[0] = geometry.LineFromPolar(v[0], v[1]).SignedDistance(p.model.points[i])
}
