package estimators

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"robust-geometry/internal/linalg"
	"robust-geometry/pkg/geometry"
	"robust-geometry/pkg/robust"
)

// Point2DSampleSize is the number of lines that determine a point.
const Point2DSampleSize = 2

// DefaultPoint2DThreshold is the default point to line distance of an inlier.
const DefaultPoint2DThreshold = 1e-3

// Point2DEstimator finds the point common to a set of 2D lines.
type Point2DEstimator struct {
	*robust.Estimator[geometry.Point2D]
	lines []geometry.Line2D
}

// NewPoint2DEstimator returns a point estimator over lines.
func NewPoint2DEstimator(lines []geometry.Line2D, opts ...Option) (*Point2DEstimator, error) {
	if err := checkData(lines != nil, len(lines), Point2DSampleSize, "lines"); err != nil {
		return nil, err
	}
	n := -1
	if lines != nil {
		n = len(lines)
	}
	e, err := newEstimator[geometry.Point2D](n, familyConfig(DefaultPoint2DThreshold), opts)
	if err != nil {
		return nil, err
	}
	est := &Point2DEstimator{Estimator: e}
	if lines != nil {
		if err := est.SetLines(lines); err != nil {
			return nil, err
		}
	}
	return est, nil
}

// Lines returns the lines being intersected.
func (e *Point2DEstimator) Lines() []geometry.Line2D { return e.lines }

// SetLines replaces the lines.
func (e *Point2DEstimator) SetLines(lines []geometry.Line2D) error {
	if err := locked(e.Estimator); err != nil {
		return err
	}
	if err := checkData(true, len(lines), Point2DSampleSize, "lines"); err != nil {
		return err
	}
	model := point2DModel{lines: lines}
	if err := e.SetModel(model); err != nil {
		return err
	}
	if err := e.SetRefiner(refiner[geometry.Point2D]{par: point2DParams{model}}); err != nil {
		return err
	}
	e.lines = lines
	return nil
}

type point2DModel struct {
	lines []geometry.Line2D
}

func (m point2DModel) NumData() int    { return len(m.lines) }
func (m point2DModel) SampleSize() int { return Point2DSampleSize }

func (m point2DModel) Fit(sample []int) []geometry.Point2D {
	a, okA := m.lines[sample[0]].Normalize()
	b, okB := m.lines[sample[1]].Normalize()
	if !okA || !okB {
		return nil
	}
	p, ok := a.Intersect(b)
	if !ok {
		return nil
	}
	return []geometry.Point2D{p}
}

// signed is the signed distance from p to line i, tolerating lines whose
// normal is not unit length.
func (m point2DModel) signed(p geometry.Point2D, i int) float64 {
	l := m.lines[i]
	n := math.Hypot(l.A, l.B)
	if n == 0 {
		return math.Inf(1)
	}
	return (l.A*p.X + l.B*p.Y + l.C) / n
}

func (m point2DModel) Residual(p geometry.Point2D, i int) float64 {
	return math.Abs(m.signed(p, i))
}

// Refit minimizes the squared distances to the lines.
func (m point2DModel) Refit(indices []int) (geometry.Point2D, error) {
	a := mat.NewDense(len(indices), 2, nil)
	b := mat.NewVecDense(len(indices), nil)
	for k, i := range indices {
		l, ok := m.lines[i].Normalize()
		if !ok {
			return geometry.Point2D{}, errors.Errorf("point refit: line %d is degenerate", i)
		}
		a.Set(k, 0, l.A)
		a.Set(k, 1, l.B)
		b.SetVec(k, -l.C)
	}
	var qr mat.QR
	qr.Factorize(a)
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, b); err != nil {
		return geometry.Point2D{}, errors.Wrap(err, "point refit")
	}
	return geometry.Point2D{X: x.AtVec(0), Y: x.AtVec(1)}, nil
}

func (m point2DModel) IsValid(p geometry.Point2D) bool {
	return geometry.IsFinite2D(p)
}

type point2DParams struct {
	model point2DModel
}

func (p point2DParams) Params(x geometry.Point2D) []float64 { return []float64{x.X, x.Y} }

func (p point2DParams) Model(v []float64) (geometry.Point2D, bool) {
	return geometry.Point2D{X: v[0], Y: v[1]}, linalg.Finite(v...)
}

func (p point2DParams) ResidualSize() int { return 1 }

func (p point2DParams) Residuals(dst, v []float64, i int) {
	dst[0] = p.model.signed(geometry.Point2D{X: v[0], Y: v[1]}, i)
}
