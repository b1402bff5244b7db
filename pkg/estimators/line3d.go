package estimators

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"robust-geometry/pkg/geometry"
	"robust-geometry/pkg/refine"
	"robust-geometry/pkg/robust"
)

// Line3DSampleSize is the number of points that determine a 3D line.
const Line3DSampleSize = 2

// DefaultLine3DThreshold is the default point to line distance of an
// inlier.
const DefaultLine3DThreshold = 1e-3

// Line3DEstimator fits a line to 3D points.
type Line3DEstimator struct {
	*robust.Estimator[geometry.Line3D]
	points []geometry.Point3D
}

// NewLine3DEstimator returns a 3D line estimator over points.
func NewLine3DEstimator(points []geometry.Point3D, opts ...Option) (*Line3DEstimator, error) {
	if err := checkData(points != nil, len(points), Line3DSampleSize, "points"); err != nil {
		return nil, err
	}
	n := -1
	if points != nil {
		n = len(points)
	}
	e, err := newEstimator[geometry.Line3D](n, familyConfig(DefaultLine3DThreshold), opts)
	if err != nil {
		return nil, err
	}
	est := &Line3DEstimator{Estimator: e}
	if points != nil {
		if err := est.SetPoints(points); err != nil {
			return nil, err
		}
	}
	return est, nil
}

// Points returns the points being fitted.
func (e *Line3DEstimator) Points() []geometry.Point3D { return e.points }

// SetPoints replaces the points.
func (e *Line3DEstimator) SetPoints(points []geometry.Point3D) error {
	if err := locked(e.Estimator); err != nil {
		return err
	}
	if err := checkData(true, len(points), Line3DSampleSize, "points"); err != nil {
		return err
	}
	model := line3DModel{points: points}
	if err := e.SetModel(model); err != nil {
		return err
	}
	err := e.SetRefiner(refiner[geometry.Line3D]{
		chart: func(initial geometry.Line3D) refine.Parameterization[geometry.Line3D] {
			return newLine3DChart(model, initial)
		},
	})
	if err != nil {
		return err
	}
	e.points = points
	return nil
}

type line3DModel struct {
	points []geometry.Point3D
}

func (m line3DModel) NumData() int    { return len(m.points) }
func (m line3DModel) SampleSize() int { return Line3DSampleSize }

func (m line3DModel) Fit(sample []int) []geometry.Line3D {
	l, ok := geometry.Line3DThrough(m.points[sample[0]], m.points[sample[1]])
	if !ok {
		return nil
	}
	return []geometry.Line3D{l}
}

func (m line3DModel) Residual(l geometry.Line3D, i int) float64 {
	return l.Distance(m.points[i])
}

// Refit is the line through the centroid along the principal direction of
// the points.
func (m line3DModel) Refit(indices []int) (geometry.Line3D, error) {
	sel := make([]geometry.Point3D, len(indices))
	for k, i := range indices {
		sel[k] = m.points[i]
	}
	c := geometry.Centroid3D(sel)
	a := mat.NewDense(len(sel), 3, nil)
	for k, p := range sel {
		d := p.Sub(c)
		a.SetRow(k, []float64{d.X, d.Y, d.Z})
	}
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThinV) {
		return geometry.Line3D{}, errors.New("line3d refit: SVD failed")
	}
	if svd.Values(nil)[0] == 0 {
		return geometry.Line3D{}, errors.New("line3d refit: points coincide")
	}
	var v mat.Dense
	svd.VTo(&v)
	l, ok := geometry.NewLine3D(c, geometry.NewPoint3D(v.At(0, 0), v.At(1, 0), v.At(2, 0)))
	if !ok {
		return geometry.Line3D{}, errors.New("line3d refit: degenerate direction")
	}
	return l, nil
}

func (m line3DModel) IsValid(l geometry.Line3D) bool {
	return l.IsFinite()
}

// line3DChart is a minimal local parameterization around a starting line
// (p0, d0) with u, v spanning the plane normal to d0. The parameters
// [a b α β] give the line through p0 + a*u + b*v along d0 + α*u + β*v,
// which covers every line not perpendicular to d0 without a gauge.
type line3DChart struct {
	model  line3DModel
	p0, d0 geometry.Point3D
	u, v   geometry.Point3D
}

func newLine3DChart(model line3DModel, initial geometry.Line3D) line3DChart {
	d0 := initial.Direction.Normalize()
	u := d0.Ortho()
	return line3DChart{
		model: model,
		p0:    initial.Point,
		d0:    d0,
		u:     u,
		v:     d0.Cross(u).Normalize(),
	}
}

func (c line3DChart) Params(l geometry.Line3D) []float64 {
	den := l.Direction.Dot(c.d0)
	if den == 0 {
		inf := math.Inf(1)
		return []float64{inf, inf, inf, inf}
	}
	x := l.At(c.p0.Sub(l.Point).Dot(c.d0) / den).Sub(c.p0)
	d := l.Direction.Mul(1 / den)
	return []float64{x.Dot(c.u), x.Dot(c.v), d.Dot(c.u), d.Dot(c.v)}
}

func (c line3DChart) line(v []float64) (p, d geometry.Point3D) {
	p = c.p0.Add(c.u.Mul(v[0])).Add(c.v.Mul(v[1]))
	d = c.d0.Add(c.u.Mul(v[2])).Add(c.v.Mul(v[3]))
	return p, d
}

func (c line3DChart) Model(v []float64) (geometry.Line3D, bool) {
	return geometry.NewLine3D(c.line(v))
}

func (c line3DChart) ResidualSize() int { return 3 }

// Residuals writes the perpendicular offset of point i.
func (c line3DChart) Residuals(dst, v []float64, i int) {
	p, d := c.line(v)
	d = d.Normalize()
	x := c.model.points[i].Sub(p)
	off := x.Sub(d.Mul(x.Dot(d)))
	dst[0], dst[1], dst[2] = off.X, off.Y, off.Z
}
