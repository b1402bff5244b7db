package estimators

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"robust-geometry/internal/linalg"
	"robust-geometry/pkg/geometry"
	"robust-geometry/pkg/refine"
	"robust-geometry/pkg/robust"
)

// PlaneSampleSize is the number of points that determine a plane.
const PlaneSampleSize = 3

// DefaultPlaneThreshold is the default point to plane distance of an inlier.
const DefaultPlaneThreshold = 1e-3

// PlaneEstimator fits a plane to 3D points.
type PlaneEstimator struct {
	*robust.Estimator[geometry.Plane]
	points []geometry.Point3D
}

// NewPlaneEstimator returns a plane estimator over points.
func NewPlaneEstimator(points []geometry.Point3D, opts ...Option) (*PlaneEstimator, error) {
	if err := checkData(points != nil, len(points), PlaneSampleSize, "points"); err != nil {
		return nil, err
	}
	n := -1
	if points != nil {
		n = len(points)
	}
	e, err := newEstimator[geometry.Plane](n, familyConfig(DefaultPlaneThreshold), opts)
	if err != nil {
		return nil, err
	}
	est := &PlaneEstimator{Estimator: e}
	if points != nil {
		if err := est.SetPoints(points); err != nil {
			return nil, err
		}
	}
	return est, nil
}

// Points returns the points being fitted.
func (e *PlaneEstimator) Points() []geometry.Point3D { return e.points }

// SetPoints replaces the points.
func (e *PlaneEstimator) SetPoints(points []geometry.Point3D) error {
	if err := locked(e.Estimator); err != nil {
		return err
	}
	if err := checkData(true, len(points), PlaneSampleSize, "points"); err != nil {
		return err
	}
	model := planeModel{points: points}
	if err := e.SetModel(model); err != nil {
		return err
	}
	err := e.SetRefiner(refiner[geometry.Plane]{
		par: planeParams{model},
		terms: func(geometry.Plane) []refine.Term {
			return []refine.Term{refine.UnitNorm(1, 0, 1, 2)}
		},
	})
	if err != nil {
		return err
	}
	e.points = points
	return nil
}

type planeModel struct {
	points []geometry.Point3D
}

func (m planeModel) NumData() int    { return len(m.points) }
func (m planeModel) SampleSize() int { return PlaneSampleSize }

func (m planeModel) Fit(sample []int) []geometry.Plane {
	p, ok := geometry.PlaneThrough(m.points[sample[0]], m.points[sample[1]], m.points[sample[2]])
	if !ok {
		return nil
	}
	return []geometry.Plane{p}
}

func (m planeModel) Residual(p geometry.Plane, i int) float64 {
	return p.Distance(m.points[i])
}

// Refit is the total least squares plane through the centroid.
func (m planeModel) Refit(indices []int) (geometry.Plane, error) {
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
	n, ok := linalg.NullVector(a)
	if !ok {
		return geometry.Plane{}, errors.New("plane refit: points are collinear")
	}
	normal := geometry.NewPoint3D(n[0], n[1], n[2])
	p, ok := geometry.PlaneFromPointNormal(c, normal)
	if !ok {
		return geometry.Plane{}, errors.New("plane refit: degenerate normal")
	}
	return p, nil
}

func (m planeModel) IsValid(p geometry.Plane) bool {
	return linalg.Finite(p.A, p.B, p.C, p.D)
}

// planeParams refines the homogeneous coefficients; the normal is held near
// unit length by a gauge term.
type planeParams struct {
	model planeModel
}

func (p planeParams) Params(pl geometry.Plane) []float64 {
	return []float64{pl.A, pl.B, pl.C, pl.D}
}

func (p planeParams) Model(v []float64) (geometry.Plane, bool) {
	return geometry.NewPlane(v[0], v[1], v[2], v[3])
}

func (p planeParams) ResidualSize() int { return 1 }

func (p planeParams) Residuals(dst, v []float64, i int) {
	x := p.model.points[i]
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if n == 0 {
		dst[0] = math.Inf(1)
		return
	}
	dst[0] = (v[0]*x.X + v[1]*x.Y + v[2]*x.Z + v[3]) / n
}
