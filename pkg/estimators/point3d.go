package estimators

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"robust-geometry/internal/linalg"
	"robust-geometry/pkg/geometry"
	"robust-geometry/pkg/robust"
)

// Point3DSampleSize is the number of planes that determine a point.
const Point3DSampleSize = 3

// DefaultPoint3DThreshold is the default point to plane distance of an inlier.
const DefaultPoint3DThreshold = 1e-3

// Point3DEstimator finds the point common to a set of planes.
type Point3DEstimator struct {
	*robust.Estimator[geometry.Point3D]
	planes []geometry.Plane
}

// NewPoint3DEstimator returns a point estimator over planes.
func NewPoint3DEstimator(planes []geometry.Plane, opts ...Option) (*Point3DEstimator, error) {
	if err := checkData(planes != nil, len(planes), Point3DSampleSize, "planes"); err != nil {
		return nil, err
	}
	n := -1
	if planes != nil {
		n = len(planes)
	}
	e, err := newEstimator[geometry.Point3D](n, familyConfig(DefaultPoint3DThreshold), opts)
	if err != nil {
		return nil, err
	}
	est := &Point3DEstimator{Estimator: e}
	if planes != nil {
		if err := est.SetPlanes(planes); err != nil {
			return nil, err
		}
	}
	return est, nil
}

// Planes returns the planes being intersected.
func (e *Point3DEstimator) Planes() []geometry.Plane { return e.planes }

// SetPlanes replaces the planes. They are normalized internally so that
// residuals are Euclidean distances.
func (e *Point3DEstimator) SetPlanes(planes []geometry.Plane) error {
	if err := locked(e.Estimator); err != nil {
		return err
	}
	if err := checkData(true, len(planes), Point3DSampleSize, "planes"); err != nil {
		return err
	}
	unit := make([]geometry.Plane, len(planes))
	for i, p := range planes {
		n, ok := p.Normalize()
		if !ok {
			return errors.Wrapf(robust.ErrInvalidArgument, "plane %d has no normal", i)
		}
		unit[i] = n
	}
	model := point3DModel{planes: unit}
	if err := e.SetModel(model); err != nil {
		return err
	}
	if err := e.SetRefiner(refiner[geometry.Point3D]{par: point3DParams{model}}); err != nil {
		return err
	}
	e.planes = planes
	return nil
}

type point3DModel struct {
	planes []geometry.Plane
}

func (m point3DModel) NumData() int    { return len(m.planes) }
func (m point3DModel) SampleSize() int { return Point3DSampleSize }

func (m point3DModel) Fit(sample []int) []geometry.Point3D {
	x, ok := geometry.IntersectPlanes(m.planes[sample[0]], m.planes[sample[1]], m.planes[sample[2]])
	if !ok {
		return nil
	}
	return []geometry.Point3D{x}
}

func (m point3DModel) Residual(x geometry.Point3D, i int) float64 {
	return m.planes[i].Distance(x)
}

// Refit minimizes the squared distances to the planes.
func (m point3DModel) Refit(indices []int) (geometry.Point3D, error) {
	a := mat.NewDense(len(indices), 3, nil)
	b := mat.NewVecDense(len(indices), nil)
	for k, i := range indices {
		p := m.planes[i]
		a.SetRow(k, []float64{p.A, p.B, p.C})
		b.SetVec(k, -p.D)
	}
	var qr mat.QR
	qr.Factorize(a)
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, b); err != nil {
		return geometry.Point3D{}, errors.Wrap(err, "point refit")
	}
	return geometry.NewPoint3D(x.AtVec(0), x.AtVec(1), x.AtVec(2)), nil
}

func (m point3DModel) IsValid(x geometry.Point3D) bool {
	return geometry.IsFinite3D(x)
}

type point3DParams struct {
	model point3DModel
}

func (p point3DParams) Params(x geometry.Point3D) []float64 { return []float64{x.X, x.Y, x.Z} }

func (p point3DParams) Model(v []float64) (geometry.Point3D, bool) {
	return geometry.NewPoint3D(v[0], v[1], v[2]), linalg.Finite(v...)
}

func (p point3DParams) ResidualSize() int { return 1 }

func (p point3DParams) Residuals(dst, v []float64, i int) {
	dst[0] = p.model.planes[i].SignedDistance(geometry.NewPoint3D(v[0], v[1], v[2]))
}
