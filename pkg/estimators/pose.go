package estimators

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"robust-geometry/internal/linalg"
	"robust-geometry/pkg/geometry"
	"robust-geometry/pkg/robust"
)

// PoseSampleSize is the number of matches used by the calibrated DLT.
const PoseSampleSize = 6

// DefaultPoseThreshold is the default reprojection error of an inlier, in
// pixels.
const DefaultPoseThreshold = 1.0

// PoseEstimator fits the rotation and center of a camera with known
// intrinsics.
type PoseEstimator struct {
	*robust.Estimator[geometry.PinholeCamera]
	world      []geometry.Point3D
	image      []geometry.Point2D
	intrinsics geometry.Intrinsics
}

// NewPoseEstimator returns a pose estimator over world and image points
// for a camera with intrinsics k.
func NewPoseEstimator(world []geometry.Point3D, image []geometry.Point2D, k geometry.Intrinsics, opts ...Option) (*PoseEstimator, error) {
	if err := validIntrinsics(k); err != nil {
		return nil, err
	}
	present := world != nil || image != nil
	if err := checkPairs(present, len(world), len(image), PoseSampleSize); err != nil {
		return nil, err
	}
	n := -1
	if present {
		n = len(world)
	}
	e, err := newEstimator[geometry.PinholeCamera](n, familyConfig(DefaultPoseThreshold), opts)
	if err != nil {
		return nil, err
	}
	est := &PoseEstimator{Estimator: e, intrinsics: k}
	if present {
		if err := est.SetPoints(world, image); err != nil {
			return nil, err
		}
	}
	return est, nil
}

func validIntrinsics(k geometry.Intrinsics) error {
	if !linalg.Finite(k.FocalX, k.FocalY, k.Skew, k.PrincipalX, k.PrincipalY) {
		return errors.Wrap(robust.ErrInvalidArgument, "intrinsics are not finite")
	}
	if k.FocalX == 0 || k.FocalY == 0 {
		return errors.Wrap(robust.ErrInvalidArgument, "zero focal length")
	}
	return nil
}

// Points returns the matches.
func (e *PoseEstimator) Points() (world []geometry.Point3D, image []geometry.Point2D) {
	return e.world, e.image
}

// Intrinsics returns the known camera intrinsics.
func (e *PoseEstimator) Intrinsics() geometry.Intrinsics { return e.intrinsics }

// SetPoints replaces the matches.
func (e *PoseEstimator) SetPoints(world []geometry.Point3D, image []geometry.Point2D) error {
	if err := locked(e.Estimator); err != nil {
		return err
	}
	if err := checkPairs(true, len(world), len(image), PoseSampleSize); err != nil {
		return err
	}
	if err := e.bind(world, image, e.intrinsics); err != nil {
		return err
	}
	e.world, e.image = world, image
	return nil
}

// SetIntrinsics replaces the known intrinsics.
func (e *PoseEstimator) SetIntrinsics(k geometry.Intrinsics) error {
	if err := locked(e.Estimator); err != nil {
		return err
	}
	if err := validIntrinsics(k); err != nil {
		return err
	}
	if e.world != nil {
		if err := e.bind(e.world, e.image, k); err != nil {
			return err
		}
	}
	e.intrinsics = k
	return nil
}

func (e *PoseEstimator) bind(world []geometry.Point3D, image []geometry.Point2D, k geometry.Intrinsics) error {
	normalized := make([]geometry.Point2D, len(image))
	for i, u := range image {
		normalized[i] = k.Normalize(u)
	}
	model := poseModel{world: world, image: image, normalized: normalized, k: k}
	if err := e.SetModel(model); err != nil {
		return err
	}
	return e.SetRefiner(refiner[geometry.PinholeCamera]{par: poseParams{model}})
}

type poseModel struct {
	world      []geometry.Point3D
	image      []geometry.Point2D
	normalized []geometry.Point2D
	k          geometry.Intrinsics
}

func (m poseModel) NumData() int    { return len(m.world) }
func (m poseModel) SampleSize() int { return PoseSampleSize }

func (m poseModel) Fit(sample []int) []geometry.PinholeCamera {
	c, err := m.solve(sample)
	if err != nil {
		return nil
	}
	return []geometry.PinholeCamera{c}
}

func (m poseModel) Residual(c geometry.PinholeCamera, i int) float64 {
	return reprojection(c, m.world[i], m.image[i])
}

func (m poseModel) Refit(indices []int) (geometry.PinholeCamera, error) {
	return m.solve(indices)
}

// solve runs the DLT on normalized image coordinates, where P ~ [R | t],
// and projects the left block onto the nearest rotation.
func (m poseModel) solve(indices []int) (geometry.PinholeCamera, error) {
	world := make([]geometry.Point3D, len(indices))
	image := make([]geometry.Point2D, len(indices))
	for k, i := range indices {
		world[k], image[k] = m.world[i], m.normalized[i]
	}
	p, err := projectionDLT(world, image)
	if err != nil {
		return geometry.PinholeCamera{}, err
	}
	left := p.Slice(0, 3, 0, 3).(*mat.Dense)
	if mat.Det(left) < 0 {
		p.Scale(-1, p)
	}

	var svd mat.SVD
	if !svd.Factorize(left, mat.SVDNone) {
		return geometry.PinholeCamera{}, errors.New("pose: rotation factorization failed")
	}
	scale := stat.Mean(svd.Values(nil), nil)
	if scale == 0 || !linalg.Finite(scale) {
		return geometry.PinholeCamera{}, errors.New("pose: vanishing scale")
	}
	r, ok := geometry.RotationFromMatrix(left)
	if !ok {
		return geometry.PinholeCamera{}, errors.New("pose: rank deficient rotation block")
	}
	t := geometry.NewPoint3D(p.At(0, 3), p.At(1, 3), p.At(2, 3)).Mul(1 / scale)
	c := geometry.PinholeCamera{
		Intrinsics: m.k,
		Rotation:   r,
		Center:     r.Transpose().Apply(t).Mul(-1),
	}
	if !c.IsFinite() {
		return geometry.PinholeCamera{}, errors.New("pose: non-finite camera")
	}
	return c, nil
}

func (m poseModel) IsValid(c geometry.PinholeCamera) bool {
	return c.IsFinite()
}

// poseParams refines [rx ry rz Cx Cy Cz] with the intrinsics held fixed.
type poseParams struct {
	model poseModel
}

func (p poseParams) Params(c geometry.PinholeCamera) []float64 {
	w := c.Rotation.AxisAngle()
	return []float64{w.X, w.Y, w.Z, c.Center.X, c.Center.Y, c.Center.Z}
}

func (p poseParams) Model(v []float64) (geometry.PinholeCamera, bool) {
	c := p.camera(v)
	return c, c.IsFinite()
}

func (p poseParams) camera(v []float64) geometry.PinholeCamera {
	return geometry.PinholeCamera{
		Intrinsics: p.model.k,
		Rotation:   geometry.RotationFromAxisAngle(geometry.NewPoint3D(v[0], v[1], v[2])),
		Center:     geometry.NewPoint3D(v[3], v[4], v[5]),
	}
}

func (p poseParams) ResidualSize() int { return 2 }

func (p poseParams) Residuals(dst, v []float64, i int) {
	reprojectionResiduals(dst, p.camera(v), p.model.world[i], p.model.image[i])
}
