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

// CameraSampleSize is the number of 3D to 2D matches that determine a
// projection matrix.
const CameraSampleSize = 6

// DefaultCameraThreshold is the default reprojection error of an inlier,
// in pixels.
const DefaultCameraThreshold = 1.0

// DefaultSuggestionWeight is used for suggestions with a zero weight.
const DefaultSuggestionWeight = 1.0

// Suggestion is a soft prior on part of a refined camera.
type Suggestion[T any] struct {
	Enabled bool
	Value   T
	// Weight scales the penalty. Zero means DefaultSuggestionWeight.
	Weight float64
}

func (s Suggestion[T]) weight() float64 {
	if s.Weight == 0 {
		return DefaultSuggestionWeight
	}
	return s.Weight
}

// CameraSuggestions bias refinement toward known camera properties.
// Suggestions only take effect when the result is refined.
type CameraSuggestions struct {
	Skewness       Suggestion[float64]
	PrincipalPoint Suggestion[geometry.Point2D]
	// FocalLength is suggested for the horizontal focal length.
	FocalLength Suggestion[float64]
	// AspectRatio is FocalY / FocalX.
	AspectRatio Suggestion[float64]
	Rotation    Suggestion[geometry.Rotation]
	Center      Suggestion[geometry.Point3D]
}

// Any reports whether at least one suggestion is enabled.
func (s CameraSuggestions) Any() bool {
	return s.Skewness.Enabled || s.PrincipalPoint.Enabled || s.FocalLength.Enabled ||
		s.AspectRatio.Enabled || s.Rotation.Enabled || s.Center.Enabled
}

// Validate checks weights and values.
func (s CameraSuggestions) Validate() error {
	weights := []struct {
		name   string
		weight float64
	}{
		{"skewness", s.Skewness.Weight},
		{"principal point", s.PrincipalPoint.Weight},
		{"focal length", s.FocalLength.Weight},
		{"aspect ratio", s.AspectRatio.Weight},
		{"rotation", s.Rotation.Weight},
		{"center", s.Center.Weight},
	}
	for _, w := range weights {
		if w.weight < 0 || !linalg.Finite(w.weight) {
			return errors.Wrapf(robust.ErrInvalidArgument, "%s suggestion weight %v", w.name, w.weight)
		}
	}
	if s.Skewness.Enabled && !linalg.Finite(s.Skewness.Value) {
		return errors.Wrap(robust.ErrInvalidArgument, "skewness suggestion is not finite")
	}
	if s.PrincipalPoint.Enabled && !geometry.IsFinite2D(s.PrincipalPoint.Value) {
		return errors.Wrap(robust.ErrInvalidArgument, "principal point suggestion is not finite")
	}
	if s.FocalLength.Enabled && (s.FocalLength.Value <= 0 || !linalg.Finite(s.FocalLength.Value)) {
		return errors.Wrapf(robust.ErrInvalidArgument, "focal length suggestion %v", s.FocalLength.Value)
	}
	if s.AspectRatio.Enabled && (s.AspectRatio.Value <= 0 || !linalg.Finite(s.AspectRatio.Value)) {
		return errors.Wrapf(robust.ErrInvalidArgument, "aspect ratio suggestion %v", s.AspectRatio.Value)
	}
	if s.Rotation.Enabled {
		r := s.Rotation.Value
		if !linalg.Finite(r[:]...) || math.Abs(mat.Det(r.Matrix())-1) > 1e-6 {
			return errors.Wrap(robust.ErrInvalidArgument, "rotation suggestion is not a rotation")
		}
	}
	if s.Center.Enabled && !geometry.IsFinite3D(s.Center.Value) {
		return errors.Wrap(robust.ErrInvalidArgument, "center suggestion is not finite")
	}
	return nil
}

// terms returns the penalty blocks over the camera parameter vector
// [fx fy skew cx cy rx ry rz Cx Cy Cz].
func (s CameraSuggestions) terms() []refine.Term {
	var out []refine.Term
	if s.Skewness.Enabled {
		out = append(out, refine.Prior("skewness", []int{2}, []float64{s.Skewness.Value}, s.Skewness.weight()))
	}
	if s.PrincipalPoint.Enabled {
		pp := s.PrincipalPoint.Value
		out = append(out, refine.Prior("principal point", []int{3, 4}, []float64{pp.X, pp.Y}, s.PrincipalPoint.weight()))
	}
	if s.FocalLength.Enabled {
		out = append(out, refine.Prior("focal length", []int{0}, []float64{s.FocalLength.Value}, s.FocalLength.weight()))
	}
	if s.AspectRatio.Enabled {
		target := s.AspectRatio.Value
		out = append(out, refine.Term{
			Name:   "aspect ratio",
			Size:   1,
			Weight: s.AspectRatio.weight(),
			Eval: func(dst, p []float64) {
				dst[0] = p[1]/p[0] - target
			},
		})
	}
	if s.Rotation.Enabled {
		inv := s.Rotation.Value.Transpose()
		out = append(out, refine.Term{
			Name:   "rotation",
			Size:   3,
			Weight: s.Rotation.weight(),
			Eval: func(dst, p []float64) {
				r := geometry.RotationFromAxisAngle(geometry.NewPoint3D(p[5], p[6], p[7]))
				w := inv.Mul(r).AxisAngle()
				dst[0], dst[1], dst[2] = w.X, w.Y, w.Z
			},
		})
	}
	if s.Center.Enabled {
		c := s.Center.Value
		out = append(out, refine.Prior("center", []int{8, 9, 10}, []float64{c.X, c.Y, c.Z}, s.Center.weight()))
	}
	return out
}

// CameraEstimator fits a full pinhole camera to 3D to 2D matches by the
// direct linear transform.
type CameraEstimator struct {
	*robust.Estimator[geometry.PinholeCamera]
	world       []geometry.Point3D
	image       []geometry.Point2D
	suggestions CameraSuggestions
}

// NewCameraEstimator returns a camera estimator over world and image
// points.
func NewCameraEstimator(world []geometry.Point3D, image []geometry.Point2D, opts ...Option) (*CameraEstimator, error) {
	present := world != nil || image != nil
	if err := checkPairs(present, len(world), len(image), CameraSampleSize); err != nil {
		return nil, err
	}
	n := -1
	if present {
		n = len(world)
	}
	e, err := newEstimator[geometry.PinholeCamera](n, familyConfig(DefaultCameraThreshold), opts)
	if err != nil {
		return nil, err
	}
	est := &CameraEstimator{Estimator: e}
	if present {
		if err := est.SetPoints(world, image); err != nil {
			return nil, err
		}
	}
	return est, nil
}

// Points returns the matches.
func (e *CameraEstimator) Points() (world []geometry.Point3D, image []geometry.Point2D) {
	return e.world, e.image
}

// SetPoints replaces the matches.
func (e *CameraEstimator) SetPoints(world []geometry.Point3D, image []geometry.Point2D) error {
	if err := locked(e.Estimator); err != nil {
		return err
	}
	if err := checkPairs(true, len(world), len(image), CameraSampleSize); err != nil {
		return err
	}
	model := cameraModel{world: world, image: image}
	if err := e.SetModel(model); err != nil {
		return err
	}
	err := e.SetRefiner(refiner[geometry.PinholeCamera]{
		par: cameraParams{model},
		terms: func(geometry.PinholeCamera) []refine.Term {
			return e.suggestions.terms()
		},
	})
	if err != nil {
		return err
	}
	e.world, e.image = world, image
	return nil
}

// Suggestions returns the refinement suggestions.
func (e *CameraEstimator) Suggestions() CameraSuggestions { return e.suggestions }

// SetSuggestions replaces the refinement suggestions.
func (e *CameraEstimator) SetSuggestions(s CameraSuggestions) error {
	if err := locked(e.Estimator); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	e.suggestions = s
	return nil
}

type cameraModel struct {
	world []geometry.Point3D
	image []geometry.Point2D
}

func (m cameraModel) NumData() int    { return len(m.world) }
func (m cameraModel) SampleSize() int { return CameraSampleSize }

func (m cameraModel) Fit(sample []int) []geometry.PinholeCamera {
	c, err := m.solve(sample)
	if err != nil {
		return nil
	}
	return []geometry.PinholeCamera{c}
}

func (m cameraModel) Residual(c geometry.PinholeCamera, i int) float64 {
	return reprojection(c, m.world[i], m.image[i])
}

func (m cameraModel) Refit(indices []int) (geometry.PinholeCamera, error) {
	return m.solve(indices)
}

func (m cameraModel) solve(indices []int) (geometry.PinholeCamera, error) {
	world := make([]geometry.Point3D, len(indices))
	image := make([]geometry.Point2D, len(indices))
	for k, i := range indices {
		world[k], image[k] = m.world[i], m.image[i]
	}
	p, err := projectionDLT(world, image)
	if err != nil {
		return geometry.PinholeCamera{}, err
	}
	c, ok := geometry.CameraFromMatrix(p)
	if !ok {
		return geometry.PinholeCamera{}, errors.New("camera: singular projection matrix")
	}
	return c, nil
}

func (m cameraModel) IsValid(c geometry.PinholeCamera) bool {
	return c.IsFinite()
}

// reprojection is the pixel distance between the projection of x and u.
func reprojection(c geometry.PinholeCamera, x geometry.Point3D, u geometry.Point2D) float64 {
	q, ok := c.Project(x)
	if !ok {
		return math.Inf(1)
	}
	return geometry.Distance2D(q, u)
}

// projectionDLT estimates the 3x4 matrix P with u ~ P x from normalized
// data, then denormalizes P = T_img⁻¹ P̃ T_world. Coplanar world points
// leave a null space of more than one dimension and fail.
func projectionDLT(world []geometry.Point3D, image []geometry.Point2D) (*mat.Dense, error) {
	tw, nw := linalg.Normalize3D(world)
	ti, ni := linalg.Normalize2D(image)
	a := mat.NewDense(2*len(nw), 12, nil)
	for k := range nw {
		x, y, z := nw[k].X, nw[k].Y, nw[k].Z
		u, v := ni[k].X, ni[k].Y
		a.SetRow(2*k, []float64{x, y, z, 1, 0, 0, 0, 0, -u * x, -u * y, -u * z, -u})
		a.SetRow(2*k+1, []float64{0, 0, 0, 0, x, y, z, 1, -v * x, -v * y, -v * z, -v})
	}
	h, ok := linalg.NullVector(a)
	if !ok {
		return nil, errors.New("projection: degenerate configuration")
	}
	var tiInv, tmp, p mat.Dense
	if err := tiInv.Inverse(ti); err != nil {
		return nil, errors.Wrap(err, "projection")
	}
	tmp.Mul(&tiInv, mat.NewDense(3, 4, h))
	p.Mul(&tmp, tw)
	return &p, nil
}

// cameraParams refines [fx fy skew cx cy rx ry rz Cx Cy Cz] with the
// rotation as an axis-angle vector.
type cameraParams struct {
	model cameraModel
}

func (p cameraParams) Params(c geometry.PinholeCamera) []float64 {
	k := c.Intrinsics
	w := c.Rotation.AxisAngle()
	return []float64{
		k.FocalX, k.FocalY, k.Skew, k.PrincipalX, k.PrincipalY,
		w.X, w.Y, w.Z,
		c.Center.X, c.Center.Y, c.Center.Z,
	}
}

func (p cameraParams) Model(v []float64) (geometry.PinholeCamera, bool) {
	c := cameraFromParams(v)
	return c, c.IsFinite()
}

func cameraFromParams(v []float64) geometry.PinholeCamera {
	return geometry.PinholeCamera{
		Intrinsics: geometry.Intrinsics{
			FocalX: v[0], FocalY: v[1], Skew: v[2],
			PrincipalX: v[3], PrincipalY: v[4],
		},
		Rotation: geometry.RotationFromAxisAngle(geometry.NewPoint3D(v[5], v[6], v[7])),
		Center:   geometry.NewPoint3D(v[8], v[9], v[10]),
	}
}

func (p cameraParams) ResidualSize() int { return 2 }

func (p cameraParams) Residuals(dst, v []float64, i int) {
	reprojectionResiduals(dst, cameraFromParams(v), p.model.world[i], p.model.image[i])
}

// reprojectionResiduals writes the 2D reprojection error of one match.
func reprojectionResiduals(dst []float64, c geometry.PinholeCamera, x geometry.Point3D, u geometry.Point2D) {
	q, ok := c.Project(x)
	if !ok {
		dst[0], dst[1] = math.Inf(1), math.Inf(1)
		return
	}
	dst[0] = q.X - u.X
	dst[1] = q.Y - u.Y
}
