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

// LineCameraSampleSize is the number of 3D to 2D line matches that
// determine a projection matrix. Each match gives two equations.
const LineCameraSampleSize = 6

// DefaultLineCameraThreshold is the default line reprojection error of an
// inlier, in pixels.
const DefaultLineCameraThreshold = 1.0

// LineCameraEstimator fits a full pinhole camera to matches between world
// lines and image lines.
type LineCameraEstimator struct {
	*robust.Estimator[geometry.PinholeCamera]
	world       []geometry.Line3D
	image       []geometry.Line2D
	suggestions CameraSuggestions
}

// NewLineCameraEstimator returns a camera estimator over world and image
// lines.
func NewLineCameraEstimator(world []geometry.Line3D, image []geometry.Line2D, opts ...Option) (*LineCameraEstimator, error) {
	present := world != nil || image != nil
	if err := checkPairs(present, len(world), len(image), LineCameraSampleSize); err != nil {
		return nil, err
	}
	n := -1
	if present {
		n = len(world)
	}
	e, err := newEstimator[geometry.PinholeCamera](n, familyConfig(DefaultLineCameraThreshold), opts)
	if err != nil {
		return nil, err
	}
	est := &LineCameraEstimator{Estimator: e}
	if present {
		if err := est.SetLines(world, image); err != nil {
			return nil, err
		}
	}
	return est, nil
}

// Lines returns the matches.
func (e *LineCameraEstimator) Lines() (world []geometry.Line3D, image []geometry.Line2D) {
	return e.world, e.image
}

// SetLines replaces the matches. Image lines need not be normalized but
// must have a normal; world lines need a direction.
func (e *LineCameraEstimator) SetLines(world []geometry.Line3D, image []geometry.Line2D) error {
	if err := locked(e.Estimator); err != nil {
		return err
	}
	if err := checkPairs(true, len(world), len(image), LineCameraSampleSize); err != nil {
		return err
	}
	model := lineCameraModel{
		world: make([]geometry.Line3D, len(world)),
		image: make([]geometry.Line2D, len(image)),
	}
	for i := range world {
		w, ok := geometry.NewLine3D(world[i].Point, world[i].Direction)
		if !ok {
			return errors.Wrapf(robust.ErrInvalidArgument, "world line %d has no direction", i)
		}
		l, ok := image[i].Normalize()
		if !ok {
			return errors.Wrapf(robust.ErrInvalidArgument, "image line %d has no normal", i)
		}
		model.world[i], model.image[i] = w, l
	}
	if err := e.SetModel(model); err != nil {
		return err
	}
	err := e.SetRefiner(refiner[geometry.PinholeCamera]{
		par: lineCameraParams{model},
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
func (e *LineCameraEstimator) Suggestions() CameraSuggestions { return e.suggestions }

// SetSuggestions replaces the refinement suggestions.
func (e *LineCameraEstimator) SetSuggestions(s CameraSuggestions) error {
	if err := locked(e.Estimator); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	e.suggestions = s
	return nil
}

// lineCameraModel holds normalized copies of the matches.
type lineCameraModel struct {
	world []geometry.Line3D
	image []geometry.Line2D
}

func (m lineCameraModel) NumData() int    { return len(m.world) }
func (m lineCameraModel) SampleSize() int { return LineCameraSampleSize }

func (m lineCameraModel) Fit(sample []int) []geometry.PinholeCamera {
	c, err := m.solve(sample)
	if err != nil {
		return nil
	}
	return []geometry.PinholeCamera{c}
}

func (m lineCameraModel) Residual(c geometry.PinholeCamera, i int) float64 {
	var r [2]float64
	lineReprojectionResiduals(r[:], c, m.world[i], m.image[i])
	return math.Sqrt((r[0]*r[0] + r[1]*r[1]) / 2)
}

func (m lineCameraModel) Refit(indices []int) (geometry.PinholeCamera, error) {
	return m.solve(indices)
}

func (m lineCameraModel) solve(indices []int) (geometry.PinholeCamera, error) {
	world := make([]geometry.Line3D, len(indices))
	image := make([]geometry.Line2D, len(indices))
	for k, i := range indices {
		world[k], image[k] = m.world[i], m.image[i]
	}
	p, err := lineProjectionDLT(world, image)
	if err != nil {
		return geometry.PinholeCamera{}, err
	}
	c, ok := geometry.CameraFromMatrix(p)
	if !ok {
		return geometry.PinholeCamera{}, errors.New("line camera: singular projection matrix")
	}
	return c, nil
}

func (m lineCameraModel) IsValid(c geometry.PinholeCamera) bool {
	return c.IsFinite()
}

// anchors returns the two world points of l used by the solver and the
// residual.
func anchors(l geometry.Line3D) [2]geometry.Point3D {
	return [2]geometry.Point3D{l.Point, l.At(1)}
}

// lineReprojectionResiduals writes the signed distances from the
// projected anchors of x to the normalized image line u.
func lineReprojectionResiduals(dst []float64, c geometry.PinholeCamera, x geometry.Line3D, u geometry.Line2D) {
	for k, a := range anchors(x) {
		q, ok := c.Project(a)
		if !ok {
			dst[0], dst[1] = math.Inf(1), math.Inf(1)
			return
		}
		dst[k] = u.SignedDistance(q)
	}
}

// lineProjectionDLT estimates P from lᵀ P X = 0 for both anchors X of
// every world line. World anchors are normalized as points; image lines
// are normalized through their foot points and mapped by T⁻ᵀ. Then
// P = T_img⁻¹ P̃ T_world.
func lineProjectionDLT(world []geometry.Line3D, image []geometry.Line2D) (*mat.Dense, error) {
	points := make([]geometry.Point3D, 0, 2*len(world))
	for _, l := range world {
		a := anchors(l)
		points = append(points, a[0], a[1])
	}
	tw, nw := linalg.Normalize3D(points)

	feet := make([]geometry.Point2D, len(image))
	for i, l := range image {
		feet[i] = l.Normal().Mul(-l.C)
	}
	ti, _ := linalg.Normalize2D(feet)
	var tiInv mat.Dense
	if err := tiInv.Inverse(ti); err != nil {
		return nil, errors.Wrap(err, "line projection")
	}

	a := mat.NewDense(2*len(image), 12, nil)
	row := make([]float64, 12)
	var nl mat.VecDense
	for k, l := range image {
		nl.MulVec(tiInv.T(), mat.NewVecDense(3, []float64{l.A, l.B, l.C}))
		nl.ScaleVec(1/math.Hypot(nl.AtVec(0), nl.AtVec(1)), &nl)
		for j := 0; j < 2; j++ {
			x := nw[2*k+j]
			hx := [4]float64{x.X, x.Y, x.Z, 1}
			for r := 0; r < 3; r++ {
				for c := 0; c < 4; c++ {
					row[4*r+c] = nl.AtVec(r) * hx[c]
				}
			}
			a.SetRow(2*k+j, row)
		}
	}
	h, ok := linalg.NullVector(a)
	if !ok {
		return nil, errors.New("line projection: degenerate configuration")
	}
	var tmp, p mat.Dense
	tmp.Mul(&tiInv, mat.NewDense(3, 4, h))
	p.Mul(&tmp, tw)
	return &p, nil
}

// lineCameraParams refines the camera vector of cameraParams against line
// matches.
type lineCameraParams struct {
	model lineCameraModel
}

func (p lineCameraParams) Params(c geometry.PinholeCamera) []float64 {
	return cameraParams{}.Params(c)
}

func (p lineCameraParams) Model(v []float64) (geometry.PinholeCamera, bool) {
	c := cameraFromParams(v)
	return c, c.IsFinite()
}

func (p lineCameraParams) ResidualSize() int { return 2 }

func (p lineCameraParams) Residuals(dst, v []float64, i int) {
	lineReprojectionResiduals(dst, cameraFromParams(v), p.model.world[i], p.model.image[i])
}
