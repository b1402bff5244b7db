package estimators

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"robust-geometry/internal/linalg"
	"robust-geometry/pkg/geometry"
	"robust-geometry/pkg/robust"
)

// HomographySampleSize is the number of correspondences that determine a
// homography.
const HomographySampleSize = 4

// DefaultHomographyThreshold is the default transfer error of an inlier, in
// destination units.
const DefaultHomographyThreshold = 1.0

// HomographyEstimator fits a 2D projective transform mapping src onto dst.
type HomographyEstimator struct {
	*robust.Estimator[geometry.ProjectiveTransform]
	src, dst []geometry.Point2D
}

// NewHomographyEstimator returns a homography estimator over point pairs.
func NewHomographyEstimator(src, dst []geometry.Point2D, opts ...Option) (*HomographyEstimator, error) {
	present := src != nil || dst != nil
	if err := checkPairs(present, len(src), len(dst), HomographySampleSize); err != nil {
		return nil, err
	}
	n := -1
	if present {
		n = len(src)
	}
	e, err := newEstimator[geometry.ProjectiveTransform](n, familyConfig(DefaultHomographyThreshold), opts)
	if err != nil {
		return nil, err
	}
	est := &HomographyEstimator{Estimator: e}
	if present {
		if err := est.SetPoints(src, dst); err != nil {
			return nil, err
		}
	}
	return est, nil
}

// Points returns the correspondences.
func (e *HomographyEstimator) Points() (src, dst []geometry.Point2D) { return e.src, e.dst }

// SetPoints replaces the correspondences.
func (e *HomographyEstimator) SetPoints(src, dst []geometry.Point2D) error {
	if err := locked(e.Estimator); err != nil {
		return err
	}
	if err := checkPairs(true, len(src), len(dst), HomographySampleSize); err != nil {
		return err
	}
	model := homographyModel{src: src, dst: dst}
	if err := e.SetModel(model); err != nil {
		return err
	}
	err := e.SetRefiner(refiner[geometry.ProjectiveTransform]{
		par:   homographyParams{model},
		terms: gauge[geometry.ProjectiveTransform],
	})
	if err != nil {
		return err
	}
	e.src, e.dst = src, dst
	return nil
}

type homographyModel struct {
	src, dst []geometry.Point2D
}

func (m homographyModel) NumData() int    { return len(m.src) }
func (m homographyModel) SampleSize() int { return HomographySampleSize }

func (m homographyModel) Fit(sample []int) []geometry.ProjectiveTransform {
	src := make([]geometry.Point2D, len(sample))
	dst := make([]geometry.Point2D, len(sample))
	for k, i := range sample {
		src[k], dst[k] = m.src[i], m.dst[i]
	}
	if geometry.AnyCollinear(src, collinearTolerance) || geometry.AnyCollinear(dst, collinearTolerance) {
		return nil
	}
	if !geometry.ConsistentOrientation(src, dst) {
		return nil
	}
	h, err := dlt(src, dst)
	if err != nil {
		return nil
	}
	return []geometry.ProjectiveTransform{h}
}

func (m homographyModel) Residual(h geometry.ProjectiveTransform, i int) float64 {
	q, ok := h.Apply(m.src[i])
	if !ok {
		return math.Inf(1)
	}
	return geometry.Distance2D(q, m.dst[i])
}

func (m homographyModel) Refit(indices []int) (geometry.ProjectiveTransform, error) {
	src := make([]geometry.Point2D, len(indices))
	dst := make([]geometry.Point2D, len(indices))
	for k, i := range indices {
		src[k], dst[k] = m.src[i], m.dst[i]
	}
	return dlt(src, dst)
}

func (m homographyModel) IsValid(h geometry.ProjectiveTransform) bool {
	return h.IsFinite()
}

// IsSuitable rejects singular homographies.
func (m homographyModel) IsSuitable(h geometry.ProjectiveTransform) bool {
	_, ok := h.Inverse()
	return ok
}

// dlt is the normalized direct linear transform: each correspondence gives
// two rows of A h = 0 on Hartley normalized points, and the result is
// denormalized as H = T_dst⁻¹ H̃ T_src.
func dlt(src, dst []geometry.Point2D) (geometry.ProjectiveTransform, error) {
	ts, ns := linalg.Normalize2D(src)
	td, nd := linalg.Normalize2D(dst)
	a := mat.NewDense(2*len(src), 9, nil)
	for k := range ns {
		x, y := ns[k].X, ns[k].Y
		u, v := nd[k].X, nd[k].Y
		a.SetRow(2*k, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*k+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}
	h, ok := linalg.NullVector(a)
	if !ok {
		return geometry.ProjectiveTransform{}, errors.New("homography: degenerate configuration")
	}
	var tdInv, tmp, full mat.Dense
	if err := tdInv.Inverse(td); err != nil {
		return geometry.ProjectiveTransform{}, errors.Wrap(err, "homography")
	}
	tmp.Mul(&tdInv, mat.NewDense(3, 3, h))
	full.Mul(&tmp, ts)
	out, ok := geometry.ProjectiveFromMatrix(&full).Normalize()
	if !ok {
		return geometry.ProjectiveTransform{}, errors.New("homography: vanishing coefficients")
	}
	return out, nil
}

// homographyParams refines the nine coefficients on the 2D transfer error.
type homographyParams struct {
	model homographyModel
}

func (p homographyParams) Params(h geometry.ProjectiveTransform) []float64 { return h.Params() }

func (p homographyParams) Model(v []float64) (geometry.ProjectiveTransform, bool) {
	var h geometry.ProjectiveTransform
	copy(h[:], v)
	return h.Normalize()
}

func (p homographyParams) ResidualSize() int { return 2 }

func (p homographyParams) Residuals(dst, v []float64, i int) {
	var h geometry.ProjectiveTransform
	copy(h[:], v)
	q, ok := h.Apply(p.model.src[i])
	if !ok {
		dst[0], dst[1] = math.Inf(1), math.Inf(1)
		return
	}
	d := p.model.dst[i]
	dst[0] = q.X - d.X
	dst[1] = q.Y - d.Y
}
