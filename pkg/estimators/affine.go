package estimators

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"robust-geometry/pkg/geometry"
	"robust-geometry/pkg/robust"
)

// AffineSampleSize is the number of correspondences that determine an
// affine transform.
const AffineSampleSize = 3

// DefaultAffineThreshold is the default transfer error of an inlier, in
// destination units.
const DefaultAffineThreshold = 1.0

// collinearTolerance rejects samples whose triangle is too thin to pin down
// a transform.
const collinearTolerance = 1e-8

// AffineEstimator fits a 2D affine transform mapping src onto dst.
type AffineEstimator struct {
	*robust.Estimator[geometry.AffineTransform]
	src, dst []geometry.Point2D
}

// NewAffineEstimator returns an affine estimator over point pairs.
func NewAffineEstimator(src, dst []geometry.Point2D, opts ...Option) (*AffineEstimator, error) {
	present := src != nil || dst != nil
	if err := checkPairs(present, len(src), len(dst), AffineSampleSize); err != nil {
		return nil, err
	}
	n := -1
	if present {
		n = len(src)
	}
	e, err := newEstimator[geometry.AffineTransform](n, familyConfig(DefaultAffineThreshold), opts)
	if err != nil {
		return nil, err
	}
	est := &AffineEstimator{Estimator: e}
	if present {
		if err := est.SetPoints(src, dst); err != nil {
			return nil, err
		}
	}
	return est, nil
}

// Points returns the correspondences.
func (e *AffineEstimator) Points() (src, dst []geometry.Point2D) { return e.src, e.dst }

// SetPoints replaces the correspondences.
func (e *AffineEstimator) SetPoints(src, dst []geometry.Point2D) error {
	if err := locked(e.Estimator); err != nil {
		return err
	}
	if err := checkPairs(true, len(src), len(dst), AffineSampleSize); err != nil {
		return err
	}
	model := affineModel{src: src, dst: dst}
	if err := e.SetModel(model); err != nil {
		return err
	}
	if err := e.SetRefiner(refiner[geometry.AffineTransform]{par: affineParams{model}}); err != nil {
		return err
	}
	e.src, e.dst = src, dst
	return nil
}

// checkPairs validates two correspondence slices of equal length.
func checkPairs(present bool, nsrc, ndst, minimum int) error {
	if !present {
		return nil
	}
	if nsrc != ndst {
		return errors.Wrapf(robust.ErrInvalidArgument, "point count mismatch: %d vs %d", nsrc, ndst)
	}
	return checkData(true, nsrc, minimum, "correspondences")
}

type affineModel struct {
	src, dst []geometry.Point2D
}

func (m affineModel) NumData() int    { return len(m.src) }
func (m affineModel) SampleSize() int { return AffineSampleSize }

// Fit solves the 6x6 system of three correspondences. Collinear sources
// give no transform.
func (m affineModel) Fit(sample []int) []geometry.AffineTransform {
	s0, s1, s2 := m.src[sample[0]], m.src[sample[1]], m.src[sample[2]]
	if geometry.Collinear(s0, s1, s2, collinearTolerance) {
		return nil
	}

	// [x', y'] = [a, b, tx; c, d, ty] * [x, y, 1]
	a := mat.NewDense(6, 6, nil)
	b := mat.NewVecDense(6, nil)
	for k, i := range sample {
		affineRows(a, b, k, m.src[i], m.dst[i])
	}

	var params mat.VecDense
	if err := params.SolveVec(a, b); err != nil {
		return nil
	}
	return []geometry.AffineTransform{geometry.AffineFromParams(params.RawVector().Data)}
}

func (m affineModel) Residual(t geometry.AffineTransform, i int) float64 {
	return geometry.Distance2D(t.Apply(m.src[i]), m.dst[i])
}

// Refit solves the overdetermined system by QR.
func (m affineModel) Refit(indices []int) (geometry.AffineTransform, error) {
	a := mat.NewDense(len(indices)*2, 6, nil)
	b := mat.NewVecDense(len(indices)*2, nil)
	for k, i := range indices {
		affineRows(a, b, k, m.src[i], m.dst[i])
	}

	var qr mat.QR
	qr.Factorize(a)
	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, b); err != nil {
		return geometry.AffineTransform{}, errors.Wrap(err, "affine refit")
	}
	return geometry.AffineFromParams(mat.Col(nil, 0, &params)), nil
}

// affineRows writes the two equations of correspondence k.
func affineRows(a *mat.Dense, b *mat.VecDense, k int, s, d geometry.Point2D) {
	// x' = a*x + b*y + tx
	a.Set(k*2, 0, s.X)
	a.Set(k*2, 1, s.Y)
	a.Set(k*2, 2, 1)
	b.SetVec(k*2, d.X)

	// y' = c*x + d*y + ty
	a.Set(k*2+1, 3, s.X)
	a.Set(k*2+1, 4, s.Y)
	a.Set(k*2+1, 5, 1)
	b.SetVec(k*2+1, d.Y)
}

func (m affineModel) IsValid(t geometry.AffineTransform) bool {
	return t.IsFinite()
}

// affineParams refines [a b tx c d ty] on the 2D transfer error.
type affineParams struct {
	model affineModel
}

func (p affineParams) Params(t geometry.AffineTransform) []float64 { return t.Params() }

func (p affineParams) Model(v []float64) (geometry.AffineTransform, bool) {
	t := geometry.AffineFromParams(v)
	return t, t.IsFinite()
}

func (p affineParams) ResidualSize() int { return 2 }

func (p affineParams) Residuals(dst, v []float64, i int) {
	q := geometry.AffineFromParams(v).Apply(p.model.src[i])
	d := p.model.dst[i]
	dst[0] = q.X - d.X
	dst[1] = q.Y - d.Y
}
