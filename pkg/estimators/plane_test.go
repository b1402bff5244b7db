package estimators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robust-geometry/internal/synth"
	"robust-geometry/pkg/geometry"
	"robust-geometry/pkg/robust"
)

func TestPlaneExact(t *testing.T) {
	g := synth.New(20, 0)
	truth, _ := geometry.NewPlane(1, -2, 0.5, 4)
	points := g.PointsOnPlane(truth, 50, 10)

	for _, m := range robust.Methods() {
		t.Run(m.String(), func(t *testing.T) {
			e, err := NewPlaneEstimator(points, testOptions(t, m, uniformQuality(len(points)))...)
			require.NoError(t, err)
			seeded(t, e.Estimator)

			p, err := e.Estimate()
			require.NoError(t, err)
			assert.True(t, p.Equal(truth, 1e-6), "got %+v", p)
			assert.Equal(t, len(points), e.InliersData().NumInliers())
			for _, x := range points {
				assert.Less(t, p.Distance(x), 1e-6)
			}
		})
	}
}

func TestPlaneOutliers(t *testing.T) {
	g := synth.New(21, 0)
	truth, _ := geometry.NewPlane(0, 0, 1, -1)
	points := g.PointsOnPlane(truth, 100, 10)
	normal := truth.Normal()
	errs := g.Perturb(len(points), 0.25, 1, 5, func(i int, a float64) {
		points[i] = points[i].Add(normal.Mul(a))
	})
	quality := synth.QualityScores(errs)

	for _, m := range robust.Methods() {
		t.Run(m.String(), func(t *testing.T) {
			e, err := NewPlaneEstimator(points, testOptions(t, m, quality)...)
			require.NoError(t, err)
			seeded(t, e.Estimator)

			p, err := e.Estimate()
			require.NoError(t, err)
			assert.True(t, p.Equal(truth, 1e-6), "got %+v", p)
			d := e.InliersData()
			for _, i := range inlierSet(errs) {
				assert.True(t, d.IsInlier(i), "point %d", i)
			}
		})
	}
}

func TestPoint3DFromPlanes(t *testing.T) {
	g := synth.New(22, 0)
	truth := geometry.NewPoint3D(1, -2, 3)
	planes := g.PlanesThrough(truth, 60)
	errs := g.Perturb(len(planes), 0.2, 1, 4, func(i int, a float64) { planes[i].D += a })
	quality := synth.QualityScores(errs)

	for _, m := range robust.Methods() {
		t.Run(m.String(), func(t *testing.T) {
			e, err := NewPoint3DEstimator(planes, testOptions(t, m, quality)...)
			require.NoError(t, err)
			seeded(t, e.Estimator)

			x, err := e.Estimate()
			require.NoError(t, err)
			assert.InDelta(t, 0, x.Sub(truth).Norm(), 1e-6)
			assert.Equal(t, 48, e.InliersData().NumInliers())
		})
	}
}
