package estimators

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robust-geometry/internal/synth"
	"robust-geometry/pkg/geometry"
	"robust-geometry/pkg/robust"
)

// lineScene returns the camera of cameraScene with n world lines around
// the origin and their exact images.
func lineScene(seed uint64, n int) (geometry.PinholeCamera, []geometry.Line3D, []geometry.Line2D) {
	g := synth.New(seed, 0)
	cam := synth.LookAt(geometry.NewPoint3D(3, 2, -10), geometry.Point3D{}, testIntrinsics)
	world := g.Lines3D(geometry.Point3D{}, n, 2)
	return cam, world, g.ProjectLines(cam, world)
}

func TestLineCameraExact(t *testing.T) {
	truth, world, image := lineScene(80, 40)

	for _, m := range robust.Methods() {
		t.Run(m.String(), func(t *testing.T) {
			e, err := NewLineCameraEstimator(world, image, testOptions(t, m, uniformQuality(len(world)))...)
			require.NoError(t, err)
			seeded(t, e.Estimator)

			got, err := e.Estimate()
			require.NoError(t, err)
			if diff := cmp.Diff(truth.Intrinsics, got.Intrinsics, cmpopts.EquateApprox(1e-6, 1e-6)); diff != "" {
				t.Errorf("intrinsics mismatch (-want +got):\n%s", diff)
			}
			assert.Less(t, truth.Rotation.AngleTo(got.Rotation), 1e-6)
			assert.InDelta(t, 0, truth.Center.Sub(got.Center).Norm(), 1e-6)
			assert.Equal(t, len(world), e.InliersData().NumInliers())
		})
	}
}

func TestLineCameraOutliers(t *testing.T) {
	truth, world, image := lineScene(81, 80)
	g := synth.New(82, 0)
	errs := g.Perturb(len(image), 0.25, 20, 50, func(i int, a float64) { image[i].C += a })
	quality := synth.QualityScores(errs)

	for _, m := range robust.Methods() {
		t.Run(m.String(), func(t *testing.T) {
			e, err := NewLineCameraEstimator(world, image, testOptions(t, m, quality)...)
			require.NoError(t, err)
			seeded(t, e.Estimator)

			got, err := e.Estimate()
			require.NoError(t, err)
			assert.Less(t, truth.Rotation.AngleTo(got.Rotation), 1e-6)
			assert.InDelta(t, 0, truth.Center.Sub(got.Center).Norm(), 1e-6)
			d := e.InliersData()
			assert.Equal(t, 60, d.NumInliers())
			for _, i := range inlierSet(errs) {
				assert.True(t, d.IsInlier(i), "match %d", i)
			}
		})
	}
}

func TestLineCameraResidual(t *testing.T) {
	cam, world, image := lineScene(83, 6)
	m := lineCameraModel{world: world, image: image}
	for i := range world {
		assert.InDelta(t, 0, m.Residual(cam, i), 1e-9)
	}

	// Moving an image line by d moves both anchors' distances by d.
	shifted := image[0]
	shifted.C += 3
	m.image[0] = shifted
	assert.InDelta(t, 3, m.Residual(cam, 0), 1e-9)
}

func TestLineCameraRejectsBadLines(t *testing.T) {
	_, world, image := lineScene(84, 8)

	badImage := append([]geometry.Line2D(nil), image...)
	badImage[3] = geometry.Line2D{C: 1}
	_, err := NewLineCameraEstimator(world, badImage)
	assert.True(t, errors.Is(err, robust.ErrInvalidArgument), "got %v", err)

	badWorld := append([]geometry.Line3D(nil), world...)
	badWorld[2] = geometry.Line3D{Point: geometry.NewPoint3D(1, 2, 3)}
	_, err = NewLineCameraEstimator(badWorld, image)
	assert.True(t, errors.Is(err, robust.ErrInvalidArgument), "got %v", err)

	_, err = NewLineCameraEstimator(world[:5], image[:5])
	assert.True(t, errors.Is(err, robust.ErrInvalidArgument), "got %v", err)

	e, err := NewLineCameraEstimator(nil, nil)
	require.NoError(t, err)
	assert.False(t, e.IsReady())
	require.NoError(t, e.SetLines(world, image))
	assert.False(t, e.IsReady(), "default method needs quality scores")
	require.NoError(t, e.SetQualityScores(uniformQuality(len(world))))
	assert.True(t, e.IsReady())

	e, err = NewLineCameraEstimator(nil, nil, WithMethod(robust.RANSAC))
	require.NoError(t, err)
	require.NoError(t, e.SetLines(world, image))
	assert.True(t, e.IsReady())
	require.NoError(t, e.SetSuggestions(CameraSuggestions{
		FocalLength: Suggestion[float64]{Enabled: true, Value: 800},
	}))
	assert.True(t, e.Suggestions().Any())
}
