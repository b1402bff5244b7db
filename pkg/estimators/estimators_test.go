package estimators

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robust-geometry/internal/synth"
	"robust-geometry/pkg/geometry"
	"robust-geometry/pkg/robust"
)

func TestDefaultMethodIsPROMedS(t *testing.T) {
	e, err := NewLine2DEstimator(nil)
	require.NoError(t, err)
	assert.Equal(t, robust.PROMedS, e.Method())
	assert.Equal(t, DefaultLine2DThreshold, e.Config().Threshold)
}

func TestFactoryValidation(t *testing.T) {
	g := synth.New(1, 0)
	points := g.Points2D(10, 5)

	tests := []struct {
		name  string
		build func() error
	}{
		{"too few points", func() error {
			_, err := NewLine2DEstimator(points[:1])
			return err
		}},
		{"too few conic points", func() error {
			_, err := NewConicEstimator(points[:4])
			return err
		}},
		{"pair length mismatch", func() error {
			_, err := NewAffineEstimator(points, points[:9])
			return err
		}},
		{"quality length mismatch", func() error {
			_, err := NewLine2DEstimator(points, WithQualityScores(uniformQuality(9)))
			return err
		}},
		{"negative quality", func() error {
			q := uniformQuality(10)
			q[3] = -1
			_, err := NewLine2DEstimator(points, WithQualityScores(q))
			return err
		}},
		{"invalid method", func() error {
			_, err := NewLine2DEstimator(points, WithMethod(robust.Method(99)))
			return err
		}},
		{"invalid config", func() error {
			cfg := robust.DefaultConfig()
			cfg.Confidence = 2
			_, err := NewLine2DEstimator(points, WithConfig(cfg))
			return err
		}},
		{"listener for another model", func() error {
			l := &robust.ListenerFuncs[geometry.Plane]{}
			_, err := NewLine2DEstimator(points, WithListener[geometry.Plane](l))
			return err
		}},
		{"zero focal length", func() error {
			_, err := NewPoseEstimator(nil, nil, geometry.Intrinsics{FocalY: 1})
			return err
		}},
		{"plane without normal", func() error {
			planes := []geometry.Plane{{D: 1}, {A: 1}, {B: 1}}
			_, err := NewPoint3DEstimator(planes)
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.build()
			require.Error(t, err)
			assert.True(t, errors.Is(err, robust.ErrInvalidArgument), "got %v", err)
		})
	}
}

func TestReadiness(t *testing.T) {
	g := synth.New(2, 0)
	l, _ := geometry.NewLine2D(1, 1, -2)
	points := g.PointsOnLine(l, 20, 5)

	t.Run("no data", func(t *testing.T) {
		e, err := NewLine2DEstimator(nil, WithMethod(robust.RANSAC))
		require.NoError(t, err)
		assert.False(t, e.IsReady())
		_, err = e.Estimate()
		assert.True(t, errors.Is(err, robust.ErrNotReady))

		require.NoError(t, e.SetPoints(points))
		assert.True(t, e.IsReady())
	})

	t.Run("progressive without scores", func(t *testing.T) {
		for _, m := range []robust.Method{robust.PROSAC, robust.PROMedS} {
			e, err := NewLine2DEstimator(points, WithMethod(m))
			require.NoError(t, err)
			assert.False(t, e.IsReady(), m.String())
		}
	})

	t.Run("data change breaks score length", func(t *testing.T) {
		e, err := NewLine2DEstimator(points, WithQualityScores(uniformQuality(len(points))))
		require.NoError(t, err)
		assert.True(t, e.IsReady())

		require.NoError(t, e.SetPoints(points[:10]))
		assert.False(t, e.IsReady())

		require.NoError(t, e.SetMethod(robust.MSAC))
		assert.True(t, e.IsReady())
	})

	t.Run("short data rejected by setter", func(t *testing.T) {
		e, err := NewLine2DEstimator(points)
		require.NoError(t, err)
		err = e.SetPoints(points[:1])
		assert.True(t, errors.Is(err, robust.ErrInvalidArgument))
		assert.Len(t, e.Points(), len(points))
	})
}

func TestListenerCannotReenter(t *testing.T) {
	g := synth.New(3, 0)
	l, _ := geometry.NewLine2D(0, 1, -1)
	points := g.PointsOnLine(l, 30, 5)

	var est *Line2DEstimator
	var starts, ends int
	var setErr, thresholdErr error
	listener := &robust.ListenerFuncs[geometry.Line2D]{
		Start: func(e *robust.Estimator[geometry.Line2D]) {
			starts++
			assert.True(t, e.IsLocked())
			setErr = est.SetPoints(points[:10])
			thresholdErr = e.SetThreshold(1)
		},
		End: func(e *robust.Estimator[geometry.Line2D]) {
			ends++
			assert.True(t, e.IsLocked())
		},
	}

	est, err := NewLine2DEstimator(points,
		WithMethod(robust.RANSAC),
		WithListener[geometry.Line2D](listener))
	require.NoError(t, err)
	assert.True(t, est.IsListenerAvailable())

	_, err = est.Estimate()
	require.NoError(t, err)
	assert.True(t, errors.Is(setErr, robust.ErrLocked))
	assert.True(t, errors.Is(thresholdErr, robust.ErrLocked))
	assert.Len(t, est.Points(), 30)
	assert.Equal(t, DefaultLine2DThreshold, est.Config().Threshold)
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
	assert.False(t, est.IsLocked())
}

func TestSameSeedSameInliers(t *testing.T) {
	g := synth.New(4, 1e-4)
	pl, _ := geometry.NewPlane(0.2, -0.3, 1, 2)
	points := g.PointsOnPlane(pl, 80, 10)
	g.Corrupt3D(points, 0.3, 5)

	run := func() int {
		e, err := NewPlaneEstimator(points, WithMethod(robust.RANSAC))
		require.NoError(t, err)
		require.NoError(t, e.SetSeed(99))
		_, err = e.Estimate()
		require.NoError(t, err)
		return e.InliersData().NumInliers()
	}
	assert.Equal(t, run(), run())
}
