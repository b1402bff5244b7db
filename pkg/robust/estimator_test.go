package robust

import (
	"math"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// constModel estimates a single value from scalar observations.
type constModel struct {
	data      []float64
	noFit     bool
	panicFit  bool
	refitErr  error
	fitCalled int
}

func (c *constModel) NumData() int    { return len(c.data) }
func (c *constModel) SampleSize() int { return 1 }

func (c *constModel) Fit(sample []int) []float64 {
	c.fitCalled++
	if c.panicFit {
		panic("fit exploded")
	}
	if c.noFit {
		return nil
	}
	return []float64{c.data[sample[0]]}
}

func (c *constModel) Residual(m float64, i int) float64 {
	return math.Abs(c.data[i] - m)
}

func (c *constModel) Refit(indices []int) (float64, error) {
	if c.refitErr != nil {
		return 0, c.refitErr
	}
	var sum float64
	for _, i := range indices {
		sum += c.data[i]
	}
	return sum / float64(len(indices)), nil
}

const (
	numInliers  = 80
	numOutliers = 20
	trueValue   = 5.0
)

// contaminated returns 80 observations near 5 followed by 20 far outliers,
// and quality scores that favor the inliers.
func contaminated() ([]float64, []float64) {
	data := make([]float64, 0, numInliers+numOutliers)
	quality := make([]float64, 0, numInliers+numOutliers)
	for i := 0; i < numInliers; i++ {
		data = append(data, trueValue+1e-3*math.Sin(float64(i)))
		quality = append(quality, 1)
	}
	for i := 0; i < numOutliers; i++ {
		data = append(data, 50+float64(i))
		quality = append(quality, 0.1)
	}
	return data, quality
}

func newTestEstimator(t *testing.T, method Method, model Model[float64], quality []float64) *Estimator[float64] {
	t.Helper()
	e, err := NewEstimator[float64](method)
	require.NoError(t, err)
	require.NoError(t, e.SetLogger(golog.NewTestLogger(t)))
	require.NoError(t, e.SetModel(model))
	require.NoError(t, e.SetQualityScores(quality))
	require.NoError(t, e.SetThreshold(0.01))
	require.NoError(t, e.SetSeed(7))
	return e
}

func TestEstimateAllMethods(t *testing.T) {
	for _, method := range Methods() {
		t.Run(method.String(), func(t *testing.T) {
			data, quality := contaminated()
			e := newTestEstimator(t, method, &constModel{data: data}, quality)

			got, err := e.Estimate()
			require.NoError(t, err)
			assert.InDelta(t, trueValue, got, 0.01)

			inliers := e.InliersData()
			require.NotNil(t, inliers)
			assert.Equal(t, method, inliers.Method())
			assert.Greater(t, inliers.NumInliers(), numInliers/2)
			assert.LessOrEqual(t, inliers.NumInliers(), numInliers)
			for i := numInliers; i < len(data); i++ {
				assert.False(t, inliers.IsInlier(i), "outlier %d classified as inlier", i)
			}
			assert.Len(t, inliers.Residuals(), len(data))
			assert.Len(t, inliers.InlierIndices(), inliers.NumInliers())
			if method.UsesMedian() {
				assert.Greater(t, inliers.EstimatedThreshold(), 0.0)
			} else {
				assert.Equal(t, 0.01, inliers.EstimatedThreshold())
				assert.Equal(t, numInliers, inliers.NumInliers())
			}
			assert.False(t, e.IsLocked())
		})
	}
}

func TestDefaultMethodIsPROMedS(t *testing.T) {
	assert.Equal(t, PROMedS, DefaultMethod)
}

func TestNotReady(t *testing.T) {
	data, quality := contaminated()

	t.Run("no model", func(t *testing.T) {
		e, err := NewEstimator[float64](RANSAC)
		require.NoError(t, err)
		assert.False(t, e.IsReady())
		_, err = e.Estimate()
		assert.True(t, errors.Is(err, ErrNotReady))
	})
	t.Run("too little data", func(t *testing.T) {
		e := newTestEstimator(t, RANSAC, &constModel{}, nil)
		assert.False(t, e.IsReady())
	})
	t.Run("progressive without quality", func(t *testing.T) {
		for _, method := range []Method{PROSAC, PROMedS} {
			e := newTestEstimator(t, method, &constModel{data: data}, nil)
			assert.False(t, e.IsReady())
			_, err := e.Estimate()
			assert.ErrorIs(t, err, ErrNotReady)
		}
	})
	t.Run("quality length mismatch", func(t *testing.T) {
		e := newTestEstimator(t, PROSAC, &constModel{data: data}, quality[:10])
		assert.False(t, e.IsReady())
	})
	t.Run("quality ignored by uniform methods", func(t *testing.T) {
		e := newTestEstimator(t, RANSAC, &constModel{data: data}, quality[:10])
		assert.True(t, e.IsReady())
	})
}

func TestReentrantUseIsRejected(t *testing.T) {
	data, quality := contaminated()
	e := newTestEstimator(t, PROMedS, &constModel{data: data}, quality)

	var setterErr, estimateErr, endErr error
	var lockedAtEnd bool
	require.NoError(t, e.SetListener(&ListenerFuncs[float64]{
		Start: func(e *Estimator[float64]) {
			setterErr = e.SetThreshold(1)
		},
		NextIteration: func(e *Estimator[float64], _ int) {
			if estimateErr == nil {
				_, estimateErr = e.Estimate()
			}
		},
		End: func(e *Estimator[float64]) {
			lockedAtEnd = e.IsLocked()
			endErr = e.SetMethod(RANSAC)
		},
	}))

	_, err := e.Estimate()
	require.NoError(t, err)
	assert.ErrorIs(t, setterErr, ErrLocked)
	assert.ErrorIs(t, estimateErr, ErrLocked)
	assert.ErrorIs(t, endErr, ErrLocked)
	assert.True(t, lockedAtEnd)
	assert.False(t, e.IsLocked())
	assert.Equal(t, 0.01, e.Config().Threshold)
	assert.Equal(t, PROMedS, e.Method())
}

func TestCallbackOrder(t *testing.T) {
	data, quality := contaminated()
	e := newTestEstimator(t, PROSAC, &constModel{data: data}, quality)
	require.NoError(t, e.SetProgressDelta(0))

	var events []string
	var iterations []int
	var progress []float64
	require.NoError(t, e.SetListener(&ListenerFuncs[float64]{
		Start: func(*Estimator[float64]) { events = append(events, "start") },
		End:   func(*Estimator[float64]) { events = append(events, "end") },
		NextIteration: func(_ *Estimator[float64], it int) {
			events = append(events, "iteration")
			iterations = append(iterations, it)
		},
		ProgressChange: func(_ *Estimator[float64], p float64) {
			events = append(events, "progress")
			progress = append(progress, p)
		},
	}))

	_, err := e.Estimate()
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "start", events[0])
	assert.Equal(t, "end", events[len(events)-1])
	assert.Equal(t, 1, countOf(events, "start"))
	assert.Equal(t, 1, countOf(events, "end"))
	for i, it := range iterations {
		assert.Equal(t, i+1, it)
	}
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i], progress[i-1])
	}
	for _, p := range progress {
		assert.LessOrEqual(t, p, 1.0)
	}
	assert.Equal(t, len(iterations), e.InliersData().Iterations())
}

func countOf(events []string, name string) int {
	n := 0
	for _, ev := range events {
		if ev == name {
			n++
		}
	}
	return n
}

func TestEstimationFailed(t *testing.T) {
	data, _ := contaminated()
	model := &constModel{data: data, noFit: true}
	e := newTestEstimator(t, MSAC, model, nil)
	require.NoError(t, e.SetMaxIterations(25))

	ended := false
	require.NoError(t, e.SetListener(&ListenerFuncs[float64]{
		End: func(*Estimator[float64]) { ended = true },
	}))
	_, err := e.Estimate()
	assert.ErrorIs(t, err, ErrEstimationFailed)
	assert.False(t, ended)
	assert.False(t, e.IsLocked())
	assert.Nil(t, e.InliersData())
	assert.Equal(t, 25, model.fitCalled)
}

func TestPanicReleasesLock(t *testing.T) {
	data, _ := contaminated()
	e := newTestEstimator(t, RANSAC, &constModel{data: data, panicFit: true}, nil)
	assert.Panics(t, func() { _, _ = e.Estimate() })
	assert.False(t, e.IsLocked())
	assert.NoError(t, e.SetThreshold(0.5))
}

func TestSameSeedSameResult(t *testing.T) {
	for _, method := range Methods() {
		t.Run(method.String(), func(t *testing.T) {
			data, quality := contaminated()
			e := newTestEstimator(t, method, &constModel{data: data}, quality)
			require.NoError(t, e.SetRefineResult(false))

			first, err := e.Estimate()
			require.NoError(t, err)
			firstInliers := e.InliersData().NumInliers()

			second, err := e.Estimate()
			require.NoError(t, err)
			assert.Equal(t, first, second)
			assert.Equal(t, firstInliers, e.InliersData().NumInliers())
		})
	}
}

func TestDataSizeEqualsSampleSize(t *testing.T) {
	for _, method := range Methods() {
		t.Run(method.String(), func(t *testing.T) {
			e := newTestEstimator(t, method, &constModel{data: []float64{3}}, []float64{1})
			got, err := e.Estimate()
			require.NoError(t, err)
			assert.Equal(t, 3.0, got)
			assert.Equal(t, 1, e.InliersData().NumInliers())
			assert.Equal(t, 1, e.InliersData().Iterations())
		})
	}
}

func TestRefitFailureKeepsSample(t *testing.T) {
	data, _ := contaminated()
	model := &constModel{data: data, refitErr: errors.New("singular")}
	e := newTestEstimator(t, RANSAC, model, nil)

	got, err := e.Estimate()
	require.NoError(t, err)
	assert.Contains(t, data[:numInliers], got)
}

func TestRefinement(t *testing.T) {
	data, _ := contaminated()

	t.Run("failure keeps robust estimate", func(t *testing.T) {
		e := newTestEstimator(t, RANSAC, &constModel{data: data}, nil)
		require.NoError(t, e.SetKeepCovariance(true))
		require.NoError(t, e.SetRefiner(RefinerFunc[float64](func(m float64, _ RefineRequest) (float64, *mat.SymDense, error) {
			return 0, nil, errors.New("did not converge")
		})))
		got, err := e.Estimate()
		require.NoError(t, err)
		assert.InDelta(t, trueValue, got, 0.01)
		assert.Nil(t, e.Covariance())
	})

	t.Run("success keeps covariance", func(t *testing.T) {
		e := newTestEstimator(t, RANSAC, &constModel{data: data}, nil)
		require.NoError(t, e.SetKeepCovariance(true))
		require.NoError(t, e.SetUseFastRefinement(true))
		var req RefineRequest
		require.NoError(t, e.SetRefiner(RefinerFunc[float64](func(m float64, r RefineRequest) (float64, *mat.SymDense, error) {
			req = r
			return trueValue, mat.NewSymDense(1, []float64{0.25}), nil
		})))
		got, err := e.Estimate()
		require.NoError(t, err)
		assert.Equal(t, trueValue, got)
		assert.True(t, req.Fast)
		assert.True(t, req.KeepCovariance)
		assert.Len(t, req.Inliers, numInliers)
		cov := e.Covariance()
		require.NotNil(t, cov)
		assert.Equal(t, 0.25, cov.At(0, 0))
	})

	t.Run("covariance dropped unless requested", func(t *testing.T) {
		e := newTestEstimator(t, RANSAC, &constModel{data: data}, nil)
		require.NoError(t, e.SetRefiner(RefinerFunc[float64](func(m float64, _ RefineRequest) (float64, *mat.SymDense, error) {
			return m, mat.NewSymDense(1, []float64{1}), nil
		})))
		_, err := e.Estimate()
		require.NoError(t, err)
		assert.Nil(t, e.Covariance())
	})

	t.Run("disabled", func(t *testing.T) {
		e := newTestEstimator(t, RANSAC, &constModel{data: data}, nil)
		require.NoError(t, e.SetRefineResult(false))
		called := false
		require.NoError(t, e.SetRefiner(RefinerFunc[float64](func(m float64, _ RefineRequest) (float64, *mat.SymDense, error) {
			called = true
			return m, nil, nil
		})))
		_, err := e.Estimate()
		require.NoError(t, err)
		assert.False(t, called)
	})
}

func TestKeepFlags(t *testing.T) {
	data, _ := contaminated()
	e := newTestEstimator(t, RANSAC, &constModel{data: data}, nil)
	require.NoError(t, e.SetComputeAndKeepInliers(false))
	require.NoError(t, e.SetComputeAndKeepResiduals(false))

	_, err := e.Estimate()
	require.NoError(t, err)
	d := e.InliersData()
	assert.Equal(t, numInliers, d.NumInliers())
	assert.Nil(t, d.Inliers())
	assert.Nil(t, d.Residuals())
	assert.Nil(t, d.InlierIndices())
}

func TestSetterValidation(t *testing.T) {
	cases := map[string]func(e *Estimator[float64]) error{
		"zero threshold":       func(e *Estimator[float64]) error { return e.SetThreshold(0) },
		"nan threshold":        func(e *Estimator[float64]) error { return e.SetThreshold(math.NaN()) },
		"zero confidence":      func(e *Estimator[float64]) error { return e.SetConfidence(0) },
		"confidence above one": func(e *Estimator[float64]) error { return e.SetConfidence(1.5) },
		"zero iterations":      func(e *Estimator[float64]) error { return e.SetMaxIterations(0) },
		"negative progress":    func(e *Estimator[float64]) error { return e.SetProgressDelta(-0.1) },
		"progress above one":   func(e *Estimator[float64]) error { return e.SetProgressDelta(1.1) },
		"negative stop":        func(e *Estimator[float64]) error { return e.SetStopThreshold(-1) },
		"zero inlier factor":   func(e *Estimator[float64]) error { return e.SetInlierFactor(0) },
		"negative quality":     func(e *Estimator[float64]) error { return e.SetQualityScores([]float64{1, -1}) },
		"unknown method":       func(e *Estimator[float64]) error { return e.SetMethod(Method(42)) },
		"invalid config":       func(e *Estimator[float64]) error { return e.SetConfig(Config{}) },
	}
	for name, set := range cases {
		t.Run(name, func(t *testing.T) {
			e, err := NewEstimator[float64](RANSAC)
			require.NoError(t, err)
			before := e.Config()
			assert.ErrorIs(t, set(e), ErrInvalidArgument)
			assert.Equal(t, before, e.Config())
			assert.Equal(t, RANSAC, e.Method())
			assert.Nil(t, e.QualityScores())
		})
	}

	_, err := NewEstimator[float64](Method(-1))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestConfidenceOneUsesAllIterations(t *testing.T) {
	data, _ := contaminated()
	e := newTestEstimator(t, RANSAC, &constModel{data: data}, nil)
	require.NoError(t, e.SetConfidence(1))
	require.NoError(t, e.SetMaxIterations(40))
	_, err := e.Estimate()
	require.NoError(t, err)
	assert.Equal(t, 40, e.InliersData().Iterations())
}
