package estimators

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/stretchr/testify/require"

	"robust-geometry/pkg/robust"
)

// uniformQuality returns n equal scores.
func uniformQuality(n int) []float64 {
	q := make([]float64, n)
	for i := range q {
		q[i] = 1
	}
	return q
}

// testOptions selects method with scores usable by every method and a
// test logger.
func testOptions(t *testing.T, method robust.Method, quality []float64) []Option {
	t.Helper()
	return []Option{
		WithMethod(method),
		WithQualityScores(quality),
		WithLogger(golog.NewTestLogger(t)),
	}
}

// seeded fixes the seed so that runs are reproducible.
func seeded[M any](t *testing.T, e *robust.Estimator[M]) {
	t.Helper()
	require.NoError(t, e.SetSeed(42))
}

// inlierSet returns the indices whose error is zero.
func inlierSet(errs []float64) []int {
	var out []int
	for i, e := range errs {
		if e == 0 {
			out = append(out, i)
		}
	}
	return out
}
