package robust

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIterationsFor(t *testing.T) {
	cases := map[string]struct {
		w          float64
		m          int
		confidence float64
		max        int
		want       int
	}{
		"all inliers":        {w: 1, m: 4, confidence: 0.99, max: 1000, want: 1},
		"no inliers":         {w: 0, m: 4, confidence: 0.99, max: 1000, want: 1000},
		"full confidence":    {w: 0.5, m: 2, confidence: 1, max: 1000, want: 1000},
		"half inliers pairs": {w: 0.5, m: 2, confidence: 0.99, max: 1000, want: 17},
		"clamped":            {w: 0.1, m: 8, confidence: 0.99, max: 500, want: 500},
		"single element":     {w: 0.8, m: 1, confidence: 0.99, max: 1000, want: 3},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, IterationsFor(tc.w, tc.m, tc.confidence, tc.max))
		})
	}
}

func TestRobustThreshold(t *testing.T) {
	got := RobustThreshold(4, 105, 5, 1.5)
	want := 1.5 * 1.4826 * (1 + 5.0/100) * 2
	assert.InDelta(t, want, got, 1e-12)

	// N == m clamps the correction to a single degree of freedom.
	assert.InDelta(t, 1.4826*6, RobustThreshold(1, 4, 4, 1), 1e-12)
	assert.Equal(t, 0.0, RobustThreshold(0, 10, 2, 1.5))
}

// binomialTail is P(X >= k) for X ~ Binomial(n, p), summed term by term.
func binomialTail(n, k int, p float64) float64 {
	var sum float64
	for i := k; i <= n; i++ {
		lg, _ := math.Lgamma(float64(n + 1))
		li, _ := math.Lgamma(float64(i + 1))
		lr, _ := math.Lgamma(float64(n - i + 1))
		sum += math.Exp(lg - li - lr + float64(i)*math.Log(p) + float64(n-i)*math.Log1p(-p))
	}
	return sum
}

func TestProsacMinInliers(t *testing.T) {
	cases := map[string]struct{ m, n int }{
		"pairs of three":    {2, 3},
		"four of a hundred": {4, 100},
		"large set":         {6, 1000},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := prosacMinInliers(tc.m, tc.n)
			k := got - tc.m
			require.GreaterOrEqual(t, k, 1)
			assert.Less(t, binomialTail(tc.n-tc.m, k, prosacBeta), prosacPsi)
			assert.GreaterOrEqual(t, binomialTail(tc.n-tc.m, k-1, prosacBeta), prosacPsi)
		})
	}

	assert.Equal(t, 3, prosacMinInliers(2, 3))
	assert.Equal(t, 5, prosacMinInliers(4, 4), "a bare sample never passes")
	assert.Greater(t, prosacMinInliers(4, 1000), prosacMinInliers(4, 100))
}

func TestProsacStateUpdate(t *testing.T) {
	// The first six in quality order fit, the last four do not.
	order := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	residuals := []float64{0, 0, 0, 0, 0, 0, 9, 9, 9, 9}
	s := newProsacState(order, 1, 0.99, 1000)
	s.update(residuals, 1)
	assert.Equal(t, 6, s.nStar)
	assert.Equal(t, 6, s.inStar)
	assert.Equal(t, 1, s.kStar)
	assert.Equal(t, 2, s.minTotal)
}

func TestPolicyBetter(t *testing.T) {
	count := policyFor(RANSAC)
	assert.True(t, count.better(score{inliers: 5, cost: 3}, score{inliers: 4, cost: 0}))
	assert.True(t, count.better(score{inliers: 5, cost: 1}, score{inliers: 5, cost: 2}))
	assert.False(t, count.better(score{inliers: 5, cost: 2}, score{inliers: 5, cost: 2}))

	msac := policyFor(MSAC)
	assert.True(t, msac.better(score{cost: 1}, score{cost: 2}))
	assert.True(t, msac.better(score{cost: 2, total: 3}, score{cost: 2, total: 4}))
	assert.False(t, msac.better(score{cost: 2, total: 4}, score{cost: 2, total: 3}))
	assert.False(t, msac.better(score{cost: 2}, score{cost: 2}))

	median := policyFor(LMedS)
	assert.True(t, median.better(score{cost: 1, total: 9}, score{cost: 2, total: 1}))
	assert.True(t, median.better(score{cost: 1, total: 1}, score{cost: 1, total: 2}))
	assert.False(t, median.better(score{cost: 1, total: 1}, score{cost: 1, total: 1}))

	assert.True(t, policyFor(PROSAC).progressive)
	assert.True(t, policyFor(PROMedS).progressive)
	assert.False(t, policyFor(LMedS).progressive)
}

func TestProsacStateFollowsCurrentBest(t *testing.T) {
	order := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	s := newProsacState(order, 2, 0.99, 1000)

	// A chance fit through the top three only.
	s.update([]float64{0, 0, 0, 9, 9, 9, 9, 9, 9, 9}, 1)
	assert.Equal(t, 3, s.nStar)
	assert.Equal(t, 3, s.inStar)

	// A later model supported by the whole set replaces it even though its
	// ratio is lower.
	s.update([]float64{9, 0, 0, 0, 0, 0, 0, 0, 0, 9}, 1)
	assert.Equal(t, 9, s.nStar)
	assert.Equal(t, 8, s.inStar)
	assert.Equal(t, IterationsFor(8.0/9, 2, 0.99, 1000), s.kStar)

	// No prefix passes the non-randomness test.
	s.update([]float64{9, 9, 9, 9, 9, 9, 9, 9, 9, 9}, 1)
	assert.Equal(t, 10, s.nStar)
	assert.Equal(t, 1000, s.kStar)
}
