package robust

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// prosacBeta is the probability that an outlier is consistent with a
	// wrong model by chance.
	prosacBeta = 0.01
	// prosacMaxOutliers is the largest outlier proportion the maximality
	// test allows before terminating.
	prosacMaxOutliers = 0.8
	// prosacPsi is the largest probability of a chance support passing the
	// non-randomness test.
	prosacPsi = 0.05
	// medianBreakdown is the inlier ratio the median methods assume until
	// their best model has more support under the stop threshold.
	medianBreakdown = 0.5
	// medianScale turns a median absolute deviation into a Gaussian sigma.
	medianScale = 1.4826
)

// IterationsFor returns the number of samples needed to draw an all-inlier
// sample of size m with the given confidence when a fraction w of the data
// are inliers. The result is clamped to [1, maxIterations].
func IterationsFor(w float64, m int, confidence float64, maxIterations int) int {
	if w >= 1 {
		return 1
	}
	if w <= 0 || confidence >= 1 {
		return maxIterations
	}
	den := math.Log(1 - math.Pow(w, float64(m)))
	if den == 0 {
		return maxIterations
	}
	k := math.Ceil(math.Log(1-confidence) / den)
	if math.IsNaN(k) || k > float64(maxIterations) {
		return maxIterations
	}
	if k < 1 {
		return 1
	}
	return int(k)
}

// RobustThreshold converts the least median of squared residuals into an
// inlier threshold, correcting the median for small samples.
func RobustThreshold(median float64, n, m int, factor float64) float64 {
	dof := n - m
	if dof < 1 {
		dof = 1
	}
	sigma := medianScale * (1 + 5/float64(dof)) * math.Sqrt(median)
	return factor * sigma
}

// prosacMinInliers is the smallest support among the top n that a model
// fitted to m of them reaches by chance with probability below prosacPsi,
// each of the other n-m points agreeing with probability prosacBeta.
func prosacMinInliers(m, n int) int {
	trials := n - m
	if trials <= 0 {
		return m + 1
	}
	b := distuv.Binomial{N: float64(trials), P: prosacBeta}
	for k := 1; k <= trials; k++ {
		if b.Survival(float64(k-1)) < prosacPsi {
			return m + k
		}
	}
	return n + 1
}
