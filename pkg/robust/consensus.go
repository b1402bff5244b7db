package robust

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"

	"robust-geometry/internal/linalg"
)

type scoring int

const (
	// scoreCount ranks by inlier count.
	scoreCount scoring = iota
	// scoreTruncated ranks by the sum of residuals capped at the threshold.
	scoreTruncated
	// scoreMedian ranks by the median of squared residuals.
	scoreMedian
)

// policy is what distinguishes the five methods inside the shared loop.
type policy struct {
	scoring     scoring
	progressive bool
}

func policyFor(m Method) policy {
	switch m {
	case LMedS:
		return policy{scoring: scoreMedian}
	case MSAC:
		return policy{scoring: scoreTruncated}
	case PROSAC:
		return policy{scoring: scoreCount, progressive: true}
	case PROMedS:
		return policy{scoring: scoreMedian, progressive: true}
	default:
		return policy{scoring: scoreCount}
	}
}

// score summarizes one candidate.
type score struct {
	inliers int
	// cost is the inlier residual sum, the truncated sum or the median of
	// squared residuals depending on the policy.
	cost  float64
	total float64
	// threshold classifies inliers. For the median policies it is the
	// robust threshold floored at the stop threshold.
	threshold float64
	robust    float64
}

// better reports whether a beats b. Ties keep the earlier candidate.
func (p policy) better(a, b score) bool {
	switch p.scoring {
	case scoreCount:
		if a.inliers != b.inliers {
			return a.inliers > b.inliers
		}
		return a.cost < b.cost
	case scoreTruncated:
		if a.cost != b.cost {
			return a.cost < b.cost
		}
		return a.total < b.total
	default:
		if a.cost != b.cost {
			return a.cost < b.cost
		}
		return a.total < b.total
	}
}

// outcome is the winner of a consensus run.
type outcome[M any] struct {
	model      M
	score      score
	residuals  []float64
	iterations int
}

func (o *outcome[M]) inlierIndices() []int {
	var out []int
	for i, r := range o.residuals {
		if r <= o.score.threshold {
			out = append(out, i)
		}
	}
	return out
}

func (o *outcome[M]) inliersData(method Method, cfg Config) *InliersData {
	flags := make([]bool, len(o.residuals))
	n := 0
	for i, r := range o.residuals {
		if r <= o.score.threshold {
			flags[i] = true
			n++
		}
	}
	d := &InliersData{
		method:     method,
		numInliers: n,
		threshold:  o.score.threshold,
		iterations: o.iterations,
	}
	if method.UsesMedian() {
		d.median = o.score.cost
	}
	if cfg.ComputeAndKeepInliers {
		d.inliers = flags
	}
	if cfg.ComputeAndKeepResiduals {
		d.residuals = append([]float64(nil), o.residuals...)
	}
	return d
}

// consensus runs the sample, fit, score loop shared by all methods.
func (e *Estimator[M]) consensus(rng *rand.Rand) (*outcome[M], error) {
	var (
		model   = e.model
		cfg     = e.cfg
		pol     = policyFor(e.method)
		n       = model.NumData()
		m       = model.SampleSize()
		sample  = make([]int, m)
		current = make([]float64, n)
		scratch = make([]float64, n)
		squares []float64
	)
	if pol.scoring == scoreMedian {
		squares = make([]float64, n)
	}

	var (
		sampler Sampler
		prosac  *prosacState
	)
	if pol.progressive {
		order := qualityOrder(e.quality)
		sampler = newProgressiveSampler(order, m, cfg.MaxIterations, rng)
		prosac = newProsacState(order, m, cfg.Confidence, cfg.MaxIterations)
	} else {
		sampler = NewUniformSampler(n, rng)
	}

	evaluate := func(candidate M) score {
		var s score
		for i := range current {
			r := model.Residual(candidate, i)
			if math.IsNaN(r) || math.IsInf(r, 0) {
				r = math.Inf(1)
			}
			current[i] = math.Abs(r)
			s.total += current[i]
		}
		switch pol.scoring {
		case scoreMedian:
			for i, r := range current {
				squares[i] = r * r
			}
			s.cost = linalg.Median(squares, scratch)
			s.robust = RobustThreshold(s.cost, n, m, cfg.InlierFactor)
			s.threshold = math.Max(s.robust, cfg.StopThreshold)
			for _, r := range current {
				if r <= s.threshold {
					s.inliers++
				}
			}
		case scoreTruncated:
			s.threshold = cfg.Threshold
			for _, r := range current {
				if r <= s.threshold {
					s.inliers++
				}
				s.cost += math.Min(r, s.threshold)
			}
		default:
			s.threshold = cfg.Threshold
			for _, r := range current {
				if r <= s.threshold {
					s.inliers++
					s.cost += r
				}
			}
		}
		return s
	}

	var (
		best      outcome[M]
		found     bool
		bound     = cfg.MaxIterations
		iter      int
		lastNoted float64
		stop      bool
	)
	if n == m {
		// Only one distinct sample exists.
		bound = 1
	}
	best.residuals = make([]float64, n)

	for iter < bound && !stop {
		sampler.Sample(sample)
		for _, candidate := range model.Fit(sample) {
			if !e.acceptable(candidate) {
				continue
			}
			s := evaluate(candidate)
			if found && !pol.better(s, best.score) {
				continue
			}
			found = true
			best.model = candidate
			best.score = s
			best.residuals, current = current, best.residuals

			// The median threshold of any candidate admits at least half
			// the data, so the median policies count support under the
			// fixed stop threshold when deciding how long to run.
			threshold, support := s.threshold, s.inliers
			if pol.scoring == scoreMedian {
				threshold = cfg.StopThreshold
				support = countWithin(best.residuals, threshold)
			}
			if pol.progressive {
				prosac.update(best.residuals, threshold)
				if support >= prosac.minTotal && prosac.kStar < bound {
					bound = prosac.kStar
				}
			} else {
				w := float64(support) / float64(n)
				if pol.scoring == scoreMedian {
					w = math.Max(w, medianBreakdown)
				}
				if k := IterationsFor(w, m, cfg.Confidence, cfg.MaxIterations); k < bound {
					bound = k
				}
			}
			if pol.scoring == scoreMedian && s.robust < cfg.StopThreshold {
				stop = true
			}
		}
		iter++

		if e.listener != nil {
			e.listener.OnEstimateNextIteration(e, iter)
			progress := math.Min(1, float64(iter)/float64(bound))
			if progress-lastNoted > cfg.ProgressDelta {
				lastNoted = progress
				e.listener.OnEstimateProgressChange(e, progress)
			}
		}
	}

	if !found {
		return nil, errors.Wrapf(ErrEstimationFailed, "%v: no suitable model after %d iterations", e.method, iter)
	}
	best.iterations = iter
	return &best, nil
}

// prosacState tracks the PROSAC stopping rule for the current best model:
// the prefix of the quality order whose inlier ratio is maximal among the
// prefixes passing the non-randomness test, and the number of samples
// that prefix calls for.
type prosacState struct {
	order      []int
	m          int
	confidence float64
	maxIter    int
	minTotal   int
	// minInliers[n] is the non-randomness bound of the prefix of length n.
	minInliers []int
	nStar      int
	inStar     int
	kStar      int
}

func newProsacState(order []int, m int, confidence float64, maxIter int) *prosacState {
	total := len(order)
	minInliers := make([]int, total+1)
	for n := m; n <= total; n++ {
		minInliers[n] = prosacMinInliers(m, n)
	}
	return &prosacState{
		order:      order,
		m:          m,
		confidence: confidence,
		maxIter:    maxIter,
		minTotal:   int(math.Ceil((1 - prosacMaxOutliers) * float64(total))),
		minInliers: minInliers,
		nStar:      total,
		kStar:      maxIter,
	}
}

// update recomputes the stopping rule from the residuals of a new best
// model. Without a prefix passing the non-randomness test the rule falls
// back to the whole set and the iteration cap.
func (s *prosacState) update(residuals []float64, threshold float64) {
	total := len(s.order)
	in := 0
	for _, idx := range s.order {
		if residuals[idx] <= threshold {
			in++
		}
	}
	bestN, bestIn := total, 0
	for n := total; n >= s.m; n-- {
		if in >= s.minInliers[n] && in*bestN > bestIn*n {
			bestN, bestIn = n, in
		}
		if residuals[s.order[n-1]] <= threshold {
			in--
		}
	}
	if bestIn == 0 {
		s.nStar, s.inStar, s.kStar = total, 0, s.maxIter
		return
	}
	s.nStar, s.inStar = bestN, bestIn
	s.kStar = IterationsFor(float64(bestIn)/float64(bestN), s.m, s.confidence, s.maxIter)
}

// countWithin is the number of residuals not above threshold.
func countWithin(residuals []float64, threshold float64) int {
	n := 0
	for _, r := range residuals {
		if r <= threshold {
			n++
		}
	}
	return n
}
