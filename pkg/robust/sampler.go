package robust

import (
	"math"
	"sort"

	"golang.org/x/exp/rand"
)

// Sampler fills dst with distinct correspondence indices.
type Sampler interface {
	Sample(dst []int)
}

// NewUniformSampler draws subsets of [0, n) uniformly without replacement.
func NewUniformSampler(n int, rng *rand.Rand) Sampler {
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	return &uniformSampler{pool: pool, rng: rng}
}

type uniformSampler struct {
	pool []int
	rng  *rand.Rand
}

// Sample runs a partial Fisher-Yates shuffle over a persistent permutation.
func (s *uniformSampler) Sample(dst []int) {
	n := len(s.pool)
	for k := range dst {
		j := k + s.rng.Intn(n-k)
		s.pool[k], s.pool[j] = s.pool[j], s.pool[k]
		dst[k] = s.pool[k]
	}
}

// qualityOrder returns the indices sorted by decreasing quality. Equal
// scores keep their input order.
func qualityOrder(quality []float64) []int {
	order := make([]int, len(quality))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return quality[order[a]] > quality[order[b]]
	})
	return order
}

// progressiveSampler draws from a growing prefix of the quality order
// following the PROSAC growth function. The prefix keeps growing until it
// covers every correspondence; the termination length only bounds the
// number of samples.
type progressiveSampler struct {
	order   []int
	m       int
	rng     *rand.Rand
	t       int
	n       int
	tn      float64
	tnPrime int
}

func newProgressiveSampler(order []int, m, maxIterations int, rng *rand.Rand) *progressiveSampler {
	total := len(order)
	tn := float64(maxIterations)
	for i := 0; i < m; i++ {
		tn *= float64(m-i) / float64(total-i)
	}
	return &progressiveSampler{
		order:   order,
		m:       m,
		rng:     rng,
		n:       m,
		tn:      tn,
		tnPrime: 1,
	}
}

func (s *progressiveSampler) Sample(dst []int) {
	s.t++
	if s.t > s.tnPrime && s.n < len(s.order) {
		next := s.tn * float64(s.n+1) / float64(s.n+1-s.m)
		s.n++
		s.tnPrime += int(math.Ceil(next - s.tn))
		s.tn = next
	}
	if s.t > s.tnPrime {
		s.draw(dst, s.n)
		return
	}
	// The newest element of the prefix is always part of the sample.
	s.draw(dst[:s.m-1], s.n-1)
	dst[s.m-1] = s.order[s.n-1]
}

// subset is the current prefix length.
func (s *progressiveSampler) subset() int { return s.n }

// draw picks len(dst) distinct positions from the first k of the order.
func (s *progressiveSampler) draw(dst []int, k int) {
	for i := range dst {
		for {
			idx := s.order[s.rng.Intn(k)]
			if !containsIndex(dst[:i], idx) {
				dst[i] = idx
				break
			}
		}
	}
}

func containsIndex(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
