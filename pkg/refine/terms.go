package refine

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// UnitNorm returns a gauge term that keeps a homogeneous parameter vector
// at unit length, removing the scale freedom from the normal matrix. With
// indices only those parameters are measured.
func UnitNorm(weight float64, indices ...int) Term {
	return Term{
		Name:   "unit-norm",
		Size:   1,
		Weight: weight,
		Eval: func(dst, p []float64) {
			if len(indices) == 0 {
				dst[0] = floats.Norm(p, 2) - 1
				return
			}
			var sum float64
			for _, i := range indices {
				sum += p[i] * p[i]
			}
			dst[0] = math.Sqrt(sum) - 1
		},
	}
}

// Prior pulls the parameters at indices toward target.
func Prior(name string, indices []int, target []float64, weight float64) Term {
	return Term{
		Name:   name,
		Size:   len(indices),
		Weight: weight,
		Eval: func(dst, p []float64) {
			for k, i := range indices {
				dst[k] = p[i] - target[k]
			}
		},
	}
}
