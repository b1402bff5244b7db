package robust

// Model binds a model family to a correspondence set. Indices passed to its
// methods refer to positions in that set.
type Model[M any] interface {
	// NumData is the number of correspondences.
	NumData() int
	// SampleSize is the minimal number of correspondences Fit needs.
	SampleSize() int
	// Fit solves for the candidates consistent with a minimal sample.
	// Degenerate samples yield no candidates.
	Fit(sample []int) []M
	// Residual is the non-negative error of correspondence i under m.
	Residual(m M, i int) float64
	// Refit solves for the model over the given indices in the least
	// squares sense.
	Refit(indices []int) (M, error)
}

// SuitabilityChecker is implemented by models that reject some candidates
// before scoring, e.g. orientation-reversing homographies.
type SuitabilityChecker[M any] interface {
	IsSuitable(m M) bool
}

// Validator is implemented by models that can tell a non-finite candidate
// apart from a usable one.
type Validator[M any] interface {
	IsValid(m M) bool
}
