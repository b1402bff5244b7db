package robust

import (
	"math"
)

const (
	// DefaultThreshold is the inlier threshold used when a family does not
	// provide its own.
	DefaultThreshold = 1e-3
	// DefaultConfidence is the probability that at least one sample is
	// outlier free.
	DefaultConfidence = 0.99
	// DefaultMaxIterations caps the number of samples drawn.
	DefaultMaxIterations = 5000
	// DefaultProgressDelta is the minimum progress change reported.
	DefaultProgressDelta = 0.05
	// DefaultStopThreshold ends the median methods early.
	DefaultStopThreshold = 1e-3
	// DefaultInlierFactor scales the robust standard deviation into the
	// inlier threshold of the median methods.
	DefaultInlierFactor = 1.5
)

// Config holds the tunables shared by all methods. Fields a method does not
// use are ignored by it.
type Config struct {
	// Threshold classifies inliers for RANSAC, MSAC and PROSAC.
	Threshold float64 `yaml:"threshold"`
	// Confidence is in (0, 1].
	Confidence float64 `yaml:"confidence"`
	// MaxIterations is at least 1.
	MaxIterations int `yaml:"max_iterations"`
	// ProgressDelta is in [0, 1].
	ProgressDelta float64 `yaml:"progress_delta"`
	// StopThreshold ends LMedS and PROMedS once the robust threshold falls
	// below it. It is also the floor of that threshold.
	StopThreshold float64 `yaml:"stop_threshold"`
	// InlierFactor is positive.
	InlierFactor float64 `yaml:"inlier_factor"`
	// Seed seeds the sampler. Zero seeds from the clock.
	Seed int64 `yaml:"seed"`
	// ComputeAndKeepInliers retains the inlier flags in InliersData.
	ComputeAndKeepInliers bool `yaml:"keep_inliers"`
	// ComputeAndKeepResiduals retains the residuals in InliersData.
	ComputeAndKeepResiduals bool `yaml:"keep_residuals"`
}

// DefaultConfig returns the defaults shared by every family.
func DefaultConfig() Config {
	return Config{
		Threshold:               DefaultThreshold,
		Confidence:              DefaultConfidence,
		MaxIterations:           DefaultMaxIterations,
		ProgressDelta:           DefaultProgressDelta,
		StopThreshold:           DefaultStopThreshold,
		InlierFactor:            DefaultInlierFactor,
		ComputeAndKeepInliers:   true,
		ComputeAndKeepResiduals: true,
	}
}

// Validate checks every range.
func (c Config) Validate() error {
	if err := validateThreshold(c.Threshold); err != nil {
		return err
	}
	if err := validateConfidence(c.Confidence); err != nil {
		return err
	}
	if err := validateMaxIterations(c.MaxIterations); err != nil {
		return err
	}
	if err := validateProgressDelta(c.ProgressDelta); err != nil {
		return err
	}
	if err := validateStopThreshold(c.StopThreshold); err != nil {
		return err
	}
	return validateInlierFactor(c.InlierFactor)
}

func validateThreshold(v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return invalid("threshold must be positive, got %v", v)
	}
	return nil
}

func validateConfidence(v float64) error {
	if !(v > 0 && v <= 1) {
		return invalid("confidence must be in (0, 1], got %v", v)
	}
	return nil
}

func validateMaxIterations(v int) error {
	if v < 1 {
		return invalid("max iterations must be at least 1, got %d", v)
	}
	return nil
}

func validateProgressDelta(v float64) error {
	if !(v >= 0 && v <= 1) {
		return invalid("progress delta must be in [0, 1], got %v", v)
	}
	return nil
}

func validateStopThreshold(v float64) error {
	if !(v >= 0) || math.IsInf(v, 0) {
		return invalid("stop threshold must be non-negative, got %v", v)
	}
	return nil
}

func validateInlierFactor(v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return invalid("inlier factor must be positive, got %v", v)
	}
	return nil
}
