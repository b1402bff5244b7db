// Package config loads run configurations for the robustfit command.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"robust-geometry/pkg/robust"
)

// Families lists the estimator families the command can run.
var Families = []string{
	"line2d", "point2d", "plane", "point3d", "conic",
	"quadric", "affine", "homography", "camera", "pose",
	"line3d", "linecamera",
}

// maxFileSize bounds the config file.
const maxFileSize = 1 << 20

// RunConfig is one robustfit run. Omitted fields keep their defaults, so
// partial files are safe.
type RunConfig struct {
	Family *string        `yaml:"family,omitempty"`
	Method *robust.Method `yaml:"method,omitempty"`

	// Estimator settings, overlaid on the family defaults.
	Threshold     *float64 `yaml:"threshold,omitempty"`
	Confidence    *float64 `yaml:"confidence,omitempty"`
	MaxIterations *int     `yaml:"max_iterations,omitempty"`
	ProgressDelta *float64 `yaml:"progress_delta,omitempty"`
	StopThreshold *float64 `yaml:"stop_threshold,omitempty"`
	InlierFactor  *float64 `yaml:"inlier_factor,omitempty"`
	Seed          *int64   `yaml:"seed,omitempty"`

	Refine         *bool `yaml:"refine,omitempty"`
	FastRefinement *bool `yaml:"fast_refinement,omitempty"`
	KeepCovariance *bool `yaml:"keep_covariance,omitempty"`

	// Input is a CSV file of correspondences. Without it synthetic data
	// is generated.
	Input     *string    `yaml:"input,omitempty"`
	Synthetic *Synthetic `yaml:"synthetic,omitempty"`
}

// Synthetic describes generated data.
type Synthetic struct {
	Count    *int     `yaml:"count,omitempty"`
	Outliers *float64 `yaml:"outliers,omitempty"`
	Noise    *float64 `yaml:"noise,omitempty"`
	Seed     *uint64  `yaml:"seed,omitempty"`
}

// Load reads a RunConfig from a YAML file. Unknown keys are an error.
func Load(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, errors.Errorf("config file must have .yaml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat config file")
	}
	if info.Size() > maxFileSize {
		return nil, errors.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse decodes and validates a RunConfig.
func Parse(data []byte) (*RunConfig, error) {
	cfg := &RunConfig{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "failed to parse config YAML")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *RunConfig) Validate() error {
	if c.Family != nil && !knownFamily(*c.Family) {
		return errors.Errorf("unknown family %q", *c.Family)
	}
	if c.Method != nil && !c.Method.Valid() {
		return errors.Errorf("unknown method %d", int(*c.Method))
	}
	if _, err := c.Apply(robust.DefaultConfig()); err != nil {
		return err
	}
	if s := c.Synthetic; s != nil {
		if s.Count != nil && *s.Count < 1 {
			return errors.Errorf("synthetic count must be positive, got %d", *s.Count)
		}
		if s.Outliers != nil && (*s.Outliers < 0 || *s.Outliers > 1) {
			return errors.Errorf("synthetic outliers must be between 0 and 1, got %f", *s.Outliers)
		}
		if s.Noise != nil && *s.Noise < 0 {
			return errors.Errorf("synthetic noise must be non-negative, got %f", *s.Noise)
		}
	}
	return nil
}

func knownFamily(name string) bool {
	for _, f := range Families {
		if f == name {
			return true
		}
	}
	return false
}

// Apply overlays the set fields on base and validates the result.
func (c *RunConfig) Apply(base robust.Config) (robust.Config, error) {
	out := base
	if c.Threshold != nil {
		out.Threshold = *c.Threshold
	}
	if c.Confidence != nil {
		out.Confidence = *c.Confidence
	}
	if c.MaxIterations != nil {
		out.MaxIterations = *c.MaxIterations
	}
	if c.ProgressDelta != nil {
		out.ProgressDelta = *c.ProgressDelta
	}
	if c.StopThreshold != nil {
		out.StopThreshold = *c.StopThreshold
	}
	if c.InlierFactor != nil {
		out.InlierFactor = *c.InlierFactor
	}
	if c.Seed != nil {
		out.Seed = *c.Seed
	}
	if err := out.Validate(); err != nil {
		return base, err
	}
	return out, nil
}

// FamilyOr returns the family or def when unset.
func (c *RunConfig) FamilyOr(def string) string {
	if c.Family == nil {
		return def
	}
	return *c.Family
}

// MethodOr returns the method or def when unset.
func (c *RunConfig) MethodOr(def robust.Method) robust.Method {
	if c.Method == nil {
		return def
	}
	return *c.Method
}

// BoolOr returns *b or def when b is nil.
func BoolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// IntOr returns *v or def when v is nil.
func IntOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// FloatOr returns *v or def when v is nil.
func FloatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
