// Package result provides result file handling and persistence.
package result

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"robust-geometry/pkg/robust"
)

// FormatVersion is the version written to new result files.
const FormatVersion = 1

// File represents one robustfit result (.json).
type File struct {
	Version int       `json:"version"`
	Tool    string    `json:"tool,omitempty"`
	Created time.Time `json:"created"`

	Family string `json:"family"`
	Method string `json:"method"`

	// Input path (relative to the result file). Empty for synthetic data.
	InputPath string `json:"input,omitempty"`

	// Model holds the family's model coefficients.
	Model []float64 `json:"model"`

	Iterations         int       `json:"iterations"`
	NumData            int       `json:"num_data"`
	NumInliers         int       `json:"num_inliers"`
	Inliers            []int     `json:"inliers,omitempty"`
	Residuals          []float64 `json:"residuals,omitempty"`
	EstimatedThreshold float64   `json:"estimated_threshold,omitempty"`
	BestMedian         float64   `json:"best_median,omitempty"`

	// Covariance rows, present when it was kept.
	Covariance [][]float64 `json:"covariance,omitempty"`
}

// New creates a result file from a finished estimation.
func New(family string, model []float64, numData int, d *robust.InliersData, cov *mat.SymDense) *File {
	f := &File{
		Version:    FormatVersion,
		Created:    time.Now(),
		Family:     family,
		Method:     d.Method().String(),
		Model:      model,
		Iterations: d.Iterations(),
		NumData:    numData,
		NumInliers: d.NumInliers(),
		Inliers:    d.InlierIndices(),
		Residuals:  d.Residuals(),
	}
	if d.Method().UsesMedian() {
		f.EstimatedThreshold = d.EstimatedThreshold()
		f.BestMedian = d.BestMedianResidual()
	}
	if cov != nil {
		n := cov.SymmetricDim()
		f.Covariance = make([][]float64, n)
		for i := range f.Covariance {
			f.Covariance[i] = make([]float64, n)
			for j := range f.Covariance[i] {
				f.Covariance[i][j] = cov.At(i, j)
			}
		}
	}
	return f
}

// Load loads a result from a file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read result file")
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse result file")
	}
	if f.Version > FormatVersion {
		return nil, errors.Errorf("result file version %d is newer than %d", f.Version, FormatVersion)
	}
	return &f, nil
}

// Save saves the result to a file.
func (f *File) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode result")
	}
	return os.WriteFile(path, data, 0644)
}

// SetInput sets the input path (relative to the result file).
func (f *File) SetInput(resultPath, inputPath string) {
	rel, err := filepath.Rel(filepath.Dir(resultPath), inputPath)
	if err != nil {
		f.InputPath = inputPath
	} else {
		f.InputPath = rel
	}
}

// GetInputPath returns the absolute path to the input, or "" for
// synthetic data.
func (f *File) GetInputPath(resultPath string) string {
	if f.InputPath == "" {
		return ""
	}
	if filepath.IsAbs(f.InputPath) {
		return f.InputPath
	}
	return filepath.Join(filepath.Dir(resultPath), f.InputPath)
}
