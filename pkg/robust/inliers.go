package robust

// InliersData describes the correspondences the winning model explains.
// It is rebuilt on every successful Estimate and never mutated afterwards.
type InliersData struct {
	method     Method
	inliers    []bool
	residuals  []float64
	numInliers int
	threshold  float64
	median     float64
	iterations int
}

// Method is the method that produced the data.
func (d *InliersData) Method() Method { return d.method }

// NumInliers is the number of correspondences within the threshold.
func (d *InliersData) NumInliers() int { return d.numInliers }

// Inliers returns a copy of the inlier flags, or nil when they were not kept.
func (d *InliersData) Inliers() []bool {
	if d.inliers == nil {
		return nil
	}
	out := make([]bool, len(d.inliers))
	copy(out, d.inliers)
	return out
}

// IsInlier reports whether correspondence i is an inlier. It is false
// when the flags were not kept.
func (d *InliersData) IsInlier(i int) bool {
	return i >= 0 && i < len(d.inliers) && d.inliers[i]
}

// InlierIndices returns the inlier positions in ascending order, or nil
// when the flags were not kept.
func (d *InliersData) InlierIndices() []int {
	if d.inliers == nil {
		return nil
	}
	out := make([]int, 0, d.numInliers)
	for i, in := range d.inliers {
		if in {
			out = append(out, i)
		}
	}
	return out
}

// Residuals returns a copy of the residuals of the winning candidate, or
// nil when they were not kept.
func (d *InliersData) Residuals() []float64 {
	if d.residuals == nil {
		return nil
	}
	out := make([]float64, len(d.residuals))
	copy(out, d.residuals)
	return out
}

// EstimatedThreshold is the threshold used to classify inliers: the
// configured one for RANSAC, MSAC and PROSAC, the robust one otherwise.
func (d *InliersData) EstimatedThreshold() float64 { return d.threshold }

// BestMedianResidual is the least median of squared residuals found by
// LMedS and PROMedS. It is zero for the other methods.
func (d *InliersData) BestMedianResidual() float64 { return d.median }

// Iterations is the number of samples drawn.
func (d *InliersData) Iterations() int { return d.iterations }
