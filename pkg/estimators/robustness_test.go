package estimators

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robust-geometry/internal/synth"
	"robust-geometry/pkg/geometry"
	"robust-geometry/pkg/robust"
)

// lineWithClutter returns inliers points on y = 0 followed by outliers
// uniform points kept at least half a unit off the line.
func lineWithClutter(seed uint64, inliers, outliers int) (geometry.Line2D, []geometry.Point2D) {
	g := synth.New(seed, 0)
	truth, _ := geometry.NewLine2D(0, 1, 0)
	points := g.PointsOnLine(truth, inliers, 10)
	for _, p := range g.Points2D(outliers, 10) {
		if math.Abs(p.Y) < 0.5 {
			p.Y += math.Copysign(0.5, p.Y)
		}
		points = append(points, p)
	}
	return truth, points
}

func TestEveryMethodAcrossSeeds(t *testing.T) {
	truth, points := lineWithClutter(5, 70, 30)

	ordered := make([]float64, len(points))
	reversed := make([]float64, len(points))
	for i := range points {
		ordered[i] = 1 / float64(1+i)
		reversed[i] = 1 / float64(len(points)-i)
	}
	orderings := []struct {
		name    string
		quality []float64
	}{
		{"inliers first", ordered},
		{"outliers first", reversed},
	}

	for _, m := range robust.Methods() {
		for _, o := range orderings {
			if !m.RequiresQualityScores() && o.name != "inliers first" {
				continue
			}
			t.Run(m.String()+"/"+o.name, func(t *testing.T) {
				for seed := int64(1); seed <= 50; seed++ {
					e, err := NewLine2DEstimator(points, WithMethod(m), WithQualityScores(o.quality))
					require.NoError(t, err)
					require.NoError(t, e.SetSeed(seed))
					require.NoError(t, e.SetRefineResult(false))

					l, err := e.Estimate()
					require.NoError(t, err, "seed %d", seed)
					msg := fmt.Sprintf("seed %d got %+v", seed, l)
					assert.True(t, l.Equal(truth, 1e-6), msg)

					d := e.InliersData()
					require.NotNil(t, d)
					assert.Equal(t, 70, d.NumInliers(), msg)
					for i := 0; i < 70; i++ {
						assert.True(t, d.IsInlier(i), "%s point %d", msg, i)
					}
				}
			})
		}
	}
}
