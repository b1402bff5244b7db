//go:build withcv

// Command cvcompare estimates a homography from the same synthetic
// correspondences with every robust method and with OpenCV's
// findHomography, and prints the transfer errors side by side.
//
// Build with -tags withcv; it needs OpenCV installed.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	"robust-geometry/internal/synth"
	"robust-geometry/internal/version"
	"robust-geometry/pkg/estimators"
	"robust-geometry/pkg/geometry"
	"robust-geometry/pkg/robust"
)

func main() {
	count := flag.Int("n", 200, "Number of correspondences")
	outliers := flag.Float64("outliers", 0.3, "Fraction of corrupted correspondences")
	noise := flag.Float64("noise", 0.5, "Pixel noise standard deviation")
	threshold := flag.Float64("t", 3, "Inlier threshold in pixels")
	seed := flag.Uint64("seed", 1, "Data seed")
	flag.Parse()

	fmt.Println(version.String("cvcompare"))
	logger := golog.NewDevelopmentLogger("cvcompare")

	truth, _ := geometry.ProjectiveTransform{1.05, 0.1, 12, -0.08, 0.95, -7, 2e-4, -1e-4, 1}.Normalize()
	gen := synth.New(*seed, *noise)
	src := gen.Points2D(*count, 500)
	dst := gen.Transform2D(src, func(p geometry.Point2D) geometry.Point2D {
		out, _ := truth.Apply(p)
		return out
	})
	errs := gen.Corrupt2D(dst, *outliers, 100)
	quality := synth.QualityScores(errs)

	clean := make([]int, 0, len(errs))
	for i, e := range errs {
		if e == 0 {
			clean = append(clean, i)
		}
	}

	fmt.Printf("=== %d correspondences, %d corrupted ===\n", *count, *count-len(clean))
	for _, m := range robust.Methods() {
		e, err := estimators.NewHomographyEstimator(src, dst,
			estimators.WithMethod(m),
			estimators.WithQualityScores(quality),
			estimators.WithLogger(logger))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create %v estimator: %v\n", m, err)
			os.Exit(1)
		}
		if err := e.SetThreshold(*threshold); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid threshold: %v\n", err)
			os.Exit(1)
		}
		if err := e.SetSeed(int64(*seed)); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid seed: %v\n", err)
			os.Exit(1)
		}
		h, err := e.Estimate()
		if err != nil {
			fmt.Printf("%-8v failed: %v\n", m, err)
			continue
		}
		report(m.String(), h, src, dst, clean, e.InliersData().NumInliers())
	}

	h, inliers, err := openCVHomography(src, dst, *threshold)
	if err != nil {
		fmt.Fprintf(os.Stderr, "OpenCV failed: %v\n", err)
		os.Exit(1)
	}
	report("OpenCV", h, src, dst, clean, inliers)
}

// report prints the mean and max transfer error over the uncorrupted
// correspondences.
func report(name string, h geometry.ProjectiveTransform, src, dst []geometry.Point2D, clean []int, inliers int) {
	transfer := make([]float64, 0, len(clean))
	for _, i := range clean {
		p, ok := h.Apply(src[i])
		if !ok {
			transfer = append(transfer, math.Inf(1))
			continue
		}
		transfer = append(transfer, p.Sub(dst[i]).Norm())
	}
	maxErr := 0.0
	for _, e := range transfer {
		maxErr = math.Max(maxErr, e)
	}
	fmt.Printf("%-8s inliers %4d  mean %.4f px  max %.4f px\n", name, inliers, stat.Mean(transfer, nil), maxErr)
}

// openCVHomography runs cv::findHomography with RANSAC.
func openCVHomography(src, dst []geometry.Point2D, threshold float64) (geometry.ProjectiveTransform, int, error) {
	srcMat := pointsMat(src)
	defer srcMat.Close()
	dstMat := pointsMat(dst)
	defer dstMat.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	hm := gocv.FindHomography(srcMat, &dstMat, gocv.HomograpyMethodRANSAC, threshold, &mask,
		robust.DefaultMaxIterations, robust.DefaultConfidence)
	defer hm.Close()
	if hm.Empty() {
		return geometry.ProjectiveTransform{}, 0, errors.New("no homography found")
	}

	var h geometry.ProjectiveTransform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[3*i+j] = hm.GetDoubleAt(i, j)
		}
	}
	h, ok := h.Normalize()
	if !ok {
		return geometry.ProjectiveTransform{}, 0, errors.New("degenerate homography")
	}
	return h, gocv.CountNonZero(mask), nil
}

func pointsMat(points []geometry.Point2D) gocv.Mat {
	m := gocv.NewMatWithSize(len(points), 2, gocv.MatTypeCV64F)
	for i, p := range points {
		m.SetDoubleAt(i, 0, p.X)
		m.SetDoubleAt(i, 1, p.Y)
	}
	return m
}
