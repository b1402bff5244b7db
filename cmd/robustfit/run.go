package main

import (
	"fmt"
	"math"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"robust-geometry/internal/config"
	"robust-geometry/internal/result"
	"robust-geometry/internal/synth"
	"robust-geometry/internal/version"
	"robust-geometry/pkg/estimators"
	"robust-geometry/pkg/geometry"
	"robust-geometry/pkg/robust"
)

// run carries the inputs of one invocation. rows is set for CSV input,
// gen for synthetic input.
type run struct {
	logger     golog.Logger
	cfg        *config.RunConfig
	method     robust.Method
	intrinsics geometry.Intrinsics
	verbose    bool
	family     string
	output     string

	rows    [][]float64
	quality []float64

	gen      *synth.Generator
	count    int
	outliers float64
}

func (r *run) synthetic() bool { return r.rows == nil }

// options returns the estimator options for quality scores q. Methods
// that need scores get uniform ones when the input has none.
func (r *run) options(q []float64, n int) []estimators.Option {
	if q == nil && r.method.RequiresQualityScores() {
		r.logger.Warnw("no quality scores, using uniform ones", "method", r.method)
		q = make([]float64, n)
		for i := range q {
			q[i] = 1
		}
	}
	opts := []estimators.Option{
		estimators.WithMethod(r.method),
		estimators.WithLogger(r.logger),
	}
	if q != nil {
		opts = append(opts, estimators.WithQualityScores(q))
	}
	return opts
}

// execute overlays the run configuration on the family defaults, runs the
// estimator and prints the outcome. params flattens a model for the result
// file; describe defaults to printing params.
func execute[M any](r *run, e *robust.Estimator[M], params func(M) []float64, describe func(M) string) error {
	if describe == nil {
		describe = func(m M) string { return fmt.Sprint(params(m)) }
	}
	cfg, err := r.cfg.Apply(e.Config())
	if err != nil {
		return errors.Wrap(err, "invalid estimator settings")
	}
	if err := e.SetConfig(cfg); err != nil {
		return err
	}
	if err := e.SetRefineResult(config.BoolOr(r.cfg.Refine, true)); err != nil {
		return err
	}
	if err := e.SetUseFastRefinement(config.BoolOr(r.cfg.FastRefinement, false)); err != nil {
		return err
	}
	if err := e.SetKeepCovariance(config.BoolOr(r.cfg.KeepCovariance, true)); err != nil {
		return err
	}

	model, err := e.Estimate()
	if err != nil {
		return err
	}

	d := e.InliersData()
	fmt.Printf("\n=== Result ===\n")
	fmt.Printf("Model: %s\n", describe(model))
	fmt.Printf("Iterations: %d\n", d.Iterations())
	fmt.Printf("Inliers: %d / %d\n", d.NumInliers(), e.Model().NumData())
	if e.Method().UsesMedian() {
		fmt.Printf("Best median residual: %g\n", d.BestMedianResidual())
		fmt.Printf("Estimated threshold: %g\n", d.EstimatedThreshold())
	}
	if r.verbose {
		residuals := d.Residuals()
		for i, res := range residuals {
			mark := " "
			if d.IsInlier(i) {
				mark = "*"
			}
			fmt.Printf("  %s %4d  %g\n", mark, i, res)
		}
	}
	if cov := e.Covariance(); cov != nil {
		fmt.Printf("\n=== Covariance ===\n")
		fmt.Printf("%v\n", mat.Formatted(cov, mat.Squeeze()))
	}

	if r.output != "" {
		f := result.New(r.family, params(model), e.Model().NumData(), d, e.Covariance())
		f.Tool = version.String("robustfit")
		if r.cfg.Input != nil {
			f.SetInput(r.output, *r.cfg.Input)
		}
		if err := f.Save(r.output); err != nil {
			return errors.Wrap(err, "failed to save result")
		}
		fmt.Printf("\nResult written to %s\n", r.output)
	}
	return nil
}

// summarize prints how many true outliers the estimator flagged, for
// synthetic data where the corruption is known.
func summarize(d *robust.InliersData, errs []float64) {
	if d == nil || d.Inliers() == nil {
		return
	}
	var corrupted, caught int
	for i, e := range errs {
		if e == 0 {
			continue
		}
		corrupted++
		if !d.IsInlier(i) {
			caught++
		}
	}
	fmt.Printf("Outliers rejected: %d / %d\n", caught, corrupted)
}

var runners = map[string]func(*run) error{
	"line2d":     runLine2D,
	"point2d":    runPoint2D,
	"plane":      runPlane,
	"point3d":    runPoint3D,
	"conic":      runConic,
	"quadric":    runQuadric,
	"affine":     runAffine,
	"homography": runHomography,
	"camera":     runCamera,
	"pose":       runPose,
	"line3d":     runLine3D,
	"linecamera": runLineCamera,
}

func runLine2D(r *run) error {
	var points []geometry.Point2D
	var errs []float64
	q := r.quality
	if r.synthetic() {
		truth, _ := geometry.LineThrough(geometry.NewPoint2D(0, 1), geometry.NewPoint2D(1, 2))
		fmt.Printf("True line: %+v\n", truth)
		points = r.gen.PointsOnLine(truth, r.count, 10)
		errs = r.gen.Corrupt2D(points, r.outliers, 1)
		q = synth.QualityScores(errs)
	} else {
		points = points2D(r.rows, 0)
	}
	e, err := estimators.NewLine2DEstimator(points, r.options(q, len(points))...)
	if err != nil {
		return err
	}
	if err := execute(r, e.Estimator, func(l geometry.Line2D) []float64 { return []float64{l.A, l.B, l.C} }, nil); err != nil {
		return err
	}
	summarize(e.InliersData(), errs)
	return nil
}

func runPoint2D(r *run) error {
	var ls []geometry.Line2D
	var errs []float64
	q := r.quality
	if r.synthetic() {
		truth := geometry.NewPoint2D(2, -1)
		fmt.Printf("True point: %+v\n", truth)
		ls = r.gen.LinesThrough(truth, r.count)
		errs = r.gen.Perturb(len(ls), r.outliers, 0.5, 5, func(i int, a float64) { ls[i].C += a })
		q = synth.QualityScores(errs)
	} else {
		ls = lines(r.rows, 0)
	}
	e, err := estimators.NewPoint2DEstimator(ls, r.options(q, len(ls))...)
	if err != nil {
		return err
	}
	if err := execute(r, e.Estimator, func(p geometry.Point2D) []float64 { return []float64{p.X, p.Y} }, nil); err != nil {
		return err
	}
	summarize(e.InliersData(), errs)
	return nil
}

func runPlane(r *run) error {
	var points []geometry.Point3D
	var errs []float64
	q := r.quality
	if r.synthetic() {
		truth, _ := geometry.NewPlane(1, 2, -1, 3)
		fmt.Printf("True plane: %+v\n", truth)
		points = r.gen.PointsOnPlane(truth, r.count, 10)
		errs = r.gen.Corrupt3D(points, r.outliers, 1)
		q = synth.QualityScores(errs)
	} else {
		points = points3D(r.rows, 0)
	}
	e, err := estimators.NewPlaneEstimator(points, r.options(q, len(points))...)
	if err != nil {
		return err
	}
	if err := execute(r, e.Estimator, func(p geometry.Plane) []float64 { return []float64{p.A, p.B, p.C, p.D} }, nil); err != nil {
		return err
	}
	summarize(e.InliersData(), errs)
	return nil
}

func runPoint3D(r *run) error {
	var ps []geometry.Plane
	var errs []float64
	q := r.quality
	if r.synthetic() {
		truth := geometry.NewPoint3D(1, -2, 0.5)
		fmt.Printf("True point: %+v\n", truth)
		ps = r.gen.PlanesThrough(truth, r.count)
		errs = r.gen.Perturb(len(ps), r.outliers, 0.5, 5, func(i int, a float64) { ps[i].D += a })
		q = synth.QualityScores(errs)
	} else {
		ps = planes(r.rows)
	}
	e, err := estimators.NewPoint3DEstimator(ps, r.options(q, len(ps))...)
	if err != nil {
		return err
	}
	if err := execute(r, e.Estimator, func(p geometry.Point3D) []float64 { return []float64{p.X, p.Y, p.Z} }, nil); err != nil {
		return err
	}
	summarize(e.InliersData(), errs)
	return nil
}

func runConic(r *run) error {
	var points []geometry.Point2D
	var errs []float64
	q := r.quality
	if r.synthetic() {
		center := geometry.NewPoint2D(1, 2)
		fmt.Printf("True conic: %v\n", synth.Ellipse(center, 4, 2, 0.3).Params())
		points = r.gen.PointsOnEllipse(center, 4, 2, 0.3, r.count)
		errs = r.gen.Corrupt2D(points, r.outliers, 1)
		q = synth.QualityScores(errs)
	} else {
		points = points2D(r.rows, 0)
	}
	e, err := estimators.NewConicEstimator(points, r.options(q, len(points))...)
	if err != nil {
		return err
	}
	if err := execute(r, e.Estimator, geometry.Conic.Params, nil); err != nil {
		return err
	}
	summarize(e.InliersData(), errs)
	return nil
}

func runQuadric(r *run) error {
	var points []geometry.Point3D
	var errs []float64
	q := r.quality
	if r.synthetic() {
		center := geometry.NewPoint3D(0.5, -1, 2)
		truth, _ := geometry.Sphere(center, 3).Normalize()
		fmt.Printf("True quadric: %v\n", truth.Params())
		points = r.gen.PointsOnSphere(center, 3, r.count)
		errs = r.gen.Corrupt3D(points, r.outliers, 1)
		q = synth.QualityScores(errs)
	} else {
		points = points3D(r.rows, 0)
	}
	e, err := estimators.NewQuadricEstimator(points, r.options(q, len(points))...)
	if err != nil {
		return err
	}
	if err := execute(r, e.Estimator, geometry.Quadric.Params, nil); err != nil {
		return err
	}
	summarize(e.InliersData(), errs)
	return nil
}

func runAffine(r *run) error {
	var src, dst []geometry.Point2D
	var errs []float64
	q := r.quality
	if r.synthetic() {
		truth := geometry.Translation(12, -7).Compose(geometry.Rotation2D(0.2)).Compose(geometry.Scale(1.1, 0.9))
		fmt.Printf("True transform: %+v\n", truth)
		src = r.gen.Points2D(r.count, 100)
		dst = r.gen.Transform2D(src, truth.Apply)
		errs = r.gen.Corrupt2D(dst, r.outliers, 50)
		q = synth.QualityScores(errs)
	} else {
		src, dst = points2D(r.rows, 0), points2D(r.rows, 2)
	}
	e, err := estimators.NewAffineEstimator(src, dst, r.options(q, len(src))...)
	if err != nil {
		return err
	}
	describe := func(t geometry.AffineTransform) string {
		angle := math.Atan2(t.C, t.A) * 180 / math.Pi
		return fmt.Sprintf("%+v (rotation %.4f°, det %.4f)", t, angle, t.Det())
	}
	if err := execute(r, e.Estimator, geometry.AffineTransform.Params, describe); err != nil {
		return err
	}
	summarize(e.InliersData(), errs)
	return nil
}

func runHomography(r *run) error {
	var src, dst []geometry.Point2D
	var errs []float64
	q := r.quality
	if r.synthetic() {
		truth, _ := geometry.ProjectiveTransform{1.05, 0.1, 12, -0.08, 0.95, -7, 2e-4, -1e-4, 1}.Normalize()
		fmt.Printf("True homography: %v\n", truth.Params())
		src = r.gen.Points2D(r.count, 100)
		dst = r.gen.Transform2D(src, func(p geometry.Point2D) geometry.Point2D {
			out, _ := truth.Apply(p)
			return out
		})
		errs = r.gen.Corrupt2D(dst, r.outliers, 50)
		q = synth.QualityScores(errs)
	} else {
		src, dst = points2D(r.rows, 0), points2D(r.rows, 2)
	}
	e, err := estimators.NewHomographyEstimator(src, dst, r.options(q, len(src))...)
	if err != nil {
		return err
	}
	if err := execute(r, e.Estimator, geometry.ProjectiveTransform.Params, nil); err != nil {
		return err
	}
	summarize(e.InliersData(), errs)
	return nil
}

// cameraScene places a camera 10 units from the origin looking at points
// spread around it.
func (r *run) cameraScene() (geometry.PinholeCamera, []geometry.Point3D, []geometry.Point2D, []float64) {
	truth := r.gen.Camera(r.intrinsics, 10)
	world := r.gen.Points3D(geometry.Point3D{}, r.count, 2)
	image := r.gen.Project(truth, world)
	errs := r.gen.Corrupt2D(image, r.outliers, 50)
	return truth, world, image, errs
}

func describeCamera(c geometry.PinholeCamera) string {
	return fmt.Sprintf("K=%+v center=%+v rotation=%v", c.Intrinsics, c.Center, c.Rotation)
}

// cameraValues flattens a camera as fx, fy, skew, cx, cy, the row-major
// rotation and the center.
func cameraValues(c geometry.PinholeCamera) []float64 {
	k := c.Intrinsics
	out := []float64{k.FocalX, k.FocalY, k.Skew, k.PrincipalX, k.PrincipalY}
	out = append(out, c.Rotation[:]...)
	return append(out, c.Center.X, c.Center.Y, c.Center.Z)
}

func runCamera(r *run) error {
	var world []geometry.Point3D
	var image []geometry.Point2D
	var errs []float64
	q := r.quality
	if r.synthetic() {
		var truth geometry.PinholeCamera
		truth, world, image, errs = r.cameraScene()
		fmt.Printf("True camera: %s\n", describeCamera(truth))
		q = synth.QualityScores(errs)
	} else {
		world, image = points3D(r.rows, 0), points2D(r.rows, 3)
	}
	e, err := estimators.NewCameraEstimator(world, image, r.options(q, len(world))...)
	if err != nil {
		return err
	}
	if err := execute(r, e.Estimator, cameraValues, describeCamera); err != nil {
		return err
	}
	summarize(e.InliersData(), errs)
	return nil
}

func runPose(r *run) error {
	var world []geometry.Point3D
	var image []geometry.Point2D
	var errs []float64
	q := r.quality
	if r.synthetic() {
		var truth geometry.PinholeCamera
		truth, world, image, errs = r.cameraScene()
		fmt.Printf("True pose: center=%+v rotation=%v\n", truth.Center, truth.Rotation)
		q = synth.QualityScores(errs)
	} else {
		world, image = points3D(r.rows, 0), points2D(r.rows, 3)
	}
	e, err := estimators.NewPoseEstimator(world, image, r.intrinsics, r.options(q, len(world))...)
	if err != nil {
		return err
	}
	describe := func(c geometry.PinholeCamera) string {
		return fmt.Sprintf("center=%+v rotation=%v", c.Center, c.Rotation)
	}
	if err := execute(r, e.Estimator, cameraValues, describe); err != nil {
		return err
	}
	summarize(e.InliersData(), errs)
	return nil
}

func runLine3D(r *run) error {
	var points []geometry.Point3D
	var errs []float64
	q := r.quality
	if r.synthetic() {
		truth, _ := geometry.Line3DThrough(geometry.NewPoint3D(1, 0, 2), geometry.NewPoint3D(2, 1, 1))
		fmt.Printf("True line: %+v\n", truth)
		points = r.gen.PointsOnLine3D(truth, r.count, 10)
		errs = r.gen.Corrupt3D(points, r.outliers, 1)
		q = synth.QualityScores(errs)
	} else {
		points = points3D(r.rows, 0)
	}
	e, err := estimators.NewLine3DEstimator(points, r.options(q, len(points))...)
	if err != nil {
		return err
	}
	values := func(l geometry.Line3D) []float64 {
		return []float64{l.Point.X, l.Point.Y, l.Point.Z, l.Direction.X, l.Direction.Y, l.Direction.Z}
	}
	if err := execute(r, e.Estimator, values, nil); err != nil {
		return err
	}
	summarize(e.InliersData(), errs)
	return nil
}

func runLineCamera(r *run) error {
	var world []geometry.Line3D
	var image []geometry.Line2D
	var errs []float64
	q := r.quality
	if r.synthetic() {
		truth := r.gen.Camera(r.intrinsics, 10)
		fmt.Printf("True camera: %s\n", describeCamera(truth))
		world = r.gen.Lines3D(geometry.Point3D{}, r.count, 2)
		image = r.gen.ProjectLines(truth, world)
		errs = r.gen.Perturb(len(image), r.outliers, 25, 50, func(i int, a float64) { image[i].C += a })
		q = synth.QualityScores(errs)
	} else {
		var err error
		if world, err = lines3D(r.rows, 0); err != nil {
			return err
		}
		image = lines(r.rows, 6)
	}
	e, err := estimators.NewLineCameraEstimator(world, image, r.options(q, len(world))...)
	if err != nil {
		return err
	}
	if err := execute(r, e.Estimator, cameraValues, describeCamera); err != nil {
		return err
	}
	summarize(e.InliersData(), errs)
	return nil
}
