// Package synth generates reproducible synthetic correspondences for tests
// and the command line tools.
package synth

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"robust-geometry/pkg/geometry"
)

// Generator draws geometric data from a seeded source. A zero Sigma gives
// exact data.
type Generator struct {
	rng   *rand.Rand
	noise distuv.Normal
	Sigma float64
}

// New returns a generator with Gaussian noise of standard deviation sigma.
func New(seed uint64, sigma float64) *Generator {
	src := rand.NewSource(seed)
	return &Generator{
		rng:   rand.New(src),
		noise: distuv.Normal{Mu: 0, Sigma: 1, Src: src},
		Sigma: sigma,
	}
}

// Uniform returns a value in [lo, hi).
func (g *Generator) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*g.rng.Float64()
}

// Noise returns one noise sample.
func (g *Generator) Noise() float64 {
	if g.Sigma == 0 {
		return 0
	}
	return g.Sigma * g.noise.Rand()
}

// Perm returns a permutation of [0, n).
func (g *Generator) Perm(n int) []int {
	return g.rng.Perm(n)
}

func (g *Generator) jitter2D(p geometry.Point2D) geometry.Point2D {
	return geometry.Point2D{X: p.X + g.Noise(), Y: p.Y + g.Noise()}
}

func (g *Generator) jitter3D(p geometry.Point3D) geometry.Point3D {
	return geometry.Point3D{X: p.X + g.Noise(), Y: p.Y + g.Noise(), Z: p.Z + g.Noise()}
}

// PointsOnLine returns n points of l within span of the point of l closest
// to the origin.
func (g *Generator) PointsOnLine(l geometry.Line2D, n int, span float64) []geometry.Point2D {
	l, _ = l.Normalize()
	foot := l.Normal().Mul(-l.C)
	dir := l.Direction()
	points := make([]geometry.Point2D, n)
	for i := range points {
		points[i] = g.jitter2D(foot.Add(dir.Mul(g.Uniform(-span, span))))
	}
	return points
}

// PointsOnPlane returns n points of p within span of the point of p
// closest to the origin.
func (g *Generator) PointsOnPlane(p geometry.Plane, n int, span float64) []geometry.Point3D {
	p, _ = p.Normalize()
	normal := p.Normal()
	foot := normal.Mul(-p.D)
	u := normal.Ortho()
	v := normal.Cross(u).Normalize()
	points := make([]geometry.Point3D, n)
	for i := range points {
		q := foot.Add(u.Mul(g.Uniform(-span, span))).Add(v.Mul(g.Uniform(-span, span)))
		points[i] = g.jitter3D(q)
	}
	return points
}

// PointsOnLine3D returns n points of l within span of l.Point.
func (g *Generator) PointsOnLine3D(l geometry.Line3D, n int, span float64) []geometry.Point3D {
	points := make([]geometry.Point3D, n)
	for i := range points {
		points[i] = g.jitter3D(l.At(g.Uniform(-span, span)))
	}
	return points
}

// PointsOnCircle generates n evenly-spaced points around a circle.
func (g *Generator) PointsOnCircle(center geometry.Point2D, radius float64, n int) []geometry.Point2D {
	return g.PointsOnEllipse(center, radius, radius, 0, n)
}

// PointsOnEllipse generates n evenly-spaced points (in the ellipse's
// parameter) around an ellipse with semi-axes a and b rotated by angle.
func (g *Generator) PointsOnEllipse(center geometry.Point2D, a, b, angle float64, n int) []geometry.Point2D {
	cos, sin := math.Cos(angle), math.Sin(angle)
	points := make([]geometry.Point2D, n)
	for i := 0; i < n; i++ {
		t := float64(i) * 2.0 * math.Pi / float64(n)
		x, y := a*math.Cos(t), b*math.Sin(t)
		points[i] = g.jitter2D(geometry.Point2D{
			X: center.X + cos*x - sin*y,
			Y: center.Y + sin*x + cos*y,
		})
	}
	return points
}

// Ellipse returns the conic matching PointsOnEllipse.
func Ellipse(center geometry.Point2D, a, b, angle float64) geometry.Conic {
	cos, sin := math.Cos(angle), math.Sin(angle)
	ia, ib := 1/(a*a), 1/(b*b)
	// Quadratic part R diag(1/a², 1/b²) Rᵀ.
	qa := cos*cos*ia + sin*sin*ib
	qb := 2 * cos * sin * (ia - ib)
	qc := sin*sin*ia + cos*cos*ib
	cx, cy := center.X, center.Y
	return geometry.Conic{
		A: qa,
		B: qb,
		C: qc,
		D: -2*qa*cx - qb*cy,
		E: -qb*cx - 2*qc*cy,
		F: qa*cx*cx + qb*cx*cy + qc*cy*cy - 1,
	}
}

// PointsOnSphere returns n points uniformly distributed over a sphere.
func (g *Generator) PointsOnSphere(center geometry.Point3D, radius float64, n int) []geometry.Point3D {
	points := make([]geometry.Point3D, n)
	for i := range points {
		points[i] = g.jitter3D(center.Add(g.UnitVector().Mul(radius)))
	}
	return points
}

// UnitVector returns a direction drawn uniformly from the unit sphere.
func (g *Generator) UnitVector() geometry.Point3D {
	z := g.Uniform(-1, 1)
	phi := g.Uniform(0, 2*math.Pi)
	r := math.Sqrt(1 - z*z)
	return geometry.Point3D{X: r * math.Cos(phi), Y: r * math.Sin(phi), Z: z}
}

// LinesThrough returns n lines through p with random directions. Noise
// shifts each line along its normal.
func (g *Generator) LinesThrough(p geometry.Point2D, n int) []geometry.Line2D {
	lines := make([]geometry.Line2D, n)
	for i := range lines {
		theta := g.Uniform(0, math.Pi)
		normal := geometry.Point2D{X: math.Cos(theta), Y: math.Sin(theta)}
		lines[i] = geometry.Line2D{A: normal.X, B: normal.Y, C: -normal.Dot(p) + g.Noise()}
	}
	return lines
}

// PlanesThrough returns n planes through p with random normals. Noise
// shifts each plane along its normal.
func (g *Generator) PlanesThrough(p geometry.Point3D, n int) []geometry.Plane {
	planes := make([]geometry.Plane, n)
	for i := range planes {
		normal := g.UnitVector()
		planes[i] = geometry.Plane{A: normal.X, B: normal.Y, C: normal.Z, D: -normal.Dot(p) + g.Noise()}
	}
	return planes
}

// Points2D returns n points uniformly drawn from the square [-span, span]².
func (g *Generator) Points2D(n int, span float64) []geometry.Point2D {
	points := make([]geometry.Point2D, n)
	for i := range points {
		points[i] = geometry.Point2D{X: g.Uniform(-span, span), Y: g.Uniform(-span, span)}
	}
	return points
}

// Points3D returns n points uniformly drawn from the cube [-span, span]³
// around center.
func (g *Generator) Points3D(center geometry.Point3D, n int, span float64) []geometry.Point3D {
	points := make([]geometry.Point3D, n)
	for i := range points {
		points[i] = center.Add(geometry.Point3D{
			X: g.Uniform(-span, span),
			Y: g.Uniform(-span, span),
			Z: g.Uniform(-span, span),
		})
	}
	return points
}

// Transform2D maps points with f and adds noise.
func (g *Generator) Transform2D(points []geometry.Point2D, f func(geometry.Point2D) geometry.Point2D) []geometry.Point2D {
	out := make([]geometry.Point2D, len(points))
	for i, p := range points {
		out[i] = g.jitter2D(f(p))
	}
	return out
}

// Rotation returns a random rotation of at most maxAngle radians.
func (g *Generator) Rotation(maxAngle float64) geometry.Rotation {
	return geometry.RotationFromAxisAngle(g.UnitVector().Mul(g.Uniform(0, maxAngle)))
}

// LookAt returns a camera at center whose principal axis points at target.
func LookAt(center, target geometry.Point3D, k geometry.Intrinsics) geometry.PinholeCamera {
	z := target.Sub(center).Normalize()
	up := geometry.Point3D{Y: 1}
	if math.Abs(z.Dot(up)) > 0.99 {
		up = geometry.Point3D{X: 1}
	}
	x := up.Cross(z).Normalize()
	y := z.Cross(x)
	return geometry.PinholeCamera{
		Intrinsics: k,
		Rotation: geometry.Rotation{
			x.X, x.Y, x.Z,
			y.X, y.Y, y.Z,
			z.X, z.Y, z.Z,
		},
		Center: center,
	}
}

// Camera returns a camera at distance from the origin, looking at it from
// a random direction.
func (g *Generator) Camera(k geometry.Intrinsics, distance float64) geometry.PinholeCamera {
	return LookAt(g.UnitVector().Mul(distance), geometry.Point3D{}, k)
}

// Project maps world points through c and adds noise. Points that cannot
// be projected map to the origin.
func (g *Generator) Project(c geometry.PinholeCamera, world []geometry.Point3D) []geometry.Point2D {
	out := make([]geometry.Point2D, len(world))
	for i, x := range world {
		if p, ok := c.Project(x); ok {
			out[i] = g.jitter2D(p)
		}
	}
	return out
}

// Lines3D returns n lines with random directions through points drawn
// from the cube [-span, span]³ around center.
func (g *Generator) Lines3D(center geometry.Point3D, n int, span float64) []geometry.Line3D {
	lines := make([]geometry.Line3D, 0, n)
	for _, p := range g.Points3D(center, n, span) {
		l, _ := geometry.NewLine3D(p, g.UnitVector())
		lines = append(lines, l)
	}
	return lines
}

// ProjectLines maps world lines through c by projecting the points one
// unit to either side of each line's foot point. Noise moves both image
// points. Lines that cannot be projected map to the zero line.
func (g *Generator) ProjectLines(c geometry.PinholeCamera, world []geometry.Line3D) []geometry.Line2D {
	out := make([]geometry.Line2D, len(world))
	for i, l := range world {
		p, ok1 := c.Project(l.At(-1))
		q, ok2 := c.Project(l.At(1))
		if !ok1 || !ok2 {
			continue
		}
		out[i], _ = geometry.LineThrough(g.jitter2D(p), g.jitter2D(q))
	}
	return out
}

// Perturb picks round(fraction*n) random indices and calls apply with an
// amount drawn from [lo, hi). It returns the amount of every index, zero
// for the untouched ones.
func (g *Generator) Perturb(n int, fraction, lo, hi float64, apply func(i int, amount float64)) []float64 {
	amounts := make([]float64, n)
	k := int(math.Round(fraction * float64(n)))
	if k > n {
		k = n
	}
	for _, i := range g.rng.Perm(n)[:k] {
		a := g.Uniform(lo, hi)
		apply(i, a)
		amounts[i] = a
	}
	return amounts
}

// PerturbNormal picks round(fraction*n) random indices and calls apply with
// an amount drawn from a centred Gaussian of standard deviation sigma. It
// returns the magnitude of every amount, zero for the untouched indices.
func (g *Generator) PerturbNormal(n int, fraction, sigma float64, apply func(i int, amount float64)) []float64 {
	amounts := make([]float64, n)
	k := int(math.Round(fraction * float64(n)))
	if k > n {
		k = n
	}
	for _, i := range g.rng.Perm(n)[:k] {
		a := sigma * g.noise.Rand()
		apply(i, a)
		amounts[i] = math.Abs(a)
	}
	return amounts
}

// Corrupt2D moves round(fraction*n) random points in a random direction
// by between magnitude/2 and magnitude. It returns the displacement of
// every point.
func (g *Generator) Corrupt2D(points []geometry.Point2D, fraction, magnitude float64) []float64 {
	return g.Perturb(len(points), fraction, magnitude/2, magnitude, func(i int, a float64) {
		phi := g.Uniform(0, 2*math.Pi)
		points[i] = points[i].Add(geometry.Point2D{X: math.Cos(phi), Y: math.Sin(phi)}.Mul(a))
	})
}

// Corrupt3D is the 3D counterpart of Corrupt2D.
func (g *Generator) Corrupt3D(points []geometry.Point3D, fraction, magnitude float64) []float64 {
	return g.Perturb(len(points), fraction, magnitude/2, magnitude, func(i int, a float64) {
		points[i] = points[i].Add(g.UnitVector().Mul(a))
	})
}

// QualityScores maps per-point errors to quality scores that decrease
// with the error.
func QualityScores(errs []float64) []float64 {
	q := make([]float64, len(errs))
	for i, e := range errs {
		q[i] = 1 / (1 + e)
	}
	return q
}
