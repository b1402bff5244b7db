package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Intrinsics are the internal parameters of a pinhole camera.
type Intrinsics struct {
	FocalX, FocalY float64
	Skew           float64
	PrincipalX     float64
	PrincipalY     float64
}

// Matrix returns the upper triangular calibration matrix K.
func (k Intrinsics) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		k.FocalX, k.Skew, k.PrincipalX,
		0, k.FocalY, k.PrincipalY,
		0, 0, 1,
	})
}

// PrincipalPoint returns the principal point.
func (k Intrinsics) PrincipalPoint() Point2D {
	return Point2D{X: k.PrincipalX, Y: k.PrincipalY}
}

// AspectRatio returns FocalY / FocalX.
func (k Intrinsics) AspectRatio() float64 {
	return k.FocalY / k.FocalX
}

// Normalize maps pixel coordinates to normalized image coordinates.
func (k Intrinsics) Normalize(p Point2D) Point2D {
	y := (p.Y - k.PrincipalY) / k.FocalY
	x := (p.X - k.PrincipalX - k.Skew*y) / k.FocalX
	return Point2D{X: x, Y: y}
}

// Denormalize maps normalized image coordinates to pixels.
func (k Intrinsics) Denormalize(p Point2D) Point2D {
	return Point2D{
		X: k.FocalX*p.X + k.Skew*p.Y + k.PrincipalX,
		Y: k.FocalY*p.Y + k.PrincipalY,
	}
}

// PinholeCamera is P = K [R | -R C], with C the camera center in world
// coordinates.
type PinholeCamera struct {
	Intrinsics Intrinsics
	Rotation   Rotation
	Center     Point3D
}

// Translation returns t = -R C.
func (c PinholeCamera) Translation() Point3D {
	return c.Rotation.Apply(c.Center).Mul(-1)
}

// Matrix returns the 3x4 projection matrix.
func (c PinholeCamera) Matrix() *mat.Dense {
	t := c.Translation()
	rt := mat.NewDense(3, 4, []float64{
		c.Rotation[0], c.Rotation[1], c.Rotation[2], t.X,
		c.Rotation[3], c.Rotation[4], c.Rotation[5], t.Y,
		c.Rotation[6], c.Rotation[7], c.Rotation[8], t.Z,
	})
	var p mat.Dense
	p.Mul(c.Intrinsics.Matrix(), rt)
	return &p
}

// Depth returns the depth of x along the principal axis.
func (c PinholeCamera) Depth(x Point3D) float64 {
	return c.Rotation.Apply(x.Sub(c.Center)).Z
}

// Project maps a world point to pixels. Points on the principal plane
// report false.
func (c PinholeCamera) Project(x Point3D) (Point2D, bool) {
	v := c.Rotation.Apply(x.Sub(c.Center))
	if math.Abs(v.Z) < 1e-15 {
		return Point2D{}, false
	}
	return c.Intrinsics.Denormalize(Point2D{X: v.X / v.Z, Y: v.Y / v.Z}), true
}

// IsFinite reports whether every parameter is finite.
func (c PinholeCamera) IsFinite() bool {
	k := c.Intrinsics
	for _, v := range []float64{k.FocalX, k.FocalY, k.Skew, k.PrincipalX, k.PrincipalY} {
		if !finite(v) {
			return false
		}
	}
	for _, v := range c.Rotation {
		if !finite(v) {
			return false
		}
	}
	return IsFinite3D(c.Center)
}

// CameraFromMatrix decomposes a 3x4 projection matrix defined up to scale
// into intrinsics, rotation and center. It reports false when the left 3x3
// block is singular.
func CameraFromMatrix(p mat.Matrix) (PinholeCamera, bool) {
	var m [3][3]float64
	var p4 [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = p.At(i, j)
		}
		p4[i] = p.At(i, 3)
	}
	det := det3(m)
	if math.Abs(det) < 1e-300 || !finite(det) {
		return PinholeCamera{}, false
	}
	if det < 0 {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				m[i][j] = -m[i][j]
			}
			p4[i] = -p4[i]
		}
	}

	k, r := rq3(m)
	for i := 0; i < 3; i++ {
		if k[i][i] < 0 {
			for row := 0; row < 3; row++ {
				k[row][i] = -k[row][i]
			}
			for col := 0; col < 3; col++ {
				r[i][col] = -r[i][col]
			}
		}
	}
	if k[2][2] == 0 {
		return PinholeCamera{}, false
	}

	var inv mat.Dense
	mm := mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
	if err := inv.Inverse(mm); err != nil {
		return PinholeCamera{}, false
	}
	var center mat.VecDense
	center.MulVec(&inv, mat.NewVecDense(3, p4[:]))

	s := 1 / k[2][2]
	cam := PinholeCamera{
		Intrinsics: Intrinsics{
			FocalX:     k[0][0] * s,
			FocalY:     k[1][1] * s,
			Skew:       k[0][1] * s,
			PrincipalX: k[0][2] * s,
			PrincipalY: k[1][2] * s,
		},
		Rotation: Rotation{
			r[0][0], r[0][1], r[0][2],
			r[1][0], r[1][1], r[1][2],
			r[2][0], r[2][1], r[2][2],
		},
		Center: Point3D{X: -center.AtVec(0), Y: -center.AtVec(1), Z: -center.AtVec(2)},
	}
	return cam, cam.IsFinite()
}

// rq3 factors m = k * r with k upper triangular and r orthogonal using
// three Givens rotations.
func rq3(m [3][3]float64) (k, r [3][3]float64) {
	ident := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

	qx := ident
	if n := math.Hypot(m[2][1], m[2][2]); n > 0 {
		c, s := -m[2][2]/n, m[2][1]/n
		qx = [3][3]float64{{1, 0, 0}, {0, c, -s}, {0, s, c}}
	}
	m1 := mul3(m, qx)

	qy := ident
	if n := math.Hypot(m1[2][0], m1[2][2]); n > 0 {
		c, s := m1[2][2]/n, m1[2][0]/n
		qy = [3][3]float64{{c, 0, s}, {0, 1, 0}, {-s, 0, c}}
	}
	m2 := mul3(m1, qy)

	qz := ident
	if n := math.Hypot(m2[1][0], m2[1][1]); n > 0 {
		c, s := -m2[1][1]/n, m2[1][0]/n
		qz = [3][3]float64{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
	}
	k = mul3(m2, qz)
	r = transpose3(mul3(mul3(qx, qy), qz))
	return k, r
}

func mul3(a, b [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = a[i][0]*b[0][j] + a[i][1]*b[1][j] + a[i][2]*b[2][j]
		}
	}
	return out
}

func transpose3(a [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = a[j][i]
		}
	}
	return out
}

func det3(m [3][3]float64) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}
