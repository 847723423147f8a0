package geom

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/r3"
)

// Vec3 is a point or direction in world space.
type Vec3 = r3.Vec

// WorldUp is the global up axis.
var WorldUp = Vec3{Y: 1}

// ErrParallel is returned when two ground-plane lines do not intersect.
var ErrParallel = errors.New("lines are parallel")

const (
	// degenerateNorm2 is the squared length below which a vector is treated as zero.
	degenerateNorm2 = 1e-15
	// parallelTolerance is the relative determinant below which two lines are parallel.
	parallelTolerance = 1e-9
)

// V builds a Vec3.
func V(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// Lerp interpolates between a and b. Lerp(a, b, 0) == a and Lerp(a, b, 1) == b
// hold exactly.
func Lerp(a, b Vec3, t float64) Vec3 {
	return r3.Add(r3.Scale(1-t, a), r3.Scale(t, b))
}

// Midpoint returns the average of a and b.
func Midpoint(a, b Vec3) Vec3 {
	return r3.Scale(0.5, r3.Add(a, b))
}

// IsZero reports whether v has (numerically) zero length.
func IsZero(v Vec3) bool {
	return r3.Norm2(v) < degenerateNorm2
}

// Normalize returns the unit vector of v, or the zero vector when v is degenerate.
func Normalize(v Vec3) Vec3 {
	if IsZero(v) {
		return Vec3{}
	}
	return r3.Unit(v)
}

// Angle returns the unsigned angle between a and b in degrees. Degenerate
// inputs yield 0.
func Angle(a, b Vec3) float64 {
	denom := math.Sqrt(r3.Norm2(a) * r3.Norm2(b))
	if denom < degenerateNorm2 {
		return 0
	}
	cos := r3.Dot(a, b) / denom
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

// ProjectOnPlane removes the component of v along the plane normal n.
func ProjectOnPlane(v, n Vec3) Vec3 {
	nn := r3.Norm2(n)
	if nn < degenerateNorm2 {
		return v
	}
	return r3.Sub(v, r3.Scale(r3.Dot(v, n)/nn, n))
}

// SteerSign returns +1 when turning from "from" to "to" is a turn toward the
// right around up, -1 otherwise. A zero cross product counts as +1.
func SteerSign(from, to, up Vec3) float64 {
	if r3.Dot(r3.Cross(from, to), up) < 0 {
		return -1
	}
	return 1
}

// RightOf returns the right-hand axis of a frame with the given forward and up.
func RightOf(forward, up Vec3) Vec3 {
	return Normalize(r3.Cross(up, forward))
}

// Ground projects v onto the ground plane.
func Ground(v Vec3) orb.Point {
	return orb.Point{v.X, v.Z}
}

// GroundIntersection intersects the two ground-plane lines passing through p1
// and p2 with directions d1 and d2. The vertical components are ignored.
func GroundIntersection(p1, d1, p2, d2 Vec3) (orb.Point, error) {
	a1 := d1.Z
	b1 := -d1.X
	c1 := -(a1*p1.X + b1*p1.Z)

	a2 := d2.Z
	b2 := -d2.X
	c2 := -(a2*p2.X + b2*p2.Z)

	det := a1*b2 - a2*b1
	scale := math.Hypot(d1.X, d1.Z) * math.Hypot(d2.X, d2.Z)
	if scale < degenerateNorm2 || math.Abs(det) <= parallelTolerance*scale {
		return orb.Point{}, ErrParallel
	}

	x := (b1*c2 - b2*c1) / det
	z := -(a1*c2 - a2*c1) / det
	return orb.Point{x, z}, nil
}
