package track

import (
	"math"

	"github.com/banshee-data/trafficsim/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Default curve construction parameters.
const (
	DefaultHandleAngleThreshold = 5.0 // degrees
	DefaultHandleMaxSpanRatio   = 4.0
)

// CurveOptions controls how segment handle points are derived.
type CurveOptions struct {
	// AngleThreshold is the direction change (degrees) above which the
	// handle is placed at the tangent intersection instead of the midpoint.
	AngleThreshold float64
	// MaxSpanRatio rejects tangent intersections farther than this many
	// chord lengths from the chord midpoint. Zero disables the check.
	MaxSpanRatio float64
}

// DefaultCurveOptions returns the stock curve parameters.
func DefaultCurveOptions() CurveOptions {
	return CurveOptions{
		AngleThreshold: DefaultHandleAngleThreshold,
		MaxSpanRatio:   DefaultHandleMaxSpanRatio,
	}
}

// WayPoint is an oriented point on a lane.
type WayPoint struct {
	Position  geom.Vec3 `json:"position"`
	Direction geom.Vec3 `json:"direction"`
}

// Segment is a quadratic curve between two way points. The zero value is a
// degenerate segment at the origin.
type Segment struct {
	Start  WayPoint  `json:"start"`
	End    WayPoint  `json:"end"`
	Handle geom.Vec3 `json:"handle"`
}

// NewSegment builds a segment with the default curve options.
func NewSegment(start, end WayPoint) Segment {
	return NewSegmentWithOptions(start, end, DefaultCurveOptions())
}

// NewSegmentWithOptions builds a segment between start and end.
//
// Nearly straight stretches (direction change at or below the threshold) use
// the chord midpoint as handle. Otherwise the handle is the ground-plane
// intersection of the two tangent lines at the average height of the end
// points; an intersection that does not exist or lies too far away falls
// back to the midpoint.
func NewSegmentWithOptions(start, end WayPoint, opts CurveOptions) Segment {
	mid := geom.Midpoint(start.Position, end.Position)
	seg := Segment{Start: start, End: end, Handle: mid}

	if geom.Angle(start.Direction, end.Direction) <= opts.AngleThreshold {
		return seg
	}

	p, err := geom.GroundIntersection(start.Position, start.Direction, end.Position, end.Direction)
	if err != nil {
		return seg
	}
	handle := geom.V(p[0], (start.Position.Y+end.Position.Y)/2, p[1])
	if math.IsNaN(handle.X) || math.IsInf(handle.X, 0) || math.IsNaN(handle.Z) || math.IsInf(handle.Z, 0) {
		return seg
	}
	if opts.MaxSpanRatio > 0 {
		chord := r3.Norm(r3.Sub(end.Position, start.Position))
		if r3.Norm(r3.Sub(handle, mid)) > opts.MaxSpanRatio*chord {
			return seg
		}
	}

	seg.Handle = handle
	return seg
}

// Evaluate returns the point at parameter t using degree-2 De Casteljau
// interpolation. Evaluate(0) and Evaluate(1) are exactly the start and end
// positions.
func (s Segment) Evaluate(t float64) geom.Vec3 {
	a := geom.Lerp(s.Start.Position, s.Handle, t)
	b := geom.Lerp(s.Handle, s.End.Position, t)
	return geom.Lerp(a, b, t)
}

// Chord is the straight vector from start to end.
func (s Segment) Chord() geom.Vec3 {
	return r3.Sub(s.End.Position, s.Start.Position)
}

// IsDegenerate reports whether the segment has zero length.
func (s Segment) IsDegenerate() bool {
	return geom.IsZero(s.Chord())
}

// Sample returns n+1 evenly spaced (in t) points along the curve.
func (s Segment) Sample(n int) []geom.Vec3 {
	if n < 1 {
		n = 1
	}
	pts := make([]geom.Vec3, n+1)
	for i := 0; i <= n; i++ {
		pts[i] = s.Evaluate(float64(i) / float64(n))
	}
	return pts
}

// Length approximates the arc length with an n-piece polyline.
func (s Segment) Length(n int) float64 {
	pts := s.Sample(n)
	var total float64
	for i := 1; i < len(pts); i++ {
		total += r3.Norm(r3.Sub(pts[i], pts[i-1]))
	}
	return total
}
