package track

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/banshee-data/trafficsim/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Node is an authored point on the track centerline with its local frame.
type Node struct {
	Position geom.Vec3 `json:"position"`
	Forward  geom.Vec3 `json:"forward"`
	Right    geom.Vec3 `json:"right"`
	Up       geom.Vec3 `json:"up"`
}

// Side selects which side of the centerline a lane lies on.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

func (s Side) String() string {
	if s == SideLeft {
		return "left"
	}
	return "right"
}

// MarshalText implements encoding.TextMarshaler.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Side) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "left":
		*s = SideLeft
	case "right":
		*s = SideRight
	default:
		return fmt.Errorf("unknown lane side %q", string(b))
	}
	return nil
}

// Movement is the flow direction of a lane relative to the node order.
type Movement int

const (
	MovementForward Movement = iota // same way as the nodes are ordered
	MovementReverse                 // opposite to the node order
)

func (m Movement) String() string {
	if m == MovementForward {
		return "forward"
	}
	return "reverse"
}

// MarshalText implements encoding.TextMarshaler.
func (m Movement) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Movement) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "forward", "up":
		*m = MovementForward
	case "reverse", "down":
		*m = MovementReverse
	default:
		return fmt.Errorf("unknown lane movement %q", string(b))
	}
	return nil
}

// LaneSpec is the authored description of a lane.
type LaneSpec struct {
	Name     string   `json:"name"`
	Side     Side     `json:"side"`
	Movement Movement `json:"movement"`
	Distance float64  `json:"distance"` // lateral offset from the centerline
	Passing  bool     `json:"passing"`  // overtaking lane of its route
}

// Lane is a LaneSpec plus its cached segment list.
type Lane struct {
	LaneSpec

	opts     CurveOptions
	segments atomic.Pointer[[]Segment]
}

// NewLane creates a lane with an empty segment cache.
func NewLane(spec LaneSpec, opts CurveOptions) *Lane {
	return &Lane{LaneSpec: spec, opts: opts}
}

// WayPoint derives the lane's way point for a node.
func (l *Lane) WayPoint(node Node) WayPoint {
	offset := r3.Scale(l.Distance, node.Right)
	var pos geom.Vec3
	if l.Side == SideLeft {
		pos = r3.Sub(node.Position, offset)
	} else {
		pos = r3.Add(node.Position, offset)
	}

	dir := node.Forward
	if l.Movement == MovementReverse {
		dir = r3.Scale(-1, node.Forward)
	}
	return WayPoint{Position: pos, Direction: dir}
}

// Segments returns the cached segment list, building it from nodes when the
// cache is empty or rebuild is set. The returned slice is shared and must
// not be modified.
func (l *Lane) Segments(nodes []Node, rebuild bool) []Segment {
	if !rebuild {
		if cached := l.segments.Load(); cached != nil && len(*cached) > 0 {
			return *cached
		}
	}

	segs := l.build(nodes)
	l.segments.Store(&segs)
	return segs
}

func (l *Lane) build(nodes []Node) []Segment {
	n := len(nodes)
	wayPoints := make([]WayPoint, n)
	for i := 0; i < n; i++ {
		idx := i
		if l.Movement == MovementReverse {
			idx = n - 1 - i
		}
		wayPoints[i] = l.WayPoint(nodes[idx])
	}

	segs := make([]Segment, n)
	for i := 0; i < n; i++ {
		segs[i] = NewSegmentWithOptions(wayPoints[i], wayPoints[(i+1)%n], l.opts)
	}
	return segs
}
