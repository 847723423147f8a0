package track

import (
	"errors"
	"math"

	"github.com/banshee-data/trafficsim/internal/geom"
)

// OvalSpec describes a stadium-shaped loop on the ground plane: two parallel
// straights along Z joined by semicircles.
type OvalSpec struct {
	Radius        float64 `json:"radius"`
	Straight      float64 `json:"straight"`
	ArcNodes      int     `json:"arc_nodes"`      // nodes per semicircle
	StraightNodes int     `json:"straight_nodes"` // nodes per straight
}

// DefaultOvalSpec is the built-in track used when no track file is given.
func DefaultOvalSpec() OvalSpec {
	return OvalSpec{Radius: 60, Straight: 120, ArcNodes: 12, StraightNodes: 6}
}

// DefaultLanes is the stock four-lane layout: two lanes per direction with
// the passing lanes next to the centerline.
func DefaultLanes() []LaneSpec {
	return []LaneSpec{
		{Name: "Primary", Side: SideRight, Movement: MovementForward, Distance: 6},
		{Name: "Primary passing", Side: SideRight, Movement: MovementForward, Distance: 2, Passing: true},
		{Name: "Secondary passing", Side: SideLeft, Movement: MovementReverse, Distance: 2, Passing: true},
		{Name: "Secondary", Side: SideLeft, Movement: MovementReverse, Distance: 6},
	}
}

// Nodes generates the loop's nodes with exact tangents. Right points away
// from the loop's center.
func (o OvalSpec) Nodes() ([]Node, error) {
	if o.Radius <= 0 || o.Straight < 0 || o.ArcNodes < 2 || o.StraightNodes < 1 {
		return nil, errors.New("invalid oval dimensions")
	}
	h := o.Straight / 2
	nodes := make([]Node, 0, 2*(o.ArcNodes+o.StraightNodes))
	add := func(x, z, fx, fz float64) {
		fwd := geom.V(fx, 0, fz)
		nodes = append(nodes, Node{
			Position: geom.V(x, 0, z),
			Forward:  fwd,
			Right:    geom.RightOf(fwd, geom.WorldUp),
			Up:       geom.WorldUp,
		})
	}

	step := o.Straight / float64(o.StraightNodes)
	for k := 0; k < o.StraightNodes; k++ {
		add(o.Radius, -h+float64(k)*step, 0, 1)
	}
	for k := 0; k < o.ArcNodes; k++ {
		th := float64(k) * math.Pi / float64(o.ArcNodes)
		add(o.Radius*math.Cos(th), h+o.Radius*math.Sin(th), -math.Sin(th), math.Cos(th))
	}
	for k := 0; k < o.StraightNodes; k++ {
		add(-o.Radius, h-float64(k)*step, 0, -1)
	}
	for k := 0; k < o.ArcNodes; k++ {
		th := math.Pi + float64(k)*math.Pi/float64(o.ArcNodes)
		add(o.Radius*math.Cos(th), -h+o.Radius*math.Sin(th), -math.Sin(th), math.Cos(th))
	}
	return nodes, nil
}

// Oval builds a path from an OvalSpec with the given lanes.
func Oval(name string, spec OvalSpec, lanes []LaneSpec, opts CurveOptions) (*Path, error) {
	nodes, err := spec.Nodes()
	if err != nil {
		return nil, err
	}
	return NewPath(name, nodes, lanes, opts)
}
