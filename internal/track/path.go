package track

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/samber/lo"
)

// Sentinel errors returned by Path accessors.
var (
	ErrInvalidLane    = errors.New("invalid lane index")
	ErrInvalidSegment = errors.New("invalid segment reference")
	ErrNoPartnerLane  = errors.New("lane has no partner on its route")
)

// MinNodes is the smallest node count that forms a usable loop.
const MinNodes = 3

// SegmentRef addresses a segment by lane and index.
type SegmentRef struct {
	Lane  int `json:"lane"`
	Index int `json:"index"`
}

func (r SegmentRef) String() string {
	return fmt.Sprintf("lane %d segment %d", r.Lane, r.Index)
}

// layout is one immutable generation of the path geometry.
type layout struct {
	nodes    []Node
	segments [][]Segment
}

// Path is a closed loop of nodes and the lanes derived from them.
type Path struct {
	name  string
	opts  CurveOptions
	lanes []*Lane
	cur   atomic.Pointer[layout]
}

// NewPath validates the inputs and builds every lane eagerly.
func NewPath(name string, nodes []Node, lanes []LaneSpec, opts CurveOptions) (*Path, error) {
	if len(lanes) == 0 {
		return nil, errors.New("path needs at least one lane")
	}
	seen := make(map[string]bool, len(lanes))
	p := &Path{name: name, opts: opts, lanes: make([]*Lane, len(lanes))}
	for i, spec := range lanes {
		if spec.Name == "" {
			return nil, fmt.Errorf("lane %d has no name", i)
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("duplicate lane name %q", spec.Name)
		}
		seen[spec.Name] = true
		p.lanes[i] = NewLane(spec, opts)
	}
	if err := p.SetNodes(nodes); err != nil {
		return nil, err
	}
	return p, nil
}

// Name returns the track name.
func (p *Path) Name() string { return p.name }

// CurveOptions returns the options lanes are built with.
func (p *Path) CurveOptions() CurveOptions { return p.opts }

// SetNodes replaces the node list and rebuilds every lane. Readers see either
// the previous geometry or the new one.
func (p *Path) SetNodes(nodes []Node) error {
	if len(nodes) < MinNodes {
		return fmt.Errorf("path needs at least %d nodes, got %d", MinNodes, len(nodes))
	}
	next := &layout{
		nodes:    slices.Clone(nodes),
		segments: make([][]Segment, len(p.lanes)),
	}
	for i, l := range p.lanes {
		next.segments[i] = l.Segments(next.nodes, true)
	}
	p.cur.Store(next)
	return nil
}

// Nodes returns a copy of the node list.
func (p *Path) Nodes() []Node {
	return slices.Clone(p.cur.Load().nodes)
}

// NodesCount returns the number of nodes, which equals the segment count of
// every lane.
func (p *Path) NodesCount() int {
	return len(p.cur.Load().nodes)
}

// LaneCount returns the number of lanes.
func (p *Path) LaneCount() int { return len(p.lanes) }

// LaneOptions returns lane names in lane order.
func (p *Path) LaneOptions() []string {
	return lo.Map(p.lanes, func(l *Lane, _ int) string { return l.Name })
}

// Lane returns the LaneSpec of lane i.
func (p *Path) Lane(i int) (LaneSpec, error) {
	if err := p.checkLane(i); err != nil {
		return LaneSpec{}, err
	}
	return p.lanes[i].LaneSpec, nil
}

// Segments returns the segment list of lane i. The slice is shared and must
// not be modified.
func (p *Path) Segments(i int) ([]Segment, error) {
	if err := p.checkLane(i); err != nil {
		return nil, err
	}
	return p.cur.Load().segments[i], nil
}

// Segment returns a single segment.
func (p *Path) Segment(ref SegmentRef) (Segment, error) {
	segs, err := p.Segments(ref.Lane)
	if err != nil {
		return Segment{}, err
	}
	if ref.Index < 0 || ref.Index >= len(segs) {
		return Segment{}, fmt.Errorf("%w: %s (segments %d)", ErrInvalidSegment, ref, len(segs))
	}
	return segs[ref.Index], nil
}

// Partner returns the other lane of lane i's route: the lane with the same
// movement and the opposite passing flag.
func (p *Path) Partner(i int) (int, error) {
	if err := p.checkLane(i); err != nil {
		return 0, err
	}
	self := p.lanes[i]
	for j, l := range p.lanes {
		if j != i && l.Movement == self.Movement && l.Passing != self.Passing {
			return j, nil
		}
	}
	return 0, fmt.Errorf("%w: lane %d (%s)", ErrNoPartnerLane, i, self.Name)
}

// OnPrimaryRoute reports whether lane i flows with the node order. Invalid
// indices report false.
func (p *Path) OnPrimaryRoute(i int) bool {
	if p.checkLane(i) != nil {
		return false
	}
	return p.lanes[i].Movement == MovementForward
}

// IsPassing reports whether lane i is the overtaking lane of its route.
func (p *Path) IsPassing(i int) bool {
	if p.checkLane(i) != nil {
		return false
	}
	return p.lanes[i].Passing
}

func (p *Path) checkLane(i int) error {
	if i < 0 || i >= len(p.lanes) {
		return fmt.Errorf("%w: %d (lanes %d)", ErrInvalidLane, i, len(p.lanes))
	}
	return nil
}
