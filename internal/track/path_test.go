package track

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func newTestOval(t *testing.T) *Path {
	t.Helper()
	p, err := Oval("test", DefaultOvalSpec(), DefaultLanes(), DefaultCurveOptions())
	require.NoError(t, err)
	return p
}

func squareNodes(size float64) []Node {
	return CompleteFrames([]Node{
		{Position: geom.V(0, 0, 0)},
		{Position: geom.V(size, 0, 0)},
		{Position: geom.V(size, 0, size)},
		{Position: geom.V(0, 0, size)},
	})
}

func TestLaneWayPoint(t *testing.T) {
	node := Node{
		Position: geom.V(1, 0, 1),
		Forward:  geom.V(0, 0, 1),
		Right:    geom.V(1, 0, 0),
		Up:       geom.WorldUp,
	}

	right := NewLane(LaneSpec{Name: "r", Side: SideRight, Distance: 6}, DefaultCurveOptions())
	w := right.WayPoint(node)
	assert.Equal(t, geom.V(7, 0, 1), w.Position)
	assert.Equal(t, geom.V(0, 0, 1), w.Direction)

	left := NewLane(LaneSpec{Name: "l", Side: SideLeft, Movement: MovementReverse, Distance: 2}, DefaultCurveOptions())
	w = left.WayPoint(node)
	assert.Equal(t, geom.V(-1, 0, 1), w.Position)
	assert.Equal(t, geom.V(0, 0, -1), w.Direction)
}

func TestLaneSegmentsClosedLoop(t *testing.T) {
	p := newTestOval(t)
	n := p.NodesCount()
	require.Equal(t, 36, n)

	for lane := 0; lane < p.LaneCount(); lane++ {
		segs, err := p.Segments(lane)
		require.NoError(t, err)
		require.Len(t, segs, n)
		for i := range segs {
			assert.Equal(t, segs[i].End, segs[(i+1)%n].Start, "lane %d segment %d", lane, i)
		}
	}
}

func TestLaneReverseConsumesNodesBackwards(t *testing.T) {
	nodes := squareNodes(10)
	lane := NewLane(LaneSpec{Name: "rev", Side: SideLeft, Movement: MovementReverse, Distance: 1}, DefaultCurveOptions())
	segs := lane.Segments(nodes, false)

	require.Len(t, segs, len(nodes))
	assert.Equal(t, lane.WayPoint(nodes[3]), segs[0].Start)
	assert.Equal(t, lane.WayPoint(nodes[2]), segs[0].End)
	assert.Equal(t, lane.WayPoint(nodes[0]), segs[3].Start)
	assert.Equal(t, lane.WayPoint(nodes[3]), segs[3].End)
}

func TestLaneSegmentsCache(t *testing.T) {
	lane := NewLane(LaneSpec{Name: "a", Side: SideRight, Distance: 1}, DefaultCurveOptions())
	first := lane.Segments(squareNodes(10), false)

	cached := lane.Segments(squareNodes(20), false)
	assert.Equal(t, first, cached)

	rebuilt := lane.Segments(squareNodes(20), true)
	assert.NotEqual(t, first[0].End, rebuilt[0].End)
	assert.Equal(t, rebuilt, lane.Segments(nil, false))
}

func TestNewPathValidation(t *testing.T) {
	lanes := DefaultLanes()

	_, err := NewPath("short", squareNodes(10)[:2], lanes, DefaultCurveOptions())
	assert.Error(t, err)

	_, err = NewPath("nolanes", squareNodes(10), nil, DefaultCurveOptions())
	assert.Error(t, err)

	dup := []LaneSpec{{Name: "a"}, {Name: "a", Passing: true}}
	_, err = NewPath("dup", squareNodes(10), dup, DefaultCurveOptions())
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewPath("unnamed", squareNodes(10), []LaneSpec{{}}, DefaultCurveOptions())
	assert.Error(t, err)
}

func TestPathInvalidIndices(t *testing.T) {
	p := newTestOval(t)

	for _, idx := range []int{-1, p.LaneCount()} {
		_, err := p.Segments(idx)
		require.ErrorIs(t, err, ErrInvalidLane)
		_, err = p.Lane(idx)
		require.ErrorIs(t, err, ErrInvalidLane)
		_, err = p.Partner(idx)
		require.ErrorIs(t, err, ErrInvalidLane)
		assert.False(t, p.OnPrimaryRoute(idx))
		assert.False(t, p.IsPassing(idx))
	}

	_, err := p.Segment(SegmentRef{Lane: 0, Index: p.NodesCount()})
	require.ErrorIs(t, err, ErrInvalidSegment)
	_, err = p.Segment(SegmentRef{Lane: 9, Index: 0})
	require.ErrorIs(t, err, ErrInvalidLane)

	s, err := p.Segment(SegmentRef{Lane: 1, Index: 3})
	require.NoError(t, err)
	segs, _ := p.Segments(1)
	assert.Equal(t, segs[3], s)
}

func TestPathRoutes(t *testing.T) {
	p := newTestOval(t)

	assert.Equal(t, []string{"Primary", "Primary passing", "Secondary passing", "Secondary"}, p.LaneOptions())

	partners := map[int]int{0: 1, 1: 0, 2: 3, 3: 2}
	for lane, want := range partners {
		got, err := p.Partner(lane)
		require.NoError(t, err)
		assert.Equal(t, want, got, "partner of lane %d", lane)
	}

	assert.True(t, p.OnPrimaryRoute(0))
	assert.True(t, p.OnPrimaryRoute(1))
	assert.False(t, p.OnPrimaryRoute(2))
	assert.False(t, p.OnPrimaryRoute(3))
	assert.False(t, p.IsPassing(0))
	assert.True(t, p.IsPassing(1))
	assert.True(t, p.IsPassing(2))

	single, err := NewPath("single", squareNodes(10), []LaneSpec{{Name: "only"}}, DefaultCurveOptions())
	require.NoError(t, err)
	_, err = single.Partner(0)
	assert.ErrorIs(t, err, ErrNoPartnerLane)
}

func TestPathSetNodes(t *testing.T) {
	p, err := NewPath("sq", squareNodes(10), DefaultLanes(), DefaultCurveOptions())
	require.NoError(t, err)

	before, _ := p.Segments(0)
	snapshot := append([]Segment(nil), before...)

	require.NoError(t, p.SetNodes(squareNodes(30)))
	after, _ := p.Segments(0)

	assert.Equal(t, snapshot, before, "previous generation must stay intact")
	assert.NotEqual(t, before[0].End, after[0].End)
	assert.Equal(t, 4, p.NodesCount())

	assert.Error(t, p.SetNodes(nil))
	again, _ := p.Segments(0)
	assert.Equal(t, after, again)

	nodes := p.Nodes()
	nodes[0].Position = geom.V(99, 99, 99)
	assert.NotEqual(t, nodes[0].Position, p.Nodes()[0].Position)
}

func TestPathConcurrentRebuild(t *testing.T) {
	p, err := NewPath("sq", squareNodes(10), DefaultLanes(), DefaultCurveOptions())
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = p.SetNodes(squareNodes(float64(10 + i%5)))
		}
	}()

	for i := 0; i < 500; i++ {
		segs, err := p.Segments(0)
		require.NoError(t, err)
		n := len(segs)
		for j := range segs {
			require.Equal(t, segs[j].End, segs[(j+1)%n].Start)
		}
	}
	close(stop)
	wg.Wait()
}

func TestOvalNodes(t *testing.T) {
	nodes, err := DefaultOvalSpec().Nodes()
	require.NoError(t, err)

	for i, n := range nodes {
		assert.InDelta(t, 1, r3.Norm(n.Forward), 1e-9, "node %d", i)
		// Right points away from the loop center line x=0 on the straights.
		if n.Position.X > 59 {
			assert.Greater(t, n.Right.X, 0.9)
		}
		if n.Position.X < -59 {
			assert.Less(t, n.Right.X, -0.9)
		}
	}

	_, err = OvalSpec{}.Nodes()
	assert.Error(t, err)
}

func TestOvalArcHandles(t *testing.T) {
	p := newTestOval(t)
	segs, err := p.Segments(0)
	require.NoError(t, err)

	// Segment 6 is the first arc span: 15 degrees of turn.
	s := segs[6]
	assert.NotEqual(t, geom.Midpoint(s.Start.Position, s.End.Position), s.Handle)
	// Segment 0 lies on the straight.
	s = segs[0]
	assert.Equal(t, geom.Midpoint(s.Start.Position, s.End.Position), s.Handle)
}

const testTrackJSON = `{
  "name": "triangle",
  "nodes": [
    {"position": {"X": 0, "Y": 0, "Z": 0}},
    {"position": {"X": 40, "Y": 0, "Z": 0}},
    {"position": {"X": 20, "Y": 0, "Z": 30}}
  ],
  "lanes": [
    {"name": "main", "side": "right", "movement": "forward", "distance": 3},
    {"name": "fast", "side": "right", "movement": "forward", "distance": 1, "passing": true}
  ]
}`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(testTrackJSON), DefaultCurveOptions())
	require.NoError(t, err)

	assert.Equal(t, "triangle", p.Name())
	assert.Equal(t, 3, p.NodesCount())
	assert.Equal(t, []string{"main", "fast"}, p.LaneOptions())

	for _, n := range p.Nodes() {
		assert.InDelta(t, 1, r3.Norm(n.Forward), 1e-9)
		assert.InDelta(t, 0, r3.Dot(n.Forward, n.Right), 1e-9)
		assert.Equal(t, geom.WorldUp, n.Up)
	}

	partner, err := p.Partner(0)
	require.NoError(t, err)
	assert.Equal(t, 1, partner)

	_, err = Parse([]byte(`{"nodes": []`), DefaultCurveOptions())
	assert.Error(t, err)

	_, err = Parse([]byte(`{"lanes":[{"name":"x","side":"middle"}]}`), DefaultCurveOptions())
	assert.ErrorContains(t, err, "unknown lane side")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "track.json")
	require.NoError(t, os.WriteFile(good, []byte(testTrackJSON), 0o644))

	p, err := LoadFile(good, DefaultCurveOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, p.LaneCount())

	_, err = LoadFile(filepath.Join(dir, "track.yaml"), DefaultCurveOptions())
	assert.ErrorContains(t, err, ".json")

	_, err = LoadFile(filepath.Join(dir, "missing.json"), DefaultCurveOptions())
	assert.Error(t, err)
}

func TestLaneSpecJSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(DefaultLanes()[2])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"side":"left"`)
	assert.Contains(t, string(b), `"movement":"reverse"`)
}

func TestExport(t *testing.T) {
	p := newTestOval(t)

	w, err := p.ExportWKT(0, 4)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(w, "MULTILINESTRING"))

	b, err := p.ExportGeoJSON(1, 4)
	require.NoError(t, err)
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(b, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 2*p.NodesCount())

	_, err = p.ExportGeoJSON(7, 4)
	assert.ErrorIs(t, err, ErrInvalidLane)
	_, err = p.ExportWKT(-1, 4)
	assert.ErrorIs(t, err, ErrInvalidLane)
}
