package track

import (
	"math"
	"testing"

	"github.com/banshee-data/trafficsim/internal/config"
	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func wp(x, y, z, dx, dy, dz float64) WayPoint {
	return WayPoint{Position: geom.V(x, y, z), Direction: geom.V(dx, dy, dz)}
}

func TestSegmentEndpointsExact(t *testing.T) {
	cases := []struct {
		name       string
		start, end WayPoint
	}{
		{"straight", wp(0.3, 0.1, -7.7, 0, 0, 1), wp(0.3, 0.1, 12.9, 0, 0, 1)},
		{"corner", wp(0, 0, 0, 0, 0, 1), wp(10, 2, 10, 1, 0, 0)},
		{"odd values", wp(1.0/3, 0.7, math.Pi, 0.2, 0, 1), wp(-4.1, 0.3, 9.9, -1, 0, 0.4)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSegment(tc.start, tc.end)
			assert.Equal(t, tc.start.Position, s.Evaluate(0))
			assert.Equal(t, tc.end.Position, s.Evaluate(1))
		})
	}
}

func TestSegmentNearlyStraightUsesMidpoint(t *testing.T) {
	start := wp(0, 0, 0, 0, 0, 1)
	end := wp(0.5, 1, 20, 0.05, 0, 1)
	require.LessOrEqual(t, geom.Angle(start.Direction, end.Direction), DefaultHandleAngleThreshold)

	s := NewSegment(start, end)
	assert.Equal(t, geom.Midpoint(start.Position, end.Position), s.Handle)
}

func TestSegmentCornerUsesIntersection(t *testing.T) {
	s := NewSegment(wp(0, 0, 0, 0, 0, 1), wp(10, 2, 10, 1, 0, 0))

	assert.InDelta(t, 0, s.Handle.X, 1e-9)
	assert.InDelta(t, 1, s.Handle.Y, 1e-9)
	assert.InDelta(t, 10, s.Handle.Z, 1e-9)

	mid := s.Evaluate(0.5)
	assert.InDelta(t, 2.5, mid.X, 1e-9)
	assert.InDelta(t, 7.5, mid.Z, 1e-9)
}

func TestSegmentUnstableIntersectionFallsBack(t *testing.T) {
	sin6 := math.Sin(6 * math.Pi / 180)
	cos6 := math.Cos(6 * math.Pi / 180)

	t.Run("far intersection", func(t *testing.T) {
		start := wp(0, 0, 0, 0, 0, 1)
		end := wp(1, 0, 0.5, -sin6, 0, cos6)
		s := NewSegment(start, end)
		assert.Equal(t, geom.Midpoint(start.Position, end.Position), s.Handle)
	})

	t.Run("far intersection allowed when check disabled", func(t *testing.T) {
		start := wp(0, 0, 0, 0, 0, 1)
		end := wp(1, 0, 0.5, -sin6, 0, cos6)
		s := NewSegmentWithOptions(start, end, CurveOptions{AngleThreshold: 5})
		assert.InDelta(t, 0, s.Handle.X, 1e-9)
		assert.Greater(t, s.Handle.Z, 9.0)
	})

	t.Run("opposite directions", func(t *testing.T) {
		start := wp(0, 0, 0, 0, 0, 1)
		end := wp(4, 0, 0, 0, 0, -1)
		s := NewSegment(start, end)
		assert.Equal(t, geom.Midpoint(start.Position, end.Position), s.Handle)
		for _, p := range s.Sample(10) {
			assert.False(t, math.IsNaN(p.X) || math.IsInf(p.X, 0))
		}
	})
}

func TestSegmentDegenerate(t *testing.T) {
	w := wp(3, 1, 4, 0, 0, 1)
	s := NewSegment(w, w)

	assert.True(t, s.IsDegenerate())
	assert.Equal(t, w.Position, s.Handle)
	p := s.Evaluate(0.37)
	assert.InDelta(t, 0, r3.Norm(r3.Sub(p, w.Position)), 1e-12)
	assert.InDelta(t, 0, s.Length(4), 1e-12)
}

func TestSegmentLengthAndSample(t *testing.T) {
	s := NewSegment(wp(0, 0, 0, 0, 0, 1), wp(0, 0, 8, 0, 0, 1))
	assert.InDelta(t, 8, s.Length(16), 1e-9)
	assert.InDelta(t, 8, r3.Norm(s.Chord()), 1e-12)

	pts := s.Sample(4)
	require.Len(t, pts, 5)
	for i := 1; i < len(pts); i++ {
		assert.Greater(t, pts[i].Z, pts[i-1].Z)
	}
	assert.Len(t, s.Sample(0), 2)
}

func TestCurveOptionsFromTuning(t *testing.T) {
	assert.Equal(t, DefaultCurveOptions(), CurveOptionsFromTuning(config.EmptyTuningConfig()))

	cfg := config.EmptyTuningConfig()
	angle, span := 12.5, 0.0
	cfg.HandleAngleThresholdDeg = &angle
	cfg.HandleMaxSpanRatio = &span
	assert.Equal(t, CurveOptions{AngleThreshold: 12.5, MaxSpanRatio: 0}, CurveOptionsFromTuning(cfg))
}
