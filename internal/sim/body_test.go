package sim

import (
	"testing"
	"time"

	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/banshee-data/trafficsim/internal/traffic"
	"github.com/stretchr/testify/assert"
)

func TestKinematicBodyApply(t *testing.T) {
	b := NewKinematicBody(traffic.Pose{Forward: geom.V(0, 0, 1)})
	assert.Equal(t, geom.WorldUp, b.Pose().Up)

	pose := b.Apply(traffic.Command{Velocity: geom.V(10, 0, 0), Forward: geom.V(2, 0, 0)}, 500*time.Millisecond)
	assert.InDelta(t, 5, pose.Position.X, 1e-12)
	assert.Equal(t, geom.V(10, 0, 0), pose.Velocity)
	assert.InDelta(t, 1, pose.Forward.X, 1e-12)

	// A zero heading keeps the previous one.
	pose = b.Apply(traffic.Command{}, time.Second)
	assert.InDelta(t, 5, pose.Position.X, 1e-12)
	assert.InDelta(t, 1, pose.Forward.X, 1e-12)
	assert.Equal(t, pose, b.Pose())
}
