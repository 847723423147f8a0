package sim

import (
	"time"

	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/banshee-data/trafficsim/internal/traffic"
	"gonum.org/v1/gonum/spatial/r3"
)

// Body realises an agent's command and reports where the agent ended up.
type Body interface {
	Apply(cmd traffic.Command, dt time.Duration) traffic.Pose
	Pose() traffic.Pose
}

// KinematicBody realises commands exactly: it moves by the commanded
// velocity and turns to the commanded heading.
type KinematicBody struct {
	pose traffic.Pose
}

// NewKinematicBody creates a body at the given pose.
func NewKinematicBody(p traffic.Pose) *KinematicBody {
	if geom.IsZero(p.Up) {
		p.Up = geom.WorldUp
	}
	return &KinematicBody{pose: p}
}

// Apply implements Body.
func (b *KinematicBody) Apply(cmd traffic.Command, dt time.Duration) traffic.Pose {
	b.pose.Position = r3.Add(b.pose.Position, r3.Scale(dt.Seconds(), cmd.Velocity))
	b.pose.Velocity = cmd.Velocity
	if !geom.IsZero(cmd.Forward) {
		b.pose.Forward = geom.Normalize(cmd.Forward)
	}
	return b.pose
}

// Pose implements Body.
func (b *KinematicBody) Pose() traffic.Pose { return b.pose }
