package traffic

import (
	"errors"
	"math"
	"time"

	"github.com/banshee-data/trafficsim/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrNoSegments is returned when a policy is asked to follow an empty lane.
var ErrNoSegments = errors.New("lane has no segments")

// Pose is the physically realised state of an agent, fed back by the body
// simulation after every tick.
type Pose struct {
	Position geom.Vec3 `json:"position"`
	Forward  geom.Vec3 `json:"forward"`
	Up       geom.Vec3 `json:"up"`
	Velocity geom.Vec3 `json:"velocity"`
}

// Command is what a policy asks the body to realise for one tick.
type Command struct {
	Velocity geom.Vec3 `json:"velocity"`
	Forward  geom.Vec3 `json:"forward"`
}

// MotionPolicy decides how an agent moves each tick.
type MotionPolicy interface {
	Step(a *Agent, dt time.Duration) (Command, error)
}

// Negotiating is implemented by policies that take part in right-of-way
// negotiation.
type Negotiating interface {
	MotionPolicy
	Status(a *Agent) Status
	Negotiate(a *Agent, peers []Status) Resolution
	Adjust(a *Agent) error
}

// Agent is a vehicle: the state shared by every motion policy plus the
// policy itself. An agent is mutated only by its own tick.
type Agent struct {
	id       string
	topSpeed float64
	curve    *AccelerationCurve
	policy   MotionPolicy

	pose         Pose
	currentSpeed float64
	steering     float64
}

// NewAgent creates an agent. A nil curve selects DefaultAccelerationCurve.
func NewAgent(id string, topSpeed float64, curve *AccelerationCurve, policy MotionPolicy) *Agent {
	if curve == nil {
		curve = DefaultAccelerationCurve()
	}
	return &Agent{
		id:       id,
		topSpeed: topSpeed,
		curve:    curve,
		policy:   policy,
		pose:     Pose{Forward: geom.V(0, 0, 1), Up: geom.WorldUp},
	}
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// TopSpeed returns the authored top speed.
func (a *Agent) TopSpeed() float64 { return a.topSpeed }

func (a *Agent) Curve() *AccelerationCurve { return a.curve }

func (a *Agent) Policy() MotionPolicy { return a.policy }

func (a *Agent) Pose() Pose { return a.pose }

// CurrentSpeed is the signed speed along the agent's forward axis.
func (a *Agent) CurrentSpeed() float64 { return a.currentSpeed }

// Steering is the wheel steering output in degrees, positive to the right.
func (a *Agent) Steering() float64 { return a.steering }

// AsNegotiating returns the policy as a Negotiating policy when it is one.
func (a *Agent) AsNegotiating() (Negotiating, bool) {
	n, ok := a.policy.(Negotiating)
	return n, ok
}

// Step runs the policy for one tick.
func (a *Agent) Step(dt time.Duration) (Command, error) {
	return a.policy.Step(a, dt)
}

// Observe feeds back the realised pose. The current speed becomes the
// realised velocity along the realised forward axis.
func (a *Agent) Observe(p Pose) {
	if geom.IsZero(p.Up) {
		p.Up = geom.WorldUp
	}
	a.pose = p
	a.currentSpeed = r3.Dot(p.Velocity, p.Forward)
}

// Place teleports the agent, zeroing its speed.
func (a *Agent) Place(position, forward geom.Vec3) {
	a.pose = Pose{Position: position, Forward: geom.Normalize(forward), Up: geom.WorldUp}
	a.currentSpeed = 0
	a.steering = 0
}

func (a *Agent) up() geom.Vec3 {
	if geom.IsZero(a.pose.Up) {
		return geom.WorldUp
	}
	return a.pose.Up
}

// maxSpeedChange evaluates the acceleration curve at the current deficit.
func (a *Agent) maxSpeedChange(topSpeed float64) float64 {
	deficit := 0.0
	if topSpeed > 0 {
		deficit = 1 - a.currentSpeed/topSpeed
	}
	return a.curve.Eval(deficit)
}

// limitVelocity clamps the desired velocity so its magnitude changes by no
// more than the acceleration curve allows, and, when clampDecel is set, drops
// by no more than decel. It reports whether acceleration was clamped.
func (a *Agent) limitVelocity(v geom.Vec3, topSpeed, decel float64, clampDecel bool) (geom.Vec3, bool) {
	desired := r3.Norm(v)
	cs := a.currentSpeed
	maxAcc := a.maxSpeedChange(topSpeed)

	if desired-cs > maxAcc {
		return a.withSpeed(v, desired, math.Max(0, cs+maxAcc)), true
	}
	if clampDecel && desired-cs < -decel {
		return a.withSpeed(v, desired, math.Max(0, cs-decel)), false
	}
	return v, false
}

func (a *Agent) withSpeed(v geom.Vec3, magnitude, speed float64) geom.Vec3 {
	if magnitude < 1e-12 {
		return r3.Scale(speed, a.pose.Forward)
	}
	return r3.Scale(speed/magnitude, v)
}

// turn blends the current heading toward the ground projection of v and
// updates the steering output. Below threshold speed the heading is kept and
// steering is zero.
func (a *Agent) turn(v geom.Vec3, p Params) geom.Vec3 {
	forward := a.pose.Forward
	if a.currentSpeed <= p.TurnSpeedThreshold {
		a.steering = 0
		return forward
	}

	up := a.up()
	desired := geom.ProjectOnPlane(v, up)
	blended := r3.Add(r3.Scale(p.TurnResistance, forward), r3.Scale(1-p.TurnResistance, desired))
	heading := geom.Normalize(blended)
	if geom.IsZero(heading) {
		heading = forward
	}

	a.steering = geom.Angle(forward, desired) * p.SteeringFactor * geom.SteerSign(forward, desired, up)
	return heading
}
