package traffic

import (
	"math"
	"sync"
	"time"

	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/spatial/r3"
)

// Input supplies analog driver controls.
type Input interface {
	Throttle() float64 // -1 (full reverse) .. 1 (full forward)
	Steer() float64    // -1 (full left) .. 1 (full right)
	Handbrake() bool
}

// ManualInput is an Input whose values are set from outside the tick, for
// example by an HTTP handler.
type ManualInput struct {
	mu        sync.Mutex
	throttle  float64
	steer     float64
	handbrake bool
}

// Set replaces all controls at once. Values are clamped to [-1, 1].
func (m *ManualInput) Set(throttle, steer float64, handbrake bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.throttle = lo.Clamp(throttle, -1, 1)
	m.steer = lo.Clamp(steer, -1, 1)
	m.handbrake = handbrake
}

func (m *ManualInput) Throttle() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.throttle
}

func (m *ManualInput) Steer() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.steer
}

func (m *ManualInput) Handbrake() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handbrake
}

// maxReverseSpeed2 is the squared speed above which reverse throttle is cut.
const maxReverseSpeed2 = 100

// InputDriven is the player-style policy: throttle accelerates along the
// heading using the agent's acceleration curve, steering yaws the heading in
// proportion to speed, and sideways velocity is cancelled every tick.
type InputDriven struct {
	input         Input
	maxSteerAngle float64 // degrees per second at full lock
}

// NewInputDriven creates an input-driven policy.
func NewInputDriven(input Input, maxSteerAngle float64) *InputDriven {
	return &InputDriven{input: input, maxSteerAngle: maxSteerAngle}
}

// Step implements MotionPolicy.
func (d *InputDriven) Step(a *Agent, dt time.Duration) (Command, error) {
	pose := a.Pose()
	up := a.up()
	forward := pose.Forward
	if geom.IsZero(forward) {
		forward = geom.V(0, 0, 1)
	}

	speed := r3.Dot(pose.Velocity, forward)
	a.currentSpeed = speed

	throttle := lo.Clamp(d.input.Throttle(), -1, 1)
	acc := a.maxSpeedChange(a.TopSpeed()) * throttle
	reversing := speed < 0
	if (reversing && r3.Norm2(pose.Velocity) > maxReverseSpeed2) || d.input.Handbrake() {
		acc = 0
	}

	a.steering = d.maxSteerAngle * lo.Clamp(d.input.Steer(), -1, 1)
	grip := math.Min(1, speed/2)
	if reversing {
		grip = math.Max(-1, speed/2)
	}
	yaw := a.steering * dt.Seconds() * grip * math.Pi / 180
	heading := geom.Normalize(r3.Rotate(forward, yaw, up))

	v := r3.Scale(speed+acc, heading)
	a.currentSpeed = speed + acc
	return Command{Velocity: v, Forward: heading}, nil
}
