package traffic

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/banshee-data/trafficsim/internal/monitoring"
	"github.com/banshee-data/trafficsim/internal/track"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrBetweenLanes is returned when a lane change is requested while the
// previous one is still in progress.
var ErrBetweenLanes = errors.New("lane change already in progress")

// CurveFollower is the AI policy: it walks the segments of its lane with a
// curve parameter t whose rate is set by the speed parameter, and negotiates
// with nearby peers.
type CurveFollower struct {
	path   *track.Path
	params Params
	peers  *Negotiator

	lane     int
	segments []track.Segment
	segIndex int
	current  track.Segment
	bridge   []track.Segment // queued lane-change segments
	between  bool
	dwell    time.Duration // left before Cruise or PullOver may change lane again

	t             float64
	speedParam    float64
	incSpeedParam bool

	braking       bool
	handbraking   bool
	brakingFactor float64

	topSpeed float64 // effective top speed; 0 means the agent's own
	mode     ModeType
	proxima  *Status

	laneChanges int
}

// NewCurveFollower starts a follower on the given lane and segment.
func NewCurveFollower(path *track.Path, lane, segment int, params Params) (*CurveFollower, error) {
	segs, err := path.Segments(lane)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, ErrNoSegments
	}
	if segment < 0 || segment >= len(segs) {
		return nil, fmt.Errorf("%w: %s", track.ErrInvalidSegment, track.SegmentRef{Lane: lane, Index: segment})
	}
	return &CurveFollower{
		path:          path,
		params:        params,
		peers:         NewNegotiator(),
		lane:          lane,
		segments:      segs,
		segIndex:      segment,
		current:       segs[segment],
		speedParam:    params.AvgSpeedParameter,
		brakingFactor: 1,
	}, nil
}

// Place puts the agent at the start of the current segment.
func (f *CurveFollower) Place(a *Agent) {
	pos := r3.Add(f.current.Start.Position, r3.Scale(f.params.HalfHeight, geom.WorldUp))
	a.Place(pos, f.current.Start.Direction)
}

// Peers is the agent's interaction set.
func (f *CurveFollower) Peers() *Negotiator { return f.peers }

// Lane is the lane index the follower is on, or moving to.
func (f *CurveFollower) Lane() int { return f.lane }

func (f *CurveFollower) SegmentIndex() int { return f.segIndex }

// T is the curve parameter within the current segment.
func (f *CurveFollower) T() float64 { return f.t }

func (f *CurveFollower) SpeedParameter() float64 { return f.speedParam }

func (f *CurveFollower) Mode() ModeType { return f.mode }

func (f *CurveFollower) BetweenLanes() bool { return f.between }

func (f *CurveFollower) Braking() bool { return f.braking }

func (f *CurveFollower) LaneChanges() int { return f.laneChanges }

// PendingBridgeSegments is the number of lane-change segments not yet entered.
func (f *CurveFollower) PendingBridgeSegments() int { return len(f.bridge) }

// Proxima returns the car paced in Draw mode.
func (f *CurveFollower) Proxima() (Status, bool) {
	if f.proxima == nil {
		return Status{}, false
	}
	return *f.proxima, true
}

// SetHandbrake holds t still while engaged.
func (f *CurveFollower) SetHandbrake(on bool) { f.handbraking = on }

// EffectiveTopSpeed is the top speed currently driven toward.
func (f *CurveFollower) EffectiveTopSpeed(a *Agent) float64 {
	if f.topSpeed > 0 {
		return f.topSpeed
	}
	return a.TopSpeed()
}

// Step advances t, moves to the next segment when it overflows and returns
// the velocity needed to reach the curve point.
func (f *CurveFollower) Step(a *Agent, dt time.Duration) (Command, error) {
	if len(f.segments) == 0 {
		return Command{}, ErrNoSegments
	}
	top := f.EffectiveTopSpeed(a)

	inc := 0.0
	if f.speedParam > 0 {
		inc = dt.Seconds() * top / f.speedParam
	}
	inc *= f.brakingFactor
	if f.braking {
		f.brakingFactor = math.Max(0, f.brakingFactor-f.params.BrakingStep)
	} else {
		f.brakingFactor = math.Min(1, f.brakingFactor+f.params.BrakingStep)
	}
	if f.handbraking {
		inc = 0
	}

	f.dwell = max(0, f.dwell-dt)

	f.t += inc
	for f.t > 1 {
		f.advance()
		f.t--
	}

	pose := a.Pose()
	desired := r3.Add(f.current.Evaluate(f.t), r3.Scale(f.params.HalfHeight, a.up()))
	horizon := f.params.PursuitHorizon.Seconds()
	if horizon <= 0 {
		horizon = 1
	}
	v := r3.Scale(1/horizon, r3.Sub(desired, pose.Position))

	v, f.incSpeedParam = a.limitVelocity(v, top, f.params.BrakingDeceleration, f.mode != ModeAlert)
	a.currentSpeed = r3.Dot(v, pose.Forward)
	heading := a.turn(v, f.params)

	return Command{Velocity: v, Forward: heading}, nil
}

// advance moves to the next segment. The lane's segments are re-read from
// the path so edited geometry is picked up without a lane change.
func (f *CurveFollower) advance() {
	if segs, err := f.path.Segments(f.lane); err == nil && len(segs) > 0 {
		f.segments = segs
	}
	f.segIndex = (f.segIndex + 1) % len(f.segments)
	if len(f.bridge) > 0 {
		f.current = f.bridge[0]
		f.bridge = f.bridge[1:]
		return
	}
	f.current = f.segments[f.segIndex]
	if f.between {
		f.between = false
		f.dwell = f.params.LaneDwell
	}
}

// CompletionIndex is the agent's continuous progress around the loop in
// segment units. It walks back from the segment after the current one until
// the agent's position projects forward onto a segment chord.
func (f *CurveFollower) CompletionIndex(a *Agent) float64 {
	n := len(f.segments)
	if n == 0 {
		return 0
	}
	pos := a.Pose().Position
	idx := (f.segIndex + 1) % n
	for range n {
		idx = (idx - 1 + n) % n
		s := f.segments[idx]
		chord := s.Chord()
		dot := r3.Dot(r3.Sub(pos, s.Start.Position), chord)
		if dot < 0 {
			continue
		}
		frac := 0.0
		if l2 := r3.Norm2(chord); l2 > 1e-12 {
			frac = dot / l2
		}
		return math.Mod(float64(idx)+frac, float64(n))
	}
	return float64(f.segIndex) + f.t
}

// Status snapshots the agent for negotiation.
func (f *CurveFollower) Status(a *Agent) Status {
	return Status{
		ID:           a.ID(),
		LaneIndex:    f.lane,
		PrimaryRoute: f.path.OnPrimaryRoute(f.lane),
		TopSpeed:     f.EffectiveTopSpeed(a),
		CurrentSpeed: a.CurrentSpeed(),
		Completion:   f.CompletionIndex(a),
		SegmentCount: len(f.segments),
		Mode:         f.mode,
		BetweenLanes: f.between,
	}
}

// Negotiate resolves the mode against peer snapshots.
func (f *CurveFollower) Negotiate(a *Agent, peers []Status) Resolution {
	res := Resolve(f.Status(a), peers)
	f.mode = res.Mode
	f.proxima = res.Proxima
	return res
}

// Adjust applies the current mode to the speed parameter, top speed and
// braking, and triggers lane changes.
func (f *CurveFollower) Adjust(a *Agent) error {
	restore := func() { f.topSpeed = 0 }

	switch f.mode {
	case ModeCruise:
		if f.path.IsPassing(f.lane) {
			f.dynamicAdjust(a)
		} else {
			f.stabilize(a)
		}
		restore()
		f.braking = false
		return f.settle(a)
	case ModePullOver:
		f.stabilize(a)
		restore()
		return f.settle(a)
	case ModeOvertake:
		f.stabilize(a)
		restore()
		f.braking = false
	case ModeDraw:
		f.stabilize(a)
		if f.proxima != nil {
			f.topSpeed = f.proxima.TopSpeed + f.params.DrawMargin
			f.braking = a.CurrentSpeed() > f.proxima.CurrentSpeed
		}
	default: // Alert, Pass, Transition
		f.stabilize(a)
		restore()
	}
	return nil
}

func (f *CurveFollower) speedRatio(a *Agent) float64 {
	top := f.EffectiveTopSpeed(a)
	if top <= 0 {
		return 0
	}
	return a.CurrentSpeed() / top
}

// dynamicAdjust widens or narrows the speed parameter depending on whether
// the last tick hit the acceleration limit.
func (f *CurveFollower) dynamicAdjust(a *Agent) {
	r := f.speedRatio(a)
	if f.incSpeedParam {
		f.speedParam = math.Min(f.speedParam+r/f.params.SpeedParamIncFactor, f.params.MaxSpeedParameter)
	} else {
		f.speedParam = math.Max(f.speedParam-r/f.params.SpeedParamDecFactor, f.params.MinSpeedParameter)
	}
}

// stabilize moves the speed parameter toward the average without
// overshooting it.
func (f *CurveFollower) stabilize(a *Agent) {
	r := math.Abs(f.speedRatio(a))
	avg := f.params.AvgSpeedParameter
	if f.speedParam < avg {
		f.speedParam = math.Min(avg, f.speedParam+r/f.params.SpeedParamIncFactor)
	} else {
		f.speedParam = math.Max(avg, f.speedParam-r/f.params.SpeedParamDecFactor)
	}
	f.speedParam = lo.Clamp(f.speedParam, f.params.MinSpeedParameter, f.params.MaxSpeedParameter)
}

// settle changes lane once the speed parameter is stable and the dwell time
// since the last lane change has passed. Lanes without a partner stay put.
func (f *CurveFollower) settle(a *Agent) error {
	if !f.stable() || f.dwell > 0 {
		return nil
	}
	if _, err := f.path.Partner(f.lane); errors.Is(err, track.ErrNoPartnerLane) {
		return nil
	}
	return f.ChangeLane(a)
}

// DwellRemaining is the time left before a cruise lane change is allowed.
func (f *CurveFollower) DwellRemaining() time.Duration { return f.dwell }

func (f *CurveFollower) stable() bool {
	return math.Abs(f.speedParam-f.params.AvgSpeedParameter) < f.params.StableEpsilon
}

// ChangeLane moves the agent to the other lane of its route. Two bridge
// segments are queued: a curve from the end of the current segment to the
// midpoint between lanes, and a zero-length segment marking arrival on the
// new lane two segments ahead.
func (f *CurveFollower) ChangeLane(a *Agent) error {
	if f.between {
		return ErrBetweenLanes
	}
	partner, err := f.path.Partner(f.lane)
	if err != nil {
		return fmt.Errorf("change lane: %w", err)
	}
	segs, err := f.path.Segments(partner)
	if err != nil {
		return fmt.Errorf("change lane: %w", err)
	}
	if len(segs) == 0 {
		return ErrNoSegments
	}

	start := f.current.End
	end := segs[(f.segIndex+2)%len(segs)].End
	chordUp := r3.Cross(r3.Sub(end.Position, start.Position), start.Direction)
	mid := track.WayPoint{
		Position:  geom.Midpoint(start.Position, end.Position),
		Direction: r3.Cross(start.Direction, chordUp),
	}
	opts := f.path.CurveOptions()

	monitoring.Agent(a.ID())("lane change %d -> %d at segment %d", f.lane, partner, f.segIndex)

	f.lane = partner
	f.segments = segs
	f.bridge = []track.Segment{
		track.NewSegmentWithOptions(start, mid, opts),
		track.NewSegmentWithOptions(end, end, opts),
	}
	f.between = true
	f.mode = ModeTransition
	f.proxima = nil
	f.laneChanges++
	return nil
}
