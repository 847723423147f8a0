package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/trafficsim/internal/config"
	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/banshee-data/trafficsim/internal/monitoring"
	"github.com/banshee-data/trafficsim/internal/track"
	"github.com/banshee-data/trafficsim/internal/traffic"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// ErrDuplicateAgent is returned when an agent ID is already in use.
var ErrDuplicateAgent = errors.New("duplicate agent id")

// Default world options.
const (
	DefaultTriggerRadius = 12.0
	DefaultSampleEvery   = 10
	DefaultTickInterval  = 20 * time.Millisecond
)

// Sample is one recorded agent state.
type Sample struct {
	Tick           int64            `json:"tick"`
	AgentID        string           `json:"agent_id"`
	Lane           int              `json:"lane"`
	Segment        int              `json:"segment"`
	T              float64          `json:"t"`
	Completion     float64          `json:"completion"`
	Speed          float64          `json:"speed"`
	SpeedParameter float64          `json:"speed_parameter"`
	Mode           traffic.ModeType `json:"mode"`
	X              float64          `json:"x"`
	Z              float64          `json:"z"`
}

// ModeChange is a recorded transition of an agent's mode.
type ModeChange struct {
	Tick    int64            `json:"tick"`
	AgentID string           `json:"agent_id"`
	From    traffic.ModeType `json:"from"`
	To      traffic.ModeType `json:"to"`
	Lane    int              `json:"lane"`
}

// Recorder persists what the world does. Failures are logged and never stop
// the world.
type Recorder interface {
	RecordSamples(ctx context.Context, samples []Sample) error
	RecordModeChange(ctx context.Context, change ModeChange) error
}

// Options configures a World.
type Options struct {
	Params        traffic.Params
	Curve         *traffic.AccelerationCurve
	TriggerRadius float64
	SampleEvery   int // record every n ticks; 0 disables sampling
	TickInterval  time.Duration
	Recorder      Recorder
}

// DefaultOptions returns options built from the compiled-in defaults.
func DefaultOptions() Options {
	return Options{
		Params:        traffic.DefaultParams(),
		Curve:         traffic.DefaultAccelerationCurve(),
		TriggerRadius: DefaultTriggerRadius,
		SampleEvery:   DefaultSampleEvery,
		TickInterval:  DefaultTickInterval,
	}
}

// OptionsFromTuning builds world options from a tuning config.
func OptionsFromTuning(cfg *config.TuningConfig) (Options, error) {
	curve, err := traffic.AccelerationCurveFromTuning(cfg)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Params:        traffic.ParamsFromTuning(cfg),
		Curve:         curve,
		TriggerRadius: cfg.GetTriggerRadius(),
		SampleEvery:   cfg.GetSampleEvery(),
		TickInterval:  cfg.GetTickInterval(),
	}, nil
}

// AgentSpec describes an agent to add. With a nil Input the agent is an AI
// curve follower starting at Lane/Segment; otherwise it is driven by Input
// and starts at the same place.
type AgentSpec struct {
	ID            string
	TopSpeed      float64
	Lane          int
	Segment       int
	Curve         *traffic.AccelerationCurve
	Input         traffic.Input
	MaxSteerAngle float64
}

type entry struct {
	agent    *traffic.Agent
	body     Body
	follower *traffic.CurveFollower
	logf     monitoring.LogFunc
	lastMode traffic.ModeType
	faults   int
	lastErr  string
}

// World owns the path, the agents and their bodies. Step and the mutating
// methods serialise on the world lock; Snapshot may be called from any
// goroutine.
type World struct {
	mu        sync.RWMutex
	path      *track.Path
	opts      Options
	agents    []*entry
	byID      map[string]*entry
	proximity *Proximity
	tick      int64
}

// NewWorld creates an empty world on path.
func NewWorld(path *track.Path, opts Options) *World {
	if opts.Curve == nil {
		opts.Curve = traffic.DefaultAccelerationCurve()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.TriggerRadius <= 0 {
		opts.TriggerRadius = DefaultTriggerRadius
	}
	return &World{
		path:      path,
		opts:      opts,
		byID:      make(map[string]*entry),
		proximity: NewProximity(opts.TriggerRadius),
	}
}

// Path returns the shared path.
func (w *World) Path() *track.Path { return w.path }

// TickInterval is the fixed step duration.
func (w *World) TickInterval() time.Duration { return w.opts.TickInterval }

// Tick returns the number of completed steps.
func (w *World) Tick() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tick
}

// AddAgent creates an agent, places it at the start of its segment and adds
// it to the world. An empty ID is replaced by a random one.
func (w *World) AddAgent(spec AgentSpec) (*traffic.Agent, error) {
	if spec.ID == "" {
		spec.ID = "car-" + uuid.NewString()[:8]
	}
	curve := spec.Curve
	if curve == nil {
		curve = w.opts.Curve
	}

	follower, err := traffic.NewCurveFollower(w.path, spec.Lane, spec.Segment, w.opts.Params)
	if err != nil {
		return nil, fmt.Errorf("add agent %s: %w", spec.ID, err)
	}

	var policy traffic.MotionPolicy = follower
	if spec.Input != nil {
		policy = traffic.NewInputDriven(spec.Input, spec.MaxSteerAngle)
	}
	agent := traffic.NewAgent(spec.ID, spec.TopSpeed, curve, policy)
	follower.Place(agent)

	e := &entry{
		agent: agent,
		body:  NewKinematicBody(agent.Pose()),
		logf:  monitoring.Agent(spec.ID),
	}
	if spec.Input == nil {
		e.follower = follower
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.byID[spec.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAgent, spec.ID)
	}
	w.agents = append(w.agents, e)
	w.byID[spec.ID] = e
	e.logf("added on lane %d segment %d, top speed %.1f", spec.Lane, spec.Segment, spec.TopSpeed)
	return agent, nil
}

// RemoveAgent drops an agent. Peers see it leave on the next proximity pass.
func (w *World) RemoveAgent(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.byID[id]; !ok {
		return false
	}
	delete(w.byID, id)
	for i, e := range w.agents {
		if e.agent.ID() == id {
			w.agents = append(w.agents[:i], w.agents[i+1:]...)
			break
		}
	}
	return true
}

// Follower returns the curve follower driving id, if any.
func (w *World) Follower(id string) (*traffic.CurveFollower, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.byID[id]
	if !ok || e.follower == nil {
		return nil, false
	}
	return e.follower, true
}

// SetHandbrake engages or releases the handbrake of a curve follower.
func (w *World) SetHandbrake(id string, on bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.byID[id]
	if !ok || e.follower == nil {
		return false
	}
	e.follower.SetHandbrake(on)
	return true
}

// Step advances the world by one tick.
func (w *World) Step(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dt := w.opts.TickInterval

	for _, e := range w.agents {
		if e.follower != nil {
			e.follower.Peers().Apply()
		}
	}

	active := make([]*entry, 0, len(w.agents))
	for _, e := range w.agents {
		cmd, err := e.agent.Step(dt)
		if err != nil {
			w.fault(e, err)
			continue
		}
		e.agent.Observe(e.body.Apply(cmd, dt))
		active = append(active, e)
	}

	statuses := make(map[string]traffic.Status, len(active))
	for _, e := range active {
		if e.follower != nil {
			statuses[e.agent.ID()] = e.follower.Status(e.agent)
		}
	}

	for _, e := range active {
		if e.follower == nil {
			continue
		}
		var peers []traffic.Status
		for _, id := range e.follower.Peers().Peers() {
			if s, ok := statuses[id]; ok {
				peers = append(peers, s)
			}
		}
		res := e.follower.Negotiate(e.agent, peers)
		if res.Mode != e.lastMode {
			e.logf("mode %s -> %s", e.lastMode, res.Mode)
			w.recordModeChange(ctx, ModeChange{
				Tick:    w.tick,
				AgentID: e.agent.ID(),
				From:    e.lastMode,
				To:      res.Mode,
				Lane:    e.follower.Lane(),
			})
			e.lastMode = res.Mode
		}
		if err := e.follower.Adjust(e.agent); err != nil {
			w.fault(e, err)
		}
	}

	w.updateProximity()
	w.tick++

	if w.opts.SampleEvery > 0 && w.tick%int64(w.opts.SampleEvery) == 0 {
		w.recordSamples(ctx)
	}
}

func (w *World) fault(e *entry, err error) {
	e.faults++
	e.lastErr = err.Error()
	e.logf("tick %d: %v", w.tick, err)
}

func (w *World) updateProximity() {
	positions := make(map[string]orb.Point, len(w.agents))
	for _, e := range w.agents {
		if e.follower != nil {
			positions[e.agent.ID()] = geom.Ground(e.agent.Pose().Position)
		}
	}
	for _, ev := range w.proximity.Update(positions) {
		e, ok := w.byID[ev.Self]
		if !ok || e.follower == nil {
			continue
		}
		if ev.Enter {
			e.follower.Peers().Enter(ev.Peer)
		} else {
			e.follower.Peers().Exit(ev.Peer)
		}
	}
}

func (w *World) recordModeChange(ctx context.Context, change ModeChange) {
	if w.opts.Recorder == nil {
		return
	}
	if err := w.opts.Recorder.RecordModeChange(ctx, change); err != nil {
		monitoring.Logf("[sim] record mode change: %v", err)
	}
}

func (w *World) recordSamples(ctx context.Context) {
	if w.opts.Recorder == nil {
		return
	}
	samples := make([]Sample, 0, len(w.agents))
	for _, e := range w.agents {
		if e.follower == nil {
			continue
		}
		pos := e.agent.Pose().Position
		samples = append(samples, Sample{
			Tick:           w.tick,
			AgentID:        e.agent.ID(),
			Lane:           e.follower.Lane(),
			Segment:        e.follower.SegmentIndex(),
			T:              e.follower.T(),
			Completion:     e.follower.CompletionIndex(e.agent),
			Speed:          e.agent.CurrentSpeed(),
			SpeedParameter: e.follower.SpeedParameter(),
			Mode:           e.follower.Mode(),
			X:              pos.X,
			Z:              pos.Z,
		})
	}
	if len(samples) == 0 {
		return
	}
	if err := w.opts.Recorder.RecordSamples(ctx, samples); err != nil {
		monitoring.Logf("[sim] record samples: %v", err)
	}
}
