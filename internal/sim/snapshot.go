package sim

import (
	"github.com/banshee-data/trafficsim/internal/traffic"
)

// Agent kinds reported in snapshots.
const (
	KindFollower = "follower"
	KindInput    = "input"
)

// AgentView is a read-only copy of one agent's state.
type AgentView struct {
	ID             string           `json:"id"`
	Kind           string           `json:"kind"`
	Pose           traffic.Pose     `json:"pose"`
	TopSpeed       float64          `json:"top_speed"`
	CurrentSpeed   float64          `json:"current_speed"`
	Steering       float64          `json:"steering"`
	Status         *traffic.Status  `json:"status,omitempty"`
	SegmentIndex   int              `json:"segment_index"`
	T              float64          `json:"t"`
	SpeedParameter float64          `json:"speed_parameter"`
	Braking        bool             `json:"braking"`
	LaneChanges    int              `json:"lane_changes"`
	Peers          []string         `json:"peers,omitempty"`
	Mode           traffic.ModeType `json:"mode"`
	Faults         int              `json:"faults"`
	LastError      string           `json:"last_error,omitempty"`
}

// Snapshot is the world state between two ticks.
type Snapshot struct {
	Path   string      `json:"path"`
	Tick   int64       `json:"tick"`
	Agents []AgentView `json:"agents"`
}

// Snapshot copies the world state. Agents are listed in the order they were
// added.
func (w *World) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := Snapshot{
		Path:   w.path.Name(),
		Tick:   w.tick,
		Agents: make([]AgentView, 0, len(w.agents)),
	}
	for _, e := range w.agents {
		v := AgentView{
			ID:           e.agent.ID(),
			Kind:         KindInput,
			Pose:         e.agent.Pose(),
			TopSpeed:     e.agent.TopSpeed(),
			CurrentSpeed: e.agent.CurrentSpeed(),
			Steering:     e.agent.Steering(),
			Faults:       e.faults,
			LastError:    e.lastErr,
		}
		if f := e.follower; f != nil {
			status := f.Status(e.agent)
			v.Kind = KindFollower
			v.Status = &status
			v.SegmentIndex = f.SegmentIndex()
			v.T = f.T()
			v.SpeedParameter = f.SpeedParameter()
			v.Braking = f.Braking()
			v.LaneChanges = f.LaneChanges()
			v.Peers = f.Peers().Peers()
			v.Mode = f.Mode()
		}
		snap.Agents = append(snap.Agents, v)
	}
	return snap
}

// Agent returns the view of a single agent.
func (s Snapshot) Agent(id string) (AgentView, bool) {
	for _, a := range s.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentView{}, false
}
