package sim

import (
	"fmt"

	"github.com/banshee-data/trafficsim/internal/track"
)

// Spawn lays out count AI agents over the non-passing lanes of path, spread
// evenly around the loop. Top speeds cycle through topSpeeds.
func Spawn(path *track.Path, count int, topSpeeds []float64) ([]AgentSpec, error) {
	if count <= 0 {
		return nil, nil
	}
	if len(topSpeeds) == 0 {
		return nil, fmt.Errorf("spawn: no top speeds")
	}

	var lanes []int
	for i := 0; i < path.LaneCount(); i++ {
		if !path.IsPassing(i) {
			lanes = append(lanes, i)
		}
	}
	if len(lanes) == 0 {
		lanes = []int{0}
	}

	perLane := (count + len(lanes) - 1) / len(lanes)
	specs := make([]AgentSpec, 0, count)
	for i := 0; i < count; i++ {
		lane := lanes[i%len(lanes)]
		segs, err := path.Segments(lane)
		if err != nil {
			return nil, fmt.Errorf("spawn: %w", err)
		}
		slot := i / len(lanes)
		specs = append(specs, AgentSpec{
			ID:       fmt.Sprintf("car-%d", i),
			TopSpeed: topSpeeds[i%len(topSpeeds)],
			Lane:     lane,
			Segment:  slot * len(segs) / perLane,
		})
	}
	return specs, nil
}
