package traffic

import (
	"fmt"
	"math"
	"strings"
)

// ModeType is an agent's driving mode. Declaration order is priority order:
// when several peers propose different modes, the highest one wins.
type ModeType int

const (
	ModeCruise ModeType = iota
	ModeAlert
	ModePullOver
	ModePass
	ModeOvertake
	ModeDraw
	ModeTransition
)

var modeNames = [...]string{"cruise", "alert", "pull_over", "pass", "overtake", "draw", "transition"}

func (m ModeType) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// MarshalText implements encoding.TextMarshaler.
func (m ModeType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ModeType) UnmarshalText(b []byte) error {
	s := strings.ToLower(string(b))
	for i, name := range modeNames {
		if name == s {
			*m = ModeType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", string(b))
}

// Status is the read-only view of an agent used during negotiation.
type Status struct {
	ID           string   `json:"id"`
	LaneIndex    int      `json:"lane"`
	PrimaryRoute bool     `json:"primary_route"`
	TopSpeed     float64  `json:"top_speed"`
	CurrentSpeed float64  `json:"current_speed"`
	Completion   float64  `json:"completion"`
	SegmentCount int      `json:"segment_count"`
	Mode         ModeType `json:"mode"`
	BetweenLanes bool     `json:"between_lanes"`
}

func (s Status) transitioning() bool {
	return s.BetweenLanes || s.Mode == ModeTransition
}

// Resolution is the outcome of one negotiation round.
type Resolution struct {
	Mode ModeType
	// Proxima is the car being paced in Draw mode; nil otherwise.
	Proxima *Status
}

// CompareCompletion returns the signed circular distance from completion
// index i2 to i1 on a loop of n segments. Positive means i1 is ahead.
func CompareCompletion(i1, i2 float64, n int) float64 {
	if n <= 0 {
		return i1 - i2
	}
	size := float64(n)
	half := size / 2
	d := math.Mod(i1-i2+half, size)
	if d < 0 {
		d += size
	}
	return d - half
}

// Resolve computes the mode of self given the peers it is interacting with.
// It has no hidden state: the same inputs always give the same result.
func Resolve(self Status, peers []Status) Resolution {
	if self.BetweenLanes {
		return Resolution{Mode: ModeTransition}
	}

	mode := ModeCruise
	var draws []Status
	propose := func(m ModeType) {
		if m > mode {
			mode = m
		}
	}

	for _, peer := range peers {
		if peer.ID == self.ID {
			continue
		}
		if peer.PrimaryRoute != self.PrimaryRoute {
			propose(ModeAlert)
			continue
		}

		gap := CompareCompletion(self.Completion, peer.Completion, self.SegmentCount)
		sameLane := self.LaneIndex == peer.LaneIndex
		if gap > 0 {
			switch {
			case self.TopSpeed < peer.TopSpeed && sameLane:
				propose(ModePullOver)
			case self.TopSpeed < peer.TopSpeed:
				propose(ModePass)
			case !sameLane && gap <= 1:
				propose(ModeOvertake)
			}
			continue
		}

		switch {
		case self.TopSpeed > peer.TopSpeed && (sameLane || peer.transitioning()):
			propose(ModeDraw)
			draws = append(draws, peer)
		case self.TopSpeed > peer.TopSpeed:
			propose(ModeOvertake)
		case !sameLane && !peer.transitioning() && gap >= -1:
			propose(ModePass)
		}
	}

	res := Resolution{Mode: mode}
	if mode == ModeDraw {
		// Pace the rearmost of the cars ahead.
		proxima := draws[0]
		for _, d := range draws[1:] {
			if CompareCompletion(proxima.Completion, d.Completion, self.SegmentCount) > 0 {
				proxima = d
			}
		}
		res.Proxima = &proxima
	}
	return res
}
