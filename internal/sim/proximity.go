package sim

import (
	"cmp"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/samber/lo"
)

// ProximityEvent tells Self that Peer entered or left its trigger volume.
type ProximityEvent struct {
	Self  string
	Peer  string
	Enter bool
}

type idPair struct{ a, b string }

// Proximity emulates trigger volumes: a circle of fixed radius on the ground
// plane around every agent. It is not safe for concurrent use.
type Proximity struct {
	radius float64
	inside map[idPair]bool
}

// NewProximity creates a detector with the given trigger radius.
func NewProximity(radius float64) *Proximity {
	return &Proximity{radius: radius, inside: make(map[idPair]bool)}
}

// Radius returns the trigger radius.
func (p *Proximity) Radius() float64 { return p.radius }

// Update compares the positions against the previous update and returns the
// enter and exit events, two per changed pair, in a deterministic order.
// Agents missing from positions leave every volume they were in.
func (p *Proximity) Update(positions map[string]orb.Point) []ProximityEvent {
	ids := lo.Keys(positions)
	slices.Sort(ids)

	now := make(map[idPair]bool)
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			if planar.Distance(positions[a], positions[b]) <= p.radius {
				now[idPair{a, b}] = true
			}
		}
	}

	var events []ProximityEvent
	for pair := range now {
		if !p.inside[pair] {
			events = append(events, pairEvents(pair, true)...)
		}
	}
	for pair := range p.inside {
		if !now[pair] {
			events = append(events, pairEvents(pair, false)...)
		}
	}
	p.inside = now

	slices.SortFunc(events, compareEvents)
	return events
}

// Inside reports whether a and b are currently within range.
func (p *Proximity) Inside(a, b string) bool {
	if b < a {
		a, b = b, a
	}
	return p.inside[idPair{a, b}]
}

// compareEvents orders by Self, then Peer, with exits before enters.
func compareEvents(a, b ProximityEvent) int {
	return cmp.Or(
		cmp.Compare(a.Self, b.Self),
		cmp.Compare(a.Peer, b.Peer),
		cmp.Compare(lo.Ternary(a.Enter, 1, 0), lo.Ternary(b.Enter, 1, 0)),
	)
}

func pairEvents(pair idPair, enter bool) []ProximityEvent {
	return []ProximityEvent{
		{Self: pair.a, Peer: pair.b, Enter: enter},
		{Self: pair.b, Peer: pair.a, Enter: enter},
	}
}
