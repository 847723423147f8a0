package sim

import (
	"slices"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProximityEnterExit(t *testing.T) {
	p := NewProximity(10)
	assert.Equal(t, 10.0, p.Radius())

	events := p.Update(map[string]orb.Point{
		"a": {0, 0},
		"b": {6, 8}, // exactly on the radius
		"c": {50, 0},
	})
	require.Equal(t, []ProximityEvent{
		{Self: "a", Peer: "b", Enter: true},
		{Self: "b", Peer: "a", Enter: true},
	}, events)
	assert.True(t, p.Inside("b", "a"))
	assert.False(t, p.Inside("a", "c"))

	// No change, no events.
	assert.Empty(t, p.Update(map[string]orb.Point{"a": {0, 0}, "b": {5, 0}, "c": {50, 0}}))

	events = p.Update(map[string]orb.Point{"a": {0, 0}, "b": {30, 0}, "c": {45, 0}})
	assert.Equal(t, []ProximityEvent{
		{Self: "a", Peer: "b", Enter: false},
		{Self: "b", Peer: "a", Enter: false},
		{Self: "b", Peer: "c", Enter: true},
		{Self: "c", Peer: "b", Enter: true},
	}, events)
}

func TestProximityMissingAgentLeaves(t *testing.T) {
	p := NewProximity(10)
	p.Update(map[string]orb.Point{"a": {0, 0}, "b": {1, 0}})

	events := p.Update(map[string]orb.Point{"a": {0, 0}})
	assert.Equal(t, []ProximityEvent{
		{Self: "a", Peer: "b", Enter: false},
		{Self: "b", Peer: "a", Enter: false},
	}, events)
	assert.False(t, p.Inside("a", "b"))
}

func TestCompareEvents(t *testing.T) {
	events := []ProximityEvent{
		{Self: "b", Peer: "a", Enter: true},
		{Self: "a", Peer: "c", Enter: true},
		{Self: "a", Peer: "b", Enter: true},
		{Self: "a", Peer: "b", Enter: false},
	}
	slices.SortFunc(events, compareEvents)
	assert.Equal(t, []ProximityEvent{
		{Self: "a", Peer: "b", Enter: false},
		{Self: "a", Peer: "b", Enter: true},
		{Self: "a", Peer: "c", Enter: true},
		{Self: "b", Peer: "a", Enter: true},
	}, events)
	assert.Zero(t, compareEvents(events[2], events[2]))
}
