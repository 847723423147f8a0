package traffic

import (
	"slices"
	"sync"
)

type peerEvent struct {
	id    string
	enter bool
}

// Negotiator holds the set of peers an agent is interacting with. Enter and
// Exit are safe from any goroutine; they are staged and only take effect when
// the owner calls Apply between ticks, so the set never changes while a
// negotiation round reads it.
type Negotiator struct {
	mu      sync.Mutex
	pending []peerEvent

	peers []string // enter order; owned by the tick goroutine
}

// NewNegotiator returns an empty negotiator.
func NewNegotiator() *Negotiator {
	return &Negotiator{}
}

// Enter stages a peer registration.
func (n *Negotiator) Enter(id string) {
	n.stage(peerEvent{id: id, enter: true})
}

// Exit stages a peer removal.
func (n *Negotiator) Exit(id string) {
	n.stage(peerEvent{id: id})
}

func (n *Negotiator) stage(ev peerEvent) {
	n.mu.Lock()
	n.pending = append(n.pending, ev)
	n.mu.Unlock()
}

// Pending reports the number of staged events.
func (n *Negotiator) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// Apply drains the staged events in FIFO order. A duplicate enter and an exit
// of an absent peer are absorbed. It reports whether the peer set changed.
func (n *Negotiator) Apply() bool {
	n.mu.Lock()
	events := n.pending
	n.pending = nil
	n.mu.Unlock()

	changed := false
	for _, ev := range events {
		idx := slices.Index(n.peers, ev.id)
		switch {
		case ev.enter && idx < 0:
			n.peers = append(n.peers, ev.id)
			changed = true
		case !ev.enter && idx >= 0:
			n.peers = slices.Delete(n.peers, idx, idx+1)
			changed = true
		}
	}
	return changed
}

// Peers returns the applied peer IDs in enter order.
func (n *Negotiator) Peers() []string {
	return slices.Clone(n.peers)
}

// Has reports whether id is in the applied peer set.
func (n *Negotiator) Has(id string) bool {
	return slices.Contains(n.peers, id)
}

// Len returns the applied peer count.
func (n *Negotiator) Len() int {
	return len(n.peers)
}
