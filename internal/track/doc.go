// Package track owns the geometric path model: nodes authored along the
// track centerline, lanes offset from it, and the curved segments agents
// follow.
//
// A Path is a single closed loop. Every lane derived from it has one segment
// per node. Lanes sharing a movement share segment indexing, so an agent can
// move to the neighbouring lane of its route and keep its segment index
// (reverse lanes walk the nodes backwards). Segment lists are
// immutable snapshots: a rebuild swaps in a new list atomically, so readers
// never observe a partially rebuilt lane.
//
// Dependency rule: track has no knowledge of agents or negotiation.
package track
