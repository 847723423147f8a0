// Package traffic implements the per-agent driving logic: lane following
// along curve segments, right-of-way negotiation with nearby peers, and the
// lane-change maneuver that moves an agent between the two lanes of its
// route.
//
// Negotiation is split into a pure part (Resolve over Status snapshots) and
// a stateful part (Negotiator, which buffers peer enter/exit events until
// the host applies them between ticks). Agents never touch each other's
// state; they only read the Status snapshots taken at the start of a
// negotiation round.
package traffic
