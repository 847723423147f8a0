// Package sim hosts the traffic agents: it owns the physical bodies that
// realise each agent's commands, the proximity triggers that register peers
// for negotiation, and the fixed-rate loop that ticks the world.
//
// One World.Step runs to completion before the next one starts. Within a
// step, peer events staged during the previous step are applied first, so
// no interaction set changes while negotiation reads it.
package sim
