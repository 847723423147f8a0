// Package geom holds the vector helpers shared by the track and traffic
// packages.
//
// World space is Y-up. The ground plane is X/Z; ground-plane geometry is
// expressed as orb.Point{x, z} so it can be handed to the orb planar helpers
// and encoders unchanged.
package geom
