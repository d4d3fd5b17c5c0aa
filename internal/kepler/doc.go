// Package kepler propagates two-body (central mass plus one body) orbits in
// closed form using universal variables.
//
// [Universal] keeps one anchor (position, momentum, epoch) per body and
// answers position/momentum queries at arbitrary times from that anchor. The
// position and momentum increments are folded onto the anchor with
// compensated summation; the rounding residue of the latest query is kept per
// body so callers can reclaim it when they re-anchor.
//
// Elliptic, parabolic and hyperbolic orbits are handled uniformly through
// the Stumpff functions.
package kepler
