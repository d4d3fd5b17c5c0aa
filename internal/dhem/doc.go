// Package dhem implements the differential (Encke-type) equations of motion
// in democratic-heliocentric coordinates.
//
// Instead of integrating absolute positions and momenta, each orbiting body
// is split into a two-body reference (osculating) orbit, supplied in closed
// form by a [Propagator], plus a small deviation (dQ, dP) that the
// collocation solver integrates. The package owns:
//
//   - the per-stage reference orbit snapshots ([OrbitSet]) in two parallel
//     sets, "rebasis" and "prediction"
//   - the right-hand side of the deviation equations ([State.RHS])
//   - rectification, which folds the deviation back into a fresh reference
//     orbit ([State.RectifyOrbits])
//   - reconstruction of absolute coordinates ([State.PerformSummation])
//
// Body 0 is the central mass; its democratic-heliocentric position and
// momentum are zero by convention. All arrays are sized once by [New].
//
// A [State] is not safe for concurrent use; independent simulations use
// independent States.
package dhem
