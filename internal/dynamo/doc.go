// Package dynamo provides core numerical primitives shared by the orbit
// integrators.
//
// The package defines the small vocabulary every other package speaks:
//
//   - [Vec3]: a Cartesian 3-vector, one per body
//   - [Body]: a point mass taking part in the simulation
//   - [State], [System], [Integrator]: flat-vector ODE interfaces used by
//     the absolute-coordinate baseline integrators
//   - [AddCompensated], [Kahan]: compensated (Kahan) summation
//   - [ParallelFor]: chunked data-parallel loop helper
//
// # Compensated Summation
//
// Quantities rebuilt as "reference + small correction" must go through
// [AddCompensated] so that round-off does not grow with the number of steps:
//
//	var acc, carry float64
//	for _, x := range terms {
//	    dynamo.AddCompensated(&acc, &carry, x)
//	}
//
// The carry depends on call order; never reorder additions that share one.
//
// # Thread Safety
//
// Values in this package carry no hidden state. [ParallelFor] callers must
// only write to disjoint index ranges.
package dynamo
