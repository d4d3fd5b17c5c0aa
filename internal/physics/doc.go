// Package physics provides the direct-summation Newtonian N-body system in
// absolute inertial coordinates.
//
// [NBody] implements [dynamo.System] and [dynamo.Hamiltonian], so any
// baseline integrator can advance it:
//
//	sys := physics.NewNBody(1, masses)
//	x := sys.Pack(q, v)
//	x = integrators.NewRK4().Step(sys, x, 0, 0.01)
//	energy := sys.Energy(x)
//
// It is the reference the Encke integrator is compared against.
package physics
