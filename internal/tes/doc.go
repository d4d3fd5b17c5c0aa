// Package tes hosts the Encke-type integrator: it owns a dhem.State, a
// radau.Solver and a two-body propagator for one body set and advances them
// with adaptive steps.
//
// Typical usage:
//
//	integ, err := tes.New(tes.DefaultConfig(), bodies, q, v, tes.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	if err := integ.Integrate(ctx, 100); err != nil {
//		return err
//	}
//	q, v = integ.Inertial()
package tes
