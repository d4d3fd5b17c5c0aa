// Package analysis derives orbital quantities from sampled runs.
//
//   - [OsculatingElements]: semi-major axis, eccentricity and inclination
//     of a relative two-body state
//   - [DominantPeriod]: strongest period of a uniformly sampled series
//   - [FiniteTimeLyapunov]: divergence rate of two nearby runs
//
// # Chaos Detection
//
// A clearly positive finite-time Lyapunov exponent over many orbits
// indicates chaotic motion:
//
//	lambda, err := analysis.Lyapunov(ctx, ensemble, build, 1e-8, cfg)
package analysis
