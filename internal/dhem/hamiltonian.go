package dhem

import (
	"github.com/san-kum/orbitlab/internal/dynamo"
)

// Hamiltonian returns the democratic-heliocentric Hamiltonian
//
//	H = sum_i |P_i|^2/(2 m_i) - G m0 m_i/|Q_i|
//	  + |sum_i P_i|^2/(2 m0)
//	  - sum_{i<j} G m_i m_j/|Q_i - Q_j|
//
// over the orbiting bodies i, j >= 1. It equals the barycentric total energy.
func Hamiltonian(G float64, m []float64, Q, P []dynamo.Vec3) float64 {
	var h dynamo.Kahan
	var pSum dynamo.Vec3

	n := len(m)
	for i := 1; i < n; i++ {
		h.Add(P[i].Norm2() / (2 * m[i]))
		h.Add(-G * m[0] * m[i] / Q[i].Norm())
		pSum = pSum.Add(P[i])
	}
	h.Add(pSum.Norm2() / (2 * m[0]))

	for i := 1; i < n; i++ {
		for j := i + 1; j < n; j++ {
			h.Add(-G * m[i] * m[j] / Q[i].Sub(Q[j]).Norm())
		}
	}

	return h.Sum()
}

// Hamiltonian evaluates the Hamiltonian of absolute coordinates with this
// State's masses and gravitational constant.
func (s *State) Hamiltonian(Q, P []dynamo.Vec3) float64 {
	return Hamiltonian(s.g, s.m, Q, P)
}
