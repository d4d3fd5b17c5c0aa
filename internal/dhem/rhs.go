package dhem

import (
	"math"

	"github.com/san-kum/orbitlab/internal/dynamo"
)

// RHS evaluates the deviation equations of motion at a stage of the active
// snapshot set. It writes the first derivatives dQdot, dPdot and the second
// position derivative dQddot. Body 0 entries are left untouched.
func (s *State) RHS(stage int, dQ, dP, dQdot, dPdot, dQddot []dynamo.Vec3) {
	osc := &s.active[stage]
	n := s.n

	for i := 1; i < n; i++ {
		s.q[i] = osc.Q[i].Add(dQ[i])
		s.p[i] = osc.P[i].Add(dP[i])
	}

	var vCentral dynamo.Vec3
	for i := 1; i < n; i++ {
		vCentral = vCentral.Add(s.p[i])
	}
	vCentral = vCentral.Scale(s.mInv[0])

	for i := 1; i < n; i++ {
		dQdot[i] = dP[i].Scale(s.mInv[i]).Add(vCentral)
	}

	central := func(start, end int) {
		for i := start + 1; i < end+1; i++ {
			dPdot[i] = s.centralPerturbation(osc.Q[i], s.q[i], dQ[i], s.m[i])
		}
	}
	if n-1 >= parallelBodyThreshold {
		dynamo.ParallelFor(n-1, parallelBodyThreshold/2, central)
	} else {
		central(0, n-1)
	}

	for i := 2; i < n; i++ {
		gm := s.g * s.m[i]
		for j := 1; j < i; j++ {
			f := pairForce(gm*s.m[j], s.q[i], s.q[j])
			dPdot[i] = dPdot[i].Add(f)
			dPdot[j] = dPdot[j].Sub(f)
		}
	}

	var vCentralDot dynamo.Vec3
	for i := 1; i < n; i++ {
		vCentralDot = vCentralDot.Add(osc.Pdot[i].Add(dPdot[i]))
	}
	vCentralDot = vCentralDot.Scale(s.mInv[0])

	for i := 1; i < n; i++ {
		dQddot[i] = vCentralDot.Add(dPdot[i].Scale(s.mInv[i]))
	}
}

// centralPerturbation is the difference between the full and the reference
// two-body pull of the central mass on one body,
//
//	G m0 m / |Qosc|^3 (-dQ + f(q) Q)
//
// with q = dQ.(dQ - 2Q)/|Q|^2 and f(q) = -q(3+3q+q^2) / (1+(1+q)^(3/2)).
// f(q) stays accurate as q -> 0, where a direct difference of the two
// accelerations would cancel.
func (s *State) centralPerturbation(qosc, q, dq dynamo.Vec3, m float64) dynamo.Vec3 {
	rOsc := qosc.Norm()
	k := s.g * s.m[0] * m / (rOsc * rOsc * rOsc)

	fq := stabilisedFactor(dq.Dot(dq.Sub(q.Scale(2))) / q.Norm2())

	return dq.Scale(-k).Add(q.Scale(k * fq))
}

func stabilisedFactor(q float64) float64 {
	q1 := 1 + q
	return -q * (3 + 3*q + q*q) / (1 + math.Sqrt(q1*q1*q1))
}

// pairForce is the attraction on body i towards body j.
func pairForce(gmm float64, qi, qj dynamo.Vec3) dynamo.Vec3 {
	sep := qj.Sub(qi)
	r := sep.Norm()
	return sep.Scale(gmm / (r * r * r))
}
