package dhem

import (
	"github.com/san-kum/orbitlab/internal/dynamo"
)

// RectifyOrbits checks every orbiting body against its schedule and the
// deviation tolerance and, when triggered, collapses the deviation into a
// freshly anchored reference orbit.
//
// Q and P receive the absolute coordinates of every rectified body, dQ and dP
// are reset to the negated summation residue, and the propagator, snapshot
// and solver residuals of those bodies are zeroed. flags is rewritten to
// mark the rectified bodies. The snapshot at stage (normally FinalStage of
// the previous step, i.e. time t) is the reference being collapsed.
//
// Under RectifyGlobal a single trigger rectifies every body. The next
// scheduled time is counted from t, not from the previous schedule.
func (s *State) RectifyOrbits(t float64, Q, P, dQ, dP []dynamo.Vec3, solver Residuals, flags RectifiedFlags, stage int) int {
	osc := &s.active[stage]

	any := false
	for i := 1; i < s.n; i++ {
		flags.Q[i], flags.P[i] = false, false

		dqNorm := dQ[i].Norm() / osc.Q[i].Norm()
		s.triggered[i] = t > s.rectifyTime[i] || dqNorm > s.dqMax
		any = any || s.triggered[i]
	}
	if !any {
		return 0
	}

	count := 0
	for i := 1; i < s.n; i++ {
		if s.policy == RectifyPerBody && !s.triggered[i] {
			continue
		}
		count++

		kq, kp := s.prop.Residuals(i)
		Q[i], dQ[i] = fold(osc.Q[i], dQ[i], kq, solver.Q[i])
		P[i], dP[i] = fold(osc.P[i], dP[i], kp, solver.P[i])

		solver.Q[i], solver.P[i] = dynamo.Vec3{}, dynamo.Vec3{}
		osc.Qcs[i], osc.Pcs[i] = dynamo.Vec3{}, dynamo.Vec3{}
		s.prop.ClearResiduals(i)

		s.prop.Rebase(i, Q[i], P[i], t)
		s.rectifyTime[i] = t + s.rectifyPeriod[i]

		flags.Q[i], flags.P[i] = true, true
	}

	return count
}

// fold compensated-sums a reference value with its deviation and residuals.
// It returns the new reference and the deviation that recovers the exact sum
// from it.
func fold(ref, dev, propagatorCS, solverCS dynamo.Vec3) (sum, residual dynamo.Vec3) {
	sum = ref
	var carry dynamo.Vec3
	dynamo.AddCompensatedVec(&sum, &carry, dev)
	dynamo.AddCompensatedVec(&sum, &carry, propagatorCS)
	dynamo.AddCompensatedVec(&sum, &carry, solverCS)
	return sum, carry.Scale(-1)
}
