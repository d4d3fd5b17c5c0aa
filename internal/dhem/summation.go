package dhem

import (
	"github.com/san-kum/orbitlab/internal/dynamo"
)

// PerformSummation rebuilds absolute democratic-heliocentric coordinates
// from the stage's reference orbit, the deviation and both residual sets.
// Body 0 is always the origin.
func (s *State) PerformSummation(Q, P, dQ, dP []dynamo.Vec3, solver Residuals, stage int) {
	osc := &s.active[stage]

	Q[0], P[0] = dynamo.Vec3{}, dynamo.Vec3{}
	for i := 1; i < s.n; i++ {
		Q[i] = sum4(osc.Q[i], dQ[i], osc.Qcs[i], solver.Q[i])
		P[i] = sum4(osc.P[i], dP[i], osc.Pcs[i], solver.P[i])
	}
}

func sum4(ref, dev, refCS, solverCS dynamo.Vec3) dynamo.Vec3 {
	acc := ref
	var carry dynamo.Vec3
	dynamo.AddCompensatedVec(&acc, &carry, dev)
	dynamo.AddCompensatedVec(&acc, &carry, refCS)
	dynamo.AddCompensatedVec(&acc, &carry, solverCS)
	return acc.Sub(carry)
}
