package dhem

import (
	"github.com/san-kum/orbitlab/internal/dynamo"
)

// InitialiseOsculatingOrbits anchors every orbiting body's reference orbit
// at (Q, P) at time t and fills every stage of both snapshot sets with it.
func (s *State) InitialiseOsculatingOrbits(Q, P []dynamo.Vec3, t float64) error {
	for i := 1; i < s.n; i++ {
		s.prop.Rebase(i, Q[i], P[i], t)
	}
	if err := s.CalcOscOrbitsForAllStages(t, 0, false); err != nil {
		return err
	}
	return s.CalcOscOrbitsForAllStages(t, 0, true)
}

// CalcOscOrbitsForAllStages evaluates the reference orbits at every stage of
// the step [t0, t0+h]. Results go to the rebasis set when rebasis is true and
// to the prediction set otherwise; the written set becomes active.
func (s *State) CalcOscOrbitsForAllStages(t0, h float64, rebasis bool) error {
	set := &s.prediction
	if rebasis {
		set = &s.rebasis
	}

	for k := 0; k < StagesPerStep; k++ {
		orbit := &set[k]
		t := t0 + h*StageFractions[k]
		for i := 1; i < s.n; i++ {
			q, p, qcs, pcs, err := s.prop.Propagate(i, t)
			if err != nil {
				return err
			}
			orbit.Q[i], orbit.P[i] = q, p
			orbit.Qcs[i], orbit.Pcs[i] = qcs, pcs
		}
	}

	s.active = set
	for k := 0; k < StagesPerStep; k++ {
		s.calculateOsculatingOrbitDerivatives(&set[k])
	}
	return nil
}

// calculateOsculatingOrbitDerivatives fills Qdot = P/m and the two-body
// momentum derivative Pdot = -G m0 m Q/|Q|^3.
func (s *State) calculateOsculatingOrbitDerivatives(o *Orbit) {
	gm0 := -s.g * s.m[0]
	for i := 1; i < s.n; i++ {
		o.Qdot[i] = o.P[i].Scale(s.mInv[i])

		r := o.Q[i].Norm()
		o.Pdot[i] = o.Q[i].Scale(gm0 * s.m[i] / (r * r * r))
	}
}
