package tes

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/san-kum/orbitlab/internal/dhem"
)

// SingleStep advances the deviation from t to t+h and returns the step size
// proposed for the next step. hLast is the previous step size.
//
// The order matters: rectification reads the previous step's end-of-step
// reference, the new reference snapshots are then taken from the possibly
// re-anchored propagator, and the coefficients of rectified bodies are
// discarded before the corrector runs.
func (i *Integrator) SingleStep(t, h, hLast float64) (float64, error) {
	hNew, err := i.converge(t, h, hLast)
	if err != nil {
		return h, err
	}
	i.continueTo(h, hNew)
	return hNew, nil
}

// converge runs everything of SingleStep up to the step-size proposal.
// The collocation polynomials are left scaled for h until continueTo.
func (i *Integrator) converge(t, h, hLast float64) (float64, error) {
	count := i.state.RectifyOrbits(t, i.Q, i.P, i.dQ, i.dP, i.solver.Cs, i.flags, dhem.FinalStage)
	if count > 0 {
		i.stats.Rectifications += count
		i.log.Debug("rectified", zap.Float64("t", t), zap.Int("bodies", count))
	}

	if err := i.state.CalcOscOrbitsForAllStages(t, h, count > 0); err != nil {
		return h, fmt.Errorf("reference orbits at t=%g: %w", t, err)
	}

	i.solver.B.ClearRectified(i.flags.Q)
	i.solver.B1st.ClearRectified(i.flags.P)
	i.solver.CalculateGfromB()

	iterations, err := i.solver.Step(i.state.RHS, i.dQ, i.dP, h)
	i.stats.Iterations += iterations
	i.stats.RHSCalls += 1 + iterations*(radauNodes-1)
	if err != nil {
		return h, err
	}
	if !i.solver.Converged() {
		i.stats.Unconverged++
		i.log.Warn("corrector did not converge",
			zap.Float64("t", t), zap.Float64("h", h), zap.Int("iterations", iterations))
	}

	if i.cfg.Tolerance > 0 {
		return i.CalculateStepSize(h, hLast, t), nil
	}
	return h, nil
}

// continueTo re-expands both fields from the step just taken (h) over the
// step that will actually follow (hNext).
func (i *Integrator) continueTo(h, hNext float64) {
	i.solver.B1st.AnalyticalContinuation(h, hNext, i.flags.P)
	i.solver.B.AnalyticalContinuation(h, hNext, i.flags.Q)
	i.hContinued = hNext
}
