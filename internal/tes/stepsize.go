package tes

import (
	"math"

	"github.com/san-kum/orbitlab/internal/radau"
)

const (
	// MinStepSize is the floor of the adaptive step.
	MinStepSize = 1e-5
	// MaxStepGrowth bounds the ratio of consecutive step sizes.
	MaxStepGrowth = 4.0
	// MaxStepsAtFloor is the number of consecutive steps the controller may
	// hold the step at MinStepSize before Integrate gives up.
	MaxStepsAtFloor = 1000
	// fallbackGrowth applies when the error estimate is zero or not a
	// normal float.
	fallbackGrowth = 1.1

	radauNodes = radau.Nodes
)

// CalculateStepSize proposes the next step size from the corrector's error
// estimate. hLast and t do not influence the result.
func (i *Integrator) CalculateStepSize(h, hLast, t float64) float64 {
	i.accelerationScale()
	return NextStepSize(h, i.solver.StepError(i.scale), i.cfg.Tolerance)
}

// accelerationScale stores in i.scale the largest component of every body's
// full heliocentric acceleration, reference orbit plus deviation, over the
// nodes of the step just taken.
func (i *Integrator) accelerationScale() {
	for k := 1; k < len(i.scale); k++ {
		var m float64
		for node := 0; node < radauNodes; node++ {
			a := i.state.Stage(node).Pdot[k].Scale(1 / i.masses[k]).Add(i.solver.B.F[node][k])
			for _, c := range a {
				m = math.Max(m, math.Abs(c))
			}
		}
		i.scale[k] = m
	}
}

// NextStepSize is h (tol/err)^(1/7), or 1.1 h for a degenerate err, clamped
// to at least MinStepSize and then to at most MaxStepGrowth h.
func NextStepSize(h, err, tol float64) float64 {
	hTrial := fallbackGrowth * h
	if isNormal(err) && err > 0 {
		hTrial = h * math.Pow(tol/err, 1.0/7.0)
	}
	if hTrial < MinStepSize {
		hTrial = MinStepSize
	}
	if hTrial > MaxStepGrowth*h {
		hTrial = MaxStepGrowth * h
	}
	return hTrial
}

func isNormal(x float64) bool {
	x = math.Abs(x)
	return x >= 0x1p-1022 && !math.IsInf(x, 0)
}
