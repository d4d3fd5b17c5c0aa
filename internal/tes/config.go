package tes

import (
	"fmt"
	"math"

	"github.com/san-kum/orbitlab/internal/dhem"
	"github.com/san-kum/orbitlab/internal/dynamo"
)

// DefaultRectificationsPerOrbit sets the default rectification period of a
// bound body to its osculating period divided by the golden ratio.
const DefaultRectificationsPerOrbit = 1.61803398875

// Config parameterises an Integrator.
type Config struct {
	G float64
	// Tolerance is the local error target of the step-size controller.
	// Zero selects fixed steps of InitialStep.
	Tolerance   float64
	InitialStep float64
	DQMax       float64
	// RectificationPeriod applies to every body when positive. Otherwise
	// each bound body gets its osculating period divided by
	// RectificationsPerOrbit, and unbound bodies get FallbackPeriod.
	RectificationPeriod    float64
	RectificationsPerOrbit float64
	FallbackPeriod         float64
	Policy                 dhem.RectifyPolicy
	T0                     float64
}

func DefaultConfig() Config {
	return Config{
		G:                      1,
		Tolerance:              1e-12,
		InitialStep:            0.01,
		DQMax:                  1e-3,
		RectificationsPerOrbit: DefaultRectificationsPerOrbit,
		FallbackPeriod:         1,
		Policy:                 dhem.RectifyGlobal,
	}
}

func (c Config) validate() error {
	switch {
	case !(c.G > 0) || math.IsInf(c.G, 0):
		return fmt.Errorf("%w: G must be positive, got %v", dynamo.ErrParameterBounds, c.G)
	case !(c.Tolerance >= 0) || math.IsInf(c.Tolerance, 0):
		return fmt.Errorf("%w: tolerance must be non-negative, got %v", dynamo.ErrParameterBounds, c.Tolerance)
	case !(c.InitialStep > 0) || math.IsInf(c.InitialStep, 0):
		return fmt.Errorf("%w: initial step must be positive, got %v", dynamo.ErrParameterBounds, c.InitialStep)
	case !(c.DQMax > 0):
		return fmt.Errorf("%w: dq_max must be positive, got %v", dynamo.ErrParameterBounds, c.DQMax)
	case c.RectificationPeriod < 0:
		return fmt.Errorf("%w: rectification period must not be negative", dynamo.ErrParameterBounds)
	case c.RectificationPeriod == 0 && !(c.RectificationsPerOrbit > 0 && c.FallbackPeriod > 0):
		return fmt.Errorf("%w: need a rectification period or rectifications per orbit with a fallback period", dynamo.ErrParameterBounds)
	}
	return nil
}

// osculatingPeriod is the Kepler period of (Q, P) about the central body, or
// 0 for unbound orbits.
func osculatingPeriod(G, m0, m float64, Q, P dynamo.Vec3) float64 {
	mu := G * m0
	v := P.Scale(1 / m)
	alpha := 2/Q.Norm() - v.Norm2()/mu
	if !(alpha > 0) {
		return 0
	}
	a := 1 / alpha
	return 2 * math.Pi * math.Sqrt(a*a*a/mu)
}
