package config

import (
	"go.uber.org/zap"

	"github.com/san-kum/orbitlab/internal/integrators"
	"github.com/san-kum/orbitlab/internal/sim"
	"github.com/san-kum/orbitlab/internal/tes"
)

// NewStepper builds the configured integrator at the initial conditions.
// Baseline integrators step in absolute coordinates with InitialStep.
func (c *Config) NewStepper(log *zap.Logger) (sim.Stepper, error) {
	if log == nil {
		log = zap.NewNop()
	}
	bodies, q, v := c.System()

	if c.Integrator == "" || c.Integrator == "tes" {
		cfg, err := c.TES()
		if err != nil {
			return nil, err
		}
		integ, err := tes.New(cfg, bodies, q, v, tes.WithLogger(log))
		if err != nil {
			return nil, err
		}
		return sim.FromTES(integ), nil
	}

	integ, err := integrators.New(c.Integrator)
	if err != nil {
		return nil, err
	}
	return sim.NewBaseline(integ, c.G, bodies, q, v, c.InitialStep, c.Tolerance)
}
