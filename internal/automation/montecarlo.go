package automation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/multierr"

	"github.com/san-kum/orbitlab/internal/config"
	"github.com/san-kum/orbitlab/internal/metrics"
	"github.com/san-kum/orbitlab/internal/sim"
)

// MonteCarloConfig perturbs every non-central body of Base uniformly within
// +-PositionPerturbation and +-VelocityPerturbation per component.
type MonteCarloConfig struct {
	Base                 *config.Config
	PositionPerturbation float64
	VelocityPerturbation float64
	NumTrials            int
	Seed                 int64
	EscapeRadius         float64
}

// MonteCarloResult holds one trial.
type MonteCarloResult struct {
	TrialID     int
	Config      *config.Config
	EnergyDrift float64
	// Stable is false when some body left EscapeRadius or the run failed.
	Stable bool
	Err    error
}

// Trials draws the perturbed configurations. The same seed gives the same
// trials.
func (c *MonteCarloConfig) Trials() []*config.Config {
	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	trials := make([]*config.Config, c.NumTrials)
	for t := range trials {
		cfg := c.Base.Clone()
		cfg.Name = fmt.Sprintf("%s#%d", c.Base.Name, t)
		for i := 1; i < len(cfg.Bodies); i++ {
			for k := 0; k < 3; k++ {
				cfg.Bodies[i].Position[k] += (rng.Float64()*2 - 1) * c.PositionPerturbation
				cfg.Bodies[i].Velocity[k] += (rng.Float64()*2 - 1) * c.VelocityPerturbation
			}
		}
		trials[t] = cfg
	}
	return trials
}

// RunMonteCarlo runs every trial in the ensemble. Failed trials count as
// unstable; their errors are combined in the returned error.
func RunMonteCarlo(ctx context.Context, mc *MonteCarloConfig, ens *sim.Ensemble) ([]MonteCarloResult, error) {
	if mc.Base == nil || mc.NumTrials <= 0 {
		return nil, fmt.Errorf("monte carlo needs a base system and at least one trial")
	}
	radius := mc.EscapeRadius
	if radius <= 0 {
		radius = 100
	}

	trials := mc.Trials()
	jobs := make([]sim.Job, len(trials))
	for t, cfg := range trials {
		jobs[t] = sim.Job{
			Name:    cfg.Name,
			Build:   func() (sim.Stepper, error) { return cfg.NewStepper(nil) },
			Config:  sim.Config{Duration: cfg.Duration, OutputInterval: cfg.OutputInterval},
			Metrics: func() []sim.Metric { return []sim.Metric{metrics.NewEscape(radius)} },
		}
	}

	results, runErr := ens.Run(ctx, jobs)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	failed := make(map[int]error)
	for _, err := range multierr.Errors(runErr) {
		var jerr *sim.JobError
		if errors.As(err, &jerr) {
			failed[jerr.Index] = jerr
		}
	}

	out := make([]MonteCarloResult, len(trials))
	for t, r := range results {
		out[t] = MonteCarloResult{TrialID: t, Config: trials[t], Err: failed[t]}
		if r != nil {
			out[t].EnergyDrift = r.EnergyDrift
			out[t].Stable = out[t].Err == nil && r.Metrics["escape"] == 0
		}
	}
	return out, runErr
}

// MonteCarloStats counts stable and unstable trials.
func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
