package tes

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/orbitlab/internal/dhem"
	"github.com/san-kum/orbitlab/internal/dynamo"
	"github.com/san-kum/orbitlab/internal/kepler"
	"github.com/san-kum/orbitlab/internal/radau"
)

// Stats counts the work done by an Integrator.
type Stats struct {
	Steps          int `json:"steps"`
	Rectifications int `json:"rectifications"`
	Iterations     int `json:"iterations"`
	RHSCalls       int `json:"rhs_calls"`
	// Unconverged counts steps taken although the corrector did not settle.
	Unconverged int     `json:"unconverged"`
	LastStep    float64 `json:"last_step"`
}

// Option configures an Integrator.
type Option func(*Integrator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(i *Integrator) {
		if log != nil {
			i.log = log
		}
	}
}

// WithRectifyPolicy overrides Config.Policy.
func WithRectifyPolicy(p dhem.RectifyPolicy) Option {
	return func(i *Integrator) { i.cfg.Policy = p }
}

// WithPropagator replaces the universal-variable Kepler propagator.
func WithPropagator(p dhem.Propagator) Option {
	return func(i *Integrator) { i.prop = p }
}

// Integrator advances one body set in democratic-heliocentric coordinates.
// It is not safe for concurrent use; independent instances are.
type Integrator struct {
	cfg    Config
	bodies []dynamo.Body
	masses []float64
	frame  dhem.Frame

	prop   dhem.Propagator
	state  *dhem.State
	solver *radau.Solver
	log    *zap.Logger

	t, tCarry float64
	h, hLast  float64
	// hContinued is the step the collocation polynomials are scaled for.
	hContinued float64
	atFloor    int
	scale      []float64

	Q, P   []dynamo.Vec3
	dQ, dP []dynamo.Vec3
	flags  dhem.RectifiedFlags

	stats Stats
}

// New validates the system once, converts the inertial positions q and
// velocities v to democratic-heliocentric coordinates and anchors the
// reference orbits at cfg.T0. bodies[0] is the central mass.
func New(cfg Config, bodies []dynamo.Body, q, v []dynamo.Vec3, opts ...Option) (*Integrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	n := len(bodies)
	if len(q) != n || len(v) != n {
		return nil, fmt.Errorf("%w: %d bodies, %d positions, %d velocities",
			dynamo.ErrDimensionMismatch, n, len(q), len(v))
	}
	for i := range q {
		if !q[i].IsValid() || !v[i].IsValid() {
			return nil, fmt.Errorf("%w: body %d", dynamo.ErrInvalidState, i)
		}
	}

	i := &Integrator{
		cfg:    cfg,
		bodies: append([]dynamo.Body(nil), bodies...),
		masses: make([]float64, n),
		log:    zap.NewNop(),
		h:      cfg.InitialStep,
	}
	for k, b := range bodies {
		i.masses[k] = b.Mass
	}
	for _, opt := range opts {
		opt(i)
	}

	period := i.cfg.RectificationPeriod
	if period == 0 {
		period = i.cfg.FallbackPeriod
	}
	if i.prop == nil && n > 0 {
		i.prop = kepler.NewUniversal(i.cfg.G, i.masses)
	}

	state, err := dhem.New(dhem.Config{
		G:                   i.cfg.G,
		DQMax:               i.cfg.DQMax,
		RectificationPeriod: period,
		Policy:              i.cfg.Policy,
	}, i.masses, i.prop, i.cfg.T0)
	if err != nil {
		return nil, err
	}
	i.state = state

	i.Q, i.P, i.frame = dhem.ToDemocraticHeliocentric(i.masses, q, v, i.cfg.T0)
	for k := 1; k < n; k++ {
		if i.Q[k].Norm2() == 0 {
			return nil, fmt.Errorf("%w: body %d coincides with the central body", dynamo.ErrInvalidState, k)
		}
	}
	if i.cfg.RectificationPeriod == 0 {
		for k := 1; k < n; k++ {
			if T := osculatingPeriod(i.cfg.G, i.masses[0], i.masses[k], i.Q[k], i.P[k]); T > 0 {
				state.SetRectificationPeriod(k, T/i.cfg.RectificationsPerOrbit)
			}
		}
	}

	if err := state.InitialiseOsculatingOrbits(i.Q, i.P, i.cfg.T0); err != nil {
		return nil, err
	}

	i.dQ = make([]dynamo.Vec3, n)
	i.dP = make([]dynamo.Vec3, n)
	i.flags = dhem.NewRectifiedFlags(n)
	i.solver = radau.New(n)
	i.scale = make([]float64, n)
	i.t = i.cfg.T0
	i.hContinued = i.h

	return i, nil
}

// Integrate advances the system to tEnd. The last step is shortened to land
// on tEnd exactly; the nominal step carries over to the next call.
func (i *Integrator) Integrate(ctx context.Context, tEnd float64) error {
	if tEnd < i.Time() {
		return fmt.Errorf("%w: tEnd %v precedes current time %v", dynamo.ErrParameterBounds, tEnd, i.Time())
	}
	startSteps, startRect := i.stats.Steps, i.stats.Rectifications

	for {
		remaining := tEnd - i.Time()
		if remaining <= math.Abs(tEnd)*1e-15 {
			break
		}
		select {
		case <-ctx.Done():
			i.sync()
			return ctx.Err()
		default:
		}

		h := i.h
		truncated := h > remaining
		if truncated {
			h = remaining
		}

		hNew, err := i.converge(i.Time(), h, i.hLast)
		if err != nil {
			return &dynamo.SimulationError{Step: i.stats.Steps, Time: i.Time(), Wrapped: err}
		}
		if truncated {
			// the nominal step carries over to the next call
			hNew = i.h
		}
		i.continueTo(h, hNew)
		if err := i.accept(h, hNew); err != nil {
			i.sync()
			return err
		}
	}

	i.sync()
	i.log.Info("integration complete",
		zap.Float64("t", i.Time()),
		zap.Int("steps", i.stats.Steps-startSteps),
		zap.Int("rectifications", i.stats.Rectifications-startRect),
		zap.Float64("h", i.h),
	)
	return nil
}

// Step advances the system by one adaptive step and returns the new time.
func (i *Integrator) Step() (float64, error) {
	h := i.h
	hNew, err := i.SingleStep(i.Time(), h, i.hLast)
	if err != nil {
		return i.Time(), &dynamo.SimulationError{Step: i.stats.Steps, Time: i.Time(), Wrapped: err}
	}
	err = i.accept(h, hNew)
	i.sync()
	return i.Time(), err
}

// accept advances the clock past a step of size h and adopts hNext as the
// nominal step. It fails with ErrStepTooSmall once the controller has held
// the step at MinStepSize for MaxStepsAtFloor consecutive steps.
func (i *Integrator) accept(h, hNext float64) error {
	dynamo.AddCompensated(&i.t, &i.tCarry, h)
	i.hLast, i.h = h, hNext
	i.stats.Steps++
	i.stats.LastStep = h

	if i.cfg.Tolerance > 0 && h <= MinStepSize && hNext <= MinStepSize {
		i.atFloor++
	} else {
		i.atFloor = 0
	}
	if i.atFloor >= MaxStepsAtFloor {
		return &dynamo.SimulationError{
			Step:    i.stats.Steps,
			Time:    i.Time(),
			Wrapped: fmt.Errorf("%w: %d steps at %g", dynamo.ErrStepTooSmall, i.atFloor, MinStepSize),
		}
	}
	return nil
}

// sync rebuilds the absolute coordinates at the end of the latest step.
func (i *Integrator) sync() {
	i.state.PerformSummation(i.Q, i.P, i.dQ, i.dP, i.solver.Cs, dhem.FinalStage)
}

// Time returns the current integration time.
func (i *Integrator) Time() float64 { return i.t - i.tCarry }

// NextStep returns the step size the next SingleStep will use.
func (i *Integrator) NextStep() float64 { return i.h }

func (i *Integrator) Bodies() []dynamo.Body { return i.bodies }

func (i *Integrator) Stats() Stats { return i.stats }

// State returns copies of the democratic-heliocentric positions and momenta.
func (i *Integrator) State() (Q, P []dynamo.Vec3) {
	return append([]dynamo.Vec3(nil), i.Q...), append([]dynamo.Vec3(nil), i.P...)
}

// Inertial returns barycentric-frame positions and velocities.
func (i *Integrator) Inertial() (q, v []dynamo.Vec3) {
	return dhem.FromDemocraticHeliocentric(i.masses, i.Q, i.P, i.frame, i.Time())
}

// Hamiltonian returns the total energy at the current time.
func (i *Integrator) Hamiltonian() float64 {
	return i.state.Hamiltonian(i.Q, i.P)
}
