package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/orbitlab/internal/dynamo"
	"github.com/san-kum/orbitlab/internal/physics"
	"github.com/san-kum/orbitlab/internal/tes"
)

// maxRejections bounds the step retries of an adaptive baseline step.
const maxRejections = 16

type tesStepper struct {
	*tes.Integrator
}

// FromTES adapts an Encke integrator to the Stepper interface.
func FromTES(integ *tes.Integrator) Stepper {
	return tesStepper{integ}
}

func (s tesStepper) Counters() Counters {
	st := s.Stats()
	return Counters{Steps: st.Steps, Rectifications: st.Rectifications}
}

// Baseline advances an absolute-coordinate physics.NBody with a
// conventional integrator. Adaptive integrators are used when tol > 0.
type Baseline struct {
	sys   *physics.NBody
	integ dynamo.Integrator
	x     dynamo.State
	t, dt float64
	carry float64
	tol   float64
	steps int
}

func NewBaseline(integ dynamo.Integrator, G float64, bodies []dynamo.Body, q, v []dynamo.Vec3, dt, tol float64) (*Baseline, error) {
	if len(q) != len(bodies) || len(v) != len(bodies) {
		return nil, dynamo.ErrDimensionMismatch
	}
	if !(dt > 0) {
		return nil, fmt.Errorf("%w: dt must be positive, got %v", dynamo.ErrParameterBounds, dt)
	}
	masses := make([]float64, len(bodies))
	for i, b := range bodies {
		masses[i] = b.Mass
	}
	sys := physics.NewNBody(G, masses)
	return &Baseline{
		sys:   sys,
		integ: integ,
		x:     sys.Pack(q, v),
		dt:    dt,
		tol:   tol,
	}, nil
}

func (b *Baseline) Integrate(ctx context.Context, tEnd float64) error {
	adaptive, isAdaptive := b.integ.(dynamo.AdaptiveIntegrator)
	isAdaptive = isAdaptive && b.tol > 0

	for tEnd-b.Time() > math.Abs(tEnd)*1e-15 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		h := math.Min(b.dt, tEnd-b.Time())
		// A step shortened to hit tEnd must not shrink the nominal step.
		truncated := h < b.dt

		if !isAdaptive {
			b.x = b.integ.Step(b.sys, b.x, b.t, h)
		} else {
			var (
				next  dynamo.State
				hNext float64
				err   error
			)
			for try := 0; ; try++ {
				next, hNext, err = adaptive.StepAdaptive(b.sys, b.x, b.t, h, b.tol)
				if err != nil {
					return &dynamo.SimulationError{Step: b.steps, Time: b.t, Wrapped: err}
				}
				if hNext >= 0.9*h || try == maxRejections {
					break
				}
				h = hNext
			}
			b.x = next
			if !truncated || hNext < b.dt {
				b.dt = hNext
			}
		}

		if !b.x.IsValid() {
			return &dynamo.SimulationError{Step: b.steps, Time: b.t, Wrapped: dynamo.ErrUnstable}
		}
		dynamo.AddCompensated(&b.t, &b.carry, h)
		b.steps++
	}
	return nil
}

func (b *Baseline) Time() float64 { return b.t - b.carry }

func (b *Baseline) Inertial() (q, v []dynamo.Vec3) { return b.sys.Unpack(b.x) }

func (b *Baseline) Hamiltonian() float64 { return b.sys.Energy(b.x) }

func (b *Baseline) Counters() Counters { return Counters{Steps: b.steps} }
