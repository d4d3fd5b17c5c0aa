package kepler

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/orbitlab/internal/dynamo"
)

const (
	maxNewtonIterations   = 32
	maxLaguerreIterations = 64
	laguerreOrder         = 5.0
)

// ErrNoConvergence is returned when the universal Kepler equation could not
// be solved to working precision.
var ErrNoConvergence = errors.New("kepler: universal anomaly did not converge")

// PropagationError wraps a solver failure with the offending query.
type PropagationError struct {
	Body    int
	Dt      float64
	Wrapped error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("body %d (dt=%g): %v", e.Body, e.Dt, e.Wrapped)
}

func (e *PropagationError) Unwrap() error {
	return e.Wrapped
}

type anchor struct {
	q0, p0, v0 dynamo.Vec3
	t0         float64
	r0         float64
	sigma0     float64 // q0.v0 / sqrt(mu)
	alpha      float64 // reciprocal semi-major axis
	beta       float64 // 1 - alpha*r0

	lastDt, lastChi float64

	csq, csp dynamo.Vec3
}

// Universal is a universal-variable two-body propagator about a central mass
// of gravitational parameter G*m0. Body 0 is ignored.
type Universal struct {
	mu     float64
	sqrtMu float64
	masses []float64
	orbits []anchor
}

// NewUniversal creates a propagator for the given masses; masses[0] is the
// central body.
func NewUniversal(G float64, masses []float64) *Universal {
	mu := G * masses[0]
	m := make([]float64, len(masses))
	copy(m, masses)
	return &Universal{
		mu:     mu,
		sqrtMu: math.Sqrt(mu),
		masses: m,
		orbits: make([]anchor, len(masses)),
	}
}

// Rebase anchors body's reference orbit at (q, p) at time t and discards any
// retained residual.
func (u *Universal) Rebase(body int, q, p dynamo.Vec3, t float64) {
	v := p.Scale(1 / u.masses[body])
	r0 := q.Norm()
	alpha := 2/r0 - v.Norm2()/u.mu

	u.orbits[body] = anchor{
		q0:     q,
		p0:     p,
		v0:     v,
		t0:     t,
		r0:     r0,
		sigma0: q.Dot(v) / u.sqrtMu,
		alpha:  alpha,
		beta:   1 - alpha*r0,
	}
}

// Propagate returns body's reference position and momentum at time t along
// with the compensated-summation residuals of both. Residuals are additive:
// q + qcs approximates the exact position better than q alone.
func (u *Universal) Propagate(body int, t float64) (q, p, qcs, pcs dynamo.Vec3, err error) {
	a := &u.orbits[body]
	dt := t - a.t0
	if dt == 0 {
		a.csq, a.csp = dynamo.Vec3{}, dynamo.Vec3{}
		return a.q0, a.p0, a.csq, a.csp, nil
	}

	chi, err := u.solve(a, dt)
	if err != nil {
		return q, p, qcs, pcs, &PropagationError{Body: body, Dt: dt, Wrapped: err}
	}
	a.lastDt, a.lastChi = dt, chi

	z := a.alpha * chi * chi
	c2, c3 := stumpff(z)
	chi2c2 := chi * chi * c2
	chi3c3 := chi * chi * chi * c3
	r := a.sigma0*chi*(1-z*c3) + a.beta*chi2c2 + a.r0

	fm1 := -chi2c2 / a.r0
	g := dt - chi3c3/u.sqrtMu
	fdot := -u.sqrtMu * chi * (1 - z*c3) / (r * a.r0)
	gdotm1 := -chi2c2 / r

	dq := a.q0.Scale(fm1).Add(a.v0.Scale(g))
	dp := a.q0.Scale(fdot).Add(a.v0.Scale(gdotm1)).Scale(u.masses[body])

	q, p = a.q0, a.p0
	var carryQ, carryP dynamo.Vec3
	dynamo.AddCompensatedVec(&q, &carryQ, dq)
	dynamo.AddCompensatedVec(&p, &carryP, dp)
	a.csq, a.csp = carryQ.Scale(-1), carryP.Scale(-1)

	return q, p, a.csq, a.csp, nil
}

// Residuals returns the compensated-summation residuals of body's latest
// propagation.
func (u *Universal) Residuals(body int) (q, p dynamo.Vec3) {
	return u.orbits[body].csq, u.orbits[body].csp
}

func (u *Universal) ClearResiduals(body int) {
	u.orbits[body].csq = dynamo.Vec3{}
	u.orbits[body].csp = dynamo.Vec3{}
}

// kepler evaluates the universal Kepler equation and its first two
// derivatives with respect to chi.
func (u *Universal) kepler(a *anchor, chi, dt float64) (f, fp, fpp float64) {
	z := a.alpha * chi * chi
	c2, c3 := stumpff(z)
	f = a.sigma0*chi*chi*c2 + a.beta*chi*chi*chi*c3 + a.r0*chi - u.sqrtMu*dt
	fp = a.sigma0*chi*(1-z*c3) + a.beta*chi*chi*c2 + a.r0
	fpp = a.sigma0*(1-z*c2) + a.beta*chi*(1-z*c3)
	return f, fp, fpp
}

func (u *Universal) initialGuess(a *anchor, dt float64) float64 {
	if a.lastDt != 0 {
		return a.lastChi * dt / a.lastDt
	}
	if a.alpha > 0 {
		return u.sqrtMu * a.alpha * dt
	}
	return u.sqrtMu * dt / a.r0
}

func (u *Universal) solve(a *anchor, dt float64) (float64, error) {
	chi := u.initialGuess(a, dt)

	prev := math.Inf(1)
	for i := 0; i < maxNewtonIterations; i++ {
		f, fp, _ := u.kepler(a, chi, dt)
		delta := f / fp
		chi -= delta
		if math.IsNaN(chi) {
			break
		}
		step := math.Abs(delta)
		if step <= 4*math.Abs(chi)*epsilon {
			return chi, nil
		}
		// Round-off floor: the correction stopped shrinking.
		if step >= prev && step <= stallTolerance*math.Abs(chi) {
			return chi, nil
		}
		prev = step
	}

	// Newton can cycle on very eccentric orbits; Laguerre-Conway is globally
	// convergent for the Kepler equation.
	chi = u.initialGuess(a, dt)
	if math.IsNaN(chi) || math.IsInf(chi, 0) {
		chi = u.sqrtMu * dt / a.r0
	}
	for i := 0; i < maxLaguerreIterations; i++ {
		f, fp, fpp := u.kepler(a, chi, dt)
		n := laguerreOrder
		disc := math.Sqrt(math.Abs((n-1)*(n-1)*fp*fp - n*(n-1)*f*fpp))
		denom := fp + math.Copysign(disc, fp)
		if denom == 0 {
			break
		}
		delta := n * f / denom
		chi -= delta
		if math.Abs(delta) <= stallTolerance*math.Abs(chi) {
			return chi, nil
		}
	}

	return chi, ErrNoConvergence
}

const (
	epsilon        = 0x1p-52
	stallTolerance = 1e-13
)
