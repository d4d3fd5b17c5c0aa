package radau

import (
	"fmt"
	"math"

	"github.com/san-kum/orbitlab/internal/dhem"
	"github.com/san-kum/orbitlab/internal/dynamo"
)

const (
	// MaxIterations bounds the predictor/corrector loop of one step.
	MaxIterations = 12
	// ConvergenceTolerance is the relative change of b6 below which the
	// corrector is considered converged.
	ConvergenceTolerance = 1e-16
	// StallTolerance is the largest relative change of b6 still accepted as
	// converged once further iterations stop reducing it.
	StallTolerance = 1e-8
)

// RHSFunc evaluates the deviation derivatives at one node (dhem.State.RHS).
type RHSFunc func(stage int, dQ, dP, dQdot, dPdot, dQddot []dynamo.Vec3)

// Solver holds the Radau coefficients and compensated-summation residuals
// for one body set. B drives the position deviation, B1st the momentum
// deviation.
type Solver struct {
	n int

	B    Field
	B1st Field
	// Cs holds the additive residuals of the deviation updates.
	Cs dhem.Residuals

	q0, p0, v0 []dynamo.Vec3
	q, p, qdot []dynamo.Vec3
	b6         []dynamo.Vec3

	lastIterations int
	converged      bool
}

// New allocates a solver for n bodies (body 0 included).
func New(n int) *Solver {
	return &Solver{
		n:    n,
		B:    newField(n),
		B1st: newField(n),
		Cs:   dhem.NewResiduals(n),
		q0:   make([]dynamo.Vec3, n),
		p0:   make([]dynamo.Vec3, n),
		v0:   make([]dynamo.Vec3, n),
		q:    make([]dynamo.Vec3, n),
		p:    make([]dynamo.Vec3, n),
		qdot: make([]dynamo.Vec3, n),
		b6:   make([]dynamo.Vec3, n),
	}
}

// CalculateGfromB refreshes the divided differences of both fields.
func (s *Solver) CalculateGfromB() {
	s.B.CalculateGfromB()
	s.B1st.CalculateGfromB()
}

// Step converges the collocation polynomials over a step of size h and
// advances dQ and dP in place to the end of the step. It returns the number
// of predictor/corrector iterations performed. A step whose corrector did
// not settle is still taken; Converged reports it.
func (s *Solver) Step(rhs RHSFunc, dQ, dP []dynamo.Vec3, h float64) (int, error) {
	copy(s.q0, dQ)
	copy(s.p0, dP)
	rhs(0, dQ, dP, s.v0, s.B1st.F[0], s.B.F[0])

	lastErr := math.Inf(1)
	iterations := 0
	converged := false
	for iterations < MaxIterations {
		iterations++
		for i := 1; i < s.n; i++ {
			s.b6[i] = s.B.B[Orders-1][i]
		}

		for node := 1; node < Nodes; node++ {
			s.predict(dhem.StageFractions[node], h)
			rhs(node, s.q, s.p, s.qdot, s.B1st.F[node], s.B.F[node])
			s.B.update(node)
			s.B1st.update(node)
		}

		var db6 float64
		for i := 1; i < s.n; i++ {
			d := s.B.B[Orders-1][i].Sub(s.b6[i])
			for _, c := range d {
				db6 = math.Max(db6, math.Abs(c))
			}
		}
		maxF := s.B.maxF()
		if maxF == 0 {
			converged = true
			break
		}
		errRel := db6 / maxF
		if math.IsNaN(errRel) {
			s.lastIterations, s.converged = iterations, false
			return iterations, fmt.Errorf("%w: corrector produced NaN", dynamo.ErrUnstable)
		}
		if errRel < ConvergenceTolerance {
			converged = true
			break
		}
		// Stop once the corrector only churns rounding noise.
		if iterations > 2 && errRel >= lastErr {
			converged = errRel < StallTolerance
			break
		}
		lastErr = errRel
	}
	s.lastIterations, s.converged = iterations, converged

	s.advance(dQ, dP, h)
	for i := 1; i < s.n; i++ {
		if !dQ[i].IsValid() || !dP[i].IsValid() {
			return iterations, fmt.Errorf("%w: body %d deviation", dynamo.ErrUnstable, i)
		}
	}
	return iterations, nil
}

// predict evaluates both polynomials at normalised time x.
func (s *Solver) predict(x, h float64) {
	bq, bp := &s.B.B, &s.B1st.B
	fq0, fp0 := s.B.F[0], s.B1st.F[0]
	for i := 1; i < s.n; i++ {
		for c := 0; c < 3; c++ {
			aq := bq[6][i][c] / 72
			ap := bp[6][i][c] / 8
			for k := Orders - 2; k >= 0; k-- {
				aq = aq*x + bq[k][i][c]/float64((k+2)*(k+3))
				ap = ap*x + bp[k][i][c]/float64(k+2)
			}
			aq = aq*x + fq0[i][c]/2
			ap = ap*x + fp0[i][c]

			s.q[i][c] = s.q0[i][c] + x*h*s.v0[i][c] + x*x*h*h*aq
			s.p[i][c] = s.p0[i][c] + x*h*ap
		}
	}
}

// advance adds the full-step increments to dQ and dP with compensated
// summation into Cs.
func (s *Solver) advance(dQ, dP []dynamo.Vec3, h float64) {
	bq, bp := &s.B.B, &s.B1st.B
	fq0, fp0 := s.B.F[0], s.B1st.F[0]
	for i := 1; i < s.n; i++ {
		var incQ, incP dynamo.Vec3
		for c := 0; c < 3; c++ {
			aq := fq0[i][c] / 2
			ap := fp0[i][c]
			for k := 0; k < Orders; k++ {
				aq += bq[k][i][c] / float64((k+2)*(k+3))
				ap += bp[k][i][c] / float64(k+2)
			}
			incQ[c] = h*s.v0[i][c] + h*h*aq
			incP[c] = h * ap
		}

		carry := s.Cs.Q[i].Scale(-1)
		dQ[i] = s.q0[i]
		dynamo.AddCompensatedVec(&dQ[i], &carry, incQ)
		s.Cs.Q[i] = carry.Scale(-1)

		carry = s.Cs.P[i].Scale(-1)
		dP[i] = s.p0[i]
		dynamo.AddCompensatedVec(&dP[i], &carry, incP)
		s.Cs.P[i] = carry.Scale(-1)
	}
}

// StepError is the largest per-body ratio max|b6_i| / scale[i] of the
// position field, where scale[i] is the size of body i's full acceleration.
// The deviation alone is no scale: its derivative may be as small as the
// rounding noise in b6. Bodies with a zero scale are skipped; with none left
// the result is NaN.
func (s *Solver) StepError(scale []float64) float64 {
	errMax := math.NaN()
	for i := 1; i < s.n && i < len(scale); i++ {
		if !(scale[i] > 0) {
			continue
		}
		var b6 float64
		for _, c := range s.B.B[Orders-1][i] {
			b6 = math.Max(b6, math.Abs(c))
		}
		if e := b6 / scale[i]; math.IsNaN(errMax) || e > errMax {
			errMax = e
		}
	}
	return errMax
}

// LastIterations returns the iteration count of the latest Step.
func (s *Solver) LastIterations() int { return s.lastIterations }

// Converged reports whether the corrector of the latest Step settled.
func (s *Solver) Converged() bool { return s.converged }

// ClearResiduals zeroes the compensated-summation residuals.
func (s *Solver) ClearResiduals() {
	clear(s.Cs.Q)
	clear(s.Cs.P)
}
