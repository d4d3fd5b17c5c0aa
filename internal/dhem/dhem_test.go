package dhem

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/orbitlab/internal/dynamo"
	"github.com/san-kum/orbitlab/internal/kepler"
)

func threeBody() (m []float64, Q, P []dynamo.Vec3) {
	m = []float64{1.0, 1e-3, 3e-4}
	Q = []dynamo.Vec3{{}, {1, 0, 0}, {0, 1.6, 0.02}}
	P = []dynamo.Vec3{{}, {0, 1e-3, 0}, {-3e-4 / math.Sqrt(1.6), 0, 1e-6}}
	return m, Q, P
}

func newTestState(t *testing.T, cfg Config) (*State, []dynamo.Vec3, []dynamo.Vec3) {
	t.Helper()
	m, Q, P := threeBody()
	if cfg.G == 0 {
		cfg.G = 1
	}
	if cfg.DQMax == 0 {
		cfg.DQMax = 1e-3
	}
	if cfg.RectificationPeriod == 0 {
		cfg.RectificationPeriod = 10
	}
	s, err := New(cfg, m, kepler.NewUniversal(cfg.G, m), 0)
	require.NoError(t, err)
	require.NoError(t, s.InitialiseOsculatingOrbits(Q, P, 0))
	return s, Q, P
}

// fullDerivatives evaluates the absolute democratic-heliocentric equations.
func fullDerivatives(G float64, m []float64, Q, P []dynamo.Vec3) (Qdot, Pdot []dynamo.Vec3) {
	n := len(m)
	Qdot = make([]dynamo.Vec3, n)
	Pdot = make([]dynamo.Vec3, n)

	var pSum dynamo.Vec3
	for i := 1; i < n; i++ {
		pSum = pSum.Add(P[i])
	}
	for i := 1; i < n; i++ {
		Qdot[i] = P[i].Scale(1 / m[i]).Add(pSum.Scale(1 / m[0]))
		r := Q[i].Norm()
		Pdot[i] = Q[i].Scale(-G * m[0] * m[i] / (r * r * r))
		for j := 1; j < n; j++ {
			if j == i {
				continue
			}
			sep := Q[j].Sub(Q[i])
			d := sep.Norm()
			Pdot[i] = Pdot[i].Add(sep.Scale(G * m[i] * m[j] / (d * d * d)))
		}
	}
	return Qdot, Pdot
}

func TestNew_Validation(t *testing.T) {
	cfg := Config{G: 1, DQMax: 1e-3, RectificationPeriod: 1}
	prop := kepler.NewUniversal(1, []float64{1, 1})

	tests := []struct {
		name   string
		cfg    Config
		masses []float64
		want   error
	}{
		{"single body", cfg, []float64{1}, dynamo.ErrTooFewBodies},
		{"zero mass", cfg, []float64{1, 0}, dynamo.ErrNonPositiveMass},
		{"negative mass", cfg, []float64{-1, 1}, dynamo.ErrNonPositiveMass},
		{"nan mass", cfg, []float64{1, math.NaN()}, dynamo.ErrNonPositiveMass},
		{"zero dq max", Config{G: 1, RectificationPeriod: 1}, []float64{1, 1}, dynamo.ErrParameterBounds},
		{"zero period", Config{G: 1, DQMax: 1}, []float64{1, 1}, dynamo.ErrParameterBounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.masses, prop, 0)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStabilisedFactor(t *testing.T) {
	for _, q := range []float64{-0.3, -1e-3, 1e-3, 0.5, 2} {
		want := 1 - math.Pow(1+q, 1.5)
		assert.InDelta(t, want, stabilisedFactor(q), 1e-14*math.Abs(want)+1e-300, "q=%v", q)
	}

	// Leading order f(q) = -3q/2 where the direct form would cancel to zero.
	q := 1e-20
	assert.InDelta(t, -1.5*q, stabilisedFactor(q), 1e-12*1.5*q)
	assert.Equal(t, 0.0, stabilisedFactor(0))
}

func TestCentralPerturbation(t *testing.T) {
	s, _, _ := newTestState(t, Config{})
	qosc := dynamo.Vec3{0.8, -0.6, 0.05}
	dq := dynamo.Vec3{2e-4, 1e-4, -3e-5}
	q := qosc.Add(dq)
	m := 1e-3

	got := s.centralPerturbation(qosc, q, dq, m)

	k := s.g * s.m[0] * m
	rq, ro := q.Norm(), qosc.Norm()
	want := q.Scale(-k / (rq * rq * rq)).Sub(qosc.Scale(-k / (ro * ro * ro)))
	for c := 0; c < 3; c++ {
		assert.InDelta(t, want[c], got[c], 1e-10*math.Abs(want[c])+1e-14)
	}

	assert.Equal(t, dynamo.Vec3{}, s.centralPerturbation(qosc, qosc, dynamo.Vec3{}, m))
}

func TestPairForce_Antisymmetric(t *testing.T) {
	qi := dynamo.Vec3{0.31, -1.2, 0.004}
	qj := dynamo.Vec3{-0.77, 0.5, 0.1}
	f := pairForce(3e-7, qi, qj)
	g := pairForce(3e-7, qj, qi)
	assert.Equal(t, f, g.Scale(-1))
}

func TestRHS_MutualTermsCancelExactly(t *testing.T) {
	s, _, _ := newTestState(t, Config{})
	n := s.N()
	dQ := make([]dynamo.Vec3, n)
	dP := make([]dynamo.Vec3, n)
	dQdot := make([]dynamo.Vec3, n)
	dPdot := make([]dynamo.Vec3, n)
	dQddot := make([]dynamo.Vec3, n)

	s.RHS(0, dQ, dP, dQdot, dPdot, dQddot)

	// With zero deviation the central term vanishes, leaving only the pair.
	assert.Equal(t, dPdot[1], dPdot[2].Scale(-1))
	assert.NotEqual(t, dynamo.Vec3{}, dPdot[1])
}

func TestRHS_MatchesAbsoluteEquations(t *testing.T) {
	s, _, _ := newTestState(t, Config{})
	require.NoError(t, s.CalcOscOrbitsForAllStages(0, 0.5, true))

	n := s.N()
	dQ := []dynamo.Vec3{{}, {1e-4, -2e-4, 3e-6}, {-5e-5, 1e-4, 0}}
	dP := []dynamo.Vec3{{}, {1e-8, 2e-8, 0}, {0, -3e-9, 1e-9}}
	dQdot := make([]dynamo.Vec3, n)
	dPdot := make([]dynamo.Vec3, n)
	dQddot := make([]dynamo.Vec3, n)

	const stage = 4
	s.RHS(stage, dQ, dP, dQdot, dPdot, dQddot)

	osc := s.Stage(stage)
	Q := make([]dynamo.Vec3, n)
	P := make([]dynamo.Vec3, n)
	for i := 1; i < n; i++ {
		Q[i] = osc.Q[i].Add(dQ[i])
		P[i] = osc.P[i].Add(dP[i])
	}
	Qdot, Pdot := fullDerivatives(s.G(), s.Masses(), Q, P)

	var pdotSum dynamo.Vec3
	for i := 1; i < n; i++ {
		pdotSum = pdotSum.Add(Pdot[i])
	}

	for i := 1; i < n; i++ {
		wantQdot := Qdot[i].Sub(osc.Qdot[i])
		wantPdot := Pdot[i].Sub(osc.Pdot[i])
		wantQddot := Pdot[i].Sub(osc.Pdot[i]).Scale(1 / s.m[i]).Add(pdotSum.Scale(1 / s.m[0]))
		for c := 0; c < 3; c++ {
			assert.InDelta(t, wantQdot[c], dQdot[i][c], 1e-12, "dQdot[%d][%d]", i, c)
			assert.InDelta(t, wantPdot[c], dPdot[i][c], 1e-12*math.Abs(osc.Pdot[i][c])+1e-16, "dPdot[%d][%d]", i, c)
			assert.InDelta(t, wantQddot[c], dQddot[i][c], 1e-9, "dQddot[%d][%d]", i, c)
		}
	}
}

func TestCalcOscOrbits_SelectsSnapshotSet(t *testing.T) {
	s, _, _ := newTestState(t, Config{})

	require.NoError(t, s.CalcOscOrbitsForAllStages(0, 0.2, false))
	assert.True(t, s.UsingPrediction())

	require.NoError(t, s.CalcOscOrbitsForAllStages(0, 0.2, true))
	assert.False(t, s.UsingPrediction())

	for k := 0; k < StagesPerStep; k++ {
		o := s.Stage(k)
		for i := 1; i < s.N(); i++ {
			assert.Equal(t, o.P[i].Scale(s.mInv[i]), o.Qdot[i])
			r := o.Q[i].Norm()
			want := o.Q[i].Scale(-s.m[0] * s.m[i] / (r * r * r))
			for c := 0; c < 3; c++ {
				assert.InDelta(t, want[c], o.Pdot[i][c], 1e-15)
			}
		}
	}
}

func TestRectifyOrbits_NoTrigger(t *testing.T) {
	s, Q, P := newTestState(t, Config{})
	n := s.N()
	dQ := make([]dynamo.Vec3, n)
	dP := make([]dynamo.Vec3, n)
	dQ[1] = dynamo.Vec3{1e-6, 0, 0}
	solver := NewResiduals(n)
	flags := NewRectifiedFlags(n)

	count := s.RectifyOrbits(1.0, Q, P, dQ, dP, solver, flags, FinalStage)

	assert.Zero(t, count)
	assert.False(t, flags.Any())
	assert.Equal(t, dynamo.Vec3{1e-6, 0, 0}, dQ[1])
	assert.Equal(t, 10.0, s.RectifyTime(1))
}

func TestRectifyOrbits_Idempotent(t *testing.T) {
	s, _, _ := newTestState(t, Config{RectificationPeriod: 0.05})
	n := s.N()
	const h = 0.1
	require.NoError(t, s.CalcOscOrbitsForAllStages(0, h, false))

	dQ := []dynamo.Vec3{{}, {3.3e-7, -1.1e-7, 2e-9}, {-4.4e-7, 7e-8, 1e-10}}
	dP := []dynamo.Vec3{{}, {1.3e-10, 2.2e-11, 0}, {-9e-12, 5e-11, 3e-13}}
	solver := NewResiduals(n)
	solver.Q[1] = dynamo.Vec3{1e-18, -2e-18, 0}
	solver.P[2] = dynamo.Vec3{0, 3e-21, 0}
	flags := NewRectifiedFlags(n)

	before := make([]dynamo.Vec3, n)
	beforeP := make([]dynamo.Vec3, n)
	s.PerformSummation(before, beforeP, dQ, dP, solver, FinalStage)

	Q := make([]dynamo.Vec3, n)
	P := make([]dynamo.Vec3, n)
	count := s.RectifyOrbits(h, Q, P, dQ, dP, solver, flags, FinalStage)
	require.Equal(t, n-1, count)

	require.NoError(t, s.CalcOscOrbitsForAllStages(h, h, true))

	after := make([]dynamo.Vec3, n)
	afterP := make([]dynamo.Vec3, n)
	s.PerformSummation(after, afterP, dQ, dP, solver, 0)

	for i := 1; i < n; i++ {
		assert.True(t, flags.Q[i] && flags.P[i], "body %d not flagged", i)
		assert.Equal(t, dynamo.Vec3{}, solver.Q[i])
		assert.Equal(t, dynamo.Vec3{}, solver.P[i])
		assert.InDelta(t, h+0.05, s.RectifyTime(i), 1e-15)

		for c := 0; c < 3; c++ {
			assert.InDelta(t, before[i][c], after[i][c], 2*ulp(before[i][c]), "Q[%d][%d]", i, c)
			assert.InDelta(t, beforeP[i][c], afterP[i][c], 2*ulp(beforeP[i][c]), "P[%d][%d]", i, c)
			assert.LessOrEqual(t, math.Abs(dQ[i][c]), ulp(Q[i][c]))
		}
	}
}

func TestRectifyOrbits_Policies(t *testing.T) {
	tests := []struct {
		policy RectifyPolicy
		want   int
	}{
		{RectifyGlobal, 2},
		{RectifyPerBody, 1},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			s, Q, P := newTestState(t, Config{Policy: tt.policy})
			n := s.N()
			dQ := make([]dynamo.Vec3, n)
			dP := make([]dynamo.Vec3, n)
			dQ[2] = dynamo.Vec3{0.01, 0, 0}
			flags := NewRectifiedFlags(n)

			count := s.RectifyOrbits(0, Q, P, dQ, dP, NewResiduals(n), flags, FinalStage)

			assert.Equal(t, tt.want, count)
			assert.True(t, flags.Q[2])
			assert.Equal(t, tt.policy == RectifyGlobal, flags.Q[1])
		})
	}
}

func TestParseRectifyPolicy(t *testing.T) {
	p, err := ParseRectifyPolicy("per-body")
	require.NoError(t, err)
	assert.Equal(t, RectifyPerBody, p)

	p, err = ParseRectifyPolicy("")
	require.NoError(t, err)
	assert.Equal(t, RectifyGlobal, p)

	_, err = ParseRectifyPolicy("sometimes")
	assert.ErrorIs(t, err, dynamo.ErrParameterBounds)
}

func TestPerformSummation_CentralBodyAtOrigin(t *testing.T) {
	s, _, _ := newTestState(t, Config{})
	n := s.N()
	Q := []dynamo.Vec3{{9, 9, 9}, {}, {}}
	P := []dynamo.Vec3{{9, 9, 9}, {}, {}}
	solver := NewResiduals(n)
	solver.Q[0] = dynamo.Vec3{1, 1, 1}

	s.PerformSummation(Q, P, make([]dynamo.Vec3, n), make([]dynamo.Vec3, n), solver, 0)

	assert.Equal(t, dynamo.Vec3{}, Q[0])
	assert.Equal(t, dynamo.Vec3{}, P[0])
	assert.Equal(t, s.Stage(0).Q[1], Q[1])
}

func TestCoordinates_RoundTrip(t *testing.T) {
	m := []float64{1.0, 1e-3, 2e-4}
	q := []dynamo.Vec3{{0.01, -0.02, 0}, {1.1, 0.3, 0.01}, {-2, 0.5, 0.1}}
	v := []dynamo.Vec3{{0.001, 0, 0}, {-0.2, 0.95, 0}, {-0.1, -0.6, 0.01}}

	Q, P, frame := ToDemocraticHeliocentric(m, q, v, 0)
	assert.Equal(t, dynamo.Vec3{}, Q[0])
	assert.Equal(t, dynamo.Vec3{}, P[0])

	q2, v2 := FromDemocraticHeliocentric(m, Q, P, frame, 0)
	for i := range m {
		for c := 0; c < 3; c++ {
			assert.InDelta(t, q[i][c], q2[i][c], 1e-14)
			assert.InDelta(t, v[i][c], v2[i][c], 1e-14)
		}
	}

	var ke, pe float64
	for i := range m {
		ke += 0.5 * m[i] * v[i].Sub(frame.V).Norm2()
		for j := i + 1; j < len(m); j++ {
			pe -= m[i] * m[j] / q[i].Sub(q[j]).Norm()
		}
	}
	assert.InDelta(t, ke+pe, Hamiltonian(1, m, Q, P), 1e-14)
}

func ulp(x float64) float64 {
	x = math.Abs(x)
	return math.Nextafter(x, math.Inf(1)) - x
}
