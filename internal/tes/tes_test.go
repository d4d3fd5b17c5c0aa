package tes

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/san-kum/orbitlab/internal/dhem"
	"github.com/san-kum/orbitlab/internal/dynamo"
)

// circularPair returns a central mass of 1 and a companion of mass m on a
// circular orbit of radius r (G = 1) in the barycentric frame.
func circularPair(m, r float64) ([]dynamo.Body, []dynamo.Vec3, []dynamo.Vec3) {
	M := 1 + m
	vRel := math.Sqrt(M / r)
	bodies := []dynamo.Body{{Name: "star", Mass: 1}, {Name: "planet", Mass: m}}
	q := []dynamo.Vec3{{-m / M * r}, {1 / M * r}}
	v := []dynamo.Vec3{{0, -m / M * vRel}, {0, 1 / M * vRel}}
	return bodies, q, v
}

// eccentricPair places the companion at periapsis of an orbit with semi-major
// axis a and eccentricity e.
func eccentricPair(m, a, e float64) ([]dynamo.Body, []dynamo.Vec3, []dynamo.Vec3) {
	M := 1 + m
	r := a * (1 - e)
	vRel := math.Sqrt(M * (1 + e) / r)
	bodies := []dynamo.Body{{Name: "star", Mass: 1}, {Name: "comet", Mass: m}}
	q := []dynamo.Vec3{{-m / M * r}, {1 / M * r}}
	v := []dynamo.Vec3{{0, -m / M * vRel}, {0, 1 / M * vRel}}
	return bodies, q, v
}

func threeBodies() ([]dynamo.Body, []dynamo.Vec3, []dynamo.Vec3) {
	bodies := []dynamo.Body{{Name: "sun", Mass: 1}, {Name: "inner", Mass: 1e-3}, {Name: "outer", Mass: 3e-4}}
	q := []dynamo.Vec3{{}, {1, 0, 0}, {0, -1.6, 0.05}}
	v := []dynamo.Vec3{{}, {0, 1, 0}, {1 / math.Sqrt(1.6), 0, 0}}
	return bodies, q, v
}

func TestNextStepSize(t *testing.T) {
	tests := []struct {
		name    string
		h, err  float64
		tol     float64
		want    float64
		exactly bool
	}{
		{"error at tolerance keeps h", 0.1, 1e-12, 1e-12, 0.1, false},
		{"larger error shrinks", 0.1, 1e-12 * 128, 1e-12, 0.05, false},
		{"zero error grows by 1.1", 0.1, 0, 1e-12, 0.11000000000000001, true},
		{"nan error grows by 1.1", 0.1, math.NaN(), 1e-12, 0.11000000000000001, true},
		{"inf error grows by 1.1", 0.1, math.Inf(1), 1e-12, 0.11000000000000001, true},
		{"subnormal error grows by 1.1", 0.1, 1e-310, 1e-12, 0.11000000000000001, true},
		{"growth capped at 4h", 0.1, 1e-40, 1e-12, 0.4, true},
		{"floor at min step", 1e-3, 1e10, 1e-12, MinStepSize, true},
		{"cap applied after floor", 1e-6, 0, 1e-12, 4e-6, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextStepSize(tt.h, tt.err, tt.tol)
			if tt.exactly {
				assert.Equal(t, tt.want, got)
			} else {
				assert.InDelta(t, tt.want, got, 1e-12)
			}
			assert.LessOrEqual(t, got, MaxStepGrowth*tt.h)
		})
	}
}

func TestNextStepSize_Bounds(t *testing.T) {
	for _, h := range []float64{1e-4, 0.01, 1, 100} {
		for _, e := range []float64{1e-300, 1e-20, 1e-12, 1e-3, 1, 1e10} {
			got := NextStepSize(h, e, 1e-12)
			assert.GreaterOrEqual(t, got, math.Min(MinStepSize, MaxStepGrowth*h))
			assert.LessOrEqual(t, got, MaxStepGrowth*h)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	bodies, q, v := circularPair(1e-3, 1)

	tests := []struct {
		name   string
		mutate func(cfg *Config, b []dynamo.Body, q, v []dynamo.Vec3) ([]dynamo.Body, []dynamo.Vec3, []dynamo.Vec3)
		want   error
	}{
		{"length mismatch", func(cfg *Config, b []dynamo.Body, q, v []dynamo.Vec3) ([]dynamo.Body, []dynamo.Vec3, []dynamo.Vec3) {
			return b, q[:1], v
		}, dynamo.ErrDimensionMismatch},
		{"zero mass", func(cfg *Config, b []dynamo.Body, q, v []dynamo.Vec3) ([]dynamo.Body, []dynamo.Vec3, []dynamo.Vec3) {
			b[1].Mass = 0
			return b, q, v
		}, dynamo.ErrNonPositiveMass},
		{"single body", func(cfg *Config, b []dynamo.Body, q, v []dynamo.Vec3) ([]dynamo.Body, []dynamo.Vec3, []dynamo.Vec3) {
			return b[:1], q[:1], v[:1]
		}, dynamo.ErrTooFewBodies},
		{"negative tolerance", func(cfg *Config, b []dynamo.Body, q, v []dynamo.Vec3) ([]dynamo.Body, []dynamo.Vec3, []dynamo.Vec3) {
			cfg.Tolerance = -1
			return b, q, v
		}, dynamo.ErrParameterBounds},
		{"coincident bodies", func(cfg *Config, b []dynamo.Body, q, v []dynamo.Vec3) ([]dynamo.Body, []dynamo.Vec3, []dynamo.Vec3) {
			q[1] = q[0]
			return b, q, v
		}, dynamo.ErrInvalidState},
		{"nan velocity", func(cfg *Config, b []dynamo.Body, q, v []dynamo.Vec3) ([]dynamo.Body, []dynamo.Vec3, []dynamo.Vec3) {
			v[1][2] = math.NaN()
			return b, q, v
		}, dynamo.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			b := append([]dynamo.Body(nil), bodies...)
			qq := append([]dynamo.Vec3(nil), q...)
			vv := append([]dynamo.Vec3(nil), v...)
			b, qq, vv = tt.mutate(&cfg, b, qq, vv)

			_, err := New(cfg, b, qq, vv)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNew_RectificationPeriodFromOrbit(t *testing.T) {
	bodies, q, v := circularPair(1e-3, 1)
	integ, err := New(DefaultConfig(), bodies, q, v)
	require.NoError(t, err)

	// The reference orbit sees mu = G m0 with the barycentric velocity.
	Q, P := integ.State()
	want := osculatingPeriod(1, 1, 1e-3, Q[1], P[1]) / DefaultRectificationsPerOrbit
	assert.InDelta(t, want, integ.state.RectifyTime(1), 1e-12)
	assert.Greater(t, want, 0.0)
}

func TestIntegrate_LandsOnEndTime(t *testing.T) {
	bodies, q, v := circularPair(1e-3, 1)
	integ, err := New(DefaultConfig(), bodies, q, v)
	require.NoError(t, err)

	require.NoError(t, integ.Integrate(context.Background(), 1.2345))
	assert.InDelta(t, 1.2345, integ.Time(), 1e-14)

	h := integ.NextStep()
	require.NoError(t, integ.Integrate(context.Background(), 1.2345))
	assert.Equal(t, h, integ.NextStep())
}

func TestIntegrate_FixedStep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tolerance = 0
	cfg.InitialStep = 0.01
	bodies, q, v := circularPair(1e-3, 1)
	integ, err := New(cfg, bodies, q, v)
	require.NoError(t, err)

	require.NoError(t, integ.Integrate(context.Background(), 0.1))
	assert.Equal(t, 10, integ.Stats().Steps)
	assert.Equal(t, 0.01, integ.NextStep())
}

func TestIntegrate_Cancelled(t *testing.T) {
	bodies, q, v := circularPair(1e-3, 1)
	integ, err := New(DefaultConfig(), bodies, q, v)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = integ.Integrate(ctx, 10)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, integ.Stats().Steps)
}

func TestIntegrate_RejectsPastEndTime(t *testing.T) {
	bodies, q, v := circularPair(1e-3, 1)
	integ, err := New(DefaultConfig(), bodies, q, v)
	require.NoError(t, err)
	require.NoError(t, integ.Integrate(context.Background(), 1))

	assert.ErrorIs(t, integ.Integrate(context.Background(), 0.5), dynamo.ErrParameterBounds)
}

func TestStep_CountsWork(t *testing.T) {
	bodies, q, v := circularPair(1e-3, 1)
	integ, err := New(DefaultConfig(), bodies, q, v)
	require.NoError(t, err)

	h := integ.NextStep()
	tNew, err := integ.Step()
	require.NoError(t, err)
	assert.InDelta(t, h, tNew, 1e-18)

	st := integ.Stats()
	assert.Equal(t, 1, st.Steps)
	assert.Positive(t, st.Iterations)
	assert.Equal(t, 1+7*st.Iterations, st.RHSCalls)
}

func TestWithRectifyPolicy(t *testing.T) {
	bodies, q, v := circularPair(1e-3, 1)
	integ, err := New(DefaultConfig(), bodies, q, v, WithRectifyPolicy(dhem.RectifyPerBody))
	require.NoError(t, err)
	assert.Equal(t, dhem.RectifyPerBody, integ.cfg.Policy)
}

func TestIntegrate_StepCountPerPeriod(t *testing.T) {
	bodies, q, v := circularPair(1e-3, 1)
	period := 2 * math.Pi / math.Sqrt(1+1e-3)

	steps := make(map[float64]int)
	for _, tol := range []float64{1e-11, 1e-12} {
		cfg := DefaultConfig()
		cfg.Tolerance = tol
		integ, err := New(cfg, bodies, q, v)
		require.NoError(t, err)

		require.NoError(t, integ.Integrate(context.Background(), period))
		st := integ.Stats()
		steps[tol] = st.Steps

		assert.Less(t, st.Steps, 2000, "tol=%g", tol)
		assert.Greater(t, period/float64(st.Steps), 100*MinStepSize, "tol=%g", tol)
		assert.Zero(t, st.Unconverged, "tol=%g", tol)

		qEnd, _ := integ.Inertial()
		assert.Less(t, qEnd[1].Sub(q[1]).Norm(), 1e-10, "tol=%g", tol)
	}
	// h scales with tol^(1/7); a tenfold tighter tolerance costs well under 3x.
	assert.Less(t, steps[1e-12], 3*steps[1e-11])
}

func TestIntegrate_ContinuesForNominalStepAfterTruncation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tolerance = 0
	cfg.InitialStep = 0.05
	bodies, q, v := threeBodies()
	integ, err := New(cfg, bodies, q, v)
	require.NoError(t, err)

	require.NoError(t, integ.Integrate(context.Background(), 0.12))
	assert.InDelta(t, 0.02, integ.hLast, 1e-15)
	assert.Equal(t, 0.05, integ.NextStep())
	assert.Equal(t, integ.NextStep(), integ.hContinued)

	// a split run follows the unsplit one
	ref, err := New(cfg, bodies, q, v)
	require.NoError(t, err)
	require.NoError(t, ref.Integrate(context.Background(), 0.12))
	require.NoError(t, ref.Integrate(context.Background(), 1.12))
	require.NoError(t, integ.Integrate(context.Background(), 0.5))
	require.NoError(t, integ.Integrate(context.Background(), 1.12))

	qa, _ := integ.Inertial()
	qb, _ := ref.Inertial()
	for k := range qa {
		assert.Less(t, qa[k].Sub(qb[k]).Norm(), 1e-12, "body %d", k)
	}
}

func TestIntegrate_StepTooSmall(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tolerance = 1e-300
	bodies, q, v := threeBodies()
	integ, err := New(cfg, bodies, q, v)
	require.NoError(t, err)

	err = integ.Integrate(context.Background(), 10)
	require.ErrorIs(t, err, dynamo.ErrStepTooSmall)

	var simErr *dynamo.SimulationError
	require.ErrorAs(t, err, &simErr)
	assert.Less(t, simErr.Time, 1.0)
	assert.LessOrEqual(t, integ.Stats().Steps, MaxStepsAtFloor+10)
}

func TestStep_ReportsUnconvergedCorrector(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	bodies, q, v := eccentricPair(1e-3, 1, 0.99)
	integ, err := New(DefaultConfig(), bodies, q, v, WithLogger(zap.New(core)))
	require.NoError(t, err)

	_, err = integ.Step()
	require.NoError(t, err)

	assert.Equal(t, 1, integ.Stats().Unconverged)
	entries := logs.FilterMessage("corrector did not converge").All()
	require.Len(t, entries, 1)
	assert.Equal(t, 0.01, entries[0].ContextMap()["h"])
}
