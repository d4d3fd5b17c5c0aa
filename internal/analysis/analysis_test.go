package analysis

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/orbitlab/internal/config"
	"github.com/san-kum/orbitlab/internal/dynamo"
	"github.com/san-kum/orbitlab/internal/sim"
)

func TestFFT_ZeroPadsAndMatchesDFT(t *testing.T) {
	data := []float64{1, 2, 0, -1, 3}
	f := FFT(data)
	require.Len(t, f, 8)

	for k := range f {
		var want complex128
		for j, v := range data {
			ang := -2 * math.Pi * float64(k*j) / 8
			want += complex(v*math.Cos(ang), v*math.Sin(ang))
		}
		assert.InDelta(t, real(want), real(f[k]), 1e-12)
		assert.InDelta(t, imag(want), imag(f[k]), 1e-12)
	}
}

func TestDominantPeriod(t *testing.T) {
	const dt, period = 0.1, 6.4
	data := make([]float64, 1024)
	for i := range data {
		data[i] = 3 + math.Sin(2*math.Pi*float64(i)*dt/period)
	}
	p, err := DominantPeriod(data, dt)
	require.NoError(t, err)
	assert.InDelta(t, period, p, 0.05)

	_, err = DominantPeriod(data[:3], dt)
	assert.True(t, errors.Is(err, ErrTooShort))
}

func TestOsculatingElements_Circular(t *testing.T) {
	el := OsculatingElements(1, dynamo.Vec3{1, 0, 0}, dynamo.Vec3{0, 1, 0})
	assert.InDelta(t, 1, el.A, 1e-15)
	assert.InDelta(t, 0, el.E, 1e-15)
	assert.InDelta(t, 0, el.Inc, 1e-15)
}

func TestOsculatingElements_EccentricInclined(t *testing.T) {
	// Periapsis at r = a(1-e) with v = sqrt(mu/a (1+e)/(1-e)), tilted by inc.
	const a, e, inc = 2.0, 0.3, 0.4
	rp := a * (1 - e)
	vp := math.Sqrt((1 + e) / (1 - e) / a)
	el := OsculatingElements(1, dynamo.Vec3{rp, 0, 0}, dynamo.Vec3{0, vp * math.Cos(inc), vp * math.Sin(inc)})
	assert.InDelta(t, a, el.A, 1e-13)
	assert.InDelta(t, e, el.E, 1e-13)
	assert.InDelta(t, inc, el.Inc, 1e-13)
}

func TestOsculatingElements_Hyperbolic(t *testing.T) {
	el := OsculatingElements(1, dynamo.Vec3{1, 0, 0}, dynamo.Vec3{0, 2, 0})
	assert.Negative(t, el.A)
	assert.Greater(t, el.E, 1.0)
}

func TestFiniteTimeLyapunov(t *testing.T) {
	const lambda = 0.5
	ref := make([]sim.Sample, 20)
	pert := make([]sim.Sample, 20)
	for k := range ref {
		tk := float64(k) * 0.25
		ref[k] = sim.Sample{Time: tk, Q: []dynamo.Vec3{{}, {1, 0, 0}}}
		pert[k] = sim.Sample{Time: tk, Q: []dynamo.Vec3{{}, {1 + 1e-9*math.Exp(lambda*tk), 0, 0}}}
	}
	got, err := FiniteTimeLyapunov(ref, pert)
	require.NoError(t, err)
	assert.InDelta(t, lambda, got, 1e-6)

	_, err = FiniteTimeLyapunov(ref, pert[:3])
	assert.Error(t, err)
}

func TestElementHistory_TwoBodyConstant(t *testing.T) {
	cfg := config.GetPreset("two_body")
	cfg.Duration, cfg.OutputInterval = 2*math.Pi, 0.5

	stepper, err := cfg.NewStepper(nil)
	require.NoError(t, err)
	res, err := sim.New(stepper, nil).Run(context.Background(), sim.Config{Duration: cfg.Duration, OutputInterval: cfg.OutputInterval})
	require.NoError(t, err)

	masses := []float64{cfg.Bodies[0].Mass, cfg.Bodies[1].Mass}
	hist := ElementHistory(cfg.G, masses, res.Samples, 1)
	require.Len(t, hist, len(res.Samples))
	for _, el := range hist {
		assert.InDelta(t, hist[0].A, el.A, 1e-11)
		assert.InDelta(t, hist[0].E, el.E, 1e-11)
	}
}

func TestLyapunov_TwoBodyIsRegular(t *testing.T) {
	cfg := config.GetPreset("two_body")
	build := func(delta float64) (sim.Stepper, error) {
		c := cfg.Clone()
		c.Bodies[1].Position[0] += delta
		return c.NewStepper(nil)
	}
	lambda, err := Lyapunov(context.Background(), sim.NewEnsemble(2, nil), build, 1e-8,
		sim.Config{Duration: 20 * math.Pi, OutputInterval: 0.5})
	require.NoError(t, err)
	// Keplerian shear grows the separation linearly, so the fitted exponent
	// decays like ln(t)/t and stays small.
	assert.Less(t, lambda, 0.1)
}
