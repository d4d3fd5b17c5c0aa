package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/orbitlab/internal/sim"
)

// FiniteTimeLyapunov fits ln |q'(t) - q(t)| against t over two runs
// sampled at the same times and returns the slope. Samples where the
// separation is zero are skipped.
func FiniteTimeLyapunov(ref, pert []sim.Sample) (float64, error) {
	if len(ref) != len(pert) {
		return 0, fmt.Errorf("analysis: %d reference samples but %d perturbed", len(ref), len(pert))
	}

	var n, st, sl, stt, stl float64
	for k := range ref {
		sep := 0.0
		for i := range ref[k].Q {
			sep += pert[k].Q[i].Sub(ref[k].Q[i]).Norm2()
		}
		if sep == 0 {
			continue
		}
		t, l := ref[k].Time, 0.5*math.Log(sep)
		n++
		st += t
		sl += l
		stt += t * t
		stl += t * l
	}
	if n < 2 {
		return 0, ErrTooShort
	}
	den := n*stt - st*st
	if den == 0 {
		return 0, ErrTooShort
	}
	return (n*stl - st*sl) / den, nil
}

// Lyapunov runs build(0) and build(delta) side by side and returns their
// finite-time Lyapunov exponent. build should displace the initial state by
// delta.
func Lyapunov(ctx context.Context, ens *sim.Ensemble, build func(delta float64) (sim.Stepper, error), delta float64, cfg sim.Config) (float64, error) {
	results, err := ens.Run(ctx, []sim.Job{
		{Name: "reference", Build: func() (sim.Stepper, error) { return build(0) }, Config: cfg},
		{Name: "perturbed", Build: func() (sim.Stepper, error) { return build(delta) }, Config: cfg},
	})
	if err != nil {
		return 0, err
	}
	return FiniteTimeLyapunov(results[0].Samples, results[1].Samples)
}
