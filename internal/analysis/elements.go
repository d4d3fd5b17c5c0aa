package analysis

import (
	"math"

	"github.com/san-kum/orbitlab/internal/dynamo"
	"github.com/san-kum/orbitlab/internal/sim"
)

// Elements are the shape and tilt of an osculating orbit. A is negative
// for hyperbolic orbits.
type Elements struct {
	A, E, Inc float64
}

// OsculatingElements returns the elements of relative position r and
// velocity v about a mass with gravitational parameter mu.
func OsculatingElements(mu float64, r, v dynamo.Vec3) Elements {
	rn := r.Norm()
	v2 := v.Norm2()
	h := dynamo.Vec3{
		r[1]*v[2] - r[2]*v[1],
		r[2]*v[0] - r[0]*v[2],
		r[0]*v[1] - r[1]*v[0],
	}
	hn := h.Norm()

	energy := v2/2 - mu/rn
	el := Elements{A: -mu / (2 * energy)}

	// e = (v x h)/mu - r/|r|
	evec := dynamo.Vec3{
		(v[1]*h[2]-v[2]*h[1])/mu - r[0]/rn,
		(v[2]*h[0]-v[0]*h[2])/mu - r[1]/rn,
		(v[0]*h[1]-v[1]*h[0])/mu - r[2]/rn,
	}
	el.E = evec.Norm()
	if hn > 0 {
		el.Inc = math.Acos(math.Max(-1, math.Min(1, h[2]/hn)))
	}
	return el
}

// ElementHistory returns the elements of body i about body 0 at every
// sample.
func ElementHistory(G float64, masses []float64, samples []sim.Sample, i int) []Elements {
	mu := G * (masses[0] + masses[i])
	out := make([]Elements, len(samples))
	for k, s := range samples {
		out[k] = OsculatingElements(mu, s.Q[i].Sub(s.Q[0]), s.V[i].Sub(s.V[0]))
	}
	return out
}
