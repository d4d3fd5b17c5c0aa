package integrators

import "github.com/san-kum/orbitlab/internal/dynamo"

// RK4 is the classical fourth order Runge-Kutta method.
type RK4 struct {
	k1, k2, k3, k4 dynamo.State
	scratch        dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(dynamo.State, n)
		r.k2 = make(dynamo.State, n)
		r.k3 = make(dynamo.State, n)
		r.k4 = make(dynamo.State, n)
		r.scratch = make(dynamo.State, n)
	}
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k1, dyn.Derive(x, t))

	stage := func(dst, k dynamo.State, f float64) {
		for i := 0; i < n; i++ {
			r.scratch[i] = x[i] + f*dt*k[i]
		}
		copy(dst, dyn.Derive(r.scratch, t+f*dt))
	}
	stage(r.k2, r.k1, 0.5)
	stage(r.k3, r.k2, 0.5)
	stage(r.k4, r.k3, 1)

	result := make(dynamo.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
	return result
}
