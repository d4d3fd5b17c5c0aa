package physics

import (
	"math"

	"github.com/san-kum/orbitlab/internal/dynamo"
)

// parallelThreshold is the body count above which accelerations are
// computed in parallel chunks.
const parallelThreshold = 128

// NBody is a set of point masses under mutual Newtonian gravity. The state
// vector holds all positions followed by all velocities, three components
// per body.
type NBody struct {
	NumBodies int
	Masses    []float64
	G         float64
	Softening float64
}

func NewNBody(G float64, masses []float64) *NBody {
	m := make([]float64, len(masses))
	copy(m, masses)
	return &NBody{
		NumBodies: len(masses),
		Masses:    m,
		G:         G,
	}
}

func (nb *NBody) StateDim() int { return nb.NumBodies * 6 }

// Pack builds a state vector from positions and velocities.
func (nb *NBody) Pack(q, v []dynamo.Vec3) dynamo.State {
	n := nb.NumBodies
	x := make(dynamo.State, 6*n)
	for i := 0; i < n; i++ {
		copy(x[3*i:3*i+3], q[i][:])
		copy(x[3*(n+i):3*(n+i)+3], v[i][:])
	}
	return x
}

// Unpack splits a state vector into positions and velocities.
func (nb *NBody) Unpack(x dynamo.State) (q, v []dynamo.Vec3) {
	n := nb.NumBodies
	q = make([]dynamo.Vec3, n)
	v = make([]dynamo.Vec3, n)
	for i := 0; i < n; i++ {
		q[i] = nb.pos(x, i)
		v[i] = nb.vel(x, i)
	}
	return q, v
}

func (nb *NBody) pos(x dynamo.State, i int) dynamo.Vec3 {
	return dynamo.Vec3{x[3*i], x[3*i+1], x[3*i+2]}
}

func (nb *NBody) vel(x dynamo.State, i int) dynamo.Vec3 {
	k := 3 * (nb.NumBodies + i)
	return dynamo.Vec3{x[k], x[k+1], x[k+2]}
}

// Derive returns a freshly allocated derivative vector.
func (nb *NBody) Derive(x dynamo.State, t float64) dynamo.State {
	n := nb.NumBodies
	dx := make(dynamo.State, len(x))
	copy(dx[:3*n], x[3*n:])

	acc := func(start, end int) {
		for i := start; i < end; i++ {
			a := nb.acceleration(x, i)
			copy(dx[3*(n+i):3*(n+i)+3], a[:])
		}
	}
	if n >= parallelThreshold {
		dynamo.ParallelFor(n, parallelThreshold/4, acc)
	} else {
		acc(0, n)
	}
	return dx
}

func (nb *NBody) acceleration(x dynamo.State, i int) dynamo.Vec3 {
	var a dynamo.Vec3
	qi := nb.pos(x, i)
	eps2 := nb.Softening * nb.Softening
	for j := 0; j < nb.NumBodies; j++ {
		if j == i {
			continue
		}
		r := nb.pos(x, j).Sub(qi)
		d2 := r.Norm2() + eps2
		inv := 1 / (d2 * math.Sqrt(d2))
		a = a.Add(r.Scale(nb.G * nb.Masses[j] * inv))
	}
	return a
}

// Energy is the total kinetic plus potential energy.
func (nb *NBody) Energy(x dynamo.State) float64 {
	var e dynamo.Kahan
	for i := 0; i < nb.NumBodies; i++ {
		e.Add(0.5 * nb.Masses[i] * nb.vel(x, i).Norm2())
		for j := i + 1; j < nb.NumBodies; j++ {
			d := math.Sqrt(nb.pos(x, j).Sub(nb.pos(x, i)).Norm2() + nb.Softening*nb.Softening)
			e.Add(-nb.G * nb.Masses[i] * nb.Masses[j] / d)
		}
	}
	return e.Sum()
}

func (nb *NBody) Momentum(x dynamo.State) dynamo.Vec3 {
	var p dynamo.Vec3
	for i := 0; i < nb.NumBodies; i++ {
		p = p.Add(nb.vel(x, i).Scale(nb.Masses[i]))
	}
	return p
}

func (nb *NBody) AngularMomentum(x dynamo.State) dynamo.Vec3 {
	var L dynamo.Vec3
	for i := 0; i < nb.NumBodies; i++ {
		q, v := nb.pos(x, i), nb.vel(x, i)
		L = L.Add(dynamo.Vec3{
			q[1]*v[2] - q[2]*v[1],
			q[2]*v[0] - q[0]*v[2],
			q[0]*v[1] - q[1]*v[0],
		}.Scale(nb.Masses[i]))
	}
	return L
}
