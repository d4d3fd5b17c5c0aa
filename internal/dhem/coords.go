package dhem

import (
	"github.com/san-kum/orbitlab/internal/dynamo"
)

// Frame carries the barycentre position and velocity removed when converting
// inertial coordinates to democratic-heliocentric ones. Both evolve
// trivially (R(t) = R0 + V t) for an isolated system.
type Frame struct {
	R, V dynamo.Vec3
	T0   float64
}

// At returns the barycentre position at time t.
func (f Frame) At(t float64) dynamo.Vec3 {
	return f.R.Add(f.V.Scale(t - f.T0))
}

// ToDemocraticHeliocentric converts inertial positions q and velocities v to
// heliocentric positions Q and barycentric momenta P. Q[0] and P[0] are zero.
func ToDemocraticHeliocentric(m []float64, q, v []dynamo.Vec3, t0 float64) (Q, P []dynamo.Vec3, frame Frame) {
	n := len(m)
	Q = make([]dynamo.Vec3, n)
	P = make([]dynamo.Vec3, n)

	var mTotal float64
	var mq, mv dynamo.Vec3
	for i := 0; i < n; i++ {
		mTotal += m[i]
		mq = mq.Add(q[i].Scale(m[i]))
		mv = mv.Add(v[i].Scale(m[i]))
	}
	frame = Frame{R: mq.Scale(1 / mTotal), V: mv.Scale(1 / mTotal), T0: t0}

	for i := 1; i < n; i++ {
		Q[i] = q[i].Sub(q[0])
		P[i] = v[i].Sub(frame.V).Scale(m[i])
	}
	return Q, P, frame
}

// FromDemocraticHeliocentric inverts ToDemocraticHeliocentric at time t.
func FromDemocraticHeliocentric(m []float64, Q, P []dynamo.Vec3, frame Frame, t float64) (q, v []dynamo.Vec3) {
	n := len(m)
	q = make([]dynamo.Vec3, n)
	v = make([]dynamo.Vec3, n)

	var mTotal float64
	var mQ, pSum dynamo.Vec3
	for i := 0; i < n; i++ {
		mTotal += m[i]
	}
	for i := 1; i < n; i++ {
		mQ = mQ.Add(Q[i].Scale(m[i]))
		pSum = pSum.Add(P[i])
	}

	q[0] = frame.At(t).Sub(mQ.Scale(1 / mTotal))
	v[0] = frame.V.Sub(pSum.Scale(1 / m[0]))
	for i := 1; i < n; i++ {
		q[i] = Q[i].Add(q[0])
		v[i] = P[i].Scale(1 / m[i]).Add(frame.V)
	}
	return q, v
}
