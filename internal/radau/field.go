package radau

import (
	"math"

	"github.com/san-kum/orbitlab/internal/dynamo"
)

// continuationReset is the step ratio beyond which the previous step's
// coefficients carry no useful information.
const continuationReset = 20

// Field is the Radau polynomial of one deviation quantity:
//
//	F(s) = F0 + b0 s + b1 s^2 + ... + b6 s^7
//
// over the normalised step time s in [0, 1], with its Newton divided
// differences g and the coefficients e predicted for it by the previous
// step's continuation.
type Field struct {
	B, G, E [Orders][]dynamo.Vec3
	// F holds the derivative driving this field at every node.
	F [Nodes][]dynamo.Vec3

	predicted bool
}

func newField(n int) Field {
	var f Field
	for k := 0; k < Orders; k++ {
		f.B[k] = make([]dynamo.Vec3, n)
		f.G[k] = make([]dynamo.Vec3, n)
		f.E[k] = make([]dynamo.Vec3, n)
	}
	for k := 0; k < Nodes; k++ {
		f.F[k] = make([]dynamo.Vec3, n)
	}
	return f
}

// ClearRectified zeroes the coefficients of every body whose deviation was
// reset by a rectification.
func (f *Field) ClearRectified(rectified []bool) {
	for i, r := range rectified {
		if !r {
			continue
		}
		for k := 0; k < Orders; k++ {
			f.B[k][i] = dynamo.Vec3{}
			f.G[k][i] = dynamo.Vec3{}
			f.E[k][i] = dynamo.Vec3{}
		}
	}
}

// CalculateGfromB rebuilds the divided differences from the current b.
func (f *Field) CalculateGfromB() {
	for i := range f.B[0] {
		for c := 0; c < 3; c++ {
			for k := Orders - 1; k >= 0; k-- {
				g := f.B[k][i][c]
				for j := k + 1; j < Orders; j++ {
					g -= newtonCoeff[j][k] * f.G[j][i][c]
				}
				f.G[k][i][c] = g
			}
		}
	}
}

// update folds the derivative just evaluated at node n into g_{n-1} and
// propagates the change onto b. Body 0 is skipped.
func (f *Field) update(node int) {
	fn, f0 := f.F[node], f.F[0]
	gk := node - 1
	for i := 1; i < len(f0); i++ {
		for c := 0; c < 3; c++ {
			g := (fn[i][c] - f0[i][c]) / nodeGap[node][0]
			for j := 0; j < gk; j++ {
				g = (g - f.G[j][i][c]) / nodeGap[node][j+1]
			}
			delta := g - f.G[gk][i][c]
			f.G[gk][i][c] = g
			for m := 0; m <= gk; m++ {
				f.B[m][i][c] += newtonCoeff[gk][m] * delta
			}
		}
	}
}

// maxF returns the largest derivative component over every node.
func (f *Field) maxF() float64 {
	var m float64
	for k := 0; k < Nodes; k++ {
		for _, v := range f.F[k] {
			for _, c := range v {
				m = math.Max(m, math.Abs(c))
			}
		}
	}
	return m
}

// AnalyticalContinuation re-expands the converged polynomial over the next
// step of size hNew and uses it as that step's starting guess. The
// correction observed on the previous prediction (b - e) is carried over,
// except for rectified bodies whose previous prediction no longer applies.
func (f *Field) AnalyticalContinuation(h, hNew float64, rectified []bool) {
	ratio := hNew / h
	if !(ratio <= continuationReset) {
		for k := 0; k < Orders; k++ {
			clear(f.B[k])
			clear(f.E[k])
		}
		f.predicted = false
		return
	}

	var qPow [Orders]float64
	qPow[0] = ratio
	for k := 1; k < Orders; k++ {
		qPow[k] = qPow[k-1] * ratio
	}

	for i := range f.B[0] {
		correct := f.predicted && (rectified == nil || !rectified[i])
		for c := 0; c < 3; c++ {
			var b, corr [Orders]float64
			for k := 0; k < Orders; k++ {
				b[k] = f.B[k][i][c]
				if correct {
					corr[k] = b[k] - f.E[k][i][c]
				}
			}
			for k := 0; k < Orders; k++ {
				var e float64
				for j := k; j < Orders; j++ {
					e += binomial[j+1][k+1] * b[j]
				}
				e *= qPow[k]
				f.E[k][i][c] = e
				f.B[k][i][c] = e + corr[k]
			}
		}
	}
	f.predicted = true
}
