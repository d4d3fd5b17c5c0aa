package radau

import "github.com/san-kum/orbitlab/internal/dhem"

// Orders is the number of polynomial coefficients b0..b6 per component.
const Orders = 7

// Nodes is the number of collocation nodes including the step start.
const Nodes = Orders + 1

var (
	// nodeGap[n][j] = h_n - h_j.
	nodeGap = newNodeGaps()
	// newtonCoeff[k][m] is the coefficient of s^m in prod_{j=1..k}(s - h_j),
	// which maps the divided difference g_k onto b_m.
	newtonCoeff = newNewtonCoefficients()
	// binomial[j][k] = C(j, k).
	binomial = newBinomials()
)

func newNodeGaps() [Nodes][Nodes]float64 {
	var r [Nodes][Nodes]float64
	for n := 0; n < Nodes; n++ {
		for j := 0; j < Nodes; j++ {
			r[n][j] = dhem.StageFractions[n] - dhem.StageFractions[j]
		}
	}
	return r
}

func newNewtonCoefficients() [Orders][Orders]float64 {
	var c [Orders][Orders]float64
	poly := []float64{1}
	for k := 0; k < Orders; k++ {
		if k > 0 {
			hk := dhem.StageFractions[k]
			next := make([]float64, len(poly)+1)
			for m, a := range poly {
				next[m+1] += a
				next[m] -= hk * a
			}
			poly = next
		}
		copy(c[k][:], poly)
	}
	return c
}

func newBinomials() [Nodes + 1][Nodes + 1]float64 {
	var b [Nodes + 1][Nodes + 1]float64
	for j := 0; j <= Nodes; j++ {
		b[j][0] = 1
		for k := 1; k <= j; k++ {
			b[j][k] = b[j-1][k-1] + b[j-1][k]
		}
	}
	return b
}
