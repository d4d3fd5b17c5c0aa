package kepler

import "math"

// stumpffSeriesLimit bounds |z| below which c2, c3 are evaluated by series.
const stumpffSeriesLimit = 0.5

// stumpff returns the Stumpff functions c2(z) and c3(z).
func stumpff(z float64) (c2, c3 float64) {
	switch {
	case math.Abs(z) < stumpffSeriesLimit:
		return stumpffSeries(z)
	case z > 0:
		s := math.Sqrt(z)
		sin, cos := math.Sincos(s)
		return (1 - cos) / z, (s - sin) / (z * s)
	default:
		s := math.Sqrt(-z)
		return (math.Cosh(s) - 1) / -z, (math.Sinh(s) - s) / (-z * s)
	}
}

// stumpffSeries sums c_k(z) = sum_n (-z)^n / (2n+k)! for k = 2, 3.
func stumpffSeries(z float64) (c2, c3 float64) {
	term2 := 0.5
	term3 := 1.0 / 6.0
	for n := 1; n <= 10; n++ {
		c2 += term2
		c3 += term3
		term2 *= -z / float64((2*n+1)*(2*n+2))
		term3 *= -z / float64((2*n+2)*(2*n+3))
	}
	return c2, c3
}
