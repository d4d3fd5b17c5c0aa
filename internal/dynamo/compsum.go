package dynamo

// AddCompensated adds inc into *acc using Kahan's two-sum and keeps the
// rounding residue in *carry. The residue is subtracted from the next
// increment, so the pair (acc, carry) represents acc - carry to roughly twice
// working precision.
func AddCompensated(acc, carry *float64, inc float64) {
	y := inc - *carry
	t := *acc + y
	*carry = (t - *acc) - y
	*acc = t
}

// AddCompensatedVec applies AddCompensated component-wise.
func AddCompensatedVec(acc, carry *Vec3, inc Vec3) {
	for k := 0; k < 3; k++ {
		AddCompensated(&acc[k], &carry[k], inc[k])
	}
}

// Kahan is a running compensated sum.
type Kahan struct {
	sum   float64
	carry float64
}

func (k *Kahan) Add(x float64) {
	AddCompensated(&k.sum, &k.carry, x)
}

// Sum returns the accumulated value with the outstanding residue applied.
func (k *Kahan) Sum() float64 {
	return k.sum - k.carry
}

func (k *Kahan) Reset() {
	k.sum, k.carry = 0, 0
}
