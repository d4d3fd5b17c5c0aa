package metrics

import "github.com/san-kum/orbitlab/internal/sim"

// Rectifications is the number of body rectifications performed since the
// first sample.
type Rectifications struct {
	first, last int
	samples     int
}

func NewRectifications() *Rectifications { return &Rectifications{} }

func (r *Rectifications) Name() string { return "rectifications" }

func (r *Rectifications) Observe(s sim.Sample) {
	if r.samples == 0 {
		r.first = s.Rectifications
	}
	r.last = s.Rectifications
	r.samples++
}

func (r *Rectifications) Value() float64 { return float64(r.last - r.first) }

func (r *Rectifications) Reset() { *r = Rectifications{} }

// StepSize is the mean accepted step size since the first sample.
type StepSize struct {
	t0, t   float64
	steps0  int
	steps   int
	samples int
}

func NewStepSize() *StepSize { return &StepSize{} }

func (m *StepSize) Name() string { return "mean_step" }

func (m *StepSize) Observe(s sim.Sample) {
	if m.samples == 0 {
		m.t0, m.steps0 = s.Time, s.Steps
	}
	m.t, m.steps = s.Time, s.Steps
	m.samples++
}

func (m *StepSize) Value() float64 {
	n := m.steps - m.steps0
	if n == 0 {
		return 0
	}
	return (m.t - m.t0) / float64(n)
}

func (m *StepSize) Reset() { *m = StepSize{} }
