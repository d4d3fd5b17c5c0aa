package metrics

import (
	"github.com/san-kum/orbitlab/internal/sim"
)

// Escape is the fraction of samples in which some body is farther than
// radius from the first body.
type Escape struct {
	radius     float64
	violations int
	samples    int
}

func NewEscape(radius float64) *Escape {
	return &Escape{radius: radius}
}

func (e *Escape) Name() string { return "escape" }

func (e *Escape) Observe(s sim.Sample) {
	e.samples++
	r2 := e.radius * e.radius
	for i := 1; i < len(s.Q); i++ {
		if s.Q[i].Sub(s.Q[0]).Norm2() > r2 {
			e.violations++
			return
		}
	}
}

func (e *Escape) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return float64(e.violations) / float64(e.samples)
}

func (e *Escape) Reset() {
	e.violations = 0
	e.samples = 0
}

// ByName builds the metrics named in names. Unknown names are skipped.
func ByName(names []string, escapeRadius float64) []sim.Metric {
	var out []sim.Metric
	for _, n := range names {
		switch n {
		case "energy_drift":
			out = append(out, NewEnergyDrift())
		case "rectifications":
			out = append(out, NewRectifications())
		case "mean_step":
			out = append(out, NewStepSize())
		case "escape":
			out = append(out, NewEscape(escapeRadius))
		}
	}
	return out
}

// All names every metric known to ByName.
var All = []string{"energy_drift", "rectifications", "mean_step", "escape"}
