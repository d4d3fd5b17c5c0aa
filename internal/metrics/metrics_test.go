package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/orbitlab/internal/dynamo"
	"github.com/san-kum/orbitlab/internal/sim"
)

func sample(t, energy float64, steps, rect int) sim.Sample {
	return sim.Sample{
		Time:     t,
		Q:        []dynamo.Vec3{{}, {1 + t, 0, 0}},
		V:        []dynamo.Vec3{{}, {0, 1, 0}},
		Energy:   energy,
		Counters: sim.Counters{Steps: steps, Rectifications: rect},
	}
}

func TestEnergyDrift(t *testing.T) {
	m := NewEnergyDrift()

	m.Observe(sample(0, -2, 0, 0))
	m.Observe(sample(1, -2.002, 10, 0))
	m.Observe(sample(2, -2.001, 20, 0))

	if math.Abs(m.Value()-1e-3) > 1e-12 {
		t.Errorf("expected max drift 1e-3, got %g", m.Value())
	}
	if math.Abs(m.Current()-5e-4) > 1e-12 {
		t.Errorf("expected current drift 5e-4, got %g", m.Current())
	}
}

func TestEnergyDriftReset(t *testing.T) {
	m := NewEnergyDrift()
	m.Observe(sample(0, -1, 0, 0))
	m.Observe(sample(1, -2, 0, 0))
	if m.Value() == 0 {
		t.Error("expected non-zero drift")
	}

	m.Reset()
	if m.Value() != 0 {
		t.Errorf("expected 0 after reset, got %f", m.Value())
	}
	m.Observe(sample(0, -2, 0, 0))
	if m.Value() != 0 {
		t.Errorf("first sample after reset must set the baseline, got %f", m.Value())
	}
}

func TestRectificationsAndStepSize(t *testing.T) {
	r := NewRectifications()
	s := NewStepSize()
	for _, smp := range []sim.Sample{sample(1, -1, 5, 2), sample(3, -1, 25, 6)} {
		r.Observe(smp)
		s.Observe(smp)
	}

	if r.Value() != 4 {
		t.Errorf("expected 4 rectifications, got %v", r.Value())
	}
	if math.Abs(s.Value()-0.1) > 1e-15 {
		t.Errorf("expected mean step 0.1, got %v", s.Value())
	}
}

func TestEscape(t *testing.T) {
	e := NewEscape(2.5)
	for _, tt := range []float64{0, 1, 2, 3} {
		e.Observe(sample(tt, -1, 0, 0))
	}
	// Body 1 sits at 1+t: beyond 2.5 for t = 2 and t = 3.
	if e.Value() != 0.5 {
		t.Errorf("expected escape fraction 0.5, got %v", e.Value())
	}
}

func TestByName(t *testing.T) {
	got := ByName(append(All, "bogus"), 10)
	if len(got) != len(All) {
		t.Fatalf("expected %d metrics, got %d", len(All), len(got))
	}
	for i, m := range got {
		if m.Name() != All[i] {
			t.Errorf("metric %d: expected %s, got %s", i, All[i], m.Name())
		}
	}
}
