package sim

import (
	"context"

	"github.com/san-kum/orbitlab/internal/dynamo"
)

// Stepper advances one body set. *tes.Integrator and *Baseline implement it.
type Stepper interface {
	Integrate(ctx context.Context, tEnd float64) error
	Time() float64
	Inertial() (q, v []dynamo.Vec3)
	Hamiltonian() float64
	Counters() Counters
}

// Counters is the work done so far by a Stepper.
type Counters struct {
	Steps          int `json:"steps"`
	Rectifications int `json:"rectifications"`
}

// Sample is the system observed at one output time.
type Sample struct {
	Time   float64
	Q, V   []dynamo.Vec3
	Energy float64
	Counters
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

type Observer interface {
	OnSample(s Sample)
}

type Config struct {
	Duration       float64
	OutputInterval float64
}

type Result struct {
	Samples     []Sample
	Metrics     map[string]float64
	EnergyDrift float64
	Counters
}
