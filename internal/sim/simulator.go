package sim

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/orbitlab/internal/dynamo"
)

type Simulator struct {
	stepper   Stepper
	metrics   []Metric
	observers []Observer
	log       *zap.Logger
}

func New(stepper Stepper, log *zap.Logger) *Simulator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{
		stepper:   stepper,
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
		log:       log,
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Run integrates for cfg.Duration past the stepper's current time, sampling
// every cfg.OutputInterval. On cancellation or failure the samples gathered
// so far are returned with the error.
func (s *Simulator) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	samples := int(math.Ceil(cfg.Duration/cfg.OutputInterval - 1e-9))
	result := &Result{
		Samples: make([]Sample, 0, samples+1),
		Metrics: make(map[string]float64),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	t0 := s.stepper.Time()
	first := s.observe(result)
	e0 := first.Energy

	var runErr error
	for k := 1; k <= samples; k++ {
		tNext := math.Min(t0+float64(k)*cfg.OutputInterval, t0+cfg.Duration)
		if err := s.stepper.Integrate(ctx, tNext); err != nil {
			runErr = err
			break
		}
		last := s.observe(result)
		if !validSample(last) {
			runErr = &dynamo.SimulationError{Step: last.Steps, Time: last.Time, Wrapped: dynamo.ErrInvalidState}
			break
		}
	}

	final := result.Samples[len(result.Samples)-1]
	if e0 != 0 {
		result.EnergyDrift = math.Abs(final.Energy-e0) / math.Abs(e0)
	}
	result.Counters = final.Counters
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	s.log.Debug("run finished",
		zap.Float64("t", final.Time),
		zap.Int("samples", len(result.Samples)),
		zap.Float64("energy_drift", result.EnergyDrift),
		zap.Error(runErr),
	)
	return result, runErr
}

func (s *Simulator) observe(result *Result) Sample {
	q, v := s.stepper.Inertial()
	sample := Sample{
		Time:     s.stepper.Time(),
		Q:        q,
		V:        v,
		Energy:   s.stepper.Hamiltonian(),
		Counters: s.stepper.Counters(),
	}
	result.Samples = append(result.Samples, sample)

	for _, m := range s.metrics {
		m.Observe(sample)
	}
	for _, obs := range s.observers {
		obs.OnSample(sample)
	}
	return sample
}

func validSample(s Sample) bool {
	for i := range s.Q {
		if !s.Q[i].IsValid() || !s.V[i].IsValid() {
			return false
		}
	}
	return !math.IsNaN(s.Energy) && !math.IsInf(s.Energy, 0)
}

func validateConfig(cfg Config) error {
	if !(cfg.OutputInterval > 0) {
		return fmt.Errorf("%w: output interval must be positive, got %f", dynamo.ErrParameterBounds, cfg.OutputInterval)
	}
	if !(cfg.Duration > 0) {
		return fmt.Errorf("%w: duration must be positive, got %f", dynamo.ErrParameterBounds, cfg.Duration)
	}
	return nil
}
