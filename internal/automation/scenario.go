package automation

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/orbitlab/internal/config"
	"github.com/san-kum/orbitlab/internal/metrics"
	"github.com/san-kum/orbitlab/internal/sim"
)

// Scenario is a scripted batch of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one run: a preset or config file plus overrides. Unset
// overrides keep the base value.
type ScenarioStep struct {
	Name           string   `yaml:"name"`
	Preset         string   `yaml:"preset"`
	Config         string   `yaml:"config"`
	Integrator     string   `yaml:"integrator"`
	Tolerance      *float64 `yaml:"tolerance"`
	DQMax          *float64 `yaml:"dq_max"`
	Policy         string   `yaml:"policy"`
	Duration       float64  `yaml:"duration"`
	OutputInterval float64  `yaml:"output_interval"`
	Metrics        []string `yaml:"metrics"`
	Save           bool     `yaml:"save"`
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	return &scenario, nil
}

// Resolve builds and validates the configuration of a step.
func (s ScenarioStep) Resolve() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case s.Config != "":
		c, err := config.Load(s.Config)
		if err != nil {
			return nil, err
		}
		cfg = c
	case s.Preset != "":
		cfg = config.GetPreset(s.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %q", s.Preset)
		}
	default:
		return nil, fmt.Errorf("step needs a preset or a config file")
	}

	if s.Name != "" {
		cfg.Name = s.Name
	}
	if s.Integrator != "" {
		cfg.Integrator = s.Integrator
	}
	if s.Tolerance != nil {
		cfg.Tolerance = *s.Tolerance
	}
	if s.DQMax != nil {
		cfg.DQMax = *s.DQMax
	}
	if s.Policy != "" {
		cfg.Policy = s.Policy
	}
	if s.Duration > 0 {
		cfg.Duration = s.Duration
	}
	if s.OutputInterval > 0 {
		cfg.OutputInterval = s.OutputInterval
	}
	return cfg, cfg.Validate()
}

// StepResult pairs a step's resolved configuration with its outcome.
type StepResult struct {
	Step   ScenarioStep
	Config *config.Config
	Result *sim.Result
}

// RunScenario resolves every step first and then runs them all in the
// ensemble. Step failures are combined in the returned error; the other
// steps still complete.
func RunScenario(ctx context.Context, scenario *Scenario, ens *sim.Ensemble, log *zap.Logger) ([]StepResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	out := make([]StepResult, len(scenario.Steps))
	jobs := make([]sim.Job, len(scenario.Steps))
	for i, step := range scenario.Steps {
		cfg, err := step.Resolve()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		names := step.Metrics
		if len(names) == 0 {
			names = metrics.All
		}
		out[i] = StepResult{Step: step, Config: cfg}
		jobs[i] = sim.Job{
			Name:    fmt.Sprintf("%d:%s", i+1, cfg.Name),
			Build:   func() (sim.Stepper, error) { return cfg.NewStepper(log) },
			Config:  sim.Config{Duration: cfg.Duration, OutputInterval: cfg.OutputInterval},
			Metrics: func() []sim.Metric { return metrics.ByName(names, 100) },
		}
	}

	log.Info("running scenario", zap.String("scenario", scenario.Name), zap.Int("steps", len(jobs)))
	results, err := ens.Run(ctx, jobs)
	for i := range results {
		out[i].Result = results[i]
	}
	return out, err
}
