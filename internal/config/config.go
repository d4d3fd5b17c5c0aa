package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/gcfg.v1"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/orbitlab/internal/dhem"
	"github.com/san-kum/orbitlab/internal/dynamo"
	"github.com/san-kum/orbitlab/internal/tes"
)

const (
	DefaultG                      = 1.0
	DefaultTolerance              = 1e-12
	DefaultInitialStep            = 0.01
	DefaultDQMax                  = 1e-3
	DefaultRectificationsPerOrbit = tes.DefaultRectificationsPerOrbit
	DefaultDuration               = 10.0
	DefaultOutputInterval         = 0.1
	DefaultIntegrator             = "tes"
)

// Integrators accepted by Config.Integrator.
var Integrators = []string{"tes", "rk4", "rk45", "leapfrog"}

type Config struct {
	Name                   string       `yaml:"name"`
	Integrator             string       `yaml:"integrator"`
	G                      float64      `yaml:"g"`
	Tolerance              float64      `yaml:"tolerance"`
	InitialStep            float64      `yaml:"h0"`
	DQMax                  float64      `yaml:"dq_max"`
	RectificationPeriod    float64      `yaml:"rectification_period,omitempty"`
	RectificationsPerOrbit float64      `yaml:"rectifications_per_orbit"`
	Policy                 string       `yaml:"policy"`
	Duration               float64      `yaml:"duration"`
	OutputInterval         float64      `yaml:"output_interval"`
	Bodies                 []BodyConfig `yaml:"bodies"`
}

// BodyConfig is one point mass in inertial coordinates. The first body is
// the central mass.
type BodyConfig struct {
	Name     string     `yaml:"name"`
	Mass     float64    `yaml:"mass"`
	Position [3]float64 `yaml:"position,flow"`
	Velocity [3]float64 `yaml:"velocity,flow"`
}

func DefaultConfig() *Config {
	return &Config{
		Integrator:             DefaultIntegrator,
		G:                      DefaultG,
		Tolerance:              DefaultTolerance,
		InitialStep:            DefaultInitialStep,
		DQMax:                  DefaultDQMax,
		RectificationsPerOrbit: DefaultRectificationsPerOrbit,
		Policy:                 dhem.RectifyGlobal.String(),
		Duration:               DefaultDuration,
		OutputInterval:         DefaultOutputInterval,
	}
}

// Load reads a YAML file, or an INI-style gcfg file when the extension is
// .ini, .gcfg or .conf, over the defaults.
func Load(path string) (*Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini", ".gcfg", ".conf":
		return loadGcfg(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

type gcfgFile struct {
	Run struct {
		Name                   string
		Integrator             string
		G                      float64
		Tolerance              float64
		H0                     float64
		DQMax                  float64
		RectificationPeriod    float64
		RectificationsPerOrbit float64
		Policy                 string
		Duration               float64
		OutputInterval         float64
	}
	Body map[string]*gcfgBody
}

type gcfgBody struct {
	Index      int
	Mass       float64
	X, Y, Z    float64
	VX, VY, VZ float64
}

func loadGcfg(path string) (*Config, error) {
	cfg := DefaultConfig()

	var f gcfgFile
	f.Run.Integrator = cfg.Integrator
	f.Run.G = cfg.G
	f.Run.Tolerance = cfg.Tolerance
	f.Run.H0 = cfg.InitialStep
	f.Run.DQMax = cfg.DQMax
	f.Run.RectificationsPerOrbit = cfg.RectificationsPerOrbit
	f.Run.Policy = cfg.Policy
	f.Run.Duration = cfg.Duration
	f.Run.OutputInterval = cfg.OutputInterval

	if err := gcfg.ReadFileInto(&f, path); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.Name = f.Run.Name
	cfg.Integrator = f.Run.Integrator
	cfg.G = f.Run.G
	cfg.Tolerance = f.Run.Tolerance
	cfg.InitialStep = f.Run.H0
	cfg.DQMax = f.Run.DQMax
	cfg.RectificationPeriod = f.Run.RectificationPeriod
	cfg.RectificationsPerOrbit = f.Run.RectificationsPerOrbit
	cfg.Policy = f.Run.Policy
	cfg.Duration = f.Run.Duration
	cfg.OutputInterval = f.Run.OutputInterval

	names := make([]string, 0, len(f.Body))
	for name := range f.Body {
		names = append(names, name)
	}
	sort.Slice(names, func(a, b int) bool {
		ia, ib := f.Body[names[a]].Index, f.Body[names[b]].Index
		if ia != ib {
			return ia < ib
		}
		return names[a] < names[b]
	})
	for _, name := range names {
		b := f.Body[name]
		cfg.Bodies = append(cfg.Bodies, BodyConfig{
			Name:     name,
			Mass:     b.Mass,
			Position: [3]float64{b.X, b.Y, b.Z},
			Velocity: [3]float64{b.VX, b.VY, b.VZ},
		})
	}
	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var err error
	bounds := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]any{dynamo.ErrParameterBounds}, args...)...))
	}

	known := false
	for _, name := range Integrators {
		known = known || name == c.Integrator
	}
	if !known {
		bounds("unknown integrator %q", c.Integrator)
	}
	if !(c.G > 0) {
		bounds("g must be positive, got %v", c.G)
	}
	if !(c.Tolerance >= 0) {
		bounds("tolerance must be non-negative, got %v", c.Tolerance)
	}
	if !(c.InitialStep > 0) {
		bounds("h0 must be positive, got %v", c.InitialStep)
	}
	if !(c.DQMax > 0) {
		bounds("dq_max must be positive, got %v", c.DQMax)
	}
	if c.RectificationPeriod < 0 {
		bounds("rectification_period must not be negative, got %v", c.RectificationPeriod)
	}
	if c.RectificationPeriod == 0 && !(c.RectificationsPerOrbit > 0) {
		bounds("rectifications_per_orbit must be positive without a rectification_period")
	}
	if _, perr := dhem.ParseRectifyPolicy(c.Policy); perr != nil {
		err = multierr.Append(err, perr)
	}
	if !(c.Duration > 0) {
		bounds("duration must be positive, got %v", c.Duration)
	}
	if !(c.OutputInterval > 0) {
		bounds("output_interval must be positive, got %v", c.OutputInterval)
	}

	if len(c.Bodies) < 2 {
		err = multierr.Append(err, fmt.Errorf("%w: got %d", dynamo.ErrTooFewBodies, len(c.Bodies)))
	}
	for i, b := range c.Bodies {
		if !(b.Mass > 0) || math.IsInf(b.Mass, 0) {
			err = multierr.Append(err, fmt.Errorf("%w: body %d (%s) has mass %v", dynamo.ErrNonPositiveMass, i, b.Name, b.Mass))
		}
	}
	return err
}

// TES converts the integrator settings to a tes.Config.
func (c *Config) TES() (tes.Config, error) {
	policy, err := dhem.ParseRectifyPolicy(c.Policy)
	if err != nil {
		return tes.Config{}, err
	}
	cfg := tes.DefaultConfig()
	cfg.G = c.G
	cfg.Tolerance = c.Tolerance
	cfg.InitialStep = c.InitialStep
	cfg.DQMax = c.DQMax
	cfg.RectificationPeriod = c.RectificationPeriod
	cfg.RectificationsPerOrbit = c.RectificationsPerOrbit
	cfg.Policy = policy
	return cfg, nil
}

// System splits the body list into masses and inertial coordinates.
func (c *Config) System() ([]dynamo.Body, []dynamo.Vec3, []dynamo.Vec3) {
	bodies := make([]dynamo.Body, len(c.Bodies))
	q := make([]dynamo.Vec3, len(c.Bodies))
	v := make([]dynamo.Vec3, len(c.Bodies))
	for i, b := range c.Bodies {
		bodies[i] = dynamo.Body{Name: b.Name, Mass: b.Mass}
		q[i] = b.Position
		v[i] = b.Velocity
	}
	return bodies, q, v
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Bodies = append([]BodyConfig(nil), c.Bodies...)
	return &out
}
