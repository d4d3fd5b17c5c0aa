package config

import (
	"math"
	"sort"
)

// circular places a body of mass m on a circular orbit of radius a about a
// unit central mass (G = 1), inclined by inc radians, at phase phi.
func circular(name string, m, a, inc, phi float64) BodyConfig {
	v := math.Sqrt((1 + m) / a)
	s, c := math.Sincos(phi)
	si, ci := math.Sincos(inc)
	return BodyConfig{
		Name:     name,
		Mass:     m,
		Position: [3]float64{a * c, a * s * ci, a * s * si},
		Velocity: [3]float64{-v * s, v * c * ci, v * c * si},
	}
}

func sun() BodyConfig { return BodyConfig{Name: "sun", Mass: 1} }

func preset(name string, duration float64, bodies ...BodyConfig) *Config {
	cfg := DefaultConfig()
	cfg.Name = name
	cfg.Duration = duration
	cfg.OutputInterval = duration / 500
	cfg.Bodies = bodies
	return cfg
}

// Presets are ready-made systems in units where G = 1, lengths are AU and
// masses are solar masses; one year is 2 pi time units.
var Presets = map[string]*Config{
	"two_body": preset("two_body", 2*math.Pi,
		sun(),
		circular("planet", 1e-3, 1, 0, 0),
	),
	"sun_jupiter_saturn": preset("sun_jupiter_saturn", 2000,
		sun(),
		circular("jupiter", 9.547919e-4, 5.2044, 0.0227, 0.3),
		circular("saturn", 2.858860e-4, 9.5826, 0.0434, 2.1),
	),
	"hierarchical_triple": preset("hierarchical_triple", 400,
		sun(),
		circular("inner", 1e-2, 1, 0, 0),
		BodyConfig{
			Name:     "outer",
			Mass:     5e-3,
			Position: [3]float64{0, 8, 0.4},
			Velocity: [3]float64{-0.42, 0, 0},
		},
	),
	"inner_planets": preset("inner_planets", 100,
		sun(),
		circular("mercury", 1.660114e-7, 0.3871, 0.1222, 4.4),
		circular("venus", 2.447838e-6, 0.7233, 0.0593, 3.2),
		circular("earth", 3.003490e-6, 1.0, 0, 1.75),
		circular("mars", 3.227151e-7, 1.5237, 0.0323, 6.2),
	),
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
