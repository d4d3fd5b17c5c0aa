package dhem

import (
	"fmt"
	"math"

	"github.com/san-kum/orbitlab/internal/dynamo"
)

const (
	// StagesPerStep is the number of reference orbit snapshots per step:
	// step start, the seven Gauss-Radau nodes and step end.
	StagesPerStep = 9
	// FinalStage indexes the end-of-step snapshot.
	FinalStage = StagesPerStep - 1

	parallelBodyThreshold = 64
)

// StageFractions are the snapshot times as fractions of the step size.
var StageFractions = [StagesPerStep]float64{
	0.0,
	0.0562625605369221464656521910318,
	0.180240691736892364987579942780,
	0.352624717113169637373907769648,
	0.547153626330555383001448554766,
	0.734210177215410531523210605558,
	0.885320946839095768090359771030,
	0.977520613561287501891174488626,
	1.0,
}

// Propagator supplies closed-form two-body reference orbits about body 0.
type Propagator interface {
	// Rebase anchors body's reference orbit at (q, p) at time t.
	Rebase(body int, q, p dynamo.Vec3, t float64)
	// Propagate evaluates body's reference orbit at time t, returning the
	// compensated-summation residuals alongside.
	Propagate(body int, t float64) (q, p, qcs, pcs dynamo.Vec3, err error)
	// Residuals returns the residuals retained from the latest propagation.
	Residuals(body int) (q, p dynamo.Vec3)
	ClearResiduals(body int)
}

// Orbit is the reference orbit of every body at one stage time.
type Orbit struct {
	Q, P       []dynamo.Vec3
	Qcs, Pcs   []dynamo.Vec3
	Qdot, Pdot []dynamo.Vec3
}

func newOrbit(n int) Orbit {
	return Orbit{
		Q:    make([]dynamo.Vec3, n),
		P:    make([]dynamo.Vec3, n),
		Qcs:  make([]dynamo.Vec3, n),
		Pcs:  make([]dynamo.Vec3, n),
		Qdot: make([]dynamo.Vec3, n),
		Pdot: make([]dynamo.Vec3, n),
	}
}

// OrbitSet holds one Orbit per stage.
type OrbitSet [StagesPerStep]Orbit

// Residuals are per-body compensated-summation residuals owned by a
// collaborator (the collocation solver). They are additive corrections:
// value + residual is the better estimate.
type Residuals struct {
	Q, P []dynamo.Vec3
}

func NewResiduals(n int) Residuals {
	return Residuals{Q: make([]dynamo.Vec3, n), P: make([]dynamo.Vec3, n)}
}

// RectifiedFlags marks, per body, the position (Q) and momentum (P)
// deviation fields invalidated by the latest rectification.
type RectifiedFlags struct {
	Q, P []bool
}

func NewRectifiedFlags(n int) RectifiedFlags {
	return RectifiedFlags{Q: make([]bool, n), P: make([]bool, n)}
}

func (f RectifiedFlags) Any() bool {
	for i := range f.Q {
		if f.Q[i] || f.P[i] {
			return true
		}
	}
	return false
}

// RectifyPolicy selects how a per-body trigger turns into rectification.
type RectifyPolicy int

const (
	// RectifyGlobal rectifies every body when any body triggers.
	RectifyGlobal RectifyPolicy = iota
	// RectifyPerBody rectifies only the bodies that trigger.
	RectifyPerBody
)

func (p RectifyPolicy) String() string {
	switch p {
	case RectifyGlobal:
		return "global"
	case RectifyPerBody:
		return "per-body"
	default:
		return fmt.Sprintf("RectifyPolicy(%d)", int(p))
	}
}

// ParseRectifyPolicy maps "global" / "per-body" to a policy.
func ParseRectifyPolicy(s string) (RectifyPolicy, error) {
	switch s {
	case "", "global":
		return RectifyGlobal, nil
	case "per-body", "per_body", "perbody":
		return RectifyPerBody, nil
	default:
		return 0, fmt.Errorf("%w: unknown rectification policy %q", dynamo.ErrParameterBounds, s)
	}
}

// Config parameterises a State.
type Config struct {
	G float64
	// DQMax is the relative position deviation |dQ|/|Qosc| that forces a
	// rectification.
	DQMax float64
	// RectificationPeriod is the default elapsed time between scheduled
	// rectifications, applied to every body.
	RectificationPeriod float64
	Policy              RectifyPolicy
}

// State is the differential equations-of-motion context for one body set.
type State struct {
	n     int
	g     float64
	m     []float64
	mInv  []float64
	prop  Propagator
	dqMax float64

	policy RectifyPolicy

	rebasis    OrbitSet
	prediction OrbitSet
	active     *OrbitSet

	// scratch absolute coordinates used inside RHS
	q, p []dynamo.Vec3

	rectifyTime   []float64
	rectifyPeriod []float64
	triggered     []bool
}

// New validates the body set once and allocates every working array.
func New(cfg Config, masses []float64, prop Propagator, t0 float64) (*State, error) {
	n := len(masses)
	if n < 2 {
		return nil, dynamo.ErrTooFewBodies
	}
	for i, m := range masses {
		if !(m > 0) || math.IsInf(m, 0) {
			return nil, fmt.Errorf("%w: body %d has mass %v", dynamo.ErrNonPositiveMass, i, m)
		}
	}
	if !(cfg.DQMax > 0) {
		return nil, fmt.Errorf("%w: dq_max must be positive, got %v", dynamo.ErrParameterBounds, cfg.DQMax)
	}
	if !(cfg.RectificationPeriod > 0) {
		return nil, fmt.Errorf("%w: rectification period must be positive, got %v", dynamo.ErrParameterBounds, cfg.RectificationPeriod)
	}

	s := &State{
		n:             n,
		g:             cfg.G,
		m:             make([]float64, n),
		mInv:          make([]float64, n),
		prop:          prop,
		dqMax:         cfg.DQMax,
		policy:        cfg.Policy,
		q:             make([]dynamo.Vec3, n),
		p:             make([]dynamo.Vec3, n),
		rectifyTime:   make([]float64, n),
		rectifyPeriod: make([]float64, n),
		triggered:     make([]bool, n),
	}
	copy(s.m, masses)
	for i := range masses {
		s.mInv[i] = 1 / masses[i]
		s.rectifyPeriod[i] = cfg.RectificationPeriod
		s.rectifyTime[i] = t0 + cfg.RectificationPeriod
	}
	for k := 0; k < StagesPerStep; k++ {
		s.rebasis[k] = newOrbit(n)
		s.prediction[k] = newOrbit(n)
	}
	s.active = &s.rebasis

	return s, nil
}

// N returns the number of bodies including the central one.
func (s *State) N() int { return s.n }

func (s *State) G() float64 { return s.g }

func (s *State) Masses() []float64 { return s.m }

// Stage returns the active reference orbit snapshot for a stage.
func (s *State) Stage(stage int) *Orbit { return &s.active[stage] }

// UsingPrediction reports whether the active snapshot set is the prediction
// set, i.e. the last step did not re-anchor.
func (s *State) UsingPrediction() bool { return s.active == &s.prediction }

// RectifyTime returns body's next scheduled rectification time.
func (s *State) RectifyTime(body int) float64 { return s.rectifyTime[body] }

// SetRectificationPeriod overrides the rectification period of one body.
func (s *State) SetRectificationPeriod(body int, period float64) {
	s.rectifyTime[body] += period - s.rectifyPeriod[body]
	s.rectifyPeriod[body] = period
}
