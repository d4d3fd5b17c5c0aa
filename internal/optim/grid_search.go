package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/san-kum/orbitlab/internal/sim"
	"github.com/san-kum/orbitlab/internal/tes"
)

var ErrNoCandidate = errors.New("optim: no candidate produced the metric")

// Candidate is one point of the grid and its outcome.
type Candidate struct {
	Params map[string]float64
	Value  float64
	Result *sim.Result
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	ensemble   *sim.Ensemble
	log        *zap.Logger
}

func NewGridSearch(params []string, ranges [][]float64, ensemble *sim.Ensemble, log *zap.Logger) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d parameters but %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("optim: parameter %s has an empty range", params[i])
		}
	}
	if ensemble == nil {
		ensemble = sim.NewEnsemble(0, log)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GridSearch{paramNames: params, ranges: ranges, ensemble: ensemble, log: log}, nil
}

// Candidates enumerates the grid, last parameter varying fastest.
func (g *GridSearch) Candidates() []map[string]float64 {
	out := []map[string]float64{{}}
	for depth, name := range g.paramNames {
		next := make([]map[string]float64, 0, len(out)*len(g.ranges[depth]))
		for _, base := range out {
			for _, val := range g.ranges[depth] {
				p := make(map[string]float64, len(base)+1)
				for k, v := range base {
					p[k] = v
				}
				p[name] = val
				next = append(next, p)
			}
		}
		out = next
	}
	return out
}

// Search runs every candidate in the ensemble and returns the one with the
// smallest metricName, plus every candidate sorted by value. Failed
// candidates sort last and their errors are combined into the returned
// error; the search still succeeds if any candidate produced the metric.
func (g *GridSearch) Search(
	ctx context.Context,
	build func(params map[string]float64) (sim.Stepper, error),
	cfg sim.Config,
	metrics func() []sim.Metric,
	metricName string,
) (*Candidate, []Candidate, error) {
	grid := g.Candidates()
	jobs := make([]sim.Job, len(grid))
	for i, params := range grid {
		params := params
		jobs[i] = sim.Job{
			Name:    fmt.Sprint(params),
			Build:   func() (sim.Stepper, error) { return build(params) },
			Config:  cfg,
			Metrics: metrics,
		}
	}

	results, runErr := g.ensemble.Run(ctx, jobs)
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	errs := multierr.Errors(runErr)
	candidates := make([]Candidate, len(grid))
	for i, params := range grid {
		c := Candidate{Params: params, Value: math.Inf(1), Result: results[i]}
		if results[i] != nil {
			if v, ok := results[i].Metrics[metricName]; ok && !math.IsNaN(v) {
				c.Value = v
			}
		}
		for _, err := range errs {
			var jerr *sim.JobError
			if errors.As(err, &jerr) && jerr.Index == i {
				c.Err = err
			}
		}
		candidates[i] = c
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if (candidates[a].Err == nil) != (candidates[b].Err == nil) {
			return candidates[a].Err == nil
		}
		return candidates[a].Value < candidates[b].Value
	})

	best := &candidates[0]
	if best.Err != nil || math.IsInf(best.Value, 1) {
		return nil, candidates, multierr.Append(ErrNoCandidate, runErr)
	}
	g.log.Info("grid search finished",
		zap.Int("candidates", len(candidates)),
		zap.Any("best", best.Params),
		zap.Float64(metricName, best.Value))
	return best, candidates, runErr
}

const (
	ParamTolerance              = "tolerance"
	ParamRectificationPeriod    = "rectification_period"
	ParamRectificationsPerOrbit = "rectifications_per_orbit"
	ParamDQMax                  = "dq_max"
	ParamInitialStep            = "h0"
)

// TESParams lists the parameter names ApplyTES understands.
var TESParams = []string{ParamTolerance, ParamRectificationPeriod, ParamRectificationsPerOrbit, ParamDQMax, ParamInitialStep}

// ApplyTES sets the named parameters on cfg.
func ApplyTES(cfg *tes.Config, params map[string]float64) error {
	for name, v := range params {
		switch name {
		case ParamTolerance:
			cfg.Tolerance = v
		case ParamRectificationPeriod:
			cfg.RectificationPeriod = v
		case ParamRectificationsPerOrbit:
			cfg.RectificationsPerOrbit = v
		case ParamDQMax:
			cfg.DQMax = v
		case ParamInitialStep:
			cfg.InitialStep = v
		default:
			return fmt.Errorf("optim: unknown parameter %q", name)
		}
	}
	return nil
}
