package sim

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is one independent run of an ensemble. Build is called on the
// worker goroutine, so every job owns its integrator.
type Job struct {
	Name    string
	Build   func() (Stepper, error)
	Config  Config
	Metrics func() []Metric
}

// JobError is the failure of the job at Index.
type JobError struct {
	Index int
	Name  string
	Err   error
}

func (e *JobError) Error() string { return fmt.Sprintf("%s: %v", e.Name, e.Err) }

func (e *JobError) Unwrap() error { return e.Err }

// Ensemble runs independent jobs concurrently.
type Ensemble struct {
	workers int
	log     *zap.Logger
}

func NewEnsemble(workers int, log *zap.Logger) *Ensemble {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ensemble{workers: workers, log: log}
}

// Run executes every job and returns the results in job order. A failing
// job does not stop the others; all failures are combined in the returned
// error and the corresponding results hold whatever was gathered.
func (e *Ensemble) Run(ctx context.Context, jobs []Job) ([]*Result, error) {
	results := make([]*Result, len(jobs))
	errs := make([]error, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range jobs {
		job := jobs[i]
		idx := i
		g.Go(func() error {
			stepper, err := job.Build()
			if err != nil {
				errs[idx] = &JobError{Index: idx, Name: job.Name, Err: err}
				return nil
			}

			s := New(stepper, e.log.With(zap.String("job", job.Name)))
			if job.Metrics != nil {
				for _, m := range job.Metrics() {
					s.AddMetric(m)
				}
			}

			results[idx], err = s.Run(ctx, job.Config)
			if err != nil {
				errs[idx] = &JobError{Index: idx, Name: job.Name, Err: err}
			}
			return nil
		})
	}

	_ = g.Wait()
	return results, multierr.Combine(errs...)
}
