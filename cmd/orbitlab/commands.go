package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/orbitlab/internal/analysis"
	"github.com/san-kum/orbitlab/internal/config"
	"github.com/san-kum/orbitlab/internal/export"
	"github.com/san-kum/orbitlab/internal/metrics"
	"github.com/san-kum/orbitlab/internal/optim"
	"github.com/san-kum/orbitlab/internal/sim"
	"github.com/san-kum/orbitlab/internal/storage"
	"github.com/san-kum/orbitlab/internal/tes"
	"github.com/san-kum/orbitlab/internal/viz"
)

// loadConfig resolves the system from --config, a preset name or the
// two_body default, then applies explicitly set flags.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	case len(args) > 0:
		cfg = config.GetPreset(args[0])
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
		}
	default:
		cfg = config.GetPreset("two_body")
	}

	f := cmd.Flags()
	if f.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if f.Changed("tol") {
		cfg.Tolerance = tolerance
	}
	if f.Changed("h0") {
		cfg.InitialStep = initialStep
	}
	if f.Changed("dq-max") {
		cfg.DQMax = dqMax
	}
	if f.Changed("rect-period") {
		cfg.RectificationPeriod = rectPeriod
	}
	if f.Changed("policy") {
		cfg.Policy = policy
	}
	if f.Changed("time") {
		cfg.Duration = duration
	}
	if f.Changed("interval") {
		cfg.OutputInterval = interval
	}
	if cfg.Name == "" {
		cfg.Name = "custom"
	}
	return cfg, cfg.Validate()
}

func bodyNames(cfg *config.Config) []string {
	names := make([]string, len(cfg.Bodies))
	for i, b := range cfg.Bodies {
		names[i] = b.Name
	}
	return names
}

func bodyMasses(cfg *config.Config) []float64 {
	masses := make([]float64, len(cfg.Bodies))
	for i, b := range cfg.Bodies {
		masses[i] = b.Mass
	}
	return masses
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	st, err := storage.Open(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	stepper, err := cfg.NewStepper(logger)
	if err != nil {
		return err
	}
	s := sim.New(stepper, logger)
	for _, m := range metrics.ByName(metrics.All, escapeRadius) {
		s.AddMetric(m)
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("running %s with %s...\n", cfg.Name, cfg.Integrator)
	start := time.Now()
	result, runErr := s.Run(ctx, sim.Config{Duration: cfg.Duration, OutputInterval: cfg.OutputInterval})
	elapsed := time.Since(start)
	if result == nil {
		return runErr
	}

	runID, err := st.Save(storage.RunMetadata{
		Name:       cfg.Name,
		Integrator: cfg.Integrator,
		Tolerance:  cfg.Tolerance,
		Duration:   cfg.Duration,
		Bodies:     bodyNames(cfg),
		G:          cfg.G,
		Masses:     bodyMasses(cfg),
	}, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d  rectifications: %d\n", result.Steps, result.Rectifications)
	fmt.Printf("energy drift: %.3e\n", result.EnergyDrift)
	fmt.Println("\nmetrics:")
	for _, name := range metrics.All {
		if v, ok := result.Metrics[name]; ok {
			fmt.Printf("  %s: %.6g\n", name, v)
		}
	}
	if runErr != nil {
		logger.Warn("run stopped early", zap.String("run", runID), zap.Error(runErr))
	}
	return runErr
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	step := frameStep
	if step <= 0 {
		step = cfg.Duration / 2000
	}
	build := func() (sim.Stepper, error) { return cfg.NewStepper(zap.NewNop()) }
	m, err := viz.NewModel(cfg.Name, build, step)
	if err != nil {
		return err
	}
	return viz.Run(m)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := storage.Open(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	var runs []storage.RunMetadata
	if metricName != "" {
		best, err := st.Catalog().Best(metricName)
		if err != nil {
			return err
		}
		if best != nil {
			runs = append(runs, *best)
		}
	} else if runs, err = st.List(); err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSYSTEM\tTIME\tINTEG\tTOL\tDURATION\tSTEPS\tRECT\tDRIFT")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0e\t%.4g\t%d\t%d\t%.2e\n",
			run.ID,
			run.Name,
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			run.Integrator,
			run.Tolerance,
			run.Duration,
			run.Steps,
			run.Rectifications,
			run.EnergyDrift,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(args[0])
	if err != nil {
		return err
	}
	if len(samples) < 2 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("system: %s (%s)\n", meta.Name, meta.Integrator)
	fmt.Printf("samples: %d\n\n", len(samples))

	e0 := samples[0].Energy
	drift := make([]float64, len(samples))
	for k, s := range samples {
		drift[k] = math.Log10(math.Max(math.Abs(s.Energy-e0)/math.Abs(e0), 1e-17))
	}
	fmt.Println(asciigraph.Plot(drift, asciigraph.Height(10), asciigraph.Width(80),
		asciigraph.Caption("log10 |dE/E0|")))
	fmt.Println()

	for i := 1; i < len(samples[0].Q) && i <= 6; i++ {
		r := make([]float64, len(samples))
		for k, s := range samples {
			r[k] = s.Q[i].Sub(s.Q[0]).Norm()
		}
		name := strconv.Itoa(i)
		if i < len(meta.Bodies) {
			name = meta.Bodies[i]
		}
		fmt.Println(asciigraph.Plot(r, asciigraph.Height(8), asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("%s distance from %s", name, firstOr(meta.Bodies, "body 0")))))
		fmt.Println()
	}
	return nil
}

func firstOr(names []string, def string) string {
	if len(names) > 0 {
		return names[0]
	}
	return def
}

func exportCSV(cmd *cobra.Command, args []string) error {
	f, err := os.Open(storage.New(dataDir).SamplesPath(args[0]))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(os.Stdout, f)
	return err
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(args[0])
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, *meta, samples)
}

func exportSVG(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(args[0])
	if err != nil {
		return err
	}

	opts := export.DefaultSVGOptions()
	opts.Plane = plane
	opts.Names = meta.Bodies

	var w io.Writer = os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := export.OrbitsToSVG(w, samples, opts); err != nil {
		return err
	}
	if outFile != "" {
		fmt.Fprintf(os.Stderr, "wrote %s\n", outFile)
	}
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tBODIES\tDURATION")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%s\t%.4g\n", name, strings.Join(bodyNames(cfg), ","), cfg.Duration)
	}
	return w.Flush()
}

func compareIntegrators(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[:1])
	if err != nil {
		return err
	}
	names := args[1:]
	if len(names) == 0 {
		names = config.Integrators
	}

	jobs := make([]sim.Job, len(names))
	for i, name := range names {
		c := cfg.Clone()
		c.Integrator = name
		jobs[i] = sim.Job{
			Name:    name,
			Build:   func() (sim.Stepper, error) { return c.NewStepper(logger) },
			Config:  sim.Config{Duration: c.Duration, OutputInterval: c.OutputInterval},
			Metrics: func() []sim.Metric { return []sim.Metric{metrics.NewEnergyDrift(), metrics.NewStepSize()} },
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("comparing integrators on %s (duration %.4g)\n\n", cfg.Name, cfg.Duration)
	start := time.Now()
	results, runErr := sim.NewEnsemble(workers, logger).Run(ctx, jobs)
	elapsed := time.Since(start)

	var ref *sim.Sample
	if results[0] != nil && len(results[0].Samples) > 0 {
		ref = &results[0].Samples[len(results[0].Samples)-1]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "INTEGRATOR\tSTEPS\tMEAN_H\tMAX_DRIFT\tFINAL_DIFF(vs %s)\n", names[0])
	for i, r := range results {
		if r == nil {
			fmt.Fprintf(w, "%s\tfailed\t\t\t\n", names[i])
			continue
		}
		diff := math.NaN()
		last := r.Samples[len(r.Samples)-1]
		if ref != nil && last.Time == ref.Time {
			diff = 0
			for b := range last.Q {
				diff = math.Max(diff, last.Q[b].Sub(ref.Q[b]).Norm())
			}
		}
		fmt.Fprintf(w, "%s\t%d\t%.3g\t%.2e\t%.2e\n",
			names[i], r.Steps, r.Metrics["mean_step"], r.Metrics["energy_drift"], diff)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nwall time %v\n", elapsed)
	return runErr
}

// parseSweep turns "name=v1,v2" specs into grid axes.
func parseSweep(specs []string) ([]string, [][]float64, error) {
	var names []string
	var ranges [][]float64
	for _, spec := range specs {
		name, list, ok := strings.Cut(spec, "=")
		if !ok || name == "" || list == "" {
			return nil, nil, fmt.Errorf("bad --param %q, want name=v1,v2", spec)
		}
		var vals []float64
		for _, s := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("bad --param %q: %w", spec, err)
			}
			vals = append(vals, v)
		}
		names = append(names, strings.TrimSpace(name))
		ranges = append(ranges, vals)
	}
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("sweep needs at least one --param (known: %s)", strings.Join(optim.TESParams, ", "))
	}
	return names, ranges, nil
}

func sweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if cfg.Integrator != "tes" {
		return fmt.Errorf("sweep tunes the tes integrator, got %s", cfg.Integrator)
	}
	names, ranges, err := parseSweep(sweepSpecs)
	if err != nil {
		return err
	}

	base, err := cfg.TES()
	if err != nil {
		return err
	}
	bodies, q, v := cfg.System()
	build := func(params map[string]float64) (sim.Stepper, error) {
		c := base
		if err := optim.ApplyTES(&c, params); err != nil {
			return nil, err
		}
		integ, err := tes.New(c, bodies, q, v, tes.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return sim.FromTES(integ), nil
	}

	g, err := optim.NewGridSearch(names, ranges, sim.NewEnsemble(workers, logger), logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	best, all, err := g.Search(ctx, build,
		sim.Config{Duration: cfg.Duration, OutputInterval: cfg.OutputInterval},
		func() []sim.Metric { return metrics.ByName(metrics.All, escapeRadius) },
		metricName)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\tSTEPS\n", strings.ToUpper(strings.Join(names, "\t")), strings.ToUpper(metricName))
	for _, c := range all {
		row := make([]string, len(names))
		for i, n := range names {
			row[i] = strconv.FormatFloat(c.Params[n], 'g', 6, 64)
		}
		steps := "failed"
		if c.Result != nil {
			steps = strconv.Itoa(c.Result.Steps)
		}
		fmt.Fprintf(w, "%s\t%.3e\t%s\n", strings.Join(row, "\t"), c.Value, steps)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	if best != nil {
		fmt.Printf("\nbest: %v (%s = %.3e)\n", best.Params, metricName, best.Value)
	}
	return err
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(args[0])
	if err != nil {
		return err
	}
	if len(samples) < 2 {
		return fmt.Errorf("no data to analyze")
	}
	if len(meta.Masses) != len(samples[0].Q) {
		return fmt.Errorf("run %s does not record body masses", meta.ID)
	}
	dt := samples[1].Time - samples[0].Time

	fmt.Printf("run: %s (%s, %s)\n\n", meta.ID, meta.Name, meta.Integrator)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BODY\tA\tDA/A\tE\tDE\tINC(deg)\tPERIOD")
	for i := 1; i < len(meta.Masses); i++ {
		hist := analysis.ElementHistory(meta.G, meta.Masses, samples, i)
		first, last := hist[0], hist[len(hist)-1]

		r := make([]float64, len(samples))
		for k, s := range samples {
			r[k] = s.Q[i].Sub(s.Q[0]).Norm()
		}
		period := "-"
		if p, err := analysis.DominantPeriod(r, dt); err == nil && !math.IsInf(p, 1) {
			period = strconv.FormatFloat(p, 'g', 6, 64)
		}

		name := strconv.Itoa(i)
		if i < len(meta.Bodies) {
			name = meta.Bodies[i]
		}
		fmt.Fprintf(w, "%s\t%.6g\t%.2e\t%.4f\t%.2e\t%.3f\t%s\n",
			name, last.A, (last.A-first.A)/first.A, last.E, last.E-first.E, last.Inc*180/math.Pi, period)
	}
	return w.Flush()
}

func chaosIndicator(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	build := func(delta float64) (sim.Stepper, error) {
		c := cfg.Clone()
		c.Bodies[len(c.Bodies)-1].Position[0] += delta
		return c.NewStepper(logger)
	}

	ctx, cancel := signalContext()
	defer cancel()

	lambda, err := analysis.Lyapunov(ctx, sim.NewEnsemble(2, logger), build, delta,
		sim.Config{Duration: cfg.Duration, OutputInterval: cfg.OutputInterval})
	if err != nil {
		return err
	}
	fmt.Printf("finite-time lyapunov exponent: %.4g\n", lambda)
	if lambda > 0 {
		fmt.Printf("e-folding time: %.4g\n", 1/lambda)
	}
	return nil
}
