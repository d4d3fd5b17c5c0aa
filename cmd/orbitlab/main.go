package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/san-kum/orbitlab/internal/viz"
)

var (
	dataDir    string
	verbose    bool
	logger     = zap.NewNop()
	configFile string

	integrator   string
	tolerance    float64
	initialStep  float64
	dqMax        float64
	rectPeriod   float64
	policy       string
	duration     float64
	interval     float64
	escapeRadius float64
	frameStep    float64

	outFile    string
	plane      string
	sweepSpecs []string
	metricName string
	workers    int
	delta      float64

	trials     int
	seed       int64
	perturbPos float64
	perturbVel float64
)

// main registers the commands and runs the root command. With no
// subcommand the interactive preset picker starts.
func main() {
	rootCmd := &cobra.Command{
		Use:   "orbitlab",
		Short: "encke-type n-body integration lab",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewProductionConfig()
			if verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			l, err := cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return viz.RunInteractive(logger)
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".orbitlab", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "integrate a system and store the run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addSystemFlags(runCmd)

	liveCmd := &cobra.Command{
		Use:   "live [preset]",
		Short: "integrate with a live terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addSystemFlags(liveCmd)
	liveCmd.Flags().Float64Var(&frameStep, "frame", 0, "simulated time per frame (default duration/2000)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}
	listCmd.Flags().StringVar(&metricName, "best", "", "show only the run with the smallest value of this metric")

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot energy drift and body distances of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "write the samples of a run as CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "write a run and its samples as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "draw the orbits of a run as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")
	exportSVGCmd.Flags().StringVar(&plane, "plane", "xy", "projection plane: xy, xz or yz")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in systems",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	compareCmd := &cobra.Command{
		Use:   "compare [preset] [integrator...]",
		Short: "run the same system with several integrators",
		Args:  cobra.MinimumNArgs(1),
		RunE:  compareIntegrators,
	}
	addSystemFlags(compareCmd)
	compareCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (default GOMAXPROCS)")

	sweepCmd := &cobra.Command{
		Use:     "sweep [preset]",
		Short:   "grid search over integrator settings",
		Example: "  orbitlab sweep sun_jupiter_saturn --param tolerance=1e-10,1e-12 --param dq_max=1e-4,1e-3",
		Args:    cobra.MaximumNArgs(1),
		RunE:    sweep,
	}
	addSystemFlags(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&sweepSpecs, "param", nil, "name=v1,v2,... (repeatable)")
	sweepCmd.Flags().StringVar(&metricName, "metric", "energy_drift", "metric to minimise")
	sweepCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (default GOMAXPROCS)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "orbital elements and periods of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	chaosCmd := &cobra.Command{
		Use:   "chaos [preset]",
		Short: "finite-time lyapunov exponent from two nearby runs",
		Args:  cobra.MaximumNArgs(1),
		RunE:  chaosIndicator,
	}
	addSystemFlags(chaosCmd)
	chaosCmd.Flags().Float64Var(&delta, "delta", 1e-8, "initial displacement of the last body")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file.yaml]",
		Short: "run every step of a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	scenarioCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (default GOMAXPROCS)")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [preset]",
		Short: "stability of randomly perturbed initial conditions",
		Args:  cobra.MaximumNArgs(1),
		RunE:  monteCarlo,
	}
	addSystemFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 16, "number of perturbed runs")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (default time based)")
	monteCarloCmd.Flags().Float64Var(&perturbPos, "dq", 1e-3, "position perturbation per component")
	monteCarloCmd.Flags().Float64Var(&perturbVel, "dv", 1e-3, "velocity perturbation per component")
	monteCarloCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (default GOMAXPROCS)")

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, exportCSVCmd, exportJSONCmd, exportSVGCmd,
		presetsCmd, compareCmd, sweepCmd, analyzeCmd, chaosCmd, scenarioCmd, monteCarloCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSystemFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file (yaml, or ini/gcfg)")
	f.StringVar(&integrator, "integrator", "tes", "tes, rk4, rk45 or leapfrog")
	f.Float64Var(&tolerance, "tol", 1e-12, "step error tolerance (0 for fixed steps)")
	f.Float64Var(&initialStep, "h0", 0.01, "initial step")
	f.Float64Var(&dqMax, "dq-max", 1e-3, "deviation ratio that forces rectification")
	f.Float64Var(&rectPeriod, "rect-period", 0, "rectification period (0 derives it from each orbit)")
	f.StringVar(&policy, "policy", "global", "rectification policy: global or per-body")
	f.Float64Var(&duration, "time", 0, "duration (default from the preset)")
	f.Float64Var(&interval, "interval", 0, "output interval (default from the preset)")
	f.Float64Var(&escapeRadius, "escape", 100, "distance from the central body counted as escape")
}
