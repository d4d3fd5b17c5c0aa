package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/orbitlab/internal/automation"
	"github.com/san-kum/orbitlab/internal/sim"
	"github.com/san-kum/orbitlab/internal/storage"
)

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	st, err := storage.Open(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("scenario %s: %d steps\n", scenario.Name, len(scenario.Steps))
	if scenario.Description != "" {
		fmt.Println(scenario.Description)
	}
	results, runErr := automation.RunScenario(ctx, scenario, sim.NewEnsemble(workers, logger), logger)
	if results == nil {
		return runErr
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nSTEP\tNAME\tINTEGRATOR\tSTEPS\tMAX_DRIFT\tRUN_ID")
	for i, sr := range results {
		if sr.Result == nil {
			fmt.Fprintf(w, "%d\t%s\t%s\tfailed\t\t\n", i+1, sr.Config.Name, sr.Config.Integrator)
			continue
		}
		id := "-"
		if sr.Step.Save {
			id, err = st.Save(storage.RunMetadata{
				Name:       sr.Config.Name,
				Integrator: sr.Config.Integrator,
				Tolerance:  sr.Config.Tolerance,
				Duration:   sr.Config.Duration,
				Bodies:     bodyNames(sr.Config),
				G:          sr.Config.G,
				Masses:     bodyMasses(sr.Config),
			}, sr.Result)
			if err != nil {
				logger.Error("failed to save run", zap.String("name", sr.Config.Name), zap.Error(err))
				id = "unsaved"
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.3e\t%s\n", i+1, sr.Config.Name, sr.Config.Integrator,
			sr.Result.Steps, sr.Result.EnergyDrift, id)
	}
	w.Flush()
	return runErr
}

func monteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	mc := &automation.MonteCarloConfig{
		Base:                 cfg,
		PositionPerturbation: perturbPos,
		VelocityPerturbation: perturbVel,
		NumTrials:            trials,
		Seed:                 seed,
		EscapeRadius:         escapeRadius,
	}
	fmt.Printf("monte carlo on %s: %d trials, escape radius %.4g\n", cfg.Name, trials, escapeRadius)
	results, runErr := automation.RunMonteCarlo(ctx, mc, sim.NewEnsemble(workers, logger))
	if results == nil {
		return runErr
	}
	if runErr != nil {
		logger.Warn("some trials failed", zap.Error(runErr))
	}

	stable, unstable := automation.MonteCarloStats(results)
	worst := 0.0
	for _, r := range results {
		if r.Err == nil && r.EnergyDrift > worst {
			worst = r.EnergyDrift
		}
	}
	fmt.Printf("stable: %d  unstable: %d  (%.1f%% stable)\n", stable, unstable, 100*float64(stable)/float64(len(results)))
	fmt.Printf("worst energy drift: %.3e\n", worst)
	return nil
}
