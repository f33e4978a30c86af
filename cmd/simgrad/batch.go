package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/simgrad/internal/automation"
	"github.com/san-kum/simgrad/internal/experiment"
	"github.com/san-kum/simgrad/internal/storage"
)

var (
	paramName  string
	paramMin   float64
	paramMax   float64
	paramSteps int
	trials     int
	noise      float64
)

func batchCommands() []*cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch [scenario.yaml]",
		Short: "run every step of a scenario file and save the runs",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}

	scanCmd := &cobra.Command{
		Use:   "scan [model]",
		Short: "scan a model parameter and report jacobian metrics",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScan,
	}
	addSimFlags(scanCmd)
	addJacobianFlags(scanCmd)
	scanCmd.Flags().StringVar(&paramName, "param", "", "parameter to scan")
	scanCmd.Flags().Float64Var(&paramMin, "from", 0, "first value")
	scanCmd.Flags().Float64Var(&paramMax, "to", 1, "last value")
	scanCmd.Flags().IntVar(&paramSteps, "n", 5, "number of values")
	_ = scanCmd.MarkFlagRequired("param")

	mcCmd := &cobra.Command{
		Use:   "montecarlo [model]",
		Short: "repeat a run under random initial velocity noise",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	addSimFlags(mcCmd)
	addJacobianFlags(mcCmd)
	mcCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	mcCmd.Flags().Float64Var(&noise, "noise", 0.1, "standard deviation of the qvel noise")

	return []*cobra.Command{batchCmd, scanCmd, mcCmd}
}

func runBatch(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	outcomes, err := automation.RunScenario(cmd.Context(), sc, experiment.NewRegistry(), st)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tRUN ID\tJACOBIANS\tSKIPPED\tRETURN")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.4f\n",
			o.Name, o.RunID, len(o.Result.Jacobians()), o.Result.Skipped, o.Result.Metrics["return"])
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	return err
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	results, err := automation.RunSweep(cmd.Context(), &automation.ParameterSweep{
		Base:      cfg,
		ParamName: paramName,
		ParamMin:  paramMin,
		ParamMax:  paramMax,
		NumSteps:  paramSteps,
	}, experiment.NewRegistry())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tLYAPUNOV\tGRAD NORM\tRETURN\n", paramName)
	for _, r := range results {
		fmt.Fprintf(w, "%.4g\t%.4g\t%.4g\t%.4f\n",
			r.ParamValue, r.Lyapunov, r.Metrics["gradient_norm"], r.Metrics["return"])
	}
	return w.Flush()
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	results, err := automation.RunMonteCarlo(cmd.Context(), &automation.MonteCarloConfig{
		Base:         cfg,
		Perturbation: noise,
		NumTrials:    trials,
		Seed:         cfg.Seed,
	}, experiment.NewRegistry())
	if err != nil {
		return err
	}

	skipped := 0
	for _, r := range results {
		skipped += r.Skipped
	}
	stable, unstable := automation.MonteCarloStats(results)
	fmt.Printf("trials: %d, stable: %d, unstable: %d, skipped jacobians: %d\n", len(results), stable, unstable, skipped)
	return nil
}
