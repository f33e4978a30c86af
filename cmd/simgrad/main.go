package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/san-kum/simgrad/internal/config"
	"github.com/san-kum/simgrad/internal/logging"
)

var (
	dataDir    string
	configFile string
	preset     string
	logLevel   string
	logFormat  string

	dt         float64
	steps      int
	seed       int64
	integrator string
	controller string
	rewardName string

	epsilon    float64
	lookahead  int
	method     string
	closedLoop string
	feedback   bool
	workers    int
	every      int
	testMode   bool
	tolerance  float64
	warmup     int

	asJSON bool
	accel  bool
	theme  string
	width  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "simgrad",
		Short:         "finite-difference jacobians for black-box simulators",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogging(logLevel, logFormat)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "text or json")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "roll out a model, differentiate it and save the run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExperiment,
	}
	addSimFlags(runCmd)
	addJacobianFlags(runCmd)
	runCmd.Flags().IntVar(&every, "every", config.DefaultEvery, "differentiate every n-th step (0 disables)")

	jacobianCmd := &cobra.Command{
		Use:   "jacobian [model]",
		Short: "differentiate the first step of a model and print the matrices",
		Args:  cobra.MaximumNArgs(1),
		RunE:  printJacobian,
	}
	addSimFlags(jacobianCmd)
	addJacobianFlags(jacobianCmd)
	jacobianCmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of tables")
	jacobianCmd.Flags().BoolVar(&accel, "accel", false, "differentiate the accelerations instead of rolling out")
	jacobianCmd.Flags().StringVar(&theme, "theme", "cyberpunk", "color theme")

	checkCmd := &cobra.Command{
		Use:   "check [model]",
		Short: "verify that the model replays its first step deterministically",
		Args:  cobra.MaximumNArgs(1),
		RunE:  checkDeterminism,
	}
	addSimFlags(checkCmd)
	checkCmd.Flags().Float64Var(&tolerance, "tolerance", 0, "absolute tolerance per state entry and reward (default 1e-9)")

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "pick a perturbation size by comparing forward and central differences",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sweepEpsilon,
	}
	addSimFlags(sweepCmd)
	addJacobianFlags(sweepCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "summarize a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}
	showCmd.Flags().IntVar(&width, "width", 60, "plot width")

	inspectCmd := &cobra.Command{
		Use:   "inspect [run_id]",
		Short: "browse the jacobians of a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectRun,
	}
	inspectCmd.Flags().StringVar(&theme, "theme", "cyberpunk", "color theme")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models, integrators and controllers",
		RunE:  listModels,
	}

	rootCmd.AddCommand(runCmd, jacobianCmd, checkCmd, sweepCmd, listCmd, showCmd, inspectCmd, presetsCmd, modelsCmd)
	rootCmd.AddCommand(batchCommands()...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addSimFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	cmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "number of steps")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed for init noise")
	cmd.Flags().StringVar(&integrator, "integrator", "semi_implicit_euler", "integrator")
	cmd.Flags().StringVar(&controller, "controller", "none", "controller")
	cmd.Flags().StringVar(&rewardName, "reward", "quadratic", "reward function")
}

func addJacobianFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&epsilon, "epsilon", 1e-6, "perturbation size")
	cmd.Flags().IntVar(&lookahead, "lookahead", 1, "steps rolled out per perturbation")
	cmd.Flags().StringVar(&method, "method", "forward", "forward or central")
	cmd.Flags().StringVar(&closedLoop, "closed-loop", "uniform", "uniform, state or off")
	cmd.Flags().BoolVar(&feedback, "first-step-feedback", false, "apply the controller on the first perturbed step")
	cmd.Flags().IntVar(&workers, "workers", 1, "parallel replicas")
	cmd.Flags().BoolVar(&testMode, "test-mode", false, "verify determinism before differentiating")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0, "absolute tolerance for --test-mode (default 1e-9)")
	cmd.Flags().IntVar(&warmup, "warmup", 0, "warmup passes before differentiating")
}

func initLogging(level, format string) error {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}
	switch format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	logging.Init(lvl, format)
	return nil
}
