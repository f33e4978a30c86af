package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/san-kum/simgrad/internal/config"
)

// resolveConfig layers the configuration: defaults, then the preset, then
// the config file, then any flag set explicitly on the command line.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()

	model := ""
	if len(args) > 0 {
		model = args[0]
	}

	if preset != "" {
		if model == "" {
			return nil, fmt.Errorf("--preset needs a model argument")
		}
		p := config.GetPreset(model, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
		cfg = p
	}

	if configFile != "" {
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	}

	if model != "" {
		cfg.Model = model
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("dt", func() { cfg.Dt = dt })
	set("steps", func() { cfg.Steps = steps })
	set("seed", func() { cfg.Seed = seed })
	set("integrator", func() { cfg.Integrator = integrator })
	set("controller", func() { cfg.Controller = controller })
	set("reward", func() { cfg.Reward = rewardName })
	set("epsilon", func() { cfg.Jacobian.Epsilon = epsilon })
	set("lookahead", func() { cfg.Jacobian.Lookahead = lookahead })
	set("method", func() { cfg.Jacobian.Method = method })
	set("closed-loop", func() { cfg.Jacobian.ClosedLoop = closedLoop })
	set("first-step-feedback", func() { cfg.Jacobian.Feedback = feedback })
	set("workers", func() { cfg.Jacobian.Workers = workers })
	set("test-mode", func() { cfg.Jacobian.TestMode = testMode })
	set("tolerance", func() { cfg.Jacobian.Tolerance = tolerance })
	set("warmup", func() { cfg.Jacobian.WarmupPasses = warmup })
	set("every", func() { cfg.Jacobian.Every = every })

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !flags.Changed("data") && cfg.DataDir != "" {
		dataDir = cfg.DataDir
	}
	if configFile != "" && !flags.Changed("log-level") && !flags.Changed("log-format") {
		if err := initLogging(cfg.Log.Level, cfg.Log.Format); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
