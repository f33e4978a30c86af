package config

import "sort"

func preset(edit func(c *Config)) *Config {
	c := DefaultConfig()
	edit(c)
	return c
}

var Presets = map[string]map[string]*Config{
	"pendulum": {
		"small": preset(func(c *Config) {
			c.Model, c.Steps = "pendulum", 500
			c.InitState.QPos = []float64{0.2}
		}),
		"large": preset(func(c *Config) {
			c.Model, c.Steps = "pendulum", 500
			c.InitState.QPos = []float64{2.5}
		}),
		"lookahead": preset(func(c *Config) {
			c.Model = "pendulum"
			c.InitState.QPos = []float64{0.5}
			c.Jacobian.Lookahead = 5
			c.Jacobian.Method = "central"
		}),
	},
	"cartpole": {
		"balance": preset(func(c *Config) {
			c.Model, c.Controller = "cartpole", "lqr"
			c.Reward, c.RewardIndex = "upright_effort", 1
			c.InitState.QPos = []float64{0, 0.1}
			c.Jacobian.Lookahead = 3
			c.Jacobian.ClosedLoop = "uniform"
			c.Jacobian.Feedback = true
		}),
		"freefall": preset(func(c *Config) {
			c.Model, c.Steps = "cartpole", 100
			c.Reward, c.RewardIndex = "upright", 1
			c.InitState.QPos = []float64{0, 0.1}
		}),
	},
	"freebody": {
		"hover": preset(func(c *Config) {
			c.Model = "freebody"
			c.Reward, c.RewardIndex = "height", 2
			c.InitState.QPos = []float64{0, 0, 1, 1, 0, 0, 0}
			c.InitState.Ctrl = []float64{0, 0, 9.81}
		}),
		"tumble": preset(func(c *Config) {
			c.Model = "freebody"
			c.Reward, c.RewardIndex = "height", 2
			c.InitState.QPos = []float64{0, 0, 1, 1, 0, 0, 0}
			c.InitState.QVel = []float64{0, 0, 0, 1, 2, 0.5}
			c.InitState.Ctrl = []float64{0, 0, 9.81}
			c.Jacobian.Workers = 4
		}),
	},
	"ball_pendulum": {
		"swing": preset(func(c *Config) {
			c.Model = "ball_pendulum"
			c.InitState.QVel = []float64{1, 0.5, 0}
			c.Jacobian.Every = 5
		}),
	},
	"arm": {
		"reach": preset(func(c *Config) {
			c.Model, c.Controller = "arm", "pd"
			c.ControllerParams.Target = []float64{1.0, 0.5}
			c.Jacobian.WarmupPasses = 2
			c.Jacobian.ClosedLoop = "state"
		}),
	},
	"linear": {
		"oscillator": preset(func(c *Config) {
			c.Model, c.Controller = "linear", "lqr"
			c.InitState.QPos = []float64{1, -0.5}
			c.Jacobian.Method = "central"
			c.Jacobian.Lookahead = 3
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
