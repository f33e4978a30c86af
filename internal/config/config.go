package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/simgrad/internal/experiment"
	"github.com/san-kum/simgrad/internal/jacobian"
	"github.com/san-kum/simgrad/internal/logging"
)

const (
	DefaultDt      = 0.01
	DefaultSteps   = 200
	DefaultKp      = 10.0
	DefaultKd      = 2.0
	DefaultEvery   = 1
	DefaultDataDir = ".simgrad"
)

type Config struct {
	Model            string             `yaml:"model"`
	Integrator       string             `yaml:"integrator"`
	Controller       string             `yaml:"controller"`
	Reward           string             `yaml:"reward"`
	RewardIndex      int                `yaml:"reward_index"`
	Dt               float64            `yaml:"dt"`
	Steps            int                `yaml:"steps"`
	Seed             int64              `yaml:"seed"`
	InitNoise        float64            `yaml:"init_noise"`
	InitState        InitStateConfig    `yaml:"init_state"`
	Params           map[string]float64 `yaml:"params,omitempty"`
	ControllerParams ControllerConfig   `yaml:"controller_params"`
	Jacobian         JacobianConfig     `yaml:"jacobian"`
	Log              LogConfig          `yaml:"log"`
	DataDir          string             `yaml:"data_dir"`
}

// InitStateConfig overrides the model's neutral configuration. Empty slices
// keep the neutral value.
type InitStateConfig struct {
	QPos []float64 `yaml:"qpos,omitempty"`
	QVel []float64 `yaml:"qvel,omitempty"`
	Ctrl []float64 `yaml:"ctrl,omitempty"`
}

type ControllerConfig struct {
	Kp     float64   `yaml:"kp"`
	Kd     float64   `yaml:"kd"`
	Target []float64 `yaml:"target,omitempty"`
}

type JacobianConfig struct {
	Epsilon      float64 `yaml:"epsilon"`
	Lookahead    int     `yaml:"lookahead"`
	Method       string  `yaml:"method"`
	ClosedLoop   string  `yaml:"closed_loop"`
	Feedback     bool    `yaml:"first_step_feedback"`
	Workers      int     `yaml:"workers"`
	TestMode     bool    `yaml:"test_mode"`
	Tolerance    float64 `yaml:"tolerance"`
	WarmupPasses int     `yaml:"warmup_passes"`
	// Every computes Jacobians on every n-th step; 0 disables them.
	Every int `yaml:"every"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	opts := jacobian.DefaultOptions()
	return &Config{
		Model:      "pendulum",
		Integrator: "semi_implicit_euler",
		Controller: "none",
		Reward:     "quadratic",
		Dt:         DefaultDt,
		Steps:      DefaultSteps,
		ControllerParams: ControllerConfig{
			Kp: DefaultKp,
			Kd: DefaultKd,
		},
		Jacobian: JacobianConfig{
			Epsilon:   opts.Epsilon,
			Lookahead: opts.Lookahead,
			Method:    opts.Method.String(),
			Workers:   opts.Workers,
			Tolerance: opts.Tolerance,
			Every:     DefaultEvery,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		DataDir: DefaultDataDir,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.Dt <= 0 {
		errs = append(errs, fmt.Errorf("dt must be positive, got %g", c.Dt))
	}
	if c.Steps < 1 {
		errs = append(errs, fmt.Errorf("steps must be at least 1, got %d", c.Steps))
	}
	if c.InitNoise < 0 {
		errs = append(errs, fmt.Errorf("init_noise must not be negative, got %g", c.InitNoise))
	}
	if c.Jacobian.Every < 0 {
		errs = append(errs, fmt.Errorf("jacobian.every must not be negative, got %d", c.Jacobian.Every))
	}
	if c.Jacobian.Epsilon < 0 {
		errs = append(errs, fmt.Errorf("jacobian.epsilon must not be negative, got %g", c.Jacobian.Epsilon))
	}
	if c.Jacobian.Lookahead < 0 || c.Jacobian.Workers < 0 || c.Jacobian.WarmupPasses < 0 {
		errs = append(errs, errors.New("jacobian lookahead, workers and warmup_passes must not be negative"))
	}
	if _, err := jacobian.ParseMethod(c.Jacobian.Method); err != nil {
		errs = append(errs, err)
	}
	if _, err := jacobian.ParseClosedLoop(c.Jacobian.ClosedLoop); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// JacobianOptions converts the jacobian section. The closed-loop controller
// is left for the caller to attach.
func (c *Config) JacobianOptions() (jacobian.Options, error) {
	method, err := jacobian.ParseMethod(c.Jacobian.Method)
	if err != nil {
		return jacobian.Options{}, err
	}
	closedLoop, err := jacobian.ParseClosedLoop(c.Jacobian.ClosedLoop)
	if err != nil {
		return jacobian.Options{}, err
	}
	return jacobian.Options{
		Epsilon:           c.Jacobian.Epsilon,
		Lookahead:         c.Jacobian.Lookahead,
		TestMode:          c.Jacobian.TestMode,
		Tolerance:         c.Jacobian.Tolerance,
		Method:            method,
		ClosedLoop:        closedLoop,
		FirstStepFeedback: c.Jacobian.Feedback,
		Workers:           c.Jacobian.Workers,
		WarmupPasses:      c.Jacobian.WarmupPasses,
	}, nil
}

// Experiment converts c into an experiment configuration.
func (c *Config) Experiment() (experiment.Config, error) {
	opts, err := c.JacobianOptions()
	if err != nil {
		return experiment.Config{}, err
	}
	c = c.Clone()
	return experiment.Config{
		Model:       c.Model,
		Integrator:  c.Integrator,
		Controller:  c.Controller,
		Reward:      c.Reward,
		RewardIndex: c.RewardIndex,
		Dt:          c.Dt,
		Steps:       c.Steps,
		Seed:        c.Seed,
		InitNoise:   c.InitNoise,
		QPos:        c.InitState.QPos,
		QVel:        c.InitState.QVel,
		Ctrl:        c.InitState.Ctrl,
		Params:      c.Params,
		Gains: experiment.Gains{
			Kp:     c.ControllerParams.Kp,
			Kd:     c.ControllerParams.Kd,
			Target: c.ControllerParams.Target,
		},
		Jacobian: opts,
		Every:    c.Jacobian.Every,
	}, nil
}

// Clone returns a deep copy so presets can be modified safely.
func (c *Config) Clone() *Config {
	out := *c
	out.InitState = InitStateConfig{
		QPos: append([]float64(nil), c.InitState.QPos...),
		QVel: append([]float64(nil), c.InitState.QVel...),
		Ctrl: append([]float64(nil), c.InitState.Ctrl...),
	}
	out.ControllerParams.Target = append([]float64(nil), c.ControllerParams.Target...)
	if c.Params != nil {
		out.Params = make(map[string]float64, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	return &out
}
