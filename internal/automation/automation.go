// Package automation runs batches of experiments: scripted scenarios,
// parameter scans and Monte Carlo trials over the initial state.
package automation

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/simgrad/internal/analysis"
	"github.com/san-kum/simgrad/internal/config"
	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/experiment"
	"github.com/san-kum/simgrad/internal/logging"
	"github.com/san-kum/simgrad/internal/storage"
)

// Scenario is a scripted sequence of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one run. It starts from the defaults, or from the preset
// named as "model/preset", and any other key overrides that configuration.
type ScenarioStep struct {
	Name   string
	Config *config.Config
}

func (s *ScenarioStep) UnmarshalYAML(node *yaml.Node) error {
	var head struct {
		Name   string `yaml:"name"`
		Preset string `yaml:"preset"`
	}
	if err := node.Decode(&head); err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	if head.Preset != "" {
		model, name, ok := strings.Cut(head.Preset, "/")
		if !ok {
			return fmt.Errorf("preset %q: want model/preset", head.Preset)
		}
		if cfg = config.GetPreset(model, name); cfg == nil {
			return fmt.Errorf("unknown preset: %s", head.Preset)
		}
	}
	if err := node.Decode(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("step %q: %w", head.Name, err)
	}

	s.Name = head.Name
	if s.Name == "" {
		s.Name = cfg.Model
	}
	s.Config = cfg
	return nil
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", path)
	}
	return &scenario, nil
}

// Outcome is the result of one scenario step. RunID is empty when the
// results were not stored.
type Outcome struct {
	Name   string
	RunID  string
	Result *experiment.Result
}

// RunScenario executes all steps in order and saves each result when st is
// non-nil. It stops at the first failing step and returns the outcomes so
// far.
func RunScenario(ctx context.Context, scenario *Scenario, reg *experiment.Registry, st *storage.Store) ([]Outcome, error) {
	log := logging.New("automation")
	outcomes := make([]Outcome, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		log.Info("scenario step", "scenario", scenario.Name, "step", i+1, "of", len(scenario.Steps), "name", step.Name)

		res, err := run(ctx, step.Config, reg)
		if err != nil {
			return outcomes, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}

		out := Outcome{Name: step.Name, Result: res}
		if st != nil {
			if out.RunID, err = st.Save(Metadata(step.Config), res); err != nil {
				return outcomes, fmt.Errorf("step %d (%s): save: %w", i+1, step.Name, err)
			}
		}
		outcomes = append(outcomes, out)
	}

	return outcomes, nil
}

// Metadata describes cfg for storage.
func Metadata(cfg *config.Config) storage.RunMetadata {
	return storage.RunMetadata{
		Model:      cfg.Model,
		Seed:       cfg.Seed,
		Dt:         cfg.Dt,
		Integrator: cfg.Integrator,
		Controller: cfg.Controller,
		Reward:     cfg.Reward,
		Jacobian: storage.JacobianMetadata{
			Epsilon:    cfg.Jacobian.Epsilon,
			Lookahead:  cfg.Jacobian.Lookahead,
			Method:     cfg.Jacobian.Method,
			ClosedLoop: cfg.Jacobian.ClosedLoop,
			Every:      cfg.Jacobian.Every,
		},
	}
}

func run(ctx context.Context, cfg *config.Config, reg *experiment.Registry) (*experiment.Result, error) {
	ec, err := cfg.Experiment()
	if err != nil {
		return nil, err
	}
	exp := experiment.New(ec, reg)
	for _, m := range reg.DefaultMetrics() {
		exp.AddMetric(m)
	}
	if err := exp.Setup(); err != nil {
		return nil, err
	}
	return exp.Run(ctx)
}

// ParameterSweep scans one plant parameter over an evenly spaced range.
type ParameterSweep struct {
	Base      *config.Config
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
}

// SweepResult holds the outcome at one parameter value. Lyapunov is the
// largest exponent estimated from the run's Jacobians, NaN when the run
// did not differentiate every step.
type SweepResult struct {
	ParamValue float64
	FinalState dynamo.State
	Lyapunov   float64
	Metrics    map[string]float64
}

// RunSweep executes a parameter sweep
func RunSweep(ctx context.Context, sweep *ParameterSweep, reg *experiment.Registry) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one step, got %d", sweep.NumSteps)
	}
	log := logging.New("automation")
	results := make([]SweepResult, 0, sweep.NumSteps)

	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)
	}

	for i := 0; i < sweep.NumSteps; i++ {
		paramVal := sweep.ParamMin + float64(i)*paramStep

		cfg := sweep.Base.Clone()
		if cfg.Params == nil {
			cfg.Params = make(map[string]float64)
		}
		cfg.Params[sweep.ParamName] = paramVal

		res, err := run(ctx, cfg, reg)
		if err != nil {
			return results, fmt.Errorf("%s=%g: %w", sweep.ParamName, paramVal, err)
		}

		results = append(results, SweepResult{
			ParamValue: paramVal,
			FinalState: res.Final,
			Lyapunov:   largestExponent(cfg, res),
			Metrics:    res.Metrics,
		})

		log.Debug("sweep point", "param", sweep.ParamName, "value", paramVal, "index", i+1, "of", sweep.NumSteps)
	}

	return results, nil
}

func largestExponent(cfg *config.Config, res *experiment.Result) float64 {
	if cfg.Jacobian.Every != 1 || res.Skipped > 0 {
		return math.NaN()
	}
	l, err := analysis.LyapunovFromJacobians(res.Jacobians(), cfg.Dt)
	if err != nil {
		return math.NaN()
	}
	return l
}

// MonteCarloConfig repeats Base with Gaussian noise of standard deviation
// Perturbation on the initial velocity, one seed per trial.
type MonteCarloConfig struct {
	Base         *config.Config
	Perturbation float64
	NumTrials    int
	Seed         int64
	// Bound is the largest absolute state entry a stable trial may end
	// with; 0 means 1e6.
	Bound float64
}

// MonteCarloResult holds statistics from Monte Carlo runs
type MonteCarloResult struct {
	TrialID    int
	Seed       int64
	FinalState dynamo.State
	Skipped    int
	Stable     bool
}

// RunMonteCarlo executes the trials in order.
func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, reg *experiment.Registry) ([]MonteCarloResult, error) {
	log := logging.New("automation")
	results := make([]MonteCarloResult, 0, cfg.NumTrials)
	bound := cfg.Bound
	if bound <= 0 {
		bound = 1e6
	}

	for trial := 0; trial < cfg.NumTrials; trial++ {
		c := cfg.Base.Clone()
		c.Seed = cfg.Seed + int64(trial)
		c.InitNoise = cfg.Perturbation

		res, err := run(ctx, c, reg)
		if err != nil {
			return results, fmt.Errorf("trial %d: %w", trial, err)
		}

		results = append(results, MonteCarloResult{
			TrialID:    trial,
			Seed:       c.Seed,
			FinalState: res.Final,
			Skipped:    res.Skipped,
			Stable:     res.Final.MaxAbs() <= bound,
		})

		if (trial+1)%10 == 0 {
			log.Info("monte carlo progress", "done", trial+1, "of", cfg.NumTrials)
		}
	}

	return results, nil
}

// MonteCarloStats computes summary statistics from Monte Carlo results
func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
