package automation

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/san-kum/simgrad/internal/config"
	"github.com/san-kum/simgrad/internal/experiment"
	"github.com/san-kum/simgrad/internal/storage"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const twoSteps = `
name: compare
description: closed loop against open loop
steps:
  - name: balanced
    preset: cartpole/balance
    steps: 20
  - model: pendulum
    steps: 10
    init_state:
      qpos: [0.4]
    jacobian:
      every: 0
`

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, twoSteps))
	if err != nil {
		t.Fatal(err)
	}
	if sc.Name != "compare" || len(sc.Steps) != 2 {
		t.Fatalf("scenario = %+v", sc)
	}

	first := sc.Steps[0]
	if first.Name != "balanced" || first.Config.Controller != "lqr" || first.Config.Steps != 20 {
		t.Errorf("first step = %s %+v", first.Name, first.Config)
	}
	if first.Config.Jacobian.Lookahead != 3 {
		t.Errorf("preset lookahead lost: %d", first.Config.Jacobian.Lookahead)
	}

	second := sc.Steps[1]
	if second.Name != "pendulum" || second.Config.Jacobian.Every != 0 {
		t.Errorf("second step = %s %+v", second.Name, second.Config.Jacobian)
	}
	if second.Config.Dt != config.DefaultDt {
		t.Errorf("default dt lost: %g", second.Config.Dt)
	}
	if diff := cmp.Diff([]float64{0.4}, second.Config.InitState.QPos); diff != "" {
		t.Errorf("qpos (-want +got):\n%s", diff)
	}
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no steps", "name: empty\n"},
		{"bad preset form", "steps:\n  - preset: balance\n"},
		{"unknown preset", "steps:\n  - preset: cartpole/nope\n"},
		{"invalid config", "steps:\n  - model: pendulum\n    dt: -1\n"},
		{"bad yaml", "steps: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadScenario(writeScenario(t, tt.body)); err == nil {
				t.Error("expected an error")
			}
		})
	}
	if _, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestRunScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, twoSteps))
	if err != nil {
		t.Fatal(err)
	}
	st := storage.New(t.TempDir())

	outcomes, err := RunScenario(context.Background(), sc, experiment.NewRegistry(), st)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if n := len(outcomes[0].Result.Jacobians()); n != 20 {
		t.Errorf("balanced run has %d jacobians, want 20", n)
	}
	if n := len(outcomes[1].Result.Jacobians()); n != 0 {
		t.Errorf("every=0 run has %d jacobians", n)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("stored %d runs, want 2", len(runs))
	}
	meta, err := st.Load(outcomes[0].RunID)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Controller != "lqr" || meta.Jacobian.Lookahead != 3 || meta.Steps != 20 {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestRunScenario_StopsAtFailure(t *testing.T) {
	bad := config.DefaultConfig()
	bad.Model = "unicycle"
	sc := &Scenario{Steps: []ScenarioStep{
		{Name: "ok", Config: config.GetPreset("pendulum", "lookahead")},
		{Name: "bad", Config: bad},
	}}
	sc.Steps[0].Config.Steps = 5

	outcomes, err := RunScenario(context.Background(), sc, experiment.NewRegistry(), nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(outcomes) != 1 || outcomes[0].RunID != "" {
		t.Errorf("outcomes = %+v", outcomes)
	}
}

func TestRunSweep(t *testing.T) {
	base := config.DefaultConfig()
	base.Steps = 50
	base.InitState.QPos = []float64{0.5}

	results, err := RunSweep(context.Background(), &ParameterSweep{
		Base:      base,
		ParamName: "length",
		ParamMin:  0.5,
		ParamMax:  2,
		NumSteps:  3,
	}, experiment.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}

	var values []float64
	for _, r := range results {
		values = append(values, r.ParamValue)
		if math.IsNaN(r.Lyapunov) {
			t.Errorf("length %g: no exponent", r.ParamValue)
		}
		if _, ok := r.Metrics["gradient_norm"]; !ok {
			t.Errorf("length %g: metrics = %v", r.ParamValue, r.Metrics)
		}
	}
	if diff := cmp.Diff([]float64{0.5, 1.25, 2}, values); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
	if base.Params != nil {
		t.Error("sweep modified the base config")
	}

	_, err = RunSweep(context.Background(), &ParameterSweep{Base: base, ParamName: "colour", NumSteps: 2}, experiment.NewRegistry())
	if err == nil {
		t.Error("expected an error for an unknown parameter")
	}
}

func TestRunSweep_SparseJacobians(t *testing.T) {
	base := config.DefaultConfig()
	base.Steps = 20
	base.Jacobian.Every = 5

	results, err := RunSweep(context.Background(), &ParameterSweep{Base: base, ParamName: "length", ParamMin: 1, ParamMax: 1, NumSteps: 1}, experiment.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(results[0].Lyapunov) {
		t.Errorf("exponent = %v with every = 5, want NaN", results[0].Lyapunov)
	}
}

func TestRunMonteCarlo(t *testing.T) {
	base := config.DefaultConfig()
	base.Steps = 20
	base.InitState.QPos = []float64{0.3}

	results, err := RunMonteCarlo(context.Background(), &MonteCarloConfig{
		Base:         base,
		Perturbation: 0.1,
		NumTrials:    3,
		Seed:         42,
	}, experiment.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 trials, got %d", len(results))
	}
	stable, unstable := MonteCarloStats(results)
	if stable != 3 || unstable != 0 {
		t.Errorf("stable/unstable = %d/%d", stable, unstable)
	}
	if results[2].Seed != 44 {
		t.Errorf("seed = %d, want 44", results[2].Seed)
	}
	if cmp.Equal(results[0].FinalState, results[1].FinalState) {
		t.Error("trials with different seeds ended in the same state")
	}

	tight := &MonteCarloConfig{Base: base, Perturbation: 0.1, NumTrials: 2, Seed: 1, Bound: 1e-9}
	results, err = RunMonteCarlo(context.Background(), tight, experiment.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	if stable, _ := MonteCarloStats(results); stable != 0 {
		t.Errorf("expected every trial to exceed a tiny bound, %d stable", stable)
	}
}
