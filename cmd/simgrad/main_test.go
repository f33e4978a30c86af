package main

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/san-kum/simgrad/internal/config"
	"github.com/san-kum/simgrad/internal/integrators"
	"github.com/san-kum/simgrad/internal/jacobian"
	"github.com/san-kum/simgrad/internal/physics"
	"github.com/san-kum/simgrad/internal/reward"
	"github.com/san-kum/simgrad/internal/snapshot"
)

func newTestCommand(t *testing.T, argv ...string) *cobra.Command {
	t.Helper()
	preset, configFile = "", ""
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&dataDir, "data", config.DefaultDataDir, "")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "")
	addSimFlags(cmd)
	addJacobianFlags(cmd)
	if err := cmd.ParseFlags(argv); err != nil {
		t.Fatal(err)
	}
	return cmd
}

func TestResolveConfig(t *testing.T) {
	tests := []struct {
		name  string
		argv  []string
		args  []string
		check func(t *testing.T, c *config.Config)
	}{
		{
			name: "defaults with model",
			args: []string{"cartpole"},
			check: func(t *testing.T, c *config.Config) {
				if c.Model != "cartpole" || c.Steps != config.DefaultSteps || c.Jacobian.Lookahead != 1 {
					t.Errorf("config = %+v", c)
				}
			},
		},
		{
			name: "preset with flag override",
			argv: []string{"--preset", "balance", "--lookahead", "5", "--method", "central"},
			args: []string{"cartpole"},
			check: func(t *testing.T, c *config.Config) {
				if c.Controller != "lqr" || c.Jacobian.Lookahead != 5 || c.Jacobian.Method != "central" {
					t.Errorf("config = %+v", c.Jacobian)
				}
				if !c.Jacobian.Feedback {
					t.Error("preset feedback lost")
				}
			},
		},
		{
			name: "unchanged flags keep preset values",
			argv: []string{"--preset", "reach"},
			args: []string{"arm"},
			check: func(t *testing.T, c *config.Config) {
				if c.Jacobian.WarmupPasses != 2 || c.Controller != "pd" {
					t.Errorf("config = %+v", c)
				}
			},
		},
		{
			name: "test mode tolerance",
			argv: []string{"--test-mode", "--tolerance", "1e-7"},
			args: []string{"pendulum"},
			check: func(t *testing.T, c *config.Config) {
				if !c.Jacobian.TestMode || c.Jacobian.Tolerance != 1e-7 {
					t.Errorf("config = %+v", c.Jacobian)
				}
				opts, err := c.JacobianOptions()
				if err != nil || opts.Tolerance != 1e-7 {
					t.Errorf("options tolerance = %v, %v", opts.Tolerance, err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newTestCommand(t, tt.argv...)
			cfg, err := resolveConfig(cmd, tt.args)
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestResolveConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		args []string
	}{
		{"preset without model", []string{"--preset", "small"}, nil},
		{"unknown preset", []string{"--preset", "nope"}, []string{"pendulum"}},
		{"invalid flag value", []string{"--closed-loop", "sometimes"}, []string{"pendulum"}},
		{"missing config file", []string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := resolveConfig(newTestCommand(t, tt.argv...), tt.args); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestResolveConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	file := config.GetPreset("linear", "oscillator")
	file.DataDir = filepath.Join(t.TempDir(), "runs")
	if err := config.Save(path, file); err != nil {
		t.Fatal(err)
	}

	cfg, err := resolveConfig(newTestCommand(t, "--config", path, "--steps", "7"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model != "linear" || cfg.Steps != 7 || cfg.Jacobian.Method != "central" {
		t.Errorf("config = %+v", cfg)
	}
	if dataDir != file.DataDir {
		t.Errorf("data dir = %s, want %s", dataDir, file.DataDir)
	}
}

func TestColumns(t *testing.T) {
	got := columns([][]float64{{1, 2}, {3, 4}, {5, 6}})
	if diff := cmp.Diff([][]float64{{1, 3, 5}, {2, 4, 6}}, got); diff != "" {
		t.Errorf("columns (-want +got):\n%s", diff)
	}
	if columns(nil) != nil {
		t.Error("expected nil for no rows")
	}
}

func TestFormatFloats(t *testing.T) {
	if got := formatFloats([]float64{0.5, math.Inf(-1)}); got != "[0.5 -inf]" {
		t.Errorf("formatFloats = %q", got)
	}
}

func TestAccelerationBlocks(t *testing.T) {
	const dt = 0.01
	titles := func(blocks []namedMatrix) []string {
		var out []string
		for _, b := range blocks {
			out = append(out, b.title)
		}
		return out
	}

	t.Run("pendulum", func(t *testing.T) {
		e := physics.NewEngine(physics.NewPendulum(), integrators.NewSemiImplicitEuler(), reward.Zero{}, dt)
		if err := e.SetState([]float64{0.5}, []float64{0.2}); err != nil {
			t.Fatal(err)
		}
		e.Data().Ctrl[0] = 0.3

		blocks, err := accelerationBlocks(context.Background(), e, snapshot.Capture(e), jacobian.Options{Epsilon: 1e-6})
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"∂a/∂q", "∂a/∂v", "∂a/∂u", "integrated ∂x'/∂x", "integrated ∂x'/∂u"}
		if diff := cmp.Diff(want, titles(blocks)); diff != "" {
			t.Fatalf("blocks (-want +got):\n%s", diff)
		}
		// v' = v + dt·a, so dv'/dq = dt·da/dq.
		if got, want := blocks[3].m.At(1, 0), dt*blocks[0].m.At(0, 0); math.Abs(got-want) > 1e-12 {
			t.Errorf("integrated dv'/dq = %v, want %v", got, want)
		}
		if a := blocks[0].m.At(0, 0); a >= 0 {
			t.Errorf("gravity should pull back toward the bottom, da/dq = %v", a)
		}
	})

	t.Run("quaternion model stops at accelerations", func(t *testing.T) {
		e := physics.NewEngine(physics.NewFreeBody(), integrators.NewSemiImplicitEuler(), reward.Zero{}, dt)
		blocks, err := accelerationBlocks(context.Background(), e, snapshot.Capture(e), jacobian.Options{})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"∂a/∂q", "∂a/∂v", "∂a/∂u"}, titles(blocks)); diff != "" {
			t.Fatalf("blocks (-want +got):\n%s", diff)
		}
		if r, c := blocks[0].m.Dims(); r != 6 || c != 6 {
			t.Errorf("∂a/∂q is %dx%d, want 6x6", r, c)
		}
	})
}
