package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/automation"
	"github.com/san-kum/simgrad/internal/config"
	"github.com/san-kum/simgrad/internal/experiment"
	"github.com/san-kum/simgrad/internal/jacobian"
	"github.com/san-kum/simgrad/internal/optim"
	"github.com/san-kum/simgrad/internal/physics"
	"github.com/san-kum/simgrad/internal/snapshot"
	"github.com/san-kum/simgrad/internal/storage"
	"github.com/san-kum/simgrad/internal/viz"
)

func setupExperiment(cmd *cobra.Command, args []string) (*config.Config, *experiment.Experiment, error) {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return nil, nil, err
	}
	ec, err := cfg.Experiment()
	if err != nil {
		return nil, nil, err
	}

	reg := experiment.NewRegistry()
	exp := experiment.New(ec, reg)
	for _, m := range reg.DefaultMetrics() {
		exp.AddMetric(m)
	}
	if err := exp.Setup(); err != nil {
		return nil, nil, err
	}
	return cfg, exp, nil
}

func runExperiment(cmd *cobra.Command, args []string) error {
	cfg, exp, err := setupExperiment(cmd, args)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	fmt.Printf("running %s for %d steps...\n", cfg.Model, cfg.Steps)
	start := time.Now()

	result, err := exp.Run(cmd.Context())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	runID, err := st.Save(automation.Metadata(cfg), result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d, jacobians: %d, skipped: %d\n", len(result.Records), len(result.Jacobians()), result.Skipped)
	printMetrics(result.Metrics)
	return nil
}

func printJacobian(cmd *cobra.Command, args []string) error {
	_, exp, err := setupExperiment(cmd, args)
	if err != nil {
		return err
	}

	tr, err := exp.Advance()
	if err != nil {
		return err
	}

	var blocks []namedMatrix
	if accel {
		blocks, err = accelerationBlocks(cmd.Context(), exp.Engine(), tr.Snapshot, exp.JacobianOptions())
		if err != nil {
			return err
		}
	} else {
		js, err := exp.Differentiate(cmd.Context(), tr, exp.JacobianOptions())
		if err != nil {
			return err
		}
		if asJSON {
			return encodeJSON(js)
		}
		blocks = jacobianBlocks(js)
	}

	if asJSON {
		out := make(map[string][][]float64, len(blocks))
		for _, b := range blocks {
			out[b.title] = jacobian.Rows(b.m)
		}
		return encodeJSON(out)
	}

	th := viz.GetTheme(theme)
	for _, b := range blocks {
		fmt.Println(viz.Title.Render(b.title))
		fmt.Println(viz.RenderMatrix(b.m, b.rows, b.cols, th))
		fmt.Println()
	}
	return nil
}

func encodeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type namedMatrix struct {
	title      string
	m          mat.Matrix
	rows, cols []string
}

func jacobianBlocks(js *jacobian.Jacobians) []namedMatrix {
	var out []namedMatrix
	for b := viz.BlockState; b <= viz.BlockRewardControl; b++ {
		m, rows, cols := viz.Pick(js, b)
		if m == nil {
			continue
		}
		out = append(out, namedMatrix{title: b.String(), m: m, rows: rows, cols: cols})
	}
	return out
}

// accelerationBlocks differentiates qacc at snap and, for models with
// nq == nv, the semi-implicit Euler step assembled from it.
func accelerationBlocks(ctx context.Context, e *physics.Engine, snap *snapshot.Snapshot, opts jacobian.Options) ([]namedMatrix, error) {
	aj, err := jacobian.AccelerationJacobians(ctx, e, snap, opts.Epsilon, opts.WarmupPasses)
	if err != nil {
		return nil, err
	}

	m := e.Model()
	rows := make([]string, m.Nv)
	for i := range rows {
		rows[i] = fmt.Sprintf("a%d", i)
	}
	out := []namedMatrix{
		{title: "∂a/∂q", m: aj.Position, rows: rows, cols: viz.StateLabels(m.Nv, 0)},
		{title: "∂a/∂v", m: aj.Velocity, rows: rows, cols: viz.StateLabels(0, m.Nv)},
	}
	if aj.Control != nil {
		out = append(out, namedMatrix{title: "∂a/∂u", m: aj.Control, rows: rows, cols: viz.ControlLabels(m.Nu)})
	}
	if m.Nq != m.Nv {
		return out, nil
	}

	js, err := jacobian.IntegrateAcceleration(e.Dt(), aj, m)
	if err != nil {
		return nil, err
	}
	for _, b := range jacobianBlocks(js) {
		b.title = "integrated " + b.title
		out = append(out, b)
	}
	return out, nil
}

func checkDeterminism(cmd *cobra.Command, args []string) error {
	cfg, exp, err := setupExperiment(cmd, args)
	if err != nil {
		return err
	}

	tr, err := exp.Advance()
	if err != nil {
		return err
	}
	checker := jacobian.NewChecker(cfg.Jacobian.Tolerance)
	if err := checker.Check(cmd.Context(), exp.Engine(), tr.Snapshot, tr.Next, tr.Reward); err != nil {
		return err
	}
	fmt.Printf("%s replays deterministically (tolerance %g)\n", cfg.Model, checker.Tolerance)
	return nil
}

func sweepEpsilon(cmd *cobra.Command, args []string) error {
	_, exp, err := setupExperiment(cmd, args)
	if err != nil {
		return err
	}

	tr, err := exp.Advance()
	if err != nil {
		return err
	}
	sweep := optim.NewEpsilonSweep(nil, exp.JacobianOptions())
	best, trials, err := sweep.Search(cmd.Context(), exp.Assembler(), tr.Snapshot, tr.Next, tr.Reward)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EPSILON\tGAP\tERROR")
	for _, t := range trials {
		msg := ""
		if t.Err != nil {
			msg = t.Err.Error()
		}
		fmt.Fprintf(w, "%.0e\t%.3e\t%s\n", t.Epsilon, t.Discrepancy, msg)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}

	fmt.Printf("\nbest epsilon: %g\n", best)
	return nil
}
