package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/simgrad/internal/analysis"
	"github.com/san-kum/simgrad/internal/experiment"
	"github.com/san-kum/simgrad/internal/jacobian"
	"github.com/san-kum/simgrad/internal/storage"
	"github.com/san-kum/simgrad/internal/viz"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tDURATION\tDT\tINTEG\tCTRL\tMETHOD\tSKIPPED")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%s\t%s\t%s\t%d\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration(),
			run.Dt,
			run.Integrator,
			run.Controller,
			run.Jacobian.Method,
			run.Skipped,
		)
	}

	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)

	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	traj, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	records, err := st.LoadJacobians(runID)
	if err != nil {
		return err
	}

	fmt.Println(viz.HeaderStyle.Render(meta.ID))
	fmt.Printf("model: %s (nq=%d nv=%d nu=%d)\n", meta.Model, meta.Nq, meta.Nv, meta.Nu)
	fmt.Printf("steps: %d, dt: %g, integrator: %s, controller: %s\n", meta.Steps, meta.Dt, meta.Integrator, meta.Controller)
	fmt.Printf("jacobian: eps=%g lookahead=%d method=%s closed_loop=%s every=%d\n",
		meta.Jacobian.Epsilon, meta.Jacobian.Lookahead, meta.Jacobian.Method, meta.Jacobian.ClosedLoop, meta.Jacobian.Every)
	printMetrics(meta.Metrics)

	var js []*jacobian.Jacobians
	for _, r := range records {
		if r.Jacobians != nil {
			js = append(js, r.Jacobians)
		}
	}
	if len(js) > 0 {
		// Exponents are only meaningful when every step was differentiated.
		if meta.Jacobian.Every == 1 && meta.Skipped == 0 {
			spectrum, err := analysis.LyapunovSpectrum(js, meta.Dt)
			if err != nil {
				return err
			}
			fmt.Printf("\nlyapunov spectrum: %s\n", formatFloats(spectrum))
		}
		last := js[len(js)-1]
		fmt.Printf("last step condition number: %.4g\n", analysis.Condition(last.State))
		fmt.Printf("last step column norms: %s\n", formatFloats(analysis.ColumnNorms(last.State)))
	}

	if len(traj.Times) > 0 {
		fmt.Println()
		fmt.Println(viz.PlotMany(columns(traj.States()), "state", width, 10))
		fmt.Println()
		fmt.Println(viz.Plot(traj.Rewards, "reward", width, 6))
	}
	if len(records) > 0 {
		if out := viz.Plot(viz.Norms(records), "‖∂x'/∂x‖", width, 6); out != "" {
			fmt.Println()
			fmt.Println(out)
		}
	}
	return nil
}

func inspectRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)

	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	records, err := st.LoadJacobians(runID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.New("run has no jacobians")
	}
	return viz.NewInspector(*meta, records).WithTheme(theme).Run()
}

func listModels(cmd *cobra.Command, args []string) error {
	reg := experiment.NewRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tNQ\tNV\tNU")
	for _, name := range reg.ListModels() {
		p, err := reg.GetModel(name)
		if err != nil {
			return err
		}
		m := p.Model()
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", name, m.Nq, m.Nv, m.Nu)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nintegrators: %v\n", reg.ListIntegrators())
	fmt.Printf("controllers: %v\n", reg.ListControllers())
	fmt.Printf("themes: %v\n", viz.ThemeNames())
	return nil
}

func printMetrics(ms map[string]float64) {
	if len(ms) == 0 {
		return
	}
	names := make([]string, 0, len(ms))
	for name := range ms {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, ms[name])
	}
}

// columns transposes row-major samples into one series per channel.
func columns(rows [][]float64) [][]float64 {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]float64, len(rows[0]))
	for j := range out {
		out[j] = make([]float64, len(rows))
		for i, row := range rows {
			out[j][i] = row[j]
		}
	}
	return out
}

func formatFloats(v []float64) string {
	s := "["
	for i, x := range v {
		if i > 0 {
			s += " "
		}
		if math.IsInf(x, -1) {
			s += "-inf"
			continue
		}
		s += fmt.Sprintf("%.4g", x)
	}
	return s + "]"
}
