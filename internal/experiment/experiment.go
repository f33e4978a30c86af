// Package experiment drives a forward rollout of a registered model and
// differentiates it step by step.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/jacobian"
	"github.com/san-kum/simgrad/internal/logging"
	"github.com/san-kum/simgrad/internal/metrics"
	"github.com/san-kum/simgrad/internal/physics"
	"github.com/san-kum/simgrad/internal/snapshot"
)

type Config struct {
	Model       string
	Integrator  string
	Controller  string
	Reward      string
	RewardIndex int
	Dt          float64
	Steps       int
	Seed        int64
	// InitNoise is the standard deviation of Gaussian noise added to the
	// initial qvel, drawn from Seed.
	InitNoise float64
	QPos      []float64
	QVel      []float64
	Ctrl      []float64
	Params    map[string]float64
	Gains     Gains
	Jacobian  jacobian.Options
	// Every computes Jacobians on every n-th step; 0 disables them.
	Every int
}

// StepRecord is one forward step: the state and control it started from,
// the reward it produced and, on differentiated steps, its Jacobians or the
// error that caused them to be skipped.
type StepRecord struct {
	Step      int
	Time      float64
	State     dynamo.State
	Control   dynamo.Control
	Reward    float64
	Jacobians *jacobian.Jacobians
	Err       error
}

type Result struct {
	Model      string
	Nq, Nv, Nu int
	Records    []StepRecord
	Final      dynamo.State
	Skipped    int
	Metrics    map[string]float64
}

// Jacobians returns the computed Jacobians in step order.
func (r *Result) Jacobians() []*jacobian.Jacobians {
	var out []*jacobian.Jacobians
	for _, rec := range r.Records {
		if rec.Jacobians != nil {
			out = append(out, rec.Jacobians)
		}
	}
	return out
}

func (r *Result) Rewards() []float64 {
	out := make([]float64, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec.Reward
	}
	return out
}

type Experiment struct {
	cfg Config
	reg *Registry
	log *slog.Logger

	engine     *physics.Engine
	controller dynamo.Controller
	assembler  *jacobian.Assembler
	metrics    []metrics.Metric
}

func New(cfg Config, reg *Registry) *Experiment {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Experiment{
		cfg: cfg,
		reg: reg,
		log: logging.New("experiment"),
	}
}

// Setup builds the engine, controller and assembler and applies the initial
// state.
func (e *Experiment) Setup() error {
	cfg := e.cfg
	plant, err := e.reg.GetModel(cfg.Model)
	if err != nil {
		return err
	}
	if err := applyParams(plant, cfg.Params); err != nil {
		return err
	}
	integ, err := e.reg.GetIntegrator(cfg.Integrator)
	if err != nil {
		return err
	}
	rew, err := e.reg.GetReward(cfg.Reward, cfg.RewardIndex)
	if err != nil {
		return err
	}
	ctrl, err := e.reg.GetController(cfg.Controller, plant, cfg.Dt, cfg.Gains)
	if err != nil {
		return err
	}

	engine := physics.NewEngine(plant, integ, rew, cfg.Dt)
	if err := e.initialize(engine); err != nil {
		return err
	}

	e.engine = engine
	e.controller = ctrl
	e.assembler = jacobian.NewAssembler(engine)
	return nil
}

func applyParams(p physics.Plant, params map[string]float64) error {
	if len(params) == 0 {
		return nil
	}
	c, ok := p.(physics.Configurable)
	if !ok {
		return fmt.Errorf("model %s has no settable parameters", p.Name())
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := c.SetParam(name, params[name]); err != nil {
			return fmt.Errorf("model %s: %w", p.Name(), err)
		}
	}
	return nil
}

func (e *Experiment) initialize(engine *physics.Engine) error {
	m := engine.Model()
	qpos := m.Neutral()
	if e.cfg.QPos != nil {
		qpos = e.cfg.QPos
	}
	qvel := make([]float64, m.Nv)
	if e.cfg.QVel != nil {
		qvel = append([]float64(nil), e.cfg.QVel...)
	}
	if e.cfg.InitNoise > 0 {
		rng := rand.New(rand.NewSource(e.cfg.Seed))
		for i := range qvel {
			qvel[i] += e.cfg.InitNoise * rng.NormFloat64()
		}
	}
	if err := engine.SetState(qpos, qvel); err != nil {
		return err
	}
	if e.cfg.Ctrl != nil {
		if len(e.cfg.Ctrl) != m.Nu {
			return fmt.Errorf("%w: ctrl: have %d, want %d", dynamo.ErrShapeMismatch, len(e.cfg.Ctrl), m.Nu)
		}
		copy(engine.Data().Ctrl, e.cfg.Ctrl)
	}
	return nil
}

func (e *Experiment) AddMetric(m metrics.Metric) {
	e.metrics = append(e.metrics, m)
}

// Engine returns the simulator built by Setup.
func (e *Experiment) Engine() *physics.Engine { return e.engine }

func (e *Experiment) Controller() dynamo.Controller { return e.controller }

// Run performs the forward rollout. Before every step the control is
// written into the simulator and a snapshot is captured; on differentiated
// steps the snapshot and the observed transition go to the assembler, and
// the post-step state is restored afterwards. Steps whose perturbed
// rollouts diverge are recorded and skipped; any other Jacobian failure
// aborts the run.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	if e.engine == nil {
		return nil, fmt.Errorf("experiment not setup")
	}

	sim := e.engine
	m := sim.Model()
	res := &Result{Model: e.cfg.Model, Nq: m.Nq, Nv: m.Nv, Nu: m.Nu}
	for _, mt := range e.metrics {
		mt.Reset()
	}

	opts := e.JacobianOptions()

	start := time.Now()
	for k := 0; k < e.cfg.Steps; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tr, err := e.Advance()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", k, err)
		}
		snap, u, next, r := tr.Snapshot, tr.Control, tr.Next, tr.Reward

		rec := StepRecord{
			Step:    k,
			Time:    snap.Time,
			State:   snap.State(),
			Control: u.Clone(),
			Reward:  r,
		}
		skipped := false
		if e.cfg.Every > 0 && k%e.cfg.Every == 0 {
			js, err := e.differentiate(ctx, snap, next, r, opts)
			switch {
			case err == nil:
				rec.Jacobians = js
			case errors.Is(err, dynamo.ErrSimulationDivergence):
				rec.Err = err
				res.Skipped++
				skipped = true
				e.log.Warn("skipping jacobian", "step", k, "time", snap.Time, "error", err)
			default:
				return nil, fmt.Errorf("step %d: %w", k, err)
			}
		}

		sample := metrics.Sample{
			Time:      rec.Time,
			State:     rec.State,
			Control:   rec.Control,
			Reward:    r,
			Jacobians: rec.Jacobians,
			Skipped:   skipped,
		}
		for _, mt := range e.metrics {
			mt.Observe(sample)
		}
		res.Records = append(res.Records, rec)
	}

	res.Final = sim.Data().State()
	res.Metrics = metrics.Collect(e.metrics)
	e.log.Info("run complete",
		"model", e.cfg.Model,
		"steps", len(res.Records),
		"jacobians", len(res.Jacobians()),
		"skipped", res.Skipped,
		"elapsed", time.Since(start))
	return res, nil
}

// Transition is one controlled step: the snapshot it started from, the
// control applied and what the simulator returned.
type Transition struct {
	Snapshot *snapshot.Snapshot
	Control  dynamo.Control
	Next     dynamo.State
	Reward   float64
}

// Advance writes the controller's output (or the held control) into the
// simulator, captures a snapshot and steps once.
func (e *Experiment) Advance() (*Transition, error) {
	if e.engine == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	sim := e.engine
	nu := sim.Model().Nu

	d := sim.Data()
	u := dynamo.Control(d.Ctrl).Clone()
	if e.controller != nil {
		if c := e.controller.Compute(d.State(), d.Time); c != nil {
			u = c
		}
	}
	if len(u) != nu {
		return nil, fmt.Errorf("%w: controller returned %d controls, want %d",
			dynamo.ErrShapeMismatch, len(u), nu)
	}
	copy(d.Ctrl, u)
	snap := snapshot.Capture(sim)

	next, r, err := sim.Step(u)
	if err != nil {
		return nil, err
	}
	return &Transition{Snapshot: snap, Control: u.Clone(), Next: next, Reward: r}, nil
}

// JacobianOptions returns the configured options with the experiment's
// controller attached for closed-loop lookahead.
func (e *Experiment) JacobianOptions() jacobian.Options {
	opts := e.cfg.Jacobian
	if opts.Controller == nil {
		opts.Controller = e.controller
	}
	return opts
}

// Differentiate computes the Jacobians of tr and leaves the simulator in
// its current state.
func (e *Experiment) Differentiate(ctx context.Context, tr *Transition, opts jacobian.Options) (*jacobian.Jacobians, error) {
	return e.differentiate(ctx, tr.Snapshot, tr.Next, tr.Reward, opts)
}

func (e *Experiment) Assembler() *jacobian.Assembler { return e.assembler }

func (e *Experiment) differentiate(ctx context.Context, snap *snapshot.Snapshot, next dynamo.State, r float64, opts jacobian.Options) (*jacobian.Jacobians, error) {
	post := snapshot.Capture(e.engine)
	js, err := e.assembler.Compute(ctx, snap, next, r, opts)
	if rerr := snapshot.Restore(e.engine, post); rerr != nil {
		return nil, rerr
	}
	return js, err
}
