package jacobian

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/joint"
	"github.com/san-kum/simgrad/internal/logging"
	"github.com/san-kum/simgrad/internal/perturb"
	"github.com/san-kum/simgrad/internal/rollout"
	"github.com/san-kum/simgrad/internal/snapshot"
)

type Method int

const (
	// Forward uses (f(x+ε) − f(x)) / ε.
	Forward Method = iota
	// Central uses (f(x+ε) − f(x−ε)) / 2ε at twice the rollouts.
	Central
)

func (m Method) String() string {
	switch m {
	case Forward:
		return "forward"
	case Central:
		return "central"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// ParseMethod accepts "forward" and "central"; the empty string means Forward.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "", "forward":
		return Forward, nil
	case "central":
		return Central, nil
	default:
		return 0, fmt.Errorf("jacobian: unknown method %q", s)
	}
}

// ClosedLoop selects which rollouts re-evaluate Options.Controller during
// the lookahead. It has no effect without a controller.
type ClosedLoop int

const (
	// ClosedLoopUniform recomputes the control after the first step in every
	// rollout, the center included.
	ClosedLoopUniform ClosedLoop = iota
	// ClosedLoopStateChannels recomputes only in velocity and position
	// columns; the center and control columns hold the captured control.
	ClosedLoopStateChannels
	// ClosedLoopOff holds the captured control for the whole lookahead.
	ClosedLoopOff
)

func (c ClosedLoop) String() string {
	switch c {
	case ClosedLoopUniform:
		return "uniform"
	case ClosedLoopStateChannels:
		return "state"
	case ClosedLoopOff:
		return "off"
	default:
		return fmt.Sprintf("closedloop(%d)", int(c))
	}
}

func ParseClosedLoop(s string) (ClosedLoop, error) {
	switch strings.ToLower(s) {
	case "", "uniform":
		return ClosedLoopUniform, nil
	case "state", "state_channels":
		return ClosedLoopStateChannels, nil
	case "off", "none":
		return ClosedLoopOff, nil
	default:
		return 0, fmt.Errorf("jacobian: unknown closed-loop policy %q", s)
	}
}

type Options struct {
	// Epsilon is the fixed perturbation magnitude. It is never adapted.
	Epsilon float64
	// Lookahead is the number of steps each rollout advances.
	Lookahead int
	// TestMode replays the snapshot once and fails with
	// ErrTrajectoryDivergence unless it reproduces nextState and reward.
	TestMode bool
	// Tolerance is the absolute tolerance of the TestMode comparison.
	Tolerance float64
	Method    Method

	ClosedLoop ClosedLoop
	Controller dynamo.Controller
	// FirstStepFeedback lets velocity and position columns feed the
	// perturbation through the controller on the first step as well.
	FirstStepFeedback bool

	// Workers bounds the number of columns evaluated at once.
	Workers int
	// Order is an optional permutation of the nu+nv+nq columns, indexed in
	// ctrl, qvel, qpos order, fixing the evaluation sequence.
	Order []int
	// WarmupPasses runs extra forward solves at the snapshot to refine
	// qacc_warmstart before differencing. Requires a dynamo.Forwarder.
	WarmupPasses int
}

func DefaultOptions() Options {
	return Options{
		Epsilon:   1e-6,
		Lookahead: 1,
		Tolerance: 1e-9,
		Workers:   1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Epsilon == 0 {
		o.Epsilon = d.Epsilon
	}
	if o.Lookahead == 0 {
		o.Lookahead = d.Lookahead
	}
	if o.Tolerance == 0 {
		o.Tolerance = d.Tolerance
	}
	if o.Workers == 0 {
		o.Workers = d.Workers
	}
	return o
}

func (o Options) validate(columns int) error {
	switch {
	case o.Epsilon <= 0 || math.IsNaN(o.Epsilon) || math.IsInf(o.Epsilon, 0):
		return fmt.Errorf("jacobian: epsilon must be positive and finite, got %g", o.Epsilon)
	case o.Lookahead < 1:
		return fmt.Errorf("jacobian: lookahead must be at least 1, got %d", o.Lookahead)
	case o.Workers < 1:
		return fmt.Errorf("jacobian: workers must be at least 1, got %d", o.Workers)
	case o.WarmupPasses < 0:
		return fmt.Errorf("jacobian: negative warmup passes %d", o.WarmupPasses)
	case o.Method != Forward && o.Method != Central:
		return fmt.Errorf("jacobian: unknown method %v", o.Method)
	}

	if o.Order == nil {
		return nil
	}
	if len(o.Order) != columns {
		return fmt.Errorf("%w: order has %d entries, want %d", dynamo.ErrIndexOutOfRange, len(o.Order), columns)
	}
	seen := make([]bool, columns)
	for _, c := range o.Order {
		if c < 0 || c >= columns || seen[c] {
			return fmt.Errorf("%w: order is not a permutation of %d columns", dynamo.ErrIndexOutOfRange, columns)
		}
		seen[c] = true
	}
	return nil
}

// Assembler computes finite-difference Jacobians of a simulator around
// snapshots. It is not safe for concurrent use; parallelism happens inside
// Compute over replicas of the simulator.
type Assembler struct {
	sim  dynamo.Simulator
	exec *rollout.Executor
	log  *slog.Logger

	arena    *dynamo.Arena
	workers  int
	baseline *snapshot.Snapshot
}

func NewAssembler(sim dynamo.Simulator) *Assembler {
	return &Assembler{
		sim:  sim,
		exec: rollout.New(),
		log:  logging.New("jacobian"),
	}
}

type column struct {
	ch    perturb.Channel
	index int
}

type outcome struct {
	dx []float64
	dr float64
}

// Compute differentiates the transition that starts at snap. nextState and
// reward are the forward pass's observation of that transition; they are
// only read in TestMode. On any failure the result is nil. On return the
// simulator holds the snapshot (refined by warmup passes, if any).
func (a *Assembler) Compute(ctx context.Context, snap *snapshot.Snapshot, nextState dynamo.State, reward float64, opts Options) (*Jacobians, error) {
	start := time.Now()
	m := a.sim.Model()
	cols := columns(m)

	opts = opts.withDefaults()
	if err := opts.validate(len(cols)); err != nil {
		return nil, err
	}
	if err := snapshot.Restore(a.sim, snap); err != nil {
		return nil, err
	}

	if opts.TestMode {
		if err := NewChecker(opts.Tolerance).Check(ctx, a.sim, snap, nextState, reward); err != nil {
			return nil, err
		}
	}

	base := snap
	if opts.WarmupPasses > 0 {
		var err error
		if base, err = warmup(a.sim, snap, opts.WarmupPasses); err != nil {
			return nil, err
		}
	}

	arena := a.arenaFor(base, opts.Workers)

	center, err := a.run(ctx, arena, base, base, column{index: -1}, opts, 0)
	if err != nil {
		return nil, err
	}

	if opts.Order != nil {
		ordered := make([]column, len(cols))
		for i, c := range opts.Order {
			ordered[i] = cols[c]
		}
		cols = ordered
	}

	out := make([]outcome, len(cols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(arena.Size())
	for i, c := range cols {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := a.difference(gctx, arena, base, c, center, opts)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.log.Debug("jacobian failed", "time", snap.Time, "error", err)
		return nil, err
	}

	j := assemble(m, cols, out)
	a.log.Debug("jacobian computed",
		"time", snap.Time,
		"columns", len(cols),
		"workers", arena.Size(),
		"method", opts.Method,
		"lookahead", opts.Lookahead,
		"elapsed", time.Since(start))
	return j, nil
}

// columns lists every column in canonical ctrl, qvel, qpos order.
func columns(m *joint.Model) []column {
	var cols []column
	for _, ch := range []perturb.Channel{perturb.Control, perturb.Velocity, perturb.Position} {
		for i := 0; i < ch.Len(m); i++ {
			cols = append(cols, column{ch: ch, index: i})
		}
	}
	return cols
}

func (a *Assembler) arenaFor(base *snapshot.Snapshot, workers int) *dynamo.Arena {
	a.baseline = base
	if a.arena == nil || a.workers != workers {
		a.arena = dynamo.NewArena(a.sim, workers, func(s dynamo.Simulator) error {
			return snapshot.Restore(s, a.baseline)
		})
		a.workers = workers
	}
	return a.arena
}

func (a *Assembler) difference(ctx context.Context, arena *dynamo.Arena, base *snapshot.Snapshot, c column, center outcome, opts Options) (outcome, error) {
	if c.ch == perturb.Position {
		if _, ok := a.sim.Model().Rule(c.index).(joint.Inert); ok {
			return outcome{dx: make([]float64, len(center.dx))}, nil
		}
	}

	plus, err := a.run(ctx, arena, base, nil, c, opts, opts.Epsilon)
	if err != nil {
		return outcome{}, err
	}

	ref, scale := center, opts.Epsilon
	if opts.Method == Central {
		if ref, err = a.run(ctx, arena, base, nil, c, opts, -opts.Epsilon); err != nil {
			return outcome{}, err
		}
		scale = 2 * opts.Epsilon
	}

	floats.Sub(plus.dx, ref.dx)
	floats.Scale(1/scale, plus.dx)
	return outcome{dx: plus.dx, dr: (plus.dr - ref.dr) / scale}, nil
}

// run performs one rollout on a leased replica. With start nil the
// snapshot is base perturbed by eps along c.
func (a *Assembler) run(ctx context.Context, arena *dynamo.Arena, base, start *snapshot.Snapshot, c column, opts Options, eps float64) (res outcome, err error) {
	if start == nil {
		if start, err = perturb.Apply(a.sim.Model(), base, c.ch, c.index, eps); err != nil {
			return outcome{}, err
		}
	}

	lease, err := arena.Acquire(ctx)
	if err != nil {
		return outcome{}, err
	}
	defer func() {
		if rerr := lease.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	x, r, err := a.exec.Run(ctx, lease.Sim(), start, a.plan(base, c, opts))
	if err != nil {
		a.log.Debug("rollout failed", "worker", lease.Worker(), "channel", c.ch, "index", c.index, "error", err)
		return outcome{}, err
	}
	return outcome{dx: x, dr: r}, nil
}

func (a *Assembler) plan(base *snapshot.Snapshot, c column, opts Options) rollout.Plan {
	p := rollout.Plan{Steps: opts.Lookahead}
	if c.index >= 0 {
		p.Channel, p.Index = c.ch.String(), c.index
	}
	if opts.Controller == nil || opts.ClosedLoop == ClosedLoopOff {
		return p
	}

	state := c.index >= 0 && c.ch.IsState()
	if opts.ClosedLoop == ClosedLoopStateChannels && !state {
		return p
	}
	p.Controller = opts.Controller
	p.Recompute = true
	if state && opts.FirstStepFeedback {
		p.Baseline = base.State()
	}
	return p
}

// assemble places each column's outcome into the qpos block, the qvel block
// or the control matrix.
func assemble(m *joint.Model, cols []column, out []outcome) *Jacobians {
	j := newJacobians(m.Nq, m.Nv, m.Nu)
	for i, c := range cols {
		res := out[i]
		switch c.ch {
		case perturb.Control:
			j.Control.SetCol(c.index, res.dx)
			j.RewardControl.Set(0, c.index, res.dr)
		case perturb.Position:
			j.State.SetCol(c.index, res.dx)
			j.Reward.Set(0, c.index, res.dr)
		case perturb.Velocity:
			j.State.SetCol(m.Nq+c.index, res.dx)
			j.Reward.Set(0, m.Nq+c.index, res.dr)
		}
	}
	return j
}

func warmup(sim dynamo.Simulator, snap *snapshot.Snapshot, passes int) (*snapshot.Snapshot, error) {
	f, ok := sim.(dynamo.Forwarder)
	if !ok {
		return nil, errors.New("jacobian: warmup passes need a simulator implementing Forward")
	}
	if err := snapshot.Restore(sim, snap); err != nil {
		return nil, err
	}

	d := sim.Data()
	for i := 0; i < passes; i++ {
		if err := f.Forward(); err != nil {
			return nil, &dynamo.SimulationError{
				Step:    i,
				Time:    d.Time,
				Channel: "warmup",
				Wrapped: fmt.Errorf("%w: %v", dynamo.ErrSimulationDivergence, err),
			}
		}
		copy(d.QAccWarmstart, d.QAcc)
	}
	return snapshot.Capture(sim), nil
}
