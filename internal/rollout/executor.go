// Package rollout advances a simulator from an explicit snapshot and reads
// back the resulting state and reward. It is the only place the engine
// calls Simulator.Step.
package rollout

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/snapshot"
)

// Plan describes one rollout.
type Plan struct {
	// Steps is the lookahead horizon; values below 1 mean 1.
	Steps int

	// Controller is the closed-loop policy, nil for open-loop rollouts where
	// the captured control is held for every step.
	Controller dynamo.Controller

	// Recompute re-evaluates Controller before every step after the first.
	Recompute bool

	// Baseline, when non-nil, is the unperturbed state of the snapshot. The
	// first control then becomes ctrl + π(x_start) − π(Baseline), i.e. the
	// policy's reaction to the perturbation on top of the captured control.
	Baseline dynamo.State

	// Channel and Index label errors.
	Channel string
	Index   int
}

// Executor is stateless; every Run starts from an explicit restore.
type Executor struct{}

func New() *Executor { return &Executor{} }

// Run restores start into sim, advances plan.Steps ticks and returns
// qpos‖qvel and the reward of the final tick.
func (e *Executor) Run(ctx context.Context, sim dynamo.Simulator, start *snapshot.Snapshot, plan Plan) (dynamo.State, float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if err := snapshot.Restore(sim, start); err != nil {
		return nil, 0, err
	}

	steps := plan.Steps
	if steps < 1 {
		steps = 1
	}

	u := start.Control()
	if plan.Controller != nil && plan.Baseline != nil {
		u = adjust(u, plan.Controller, start.State(), plan.Baseline, start.Time)
	}

	var (
		x      dynamo.State
		reward float64
	)
	for i := 0; i < steps; i++ {
		if i > 0 && plan.Recompute && plan.Controller != nil {
			if next := plan.Controller.Compute(x, sim.Data().Time); next != nil {
				u = next
			}
		}

		t := sim.Data().Time
		if nu := sim.Model().Nu; len(u) != nu {
			return nil, 0, e.failed(plan, i, t,
				fmt.Errorf("%w: ctrl: have %d, want %d", dynamo.ErrShapeMismatch, len(u), nu))
		}

		var err error
		x, reward, err = sim.Step(u)
		if err != nil {
			return nil, 0, e.failed(plan, i, t, err)
		}
		if !x.IsValid() || math.IsNaN(reward) || math.IsInf(reward, 0) {
			return nil, 0, e.failed(plan, i, t, errNonFinite)
		}
	}

	return x, reward, nil
}

var errNonFinite = errors.New("non-finite output")

// failed attaches rollout context to cause. Configuration errors keep their
// identity; anything else the simulator reports counts as divergence.
func (e *Executor) failed(plan Plan, step int, t float64, cause error) error {
	wrapped := cause
	switch {
	case errors.Is(cause, dynamo.ErrShapeMismatch),
		errors.Is(cause, dynamo.ErrSimulationDivergence),
		errors.Is(cause, context.Canceled),
		errors.Is(cause, context.DeadlineExceeded):
	default:
		wrapped = fmt.Errorf("%w: %w", dynamo.ErrSimulationDivergence, cause)
	}
	return &dynamo.SimulationError{
		Step:    step,
		Time:    t,
		Channel: plan.Channel,
		Index:   plan.Index,
		Wrapped: wrapped,
	}
}

func adjust(u dynamo.Control, ctrl dynamo.Controller, x, baseline dynamo.State, t float64) dynamo.Control {
	up := ctrl.Compute(x, t)
	u0 := ctrl.Compute(baseline, t)
	if up == nil || u0 == nil {
		return u
	}
	out := u.Clone()
	for i := range out {
		if i < len(up) && i < len(u0) {
			out[i] += up[i] - u0[i]
		}
	}
	return out
}
