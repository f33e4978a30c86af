package jacobian

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/rollout"
	"github.com/san-kum/simgrad/internal/snapshot"
)

// Checker replays a snapshot for one step and compares the outcome with
// what the forward pass observed.
type Checker struct {
	Tolerance float64
	exec      *rollout.Executor
}

func NewChecker(tolerance float64) *Checker {
	if tolerance <= 0 {
		tolerance = DefaultOptions().Tolerance
	}
	return &Checker{Tolerance: tolerance, exec: rollout.New()}
}

// Check returns a *dynamo.DivergenceError naming the first element of
// qpos, qvel or the reward that differs by more than the tolerance.
func (c *Checker) Check(ctx context.Context, sim dynamo.Simulator, snap *snapshot.Snapshot, nextState dynamo.State, reward float64) error {
	x, r, err := c.exec.Run(ctx, sim, snap, rollout.Plan{Steps: 1})
	if err != nil {
		return err
	}
	if len(x) != len(nextState) {
		return fmt.Errorf("%w: forward pass state has %d entries, replay has %d",
			dynamo.ErrShapeMismatch, len(nextState), len(x))
	}

	nq := sim.Model().Nq
	for i := range x {
		if c.close(x[i], nextState[i]) {
			continue
		}
		field, idx := "qpos", i
		if i >= nq {
			field, idx = "qvel", i-nq
		}
		return &dynamo.DivergenceError{Field: field, Index: idx, Got: x[i], Want: nextState[i], Time: snap.Time}
	}
	if !c.close(r, reward) {
		return &dynamo.DivergenceError{Field: "reward", Got: r, Want: reward, Time: snap.Time}
	}
	return nil
}

func (c *Checker) close(got, want float64) bool {
	return math.Abs(got-want) <= c.Tolerance
}
