// Package optim selects the finite-difference step for a simulator.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/jacobian"
	"github.com/san-kum/simgrad/internal/snapshot"
)

// DefaultCandidates spans the usual range of finite-difference steps.
var DefaultCandidates = []float64{1e-3, 1e-4, 1e-5, 1e-6, 1e-7, 1e-8, 1e-9}

// Trial is one candidate step. Discrepancy is the largest entrywise gap
// between its forward and central Jacobians; Err is set when either
// computation failed.
type Trial struct {
	Epsilon     float64
	Discrepancy float64
	Err         error
}

// EpsilonSweep compares forward and central differences across candidate
// steps and keeps the one on which they agree best. The gap estimates the
// forward truncation error plus roundoff, which is minimized at the best
// step.
type EpsilonSweep struct {
	candidates []float64
	base       jacobian.Options
}

// NewEpsilonSweep uses base for every setting except Epsilon and Method.
func NewEpsilonSweep(candidates []float64, base jacobian.Options) *EpsilonSweep {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	return &EpsilonSweep{candidates: candidates, base: base}
}

// Search evaluates every candidate at snap. Candidates whose rollouts
// diverge are recorded and skipped; an error is returned only when none
// succeeds or ctx is done.
func (s *EpsilonSweep) Search(
	ctx context.Context,
	asm *jacobian.Assembler,
	snap *snapshot.Snapshot,
	nextState dynamo.State,
	reward float64,
) (float64, []Trial, error) {

	best := math.Inf(1)
	bestEps := 0.0
	trials := make([]Trial, 0, len(s.candidates))
	var lastErr error

	for _, eps := range s.candidates {
		if err := ctx.Err(); err != nil {
			return 0, trials, err
		}

		gap, err := s.trial(ctx, asm, snap, nextState, reward, eps)
		trials = append(trials, Trial{Epsilon: eps, Discrepancy: gap, Err: err})
		if err != nil {
			if !errors.Is(err, dynamo.ErrSimulationDivergence) {
				return 0, trials, err
			}
			lastErr = err
			continue
		}

		if gap < best {
			best = gap
			bestEps = eps
		}
	}

	if math.IsInf(best, 1) {
		return 0, trials, fmt.Errorf("optim: every candidate failed: %w", lastErr)
	}
	return bestEps, trials, nil
}

func (s *EpsilonSweep) trial(ctx context.Context, asm *jacobian.Assembler, snap *snapshot.Snapshot, next dynamo.State, reward float64, eps float64) (float64, error) {
	opts := s.base
	opts.Epsilon = eps

	opts.Method = jacobian.Forward
	fwd, err := asm.Compute(ctx, snap, next, reward, opts)
	if err != nil {
		return math.NaN(), err
	}
	opts.Method = jacobian.Central
	ctr, err := asm.Compute(ctx, snap, next, reward, opts)
	if err != nil {
		return math.NaN(), err
	}

	gap := maxAbsDiff(fwd.State, ctr.State)
	gap = math.Max(gap, maxAbsDiff(fwd.Reward, ctr.Reward))
	if fwd.Control != nil {
		gap = math.Max(gap, maxAbsDiff(fwd.Control, ctr.Control))
		gap = math.Max(gap, maxAbsDiff(fwd.RewardControl, ctr.RewardControl))
	}
	return gap, nil
}

func maxAbsDiff(a, b mat.Matrix) float64 {
	var d mat.Dense
	d.Sub(a, b)
	r, c := d.Dims()
	m := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m = math.Max(m, math.Abs(d.At(i, j)))
		}
	}
	return m
}
