package optim

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/integrators"
	"github.com/san-kum/simgrad/internal/jacobian"
	"github.com/san-kum/simgrad/internal/joint"
	"github.com/san-kum/simgrad/internal/physics"
	"github.com/san-kum/simgrad/internal/reward"
	"github.com/san-kum/simgrad/internal/snapshot"
)

// pushed is a unit mass on a slide whose force fails outside an allowed
// control band around 1.
type pushed struct {
	model *joint.Model
	band  float64
}

func (p *pushed) Name() string                         { return "pushed" }
func (p *pushed) Model() *joint.Model                  { return p.model }
func (p *pushed) Mass(qpos []float64, m *mat.SymDense) { m.SetSym(0, 0, 1) }
func (p *pushed) Damping() []float64                   { return []float64{0} }

func (p *pushed) Force(d *dynamo.Data, f []float64) {
	if math.Abs(d.Ctrl[0]-1) > p.band {
		f[0] = math.NaN()
		return
	}
	f[0] = d.Ctrl[0]
}

type fixture struct {
	asm    *jacobian.Assembler
	snap   *snapshot.Snapshot
	next   dynamo.State
	reward float64
}

func record(t *testing.T, e *physics.Engine, u dynamo.Control) fixture {
	t.Helper()
	copy(e.Data().Ctrl, u)
	snap := snapshot.Capture(e)
	next, r, err := e.Step(u)
	if err != nil {
		t.Fatal(err)
	}
	return fixture{asm: jacobian.NewAssembler(e), snap: snap, next: next, reward: r}
}

func TestEpsilonSweep_Pendulum(t *testing.T) {
	e := physics.NewEngine(physics.NewPendulum(), integrators.NewSemiImplicitEuler(), reward.NewQuadratic(nil, []float64{0.1}, nil), 0.01)
	if err := e.SetState([]float64{0.5}, []float64{0.3}); err != nil {
		t.Fatal(err)
	}
	f := record(t, e, dynamo.Control{0.2})

	best, trials, err := NewEpsilonSweep(nil, jacobian.Options{}).Search(context.Background(), f.asm, f.snap, f.next, f.reward)
	if err != nil {
		t.Fatal(err)
	}
	if len(trials) != len(DefaultCandidates) {
		t.Fatalf("expected %d trials, got %d", len(DefaultCandidates), len(trials))
	}
	if best < 1e-9 || best > 1e-5 {
		t.Errorf("best epsilon %g outside the expected range", best)
	}

	var coarse, chosen float64
	for _, tr := range trials {
		if tr.Err != nil {
			t.Errorf("eps %g failed: %v", tr.Epsilon, tr.Err)
		}
		switch tr.Epsilon {
		case 1e-3:
			coarse = tr.Discrepancy
		case best:
			chosen = tr.Discrepancy
		}
	}
	if coarse <= chosen {
		t.Errorf("coarse step gap %g should exceed the chosen gap %g", coarse, chosen)
	}
}

func TestEpsilonSweep_SkipsDivergentCandidates(t *testing.T) {
	p := &pushed{model: joint.NewModel(1, 0, joint.Joint{Kind: joint.Slide}), band: 5e-5}
	e := physics.NewEngine(p, integrators.NewSemiImplicitEuler(), nil, 0.01)
	f := record(t, e, dynamo.Control{1})

	best, trials, err := NewEpsilonSweep(nil, jacobian.Options{}).Search(context.Background(), f.asm, f.snap, f.next, f.reward)
	if err != nil {
		t.Fatal(err)
	}
	for _, tr := range trials[:2] {
		if !errors.Is(tr.Err, dynamo.ErrSimulationDivergence) {
			t.Errorf("eps %g: err = %v, want divergence", tr.Epsilon, tr.Err)
		}
	}
	if best > 1e-5 {
		t.Errorf("chose divergent epsilon %g", best)
	}
}

func TestEpsilonSweep_AllFail(t *testing.T) {
	p := &pushed{model: joint.NewModel(1, 0, joint.Joint{Kind: joint.Slide}), band: 0}
	e := physics.NewEngine(p, integrators.NewSemiImplicitEuler(), nil, 0.01)
	f := record(t, e, dynamo.Control{1})

	_, trials, err := NewEpsilonSweep([]float64{1e-4, 1e-6}, jacobian.Options{}).Search(context.Background(), f.asm, f.snap, f.next, f.reward)
	if !errors.Is(err, dynamo.ErrSimulationDivergence) {
		t.Errorf("err = %v, want ErrSimulationDivergence", err)
	}
	if len(trials) != 2 {
		t.Errorf("expected 2 trials, got %d", len(trials))
	}
}

func TestEpsilonSweep_Cancelled(t *testing.T) {
	e := physics.NewEngine(physics.NewPendulum(), integrators.NewSemiImplicitEuler(), nil, 0.01)
	f := record(t, e, dynamo.Control{0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := NewEpsilonSweep(nil, jacobian.Options{}).Search(ctx, f.asm, f.snap, f.next, f.reward); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
