package jacobian

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/integrators"
	"github.com/san-kum/simgrad/internal/joint"
	"github.com/san-kum/simgrad/internal/physics"
	"github.com/san-kum/simgrad/internal/reward"
	"github.com/san-kum/simgrad/internal/snapshot"
)

const dt = 0.01

func engine(p physics.Plant) *physics.Engine {
	return physics.NewEngine(p, integrators.NewSemiImplicitEuler(), reward.NewQuadratic(nil, []float64{0.1, 0.1, 0.1}, nil), dt)
}

// tb is the part of testing.TB that GinkgoT also provides.
type tb interface {
	Helper()
	Fatal(args ...any)
	Fatalf(format string, args ...any)
}

// transition records one forward step the way a driver would: the control
// is written before the snapshot so the snapshot reproduces the step.
type transition struct {
	snap   *snapshot.Snapshot
	next   dynamo.State
	reward float64
}

func step(t tb, sim dynamo.Simulator, u dynamo.Control) transition {
	t.Helper()
	copy(sim.Data().Ctrl, u)
	snap := snapshot.Capture(sim)
	next, r, err := sim.Step(u)
	if err != nil {
		t.Fatalf("forward step: %v", err)
	}
	return transition{snap: snap, next: next, reward: r}
}

// tumbling is a free body with a non-trivial orientation and spin.
func tumbling(t tb) (*physics.Engine, transition) {
	t.Helper()
	e := engine(physics.NewFreeBody())
	joint.IntegrateQuat(e.Data().QPos[3:7], [3]float64{0.3, -0.7, 1.1}, 1)
	copy(e.Data().QVel, []float64{0.2, -0.1, 0.4, 1.5, -0.8, 0.6})
	for i := 0; i < 5; i++ {
		step(t, e, dynamo.Control{0.5, -0.2, 9})
	}
	return e, step(t, e, dynamo.Control{0.5, -0.2, 9})
}

// oscillator returns the linear plant in a generic state.
func oscillator(t tb) (*physics.Engine, *physics.Linear) {
	t.Helper()
	p := physics.NewOscillator()
	e := engine(p)
	if err := e.SetState([]float64{0.4, -0.3}, []float64{0.2, 0.5}); err != nil {
		t.Fatal(err)
	}
	return e, p
}

func maxAbsDiff(a, b mat.Matrix) float64 {
	r, c := a.Dims()
	d := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d = math.Max(d, math.Abs(a.At(i, j)-b.At(i, j)))
		}
	}
	return d
}

// fragile wraps an engine and reports NaN whenever ctrl[index] leaves its
// captured value. It deliberately does not implement dynamo.Replicator.
type fragile struct {
	eng   *physics.Engine
	index int
	value float64
}

func (f *fragile) Model() *joint.Model { return f.eng.Model() }
func (f *fragile) Data() *dynamo.Data  { return f.eng.Data() }

func (f *fragile) Step(u dynamo.Control) (dynamo.State, float64, error) {
	x, r, err := f.eng.Step(u)
	if err == nil && u[f.index] != f.value {
		x[0] = math.NaN()
	}
	return x, r, err
}

type linearFeedback struct {
	k *mat.Dense
}

func (l linearFeedback) Compute(x dynamo.State, t float64) dynamo.Control {
	var u mat.VecDense
	u.MulVec(l.k, mat.NewVecDense(len(x), x))
	out := make(dynamo.Control, u.Len())
	for i := range out {
		out[i] = -u.AtVec(i)
	}
	return out
}
