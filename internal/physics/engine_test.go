package physics

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/integrators"
	"github.com/san-kum/simgrad/internal/joint"
	"github.com/san-kum/simgrad/internal/reward"
	"github.com/san-kum/simgrad/internal/snapshot"
)

func plants() []Plant {
	return []Plant{NewPendulum(), NewCartPole(), NewFreeBody(), NewBallPendulum(), NewArm(), NewOscillator()}
}

func newEngine(p Plant) *Engine {
	return NewEngine(p, integrators.NewSemiImplicitEuler(), reward.NewQuadratic(nil, nil, nil), 0.01)
}

// excite puts the engine into a generic state and drives it for a while.
func excite(t *testing.T, e *Engine) {
	t.Helper()
	m := e.Model()
	for i := range e.Data().QVel {
		e.Data().QVel[i] = 0.3 * float64(i+1)
	}
	for i := range e.Data().QfrcApplied {
		e.Data().QfrcApplied[i] = 0.05
	}
	u := make(dynamo.Control, m.Nu)
	for i := range u {
		u[i] = 0.5 - 0.2*float64(i)
	}
	for i := 0; i < 20; i++ {
		if _, _, err := e.Step(u); err != nil {
			t.Fatalf("%s: step %d: %v", e.Plant().Name(), i, err)
		}
	}
}

func roll(e *Engine, n int) ([]dynamo.State, []float64) {
	u := make(dynamo.Control, e.Model().Nu)
	for i := range u {
		u[i] = 0.1
	}
	var xs []dynamo.State
	var rs []float64
	for i := 0; i < n; i++ {
		x, r, err := e.Step(u)
		if err != nil {
			return xs, rs
		}
		xs = append(xs, x)
		rs = append(rs, r)
	}
	return xs, rs
}

func TestRestoreFidelity(t *testing.T) {
	for _, p := range plants() {
		t.Run(p.Name(), func(t *testing.T) {
			e := newEngine(p)
			excite(t, e)

			snap := snapshot.Capture(e)
			wantX, wantR := roll(e, 10)

			for trial := 0; trial < 3; trial++ {
				if err := snapshot.Restore(e, snap); err != nil {
					t.Fatal(err)
				}
				gotX, gotR := roll(e, 10)
				if diff := cmp.Diff(wantX, gotX); diff != "" {
					t.Fatalf("trial %d: states differ (-want +got):\n%s", trial, diff)
				}
				if diff := cmp.Diff(wantR, gotR); diff != "" {
					t.Fatalf("trial %d: rewards differ (-want +got):\n%s", trial, diff)
				}
			}
		})
	}
}

func TestReplicateIsIndependent(t *testing.T) {
	for _, p := range plants() {
		e := newEngine(p)
		excite(t, e)

		r := e.Replicate().(*Engine)
		if diff := cmp.Diff(e.Data(), r.Data()); diff != "" {
			t.Fatalf("%s: replica data differs:\n%s", p.Name(), diff)
		}

		before := e.Data().Clone()
		roll(r, 5)
		if diff := cmp.Diff(before, e.Data()); diff != "" {
			t.Errorf("%s: stepping the replica moved the original:\n%s", p.Name(), diff)
		}
	}
}

func TestForwardDoesNotAdvance(t *testing.T) {
	e := newEngine(NewCartPole())
	excite(t, e)
	before := e.Data().Clone()

	if err := e.Forward(); err != nil {
		t.Fatal(err)
	}
	d := e.Data()
	if d.Time != before.Time || !cmp.Equal(d.QPos, before.QPos) || !cmp.Equal(d.QVel, before.QVel) {
		t.Error("Forward changed time or state")
	}
}

func TestWarmStartReducesIterations(t *testing.T) {
	e := newEngine(NewArm())
	excite(t, e)

	snap := snapshot.Capture(e)
	if err := e.Forward(); err != nil {
		t.Fatal(err)
	}
	warm := e.SolverIterations()

	cold := snap.Clone()
	for i := range cold.QAccWarmstart {
		cold.QAccWarmstart[i] = 0
	}
	if err := snapshot.Restore(e, cold); err != nil {
		t.Fatal(err)
	}
	if err := e.Forward(); err != nil {
		t.Fatal(err)
	}
	if coldIters := e.SolverIterations(); warm >= coldIters {
		t.Errorf("warm start took %d sweeps, cold start %d", warm, coldIters)
	}
}

func TestSolverFailure(t *testing.T) {
	e := newEngine(NewArm())
	excite(t, e)
	e.MaxIter = 1
	e.Data().QAccWarmstart[0] = 100

	_, _, err := e.Step(dynamo.Control{0, 0})
	if !errors.Is(err, ErrSolver) {
		t.Errorf("err = %v, want ErrSolver", err)
	}
}

func TestStepRejectsWrongControl(t *testing.T) {
	e := newEngine(NewPendulum())
	if _, _, err := e.Step(dynamo.Control{1, 2}); !errors.Is(err, dynamo.ErrShapeMismatch) {
		t.Errorf("err = %v, want ErrShapeMismatch", err)
	}
}

func TestLinearMatchesDiscreteModel(t *testing.T) {
	p := NewOscillator()
	e := newEngine(p)
	if err := e.SetState([]float64{0.3, -0.2}, []float64{0.1, 0.4}); err != nil {
		t.Fatal(err)
	}
	x0 := e.Data().State()
	u := dynamo.Control{0.7, -0.3}

	x1, _, err := e.Step(u)
	if err != nil {
		t.Fatal(err)
	}

	a, b := p.Discrete(0.01)
	var want, bu mat.VecDense
	want.MulVec(a, mat.NewVecDense(4, x0))
	bu.MulVec(b, mat.NewVecDense(2, u))
	want.AddVec(&want, &bu)

	for i := range x1 {
		if math.Abs(x1[i]-want.AtVec(i)) > 1e-14 {
			t.Fatalf("x1 = %v, want %v", x1, mat.Formatted(want.T()))
		}
	}
}

func TestFreeBodyHover(t *testing.T) {
	p := NewFreeBody()
	e := newEngine(p)
	hover := dynamo.Control{0, 0, p.BodyMass * p.Gravity}

	for i := 0; i < 100; i++ {
		if _, _, err := e.Step(hover); err != nil {
			t.Fatal(err)
		}
	}
	if z := e.Data().QPos[2]; math.Abs(z) > 1e-12 {
		t.Errorf("hovering body drifted to z = %v", z)
	}

	e.Reset()
	for i := 0; i < 100; i++ {
		e.Step(dynamo.Control{0, 0, 0})
	}
	if z := e.Data().QPos[2]; z >= 0 {
		t.Errorf("unpowered body did not fall, z = %v", z)
	}
	if n := joint.QuatNorm(e.Data().QPos[3:7]); math.Abs(n-1) > 1e-12 {
		t.Errorf("quaternion norm = %v", n)
	}
}

func TestBallPendulumSettles(t *testing.T) {
	e := newEngine(NewBallPendulum())
	joint.IntegrateQuat(e.Data().QPos[0:4], [3]float64{0.6, 0.2, 0}, 1)

	for i := 0; i < 3000; i++ {
		if _, _, err := e.Step(dynamo.Control{0, 0, 0}); err != nil {
			t.Fatal(err)
		}
	}
	// hanging straight down means the body z axis is the world z axis
	z := joint.Rotate(e.Data().QPos[0:4], [3]float64{0, 0, 1})
	if z[2] < 0.99 {
		t.Errorf("bob did not settle below the pivot, body z = %v", z)
	}
}

func TestArmActivationLags(t *testing.T) {
	e := newEngine(NewArm())
	e.Step(dynamo.Control{1, 0})
	if a := e.Data().Act[0]; a <= 0 || a >= 1 {
		t.Errorf("activation after one step = %v, want in (0, 1)", a)
	}
	if e.Data().QAcc[0] != 0 {
		t.Errorf("torque applied before activation rose: qacc = %v", e.Data().QAcc)
	}
}

func TestPendulumEnergyDecays(t *testing.T) {
	p := NewPendulum()
	e := newEngine(p)
	e.SetState([]float64{math.Pi / 4}, []float64{0})
	start := p.Energy(e.Data())
	hold := dynamo.Control{0}
	for i := 0; i < 500; i++ {
		e.Step(hold)
	}
	if end := p.Energy(e.Data()); end >= start {
		t.Errorf("damped pendulum gained energy: %v -> %v", start, end)
	}
}

func TestSetParam(t *testing.T) {
	var c Configurable = NewPendulum()
	if err := c.SetParam("length", 2); err != nil {
		t.Fatal(err)
	}
	if c.GetParams()["length"] != 2 {
		t.Error("SetParam did not take effect")
	}
	if err := c.SetParam("bogus", 1); err == nil {
		t.Error("expected error for unknown param")
	}
}
