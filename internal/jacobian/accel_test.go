package jacobian

import (
	"context"
	"errors"
	"testing"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/physics"
)

func TestAccelerationJacobians_Linear(t *testing.T) {
	e, p := oscillator(t)
	tr := step(t, e, dynamo.Control{0.3, -0.6})

	aj, err := AccelerationJacobians(context.Background(), e, tr.snap, 1e-6, 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []struct {
		name      string
		got, want interface{ At(i, j int) float64 }
	}{
		{"position", aj.Position, p.Kq},
		{"velocity", aj.Velocity, p.Kv},
		{"control", aj.Control, p.B},
	} {
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				if d := c.got.At(i, j) - c.want.At(i, j); d > 1e-7 || d < -1e-7 {
					t.Errorf("%s[%d,%d] = %v, want %v", c.name, i, j, c.got.At(i, j), c.want.At(i, j))
				}
			}
		}
	}

	j, err := IntegrateAcceleration(dt, aj, e.Model())
	if err != nil {
		t.Fatal(err)
	}
	a, b := p.Discrete(dt)
	if d := maxAbsDiff(j.State, a); d > 1e-7 {
		t.Errorf("integrated state Jacobian off by %g", d)
	}
	if d := maxAbsDiff(j.Control, b); d > 1e-7 {
		t.Errorf("integrated control Jacobian off by %g", d)
	}
}

func TestAccelerationJacobians_AgreesWithStepDifferencing(t *testing.T) {
	e := engine(physics.NewCartPole())
	e.SetState([]float64{0.1, 0.3}, []float64{-0.2, 0.4})
	tr := step(t, e, dynamo.Control{1.5})
	ctx := context.Background()

	aj, err := AccelerationJacobians(ctx, e, tr.snap, 1e-6, 3)
	if err != nil {
		t.Fatal(err)
	}
	viaAccel, err := IntegrateAcceleration(dt, aj, e.Model())
	if err != nil {
		t.Fatal(err)
	}
	direct, err := NewAssembler(e).Compute(ctx, tr.snap, tr.next, tr.reward, Options{})
	if err != nil {
		t.Fatal(err)
	}
	// qacc already includes the implicit damping, so both routes
	// differentiate the same map
	if d := maxAbsDiff(viaAccel.State, direct.State); d > 1e-5 {
		t.Errorf("acceleration route differs by %g", d)
	}
}

func TestAccelerationJacobians_Quaternion(t *testing.T) {
	e, tr := tumbling(t)
	aj, err := AccelerationJacobians(context.Background(), e, tr.snap, 1e-6, 0)
	if err != nil {
		t.Fatal(err)
	}
	if r, c := aj.Position.Dims(); r != 6 || c != 6 {
		t.Errorf("position block is %dx%d, want 6x6", r, c)
	}
	if _, err := IntegrateAcceleration(dt, aj, e.Model()); !errors.Is(err, dynamo.ErrShapeMismatch) {
		t.Errorf("err = %v, want ErrShapeMismatch for nq != nv", err)
	}
}

func TestAccelerationJacobians_NeedsForward(t *testing.T) {
	e, _ := oscillator(t)
	frag := &fragile{eng: e, index: 0}
	tr := step(t, frag, dynamo.Control{0, 0})
	if _, err := AccelerationJacobians(context.Background(), frag, tr.snap, 1e-6, 0); err == nil {
		t.Error("expected an error for a simulator without Forward")
	}
}
