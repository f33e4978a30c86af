package dynamo

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/san-kum/simgrad/internal/joint"
)

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		valid bool
	}{
		{"empty", State{}, true},
		{"normal", State{1.0, 2.0, 3.0}, true},
		{"zeros", State{0.0, 0.0}, true},
		{"with NaN", State{1.0, math.NaN()}, false},
		{"with +Inf", State{1.0, math.Inf(1)}, false},
		{"with -Inf", State{1.0, math.Inf(-1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestState_MaxAbs(t *testing.T) {
	tests := []struct {
		state State
		want  float64
	}{
		{State{}, 0},
		{State{1, -4, 3}, 4},
		{State{0.5, math.NaN()}, math.Inf(1)},
		{State{math.Inf(-1)}, math.Inf(1)},
	}
	for _, tt := range tests {
		if got := tt.state.MaxAbs(); got != tt.want {
			t.Errorf("%v.MaxAbs() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestNewData(t *testing.T) {
	m := joint.NewModel(3, 2, joint.Joint{Kind: joint.Ball}, joint.Joint{Kind: joint.Hinge})
	d := NewData(m)

	if len(d.QPos) != 5 || len(d.QVel) != 4 || len(d.Ctrl) != 3 || len(d.Act) != 2 {
		t.Fatalf("buffer sizes = (%d, %d, %d, %d)", len(d.QPos), len(d.QVel), len(d.Ctrl), len(d.Act))
	}
	if d.QPos[0] != 1 {
		t.Errorf("ball quaternion not initialized to identity: %v", d.QPos)
	}

	noAct := NewData(joint.NewModel(1, 0, joint.Joint{Kind: joint.Hinge}))
	if noAct.Act != nil {
		t.Error("expected nil activation for a model without actuator state")
	}
}

func TestData_Clone(t *testing.T) {
	m := joint.NewModel(1, 1, joint.Joint{Kind: joint.Hinge})
	d := NewData(m)
	d.Time, d.QPos[0], d.Act[0] = 2, 0.5, 0.3

	c := d.Clone()
	c.QPos[0] = 9
	c.Act[0] = 9
	if d.QPos[0] != 0.5 || d.Act[0] != 0.3 {
		t.Error("Clone aliases the original buffers")
	}
	if c.Time != 2 {
		t.Errorf("Time = %v, want 2", c.Time)
	}
	if NewData(joint.NewModel(1, 0, joint.Joint{Kind: joint.Slide})).Clone().Act != nil {
		t.Error("Clone allocated activation for a model without one")
	}
}

func TestSimulationError(t *testing.T) {
	err := &SimulationError{Step: 3, Time: 1.5, Channel: "ctrl", Index: 2, Wrapped: ErrSimulationDivergence}
	if !errors.Is(err, ErrSimulationDivergence) {
		t.Error("SimulationError does not unwrap to its sentinel")
	}
	want := "ctrl[2] step 3 (t=1.5000): " + ErrSimulationDivergence.Error()
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	div := &DivergenceError{Field: "reward", Index: 0, Got: 1, Want: 2}
	if !errors.Is(div, ErrTrajectoryDivergence) {
		t.Error("DivergenceError does not unwrap to ErrTrajectoryDivergence")
	}
}

type stubSim struct {
	data *Data
	m    *joint.Model
}

func (s *stubSim) Model() *joint.Model { return s.m }
func (s *stubSim) Data() *Data         { return s.data }
func (s *stubSim) Step(u Control) (State, float64, error) {
	return s.data.State(), 0, nil
}

type replicaSim struct{ stubSim }

func (r *replicaSim) Replicate() Simulator {
	return &replicaSim{stubSim{data: NewData(r.m), m: r.m}}
}

func TestArena_Replicas(t *testing.T) {
	m := joint.NewModel(1, 0, joint.Joint{Kind: joint.Hinge})
	base := &replicaSim{stubSim{data: NewData(m), m: m}}

	resets := 0
	a := NewArena(base, 4, func(Simulator) error { resets++; return nil })
	if a.Size() != 4 {
		t.Fatalf("Size() = %d, want 4", a.Size())
	}

	seen := make(map[Simulator]bool)
	var leases []*Lease
	for i := 0; i < 4; i++ {
		l, err := a.Acquire(context.Background())
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		seen[l.Sim()] = true
		leases = append(leases, l)
	}
	if len(seen) != 4 {
		t.Errorf("leases shared replicas: %d distinct", len(seen))
	}

	for _, l := range leases {
		if err := l.Release(); err != nil {
			t.Fatal(err)
		}
		_ = l.Release()
	}
	if resets != 4 {
		t.Errorf("reset ran %d times, want 4", resets)
	}
}

func TestArena_SerializesSingleInstance(t *testing.T) {
	m := joint.NewModel(1, 0, joint.Joint{Kind: joint.Hinge})
	a := NewArena(&stubSim{data: NewData(m), m: m}, 8, nil)
	if a.Size() != 1 {
		t.Fatalf("Size() = %d, want 1 for a non-replicable simulator", a.Size())
	}

	l, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := a.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second acquire err = %v, want deadline exceeded", err)
	}

	_ = l.Release()
	if _, err := a.Acquire(context.Background()); err != nil {
		t.Errorf("acquire after release: %v", err)
	}
}
