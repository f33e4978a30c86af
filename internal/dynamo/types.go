package dynamo

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/simgrad/internal/joint"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MaxAbs is the largest absolute entry, +Inf when any entry is not finite.
func (s State) MaxAbs() float64 {
	if !s.IsValid() {
		return math.Inf(1)
	}
	return floats.Norm(s, math.Inf(1))
}

// Concat builds qpos‖qvel.
func Concat(qpos, qvel []float64) State {
	s := make(State, 0, len(qpos)+len(qvel))
	s = append(s, qpos...)
	return append(s, qvel...)
}

type Control []float64

func (u Control) Clone() Control {
	if u == nil {
		return nil
	}
	c := make(Control, len(u))
	copy(c, u)
	return c
}

// Data holds every buffer that determines the next step of a simulator.
type Data struct {
	Time          float64
	QPos          []float64
	QVel          []float64
	QAcc          []float64
	QAccWarmstart []float64
	QfrcApplied   []float64
	Ctrl          []float64
	// Act is the actuator activation state, nil when the model has none.
	Act []float64
}

// NewData allocates zeroed buffers sized for m, with identity quaternions.
func NewData(m *joint.Model) *Data {
	d := &Data{
		QPos:          m.Neutral(),
		QVel:          make([]float64, m.Nv),
		QAcc:          make([]float64, m.Nv),
		QAccWarmstart: make([]float64, m.Nv),
		QfrcApplied:   make([]float64, m.Nv),
		Ctrl:          make([]float64, m.Nu),
	}
	if m.Na > 0 {
		d.Act = make([]float64, m.Na)
	}
	return d
}

func (d *Data) State() State { return Concat(d.QPos, d.QVel) }

func (d *Data) Clone() *Data {
	return &Data{
		Time:          d.Time,
		QPos:          cloneFloats(d.QPos),
		QVel:          cloneFloats(d.QVel),
		QAcc:          cloneFloats(d.QAcc),
		QAccWarmstart: cloneFloats(d.QAccWarmstart),
		QfrcApplied:   cloneFloats(d.QfrcApplied),
		Ctrl:          cloneFloats(d.Ctrl),
		Act:           cloneFloats(d.Act),
	}
}

func cloneFloats(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append(make([]float64, 0, len(v)), v...)
}

type Simulator interface {
	Model() *joint.Model
	Data() *Data
	// Step writes u into the control buffer, advances one tick and returns
	// qpos‖qvel together with the reward of the transition.
	Step(u Control) (State, float64, error)
}

type Replicator interface {
	Replicate() Simulator
}

// Forwarder computes qacc for the current Data without advancing time.
type Forwarder interface {
	Forward() error
}

type Controller interface {
	Compute(x State, t float64) Control
}

// Integrator advances qvel from qacc and qpos from qvel.
type Integrator interface {
	Integrate(m *joint.Model, d *Data, dt float64)
}
