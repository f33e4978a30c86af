package physics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/joint"
	"github.com/san-kum/simgrad/internal/reward"
)

// Plant describes the mechanics of a system. Implementations hold only
// parameters and may be shared between engine replicas.
type Plant interface {
	Name() string
	Model() *joint.Model
	// Mass writes the nv×nv generalized inertia at qpos into m.
	Mass(qpos []float64, m *mat.SymDense)
	// Force writes every generalized force except viscous damping into f.
	Force(d *dynamo.Data, f []float64)
	// Damping returns per-DOF viscous coefficients, integrated implicitly.
	Damping() []float64
}

// Activated plants carry actuator state in Data.Act.
type Activated interface {
	ActivationRate(d *dynamo.Data, rate []float64)
}

type Engine struct {
	plant  Plant
	model  *joint.Model
	data   *dynamo.Data
	integ  dynamo.Integrator
	reward reward.Func
	dt     float64

	Tolerance float64
	MaxIter   int

	mass     *mat.SymDense
	force    []float64
	implicit []float64
	rate     []float64
	iters    int
}

func NewEngine(p Plant, integ dynamo.Integrator, r reward.Func, dt float64) *Engine {
	m := p.Model()
	if r == nil {
		r = reward.Zero{}
	}
	e := &Engine{
		plant:     p,
		model:     m,
		data:      dynamo.NewData(m),
		integ:     integ,
		reward:    r,
		dt:        dt,
		Tolerance: 1e-14,
		MaxIter:   1000,
		mass:      mat.NewSymDense(m.Nv, nil),
		force:     make([]float64, m.Nv),
		implicit:  make([]float64, m.Nv),
	}
	if m.Na > 0 {
		e.rate = make([]float64, m.Na)
	}
	return e
}

func (e *Engine) Model() *joint.Model { return e.model }

func (e *Engine) Data() *dynamo.Data { return e.data }

func (e *Engine) Plant() Plant { return e.plant }

func (e *Engine) Dt() float64 { return e.dt }

// SolverIterations is the sweep count of the most recent solve.
func (e *Engine) SolverIterations() int { return e.iters }

// SetState overwrites qpos and qvel and renormalizes quaternions.
func (e *Engine) SetState(qpos, qvel []float64) error {
	if len(qpos) != e.model.Nq {
		return fmt.Errorf("%w: qpos: have %d, want %d", dynamo.ErrShapeMismatch, len(qpos), e.model.Nq)
	}
	if len(qvel) != e.model.Nv {
		return fmt.Errorf("%w: qvel: have %d, want %d", dynamo.ErrShapeMismatch, len(qvel), e.model.Nv)
	}
	copy(e.data.QPos, qpos)
	copy(e.data.QVel, qvel)
	e.model.Normalize(e.data.QPos)
	return nil
}

// Reset returns to the neutral configuration at t = 0.
func (e *Engine) Reset() {
	e.data = dynamo.NewData(e.model)
}

// Forward computes qacc for the current data without advancing time.
func (e *Engine) Forward() error {
	d := e.data
	e.plant.Mass(d.QPos, e.mass)
	e.plant.Force(d, e.force)

	damping := e.plant.Damping()
	for i := range e.force {
		e.force[i] += d.QfrcApplied[i] - damping[i]*d.QVel[i]
		e.implicit[i] = e.dt * damping[i]
	}

	copy(d.QAcc, d.QAccWarmstart)
	n, err := gaussSeidel(e.mass, e.implicit, e.force, d.QAcc, e.Tolerance, e.MaxIter)
	e.iters = n
	if err != nil {
		return fmt.Errorf("%s at t=%.4f: %w", e.plant.Name(), d.Time, err)
	}
	return nil
}

func (e *Engine) Step(u dynamo.Control) (dynamo.State, float64, error) {
	d := e.data
	if len(u) != e.model.Nu {
		return nil, 0, fmt.Errorf("%w: ctrl: have %d, want %d", dynamo.ErrShapeMismatch, len(u), e.model.Nu)
	}
	copy(d.Ctrl, u)
	x := d.State()

	if err := e.Forward(); err != nil {
		return nil, 0, err
	}

	if a, ok := e.plant.(Activated); ok && e.model.Na > 0 {
		a.ActivationRate(d, e.rate)
		for i := range d.Act {
			d.Act[i] += e.dt * e.rate[i]
		}
	}

	e.integ.Integrate(e.model, d, e.dt)
	copy(d.QAccWarmstart, d.QAcc)
	d.Time += e.dt

	next := d.State()
	if !next.IsValid() {
		return nil, 0, fmt.Errorf("%w: %s at t=%.4f", dynamo.ErrSimulationDivergence, e.plant.Name(), d.Time)
	}
	return next, e.reward.Reward(x, u, next), nil
}

// Replicate returns an independent engine with a copy of the current data.
func (e *Engine) Replicate() dynamo.Simulator {
	r := NewEngine(e.plant, e.integ, e.reward, e.dt)
	r.Tolerance = e.Tolerance
	r.MaxIter = e.MaxIter
	r.data = e.data.Clone()
	return r
}
