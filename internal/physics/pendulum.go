package physics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/joint"
)

// Configurable plants expose their parameters by name.
type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

// Pendulum is a point mass on a hinge, θ = 0 hanging down, torque-driven.
type Pendulum struct {
	BobMass  float64
	Length   float64
	Friction float64
	Gravity  float64

	model *joint.Model
}

func NewPendulum() *Pendulum {
	return &Pendulum{
		BobMass:  1.0,
		Length:   1.0,
		Friction: 0.1,
		Gravity:  9.81,
		model:    joint.NewModel(1, 0, joint.Joint{Name: "hinge", Kind: joint.Hinge}),
	}
}

func (p *Pendulum) Name() string { return "pendulum" }

func (p *Pendulum) Model() *joint.Model { return p.model }

func (p *Pendulum) Mass(qpos []float64, m *mat.SymDense) {
	m.SetSym(0, 0, p.BobMass*p.Length*p.Length)
}

func (p *Pendulum) Force(d *dynamo.Data, f []float64) {
	f[0] = d.Ctrl[0] - p.BobMass*p.Gravity*p.Length*math.Sin(d.QPos[0])
}

func (p *Pendulum) Damping() []float64 { return []float64{p.Friction} }

func (p *Pendulum) Energy(d *dynamo.Data) float64 {
	// KE = 0.5 * m * (L*omega)^2
	// PE = m * g * L * (1 - cos(theta))
	v := p.Length * d.QVel[0]
	ke := 0.5 * p.BobMass * v * v
	pe := p.BobMass * p.Gravity * p.Length * (1.0 - math.Cos(d.QPos[0]))
	return ke + pe
}

func (p *Pendulum) GetParams() map[string]float64 {
	return map[string]float64{
		"mass":    p.BobMass,
		"length":  p.Length,
		"damping": p.Friction,
		"gravity": p.Gravity,
	}
}

func (p *Pendulum) SetParam(name string, value float64) error {
	switch name {
	case "mass":
		p.BobMass = value
	case "length":
		p.Length = value
	case "damping":
		p.Friction = value
	case "gravity":
		p.Gravity = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
