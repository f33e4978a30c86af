// Package integrators advances generalized coordinates from the
// accelerations computed by a forward dynamics pass.
package integrators

import (
	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/joint"
)

// SemiImplicitEuler updates qvel first and moves qpos with the new velocity.
type SemiImplicitEuler struct{}

func NewSemiImplicitEuler() *SemiImplicitEuler {
	return &SemiImplicitEuler{}
}

func (e *SemiImplicitEuler) Integrate(m *joint.Model, d *dynamo.Data, dt float64) {
	for i := range d.QVel {
		d.QVel[i] += dt * d.QAcc[i]
	}
	m.Integrate(d.QPos, d.QVel, dt)
}

// Euler is the explicit scheme: qpos moves with the velocity at the start of
// the step.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Integrate(m *joint.Model, d *dynamo.Data, dt float64) {
	prev := append([]float64(nil), d.QVel...)
	for i := range d.QVel {
		d.QVel[i] += dt * d.QAcc[i]
	}
	m.Integrate(d.QPos, prev, dt)
}

// New returns the integrator registered under name, or nil.
func New(name string) dynamo.Integrator {
	switch name {
	case "semi_implicit_euler", "semi-implicit", "symplectic":
		return NewSemiImplicitEuler()
	case "euler":
		return NewEuler()
	default:
		return nil
	}
}
